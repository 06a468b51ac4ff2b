package cluster

import "strings"

// AddressPrefix namespaces cluster scheduler services.
const AddressPrefix = "/rule-engine/cluster-scheduler:"

// Address returns the logical service address of scheduler id.
func Address(id string) string { return AddressPrefix + id }

// IDFromAddress is the inverse of Address.
func IDFromAddress(address string) (string, bool) {
	id, ok := strings.CutPrefix(address, AddressPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
