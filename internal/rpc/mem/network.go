// Package mem binds logical addresses to SchedulerServices living in the
// same process. It is the local side of the seam: consumers see the same
// Binding contract (disposal, ErrDisposed) as with a network transport.
package mem

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"rulecluster/internal/rpc"
)

// Network is an in-process registry of exported services.
// The zero value is not usable; use NewNetwork.
type Network struct {
	mu       sync.RWMutex
	services map[string]*export
}

type export struct {
	svc      rpc.SchedulerService
	disposed atomic.Bool
}

var (
	_ rpc.Factory  = (*Network)(nil)
	_ rpc.Exporter = (*Network)(nil)
)

func NewNetwork() *Network {
	return &Network{services: map[string]*export{}}
}

// Export publishes svc under address until the returned handle is disposed.
func (n *Network) Export(address string, svc rpc.SchedulerService) (rpc.Disposable, error) {
	address = strings.TrimSpace(address)
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.services[address]; ok && !cur.disposed.Load() {
		return nil, rpc.ErrAddressInUse
	}
	e := &export{svc: svc}
	n.services[address] = e
	return &exportHandle{net: n, address: address, e: e}, nil
}

// CreateConsumer binds to the service currently exported under address.
func (n *Network) CreateConsumer(ctx context.Context, address string) (rpc.Binding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	address = strings.TrimSpace(address)
	n.mu.RLock()
	e, ok := n.services[address]
	n.mu.RUnlock()
	if !ok || e.disposed.Load() {
		return nil, rpc.ErrServiceNotFound
	}
	b := &binding{}
	b.svc = &guarded{b: b, e: e}
	return b, nil
}

type exportHandle struct {
	net     *Network
	address string
	e       *export
}

func (h *exportHandle) Dispose() error {
	if !h.e.disposed.CompareAndSwap(false, true) {
		return nil
	}
	h.net.mu.Lock()
	if h.net.services[h.address] == h.e {
		delete(h.net.services, h.address)
	}
	h.net.mu.Unlock()
	return nil
}

func (h *exportHandle) IsDisposed() bool { return h.e.disposed.Load() }

type binding struct {
	disposed atomic.Bool
	svc      *guarded
}

func (b *binding) Dispose() error {
	b.disposed.Store(true)
	return nil
}

func (b *binding) IsDisposed() bool { return b.disposed.Load() }

func (b *binding) Service() rpc.SchedulerService { return b.svc }
