// Package rpc is the channel-binding contract between a scheduler proxy and
// the transport underneath it.
//
// A Factory turns a logical service address into a Binding: a disposable
// handle exposing a SchedulerService stub. Implementations live in
// subpackages (mem for in-process peers, grpcrpc for network peers).
package rpc
