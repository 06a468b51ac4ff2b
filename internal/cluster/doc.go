// Package cluster provides the client-side façade for scheduling authorities
// living elsewhere in the cluster.
//
// RemoteScheduler binds one scheduler id to an rpc channel and adapts every
// remote descriptor into RemoteWorker/RemoteTask proxies. The proxies share
// the scheduler's channel without owning it: once the scheduler is disposed,
// their calls fail with the channel's error instead of hanging.
//
// The proxies perform no caching and no retries. Resilience belongs to the
// rpc layer; the only local policy is that a liveness probe which times out
// reports "not alive".
package cluster
