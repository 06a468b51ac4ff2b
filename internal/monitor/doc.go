// Package monitor probes every registered remote scheduler on a cron
// schedule and tracks liveness transitions.
//
// A probe that times out counts as "not alive"; any other probe error is kept
// as the scheduler's last error. Transitions are published on the event bus
// and every probe is appended to storage when a store is configured.
package monitor
