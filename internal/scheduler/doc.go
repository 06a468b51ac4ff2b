// Package scheduler defines the capability set of a rule-engine scheduling
// authority and the Worker/Task handles it hands out.
//
// A Scheduler may be backed by an in-process implementation or by a network
// peer (see internal/cluster). Callers only depend on the interfaces here.
//
// Sequence-producing operations return lazy iter.Seq2 values: nothing is sent
// until the caller ranges over the sequence, and breaking out of the loop
// releases (cancels) the underlying producer.
package scheduler
