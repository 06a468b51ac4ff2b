package cluster

import (
	"context"
	"iter"

	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
)

// RemoteWorker is a proxy for a worker owned by a remote scheduler.
// It holds the scheduler's channel without owning it.
type RemoteWorker struct {
	id   string
	name string
	svc  rpc.SchedulerService
}

var _ scheduler.Worker = (*RemoteWorker)(nil)

func newRemoteWorker(info rpc.WorkerInfo, svc rpc.SchedulerService) *RemoteWorker {
	return &RemoteWorker{id: info.ID, name: info.Name, svc: svc}
}

func (w *RemoteWorker) ID() string   { return w.id }
func (w *RemoteWorker) Name() string { return w.name }

// CreateTask asks the worker to create a task for job under schedulerID.
func (w *RemoteWorker) CreateTask(ctx context.Context, schedulerID string, job scheduler.ScheduleJob) (scheduler.Task, error) {
	job = job.Clone()
	info, err := w.svc.CreateTask(ctx, w.id, schedulerID, job)
	if err != nil {
		return nil, err
	}
	workerID := info.WorkerID
	if workerID == "" {
		workerID = w.id
	}
	return newRemoteTask(info.ID, info.Name, workerID, schedulerID, w.svc, &job), nil
}

func (w *RemoteWorker) SupportedExecutors(ctx context.Context) iter.Seq2[string, error] {
	return w.svc.SupportedExecutors(ctx, w.id)
}

func (w *RemoteWorker) State(ctx context.Context) (scheduler.WorkerState, error) {
	return w.svc.WorkerState(ctx, w.id)
}

func (w *RemoteWorker) String() string { return "RemoteWorker(" + w.id + ")" }
