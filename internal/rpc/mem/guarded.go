package mem

import (
	"context"
	"iter"
	"time"

	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
)

// guarded forwards to the exported service while both the consumer binding
// and the export are alive.
type guarded struct {
	b *binding
	e *export
}

func (g *guarded) check() error {
	if g.b.disposed.Load() {
		return rpc.ErrDisposed
	}
	if g.e.disposed.Load() {
		return rpc.ErrServiceNotFound
	}
	return nil
}

func guardStream[T any](g *guarded, open func() iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if err := g.check(); err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for v, err := range open() {
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

func (g *guarded) GetWorkers(ctx context.Context) iter.Seq2[rpc.WorkerInfo, error] {
	return guardStream(g, func() iter.Seq2[rpc.WorkerInfo, error] { return g.e.svc.GetWorkers(ctx) })
}

func (g *guarded) GetWorker(ctx context.Context, workerID string) (rpc.WorkerInfo, bool, error) {
	if err := g.check(); err != nil {
		return rpc.WorkerInfo{}, false, err
	}
	return g.e.svc.GetWorker(ctx, workerID)
}

func (g *guarded) Schedule(ctx context.Context, job scheduler.ScheduleJob) iter.Seq2[rpc.TaskInfo, error] {
	return guardStream(g, func() iter.Seq2[rpc.TaskInfo, error] { return g.e.svc.Schedule(ctx, job.Clone()) })
}

func (g *guarded) GetSchedulingTask(ctx context.Context, instanceID string) iter.Seq2[rpc.TaskInfo, error] {
	return guardStream(g, func() iter.Seq2[rpc.TaskInfo, error] { return g.e.svc.GetSchedulingTask(ctx, instanceID) })
}

func (g *guarded) GetSchedulingTasks(ctx context.Context) iter.Seq2[rpc.TaskInfo, error] {
	return guardStream(g, func() iter.Seq2[rpc.TaskInfo, error] { return g.e.svc.GetSchedulingTasks(ctx) })
}

func (g *guarded) Shutdown(ctx context.Context, instanceID string) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.e.svc.Shutdown(ctx, instanceID)
}

func (g *guarded) TotalTask(ctx context.Context) (int64, bool, error) {
	if err := g.check(); err != nil {
		return 0, false, err
	}
	return g.e.svc.TotalTask(ctx)
}

func (g *guarded) CanSchedule(ctx context.Context, job scheduler.ScheduleJob) (bool, error) {
	if err := g.check(); err != nil {
		return false, err
	}
	return g.e.svc.CanSchedule(ctx, job.Clone())
}

func (g *guarded) IsAlive(ctx context.Context) (bool, error) {
	if err := g.check(); err != nil {
		return false, err
	}
	return g.e.svc.IsAlive(ctx)
}

func (g *guarded) CreateTask(ctx context.Context, workerID, schedulerID string, job scheduler.ScheduleJob) (rpc.TaskInfo, error) {
	if err := g.check(); err != nil {
		return rpc.TaskInfo{}, err
	}
	return g.e.svc.CreateTask(ctx, workerID, schedulerID, job.Clone())
}

func (g *guarded) SupportedExecutors(ctx context.Context, workerID string) iter.Seq2[string, error] {
	return guardStream(g, func() iter.Seq2[string, error] { return g.e.svc.SupportedExecutors(ctx, workerID) })
}

func (g *guarded) WorkerState(ctx context.Context, workerID string) (scheduler.WorkerState, error) {
	if err := g.check(); err != nil {
		return "", err
	}
	return g.e.svc.WorkerState(ctx, workerID)
}

func (g *guarded) TaskOperation(ctx context.Context, taskID string, op scheduler.TaskOperation) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.e.svc.TaskOperation(ctx, taskID, op)
}

func (g *guarded) SetTaskJob(ctx context.Context, taskID string, job scheduler.ScheduleJob) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.e.svc.SetTaskJob(ctx, taskID, job.Clone())
}

func (g *guarded) ExecuteTask(ctx context.Context, taskID string, data scheduler.RuleData) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.e.svc.ExecuteTask(ctx, taskID, data)
}

func (g *guarded) TaskState(ctx context.Context, taskID string) (scheduler.TaskState, error) {
	if err := g.check(); err != nil {
		return "", err
	}
	return g.e.svc.TaskState(ctx, taskID)
}

func (g *guarded) TaskLastStateTime(ctx context.Context, taskID string) (time.Time, error) {
	if err := g.check(); err != nil {
		return time.Time{}, err
	}
	return g.e.svc.TaskLastStateTime(ctx, taskID)
}

func (g *guarded) TaskStartTime(ctx context.Context, taskID string) (time.Time, error) {
	if err := g.check(); err != nil {
		return time.Time{}, err
	}
	return g.e.svc.TaskStartTime(ctx, taskID)
}
