package cluster

import (
	"context"
	"sync"
	"time"

	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
)

// RemoteTask is a proxy for a task running under a remote scheduler.
//
// The scheduler id is supplied locally at construction; it is authoritative
// for callers even though the remote descriptor does not carry it.
type RemoteTask struct {
	id          string
	name        string
	workerID    string
	schedulerID string
	svc         rpc.SchedulerService

	mu  sync.RWMutex
	job *scheduler.ScheduleJob
}

var _ scheduler.Task = (*RemoteTask)(nil)

func newRemoteTask(id, name, workerID, schedulerID string, svc rpc.SchedulerService, job *scheduler.ScheduleJob) *RemoteTask {
	return &RemoteTask{
		id:          id,
		name:        name,
		workerID:    workerID,
		schedulerID: schedulerID,
		svc:         svc,
		job:         job,
	}
}

func (t *RemoteTask) ID() string          { return t.id }
func (t *RemoteTask) Name() string        { return t.name }
func (t *RemoteTask) WorkerID() string    { return t.workerID }
func (t *RemoteTask) SchedulerID() string { return t.schedulerID }

func (t *RemoteTask) Job() *scheduler.ScheduleJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.job
}

// SetJob replaces the task's job remotely; the local copy follows only on success.
func (t *RemoteTask) SetJob(ctx context.Context, job scheduler.ScheduleJob) error {
	job = job.Clone()
	if err := t.svc.SetTaskJob(ctx, t.id, job); err != nil {
		return err
	}
	t.mu.Lock()
	t.job = &job
	t.mu.Unlock()
	return nil
}

func (t *RemoteTask) Reload(ctx context.Context) error {
	return t.svc.TaskOperation(ctx, t.id, scheduler.OpReload)
}

func (t *RemoteTask) Start(ctx context.Context) error {
	return t.svc.TaskOperation(ctx, t.id, scheduler.OpStart)
}

func (t *RemoteTask) Pause(ctx context.Context) error {
	return t.svc.TaskOperation(ctx, t.id, scheduler.OpPause)
}

func (t *RemoteTask) Shutdown(ctx context.Context) error {
	return t.svc.TaskOperation(ctx, t.id, scheduler.OpShutdown)
}

func (t *RemoteTask) Debug(ctx context.Context, enabled bool) error {
	op := scheduler.OpDisableDebug
	if enabled {
		op = scheduler.OpEnableDebug
	}
	return t.svc.TaskOperation(ctx, t.id, op)
}

func (t *RemoteTask) Execute(ctx context.Context, data scheduler.RuleData) error {
	return t.svc.ExecuteTask(ctx, t.id, data)
}

func (t *RemoteTask) State(ctx context.Context) (scheduler.TaskState, error) {
	return t.svc.TaskState(ctx, t.id)
}

func (t *RemoteTask) LastStateTime(ctx context.Context) (time.Time, error) {
	return t.svc.TaskLastStateTime(ctx, t.id)
}

func (t *RemoteTask) StartTime(ctx context.Context) (time.Time, error) {
	return t.svc.TaskStartTime(ctx, t.id)
}

func (t *RemoteTask) String() string {
	return "RemoteTask(" + t.schedulerID + "/" + t.workerID + "/" + t.id + ")"
}
