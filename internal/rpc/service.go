package rpc

import (
	"context"
	"iter"
	"time"

	"rulecluster/internal/scheduler"
)

// WorkerInfo is the remote descriptor of a worker.
type WorkerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TaskInfo is the remote descriptor of a task. The owning scheduler id is
// not part of the payload; the consumer supplies it.
type TaskInfo struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	WorkerID string                 `json:"workerId"`
	Job      *scheduler.ScheduleJob `json:"job,omitempty"`
}

// SchedulerService is the stub exposed by a bound channel.
//
// Stream methods must be lazy and must stop (and release remote work) as
// soon as the consumer's yield returns false.
type SchedulerService interface {
	GetWorkers(ctx context.Context) iter.Seq2[WorkerInfo, error]
	GetWorker(ctx context.Context, workerID string) (WorkerInfo, bool, error)
	Schedule(ctx context.Context, job scheduler.ScheduleJob) iter.Seq2[TaskInfo, error]
	GetSchedulingTask(ctx context.Context, instanceID string) iter.Seq2[TaskInfo, error]
	GetSchedulingTasks(ctx context.Context) iter.Seq2[TaskInfo, error]
	Shutdown(ctx context.Context, instanceID string) error
	// TotalTask returns ok=false when the remote side reported no value.
	TotalTask(ctx context.Context) (total int64, ok bool, err error)
	CanSchedule(ctx context.Context, job scheduler.ScheduleJob) (bool, error)
	IsAlive(ctx context.Context) (bool, error)

	// Worker level.
	CreateTask(ctx context.Context, workerID, schedulerID string, job scheduler.ScheduleJob) (TaskInfo, error)
	SupportedExecutors(ctx context.Context, workerID string) iter.Seq2[string, error]
	WorkerState(ctx context.Context, workerID string) (scheduler.WorkerState, error)

	// Task level.
	TaskOperation(ctx context.Context, taskID string, op scheduler.TaskOperation) error
	SetTaskJob(ctx context.Context, taskID string, job scheduler.ScheduleJob) error
	ExecuteTask(ctx context.Context, taskID string, data scheduler.RuleData) error
	TaskState(ctx context.Context, taskID string) (scheduler.TaskState, error)
	TaskLastStateTime(ctx context.Context, taskID string) (time.Time, error)
	TaskStartTime(ctx context.Context, taskID string) (time.Time, error)
}

// Disposable is a resource with an explicit, idempotent teardown.
type Disposable interface {
	Dispose() error
	IsDisposed() bool
}

// Binding is a live connection to one remote SchedulerService.
//
// Once disposed, every call on Service() must fail with ErrDisposed.
type Binding interface {
	Disposable
	Service() SchedulerService
}

// Factory binds logical addresses to channels.
type Factory interface {
	CreateConsumer(ctx context.Context, address string) (Binding, error)
}

// Exporter publishes a local SchedulerService under a logical address.
type Exporter interface {
	Export(address string, svc SchedulerService) (Disposable, error)
}
