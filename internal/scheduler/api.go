package scheduler

import (
	"context"
	"iter"
	"time"
)

// Scheduler is a scheduling authority: it owns workers and turns jobs into tasks.
type Scheduler interface {
	ID() string

	GetWorkers(ctx context.Context) iter.Seq2[Worker, error]
	// GetWorker returns ok=false (and no error) when the worker does not exist.
	GetWorker(ctx context.Context, workerID string) (w Worker, ok bool, err error)

	// Schedule submits job and yields every task created for it, in creation order.
	Schedule(ctx context.Context, job ScheduleJob) iter.Seq2[Task, error]
	GetSchedulingTask(ctx context.Context, instanceID string) iter.Seq2[Task, error]
	GetSchedulingTasks(ctx context.Context) iter.Seq2[Task, error]

	// Shutdown stops all tasks of a job instance.
	Shutdown(ctx context.Context, instanceID string) error
	TotalTask(ctx context.Context) (int64, error)
	CanSchedule(ctx context.Context, job ScheduleJob) (bool, error)
}

// Worker is a compute slot owned by a scheduler.
type Worker interface {
	ID() string
	Name() string

	CreateTask(ctx context.Context, schedulerID string, job ScheduleJob) (Task, error)
	SupportedExecutors(ctx context.Context) iter.Seq2[string, error]
	State(ctx context.Context) (WorkerState, error)
}

// Task is one scheduled unit of work bound to a single worker.
type Task interface {
	ID() string
	Name() string
	WorkerID() string
	SchedulerID() string
	// Job is the definition the task was created from. It may be nil when the
	// authority did not report one.
	Job() *ScheduleJob

	SetJob(ctx context.Context, job ScheduleJob) error
	Reload(ctx context.Context) error
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Execute(ctx context.Context, data RuleData) error
	Debug(ctx context.Context, enabled bool) error

	State(ctx context.Context) (TaskState, error)
	LastStateTime(ctx context.Context) (time.Time, error)
	StartTime(ctx context.Context) (time.Time, error)
}
