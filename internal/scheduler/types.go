package scheduler

import "maps"

// ScheduleJob is a job specification submitted for scheduling.
//
// It is passed by value; use Clone before handing it to code that may keep it.
type ScheduleJob struct {
	InstanceID string `json:"instanceId"`
	NodeID     string `json:"nodeId"`
	ModelID    string `json:"modelId,omitempty"`
	Name       string `json:"name,omitempty"`

	// Executor selects the job type on the worker (e.g. "timer", "script").
	Executor      string         `json:"executor"`
	Configuration map[string]any `json:"configuration,omitempty"`

	Inputs  []string       `json:"inputs,omitempty"`
	Outputs []Output       `json:"outputs,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Output links a job to a downstream node.
type Output struct {
	Output    string `json:"output"`
	Condition string `json:"condition,omitempty"`
}

// Clone returns a deep copy of the top-level maps and slices.
func (j ScheduleJob) Clone() ScheduleJob {
	cp := j
	cp.Configuration = maps.Clone(j.Configuration)
	cp.Context = maps.Clone(j.Context)
	if j.Inputs != nil {
		cp.Inputs = append([]string(nil), j.Inputs...)
	}
	if j.Outputs != nil {
		cp.Outputs = append([]Output(nil), j.Outputs...)
	}
	return cp
}

// RuleData is a payload pushed into a running task.
type RuleData struct {
	ID        string            `json:"id"`
	ContextID string            `json:"contextId,omitempty"`
	Data      any               `json:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type TaskState string

const (
	TaskRunning  TaskState = "running"
	TaskPaused   TaskState = "paused"
	TaskShutdown TaskState = "shutdown"
	TaskUnknown  TaskState = "unknown"
)

type WorkerState string

const (
	WorkerWorking  WorkerState = "working"
	WorkerShutdown WorkerState = "shutdown"
	WorkerUnknown  WorkerState = "unknown"
)

// TaskOperation is a lifecycle command sent to a task.
type TaskOperation string

const (
	OpStart        TaskOperation = "start"
	OpPause        TaskOperation = "pause"
	OpReload       TaskOperation = "reload"
	OpShutdown     TaskOperation = "shutdown"
	OpEnableDebug  TaskOperation = "enable_debug"
	OpDisableDebug TaskOperation = "disable_debug"
)

// ParseTaskOperation maps a user-facing name to a TaskOperation.
func ParseTaskOperation(s string) (TaskOperation, bool) {
	switch op := TaskOperation(s); op {
	case OpStart, OpPause, OpReload, OpShutdown, OpEnableDebug, OpDisableDebug:
		return op, true
	default:
		return "", false
	}
}
