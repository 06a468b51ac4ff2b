package grpcrpc

import (
	"time"

	"rulecluster/internal/scheduler"
)

type empty struct{}

type workerRequest struct {
	WorkerID string `json:"workerId"`
}

type workerReply struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Found bool   `json:"found"`
}

type jobRequest struct {
	Job scheduler.ScheduleJob `json:"job"`
}

type instanceRequest struct {
	InstanceID string `json:"instanceId"`
}

type totalReply struct {
	Total   int64 `json:"total"`
	Present bool  `json:"present"`
}

type boolReply struct {
	Value bool `json:"value"`
}

type createTaskRequest struct {
	WorkerID    string                `json:"workerId"`
	SchedulerID string                `json:"schedulerId"`
	Job         scheduler.ScheduleJob `json:"job"`
}

type stringReply struct {
	Value string `json:"value"`
}

type workerStateReply struct {
	State scheduler.WorkerState `json:"state"`
}

type taskRequest struct {
	TaskID string `json:"taskId"`
}

type taskOpRequest struct {
	TaskID string                  `json:"taskId"`
	Op     scheduler.TaskOperation `json:"op"`
}

type setJobRequest struct {
	TaskID string                `json:"taskId"`
	Job    scheduler.ScheduleJob `json:"job"`
}

type executeRequest struct {
	TaskID string             `json:"taskId"`
	Data   scheduler.RuleData `json:"data"`
}

type taskStateReply struct {
	State scheduler.TaskState `json:"state"`
}

type timeReply struct {
	Time time.Time `json:"time"`
}
