// Package rpctest provides a scriptable rpc.SchedulerService for tests.
package rpctest

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
)

// Service is an in-memory rpc.SchedulerService.
//
// Exported fields script the responses; set them before use. Recorded calls
// are read through the accessor methods.
type Service struct {
	Workers   []rpc.WorkerInfo
	Tasks     []rpc.TaskInfo
	Scheduled []rpc.TaskInfo
	Executors map[string][]string
	Total     *int64
	Alive     bool
	// AliveHang makes IsAlive block until ctx is done.
	AliveHang bool
	// Err, when set, fails every call.
	Err error

	StartedAt time.Time

	mu       sync.Mutex
	calls    []string
	jobs     []scheduler.ScheduleJob
	ops      map[string][]scheduler.TaskOperation
	executed map[string][]scheduler.RuleData
	emitted  int
	released int
}

var _ rpc.SchedulerService = (*Service)(nil)

func (s *Service) record(name string) error {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
	return s.Err
}

// Calls returns the recorded method names in call order.
func (s *Service) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Jobs returns every job received by Schedule, CanSchedule, CreateTask or SetTaskJob.
func (s *Service) Jobs() []scheduler.ScheduleJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.jobs)
}

// Ops returns the operations received for taskID.
func (s *Service) Ops(taskID string) []scheduler.TaskOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ops[taskID])
}

// Executed returns the payloads pushed into taskID.
func (s *Service) Executed(taskID string) []scheduler.RuleData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.executed[taskID])
}

// Emitted is the number of stream elements handed to consumers.
func (s *Service) Emitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// Released is the number of streams the consumer abandoned before the end.
func (s *Service) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Service) addJob(job scheduler.ScheduleJob) {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
}

func stream[T any](s *Service, ctx context.Context, name string, items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if err := s.record(name); err != nil {
			yield(zero, err)
			return
		}
		for _, it := range items {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			s.mu.Lock()
			s.emitted++
			s.mu.Unlock()
			if !yield(it, nil) {
				s.mu.Lock()
				s.released++
				s.mu.Unlock()
				return
			}
		}
	}
}

func (s *Service) GetWorkers(ctx context.Context) iter.Seq2[rpc.WorkerInfo, error] {
	return stream(s, ctx, "GetWorkers", s.Workers)
}

func (s *Service) GetWorker(ctx context.Context, workerID string) (rpc.WorkerInfo, bool, error) {
	if err := s.record("GetWorker"); err != nil {
		return rpc.WorkerInfo{}, false, err
	}
	for _, w := range s.Workers {
		if w.ID == workerID {
			return w, true, nil
		}
	}
	return rpc.WorkerInfo{}, false, nil
}

func (s *Service) Schedule(ctx context.Context, job scheduler.ScheduleJob) iter.Seq2[rpc.TaskInfo, error] {
	return func(yield func(rpc.TaskInfo, error) bool) {
		s.addJob(job)
		for t, err := range stream(s, ctx, "Schedule", s.Scheduled) {
			if !yield(t, err) {
				return
			}
		}
	}
}

func (s *Service) GetSchedulingTask(ctx context.Context, instanceID string) iter.Seq2[rpc.TaskInfo, error] {
	var out []rpc.TaskInfo
	for _, t := range s.Tasks {
		if t.Job != nil && t.Job.InstanceID == instanceID {
			out = append(out, t)
		}
	}
	return stream(s, ctx, "GetSchedulingTask", out)
}

func (s *Service) GetSchedulingTasks(ctx context.Context) iter.Seq2[rpc.TaskInfo, error] {
	return stream(s, ctx, "GetSchedulingTasks", s.Tasks)
}

func (s *Service) Shutdown(ctx context.Context, instanceID string) error {
	return s.record("Shutdown")
}

func (s *Service) TotalTask(ctx context.Context) (int64, bool, error) {
	if err := s.record("TotalTask"); err != nil {
		return 0, false, err
	}
	if s.Total == nil {
		return 0, false, nil
	}
	return *s.Total, true, nil
}

func (s *Service) CanSchedule(ctx context.Context, job scheduler.ScheduleJob) (bool, error) {
	if err := s.record("CanSchedule"); err != nil {
		return false, err
	}
	s.addJob(job)
	return job.Executor != "", nil
}

func (s *Service) IsAlive(ctx context.Context) (bool, error) {
	if err := s.record("IsAlive"); err != nil {
		return false, err
	}
	if s.AliveHang {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return s.Alive, nil
}

func (s *Service) CreateTask(ctx context.Context, workerID, schedulerID string, job scheduler.ScheduleJob) (rpc.TaskInfo, error) {
	if err := s.record("CreateTask"); err != nil {
		return rpc.TaskInfo{}, err
	}
	s.addJob(job)
	j := job
	return rpc.TaskInfo{ID: workerID + ":" + job.NodeID, Name: job.Name, WorkerID: workerID, Job: &j}, nil
}

func (s *Service) SupportedExecutors(ctx context.Context, workerID string) iter.Seq2[string, error] {
	return stream(s, ctx, "SupportedExecutors", s.Executors[workerID])
}

func (s *Service) WorkerState(ctx context.Context, workerID string) (scheduler.WorkerState, error) {
	if err := s.record("WorkerState"); err != nil {
		return "", err
	}
	for _, w := range s.Workers {
		if w.ID == workerID {
			return scheduler.WorkerWorking, nil
		}
	}
	return scheduler.WorkerUnknown, nil
}

func (s *Service) TaskOperation(ctx context.Context, taskID string, op scheduler.TaskOperation) error {
	if err := s.record("TaskOperation"); err != nil {
		return err
	}
	s.mu.Lock()
	if s.ops == nil {
		s.ops = map[string][]scheduler.TaskOperation{}
	}
	s.ops[taskID] = append(s.ops[taskID], op)
	s.mu.Unlock()
	return nil
}

func (s *Service) SetTaskJob(ctx context.Context, taskID string, job scheduler.ScheduleJob) error {
	if err := s.record("SetTaskJob"); err != nil {
		return err
	}
	s.addJob(job)
	return nil
}

func (s *Service) ExecuteTask(ctx context.Context, taskID string, data scheduler.RuleData) error {
	if err := s.record("ExecuteTask"); err != nil {
		return err
	}
	s.mu.Lock()
	if s.executed == nil {
		s.executed = map[string][]scheduler.RuleData{}
	}
	s.executed[taskID] = append(s.executed[taskID], data)
	s.mu.Unlock()
	return nil
}

// TaskState reports the state implied by the last recorded operation.
func (s *Service) TaskState(ctx context.Context, taskID string) (scheduler.TaskState, error) {
	if err := s.record("TaskState"); err != nil {
		return "", err
	}
	s.mu.Lock()
	ops := s.ops[taskID]
	s.mu.Unlock()
	if len(ops) == 0 {
		return scheduler.TaskUnknown, nil
	}
	switch ops[len(ops)-1] {
	case scheduler.OpStart, scheduler.OpReload:
		return scheduler.TaskRunning, nil
	case scheduler.OpPause:
		return scheduler.TaskPaused, nil
	case scheduler.OpShutdown:
		return scheduler.TaskShutdown, nil
	default:
		return scheduler.TaskUnknown, nil
	}
}

func (s *Service) TaskLastStateTime(ctx context.Context, taskID string) (time.Time, error) {
	if err := s.record("TaskLastStateTime"); err != nil {
		return time.Time{}, err
	}
	return s.StartedAt, nil
}

func (s *Service) TaskStartTime(ctx context.Context, taskID string) (time.Time, error) {
	if err := s.record("TaskStartTime"); err != nil {
		return time.Time{}, err
	}
	return s.StartedAt, nil
}
