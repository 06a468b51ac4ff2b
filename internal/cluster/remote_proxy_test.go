package cluster

import (
	"context"
	"testing"
	"time"

	"rulecluster/internal/rpc"
	"rulecluster/internal/rpc/rpctest"
	"rulecluster/internal/scheduler"
)

func TestRemoteWorkerForwards(t *testing.T) {
	t.Parallel()
	fake := &rpctest.Service{
		Workers:   []rpc.WorkerInfo{{ID: "w1", Name: "Worker1"}},
		Executors: map[string][]string{"w1": {"timer", "script"}},
	}
	s := newBound(t, "sched-1", fake)
	w, ok, err := s.GetWorker(context.Background(), "w1")
	if err != nil || !ok {
		t.Fatalf("GetWorker = %v, %v", ok, err)
	}

	execs, err := rpc.Collect(w.SupportedExecutors(context.Background()))
	if err != nil || len(execs) != 2 || execs[0] != "timer" {
		t.Fatalf("SupportedExecutors = %v, %v", execs, err)
	}
	st, err := w.State(context.Background())
	if err != nil || st != scheduler.WorkerWorking {
		t.Fatalf("State = %v, %v", st, err)
	}

	task, err := w.CreateTask(context.Background(), "sched-1", scheduler.ScheduleJob{NodeID: "n1", Name: "node", Executor: "timer"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.WorkerID() != "w1" || task.SchedulerID() != "sched-1" || task.Job().NodeID != "n1" {
		t.Fatalf("task = %s %s %+v", task.WorkerID(), task.SchedulerID(), task.Job())
	}
}

func TestRemoteTaskForwards(t *testing.T) {
	t.Parallel()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := &rpctest.Service{
		StartedAt: started,
		Tasks:     []rpc.TaskInfo{{ID: "t1", WorkerID: "w1", Job: &scheduler.ScheduleJob{Executor: "timer"}}},
	}
	s := newBound(t, "sched-1", fake)
	tasks, err := rpc.Collect(s.GetSchedulingTasks(context.Background()))
	if err != nil || len(tasks) != 1 {
		t.Fatalf("GetSchedulingTasks = %v, %v", tasks, err)
	}
	task := tasks[0]
	ctx := context.Background()

	steps := []struct {
		name string
		run  func() error
	}{
		{"start", func() error { return task.Start(ctx) }},
		{"pause", func() error { return task.Pause(ctx) }},
		{"reload", func() error { return task.Reload(ctx) }},
		{"debug", func() error { return task.Debug(ctx, true) }},
		{"shutdown", func() error { return task.Shutdown(ctx) }},
	}
	for _, st := range steps {
		if err := st.run(); err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
	}
	want := []scheduler.TaskOperation{scheduler.OpStart, scheduler.OpPause, scheduler.OpReload, scheduler.OpEnableDebug, scheduler.OpShutdown}
	got := fake.Ops("t1")
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops = %v, want %v", got, want)
		}
	}

	state, err := task.State(ctx)
	if err != nil || state != scheduler.TaskShutdown {
		t.Fatalf("State = %v, %v", state, err)
	}
	if ts, err := task.StartTime(ctx); err != nil || !ts.Equal(started) {
		t.Fatalf("StartTime = %v, %v", ts, err)
	}
	if ts, err := task.LastStateTime(ctx); err != nil || !ts.Equal(started) {
		t.Fatalf("LastStateTime = %v, %v", ts, err)
	}

	if err := task.Execute(ctx, scheduler.RuleData{ID: "d1", Data: "payload"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ex := fake.Executed("t1"); len(ex) != 1 || ex[0].ID != "d1" {
		t.Fatalf("executed = %v", ex)
	}

	if err := task.SetJob(ctx, scheduler.ScheduleJob{Executor: "script"}); err != nil {
		t.Fatalf("SetJob: %v", err)
	}
	if task.Job().Executor != "script" {
		t.Fatalf("Job() after SetJob = %+v", task.Job())
	}
}

func TestRemoteTaskKeepsJobWhenSetJobFails(t *testing.T) {
	t.Parallel()
	fake := &rpctest.Service{Tasks: []rpc.TaskInfo{{ID: "t1", Job: &scheduler.ScheduleJob{Executor: "timer"}}}}
	s := newBound(t, "sched-1", fake)
	tasks, err := rpc.Collect(s.GetSchedulingTasks(context.Background()))
	if err != nil || len(tasks) != 1 {
		t.Fatalf("GetSchedulingTasks = %v, %v", tasks, err)
	}
	s.Dispose()
	if err := tasks[0].SetJob(context.Background(), scheduler.ScheduleJob{Executor: "script"}); err != rpc.ErrDisposed {
		t.Fatalf("SetJob err = %v, want ErrDisposed", err)
	}
	if tasks[0].Job().Executor != "timer" {
		t.Fatalf("Job() = %+v, want original", tasks[0].Job())
	}
}
