package grpcrpc_test

import (
	"context"
	"errors"
	"net"
	"slices"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"rulecluster/internal/cluster"
	"rulecluster/internal/rpc"
	"rulecluster/internal/rpc/grpcrpc"
	"rulecluster/internal/rpc/rpctest"
	"rulecluster/internal/scheduler"
	"rulecluster/pkg/logx"
)

type resolverFunc func(ctx context.Context, address string) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, address string) (string, error) {
	return f(ctx, address)
}

func startServer(t *testing.T) (*grpcrpc.Server, *grpcrpc.Factory) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpcrpc.NewServer(logx.Nop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	res := resolverFunc(func(context.Context, string) (string, error) { return "passthrough:///bufnet", nil })
	f := grpcrpc.NewFactory(res, grpcrpc.FactoryConfig{CallTimeout: 2 * time.Second}, logx.Nop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	return srv, f
}

func export(t *testing.T, srv *grpcrpc.Server, id string, svc rpc.SchedulerService) {
	t.Helper()
	h, err := srv.Export(cluster.Address(id), svc)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	t.Cleanup(func() { _ = h.Dispose() })
}

func bind(t *testing.T, f rpc.Factory, id string, opts ...cluster.Option) *cluster.RemoteScheduler {
	t.Helper()
	s := cluster.NewRemoteScheduler(id, f, opts...)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(s.Dispose)
	return s
}

func TestRemoteSchedulerOverGRPC(t *testing.T) {
	t.Parallel()
	srv, f := startServer(t)

	total := int64(7)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &rpctest.Service{
		Workers:   []rpc.WorkerInfo{{ID: "w1", Name: "worker-1"}, {ID: "w2", Name: "worker-2"}},
		Scheduled: []rpc.TaskInfo{{ID: "t1", Name: "a", WorkerID: "w1"}, {ID: "t2", Name: "b", WorkerID: "w2"}},
		Executors: map[string][]string{"w1": {"script", "sql"}},
		Total:     &total,
		Alive:     true,
		StartedAt: started,
	}
	export(t, srv, "node-a", fake)
	s := bind(t, f, "node-a")
	ctx := context.Background()

	alive, err := s.IsAlive(ctx)
	if err != nil || !alive {
		t.Fatalf("IsAlive = %v, %v", alive, err)
	}

	job := scheduler.ScheduleJob{InstanceID: "i1", NodeID: "n1", Executor: "script", Configuration: map[string]any{"k": "v"}}
	tasks, err := rpc.Collect(s.Schedule(ctx, job))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID() != "t1" || tasks[1].ID() != "t2" {
		t.Fatalf("unexpected tasks: %v", tasks)
	}
	for _, task := range tasks {
		if task.SchedulerID() != "node-a" || task.Job().InstanceID != "i1" {
			t.Fatalf("task %s: scheduler=%q job=%+v", task.ID(), task.SchedulerID(), task.Job())
		}
	}
	jobs := fake.Jobs()
	if len(jobs) != 1 || jobs[0].Configuration["k"] != "v" {
		t.Fatalf("server saw jobs %+v", jobs)
	}

	n, err := s.TotalTask(ctx)
	if err != nil || n != 7 {
		t.Fatalf("TotalTask = %d, %v", n, err)
	}

	w, ok, err := s.GetWorker(ctx, "w1")
	if err != nil || !ok || w.Name() != "worker-1" {
		t.Fatalf("GetWorker = %v, %v, %v", w, ok, err)
	}
	execs, err := rpc.Collect(w.SupportedExecutors(ctx))
	if err != nil || !slices.Equal(execs, []string{"script", "sql"}) {
		t.Fatalf("executors = %v, %v", execs, err)
	}
	if _, ok, err := s.GetWorker(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing worker: ok=%v err=%v", ok, err)
	}

	if err := tasks[0].Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	st, err := tasks[0].State(ctx)
	if err != nil || st != scheduler.TaskRunning {
		t.Fatalf("state = %q, %v", st, err)
	}
	ts, err := tasks[0].StartTime(ctx)
	if err != nil || !ts.Equal(started) {
		t.Fatalf("start time = %v, %v", ts, err)
	}
	if err := tasks[0].Execute(ctx, scheduler.RuleData{ID: "d1", Data: "payload"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := fake.Executed("t1"); len(got) != 1 || got[0].Data != "payload" {
		t.Fatalf("executed = %+v", got)
	}
}

func TestIsAliveTimeoutOverGRPC(t *testing.T) {
	t.Parallel()
	srv, f := startServer(t)
	export(t, srv, "slow", &rpctest.Service{AliveHang: true})
	s := bind(t, f, "slow", cluster.WithAliveTimeout(50*time.Millisecond))

	alive, err := s.IsAlive(context.Background())
	if err != nil {
		t.Fatalf("timeout must not surface as error: %v", err)
	}
	if alive {
		t.Fatalf("expected not alive")
	}
}

func TestUnknownAddressIsServiceNotFound(t *testing.T) {
	t.Parallel()
	_, f := startServer(t)
	s := bind(t, f, "nobody")

	_, err := s.IsAlive(context.Background())
	if !errors.Is(err, rpc.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestServerErrorsReachCaller(t *testing.T) {
	t.Parallel()
	srv, f := startServer(t)
	export(t, srv, "broken", &rpctest.Service{Err: errors.New("boom")})
	s := bind(t, f, "broken")

	err := s.Shutdown(context.Background(), "i1")
	if status.Code(err) != codes.Unknown || status.Convert(err).Message() != "boom" {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = rpc.Collect(s.GetSchedulingTasks(context.Background()))
	if status.Convert(err).Message() != "boom" {
		t.Fatalf("unexpected stream error: %v", err)
	}
}

func TestDisposedBindingFailsCalls(t *testing.T) {
	t.Parallel()
	srv, f := startServer(t)
	export(t, srv, "node-b", &rpctest.Service{Alive: true})

	b, err := f.CreateConsumer(context.Background(), cluster.Address("node-b"))
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	if ok, err := b.Service().IsAlive(context.Background()); err != nil || !ok {
		t.Fatalf("IsAlive = %v, %v", ok, err)
	}
	if err := b.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if !b.IsDisposed() {
		t.Fatalf("expected disposed")
	}
	if err := b.Dispose(); err != nil {
		t.Fatalf("second dispose: %v", err)
	}
	if _, err := b.Service().IsAlive(context.Background()); !errors.Is(err, rpc.ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
	if _, err := rpc.Collect(b.Service().GetWorkers(context.Background())); !errors.Is(err, rpc.ErrDisposed) {
		t.Fatalf("expected ErrDisposed from stream, got %v", err)
	}
}

func TestEarlyBreakLeavesChannelUsable(t *testing.T) {
	t.Parallel()
	srv, f := startServer(t)
	fake := &rpctest.Service{
		Scheduled: []rpc.TaskInfo{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}},
		Alive:     true,
	}
	export(t, srv, "node-c", fake)
	s := bind(t, f, "node-c")

	var first string
	for task, err := range s.Schedule(context.Background(), scheduler.ScheduleJob{InstanceID: "i"}) {
		if err != nil {
			t.Fatalf("schedule: %v", err)
		}
		first = task.ID()
		break
	}
	if first != "t1" {
		t.Fatalf("first = %q", first)
	}
	if ok, err := s.IsAlive(context.Background()); err != nil || !ok {
		t.Fatalf("IsAlive after break = %v, %v", ok, err)
	}
}

func TestExportAddressInUse(t *testing.T) {
	t.Parallel()
	srv := grpcrpc.NewServer(logx.Nop())

	h, err := srv.Export("a", &rpctest.Service{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := srv.Export("a", &rpctest.Service{}); !errors.Is(err, rpc.ErrAddressInUse) {
		t.Fatalf("expected ErrAddressInUse, got %v", err)
	}
	if got := srv.Addresses(); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("addresses = %v", got)
	}
	if err := h.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if _, err := srv.Export("a", &rpctest.Service{}); err != nil {
		t.Fatalf("re-export: %v", err)
	}
}
