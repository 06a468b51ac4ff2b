package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"rulecluster/internal/cluster"
	"rulecluster/internal/eventbus"
	"rulecluster/internal/registry"
	"rulecluster/internal/rpc/mem"
	"rulecluster/internal/rpc/rpctest"
	"rulecluster/internal/storage"
	"rulecluster/pkg/logx"
)

type fixture struct {
	reg   *registry.Registry
	bus   eventbus.Bus
	store storage.Store
	fakes map[string]*rpctest.Service
}

func newFixture(t *testing.T, fakes map[string]*rpctest.Service) *fixture {
	t.Helper()
	net := mem.NewNetwork()
	ids := make([]string, 0, len(fakes))
	for id, f := range fakes {
		if _, err := net.Export(cluster.Address(id), f); err != nil {
			t.Fatalf("export: %v", err)
		}
		ids = append(ids, id)
	}
	bus := eventbus.New()
	reg := registry.New(net, bus, logx.Nop(), cluster.WithAliveTimeout(30*time.Millisecond))
	if err := reg.Apply(context.Background(), ids); err != nil {
		t.Fatalf("apply: %v", err)
	}
	t.Cleanup(reg.Close)
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "m.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return &fixture{reg: reg, bus: bus, store: st, fakes: fakes}
}

func eventSet(ch <-chan eventbus.Event) []string {
	var out []string
	for {
		select {
		case e := <-ch:
			out = append(out, e.Type+":"+e.Data.(eventbus.SchedulerChange).SchedulerID)
		default:
			slices.Sort(out)
			return out
		}
	}
}

func TestProbeAllTracksTransitions(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, map[string]*rpctest.Service{
		"a": {Alive: true},
		"b": {AliveHang: true},
		"c": {Err: errors.New("boom")},
	})
	events, unsub := fx.bus.Subscribe(16, eventbus.SchedulerUp, eventbus.SchedulerDown)
	defer unsub()

	m := New(Config{Enabled: true, Interval: time.Minute}, fx.reg, nil, fx.store, fx.bus, logx.Nop())
	ctx := context.Background()
	m.ProbeAll(ctx)

	snap := m.Snapshot()
	if len(snap) != 3 || snap[0].ID != "a" || snap[1].ID != "b" || snap[2].ID != "c" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap[0].Alive || snap[0].Failures != 0 {
		t.Fatalf("a = %+v", snap[0])
	}
	if snap[1].Alive || snap[1].LastError != "" || snap[1].Failures != 1 {
		t.Fatalf("b (timed out) = %+v", snap[1])
	}
	if snap[2].Alive || snap[2].LastError != "boom" {
		t.Fatalf("c (failing) = %+v", snap[2])
	}
	want := []string{"scheduler.down:b", "scheduler.down:c", "scheduler.up:a"}
	if got := eventSet(events); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	m.ProbeAll(ctx)
	if got := eventSet(events); len(got) != 0 {
		t.Fatalf("steady state published %v", got)
	}

	fx.fakes["a"].Alive = false
	m.ProbeAll(ctx)
	if got := eventSet(events); !slices.Equal(got, []string{"scheduler.down:a"}) {
		t.Fatalf("events = %v", got)
	}
	st, ok := m.Status("a")
	if !ok || st.Alive || st.Probes != 3 || st.Failures != 1 || !st.LastChange.Equal(st.LastProbe) {
		t.Fatalf("a after flip = %+v", st)
	}

	recs, err := fx.store.RecentProbes(ctx, "a", 10)
	if err != nil || len(recs) != 3 || recs[0].Alive || !recs[2].Alive {
		t.Fatalf("stored probes = %+v, %v", recs, err)
	}
}

func TestProbeAllForgetsRemovedSchedulers(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, map[string]*rpctest.Service{"a": {Alive: true}, "b": {Alive: true}})
	m := New(Config{Enabled: true}, fx.reg, nil, nil, nil, logx.Nop())
	ctx := context.Background()

	m.ProbeAll(ctx)
	if err := fx.reg.Apply(ctx, []string{"b"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	m.ProbeAll(ctx)
	if _, ok := m.Status("a"); ok {
		t.Fatalf("status of removed scheduler kept")
	}
	if _, ok := m.Status("b"); !ok {
		t.Fatalf("status of b missing")
	}
}

func TestStartProbesOnSchedule(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, map[string]*rpctest.Service{"a": {Alive: true}})
	m := New(Config{Enabled: true, Interval: time.Second}, fx.reg, nil, nil, nil, logx.Nop())
	m.Start(context.Background())
	defer m.Stop(context.Background())

	deadline := time.After(5 * time.Second)
	for {
		if st, ok := m.Status("a"); ok && st.Alive {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no probe within deadline")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

type countingSyncer struct{ calls chan struct{} }

func (c countingSyncer) Sync(context.Context) error {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return nil
}

func TestApplyEnablesAndSchedulesDiscovery(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, map[string]*rpctest.Service{})
	sy := countingSyncer{calls: make(chan struct{}, 1)}
	m := New(Config{}, fx.reg, sy, nil, nil, logx.Nop())
	m.Start(context.Background())
	defer m.Stop(context.Background())

	m.mu.Lock()
	running := m.c != nil
	m.mu.Unlock()
	if running {
		t.Fatalf("disabled monitor scheduled work")
	}

	m.Apply(Config{Enabled: true, Interval: time.Minute, DiscoverInterval: time.Second})
	select {
	case <-sy.calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("discovery sync never ran")
	}
}

func TestEveryWithSpread(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		every, maxSpread time.Duration
	}{
		{time.Second, time.Second},
		{10 * time.Second, 10 * time.Second},
		{5 * time.Minute, maxStartupSpread},
	}
	for _, tt := range tests {
		sched, jitter := everyWithSpread(tt.every, now)
		if jitter < 0 || jitter >= tt.maxSpread {
			t.Fatalf("every %v: jitter %v out of range", tt.every, jitter)
		}
		first := sched.Next(now)
		if want := now.Add(tt.every + jitter); !first.Equal(want) {
			t.Fatalf("every %v: first = %v, want %v", tt.every, first, want)
		}
		// cron.Every aligns later runs to whole seconds.
		if d := sched.Next(first).Sub(first); d <= 0 || d > tt.every {
			t.Fatalf("every %v: period = %v", tt.every, d)
		}
	}
}
