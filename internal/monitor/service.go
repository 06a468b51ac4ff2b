package monitor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"rulecluster/internal/cluster"
	"rulecluster/internal/eventbus"
	"rulecluster/internal/storage"
	"rulecluster/pkg/logx"
)

const minInterval = time.Second

type Config struct {
	Enabled  bool
	Interval time.Duration
	// DiscoverInterval schedules Syncer.Sync; zero disables it.
	DiscoverInterval time.Duration
	// WarnPerMinute caps "scheduler down" warnings; excess ones log at debug.
	WarnPerMinute int
}

// Source yields the schedulers to probe.
type Source interface {
	Schedulers() []*cluster.RemoteScheduler
}

// Syncer refreshes the scheduler set from discovery.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Status is the liveness view of one scheduler.
type Status struct {
	ID         string    `json:"id"`
	Alive      bool      `json:"alive"`
	LastProbe  time.Time `json:"last_probe"`
	LastChange time.Time `json:"last_change"`
	LastError  string    `json:"last_error,omitempty"`
	TookMS     int64     `json:"took_ms"`
	Probes     uint64    `json:"probes"`
	Failures   uint64    `json:"failures"`
}

type Service struct {
	src    Source
	syncer Syncer
	store  storage.Store
	bus    eventbus.Bus
	log    logx.Logger

	mu     sync.Mutex
	cfg    Config
	base   context.Context
	c      *cron.Cron
	status map[string]*Status
	warn   *rate.Limiter
}

// New creates a stopped monitor. syncer, store and bus may be nil.
func New(cfg Config, src Source, syncer Syncer, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    normalize(cfg),
		src:    src,
		syncer: syncer,
		store:  store,
		bus:    bus,
		log:    log.With(logx.String("comp", "monitor")),
		status: map[string]*Status{},
		warn:   warnLimiter(cfg.WarnPerMinute),
	}
}

func normalize(cfg Config) Config {
	if cfg.Interval < minInterval {
		cfg.Interval = minInterval
	}
	if cfg.DiscoverInterval > 0 && cfg.DiscoverInterval < minInterval {
		cfg.DiscoverInterval = minInterval
	}
	return cfg
}

func warnLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Start schedules probing (and discovery sync). ctx bounds every run.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.base = ctx
	s.startLocked()
}

func (s *Service) startLocked() {
	cfg := s.cfg
	if !cfg.Enabled {
		s.log.Info("monitor disabled")
		return
	}
	base := s.base
	cl := cronLogger{log: s.log}
	s.c = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	sched, jitter := everyWithSpread(cfg.Interval, time.Now())
	s.c.Schedule(sched, cron.FuncJob(func() { s.ProbeAll(base) }))

	if s.syncer != nil && cfg.DiscoverInterval > 0 {
		ds, _ := everyWithSpread(cfg.DiscoverInterval, time.Now())
		s.c.Schedule(ds, cron.FuncJob(func() {
			if err := s.syncer.Sync(base); err != nil {
				s.log.Warn("discovery sync failed", logx.Err(err))
			}
		}))
	}
	s.c.Start()
	s.log.Info("monitor started",
		logx.Duration("interval", cfg.Interval),
		logx.Duration("startup_spread", jitter),
		logx.Duration("discover_interval", cfg.DiscoverInterval),
	)
}

// detachLocked removes the running cron; the caller waits on it unlocked
// because a running probe needs s.mu.
func (s *Service) detachLocked() *cron.Cron {
	c := s.c
	s.c = nil
	return c
}

func waitCron(ctx context.Context, c *cron.Cron) {
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Stop cancels the schedule and waits for a running probe, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.detachLocked()
	s.base = nil
	s.mu.Unlock()
	waitCron(ctx, c)
	s.log.Info("monitor stopped")
}

// Apply swaps the configuration, rescheduling when the monitor is running.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	if cfg.WarnPerMinute != s.cfg.WarnPerMinute {
		s.warn = warnLimiter(cfg.WarnPerMinute)
	}
	changed := cfg != s.cfg
	s.cfg = cfg
	if !changed || s.base == nil {
		s.mu.Unlock()
		return
	}
	base := s.base
	c := s.detachLocked()
	s.mu.Unlock()

	waitCron(base, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil && s.c == nil {
		s.startLocked()
	}
}

// ProbeAll probes every scheduler concurrently and waits for the results.
func (s *Service) ProbeAll(ctx context.Context) {
	scheds := s.src.Schedulers()
	ids := make([]string, 0, len(scheds))
	var wg sync.WaitGroup
	for _, sc := range scheds {
		ids = append(ids, sc.ID())
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.probe(ctx, sc)
		}()
	}
	wg.Wait()

	s.mu.Lock()
	for id := range s.status {
		if !slices.Contains(ids, id) {
			delete(s.status, id)
		}
	}
	s.mu.Unlock()
}

func (s *Service) probe(ctx context.Context, sc *cluster.RemoteScheduler) {
	start := time.Now()
	alive, err := sc.IsAlive(ctx)
	took := time.Since(start)
	id := sc.ID()

	s.mu.Lock()
	st, seen := s.status[id]
	if !seen {
		st = &Status{ID: id}
		s.status[id] = st
	}
	changed := !seen || st.Alive != alive
	st.Probes++
	st.LastProbe = start
	st.TookMS = took.Milliseconds()
	st.Alive = alive
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	if !alive {
		st.Failures++
	}
	if changed {
		st.LastChange = start
	}
	allowWarn := !alive && changed && s.warn.Allow()
	s.mu.Unlock()

	if changed {
		s.transition(id, alive, err, allowWarn)
	}
	if s.store != nil {
		rec := storage.ProbeRecord{At: start, SchedulerID: id, Alive: alive, TookMS: took.Milliseconds()}
		if err != nil {
			rec.Error = err.Error()
		}
		if serr := s.store.AppendProbe(ctx, rec); serr != nil {
			s.log.Debug("probe record failed", logx.String("scheduler", id), logx.Err(serr))
		}
	}
}

func (s *Service) transition(id string, alive bool, err error, warn bool) {
	typ := eventbus.SchedulerUp
	reason := ""
	if !alive {
		typ = eventbus.SchedulerDown
		reason = "probe failed"
		if err != nil {
			reason = err.Error()
		}
	}
	switch {
	case alive:
		s.log.Info("scheduler up", logx.String("scheduler", id))
	case warn:
		s.log.Warn("scheduler down", logx.String("scheduler", id), logx.Err(err))
	default:
		s.log.Debug("scheduler down", logx.String("scheduler", id), logx.Err(err))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.SchedulerChange{SchedulerID: id, Reason: reason}})
	}
}

// Status returns the last known status of id.
func (s *Service) Status(id string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[id]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Snapshot returns every known status ordered by id.
func (s *Service) Snapshot() []Status {
	s.mu.Lock()
	out := make([]Status, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Status) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
