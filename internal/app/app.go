// Package app wires the clusterd daemon together.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"rulecluster/internal/cluster"
	"rulecluster/internal/config"
	"rulecluster/internal/eventbus"
	"rulecluster/internal/httpapi"
	"rulecluster/internal/monitor"
	"rulecluster/internal/registry"
	"rulecluster/internal/rpc/grpcrpc"
	"rulecluster/internal/runtime/supervisor"
	"rulecluster/internal/storage"
	logx "rulecluster/pkg/logx"
)

type App struct {
	cfgm    *config.ConfigManager
	sup     *supervisor.Supervisor
	started time.Time

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	disc    *discoveryBackend
	factory *grpcrpc.Factory
	reg     *registry.Registry
	mon     *monitor.Service
	api     *httpapi.API

	httpMu     sync.Mutex
	httpCancel context.CancelFunc
	httpAddr   string
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	if id := strings.TrimSpace(cfg.Node.ID); id != "" {
		log = log.With(logx.String("node", id))
	}
	appLog := log.With(logx.String("comp", "app"))

	timeouts, err := mapRPC(cfg)
	if err != nil {
		return nil, err
	}
	mcfg, err := mapMonitor(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	disc, err := newDiscovery(cfg)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("discovery: %w", err)
	}

	factory := grpcrpc.NewFactory(disc.resolver, grpcrpc.FactoryConfig{CallTimeout: timeouts.call}, log)
	reg := registry.New(factory, bus, log, cluster.WithAliveTimeout(timeouts.alive))
	if cfg.Cluster.Discover {
		reg.SetLister(disc.lister)
	}
	mon := monitor.New(mcfg, reg, reg, store, bus, log)

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		disc:    disc,
		factory: factory,
		reg:     reg,
		mon:     mon,
	}
	hcfg, _, err := mapHTTP(cfg)
	if err != nil {
		_ = disc.Close()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	a.api = httpapi.New(httpapi.Deps{Schedulers: reg, Monitor: mon, Store: store, Health: a.health}, hcfg, log)
	return a, nil
}

func (a *App) Registry() *registry.Registry { return a.reg }

// Done is closed when the supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() any {
	out := map[string]any{
		"uptime":         time.Since(a.started).Round(time.Second).String(),
		"events_dropped": a.bus.Dropped(),
	}
	if a.sup != nil {
		out["supervisor"] = a.sup.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapRPC(cfg); err != nil {
			return err
		}
		if _, err := mapMonitor(cfg); err != nil {
			return err
		}
		if _, _, err := mapHTTP(cfg); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()
	a.reconcile(run, cfg)
	a.mon.Start(run)
	if cfg.HTTP.Enabled {
		_, addr, _ := mapHTTP(cfg)
		a.startHTTP(addr)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				ch, _ := e.Data.(eventbus.SchedulerChange)
				a.log.Debug("event", logx.String("type", e.Type), logx.String("scheduler", ch.SchedulerID), logx.String("reason", ch.Reason))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				newCfg = latest(sub, newCfg)
				a.apply(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("schedulers", len(a.reg.IDs())))
	return nil
}

// latest drains queued configs so a burst of edits is applied once.
func latest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) reconcile(ctx context.Context, cfg *config.Config) {
	if err := a.reg.Apply(ctx, cfg.Cluster.Schedulers); err != nil {
		a.log.Warn("some schedulers failed to bind; retrying on next sync", logx.Err(err))
	}
	if cfg.Cluster.Discover {
		if err := a.reg.Sync(ctx); err != nil {
			a.log.Warn("discovery sync failed", logx.Err(err))
		}
	}
}

// apply moves the running daemon from oldCfg to newCfg. Sections that
// cannot change live are reported and left as they were.
func (a *App) apply(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if changed[config.SectionLogging] {
		a.logs.Apply(mapLogging(newCfg))
	}
	if changed[config.SectionRPC] {
		a.log.Warn("rpc config changed; restart required for changes to take effect")
	}
	if changed[config.SectionStorage] {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if changed[config.SectionDiscovery] {
		switch {
		case discoveryDriver(oldCfg) != discoveryDriver(newCfg), a.disc.static == nil:
			a.log.Warn("discovery backend changed; restart required for changes to take effect")
		default:
			// Only newly bound schedulers resolve through the new table.
			a.disc.static.Set(staticTargets(newCfg))
		}
	}
	if changed[config.SectionCluster] || changed[config.SectionDiscovery] {
		if oldCfg.Cluster.Discover != newCfg.Cluster.Discover {
			if newCfg.Cluster.Discover {
				a.reg.SetLister(a.disc.lister)
			} else {
				a.reg.SetLister(nil)
			}
		}
		a.reconcile(ctx, newCfg)
	}
	if changed[config.SectionMonitor] {
		if mcfg, err := mapMonitor(newCfg); err != nil {
			a.log.Warn("invalid monitor config; keeping previous", logx.Err(err))
		} else {
			a.mon.Apply(mcfg)
		}
	}
	if changed[config.SectionHTTP] {
		hcfg, addr, err := mapHTTP(newCfg)
		if err != nil {
			a.log.Warn("invalid http config; keeping previous", logx.Err(err))
			return
		}
		a.api.Apply(hcfg)
		a.httpMu.Lock()
		running, curAddr := a.httpCancel != nil, a.httpAddr
		a.httpMu.Unlock()
		switch {
		case running && (!newCfg.HTTP.Enabled || addr != curAddr):
			a.stopHTTP()
			if newCfg.HTTP.Enabled {
				a.startHTTP(addr)
			}
		case !running && newCfg.HTTP.Enabled:
			a.startHTTP(addr)
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) startHTTP(addr string) {
	a.httpMu.Lock()
	defer a.httpMu.Unlock()
	if a.httpCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(a.sup.Context())
	a.httpCancel, a.httpAddr = cancel, addr
	// A bind failure is retried rather than taking the daemon down.
	a.sup.GoRestart("http.api", func(context.Context) error {
		if ctx.Err() != nil {
			return nil
		}
		return a.api.Serve(ctx, addr)
	}, time.Second, 30*time.Second)
}

func (a *App) stopHTTP() {
	a.httpMu.Lock()
	cancel := a.httpCancel
	a.httpCancel, a.httpAddr = nil, ""
	a.httpMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", time.Second, func(context.Context) error { a.stopHTTP(); return nil })
	step("monitor", 2*time.Second, func(c context.Context) error { a.mon.Stop(c); return nil })
	step("supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Stop(c) })
	step("registry", 2*time.Second, func(context.Context) error { a.reg.Close(); return nil })
	step("discovery", time.Second, func(context.Context) error { return a.disc.Close() })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
