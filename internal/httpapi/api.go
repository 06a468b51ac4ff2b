// Package httpapi exposes the cluster's remote schedulers over HTTP (gin).
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"rulecluster/internal/cluster"
	"rulecluster/internal/monitor"
	"rulecluster/internal/storage"
	"rulecluster/pkg/logx"
)

// Schedulers is the set of bound remote schedulers.
type Schedulers interface {
	Get(id string) (*cluster.RemoteScheduler, bool)
	IDs() []string
}

// StatusSource reports monitor results.
type StatusSource interface {
	Status(id string) (monitor.Status, bool)
	Snapshot() []monitor.Status
}

type Deps struct {
	Schedulers Schedulers
	Monitor    StatusSource  // optional
	Store      storage.Store // optional
	// Health adds process details to /healthz.
	Health func() any
}

type Config struct {
	RatePerSec float64
	Burst      int
	// Pprof serves runtime profiles under /debug/pprof.
	Pprof      bool
	PprofToken string
}

type API struct {
	deps Deps
	log  logx.Logger

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
}

func New(deps Deps, cfg Config, log logx.Logger) *API {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &API{deps: deps, log: log.With(logx.String("comp", "httpapi"))}
	a.Apply(cfg)
	return a
}

// Apply swaps the rate limit and profiling settings. A zero rate disables limiting.
func (a *API) Apply(cfg Config) {
	var l *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RatePerSec))
		}
		l = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	a.mu.Lock()
	a.cfg = cfg
	a.limiter = l
	a.mu.Unlock()
}

func (a *API) currentLimiter() *rate.Limiter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limiter
}

// Handler builds the gin engine with every route and middleware installed.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestID(), a.accessLog(), a.rateLimit())
	a.SetupRoutes(r)
	return r
}

func (a *API) SetupRoutes(r *gin.Engine) {
	r.GET("/healthz", a.health)
	r.GET("/schedulers", a.listSchedulers)

	s := r.Group("/schedulers/:id")
	s.GET("/alive", a.alive)
	s.GET("/workers", a.listWorkers)
	s.GET("/workers/:worker", a.getWorker)
	s.GET("/workers/:worker/executors", a.workerExecutors)
	s.POST("/workers/:worker/tasks", a.createTask)
	s.GET("/tasks", a.listTasks)
	s.GET("/tasks/total", a.totalTask)
	s.GET("/tasks/:task", a.getTask)
	s.POST("/tasks/:task/:op", a.taskOperation)
	s.POST("/jobs", a.schedule)
	s.POST("/jobs/check", a.canSchedule)
	s.DELETE("/instances/:instance", a.shutdown)
	s.GET("/probes", a.probes)

	a.mountPprof(r)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (a *API) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.ServeListener(ctx, lis)
}

func (a *API) ServeListener(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	a.log.Info("http api listening", logx.String("addr", lis.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	a.log.Info("http api stopped")
	return nil
}
