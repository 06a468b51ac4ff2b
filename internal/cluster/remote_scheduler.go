package cluster

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
	logx "rulecluster/pkg/logx"
)

// DefaultAliveTimeout bounds IsAlive when no option overrides it.
const DefaultAliveTimeout = 5 * time.Second

// ErrNotInitialized is returned by calls made before Init.
var ErrNotInitialized = errors.New("remote scheduler not initialized")

// RemoteScheduler is a scheduler.Scheduler backed by a network peer.
//
// Lifecycle: NewRemoteScheduler (no network) -> Init (binds the channel) ->
// Dispose. Init is not idempotent: calling it again replaces the binding
// without disposing the previous one.
type RemoteScheduler struct {
	id      string
	factory rpc.Factory

	log          logx.Logger
	aliveTimeout time.Duration

	mu      sync.RWMutex
	binding rpc.Binding
	svc     rpc.SchedulerService
}

type Option func(*RemoteScheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *RemoteScheduler) { s.log = log }
}

// WithAliveTimeout sets the deadline of a single liveness probe. d <= 0 keeps the default.
func WithAliveTimeout(d time.Duration) Option {
	return func(s *RemoteScheduler) {
		if d > 0 {
			s.aliveTimeout = d
		}
	}
}

var _ scheduler.Scheduler = (*RemoteScheduler)(nil)

func NewRemoteScheduler(id string, factory rpc.Factory, opts ...Option) *RemoteScheduler {
	s := &RemoteScheduler{
		id:           id,
		factory:      factory,
		aliveTimeout: DefaultAliveTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *RemoteScheduler) ID() string { return s.id }

// Address is the logical service address this scheduler binds to.
func (s *RemoteScheduler) Address() string { return Address(s.id) }

// Init resolves the scheduler's address and binds a channel to it. Calling
// it again replaces the binding without disposing the previous one.
func (s *RemoteScheduler) Init(ctx context.Context) error {
	address := s.Address()
	b, err := s.factory.CreateConsumer(ctx, address)
	if err != nil {
		return fmt.Errorf("bind %s: %w", address, err)
	}
	s.mu.Lock()
	s.binding = b
	s.svc = b.Service()
	s.mu.Unlock()
	s.log.Debug("scheduler channel bound", logx.String("scheduler", s.id), logx.String("address", address))
	return nil
}

func (s *RemoteScheduler) service() (rpc.SchedulerService, error) {
	s.mu.RLock()
	svc := s.svc
	s.mu.RUnlock()
	if svc == nil {
		return nil, ErrNotInitialized
	}
	return svc, nil
}

// IsAlive probes the remote scheduler. A probe that exceeds its deadline
// reports false with a nil error; every other failure is returned as-is.
func (s *RemoteScheduler) IsAlive(ctx context.Context) (bool, error) {
	svc, err := s.service()
	if err != nil {
		return false, err
	}
	pctx, cancel := context.WithTimeout(ctx, s.aliveTimeout)
	defer cancel()
	alive, err := svc.IsAlive(pctx)
	if err != nil {
		if rpc.IsTimeout(err) {
			s.log.Debug("liveness probe timed out", logx.String("scheduler", s.id), logx.Duration("timeout", s.aliveTimeout))
			return false, nil
		}
		return false, err
	}
	return alive, nil
}

// IsNotAlive is the negation of IsAlive.
func (s *RemoteScheduler) IsNotAlive(ctx context.Context) (bool, error) {
	alive, err := s.IsAlive(ctx)
	if err != nil {
		return false, err
	}
	return !alive, nil
}

func (s *RemoteScheduler) GetWorkers(ctx context.Context) iter.Seq2[scheduler.Worker, error] {
	svc, err := s.service()
	if err != nil {
		return rpc.ErrStream[scheduler.Worker](err)
	}
	return rpc.MapStream(svc.GetWorkers(ctx), func(info rpc.WorkerInfo) scheduler.Worker {
		return newRemoteWorker(info, svc)
	})
}

func (s *RemoteScheduler) GetWorker(ctx context.Context, workerID string) (scheduler.Worker, bool, error) {
	svc, err := s.service()
	if err != nil {
		return nil, false, err
	}
	info, ok, err := svc.GetWorker(ctx, workerID)
	if err != nil || !ok {
		return nil, false, err
	}
	return newRemoteWorker(info, svc), true, nil
}

// Schedule submits job. Every yielded task is tagged with this scheduler's
// id and carries the submitted job, whatever the remote side echoes.
func (s *RemoteScheduler) Schedule(ctx context.Context, job scheduler.ScheduleJob) iter.Seq2[scheduler.Task, error] {
	svc, err := s.service()
	if err != nil {
		return rpc.ErrStream[scheduler.Task](err)
	}
	job = job.Clone()
	return rpc.MapStream(svc.Schedule(ctx, job), func(info rpc.TaskInfo) scheduler.Task {
		j := job.Clone()
		return newRemoteTask(info.ID, info.Name, info.WorkerID, s.id, svc, &j)
	})
}

// GetSchedulingTask lists the tasks of a job instance. Each task carries the
// job reported alongside its own descriptor.
func (s *RemoteScheduler) GetSchedulingTask(ctx context.Context, instanceID string) iter.Seq2[scheduler.Task, error] {
	svc, err := s.service()
	if err != nil {
		return rpc.ErrStream[scheduler.Task](err)
	}
	return rpc.MapStream(svc.GetSchedulingTask(ctx, instanceID), s.describedTask(svc))
}

func (s *RemoteScheduler) GetSchedulingTasks(ctx context.Context) iter.Seq2[scheduler.Task, error] {
	svc, err := s.service()
	if err != nil {
		return rpc.ErrStream[scheduler.Task](err)
	}
	return rpc.MapStream(svc.GetSchedulingTasks(ctx), s.describedTask(svc))
}

func (s *RemoteScheduler) describedTask(svc rpc.SchedulerService) func(rpc.TaskInfo) scheduler.Task {
	return func(info rpc.TaskInfo) scheduler.Task {
		return newRemoteTask(info.ID, info.Name, info.WorkerID, s.id, svc, info.Job)
	}
}

func (s *RemoteScheduler) Shutdown(ctx context.Context, instanceID string) error {
	svc, err := s.service()
	if err != nil {
		return err
	}
	return svc.Shutdown(ctx, instanceID)
}

// TotalTask returns the number of scheduled tasks; an empty remote answer counts as zero.
func (s *RemoteScheduler) TotalTask(ctx context.Context) (int64, error) {
	svc, err := s.service()
	if err != nil {
		return 0, err
	}
	total, ok, err := svc.TotalTask(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return total, nil
}

func (s *RemoteScheduler) CanSchedule(ctx context.Context, job scheduler.ScheduleJob) (bool, error) {
	svc, err := s.service()
	if err != nil {
		return false, err
	}
	return svc.CanSchedule(ctx, job)
}

// Dispose tears down the channel. It is safe to call repeatedly and never
// fails; teardown errors are only logged.
func (s *RemoteScheduler) Dispose() {
	s.mu.RLock()
	b := s.binding
	s.mu.RUnlock()
	if b == nil {
		return
	}
	if err := b.Dispose(); err != nil {
		s.log.Debug("scheduler channel dispose failed", logx.String("scheduler", s.id), logx.Err(err))
	}
}

// IsDisposed reports true when no channel was ever bound or the bound channel is torn down.
func (s *RemoteScheduler) IsDisposed() bool {
	s.mu.RLock()
	b := s.binding
	s.mu.RUnlock()
	return b == nil || b.IsDisposed()
}

func (s *RemoteScheduler) String() string { return "RemoteScheduler(" + s.id + ")" }
