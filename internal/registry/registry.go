// Package registry owns the set of bound remote schedulers.
//
// The set is the union of the configured ids and, when a discovery lister is
// installed, the ids the lister reports. Reconciliation binds new ids,
// disposes removed ones and publishes registry events.
package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"rulecluster/internal/cluster"
	"rulecluster/internal/discovery"
	"rulecluster/internal/eventbus"
	"rulecluster/internal/rpc"
	"rulecluster/pkg/logx"
)

type Registry struct {
	factory rpc.Factory
	bus     eventbus.Bus
	log     logx.Logger
	opts    []cluster.Option

	// reconcileMu serializes Apply, Sync and Close.
	reconcileMu sync.Mutex
	configured  map[string]bool
	discovered  map[string]bool
	lister      discovery.Lister

	mu         sync.RWMutex
	schedulers map[string]*cluster.RemoteScheduler
}

// New creates an empty registry. opts apply to every scheduler it binds.
func New(factory rpc.Factory, bus eventbus.Bus, log logx.Logger, opts ...cluster.Option) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "registry"))
	return &Registry{
		factory:    factory,
		bus:        bus,
		log:        log,
		opts:       append([]cluster.Option{cluster.WithLogger(log)}, opts...),
		configured: map[string]bool{},
		discovered: map[string]bool{},
		schedulers: map[string]*cluster.RemoteScheduler{},
	}
}

// SetLister installs (or with nil removes) the discovery source used by Sync.
func (r *Registry) SetLister(l discovery.Lister) {
	r.reconcileMu.Lock()
	r.lister = l
	if l == nil {
		r.discovered = map[string]bool{}
	}
	r.reconcileMu.Unlock()
}

// Apply replaces the configured ids and reconciles. Ids that fail to bind
// are reported in the joined error and retried on the next reconcile.
func (r *Registry) Apply(ctx context.Context, ids []string) error {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()
	r.configured = map[string]bool{}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			r.configured[id] = true
		}
	}
	return r.reconcileLocked(ctx)
}

// Sync merges the ids reported by the lister and reconciles.
func (r *Registry) Sync(ctx context.Context) error {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()
	if r.lister != nil {
		addresses, err := r.lister.List(ctx)
		if err != nil {
			return fmt.Errorf("discovery list: %w", err)
		}
		next := map[string]bool{}
		for _, a := range addresses {
			if id, ok := cluster.IDFromAddress(a); ok {
				next[id] = true
			}
		}
		r.discovered = next
	}
	return r.reconcileLocked(ctx)
}

func (r *Registry) reconcileLocked(ctx context.Context) error {
	want := maps.Clone(r.configured)
	maps.Copy(want, r.discovered)

	r.mu.RLock()
	var stale []string
	for id := range r.schedulers {
		if !want[id] {
			stale = append(stale, id)
		}
	}
	var missing []string
	for id := range want {
		if _, ok := r.schedulers[id]; !ok {
			missing = append(missing, id)
		}
	}
	r.mu.RUnlock()
	slices.Sort(stale)
	slices.Sort(missing)

	for _, id := range stale {
		r.mu.Lock()
		s := r.schedulers[id]
		delete(r.schedulers, id)
		r.mu.Unlock()
		s.Dispose()
		r.log.Info("scheduler removed", logx.String("scheduler", id))
		r.publish(eventbus.RegistryRemoved, id, "")
	}

	var errs []error
	for _, id := range missing {
		s := cluster.NewRemoteScheduler(id, r.factory, r.opts...)
		if err := s.Init(ctx); err != nil {
			r.log.Warn("scheduler bind failed", logx.String("scheduler", id), logx.Err(err))
			errs = append(errs, err)
			continue
		}
		r.mu.Lock()
		r.schedulers[id] = s
		r.mu.Unlock()
		r.log.Info("scheduler added", logx.String("scheduler", id), logx.String("address", s.Address()))
		r.publish(eventbus.RegistryAdded, id, "")
	}
	return errors.Join(errs...)
}

func (r *Registry) publish(typ, id, reason string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.SchedulerChange{SchedulerID: id, Reason: reason}})
}

func (r *Registry) Get(id string) (*cluster.RemoteScheduler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedulers[id]
	return s, ok
}

// IDs returns the bound scheduler ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.schedulers))
}

// Schedulers returns the bound schedulers ordered by id.
func (r *Registry) Schedulers() []*cluster.RemoteScheduler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*cluster.RemoteScheduler, 0, len(r.schedulers))
	for _, id := range slices.Sorted(maps.Keys(r.schedulers)) {
		out = append(out, r.schedulers[id])
	}
	return out
}

// Close disposes every scheduler. The registry stays usable.
func (r *Registry) Close() {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()
	r.mu.Lock()
	all := r.schedulers
	r.schedulers = map[string]*cluster.RemoteScheduler{}
	r.mu.Unlock()
	for _, s := range all {
		s.Dispose()
	}
}
