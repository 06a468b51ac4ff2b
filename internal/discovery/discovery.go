// Package discovery maps logical scheduler addresses to dial targets.
package discovery

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("discovery: address not registered")

// Resolver maps a logical address to a dial target (host:port).
type Resolver interface {
	Resolve(ctx context.Context, address string) (string, error)
}

// Lister enumerates the logical addresses currently known.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Static serves a fixed table that can be swapped at runtime.
type Static struct {
	mu      sync.RWMutex
	targets map[string]string
}

var (
	_ Resolver = (*Static)(nil)
	_ Lister   = (*Static)(nil)
)

func NewStatic(targets map[string]string) *Static {
	s := &Static{}
	s.Set(targets)
	return s
}

// Set replaces the whole table.
func (s *Static) Set(targets map[string]string) {
	next := make(map[string]string, len(targets))
	for a, t := range targets {
		a, t = strings.TrimSpace(a), strings.TrimSpace(t)
		if a == "" || t == "" {
			continue
		}
		next[a] = t
	}
	s.mu.Lock()
	s.targets = next
	s.mu.Unlock()
}

func (s *Static) Resolve(ctx context.Context, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	t, ok := s.targets[address]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return t, nil
}

func (s *Static) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.targets)), nil
}
