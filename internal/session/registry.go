package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Factory builds the manager options for a browser session id.
type Factory func(sid string) Options

// Pruner drops durable records older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// freshIdle bounds how long a session seen by a single request is kept.
const freshIdle = 2 * time.Minute

type registryEntry struct {
	manager  *Manager
	lastSeen time.Time
	hits     int
}

// Registry hands out one Manager per browser session and evicts idle ones.
// A session that never comes back after its first request is evicted after
// a much shorter window than the idle one.
// Evicting a manager does not sign it out; its persisted record survives and
// the next request for the same session resolves it again.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	factory Factory
	idle    time.Duration
	fresh   time.Duration
	pruner  Pruner
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates a registry. Managers idle for longer than idle are evicted by Sweep.
func NewRegistry(factory Factory, idle time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		factory: factory,
		idle:    idle,
		fresh:   min(idle, freshIdle),
		logger:  logger,
		now:     time.Now,
	}
}

// WithPruner attaches durable storage cleanup to Sweep.
func (r *Registry) WithPruner(p Pruner) *Registry {
	r.pruner = p
	return r
}

// Get returns the manager for sid, creating it on first use.
func (r *Registry) Get(sid string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sid]; ok {
		e.lastSeen = r.now()
		e.hits++
		return e.manager
	}
	m := NewManager(r.factory(sid))
	r.entries[sid] = &registryEntry{manager: m, lastSeen: r.now(), hits: 1}
	return m
}

// Drop closes and forgets the manager for sid.
func (r *Registry) Drop(sid string) {
	r.mu.Lock()
	e, ok := r.entries[sid]
	delete(r.entries, sid)
	r.mu.Unlock()
	if ok {
		e.manager.Close()
	}
}

// Len reports the number of live managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts managers idle for longer than the idle window, and managers
// used by a single request idle for longer than the fresh window.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.now()
	cutoff := now.Add(-r.idle)
	freshCutoff := now.Add(-r.fresh)

	r.mu.Lock()
	var evicted []*Manager
	for sid, e := range r.entries {
		if e.lastSeen.Before(cutoff) || (e.hits == 1 && e.lastSeen.Before(freshCutoff)) {
			evicted = append(evicted, e.manager)
			delete(r.entries, sid)
		}
	}
	r.mu.Unlock()

	for _, m := range evicted {
		m.Close()
	}
	if r.pruner != nil {
		if n, err := r.pruner.Prune(ctx, cutoff); err != nil {
			r.logger.Warn("prune session records", slog.Any("error", err))
		} else if n > 0 {
			r.logger.Info("pruned session records", slog.Int64("count", n))
		}
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				r.logger.Debug("evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}
