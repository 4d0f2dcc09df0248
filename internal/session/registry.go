// Package session keeps one isolated feed.Session per logical user session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"novafeed/internal/feed"
	"novafeed/internal/observability"

	"github.com/google/uuid"
)

const (
	defaultIdleTTL       = 60 * time.Minute
	defaultSweepInterval = time.Minute
	defaultLimit         = 1000
)

// ErrLimitReached is returned by Create when the registry is full.
var ErrLimitReached = errors.New("session limit reached")

// Factory builds a new, unloaded feed session for id.
type Factory func(id string) *feed.Session

// Config controls expiry and capacity.
type Config struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Limit         int
	Now           func() time.Time
}

type entry struct {
	session  *feed.Session
	lastSeen time.Time
}

// Registry maps session IDs to feed sessions and expires idle ones.
type Registry struct {
	newSession Factory

	mu      sync.RWMutex
	entries map[string]*entry

	idleTTL       time.Duration
	sweepInterval time.Duration
	limit         int
	now           func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry creates a registry and starts the idle sweeper.
func NewRegistry(factory Factory, cfg Config) *Registry {
	r := &Registry{
		newSession:    factory,
		entries:       make(map[string]*entry),
		idleTTL:       defaultIdleTTL,
		sweepInterval: defaultSweepInterval,
		limit:         defaultLimit,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		r.idleTTL = cfg.IdleTTL
	}
	if cfg.SweepInterval > 0 {
		r.sweepInterval = cfg.SweepInterval
	}
	if cfg.Limit > 0 {
		r.limit = cfg.Limit
	}
	if cfg.Now != nil {
		r.now = cfg.Now
	}

	go r.sweepLoop()
	return r
}

// Create registers a new session under a random ID.
func (r *Registry) Create() (*feed.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.limit {
		return nil, ErrLimitReached
	}

	id := uuid.NewString()
	s := r.newSession(id)
	r.entries[id] = &entry{session: s, lastSeen: r.now()}
	observability.ActiveSessions.Set(float64(len(r.entries)))
	return s, nil
}

// Get returns the session for id and marks it as active.
func (r *Registry) Get(id string) (*feed.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.session, true
}

// Delete removes the session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	observability.ActiveSessions.Set(float64(len(r.entries)))
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep drops sessions idle for longer than the TTL and returns how many were
// removed. Sessions with a bootstrap in flight are kept.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	removed := 0
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) && !e.session.Loading() {
			delete(r.entries, id)
			removed++
		}
	}
	remaining := len(r.entries)
	r.mu.Unlock()

	observability.ActiveSessions.Set(float64(remaining))
	if removed > 0 {
		observability.Logger.InfoContext(context.Background(), "expired idle sessions",
			slog.Int("removed", removed),
			slog.Int("remaining", remaining),
		)
	}
	return removed
}

// Stop halts the sweeper. It is safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
