package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const arenaSweepInterval = 5 * time.Minute

// Factory builds the engine for a newly seen owner.
type Factory func(ownerID string) *Engine

// Arena holds one engine per device owner.
type Arena struct {
	mu      sync.Mutex
	engines map[string]*Engine
	factory Factory
	onNew   func(ownerID string, e *Engine)
}

// NewArena creates an empty arena.
func NewArena(factory Factory) *Arena {
	return &Arena{
		engines: make(map[string]*Engine),
		factory: factory,
	}
}

// OnNew registers a hook run once for every engine the arena creates, before
// the engine is returned to any caller.
func (a *Arena) OnNew(fn func(ownerID string, e *Engine)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onNew = fn
}

// Get returns the owner's engine, creating it on first use.
func (a *Arena) Get(ownerID string) *Engine {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.engines[ownerID]; ok {
		return e
	}
	e := a.factory(ownerID)
	if a.onNew != nil {
		a.onNew(ownerID, e)
	}
	a.engines[ownerID] = e
	slog.Info("Battle engine created", "owner_id", ownerID)
	return e
}

// Lookup returns the owner's engine without creating one.
func (a *Arena) Lookup(ownerID string) (*Engine, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.engines[ownerID]
	return e, ok
}

// Len returns the number of live engines.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.engines)
}

// Sweep drops engines idle for longer than ttl and returns their owners.
// Engines with a turn in flight are kept.
func (a *Arena) Sweep(now time.Time, ttl time.Duration) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var evicted []string
	for owner, e := range a.engines {
		since, idle := e.IdleSince()
		if idle && now.Sub(since) > ttl {
			delete(a.engines, owner)
			evicted = append(evicted, owner)
		}
	}
	return evicted
}

// StartSweeper periodically evicts idle engines until ctx is done. Saved
// battles stay in the store; only the live state is dropped.
func (a *Arena) StartSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(arenaSweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Arena sweeper started", "interval", arenaSweepInterval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				if evicted := a.Sweep(now, ttl); len(evicted) > 0 {
					slog.Info("Evicted idle battle engines", "count", len(evicted))
				}
			case <-ctx.Done():
				slog.Info("Arena sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
