package engine

import (
	"testing"
	"time"
)

func TestArenaReturnsOneEnginePerOwner(t *testing.T) {
	t.Parallel()

	created := 0
	arena := NewArena(func(owner string) *Engine {
		created++
		return New(owner, Deps{})
	})
	var hooked []string
	arena.OnNew(func(owner string, _ *Engine) { hooked = append(hooked, owner) })

	a1 := arena.Get("a")
	a2 := arena.Get("a")
	b := arena.Get("b")

	if a1 != a2 {
		t.Error("expected the same engine for the same owner")
	}
	if a1 == b {
		t.Error("expected distinct engines for distinct owners")
	}
	if created != 2 || len(hooked) != 2 {
		t.Errorf("created = %d, hooked = %v", created, hooked)
	}
	if _, ok := arena.Lookup("c"); ok {
		t.Error("Lookup must not create engines")
	}
}

func TestArenaSweepDropsIdleEngines(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	arena := NewArena(func(owner string) *Engine {
		return New(owner, Deps{Clock: func() time.Time { return start }})
	})
	arena.Get("a")
	busy := arena.Get("b")
	if err := busy.begin(StateSelecting); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if evicted := arena.Sweep(start.Add(time.Minute), time.Hour); len(evicted) != 0 {
		t.Fatalf("evicted fresh engines: %v", evicted)
	}
	evicted := arena.Sweep(start.Add(2*time.Hour), time.Hour)
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("evicted = %v, want [a]", evicted)
	}
	if arena.Len() != 1 {
		t.Errorf("Len = %d, want 1", arena.Len())
	}
}
