package decay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pbrown/claude-recall/internal/lessons"
)

func newTestEngine(t *testing.T) (*Engine, *lessons.Store) {
	t.Helper()
	dir := t.TempDir()
	store := lessons.NewStore(filepath.Join(dir, "LESSONS.md"), filepath.Join(dir, "LESSONS.system.md"))
	engine := NewEngine(store, dir)
	return engine, store
}

func TestRunFirstTimeAlwaysRuns(t *testing.T) {
	engine, store := newTestEngine(t)
	l, _ := store.Add("project", "pattern", "title", "body", "human", true, "", false)
	store.Cite(l.ID) // velocity=1.0, uses=1

	result, err := engine.Run(false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Ran {
		t.Fatalf("expected first run to proceed")
	}

	got, _ := store.Get(l.ID)
	if got.Velocity != 0.5 {
		t.Fatalf("expected velocity halved to 0.5, got %v", got.Velocity)
	}
}

func TestRunSkipsWithoutForceWhenRecentAndNoSessions(t *testing.T) {
	engine, store := newTestEngine(t)
	l, _ := store.Add("project", "pattern", "title", "body", "human", true, "", false)
	store.Cite(l.ID)

	if _, err := engine.Run(false); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	result, err := engine.Run(false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.Ran {
		t.Fatalf("expected second run to be skipped (too soon, no new sessions)")
	}
}

func TestRunForceAlwaysProceeds(t *testing.T) {
	engine, store := newTestEngine(t)
	l, _ := store.Add("project", "pattern", "title", "body", "human", true, "", false)
	store.Cite(l.ID)
	engine.Run(false)

	result, err := engine.Run(true)
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if !result.Ran {
		t.Fatalf("expected forced run to proceed")
	}
}

func TestVelocityBelowEpsilonZeroed(t *testing.T) {
	engine, store := newTestEngine(t)
	l, _ := store.Add("project", "pattern", "title", "body", "human", true, "", false)
	store.Edit(l.ID, map[string]interface{}{"velocity": 0.015})

	engine.Run(true)
	got, _ := store.Get(l.ID)
	if got.Velocity != 0 {
		t.Fatalf("expected velocity zeroed below epsilon, got %v", got.Velocity)
	}
}

func TestStaleUseDecrementsButFloorsAtOne(t *testing.T) {
	engine, store := newTestEngine(t)
	l, _ := store.Add("project", "pattern", "title", "body", "human", true, "", false)
	store.Cite(l.ID)
	store.Edit(l.ID, map[string]interface{}{
		"uses":      1,
		"last_used": time.Now().AddDate(0, 0, -31),
	})

	result, err := engine.Run(true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.UsesDecremented != 1 {
		t.Fatalf("expected 1 stale-use decrement, got %d", result.UsesDecremented)
	}

	got, _ := store.Get(l.ID)
	if got.Uses != 1 {
		t.Fatalf("expected uses floored at 1, got %d", got.Uses)
	}
}

func TestRecordSessionStartAllowsSkippedRunToRetryAfterActivity(t *testing.T) {
	engine, store := newTestEngine(t)
	l, _ := store.Add("project", "pattern", "title", "body", "human", true, "", false)
	store.Cite(l.ID)
	engine.Run(false)

	skipped, _ := engine.Run(false)
	if skipped.Ran {
		t.Fatalf("expected skip before any new session recorded")
	}

	if err := engine.RecordSessionStart(); err != nil {
		t.Fatalf("RecordSessionStart: %v", err)
	}
	// Still within the interval window, so it should still skip on time
	// alone; the counter only matters once the interval has also elapsed.
	stillSkipped, _ := engine.Run(false)
	if stillSkipped.Ran {
		t.Fatalf("expected skip: interval has not elapsed yet")
	}

	// Once the interval has also elapsed, the recorded session lets it run.
	st := engine.readState()
	st.LastRun = time.Now().AddDate(0, 0, -8)
	if err := engine.writeState(st); err != nil {
		t.Fatalf("writeState: %v", err)
	}
	retried, _ := engine.Run(false)
	if !retried.Ran {
		t.Fatalf("expected run after a recorded session and an elapsed interval")
	}
}
