package lessons

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pbrown/claude-recall/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "LESSONS.md"), filepath.Join(dir, "LESSONS.system.md"))
}

func TestStoreAddAndGet(t *testing.T) {
	s := newTestStore(t)

	l, err := s.Add("project", "pattern", "Use atomic writes", "tmp+rename avoids partial files", "human", true, "", false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if l.ID != "L001" {
		t.Fatalf("expected L001, got %s", l.ID)
	}

	got, err := s.Get("L001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != l.Title {
		t.Fatalf("title mismatch: %q vs %q", got.Title, l.Title)
	}
}

func TestStoreAddDuplicateTitleRejected(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Add("project", "pattern", "Quote shell vars", "body", "human", true, "", false); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	_, err := s.Add("project", "pattern", "quote SHELL vars!", "other body", "human", true, "", false)
	if !errors.Is(err, errs.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// force=true bypasses the check
	l2, err := s.Add("project", "pattern", "quote SHELL vars!", "other body", "human", true, "", true)
	if err != nil {
		t.Fatalf("forced Add: %v", err)
	}
	if l2.ID != "L002" {
		t.Fatalf("expected L002, got %s", l2.ID)
	}
}

func TestStoreCiteIncrementsUsage(t *testing.T) {
	s := newTestStore(t)
	l, _ := s.Add("project", "pattern", "title", "body", "human", true, "", false)

	if err := s.Cite(l.ID); err != nil {
		t.Fatalf("Cite: %v", err)
	}
	got, _ := s.Get(l.ID)
	if got.Uses != 1 || got.Velocity != 1.0 {
		t.Fatalf("expected uses=1 velocity=1.0, got uses=%d velocity=%v", got.Uses, got.Velocity)
	}
}

func TestStoreDeleteRemovesRecord(t *testing.T) {
	s := newTestStore(t)
	l, _ := s.Add("project", "pattern", "title", "body", "human", true, "", false)

	if err := s.Delete(l.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(l.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStorePromoteRequiresThreshold(t *testing.T) {
	s := newTestStore(t)
	l, _ := s.Add("project", "pattern", "title", "body", "human", true, "", false)

	_, err := s.Promote(l.ID)
	if !errors.Is(err, errs.ErrUsage) {
		t.Fatalf("expected ErrUsage below threshold, got %v", err)
	}

	if err := s.Edit(l.ID, map[string]interface{}{}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	// push a fresh lesson's uses to the threshold with 50 Cite calls, then
	// verify it passes the eligibility gate.
	s2 := newTestStore(t)
	hot, _ := s2.Add("project", "pattern", "hot", "body", "human", true, "", false)
	for i := 0; i < 50; i++ {
		s2.Cite(hot.ID)
	}
	promoted, err := s2.Promote(hot.ID)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if promoted.Level != "system" || promoted.ID != "S001" {
		t.Fatalf("expected promoted system lesson S001, got %+v", promoted)
	}

	// original project lesson remains
	if _, err := s2.Get(hot.ID); err != nil {
		t.Fatalf("original lesson should survive promotion: %v", err)
	}
}

func TestStoreSearchFiltersByCategoryAndQuery(t *testing.T) {
	s := newTestStore(t)
	s.Add("project", "pattern", "Retry with backoff", "body one", "human", true, "", false)
	s.Add("project", "gotcha", "Never retry 401s", "body two", "human", true, "", false)

	results, err := s.Search("retry", "", false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}

	filtered, err := s.Search("retry", "gotcha", false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Category != "gotcha" {
		t.Fatalf("expected 1 gotcha match, got %+v", filtered)
	}
}
