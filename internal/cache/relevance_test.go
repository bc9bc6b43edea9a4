package cache

import (
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "relevance-cache.json"))
}

func TestPutThenGetExactMatch(t *testing.T) {
	c := newTestCache(t)
	scores := map[string]int{"L001": 9, "L002": 3}
	if err := c.Put("fix flaky test", "fp-a", scores); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get("fix flaky test", "fp-a")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got["L001"] != 9 {
		t.Fatalf("expected L001=9, got %v", got)
	}
}

func TestGetMissesOnDifferentFingerprint(t *testing.T) {
	c := newTestCache(t)
	c.Put("fix flaky test", "fp-a", map[string]int{"L001": 9})

	if _, ok := c.Get("fix flaky test", "fp-b"); ok {
		t.Fatalf("expected miss: corpus fingerprint changed")
	}
}

func TestGetFuzzyMatchesSimilarQuery(t *testing.T) {
	c := newTestCache(t)
	c.Put("fix the flaky database test", "fp-a", map[string]int{"L001": 8})

	// Same words, different order and one filler word added — Jaccard
	// similarity should still clear the 0.8 default threshold.
	got, ok := c.Get("flaky test fix the database now", "fp-a")
	if !ok {
		t.Fatalf("expected fuzzy hit")
	}
	if got["L001"] != 8 {
		t.Fatalf("expected L001=8, got %v", got)
	}
}

func TestGetMissesWhenBelowThreshold(t *testing.T) {
	c := newTestCache(t)
	c.Put("fix the flaky database test", "fp-a", map[string]int{"L001": 8})

	if _, ok := c.Get("deploy the production release pipeline", "fp-a"); ok {
		t.Fatalf("expected miss: queries share no meaningful overlap")
	}
}

func TestFingerprintStableUnderReorder(t *testing.T) {
	a := Fingerprint(lessonsWithIDs("L001", "L002", "S001"))
	b := Fingerprint(lessonsWithIDs("S001", "L001", "L002"))
	if a != b {
		t.Fatalf("expected fingerprint to be order-independent, got %q vs %q", a, b)
	}
}

func TestFingerprintChangesWithCorpus(t *testing.T) {
	a := Fingerprint(lessonsWithIDs("L001", "L002"))
	b := Fingerprint(lessonsWithIDs("L001", "L002", "L003"))
	if a == b {
		t.Fatalf("expected fingerprint to change when corpus membership changes")
	}
}
