package scoring

import (
	"testing"

	"github.com/pbrown/claude-recall/internal/models"
)

func TestTokenizeDropsStopWordsAndShortTokens(t *testing.T) {
	tokens := Tokenize("The quick fox is a go developer")
	want := map[string]bool{"quick": true, "fox": true, "go": true, "developer": true}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, tokens)
		}
	}
}

func TestBM25ScorerRanksMoreRelevantHigher(t *testing.T) {
	lessons := []*models.Lesson{
		{ID: "L001", Title: "retry backoff strategy", Content: "exponential backoff on rate limit errors", Uses: 1},
		{ID: "L002", Title: "unrelated formatting rule", Content: "use gofmt on save", Uses: 1},
	}
	scorer := NewBM25Scorer(lessons)
	results := scorer.Score("retry backoff rate limit")

	if results[0].Lesson.ID != "L001" {
		t.Fatalf("expected L001 ranked first, got %+v", results)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("expected higher score for more relevant lesson: %+v", results)
	}
}

func TestBM25ScorerEmptyQueryZeroesAll(t *testing.T) {
	lessons := []*models.Lesson{{ID: "L001", Title: "a", Content: "b"}}
	scorer := NewBM25Scorer(lessons)
	results := scorer.Score("")
	if results[0].Score != 0 {
		t.Fatalf("expected zero score for empty query, got %d", results[0].Score)
	}
}

func TestBM25ScorerEmptyCorpus(t *testing.T) {
	scorer := NewBM25Scorer(nil)
	if results := scorer.Score("anything"); results != nil {
		t.Fatalf("expected nil results for empty corpus, got %v", results)
	}
}

func TestBM25ScorerTiebreaksByUses(t *testing.T) {
	lessons := []*models.Lesson{
		{ID: "L001", Title: "x", Content: "x", Uses: 1},
		{ID: "L002", Title: "x", Content: "x", Uses: 9},
	}
	scorer := NewBM25Scorer(lessons)
	results := scorer.Score("x")
	if results[0].Lesson.ID != "L002" {
		t.Fatalf("expected higher-uses lesson first on tie, got %+v", results)
	}
}
