package ranker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pbrown/claude-recall/internal/cache"
	"github.com/pbrown/claude-recall/internal/models"
)

func (s *stubSummarizer) ExtractContext(ctx context.Context, transcriptTail string) (*models.HandoffContext, error) {
	return nil, errors.New("not implemented")
}

type stubSummarizer struct {
	response string
	err      error
	delay    time.Duration
	calls    int
}

func (s *stubSummarizer) Complete(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.response, s.err
}

func testLessons() []*models.Lesson {
	a := models.NewLesson("L001", "pattern", "retry flaky network calls", "wrap requests with exponential backoff")
	b := models.NewLesson("L002", "pattern", "unrelated UI tweak", "padding adjustment on the settings page")
	return []*models.Lesson{a, b}
}

func TestBM25RankerOrdersByRelevance(t *testing.T) {
	results := BM25Ranker{}.Rank(context.Background(), "flaky network retry", testLessons())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Lesson.ID != "L001" {
		t.Fatalf("expected L001 ranked first, got %s", results[0].Lesson.ID)
	}
}

func TestExternalScorerUsesModelResponse(t *testing.T) {
	model := &stubSummarizer{response: "L001 9\nL002 1"}
	c := cache.New(filepath.Join(t.TempDir(), "relevance-cache.json"))
	scorer := NewExternalScorer(model, c)

	results := scorer.Rank(context.Background(), "flaky network retry", testLessons())
	if results[0].Lesson.ID != "L001" || results[0].Score != 9 {
		t.Fatalf("expected L001 scored 9 first, got %+v", results[0])
	}
	if model.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", model.calls)
	}
}

func TestExternalScorerCachesResponse(t *testing.T) {
	model := &stubSummarizer{response: "L001 9\nL002 1"}
	c := cache.New(filepath.Join(t.TempDir(), "relevance-cache.json"))
	scorer := NewExternalScorer(model, c)
	lessons := testLessons()

	scorer.Rank(context.Background(), "flaky network retry", lessons)
	scorer.Rank(context.Background(), "flaky network retry", lessons)

	if model.calls != 1 {
		t.Fatalf("expected second call to be served from cache, model called %d times", model.calls)
	}
}

func TestExternalScorerFallsBackOnModelError(t *testing.T) {
	model := &stubSummarizer{err: errors.New("rate limited")}
	c := cache.New(filepath.Join(t.TempDir(), "relevance-cache.json"))
	scorer := NewExternalScorer(model, c)

	results := scorer.Rank(context.Background(), "flaky network retry", testLessons())
	if results[0].Lesson.ID != "L001" {
		t.Fatalf("expected BM25 fallback to still rank L001 first, got %s", results[0].Lesson.ID)
	}
}

func TestExternalScorerFallsBackOnTimeout(t *testing.T) {
	model := &stubSummarizer{response: "L001 9\nL002 1", delay: 50 * time.Millisecond}
	c := cache.New(filepath.Join(t.TempDir(), "relevance-cache.json"))
	scorer := NewExternalScorer(model, c)
	scorer.Timeout = 5 * time.Millisecond

	results := scorer.Rank(context.Background(), "flaky network retry", testLessons())
	if len(results) != 2 {
		t.Fatalf("expected fallback results, got %d", len(results))
	}
}

func TestExternalScorerFallsBackOnUnparseableResponse(t *testing.T) {
	model := &stubSummarizer{response: "I cannot help with that."}
	c := cache.New(filepath.Join(t.TempDir(), "relevance-cache.json"))
	scorer := NewExternalScorer(model, c)

	results := scorer.Rank(context.Background(), "flaky network retry", testLessons())
	if results[0].Lesson.ID != "L001" {
		t.Fatalf("expected BM25 fallback ordering, got %s", results[0].Lesson.ID)
	}
}

func TestExternalScorerNilModelUsesFallback(t *testing.T) {
	scorer := NewExternalScorer(nil, nil)
	results := scorer.Rank(context.Background(), "flaky network retry", testLessons())
	if results[0].Lesson.ID != "L001" {
		t.Fatalf("expected BM25 fallback with nil model, got %s", results[0].Lesson.ID)
	}
}
