// Package ranker implements C8 Ranker (spec.md §4.8): a common interface
// over the lexical BM25 path and the optional LLM-backed external-scoring
// path, with the latter degrading to the former on timeout or absence of
// a configured Summarizer.
package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/cache"
	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/scoring"
	"github.com/pbrown/claude-recall/internal/summarizer"
)

// DefaultTimeout bounds an external-scoring call before falling back to
// BM25 (spec.md §4.8).
const DefaultTimeout = 30 * time.Second

// Ranker scores a lesson corpus against a free-text query.
type Ranker interface {
	Rank(ctx context.Context, query string, lessons []*models.Lesson) []scoring.Scored
}

// BM25Ranker is the always-available lexical path.
type BM25Ranker struct{}

// Rank builds a fresh BM25 index per call; corpora are small enough
// (tens to low hundreds of lessons) that this costs nothing worth caching.
func (BM25Ranker) Rank(_ context.Context, query string, lessons []*models.Lesson) []scoring.Scored {
	return scoring.NewBM25Scorer(lessons).Score(query)
}

// ExternalScorer asks a Summarizer to rate each lesson's relevance,
// caching results in a RelevanceCache and falling back to BM25 when the
// call errors, times out, or returns an unparseable response.
type ExternalScorer struct {
	Model    summarizer.Summarizer
	Cache    *cache.Cache
	Fallback Ranker
	Timeout  time.Duration
}

// NewExternalScorer wires model and cache behind a BM25 fallback.
func NewExternalScorer(model summarizer.Summarizer, c *cache.Cache) *ExternalScorer {
	return &ExternalScorer{Model: model, Cache: c, Fallback: BM25Ranker{}, Timeout: DefaultTimeout}
}

func (e *ExternalScorer) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

// Rank tries the cache, then the model within e.timeout(), falling back to
// BM25 on any failure. A successful model call is written back to cache.
func (e *ExternalScorer) Rank(ctx context.Context, query string, lessons []*models.Lesson) []scoring.Scored {
	if e.Model == nil || len(lessons) == 0 {
		return e.Fallback.Rank(ctx, query, lessons)
	}

	fingerprint := cache.Fingerprint(lessons)
	if e.Cache != nil {
		if scores, ok := e.Cache.Get(query, fingerprint); ok {
			return e.applyScores(lessons, scores)
		}
	}

	scores, err := e.score(ctx, query, lessons)
	if err != nil {
		return e.Fallback.Rank(ctx, query, lessons)
	}

	if e.Cache != nil {
		e.Cache.Put(query, fingerprint, scores)
	}
	return e.applyScores(lessons, scores)
}

func (e *ExternalScorer) score(ctx context.Context, query string, lessons []*models.Lesson) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	prompt := buildPrompt(query, lessons)
	response, err := e.Model.Complete(ctx, systemPrompt, prompt, 512)
	if err != nil {
		return nil, fmt.Errorf("external scorer: %w", err)
	}
	return parseScores(response)
}

func (e *ExternalScorer) applyScores(lessons []*models.Lesson, scores map[string]int) []scoring.Scored {
	out := make([]scoring.Scored, len(lessons))
	for i, l := range lessons {
		out[i] = scoring.Scored{Lesson: l, Score: scores[l.ID]}
	}
	sortScored(out)
	return out
}

func sortScored(results []scoring.Scored) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Lesson.Uses > results[j].Lesson.Uses
	})
}

const systemPrompt = "You rate how relevant each lesson is to a coding task description. " +
	"Respond with one line per lesson: the lesson ID, a space, then an integer 0-10."

func buildPrompt(query string, lessons []*models.Lesson) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\nLessons:\n", query)
	for _, l := range lessons {
		fmt.Fprintf(&sb, "%s: %s - %s\n", l.ID, l.Title, l.Content)
	}
	return sb.String()
}

// parseScores accepts either "ID score" lines or a JSON object of
// id->score, since different models format structured asks differently.
func parseScores(response string) (map[string]int, error) {
	response = strings.TrimSpace(response)

	var asJSON map[string]int
	if json.Unmarshal([]byte(response), &asJSON) == nil && len(asJSON) > 0 {
		return asJSON, nil
	}

	scores := map[string]int{}
	for _, line := range strings.Split(response, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id := fields[0]
		if !strings.HasPrefix(id, "L") && !strings.HasPrefix(id, "S") && !strings.HasPrefix(id, "hf-") {
			continue
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		scores[id] = n
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no scores parsed from external response")
	}
	return scores, nil
}
