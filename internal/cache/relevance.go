// Package cache implements the RelevanceCache from spec.md §4.8: caches
// ExternalScorer results keyed by normalized query plus corpus
// fingerprint, with fuzzy Jaccard-similarity fallback matching.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/atomicfile"
	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/lock"
	"github.com/pbrown/claude-recall/internal/models"
)

// DefaultTTL is the cache entry lifetime (spec.md §4.8).
const DefaultTTL = 7 * 24 * time.Hour

// DefaultJaccardThreshold is the fuzzy-match similarity floor (spec.md
// §4.8, resolving the Open Question on tunability: 0.8, not prestonbrown's
// 0.7, and overridable via config).
const DefaultJaccardThreshold = 0.8

type entry struct {
	NormalizedQuery   string         `json:"normalized_query"`
	CorpusFingerprint string         `json:"corpus_fingerprint"`
	Scores            map[string]int `json:"scores"`
	Timestamp         time.Time      `json:"timestamp"`
}

type fileFormat struct {
	Entries map[string]entry `json:"entries"`
}

// Cache is the JSON-backed relevance-cache.json (spec.md §6 file layout).
type Cache struct {
	Path             string
	TTL              time.Duration
	JaccardThreshold float64
	LockTimeout      time.Duration
}

// New builds a Cache at path with spec.md §4.8 defaults.
func New(path string) *Cache {
	return &Cache{
		Path:             path,
		TTL:              DefaultTTL,
		JaccardThreshold: DefaultJaccardThreshold,
		LockTimeout:      lock.DefaultTimeout,
	}
}

func (c *Cache) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}

func (c *Cache) threshold() float64 {
	if c.JaccardThreshold <= 0 {
		return DefaultJaccardThreshold
	}
	return c.JaccardThreshold
}

func (c *Cache) lockTimeout() time.Duration {
	if c.LockTimeout <= 0 {
		return lock.DefaultTimeout
	}
	return c.LockTimeout
}

// Fingerprint derives a stable corpus identity from the lesson ID set, so
// a cached score set is never reused against a corpus that has since
// gained or lost lessons.
func Fingerprint(lessons []*models.Lesson) string {
	ids := make([]string, len(lessons))
	for i, l := range lessons {
		ids[i] = l.ID
	}
	sort.Strings(ids)
	sum := sha1.Sum([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])[:16]
}

// NormalizeQuery lowercases, strips punctuation, and sorts the query's
// words so that word-order and case differences don't defeat exact-match
// lookups.
func NormalizeQuery(query string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(query) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			sb.WriteRune(r)
		}
	}
	words := strings.Fields(sb.String())
	sort.Strings(words)
	return strings.Join(words, " ")
}

func key(normalizedQuery, corpusFingerprint string) string {
	sum := sha1.Sum([]byte(normalizedQuery + "|" + corpusFingerprint))
	return hex.EncodeToString(sum[:])
}

// Get returns cached scores for query against corpusFingerprint: first by
// exact normalized-query match, then falling back to the best entry with
// the same fingerprint whose Jaccard similarity meets the threshold.
func (c *Cache) Get(query, corpusFingerprint string) (map[string]int, bool) {
	data := c.read()
	normalized := NormalizeQuery(query)
	cutoff := time.Now().Add(-c.ttl())

	if e, ok := data.Entries[key(normalized, corpusFingerprint)]; ok && e.Timestamp.After(cutoff) {
		return e.Scores, true
	}

	for _, e := range data.Entries {
		if e.CorpusFingerprint != corpusFingerprint || !e.Timestamp.After(cutoff) {
			continue
		}
		if jaccard(normalized, e.NormalizedQuery) >= c.threshold() {
			return e.Scores, true
		}
	}
	return nil, false
}

// Put records scores for query against corpusFingerprint, evicting
// expired entries as it writes.
func (c *Cache) Put(query, corpusFingerprint string, scores map[string]int) error {
	fl, err := lock.Acquire(c.Path+".lock", c.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	data := c.read()
	normalized := NormalizeQuery(query)
	data.Entries[key(normalized, corpusFingerprint)] = entry{
		NormalizedQuery:   normalized,
		CorpusFingerprint: corpusFingerprint,
		Scores:            scores,
		Timestamp:         time.Now(),
	}

	cutoff := time.Now().Add(-c.ttl())
	for k, e := range data.Entries {
		if !e.Timestamp.After(cutoff) {
			delete(data.Entries, k)
		}
	}

	return c.write(data)
}

func (c *Cache) read() fileFormat {
	data := fileFormat{Entries: map[string]entry{}}
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return data
	}
	if json.Unmarshal(raw, &data) != nil || data.Entries == nil {
		return fileFormat{Entries: map[string]entry{}}
	}
	return data
}

func (c *Cache) write(data fileFormat) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal relevance cache: %w", err)
	}
	if err := atomicfile.Write(c.Path, raw, 0644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}

func jaccard(a, b string) float64 {
	wordsA := map[string]bool{}
	for _, w := range strings.Fields(a) {
		wordsA[w] = true
	}
	wordsB := map[string]bool{}
	for _, w := range strings.Fields(b) {
		wordsB[w] = true
	}

	intersection := 0
	union := map[string]bool{}
	for w := range wordsA {
		union[w] = true
		if wordsB[w] {
			intersection++
		}
	}
	for w := range wordsB {
		union[w] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}
