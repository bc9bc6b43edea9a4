// Package scoring implements the BM25 lexical ranking path of C8 Ranker
// (spec.md §4.8): tokenize lessons and query, score, normalize to a 0-10
// integer scale.
package scoring

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/pbrown/claude-recall/internal/models"
)

// Scored pairs a lesson with its relevance score (0-10).
type Scored struct {
	Lesson *models.Lesson
	Score  int
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "not": true, "no": true, "nor": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "am": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "shall": true, "should": true, "may": true, "might": true, "can": true, "could": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "he": true, "she": true, "we": true, "they": true, "you": true, "me": true, "him": true, "her": true, "us": true, "them": true,
	"my": true, "your": true, "his": true, "our": true, "their": true,
	"if": true, "then": true, "else": true, "when": true, "where": true, "how": true, "what": true, "which": true, "who": true, "whom": true,
	"so": true, "as": true, "up": true, "out": true, "about": true, "into": true, "over": true, "after": true, "before": true,
	"very": true, "just": true, "also": true, "more": true, "most": true, "some": true, "any": true, "all": true, "each": true, "every": true,
}

var splitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// k1 and b are the standard Okapi BM25 tuning constants (spec.md §4.8).
const (
	k1 = 1.5
	b  = 0.75
)

// BM25Scorer indexes a fixed set of lessons and scores queries against them.
type BM25Scorer struct {
	lessons   []*models.Lesson
	docTokens [][]string
	docLens   []int
	avgDL     float64
	df        map[string]int
	n         int
}

// NewBM25Scorer builds an index over lessons' title+content text.
func NewBM25Scorer(lessons []*models.Lesson) *BM25Scorer {
	s := &BM25Scorer{lessons: lessons, df: make(map[string]int), n: len(lessons)}
	if s.n == 0 {
		return s
	}

	total := 0
	for _, l := range lessons {
		tokens := Tokenize(l.Title + " " + l.Content)
		s.docTokens = append(s.docTokens, tokens)
		s.docLens = append(s.docLens, len(tokens))
		total += len(tokens)
	}
	s.avgDL = float64(total) / float64(s.n)

	for _, tokens := range s.docTokens {
		seen := map[string]bool{}
		for _, t := range tokens {
			seen[t] = true
		}
		for term := range seen {
			s.df[term]++
		}
	}
	return s
}

// Tokenize lowercases, splits on non-alphanumeric runs, drops stop words
// and tokens shorter than 2 characters.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var tokens []string
	for _, t := range splitPattern.Split(strings.ToLower(text), -1) {
		if len(t) >= 2 && !stopWords[t] {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func (s *BM25Scorer) idf(term string) float64 {
	df := s.df[term]
	if df == 0 {
		return 0
	}
	return math.Log((float64(s.n-df)+0.5)/(float64(df)+0.5) + 1.0)
}

func (s *BM25Scorer) scoreDoc(i int, queryTerms []string) float64 {
	dl := s.docLens[i]
	if dl == 0 {
		return 0
	}
	tf := map[string]int{}
	for _, t := range s.docTokens[i] {
		tf[t]++
	}

	score := 0.0
	for _, term := range queryTerms {
		count := tf[term]
		if count == 0 {
			continue
		}
		idf := s.idf(term)
		num := float64(count) * (k1 + 1.0)
		den := float64(count) + k1*(1.0-b+b*float64(dl)/s.avgDL)
		score += idf * num / den
	}
	return score
}

// Score ranks every indexed lesson against query, normalized to 0-10 and
// sorted descending by score (tiebreak: uses descending).
func (s *BM25Scorer) Score(query string) []Scored {
	if s.n == 0 {
		return nil
	}
	queryTerms := Tokenize(query)

	raw := make([]float64, s.n)
	maxRaw := 0.0
	if len(queryTerms) > 0 {
		for i := 0; i < s.n; i++ {
			raw[i] = s.scoreDoc(i, queryTerms)
			if raw[i] > maxRaw {
				maxRaw = raw[i]
			}
		}
	}

	results := make([]Scored, s.n)
	for i := 0; i < s.n; i++ {
		normalized := 0
		if maxRaw > 0 {
			normalized = int(math.Round(10.0 * raw[i] / maxRaw))
		}
		results[i] = Scored{Lesson: s.lessons[i], Score: normalized}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Lesson.Uses > results[j].Lesson.Uses
	})
	return results
}
