// Package models defines the persistent record types shared by the lesson
// and handoff stores: validation rules, star rendering, and the invariants
// spec'd for each record live here so both the Markdown codec and the
// stores agree on what a legal record looks like.
package models

import (
	"strings"
	"time"
)

// Lesson tuning constants (spec.md §3).
const (
	MaxUses                  = 100
	SystemPromotionThreshold = 50
	VelocityDecayFactor      = 0.5
	VelocityEpsilon          = 0.01
	StaleDaysDefault         = 60
	MaxTitleLen              = 200
	MaxContentLen            = 1000
)

// Allowed lesson categories.
var LessonCategories = map[string]bool{
	"pattern":    true,
	"correction": true,
	"decision":   true,
	"gotcha":     true,
	"preference": true,
}

// Allowed lesson sources.
var LessonSources = map[string]bool{
	"human": true,
	"ai":    true,
}

// Allowed lesson levels.
var LessonLevels = map[string]bool{
	"project": true,
	"system":  true,
}

// Allowed lesson types (optional field; empty means unclassified).
var LessonTypes = map[string]bool{
	"":              true,
	"constraint":    true,
	"informational": true,
	"preference":    true,
}

// Lesson is a reusable correction or pattern cited by [L###]/[S###] in
// assistant output. See spec.md §3.
type Lesson struct {
	ID         string // "L001" (project) or "S001" (system)
	Title      string
	Content    string
	Category   string
	Uses       int
	Velocity   float64
	Learned    time.Time
	LastUsed   time.Time
	Source     string // human|ai
	Level      string // project|system
	Promotable bool
	LessonType string // constraint|informational|preference, may be empty
	Triggers   []string
	Extra      string // unrecognized "| **Key**: value" segments from the metadata line, preserved verbatim
}

// NewLesson builds a Lesson with the defaults spec.md §3 assigns on creation.
func NewLesson(id, category, title, content string) *Lesson {
	now := time.Now()
	return &Lesson{
		ID:         id,
		Title:      Sanitize(title, MaxTitleLen),
		Content:    Sanitize(content, MaxContentLen),
		Category:   category,
		Uses:       0,
		Velocity:   0,
		Learned:    now,
		LastUsed:   now,
		Source:     "human",
		Level:      "project",
		Promotable: true,
		Triggers:   []string{},
	}
}

// IsStale reports whether the lesson hasn't been cited in `days` days.
// The comparison is by calendar date and strict: a lesson last used exactly
// `days` days ago is not stale.
func (l *Lesson) IsStale(days int) bool {
	if l.LastUsed.IsZero() {
		return true
	}
	y, m, d := time.Now().AddDate(0, 0, -days).Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, l.LastUsed.Location())
	return l.LastUsed.Before(cutoff)
}

// Cite applies one citation: saturating uses increment, +1.0 velocity,
// last-used bump to today.
func (l *Lesson) Cite() {
	l.Uses++
	if l.Uses > MaxUses {
		l.Uses = MaxUses
	}
	l.Velocity += 1.0
	l.LastUsed = time.Now()
}

// NormalizedTitle case-folds and strips punctuation, used by Store.Add's
// duplicate-title detection.
func (l *Lesson) NormalizedTitle() string {
	return normalizeTitle(l.Title)
}

func normalizeTitle(title string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Stars renders a 5-char bar for Uses: 0->"-----", 1->"*----", 5->"**---",
// 10->"***--", 50->"****-", 100->"*****".
func (l *Lesson) Stars() string {
	var n int
	switch {
	case l.Uses >= 100:
		n = 5
	case l.Uses >= 50:
		n = 4
	case l.Uses >= 10:
		n = 3
	case l.Uses >= 5:
		n = 2
	case l.Uses >= 1:
		n = 1
	}
	return bar(n)
}

// VelocityStars renders a 5-char bar for Velocity using the thresholds
// {0, 0.1, 0.5, 1.0, 2.0, 4.0+}.
func (l *Lesson) VelocityStars() string {
	var n int
	switch {
	case l.Velocity >= 4.0:
		n = 5
	case l.Velocity >= 2.0:
		n = 4
	case l.Velocity >= 1.0:
		n = 3
	case l.Velocity >= 0.5:
		n = 2
	case l.Velocity > 0:
		n = 1
	}
	return bar(n)
}

// Rating renders the combined "[uses-stars|velocity-stars]" display.
func (l *Lesson) Rating() string {
	return "[" + l.Stars() + "|" + l.VelocityStars() + "]"
}

func bar(n int) string {
	return strings.Repeat("*", n) + strings.Repeat("-", 5-n)
}

// Sanitize strips control bytes and truncates to maxLen, per spec.md §4.6's
// ReDoS/runaway-input defenses applied uniformly to titles and content.
func Sanitize(s string, maxLen int) string {
	var sb strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\t' || r >= 0x20 {
			sb.WriteRune(r)
		}
	}
	out := sb.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
