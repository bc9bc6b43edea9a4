// Package injector implements C9 Injector (spec.md §4.9): assembles the
// context text (lessons, handoffs, duty reminders, todo continuation)
// that hooks return to the host agent, within a token budget.
package injector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pbrown/claude-recall/internal/models"
)

// DefaultTopN is the number of lessons injected when the caller doesn't
// override it.
const DefaultTopN = 8

// DefaultTokenBudget is the total-token budget (spec.md §4.9): above it,
// injection trims top-N lessons and then drops the duty reminders. No
// warning is emitted when the total exceeds it.
const DefaultTokenBudget = 2000

// themeOrder fixes iteration order so tally output is deterministic;
// "other" is always the fallback bucket, never matched by keyword.
var themeOrder = []string{"guard", "plugin", "ui", "fix", "refactor", "test", "other"}

// DefaultThemeKeywords buckets tried-step descriptions by topic for the
// handoff compaction's theme tally. Tunable per spec.md §9's Open
// Question on theme-list canonicity.
func DefaultThemeKeywords() map[string][]string {
	return map[string][]string{
		"guard":    {"guard", "validate", "validation", "check", "invariant"},
		"plugin":   {"plugin", "extension", "addon", "integration"},
		"ui":       {"ui", "frontend", "component", "css", "style", "render"},
		"fix":      {"fix", "bug", "error", "crash", "regression"},
		"refactor": {"refactor", "rename", "extract", "cleanup", "restructure"},
		"test":     {"test", "spec", "coverage", "assertion"},
	}
}

const lessonDutyReminder = "Lesson duty: when you discover a reusable correction, constraint, or preference, " +
	"record it with a LESSON: or AI LESSON: command so future sessions don't relearn it."

const handoffDutyReminder = "Handoff duty: when work spans more than a single turn, keep its HANDOFF entry current " +
	"with HANDOFF UPDATE / tried steps so a future session can resume without re-deriving context."

// Budget reports the chars/4 token estimate per section (spec.md §4.9).
type Budget struct {
	Total    int
	Lessons  int
	Handoffs int
	Duties   int
}

// Result is the assembled injection text plus its budget report.
type Result struct {
	Text   string
	Budget Budget
}

// Injector assembles context sections within a token budget.
type Injector struct {
	TopN          int
	TokenBudget   int
	ThemeKeywords map[string][]string
}

// New builds an Injector with spec.md §4.9 defaults.
func New() *Injector {
	return &Injector{
		TopN:          DefaultTopN,
		TokenBudget:   DefaultTokenBudget,
		ThemeKeywords: DefaultThemeKeywords(),
	}
}

func (inj *Injector) topN() int {
	if inj.TopN <= 0 {
		return DefaultTopN
	}
	return inj.TopN
}

func (inj *Injector) tokenBudget() int {
	if inj.TokenBudget <= 0 {
		return DefaultTokenBudget
	}
	return inj.TokenBudget
}

func (inj *Injector) themeKeywords() map[string][]string {
	if inj.ThemeKeywords == nil {
		return DefaultThemeKeywords()
	}
	return inj.ThemeKeywords
}

func estimateTokens(s string) int {
	return len(s) / 4
}

// Inject builds the four-section context text for lessons and handoffs,
// sorting lessons by uses·0.7 + velocity·0.3 (spec.md §4.9's default
// ordering) and reducing scope (top-N lessons, then duty reminders) if
// over budget.
func (inj *Injector) Inject(lessons []*models.Lesson, handoffs []*models.Handoff) Result {
	ranked := make([]*models.Lesson, len(lessons))
	copy(ranked, lessons)
	sort.Slice(ranked, func(i, j int) bool {
		return weight(ranked[i]) > weight(ranked[j])
	})
	return inj.injectOrdered(ranked, handoffs)
}

// InjectOrdered builds the same four sections but trusts the caller's
// lesson ordering instead of re-sorting by uses/velocity — used by the
// Ranker-driven hook paths (session-start, prompt-submit), where relevance to a query
// already determined the order and callers "decide top-N and min-score
// filters" themselves (spec.md §4.8).
func (inj *Injector) InjectOrdered(lessons []*models.Lesson, handoffs []*models.Handoff) Result {
	return inj.injectOrdered(lessons, handoffs)
}

func (inj *Injector) injectOrdered(lessons []*models.Lesson, handoffs []*models.Handoff) Result {
	n := inj.topN()
	includeDuties := true

	for {
		lessonText := inj.renderLessons(lessons, n)
		handoffText := inj.renderHandoffs(handoffs)
		dutyText := ""
		if includeDuties {
			dutyText = lessonDutyReminder + "\n" + handoffDutyReminder
		}
		continuationText := inj.renderContinuation(handoffs)

		budget := Budget{
			Lessons:  estimateTokens(lessonText),
			Handoffs: estimateTokens(handoffText),
			Duties:   estimateTokens(dutyText),
		}
		budget.Total = budget.Lessons + budget.Handoffs + budget.Duties + estimateTokens(continuationText)

		if budget.Total <= inj.tokenBudget() || (n <= 1 && !includeDuties) {
			return Result{Text: assemble(lessonText, handoffText, dutyText, continuationText), Budget: budget}
		}
		if n > 1 {
			n--
			continue
		}
		includeDuties = false
	}
}

func assemble(sections ...string) string {
	var kept []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}

// renderLessons assumes lessons is already in the caller's desired order
// and only trims to the top n.
func (inj *Injector) renderLessons(lessons []*models.Lesson, n int) string {
	if len(lessons) == 0 {
		return ""
	}
	top := lessons
	if n < len(top) {
		top = top[:n]
	}

	var sb strings.Builder
	sb.WriteString("## Lessons\n")
	for _, l := range top {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", l.ID, l.Title, l.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func weight(l *models.Lesson) float64 {
	return float64(l.Uses)*0.7 + l.Velocity*0.3
}

func (inj *Injector) renderHandoffs(handoffs []*models.Handoff) string {
	active := activeHandoffs(handoffs)
	if len(active) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Active handoffs\n")
	for _, h := range active {
		sb.WriteString(inj.compactHandoff(h))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func activeHandoffs(handoffs []*models.Handoff) []*models.Handoff {
	var out []*models.Handoff
	for _, h := range handoffs {
		if h.Status != "completed" {
			out = append(out, h)
		}
	}
	return out
}

// compactHandoff renders one handoff within a ~200-token budget: progress
// summary, last 3 tried steps, and a theme tally over earlier steps
// (spec.md §4.9).
func (inj *Injector) compactHandoff(h *models.Handoff) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- **%s** (%s/%s): %s\n", h.ID, h.Status, h.Phase, h.Title)

	t := len(h.Tried)
	if t > 0 {
		failures := 0
		for _, step := range h.Tried {
			if step.Outcome != "success" {
				failures++
			}
		}
		if failures == 0 {
			fmt.Fprintf(&sb, "  progress: %d steps (all success)\n", t)
		} else {
			fmt.Fprintf(&sb, "  progress: %d steps (%d failures)\n", t, failures)
		}

		recent := h.Tried
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for _, step := range recent {
			fmt.Fprintf(&sb, "  - [%s] %s\n", step.Outcome, step.Description)
		}

		if earlier := h.Tried[:t-len(recent)]; len(earlier) > 0 {
			tally := inj.tallyThemes(earlier)
			if line := formatTally(tally); line != "" {
				fmt.Fprintf(&sb, "  themes: %s\n", line)
			}
		}
	}

	if h.NextSteps != "" {
		fmt.Fprintf(&sb, "  next: %s\n", h.NextSteps)
	}
	if len(h.BlockedBy) > 0 {
		fmt.Fprintf(&sb, "  blocked by: %s\n", strings.Join(h.BlockedBy, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (inj *Injector) tallyThemes(steps []models.TriedStep) map[string]int {
	keywords := inj.themeKeywords()
	tally := map[string]int{}
	for _, step := range steps {
		tally[classifyTheme(step.Description, keywords)]++
	}
	return tally
}

func classifyTheme(description string, keywords map[string][]string) string {
	lower := strings.ToLower(description)
	for _, theme := range themeOrder {
		if theme == "other" {
			continue
		}
		for _, kw := range keywords[theme] {
			if strings.Contains(lower, kw) {
				return theme
			}
		}
	}
	return "other"
}

func formatTally(tally map[string]int) string {
	var parts []string
	for _, theme := range themeOrder {
		if count := tally[theme]; count > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", theme, count))
		}
	}
	return strings.Join(parts, ", ")
}

// renderContinuation builds the todo-continuation block from the
// most-recently-updated in_progress handoff, if any.
func (inj *Injector) renderContinuation(handoffs []*models.Handoff) string {
	var latest *models.Handoff
	for _, h := range handoffs {
		if h.Status != "in_progress" {
			continue
		}
		if latest == nil || h.Updated.After(latest.Updated) {
			latest = h
		}
	}
	if latest == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Continue %s\n", latest.ID)
	if latest.NextSteps != "" {
		sb.WriteString(latest.NextSteps)
	} else {
		fmt.Fprintf(&sb, "Resume %q; no explicit next steps recorded.", latest.Title)
	}
	return sb.String()
}
