// Package lessons implements the C2 Markdown codec and C3 LessonStore for
// LESSONS.md, per spec.md §4.2/§4.3.
package lessons

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/models"
)

var (
	// ### [L001] [***--|**---] Title text
	headerPattern = regexp.MustCompile(`^### \[([LS]\d{3})\] \[([*\-]{5}\|[*\-]{5})\] (.*)$`)

	// - **Uses**: 7 | **Velocity**: 1.5 | **Learned**: 2026-01-01 | **Last**: 2026-01-20 | **Category**: pattern
	metadataPattern = regexp.MustCompile(`^- \*\*Uses\*\*: (\d+) \| \*\*Velocity\*\*: ([\d.]+) \| \*\*Learned\*\*: (\d{4}-\d{2}-\d{2}) \| \*\*Last\*\*: (\d{4}-\d{2}-\d{2}) \| \*\*Category\*\*: (\w+)`)

	typePattern       = regexp.MustCompile(`\*\*Type\*\*: (\w+)`)
	sourcePattern     = regexp.MustCompile(`\*\*Source\*\*: (\w+)`)
	promotablePattern = regexp.MustCompile(`\*\*Promotable\*\*: (yes|no)`)
	triggersPattern   = regexp.MustCompile(`\*\*Triggers\*\*: ([^|]+)`)

	contentPattern = regexp.MustCompile(`^> (.*)$`)
)

const dateFormat = "2006-01-02"

// Parse reads LESSONS.md content. Invalid records are skipped with a
// diagnostic rather than aborting the whole file (spec.md §4.2). Unknown
// metadata keys on a recognized record are preserved verbatim so a
// round-trip never silently drops extensibility fields.
func Parse(r io.Reader) ([]*models.Lesson, []string) {
	var lessons []*models.Lesson
	var warnings []string
	var current *models.Lesson

	flush := func() {
		if current != nil {
			if current.Category == "" {
				warnings = append(warnings, fmt.Sprintf("lesson %s: missing metadata line, skipped", current.ID))
			} else {
				current.Content = strings.TrimSuffix(current.Content, "\n")
				lessons = append(lessons, current)
			}
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush()
			id := m[1]
			level := "project"
			if strings.HasPrefix(id, "S") {
				level = "system"
			}
			current = &models.Lesson{
				ID:         id,
				Title:      strings.TrimSpace(m[3]),
				Level:      level,
				Source:     "human",
				Promotable: true,
				Triggers:   []string{},
			}
			continue
		}

		if current == nil {
			continue
		}

		if m := metadataPattern.FindStringSubmatch(line); m != nil {
			current.Uses, _ = strconv.Atoi(m[1])
			current.Velocity, _ = strconv.ParseFloat(m[2], 64)
			current.Learned, _ = time.Parse(dateFormat, m[3])
			current.LastUsed, _ = time.Parse(dateFormat, m[4])
			current.Category = m[5]

			if tm := typePattern.FindStringSubmatch(line); tm != nil {
				current.LessonType = tm[1]
			}
			if sm := sourcePattern.FindStringSubmatch(line); sm != nil {
				current.Source = sm[1]
			}
			if pm := promotablePattern.FindStringSubmatch(line); pm != nil {
				current.Promotable = pm[1] == "yes"
			}
			if trm := triggersPattern.FindStringSubmatch(line); trm != nil {
				for _, t := range strings.Split(trm[1], ",") {
					if t = strings.TrimSpace(t); t != "" {
						current.Triggers = append(current.Triggers, t)
					}
				}
			}

			var extraSegments []string
			for _, seg := range strings.Split(strings.TrimPrefix(line[len(m[0]):], " | "), " | ") {
				if seg == "" {
					continue
				}
				if typePattern.MatchString(seg) || sourcePattern.MatchString(seg) ||
					promotablePattern.MatchString(seg) || triggersPattern.MatchString(seg) {
					continue
				}
				extraSegments = append(extraSegments, seg)
			}
			current.Extra = strings.Join(extraSegments, " | ")
			continue
		}

		if m := contentPattern.FindStringSubmatch(line); m != nil {
			current.Content += m[1] + "\n"
			continue
		}
	}
	flush()

	return lessons, warnings
}

// Serialize renders lessons back into LESSONS.md format for the given tier
// ("project" or "system"). Round-trips with Parse for all legal records.
func Serialize(lessons []*models.Lesson, level string) string {
	var sb strings.Builder

	title := "Project"
	if level == "system" {
		title = "System"
	}
	sb.WriteString(fmt.Sprintf("# LESSONS.md - %s Level\n\n", title))
	sb.WriteString("> **Lessons System**: Cite lessons with [L###] when applying them.\n")
	sb.WriteString("> Stars accumulate with each use. At 50 uses, project lessons promote to system.\n")
	sb.WriteString(">\n")
	sb.WriteString("> **Add lessons**: `LESSON: [category:] title - content`\n")
	sb.WriteString("> **Categories**: pattern, correction, decision, gotcha, preference\n\n")
	sb.WriteString("## Active Lessons\n\n")

	for _, l := range lessons {
		sb.WriteString(SerializeOne(l))
		sb.WriteString("\n")
	}
	return sb.String()
}

// SerializeOne formats a single lesson block.
func SerializeOne(l *models.Lesson) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### [%s] %s %s\n", l.ID, l.Rating(), l.Title))
	sb.WriteString(fmt.Sprintf("- **Uses**: %d | **Velocity**: %s | **Learned**: %s | **Last**: %s | **Category**: %s",
		l.Uses, formatVelocity(l.Velocity), l.Learned.Format(dateFormat), l.LastUsed.Format(dateFormat), l.Category))

	if l.LessonType != "" {
		sb.WriteString(fmt.Sprintf(" | **Type**: %s", l.LessonType))
	}
	if l.Source == "ai" {
		sb.WriteString(" | **Source**: ai")
	}
	if !l.Promotable {
		sb.WriteString(" | **Promotable**: no")
	}
	if len(l.Triggers) > 0 {
		sb.WriteString(fmt.Sprintf(" | **Triggers**: %s", strings.Join(l.Triggers, ", ")))
	}
	if l.Extra != "" {
		sb.WriteString(" | " + l.Extra)
	}
	sb.WriteString("\n")

	for _, line := range strings.Split(l.Content, "\n") {
		sb.WriteString("> " + line + "\n")
	}

	return sb.String()
}

func formatVelocity(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	return s
}
