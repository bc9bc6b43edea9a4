// Package handoffs implements the C2 Markdown codec and C4 HandoffStore for
// HANDOFFS.md / HANDOFFS_LOCAL.md, per spec.md §3/§4.4.
package handoffs

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/models"
)

var (
	// ### [hf-a1b2c3d] Title  or  ### [A001] Title
	headerPattern = regexp.MustCompile(`^### \[([A-Z]\d{3}|hf-[0-9a-f]{7})\] (.+)$`)

	statusPattern     = regexp.MustCompile(`^- \*\*Status\*\*: (\w+) \| \*\*Phase\*\*: ([\w-]+) \| \*\*Agent\*\*: ([\w-]+)`)
	datesPattern      = regexp.MustCompile(`^- \*\*Created\*\*: (\d{4}-\d{2}-\d{2}) \| \*\*Updated\*\*: (\d{4}-\d{2}-\d{2})`)
	refsPattern       = regexp.MustCompile(`^- \*\*Refs\*\*: (.+)$`)
	descPattern       = regexp.MustCompile(`^- \*\*Description\*\*: (.*)$`)
	checkpointPattern = regexp.MustCompile(`^- \*\*Checkpoint\*\*: (.+)$`)
	lastSessionPattern = regexp.MustCompile(`^- \*\*Last Session\*\*: (\d{4}-\d{2}-\d{2})`)

	contextHeaderPattern    = regexp.MustCompile(`^- \*\*Context\*\* \(([^)]*)\):$`)
	contextSummaryPattern   = regexp.MustCompile(`^\s+- Summary: (.+)$`)
	contextFilesPattern     = regexp.MustCompile(`^\s+- Files: (.+)$`)
	contextChangesPattern   = regexp.MustCompile(`^\s+- Changes: (.+)$`)
	contextLearningsPattern = regexp.MustCompile(`^\s+- Learnings: (.+)$`)
	contextBlockersPattern  = regexp.MustCompile(`^\s+- Blockers: (.+)$`)

	blockedByPattern = regexp.MustCompile(`^- \*\*Blocked By\*\*: (.+)$`)
	sessionsPattern  = regexp.MustCompile(`^- \*\*Sessions\*\*: (.+)$`)

	triedHeaderPattern = regexp.MustCompile(`^\*\*Tried\*\*:$`)
	triedItemPattern   = regexp.MustCompile(`^\d+\. \[(\w+)\] (.+)$`)

	nextPattern      = regexp.MustCompile(`^\*\*Next\*\*: (.*)$`)
	separatorPattern = regexp.MustCompile(`^---$`)
)

const dateFormat = "2006-01-02"

// Parse reads HANDOFFS.md / HANDOFFS_LOCAL.md content. stealth marks every
// parsed handoff with the visibility of the file it came from.
func Parse(r io.Reader, stealth bool) ([]*models.Handoff, error) {
	var handoffs []*models.Handoff
	var current *models.Handoff
	var inTried, inContext, inNext bool

	flush := func() {
		if current != nil {
			handoffs = append(handoffs, current)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = models.NewHandoff(m[1], m[2])
			current.Stealth = stealth
			inTried, inContext, inNext = false, false, false
			continue
		}
		if current == nil {
			continue
		}
		if separatorPattern.MatchString(line) {
			flush()
			current = nil
			inTried, inContext, inNext = false, false, false
			continue
		}

		if m := statusPattern.FindStringSubmatch(line); m != nil {
			current.Status, current.Phase, current.Agent = m[1], m[2], m[3]
			continue
		}
		if m := datesPattern.FindStringSubmatch(line); m != nil {
			if t, err := time.Parse(dateFormat, m[1]); err == nil {
				current.Created = t
			}
			if t, err := time.Parse(dateFormat, m[2]); err == nil {
				current.Updated = t
			}
			continue
		}
		if m := refsPattern.FindStringSubmatch(line); m != nil {
			current.Refs = splitPipe(m[1])
			continue
		}
		if m := descPattern.FindStringSubmatch(line); m != nil {
			current.Description = m[1]
			continue
		}
		if m := checkpointPattern.FindStringSubmatch(line); m != nil {
			current.Checkpoint = m[1]
			continue
		}
		if m := lastSessionPattern.FindStringSubmatch(line); m != nil {
			if t, err := time.Parse(dateFormat, m[1]); err == nil {
				current.LastSession = &t
			}
			continue
		}
		if m := contextHeaderPattern.FindStringSubmatch(line); m != nil {
			current.Context = &models.HandoffContext{GitRef: m[1]}
			inContext = true
			continue
		}
		if inContext && current.Context != nil {
			if m := contextSummaryPattern.FindStringSubmatch(line); m != nil {
				current.Context.Summary = m[1]
				continue
			}
			if m := contextFilesPattern.FindStringSubmatch(line); m != nil {
				current.Context.CriticalFiles = splitPipe(m[1])
				continue
			}
			if m := contextChangesPattern.FindStringSubmatch(line); m != nil {
				current.Context.RecentChanges = splitPipe(m[1])
				continue
			}
			if m := contextLearningsPattern.FindStringSubmatch(line); m != nil {
				current.Context.Learnings = splitPipe(m[1])
				continue
			}
			if m := contextBlockersPattern.FindStringSubmatch(line); m != nil {
				current.Context.Blockers = splitPipe(m[1])
				continue
			}
			if !strings.HasPrefix(line, "  ") && line != "" {
				inContext = false
			}
		}
		if m := blockedByPattern.FindStringSubmatch(line); m != nil {
			current.BlockedBy = splitComma(m[1])
			continue
		}
		if m := sessionsPattern.FindStringSubmatch(line); m != nil {
			current.Sessions = splitComma(m[1])
			continue
		}
		if triedHeaderPattern.MatchString(line) {
			inTried = true
			continue
		}
		if inTried {
			if m := triedItemPattern.FindStringSubmatch(line); m != nil {
				current.Tried = append(current.Tried, models.TriedStep{Outcome: m[1], Description: m[2]})
				continue
			}
		}
		if m := nextPattern.FindStringSubmatch(line); m != nil {
			current.NextSteps = m[1]
			inTried = false
			inNext = true
			continue
		}
		// Serialize writes **Next** last, so later lines continue it.
		if inNext && line != "" {
			current.NextSteps += "\n" + line
			continue
		}
		if line != "" {
			current.Extra = append(current.Extra, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan handoffs: %w", err)
	}
	return handoffs, nil
}

// Serialize renders handoffs back to Markdown. stealth selects the header
// of the local file instead of the shared ("Active Work Tracking") one.
func Serialize(handoffs []*models.Handoff, stealth bool) string {
	var sb strings.Builder

	if stealth {
		sb.WriteString("# HANDOFFS_LOCAL.md - Local Work Tracking\n\n")
		sb.WriteString("> Not committed. Visible only on this machine.\n\n")
	} else {
		sb.WriteString("# HANDOFFS.md - Active Work Tracking\n\n")
		sb.WriteString("> Track ongoing work with tried steps and next steps.\n")
		sb.WriteString("> When completed, review for lessons to extract.\n\n")
	}
	sb.WriteString("## Active Handoffs\n\n")

	for _, h := range handoffs {
		sb.WriteString(SerializeOne(h))
	}
	return sb.String()
}

// SerializeOne formats a single handoff block.
func SerializeOne(h *models.Handoff) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### [%s] %s\n", h.ID, h.Title))
	sb.WriteString(fmt.Sprintf("- **Status**: %s | **Phase**: %s | **Agent**: %s\n", h.Status, h.Phase, h.Agent))
	sb.WriteString(fmt.Sprintf("- **Created**: %s | **Updated**: %s\n", h.Created.Format(dateFormat), h.Updated.Format(dateFormat)))

	if len(h.Refs) > 0 {
		sb.WriteString(fmt.Sprintf("- **Refs**: %s\n", strings.Join(h.Refs, " | ")))
	}
	sb.WriteString(fmt.Sprintf("- **Description**: %s\n", h.Description))
	if h.Checkpoint != "" {
		sb.WriteString(fmt.Sprintf("- **Checkpoint**: %s\n", h.Checkpoint))
	}
	if h.LastSession != nil {
		sb.WriteString(fmt.Sprintf("- **Last Session**: %s\n", h.LastSession.Format(dateFormat)))
	}
	if h.Context != nil {
		sb.WriteString(fmt.Sprintf("- **Context** (%s):\n", h.Context.GitRef))
		if h.Context.Summary != "" {
			sb.WriteString(fmt.Sprintf("  - Summary: %s\n", h.Context.Summary))
		}
		if len(h.Context.CriticalFiles) > 0 {
			sb.WriteString(fmt.Sprintf("  - Files: %s\n", strings.Join(h.Context.CriticalFiles, " | ")))
		}
		if len(h.Context.RecentChanges) > 0 {
			sb.WriteString(fmt.Sprintf("  - Changes: %s\n", strings.Join(h.Context.RecentChanges, " | ")))
		}
		if len(h.Context.Learnings) > 0 {
			sb.WriteString(fmt.Sprintf("  - Learnings: %s\n", strings.Join(h.Context.Learnings, " | ")))
		}
		if len(h.Context.Blockers) > 0 {
			sb.WriteString(fmt.Sprintf("  - Blockers: %s\n", strings.Join(h.Context.Blockers, " | ")))
		}
	}
	if len(h.BlockedBy) > 0 {
		sb.WriteString(fmt.Sprintf("- **Blocked By**: %s\n", strings.Join(h.BlockedBy, ", ")))
	}
	if len(h.Sessions) > 0 {
		sb.WriteString(fmt.Sprintf("- **Sessions**: %s\n", strings.Join(h.Sessions, ", ")))
	}
	for _, line := range h.Extra {
		sb.WriteString(line + "\n")
	}

	if len(h.Tried) > 0 {
		sb.WriteString("\n**Tried**:\n")
		for i, step := range h.Tried {
			sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, step.Outcome, step.Description))
		}
	}
	sb.WriteString(fmt.Sprintf("\n**Next**: %s\n", h.NextSteps))
	sb.WriteString("\n---\n")

	return sb.String()
}

func splitPipe(s string) []string {
	var out []string
	for _, p := range strings.Split(s, " | ") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ", ") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
