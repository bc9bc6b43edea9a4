// Package transcript implements C6 TranscriptScanner: incremental
// extraction of assistant text, citations, and LESSON/HANDOFF commands
// from a JSONL session transcript (spec.md §4.6).
package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/models"
)

// maxLineLen skips any line longer than this as a ReDoS defense.
const maxLineLen = 1000

var (
	lessonCommandPattern = regexp.MustCompile(`^(AI )?LESSON(?: \[(constraint|informational|preference)\])?:\s*(?:([a-z]+):\s*)?([^-]+?)\s*-\s*(.+)$`)

	handoffStartPattern    = regexp.MustCompile(`^HANDOFF:\s*(.+)$`)
	handoffUpdatePattern   = regexp.MustCompile(`^HANDOFF UPDATE ([\w-]+):\s*(.+)$`)
	handoffTriedPattern    = regexp.MustCompile(`^tried (success|fail|partial)\s*-\s*(.+)$`)
	handoffFieldPattern    = regexp.MustCompile(`^(\w+):\s*(.+)$`)
	handoffCompletePattern = regexp.MustCompile(`^HANDOFF COMPLETE ([\w-]+)$`)

	citationPattern = regexp.MustCompile(`\[([LS]\d{3})\]`)
)

// Citation is a `[L###]`/`[S###]` reference meaning "I am applying this
// lesson here" (not a listing).
type Citation struct {
	Type string // "L" or "S"
	ID   string
}

// LessonCommand is a parsed `LESSON:`/`AI LESSON:` record.
type LessonCommand struct {
	AISourced  bool
	LessonType string // constraint|informational|preference, may be empty
	Category   string
	Title      string
	Content    string
}

// HandoffCommand is a parsed HANDOFF record. Kind is "start", "tried",
// "field", or "complete".
type HandoffCommand struct {
	Kind        string
	ID          string
	Title       string // start
	Outcome     string // tried
	Description string // tried
	Field       string // field
	Value       string // field
}

// TodoItem mirrors the shape of an entry in a TodoWrite tool call.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// Result is a single scan's output (spec.md §4.6).
type Result struct {
	AssistantTexts      []string
	Citations           []Citation
	LessonCommands      []LessonCommand
	HandoffCommands     []HandoffCommand
	EditCount           int
	EditPaths           []string
	LatestTodos         []TodoItem
	NewTodoWriteAfterOffset bool
	LatestTimestamp     time.Time
	NewOffset           int64
}

type transcriptLine struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Message   *messagePayload `json:"message,omitempty"`
}

type messagePayload struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type editInput struct {
	FilePath string `json:"file_path"`
}

type todoWriteInput struct {
	Todos []TodoItem `json:"todos"`
}

// Scan reads path, applying the byte-offset rule from spec.md §4.6: if the
// current size is no larger than offset, it returns an empty result
// without touching the file further. Otherwise bytes before offset are
// skipped and, when offset > 0, the first (partial) boundary line is
// discarded. edit_count and todo_writes are computed over the whole file
// regardless of offset; everything else only over the new range.
func Scan(path string, offset int64) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{NewOffset: offset}, nil
		}
		return nil, err
	}
	size := info.Size()
	if size <= offset {
		return &Result{NewOffset: offset}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := &Result{NewOffset: size}
	editPaths := map[string]bool{}
	var pos int64

	// The scanner buffer must accommodate lines far longer than maxLineLen
	// so a pathological line is read in full and explicitly skipped below,
	// rather than truncated mid-JSON or tripping bufio.ErrTooLong.
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		lineLen := int64(len(line)) + 1
		lineStart := pos
		pos += lineLen

		if lineStart < offset {
			// Already scanned, or straddles the offset boundary (the
			// incomplete "first line" spec.md §4.6 says to discard) —
			// either way it contributes only to full-transcript aggregates
			// (edits, todos), never to the new-range extraction below.
			processFullTranscriptOnly(line, editPaths, result)
			continue
		}

		if len(line) > maxLineLen {
			continue
		}

		processFullTranscriptOnly(line, editPaths, result)
		processNewRange(line, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	result.EditCount = len(editPaths)
	for p := range editPaths {
		result.EditPaths = append(result.EditPaths, p)
	}
	return result, nil
}

// processFullTranscriptOnly updates the aggregates that must reflect the
// entire transcript (edit_count, latest todo list, latest_timestamp).
func processFullTranscriptOnly(line string, editPaths map[string]bool, result *Result) {
	if len(line) > maxLineLen {
		return
	}
	var tl transcriptLine
	if err := json.Unmarshal([]byte(line), &tl); err != nil {
		return
	}
	if tl.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, tl.Timestamp); err == nil {
			if t.After(result.LatestTimestamp) {
				result.LatestTimestamp = t
			}
		}
	}
	if tl.Message == nil {
		return
	}
	for _, block := range tl.Message.Content {
		if block.Type != "tool_use" {
			continue
		}
		switch block.Name {
		case "Edit", "MultiEdit", "Write":
			var in editInput
			if json.Unmarshal(block.Input, &in) == nil && in.FilePath != "" {
				editPaths[in.FilePath] = true
			}
		case "TodoWrite":
			var in todoWriteInput
			if json.Unmarshal(block.Input, &in) == nil {
				result.LatestTodos = in.Todos
			}
		}
	}
}

// processNewRange updates the offset-scoped extractions: assistant text,
// citations, and LESSON/HANDOFF commands.
func processNewRange(line string, result *Result) {
	var tl transcriptLine
	if err := json.Unmarshal([]byte(line), &tl); err != nil {
		return
	}
	if tl.Type != "assistant" || tl.Message == nil {
		return
	}

	var text strings.Builder
	sawTodoWrite := false
	for _, block := range tl.Message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
		if block.Type == "tool_use" && block.Name == "TodoWrite" {
			sawTodoWrite = true
		}
	}
	if sawTodoWrite {
		result.NewTodoWriteAfterOffset = true
	}

	content := models.Sanitize(text.String(), models.MaxContentLen)
	if content == "" {
		return
	}
	result.AssistantTexts = append(result.AssistantTexts, content)
	result.Citations = append(result.Citations, extractCitations(content)...)

	for _, raw := range strings.Split(content, "\n") {
		if cmd, ok := parseLessonCommand(raw); ok {
			result.LessonCommands = append(result.LessonCommands, cmd)
			continue
		}
		if cmd, ok := parseHandoffCommand(raw); ok {
			result.HandoffCommands = append(result.HandoffCommands, cmd)
		}
	}
}

// extractCitations scans text for `[L###]`/`[S###]` not followed by
// ` [*`, which marks a star-rating listing rather than an application
// (spec.md §4.6).
func extractCitations(text string) []Citation {
	var out []Citation
	matches := citationPattern.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		id := text[m[2]:m[3]]
		end := m[1]
		if strings.HasPrefix(text[end:], " [*") {
			continue
		}
		out = append(out, Citation{Type: id[:1], ID: id})
	}
	return out
}

func parseLessonCommand(line string) (LessonCommand, bool) {
	m := lessonCommandPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return LessonCommand{}, false
	}
	return LessonCommand{
		AISourced:  m[1] != "",
		LessonType: m[2],
		Category:   m[3],
		Title:      models.Sanitize(strings.TrimSpace(m[4]), models.MaxTitleLen),
		Content:    models.Sanitize(strings.TrimSpace(m[5]), models.MaxContentLen),
	}, true
}

func parseHandoffCommand(line string) (HandoffCommand, bool) {
	line = strings.TrimSpace(line)

	if m := handoffCompletePattern.FindStringSubmatch(line); m != nil {
		return HandoffCommand{Kind: "complete", ID: m[1]}, true
	}
	if m := handoffUpdatePattern.FindStringSubmatch(line); m != nil {
		id, rest := m[1], m[2]
		if tm := handoffTriedPattern.FindStringSubmatch(rest); tm != nil {
			return HandoffCommand{
				Kind:        "tried",
				ID:          id,
				Outcome:     tm[1],
				Description: models.Sanitize(tm[2], models.MaxContentLen),
			}, true
		}
		if fm := handoffFieldPattern.FindStringSubmatch(rest); fm != nil {
			return HandoffCommand{
				Kind:  "field",
				ID:    id,
				Field: fm[1],
				Value: models.Sanitize(fm[2], models.MaxContentLen),
			}, true
		}
		return HandoffCommand{}, false
	}
	if m := handoffStartPattern.FindStringSubmatch(line); m != nil {
		return HandoffCommand{Kind: "start", Title: models.Sanitize(m[1], models.MaxTitleLen)}, true
	}
	return HandoffCommand{}, false
}
