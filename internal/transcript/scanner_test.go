package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTranscript(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func assistantLine(t *testing.T, text string, timestamp string) string {
	t.Helper()
	rec := map[string]interface{}{
		"type":      "assistant",
		"timestamp": timestamp,
		"message": map[string]interface{}{
			"role": "assistant",
			"content": []map[string]interface{}{
				{"type": "text", "text": text},
			},
		},
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func editLine(t *testing.T, path string) string {
	t.Helper()
	input, _ := json.Marshal(map[string]string{"file_path": path})
	rec := map[string]interface{}{
		"type": "assistant",
		"message": map[string]interface{}{
			"role": "assistant",
			"content": []map[string]interface{}{
				{"type": "tool_use", "name": "Edit", "input": json.RawMessage(input)},
			},
		},
	}
	b, _ := json.Marshal(rec)
	return string(b)
}

func TestScanEmptyWhenSizeNotPastOffset(t *testing.T) {
	path := writeTranscript(t, []string{assistantLine(t, "hello", "")})
	info, _ := os.Stat(path)

	result, err := Scan(path, info.Size())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.AssistantTexts) != 0 {
		t.Fatalf("expected no texts, got %v", result.AssistantTexts)
	}
	if result.NewOffset != info.Size() {
		t.Fatalf("expected unchanged offset")
	}
}

func TestScanExtractsAssistantTextAndCitation(t *testing.T) {
	path := writeTranscript(t, []string{
		assistantLine(t, "Applying [L001] here, also listed [L002] [*****|*----]", ""),
	})

	result, err := Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.AssistantTexts) != 1 {
		t.Fatalf("expected 1 assistant text, got %d", len(result.AssistantTexts))
	}
	if len(result.Citations) != 1 || result.Citations[0].ID != "L001" {
		t.Fatalf("expected only L001 as a real citation, got %+v", result.Citations)
	}
}

func TestScanDiscardsPartialBoundaryLine(t *testing.T) {
	first := assistantLine(t, "first line of text", "")
	second := assistantLine(t, "Applying [L005]", "")
	path := writeTranscript(t, []string{first, second})

	// offset lands partway through the first line, making it the
	// discarded boundary line.
	offset := int64(len(first) / 2)

	result, err := Scan(path, offset)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.AssistantTexts) != 1 {
		t.Fatalf("expected only the second line extracted, got %v", result.AssistantTexts)
	}
	if len(result.Citations) != 1 || result.Citations[0].ID != "L005" {
		t.Fatalf("expected L005 citation, got %+v", result.Citations)
	}
}

func TestScanParsesLessonCommand(t *testing.T) {
	path := writeTranscript(t, []string{
		assistantLine(t, "LESSON: pattern: Quote shell vars - always double-quote $VAR", ""),
	})

	result, err := Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.LessonCommands) != 1 {
		t.Fatalf("expected 1 lesson command, got %d: %+v", len(result.LessonCommands), result.LessonCommands)
	}
	cmd := result.LessonCommands[0]
	if cmd.Category != "pattern" || cmd.Title != "Quote shell vars" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.AISourced {
		t.Fatalf("expected human-sourced lesson")
	}
}

func TestScanParsesAILessonWithType(t *testing.T) {
	path := writeTranscript(t, []string{
		assistantLine(t, "AI LESSON [constraint]: decision: never retry 401 - rate limited per IP", ""),
	})

	result, _ := Scan(path, 0)
	if len(result.LessonCommands) != 1 {
		t.Fatalf("expected 1 command, got %+v", result.LessonCommands)
	}
	cmd := result.LessonCommands[0]
	if !cmd.AISourced || cmd.LessonType != "constraint" || cmd.Category != "decision" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestScanParsesHandoffFamilies(t *testing.T) {
	path := writeTranscript(t, []string{
		assistantLine(t, "HANDOFF: Implement auth refresh", ""),
		assistantLine(t, "HANDOFF UPDATE hf-abc1234: tried success - added backoff", ""),
		assistantLine(t, "HANDOFF COMPLETE hf-abc1234", ""),
	})

	result, err := Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.HandoffCommands) != 3 {
		t.Fatalf("expected 3 handoff commands, got %d: %+v", len(result.HandoffCommands), result.HandoffCommands)
	}
	if result.HandoffCommands[0].Kind != "start" || result.HandoffCommands[0].Title != "Implement auth refresh" {
		t.Fatalf("unexpected start command: %+v", result.HandoffCommands[0])
	}
	if result.HandoffCommands[1].Kind != "tried" || result.HandoffCommands[1].Outcome != "success" {
		t.Fatalf("unexpected tried command: %+v", result.HandoffCommands[1])
	}
	if result.HandoffCommands[2].Kind != "complete" || result.HandoffCommands[2].ID != "hf-abc1234" {
		t.Fatalf("unexpected complete command: %+v", result.HandoffCommands[2])
	}
}

func TestScanCountsDistinctEditPathsAcrossFullTranscript(t *testing.T) {
	lines := []string{
		editLine(t, "a.go"),
		editLine(t, "b.go"),
		editLine(t, "a.go"),
	}
	path := writeTranscript(t, lines)

	// simulate a later scan starting after the first line, edit_count must
	// still reflect the whole transcript.
	offset := int64(len(lines[0]) + 1)

	result, err := Scan(path, offset)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.EditCount != 2 {
		t.Fatalf("expected 2 distinct edit paths, got %d: %v", result.EditCount, result.EditPaths)
	}
}

func TestScanSkipsOverlongLines(t *testing.T) {
	huge := assistantLine(t, string(make([]byte, 2000)), "")
	path := writeTranscript(t, []string{huge})

	result, err := Scan(path, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.AssistantTexts) != 0 {
		t.Fatalf("expected overlong line to be skipped, got %v", result.AssistantTexts)
	}
}
