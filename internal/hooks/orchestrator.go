// Package hooks implements C10 HookOrchestrator (spec.md §4.10): the five
// lifecycle entry points a host agent invokes through short-lived CLI
// processes, each reading a JSON object from stdin and writing one to
// stdout, coordinating C3-C9 underneath a do-no-harm timeout.
package hooks

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/atomicfile"
	"github.com/pbrown/claude-recall/internal/checkpoint"
	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/decay"
	"github.com/pbrown/claude-recall/internal/detach"
	"github.com/pbrown/claude-recall/internal/handoffs"
	"github.com/pbrown/claude-recall/internal/injector"
	"github.com/pbrown/claude-recall/internal/lessons"
	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/ranker"
	"github.com/pbrown/claude-recall/internal/scoring"
	"github.com/pbrown/claude-recall/internal/summarizer"
	"github.com/pbrown/claude-recall/internal/transcript"
)

// DefaultTimeout bounds a single hook invocation end-to-end; exceeding it
// exits do-no-harm (empty output, no error) per spec.md §4.10.
const DefaultTimeout = 10 * time.Second

// HeavyWorkEditThreshold and HeavyWorkTodoThreshold mark a session as
// having done enough unrecorded work to warrant a warning (stop hook) or
// an auto-created handoff (pre-compact), per spec.md §8 scenario 4 and
// the stop-hook warning rule in §4.10.
const (
	HeavyWorkEditThreshold = 4
	HeavyWorkTodoThreshold = 3
)

// CleanStopReasons are the stop_reason values that count as a clean exit
// for session-end's background context extraction (spec.md §4.10).
var CleanStopReasons = map[string]bool{
	"user": true, "end_turn": true, "max_turns": true, "stop_sequence": true, "empty": true,
}

// Input is the common hook JSON (stdin) shape across all five entry
// points (spec.md §6).
type Input struct {
	Cwd            string `json:"cwd"`
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Prompt         string `json:"prompt,omitempty"`
	Trigger        string `json:"trigger,omitempty"`
	StopReason     string `json:"stop_reason,omitempty"`
}

// Output is the hook JSON (stdout) shape: at minimum additionalContext
// when the orchestrator wants to inject text (spec.md §6).
type Output struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Orchestrator wires C3-C9 for hook dispatch.
type Orchestrator struct {
	Lessons     *lessons.Store
	Handoffs    *handoffs.Store
	Checkpoints *checkpoint.Store
	Decay       *decay.Engine
	Ranker      ranker.Ranker
	Injector    *injector.Injector
	Summarizer  summarizer.Summarizer
	Log         *debuglog.Logger

	ProjectDir string
	StateDir   string
	Timeout    time.Duration

	// DetachSpawn launches a background grandchild (detach.Spawn by
	// default); overridable in tests.
	DetachSpawn func(args []string, logPath string) error
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o *Orchestrator) detachSpawn() func([]string, string) error {
	if o.DetachSpawn != nil {
		return o.DetachSpawn
	}
	return detach.Spawn
}

// run enforces the top-level timeout around fn: if fn doesn't finish in
// time, run returns a zero Output and nil error — do-no-harm, never
// surfacing a timeout to the host (spec.md §4.10).
func (o *Orchestrator) run(ctx context.Context, fn func(context.Context) (Output, error)) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	type outcome struct {
		out Output
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := fn(ctx)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		return Output{}, nil
	}
}

// SessionStart loads top-N lessons (empty query, bare top-by-score),
// active handoffs, and emits injection text. Triggers the decay engine in
// the background if due.
func (o *Orchestrator) SessionStart(ctx context.Context, in Input) (Output, error) {
	return o.run(ctx, func(ctx context.Context) (Output, error) {
		activeHandoffs, err := o.Handoffs.List("", false)
		if err != nil {
			o.Log.LogError("session_start_list_handoffs", in.SessionID, err)
		}

		lessons, scored := o.rankLessons(ctx, "")
		result := o.Injector.InjectOrdered(lessons, activeHandoffs)
		o.Log.LogInjection("session-start", in.Cwd, lessonEntries(lessons), handoffIDs(activeHandoffs))
		_ = scored

		o.maybeTriggerDecay()

		return Output{AdditionalContext: result.Text}, nil
	})
}

// PromptSubmit ranks lessons against the user's prompt and emits
// injection text; a successful external-scorer result is cached by the
// ranker itself.
func (o *Orchestrator) PromptSubmit(ctx context.Context, in Input) (Output, error) {
	return o.run(ctx, func(ctx context.Context) (Output, error) {
		activeHandoffs, _ := o.Handoffs.List("", false)
		lessons, _ := o.rankLessons(ctx, in.Prompt)
		result := o.Injector.InjectOrdered(lessons, activeHandoffs)
		o.Log.LogInjection("prompt-submit", in.Cwd, lessonEntries(lessons), handoffIDs(activeHandoffs))
		return Output{AdditionalContext: result.Text}, nil
	})
}

// rankLessons ranks the full corpus against query and returns the
// Injector's top-N lessons in ranked order, plus the full scored list.
func (o *Orchestrator) rankLessons(ctx context.Context, query string) ([]*models.Lesson, []scoring.Scored) {
	all, err := o.Lessons.List()
	if err != nil {
		o.Log.LogError("rank_lessons_list", query, err)
		return nil, nil
	}
	scored := o.Ranker.Rank(ctx, query, all)

	n := o.Injector.TopN
	if n <= 0 {
		n = injector.DefaultTopN
	}
	if n > len(scored) {
		n = len(scored)
	}
	top := make([]*models.Lesson, n)
	for i := 0; i < n; i++ {
		top[i] = scored[i].Lesson
	}
	return top, scored
}

// StopResult carries the stop hook's non-JSON side channel: stderr
// warnings for heavy, unrecorded work (spec.md §4.10).
type StopResult struct {
	Output
	Warnings []string
}

// Stop parses the transcript since the session's checkpoint, cites
// extracted lesson IDs, applies extracted lesson/handoff commands, syncs
// the todo list onto the session's linked handoff, and persists the new
// offset.
func (o *Orchestrator) Stop(ctx context.Context, in Input) (StopResult, error) {
	var warnings []string
	out, err := o.run(ctx, func(ctx context.Context) (Output, error) {
		w, err := o.processTranscript(in)
		warnings = w
		return Output{}, err
	})
	if err != nil {
		return StopResult{}, err
	}
	return StopResult{Output: out, Warnings: warnings}, nil
}

func (o *Orchestrator) processTranscript(in Input) ([]string, error) {
	var warnings []string

	offset, priorPath := o.Checkpoints.GetOffset(in.SessionID)
	path := in.TranscriptPath
	if path == "" {
		path = priorPath
	}
	if path == "" {
		return nil, nil
	}

	result, err := transcript.Scan(path, offset)
	if err != nil {
		o.Log.LogError("stop_scan_transcript", path, err)
		return nil, nil
	}

	citationIDs := make([]string, 0, len(result.Citations))
	for _, c := range result.Citations {
		citationIDs = append(citationIDs, c.ID)
	}
	if len(citationIDs) > 0 {
		if err := o.Lessons.Cite(citationIDs...); err != nil {
			o.Log.LogError("stop_cite", strings.Join(citationIDs, ","), err)
		}
	}

	lessonsAdded := 0
	for _, cmd := range result.LessonCommands {
		source := "human"
		if cmd.AISourced {
			source = "ai"
		}
		if _, err := o.Lessons.Add("project", cmd.Category, cmd.Title, cmd.Content, source, true, cmd.LessonType, false); err == nil {
			lessonsAdded++
		}
	}

	handoffCommandCount := o.applyHandoffCommands(in.SessionID, result.HandoffCommands)

	linkedHandoff := o.Checkpoints.GetHandoffForSession(in.SessionID)
	if linkedHandoff != "" && len(result.LatestTodos) > 0 {
		o.syncTodos(linkedHandoff, result.LatestTodos)
	}

	if linkedHandoff == "" && (result.EditCount >= HeavyWorkEditThreshold || len(result.LatestTodos) >= HeavyWorkTodoThreshold) {
		warnings = append(warnings, fmt.Sprintf(
			"heavy work detected (edits=%d todos=%d) with no linked handoff for session %s",
			result.EditCount, len(result.LatestTodos), in.SessionID))
	}

	o.Log.LogStopHook(in.SessionID, citationIDs, lessonsAdded, handoffCommandCount, warnings)

	if err := o.Checkpoints.SetOffset(in.SessionID, result.NewOffset, path); err != nil {
		o.Log.LogError("stop_set_offset", in.SessionID, err)
	}

	return warnings, nil
}

func (o *Orchestrator) applyHandoffCommands(sessionID string, cmds []transcript.HandoffCommand) int {
	count := 0
	for _, cmd := range cmds {
		switch cmd.Kind {
		case "start":
			h, err := o.Handoffs.Add(cmd.Title, false)
			if err != nil {
				o.Log.LogError("handoff_start", cmd.Title, err)
				continue
			}
			if err := o.Handoffs.LinkSession(h.ID, sessionID); err != nil {
				o.Log.LogError("handoff_link_session", h.ID, err)
			}
			if err := o.Checkpoints.SetHandoffForSession(sessionID, h.ID, ""); err != nil {
				o.Log.LogError("checkpoint_link_handoff", h.ID, err)
			}
			count++
		case "tried":
			if err := o.Handoffs.AddTriedStep(cmd.ID, cmd.Outcome, cmd.Description, nil); err != nil {
				o.Log.LogError("handoff_tried", cmd.ID, err)
				continue
			}
			count++
		case "field":
			if err := o.Handoffs.Update(cmd.ID, map[string]interface{}{cmd.Field: cmd.Value}); err != nil {
				o.Log.LogError("handoff_field", cmd.ID, err)
				continue
			}
			count++
		case "complete":
			if err := o.Handoffs.Complete(cmd.ID); err != nil {
				o.Log.LogError("handoff_complete", cmd.ID, err)
				continue
			}
			count++
		}
	}
	return count
}

func (o *Orchestrator) syncTodos(handoffID string, todos []transcript.TodoItem) {
	var lines []string
	for _, t := range todos {
		lines = append(lines, fmt.Sprintf("[%s] %s", t.Status, t.Content))
	}
	if err := o.Handoffs.Update(handoffID, map[string]interface{}{"next_steps": strings.Join(lines, "\n")}); err != nil {
		o.Log.LogError("sync_todos", handoffID, err)
	}
}

// PreCompact finds (or auto-creates) the active handoff for this session,
// asks the summarizer to extract continuation context from the
// transcript tail, and either sets that context on the handoff or falls
// back to a minimal session-snapshot file.
func (o *Orchestrator) PreCompact(ctx context.Context, in Input) (Output, error) {
	return o.run(ctx, func(ctx context.Context) (Output, error) {
		handoffID := o.Checkpoints.GetHandoffForSession(in.SessionID)

		var result *transcript.Result
		if in.TranscriptPath != "" {
			r, err := transcript.Scan(in.TranscriptPath, 0)
			if err == nil {
				result = r
			}
		}

		if handoffID == "" && result != nil && heavyWork(result) {
			title := deriveHandoffTitle(result)
			h, err := o.Handoffs.Add(title, false)
			if err == nil {
				handoffID = h.ID
				o.Handoffs.Update(h.ID, map[string]interface{}{"phase": "implementing"})
				o.Checkpoints.SetHandoffForSession(in.SessionID, h.ID, in.TranscriptPath)
			}
		}

		if handoffID == "" {
			return Output{}, nil
		}

		if o.Summarizer != nil && result != nil {
			tail := strings.Join(result.AssistantTexts, "\n\n")
			hctx, err := o.Summarizer.ExtractContext(ctx, tail)
			if err != nil {
				o.Log.LogError("pre_compact_extract_context", handoffID, err)
			} else {
				hctx.GitRef = in.Trigger
				if err := o.Handoffs.SetContext(handoffID, hctx); err != nil {
					o.Log.LogError("pre_compact_set_context", handoffID, err)
				} else {
					return Output{}, nil
				}
			}
		}

		o.writeSessionSnapshot(in, handoffID)
		return Output{}, nil
	})
}

func heavyWork(result *transcript.Result) bool {
	return result.EditCount >= HeavyWorkEditThreshold || len(result.LatestTodos) >= HeavyWorkTodoThreshold
}

func deriveHandoffTitle(result *transcript.Result) string {
	if len(result.EditPaths) == 0 {
		return "Untitled handoff (auto-created)"
	}
	sorted := append([]string(nil), result.EditPaths...)
	sort.Strings(sorted)
	return fmt.Sprintf("Work on %s", filepath.Base(sorted[0]))
}

func (o *Orchestrator) writeSessionSnapshot(in Input, handoffID string) {
	path := filepath.Join(in.Cwd, ".claude-recall", ".session-snapshot")
	content := fmt.Sprintf("session_id: %s\nhandoff_id: %s\ntranscript_path: %s\ntimestamp: %s\n",
		in.SessionID, handoffID, in.TranscriptPath, time.Now().Format(time.RFC3339))
	if err := atomicfile.Write(path, []byte(content), 0644); err != nil {
		o.Log.LogError("write_session_snapshot", path, err)
	}
}

// SessionEnd runs context extraction in a detached background child on a
// clean exit; on any other stop_reason it does nothing (spec.md §4.10).
func (o *Orchestrator) SessionEnd(ctx context.Context, in Input) error {
	_, err := o.run(ctx, func(ctx context.Context) (Output, error) {
		if !CleanStopReasons[in.StopReason] {
			return Output{}, nil
		}
		logPath := filepath.Join(o.StateDir, "session-end.log")
		args := []string{"hook", "extract-context-internal", "--session", in.SessionID, "--transcript", in.TranscriptPath}
		if err := o.detachSpawn()(args, logPath); err != nil {
			o.Log.LogError("session_end_detach", in.SessionID, err)
		}
		return Output{}, nil
	})
	return err
}

func (o *Orchestrator) maybeTriggerDecay() {
	if o.Decay == nil {
		return
	}
	if err := o.Decay.RecordSessionStart(); err != nil {
		o.Log.LogError("decay_record_session_start", "", err)
		return
	}
	logPath := filepath.Join(o.StateDir, "decay.log")
	args := []string{"decay", "--background"}
	if err := o.detachSpawn()(args, logPath); err != nil {
		o.Log.LogError("decay_detach", "", err)
	}
}

func lessonEntries(lessons []*models.Lesson) []debuglog.LessonEntry {
	out := make([]debuglog.LessonEntry, len(lessons))
	for i, l := range lessons {
		out[i] = debuglog.LessonEntry{ID: l.ID, Title: l.Title}
	}
	return out
}

func handoffIDs(hs []*models.Handoff) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.ID
	}
	return out
}
