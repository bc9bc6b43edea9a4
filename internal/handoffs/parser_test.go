package handoffs

import (
	"strings"
	"testing"
	"time"

	"github.com/pbrown/claude-recall/internal/models"
)

func TestParseSerializeRoundTrip(t *testing.T) {
	h := &models.Handoff{
		ID:          "hf-a1b2c3d",
		Title:       "Implement auth refresh",
		Status:      "in_progress",
		Phase:       "implementing",
		Agent:       "general-purpose",
		Created:     time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Updated:     time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		Description: "Refresh tokens before expiry",
		NextSteps:   "wire up the retry path",
		Refs:        []string{"auth/token.go:42", "auth/client.go:10-20"},
		Tried: []models.TriedStep{
			{Outcome: "fail", Description: "tried naive retry, hit rate limit"},
			{Outcome: "success", Description: "added backoff"},
		},
		Checkpoint: "halfway through client.go",
		Context: &models.HandoffContext{
			Summary:       "refresh logic mostly done",
			CriticalFiles: []string{"auth/token.go"},
			RecentChanges: []string{"added backoff"},
			Learnings:     []string{"rate limit is per-IP"},
			Blockers:      []string{"waiting on infra ticket"},
			GitRef:        "abc123",
		},
		BlockedBy: []string{"hf-0000000"},
		Sessions:  []string{"session-1", "session-2"},
	}

	out := SerializeOne(h)
	parsed, err := Parse(strings.NewReader(out), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 handoff, got %d", len(parsed))
	}

	got := parsed[0]
	if got.ID != h.ID || got.Title != h.Title || got.Status != h.Status || got.Phase != h.Phase {
		t.Fatalf("mismatch: %+v", got)
	}
	if len(got.Tried) != 2 || got.Tried[1].Outcome != "success" {
		t.Fatalf("tried steps mismatch: %+v", got.Tried)
	}
	if got.Context == nil || got.Context.Summary != h.Context.Summary || got.Context.GitRef != "abc123" {
		t.Fatalf("context mismatch: %+v", got.Context)
	}
	if len(got.BlockedBy) != 1 || got.BlockedBy[0] != "hf-0000000" {
		t.Fatalf("blocked-by mismatch: %v", got.BlockedBy)
	}
	if len(got.Sessions) != 2 {
		t.Fatalf("sessions mismatch: %v", got.Sessions)
	}
}

func TestParseSerializeRoundTripPreservesUnknownMetadata(t *testing.T) {
	input := `### [hf-9999999] Handoff with a future field
- **Status**: in_progress | **Phase**: research | **Agent**: user
- **Created**: 2026-01-01 | **Updated**: 2026-01-02
- **Description**: something
- **Priority**: high

**Next**: keep going
`
	parsed, err := Parse(strings.NewReader(input), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 handoff, got %d", len(parsed))
	}
	if len(parsed[0].Extra) != 1 || parsed[0].Extra[0] != "- **Priority**: high" {
		t.Fatalf("expected unknown line captured in Extra, got %v", parsed[0].Extra)
	}

	out := SerializeOne(parsed[0])
	reparsed, err := Parse(strings.NewReader(out), false)
	if err != nil {
		t.Fatalf("Parse on reserialize: %v", err)
	}
	if len(reparsed) != 1 || len(reparsed[0].Extra) != 1 || reparsed[0].Extra[0] != "- **Priority**: high" {
		t.Fatalf("unknown metadata line did not survive round trip: %+v", reparsed)
	}
}

func TestParseMultipleHandoffsWithSeparator(t *testing.T) {
	input := `# HANDOFFS.md - Active Work Tracking

## Active Handoffs

### [hf-1111111] First
- **Status**: not_started | **Phase**: research | **Agent**: user
- **Created**: 2026-01-01 | **Updated**: 2026-01-01
- **Description**: first task

**Next**: start

---

### [hf-2222222] Second
- **Status**: in_progress | **Phase**: implementing | **Agent**: explore
- **Created**: 2026-02-01 | **Updated**: 2026-02-05
- **Description**: second task

**Next**: keep going

---
`
	parsed, err := Parse(strings.NewReader(input), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 handoffs, got %d", len(parsed))
	}
	if parsed[0].ID != "hf-1111111" || parsed[1].ID != "hf-2222222" {
		t.Fatalf("ids mismatch: %s, %s", parsed[0].ID, parsed[1].ID)
	}
}

func TestParseLegacyIDFormat(t *testing.T) {
	input := `### [A001] Legacy handoff
- **Status**: blocked | **Phase**: planning | **Agent**: plan
- **Created**: 2025-01-01 | **Updated**: 2025-01-02
- **Description**: old format

**Next**: migrate
`
	parsed, err := Parse(strings.NewReader(input), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed) != 1 || parsed[0].ID != "A001" {
		t.Fatalf("expected legacy ID A001, got %+v", parsed)
	}
}

func TestParseMarksStealth(t *testing.T) {
	input := `### [hf-abcdef1] Local only
- **Status**: not_started | **Phase**: research | **Agent**: user
- **Created**: 2026-01-01 | **Updated**: 2026-01-01
- **Description**: stealth task

**Next**: n/a
`
	parsed, err := Parse(strings.NewReader(input), true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !parsed[0].Stealth {
		t.Fatalf("expected stealth=true")
	}
}
