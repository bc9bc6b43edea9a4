// Package summarizer exposes the external-scoring/summarization
// capability behind a narrow port, so the ranker and context-extraction
// paths degrade cleanly when no API key is configured (spec.md §9:
// "Dynamic dispatch → capabilities").
package summarizer

import (
	"context"

	"github.com/pbrown/claude-recall/internal/models"
)

// Summarizer sends a prompt to a language model and returns its text
// response, honoring ctx's deadline.
type Summarizer interface {
	Complete(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error)

	// ExtractContext distills a transcript tail into structured
	// continuation state for a handoff (spec.md §4.10 pre-compact).
	ExtractContext(ctx context.Context, transcriptTail string) (*models.HandoffContext, error)
}
