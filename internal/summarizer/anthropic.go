package summarizer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pbrown/claude-recall/internal/models"
)

// AnthropicSummarizer implements Summarizer against the Messages API.
type AnthropicSummarizer struct {
	client anthropic.Client
	Model  string
}

// NewAnthropicSummarizer builds a summarizer reading ANTHROPIC_API_KEY
// from the environment (the SDK default). model is an Anthropic model
// identifier; callers typically pass a small/cheap model since relevance
// scoring and context extraction are latency-sensitive hook-path calls.
func NewAnthropicSummarizer(apiKey, model string) *AnthropicSummarizer {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicSummarizer{
		client: anthropic.NewClient(opts...),
		Model:  model,
	}
}

// Complete sends a single-turn request and returns the first text block.
func (a *AnthropicSummarizer) Complete(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in anthropic response")
}

const extractContextSystemPrompt = "You distill the tail of a coding-assistant transcript into a JSON object " +
	"describing work-in-progress state for a future session to resume from. " +
	`Respond with only JSON: {"summary": string, "critical_files": [string], ` +
	`"recent_changes": [string], "learnings": [string], "blockers": [string]}.`

type extractedContext struct {
	Summary       string   `json:"summary"`
	CriticalFiles []string `json:"critical_files"`
	RecentChanges []string `json:"recent_changes"`
	Learnings     []string `json:"learnings"`
	Blockers      []string `json:"blockers"`
}

// ExtractContext asks the model to distill transcriptTail into a
// HandoffContext, used by the pre-compact hook (spec.md §4.10).
func (a *AnthropicSummarizer) ExtractContext(ctx context.Context, transcriptTail string) (*models.HandoffContext, error) {
	response, err := a.Complete(ctx, extractContextSystemPrompt, transcriptTail, 1024)
	if err != nil {
		return nil, err
	}

	var parsed extractedContext
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("extract context: unparseable response: %w", err)
	}

	return &models.HandoffContext{
		Summary:       parsed.Summary,
		CriticalFiles: parsed.CriticalFiles,
		RecentChanges: parsed.RecentChanges,
		Learnings:     parsed.Learnings,
		Blockers:      parsed.Blockers,
	}, nil
}
