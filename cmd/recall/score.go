package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pbrown/claude-recall/internal/cache"
	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/ranker"
	"github.com/pbrown/claude-recall/internal/transcript"
)

// newScoreCmds builds score-relevance, score-local, extract-context, and
// prescore-cache (spec.md §6).
func newScoreCmds(v *viper.Viper) []*cobra.Command {
	return []*cobra.Command{
		newScoreRelevanceCmd(v),
		newScoreLocalCmd(v),
		newExtractContextCmd(v),
		newPrescoreCacheCmd(v),
	}
}

func printScored(results []rankedOut, topN int) {
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)
}

type rankedOut struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

func newScoreRelevanceCmd(v *viper.Viper) *cobra.Command {
	var topN int
	var minScore int
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "score-relevance <query>",
		Short: "Rank lessons against query using the external scorer (falls back to BM25)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			lessonList, err := a.lessons.List()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var cancel context.CancelFunc
			if timeoutSec > 0 {
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
				defer cancel()
			}
			scored := a.ranker.Rank(ctx, args[0], lessonList)
			out := make([]rankedOut, 0, len(scored))
			for _, s := range scored {
				if s.Score < minScore {
					continue
				}
				out = append(out, rankedOut{ID: s.Lesson.ID, Score: s.Score})
			}
			printScored(out, topN)
			return nil
		},
	}
	cmd.Flags().IntVar(&topN, "top", 0, "limit results to the top N")
	cmd.Flags().IntVar(&minScore, "min-score", 0, "drop results below this score")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "override the external-scorer timeout, in seconds")
	return cmd
}

func newScoreLocalCmd(v *viper.Viper) *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "score-local <query>",
		Short: "Rank lessons against query using BM25 only (never calls the external scorer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			lessonList, err := a.lessons.List()
			if err != nil {
				return err
			}
			scored := ranker.BM25Ranker{}.Rank(cmd.Context(), args[0], lessonList)
			out := make([]rankedOut, 0, len(scored))
			for _, s := range scored {
				out = append(out, rankedOut{ID: s.Lesson.ID, Score: s.Score})
			}
			printScored(out, topN)
			return nil
		},
	}
	cmd.Flags().IntVar(&topN, "top", 0, "limit results to the top N")
	return cmd
}

func newExtractContextCmd(v *viper.Viper) *cobra.Command {
	var gitRef string
	cmd := &cobra.Command{
		Use:   "extract-context <transcript-path>",
		Short: "Extract structured continuation context from a transcript's tail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if a.summarizer == nil {
				return fmt.Errorf("extract-context: %w: no summarizer configured (set ANTHROPIC_API_KEY)", errs.ErrUsage)
			}
			result, err := transcript.Scan(args[0], 0)
			if err != nil {
				return err
			}
			tail := ""
			for i, t := range result.AssistantTexts {
				if i > 0 {
					tail += "\n\n"
				}
				tail += t
			}
			hctx, err := a.summarizer.ExtractContext(cmd.Context(), tail)
			if err != nil {
				return fmt.Errorf("extract-context: %w", errs.ErrExternalTimeout)
			}
			if gitRef != "" {
				hctx.GitRef = gitRef
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(hctx)
		},
	}
	cmd.Flags().StringVar(&gitRef, "git-ref", "", "git ref to stamp onto the extracted context")
	return cmd
}

func newPrescoreCacheCmd(v *viper.Viper) *cobra.Command {
	var transcriptPath string
	cmd := &cobra.Command{
		Use:   "prescore-cache",
		Short: "Warm the relevance cache by ranking each assistant text block in a transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transcriptPath == "" {
				return fmt.Errorf("prescore-cache: %w: --transcript is required", errs.ErrUsage)
			}
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			lessonList, err := a.lessons.List()
			if err != nil {
				return err
			}
			result, err := transcript.Scan(transcriptPath, 0)
			if err != nil {
				return err
			}
			relevanceCache := cache.New(a.cfg.StateDir + "/relevance-cache.json")
			for _, text := range result.AssistantTexts {
				fingerprint := cache.Fingerprint(lessonList)
				if _, ok := relevanceCache.Get(text, fingerprint); ok {
					continue
				}
				scored := a.ranker.Rank(cmd.Context(), text, lessonList)
				scores := map[string]int{}
				for _, s := range scored {
					scores[s.Lesson.ID] = s.Score
				}
				if err := relevanceCache.Put(text, fingerprint, scores); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "transcript path to scan for prompts")
	return cmd
}
