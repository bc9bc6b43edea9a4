// Command recall is the single-binary CLI entrypoint for the persistent
// memory engine (spec.md §6): cobra subcommands for the five hook entry
// points, the lesson/handoff CRUD surface, relevance scoring, and the
// supplementary Markdown-to-HTML render command. Grounded on the teacher's
// cmd/claudeops/main.go cobra+viper wiring.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pbrown/claude-recall/internal/cache"
	"github.com/pbrown/claude-recall/internal/checkpoint"
	"github.com/pbrown/claude-recall/internal/config"
	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/decay"
	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/handoffs"
	"github.com/pbrown/claude-recall/internal/hooks"
	"github.com/pbrown/claude-recall/internal/injector"
	"github.com/pbrown/claude-recall/internal/lessons"
	"github.com/pbrown/claude-recall/internal/ranker"
	"github.com/pbrown/claude-recall/internal/summarizer"
)

// app bundles the wired dependencies every subcommand needs.
type app struct {
	cfg         config.Config
	lessons     *lessons.Store
	handoffs    *handoffs.Store
	checkpoints *checkpoint.Store
	decay       *decay.Engine
	ranker      ranker.Ranker
	injector    *injector.Injector
	summarizer  summarizer.Summarizer
	log         *debuglog.Logger
	orch        *hooks.Orchestrator
}

func newApp(cfg config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	claudeDir := filepath.Join(cfg.ProjectDir, ".claude-recall")
	if err := os.MkdirAll(claudeDir, 0755); err != nil {
		return nil, fmt.Errorf("create project state dir: %w", err)
	}

	a := &app{cfg: cfg}
	a.lessons = lessons.NewStore(filepath.Join(claudeDir, "LESSONS.md"), filepath.Join(cfg.StateDir, "LESSONS.md"))
	a.lessons.StaleDays = cfg.StaleDays

	a.handoffs = handoffs.NewStore(claudeDir)
	a.checkpoints = checkpoint.NewStore(cfg.StateDir)
	a.decay = decay.NewEngine(a.lessons, cfg.StateDir)
	a.decay.IntervalDays = cfg.DecayIntervalDays

	if cfg.LockTimeoutSec > 0 {
		timeout := time.Duration(cfg.LockTimeoutSec) * time.Second
		a.lessons.LockTimeout = timeout
		a.handoffs.LockTimeout = timeout
		a.checkpoints.LockTimeout = timeout
		a.decay.LockTimeout = timeout
	}

	a.log = debuglog.New(cfg.StateDir, cfg.DebugLevel)

	inj := injector.New()
	if cfg.ThemeKeywords != nil {
		inj.ThemeKeywords = cfg.ThemeKeywords
	}
	a.injector = inj

	if cfg.AnthropicAPIKey != "" {
		a.summarizer = summarizer.NewAnthropicSummarizer(cfg.AnthropicAPIKey, cfg.SummarizerModel)
	}

	relevanceCache := cache.New(filepath.Join(cfg.StateDir, "relevance-cache.json"))
	relevanceCache.JaccardThreshold = cfg.JaccardThreshold
	if a.summarizer != nil {
		a.ranker = ranker.NewExternalScorer(a.summarizer, relevanceCache)
	} else {
		a.ranker = ranker.BM25Ranker{}
	}

	a.orch = &hooks.Orchestrator{
		Lessons:     a.lessons,
		Handoffs:    a.handoffs,
		Checkpoints: a.checkpoints,
		Decay:       a.decay,
		Ranker:      a.ranker,
		Injector:    a.injector,
		Summarizer:  a.summarizer,
		Log:         a.log,
		ProjectDir:  cfg.ProjectDir,
		StateDir:    cfg.StateDir,
	}

	return a, nil
}

// loadApp resolves config from v (already populated with parsed flags by
// cobra/viper) and wires a fresh app. Subcommands call this first.
func loadApp(v *viper.Viper) (*app, error) {
	cfg := config.Load(v)
	return newApp(cfg)
}

// exitCodeFor maps an error to spec.md §6's CLI exit codes via the
// taxonomy in internal/errs.
func exitCodeFor(err error) int {
	return errs.ExitCode(err)
}

func main() {
	var v *viper.Viper

	rootCmd := &cobra.Command{
		Use:           "recall",
		Short:         "Persistent memory engine for coding-assistant sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := rootCmd.PersistentFlags()
	f.String("base", "", "base directory for config.json and defaults (default $HOME/.claude-recall)")
	f.String("state-dir", "", "state directory for logs, caches, and checkpoints")
	f.String("project-dir", "", "project directory containing .claude-recall/ (default: nearest .git ancestor)")
	f.Int("debug", 0, "debug log verbosity (0-3)")
	f.String("session", "", "session id override")
	f.Bool("enabled", true, "master switch; disabled means hooks are no-ops")

	v = viper.New()
	_ = v.BindPFlag("base", f.Lookup("base"))
	_ = v.BindPFlag("state_dir", f.Lookup("state-dir"))
	_ = v.BindPFlag("project_dir", f.Lookup("project-dir"))
	_ = v.BindPFlag("debug", f.Lookup("debug"))
	_ = v.BindPFlag("session", f.Lookup("session"))
	_ = v.BindPFlag("enabled", f.Lookup("enabled"))

	rootCmd.AddCommand(newHookCmd(v))
	rootCmd.AddCommand(newLessonCmds(v)...)
	rootCmd.AddCommand(newHandoffCmd(v))
	rootCmd.AddCommand(newScoreCmds(v)...)
	rootCmd.AddCommand(newRenderCmd(v))
	rootCmd.AddCommand(newDecayCmd(v))

	if cmd, err := rootCmd.ExecuteC(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errs.ErrUsage) {
			fmt.Fprint(os.Stderr, cmd.UsageString())
		}
		os.Exit(exitCodeFor(err))
	}
}
