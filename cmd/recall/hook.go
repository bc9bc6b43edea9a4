package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pbrown/claude-recall/internal/hooks"
)

// newHookCmd builds the "hook" subcommand group: one subcommand per C10
// HookOrchestrator entry point, each reading an Input JSON object from
// stdin and writing an Output JSON object to stdout (spec.md §6).
func newHookCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Host-agent lifecycle hooks (session-start, prompt-submit, stop, pre-compact, session-end)",
	}

	cmd.AddCommand(
		hookSubcommand(v, "session-start", func(ctx context.Context, o *hooks.Orchestrator, in hooks.Input) (hooks.Output, error) {
			return o.SessionStart(ctx, in)
		}),
		hookSubcommand(v, "prompt-submit", func(ctx context.Context, o *hooks.Orchestrator, in hooks.Input) (hooks.Output, error) {
			return o.PromptSubmit(ctx, in)
		}),
		hookSubcommand(v, "pre-compact", func(ctx context.Context, o *hooks.Orchestrator, in hooks.Input) (hooks.Output, error) {
			return o.PreCompact(ctx, in)
		}),
		newStopCmd(v),
		newSessionEndCmd(v),
	)
	return cmd
}

func readInput(cmd *cobra.Command) (hooks.Input, error) {
	var in hooks.Input
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return in, fmt.Errorf("hook: read stdin: %w", err)
	}
	if len(raw) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("hook: malformed input json: %w", err)
	}
	return in, nil
}

func writeOutput(out hooks.Output) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(out)
}

// hookSubcommand wraps a no-warnings, no-fatal-exit hook entry point: any
// error here is logged, never surfaced as a nonzero exit (the hook
// contract is do-no-harm — a broken hook must not block the host agent).
func hookSubcommand(v *viper.Viper, name string, fn func(context.Context, *hooks.Orchestrator, hooks.Input) (hooks.Output, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Run the %s hook", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd)
			if err != nil {
				return writeOutput(hooks.Output{})
			}
			a, err := loadApp(v)
			if err != nil {
				return writeOutput(hooks.Output{})
			}
			if !a.cfg.Enabled {
				return writeOutput(hooks.Output{})
			}
			out, err := fn(cmd.Context(), a.orch, in)
			if err != nil {
				return writeOutput(hooks.Output{})
			}
			return writeOutput(out)
		},
	}
}

func newStopCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Run the stop hook",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd)
			if err != nil {
				return writeOutput(hooks.Output{})
			}
			a, err := loadApp(v)
			if err != nil {
				return writeOutput(hooks.Output{})
			}
			if !a.cfg.Enabled {
				return writeOutput(hooks.Output{})
			}
			result, err := a.orch.Stop(cmd.Context(), in)
			if err != nil {
				return writeOutput(hooks.Output{})
			}
			for _, warning := range result.Warnings {
				fmt.Fprintln(os.Stderr, warning)
			}
			return writeOutput(result.Output)
		},
	}
}

func newSessionEndCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "session-end",
		Short: "Run the session-end hook",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd)
			if err != nil {
				return nil
			}
			a, err := loadApp(v)
			if err != nil {
				return nil
			}
			if !a.cfg.Enabled {
				return nil
			}
			_ = a.orch.SessionEnd(cmd.Context(), in)
			return nil
		},
	}
}
