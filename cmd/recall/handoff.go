package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/hooks"
	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/transcript"
)

// newHandoffCmd builds the "handoff" subcommand group (spec.md §6).
func newHandoffCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Manage multi-session work items",
	}
	cmd.AddCommand(
		newHandoffListCmd(v),
		newHandoffShowCmd(v),
		newHandoffAddCmd(v),
		newHandoffUpdateCmd(v),
		newHandoffTriedCmd(v),
		newHandoffCompleteCmd(v),
		newHandoffArchiveCmd(v),
		newHandoffInjectCmd(v),
		newHandoffInjectTodosCmd(v),
		newHandoffSyncTodosCmd(v),
		newHandoffSetContextCmd(v),
		newHandoffSetSessionCmd(v),
		newHandoffGetSessionHandoffCmd(v),
		newHandoffProcessTranscriptCmd(v),
	)
	return cmd
}

func newHandoffListCmd(v *viper.Viper) *cobra.Command {
	var status string
	var includeCompleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List handoffs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			results, err := a.handoffs.List(status, includeCompleted)
			if err != nil {
				return err
			}
			for _, h := range results {
				fmt.Printf("%s\t%s/%s\t%s\n", h.ID, h.Status, h.Phase, h.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&includeCompleted, "include-completed", false, "include completed handoffs")
	return cmd
}

func newHandoffShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			h, err := a.handoffs.GetByID(args[0])
			if err != nil {
				return fmt.Errorf("%w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(h)
		},
	}
}

func newHandoffAddCmd(v *viper.Viper) *cobra.Command {
	var stealth bool
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Start a new handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			h, err := a.handoffs.Add(args[0], stealth)
			if err != nil {
				return fmt.Errorf("%w", err)
			}
			fmt.Println(h.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stealth, "stealth", false, "keep this handoff local (HANDOFFS_LOCAL.md), never shared")
	return cmd
}

func newHandoffUpdateCmd(v *viper.Viper) *cobra.Command {
	var status, phase, nextSteps string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields on a handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			updates := map[string]interface{}{}
			if cmd.Flags().Changed("status") {
				updates["status"] = status
			}
			if cmd.Flags().Changed("phase") {
				updates["phase"] = phase
			}
			if cmd.Flags().Changed("next-steps") {
				updates["next_steps"] = nextSteps
			}
			if len(updates) == 0 {
				return fmt.Errorf("update %s: %w: no fields given", args[0], errs.ErrUsage)
			}
			return a.handoffs.Update(args[0], updates)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "not_started|in_progress|blocked|ready_for_review|completed")
	cmd.Flags().StringVar(&phase, "phase", "", "research|planning|implementing|review")
	cmd.Flags().StringVar(&nextSteps, "next-steps", "", "free-text continuation notes")
	return cmd
}

func newHandoffTriedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tried <id> <success|fail|partial> <description>",
		Short: "Record a tried step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			if !models.TriedStepOutcomes[args[1]] {
				return fmt.Errorf("tried %s: %w: outcome must be success|fail|partial", args[0], errs.ErrUsage)
			}
			return a.handoffs.AddTriedStep(args[0], args[1], args[2], nil)
		},
	}
}

func newHandoffCompleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a handoff completed (no-op if already completed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			return a.handoffs.Complete(args[0])
		},
	}
}

func newHandoffArchiveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Archive completed handoffs past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			count, err := a.handoffs.Archive()
			if err != nil {
				return err
			}
			fmt.Printf("archived %d\n", count)
			return nil
		},
	}
}

func newHandoffInjectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "inject",
		Short: "Print the active-handoffs injection section",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			active, err := a.handoffs.List("", false)
			if err != nil {
				return err
			}
			result := a.injector.InjectOrdered(nil, active)
			fmt.Println(result.Text)
			return nil
		},
	}
}

func newHandoffInjectTodosCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "inject-todos",
		Short: "Print the todo-continuation block for the most recent in-progress handoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			active, err := a.handoffs.List("", false)
			if err != nil {
				return err
			}
			for _, h := range active {
				if h.Status == "in_progress" && h.NextSteps != "" {
					fmt.Println(h.NextSteps)
					return nil
				}
			}
			return nil
		},
	}
}

func newHandoffSyncTodosCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-todos <id> <json>",
		Short: "Replace a handoff's next-steps with a serialized todo list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			var todos []transcript.TodoItem
			if err := json.Unmarshal([]byte(args[1]), &todos); err != nil {
				return fmt.Errorf("sync-todos: %w: malformed todo json: %v", errs.ErrUsage, err)
			}
			var lines []string
			for _, t := range todos {
				lines = append(lines, fmt.Sprintf("[%s] %s", t.Status, t.Content))
			}
			return a.handoffs.Update(args[0], map[string]interface{}{"next_steps": strings.Join(lines, "\n")})
		},
	}
}

func newHandoffSetContextCmd(v *viper.Viper) *cobra.Command {
	var jsonBlob string
	cmd := &cobra.Command{
		Use:   "set-context <id>",
		Short: "Set a handoff's structured continuation context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			var ctx models.HandoffContext
			if err := json.Unmarshal([]byte(jsonBlob), &ctx); err != nil {
				return fmt.Errorf("set-context: %w: malformed context json: %v", errs.ErrUsage, err)
			}
			return a.handoffs.SetContext(args[0], &ctx)
		},
	}
	cmd.Flags().StringVar(&jsonBlob, "json", "", "HandoffContext JSON object")
	return cmd
}

func newHandoffSetSessionCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set-session <handoff-id> <session-id>",
		Short: "Link a session to a handoff",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			if err := a.handoffs.LinkSession(args[0], args[1]); err != nil {
				return err
			}
			return a.checkpoints.SetHandoffForSession(args[1], args[0], "")
		},
	}
}

func newHandoffGetSessionHandoffCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get-session-handoff <session-id>",
		Short: "Print the handoff id linked to a session, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			id := a.checkpoints.GetHandoffForSession(args[0])
			fmt.Println(id)
			return nil
		},
	}
}

func newHandoffProcessTranscriptCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "process-transcript",
		Short: "Run the stop-hook transcript processing path standalone (for debugging/replays)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd)
			if err != nil {
				return err
			}
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			result, err := a.orch.Stop(cmd.Context(), in)
			if err != nil {
				return err
			}
			for _, warning := range result.Warnings {
				fmt.Fprintln(os.Stderr, warning)
			}
			return writeOutput(hooks.Output{AdditionalContext: result.AdditionalContext})
		},
	}
}
