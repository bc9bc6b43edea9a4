package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pbrown/claude-recall/internal/errs"
)

// newLessonCmds builds the top-level lesson commands from spec.md §6:
// inject, add, cite, list, show, edit, delete.
func newLessonCmds(v *viper.Viper) []*cobra.Command {
	return []*cobra.Command{
		newInjectCmd(v),
		newAddCmd(v),
		newCiteCmd(v),
		newListCmd(v),
		newShowCmd(v),
		newEditCmd(v),
		newDeleteCmd(v),
	}
}

func newInjectCmd(v *viper.Viper) *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "inject [n]",
		Short: "Print the context-injection text for the current corpus",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("inject: n must be a positive integer: %w", errs.ErrUsage)
				}
				topN = n
			}
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if topN > 0 {
				a.injector.TopN = topN
			}
			lessonList, err := a.lessons.List()
			if err != nil {
				return err
			}
			handoffList, err := a.handoffs.List("", false)
			if err != nil {
				return err
			}
			result := a.injector.Inject(lessonList, handoffList)
			fmt.Println(result.Text)
			return nil
		},
	}
	cmd.Flags().IntVar(&topN, "top", 0, "override the number of lessons injected")
	return cmd
}

func newAddCmd(v *viper.Viper) *cobra.Command {
	var system, noPromote bool
	var lessonType string
	cmd := &cobra.Command{
		Use:   "add <category> <title> <content>",
		Short: "Add a lesson",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			level := "project"
			if system {
				level = "system"
			}
			l, err := a.lessons.Add(level, args[0], args[1], args[2], "human", !noPromote, lessonType, false)
			if err != nil {
				return fmt.Errorf("%w", err)
			}
			fmt.Println(l.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&system, "system", false, "add to the system tier instead of project")
	cmd.Flags().BoolVar(&noPromote, "no-promote", false, "mark the lesson as not eligible for promotion")
	cmd.Flags().StringVar(&lessonType, "type", "", "constraint|informational|preference")
	return cmd
}

func newCiteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "cite <id>...",
		Short: "Record a citation (increments uses, bumps velocity)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			return a.lessons.Cite(args...)
		},
	}
}

func newListCmd(v *viper.Viper) *cobra.Command {
	var stale bool
	var category, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lessons, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			results, err := a.lessons.Search(search, category, stale)
			if err != nil {
				return err
			}
			for _, l := range results {
				fmt.Printf("%s\t%s\t%s\tuses=%d\n", l.ID, l.Category, l.Title, l.Uses)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stale, "stale", false, "only lessons unused past the stale threshold")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&search, "search", "", "filter by title/content substring")
	return cmd
}

func newShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			l, err := a.lessons.Get(args[0])
			if err != nil {
				return fmt.Errorf("%w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(l)
		},
	}
}

func newEditCmd(v *viper.Viper) *cobra.Command {
	var title, content, category string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit fields on a lesson",
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
			if cmd.Flags().Changed("title") {
				updates["title"] = title
			}
			if cmd.Flags().Changed("content") {
				updates["content"] = content
			}
			if cmd.Flags().Changed("category") {
				updates["category"] = category
			}
			if len(updates) == 0 {
				return fmt.Errorf("edit %s: %w: no fields given", args[0], errs.ErrUsage)
			}
			return a.lessons.Edit(args[0], updates)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&content, "content", "", "new content")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	return cmd
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			return a.lessons.Delete(args[0])
		},
	}
}

func newDecayCmd(v *viper.Viper) *cobra.Command {
	var force, background bool
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Run a decay cycle over the lesson corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if !a.cfg.Enabled {
				return nil
			}
			result, err := a.decay.Run(force)
			if err != nil {
				return err
			}
			a.log.LogDecayRun(result.Ran, result.LessonsAged, result.UsesDecremented)
			if !background {
				fmt.Printf("ran=%t lessons_aged=%d uses_decremented=%d\n", result.Ran, result.LessonsAged, result.UsesDecremented)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the interval/activity skip checks")
	cmd.Flags().BoolVar(&background, "background", false, "suppress stdout output (used by the detached decay trigger)")
	return cmd
}
