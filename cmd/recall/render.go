package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pbrown/claude-recall/internal/render"
)

// newRenderCmd builds the supplementary "render" command: a batch/offline
// export of the lesson and handoff corpus to static HTML (spec.md's
// supplemented-features DOMAIN STACK goldmark wiring), since this engine
// has no live dashboard process, just short-lived CLI invocations.
func newRenderCmd(v *viper.Viper) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the lesson and handoff corpus to a static HTML page",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			lessonList, err := a.lessons.List()
			if err != nil {
				return err
			}
			handoffList, err := a.handoffs.List("", true)
			if err != nil {
				return err
			}
			html, err := render.Page(lessonList, handoffList)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Println(html)
				return nil
			}
			return os.WriteFile(out, []byte(html), 0644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write HTML to this path instead of stdout")
	return cmd
}
