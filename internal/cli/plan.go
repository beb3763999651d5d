package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modforge/porter/internal/pipeline"
)

func planCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <mod-archive>",
		Short: "Show the conversion pipeline for a mod archive without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := pipeline.Build(pipeline.Job{
				RunID:      "plan",
				Archive:    args[0],
				MaxRetries: a.cfg.Runner.MaxRetries,
			})
			if err != nil {
				return fmt.Errorf("building pipeline: %w", err)
			}

			order, err := g.Validate()
			if err != nil {
				return fmt.Errorf("validating pipeline: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderPlan(g.Snapshots(), order))
			return nil
		},
	}
}
