package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modforge/porter/internal/persistence"
)

func historyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history [run-id]",
		Short: "List archived runs, or show one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := persistence.NewSQLiteStore(ctx, a.cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("opening run archive: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderTasks(
					fmt.Sprintf("Run %s (%s)", run.ID, run.Archive), run.Tasks))
				fmt.Fprintln(out, renderStats(run.Stats))
				return nil
			}

			runs, err := store.ListRuns(ctx)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no archived runs")
				return nil
			}
			for _, r := range runs {
				status := styleStatusCompleted.Render("ok")
				if r.Failed > 0 {
					status = styleStatusFailed.Render("failed")
				}
				fmt.Fprintf(out, "%s  %s  %s  %d/%d tasks  %s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"),
					r.ID, r.Archive, r.Completed, r.Total, status)
			}
			return nil
		},
	}
}
