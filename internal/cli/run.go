package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/modforge/porter/internal/agent"
	"github.com/modforge/porter/internal/config"
	"github.com/modforge/porter/internal/events"
	"github.com/modforge/porter/internal/persistence"
	"github.com/modforge/porter/internal/pipeline"
	"github.com/modforge/porter/internal/runner"
	"github.com/modforge/porter/internal/taskgraph"
)

func runCmd(a *app) *cobra.Command {
	var units []string
	var noArchive bool

	cmd := &cobra.Command{
		Use:   "run <mod-archive>",
		Short: "Run the conversion pipeline against a Java mod archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := uuid.NewString()
			startedAt := time.Now()
			a.log.Info().Str("run", runID).Str("archive", args[0]).Msg("starting conversion")

			job := pipeline.Job{
				RunID:      runID,
				Archive:    args[0],
				MaxRetries: a.cfg.Runner.MaxRetries,
			}
			g, err := pipeline.Build(job)
			if err != nil {
				return fmt.Errorf("building pipeline: %w", err)
			}

			bus := events.NewBus()
			done := logEvents(a.log, bus)

			r := runner.New(runner.Config{
				MaxWorkers: a.cfg.Runner.MaxWorkers,
				Retry:      retryConfig(a.cfg.Runner),
				OnSpawn:    pipeline.LinkSpawned(g),
			}, g, buildRegistry(a.cfg, units), bus, a.log)

			stats, runErr := r.Run(ctx)
			bus.Close()
			<-done

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTasks("Conversion run "+runID, g.Snapshots()))
			fmt.Fprintln(out, renderStats(stats))

			if !noArchive {
				if err := archiveRun(a, runID, args[0], startedAt, stats, g.Snapshots()); err != nil {
					a.log.Error().Err(err).Msg("could not archive run")
				}
			}

			if runErr != nil {
				return runErr
			}
			if stats.FailedTasks > 0 {
				return fmt.Errorf("conversion finished with %d failed task(s)", stats.FailedTasks)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&units, "units", []string{"blocks", "items", "recipes"},
		"conversion units the planner reports in dry runs")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "skip writing the run to the archive database")

	return cmd
}

// buildRegistry maps each configured agent onto the dry-run backend. The
// planner's agent gets the simulated conversion units so spawning is
// exercised end to end.
func buildRegistry(cfg *config.PorterConfig, units []string) *agent.Registry {
	reg := agent.NewRegistry()
	for name, ac := range cfg.Agents {
		d := agent.DryRunAgent{Name: name}
		if ac.Type == pipeline.TypePlanning {
			d.Units = units
		}
		reg.Register(ac.Type, d)
	}
	return reg
}

func retryConfig(rc config.RunnerConfig) runner.RetryConfig {
	cfg := runner.DefaultRetryConfig()
	if rc.RetryInitialMS > 0 {
		cfg.InitialInterval = time.Duration(rc.RetryInitialMS) * time.Millisecond
	}
	if rc.RetryMaxMS > 0 {
		cfg.MaxInterval = time.Duration(rc.RetryMaxMS) * time.Millisecond
	}
	return cfg
}

// logEvents drains the bus into the logger until the bus closes.
func logEvents(log zerolog.Logger, bus *events.Bus) <-chan struct{} {
	ch := bus.SubscribeAll(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			switch e := ev.(type) {
			case events.TaskStartedEvent:
				log.Info().Str("task", e.ID).Str("agent", e.AgentName).Int("attempt", e.Attempt).Msg("task started")
			case events.TaskCompletedEvent:
				log.Info().Str("task", e.ID).Dur("took", e.Duration).Msg("task completed")
			case events.TaskFailedEvent:
				log.Warn().Str("task", e.ID).Str("error", e.Err).Bool("will_retry", e.WillRetry).Msg("task failed")
			case events.TaskRetriedEvent:
				log.Info().Str("task", e.ID).Int("attempt", e.Attempt).Dur("delay", e.Delay).Msg("task re-queued")
			case events.TasksSpawnedEvent:
				log.Info().Str("task", e.ID).Strs("spawned", e.SpawnedIDs).Msg("tasks spawned")
			case events.GraphProgressEvent:
				log.Debug().Int("completed", e.Completed).Int("failed", e.Failed).Int("total", e.Total).Msg("progress")
			}
		}
	}()
	return done
}

// archiveRun persists the finished run. Uses its own context so a
// cancelled run still gets archived.
func archiveRun(a *app, runID, archive string, startedAt time.Time, stats taskgraph.CompletionStats, tasks []taskgraph.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := persistence.NewSQLiteStore(ctx, a.cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveRun(ctx, persistence.RunRecord{
		ID:         runID,
		Archive:    archive,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Stats:      stats,
		Tasks:      tasks,
	}); err != nil {
		return err
	}
	a.log.Info().Str("run", runID).Str("db", a.cfg.Storage.DBPath).Msg("run archived")
	return nil
}
