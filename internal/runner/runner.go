// Package runner is the executor side of the scheduling contract: it polls
// the graph for ready tasks, dispatches them to agents with bounded
// concurrency, and reports every outcome back through the graph's
// completion and failure transitions.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/modforge/porter/internal/agent"
	"github.com/modforge/porter/internal/events"
	"github.com/modforge/porter/internal/taskgraph"
)

// Config configures the runner.
type Config struct {
	MaxWorkers int // Max concurrent task dispatches (default 4)
	Retry      RetryConfig

	// OnSpawn, when set, is invoked after a completed task's spawned
	// children have been inserted into the graph and before the next
	// scheduling wave. Pipelines use it to add dependency edges toward
	// the new tasks.
	OnSpawn func(parent *taskgraph.Task, spawned []*taskgraph.Task)
}

// Runner drives a task graph to completion against an agent registry.
// It owns no graph state; everything it knows it learns from the graph's
// queries, and every mutation goes through the graph's transition calls.
type Runner struct {
	cfg      Config
	graph    *taskgraph.Graph
	agents   *agent.Registry
	bus      *events.Bus
	breakers *BreakerRegistry
	log      zerolog.Logger
}

// New creates a runner for the graph.
func New(cfg Config, g *taskgraph.Graph, agents *agent.Registry, bus *events.Bus, log zerolog.Logger) *Runner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	log = log.With().Str("component", "runner").Logger()
	return &Runner{
		cfg:      cfg,
		graph:    g,
		agents:   agents,
		bus:      bus,
		breakers: NewBreakerRegistry(log),
		log:      log,
	}
}

// Run executes waves of ready tasks until the graph has no runnable work
// left: every task terminal, or the only failures left have exhausted
// their retry budget. Returns the final completion statistics.
func (r *Runner) Run(ctx context.Context) (taskgraph.CompletionStats, error) {
	for {
		if err := ctx.Err(); err != nil {
			return r.graph.Stats(), err
		}

		ready := r.graph.ReadyTasks()
		if len(ready) == 0 {
			requeued, err := r.retryFailed(ctx)
			if err != nil {
				return r.graph.Stats(), err
			}
			if !requeued {
				break
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.MaxWorkers)
		for _, task := range ready {
			t := task
			g.Go(func() error {
				r.executeTask(gctx, t)
				return nil
			})
		}
		// Task failures live in the graph; the group only carries
		// context errors, checked at the top of the loop.
		_ = g.Wait()

		r.publishProgress()
	}

	r.publishProgress()
	stats := r.graph.Stats()
	r.log.Info().
		Int("total", stats.TotalTasks).
		Int("completed", stats.CompletedTasks).
		Int("failed", stats.FailedTasks).
		Float64("rate", stats.CompletionRate).
		Msg("run finished")
	return stats, nil
}

// executeTask dispatches one task to its agent and reports the outcome.
func (r *Runner) executeTask(ctx context.Context, t *taskgraph.Task) {
	if err := ctx.Err(); err != nil {
		r.fail(t, fmt.Sprintf("cancelled before dispatch: %v", err))
		return
	}

	if err := r.graph.MarkTaskStarted(t.ID); err != nil {
		r.log.Error().Err(err).Str("task", t.ID).Msg("could not mark task started")
		return
	}
	attempt := t.RetryCount + 1
	r.bus.Publish(events.TopicTask, events.TaskStartedEvent{
		ID:        t.ID,
		AgentName: t.AgentName,
		AgentType: t.AgentType,
		Attempt:   attempt,
		Timestamp: time.Now(),
	})
	r.log.Debug().Str("task", t.ID).Str("agent", t.AgentName).Int("attempt", attempt).Msg("dispatching")

	a, ok := r.agents.Get(t.AgentType)
	if !ok {
		r.fail(t, fmt.Sprintf("no agent registered for type %q", t.AgentType))
		return
	}

	started := time.Now()
	cb := r.breakers.Get(t.AgentType)
	result, err := cb.Execute(func() (interface{}, error) {
		return a.Execute(ctx, agent.Request{
			TaskID:    t.ID,
			AgentName: t.AgentName,
			AgentType: t.AgentType,
			Attempt:   attempt,
			Input:     t.Input,
		})
	})
	if err != nil {
		r.fail(t, err.Error())
		return
	}

	spawned, err := r.graph.MarkTaskCompleted(t.ID, result)
	if err != nil {
		r.log.Error().Err(err).Str("task", t.ID).Msg("could not mark task completed")
		return
	}
	r.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		ID:        t.ID,
		Duration:  time.Since(started),
		Timestamp: time.Now(),
	})
	r.log.Info().Str("task", t.ID).Dur("took", time.Since(started)).Msg("task completed")

	if len(spawned) > 0 {
		if r.cfg.OnSpawn != nil {
			r.cfg.OnSpawn(t, spawned)
		}
		spawnedIDs := make([]string, 0, len(spawned))
		for _, s := range spawned {
			spawnedIDs = append(spawnedIDs, s.ID)
		}
		r.bus.Publish(events.TopicTask, events.TasksSpawnedEvent{
			ID:         t.ID,
			SpawnedIDs: spawnedIDs,
			Timestamp:  time.Now(),
		})
		r.log.Info().Str("task", t.ID).Strs("spawned", spawnedIDs).Msg("task spawned follow-on work")
	}
}

// fail records a failure in the graph and announces it.
func (r *Runner) fail(t *taskgraph.Task, msg string) {
	if err := r.graph.MarkTaskFailed(t.ID, msg); err != nil {
		r.log.Error().Err(err).Str("task", t.ID).Msg("could not mark task failed")
		return
	}
	willRetry := t.RetryCount < t.MaxRetries
	r.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		ID:        t.ID,
		Err:       msg,
		WillRetry: willRetry,
		Timestamp: time.Now(),
	})
	r.log.Warn().Str("task", t.ID).Str("error", msg).Bool("will_retry", willRetry).Msg("task failed")
}

// retryFailed re-queues every FAILED task that still has retry budget,
// after waiting out the longest backoff delay among them. One shared wait
// per wave keeps retries batched instead of trickling. Reports whether any
// task was re-queued.
func (r *Runner) retryFailed(ctx context.Context) (bool, error) {
	var candidates []*taskgraph.Task
	var delay time.Duration
	for _, t := range r.graph.Tasks() {
		if t.Status != taskgraph.StatusFailed || !t.CanRetry() {
			continue
		}
		candidates = append(candidates, t)
		if d := retryDelay(r.cfg.Retry, t.RetryCount+1); d > delay {
			delay = d
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}

	r.log.Info().Int("tasks", len(candidates)).Dur("delay", delay).Msg("waiting before retry")
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(delay):
	}

	requeued := false
	for _, t := range candidates {
		if err := r.graph.PrepareTaskRetry(t.ID); err != nil {
			r.log.Error().Err(err).Str("task", t.ID).Msg("could not prepare retry")
			continue
		}
		requeued = true
		r.bus.Publish(events.TopicTask, events.TaskRetriedEvent{
			ID:        t.ID,
			Attempt:   t.RetryCount + 2, // clone predates the increment
			Delay:     delay,
			Timestamp: time.Now(),
		})
	}
	return requeued, nil
}

// publishProgress emits graph-wide completion statistics.
func (r *Runner) publishProgress() {
	s := r.graph.Stats()
	r.bus.Publish(events.TopicGraph, events.GraphProgressEvent{
		Total:          s.TotalTasks,
		Completed:      s.CompletedTasks,
		Failed:         s.FailedTasks,
		Pending:        s.PendingTasks,
		CompletionRate: s.CompletionRate,
		Timestamp:      time.Now(),
	})
}
