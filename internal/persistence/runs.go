package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modforge/porter/internal/taskgraph"
)

// SaveRun archives a run and its task snapshots. Uses ON CONFLICT so a
// run can be re-saved after completion over an earlier partial save.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, archive, started_at, finished_at, total_tasks, completed_tasks, failed_tasks, pending_tasks, completion_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			archive = excluded.archive,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			total_tasks = excluded.total_tasks,
			completed_tasks = excluded.completed_tasks,
			failed_tasks = excluded.failed_tasks,
			pending_tasks = excluded.pending_tasks,
			completion_rate = excluded.completion_rate
	`, run.ID, run.Archive,
		run.StartedAt.Format(time.RFC3339Nano), run.FinishedAt.Format(time.RFC3339Nano),
		run.Stats.TotalTasks, run.Stats.CompletedTasks, run.Stats.FailedTasks,
		run.Stats.PendingTasks, run.Stats.CompletionRate)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM run_tasks WHERE run_id = ?`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to delete old task rows: %w", err)
	}

	for seq, snap := range run.Tasks {
		resultJSON := ""
		if snap.Result != nil {
			data, err := json.Marshal(snap.Result)
			if err != nil {
				return fmt.Errorf("failed to marshal result for task %s: %w", snap.TaskID, err)
			}
			resultJSON = string(data)
		}

		errText := ""
		if snap.Error != nil {
			errText = *snap.Error
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_tasks (run_id, seq, task_id, agent_name, agent_type, status, priority, dependencies, retry_count, max_retries, result, error, created_at, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, seq, snap.TaskID, snap.AgentName, snap.AgentType, snap.Status,
			snap.Priority, strings.Join(snap.Dependencies, ","), snap.RetryCount, snap.MaxRetries,
			resultJSON, errText, snap.CreatedAt, derefOrEmpty(snap.StartedAt), derefOrEmpty(snap.CompletedAt))
		if err != nil {
			return fmt.Errorf("failed to insert task row %s: %w", snap.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun retrieves an archived run with its task snapshots in the order
// they were added to the graph.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var run RunRecord
	var startedAt, finishedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, archive, started_at, finished_at, total_tasks, completed_tasks, failed_tasks, pending_tasks, completion_rate
		FROM runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &run.Archive, &startedAt, &finishedAt,
		&run.Stats.TotalTasks, &run.Stats.CompletedTasks, &run.Stats.FailedTasks,
		&run.Stats.PendingTasks, &run.Stats.CompletionRate)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to query run: %w", err)
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return RunRecord{}, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return RunRecord{}, fmt.Errorf("failed to parse finished_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, agent_name, agent_type, status, priority, dependencies, retry_count, max_retries, result, error, created_at, started_at, completed_at
		FROM run_tasks
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to query task rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap taskgraph.Snapshot
		var deps, resultJSON, errText, taskStarted, taskCompleted string

		err := rows.Scan(&snap.TaskID, &snap.AgentName, &snap.AgentType, &snap.Status,
			&snap.Priority, &deps, &snap.RetryCount, &snap.MaxRetries,
			&resultJSON, &errText, &snap.CreatedAt, &taskStarted, &taskCompleted)
		if err != nil {
			return RunRecord{}, fmt.Errorf("failed to scan task row: %w", err)
		}

		snap.Dependencies = []string{}
		if deps != "" {
			snap.Dependencies = strings.Split(deps, ",")
		}
		if resultJSON != "" {
			if err := json.Unmarshal([]byte(resultJSON), &snap.Result); err != nil {
				return RunRecord{}, fmt.Errorf("failed to unmarshal result for task %s: %w", snap.TaskID, err)
			}
		}
		if errText != "" {
			snap.Error = &errText
		}
		if taskStarted != "" {
			s := taskStarted
			snap.StartedAt = &s
		}
		if taskCompleted != "" {
			s := taskCompleted
			snap.CompletedAt = &s
		}

		run.Tasks = append(run.Tasks, snap)
	}
	if err := rows.Err(); err != nil {
		return RunRecord{}, fmt.Errorf("error iterating task rows: %w", err)
	}

	return run, nil
}

// ListRuns returns summaries of all archived runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, archive, started_at, finished_at, total_tasks, completed_tasks, failed_tasks
		FROM runs
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		var startedAt, finishedAt string

		err := rows.Scan(&sum.ID, &sum.Archive, &startedAt, &finishedAt,
			&sum.Total, &sum.Completed, &sum.Failed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if sum.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}

		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return summaries, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
