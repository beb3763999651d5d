package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		archive TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		total_tasks INTEGER NOT NULL,
		completed_tasks INTEGER NOT NULL,
		failed_tasks INTEGER NOT NULL,
		pending_tasks INTEGER NOT NULL,
		completion_rate REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_tasks (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		task_id TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		agent_type TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		dependencies TEXT,
		retry_count INTEGER NOT NULL,
		max_retries INTEGER NOT NULL,
		result TEXT,
		error TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_tasks_run_seq ON run_tasks(run_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
