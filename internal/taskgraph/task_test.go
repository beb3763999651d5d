package taskgraph

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TestTaskLifecycle tests the legal path through the state machine.
func TestTaskLifecycle(t *testing.T) {
	task := NewTask("analyze", "mod_analyzer", "analysis", map[string]any{"archive": "mod.jar"})

	if task.Status != StatusPending {
		t.Fatalf("new task status = %s, want PENDING", task.Status)
	}
	if task.CreatedAt.IsZero() {
		t.Error("CreatedAt not set at construction")
	}
	if task.IsTerminal() {
		t.Error("new task should not be terminal")
	}

	if err := task.MarkStarted(); err != nil {
		t.Fatalf("MarkStarted() error = %v", err)
	}
	if task.Status != StatusRunning {
		t.Errorf("status after start = %s, want RUNNING", task.Status)
	}
	if task.StartedAt == nil {
		t.Error("StartedAt not set after start")
	}

	if err := task.MarkCompleted("ok"); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if task.Status != StatusCompleted {
		t.Errorf("status after complete = %s, want COMPLETED", task.Status)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt not set after complete")
	}
	if task.Result != "ok" {
		t.Errorf("Result = %v, want %q", task.Result, "ok")
	}
	if !task.IsTerminal() {
		t.Error("completed task should be terminal")
	}

	d, ok := task.Duration()
	if !ok {
		t.Fatal("Duration() not defined after completion")
	}
	if d < 0 {
		t.Errorf("Duration() = %v, want non-negative", d)
	}
}

// TestTaskInvalidTransitions verifies that off-path transitions error
// instead of mutating state.
func TestTaskInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		call func(task *Task) error
		from Status
	}{
		{
			name: "start a running task",
			from: StatusRunning,
			call: func(task *Task) error { return task.MarkStarted() },
		},
		{
			name: "start a completed task",
			from: StatusCompleted,
			call: func(task *Task) error { return task.MarkStarted() },
		},
		{
			name: "complete a pending task",
			from: StatusPending,
			call: func(task *Task) error { return task.MarkCompleted(nil) },
		},
		{
			name: "complete a failed task",
			from: StatusFailed,
			call: func(task *Task) error { return task.MarkCompleted(nil) },
		},
		{
			name: "fail a completed task",
			from: StatusCompleted,
			call: func(task *Task) error { return task.MarkFailed("late") },
		},
		{
			name: "retry a running task",
			from: StatusRunning,
			call: func(task *Task) error { return task.PrepareRetry() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewTask("t", "worker", "generic", nil)
			task.Status = tt.from
			task.MaxRetries = 3

			err := tt.call(task)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error = %v, want ErrInvalidTransition", err)
			}
			if task.Status != tt.from {
				t.Errorf("status mutated to %s on rejected transition", task.Status)
			}
		})
	}
}

// TestMarkFailedFromPending covers tasks that fail before dispatch.
func TestMarkFailedFromPending(t *testing.T) {
	task := NewTask("t", "worker", "generic", nil)

	if err := task.MarkFailed("no agent available"); err != nil {
		t.Fatalf("MarkFailed() from PENDING error = %v", err)
	}
	if task.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", task.Status)
	}
	if task.Error != "no agent available" {
		t.Errorf("Error = %q, want the failure message", task.Error)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal failure")
	}
}

// TestRetryRoundTrip verifies fail -> PrepareRetry -> re-dispatchable.
func TestRetryRoundTrip(t *testing.T) {
	task := NewTask("t", "worker", "generic", nil)
	task.MaxRetries = 2

	if task.CanRetry() != true {
		t.Fatal("CanRetry() = false on fresh task with budget")
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if err := task.MarkStarted(); err != nil {
			t.Fatalf("attempt %d: MarkStarted() error = %v", attempt, err)
		}
		if err := task.MarkFailed("boom"); err != nil {
			t.Fatalf("attempt %d: MarkFailed() error = %v", attempt, err)
		}
		if !task.CanRetry() {
			t.Fatalf("attempt %d: CanRetry() = false, budget left", attempt)
		}
		if err := task.PrepareRetry(); err != nil {
			t.Fatalf("attempt %d: PrepareRetry() error = %v", attempt, err)
		}
		if task.Status != StatusPending {
			t.Errorf("attempt %d: status = %s, want PENDING", attempt, task.Status)
		}
		if task.RetryCount != attempt {
			t.Errorf("attempt %d: RetryCount = %d, want %d", attempt, task.RetryCount, attempt)
		}
		if task.Error != "" {
			t.Errorf("attempt %d: Error not cleared: %q", attempt, task.Error)
		}
		if task.StartedAt != nil || task.CompletedAt != nil {
			t.Errorf("attempt %d: dispatch timestamps not cleared", attempt)
		}
	}

	// Budget exhausted: third failure is final.
	task.MarkStarted()
	task.MarkFailed("boom")
	if task.CanRetry() {
		t.Error("CanRetry() = true after exhausting MaxRetries")
	}
	err := task.PrepareRetry()
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("PrepareRetry() error = %v, want ErrRetriesExhausted", err)
	}
	if task.Status != StatusFailed {
		t.Errorf("status = %s, exhausted task must stay FAILED", task.Status)
	}
}

// TestTaskSnapshot verifies the serialized record shape.
func TestTaskSnapshot(t *testing.T) {
	task := NewTask("package", "addon_packager", "packaging", map[string]any{"format": "mcaddon"})
	task.Priority = 2
	task.MaxRetries = 1
	task.DependsOn = []string{"translate", "convert_assets", "analyze"}

	snap := task.Snapshot()

	if snap.TaskID != "package" || snap.AgentName != "addon_packager" || snap.AgentType != "packaging" {
		t.Errorf("identity fields wrong: %+v", snap)
	}
	if snap.Status != "PENDING" {
		t.Errorf("Status = %q, want PENDING", snap.Status)
	}
	want := []string{"analyze", "convert_assets", "translate"}
	if len(snap.Dependencies) != len(want) {
		t.Fatalf("Dependencies = %v, want %v", snap.Dependencies, want)
	}
	for i := range want {
		if snap.Dependencies[i] != want[i] {
			t.Errorf("Dependencies[%d] = %q, want %q (sorted)", i, snap.Dependencies[i], want[i])
		}
	}
	if snap.StartedAt != nil || snap.CompletedAt != nil {
		t.Error("dispatch timestamps should be nil before start")
	}
	if snap.Error != nil {
		t.Error("Error should be nil before failure")
	}
	if _, err := time.Parse(time.RFC3339Nano, snap.CreatedAt); err != nil {
		t.Errorf("CreatedAt %q is not RFC3339: %v", snap.CreatedAt, err)
	}

	task.MarkStarted()
	task.MarkFailed("texture out of range")
	snap = task.Snapshot()
	if snap.Status != "FAILED" {
		t.Errorf("Status = %q, want FAILED", snap.Status)
	}
	if snap.Error == nil || !strings.Contains(*snap.Error, "texture") {
		t.Errorf("Error = %v, want failure message", snap.Error)
	}
	if snap.StartedAt == nil || snap.CompletedAt == nil {
		t.Error("timestamps missing after terminal transition")
	}
}
