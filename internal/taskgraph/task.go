package taskgraph

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusPending   Status = iota // Waiting for dependencies or dispatch
	StatusRunning                 // Dispatched to an agent
	StatusCompleted               // Finished successfully (terminal)
	StatusFailed                  // Finished with an error (terminal unless retried)
)

// String returns the canonical status name used in snapshots and logs.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
}

// Sentinel errors for lifecycle and lookup failures. Structural problems
// (duplicate IDs, cycle-forming edges) are reported as booleans instead,
// see Graph.AddTask and Graph.AddDependency.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRetriesExhausted  = errors.New("retries exhausted")
)

// SpawnFunc produces follow-on tasks from a completed task's result.
// It is invoked inside the graph's completion critical section and must not
// call back into the owning graph.
type SpawnFunc func(result any) []*Task

// Task is a unit of schedulable work: an immutable identity plus mutable
// lifecycle state. The scheduler treats Input, Result and Error as opaque
// agent payloads and never branches on their contents.
type Task struct {
	ID        string         // Unique within the owning graph
	AgentName string         // Label of the worker that handles this task
	AgentType string         // Worker type, key into the agent registry
	Input     map[string]any // Opaque payload passed to the worker
	Priority  int            // Higher runs earlier among simultaneously ready tasks
	DependsOn []string       // Task IDs that must COMPLETE before this task is ready

	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      any    // Set on successful completion
	Error       string // Set on failure, cleared by PrepareRetry
	RetryCount  int
	MaxRetries  int

	// OnComplete, when set, is invoked with the result after a successful
	// completion; tasks it returns are inserted into the owning graph.
	OnComplete SpawnFunc

	seq int // insertion sequence, assigned by Graph.AddTask
}

// NewTask creates a PENDING task with the given identity and payload.
// Priority, MaxRetries, DependsOn and OnComplete may be set on the returned
// task before it is added to a graph.
func NewTask(id, agentName, agentType string, input map[string]any) *Task {
	if input == nil {
		input = make(map[string]any)
	}
	return &Task{
		ID:        id,
		AgentName: agentName,
		AgentType: agentType,
		Input:     input,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// MarkStarted moves the task from PENDING to RUNNING and records the start
// time. Calling it in any other state is an error.
func (t *Task) MarkStarted() error {
	if t.Status != StatusPending {
		return fmt.Errorf("task %q: start from %s: %w", t.ID, t.Status, ErrInvalidTransition)
	}
	now := time.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
	return nil
}

// MarkCompleted moves the task from RUNNING to COMPLETED and stores the
// result. COMPLETED is terminal.
func (t *Task) MarkCompleted(result any) error {
	if t.Status != StatusRunning {
		return fmt.Errorf("task %q: complete from %s: %w", t.ID, t.Status, ErrInvalidTransition)
	}
	now := time.Now()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.Result = result
	return nil
}

// MarkFailed moves the task to FAILED and stores the error text. Valid from
// RUNNING, and from PENDING for tasks that fail before dispatch.
func (t *Task) MarkFailed(errMsg string) error {
	if t.Status != StatusRunning && t.Status != StatusPending {
		return fmt.Errorf("task %q: fail from %s: %w", t.ID, t.Status, ErrInvalidTransition)
	}
	now := time.Now()
	t.Status = StatusFailed
	t.CompletedAt = &now
	t.Error = errMsg
	return nil
}

// CanRetry reports whether the task has retry budget left. Safe to call in
// any state.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// PrepareRetry moves a FAILED task back to PENDING so it can be dispatched
// as if new: increments RetryCount, clears the error and both dispatch
// timestamps. Errors if the task is not FAILED or has no retry budget.
func (t *Task) PrepareRetry() error {
	if t.Status != StatusFailed {
		return fmt.Errorf("task %q: retry from %s: %w", t.ID, t.Status, ErrInvalidTransition)
	}
	if !t.CanRetry() {
		return fmt.Errorf("task %q (%d/%d): %w", t.ID, t.RetryCount, t.MaxRetries, ErrRetriesExhausted)
	}
	t.Status = StatusPending
	t.RetryCount++
	t.Error = ""
	t.StartedAt = nil
	t.CompletedAt = nil
	return nil
}

// IsTerminal reports whether the task reached COMPLETED or FAILED.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Duration reports the wall time between start and terminal transition.
// The second return is false until both timestamps are set.
func (t *Task) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	d := t.CompletedAt.Sub(*t.StartedAt)
	if d < 0 {
		d = 0
	}
	return d, true
}

// clone returns a copy safe to hand out while the graph keeps mutating the
// original. Input is copied shallowly; values stay shared with the caller.
func (t *Task) clone() *Task {
	cp := *t
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	if t.Input != nil {
		cp.Input = make(map[string]any, len(t.Input))
		for k, v := range t.Input {
			cp.Input[k] = v
		}
	}
	return &cp
}

// Snapshot is the stable serialized form of a task: the shape a status
// endpoint or persistence layer stores. Dependencies are sorted and
// timestamps RFC3339-formatted so snapshots are deterministic.
type Snapshot struct {
	TaskID       string   `json:"task_id"`
	AgentName    string   `json:"agent_name"`
	AgentType    string   `json:"agent_type"`
	Status       string   `json:"status"`
	Dependencies []string `json:"dependencies"`
	Priority     int      `json:"priority"`
	RetryCount   int      `json:"retry_count"`
	MaxRetries   int      `json:"max_retries"`
	CreatedAt    string   `json:"created_at"`
	StartedAt    *string  `json:"started_at"`
	CompletedAt  *string  `json:"completed_at"`
	Result       any      `json:"result"`
	Error        *string  `json:"error"`
}

// Snapshot serializes the task's current state.
func (t *Task) Snapshot() Snapshot {
	deps := make([]string, len(t.DependsOn))
	copy(deps, t.DependsOn)
	sort.Strings(deps)

	s := Snapshot{
		TaskID:       t.ID,
		AgentName:    t.AgentName,
		AgentType:    t.AgentType,
		Status:       t.Status.String(),
		Dependencies: deps,
		Priority:     t.Priority,
		RetryCount:   t.RetryCount,
		MaxRetries:   t.MaxRetries,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339Nano),
		StartedAt:    formatTimePtr(t.StartedAt),
		CompletedAt:  formatTimePtr(t.CompletedAt),
		Result:       t.Result,
	}
	if t.Error != "" {
		errCopy := t.Error
		s.Error = &errCopy
	}
	return s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
