package events

import (
	"time"
)

// Event is the base interface for everything published on the bus.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicGraph = "graph"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskRetried   = "task.retried"
	EventTypeTasksSpawned  = "task.spawned"
	EventTypeGraphProgress = "graph.progress"
)

// TaskStartedEvent is published when a task is dispatched to an agent.
type TaskStartedEvent struct {
	ID        string
	AgentName string
	AgentType string
	Attempt   int // 1 for the first dispatch, retries count up
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task finishes successfully.
type TaskCompletedEvent struct {
	ID        string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails. WillRetry reports whether
// retry budget remains; the actual retry is announced separately.
type TaskFailedEvent struct {
	ID        string
	Err       string
	WillRetry bool
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskRetriedEvent is published when a failed task is re-queued.
type TaskRetriedEvent struct {
	ID        string
	Attempt   int // attempt number the task is being re-queued for
	Delay     time.Duration
	Timestamp time.Time
}

func (e TaskRetriedEvent) EventType() string { return EventTypeTaskRetried }
func (e TaskRetriedEvent) TaskID() string    { return e.ID }

// TasksSpawnedEvent is published when a completed task's callback injects
// new tasks into the graph.
type TasksSpawnedEvent struct {
	ID        string // the parent task
	SpawnedIDs []string
	Timestamp time.Time
}

func (e TasksSpawnedEvent) EventType() string { return EventTypeTasksSpawned }
func (e TasksSpawnedEvent) TaskID() string    { return e.ID }

// GraphProgressEvent summarizes graph-wide completion after each wave.
type GraphProgressEvent struct {
	Total          int
	Completed      int
	Failed         int
	Pending        int
	CompletionRate float64
	Timestamp      time.Time
}

func (e GraphProgressEvent) EventType() string { return EventTypeGraphProgress }
func (e GraphProgressEvent) TaskID() string    { return "" }
