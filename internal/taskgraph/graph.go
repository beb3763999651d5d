package taskgraph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// Graph owns a collection of tasks and the dependency edges between them,
// and turns task states into the set of tasks that may run now.
//
// The graph is a single-writer, multi-reader structure: one RWMutex guards
// all access, so mutations (AddTask, AddDependency, the MarkTask* calls)
// are serialized and queries observe consistent state. The graph performs
// no I/O and has no internal goroutines; dispatching work and reporting
// outcomes back is the executor's job.
type Graph struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // insertion order; drives deterministic iteration and tie-breaks
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		tasks: make(map[string]*Task),
	}
}

// AddTask inserts the task if its ID is not already present. Returns false
// and leaves the graph unchanged on a duplicate ID, a dependency that does
// not reference an existing task, or a self-dependency. Callers must check
// the return value; no error is raised for structural rejections.
func (g *Graph) AddTask(t *Task) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addTaskLocked(t)
}

func (g *Graph) addTaskLocked(t *Task) bool {
	if t == nil || t.ID == "" {
		return false
	}
	if _, exists := g.tasks[t.ID]; exists {
		return false
	}
	for _, depID := range t.DependsOn {
		if depID == t.ID {
			return false
		}
		if _, ok := g.tasks[depID]; !ok {
			return false
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.seq = len(g.order)
	g.tasks[t.ID] = t
	g.order = append(g.order, t.ID)
	return true
}

// AddDependency records that dependent must wait for dependency to reach
// COMPLETED. Returns false and leaves the graph unchanged if either task is
// unknown, the edge is a self-loop, or committing the edge would close a
// cycle. Re-adding an existing edge is a no-op success.
//
// Cycle detection runs to completion before the edge is committed: a
// rejected call leaves every dependency set exactly as it was.
func (g *Graph) AddDependency(dependentID, dependencyID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	dependent, ok := g.tasks[dependentID]
	if !ok {
		return false
	}
	if _, ok := g.tasks[dependencyID]; !ok {
		return false
	}
	if dependentID == dependencyID {
		return false
	}
	for _, depID := range dependent.DependsOn {
		if depID == dependencyID {
			return true
		}
	}
	// If the dependency already reaches the dependent by following
	// dependency edges, the new edge would close a cycle.
	if g.reachesLocked(dependencyID, dependentID) {
		return false
	}
	dependent.DependsOn = append(dependent.DependsOn, dependencyID)
	return true
}

// reachesLocked walks dependency edges depth-first from start and reports
// whether target is reachable. Caller holds the lock.
func (g *Graph) reachesLocked(start, target string) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := g.tasks[id]; ok {
			stack = append(stack, t.DependsOn...)
		}
	}
	return false
}

// ReadyTasks returns clones of every PENDING task whose dependencies have
// all COMPLETED, sorted by priority descending. Equal priorities keep
// insertion order, so the result is deterministic for a given graph state.
// The query never mutates the graph and may be polled repeatedly.
func (g *Graph) ReadyTasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ready := []*Task{}
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status != StatusPending {
			continue
		}
		satisfied := true
		for _, depID := range t.DependsOn {
			dep, ok := g.tasks[depID]
			if !ok || dep.Status != StatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, t.clone())
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	return ready
}

// IsComplete reports whether every task reached a terminal state.
// Vacuously true on an empty graph.
func (g *Graph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, t := range g.tasks {
		if !t.IsTerminal() {
			return false
		}
	}
	return true
}

// HasFailedTasks reports whether any task is currently FAILED, regardless
// of remaining retry budget.
func (g *Graph) HasFailedTasks() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, t := range g.tasks {
		if t.Status == StatusFailed {
			return true
		}
	}
	return false
}

// CompletionStats summarizes graph progress. PendingTasks counts everything
// that is neither COMPLETED nor FAILED, so RUNNING tasks land in the
// pending bucket.
type CompletionStats struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	FailedTasks    int     `json:"failed_tasks"`
	PendingTasks   int     `json:"pending_tasks"`
	CompletionRate float64 `json:"completion_rate"`
}

// Stats computes current completion statistics. The completion rate of an
// empty graph is 0 by convention.
func (g *Graph) Stats() CompletionStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := CompletionStats{TotalTasks: len(g.tasks)}
	for _, t := range g.tasks {
		switch t.Status {
		case StatusCompleted:
			s.CompletedTasks++
		case StatusFailed:
			s.FailedTasks++
		}
	}
	s.PendingTasks = s.TotalTasks - s.CompletedTasks - s.FailedTasks
	if s.TotalTasks > 0 {
		s.CompletionRate = float64(s.CompletedTasks) / float64(s.TotalTasks)
	}
	return s
}

// MarkTaskStarted transitions the task to RUNNING. Executors should call
// this before dispatching so the running state is observable.
func (g *Graph) MarkTaskStarted(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[taskID]
	if !ok {
		return fmt.Errorf("mark started %q: %w", taskID, ErrTaskNotFound)
	}
	return t.MarkStarted()
}

// MarkTaskCompleted transitions the task to COMPLETED, stores the result,
// and runs the task's OnComplete callback if set. Tasks the callback
// returns are inserted into the graph within the same critical section;
// ones rejected by AddTask (duplicate IDs, unknown dependencies) are
// dropped. Returns clones of the tasks that were inserted.
//
// This is the graph's only mechanism for runtime topology growth.
func (g *Graph) MarkTaskCompleted(taskID string, result any) ([]*Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("mark completed %q: %w", taskID, ErrTaskNotFound)
	}
	if err := t.MarkCompleted(result); err != nil {
		return nil, err
	}
	if t.OnComplete == nil {
		return nil, nil
	}

	var spawned []*Task
	for _, nt := range t.OnComplete(result) {
		if g.addTaskLocked(nt) {
			spawned = append(spawned, nt.clone())
		}
	}
	return spawned, nil
}

// MarkTaskFailed transitions the task to FAILED and stores the error text.
// It never retries on its own; retrying is an explicit executor action via
// PrepareTaskRetry.
func (g *Graph) MarkTaskFailed(taskID, errMsg string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[taskID]
	if !ok {
		return fmt.Errorf("mark failed %q: %w", taskID, ErrTaskNotFound)
	}
	return t.MarkFailed(errMsg)
}

// PrepareTaskRetry resets a FAILED task to PENDING so it becomes eligible
// for ReadyTasks again once its dependencies still hold.
func (g *Graph) PrepareTaskRetry(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[taskID]
	if !ok {
		return fmt.Errorf("prepare retry %q: %w", taskID, ErrTaskNotFound)
	}
	return t.PrepareRetry()
}

// Get returns a clone of the task and whether it exists.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// Tasks returns clones of all tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id].clone())
	}
	return out
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Snapshots serializes every task in insertion order.
func (g *Graph) Snapshots() []Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Snapshot, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id].Snapshot())
	}
	return out
}

// Validate runs a whole-graph topological sort and returns an execution
// order covering every task. AddTask and AddDependency keep the graph
// acyclic edge by edge; Validate is the defense check for graphs assembled
// from untrusted input and the source of the order shown by planning tools.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, t := range g.tasks {
		for _, depID := range t.DependsOn {
			if _, ok := g.tasks[depID]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", id, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, id := range g.order {
		t := g.tasks[id]
		if len(t.DependsOn) == 0 {
			// Edge from nil keeps dependency-free tasks in the sort.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range t.DependsOn {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(g.tasks) {
		return nil, fmt.Errorf("topological sort covered %d of %d tasks", len(order), len(g.tasks))
	}
	return order, nil
}

// Visualize renders a one-line-per-task report in insertion order, meant
// for debugging and CLI display, not machine parsing.
func (g *Graph) Visualize() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "task graph: %d tasks\n", len(g.order))
	for _, id := range g.order {
		t := g.tasks[id]
		fmt.Fprintf(&b, "%s %s (%s)", StatusGlyph(t.Status), t.ID, t.AgentName)
		if t.Status == StatusFailed && t.Error != "" {
			fmt.Fprintf(&b, " error: %s", t.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// StatusGlyph returns the per-state marker used in visualizations.
func StatusGlyph(s Status) string {
	switch s {
	case StatusCompleted:
		return "[+]"
	case StatusRunning:
		return "[>]"
	case StatusFailed:
		return "[!]"
	default:
		return "[ ]"
	}
}
