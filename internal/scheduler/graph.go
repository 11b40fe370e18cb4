package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"
)

// Graph is the authoritative task and edge store: the single source of truth
// for readiness and cycles, and the only shared mutable structure in the
// scheduler. Every operation takes the one graph-wide lock because the
// invariants (deps/dependents symmetry, unmet-edge bookkeeping, monotonic
// states) span multiple fields and must change together.
type Graph struct {
	mu         sync.Mutex
	tasks      map[string]*Task
	order      []string                       // insertion order, the readiness tie-break
	dependents map[string][]string            // depID -> task ids that depend on it
	unmet      map[string]map[string]struct{} // taskID -> dep ids not yet completed
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
		unmet:      make(map[string]map[string]struct{}),
	}
}

// AddTask registers a task. An empty ID is replaced with a fresh UUID. If the
// task declares a dependency on an unknown id the call fails with
// ErrUnknownDependency and nothing is mutated.
func (g *Graph) AddTask(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, task.ID)
	}

	// Validate every declared dependency before touching anything.
	for _, depID := range task.DependsOn {
		if _, exists := g.tasks[depID]; !exists {
			return fmt.Errorf("%w: task %q depends on %q", ErrUnknownDependency, task.ID, depID)
		}
	}

	task.State = TaskPending
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	g.tasks[task.ID] = task
	g.order = append(g.order, task.ID)
	g.unmet[task.ID] = make(map[string]struct{})

	for _, depID := range task.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
		if g.tasks[depID].State != TaskCompleted {
			g.unmet[task.ID][depID] = struct{}{}
		}
	}

	return nil
}

// AddDependency inserts the edge task -> dep, meaning the task cannot run
// until dep completes. The edge is rejected with ErrCircularDependency if it
// would close a cycle, leaving the graph unchanged. Adding an existing edge
// is a no-op.
func (g *Graph) AddDependency(taskID, depID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	dep, exists := g.tasks[depID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownDependency, depID)
	}
	if task.State.Terminal() {
		return fmt.Errorf("task %q is already %s", taskID, task.State)
	}

	for _, existing := range task.DependsOn {
		if existing == depID {
			return nil
		}
	}

	// Depth-first search from dep toward task: if task is reachable through
	// dependency edges, the new edge would close a cycle.
	if taskID == depID || g.reachesLocked(depID, taskID) {
		return fmt.Errorf("%w: %s -> %s", ErrCircularDependency, taskID, depID)
	}

	task.DependsOn = append(task.DependsOn, depID)
	g.dependents[depID] = append(g.dependents[depID], taskID)
	if dep.State != TaskCompleted {
		g.unmet[taskID][depID] = struct{}{}
	}

	// A task already promoted to ready loses that promotion if the new edge
	// is unmet.
	if task.State == TaskReady && len(g.unmet[taskID]) > 0 {
		task.State = TaskPending
	}

	return nil
}

// RemoveDependency removes the edge task -> dep on both sides.
func (g *Graph) RemoveDependency(taskID, depID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	if _, exists := g.tasks[depID]; !exists {
		return fmt.Errorf("%w: %q", ErrUnknownDependency, depID)
	}

	task.DependsOn = removeString(task.DependsOn, depID)
	g.dependents[depID] = removeString(g.dependents[depID], taskID)
	delete(g.unmet[taskID], depID)

	return nil
}

// reachesLocked reports whether target is reachable from id by following
// dependency edges. Caller must hold the lock.
func (g *Graph) reachesLocked(id, target string) bool {
	seen := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if t, ok := g.tasks[cur]; ok {
			stack = append(stack, t.DependsOn...)
		}
	}
	return false
}

// IsReady reports whether every dependency of the task is completed.
func (g *Graph) IsReady(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[taskID]; !exists {
		return false
	}
	return len(g.unmet[taskID]) == 0
}

// ReadyTasks promotes pending tasks whose dependencies are all completed to
// ready and returns every ready task, in insertion order for deterministic
// dispatch.
func (g *Graph) ReadyTasks() []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []*Task
	for _, id := range g.order {
		task := g.tasks[id]
		if task.State == TaskPending && len(g.unmet[id]) == 0 {
			task.State = TaskReady
		}
		if task.State == TaskReady {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

// BlockedTasks returns pending or blocked tasks with at least one unmet
// dependency, in insertion order.
func (g *Graph) BlockedTasks() []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var blocked []*Task
	for _, id := range g.order {
		task := g.tasks[id]
		if (task.State == TaskPending || task.State == TaskBlocked) && len(g.unmet[id]) > 0 {
			blocked = append(blocked, cloneTask(task))
		}
	}
	return blocked
}

// MarkRunning transitions a task to running and stamps its first start time.
func (g *Graph) MarkRunning(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	if task.State.Terminal() {
		return fmt.Errorf("task %q is already %s", taskID, task.State)
	}

	task.State = TaskRunning
	if task.StartedAt == nil {
		now := time.Now()
		task.StartedAt = &now
	}
	return nil
}

// MarkBlocked parks a running task that suspended itself via WaitFor. The
// awaited dependency may have completed between the suspension and this call;
// with nothing left unmet the task goes back to pending instead, so the next
// dispatch pass re-enqueues it rather than parking it with no wake-up edge.
func (g *Graph) MarkBlocked(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	if task.State.Terminal() {
		return fmt.Errorf("task %q is already %s", taskID, task.State)
	}

	if len(g.unmet[taskID]) == 0 {
		task.State = TaskPending
		return nil
	}
	task.State = TaskBlocked
	return nil
}

// MarkCompleted sets the task completed, stores its result, satisfies the
// edge in every dependent, and returns exactly the dependents whose unmet
// dependency set became empty as a result. That return value is the
// activation signal the scheduler uses to resume parked work: each returned
// blocked task is reset to pending for re-dispatch.
func (g *Graph) MarkCompleted(taskID string, result any) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	if task.State.Terminal() {
		return nil, fmt.Errorf("task %q is already %s", taskID, task.State)
	}

	now := time.Now()
	task.State = TaskCompleted
	task.Result = result
	task.Err = nil
	task.Progress = 1.0
	task.CompletedAt = &now

	var unblocked []string
	for _, depID := range g.dependents[taskID] {
		um, ok := g.unmet[depID]
		if !ok {
			continue
		}
		if _, waiting := um[taskID]; !waiting {
			continue
		}
		delete(um, taskID)
		if len(um) > 0 {
			continue
		}
		dependent := g.tasks[depID]
		if dependent.State.Terminal() {
			continue
		}
		if dependent.State == TaskBlocked {
			dependent.State = TaskPending
		}
		unblocked = append(unblocked, depID)
	}

	return unblocked, nil
}

// MarkFailed sets the task failed with the captured error. Failure does not
// cascade: dependents keep the edge unmet and surface through BlockedTasks
// and deadlock diagnostics. Callers wanting cascade use FailDependents.
func (g *Graph) MarkFailed(taskID string, taskErr error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	if task.State.Terminal() {
		return fmt.Errorf("task %q is already %s", taskID, task.State)
	}

	now := time.Now()
	task.State = TaskFailed
	task.Err = taskErr
	task.CompletedAt = &now
	return nil
}

// FailDependents marks every non-terminal transitive dependent of the given
// task as failed, and returns their ids. This is the opt-in cascade policy.
func (g *Graph) FailDependents(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var failed []string
	now := time.Now()
	seen := map[string]bool{taskID: true}
	queue := append([]string(nil), g.dependents[taskID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		task := g.tasks[id]
		if task == nil || task.State.Terminal() {
			continue
		}
		task.State = TaskFailed
		task.Err = fmt.Errorf("dependency %q failed", taskID)
		cpAt := now
		task.CompletedAt = &cpAt
		failed = append(failed, id)
		queue = append(queue, g.dependents[id]...)
	}
	return failed
}

// SetCheckpoint stores an opaque progress blob for re-entry after suspension.
func (g *Graph) SetCheckpoint(taskID string, state any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	task.Checkpoint = state
	return nil
}

// GetCheckpoint returns the stored checkpoint blob, or nil.
func (g *Graph) GetCheckpoint(taskID string) any {
	g.mu.Lock()
	defer g.mu.Unlock()

	if task, exists := g.tasks[taskID]; exists {
		return task.Checkpoint
	}
	return nil
}

// SetProgress records an observational progress fraction, clamped to [0, 1].
func (g *Graph) SetProgress(taskID string, fraction float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	task.Progress = fraction
	return nil
}

// Get returns a copy of the task by id.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	tasks := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[id]))
	}
	return tasks
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// Counts is a consistent point-in-time tally of task states.
type Counts struct {
	Pending   int
	Ready     int
	Running   int
	Blocked   int
	Completed int
	Failed    int
}

// Total returns the number of tasks counted.
func (c Counts) Total() int {
	return c.Pending + c.Ready + c.Running + c.Blocked + c.Completed + c.Failed
}

// Terminal returns how many tasks are in a terminal state.
func (c Counts) Terminal() int {
	return c.Completed + c.Failed
}

// Counts returns a snapshot tally of every task state.
func (g *Graph) Counts() Counts {
	g.mu.Lock()
	defer g.mu.Unlock()

	var c Counts
	for _, task := range g.tasks {
		switch task.State {
		case TaskPending:
			c.Pending++
		case TaskReady:
			c.Ready++
		case TaskRunning:
			c.Running++
		case TaskBlocked:
			c.Blocked++
		case TaskCompleted:
			c.Completed++
		case TaskFailed:
			c.Failed++
		}
	}
	return c
}

// Stuck returns, for every non-terminal task with unmet dependencies, the
// sorted list of dependency ids it awaits. Used for deadlock diagnostics.
func (g *Graph) Stuck() map[string][]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	stuck := make(map[string][]string)
	for id, task := range g.tasks {
		if task.State.Terminal() {
			continue
		}
		if len(g.unmet[id]) == 0 {
			continue
		}
		deps := make([]string, 0, len(g.unmet[id]))
		for depID := range g.unmet[id] {
			deps = append(deps, depID)
		}
		sort.Strings(deps)
		stuck[id] = deps
	}
	return stuck
}

// TopologicalOrder returns task ids in dependency order using Kahn-style
// topological sort over a point-in-time snapshot. AddDependency already
// guards against cycles; this is defense in depth and also catches graphs
// corrupted through direct task mutation.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var edges []toposort.Edge
	for _, id := range g.order {
		task := g.tasks[id]
		if len(task.DependsOn) == 0 {
			// Edge from nil keeps isolated tasks in the result.
			edges = append(edges, toposort.Edge{nil, id})
		} else {
			for _, depID := range task.DependsOn {
				edges = append(edges, toposort.Edge{depID, id})
			}
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCircularDependency, err)
	}

	ids := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			ids = append(ids, id.(string))
		}
	}
	return ids, nil
}

// Export returns serializable snapshots of every task in insertion order, for
// the persistence boundary.
func (g *Graph) Export() []TaskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snaps := make([]TaskSnapshot, 0, len(g.order))
	for _, id := range g.order {
		task := g.tasks[id]
		snap := TaskSnapshot{
			ID:          task.ID,
			Description: task.Description,
			State:       task.State.String(),
			DependsOn:   append([]string(nil), task.DependsOn...),
			ParentID:    task.ParentID,
			Progress:    task.Progress,
			CreatedAt:   task.CreatedAt,
			StartedAt:   task.StartedAt,
			CompletedAt: task.CompletedAt,
		}
		if task.Result != nil {
			snap.Result = fmt.Sprintf("%v", task.Result)
		}
		if task.Err != nil {
			snap.Error = task.Err.Error()
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// Import rebuilds tasks from snapshots into an empty graph. Terminal states
// are preserved; anything that was in flight is restored as pending so it
// runs again after a crash. Executors are not serializable, so callers
// re-attach them with BindExecutor before running.
func (g *Graph) Import(snaps []TaskSnapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.tasks) != 0 {
		return fmt.Errorf("import into non-empty graph (%d tasks present)", len(g.tasks))
	}

	for _, snap := range snaps {
		if snap.ID == "" {
			return fmt.Errorf("snapshot with empty task id")
		}
		if _, exists := g.tasks[snap.ID]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateTask, snap.ID)
		}

		task := &Task{
			ID:          snap.ID,
			Description: snap.Description,
			DependsOn:   append([]string(nil), snap.DependsOn...),
			ParentID:    snap.ParentID,
			Progress:    snap.Progress,
			CreatedAt:   snap.CreatedAt,
			StartedAt:   snap.StartedAt,
			CompletedAt: snap.CompletedAt,
		}
		switch snap.State {
		case "completed":
			task.State = TaskCompleted
			task.Result = snap.Result
		case "failed":
			task.State = TaskFailed
			if snap.Error != "" {
				task.Err = fmt.Errorf("%s", snap.Error)
			}
		default:
			task.State = TaskPending
		}

		g.tasks[task.ID] = task
		g.order = append(g.order, task.ID)
	}

	// Rebuild edges after all tasks are present: snapshots may reference
	// tasks that appear later in the slice.
	for _, id := range g.order {
		task := g.tasks[id]
		g.unmet[id] = make(map[string]struct{})
		for _, depID := range task.DependsOn {
			dep, exists := g.tasks[depID]
			if !exists {
				return fmt.Errorf("%w: task %q depends on %q", ErrUnknownDependency, id, depID)
			}
			g.dependents[depID] = append(g.dependents[depID], id)
			if dep.State != TaskCompleted {
				g.unmet[id][depID] = struct{}{}
			}
		}
	}

	return nil
}

// BindExecutor attaches an executor to an imported task.
func (g *Graph) BindExecutor(taskID string, fn Executor) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	task.Run = fn
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
