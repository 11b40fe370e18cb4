package scheduler

import (
	"fmt"
)

// TaskContext is the capability object handed to a running executor: the sole
// channel through which task code spawns subtasks, declares waits,
// checkpoints, and reports progress. It is valid only for the duration of the
// executor invocation it was created for.
type TaskContext struct {
	taskID string
	graph  *Graph
}

func newTaskContext(taskID string, graph *Graph) *TaskContext {
	return &TaskContext{taskID: taskID, graph: graph}
}

// TaskID returns the id of the task this context belongs to.
func (tc *TaskContext) TaskID() string {
	return tc.taskID
}

// SpawnSubtask atomically creates and registers a new task with the caller as
// parent and returns its id. With wait set, it immediately declares a wait on
// the new task; the returned error is then the suspension signal and must be
// propagated out of the executor.
func (tc *TaskContext) SpawnSubtask(description string, fn Executor, wait bool) (string, error) {
	sub := &Task{
		Description: description,
		Run:         fn,
		ParentID:    tc.taskID,
	}
	if err := tc.graph.AddTask(sub); err != nil {
		return "", fmt.Errorf("spawning subtask of %q: %w", tc.taskID, err)
	}
	if wait {
		return sub.ID, tc.WaitFor(sub.ID)
	}
	return sub.ID, nil
}

// WaitFor records the current task's dependency on taskID and returns the
// suspension signal the executor must propagate:
//
//	if err := tc.WaitFor(id); err != nil {
//		return nil, err
//	}
//
// If the awaited task has already completed, WaitFor returns nil and the
// executor simply continues. Waiting on an id absent from the graph fails
// fast with ErrMissingDependency rather than creating a dangling wait.
func (tc *TaskContext) WaitFor(taskID string) error {
	dep, ok := tc.graph.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingDependency, taskID)
	}

	if err := tc.graph.AddDependency(tc.taskID, taskID); err != nil {
		return err
	}

	if dep.State == TaskCompleted {
		return nil
	}
	return &Suspend{TaskID: tc.taskID, DependencyID: taskID}
}

// Result returns the stored result of a completed task. The second return is
// false while the task is absent or not yet completed. This is how a
// re-entered executor observes the dependency it suspended on.
func (tc *TaskContext) Result(taskID string) (any, bool) {
	task, ok := tc.graph.Get(taskID)
	if !ok || task.State != TaskCompleted {
		return nil, false
	}
	return task.Result, true
}

// Checkpoint stores an opaque progress blob for use on re-entry. Using it to
// skip already-finished work is a convention, not enforced by the core.
func (tc *TaskContext) Checkpoint(state any) {
	_ = tc.graph.SetCheckpoint(tc.taskID, state)
}

// LastCheckpoint returns the most recently stored checkpoint, or nil on
// first entry.
func (tc *TaskContext) LastCheckpoint() any {
	return tc.graph.GetCheckpoint(tc.taskID)
}

// Progress records an observational completion fraction in [0, 1]. It has no
// scheduling effect.
func (tc *TaskContext) Progress(fraction float64) {
	_ = tc.graph.SetProgress(tc.taskID, fraction)
}
