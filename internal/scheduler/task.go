package scheduler

import (
	"context"
	"time"
)

// TaskState represents the current state of a task.
type TaskState int

const (
	TaskPending   TaskState = iota // Waiting for dependencies
	TaskReady                      // All dependencies completed, awaiting dispatch
	TaskRunning                    // Currently executing on a worker
	TaskBlocked                    // Suspended, waiting on another task's result
	TaskCompleted                  // Finished successfully (terminal)
	TaskFailed                     // Finished with error (terminal)
)

// String returns the lowercase name used in status output and events.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the state is final. Terminal tasks are never revisited.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Executor is the body of a task. It receives a TaskContext through which it may
// spawn subtasks, declare waits, checkpoint, and report progress.
//
// An executor that calls TaskContext.WaitFor is re-invoked from the beginning
// once the awaited task completes, so it must be idempotent and use the
// checkpoint to skip work already done on re-entry.
type Executor func(ctx context.Context, tc *TaskContext) (any, error)

// Task represents a unit of work in the dependency graph.
type Task struct {
	ID          string   // Unique identifier
	Description string   // Human-readable description (also suggester input)
	Run         Executor // Execution body; re-run from the start after suspension
	State       TaskState
	DependsOn   []string // Task IDs this task depends on, in declaration order
	ParentID    string   // Set when spawned at runtime by another task

	Progress   float64 // 0.0 - 1.0, observational only
	Checkpoint any     // Opaque resumable-state blob, convention not enforced
	Result     any     // Output from execution (populated on completion)
	Err        error   // Error if failed

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.StartedAt != nil {
		t := *task.StartedAt
		cp.StartedAt = &t
	}
	if task.CompletedAt != nil {
		t := *task.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// TaskSnapshot is the serializable view of a task used at the persistence
// boundary. The scheduler core does not own the wire format; callers store
// these however they like.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	ParentID    string     `json:"parent_id,omitempty"`
	Progress    float64    `json:"progress"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
