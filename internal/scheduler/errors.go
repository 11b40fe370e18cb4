package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Structural errors are synchronous and local to the call that raised them.
// None of them mutates the graph.
var (
	// ErrUnknownTask is returned when an operation references a task id that
	// is not in the graph.
	ErrUnknownTask = errors.New("unknown task")

	// ErrDuplicateTask is returned by AddTask when the id is already taken.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrUnknownDependency is returned when AddTask or AddDependency
	// references a dependency id that does not exist in the graph.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrCircularDependency is returned when AddDependency would close a
	// cycle. The graph is left unchanged.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrMissingDependency is returned when WaitFor references an id absent
	// from the graph. The waiting task fails fast instead of hanging.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrSchedulerStopped is returned by Run when Stop was called before all
	// tasks reached a terminal state.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// Suspend is the suspension signal. WaitFor returns it after recording the
// dependency edge; the executor propagates it upward and the worker wrapper
// branches on it to park the task instead of failing it. It is a control
// value, not a failure.
type Suspend struct {
	TaskID       string // The task suspending itself
	DependencyID string // The task it now waits on
}

func (s *Suspend) Error() string {
	return fmt.Sprintf("task %q suspended waiting on %q", s.TaskID, s.DependencyID)
}

// AsSuspend unwraps err into a *Suspend if it carries one.
func AsSuspend(err error) (*Suspend, bool) {
	var s *Suspend
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// DeadlockError is raised at the Run boundary when no progress is possible:
// nothing running, nothing ready, but non-terminal tasks remain. It carries
// the full diagnostic state so operators can see what each stuck task awaits.
type DeadlockError struct {
	// Stuck maps each non-terminal task id to the dependency ids it is
	// still waiting on.
	Stuck map[string][]string
}

func (e *DeadlockError) Error() string {
	ids := make([]string, 0, len(e.Stuck))
	for id := range e.Stuck {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("deadlock: %d task(s) cannot make progress:", len(ids)))
	for _, id := range ids {
		b.WriteString(fmt.Sprintf(" %s awaits [%s];", id, strings.Join(e.Stuck[id], ", ")))
	}
	return strings.TrimSuffix(b.String(), ";")
}
