package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Hooks are the lifecycle notification surface. They run synchronously on the
// control goroutine and must not block; consumers wanting fan-out bridge them
// onto an event bus.
type Hooks struct {
	OnTaskStart    func(task *Task)
	OnTaskComplete func(task *Task)
	OnTaskBlocked  func(task *Task, waitingOn string)
	OnTaskFailed   func(task *Task, err error)
}

// Config configures a Scheduler.
type Config struct {
	MaxWorkers int           // Max concurrent task executions (default 4)
	Timeout    time.Duration // Wall-clock limit for Run; 0 disables

	// CascadeFailures marks every transitive dependent of a failed task as
	// failed. Off by default: dependents stay blocked and are reported.
	CascadeFailures bool

	Hooks Hooks
}

// Scheduler drives tasks from ready to a terminal or blocked state using a
// bounded worker pool. One control goroutine owns the dispatch loop and the
// running/blocked bookkeeping; workers communicate results back only through
// the outcome channel, never by touching scheduler state directly.
type Scheduler struct {
	cfg   Config
	graph *Graph

	stopCh   chan struct{}
	stopOnce sync.Once
	runMu    sync.Mutex // one Run at a time
}

// New creates a scheduler owning a fresh graph. The scheduler is an explicit
// object with a construct/run/stop lifecycle; nothing is shared across
// instances.
func New(cfg Config) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	return &Scheduler{
		cfg:    cfg,
		graph:  NewGraph(),
		stopCh: make(chan struct{}),
	}
}

// Graph exposes the underlying dependency graph for edge management,
// suggestion wiring, and state export.
func (s *Scheduler) Graph() *Graph {
	return s.graph
}

// AddTask registers a task with optional explicit dependencies and returns
// its id (minted when empty). Unknown dependency ids fail the call with no
// partial mutation.
func (s *Scheduler) AddTask(id, description string, fn Executor, deps ...string) (string, error) {
	task := &Task{
		ID:          id,
		Description: description,
		Run:         fn,
		DependsOn:   append([]string(nil), deps...),
	}
	if err := s.graph.AddTask(task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// AddDependency declares that task cannot run until dep completes.
func (s *Scheduler) AddDependency(taskID, depID string) error {
	return s.graph.AddDependency(taskID, depID)
}

// RemoveDependency removes a previously declared edge.
func (s *Scheduler) RemoveDependency(taskID, depID string) error {
	return s.graph.RemoveDependency(taskID, depID)
}

// Status returns a consistent snapshot of task state counts. Safe to call
// from any goroutine, including while Run is in flight.
func (s *Scheduler) Status() Counts {
	return s.graph.Counts()
}

// ExportState returns serializable snapshots of all tasks for the
// persistence boundary.
func (s *Scheduler) ExportState() []TaskSnapshot {
	return s.graph.Export()
}

// ImportState restores tasks from snapshots into the scheduler's (empty)
// graph. Callers re-attach executors with Graph().BindExecutor.
func (s *Scheduler) ImportState(snaps []TaskSnapshot) error {
	return s.graph.Import(snaps)
}

// Stop requests a cooperative shutdown: in-flight executions finish
// naturally, no new dispatch occurs, and blocked tasks remain blocked rather
// than being discarded. Safe to call multiple times and from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Start launches Run on its own goroutine and returns a channel carrying its
// final error.
func (s *Scheduler) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

// outcome is the tagged result of one executor invocation: exactly one of
// completed, blocked, or failed. The worker wrapper produces it; only the
// control goroutine consumes it.
type outcome struct {
	taskID    string
	blocked   bool
	waitingOn string
	result    any
	err       error
}

// Run drives the dispatch loop until every task is terminal, Stop is called,
// or the configured timeout elapses. Execution errors are isolated per task
// and never abort the loop; a DeadlockError is returned when no progress is
// possible.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)

	// Buffered to MaxWorkers so a worker's final send can never block, even
	// when the control loop has already moved on to draining.
	outcomes := make(chan outcome, s.cfg.MaxWorkers)
	running := make(map[string]struct{})
	stopping := false

	for {
		select {
		case <-s.stopCh:
			stopping = true
		default:
		}

		if !stopping {
			s.dispatch(gctx, g, running, outcomes)
		}

		if len(running) == 0 {
			counts := s.graph.Counts()
			if counts.Terminal() == counts.Total() {
				_ = g.Wait()
				return nil
			}
			if stopping {
				_ = g.Wait()
				return fmt.Errorf("%w: %d task(s) not terminal", ErrSchedulerStopped, counts.Total()-counts.Terminal())
			}
			// Nothing running, nothing dispatchable, non-terminal tasks
			// remain: no progress is possible.
			_ = g.Wait()
			return &DeadlockError{Stuck: s.graph.Stuck()}
		}

		// A nil channel blocks forever: once stopping, only outcomes and
		// cancellation can wake the loop.
		stopC := s.stopCh
		if stopping {
			stopC = nil
		}

		select {
		case out := <-outcomes:
			delete(running, out.taskID)
			s.handleOutcome(out)
		case <-stopC:
			stopping = true
		case <-gctx.Done():
			// Timeout or cancellation. Let in-flight workers finish, record
			// the outcomes they already produced, and report the rest as
			// incomplete without touching terminal state.
			_ = g.Wait()
			for {
				select {
				case out := <-outcomes:
					delete(running, out.taskID)
					s.handleOutcome(out)
					continue
				default:
				}
				break
			}
			counts := s.graph.Counts()
			return fmt.Errorf("run aborted with %d task(s) incomplete: %w",
				counts.Total()-counts.Terminal(), ctx.Err())
		}
	}
}

// dispatch marks ready tasks running and hands them to the worker pool, as
// many as capacity allows. Runs on the control goroutine.
func (s *Scheduler) dispatch(ctx context.Context, g *errgroup.Group, running map[string]struct{}, outcomes chan<- outcome) {
	for _, task := range s.graph.ReadyTasks() {
		if len(running) >= s.cfg.MaxWorkers {
			return
		}
		if _, active := running[task.ID]; active {
			continue
		}
		if err := s.graph.MarkRunning(task.ID); err != nil {
			log.Printf("WARNING: failed to mark task %q running: %v", task.ID, err)
			continue
		}
		running[task.ID] = struct{}{}

		if s.cfg.Hooks.OnTaskStart != nil {
			s.cfg.Hooks.OnTaskStart(task)
		}

		id := task.ID
		// len(running) < MaxWorkers bounds active workers, so Go never
		// blocks here; the errgroup limit is a backstop.
		g.Go(func() error {
			outcomes <- s.execute(ctx, id)
			return nil
		})
	}
}

// execute runs one task body on a worker and converts its return into a
// tagged outcome. A propagated Suspend becomes a blocked outcome; a panic or
// any other error becomes a failure.
func (s *Scheduler) execute(ctx context.Context, taskID string) outcome {
	task, ok := s.graph.Get(taskID)
	if !ok {
		return outcome{taskID: taskID, err: fmt.Errorf("%w: %q", ErrUnknownTask, taskID)}
	}
	if task.Run == nil {
		return outcome{taskID: taskID, err: fmt.Errorf("task %q has no executor", taskID)}
	}

	tc := newTaskContext(taskID, s.graph)
	result, err := func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("executor panicked: %v", r)
			}
		}()
		return task.Run(ctx, tc)
	}()

	if err != nil {
		if susp, isSuspend := AsSuspend(err); isSuspend {
			return outcome{taskID: taskID, blocked: true, waitingOn: susp.DependencyID}
		}
		return outcome{taskID: taskID, err: err}
	}
	return outcome{taskID: taskID, result: result}
}

// handleOutcome applies one worker outcome to the graph and fires the
// matching hook. Runs on the control goroutine.
func (s *Scheduler) handleOutcome(out outcome) {
	switch {
	case out.blocked:
		if err := s.graph.MarkBlocked(out.taskID); err != nil {
			log.Printf("WARNING: failed to park task %q: %v", out.taskID, err)
			return
		}
		if s.cfg.Hooks.OnTaskBlocked != nil {
			if task, ok := s.graph.Get(out.taskID); ok {
				s.cfg.Hooks.OnTaskBlocked(task, out.waitingOn)
			}
		}

	case out.err != nil:
		if err := s.graph.MarkFailed(out.taskID, out.err); err != nil {
			log.Printf("WARNING: failed to mark task %q failed: %v", out.taskID, err)
			return
		}
		s.fireFailed(out.taskID, out.err)
		if s.cfg.CascadeFailures {
			for _, id := range s.graph.FailDependents(out.taskID) {
				if task, ok := s.graph.Get(id); ok {
					s.fireFailed(id, task.Err)
				}
			}
		}

	default:
		// MarkCompleted returns the dependents whose unmet set just became
		// empty; the graph has already reset parked ones to pending, so the
		// next dispatch pass re-enqueues them.
		if _, err := s.graph.MarkCompleted(out.taskID, out.result); err != nil {
			log.Printf("WARNING: failed to mark task %q completed: %v", out.taskID, err)
			return
		}
		if s.cfg.Hooks.OnTaskComplete != nil {
			if task, ok := s.graph.Get(out.taskID); ok {
				s.cfg.Hooks.OnTaskComplete(task)
			}
		}
	}
}

func (s *Scheduler) fireFailed(taskID string, err error) {
	if s.cfg.Hooks.OnTaskFailed == nil {
		return
	}
	if task, ok := s.graph.Get(taskID); ok {
		s.cfg.Hooks.OnTaskFailed(task, err)
	}
}
