package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask      = "task"
	TopicScheduler = "scheduler"
)

// Event type constants
const (
	EventTypeTaskStarted       = "task.started"
	EventTypeTaskBlocked       = "task.blocked"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskFailed        = "task.failed"
	EventTypeSchedulerProgress = "scheduler.progress"
)

// TaskStartedEvent is published when a task is dispatched to a worker.
type TaskStartedEvent struct {
	ID          string
	Description string
	Timestamp   time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published when a task suspends itself waiting on
// another task's result.
type TaskBlockedEvent struct {
	ID        string
	WaitingOn string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// SchedulerProgressEvent is published whenever any task changes state,
// carrying a consistent snapshot of the state counts.
type SchedulerProgressEvent struct {
	Total     int
	Pending   int
	Ready     int
	Running   int
	Blocked   int
	Completed int
	Failed    int
	Timestamp time.Time
}

func (e SchedulerProgressEvent) EventType() string { return EventTypeSchedulerProgress }
func (e SchedulerProgressEvent) TaskID() string    { return "" }
