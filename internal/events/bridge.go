package events

import (
	"time"

	"github.com/taskmill/taskmill/internal/scheduler"
)

// SchedulerHooks returns lifecycle hooks that republish scheduler
// notifications onto the bus, so dashboards and log sinks subscribe instead
// of polling internal structures. status supplies the count snapshot attached
// to every progress event; it is typically Scheduler.Status.
func SchedulerHooks(bus *EventBus, status func() scheduler.Counts) scheduler.Hooks {
	progress := func() {
		c := status()
		bus.Publish(TopicScheduler, SchedulerProgressEvent{
			Total:     c.Total(),
			Pending:   c.Pending,
			Ready:     c.Ready,
			Running:   c.Running,
			Blocked:   c.Blocked,
			Completed: c.Completed,
			Failed:    c.Failed,
			Timestamp: time.Now(),
		})
	}

	return scheduler.Hooks{
		OnTaskStart: func(t *scheduler.Task) {
			bus.Publish(TopicTask, TaskStartedEvent{
				ID:          t.ID,
				Description: t.Description,
				Timestamp:   time.Now(),
			})
			progress()
		},
		OnTaskBlocked: func(t *scheduler.Task, waitingOn string) {
			bus.Publish(TopicTask, TaskBlockedEvent{
				ID:        t.ID,
				WaitingOn: waitingOn,
				Timestamp: time.Now(),
			})
			progress()
		},
		OnTaskComplete: func(t *scheduler.Task) {
			bus.Publish(TopicTask, TaskCompletedEvent{
				ID:        t.ID,
				Result:    resultString(t),
				Duration:  taskDuration(t),
				Timestamp: time.Now(),
			})
			progress()
		},
		OnTaskFailed: func(t *scheduler.Task, err error) {
			bus.Publish(TopicTask, TaskFailedEvent{
				ID:        t.ID,
				Err:       err,
				Duration:  taskDuration(t),
				Timestamp: time.Now(),
			})
			progress()
		},
	}
}

func resultString(t *scheduler.Task) string {
	if s, ok := t.Result.(string); ok {
		return s
	}
	return ""
}

func taskDuration(t *scheduler.Task) time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
