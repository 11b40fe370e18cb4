package events

import (
	"errors"
	"testing"
	"time"

	"github.com/taskmill/taskmill/internal/scheduler"
)

func drain(sub <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-sub:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSchedulerHooksPublishLifecycle(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskSub := bus.Subscribe(TopicTask, 16)
	progressSub := bus.Subscribe(TopicScheduler, 16)

	hooks := SchedulerHooks(bus, func() scheduler.Counts {
		return scheduler.Counts{Running: 1, Completed: 2}
	})

	started := time.Now().Add(-time.Second)
	completed := time.Now()
	task := &scheduler.Task{
		ID:          "t1",
		Description: "demo",
		Result:      "all good",
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	hooks.OnTaskStart(task)
	hooks.OnTaskBlocked(task, "dep")
	hooks.OnTaskComplete(task)
	hooks.OnTaskFailed(task, errors.New("boom"))

	taskEvents := drain(taskSub)
	if len(taskEvents) != 4 {
		t.Fatalf("expected 4 task events, got %d", len(taskEvents))
	}

	startEv, ok := taskEvents[0].(TaskStartedEvent)
	if !ok || startEv.Description != "demo" {
		t.Errorf("unexpected first event: %#v", taskEvents[0])
	}
	blockedEv, ok := taskEvents[1].(TaskBlockedEvent)
	if !ok || blockedEv.WaitingOn != "dep" {
		t.Errorf("unexpected second event: %#v", taskEvents[1])
	}
	completeEv, ok := taskEvents[2].(TaskCompletedEvent)
	if !ok || completeEv.Result != "all good" {
		t.Errorf("unexpected third event: %#v", taskEvents[2])
	}
	if completeEv.Duration <= 0 {
		t.Errorf("expected a positive duration, got %v", completeEv.Duration)
	}
	failedEv, ok := taskEvents[3].(TaskFailedEvent)
	if !ok || failedEv.Err == nil {
		t.Errorf("unexpected fourth event: %#v", taskEvents[3])
	}

	// Every lifecycle notification carries a progress snapshot.
	progressEvents := drain(progressSub)
	if len(progressEvents) != 4 {
		t.Fatalf("expected 4 progress events, got %d", len(progressEvents))
	}
	prog, ok := progressEvents[0].(SchedulerProgressEvent)
	if !ok {
		t.Fatalf("unexpected progress event: %#v", progressEvents[0])
	}
	if prog.Total != 3 || prog.Running != 1 || prog.Completed != 2 {
		t.Errorf("unexpected counts in progress event: %+v", prog)
	}
}
