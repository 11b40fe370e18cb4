package events

import (
	"testing"
	"time"
)

func TestSubscribeReceivesTopicEvents(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.Subscribe(TopicTask, 8)
	bus.Publish(TopicTask, TaskStartedEvent{ID: "a", Timestamp: time.Now()})

	select {
	case ev := <-sub:
		if ev.EventType() != EventTypeTaskStarted {
			t.Errorf("expected %s, got %s", EventTypeTaskStarted, ev.EventType())
		}
		if ev.TaskID() != "a" {
			t.Errorf("expected task id a, got %s", ev.TaskID())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeIsTopicScoped(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.Subscribe(TopicScheduler, 8)
	bus.Publish(TopicTask, TaskStartedEvent{ID: "a"})

	select {
	case ev := <-sub:
		t.Errorf("subscriber received event from another topic: %v", ev)
	default:
	}
}

func TestSubscribeAllReceivesEveryTopic(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.SubscribeAll(8)
	bus.Publish(TopicTask, TaskCompletedEvent{ID: "a"})
	bus.Publish(TopicScheduler, SchedulerProgressEvent{Total: 1})

	got := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			got[ev.EventType()] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if !got[EventTypeTaskCompleted] || !got[EventTypeSchedulerProgress] {
		t.Errorf("expected events from both topics, got %v", got)
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	_ = bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(TopicTask, TaskStartedEvent{ID: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestCloseIsIdempotentAndClosesSubscribers(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe(TopicTask, 1)
	all := bus.SubscribeAll(1)

	bus.Close()
	bus.Close()

	if _, ok := <-sub; ok {
		t.Error("topic subscriber channel should be closed")
	}
	if _, ok := <-all; ok {
		t.Error("SubscribeAll channel should be closed")
	}

	// Publishing and subscribing after close must be safe.
	bus.Publish(TopicTask, TaskStartedEvent{ID: "late"})
	late := bus.Subscribe(TopicTask, 1)
	if _, ok := <-late; ok {
		t.Error("subscription on a closed bus should yield a closed channel")
	}
}
