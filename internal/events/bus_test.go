package events

import (
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic topic delivery.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskStartedEvent{
		ID:        "analyze",
		AgentName: "mod_analyzer",
		AgentType: "analysis",
		Attempt:   1,
		Timestamp: time.Now(),
	})

	select {
	case got := <-ch:
		if got.TaskID() != "analyze" {
			t.Errorf("TaskID() = %q, want %q", got.TaskID(), "analyze")
		}
		if got.EventType() != EventTypeTaskStarted {
			t.Errorf("EventType() = %q, want %q", got.EventType(), EventTypeTaskStarted)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestTopicIsolation verifies a subscriber only sees its own topic.
func TestTopicIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	bus.Publish(TopicGraph, GraphProgressEvent{Total: 6, Timestamp: time.Now()})

	select {
	case ev := <-taskCh:
		t.Errorf("task subscriber received %q from graph topic", ev.EventType())
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSubscribeAll verifies cross-topic delivery.
func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)
	bus.Publish(TopicTask, TaskFailedEvent{ID: "plan", Err: "boom", Timestamp: time.Now()})
	bus.Publish(TopicGraph, GraphProgressEvent{Total: 6, Failed: 1, Timestamp: time.Now()})

	types := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-all:
			types[ev.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for events")
		}
	}
	if !types[EventTypeTaskFailed] || !types[EventTypeGraphProgress] {
		t.Errorf("SubscribeAll received %v, want both topics", types)
	}
}

// TestMultipleSubscribers verifies fan-out to every subscriber.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskCompletedEvent{ID: "translate", Timestamp: time.Now()})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.TaskID() != "translate" {
				t.Errorf("subscriber %d: TaskID() = %q", i+1, got.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout", i+1)
		}
	}
}

// TestFullBufferDrops verifies publish never blocks on a saturated channel.
func TestFullBufferDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)
	bus.Publish(TopicTask, TaskStartedEvent{ID: "one", Timestamp: time.Now()})

	done := make(chan struct{})
	go func() {
		bus.Publish(TopicTask, TaskStartedEvent{ID: "two", Timestamp: time.Now()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	if got := <-ch; got.TaskID() != "one" {
		t.Errorf("buffered event = %q, want the first one", got.TaskID())
	}
}

// TestCloseSemantics verifies idempotent close and closed-channel delivery.
func TestCloseSemantics(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 10)

	bus.Close()
	bus.Close() // second close must not panic

	if _, open := <-ch; open {
		t.Error("subscriber channel still open after Close")
	}

	// Publishing and subscribing after close are safe no-ops.
	bus.Publish(TopicTask, TaskStartedEvent{ID: "late", Timestamp: time.Now()})
	late := bus.Subscribe(TopicTask, 10)
	if _, open := <-late; open {
		t.Error("subscription after Close returned an open channel")
	}
}
