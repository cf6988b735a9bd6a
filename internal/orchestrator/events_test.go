package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/kestrelsec/kestrel/internal/trace"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub(&trace.Clock{})

	ch, unsubscribe := hub.Subscribe("task-1")
	defer unsubscribe()

	hub.Publish("task-1", "task_state", map[string]any{"state": "thinking"})
	hub.Publish("task-2", "task_state", map[string]any{"state": "thinking"}) // different task

	select {
	case data := <-ch:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("Failed to decode event: %v", err)
		}
		if ev.Type != "task_state" || ev.TaskID != "task-1" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	default:
		t.Fatal("Expected an event on the subscription")
	}

	select {
	case data := <-ch:
		t.Fatalf("Received event for another task: %s", data)
	default:
	}
}

func TestHubSeqIncreases(t *testing.T) {
	hub := NewHub(&trace.Clock{})
	ch, unsubscribe := hub.Subscribe("task-1")
	defer unsubscribe()

	hub.Publish("task-1", "task_state", nil)
	hub.Publish("task-1", "task_state", nil)

	var first, second Event
	json.Unmarshal(<-ch, &first)
	json.Unmarshal(<-ch, &second)
	if second.Seq <= first.Seq {
		t.Errorf("Expected increasing seq, got %d then %d", first.Seq, second.Seq)
	}
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(&trace.Clock{})
	ch, unsubscribe := hub.Subscribe("task-1")
	defer unsubscribe()

	// Overflow the buffered channel; Publish must not block.
	for i := 0; i < 100; i++ {
		hub.Publish("task-1", "task_state", nil)
	}

	if got := len(ch); got != cap(ch) {
		t.Errorf("Expected channel full at %d events, got %d", cap(ch), got)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(&trace.Clock{})
	ch, unsubscribe := hub.Subscribe("task-1")
	unsubscribe()

	hub.Publish("task-1", "task_state", nil)

	if _, ok := <-ch; ok {
		t.Error("Expected closed channel after unsubscribe")
	}
}
