package orchestrator

import (
	"encoding/json"
	"sync"

	"github.com/kestrelsec/kestrel/internal/trace"
)

// Event is a structured observer record. Every orchestrator state
// transition and connection-state announcement produces exactly one event
// with a monotonically increasing logical timestamp.
type Event struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id"`
	Seq     int64  `json:"seq"`
	Payload any    `json:"payload,omitempty"`
}

type subscriber chan []byte

// Hub fans events out to per-task subscribers. Publishing never blocks the
// orchestration flow; slow subscribers drop events.
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]map[subscriber]struct{}
	clock *trace.Clock
}

// NewHub creates an event hub stamping events from the shared clock.
func NewHub(clock *trace.Clock) *Hub {
	return &Hub{
		subs:  make(map[string]map[subscriber]struct{}),
		clock: clock,
	}
}

// Subscribe returns a channel of JSON-encoded events for one task and an
// unsubscribe func the caller must invoke when done.
func (h *Hub) Subscribe(taskID string) (<-chan []byte, func()) {
	ch := make(subscriber, 16)

	h.mu.Lock()
	set := h.subs[taskID]
	if set == nil {
		set = make(map[subscriber]struct{})
		h.subs[taskID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if set, ok := h.subs[taskID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, taskID)
			}
		}
		close(ch)
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish stamps and delivers an event to the task's subscribers.
func (h *Hub) Publish(taskID, eventType string, payload any) {
	ev := Event{
		Type:    eventType,
		TaskID:  taskID,
		Seq:     h.clock.Next(),
		Payload: payload,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[taskID] {
		select {
		case ch <- data:
		default:
		}
	}
}
