// Package trace provides the bounded, append-only request trace log.
package trace

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelsec/kestrel/internal/models"
)

// Clock issues process-wide monotonically increasing logical timestamps.
// Every state transition and retry attempt carries exactly one sequence
// number, shared across the tracer and the event hub.
type Clock struct {
	n atomic.Int64
}

// Next returns the next logical timestamp.
func (c *Clock) Next() int64 {
	return c.n.Add(1)
}

// Tracer is an append-only, capacity-bounded log of execution events keyed
// by request identifier. When the number of tracked requests exceeds the
// bound, the oldest request is evicted wholesale (insertion order); events
// appended to a live request never evict other events.
type Tracer struct {
	mu          sync.Mutex
	maxRequests int
	clock       *Clock
	events      map[string][]models.TraceEvent
	order       []string
}

// NewTracer creates a tracer bounded to maxRequests tracked requests.
func NewTracer(maxRequests int, clock *Clock) *Tracer {
	return &Tracer{
		maxRequests: maxRequests,
		clock:       clock,
		events:      make(map[string][]models.TraceEvent),
	}
}

// Log appends an event to the trace for requestID, stamping the wall
// timestamp and logical sequence number at write time.
func (t *Tracer) Log(requestID string, ev models.TraceEvent) {
	ev.Timestamp = time.Now().UTC()
	ev.Seq = t.clock.Next()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.events[requestID]; !ok {
		t.order = append(t.order, requestID)
	}
	t.events[requestID] = append(t.events[requestID], ev)

	// Request-level FIFO eviction: the newest request is always retained.
	for len(t.order) > t.maxRequests {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.events, oldest)
	}
}

// Get returns the event sequence for a request. The second return is false
// for unknown or evicted identifiers; that is not an error.
func (t *Tracer) Get(requestID string) ([]models.TraceEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	evs, ok := t.events[requestID]
	if !ok {
		return nil, false
	}
	out := make([]models.TraceEvent, len(evs))
	copy(out, evs)
	return out, true
}

// RequestCount returns the number of currently tracked requests.
func (t *Tracer) RequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
