// Package metrics tracks per-tool effectiveness and process-wide counters.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kestrelsec/kestrel/internal/models"
)

// Effectiveness is the running statistics record for one tool.
type Effectiveness struct {
	Tool         string  `json:"tool"`
	Runs         int64   `json:"runs"`
	Successes    int64   `json:"successes"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Collector maintains running per-tool statistics. Updates are serialized
// under a single lock so the incremental running mean stays exact under
// concurrent task execution.
type Collector struct {
	mu    sync.Mutex
	tools map[string]*Effectiveness
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{tools: make(map[string]*Effectiveness)}
}

// Update records one tool attempt outcome.
func (c *Collector) Update(tool string, latencyMs int64, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.tools[tool]
	if !ok {
		rec = &Effectiveness{Tool: tool}
		c.tools[tool] = rec
	}

	rec.Runs++
	if success {
		rec.Successes++
	}
	// Incremental running mean: avg' = (avg*(runs-1) + x) / runs.
	rec.AvgLatencyMs = (rec.AvgLatencyMs*float64(rec.Runs-1) + float64(latencyMs)) / float64(rec.Runs)
}

// Get returns a copy of one tool's record.
func (c *Collector) Get(tool string) (Effectiveness, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.tools[tool]
	if !ok {
		return Effectiveness{}, false
	}
	return *rec, true
}

// Summary returns all tool records sorted by tool name.
func (c *Collector) Summary() []Effectiveness {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Effectiveness, 0, len(c.tools))
	for _, rec := range c.tools {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tool < out[j].Tool
	})
	return out
}

// Counters holds the process-wide aggregate counters exposed by the status
// endpoint. All fields are updated atomically.
type Counters struct {
	TasksTotal         atomic.Int64
	TasksCompleted     atomic.Int64
	TasksFailed        atomic.Int64
	ActiveTasks        atomic.Int64
	FindingsDiscovered atomic.Int64
	ConnectionErrors   atomic.Int64
	RetryAttempts      atomic.Int64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() models.Status {
	return models.Status{
		ActiveTasks:        c.ActiveTasks.Load(),
		TotalTasks:         c.TasksTotal.Load(),
		TasksCompleted:     c.TasksCompleted.Load(),
		TasksFailed:        c.TasksFailed.Load(),
		FindingsDiscovered: c.FindingsDiscovered.Load(),
		ConnectionErrors:   c.ConnectionErrors.Load(),
		RetryAttempts:      c.RetryAttempts.Load(),
	}
}
