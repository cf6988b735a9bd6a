package orchestrator

import (
	"time"

	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/models"
	"github.com/kestrelsec/kestrel/internal/taskstore"
)

// Report returns a point-in-time snapshot of a task for external callers.
func (o *Orchestrator) Report(taskID string) (models.TaskReport, error) {
	snap, ok := o.store.Snapshot(taskID)
	if !ok {
		return models.TaskReport{}, taskstore.ErrTaskNotFound
	}

	duration := time.Since(snap.CreatedAt)
	if snap.CompletedAt != nil {
		duration = snap.CompletedAt.Sub(snap.CreatedAt)
	}

	report := models.TaskReport{
		TaskID:          snap.ID,
		Description:     snap.Description,
		Target:          snap.Target,
		Mode:            snap.Mode,
		State:           snap.State,
		Duration:        duration,
		Thoughts:        len(snap.Thoughts),
		StepsExecuted:   len(snap.Results),
		Findings:        len(snap.Findings),
		Recommendations: snap.Recommendations,
		Error:           snap.Error,
	}
	if snap.Plan != nil {
		report.EstimatedDuration = snap.Plan.EstimatedDuration()
		report.RiskLevel = snap.Plan.RiskLevel()
	}
	return report, nil
}

// Reports returns snapshots for every stored task, in creation order.
func (o *Orchestrator) Reports() []models.TaskReport {
	tasks := o.store.List()
	out := make([]models.TaskReport, 0, len(tasks))
	for _, t := range tasks {
		report, err := o.Report(t.ID)
		if err != nil {
			continue
		}
		out = append(out, report)
	}
	return out
}

// Status returns the aggregate counters for health endpoints.
func (o *Orchestrator) Status() models.Status {
	return o.counters.Snapshot()
}

// ToolEffectiveness returns the running per-tool statistics.
func (o *Orchestrator) ToolEffectiveness() []metrics.Effectiveness {
	return o.collector.Summary()
}
