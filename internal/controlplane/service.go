// Package controlplane provides the HTTP API and service layer for Kestrel.
package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/models"
	"github.com/kestrelsec/kestrel/internal/orchestrator"
	"github.com/kestrelsec/kestrel/internal/taskstore"
)

// Service exposes the orchestrator to inbound callers.
type Service struct {
	orch *orchestrator.Orchestrator
}

// NewService creates a control plane service.
func NewService(orch *orchestrator.Orchestrator) *Service {
	return &Service{orch: orch}
}

// Run drives one task to a terminal state and returns the result. Task
// failures come back as errors; the partial report stays retrievable via
// the task id carried on the error.
func (s *Service) Run(ctx context.Context, req orchestrator.TaskRequest) (*models.TaskResult, error) {
	return s.orch.RunTask(ctx, req)
}

// Report returns a task snapshot.
func (s *Service) Report(taskID string) (models.TaskReport, error) {
	report, err := s.orch.Report(taskID)
	if errors.Is(err, taskstore.ErrTaskNotFound) {
		return models.TaskReport{}, ErrTaskNotFound
	}
	return report, err
}

// Reports returns snapshots for all tasks.
func (s *Service) Reports() []models.TaskReport {
	return s.orch.Reports()
}

// StepTrace returns the trace events for one step of a task.
func (s *Service) StepTrace(taskID string, step int) ([]models.TraceEvent, error) {
	requestID := fmt.Sprintf("%s:step-%d", taskID, step)
	events, ok := s.orch.Tracer().Get(requestID)
	if !ok {
		return nil, ErrTraceNotFound
	}
	return events, nil
}

// Status returns the aggregate counters.
func (s *Service) Status() models.Status {
	return s.orch.Status()
}

// Effectiveness returns the per-tool running statistics.
func (s *Service) Effectiveness() []metrics.Effectiveness {
	return s.orch.ToolEffectiveness()
}

// Subscribe returns a task's event stream.
func (s *Service) Subscribe(taskID string) (<-chan []byte, func()) {
	return s.orch.Subscribe(taskID)
}
