// Package taskstore is the in-memory single point of task lifecycle truth.
package taskstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsec/kestrel/internal/models"
)

// ErrTaskNotFound indicates a lookup for a nonexistent task id.
var ErrTaskNotFound = errors.New("task not found")

// Store owns every task for its lifetime. The orchestrator mutates tasks
// only through Update so snapshots taken by concurrent readers are always
// consistent.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	order []string
}

// New creates an empty task store.
func New() *Store {
	return &Store{tasks: make(map[string]*models.Task)}
}

// Create inserts a new pending task and returns its snapshot.
func (s *Store) Create(description, target, mode string) models.Task {
	task := &models.Task{
		ID:          uuid.New().String(),
		Description: description,
		Target:      target,
		Mode:        mode,
		State:       models.TaskStatePending,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	s.mu.Unlock()

	return snapshot(task)
}

// Update applies fn to the task under the store lock.
func (s *Store) Update(id string, fn func(*models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	fn(task)
	return nil
}

// Snapshot returns a copy of the task, or false for an unknown id.
func (s *Store) Snapshot(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return snapshot(task), true
}

// List returns snapshots of all tasks in creation order.
func (s *Store) List() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshot(s.tasks[id]))
	}
	return out
}

// Count returns the number of stored tasks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// snapshot copies a task, including its slices, so callers can read it
// without holding the store lock.
func snapshot(t *models.Task) models.Task {
	c := *t

	if t.Thoughts != nil {
		c.Thoughts = append([]models.Analysis(nil), t.Thoughts...)
	}
	if t.Results != nil {
		c.Results = append([]models.StepResult(nil), t.Results...)
	}
	if t.Findings != nil {
		c.Findings = append([]models.Finding(nil), t.Findings...)
	}
	if t.Patterns != nil {
		c.Patterns = append([]string(nil), t.Patterns...)
	}
	if t.Recommendations != nil {
		c.Recommendations = append([]models.Recommendation(nil), t.Recommendations...)
	}
	if t.Plan != nil {
		plan := models.Plan{Steps: append([]models.Step(nil), t.Plan.Steps...)}
		c.Plan = &plan
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		c.CompletedAt = &done
	}
	return c
}
