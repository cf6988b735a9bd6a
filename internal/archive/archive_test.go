package archive

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/models"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "kestrel.db"))
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleTask(id string, state models.TaskState) models.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return models.Task{
		ID:          id,
		Description: "scan example.com",
		Target:      "example.com",
		Mode:        "recon",
		State:       state,
		Results: []models.StepResult{
			{Step: 0, Tool: "dns_enum", Status: models.StepSuccess, ExecutionTimeMs: 52},
		},
		Findings: []models.Finding{
			{ID: id + "-f1", Tool: "dns_enum", Data: map[string]any{"records": "A 1.2.3.4"}, Timestamp: now},
		},
		Recommendations: []models.Recommendation{
			{Action: "review dns_enum output for example.com", Priority: "medium"},
		},
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

func TestSaveAndGetTask(t *testing.T) {
	a := newTestArchive(t)

	task := sampleTask("task-1", models.TaskStateCompleted)
	if err := a.SaveTask(task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	got, err := a.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected task, got nil")
	}
	if got.Description != task.Description || got.Target != task.Target || got.Mode != task.Mode {
		t.Errorf("Task fields mismatch: %+v", got)
	}
	if got.State != models.TaskStateCompleted {
		t.Errorf("Expected completed state, got %s", got.State)
	}
	if got.CompletedAt == nil {
		t.Error("Expected completed_at to round-trip")
	}
	if len(got.Results) != 1 || got.Results[0].Tool != "dns_enum" {
		t.Errorf("Results did not round-trip: %+v", got.Results)
	}
	if len(got.Findings) != 1 || got.Findings[0].ID != "task-1-f1" {
		t.Errorf("Findings did not round-trip: %+v", got.Findings)
	}
	if len(got.Recommendations) != 1 {
		t.Errorf("Recommendations did not round-trip: %+v", got.Recommendations)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	a := newTestArchive(t)

	got, err := a.GetTask("missing")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing task, got %+v", got)
	}
}

func TestSaveTaskUpsert(t *testing.T) {
	a := newTestArchive(t)

	task := sampleTask("task-1", models.TaskStateFailed)
	task.Error = "critical step 0 (dns_enum) failed"
	if err := a.SaveTask(task); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	task.State = models.TaskStateCompleted
	task.Error = ""
	if err := a.SaveTask(task); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := a.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.State != models.TaskStateCompleted {
		t.Errorf("Expected upserted state completed, got %s", got.State)
	}

	tasks, err := a.ListTasks("")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task after upsert, got %d", len(tasks))
	}
}

func TestGetTaskCorruptResults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kestrel.db")
	a, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	if err := a.SaveTask(sampleTask("task-1", models.TaskStateCompleted)); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	// Corrupt the stored results column out-of-band.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if _, err := db.Exec(`UPDATE tasks SET results = 'not json' WHERE id = 'task-1'`); err != nil {
		t.Fatalf("Failed to corrupt row: %v", err)
	}
	db.Close()

	if _, err := a.GetTask("task-1"); err == nil {
		t.Error("Expected an error for corrupt results JSON")
	}
}

func TestListTasksByState(t *testing.T) {
	a := newTestArchive(t)

	if err := a.SaveTask(sampleTask("task-a", models.TaskStateCompleted)); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	failed := sampleTask("task-b", models.TaskStateFailed)
	failed.Error = "tool dns_enum failed after 4 attempts"
	if err := a.SaveTask(failed); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	all, err := a.ListTasks("")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(all))
	}

	completed, err := a.ListTasks("completed")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "task-a" {
		t.Errorf("Expected only task-a, got %+v", completed)
	}

	failedList, err := a.ListTasks("failed")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(failedList) != 1 || failedList[0].Error == "" {
		t.Errorf("Expected failed task with error, got %+v", failedList)
	}
}
