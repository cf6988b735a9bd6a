package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors for task submission.
var (
	ErrDescriptionRequired = errors.New("task description is required")
	ErrTargetRequired      = errors.New("task target is required")
)

// TaskFailedError wraps a stage error with the failed task's id so callers
// can still fetch the partial report.
type TaskFailedError struct {
	TaskID string
	Err    error
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *TaskFailedError) Unwrap() error {
	return e.Err
}

// CriticalStepError aborts the entire task: a step marked critical
// exhausted its retries, so no further steps run.
type CriticalStepError struct {
	Step int
	Tool string
	Err  error
}

func (e *CriticalStepError) Error() string {
	return fmt.Sprintf("critical step %d (%s) failed: %v", e.Step, e.Tool, e.Err)
}

func (e *CriticalStepError) Unwrap() error {
	return e.Err
}
