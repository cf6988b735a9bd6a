// Package models defines the core domain types for Kestrel.
package models

import "time"

// TaskState represents the current state of a task. Only the orchestrator
// mutates a task's state; pending is the sole initial state and
// completed/failed are the only terminal states.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateThinking  TaskState = "thinking"
	TaskStatePlanning  TaskState = "planning"
	TaskStateExecuting TaskState = "executing"
	TaskStateLearning  TaskState = "learning"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// Task represents one full think/plan/execute/learn run against a target.
// ID, Description, Target and Mode are immutable after creation.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Target      string    `json:"target"`
	Mode        string    `json:"mode"`
	State       TaskState `json:"state"`

	// Thoughts is append-only: one entry per think invocation, including
	// re-thinks during replanning.
	Thoughts []Analysis `json:"thoughts,omitempty"`

	// Plan is nil until planning completes and is replaced wholesale when
	// the task replans mid-flight.
	Plan *Plan `json:"plan,omitempty"`

	// Results is append-only and never truncated for a given task, so a
	// failed task still yields its partial trace.
	Results []StepResult `json:"results,omitempty"`

	Findings        []Finding        `json:"findings,omitempty"`
	Patterns        []string         `json:"patterns,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`

	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Analysis is the output of the think stage.
type Analysis struct {
	TargetAssessment    string   `json:"target_assessment"`
	AttackVectors       []string `json:"attack_vectors"`
	RiskProfile         string   `json:"risk_profile"`
	RecommendedApproach string   `json:"recommended_approach"`
	Confidence          float64  `json:"confidence"`
}

// Plan is an ordered sequence of steps. Step order is execution order;
// already-executed steps are never re-ordered.
type Plan struct {
	Steps []Step `json:"steps"`
}

// EstimatedDuration derives the plan's total step timeout budget.
func (p *Plan) EstimatedDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Steps {
		total += time.Duration(s.TimeoutSeconds) * time.Second
	}
	return total
}

// RiskLevel derives a coarse label from the number of critical steps.
func (p *Plan) RiskLevel() string {
	critical := 0
	for _, s := range p.Steps {
		if s.Critical {
			critical++
		}
	}
	switch {
	case critical == 0:
		return "low"
	case critical == 1:
		return "medium"
	default:
		return "high"
	}
}

// Step is one planned, possibly-retried invocation of a single named tool.
// A critical step that exhausts its retries aborts the whole task.
type Step struct {
	Tool           string         `json:"tool"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Description    string         `json:"description"`
	Critical       bool           `json:"critical"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

// StepResultStatus marks a step result as success or failed.
type StepResultStatus string

const (
	StepSuccess StepResultStatus = "success"
	StepFailed  StepResultStatus = "failed"
)

// StepResult is one per-step outcome appended as execution progresses.
type StepResult struct {
	Step            int              `json:"step"`
	Tool            string           `json:"tool"`
	Status          StepResultStatus `json:"status"`
	Result          map[string]any   `json:"result,omitempty"`
	Error           string           `json:"error,omitempty"`
	Retries         int              `json:"retries,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// Finding is a piece of knowledge extracted from a successful step.
type Finding struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Recommendation is a follow-up action derived from a finding.
type Recommendation struct {
	Action   string `json:"action"`
	Priority string `json:"priority"`
	Source   string `json:"source,omitempty"`
}

// Knowledge is the output of the learn stage.
type Knowledge struct {
	Findings        []Finding        `json:"findings"`
	Patterns        []string         `json:"patterns,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	RiskScore       int              `json:"risk_score"`
}

// TraceEvent is one structured execution event in a request trace. Seq is a
// process-wide monotonically increasing logical timestamp.
type TraceEvent struct {
	Type      string    `json:"type"`
	Tool      string    `json:"tool,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// Trace event statuses written by the retry executor.
const (
	TraceAttempting = "attempting"
	TraceSuccess    = "success"
	TraceFailed     = "failed"
)

// TaskResult is returned to the caller of RunTask on success.
type TaskResult struct {
	TaskID          string           `json:"task_id"`
	Status          TaskState        `json:"status"`
	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations"`
	RiskScore       int              `json:"risk_score"`
	ExecutionTime   time.Duration    `json:"execution_time"`
}

// TaskReport is a point-in-time snapshot of a task for external callers.
// EstimatedDuration and RiskLevel are derived from the current plan and
// stay zero-valued while the task has not planned yet.
type TaskReport struct {
	TaskID            string           `json:"task_id"`
	Description       string           `json:"description"`
	Target            string           `json:"target"`
	Mode              string           `json:"mode"`
	State             TaskState        `json:"state"`
	Duration          time.Duration    `json:"duration"`
	EstimatedDuration time.Duration    `json:"estimated_duration,omitempty"`
	RiskLevel         string           `json:"risk_level,omitempty"`
	Thoughts          int              `json:"thoughts"`
	StepsExecuted     int              `json:"steps_executed"`
	Findings          int              `json:"findings"`
	Recommendations   []Recommendation `json:"recommendations,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// Status is the aggregate counter snapshot for health endpoints.
type Status struct {
	ActiveTasks        int64 `json:"active_tasks"`
	TotalTasks         int64 `json:"total_tasks"`
	TasksCompleted     int64 `json:"tasks_completed"`
	TasksFailed        int64 `json:"tasks_failed"`
	FindingsDiscovered int64 `json:"findings_discovered"`
	ConnectionErrors   int64 `json:"connection_errors"`
	RetryAttempts      int64 `json:"retry_attempts"`
}
