// Package orchestrator drives tasks through the think/plan/execute/learn
// life-cycle with bounded retries and adaptive mid-flight replanning.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/models"
	"github.com/kestrelsec/kestrel/internal/modes"
	"github.com/kestrelsec/kestrel/internal/retry"
	"github.com/kestrelsec/kestrel/internal/taskstore"
	"github.com/kestrelsec/kestrel/internal/tools"
	"github.com/kestrelsec/kestrel/internal/trace"
)

// Archiver receives terminal task snapshots. Persistence lives outside the
// core; the daemon wires a SQLite archive, tests wire nothing.
type Archiver interface {
	SaveTask(task models.Task) error
}

// TaskRequest is the caller-supplied input to RunTask.
type TaskRequest struct {
	Description string
	Target      string
	Mode        string
	// Params is merged into every planned step's parameters.
	Params map[string]any
}

// Orchestrator owns the task state machine. It consumes the tool registry
// through the retry executor and writes to the task store, tracer and
// metrics. All collaborators are constructed here from the injected
// registry and config so a test can run the whole pipeline with fake tools.
type Orchestrator struct {
	cfg       *config.Config
	store     *taskstore.Store
	registry  *tools.Registry
	executor  *retry.Executor
	clock     *trace.Clock
	tracer    *trace.Tracer
	collector *metrics.Collector
	counters  *metrics.Counters
	modes     *modes.Table
	memory    *Memory
	hub       *Hub
	archive   Archiver
}

// New creates an orchestrator around an explicitly constructed registry.
func New(registry *tools.Registry, cfg *config.Config) *Orchestrator {
	clock := &trace.Clock{}
	tracer := trace.NewTracer(cfg.Trace.MaxRequests, clock)
	counters := &metrics.Counters{}

	return &Orchestrator{
		cfg:       cfg,
		store:     taskstore.New(),
		registry:  registry,
		executor:  retry.NewExecutor(registry, tracer, counters, cfg.Retry),
		clock:     clock,
		tracer:    tracer,
		collector: metrics.NewCollector(),
		counters:  counters,
		modes:     modes.NewTable(),
		memory:    NewMemory(cfg.Memory.MaxFindings, cfg.Memory.MaxLessons),
		hub:       NewHub(clock),
	}
}

// SetArchive wires the terminal-task sink.
func (o *Orchestrator) SetArchive(a Archiver) {
	o.archive = a
}

// Store exposes the task store for read-side collaborators.
func (o *Orchestrator) Store() *taskstore.Store { return o.store }

// Tracer exposes the request tracer for read-side collaborators.
func (o *Orchestrator) Tracer() *trace.Tracer { return o.tracer }

// Metrics exposes the per-tool effectiveness collector.
func (o *Orchestrator) Metrics() *metrics.Collector { return o.collector }

// Memory exposes the rolling knowledge memory.
func (o *Orchestrator) Memory() *Memory { return o.memory }

// Subscribe returns the task's event stream from the hub.
func (o *Orchestrator) Subscribe(taskID string) (<-chan []byte, func()) {
	return o.hub.Subscribe(taskID)
}

// RunTask creates a task and drives it through think, plan, execute and
// learn. On success the task reaches completed; any stage error moves the
// task to failed, is recorded on it, and propagates to the caller. The ctx
// is checked between steps, so cancelling it aborts the task.
func (o *Orchestrator) RunTask(ctx context.Context, req TaskRequest) (*models.TaskResult, error) {
	if req.Description == "" {
		return nil, ErrDescriptionRequired
	}
	if req.Target == "" {
		return nil, ErrTargetRequired
	}
	mode := req.Mode
	if !o.modes.Recognized(mode) {
		mode = o.modes.Default()
	}

	task := o.store.Create(req.Description, req.Target, mode)
	o.counters.TasksTotal.Add(1)
	o.counters.ActiveTasks.Add(1)
	defer o.counters.ActiveTasks.Add(-1)

	log.Printf("task %s created: %q target=%s mode=%s", task.ID, req.Description, req.Target, mode)
	start := time.Now()

	knowledge, err := o.runStages(ctx, task.ID, req)
	if err != nil {
		o.fail(task.ID, err)
		return nil, &TaskFailedError{TaskID: task.ID, Err: err}
	}

	o.complete(task.ID)
	return &models.TaskResult{
		TaskID:          task.ID,
		Status:          models.TaskStateCompleted,
		Findings:        knowledge.Findings,
		Recommendations: knowledge.Recommendations,
		RiskScore:       knowledge.RiskScore,
		ExecutionTime:   time.Since(start),
	}, nil
}

func (o *Orchestrator) runStages(ctx context.Context, taskID string, req TaskRequest) (*models.Knowledge, error) {
	analysis, err := o.think(taskID)
	if err != nil {
		return nil, err
	}
	if err := o.plan(taskID, analysis, req.Params); err != nil {
		return nil, err
	}
	if err := o.execute(ctx, taskID, req.Params); err != nil {
		return nil, err
	}
	return o.learn(taskID)
}

// think transitions the task to thinking and appends a deterministic
// analysis of the target. Real reasoning is an external collaborator; this
// core derives the analysis from the mode table alone.
func (o *Orchestrator) think(taskID string) (models.Analysis, error) {
	if err := o.setState(taskID, models.TaskStateThinking); err != nil {
		return models.Analysis{}, err
	}

	var analysis models.Analysis
	err := o.store.Update(taskID, func(t *models.Task) {
		analysis = o.analyze(t.Target, t.Mode)
		t.Thoughts = append(t.Thoughts, analysis)
	})
	return analysis, err
}

func (o *Orchestrator) analyze(target, mode string) models.Analysis {
	vectors := o.modes.Vectors(mode)
	names := make([]string, len(vectors))
	for i, v := range vectors {
		names[i] = v.Name
	}

	risk := "standard"
	if mode == "audit" || mode == "hardening" {
		risk = "defensive"
	}
	return models.Analysis{
		TargetAssessment:    fmt.Sprintf("%s assessed for %s", target, mode),
		AttackVectors:       names,
		RiskProfile:         risk,
		RecommendedApproach: fmt.Sprintf("sequential %s sweep across %d vectors", mode, len(vectors)),
		Confidence:          0.7,
	}
}

// plan transitions the task to planning and converts the analysis vectors
// into an ordered step list. Only the first step is critical: it is the
// go/no-go gate, since nothing downstream matters if the primary tool is
// unreachable.
func (o *Orchestrator) plan(taskID string, analysis models.Analysis, params map[string]any) error {
	if err := o.setState(taskID, models.TaskStatePlanning); err != nil {
		return err
	}
	return o.store.Update(taskID, func(t *models.Task) {
		plan := o.buildPlan(t.Target, t.Mode, params)
		t.Plan = &plan
	})
}

func (o *Orchestrator) buildPlan(target, mode string, params map[string]any) models.Plan {
	vectors := o.modes.Vectors(mode)
	steps := make([]models.Step, len(vectors))
	for i, v := range vectors {
		stepParams := map[string]any{"target": target, "vector": v.Name}
		for k, val := range params {
			stepParams[k] = val
		}
		steps[i] = models.Step{
			Tool:           v.Tool,
			Parameters:     stepParams,
			Description:    v.Summary,
			Critical:       i == 0,
			TimeoutSeconds: v.TimeoutSeconds,
		}
	}
	return models.Plan{Steps: steps}
}

// execute iterates the plan's steps sequentially by index: a step never
// starts before the previous one's retry sequence has fully resolved.
// After every successful step the replanning predicate may splice out and
// regenerate everything after the current index.
func (o *Orchestrator) execute(ctx context.Context, taskID string, params map[string]any) error {
	if err := o.setState(taskID, models.TaskStateExecuting); err != nil {
		return err
	}
	o.hub.Publish(taskID, "connection_state", map[string]any{"state": "executing"})

	for i := 0; ; i++ {
		snap, ok := o.store.Snapshot(taskID)
		if !ok {
			return taskstore.ErrTaskNotFound
		}
		if snap.Plan == nil || i >= len(snap.Plan.Steps) {
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("task cancelled before step %d: %w", i, err)
		}

		step := snap.Plan.Steps[i]
		requestID := fmt.Sprintf("%s:step-%d", taskID, i)
		stepStart := time.Now()

		result, err := o.executor.ExecuteWithRetry(ctx, step, requestID)
		elapsedMs := time.Since(stepStart).Milliseconds()

		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("task cancelled during step %d: %w", i, ctx.Err())
			}
			if stepErr := o.recordFailure(taskID, i, step, err); stepErr != nil {
				return stepErr
			}
			continue
		}

		o.collector.Update(step.Tool, elapsedMs, true)
		o.store.Update(taskID, func(t *models.Task) {
			t.Results = append(t.Results, models.StepResult{
				Step:            i,
				Tool:            step.Tool,
				Status:          models.StepSuccess,
				Result:          result,
				ExecutionTimeMs: elapsedMs,
			})
		})

		if shouldReplan(result) {
			log.Printf("task %s: step %d (%s) signalled adaptation, replanning", taskID, i, step.Tool)
			if err := o.replan(taskID, i, params); err != nil {
				return err
			}
		}
	}

	o.hub.Publish(taskID, "connection_state", map[string]any{"state": "completed"})
	return nil
}

// recordFailure books a failed step and applies the critical policy. The
// returned error is non-nil only when the whole task must abort.
func (o *Orchestrator) recordFailure(taskID string, index int, step models.Step, err error) error {
	retries := o.cfg.Retry.MaxRetries
	if errors.Is(err, retry.ErrToolNotFound) {
		retries = 0
	}

	o.collector.Update(step.Tool, 0, false)
	o.counters.ConnectionErrors.Add(1)
	o.store.Update(taskID, func(t *models.Task) {
		t.Results = append(t.Results, models.StepResult{
			Step:    index,
			Tool:    step.Tool,
			Status:  models.StepFailed,
			Error:   err.Error(),
			Retries: retries,
		})
	})
	o.hub.Publish(taskID, "connection_state", map[string]any{"state": "error", "step": index})

	if step.Critical {
		return &CriticalStepError{Step: index, Tool: step.Tool, Err: err}
	}
	log.Printf("task %s: non-critical step %d (%s) failed, continuing: %v", taskID, index, step.Tool, err)
	return nil
}

// shouldReplan is the extension point for adaptive replanning: a tool
// signals it by setting one of the two flags on its result.
func shouldReplan(result map[string]any) bool {
	for _, flag := range []string{"unexpected", "requires_adaptation"} {
		if v, ok := result[flag].(bool); ok && v {
			return true
		}
	}
	return false
}

// replan re-thinks the task and splices the plan: everything through index
// is preserved untouched, everything after it is replaced wholesale by the
// newly generated steps. The externally visible state stays executing.
// Replanned steps get the caller params with the adaptation flags stripped,
// so a flag arriving via params triggers at most one replan per task
// instead of re-echoing through every fresh step.
func (o *Orchestrator) replan(taskID string, index int, params map[string]any) error {
	return o.store.Update(taskID, func(t *models.Task) {
		analysis := o.analyze(t.Target, t.Mode)
		t.Thoughts = append(t.Thoughts, analysis)

		fresh := o.buildPlan(t.Target, t.Mode, stripReplanFlags(params))
		executed := append([]models.Step(nil), t.Plan.Steps[:index+1]...)
		t.Plan = &models.Plan{Steps: append(executed, fresh.Steps...)}
	})
}

// stripReplanFlags drops the replanning signal flags from caller params.
func stripReplanFlags(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "unexpected" || k == "requires_adaptation" {
			continue
		}
		out[k] = v
	}
	return out
}

// learn transitions the task to learning, extracts findings from the
// successful results and folds them into the rolling memory.
func (o *Orchestrator) learn(taskID string) (*models.Knowledge, error) {
	if err := o.setState(taskID, models.TaskStateLearning); err != nil {
		return nil, err
	}

	var knowledge models.Knowledge
	err := o.store.Update(taskID, func(t *models.Task) {
		now := time.Now().UTC()
		perTool := make(map[string]int)

		for _, res := range t.Results {
			if res.Status != models.StepSuccess {
				continue
			}
			knowledge.Findings = append(knowledge.Findings, models.Finding{
				ID:        uuid.New().String(),
				Tool:      res.Tool,
				Data:      res.Result,
				Timestamp: now,
			})
			perTool[res.Tool]++
		}

		for tool, n := range perTool {
			if n > 1 {
				knowledge.Patterns = append(knowledge.Patterns, fmt.Sprintf("repeated signal from %s (%d findings)", tool, n))
			}
		}
		for _, f := range knowledge.Findings {
			knowledge.Recommendations = append(knowledge.Recommendations, models.Recommendation{
				Action:   fmt.Sprintf("review %s output for %s", f.Tool, t.Target),
				Priority: "medium",
				Source:   f.ID,
			})
		}
		// Placeholder risk policy: monotonic in finding count. Callers
		// needing a real risk model supply it externally.
		knowledge.RiskScore = len(knowledge.Findings) * 10

		t.Findings = knowledge.Findings
		t.Patterns = knowledge.Patterns
		t.Recommendations = knowledge.Recommendations
	})
	if err != nil {
		return nil, err
	}

	lessons := make([]string, 0, len(knowledge.Patterns))
	lessons = append(lessons, knowledge.Patterns...)
	o.memory.Add(knowledge.Findings, lessons)
	o.counters.FindingsDiscovered.Add(int64(len(knowledge.Findings)))

	return &knowledge, nil
}

// setState mutates the task state and emits one state-transition event.
// Terminal states are never left.
func (o *Orchestrator) setState(taskID string, state models.TaskState) error {
	err := o.store.Update(taskID, func(t *models.Task) {
		if t.State.Terminal() {
			return
		}
		t.State = state
	})
	if err != nil {
		return err
	}
	o.hub.Publish(taskID, "task_state", map[string]any{"state": state})
	return nil
}

func (o *Orchestrator) complete(taskID string) {
	now := time.Now().UTC()
	o.store.Update(taskID, func(t *models.Task) {
		t.State = models.TaskStateCompleted
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	})
	o.counters.TasksCompleted.Add(1)
	o.hub.Publish(taskID, "task_state", map[string]any{"state": models.TaskStateCompleted})
	o.archiveTask(taskID)
	log.Printf("task %s completed", taskID)
}

func (o *Orchestrator) fail(taskID string, cause error) {
	now := time.Now().UTC()
	o.store.Update(taskID, func(t *models.Task) {
		t.State = models.TaskStateFailed
		t.Error = cause.Error()
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	})
	o.counters.TasksFailed.Add(1)
	o.hub.Publish(taskID, "task_state", map[string]any{"state": models.TaskStateFailed, "error": cause.Error()})
	o.archiveTask(taskID)
	log.Printf("task %s failed: %v", taskID, cause)
}

func (o *Orchestrator) archiveTask(taskID string) {
	if o.archive == nil {
		return
	}
	snap, ok := o.store.Snapshot(taskID)
	if !ok {
		return
	}
	if err := o.archive.SaveTask(snap); err != nil {
		log.Printf("archive task %s: %v", taskID, err)
	}
}
