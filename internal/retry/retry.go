// Package retry wraps single tool invocations with bounded retries and
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/models"
	"github.com/kestrelsec/kestrel/internal/tools"
	"github.com/kestrelsec/kestrel/internal/trace"
)

// ErrToolNotFound indicates the requested tool name is unregistered.
// Resolution failure is not retried.
var ErrToolNotFound = errors.New("tool not found")

// ExhaustedError is returned once every allowed attempt has failed. The
// orchestrator applies the critical/non-critical policy on top of it.
type ExhaustedError struct {
	Tool     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("tool %s failed after %d attempts: %v", e.Tool, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Executor runs tool invocations under the retry policy, emitting one trace
// event per attempt.
type Executor struct {
	registry *tools.Registry
	tracer   *trace.Tracer
	counters *metrics.Counters
	policy   config.RetryPolicy
}

// NewExecutor creates an executor bound to a registry, tracer and policy.
func NewExecutor(reg *tools.Registry, tr *trace.Tracer, counters *metrics.Counters, policy config.RetryPolicy) *Executor {
	return &Executor{
		registry: reg,
		tracer:   tr,
		counters: counters,
		policy:   policy,
	}
}

// ExecuteWithRetry resolves the step's tool and attempts it up to
// maxRetries+1 times. The backoff delay starts at the policy's initial
// delay and is multiplied after every failed attempt; the delay sleeps on
// this task's flow only and aborts promptly if ctx is cancelled.
func (e *Executor) ExecuteWithRetry(ctx context.Context, step models.Step, requestID string) (map[string]any, error) {
	tool, ok := e.registry.Get(step.Tool)
	if !ok {
		e.tracer.Log(requestID, models.TraceEvent{
			Type:   "tool_resolution",
			Tool:   step.Tool,
			Status: models.TraceFailed,
			Error:  "tool not found",
		})
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, step.Tool)
	}

	attempts := e.policy.MaxRetries + 1
	delay := e.policy.InitialDelay()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		e.tracer.Log(requestID, models.TraceEvent{
			Type:    "tool_execution",
			Tool:    step.Tool,
			Attempt: attempt,
			Status:  models.TraceAttempting,
		})

		result, err := e.runAttempt(ctx, tool, step)
		if err == nil {
			e.tracer.Log(requestID, models.TraceEvent{
				Type:    "tool_execution",
				Tool:    step.Tool,
				Attempt: attempt,
				Status:  models.TraceSuccess,
			})
			return result, nil
		}

		lastErr = err
		e.tracer.Log(requestID, models.TraceEvent{
			Type:    "tool_execution",
			Tool:    step.Tool,
			Attempt: attempt,
			Status:  models.TraceFailed,
			Error:   err.Error(),
		})
		e.counters.RetryAttempts.Add(1)

		// A cancelled caller is not a retryable tool failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * e.policy.BackoffMultiplier)
		}
	}

	return nil, &ExhaustedError{Tool: step.Tool, Attempts: attempts, Err: lastErr}
}

// runAttempt executes one attempt under the step's timeout. The tool runs
// in its own goroutine so an implementation that ignores ctx still counts
// as a failed attempt when the deadline passes.
func (e *Executor) runAttempt(ctx context.Context, tool tools.Tool, step models.Step) (map[string]any, error) {
	attemptCtx := ctx
	if step.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := tool.Execute(attemptCtx, step.Parameters)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("tool %s timed out after %ds", step.Tool, step.TimeoutSeconds)
		}
		return nil, attemptCtx.Err()
	case out := <-done:
		return out.result, out.err
	}
}
