package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/models"
	"github.com/kestrelsec/kestrel/internal/tools"
	"github.com/kestrelsec/kestrel/internal/trace"
)

// scriptedTool fails its first failUntil calls, then succeeds, recording
// the time of every call.
type scriptedTool struct {
	name      string
	failUntil int

	mu    sync.Mutex
	calls []time.Time
}

func (t *scriptedTool) Name() string {
	return t.name
}

func (t *scriptedTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	t.mu.Lock()
	t.calls = append(t.calls, time.Now())
	n := len(t.calls)
	t.mu.Unlock()

	if n <= t.failUntil {
		return nil, fmt.Errorf("simulated failure %d", n)
	}
	return map[string]any{"ok": true}, nil
}

func (t *scriptedTool) callTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Time(nil), t.calls...)
}

// stallingTool blocks until its context expires.
type stallingTool struct{ name string }

func (t *stallingTool) Name() string { return t.name }

func (t *stallingTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestExecutor(t *testing.T, policy config.RetryPolicy, toolset ...tools.Tool) (*Executor, *trace.Tracer, *metrics.Counters) {
	t.Helper()

	reg := tools.NewRegistry()
	for _, tool := range toolset {
		reg.Register(tool)
	}
	tracer := trace.NewTracer(100, &trace.Clock{})
	counters := &metrics.Counters{}
	return NewExecutor(reg, tracer, counters, policy), tracer, counters
}

func TestBackoffSequence(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 3, InitialDelayMs: 20, BackoffMultiplier: 2.0}
	tool := &scriptedTool{name: "flaky", failUntil: 100}
	exec, tracer, counters := newTestExecutor(t, policy, tool)

	step := models.Step{Tool: "flaky"}
	_, err := exec.ExecuteWithRetry(context.Background(), step, "req-backoff")
	if err == nil {
		t.Fatal("Expected exhaustion error")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Expected exactly 4 attempts, got %d", exhausted.Attempts)
	}

	calls := tool.callTimes()
	if len(calls) != 4 {
		t.Fatalf("Expected 4 calls, got %d", len(calls))
	}

	// Inter-attempt delays follow 20, 40, 80 ms.
	wantMin := []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond}
	for i, want := range wantMin {
		gap := calls[i+1].Sub(calls[i])
		if gap < want {
			t.Errorf("Gap %d: expected at least %s, got %s", i, want, gap)
		}
	}

	events, ok := tracer.Get("req-backoff")
	if !ok {
		t.Fatal("Expected trace events")
	}
	// One attempting plus one failed event per attempt.
	if len(events) != 8 {
		t.Errorf("Expected 8 trace events, got %d", len(events))
	}

	if got := counters.RetryAttempts.Load(); got != 4 {
		t.Errorf("Expected retry counter 4, got %d", got)
	}
}

func TestSuccessStopsRetrying(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 3, InitialDelayMs: 1, BackoffMultiplier: 2.0}
	tool := &scriptedTool{name: "flaky", failUntil: 1}
	exec, tracer, _ := newTestExecutor(t, policy, tool)

	result, err := exec.ExecuteWithRetry(context.Background(), models.Step{Tool: "flaky"}, "req-ok")
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result["ok"] != true {
		t.Errorf("Unexpected result: %v", result)
	}
	if len(tool.callTimes()) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(tool.callTimes()))
	}

	events, _ := tracer.Get("req-ok")
	last := events[len(events)-1]
	if last.Status != models.TraceSuccess || last.Attempt != 2 {
		t.Errorf("Expected final event success on attempt 2, got %+v", last)
	}
}

func TestToolNotFoundIsNotRetried(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 3, InitialDelayMs: 1, BackoffMultiplier: 2.0}
	exec, tracer, counters := newTestExecutor(t, policy)

	start := time.Now()
	_, err := exec.ExecuteWithRetry(context.Background(), models.Step{Tool: "ghost"}, "req-ghost")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Expected ErrToolNotFound, got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Resolution failure must not wait out the retry policy")
	}

	events, ok := tracer.Get("req-ghost")
	if !ok || len(events) != 1 {
		t.Fatalf("Expected a single resolution event, got %v", events)
	}
	if events[0].Type != "tool_resolution" || events[0].Status != models.TraceFailed {
		t.Errorf("Unexpected event: %+v", events[0])
	}
	if counters.RetryAttempts.Load() != 0 {
		t.Error("Resolution failure must not count as a retry")
	}
}

func TestTimeoutCountsAsFailedAttempt(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 0, InitialDelayMs: 1, BackoffMultiplier: 2.0}
	exec, tracer, _ := newTestExecutor(t, policy, &stallingTool{name: "tarpit"})

	step := models.Step{Tool: "tarpit", TimeoutSeconds: 1}
	start := time.Now()
	_, err := exec.ExecuteWithRetry(context.Background(), step, "req-slow")
	if err == nil {
		t.Fatal("Expected timeout failure")
	}
	if time.Since(start) < time.Second {
		t.Error("Attempt should have run until the step timeout")
	}

	events, _ := tracer.Get("req-slow")
	last := events[len(events)-1]
	if last.Status != models.TraceFailed {
		t.Errorf("Expected failed event, got %+v", last)
	}
}

func TestBackoffAbortsOnCancel(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 5, InitialDelayMs: 5000, BackoffMultiplier: 2.0}
	tool := &scriptedTool{name: "flaky", failUntil: 100}
	exec, _, _ := newTestExecutor(t, policy, tool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := exec.ExecuteWithRetry(ctx, models.Step{Tool: "flaky"}, "req-cancel")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Cancellation must interrupt the backoff sleep promptly")
	}
}
