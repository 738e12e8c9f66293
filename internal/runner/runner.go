package runner

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/metrics"
	"github.com/muselab-d2x/releasegate/internal/observability"
	"github.com/muselab-d2x/releasegate/internal/secrets"
)

// DefaultStepTimeout bounds a step that declares no timeout of its own.
const DefaultStepTimeout = 30 * time.Minute

// Runner executes one stage: steps in declared order, fail fast.
type Runner struct {
	store          *secrets.Store
	executor       Executor
	recorder       metrics.Recorder
	defaultTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder injects a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithDefaultTimeout overrides the default per-step time bound.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// New creates a stage runner backed by the given secret store and executor.
func New(store *secrets.Store, executor Executor, opts ...Option) *Runner {
	r := &Runner{
		store:          store,
		executor:       executor,
		recorder:       metrics.NoopRecorder{},
		defaultTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the stage and returns its terminal result. Step outputs are
// retained in memory for diagnostics; nothing is written across stage
// boundaries. The returned status is cancelled only when the invocation
// context was cancelled, failed for any step-level error.
func (r *Runner) Run(ctx context.Context, stage Stage) StageResult {
	ctx = observability.WithStage(ctx, stage.Name)
	started := time.Now()

	result := StageResult{Stage: stage.Name, Status: StatusRunning}
	observability.InfoContext(ctx, "stage started", slog.Int("steps", len(stage.Steps)))

	for _, step := range stage.Steps {
		stepResult := r.runStep(ctx, stage.Name, step)
		result.Steps = append(result.Steps, stepResult)

		if stepResult.Err != nil {
			result.Err = stepResult.Err
			if errors.IsCancelled(stepResult.Err) {
				result.Status = StatusCancelled
			} else {
				result.Status = StatusFailed
			}
			break
		}
	}

	if !result.Status.Terminal() {
		result.Status = StatusSucceeded
	}
	result.Duration = time.Since(started)

	r.recorder.ObserveStageDuration(stage.Name, result.Duration)
	r.recorder.IncStageResult(stage.Name, resultLabel(result.Status))
	observability.InfoContext(ctx, "stage finished",
		logfields.Status(string(result.Status)),
		logfields.DurationMS(float64(result.Duration.Milliseconds())))

	return result
}

func (r *Runner) runStep(ctx context.Context, stageName string, step Step) StepResult {
	ctx = observability.WithStep(ctx, step.Name)
	started := time.Now()

	// Fail closed: an unresolved credential means the command never runs.
	env, err := r.store.Resolve(stageName, step.Credentials)
	if err != nil {
		observability.ErrorContext(ctx, "credential resolution failed", logfields.Error(err))
		return StepResult{Name: step.Name, Executed: false, Err: err, Duration: time.Since(started)}
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	observability.DebugContext(ctx, "executing step command")
	execResult, execErr := r.executor.Run(stepCtx, step, env)
	duration := time.Since(started)
	r.recorder.ObserveStepDuration(stageName, step.Name, duration)

	result := StepResult{
		Name:     step.Name,
		Executed: true,
		ExitCode: execResult.ExitCode,
		Output:   execResult.Output,
		Duration: duration,
	}

	switch {
	case execErr == nil:
		observability.DebugContext(ctx, "step succeeded",
			logfields.DurationMS(float64(duration.Milliseconds())))
	case stderrors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.Err = errors.StepTimeout(step.Name, execErr)
		observability.ErrorContext(ctx, "step timed out", logfields.Error(result.Err))
	case ctx.Err() != nil:
		result.Err = errors.Cancelled(ctx.Err())
		observability.WarnContext(ctx, "step cancelled")
	default:
		result.Err = errors.StepExecutionError(step.Name, execResult.ExitCode, execErr)
		observability.ErrorContext(ctx, "step failed",
			slog.Int("exit_code", execResult.ExitCode))
	}

	return result
}

func resultLabel(s Status) metrics.ResultLabel {
	switch s {
	case StatusSucceeded:
		return metrics.ResultSucceeded
	case StatusCancelled:
		return metrics.ResultCancelled
	default:
		return metrics.ResultFailed
	}
}
