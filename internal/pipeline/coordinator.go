package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/muselab-d2x/releasegate/internal/artifact"
	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/gate"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/metrics"
	"github.com/muselab-d2x/releasegate/internal/observability"
	"github.com/muselab-d2x/releasegate/internal/runner"
)

// StageRunner is the subset of the stage runner the coordinator needs;
// tests substitute fakes.
type StageRunner interface {
	Run(ctx context.Context, stage runner.Stage) runner.StageResult
}

// Capturer collects artifact paths after a failed artifact stage.
type Capturer interface {
	Capture(ctx context.Context, runID string, paths []string) (*artifact.Bundle, error)
}

// Coordinator executes pipeline runs: both stages as independent concurrent
// units, the flow stage behind the concurrency gate, capture on artifact
// failure, one aggregated verdict.
type Coordinator struct {
	runner   StageRunner
	gate     gate.Gate
	capturer Capturer
	recorder metrics.Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder injects a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(c *Coordinator) {
		if rec != nil {
			c.recorder = rec
		}
	}
}

// New creates a coordinator.
func New(r StageRunner, g gate.Gate, capturer Capturer, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner:   r,
		gate:     g,
		capturer: capturer,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs the pipeline described by spec and returns its terminal
// result. Cancelling ctx terminates any executing command, releases any held
// lease, and reports the run as cancelled.
func (c *Coordinator) Execute(ctx context.Context, spec Spec) Result {
	ctx = observability.WithRunID(ctx, spec.RunID)
	ctx = observability.WithTrigger(ctx, string(spec.Trigger))

	result := Result{
		RunID:     spec.RunID,
		Trigger:   spec.Trigger,
		Source:    spec.Source,
		StartedAt: time.Now(),
	}

	observability.InfoContext(ctx, "pipeline run started",
		logfields.Revision(spec.Source.Short()))

	// The two stages are independent concurrent units of work. Neither
	// observes the other's state; only the coordinator aggregates.
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		result.Artifact = c.runner.Run(ctx, spec.ArtifactStage)
	}()

	go func() {
		defer wg.Done()
		result.Flow = c.runFlowStage(ctx, spec)
	}()

	wg.Wait()

	// Capture strictly follows the artifact stage's terminal failure.
	if spec.ArtifactStage.CaptureOnFailure && result.Artifact.Status == runner.StatusFailed {
		bundle, err := c.capturer.Capture(ctx, spec.RunID, spec.ArtifactStage.CapturePaths)
		if err != nil {
			// Recorded, never fatal to the run's own verdict.
			result.CaptureErr = err
			c.recorder.IncCapture(false)
			observability.WarnContext(ctx, "artifact capture failed", logfields.Error(err))
		} else {
			result.Bundle = bundle
			c.recorder.IncCapture(true)
		}
	}

	result.Status = verdict(result.Artifact.Status, result.Flow.Status)
	result.FinishedAt = time.Now()

	c.recorder.IncRunOutcome(string(result.Status))
	observability.InfoContext(ctx, "pipeline run finished",
		logfields.Status(string(result.Status)),
		logfields.DurationMS(float64(result.FinishedAt.Sub(result.StartedAt).Milliseconds())))

	return result
}

// runFlowStage acquires the gate, runs the flow chain, and guarantees the
// lease is returned on every exit path.
func (c *Coordinator) runFlowStage(ctx context.Context, spec Spec) runner.StageResult {
	token := spec.GateToken
	if token == "" {
		token = gate.TokenRelease
	}
	stage := spec.FlowChain.Stage()

	// A configured gate wait bounds acquisition only; the held stage always
	// runs under the invocation context.
	acquireCtx := ctx
	if spec.GateWait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, spec.GateWait)
		defer cancel()
	}

	waitStart := time.Now()
	lease, err := c.gate.Acquire(acquireCtx, token)
	if err != nil {
		if ctx.Err() != nil {
			return runner.StageResult{Stage: stage.Name, Status: runner.StatusCancelled, Err: errors.Cancelled(ctx.Err())}
		}
		if acquireCtx.Err() != nil {
			// Only the wait bound expired; the run itself was not cancelled.
			observability.WarnContext(ctx, "gave up waiting for gate", logfields.Token(token))
			return runner.StageResult{Stage: stage.Name, Status: runner.StatusFailed, Err: errors.GateWaitTimeout(token)}
		}
		return runner.StageResult{Stage: stage.Name, Status: runner.StatusFailed, Err: err}
	}
	c.recorder.ObserveGateWait(token, time.Since(waitStart))
	observability.DebugContext(ctx, "concurrency gate acquired", logfields.Token(token))

	released := false
	defer func() {
		if !released {
			_ = c.gate.Release(lease)
		}
	}()

	stageResult := c.runner.Run(ctx, stage)

	released = true
	if relErr := c.gate.Release(lease); relErr != nil {
		if errors.IsLeaseTimeout(relErr) {
			// The run lost exclusivity mid-flight; its result cannot be trusted.
			c.recorder.IncLeaseTimeout(token)
		}
		stageResult.Status = runner.StatusFailed
		if stageResult.Err == nil {
			stageResult.Err = relErr
		}
	}
	return stageResult
}

// verdict aggregates the two stage statuses: succeeded only when both
// succeeded, cancelled when either stage was cancelled, failed otherwise.
func verdict(artifactStatus, flowStatus runner.Status) runner.Status {
	if artifactStatus == runner.StatusCancelled || flowStatus == runner.StatusCancelled {
		return runner.StatusCancelled
	}
	if artifactStatus == runner.StatusSucceeded && flowStatus == runner.StatusSucceeded {
		return runner.StatusSucceeded
	}
	return runner.StatusFailed
}
