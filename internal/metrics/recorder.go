package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSucceeded ResultLabel = "succeeded"
	ResultFailed    ResultLabel = "failed"
	ResultCancelled ResultLabel = "cancelled"
)

// Recorder defines observability hooks for pipeline, stage, and step metrics.
// Implementations may forward to Prometheus or remain a no-op. All methods must
// be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveStepDuration(stage, step string, d time.Duration)
	ObserveGateWait(token string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome string) // outcome: succeeded|failed|cancelled
	IncCapture(success bool)
	IncLeaseTimeout(token string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)      {}
func (NoopRecorder) ObserveStepDuration(string, string, time.Duration) {}
func (NoopRecorder) ObserveGateWait(string, time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)              {}
func (NoopRecorder) IncRunOutcome(string)                            {}
func (NoopRecorder) IncCapture(bool)                                 {}
func (NoopRecorder) IncLeaseTimeout(string)                          {}
