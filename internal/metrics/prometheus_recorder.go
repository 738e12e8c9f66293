package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	stepDuration  *prom.HistogramVec
	gateWait      *prom.HistogramVec
	stageResults  *prom.CounterVec
	runOutcome    *prom.CounterVec
	captures      *prom.CounterVec
	leaseTimeouts *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "releasegate",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual validation stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "releasegate",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual stage steps",
			Buckets:   prom.DefBuckets,
		}, []string{"stage", "step"})
		pr.gateWait = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "releasegate",
			Name:      "gate_wait_seconds",
			Help:      "Time spent blocked acquiring the concurrency gate",
			Buckets:   prom.DefBuckets,
		}, []string{"token"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasegate",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasegate",
			Name:      "run_outcomes_total",
			Help:      "Pipeline run outcomes by final status",
		}, []string{"outcome"})
		pr.captures = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasegate",
			Name:      "artifact_captures_total",
			Help:      "Artifact capture attempts by success/failure",
		}, []string{"result"})
		pr.leaseTimeouts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasegate",
			Name:      "lease_timeouts_total",
			Help:      "Leases force-released after exceeding the maximum hold",
		}, []string{"token"})
		reg.MustRegister(pr.stageDuration, pr.stepDuration, pr.gateWait, pr.stageResults, pr.runOutcome, pr.captures, pr.leaseTimeouts)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStepDuration(stage, step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(stage, step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveGateWait(token string, d time.Duration) {
	if p == nil || p.gateWait == nil {
		return
	}
	p.gateWait.WithLabelValues(token).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncCapture(success bool) {
	if p == nil || p.captures == nil {
		return
	}
	label := "failure"
	if success {
		label = "success"
	}
	p.captures.WithLabelValues(label).Inc()
}

func (p *PrometheusRecorder) IncLeaseTimeout(token string) {
	if p == nil || p.leaseTimeouts == nil {
		return
	}
	p.leaseTimeouts.WithLabelValues(token).Inc()
}
