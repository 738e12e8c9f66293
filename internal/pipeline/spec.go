// Package pipeline owns the release-validation run: the two stages, their
// concurrency and ordering policy, failure-triggered artifact capture, and
// the aggregated pass/fail verdict.
package pipeline

import (
	"time"

	"github.com/muselab-d2x/releasegate/internal/artifact"
	"github.com/muselab-d2x/releasegate/internal/runner"
	"github.com/muselab-d2x/releasegate/internal/source"
)

// Stage names are fixed: this validates one two-stage pipeline shape.
const (
	StageArtifactVerification = "artifact-verification"
	StageFlowVerification     = "release-flow-verification"
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerChange   Trigger = "change"   // code change proposal
	TriggerManual   Trigger = "manual"   // explicit operator invocation
	TriggerSchedule Trigger = "schedule" // periodic daemon trigger
	TriggerUpstream Trigger = "upstream" // called by another pipeline
)

// FlowLink is one sub-flow of Release Flow Verification. Links run strictly
// in order and each assumes the external environment state left by the
// previous link succeeding; they must never be reordered or parallelized.
type FlowLink struct {
	Flow string      // feature, beta, master, release
	Step runner.Step // the compiled platform CLI invocation
}

// FlowChain is the Release Flow Verification stage: an authentication step
// followed by dependent sequential sub-flows. The chain type exists so the
// sequential dependency is structural rather than a convention on a step
// list.
type FlowChain struct {
	Auth  runner.Step // non-interactive platform auth preceding the flows
	Links []FlowLink
}

// Stage flattens the chain in dependency order for the stage runner, whose
// fail-fast sequencing matches the chain's semantics: a failed link stops
// every later link.
func (c FlowChain) Stage() runner.Stage {
	steps := make([]runner.Step, 0, len(c.Links)+1)
	if c.Auth.Name != "" {
		steps = append(steps, c.Auth)
	}
	for _, link := range c.Links {
		steps = append(steps, link.Step)
	}
	return runner.Stage{Name: StageFlowVerification, Steps: steps}
}

// Spec describes one pipeline run. It is owned by the coordinator for the
// duration of the invocation and discarded after the result is reported.
type Spec struct {
	RunID         string
	Trigger       Trigger
	Source        source.Info
	ArtifactStage runner.Stage
	FlowChain     FlowChain
	GateToken     string
	GateWait      time.Duration // how long the flow stage waits for the gate; 0 waits forever
}

// Result is the structured report of one run.
type Result struct {
	RunID      string
	Trigger    Trigger
	Source     source.Info
	Status     runner.Status
	Artifact   runner.StageResult
	Flow       runner.StageResult
	Bundle     *artifact.Bundle
	CaptureErr error // recorded, never flips the verdict
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the run passed: both stages succeeded.
func (r Result) Succeeded() bool {
	return r.Status == runner.StatusSucceeded
}
