// Package services wires configuration, secret provisioning, the stage
// runner, the concurrency gate, and artifact capture into executable
// pipeline runs for the CLI and the trigger daemon.
package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/muselab-d2x/releasegate/internal/artifact"
	"github.com/muselab-d2x/releasegate/internal/config"
	"github.com/muselab-d2x/releasegate/internal/gate"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/metrics"
	"github.com/muselab-d2x/releasegate/internal/observability"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
	"github.com/muselab-d2x/releasegate/internal/secrets"
	"github.com/muselab-d2x/releasegate/internal/source"
)

// RunService executes pipeline runs against one configuration. The gate is
// long-lived and shared by every run the service launches; everything else
// is assembled per run and discarded with the result.
type RunService struct {
	cfg      *config.Config
	gate     gate.Gate
	recorder metrics.Recorder
	lookup   secrets.LookupFunc // nil means the process environment
	executor runner.Executor    // nil means CommandExecutor in the repo path
}

// RunOption configures a RunService.
type RunOption func(*RunService)

// WithLookup substitutes the environment lookup, for tests.
func WithLookup(lookup secrets.LookupFunc) RunOption {
	return func(s *RunService) { s.lookup = lookup }
}

// WithExecutor substitutes the step executor, for tests.
func WithExecutor(e runner.Executor) RunOption {
	return func(s *RunService) { s.executor = e }
}

// NewRunService creates a run service over cfg and a shared gate.
func NewRunService(cfg *config.Config, g gate.Gate, recorder metrics.Recorder, opts ...RunOption) *RunService {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	s := &RunService{cfg: cfg, gate: g, recorder: recorder}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute performs one pipeline run. Extra secrets (the fixed set passed
// through by an upstream pipeline) supplement the environment-sourced store,
// scoped to all stages of this run only.
func (s *RunService) Execute(ctx context.Context, trigger pipeline.Trigger, extraSecrets map[string]string) (pipeline.Result, error) {
	store, err := secrets.FromEnvironment(s.cfg.EnvSpecs(), s.lookup)
	if err != nil {
		return pipeline.Result{}, err
	}
	for name, value := range extraSecrets {
		if err := store.Register(name, secrets.Value(value), secrets.GlobalScope()); err != nil {
			return pipeline.Result{}, err
		}
	}

	src, err := source.Describe(s.cfg.Project.RepoPath)
	if err != nil {
		// An unlabeled run is preferable to a blocked one.
		observability.WarnContext(ctx, "source revision unavailable", logfields.Error(err))
		src = source.Info{}
	}

	stepTimeout, err := s.cfg.StepTimeout()
	if err != nil {
		return pipeline.Result{}, err
	}

	executor := s.executor
	if executor == nil {
		executor = runner.CommandExecutor{Dir: s.cfg.Project.RepoPath}
	}
	stageRunner := runner.New(store, executor,
		runner.WithRecorder(s.recorder),
		runner.WithDefaultTimeout(stepTimeout))

	capturer := artifact.NewCapturer(s.cfg.Capture.Root)
	capturer.Revision = src.Revision

	coordinator := pipeline.New(stageRunner, s.gate, capturer,
		pipeline.WithRecorder(s.recorder))

	spec := s.cfg.CompileSpec(uuid.NewString(), trigger, src)
	return coordinator.Execute(ctx, spec), nil
}

// BuildGate constructs the gate the configuration asks for: a shared SQLite
// lease database when one is configured (coordinating runs across
// processes), an in-process gate otherwise. The returned closer is non-nil
// only for the database-backed gate.
func BuildGate(cfg *config.Config) (gate.Gate, func() error, error) {
	maxHold, err := cfg.GateMaxHold()
	if err != nil {
		return nil, nil, err
	}

	if cfg.Gate.Database != "" {
		g, err := gate.NewSQLiteGate(cfg.Gate.Database, gate.WithSQLiteMaxHold(maxHold))
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	}

	if maxHold > 0 {
		return gate.NewMemoryGate(gate.WithMaxHold(maxHold)), nil, nil
	}
	return gate.NewMemoryGate(), nil, nil
}
