package config

import (
	"time"

	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
	"github.com/muselab-d2x/releasegate/internal/secrets"
	"github.com/muselab-d2x/releasegate/internal/source"
)

// defaultAuthArgs is the non-interactive JWT login of the platform CLI. The
// CLI reads the client id, private key, and hub username from the injected
// environment and leaves the authenticated session selected as default.
var defaultAuthArgs = []string{"org", "login", "jwt", "--set-default"}

// EnvSpecs translates the secret declarations for the secret store.
func (c *Config) EnvSpecs() []secrets.EnvSpec {
	specs := make([]secrets.EnvSpec, 0, len(c.Secrets))
	for _, s := range c.Secrets {
		specs = append(specs, secrets.EnvSpec{Name: s.Name, Var: s.Env, Stages: s.Stages})
	}
	return specs
}

// CompileSpec resolves the configured stages into a runnable pipeline spec.
// Validation already ran, so duration strings parse.
func (c *Config) CompileSpec(runID string, trigger pipeline.Trigger, src source.Info) pipeline.Spec {
	gateWait, _ := c.GateAcquireTimeout()
	return pipeline.Spec{
		RunID:         runID,
		Trigger:       trigger,
		Source:        src,
		ArtifactStage: c.artifactStage(),
		FlowChain:     c.flowChain(),
		GateToken:     c.Gate.Token,
		GateWait:      gateWait,
	}
}

func (c *Config) artifactStage() runner.Stage {
	steps := make([]runner.Step, 0, len(c.Build.Steps))
	for _, sc := range c.Build.Steps {
		steps = append(steps, c.compileStep(sc))
	}
	return runner.Stage{
		Name:             pipeline.StageArtifactVerification,
		Steps:            steps,
		CaptureOnFailure: c.Build.CaptureOnFailure != nil && *c.Build.CaptureOnFailure,
		CapturePaths:     []string{c.Build.OutputDir},
	}
}

func (c *Config) flowChain() pipeline.FlowChain {
	authArgs := c.Flows.AuthArgs
	if len(authArgs) == 0 {
		authArgs = append([]string(nil), defaultAuthArgs...)
	}

	chain := pipeline.FlowChain{
		Auth: runner.Step{
			Name:        "org-auth",
			Command:     c.Flows.Command,
			Args:        authArgs,
			Credentials: append([]string(nil), c.Flows.Credentials...),
		},
	}

	for i, name := range c.Flows.Names {
		args := []string{"flow", "run", name, "--target", c.Flows.TargetEnv}
		if c.Flows.Teardown && i == len(c.Flows.Names)-1 {
			// The final flow tears the target environment down behind itself.
			args = append(args, "--delete-env")
		}
		chain.Links = append(chain.Links, pipeline.FlowLink{
			Flow: name,
			Step: runner.Step{
				Name:        "flow-" + name,
				Command:     c.Flows.Command,
				Args:        args,
				Credentials: append([]string(nil), c.Flows.Credentials...),
			},
		})
	}
	return chain
}

func (c *Config) compileStep(sc StepConfig) runner.Step {
	step := runner.Step{
		Name:        sc.Name,
		Command:     sc.Command,
		Args:        append([]string(nil), sc.Args...),
		Env:         sc.Env,
		Credentials: append([]string(nil), sc.Credentials...),
	}
	if sc.Timeout != "" {
		if d, err := time.ParseDuration(sc.Timeout); err == nil {
			step.Timeout = d
		}
	}
	return step
}
