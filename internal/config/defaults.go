package config

import "github.com/muselab-d2x/releasegate/internal/gate"

// Default secret names the pipeline provisions when the config declares no
// secrets of its own. These mirror the credentials release validation needs:
// packaging org access, source hosting, artifact signing, and the platform
// hub identity (client id, private key in both encodings, hub username).
var defaultSecretSpecs = []SecretConfig{
	{Name: "PACKAGING_ORG", Env: "RG_PACKAGING_ORG"},
	{Name: "GITHUB_TOKEN", Env: "RG_GITHUB_TOKEN"},
	{Name: "APP_SIGNING_KEY", Env: "RG_APP_SIGNING_KEY"},
	{Name: "PLATFORM_CLIENT_ID", Env: "RG_PLATFORM_CLIENT_ID"},
	{Name: "PLATFORM_HUB_KEY", Env: "RG_PLATFORM_HUB_KEY"},
	{Name: "PLATFORM_HUB_KEY_BASE64", Env: "RG_PLATFORM_HUB_KEY_BASE64"},
	{Name: "PLATFORM_HUB_USERNAME", Env: "RG_PLATFORM_HUB_USERNAME"},
}

const (
	defaultOutputDir        = "dist"
	defaultCaptureRoot      = ".releasegate/artifacts"
	defaultStepTimeout      = "30m"
	defaultMaxHold          = "45m"
	defaultAdminAddr        = ":8977"
	defaultNATSSubject      = "releasegate.runs"
	defaultFlowsCommand     = "platform"
	defaultFlowsTargetEnv   = "release-validation"
)

// defaultFlowNames is the fixed sub-flow order of Release Flow Verification.
var defaultFlowNames = []string{"feature", "beta", "master", "release"}

// applyDefaults fills unset fields after parsing and before validation.
func (c *Config) applyDefaults() {
	if c.Project.RepoPath == "" {
		c.Project.RepoPath = "."
	}
	if c.Build.OutputDir == "" {
		c.Build.OutputDir = defaultOutputDir
	}
	if c.Build.CaptureOnFailure == nil {
		enabled := true
		c.Build.CaptureOnFailure = &enabled
	}
	if len(c.Build.Steps) == 0 {
		c.Build.Steps = defaultBuildSteps(c.Build.OutputDir)
	}

	if c.Flows.Command == "" {
		c.Flows.Command = defaultFlowsCommand
	}
	if c.Flows.TargetEnv == "" {
		c.Flows.TargetEnv = defaultFlowsTargetEnv
	}
	if len(c.Flows.Names) == 0 {
		c.Flows.Names = append([]string(nil), defaultFlowNames...)
	}
	if len(c.Flows.Credentials) == 0 {
		c.Flows.Credentials = []string{
			"PLATFORM_CLIENT_ID",
			"PLATFORM_HUB_KEY",
			"PLATFORM_HUB_USERNAME",
		}
	}

	if len(c.Secrets) == 0 {
		c.Secrets = append([]SecretConfig(nil), defaultSecretSpecs...)
	}

	if c.Gate.Token == "" {
		c.Gate.Token = gate.TokenRelease
	}
	if c.Gate.MaxHold == "" {
		c.Gate.MaxHold = defaultMaxHold
	}

	if c.Timeouts.Step == "" {
		c.Timeouts.Step = defaultStepTimeout
	}
	if c.Capture.Root == "" {
		c.Capture.Root = defaultCaptureRoot
	}

	if c.Daemon.AdminAddr == "" {
		c.Daemon.AdminAddr = defaultAdminAddr
	}
	if c.Daemon.NATSSubject == "" {
		c.Daemon.NATSSubject = defaultNATSSubject
	}
}

// defaultBuildSteps is the stock Artifact Verification stage: build the
// distributables, then prove each installs cleanly.
func defaultBuildSteps(outputDir string) []StepConfig {
	return []StepConfig{
		{
			Name:    "build",
			Command: "python",
			Args:    []string{"-m", "build", "--outdir", outputDir},
		},
		{
			Name:    "install-wheel",
			Command: "sh",
			Args:    []string{"-c", "pip install --force-reinstall " + outputDir + "/*.whl"},
		},
		{
			Name:    "install-sdist",
			Command: "sh",
			Args:    []string{"-c", "pip install --force-reinstall " + outputDir + "/*.tar.gz"},
		},
	}
}
