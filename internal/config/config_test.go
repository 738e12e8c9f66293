package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/source"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "releasegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
project:
  name: my-package
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "dist", cfg.Build.OutputDir)
	require.Len(t, cfg.Build.Steps, 3)
	assert.Equal(t, "build", cfg.Build.Steps[0].Name)
	assert.Equal(t, "install-wheel", cfg.Build.Steps[1].Name)
	assert.Equal(t, "install-sdist", cfg.Build.Steps[2].Name)

	assert.Equal(t, []string{"feature", "beta", "master", "release"}, cfg.Flows.Names)
	assert.Equal(t, "release", cfg.Gate.Token)
	assert.Len(t, cfg.Secrets, 7)

	stepTimeout, err := cfg.StepTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, stepTimeout)

	maxHold, err := cfg.GateMaxHold()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, maxHold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryConfig))
}

func TestLoadRejectsMissingProjectName(t *testing.T) {
	_, err := Load(writeConfig(t, `build: {output_dir: out}`))
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryValidation))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
project: {name: pkg}
timeouts: {step: sometime}
`))
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryValidation))
}

func TestLoadRejectsDuplicateSteps(t *testing.T) {
	_, err := Load(writeConfig(t, `
project: {name: pkg}
build:
  steps:
    - {name: build, command: make}
    - {name: build, command: make}
`))
	require.Error(t, err)
}

func TestLoadRejectsDuplicateFlows(t *testing.T) {
	_, err := Load(writeConfig(t, `
project: {name: pkg}
flows:
  names: [feature, feature]
`))
	require.Error(t, err)
}

func TestCompileSpecArtifactStage(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	spec := cfg.CompileSpec("run-1", pipeline.TriggerManual, source.Info{Revision: "abc"})

	assert.Equal(t, "run-1", spec.RunID)
	assert.Equal(t, pipeline.StageArtifactVerification, spec.ArtifactStage.Name)
	assert.True(t, spec.ArtifactStage.CaptureOnFailure)
	assert.Equal(t, []string{"dist"}, spec.ArtifactStage.CapturePaths)
	assert.Equal(t, "release", spec.GateToken)
}

func TestCompileSpecFlowChain(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
project: {name: pkg}
flows:
  command: sfp
  target_env: staging
  names: [feature, beta]
  teardown: true
`))
	require.NoError(t, err)

	chain := cfg.CompileSpec("run-2", pipeline.TriggerChange, source.Info{}).FlowChain

	assert.Equal(t, "org-auth", chain.Auth.Name)
	assert.Equal(t, "sfp", chain.Auth.Command)
	assert.Contains(t, chain.Auth.Credentials, "PLATFORM_CLIENT_ID")

	require.Len(t, chain.Links, 2)
	assert.Equal(t, "feature", chain.Links[0].Flow)
	assert.Equal(t, []string{"flow", "run", "feature", "--target", "staging"}, chain.Links[0].Step.Args)

	// only the terminal flow tears the environment down
	assert.NotContains(t, chain.Links[0].Step.Args, "--delete-env")
	assert.Contains(t, chain.Links[1].Step.Args, "--delete-env")
}

func TestCompileStepTimeout(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
project: {name: pkg}
build:
  steps:
    - {name: build, command: make, timeout: 90s}
`))
	require.NoError(t, err)

	spec := cfg.CompileSpec("run-3", pipeline.TriggerManual, source.Info{})
	require.Len(t, spec.ArtifactStage.Steps, 1)
	assert.Equal(t, 90*time.Second, spec.ArtifactStage.Steps[0].Timeout)
}

func TestEnvSpecs(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
project: {name: pkg}
secrets:
  - {name: GITHUB_TOKEN, env: MY_TOKEN}
  - {name: PLATFORM_HUB_KEY, env: MY_KEY, stages: [release-flow-verification]}
`))
	require.NoError(t, err)

	specs := cfg.EnvSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, "MY_TOKEN", specs[0].Var)
	assert.Equal(t, []string{"release-flow-verification"}, specs[1].Stages)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releasegate.yaml")
	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-package", cfg.Project.Name)

	// refuses to clobber without force
	err = Init(path, false)
	require.Error(t, err)
	require.NoError(t, Init(path, true))
}
