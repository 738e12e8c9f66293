package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muselab-d2x/releasegate/internal/config"
	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/gate"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
)

// recordingExecutor succeeds every step and remembers what it was asked to
// run. Stages execute concurrently, so access is locked.
type recordingExecutor struct {
	mu    sync.Mutex
	steps []string
	envs  map[string]map[string]string // step name -> resolved credentials
}

func (e *recordingExecutor) Run(_ context.Context, step runner.Step, env map[string]string) (runner.ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = append(e.steps, step.Name)
	if e.envs == nil {
		e.envs = make(map[string]map[string]string)
	}
	e.envs[step.Name] = env
	return runner.ExecResult{Output: "ok"}, nil
}

func (e *recordingExecutor) seen(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.steps {
		if s == name {
			return true
		}
	}
	return false
}

func (e *recordingExecutor) envFor(name string) map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.envs[name]
}

func loadTestConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	raw := `
project:
  name: widget
  repo_path: ` + dir + `
capture:
  root: ` + filepath.Join(dir, "artifacts") + `
` + extra
	path := filepath.Join(dir, "releasegate.yml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func platformLookup(key string) (string, bool) {
	switch key {
	case "RG_PLATFORM_CLIENT_ID":
		return "client-id", true
	case "RG_PLATFORM_HUB_KEY":
		return "hub-key", true
	case "RG_PLATFORM_HUB_USERNAME":
		return "hub-user", true
	}
	return "", false
}

func TestRunServiceExecuteSucceeds(t *testing.T) {
	cfg := loadTestConfig(t, "")
	exec := &recordingExecutor{}

	svc := NewRunService(cfg, gate.NewMemoryGate(), nil,
		WithLookup(platformLookup), WithExecutor(exec))

	res, err := svc.Execute(context.Background(), pipeline.TriggerManual, nil)
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, pipeline.TriggerManual, res.Trigger)
	assert.Equal(t, runner.StatusSucceeded, res.Artifact.Status)
	assert.Equal(t, runner.StatusSucceeded, res.Flow.Status)

	// Both stages ran through the injected executor.
	assert.True(t, exec.seen("build"))
	assert.True(t, exec.seen("install-sdist"))
	assert.True(t, exec.seen("org-auth"))
	assert.True(t, exec.seen("flow-release"))

	// The flow steps got the platform credentials, revealed.
	env := exec.envFor("flow-beta")
	require.NotNil(t, env)
	assert.Equal(t, "client-id", env["PLATFORM_CLIENT_ID"])
	assert.Equal(t, "hub-user", env["PLATFORM_HUB_USERNAME"])
}

func TestRunServiceExtraSecretsReachSteps(t *testing.T) {
	cfg := loadTestConfig(t, `
flows:
  credentials: [UPSTREAM_TOKEN]
`)
	exec := &recordingExecutor{}
	svc := NewRunService(cfg, gate.NewMemoryGate(), nil,
		WithLookup(func(string) (string, bool) { return "", false }),
		WithExecutor(exec))

	res, err := svc.Execute(context.Background(), pipeline.TriggerUpstream,
		map[string]string{"UPSTREAM_TOKEN": "tok-123"})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	env := exec.envFor("org-auth")
	require.NotNil(t, env)
	assert.Equal(t, "tok-123", env["UPSTREAM_TOKEN"])
}

func TestRunServiceMissingCredentialFailsFlowStage(t *testing.T) {
	cfg := loadTestConfig(t, "")
	exec := &recordingExecutor{}
	svc := NewRunService(cfg, gate.NewMemoryGate(), nil,
		WithLookup(func(string) (string, bool) { return "", false }),
		WithExecutor(exec))

	res, err := svc.Execute(context.Background(), pipeline.TriggerChange, nil)
	require.NoError(t, err)

	assert.False(t, res.Succeeded())
	assert.Equal(t, runner.StatusFailed, res.Flow.Status)
	assert.True(t, errors.IsMissingCredential(res.Flow.Err))

	// The build stage needs no credentials and still ran to completion.
	assert.Equal(t, runner.StatusSucceeded, res.Artifact.Status)
	assert.False(t, exec.seen("org-auth"))
}

func TestBuildGatePicksBackendFromConfig(t *testing.T) {
	t.Run("in-process by default", func(t *testing.T) {
		cfg := loadTestConfig(t, "")
		g, closer, err := BuildGate(cfg)
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.IsType(t, &gate.MemoryGate{}, g)
	})

	t.Run("database-backed when configured", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "leases.db")
		cfg := loadTestConfig(t, `
gate:
  database: `+dbPath+`
`)
		g, closer, err := BuildGate(cfg)
		require.NoError(t, err)
		require.NotNil(t, closer)
		defer closer() //nolint:errcheck

		assert.IsType(t, &gate.SQLiteGate{}, g)
	})
}
