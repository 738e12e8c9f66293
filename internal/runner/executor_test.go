package runner

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestCommandExecutorCapturesCombinedOutput(t *testing.T) {
	requireShell(t)
	e := CommandExecutor{}
	result, err := e.Run(context.Background(), Step{
		Name:    "echo",
		Command: "sh",
		Args:    []string{"-c", "echo to-stdout; echo to-stderr 1>&2"},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "to-stdout")
	assert.Contains(t, result.Output, "to-stderr")
}

func TestCommandExecutorReportsExitCode(t *testing.T) {
	requireShell(t)
	e := CommandExecutor{}
	result, err := e.Run(context.Background(), Step{
		Name:    "fail",
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestCommandExecutorInjectsEnvironment(t *testing.T) {
	requireShell(t)
	e := CommandExecutor{}
	result, err := e.Run(context.Background(), Step{
		Name:    "env",
		Command: "sh",
		Args:    []string{"-c", `printf "%s" "$GITHUB_TOKEN"`},
	}, map[string]string{"GITHUB_TOKEN": "tok-abc"})

	require.NoError(t, err)
	assert.Equal(t, "tok-abc", result.Output)
}

func TestCommandExecutorHonorsCancellation(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := CommandExecutor{}
	_, err := e.Run(ctx, Step{
		Name:    "sleep",
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
	}, nil)

	assert.Error(t, err)
}
