package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ExecResult is the raw outcome of one external command.
type ExecResult struct {
	ExitCode int
	Output   string // combined stdout/stderr
}

// Executor runs one opaque external command with the given extra environment.
// Production uses CommandExecutor; tests substitute fakes.
type Executor interface {
	Run(ctx context.Context, step Step, env map[string]string) (ExecResult, error)
}

// CommandExecutor executes steps via os/exec. Cancelling the context
// terminates the running command.
type CommandExecutor struct {
	Dir string // working directory; empty means the process cwd
}

func (e CommandExecutor) Run(ctx context.Context, step Step, env map[string]string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, step.Command, step.Args...)
	cmd.Dir = e.Dir
	cmd.Env = mergeEnv(os.Environ(), step.Env, env)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := ExecResult{Output: out.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}
	return result, err
}

// mergeEnv layers the step's static overrides and the resolved credentials on
// top of the base environment. Credentials win over static overrides so a
// step cannot shadow a secret with a stale literal.
func mergeEnv(base []string, static, credentials map[string]string) []string {
	merged := append([]string(nil), base...)
	for k, v := range static {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range credentials {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}
