// Package runner executes the ordered steps of one validation stage:
// credential resolution, opaque command execution with injected environment,
// per-step output capture, and fail-fast short-circuiting.
package runner

import (
	"time"
)

// Status is the lifecycle state of a stage. Transitions only move forward:
// pending -> running -> succeeded | failed | cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Step is a single opaque external command with declared credential
// requirements. A step whose required credential cannot be resolved fails
// closed: the command is never executed.
type Step struct {
	Name        string
	Command     string
	Args        []string
	Env         map[string]string // static overrides, merged under credentials
	Credentials []string          // required credential names
	Timeout     time.Duration     // 0 means the runner default applies
}

// Stage is a named ordered sequence of steps. The first step failure
// short-circuits the remainder.
type Stage struct {
	Name             string
	Steps            []Step
	CaptureOnFailure bool
	CapturePaths     []string
}

// StepResult records one step's outcome for diagnostics.
type StepResult struct {
	Name     string
	Executed bool // false when the step failed closed before execution
	ExitCode int
	Output   string // combined stdout/stderr
	Duration time.Duration
	Err      error
}

// StageResult is the terminal report of one stage run.
type StageResult struct {
	Stage    string
	Status   Status
	Steps    []StepResult
	Err      error // the failure that stopped the stage, if any
	Duration time.Duration
}

// FailedStep returns the result of the step that stopped the stage, if any.
func (r StageResult) FailedStep() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s, true
		}
	}
	return StepResult{}, false
}
