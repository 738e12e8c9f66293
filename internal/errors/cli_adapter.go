package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for
// the releasegate command.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return a.exitCodeFromPipelineError(pe)
	}

	return 1
}

// exitCodeFromPipelineError maps error categories to exit codes.
func (a *CLIErrorAdapter) exitCodeFromPipelineError(err *PipelineError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7 // Configuration error
	case CategorySecrets:
		return 5 // Credential provisioning error
	case CategoryCancelled:
		return 130 // Conventional SIGINT exit
	case CategoryExec, CategoryTimeout:
		return 3 // Stage failure
	case CategoryGate, CategoryDaemon:
		return 8 // Coordination / service error
	default:
		return 1
	}
}

// Report logs the error and writes a user-facing line to stderr.
func (a *CLIErrorAdapter) Report(err error) {
	if err == nil {
		return
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		attrs := []any{"category", string(pe.Category)}
		if pe.Code != "" {
			attrs = append(attrs, "code", string(pe.Code))
		}
		for k, v := range pe.Context {
			attrs = append(attrs, k, v)
		}
		if a.verbose && pe.Cause != nil {
			attrs = append(attrs, "cause", pe.Cause.Error())
		}
		a.logger.Error(pe.Message, attrs...)
	} else {
		a.logger.Error(err.Error())
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
