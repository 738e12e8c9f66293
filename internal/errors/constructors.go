package errors

// Convenience constructors for the pipeline error taxonomy

// Credential errors

// MissingCredential reports a required credential absent at resolution time.
// The owning step fails closed: it is never executed.
func MissingCredential(name string) *PipelineError {
	return New(CategorySecrets, SeverityFatal, "required credential not registered").
		WithCode(CodeMissingCredential).
		WithContext("credential", name)
}

// DuplicateCredential reports a registration conflict in an overlapping scope.
func DuplicateCredential(name string) *PipelineError {
	return New(CategorySecrets, SeverityFatal, "credential already registered in overlapping scope").
		WithCode(CodeDuplicateCredential).
		WithContext("credential", name)
}

// Step execution errors

// StepExecutionError reports a non-zero exit from an external command.
func StepExecutionError(step string, exitCode int, cause error) *PipelineError {
	return Wrap(cause, CategoryExec, SeverityFatal, "step command exited non-zero").
		WithCode(CodeStepExecution).
		WithContext("step", step).
		WithContext("exit_code", exitCode)
}

// StepTimeout reports a step exceeding its configured duration bound.
func StepTimeout(step string, cause error) *PipelineError {
	return Wrap(cause, CategoryTimeout, SeverityFatal, "step exceeded its time bound").
		WithCode(CodeTimeout).
		WithContext("step", step)
}

// Artifact capture errors

// CaptureError reports a failed artifact collection. Capture failures are
// recorded on the run but never flip a succeeded stage to failed.
func CaptureError(cause error) *PipelineError {
	return Wrap(cause, CategoryCapture, SeverityWarning, "artifact capture failed").
		WithCode(CodeCapture)
}

// Concurrency gate errors

// InvalidLease reports gate misuse: a release of a lease that is no longer held.
func InvalidLease(token string) *PipelineError {
	return New(CategoryGate, SeverityError, "lease already released").
		WithCode(CodeInvalidLease).
		WithContext("token", token)
}

// GateWaitTimeout reports that a run gave up waiting for the gate.
func GateWaitTimeout(token string) *PipelineError {
	return New(CategoryGate, SeverityError, "timed out waiting for concurrency gate").
		WithCode(CodeTimeout).
		WithContext("token", token)
}

// LeaseTimeout reports a lease held past its maximum duration and reclaimed
// by the gate so other runs are not starved.
func LeaseTimeout(token string) *PipelineError {
	return New(CategoryGate, SeverityError, "lease held past maximum duration and force-released").
		WithCode(CodeLeaseTimeout).
		WithContext("token", token)
}

// Cancellation

// Cancelled reports an external abort of the pipeline invocation.
func Cancelled(cause error) *PipelineError {
	return Wrap(cause, CategoryCancelled, SeverityError, "pipeline invocation cancelled").
		WithCode(CodeCancelled)
}

// Config errors

func ConfigNotFound(path string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *PipelineError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Daemon errors

func DaemonError(message string) *PipelineError {
	return New(CategoryDaemon, SeverityError, message)
}

// Internal errors

func InternalError(message string, cause error) *PipelineError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}

// Code helpers used throughout the coordinator and tests

func IsMissingCredential(err error) bool { return IsCode(err, CodeMissingCredential) }
func IsTimeout(err error) bool           { return IsCode(err, CodeTimeout) }
func IsCancelled(err error) bool         { return IsCode(err, CodeCancelled) }
func IsInvalidLease(err error) bool      { return IsCode(err, CodeInvalidLease) }
func IsLeaseTimeout(err error) bool      { return IsCode(err, CodeLeaseTimeout) }
