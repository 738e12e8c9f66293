package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTrigger    = "trigger"
	KeyStage      = "stage"
	KeyStep       = "step"
	KeyStatus     = "status"
	KeyToken      = "token"
	KeyLeaseID    = "lease_id"
	KeyBundleID   = "bundle_id"
	KeyRevision   = "revision"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Token(t string) slog.Attr        { return slog.String(KeyToken, t) }
func LeaseID(id string) slog.Attr     { return slog.String(KeyLeaseID, id) }
func BundleID(id string) slog.Attr    { return slog.String(KeyBundleID, id) }
func Revision(r string) slog.Attr     { return slog.String(KeyRevision, r) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
