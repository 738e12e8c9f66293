package secrets

import "log/slog"

// Value is an opaque secret string. Its formatting entry points are all
// redacted; only Reveal returns the raw secret, and the only caller of Reveal
// is the step environment injection in the stage runner.
type Value string

const redacted = "[REDACTED]"

// String implements fmt.Stringer with redaction.
func (Value) String() string { return redacted }

// GoString keeps %#v output redacted as well.
func (Value) GoString() string { return redacted }

// LogValue implements slog.LogValuer so a Value passed to a logger never
// exposes the secret.
func (Value) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalText redacts serialized forms (status endpoints, manifests).
func (Value) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Reveal returns the raw secret.
func (v Value) Reveal() string { return string(v) }
