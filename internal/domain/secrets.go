package domain

import "log/slog"

// SecretString holds a backend credential (API key, auth token). It renders
// as a placeholder through fmt and slog so provider configs can be logged
// whole without leaking credentials.
type SecretString string

// String returns a redacted placeholder, never the actual value.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// LogValue keeps the secret out of structured logs even when ReplaceAttr
// redaction is bypassed.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Expose returns the actual secret value for use in a backend request.
func (s SecretString) Expose() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s SecretString) IsEmpty() bool {
	return len(s) == 0
}

var _ slog.LogValuer = SecretString("")
