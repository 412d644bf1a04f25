package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the three failure kinds callers branch on.
// Use errors.Is() for matching - never compare error strings.
var (
	// ErrConfiguration marks mistakes that must be fixed before a retry can
	// succeed: missing credentials, unknown backend, no phone number.
	ErrConfiguration = errors.New("configuration error")

	// ErrProvider marks a request the backend rejected or could not serve.
	ErrProvider = errors.New("provider error")

	// ErrTimeout marks a wait budget that elapsed without an extractable code.
	ErrTimeout = errors.New("timeout waiting for OTP code")
)

// Configuration errors. Each wraps ErrConfiguration.
var (
	ErrUnsupportedProvider = fmt.Errorf("%w: unsupported provider type", ErrConfiguration)
	ErrNoPhoneNumber       = fmt.Errorf("%w: no phone number provided, call GetPhoneNumber first or pass a phone number", ErrConfiguration)
	ErrNoPhoneHandle       = fmt.Errorf("%w: no phone handle available, call GetPhoneNumber first", ErrConfiguration)
	ErrConfigRequired      = fmt.Errorf("%w: required configuration key missing", ErrConfiguration)
	ErrInvalidPhoneNumber  = fmt.Errorf("%w: invalid phone number format", ErrConfiguration)
)

// ProviderError wraps a backend failure with the provider and operation that
// produced it. It matches both ErrProvider and the underlying cause.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

// NewProviderError builds a ProviderError for the given provider and operation.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the backend cause to errors.Is/As.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// TimeoutError reports the wait budget that elapsed.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for OTP code (%dms)", e.Timeout.Milliseconds())
}

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsConfiguration returns true if the error is a configuration mistake.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsProvider returns true if the error came from a backend.
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsTimeout returns true if the wait budget elapsed.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRetryable returns true if the error represents a condition that may
// succeed on retry. Configuration errors never do.
func IsRetryable(err error) bool {
	if err == nil || IsConfiguration(err) {
		return false
	}
	return IsTimeout(err) || IsProvider(err)
}
