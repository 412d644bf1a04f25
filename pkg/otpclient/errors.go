package otpclient

import (
	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/provider"
)

// Error kinds. Match with errors.Is.
var (
	ErrConfiguration       = domain.ErrConfiguration
	ErrProvider            = domain.ErrProvider
	ErrTimeout             = domain.ErrTimeout
	ErrUnsupportedProvider = domain.ErrUnsupportedProvider
	ErrNoPhoneNumber       = domain.ErrNoPhoneNumber
	ErrNoPhoneHandle       = domain.ErrNoPhoneHandle
	ErrConfigRequired      = domain.ErrConfigRequired
)

type (
	// ProviderError is a backend failure. Match with errors.As.
	ProviderError = domain.ProviderError

	// TimeoutError reports the budget that elapsed. Match with errors.As.
	TimeoutError = domain.TimeoutError

	// StatusError is a non-2xx response from a REST backend, wrapped by
	// ProviderError.
	StatusError = provider.StatusError
)

// IsRetryable reports whether err may succeed on retry. Configuration
// errors never do.
func IsRetryable(err error) bool {
	return domain.IsRetryable(err)
}
