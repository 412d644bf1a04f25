package errmap

import "github.com/aelexs/sms-otp/internal/domain"

// Process exit codes for the otpwait CLI.
const (
	ExitOK            = 0
	ExitConfiguration = 1
	ExitProvider      = 2
	ExitTimeout       = 3
)

// ToExitCode converts a domain error to a process exit code. Errors outside
// the taxonomy exit as configuration failures.
func ToExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case domain.IsTimeout(err):
		return ExitTimeout
	case domain.IsProvider(err):
		return ExitProvider
	default:
		return ExitConfiguration
	}
}
