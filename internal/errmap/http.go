// Package errmap maps the OTP error taxonomy onto transport codes: HTTP
// statuses for the broker and process exit codes for the CLI.
package errmap

import (
	"context"
	"errors"
	"net/http"

	"github.com/aelexs/sms-otp/internal/domain"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// StatusClientClosedRequest reports a caller that went away before the
// response was written. It is not a server fault.
const StatusClientClosedRequest = 499

// httpMapping defines a domain error to HTTP status/code mapping.
type httpMapping struct {
	err        error
	statusCode int
	code       string
}

// httpMappings maps domain errors to HTTP status codes and error codes.
// Order matters: first match wins (via errors.Is).
var httpMappings = []httpMapping{
	// Validation errors: 400
	{domain.ErrInvalidPhoneNumber, http.StatusBadRequest, "INVALID_PHONE_NUMBER"},
	{domain.ErrNoPhoneNumber, http.StatusBadRequest, "NO_PHONE_NUMBER"},
	{domain.ErrNoPhoneHandle, http.StatusBadRequest, "NO_PHONE_HANDLE"},
	{domain.ErrConfiguration, http.StatusBadRequest, "CONFIGURATION"},

	// Waiting: 504
	{domain.ErrTimeout, http.StatusGatewayTimeout, "TIMEOUT"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
	{context.Canceled, StatusClientClosedRequest, "CANCELLED"},

	// Backend failures: 502
	{domain.ErrProvider, http.StatusBadGateway, "PROVIDER"},
}

// ToHTTPError converts a domain error to an HTTP error.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: err.Error()}
		}
	}
	// Never expose internal error details to clients
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}
