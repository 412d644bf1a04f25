// Package port exposes the OTP client over plain HTTP JSON so test suites in
// any language can drive it.
package port

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/errmap"
	"github.com/aelexs/sms-otp/internal/observability"
	"github.com/aelexs/sms-otp/pkg/otpclient"
)

var tracer = otel.Tracer("broker/port")

var errInvalidTimeout = fmt.Errorf("%w: timeout_ms must be a non-negative integer", domain.ErrConfiguration)

// otpClient is the subset of *otpclient.Client the handler drives.
type otpClient interface {
	GetPhoneNumber(ctx context.Context) (string, error)
	GetOTPCode(ctx context.Context, phoneNumber string, timeout time.Duration) (string, error)
	GetPhoneNumberAndOTPCode(ctx context.Context, timeout time.Duration) (otpclient.Result, error)
}

var _ otpClient = (*otpclient.Client)(nil)

type phoneNumberResponse struct {
	PhoneNumber string `json:"phone_number"`
}

type otpResponse struct {
	OTPCode string `json:"otp_code"`
}

// OTPHandler serves the broker endpoints. The underlying client holds one
// session, so calls run one at a time in arrival order.
type OTPHandler struct {
	client otpClient
	logger *slog.Logger
	sem    chan struct{}
}

// NewOTPHandler creates a handler over client.
func NewOTPHandler(client otpClient, logger *slog.Logger) *OTPHandler {
	return &OTPHandler{
		client: client,
		logger: logger,
		sem:    make(chan struct{}, 1),
	}
}

// Register mounts the broker routes on mux.
func (h *OTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/phone-number", h.PhoneNumber)
	mux.HandleFunc("GET /v1/otp", h.OTP)
	mux.HandleFunc("POST /v1/phone-number-and-otp", h.PhoneNumberAndOTP)
}

// PhoneNumber acquires a number and makes it the session number.
func (h *OTPHandler) PhoneNumber(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "broker.phone_number")
	defer span.End()

	release, err := h.acquire(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	defer release()

	phone, err := h.client.GetPhoneNumber(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, phoneNumberResponse{PhoneNumber: phone})
}

// OTP waits for a code. phone_number is optional and must be E.164 when
// present; timeout_ms is optional.
func (h *OTPHandler) OTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "broker.otp")
	defer span.End()

	var phone string
	if raw := r.URL.Query().Get("phone_number"); raw != "" {
		p, err := domain.NewPhoneNumber(raw)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		phone = p.String()
	}
	timeout, err := parseTimeout(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	span.SetAttributes(attribute.Int64("otp.timeout_ms", timeout.Milliseconds()))

	release, err := h.acquire(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	defer release()

	code, err := h.client.GetOTPCode(ctx, phone, timeout)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, otpResponse{OTPCode: code})
}

// PhoneNumberAndOTP acquires a number and waits for its code in one call.
func (h *OTPHandler) PhoneNumberAndOTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "broker.phone_number_and_otp")
	defer span.End()

	timeout, err := parseTimeout(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	release, err := h.acquire(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	defer release()

	res, err := h.client.GetPhoneNumberAndOTPCode(ctx, timeout)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// acquire waits for exclusive use of the client or for ctx to end.
func (h *OTPHandler) acquire(ctx context.Context) (func(), error) {
	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// parseTimeout reads timeout_ms. Absent or zero means the client default;
// values above domain.MaxWaitTimeout are capped.
func parseTimeout(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("timeout_ms")
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return 0, errInvalidTimeout
	}
	return min(time.Duration(ms)*time.Millisecond, domain.MaxWaitTimeout), nil
}

func (h *OTPHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	httpErr := errmap.ToHTTPError(err)
	level := slog.LevelWarn
	if httpErr.StatusCode >= http.StatusInternalServerError && httpErr.StatusCode != http.StatusGatewayTimeout {
		level = slog.LevelError
	}
	observability.WithTraceID(ctx, h.logger).Log(ctx, level, "broker request failed",
		slog.Int("status", httpErr.StatusCode),
		slog.String("code", httpErr.Code),
		slog.String("error", err.Error()),
	)
	writeJSON(w, httpErr.StatusCode, httpErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
