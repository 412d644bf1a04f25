package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/observability"
	"github.com/aelexs/sms-otp/internal/otp"
)

// ErrCodeMismatch is a self-test that received a different code than it sent.
var ErrCodeMismatch = errors.New("received code does not match sent code")

// otpSource is the subset of *otpclient.Client the self-test drives.
type otpSource interface {
	GetPhoneNumber(ctx context.Context) (string, error)
	GetOTPCode(ctx context.Context, phoneNumber string, timeout time.Duration) (string, error)
}

// Report describes a completed self-test.
type Report struct {
	PhoneNumber string
	Sent        string
	Received    string
	Elapsed     time.Duration
}

// SelfTest sends a generated code and waits for it to come back.
type SelfTest struct {
	source   otpSource
	sender   Sender
	clock    domain.Clock
	logger   *slog.Logger
	generate func() (string, error)
}

// NewSelfTest wires a self-test. A nil clock uses the real clock.
func NewSelfTest(source otpSource, sender Sender, clock domain.Clock, logger *slog.Logger) *SelfTest {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &SelfTest{
		source:   source,
		sender:   sender,
		clock:    clock,
		logger:   observability.OrDefault(logger),
		generate: otp.Generate,
	}
}

// Run acquires a number, sends a fresh code to it and waits up to timeout
// for the same code. Errors from the client keep their kind; a different
// code yields ErrCodeMismatch.
func (s *SelfTest) Run(ctx context.Context, timeout time.Duration) (Report, error) {
	ctx, span := tracer.Start(ctx, "loopback.selftest")
	defer span.End()

	start := s.clock.Now()
	report := Report{}

	phone, err := s.source.GetPhoneNumber(ctx)
	if err != nil {
		return report, s.fail(span, fmt.Errorf("selftest: get phone number: %w", err))
	}
	report.PhoneNumber = phone

	code, err := s.generate()
	if err != nil {
		return report, s.fail(span, fmt.Errorf("selftest: generate code: %w", err))
	}
	report.Sent = code

	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		return report, s.fail(span, domain.NewProviderError("sns", "send otp", err))
	}
	s.logger.InfoContext(ctx, "selftest code sent", slog.String("phone", domain.MaskPhone(phone)))

	got, err := s.source.GetOTPCode(ctx, phone, timeout)
	report.Elapsed = s.clock.Now().Sub(start)
	if err != nil {
		return report, s.fail(span, fmt.Errorf("selftest: wait for code: %w", err))
	}
	report.Received = got

	if got != code {
		return report, s.fail(span, fmt.Errorf("%w: sent %s, received %s", ErrCodeMismatch, code, got))
	}

	span.SetAttributes(attribute.Int64("otp.elapsed_ms", report.Elapsed.Milliseconds()))
	s.logger.InfoContext(ctx, "selftest passed", slog.Duration("elapsed", report.Elapsed))
	return report, nil
}

func (s *SelfTest) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
