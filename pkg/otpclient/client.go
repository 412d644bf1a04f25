package otpclient

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/observability"
	"github.com/aelexs/sms-otp/internal/otp"
	"github.com/aelexs/sms-otp/internal/provider"
)

var tracer = otel.Tracer("otpclient")

var waitTotal metric.Int64Counter

func init() {
	m := otel.Meter("otpclient")

	waitTotal, _ = m.Int64Counter("otp_wait_total",
		metric.WithDescription("Total OTP waits, by provider and outcome"))
}

type (
	// Kind selects a built-in backend.
	Kind = provider.Kind

	// Provider is the capability contract a custom backend implements.
	Provider = provider.Provider

	MailSlurpConfig = provider.MailSlurpConfig
	TwilioConfig    = provider.TwilioConfig
	MailosaurConfig = provider.MailosaurConfig

	// Clock supplies the current time; tests inject a fake.
	Clock = domain.Clock

	// Secret holds a credential that never appears in logs.
	Secret = domain.SecretString
)

const (
	ProviderMailSlurp = provider.KindMailSlurp
	ProviderTwilio    = provider.KindTwilio
	ProviderMailosaur = provider.KindMailosaur
	ProviderCustom    = provider.KindCustom
)

// Config configures a Client. Only the section matching Provider is read.
type Config struct {
	Provider  Kind // Default ProviderMailSlurp
	MailSlurp MailSlurpConfig
	Twilio    TwilioConfig
	Mailosaur MailosaurConfig

	// CustomProvider, when set, is used regardless of Provider.
	CustomProvider Provider

	// Timeout is the wait budget when a call passes none. Default 30s.
	Timeout time.Duration

	// Pattern replaces the primary extraction rule; the fallback rules
	// still apply. Ignored by custom providers.
	Pattern *regexp.Regexp

	Logger *slog.Logger
	Clock  Clock
}

// Result is a phone number and the code it received.
type Result struct {
	PhoneNumber string `json:"phone_number"`
	OTPCode     string `json:"otp_code"`
}

// Client is a session against one SMS backend. It is not safe for
// concurrent use; callers serialize access.
type Client struct {
	provider    Provider
	kind        Kind
	timeout     time.Duration
	clock       Clock
	logger      *slog.Logger
	session     domain.SessionID
	phoneNumber string
}

// New selects and constructs the backend. It performs no network calls;
// missing credentials and unknown backends fail here with ErrConfiguration.
func New(cfg Config) (*Client, error) {
	logger := observability.OrDefault(cfg.Logger)

	kind, p, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}

	session := domain.GenerateSessionID()
	return &Client{
		provider: p,
		kind:     kind,
		timeout:  domain.TimeoutOrDefault(cfg.Timeout),
		clock:    clock,
		logger:   logger.With(slog.String("provider", string(kind)), slog.String("session_id", session.String())),
		session:  session,
	}, nil
}

func newProvider(cfg Config, logger *slog.Logger) (Kind, Provider, error) {
	if cfg.CustomProvider != nil {
		return ProviderCustom, cfg.CustomProvider, nil
	}

	kind, err := provider.ParseKind(string(cfg.Provider))
	if err != nil {
		return "", nil, err
	}

	opts := provider.Options{
		Clock:     cfg.Clock,
		Extractor: otp.NewExtractor(cfg.Pattern),
		Logger:    logger,
	}
	switch kind {
	case ProviderMailSlurp:
		p, err := provider.NewMailSlurp(cfg.MailSlurp, opts)
		return kind, p, err
	case ProviderTwilio:
		p, err := provider.NewTwilio(cfg.Twilio, opts)
		return kind, p, err
	case ProviderMailosaur:
		p, err := provider.NewMailosaur(cfg.Mailosaur, opts)
		return kind, p, err
	default:
		return "", nil, fmt.Errorf("%w: provider %q requires CustomProvider", domain.ErrConfigRequired, kind)
	}
}

// Kind returns the selected backend.
func (c *Client) Kind() Kind { return c.kind }

// SessionID identifies this client in logs and traces.
func (c *Client) SessionID() string { return c.session.String() }

// PhoneNumber returns the number remembered from the last GetPhoneNumber.
func (c *Client) PhoneNumber() string { return c.phoneNumber }

// Initialize connects the backend. Other calls initialize implicitly.
func (c *Client) Initialize(ctx context.Context) error {
	ctx, span := c.start(ctx, "otpclient.initialize")
	defer span.End()
	return c.finish(span, c.provider.Initialize(ctx))
}

// Cleanup releases backend resources. Safe without Initialize.
func (c *Client) Cleanup(ctx context.Context) error {
	ctx, span := c.start(ctx, "otpclient.cleanup")
	defer span.End()
	return c.finish(span, c.provider.Cleanup(ctx))
}

// GetPhoneNumber acquires a number and remembers it for GetOTPCode.
func (c *Client) GetPhoneNumber(ctx context.Context) (string, error) {
	ctx, span := c.start(ctx, "otpclient.get_phone_number")
	defer span.End()

	phone, err := c.provider.GetPhoneNumber(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "get phone number failed", slog.String("error", err.Error()))
		return "", c.finish(span, err)
	}
	c.phoneNumber = phone
	c.logger.InfoContext(ctx, "phone number acquired", slog.String("phone", domain.MaskPhone(phone)))
	return phone, nil
}

// GetOTPCode waits for a code sent to phoneNumber, or to the remembered
// number when phoneNumber is empty. A zero timeout uses Config.Timeout.
func (c *Client) GetOTPCode(ctx context.Context, phoneNumber string, timeout time.Duration) (string, error) {
	ctx, span := c.start(ctx, "otpclient.get_otp_code")
	defer span.End()

	if phoneNumber == "" {
		phoneNumber = c.phoneNumber
	}
	if phoneNumber == "" {
		c.recordWait(ctx, domain.ErrNoPhoneNumber)
		return "", c.finish(span, domain.ErrNoPhoneNumber)
	}
	if timeout <= 0 {
		timeout = c.timeout
	}
	span.SetAttributes(attribute.Int64("otp.timeout_ms", timeout.Milliseconds()))

	logger := c.logger.With(slog.String("phone", domain.MaskPhone(phoneNumber)))
	logger.InfoContext(ctx, "waiting for otp code", slog.Int64("timeout_ms", timeout.Milliseconds()))
	start := c.clock.Now()

	code, err := c.provider.WaitForOTPCode(ctx, phoneNumber, timeout)
	c.recordWait(ctx, err)
	if err != nil {
		logger.WarnContext(ctx, "otp wait failed",
			slog.String("error", err.Error()), slog.Duration("elapsed", c.clock.Now().Sub(start)))
		return "", c.finish(span, err)
	}
	logger.InfoContext(ctx, "otp code received", slog.Duration("elapsed", c.clock.Now().Sub(start)))
	return code, nil
}

// GetPhoneNumberAndOTPCode acquires a number and waits for its code.
func (c *Client) GetPhoneNumberAndOTPCode(ctx context.Context, timeout time.Duration) (Result, error) {
	phone, err := c.GetPhoneNumber(ctx)
	if err != nil {
		return Result{}, err
	}
	code, err := c.GetOTPCode(ctx, phone, timeout)
	if err != nil {
		return Result{}, err
	}
	return Result{PhoneNumber: phone, OTPCode: code}, nil
}

func (c *Client) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("otp.provider", string(c.kind)),
		attribute.String("otp.session_id", c.session.String()),
	))
}

func (c *Client) finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) recordWait(ctx context.Context, err error) {
	waitTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(c.kind)),
		attribute.String("outcome", outcome(err)),
	))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsTimeout(err):
		return "timeout"
	case domain.IsConfiguration(err):
		return "configuration_error"
	case domain.IsProvider(err):
		return "provider_error"
	default:
		return "error"
	}
}
