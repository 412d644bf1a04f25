// Package provider defines the capability every SMS backend binding offers
// and implements the MailSlurp, Twilio and Mailosaur bindings.
//
// A binding either waits natively (a server-side long poll) and falls back to
// the polling engine when that call fails, or polls only. Both strategies
// share one deadline and return the same error kinds: configuration errors
// for missing credentials or handles, *domain.ProviderError for backend
// rejections and *domain.TimeoutError when the budget elapses.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/observability"
	"github.com/aelexs/sms-otp/internal/otp"
)

var tracer = otel.Tracer("provider")

// Provider is the capability contract of an SMS backend.
type Provider interface {
	// Initialize establishes backend connectivity. Safe to call repeatedly;
	// every other operation calls it implicitly.
	Initialize(ctx context.Context) error

	// Cleanup releases backend resources. Safe without a prior Initialize.
	Cleanup(ctx context.Context) error

	// GetPhoneNumber returns a number able to receive SMS, preferring one
	// already on the account and provisioning one otherwise.
	GetPhoneNumber(ctx context.Context) (string, error)

	// WaitForOTPCode blocks until an SMS to phoneNumber yields a code or
	// timeout elapses. A zero timeout means domain.DefaultOTPTimeout.
	WaitForOTPCode(ctx context.Context, phoneNumber string, timeout time.Duration) (string, error)
}

// Kind identifies a backend in the closed set the orchestrator can build.
type Kind string

const (
	KindMailSlurp Kind = "mailslurp"
	KindTwilio    Kind = "twilio"
	KindMailosaur Kind = "mailosaur"
	KindCustom    Kind = "custom"
)

// DefaultKind is used when no backend is named.
const DefaultKind = KindMailSlurp

// ParseKind resolves a backend identifier, case-insensitively. The empty
// string selects DefaultKind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return DefaultKind, nil
	case KindMailSlurp, KindTwilio, KindMailosaur, KindCustom:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, s)
	}
}

// Options carries collaborators shared by every binding. Zero fields take
// defaults: the real clock, the default extraction cascade, slog.Default().
type Options struct {
	Clock     domain.Clock
	Sleeper   domain.Sleeper
	Extractor *otp.Extractor
	Logger    *slog.Logger
}

func (o Options) withDefaults(name string) Options {
	if o.Clock == nil {
		o.Clock = domain.RealClock{}
	}
	if o.Sleeper == nil {
		if s, ok := o.Clock.(domain.Sleeper); ok {
			o.Sleeper = s
		} else {
			o.Sleeper = domain.RealClock{}
		}
	}
	if o.Extractor == nil {
		o.Extractor = otp.NewExtractor(nil)
	}
	o.Logger = observability.OrDefault(o.Logger).With(slog.String("provider", name))
	return o
}

func requireSet(value, key string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", domain.ErrConfigRequired, key)
	}
	return nil
}
