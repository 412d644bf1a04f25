package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/aelexs/sms-otp/internal/domain"
)

const (
	twilioName = "twilio"

	// twilioMessageLimit caps how many messages one search pulls.
	twilioMessageLimit = 20
)

// TwilioConfig configures the Twilio binding.
type TwilioConfig struct {
	AccountSID      string
	AuthToken       domain.SecretString
	FromPhoneNumber string        // Returned by GetPhoneNumber when set
	PollInterval    time.Duration // Default domain.DefaultPollInterval
}

// twilioAPI is the subset of the Twilio 2010 API the binding calls.
// *openapi.ApiService satisfies it.
type twilioAPI interface {
	ListIncomingPhoneNumber(params *openapi.ListIncomingPhoneNumberParams) ([]openapi.ApiV2010IncomingPhoneNumber, error)
	ListMessage(params *openapi.ListMessageParams) ([]openapi.ApiV2010Message, error)
}

// Twilio has no server-side wait, so it polls the Messages list only.
type Twilio struct {
	cfg    TwilioConfig
	opts   Options
	api    twilioAPI
	waiter *waiter
}

// NewTwilio validates cfg and returns an uninitialized binding.
func NewTwilio(cfg TwilioConfig, opts Options) (*Twilio, error) {
	if err := requireSet(cfg.AccountSID, "TWILIO_ACCOUNT_SID"); err != nil {
		return nil, err
	}
	if err := requireSet(cfg.AuthToken.Expose(), "TWILIO_AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = domain.DefaultPollInterval
	}
	opts = opts.withDefaults(twilioName)
	return &Twilio{
		cfg:    cfg,
		opts:   opts,
		waiter: newWaiter(twilioName, cfg.PollInterval, opts),
	}, nil
}

// Initialize builds the SDK client. Repeated calls are no-ops.
func (p *Twilio) Initialize(_ context.Context) error {
	if p.api != nil {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: p.cfg.AccountSID,
		Password: p.cfg.AuthToken.Expose(),
	})
	p.api = client.Api
	return nil
}

// Cleanup drops the SDK client. The message watermark survives so a
// re-initialized binding does not replay old messages.
func (p *Twilio) Cleanup(_ context.Context) error {
	p.api = nil
	return nil
}

// GetPhoneNumber returns FromPhoneNumber when configured, else the
// account's first incoming number. Twilio numbers are never provisioned.
func (p *Twilio) GetPhoneNumber(ctx context.Context) (string, error) {
	_, span := tracer.Start(ctx, "twilio.get_phone_number")
	defer span.End()

	if err := p.Initialize(ctx); err != nil {
		return "", err
	}
	if p.cfg.FromPhoneNumber != "" {
		p.waiter.markSession()
		return p.cfg.FromPhoneNumber, nil
	}

	params := &openapi.ListIncomingPhoneNumberParams{}
	params.SetPageSize(1)
	params.SetLimit(1)
	numbers, err := p.api.ListIncomingPhoneNumber(params)
	if err != nil {
		return "", domain.NewProviderError(twilioName, "list incoming phone numbers", err)
	}
	if len(numbers) == 0 || numbers[0].PhoneNumber == nil || *numbers[0].PhoneNumber == "" {
		return "", fmt.Errorf("%w: no phone number on the Twilio account, set TWILIO_FROM_PHONE_NUMBER",
			domain.ErrConfiguration)
	}
	p.waiter.markSession()
	return *numbers[0].PhoneNumber, nil
}

// WaitForOTPCode polls messages sent to phoneNumber since the watermark.
func (p *Twilio) WaitForOTPCode(ctx context.Context, phoneNumber string, timeout time.Duration) (string, error) {
	if err := p.Initialize(ctx); err != nil {
		return "", err
	}

	search := func(_ context.Context, since time.Time) ([]string, error) {
		params := &openapi.ListMessageParams{}
		params.SetTo(phoneNumber)
		params.SetDateSentAfter(since)
		params.SetPageSize(twilioMessageLimit)
		params.SetLimit(twilioMessageLimit)

		messages, err := p.api.ListMessage(params)
		if err != nil {
			return nil, err
		}
		// DateSent has second precision.
		floor := since.Truncate(time.Second)
		bodies := make([]string, 0, len(messages))
		for _, m := range messages {
			if m.Body == nil || *m.Body == "" {
				continue
			}
			if m.DateSent != nil {
				if sent, err := time.Parse(time.RFC1123Z, *m.DateSent); err == nil && sent.Before(floor) {
					continue
				}
			}
			bodies = append(bodies, *m.Body)
		}
		return bodies, nil
	}

	return p.waiter.wait(ctx, timeout, nil, search)
}

var _ Provider = (*Twilio)(nil)
