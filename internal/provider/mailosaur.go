package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aelexs/sms-otp/internal/domain"
)

// DefaultMailosaurBaseURL is the public Mailosaur API.
const DefaultMailosaurBaseURL = "https://mailosaur.com"

const (
	mailosaurName    = "mailosaur"
	mailosaurSMSType = "sms"
)

// MailosaurConfig configures the Mailosaur binding.
type MailosaurConfig struct {
	APIKey           domain.SecretString
	ServerID         string
	PhoneCountryCode string        // Country for provisioned numbers, default "US"
	BaseURL          string        // Default DefaultMailosaurBaseURL
	HTTPTimeout      time.Duration // Per-request timeout, default domain.BackendHTTPTimeout
	HTTPClient       *http.Client
}

type mailosaurSMSNumber struct {
	Number string `json:"number"`
}

type mailosaurServer struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	SMSNumbers []mailosaurSMSNumber `json:"smsNumbers"`
}

type mailosaurCreateNumber struct {
	CountryCode string `json:"countryCode"`
}

type mailosaurCriteria struct {
	SentTo string `json:"sentTo,omitempty"`
}

type mailosaurText struct {
	Body string `json:"body"`
}

type mailosaurMessage struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Summary  string         `json:"summary,omitempty"`
	Text     *mailosaurText `json:"text,omitempty"`
	Received time.Time      `json:"received"`
}

func (m mailosaurMessage) body() string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	return m.Summary
}

type mailosaurMessageList struct {
	Items []mailosaurMessage `json:"items"`
}

// Mailosaur waits natively with the messages await endpoint and falls back
// to searching the server's SMS messages. Messages are correlated by server
// and recipient, so no handle from GetPhoneNumber is required.
type Mailosaur struct {
	cfg    MailosaurConfig
	opts   Options
	rest   *restClient
	waiter *waiter
}

// NewMailosaur validates cfg and returns an uninitialized binding.
func NewMailosaur(cfg MailosaurConfig, opts Options) (*Mailosaur, error) {
	if err := requireSet(cfg.APIKey.Expose(), "MAILOSAUR_API_KEY"); err != nil {
		return nil, err
	}
	if err := requireSet(cfg.ServerID, "MAILOSAUR_SERVER_ID"); err != nil {
		return nil, err
	}
	if cfg.PhoneCountryCode == "" {
		cfg.PhoneCountryCode = domain.DefaultPhoneCountry
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMailosaurBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = domain.BackendHTTPTimeout
	}
	opts = opts.withDefaults(mailosaurName)
	return &Mailosaur{
		cfg:    cfg,
		opts:   opts,
		waiter: newWaiter(mailosaurName, domain.DefaultPollInterval, opts),
	}, nil
}

// Initialize builds the REST client. Repeated calls are no-ops.
func (p *Mailosaur) Initialize(_ context.Context) error {
	if p.rest != nil {
		return nil
	}
	apiKey := p.cfg.APIKey
	p.rest = &restClient{
		name:       mailosaurName,
		baseURL:    p.cfg.BaseURL,
		httpClient: newHTTPClient(p.cfg.HTTPClient),
		timeout:    p.cfg.HTTPTimeout,
		authorize: func(r *http.Request) {
			r.SetBasicAuth(apiKey.Expose(), "")
		},
	}
	return nil
}

// Cleanup drops the REST client.
func (p *Mailosaur) Cleanup(_ context.Context) error {
	p.rest = nil
	return nil
}

// GetPhoneNumber returns the server's first SMS number, creating one in the
// configured country when the server has none.
func (p *Mailosaur) GetPhoneNumber(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "mailosaur.get_phone_number")
	defer span.End()

	if err := p.Initialize(ctx); err != nil {
		return "", err
	}

	serverPath := "/api/servers/" + url.PathEscape(p.cfg.ServerID)
	var server mailosaurServer
	if _, err := p.rest.call(ctx, http.MethodGet, serverPath, nil, nil, &server, 0); err != nil {
		return "", domain.NewProviderError(mailosaurName, "get server", err)
	}
	if len(server.SMSNumbers) > 0 && server.SMSNumbers[0].Number != "" {
		p.waiter.markSession()
		return server.SMSNumbers[0].Number, nil
	}

	p.opts.Logger.InfoContext(ctx, "server has no sms number, creating one",
		"country", p.cfg.PhoneCountryCode)
	var created mailosaurSMSNumber
	req := mailosaurCreateNumber{CountryCode: p.cfg.PhoneCountryCode}
	if _, err := p.rest.call(ctx, http.MethodPost, serverPath+"/sms-numbers", nil, req, &created, 0); err != nil {
		return "", domain.NewProviderError(mailosaurName, "create sms number", err)
	}
	if created.Number == "" {
		return "", domain.NewProviderError(mailosaurName, "create sms number", errEmptyPhoneNumber)
	}
	p.waiter.markSession()
	return created.Number, nil
}

// WaitForOTPCode waits for an SMS sent to phoneNumber on the configured
// server. An empty phoneNumber matches any recipient.
func (p *Mailosaur) WaitForOTPCode(ctx context.Context, phoneNumber string, timeout time.Duration) (string, error) {
	if err := p.Initialize(ctx); err != nil {
		return "", err
	}
	criteria := mailosaurCriteria{SentTo: phoneNumber}

	native := func(ctx context.Context, since time.Time, timeout time.Duration) (string, error) {
		q := p.query(since)
		q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))

		var msg mailosaurMessage
		status, err := p.rest.call(ctx, http.MethodPost, "/api/messages/await", q, criteria, &msg, timeout+domain.NativeWaitSlack)
		if err != nil {
			return "", err
		}
		if status == http.StatusNoContent || msg.body() == "" {
			return "", errNoMessage
		}
		return msg.body(), nil
	}

	search := func(ctx context.Context, since time.Time) ([]string, error) {
		q := p.query(since)
		q.Set("page", "0")
		q.Set("itemsPerPage", strconv.Itoa(domain.SearchPageSize))

		var list mailosaurMessageList
		if _, err := p.rest.call(ctx, http.MethodPost, "/api/messages/search", q, criteria, &list, 0); err != nil {
			return nil, err
		}
		bodies := make([]string, 0, len(list.Items))
		for _, msg := range list.Items {
			if msg.Type == mailosaurSMSType && msg.body() != "" {
				bodies = append(bodies, msg.body())
			}
		}
		return bodies, nil
	}

	return p.waiter.wait(ctx, timeout, native, search)
}

func (p *Mailosaur) query(since time.Time) url.Values {
	q := url.Values{}
	q.Set("server", p.cfg.ServerID)
	q.Set("receivedAfter", since.UTC().Format(time.RFC3339Nano))
	return q
}

var _ Provider = (*Mailosaur)(nil)
