package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aelexs/sms-otp/internal/domain"
)

// DefaultMailSlurpBaseURL is the public MailSlurp API.
const DefaultMailSlurpBaseURL = "https://api.mailslurp.com"

const mailSlurpName = "mailslurp"

// MailSlurpConfig configures the MailSlurp binding.
type MailSlurpConfig struct {
	APIKey       domain.SecretString
	BaseURL      string        // Default DefaultMailSlurpBaseURL
	PhoneCountry string        // Country for provisioned numbers, default "US"
	HTTPTimeout  time.Duration // Per-request timeout, default domain.BackendHTTPTimeout
	HTTPClient   *http.Client
}

type mailSlurpPhone struct {
	ID           string `json:"id"`
	PhoneNumber  string `json:"phoneNumber"`
	PhoneCountry string `json:"phoneCountry,omitempty"`
}

type mailSlurpPhonePage struct {
	Content []mailSlurpPhone `json:"content"`
}

type mailSlurpSMS struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type mailSlurpSMSPage struct {
	Content []mailSlurpSMS `json:"content"`
}

// MailSlurp waits natively with waitForLatestSms and falls back to polling
// the phone's inbox. It needs the phone id recorded by GetPhoneNumber.
type MailSlurp struct {
	cfg     MailSlurpConfig
	opts    Options
	rest    *restClient
	waiter  *waiter
	phoneID string
}

// NewMailSlurp validates cfg and returns an uninitialized binding.
func NewMailSlurp(cfg MailSlurpConfig, opts Options) (*MailSlurp, error) {
	if err := requireSet(cfg.APIKey.Expose(), "MAILSLURP_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMailSlurpBaseURL
	}
	if cfg.PhoneCountry == "" {
		cfg.PhoneCountry = domain.DefaultPhoneCountry
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = domain.BackendHTTPTimeout
	}
	opts = opts.withDefaults(mailSlurpName)
	return &MailSlurp{
		cfg:    cfg,
		opts:   opts,
		waiter: newWaiter(mailSlurpName, domain.DefaultPollInterval, opts),
	}, nil
}

// Initialize builds the REST client. Repeated calls are no-ops.
func (p *MailSlurp) Initialize(_ context.Context) error {
	if p.rest != nil {
		return nil
	}
	apiKey := p.cfg.APIKey
	p.rest = &restClient{
		name:       mailSlurpName,
		baseURL:    p.cfg.BaseURL,
		httpClient: newHTTPClient(p.cfg.HTTPClient),
		timeout:    p.cfg.HTTPTimeout,
		authorize: func(r *http.Request) {
			r.Header.Set("x-api-key", apiKey.Expose())
		},
	}
	return nil
}

// Cleanup drops the REST client and the phone handle.
func (p *MailSlurp) Cleanup(_ context.Context) error {
	p.rest = nil
	p.phoneID = ""
	return nil
}

// GetPhoneNumber returns the account's first number, creating one in the
// configured country when the account has none.
func (p *MailSlurp) GetPhoneNumber(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "mailslurp.get_phone_number")
	defer span.End()

	if err := p.Initialize(ctx); err != nil {
		return "", err
	}

	var page mailSlurpPhonePage
	if _, err := p.rest.call(ctx, http.MethodGet, "/phone/numbers", nil, nil, &page, 0); err != nil {
		return "", domain.NewProviderError(mailSlurpName, "list phone numbers", err)
	}
	if len(page.Content) > 0 && page.Content[0].PhoneNumber != "" {
		return p.remember(ctx, page.Content[0]), nil
	}

	p.opts.Logger.InfoContext(ctx, "no phone number on account, creating one",
		"country", p.cfg.PhoneCountry)
	var created mailSlurpPhone
	req := mailSlurpPhone{PhoneCountry: p.cfg.PhoneCountry}
	if _, err := p.rest.call(ctx, http.MethodPost, "/phone/numbers", nil, req, &created, 0); err != nil {
		return "", domain.NewProviderError(mailSlurpName, "create phone number", err)
	}
	if created.PhoneNumber == "" {
		return "", domain.NewProviderError(mailSlurpName, "create phone number",
			errEmptyPhoneNumber)
	}
	return p.remember(ctx, created), nil
}

func (p *MailSlurp) remember(ctx context.Context, phone mailSlurpPhone) string {
	p.phoneID = phone.ID
	p.waiter.markSession()
	p.opts.Logger.DebugContext(ctx, "phone number acquired", "phone", domain.MaskPhone(phone.PhoneNumber))
	return phone.PhoneNumber
}

// WaitForOTPCode waits on the phone recorded by GetPhoneNumber. The
// phoneNumber argument is informational; MailSlurp correlates by phone id.
func (p *MailSlurp) WaitForOTPCode(ctx context.Context, _ string, timeout time.Duration) (string, error) {
	if err := p.Initialize(ctx); err != nil {
		return "", err
	}
	if p.phoneID == "" {
		return "", domain.ErrNoPhoneHandle
	}
	return p.waiter.wait(ctx, timeout, p.waitForLatest, p.search)
}

func (p *MailSlurp) waitForLatest(ctx context.Context, _ time.Time, timeout time.Duration) (string, error) {
	q := url.Values{}
	q.Set("phoneNumberId", p.phoneID)
	q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	q.Set("unreadOnly", "true")

	var sms mailSlurpSMS
	status, err := p.rest.call(ctx, http.MethodGet, "/waitForLatestSms", q, nil, &sms, timeout+domain.NativeWaitSlack)
	if err != nil {
		return "", err
	}
	if status == http.StatusNoContent || sms.Body == "" {
		return "", errNoMessage
	}
	return sms.Body, nil
}

// search lists messages newer than since, newest first. The inbox pages
// oldest first unless asked otherwise.
func (p *MailSlurp) search(ctx context.Context, since time.Time) ([]string, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("sort", "DESC")
	q.Set("size", strconv.Itoa(domain.SearchPageSize))

	var page mailSlurpSMSPage
	path := "/phone/numbers/" + url.PathEscape(p.phoneID) + "/sms"
	if _, err := p.rest.call(ctx, http.MethodGet, path, q, nil, &page, 0); err != nil {
		return nil, err
	}
	bodies := make([]string, 0, len(page.Content))
	for _, sms := range page.Content {
		if sms.CreatedAt.Before(since) {
			continue
		}
		bodies = append(bodies, sms.Body)
	}
	return bodies, nil
}

var _ Provider = (*MailSlurp)(nil)
