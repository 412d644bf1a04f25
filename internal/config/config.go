// Package config provides configuration loading using koanf.
// Precedence: process environment, then an optional .env file, then
// compiled defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/provider"
	"github.com/aelexs/sms-otp/pkg/otpclient"
)

// Config holds all configuration for the otpwait CLI and the otpserver
// broker.
type Config struct {
	// Environment identifier: "local", "ci", "prod"
	Environment string `koanf:"environment"`

	Log       LogConfig       `koanf:"log"`
	OTP       OTPConfig       `koanf:"otp"`
	MailSlurp MailSlurpConfig `koanf:"mailslurp"`
	Twilio    TwilioConfig    `koanf:"twilio"`
	Mailosaur MailosaurConfig `koanf:"mailosaur"`
	Server    ServerConfig    `koanf:"server"`
	AWS       AWSConfig       `koanf:"aws"`
	OTEL      OTELConfig      `koanf:"otel"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// OTPConfig selects the backend and shapes every wait.
type OTPConfig struct {
	Provider string        `koanf:"provider"`
	Timeout  time.Duration `koanf:"timeout"`
	Pattern  string        `koanf:"pattern"` // Overrides the primary extraction rule
}

// MailSlurpConfig holds MailSlurp credentials.
type MailSlurpConfig struct {
	APIKey       domain.SecretString `koanf:"api_key"`
	BaseURL      string              `koanf:"base_url"`
	PhoneCountry string              `koanf:"phone_country"`
}

// TwilioConfig holds Twilio credentials.
type TwilioConfig struct {
	AccountSID      string              `koanf:"account_sid"`
	AuthToken       domain.SecretString `koanf:"auth_token"`
	FromPhoneNumber string              `koanf:"from_phone_number"`
	PollInterval    time.Duration       `koanf:"poll_interval"`
}

// MailosaurConfig holds Mailosaur credentials.
type MailosaurConfig struct {
	APIKey           domain.SecretString `koanf:"api_key"`
	ServerID         string              `koanf:"server_id"`
	PhoneCountryCode string              `koanf:"phone_country_code"`
	BaseURL          string              `koanf:"base_url"`
}

// ServerConfig holds the HTTP broker settings.
type ServerConfig struct {
	HTTPPort int `koanf:"http_port"`
}

// AWSConfig holds AWS SDK configuration for the SNS loopback sender.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
}

// sections are the env var prefixes that map to nested keys. Only the first
// underscore separates section from field: TWILIO_ACCOUNT_SID becomes
// twilio.account_sid.
var sections = []string{"log", "otp", "mailslurp", "twilio", "mailosaur", "server", "aws", "otel"}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		OTP: OTPConfig{
			Provider: string(provider.DefaultKind),
			Timeout:  domain.DefaultOTPTimeout,
		},
		MailSlurp: MailSlurpConfig{
			BaseURL:      provider.DefaultMailSlurpBaseURL,
			PhoneCountry: domain.DefaultPhoneCountry,
		},
		Twilio: TwilioConfig{
			PollInterval: domain.DefaultPollInterval,
		},
		Mailosaur: MailosaurConfig{
			BaseURL:          provider.DefaultMailosaurBaseURL,
			PhoneCountryCode: domain.DefaultPhoneCountry,
		},
		Server: ServerConfig{
			HTTPPort: 8080,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from paths (default ".env") into the
// process environment without overriding variables already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
//
// Required keys for the selected provider missing → startup failure.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: load env vars: %w", domain.ErrConfiguration, err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %w", domain.ErrConfiguration, err)
	}

	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(s)
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(s, section+"_"); ok {
			return section + "." + rest
		}
	}
	return s
}

// validateRequired checks that the selected provider's credentials are
// present and the extraction pattern compiles.
func validateRequired(cfg *Config) error {
	kind, err := provider.ParseKind(cfg.OTP.Provider)
	if err != nil {
		return err
	}

	switch kind {
	case provider.KindMailSlurp:
		if cfg.MailSlurp.APIKey.IsEmpty() {
			return fmt.Errorf("%w: MAILSLURP_API_KEY", domain.ErrConfigRequired)
		}
	case provider.KindTwilio:
		if cfg.Twilio.AccountSID == "" {
			return fmt.Errorf("%w: TWILIO_ACCOUNT_SID", domain.ErrConfigRequired)
		}
		if cfg.Twilio.AuthToken.IsEmpty() {
			return fmt.Errorf("%w: TWILIO_AUTH_TOKEN", domain.ErrConfigRequired)
		}
	case provider.KindMailosaur:
		if cfg.Mailosaur.APIKey.IsEmpty() {
			return fmt.Errorf("%w: MAILOSAUR_API_KEY", domain.ErrConfigRequired)
		}
		if cfg.Mailosaur.ServerID == "" {
			return fmt.Errorf("%w: MAILOSAUR_SERVER_ID", domain.ErrConfigRequired)
		}
	case provider.KindCustom:
		return fmt.Errorf("%w: the custom provider is only available to library callers",
			domain.ErrUnsupportedProvider)
	}

	if _, err := cfg.pattern(); err != nil {
		return err
	}
	return nil
}

func (c *Config) pattern() (*regexp.Regexp, error) {
	if c.OTP.Pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.OTP.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: OTP_PATTERN: %v", domain.ErrConfiguration, err)
	}
	return re, nil
}

// ClientConfig translates the loaded configuration into an otpclient.Config.
func (c *Config) ClientConfig(logger *slog.Logger) (otpclient.Config, error) {
	re, err := c.pattern()
	if err != nil {
		return otpclient.Config{}, err
	}
	return otpclient.Config{
		Provider: otpclient.Kind(c.OTP.Provider),
		MailSlurp: otpclient.MailSlurpConfig{
			APIKey:       c.MailSlurp.APIKey,
			BaseURL:      c.MailSlurp.BaseURL,
			PhoneCountry: c.MailSlurp.PhoneCountry,
		},
		Twilio: otpclient.TwilioConfig{
			AccountSID:      c.Twilio.AccountSID,
			AuthToken:       c.Twilio.AuthToken,
			FromPhoneNumber: c.Twilio.FromPhoneNumber,
			PollInterval:    c.Twilio.PollInterval,
		},
		Mailosaur: otpclient.MailosaurConfig{
			APIKey:           c.Mailosaur.APIKey,
			ServerID:         c.Mailosaur.ServerID,
			PhoneCountryCode: c.Mailosaur.PhoneCountryCode,
			BaseURL:          c.Mailosaur.BaseURL,
		},
		Timeout: c.OTP.Timeout,
		Pattern: re,
		Logger:  logger,
	}, nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
