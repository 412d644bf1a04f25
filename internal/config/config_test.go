package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/sms-otp/internal/config"
	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/pkg/otpclient"
)

func TestDefaults(t *testing.T) {
	t.Setenv("MAILSLURP_API_KEY", "ms-key")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, "mailslurp", cfg.OTP.Provider)
	assert.Equal(t, 30*time.Second, cfg.OTP.Timeout)
	assert.Equal(t, "https://api.mailslurp.com", cfg.MailSlurp.BaseURL)
	assert.Equal(t, "US", cfg.MailSlurp.PhoneCountry)
	assert.Equal(t, 2*time.Second, cfg.Twilio.PollInterval)
	assert.Equal(t, "US", cfg.Mailosaur.PhoneCountryCode)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OTP_PROVIDER", "twilio")
	t.Setenv("OTP_TIMEOUT", "45s")
	t.Setenv("OTP_PATTERN", `PIN (\d+)`)
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_PHONE_NUMBER", "+15005550006")
	t.Setenv("TWILIO_POLL_INTERVAL", "500ms")
	t.Setenv("SERVER_HTTP_PORT", "9191")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AWS_ENDPOINT", "http://localhost:4566")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "twilio", cfg.OTP.Provider)
	assert.Equal(t, 45*time.Second, cfg.OTP.Timeout)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.Equal(t, "tok", cfg.Twilio.AuthToken.Expose())
	assert.Equal(t, "+15005550006", cfg.Twilio.FromPhoneNumber)
	assert.Equal(t, 500*time.Millisecond, cfg.Twilio.PollInterval)
	assert.Equal(t, 9191, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://localhost:4566", cfg.AWS.Endpoint)

	cc, err := cfg.ClientConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, otpclient.ProviderTwilio, cc.Provider)
	assert.Equal(t, 45*time.Second, cc.Timeout)
	require.NotNil(t, cc.Pattern)
	assert.Equal(t, `PIN (\d+)`, cc.Pattern.String())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
		wantKey string
	}{
		{
			name:    "mailslurp without api key",
			env:     map[string]string{"OTP_PROVIDER": "mailslurp"},
			wantErr: domain.ErrConfigRequired,
			wantKey: "MAILSLURP_API_KEY",
		},
		{
			name:    "twilio without auth token",
			env:     map[string]string{"OTP_PROVIDER": "twilio", "TWILIO_ACCOUNT_SID": "AC1"},
			wantErr: domain.ErrConfigRequired,
			wantKey: "TWILIO_AUTH_TOKEN",
		},
		{
			name:    "mailosaur without server id",
			env:     map[string]string{"OTP_PROVIDER": "mailosaur", "MAILOSAUR_API_KEY": "k"},
			wantErr: domain.ErrConfigRequired,
			wantKey: "MAILOSAUR_SERVER_ID",
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"OTP_PROVIDER": "fax"},
			wantErr: domain.ErrUnsupportedProvider,
		},
		{
			name:    "custom cannot come from the environment",
			env:     map[string]string{"OTP_PROVIDER": "custom"},
			wantErr: domain.ErrUnsupportedProvider,
		},
		{
			name:    "timeout without a unit",
			env:     map[string]string{"MAILSLURP_API_KEY": "k", "OTP_TIMEOUT": "30000"},
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "poll interval without a unit",
			env:     map[string]string{"OTP_PROVIDER": "twilio", "TWILIO_ACCOUNT_SID": "AC1", "TWILIO_AUTH_TOKEN": "t", "TWILIO_POLL_INTERVAL": "2000"},
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "invalid pattern",
			env:     map[string]string{"MAILSLURP_API_KEY": "k", "OTP_PATTERN": "(unclosed"},
			wantErr: domain.ErrConfiguration,
			wantKey: "OTP_PATTERN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsConfiguration(err))
			if tt.wantKey != "" {
				assert.Contains(t, err.Error(), tt.wantKey)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("loads without overriding the environment", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(path, []byte("MAILOSAUR_SERVER_ID=from-file\nMAILOSAUR_API_KEY=file-key\n"), 0o600))
		t.Setenv("MAILOSAUR_API_KEY", "env-key")
		t.Setenv("MAILOSAUR_SERVER_ID", "")
		require.NoError(t, os.Unsetenv("MAILOSAUR_SERVER_ID"))

		require.NoError(t, config.LoadDotEnv(path))

		assert.Equal(t, "from-file", os.Getenv("MAILOSAUR_SERVER_ID"))
		assert.Equal(t, "env-key", os.Getenv("MAILOSAUR_API_KEY"))
	})

	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
	})
}

func TestIsLocal(t *testing.T) {
	assert.True(t, (&config.Config{Environment: "local"}).IsLocal())
	assert.False(t, (&config.Config{Environment: "ci"}).IsLocal())
}
