package domain_test

import (
	"testing"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneNumber(t *testing.T) {
	t.Run("valid E.164 numbers", func(t *testing.T) {
		for _, raw := range []string{"+14155552671", "+447911123456", "+1234567", "+123456789012345"} {
			p, err := domain.NewPhoneNumber(raw)
			require.NoError(t, err, "expected %q to be valid", raw)
			assert.Equal(t, raw, p.String())
			assert.False(t, p.IsZero())
		}
	})

	t.Run("invalid numbers are configuration errors", func(t *testing.T) {
		for _, raw := range []string{"", "14155552671", "+0123456789", "+123456", "+1234567890123456", "+1 415 555 2671"} {
			_, err := domain.NewPhoneNumber(raw)
			require.Error(t, err, "expected %q to be invalid", raw)
			assert.ErrorIs(t, err, domain.ErrInvalidPhoneNumber)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		}
	})
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"standard phone number", "+15551234567", "***4567"},
		{"exactly 5 characters", "12345", "***2345"},
		{"exactly 4 characters", "1234", "****"},
		{"empty string", "", "****"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.MaskPhone(tt.phone))
		})
	}
}
