package loopback

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snsPublisherStub is a configurable stub for the snsPublisher interface.
type snsPublisherStub struct {
	err   error
	input *sns.PublishInput
}

func (s *snsPublisherStub) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &sns.PublishOutput{}, nil
}

func TestSNSSender_SendOTP_Success(t *testing.T) {
	// Arrange
	stub := &snsPublisherStub{}
	sender := NewSNSSender(stub)

	// Act
	err := sender.SendOTP(context.Background(), "+15551234567", "123456")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, stub.input)
	assert.Equal(t, "+15551234567", *stub.input.PhoneNumber)
	assert.Equal(t, "Your verification code is: 123456", *stub.input.Message)
	assert.Equal(t, "Transactional", *stub.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue)
}

func TestSNSSender_SendOTP_Error(t *testing.T) {
	// Arrange
	publishErr := errors.New("sns throttled")
	sender := NewSNSSender(&snsPublisherStub{err: publishErr})

	// Act
	err := sender.SendOTP(context.Background(), "+15551234567", "123456")

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, publishErr)
	assert.Contains(t, err.Error(), "sns sms: send otp to ***4567")
	assert.NotContains(t, err.Error(), "+15551234567")
}

func TestLogSender_SendOTP(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	sender := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	// Act
	err := sender.SendOTP(context.Background(), "+15551234567", "987654")

	// Assert
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "otp delivery (log-only)")
	assert.Contains(t, output, "***4567")
	assert.Contains(t, output, "987654")
	assert.NotContains(t, output, "+15551234567")
}

func TestNewSNSClient(t *testing.T) {
	t.Run("with endpoint", func(t *testing.T) {
		client, err := NewSNSClient(context.Background(), SNSConfig{
			Endpoint: "http://localhost:4566",
			Region:   "us-east-1",
			Timeout:  5 * time.Second,
		})

		require.NoError(t, err)
		require.NotNil(t, client)
	})

	t.Run("default endpoint", func(t *testing.T) {
		client, err := NewSNSClient(context.Background(), SNSConfig{Region: "us-east-1"})

		require.NoError(t, err)
		require.NotNil(t, client)
	})
}
