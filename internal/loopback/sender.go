package loopback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/aelexs/sms-otp/internal/domain"
)

// Sender delivers a code to a phone number.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// snsPublisher is a narrow, consumer-defined interface for the subset of SNS
// operations the sender needs. The real *sns.Client satisfies it.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Compile-time interface satisfaction checks.
var (
	_ Sender       = (*SNSSender)(nil)
	_ Sender       = (*LogSender)(nil)
	_ snsPublisher = (*sns.Client)(nil)
)

// MessageFormat is the SMS body the self-test sends. The extraction cascade
// must recover the code from it with the primary rule.
const MessageFormat = "Your verification code is: %s"

// SNSSender publishes codes as transactional SMS through Amazon SNS.
type SNSSender struct {
	client snsPublisher
}

// NewSNSSender creates an SNSSender backed by the given SNS client.
func NewSNSSender(client snsPublisher) *SNSSender {
	return &SNSSender{client: client}
}

// SendOTP publishes the code to phone.
func (s *SNSSender) SendOTP(ctx context.Context, phone, code string) error {
	ctx, span := tracer.Start(ctx, "loopback.sns_publish")
	defer span.End()

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(fmt.Sprintf(MessageFormat, code)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	})
	if err != nil {
		return fmt.Errorf("sns sms: send otp to %s: %w", domain.MaskPhone(phone), err)
	}

	return nil
}

// LogSender logs the code instead of sending it, for local runs without AWS.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender writing to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendOTP logs the delivery with a masked phone number.
func (s *LogSender) SendOTP(ctx context.Context, phone, code string) error {
	s.logger.InfoContext(ctx, "otp delivery (log-only)",
		slog.String("phone", domain.MaskPhone(phone)),
		slog.String("otp", code),
	)
	return nil
}
