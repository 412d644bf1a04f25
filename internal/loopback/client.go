// Package loopback verifies a backend end to end: it sends a known code to
// an acquired number through Amazon SNS and checks the code that arrives.
package loopback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("loopback")

// SNSConfig holds SNS connection parameters.
type SNSConfig struct {
	// Endpoint overrides the default AWS endpoint.
	// Set to a LocalStack URL (e.g. "http://localhost:4566") for local development.
	Endpoint string

	Region string

	// Timeout is the HTTP client timeout for SNS requests.
	Timeout time.Duration
}

// NewSNSClient creates an SNS client configured from cfg. A non-empty
// Endpoint switches to static test credentials for LocalStack.
func NewSNSClient(ctx context.Context, cfg SNSConfig) (*sns.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.Endpoint != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("test", "test", ""),
			),
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	var snsOpts []func(*sns.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		snsOpts = append(snsOpts, func(o *sns.Options) {
			o.BaseEndpoint = &endpoint
		})
	}

	return sns.NewFromConfig(awsCfg, snsOpts...), nil
}
