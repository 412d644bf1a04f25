package observability_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/aelexs/sms-otp/internal/observability"
)

func TestInitTelemetry_NoEndpoint(t *testing.T) {
	tel, err := observability.InitTelemetry(context.Background(), observability.TelemetryConfig{
		ServiceName:    "test-service",
		ServiceVersion: "0.0.1",
		Environment:    "test",
	})

	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_ShutdownZeroValue(t *testing.T) {
	tel := &observability.Telemetry{}

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTraceIDFromContext(t *testing.T) {
	t.Run("no active span", func(t *testing.T) {
		assert.Empty(t, observability.TraceIDFromContext(context.Background()))
	})

	t.Run("active span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
		defer span.End()

		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), observability.TraceIDFromContext(ctx))
	})
}
