package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupWithDefaults(t *testing.T) {
	ctx := context.Background()
	provider, err := Setup(ctx, Config{ServiceName: "admintrust", ServiceVersion: "test"}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown(ctx))
}

func TestSetupRejectsEmptyOTLPHost(t *testing.T) {
	_, err := Setup(context.Background(), Config{
		ServiceName: "admintrust",
		Endpoint:    "https://",
	}, zerolog.Nop())
	require.Error(t, err)
}

type captureWriter struct {
	entries []string
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.entries = append(c.entries, string(p))
	return len(p), nil
}

func TestLoggingExporterEmitsSpan(t *testing.T) {
	writer := &captureWriter{}
	exporter := newLoggingExporter(zerolog.New(writer))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)

	ctx := context.Background()
	_, span := provider.Tracer("test").Start(ctx, "verify-session")
	span.SetAttributes(attribute.String("key_id", "env-abc"))
	span.End()
	require.NoError(t, provider.Shutdown(ctx))

	require.NotEmpty(t, writer.entries)
	require.Contains(t, writer.entries[0], "verify-session")
	require.Contains(t, writer.entries[0], "env-abc")
}
