package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("WARN", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger("loud", "json")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = NewLogger("info", "xml")
	assert.ErrorContains(t, err, "invalid log format")
}

func TestInitTracing(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing("psp-multisafepay-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "test-span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "test-span")
	assert.Contains(t, buf.String(), "psp-multisafepay-test")
}
