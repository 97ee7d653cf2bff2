package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Service: "sessionkit", Version: "1.0.0"}, &buf)
	require.NoError(t, err)

	logger.Info("test message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "sessionkit", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.NotContains(t, entry, "trace_id")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Service: "gateway", Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "gateway")
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestSetup_RejectsUnknownOptions(t *testing.T) {
	_, err := Setup(Options{Format: "xml"}, nil)
	assert.Error(t, err)

	_, err = Setup(Options{Level: "chatty"}, nil)
	assert.Error(t, err)
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Service: "sessionkit"}, &buf)
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.With("component", "rotate").InfoContext(ctx, "traced message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "rotate", entry["component"])
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing happens")
}
