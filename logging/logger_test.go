package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/quant/contextx"
)

func TestTraceHandlerInjectsSpanContext(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(Config{Service: "fdm-pricer", Module: "solver", Level: "info"}, &buf)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = contextx.WithRunID(ctx, "run-7")

	l.With("scheme", "hundsdorfer").InfoContext(ctx, "rollback finished", "steps", 100)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, traceID.String(), rec["trace_id"])
	assert.Equal(t, spanID.String(), rec["span_id"])
	assert.Equal(t, "fdm-pricer", rec["service"])
	assert.Equal(t, "hundsdorfer", rec["scheme"])
	assert.Equal(t, "run-7", rec["run_id"])
	assert.Contains(t, rec, "timestamp")
}

func TestSetLevelAdjustsAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(Config{Service: "svc", Level: "info"}, &buf)
	t.Cleanup(func() { SetLevel("info") })

	l.Debug("hidden")
	assert.Empty(t, buf.String())

	SetLevel("debug")
	l.Debug("visible")
	assert.True(t, strings.Contains(buf.String(), "visible"))

	SetLevel("error")
	buf.Reset()
	l.Warn("dropped")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("DEBUG").String())
	assert.Equal(t, "INFO", ParseLevel("verbose").String())
	assert.Equal(t, "WARN", ParseLevel("warn").String())
}
