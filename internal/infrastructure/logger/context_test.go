package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestContextIDs(t *testing.T) {
	ctx := WithTenantID(WithRequestID(context.Background(), "req-1"), "t-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "t-1", GetTenantID(ctx))
	assert.Empty(t, GetTenantID(context.Background()))
}

func TestCtx(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	ctx = WithTenantID(WithRequestID(ctx, "req-1"), "t-1")

	Ctx(ctx, base).Info("tenant suspended")

	require.Len(t, recorded.All(), 1)
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "t-1", fields["tenant_id"])
}

func TestCtx_FallsBackToContextLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	Ctx(ctx, nil).Info("no correlation fields")

	require.Len(t, recorded.All(), 1)
	assert.Empty(t, recorded.All()[0].Context)
}
