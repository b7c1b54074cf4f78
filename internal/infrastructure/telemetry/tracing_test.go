package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span recorder as the global provider
func setupTestTracer(t *testing.T) (*tracetest.SpanRecorder, func()) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return sr, func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	}
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestStartServiceSpan(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartServiceSpan(context.Background(), "erp_sync", "run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, "r-1"),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "erp_sync.run", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, "r-1", attrMap(spans[0].Attributes())["run_id"].AsString())
}

func TestSetAttributes(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "attrs")
	telemetry.SetAttributes(span,
		"marketplace", "shopee",
		"processed", 10,
		"erp_id", int64(42),
		"ratio", 0.5,
		"changed", true,
		"amount", decimal.RequireFromString("12.30"),
		99, "ignored key",
		"dangling",
	)
	telemetry.SetAttribute(span, "tags", []string{"fee", "refund"})
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Equal(t, "shopee", attrs["marketplace"].AsString())
	assert.Equal(t, int64(10), attrs["processed"].AsInt64())
	assert.Equal(t, int64(42), attrs["erp_id"].AsInt64())
	assert.Equal(t, 0.5, attrs["ratio"].AsFloat64())
	assert.True(t, attrs["changed"].AsBool())
	assert.Equal(t, "12.3", attrs["amount"].AsString())
	assert.Equal(t, []string{"fee", "refund"}, attrs["tags"].AsStringSlice())
	assert.NotContains(t, attrs, "dangling")
	assert.Len(t, attrs, 7)
}

func TestRecordError(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "fails")
	telemetry.RecordError(span, errors.New("boom"))
	span.End()

	_, ok := telemetry.StartSpan(context.Background(), "ok")
	telemetry.RecordError(ok, nil)
	ok.End()

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1)
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}

func TestAddEvent(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "events")
	telemetry.AddEvent(span, "page_fetched", "page", 2, "records", 100)
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "page_fetched", events[0].Name)
	assert.Equal(t, int64(100), attrMap(events[0].Attributes)["records"].AsInt64())
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))

	_, cleanup := setupTestTracer(t)
	defer cleanup()
	ctx, span := telemetry.StartSpan(context.Background(), "traced")
	defer span.End()
	assert.Len(t, telemetry.GetTraceID(ctx), 32)
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.SetAttributes(nil, "k", "v")
		telemetry.SetAttribute(nil, "k", "v")
		telemetry.AddEvent(nil, "e")
		telemetry.RecordError(nil, errors.New("x"))
	})
}
