package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func newTestMeter(t *testing.T) (metric.Meter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider.Meter("test"), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:     false,
		ServiceName: "reconciler-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("noop"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestCounter(t *testing.T) {
	meter, reader := newTestMeter(t)
	ctx := context.Background()

	c, err := telemetry.NewCounter(meter, "recon_test_total", "test counter", "{events}")
	require.NoError(t, err)
	c.Inc(ctx, telemetry.AttrMarketplace.String("shopee"))
	c.Add(ctx, 4, telemetry.AttrMarketplace.String("shopee"))

	data := collect(t, reader)
	sum, ok := data["recon_test_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)
	v, _ := sum.DataPoints[0].Attributes.Value(telemetry.AttrMarketplace)
	assert.Equal(t, "shopee", v.AsString())
}

func TestHistogram(t *testing.T) {
	tests := []struct {
		name       string
		boundaries []float64
		wantBounds []float64
	}{
		{"http buckets", telemetry.HTTPDurationBuckets, telemetry.HTTPDurationBuckets},
		{"db buckets", telemetry.DBDurationBuckets, telemetry.DBDurationBuckets},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter, reader := newTestMeter(t)
			h, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
				Name:        "recon_test_seconds",
				Description: "test histogram",
				Unit:        "s",
				Boundaries:  tt.boundaries,
			})
			require.NoError(t, err)
			h.RecordDuration(context.Background(), 20*time.Millisecond, attribute.String("k", "v"))
			h.Record(context.Background(), 0.5)

			data := collect(t, reader)
			hist, ok := data["recon_test_seconds"].(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, hist.DataPoints, 2)
			assert.Equal(t, tt.wantBounds, hist.DataPoints[0].Bounds)
		})
	}
}

func TestGauge(t *testing.T) {
	meter, reader := newTestMeter(t)
	g, err := telemetry.NewGauge(meter, "recon_test_gauge", "test gauge", "{items}")
	require.NoError(t, err)
	g.Record(context.Background(), 7)
	g.Record(context.Background(), 3)

	data := collect(t, reader)
	gauge, ok := data["recon_test_gauge"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)
}

func TestReconciliationViews(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(telemetry.ReconciliationViews()...),
	)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	meter := provider.Meter("test")
	ctx := context.Background()

	links, err := telemetry.NewCounter(meter, "recon_links_total", "links", "{links}")
	require.NoError(t, err)
	links.Inc(ctx, telemetry.AttrMarketplace.String("shopee"), attribute.Int64("erp_order_id", 1))
	links.Inc(ctx, telemetry.AttrMarketplace.String("shopee"), attribute.Int64("erp_order_id", 2))

	runs, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name: "recon_sync_run_duration_seconds",
		Unit: "s",
	})
	require.NoError(t, err)
	runs.RecordDuration(ctx, 42*time.Second)

	other, err := telemetry.NewCounter(meter, "http_requests_total", "requests", "{request}")
	require.NoError(t, err)
	other.Inc(ctx, attribute.Int64("erp_order_id", 3))

	data := collect(t, reader)

	sum, ok := data["recon_links_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1, "order ids must not split the series")
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	hist, ok := data["recon_sync_run_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, telemetry.SyncRunDurationBuckets, hist.DataPoints[0].Bounds)

	untouched, ok := data["http_requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	_, kept := untouched.DataPoints[0].Attributes.Value("erp_order_id")
	assert.True(t, kept)
}
