package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{Enabled: false}, zap.NewNop())

	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricHelpers_RecordThroughSDK(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter, "moves_total", "moves", "{moves}")
	require.NoError(t, err)
	counter.Inc(ctx, telemetry.AttrTransactionType.String("sale"))
	counter.Add(ctx, 2, telemetry.AttrTransactionType.String("sale"))

	hist, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:       "latency",
		Unit:       "s",
		Boundaries: telemetry.DBDurationBuckets,
	})
	require.NoError(t, err)
	hist.RecordDuration(ctx, 20*time.Millisecond)

	gauge, err := telemetry.NewGauge(meter, "open_batches", "open", "{batches}")
	require.NoError(t, err)
	gauge.Record(ctx, 7)

	fgauge, err := telemetry.NewFloatGauge(meter, "value", "value", "{currency}")
	require.NoError(t, err)
	fgauge.Record(ctx, 12.5)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := make(map[string]metricdata.Metrics)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	sum, ok := byName["moves_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	h, ok := byName["latency"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(1), h.DataPoints[0].Count)

	g, ok := byName["open_batches"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(7), g.DataPoints[0].Value)

	fg, ok := byName["value"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	assert.Equal(t, 12.5, fg.DataPoints[0].Value)
}

func TestMetricHelpers_NoopMeter(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	c, err := telemetry.NewCounter(meter, "c", "", "")
	require.NoError(t, err)
	assert.NotPanics(t, func() { c.Inc(context.Background()) })
}
