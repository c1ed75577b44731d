package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeStockProvider struct {
	open  int64
	value decimal.Decimal
	err   error
}

func (f *fakeStockProvider) GetOpenBatchCount(_ context.Context, _ uuid.UUID) (int64, error) {
	return f.open, f.err
}

func (f *fakeStockProvider) GetStockValue(_ context.Context, _ uuid.UUID) (decimal.Decimal, error) {
	return f.value, f.err
}

type staticTenants []uuid.UUID

func (s staticTenants) GetActiveTenantIDs(_ context.Context) ([]uuid.UUID, error) {
	return s, nil
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newLedgerMetrics(t *testing.T, provider telemetry.StockMetricsProvider) (*telemetry.LedgerMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	lm, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:         mp.Meter("ledger"),
		Logger:        zap.NewNop(),
		StockProvider: provider,
	})
	require.NoError(t, err)
	return lm, reader
}

func TestNewLedgerMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{})
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestLedgerMetrics_NilReceiverIsSafe(t *testing.T) {
	var lm *telemetry.LedgerMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		lm.RecordMovement(ctx, "sale", decimal.NewFromInt(3))
		lm.RecordConflictRetry(ctx, "consume")
		lm.RecordConflictExhausted(ctx, "consume")
		lm.RecordDiscrepancies(ctx, 2)
		lm.StartPeriodicCollection(ctx, staticTenants{}, time.Second)
		lm.Stop()
	})
}

func TestLedgerMetrics_Counters(t *testing.T) {
	lm, reader := newLedgerMetrics(t, nil)
	ctx := context.Background()

	lm.RecordMovement(ctx, "sale", decimal.NewFromInt(-15))
	lm.RecordMovement(ctx, "sale", decimal.NewFromInt(5))
	lm.RecordConflictRetry(ctx, "consume")
	lm.RecordConflictExhausted(ctx, "consume")
	lm.RecordDiscrepancies(ctx, 4)

	metrics := collect(t, reader)

	moves := metrics["stock_movement_total"].Data.(metricdata.Sum[int64])
	require.Len(t, moves.DataPoints, 1)
	assert.Equal(t, int64(2), moves.DataPoints[0].Value)

	qty := metrics["stock_movement_quantity"].Data.(metricdata.Histogram[float64])
	assert.Equal(t, 20.0, qty.DataPoints[0].Sum)

	retries := metrics["stock_conflict_retry_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(1), retries.DataPoints[0].Value)

	exhausted := metrics["stock_conflict_exhausted_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(1), exhausted.DataPoints[0].Value)

	discrepancies := metrics["stock_reconciliation_discrepancies"].Data.(metricdata.Gauge[int64])
	assert.Equal(t, int64(4), discrepancies.DataPoints[0].Value)
}

func TestLedgerMetrics_PeriodicCollection(t *testing.T) {
	provider := &fakeStockProvider{open: 3, value: decimal.RequireFromString("42.5")}
	lm, reader := newLedgerMetrics(t, provider)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lm.StartPeriodicCollection(ctx, staticTenants{uuid.New()}, time.Hour)
	defer lm.Stop()

	require.Eventually(t, func() bool {
		_, ok := collect(t, reader)["stock_open_batches"]
		return ok
	}, time.Second, 10*time.Millisecond)

	metrics := collect(t, reader)
	open := metrics["stock_open_batches"].Data.(metricdata.Gauge[int64])
	assert.Equal(t, int64(3), open.DataPoints[0].Value)
	value := metrics["stock_value"].Data.(metricdata.Gauge[float64])
	assert.Equal(t, 42.5, value.DataPoints[0].Value)
}

func TestLedgerMetrics_ProviderErrorsSkipGauges(t *testing.T) {
	lm, reader := newLedgerMetrics(t, &fakeStockProvider{err: errors.New("db down")})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lm.StartPeriodicCollection(ctx, staticTenants{uuid.New()}, time.Hour)
	time.Sleep(50 * time.Millisecond)
	lm.Stop()

	_, ok := collect(t, reader)["stock_open_batches"]
	assert.False(t, ok)
}

func TestGormStockMetricsProvider(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE inventory_batches (
		id TEXT PRIMARY KEY, tenant_id TEXT, quantity_remaining NUMERIC,
		cost_per_unit NUMERIC, is_consumed BOOLEAN)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE products (id TEXT PRIMARY KEY, tenant_id TEXT)`).Error)

	tenantID := uuid.New()
	rows := []struct {
		remaining, cost float64
		consumed        bool
	}{{10, 2, false}, {5, 3, false}, {0, 9, true}}
	for _, r := range rows {
		require.NoError(t, db.Exec(`INSERT INTO inventory_batches VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), tenantID, r.remaining, r.cost, r.consumed).Error)
	}
	require.NoError(t, db.Exec(`INSERT INTO products VALUES (?, ?), (?, ?)`,
		uuid.NewString(), tenantID, uuid.NewString(), tenantID).Error)

	provider := telemetry.NewGormStockMetricsProvider(db)
	ctx := context.Background()

	open, err := provider.GetOpenBatchCount(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), open)

	value, err := provider.GetStockValue(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(35).Equal(value), value.String())

	tenants, err := telemetry.NewGormTenantProvider(db).GetActiveTenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tenantID}, tenants)
}
