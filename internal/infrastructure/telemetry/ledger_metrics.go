// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics tracks stock movements, optimistic-lock contention and
// stock health. Every method is safe to call on a nil receiver so services
// can run without metrics.
type LedgerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	movementTotal          *Counter
	conflictRetryTotal     *Counter
	conflictExhaustedTotal *Counter

	// Histogram of moved quantities
	movementQuantity *Histogram

	// Gauge metrics (point-in-time values)
	discrepancyCount *Gauge
	openBatchCount   *Gauge
	stockValue       *FloatGauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stockProvider StockMetricsProvider
}

// StockMetricsProvider provides stock data for periodic metrics collection.
// This interface allows the telemetry layer to query stock state without
// depending on the inventory domain directly.
type StockMetricsProvider interface {
	// GetOpenBatchCount returns the number of lots with stock left
	GetOpenBatchCount(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// GetStockValue returns the value of remaining stock at lot cost
	GetStockValue(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter         metric.Meter
	Logger        *zap.Logger
	StockProvider StockMetricsProvider
}

// NewLedgerMetrics creates a new LedgerMetrics instance.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		stockProvider: cfg.StockProvider,
	}

	var err error
	lm.movementTotal, err = NewCounter(
		cfg.Meter,
		"stock_movement_total",
		"Total number of ledger transactions written",
		"{transactions}",
	)
	if err != nil {
		return nil, err
	}

	lm.conflictRetryTotal, err = NewCounter(
		cfg.Meter,
		"stock_conflict_retry_total",
		"Operations rerun after losing an optimistic lock",
		"{retries}",
	)
	if err != nil {
		return nil, err
	}

	lm.conflictExhaustedTotal, err = NewCounter(
		cfg.Meter,
		"stock_conflict_exhausted_total",
		"Operations that gave up after the retry limit",
		"{operations}",
	)
	if err != nil {
		return nil, err
	}

	lm.movementQuantity, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stock_movement_quantity",
		Description: "Absolute quantity moved per ledger transaction",
		Unit:        "{units}",
		Boundaries:  QuantityBuckets,
	})
	if err != nil {
		return nil, err
	}

	lm.discrepancyCount, err = NewGauge(
		cfg.Meter,
		"stock_reconciliation_discrepancies",
		"Discrepancies found by the last reconciliation run",
		"{discrepancies}",
	)
	if err != nil {
		return nil, err
	}

	lm.openBatchCount, err = NewGauge(
		cfg.Meter,
		"stock_open_batches",
		"Number of lots with stock remaining",
		"{batches}",
	)
	if err != nil {
		return nil, err
	}

	lm.stockValue, err = NewFloatGauge(
		cfg.Meter,
		"stock_value",
		"Value of remaining stock at lot cost",
		"{currency}",
	)
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordMovement counts one ledger transaction and its quantity
func (lm *LedgerMetrics) RecordMovement(ctx context.Context, txType string, quantity decimal.Decimal) {
	if lm == nil {
		return
	}
	lm.movementTotal.Inc(ctx, AttrTransactionType.String(txType))
	lm.movementQuantity.Record(ctx, quantity.Abs().InexactFloat64(), AttrTransactionType.String(txType))
}

// RecordConflictRetry counts a rerun after a version conflict
func (lm *LedgerMetrics) RecordConflictRetry(ctx context.Context, operation string) {
	if lm == nil {
		return
	}
	lm.conflictRetryTotal.Inc(ctx, AttrOperation.String(operation))
}

// RecordConflictExhausted counts an operation that ran out of retries
func (lm *LedgerMetrics) RecordConflictExhausted(ctx context.Context, operation string) {
	if lm == nil {
		return
	}
	lm.conflictExhaustedTotal.Inc(ctx, AttrOperation.String(operation))
}

// RecordDiscrepancies records the result of a reconciliation run
func (lm *LedgerMetrics) RecordDiscrepancies(ctx context.Context, count int) {
	if lm == nil {
		return
	}
	lm.discrepancyCount.Record(ctx, int64(count))
}

// =============================================================================
// Periodic Collection
// =============================================================================

// TenantProvider provides tenant IDs for periodic metrics collection.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// This is non-blocking - use Stop() to stop collection.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	if lm == nil {
		return
	}
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go lm.runPeriodicCollection(ctx, tenantProvider, interval)
	})
}

func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lm.collectStockMetrics(ctx, tenantProvider)

	for {
		select {
		case <-lm.stopChan:
			lm.logger.Info("Stopping periodic ledger metrics collection")
			return
		case <-ctx.Done():
			lm.logger.Info("Context cancelled, stopping periodic ledger metrics collection")
			return
		case <-ticker.C:
			lm.collectStockMetrics(ctx, tenantProvider)
		}
	}
}

func (lm *LedgerMetrics) collectStockMetrics(ctx context.Context, tenantProvider TenantProvider) {
	if lm.stockProvider == nil {
		lm.logger.Debug("No stock provider configured, skipping stock metrics collection")
		return
	}

	tenantIDs, err := tenantProvider.GetActiveTenantIDs(ctx)
	if err != nil {
		lm.logger.Error("Failed to get tenant IDs for metrics collection", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		attr := AttrTenantID.String(tenantID.String())

		openBatches, err := lm.stockProvider.GetOpenBatchCount(ctx, tenantID)
		if err != nil {
			lm.logger.Warn("Failed to get open batch count for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		} else {
			lm.openBatchCount.Record(ctx, openBatches, attr)
		}

		value, err := lm.stockProvider.GetStockValue(ctx, tenantID)
		if err != nil {
			lm.logger.Warn("Failed to get stock value for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		} else {
			lm.stockValue.Record(ctx, value.InexactFloat64(), attr)
		}
	}
}

// Stop stops the periodic collection.
func (lm *LedgerMetrics) Stop() {
	if lm == nil {
		return
	}
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
