package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportArchiver stores a finished reconciliation report outside the
// database
type ReportArchiver interface {
	Archive(ctx context.Context, report *inventory.ReconciliationReport) (string, error)
}

// ReconciliationService compares cached stock with what the lots and
// parents say it should be. It never writes to stock tables.
type ReconciliationService struct {
	reader   inventory.ReconciliationReader
	archiver ReportArchiver
	metrics  *telemetry.LedgerMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciliationService creates a new ReconciliationService. archiver and
// metrics may be nil.
func NewReconciliationService(
	reader inventory.ReconciliationReader,
	archiver ReportArchiver,
	metrics *telemetry.LedgerMetrics,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		reader:   reader,
		archiver: archiver,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run checks one tenant, or every tenant when tenantID is nil
func (s *ReconciliationService) Run(ctx context.Context, tenantID *uuid.UUID) (*inventory.ReconciliationReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "run")
	defer span.End()

	snapshots, err := s.reader.LoadSnapshots(ctx, tenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load stock snapshots: %w", err)
	}

	report := inventory.BuildReconciliationReport(snapshots, s.now())
	s.metrics.RecordDiscrepancies(ctx, len(report.Discrepancies))
	telemetry.SetAttributes(span,
		"products_checked", report.ProductsChecked,
		"discrepancies", len(report.Discrepancies),
	)

	for _, d := range report.Discrepancies {
		s.logger.Warn("Stock discrepancy detected",
			zap.String("tenant_id", d.TenantID.String()),
			zap.String("product_id", d.ProductID.String()),
			zap.String("sku", d.SKU),
			zap.String("type", string(d.Type)),
			zap.String("expected", d.Expected.String()),
			zap.String("actual", d.Actual.String()),
		)
	}

	if s.archiver != nil {
		location, err := s.archiver.Archive(ctx, report)
		if err != nil {
			s.logger.Error("Failed to archive reconciliation report", zap.Error(err))
		} else {
			s.logger.Info("Reconciliation report archived", zap.String("location", location))
		}
	}

	s.logger.Info("Reconciliation finished",
		zap.Int("products_checked", report.ProductsChecked),
		zap.Int("discrepancies", len(report.Discrepancies)),
	)
	telemetry.SetOK(span)
	return report, nil
}
