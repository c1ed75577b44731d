package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockLedgerService is the entry point for every stock mutation. Each
// mutation loads one physical product and its lots inside a database
// transaction, applies the domain ledger and persists the result. Lost
// optimistic-concurrency races rerun the whole unit.
type StockLedgerService struct {
	scope           TransactionScope
	productRepo     inventory.ProductRepository
	batchRepo       inventory.BatchRepository
	transactionRepo inventory.TransactionRepository
	ledger          *inventory.StockLedger
	propagator      *SubproductPropagator
	retrier         *conflictRetrier
	metrics         *telemetry.LedgerMetrics
	logger          *zap.Logger
}

// StockLedgerOption configures a StockLedgerService
type StockLedgerOption func(*StockLedgerService)

// WithRetryConfig overrides the conflict retry budget
func WithRetryConfig(cfg RetryConfig) StockLedgerOption {
	return func(s *StockLedgerService) {
		s.retrier.cfg = cfg
	}
}

// WithLedgerMetrics records movement and conflict metrics
func WithLedgerMetrics(metrics *telemetry.LedgerMetrics) StockLedgerOption {
	return func(s *StockLedgerService) {
		s.metrics = metrics
		s.retrier.metrics = metrics
	}
}

// WithLedger replaces the domain ledger, mostly to pin its clock in tests
func WithLedger(ledger *inventory.StockLedger) StockLedgerOption {
	return func(s *StockLedgerService) {
		s.ledger = ledger
	}
}

// NewStockLedgerService creates a new StockLedgerService
func NewStockLedgerService(
	scope TransactionScope,
	productRepo inventory.ProductRepository,
	batchRepo inventory.BatchRepository,
	transactionRepo inventory.TransactionRepository,
	logger *zap.Logger,
	opts ...StockLedgerOption,
) *StockLedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StockLedgerService{
		scope:           scope,
		productRepo:     productRepo,
		batchRepo:       batchRepo,
		transactionRepo: transactionRepo,
		ledger:          inventory.NewStockLedger(inventory.NewFIFOAllocator()),
		logger:          logger,
		retrier:         &conflictRetrier{cfg: DefaultRetryConfig(), logger: logger},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.propagator = NewSubproductPropagator(scope, productRepo, logger)
	s.propagator.retrier.cfg = s.retrier.cfg
	s.propagator.retrier.metrics = s.metrics
	return s
}

// Ledger exposes the domain ledger used by the service
func (s *StockLedgerService) Ledger() *inventory.StockLedger {
	return s.ledger
}

// Propagator returns the subproduct propagator run after parent changes
func (s *StockLedgerService) Propagator() *SubproductPropagator {
	return s.propagator
}

// RetryConflicts runs fn under the service's conflict retry policy. Other
// application services use it to give their own atomic units the same
// retry semantics as ledger mutations.
func (s *StockLedgerService) RetryConflicts(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return s.retrier.Do(ctx, operation, fn)
}

// ReceiveStock books goods into a new batch of a physical product
func (s *StockLedgerService) ReceiveStock(ctx context.Context, tenantID uuid.UUID, req ReceiveStockRequest) (*ReceiveStockResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_ledger", "receive_stock")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrProductID, req.ProductID.String(),
		telemetry.SpanAttrQuantity, req.Quantity.String(),
	)

	cmd := inventory.ReceiveCommand{
		Quantity:    req.Quantity,
		CostPerUnit: req.CostPerUnit,
		BatchNumber: req.BatchNumber,
		ExpiryDate:  req.ExpiryDate,
		ReceivedAt:  req.ReceivedAt,
		Reference:   req.Reference.toDomain(),
		PerformedBy: req.PerformedBy,
		Reason:      req.Reason,
	}

	var result *inventory.LedgerResult
	var product *inventory.Product
	err := s.retrier.Do(ctx, "receive_stock", func(ctx context.Context) error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			product, err = repos.ProductRepo().FindByIDForTenant(ctx, tenantID, req.ProductID)
			if err != nil {
				return err
			}
			result, err = s.ledger.Receive(product, cmd)
			if err != nil {
				return err
			}
			return s.persist(ctx, repos, product, result)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordMovement(ctx, result.Transaction.Type.String(), result.Transaction.Quantity)
	s.logger.Info("Stock received",
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("batch_id", result.CreatedBatch.ID.String()),
		zap.String("quantity", req.Quantity.String()),
	)
	s.propagator.Propagate(ctx, tenantID, product.ID)
	telemetry.SetOK(span)

	return &ReceiveStockResponse{
		BatchID:       result.CreatedBatch.ID,
		BatchNumber:   result.CreatedBatch.BatchNumber,
		TransactionID: result.Transaction.ID,
		NewStock:      product.CurrentStock,
	}, nil
}

// AdjustStock applies a manual correction. Positive deltas without an
// explicit unit cost are valued at the latest known lot cost.
func (s *StockLedgerService) AdjustStock(ctx context.Context, tenantID uuid.UUID, req AdjustStockRequest) (*TransactionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_ledger", "adjust_stock")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrProductID, req.ProductID.String(),
		telemetry.SpanAttrQuantity, req.Delta.String(),
	)

	ref := inventory.Reference{Type: inventory.ReferenceTypeManualAdjustment, ID: uuid.New()}
	if req.Reference != nil {
		ref = req.Reference.toDomain()
	}

	var result *inventory.LedgerResult
	var product *inventory.Product
	err := s.retrier.Do(ctx, "adjust_stock", func(ctx context.Context) error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			product, err = repos.ProductRepo().FindByIDForTenant(ctx, tenantID, req.ProductID)
			if err != nil {
				return err
			}
			if err := product.RequirePhysical(); err != nil {
				return err
			}
			cmd := inventory.AdjustCommand{
				Delta:          req.Delta,
				AdjustmentType: inventory.AdjustmentType(req.AdjustmentType),
				Reason:         req.Reason,
				Reference:      ref,
				PerformedBy:    req.PerformedBy,
				ExpiryDate:     req.ExpiryDate,
			}

			var batches []*inventory.InventoryBatch
			if req.Delta.IsNegative() {
				batches, err = repos.BatchRepo().FindOpenByProduct(ctx, tenantID, product.ID)
				if err != nil {
					return err
				}
			} else {
				cmd.UnitCost, err = s.adjustmentCost(ctx, repos, product, req.UnitCost)
				if err != nil {
					return err
				}
			}

			result, err = s.ledger.Adjust(product, batches, cmd)
			if err != nil {
				return err
			}
			return s.persist(ctx, repos, product, result)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordMovement(ctx, result.Transaction.Type.String(), result.Transaction.Quantity)
	s.logger.Info("Stock adjusted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("adjustment_type", req.AdjustmentType),
		zap.String("delta", req.Delta.String()),
		zap.String("transaction_id", result.Transaction.ID.String()),
	)
	s.propagator.Propagate(ctx, tenantID, product.ID)
	telemetry.SetOK(span)

	resp := ToTransactionResponse(result.Transaction)
	return &resp, nil
}

func (s *StockLedgerService) adjustmentCost(ctx context.Context, repos TransactionalRepositories, product *inventory.Product, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if explicit != nil {
		return *explicit, nil
	}
	latest, err := repos.BatchRepo().FindLatestByProduct(ctx, product.TenantID, product.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return latest.CostPerUnit, nil
}

// ConsumeForOrder consumes stock for each order line in its own atomic unit.
// A failing line does not roll back the others; the result reports each
// line's outcome.
func (s *StockLedgerService) ConsumeForOrder(ctx context.Context, tenantID uuid.UUID, req ConsumeForOrderRequest) (*ConsumeForOrderResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_ledger", "consume_for_order")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		"item_count", len(req.Items),
	)

	if len(req.Items) == 0 {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "At least one item is required")
	}

	out := &ConsumeForOrderResult{OrderID: req.OrderID, Items: make([]ItemConsumptionResult, 0, len(req.Items))}
	touched := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		line := ItemConsumptionResult{ItemID: item.ItemID, ProductID: item.ProductID}

		var outcome *LineOutcome
		err := s.retrier.Do(ctx, "consume_for_order", func(ctx context.Context) error {
			return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
				var err error
				outcome, err = s.ApplyLineDelta(ctx, repos, LineDelta{
					TenantID:    tenantID,
					ProductID:   item.ProductID,
					From:        decimal.Zero,
					To:          item.Quantity,
					Reference:   inventory.OrderLineReference(req.OrderID, item.ItemID),
					PerformedBy: req.PerformedBy,
					Reason:      "order consumption",
				})
				return err
			})
		})
		if err != nil {
			line.Error = ToErrorInfo(err)
			out.Failed++
			s.logger.Warn("Order line consumption failed",
				zap.String("order_id", req.OrderID.String()),
				zap.String("item_id", item.ItemID.String()),
				zap.Error(err),
			)
			out.Items = append(out.Items, line)
			continue
		}

		line.Success = true
		line.PhysicalProductID = outcome.PhysicalProduct.ID
		line.PhysicalQuantity = outcome.ParentDelta
		if outcome.Result != nil {
			txID := outcome.Result.Transaction.ID
			line.TransactionID = &txID
			line.Allocations = ToLotAllocations(outcome.Result.Plan)
			s.metrics.RecordMovement(ctx, outcome.Result.Transaction.Type.String(), outcome.Result.Transaction.Quantity)
		}
		touched = append(touched, outcome.PhysicalProduct.ID)
		out.Succeeded++
		out.Items = append(out.Items, line)
	}

	s.propagator.Propagate(ctx, tenantID, touched...)
	s.logger.Info("Order consumption processed",
		zap.String("order_id", req.OrderID.String()),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
	)
	telemetry.SetAttributes(span, "succeeded", out.Succeeded, "failed", out.Failed)
	telemetry.SetOK(span)
	return out, nil
}

// ReverseOrderConsumption restores everything still consumed for an order.
// Each affected physical product is reversed in its own atomic unit; the
// first failure stops the run and is returned. Running it again picks up
// whatever is still unreversed.
func (s *StockLedgerService) ReverseOrderConsumption(ctx context.Context, tenantID, orderID uuid.UUID, performedBy *uuid.UUID, reason string) (*ReverseOrderResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_ledger", "reverse_order_consumption")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrOrderID, orderID.String(),
	)

	ref := inventory.Reference{Type: inventory.ReferenceTypeOrder, ID: orderID}
	out := s.CompleteReversal(ctx, tenantID, orderID, nil)

	productIDs, err := s.productsConsumedFor(ctx, s.transactionRepo, tenantID, ref)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for _, productID := range productIDs {
		var results []*inventory.LedgerResult
		err := s.retrier.Do(ctx, "reverse_order_consumption", func(ctx context.Context) error {
			return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
				var err error
				results, err = s.ReverseReferenceForProduct(ctx, repos, tenantID, productID, ref, performedBy, reason)
				return err
			})
		})
		if err != nil {
			telemetry.RecordError(span, err)
			s.logger.Error("Failed to reverse order consumption",
				zap.String("order_id", orderID.String()),
				zap.String("product_id", productID.String()),
				zap.Error(err),
			)
			return out, err
		}
		done := s.CompleteReversal(ctx, tenantID, orderID, results)
		out.ReversedTransactions = append(out.ReversedTransactions, done.ReversedTransactions...)
		out.ReversalTransactions = append(out.ReversalTransactions, done.ReversalTransactions...)
	}

	s.logger.Info("Order consumption reversed",
		zap.String("order_id", orderID.String()),
		zap.Int("reversed", len(out.ReversedTransactions)),
	)
	telemetry.SetOK(span)
	return out, nil
}

// ReverseReference fully reverses every unreversed sale recorded against
// ref inside the caller's transaction, product by product. Callers that
// also change the referencing document do so in the same transaction and
// hand the results to CompleteReversal once it commits.
func (s *StockLedgerService) ReverseReference(
	ctx context.Context,
	repos TransactionalRepositories,
	tenantID uuid.UUID,
	ref inventory.Reference,
	performedBy *uuid.UUID,
	reason string,
) ([]*inventory.LedgerResult, error) {
	productIDs, err := s.productsConsumedFor(ctx, repos.TransactionRepo(), tenantID, ref)
	if err != nil {
		return nil, err
	}
	results := make([]*inventory.LedgerResult, 0)
	for _, productID := range productIDs {
		done, err := s.ReverseReferenceForProduct(ctx, repos, tenantID, productID, ref, performedBy, reason)
		if err != nil {
			return nil, err
		}
		results = append(results, done...)
	}
	return results, nil
}

// CompleteReversal records committed reversal results: movements are
// counted, derived stock of each touched product is refreshed and the
// transaction ids are summarised.
func (s *StockLedgerService) CompleteReversal(ctx context.Context, tenantID, orderID uuid.UUID, results []*inventory.LedgerResult) *ReverseOrderResult {
	out := &ReverseOrderResult{
		OrderID:              orderID,
		ReversedTransactions: make([]uuid.UUID, 0),
		ReversalTransactions: make([]uuid.UUID, 0),
	}
	touched := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]struct{})
	for _, r := range results {
		out.ReversalTransactions = append(out.ReversalTransactions, r.Transaction.ID)
		for _, rt := range r.ReversedTransactions {
			out.ReversedTransactions = append(out.ReversedTransactions, rt.ID)
		}
		s.metrics.RecordMovement(ctx, r.Transaction.Type.String(), r.Transaction.Quantity)
		if _, ok := seen[r.Transaction.ProductID]; !ok {
			seen[r.Transaction.ProductID] = struct{}{}
			touched = append(touched, r.Transaction.ProductID)
		}
	}
	if len(touched) > 0 {
		s.propagator.Propagate(ctx, tenantID, touched...)
	}
	return out
}

// ProductsConsumedFor lists the physical products that still have
// unreversed sales for a reference, in a stable order
func (s *StockLedgerService) ProductsConsumedFor(ctx context.Context, tenantID uuid.UUID, ref inventory.Reference) ([]uuid.UUID, error) {
	return s.productsConsumedFor(ctx, s.transactionRepo, tenantID, ref)
}

func (s *StockLedgerService) productsConsumedFor(ctx context.Context, repo inventory.TransactionRepository, tenantID uuid.UUID, ref inventory.Reference) ([]uuid.UUID, error) {
	sales, err := repo.FindUnreversedByReference(ctx, tenantID, ref, inventory.TransactionTypeSale)
	if err != nil {
		return nil, fmt.Errorf("failed to find consumptions for reference: %w", err)
	}
	seen := make(map[uuid.UUID]struct{}, len(sales))
	ids := make([]uuid.UUID, 0, len(sales))
	for _, tx := range sales {
		if _, ok := seen[tx.ProductID]; ok {
			continue
		}
		seen[tx.ProductID] = struct{}{}
		ids = append(ids, tx.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// ReverseReferenceForProduct fully reverses every unreversed sale of one
// physical product recorded against ref, inside the caller's transaction.
// Transactions are reversed newest first.
func (s *StockLedgerService) ReverseReferenceForProduct(
	ctx context.Context,
	repos TransactionalRepositories,
	tenantID, productID uuid.UUID,
	ref inventory.Reference,
	performedBy *uuid.UUID,
	reason string,
) ([]*inventory.LedgerResult, error) {
	product, err := repos.ProductRepo().FindByIDForTenant(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	sales, err := s.unreversedSales(ctx, repos, tenantID, product.ID, ref)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	batches, err := s.batchesOf(ctx, repos, tenantID, sales)
	if err != nil {
		return nil, err
	}

	results := make([]*inventory.LedgerResult, 0, len(sales))
	for i := len(sales) - 1; i >= 0; i-- {
		result, err := s.ledger.Reverse(product, sales[i], batches, inventory.ReverseCommand{PerformedBy: performedBy, Reason: reason})
		if err != nil {
			return nil, err
		}
		if err := s.persist(ctx, repos, product, result); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// ReverseTransaction fully reverses a single transaction
func (s *StockLedgerService) ReverseTransaction(ctx context.Context, tenantID, transactionID uuid.UUID, performedBy *uuid.UUID, reason string) (*TransactionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_ledger", "reverse_transaction")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrTransactionID, transactionID.String(),
	)

	var result *inventory.LedgerResult
	var product *inventory.Product
	err := s.retrier.Do(ctx, "reverse_transaction", func(ctx context.Context) error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			original, err := repos.TransactionRepo().FindByID(ctx, tenantID, transactionID)
			if err != nil {
				return err
			}
			if err := original.CheckReversible(); err != nil {
				return err
			}
			if err := checkNotPackedForOrder(ctx, repos, original); err != nil {
				return err
			}
			product, err = repos.ProductRepo().FindByIDForTenant(ctx, tenantID, original.ProductID)
			if err != nil {
				return err
			}

			var batches []*inventory.InventoryBatch
			if original.IsReceipt() {
				created, err := repos.BatchRepo().FindByCreatingTransaction(ctx, tenantID, original.ID)
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return err
				}
				if created != nil {
					batches = []*inventory.InventoryBatch{created}
				}
			} else {
				batches, err = s.batchesOf(ctx, repos, tenantID, []*inventory.InventoryTransaction{original})
				if err != nil {
					return err
				}
			}

			result, err = s.ledger.Reverse(product, original, batches, inventory.ReverseCommand{PerformedBy: performedBy, Reason: reason})
			if err != nil {
				return err
			}
			return s.persist(ctx, repos, product, result)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordMovement(ctx, result.Transaction.Type.String(), result.Transaction.Quantity)
	s.logger.Info("Transaction reversed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("transaction_id", transactionID.String()),
		zap.String("reversal_id", result.Transaction.ID.String()),
	)
	s.propagator.Propagate(ctx, tenantID, product.ID)
	telemetry.SetOK(span)

	resp := ToTransactionResponse(result.Transaction)
	return &resp, nil
}

// checkNotPackedForOrder rejects reversing stock packed for an order on its
// own: the order's packed quantities would still claim it
func checkNotPackedForOrder(ctx context.Context, repos TransactionalRepositories, original *inventory.InventoryTransaction) error {
	if original.ReferenceType != inventory.ReferenceTypeOrder || repos.OrderRepo() == nil {
		return nil
	}
	_, err := repos.OrderRepo().FindByIDForTenant(ctx, original.TenantID, original.ReferenceID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return inventory.NewNotReversibleError(original.ID,
		"stock packed for an order is returned by reversing or cancelling the order's packing").
		WithDetail("order_id", original.ReferenceID.String())
}

// GetVirtualStock returns what a product can sell now. Physical products
// report their stock; subproducts are projected live from the parent so a
// lagging cache never overstates availability.
func (s *StockLedgerService) GetVirtualStock(ctx context.Context, tenantID, productID uuid.UUID) (*VirtualStockResponse, error) {
	product, err := s.productRepo.FindByIDForTenant(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	resp := &VirtualStockResponse{
		ProductID:      product.ID,
		Kind:           product.Kind.String(),
		Stock:          product.CurrentStock,
		LossPercentage: product.LossPercentage,
	}
	if product.IsPhysical() {
		return resp, nil
	}

	parent, err := s.productRepo.FindByIDForTenant(ctx, tenantID, *product.ParentProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent product: %w", err)
	}
	loss := inventory.EffectiveLoss(product, parent)
	parentStock := parent.CurrentStock
	resp.ParentProductID = product.ParentProductID
	resp.ParentStock = &parentStock
	resp.LossPercentage = &loss
	resp.Stock = inventory.VirtualStock(parent.CurrentStock, loss)
	return resp, nil
}

// GetTransactionHistory returns one page of a product's transactions,
// newest first. A subproduct's history is its parent's, since that is
// where its consumptions are recorded.
func (s *StockLedgerService) GetTransactionHistory(ctx context.Context, tenantID, productID uuid.UUID, filter TransactionListFilter) (*shared.Paginated[TransactionResponse], error) {
	product, err := s.productRepo.FindByIDForTenant(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	owner := product.ID
	if product.IsDerived() {
		owner = *product.ParentProductID
	}

	domainFilter := inventory.TransactionFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  "created_at",
			OrderDir: filter.OrderDir,
		},
		ReferenceID: filter.ReferenceID,
		StartDate:   filter.StartDate,
		EndDate:     filter.EndDate,
	}
	if filter.TransactionType != "" {
		t := inventory.TransactionType(filter.TransactionType)
		domainFilter.TransactionType = &t
	}
	if filter.ReferenceType != "" {
		r := inventory.ReferenceType(filter.ReferenceType)
		domainFilter.ReferenceType = &r
	}
	domainFilter.Filter = domainFilter.Filter.Normalize()

	txs, total, err := s.transactionRepo.FindByProduct(ctx, tenantID, owner, domainFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	items := make([]TransactionResponse, len(txs))
	for i, tx := range txs {
		items[i] = ToTransactionResponse(tx)
	}
	page := shared.NewPaginated(items, total, domainFilter.Page, domainFilter.PageSize)
	return &page, nil
}

// ListBatches returns one page of a physical product's lots, FIFO order
func (s *StockLedgerService) ListBatches(ctx context.Context, tenantID, productID uuid.UUID, filter BatchListFilter) (*shared.Paginated[BatchResponse], error) {
	product, err := s.productRepo.FindByIDForTenant(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	if err := product.RequirePhysical(); err != nil {
		return nil, err
	}

	domainFilter := inventory.BatchFilter{
		Filter:         shared.Filter{Page: filter.Page, PageSize: filter.PageSize},
		OnlyOpen:       filter.OnlyOpen,
		IncludeExpired: true,
	}
	domainFilter.Filter = domainFilter.Filter.Normalize()

	batches, total, err := s.batchRepo.FindByProduct(ctx, tenantID, product.ID, domainFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	now := time.Now()
	items := make([]BatchResponse, len(batches))
	for i, b := range batches {
		items[i] = ToBatchResponse(b, now)
	}
	page := shared.NewPaginated(items, total, domainFilter.Page, domainFilter.PageSize)
	return &page, nil
}

// persist writes a ledger result. The order matters: the product row is
// version-checked first so a lost race fails before anything else is
// written, and the transaction precedes the batch that references it.
func (s *StockLedgerService) persist(ctx context.Context, repos TransactionalRepositories, product *inventory.Product, result *inventory.LedgerResult) error {
	if err := repos.ProductRepo().SaveWithVersion(ctx, product); err != nil {
		return err
	}
	for _, tx := range result.ReversedTransactions {
		if err := repos.TransactionRepo().MarkReversed(ctx, tx); err != nil {
			return err
		}
	}
	if len(result.UpdatedConsumptions) > 0 {
		if err := repos.TransactionRepo().UpdateConsumptionReversal(ctx, result.UpdatedConsumptions); err != nil {
			return err
		}
	}
	if err := repos.TransactionRepo().Create(ctx, result.Transaction); err != nil {
		return err
	}
	if result.CreatedBatch != nil {
		if err := repos.BatchRepo().Create(ctx, result.CreatedBatch); err != nil {
			return err
		}
	}
	for _, b := range result.TouchedBatches {
		if err := repos.BatchRepo().SaveWithVersion(ctx, b); err != nil {
			return err
		}
	}
	if events := product.PullDomainEvents(); len(events) > 0 {
		if err := repos.SaveEvents(ctx, events...); err != nil {
			return fmt.Errorf("failed to save domain events: %w", err)
		}
	}
	return nil
}

func (s *StockLedgerService) unreversedSales(ctx context.Context, repos TransactionalRepositories, tenantID, productID uuid.UUID, ref inventory.Reference) ([]*inventory.InventoryTransaction, error) {
	all, err := repos.TransactionRepo().FindUnreversedByReference(ctx, tenantID, ref, inventory.TransactionTypeSale)
	if err != nil {
		return nil, err
	}
	sales := make([]*inventory.InventoryTransaction, 0, len(all))
	for _, tx := range all {
		if tx.ProductID == productID {
			sales = append(sales, tx)
		}
	}
	return sales, nil
}

// batchesOf loads every lot referenced by the transactions' consumption rows
func (s *StockLedgerService) batchesOf(ctx context.Context, repos TransactionalRepositories, tenantID uuid.UUID, txs []*inventory.InventoryTransaction) ([]*inventory.InventoryBatch, error) {
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0)
	for _, tx := range txs {
		for _, c := range tx.Consumptions {
			if _, ok := seen[c.BatchID]; ok {
				continue
			}
			seen[c.BatchID] = struct{}{}
			ids = append(ids, c.BatchID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return repos.BatchRepo().FindByIDs(ctx, tenantID, ids)
}

// ToLotAllocations converts an allocation plan to its response form
func ToLotAllocations(plan *inventory.AllocationPlan) []LotAllocation {
	if plan == nil {
		return nil
	}
	lots := make([]LotAllocation, len(plan.Allocations))
	for i, a := range plan.Allocations {
		lots[i] = LotAllocation{
			BatchID:     a.BatchID,
			BatchNumber: a.BatchNumber,
			Quantity:    a.Quantity,
			UnitCost:    a.UnitCost,
		}
	}
	return lots
}

// ToErrorInfo converts an error to the per-item failure shape
func ToErrorInfo(err error) *ErrorInfo {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return &ErrorInfo{Code: de.Code, Message: de.Message, Details: de.Details}
	}
	return &ErrorInfo{Code: "INTERNAL_ERROR", Message: err.Error()}
}
