package packing

import (
	"context"
	"errors"

	appinventory "github.com/erp/stockcore/internal/application/inventory"
	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PackingService drives orders through the packing workflow. Packed
// quantity changes are charged to the stock ledger in the same database
// transaction that records them on the order.
type PackingService struct {
	scope       appinventory.TransactionScope
	orderRepo   packing.OrderRepository
	productRepo inventory.ProductRepository
	ledger      *appinventory.StockLedgerService
	logger      *zap.Logger
}

// NewPackingService creates a new PackingService
func NewPackingService(
	scope appinventory.TransactionScope,
	orderRepo packing.OrderRepository,
	productRepo inventory.ProductRepository,
	ledger *appinventory.StockLedgerService,
	logger *zap.Logger,
) *PackingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PackingService{
		scope:       scope,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		ledger:      ledger,
		logger:      logger,
	}
}

// Create creates an order awaiting approval
func (s *PackingService) Create(ctx context.Context, tenantID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, shared.NewDomainError("NO_ITEMS", "Order requires at least one item")
	}

	_, err := s.orderRepo.FindByOrderNumber(ctx, tenantID, req.OrderNumber)
	if err == nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Order with this number already exists")
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	order, err := packing.NewOrder(tenantID, req.OrderNumber, req.CustomerReference)
	if err != nil {
		return nil, err
	}

	for _, input := range req.Items {
		product, err := s.productRepo.FindByIDForTenant(ctx, tenantID, input.ProductID)
		if err != nil {
			return nil, err
		}
		if _, err := order.AddItem(product.ID, product.SKU, input.Quantity); err != nil {
			return nil, err
		}
	}

	err = s.scope.Execute(ctx, func(repos appinventory.TransactionalRepositories) error {
		if err := repos.OrderRepo().Create(ctx, order); err != nil {
			return err
		}
		return repos.SaveEvents(ctx, order.PullDomainEvents()...)
	})
	if err != nil {
		s.logger.Error("Failed to create order", zap.String("order_number", req.OrderNumber), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items", len(order.Items)),
	)
	resp := ToOrderResponse(order)
	return &resp, nil
}

// GetByID retrieves an order by ID
func (s *PackingService) GetByID(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.orderRepo.FindByIDForTenant(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

// List retrieves a list of orders with filtering and pagination
func (s *PackingService) List(ctx context.Context, tenantID uuid.UUID, filter OrderListFilter) ([]OrderResponse, int64, error) {
	var status *packing.OrderStatus
	if filter.Status != "" {
		st := packing.OrderStatus(filter.Status)
		if !st.IsValid() {
			return nil, 0, shared.NewDomainError("INVALID_STATUS", "Invalid order status")
		}
		status = &st
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
	}
	orders, total, err := s.orderRepo.FindAllForTenant(ctx, tenantID, status, domainFilter.Normalize())
	if err != nil {
		return nil, 0, err
	}

	responses := make([]OrderResponse, len(orders))
	for i, o := range orders {
		responses[i] = ToOrderResponse(o)
	}
	return responses, total, nil
}

// Approve confirms an order awaiting approval
func (s *PackingService) Approve(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderResponse, error) {
	return s.transition(ctx, tenantID, orderID, "approve", (*packing.Order).Approve)
}

// StartPacking moves a confirmed order into packing
func (s *PackingService) StartPacking(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderResponse, error) {
	return s.transition(ctx, tenantID, orderID, "start_packing", (*packing.Order).StartPacking)
}

// MarkReady moves a fully packed order to ready_for_delivery. It never
// touches stock.
func (s *PackingService) MarkReady(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderResponse, error) {
	return s.transition(ctx, tenantID, orderID, "mark_ready", (*packing.Order).MarkReady)
}

// Deliver marks an order as delivered
func (s *PackingService) Deliver(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderResponse, error) {
	return s.transition(ctx, tenantID, orderID, "deliver", (*packing.Order).Deliver)
}

// transition applies a status change with optimistic locking
func (s *PackingService) transition(ctx context.Context, tenantID, orderID uuid.UUID, operation string, fn func(*packing.Order) error) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "packing", operation)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrOrderID, orderID.String(),
	)

	var order *packing.Order
	err := s.ledger.RetryConflicts(ctx, operation, func(ctx context.Context) error {
		return s.scope.Execute(ctx, func(repos appinventory.TransactionalRepositories) error {
			var err error
			order, err = repos.OrderRepo().FindByIDForTenant(ctx, tenantID, orderID)
			if err != nil {
				return err
			}
			if err := fn(order); err != nil {
				return err
			}
			if err := repos.OrderRepo().SaveWithVersion(ctx, order); err != nil {
				return err
			}
			return repos.SaveEvents(ctx, order.PullDomainEvents()...)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("status", order.Status.String()),
	)
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderStatus, order.Status.String())
	telemetry.SetOK(span)
	resp := ToOrderResponse(order)
	return &resp, nil
}

// SetPackedQuantity sets how much of an item is packed. The difference from
// the current packed quantity is consumed from, or restored to, stock in the
// same transaction that records the new quantity. Subproduct items are
// charged to their parent in parent units.
func (s *PackingService) SetPackedQuantity(ctx context.Context, tenantID, orderID, itemID uuid.UUID, req SetPackedQuantityRequest) (*PackedQuantityResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "packing", "set_packed_quantity")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrOrderID, orderID.String(),
		telemetry.SpanAttrItemID, itemID.String(),
		telemetry.SpanAttrQuantity, req.PackedQuantity.String(),
	)

	var (
		order   *packing.Order
		outcome *appinventory.LineOutcome
	)
	err := s.ledger.RetryConflicts(ctx, "set_packed_quantity", func(ctx context.Context) error {
		outcome = nil
		return s.scope.Execute(ctx, func(repos appinventory.TransactionalRepositories) error {
			var err error
			order, err = repos.OrderRepo().FindByIDForTenant(ctx, tenantID, orderID)
			if err != nil {
				return err
			}
			delta, item, err := order.PackedDelta(itemID, req.PackedQuantity)
			if err != nil {
				return err
			}
			if delta.IsZero() {
				return nil
			}

			outcome, err = s.ledger.ApplyLineDelta(ctx, repos, appinventory.LineDelta{
				TenantID:    tenantID,
				ProductID:   item.ProductID,
				From:        item.PackedQuantity,
				To:          req.PackedQuantity,
				Reference:   inventory.OrderLineReference(order.ID, item.ID),
				PerformedBy: req.PerformedBy,
				Reason:      "packing " + order.OrderNumber,
			})
			if err != nil {
				return err
			}

			if err := order.SetPackedQuantity(itemID, req.PackedQuantity); err != nil {
				return err
			}
			if err := repos.OrderRepo().SaveWithVersion(ctx, order); err != nil {
				return err
			}
			return repos.SaveEvents(ctx, order.PullDomainEvents()...)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Failed to set packed quantity",
			zap.String("order_id", orderID.String()),
			zap.String("item_id", itemID.String()),
			zap.String("packed_quantity", req.PackedQuantity.String()),
			zap.Error(err),
		)
		return nil, err
	}

	resp := &PackedQuantityResponse{Order: ToOrderResponse(order), PhysicalDelta: decimal.Zero}
	if outcome != nil {
		resp.PhysicalProductID = outcome.PhysicalProduct.ID
		resp.PhysicalDelta = outcome.ParentDelta
		if outcome.Result != nil {
			txID := outcome.Result.Transaction.ID
			resp.TransactionID = &txID
			resp.Allocations = appinventory.ToLotAllocations(outcome.Result.Plan)
			s.ledger.Propagator().Propagate(ctx, tenantID, outcome.PhysicalProduct.ID)
		}
	}

	s.logger.Info("Packed quantity set",
		zap.String("order_id", orderID.String()),
		zap.String("item_id", itemID.String()),
		zap.String("packed_quantity", req.PackedQuantity.String()),
		zap.String("physical_delta", resp.PhysicalDelta.String()),
	)
	telemetry.SetOK(span)
	return resp, nil
}

// PackAll packs every incomplete item of an order to its ordered quantity.
// Items are independent: a failing item does not undo the others, and the
// result reports each item's outcome.
func (s *PackingService) PackAll(ctx context.Context, tenantID, orderID uuid.UUID, performedBy *uuid.UUID) (*appinventory.ConsumeForOrderResult, error) {
	order, err := s.orderRepo.FindByIDForTenant(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != packing.OrderStatusPacking {
		return nil, shared.NewDomainErrorf("INVALID_STATE", "Cannot pack order in %s status", order.Status)
	}

	out := &appinventory.ConsumeForOrderResult{OrderID: order.ID, Items: make([]appinventory.ItemConsumptionResult, 0)}
	for _, item := range order.IncompleteItems() {
		line := appinventory.ItemConsumptionResult{ItemID: item.ID, ProductID: item.ProductID}
		resp, err := s.SetPackedQuantity(ctx, tenantID, orderID, item.ID, SetPackedQuantityRequest{
			PackedQuantity: item.Quantity,
			PerformedBy:    performedBy,
		})
		if err != nil {
			line.Error = appinventory.ToErrorInfo(err)
			out.Failed++
			out.Items = append(out.Items, line)
			continue
		}
		line.Success = true
		line.PhysicalProductID = resp.PhysicalProductID
		line.PhysicalQuantity = resp.PhysicalDelta
		line.TransactionID = resp.TransactionID
		line.Allocations = resp.Allocations
		out.Succeeded++
		out.Items = append(out.Items, line)
	}
	return out, nil
}

// Reverse returns everything packed for an order to stock and resets its
// packed quantities, leaving the order in packing. The stock reversal and
// the reset commit together.
func (s *PackingService) Reverse(ctx context.Context, tenantID, orderID uuid.UUID, req ReverseOrderRequest) (*ReverseOrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "packing", "reverse")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrOrderID, orderID.String(),
	)

	reason := req.Reason
	if reason == "" {
		reason = "packing reversed"
	}

	var (
		order   *packing.Order
		results []*inventory.LedgerResult
	)
	err := s.ledger.RetryConflicts(ctx, "reverse_packing", func(ctx context.Context) error {
		return s.scope.Execute(ctx, func(repos appinventory.TransactionalRepositories) error {
			var err error
			order, err = repos.OrderRepo().FindByIDForTenant(ctx, tenantID, orderID)
			if err != nil {
				return err
			}
			if order.Status != packing.OrderStatusPacking {
				return shared.NewDomainErrorf("INVALID_STATE", "Cannot reverse packing of order in %s status", order.Status)
			}

			results, err = s.ledger.ReverseReference(ctx, repos, tenantID, orderReference(orderID), req.PerformedBy, reason)
			if err != nil {
				return err
			}
			for _, item := range order.Items {
				if err := order.SetPackedQuantity(item.ID, decimal.Zero); err != nil {
					return err
				}
			}
			if err := repos.OrderRepo().SaveWithVersion(ctx, order); err != nil {
				return err
			}
			return repos.SaveEvents(ctx, order.PullDomainEvents()...)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	reversal := s.ledger.CompleteReversal(ctx, tenantID, orderID, results)
	s.logger.Info("Order packing reversed",
		zap.String("order_id", orderID.String()),
		zap.Int("reversed", len(reversal.ReversedTransactions)),
	)
	telemetry.SetOK(span)
	return &ReverseOrderResponse{Order: ToOrderResponse(order), Reversal: reversal}, nil
}

// Cancel cancels an order. Every stock movement made for it is reversed in
// the transaction that records the cancellation; if any reversal fails the
// order keeps its status and the error is returned. An order that was never
// packed cancels without touching stock.
func (s *PackingService) Cancel(ctx context.Context, tenantID, orderID uuid.UUID, req CancelOrderRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "packing", "cancel")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrOrderID, orderID.String(),
	)

	var (
		order   *packing.Order
		results []*inventory.LedgerResult
	)
	err := s.ledger.RetryConflicts(ctx, "cancel", func(ctx context.Context) error {
		return s.scope.Execute(ctx, func(repos appinventory.TransactionalRepositories) error {
			var err error
			order, err = repos.OrderRepo().FindByIDForTenant(ctx, tenantID, orderID)
			if err != nil {
				return err
			}
			if err := order.CheckCancellable(req.Reason); err != nil {
				return err
			}

			results, err = s.ledger.ReverseReference(ctx, repos, tenantID, orderReference(orderID), req.PerformedBy, "order cancelled: "+req.Reason)
			if err != nil {
				return err
			}
			if err := order.Cancel(req.Reason); err != nil {
				return err
			}
			if err := repos.OrderRepo().SaveWithVersion(ctx, order); err != nil {
				return err
			}
			return repos.SaveEvents(ctx, order.PullDomainEvents()...)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Order cancellation aborted",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	reversal := s.ledger.CompleteReversal(ctx, tenantID, orderID, results)
	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID.String()),
		zap.Int("reversed_transactions", len(reversal.ReversedTransactions)),
	)
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderStatus, order.Status.String())
	telemetry.SetOK(span)
	resp := ToOrderResponse(order)
	return &resp, nil
}

func orderReference(orderID uuid.UUID) inventory.Reference {
	return inventory.Reference{Type: inventory.ReferenceTypeOrder, ID: orderID}
}
