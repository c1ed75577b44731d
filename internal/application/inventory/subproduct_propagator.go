package inventory

import (
	"context"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubproductPropagator refreshes the cached stock of subproducts after
// their parent's stock changed. It runs after the parent's transaction has
// committed and never touches batches.
type SubproductPropagator struct {
	scope       TransactionScope
	productRepo inventory.ProductRepository
	retrier     *conflictRetrier
	logger      *zap.Logger
}

// NewSubproductPropagator creates a new SubproductPropagator
func NewSubproductPropagator(scope TransactionScope, productRepo inventory.ProductRepository, logger *zap.Logger) *SubproductPropagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubproductPropagator{
		scope:       scope,
		productRepo: productRepo,
		retrier:     &conflictRetrier{cfg: DefaultRetryConfig(), logger: logger},
		logger:      logger,
	}
}

// Propagate recalculates the children of every given parent. Failures are
// logged and swallowed: the parent's change is already committed and the
// reconciliation check reports any cache left stale.
func (p *SubproductPropagator) Propagate(ctx context.Context, tenantID uuid.UUID, parentIDs ...uuid.UUID) {
	seen := make(map[uuid.UUID]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := p.RecalculateChildren(ctx, tenantID, id); err != nil {
			p.logger.Error("Subproduct propagation failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("parent_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

// RecalculateChildren refreshes every subproduct of parentID and returns
// how many cached values changed
func (p *SubproductPropagator) RecalculateChildren(ctx context.Context, tenantID, parentID uuid.UUID) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subproduct_propagator", "recalculate_children")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrProductID, parentID.String(),
	)

	changed := 0
	err := p.retrier.Do(ctx, "propagate_subproducts", func(ctx context.Context) error {
		changed = 0
		return p.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			parent, err := repos.ProductRepo().FindByIDForTenant(ctx, tenantID, parentID)
			if err != nil {
				return err
			}
			if parent.IsDerived() {
				return nil
			}
			children, err := repos.ProductRepo().FindChildren(ctx, tenantID, parent.ID)
			if err != nil {
				return err
			}
			for _, child := range children {
				ok, err := p.recalculate(ctx, repos, child, parent)
				if err != nil {
					return err
				}
				if ok {
					changed++
				}
			}
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	if changed > 0 {
		p.logger.Debug("Subproducts recalculated",
			zap.String("parent_id", parentID.String()),
			zap.Int("changed", changed),
		)
	}
	telemetry.SetOK(span)
	return changed, nil
}

// RecalculateProduct refreshes a single subproduct, for example after its
// own loss percentage changed
func (p *SubproductPropagator) RecalculateProduct(ctx context.Context, tenantID, productID uuid.UUID) error {
	return p.retrier.Do(ctx, "recalculate_subproduct", func(ctx context.Context) error {
		return p.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			product, err := repos.ProductRepo().FindByIDForTenant(ctx, tenantID, productID)
			if err != nil {
				return err
			}
			if !product.IsDerived() {
				return nil
			}
			parent, err := repos.ProductRepo().FindByIDForTenant(ctx, tenantID, *product.ParentProductID)
			if err != nil {
				return err
			}
			_, err = p.recalculate(ctx, repos, product, parent)
			return err
		})
	})
}

func (p *SubproductPropagator) recalculate(ctx context.Context, repos TransactionalRepositories, child, parent *inventory.Product) (bool, error) {
	if !child.RecalculateFrom(parent) {
		return false, nil
	}
	if err := repos.ProductRepo().SaveWithVersion(ctx, child); err != nil {
		return false, err
	}
	if err := repos.SaveEvents(ctx, child.PullDomainEvents()...); err != nil {
		return false, err
	}
	return true, nil
}
