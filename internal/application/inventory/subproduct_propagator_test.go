package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockProductRepository is a mock implementation of inventory.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*inventory.Product, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Product), args.Error(1)
}

func (m *MockProductRepository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*inventory.Product, error) {
	args := m.Called(ctx, tenantID, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Product), args.Error(1)
}

func (m *MockProductRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*inventory.Product, error) {
	args := m.Called(ctx, tenantID, ids)
	return args.Get(0).([]*inventory.Product), args.Error(1)
}

func (m *MockProductRepository) FindChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]*inventory.Product, error) {
	args := m.Called(ctx, tenantID, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inventory.Product), args.Error(1)
}

func (m *MockProductRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]*inventory.Product, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]*inventory.Product), args.Get(1).(int64), args.Error(2)
}

func (m *MockProductRepository) ExistsBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (bool, error) {
	args := m.Called(ctx, tenantID, sku)
	return args.Bool(0), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *inventory.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) SaveWithVersion(ctx context.Context, product *inventory.Product) error {
	return m.Called(ctx, product).Error(0)
}

func TestSubproductPropagator_RecalculateChildren(t *testing.T) {
	f := newLedgerFixture(t)
	carcass := f.physical("CARCASS", testutil.DPtr("10"))
	steak := f.derived(carcass, "STEAK", testutil.DPtr("25"))
	mince := f.derived(carcass, "MINCE", nil)

	// simulate a parent change committed without propagation
	f.store.SetProductStock(carcass, testutil.D("40"))

	changed, err := f.svc.Propagator().RecalculateChildren(f.ctx, f.tenantID, carcass)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	testutil.AssertDecimal(t, "30", f.stock(steak))
	testutil.AssertDecimal(t, "36", f.stock(mince))

	events := testutil.EventTypes(f.scope.SavedEvents())
	assert.Equal(t, []string{inventory.EventTypeSubproductRecalculated, inventory.EventTypeSubproductRecalculated}, events)

	again, err := f.svc.Propagator().RecalculateChildren(f.ctx, f.tenantID, carcass)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestSubproductPropagator_RoundsToCents(t *testing.T) {
	f := newLedgerFixture(t)
	carcass := f.physical("CARCASS", nil)
	trim := f.derived(carcass, "TRIM", testutil.DPtr("33.3"))
	f.store.SetProductStock(carcass, testutil.D("10"))

	_, err := f.svc.Propagator().RecalculateChildren(f.ctx, f.tenantID, carcass)
	require.NoError(t, err)
	testutil.AssertDecimal(t, "6.67", f.stock(trim))
}

func TestSubproductPropagator_PropagateSwallowsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	repo := new(MockProductRepository)
	tenantID, parentID := uuid.New(), uuid.New()
	repo.On("FindByIDForTenant", mock.Anything, tenantID, parentID).Return(nil, errors.New("connection reset"))

	scope := NewNoOpTransactionScope(repo, nil, nil, nil)
	p := NewSubproductPropagator(scope, repo, zap.New(core))
	p.retrier.cfg = RetryConfig{}

	assert.NotPanics(t, func() { p.Propagate(context.Background(), tenantID, parentID, parentID) })

	require.Equal(t, 1, logs.Len(), "duplicate parents are recalculated once")
	assert.Equal(t, "Subproduct propagation failed", logs.All()[0].Message)
	repo.AssertNumberOfCalls(t, "FindByIDForTenant", 1)
}

func TestSubproductPropagator_RetriesChildConflicts(t *testing.T) {
	repo := new(MockProductRepository)
	tenantID := uuid.New()
	parent, err := inventory.NewPhysicalProduct(tenantID, "P", "Parent", nil)
	require.NoError(t, err)
	parent.CurrentStock = testutil.D("10")
	child, err := inventory.NewDerivedProduct(tenantID, parent, "C", "Child", nil)
	require.NoError(t, err)
	parent.CurrentStock = testutil.D("20")

	repo.On("FindByIDForTenant", mock.Anything, tenantID, parent.ID).Return(parent, nil)
	// each attempt reloads a fresh copy of the child
	first, second := *child, *child
	repo.On("FindChildren", mock.Anything, tenantID, parent.ID).Return([]*inventory.Product{&first}, nil).Once()
	repo.On("FindChildren", mock.Anything, tenantID, parent.ID).Return([]*inventory.Product{&second}, nil).Once()
	repo.On("SaveWithVersion", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict).Once()
	repo.On("SaveWithVersion", mock.Anything, mock.Anything).Return(nil).Once()

	scope := NewNoOpTransactionScope(repo, nil, nil, nil)
	p := NewSubproductPropagator(scope, repo, zap.NewNop())
	p.retrier.cfg = RetryConfig{MaxRetries: 2}

	changed, err := p.RecalculateChildren(context.Background(), tenantID, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	repo.AssertNumberOfCalls(t, "SaveWithVersion", 2)
}
