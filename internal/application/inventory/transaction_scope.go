package inventory

import (
	"context"
	"sync"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/erp/stockcore/internal/domain/shared"
)

// TransactionScope provides transactional access to the stock repositories.
// Everything done through the repositories handed to fn is committed or
// rolled back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction. If fn returns an error
	// the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to every repository a stock
// mutation touches, all sharing one database transaction.
//
// Lock order inside a transaction is product row first, then batches, so two
// writers of the same product serialise on the product version check.
type TransactionalRepositories interface {
	ProductRepo() inventory.ProductRepository
	BatchRepo() inventory.BatchRepository
	TransactionRepo() inventory.TransactionRepository
	OrderRepo() packing.OrderRepository
	// SaveEvents writes domain events to the outbox in the same transaction
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// UnitOfWork is a set of repositories whose writes can be discarded, as
// offered by in-memory stores
type UnitOfWork interface {
	Products() inventory.ProductRepository
	Batches() inventory.BatchRepository
	Transactions() inventory.TransactionRepository
	Orders() packing.OrderRepository
	Rollback()
}

// NoOpTransactionScope runs fn against plain repositories without a real
// transaction. Used by unit tests with mocked repositories.
type NoOpTransactionScope struct {
	productRepo     inventory.ProductRepository
	batchRepo       inventory.BatchRepository
	transactionRepo inventory.TransactionRepository
	orderRepo       packing.OrderRepository
	begin           func() UnitOfWork

	mu    sync.Mutex
	saved []shared.DomainEvent
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	productRepo inventory.ProductRepository,
	batchRepo inventory.BatchRepository,
	transactionRepo inventory.TransactionRepository,
	orderRepo packing.OrderRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		productRepo:     productRepo,
		batchRepo:       batchRepo,
		transactionRepo: transactionRepo,
		orderRepo:       orderRepo,
	}
}

// NewUnitOfWorkScope creates a scope that opens a unit per Execute. When fn
// fails the unit is rolled back and its events are dropped, as a database
// transaction would.
func NewUnitOfWorkScope(begin func() UnitOfWork) *NoOpTransactionScope {
	return &NoOpTransactionScope{begin: begin}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	if s.begin == nil {
		return fn(s)
	}

	unit := &unitRepositories{unit: s.begin()}
	if err := fn(unit); err != nil {
		unit.unit.Rollback()
		return err
	}
	s.mu.Lock()
	s.saved = append(s.saved, unit.events...)
	s.mu.Unlock()
	return nil
}

// ProductRepo returns the product repository
func (s *NoOpTransactionScope) ProductRepo() inventory.ProductRepository {
	return s.productRepo
}

// BatchRepo returns the batch repository
func (s *NoOpTransactionScope) BatchRepo() inventory.BatchRepository {
	return s.batchRepo
}

// TransactionRepo returns the transaction repository
func (s *NoOpTransactionScope) TransactionRepo() inventory.TransactionRepository {
	return s.transactionRepo
}

// OrderRepo returns the order repository
func (s *NoOpTransactionScope) OrderRepo() packing.OrderRepository {
	return s.orderRepo
}

// SaveEvents keeps the events in memory
func (s *NoOpTransactionScope) SaveEvents(_ context.Context, events ...shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, events...)
	return nil
}

// SavedEvents returns every committed event passed to SaveEvents
func (s *NoOpTransactionScope) SavedEvents() []shared.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.DomainEvent(nil), s.saved...)
}

// unitRepositories hands fn the repositories of one unit and holds its
// events until the unit succeeds
type unitRepositories struct {
	unit   UnitOfWork
	events []shared.DomainEvent
}

func (u *unitRepositories) ProductRepo() inventory.ProductRepository { return u.unit.Products() }

func (u *unitRepositories) BatchRepo() inventory.BatchRepository { return u.unit.Batches() }

func (u *unitRepositories) TransactionRepo() inventory.TransactionRepository {
	return u.unit.Transactions()
}

func (u *unitRepositories) OrderRepo() packing.OrderRepository { return u.unit.Orders() }

func (u *unitRepositories) SaveEvents(_ context.Context, events ...shared.DomainEvent) error {
	u.events = append(u.events, events...)
	return nil
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*unitRepositories)(nil)
