package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemStore is an in-memory stand-in for the stock tables. Every read returns
// a copy and every write stores one, so aggregates behave as if they had
// been loaded from a database. Version checks follow the SQL repositories.
type MemStore struct {
	mu sync.Mutex

	products     map[uuid.UUID]inventory.Product
	batches      map[uuid.UUID]inventory.InventoryBatch
	transactions map[uuid.UUID]inventory.InventoryTransaction
	txOrder      []uuid.UUID
	orders       map[uuid.UUID]packing.Order

	failProductSaves int
	failOrderSaves   int
}

// MemTx is a unit of work over a MemStore. Writes made through its
// repositories apply immediately; Rollback undoes them, newest first, and
// leaves writes of other units alone.
type MemTx struct {
	s    *MemStore
	undo []func()
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		products:     make(map[uuid.UUID]inventory.Product),
		batches:      make(map[uuid.UUID]inventory.InventoryBatch),
		transactions: make(map[uuid.UUID]inventory.InventoryTransaction),
		orders:       make(map[uuid.UUID]packing.Order),
	}
}

// Products returns the product repository view
func (s *MemStore) Products() inventory.ProductRepository { return &memProducts{s: s} }

// Batches returns the batch repository view
func (s *MemStore) Batches() inventory.BatchRepository { return &memBatches{s: s} }

// Transactions returns the transaction repository view
func (s *MemStore) Transactions() inventory.TransactionRepository { return &memTransactions{s: s} }

// Orders returns the order repository view
func (s *MemStore) Orders() packing.OrderRepository { return &memOrders{s: s} }

// Begin starts a unit of work
func (s *MemStore) Begin() *MemTx { return &MemTx{s: s} }

// Products returns the product repository bound to the unit
func (t *MemTx) Products() inventory.ProductRepository { return &memProducts{s: t.s, tx: t} }

// Batches returns the batch repository bound to the unit
func (t *MemTx) Batches() inventory.BatchRepository { return &memBatches{s: t.s, tx: t} }

// Transactions returns the transaction repository bound to the unit
func (t *MemTx) Transactions() inventory.TransactionRepository {
	return &memTransactions{s: t.s, tx: t}
}

// Orders returns the order repository bound to the unit
func (t *MemTx) Orders() packing.OrderRepository { return &memOrders{s: t.s, tx: t} }

// Rollback undoes every write made through the unit
func (t *MemTx) Rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// remember records how to put m[key] back; the store lock must be held
func remember[K comparable, V any](tx *MemTx, m map[K]V, key K, clone func(V) V) {
	if tx == nil {
		return
	}
	prev, existed := m[key]
	if existed {
		prev = clone(prev)
	}
	tx.undo = append(tx.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

// FailNextProductSaves makes the next n product version checks lose
func (s *MemStore) FailNextProductSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failProductSaves = n
}

// FailNextOrderSaves makes the next n order version checks lose
func (s *MemStore) FailNextOrderSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOrderSaves = n
}

// Product returns the stored state of a product
func (s *MemStore) Product(id uuid.UUID) inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *cloneProduct(s.products[id])
}

// ProductBatches returns the stored lots of a product in FIFO order
func (s *MemStore) ProductBatches(productID uuid.UUID) []inventory.InventoryBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.InventoryBatch, 0)
	for _, b := range s.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	sortFIFO(out)
	return out
}

// ProductTransactions returns a product's transactions oldest first
func (s *MemStore) ProductTransactions(productID uuid.UUID) []inventory.InventoryTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.InventoryTransaction, 0)
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx.ProductID == productID {
			out = append(out, *cloneTransaction(tx))
		}
	}
	return out
}

// LoadSnapshots implements inventory.ReconciliationReader
func (s *MemStore) LoadSnapshots(_ context.Context, tenantID *uuid.UUID) ([]inventory.StockSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.StockSnapshot, 0, len(s.products))
	for _, p := range s.products {
		if tenantID != nil && p.TenantID != *tenantID {
			continue
		}
		snap := inventory.StockSnapshot{
			TenantID:       p.TenantID,
			ProductID:      p.ID,
			SKU:            p.SKU,
			Kind:           p.Kind,
			CurrentStock:   p.CurrentStock,
			BatchRemaining: decimal.Zero,
		}
		for _, b := range s.batches {
			if b.ProductID != p.ID {
				continue
			}
			snap.BatchRemaining = snap.BatchRemaining.Add(b.QuantityRemaining)
			if b.IsConsumed != b.QuantityRemaining.IsZero() {
				snap.InconsistentBatches++
			}
		}
		if p.IsDerived() {
			parent := s.products[*p.ParentProductID]
			snap.ParentStock = decimal.NewNullDecimal(parent.CurrentStock)
			snap.EffectiveLoss = inventory.EffectiveLoss(&p, &parent)
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// SetProductStock overwrites a cached stock figure, for drift tests
func (s *MemStore) SetProductStock(id uuid.UUID, stock decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.CurrentStock = stock
	s.products[id] = p
}

func cloneProduct(p inventory.Product) *inventory.Product {
	c := p
	c.ClearDomainEvents()
	if p.LossPercentage != nil {
		v := *p.LossPercentage
		c.LossPercentage = &v
	}
	if p.ParentProductID != nil {
		v := *p.ParentProductID
		c.ParentProductID = &v
	}
	return &c
}

func productValue(p inventory.Product) inventory.Product { return *cloneProduct(p) }

func batchValue(b inventory.InventoryBatch) inventory.InventoryBatch { return b }

func transactionValue(tx inventory.InventoryTransaction) inventory.InventoryTransaction {
	return *cloneTransaction(tx)
}

func orderValue(o packing.Order) packing.Order { return *cloneOrder(o) }

func cloneBatch(b inventory.InventoryBatch) *inventory.InventoryBatch {
	c := b
	return &c
}

func cloneTransaction(tx inventory.InventoryTransaction) *inventory.InventoryTransaction {
	c := tx
	c.Consumptions = append([]inventory.BatchConsumption(nil), tx.Consumptions...)
	if tx.ReversedAt != nil {
		v := *tx.ReversedAt
		c.ReversedAt = &v
	}
	return &c
}

func cloneOrder(o packing.Order) *packing.Order {
	c := o
	c.ClearDomainEvents()
	c.Items = append([]packing.OrderItem(nil), o.Items...)
	return &c
}

func sortFIFO(batches []inventory.InventoryBatch) {
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return batches[i].Sequence < batches[j].Sequence
	})
}

func paginate[T any](items []T, f shared.Filter) []T {
	f = f.Normalize()
	start := f.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + f.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func notFound(what string, id uuid.UUID) error {
	return shared.NewDomainErrorf(shared.ErrNotFound.Code, "%s %s not found", what, id)
}

// =============================================================================
// Products
// =============================================================================

type memProducts struct {
	s  *MemStore
	tx *MemTx
}

func (r *memProducts) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, notFound("Product", id)
	}
	return cloneProduct(p), nil
}

func (r *memProducts) FindBySKU(_ context.Context, tenantID uuid.UUID, sku string) (*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.products {
		if p.TenantID == tenantID && p.SKU == sku {
			return cloneProduct(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memProducts) FindByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*inventory.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok && p.TenantID == tenantID {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r *memProducts) FindChildren(_ context.Context, tenantID, parentID uuid.UUID) ([]*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*inventory.Product, 0)
	for _, p := range r.s.products {
		if p.TenantID == tenantID && p.ParentProductID != nil && *p.ParentProductID == parentID {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (r *memProducts) FindAllForTenant(_ context.Context, tenantID uuid.UUID, filter shared.Filter) ([]*inventory.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	search, _ := filter.Filters["search"].(string)
	kind, _ := filter.Filters["kind"].(string)
	all := make([]*inventory.Product, 0)
	for _, p := range r.s.products {
		if p.TenantID != tenantID {
			continue
		}
		if kind != "" && string(p.Kind) != kind {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.SKU+" "+p.Name), strings.ToLower(search)) {
			continue
		}
		all = append(all, cloneProduct(p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SKU < all[j].SKU })
	return paginate(all, filter), int64(len(all)), nil
}

func (r *memProducts) ExistsBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (bool, error) {
	_, err := r.FindBySKU(ctx, tenantID, sku)
	return err == nil, nil
}

func (r *memProducts) Create(_ context.Context, product *inventory.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[product.ID]; ok {
		return shared.ErrAlreadyExists
	}
	remember(r.tx, r.s.products, product.ID, productValue)
	r.s.products[product.ID] = *cloneProduct(*product)
	return nil
}

func (r *memProducts) SaveWithVersion(_ context.Context, product *inventory.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failProductSaves > 0 {
		r.s.failProductSaves--
		return shared.ErrConcurrencyConflict
	}
	stored, ok := r.s.products[product.ID]
	if !ok {
		return notFound("Product", product.ID)
	}
	if stored.Version != product.Version {
		return shared.ErrConcurrencyConflict
	}
	remember(r.tx, r.s.products, product.ID, productValue)
	product.IncrementVersion()
	r.s.products[product.ID] = *cloneProduct(*product)
	return nil
}

// =============================================================================
// Batches
// =============================================================================

type memBatches struct {
	s  *MemStore
	tx *MemTx
}

func (r *memBatches) FindOpenByProduct(_ context.Context, tenantID, productID uuid.UUID) ([]*inventory.InventoryBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	open := make([]inventory.InventoryBatch, 0)
	for _, b := range r.s.batches {
		if b.TenantID == tenantID && b.ProductID == productID && !b.IsConsumed {
			open = append(open, b)
		}
	}
	sortFIFO(open)
	out := make([]*inventory.InventoryBatch, len(open))
	for i := range open {
		out[i] = cloneBatch(open[i])
	}
	return out, nil
}

func (r *memBatches) FindByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*inventory.InventoryBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*inventory.InventoryBatch, 0, len(ids))
	for _, id := range ids {
		if b, ok := r.s.batches[id]; ok && b.TenantID == tenantID {
			out = append(out, cloneBatch(b))
		}
	}
	return out, nil
}

func (r *memBatches) FindByCreatingTransaction(_ context.Context, tenantID, transactionID uuid.UUID) (*inventory.InventoryBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.batches {
		if b.TenantID == tenantID && b.CreatedByTransactionID == transactionID {
			return cloneBatch(b), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memBatches) FindLatestByProduct(_ context.Context, tenantID, productID uuid.UUID) (*inventory.InventoryBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]inventory.InventoryBatch, 0)
	for _, b := range r.s.batches {
		if b.TenantID == tenantID && b.ProductID == productID {
			all = append(all, b)
		}
	}
	if len(all) == 0 {
		return nil, shared.ErrNotFound
	}
	sortFIFO(all)
	return cloneBatch(all[len(all)-1]), nil
}

func (r *memBatches) FindByProduct(_ context.Context, tenantID, productID uuid.UUID, filter inventory.BatchFilter) ([]*inventory.InventoryBatch, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	at := filter.At
	if at.IsZero() {
		at = time.Now()
	}
	matched := make([]inventory.InventoryBatch, 0)
	for _, b := range r.s.batches {
		if b.TenantID != tenantID || b.ProductID != productID {
			continue
		}
		if filter.OnlyOpen && b.IsConsumed {
			continue
		}
		if !filter.IncludeExpired && b.IsExpiredAt(at) {
			continue
		}
		matched = append(matched, b)
	}
	sortFIFO(matched)
	page := paginate(matched, filter.Filter)
	out := make([]*inventory.InventoryBatch, len(page))
	for i := range page {
		out[i] = cloneBatch(page[i])
	}
	return out, int64(len(matched)), nil
}

func (r *memBatches) Create(_ context.Context, batch *inventory.InventoryBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transactions[batch.CreatedByTransactionID]; !ok {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "Batch references an unknown transaction")
	}
	remember(r.tx, r.s.batches, batch.ID, batchValue)
	r.s.batches[batch.ID] = *cloneBatch(*batch)
	return nil
}

func (r *memBatches) SaveWithVersion(_ context.Context, batch *inventory.InventoryBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.batches[batch.ID]
	if !ok {
		return notFound("Batch", batch.ID)
	}
	if stored.Version != batch.Version {
		return shared.ErrConcurrencyConflict
	}
	remember(r.tx, r.s.batches, batch.ID, batchValue)
	batch.Version++
	r.s.batches[batch.ID] = *cloneBatch(*batch)
	return nil
}

// =============================================================================
// Transactions
// =============================================================================

type memTransactions struct {
	s  *MemStore
	tx *MemTx
}

func (r *memTransactions) Create(_ context.Context, tx *inventory.InventoryTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tx.ReferenceType == "" || tx.ReferenceID == uuid.Nil {
		return inventory.ErrReferenceRequired
	}
	remember(r.tx, r.s.transactions, tx.ID, transactionValue)
	r.s.transactions[tx.ID] = *cloneTransaction(*tx)
	r.s.txOrder = append(r.s.txOrder, tx.ID)
	if r.tx != nil {
		id := tx.ID
		r.tx.undo = append(r.tx.undo, func() { r.s.txOrder = removeID(r.s.txOrder, id) })
	}
	return nil
}

func (r *memTransactions) FindByID(_ context.Context, tenantID, id uuid.UUID) (*inventory.InventoryTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok || tx.TenantID != tenantID {
		return nil, notFound("Transaction", id)
	}
	return cloneTransaction(tx), nil
}

func (r *memTransactions) FindUnreversedByReference(_ context.Context, tenantID uuid.UUID, ref inventory.Reference, txType inventory.TransactionType) ([]*inventory.InventoryTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*inventory.InventoryTransaction, 0)
	for _, id := range r.s.txOrder {
		tx := r.s.transactions[id]
		if tx.TenantID != tenantID || tx.Type != txType || tx.IsReversed() {
			continue
		}
		if tx.ReferenceType != ref.Type || tx.ReferenceID != ref.ID {
			continue
		}
		if ref.LineID != nil && (tx.ReferenceLineID == nil || *tx.ReferenceLineID != *ref.LineID) {
			continue
		}
		out = append(out, cloneTransaction(tx))
	}
	return out, nil
}

func (r *memTransactions) FindByProduct(_ context.Context, tenantID, productID uuid.UUID, filter inventory.TransactionFilter) ([]*inventory.InventoryTransaction, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	matched := make([]*inventory.InventoryTransaction, 0)
	for i := len(r.s.txOrder) - 1; i >= 0; i-- {
		tx := r.s.transactions[r.s.txOrder[i]]
		if tx.TenantID != tenantID || tx.ProductID != productID {
			continue
		}
		if filter.TransactionType != nil && tx.Type != *filter.TransactionType {
			continue
		}
		if filter.ReferenceType != nil && tx.ReferenceType != *filter.ReferenceType {
			continue
		}
		if filter.ReferenceID != nil && tx.ReferenceID != *filter.ReferenceID {
			continue
		}
		if filter.StartDate != nil && tx.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && tx.CreatedAt.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, cloneTransaction(tx))
	}
	if filter.OrderDir == "asc" {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return paginate(matched, filter.Filter), int64(len(matched)), nil
}

func (r *memTransactions) MarkReversed(_ context.Context, tx *inventory.InventoryTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.transactions[tx.ID]
	if !ok {
		return notFound("Transaction", tx.ID)
	}
	if stored.ReversedAt != nil {
		return shared.ErrConcurrencyConflict
	}
	at := time.Now()
	if tx.ReversedAt != nil {
		at = *tx.ReversedAt
	}
	remember(r.tx, r.s.transactions, tx.ID, transactionValue)
	stored.ReversedAt = &at
	r.s.transactions[tx.ID] = stored
	return nil
}

func (r *memTransactions) UpdateConsumptionReversal(_ context.Context, rows []inventory.BatchConsumption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range rows {
		stored, ok := r.s.transactions[row.TransactionID]
		if !ok {
			return notFound("Transaction", row.TransactionID)
		}
		remember(r.tx, r.s.transactions, row.TransactionID, transactionValue)
		tx := *cloneTransaction(stored)
		for i := range tx.Consumptions {
			if tx.Consumptions[i].ID == row.ID {
				tx.Consumptions[i].QuantityReversed = row.QuantityReversed
			}
		}
		r.s.transactions[row.TransactionID] = tx
	}
	return nil
}

// =============================================================================
// Orders
// =============================================================================

type memOrders struct {
	s  *MemStore
	tx *MemTx
}

func (r *memOrders) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*packing.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, notFound("Order", id)
	}
	return cloneOrder(o), nil
}

func (r *memOrders) FindByOrderNumber(_ context.Context, tenantID uuid.UUID, orderNumber string) (*packing.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.TenantID == tenantID && o.OrderNumber == orderNumber {
			return cloneOrder(o), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memOrders) FindAllForTenant(_ context.Context, tenantID uuid.UUID, status *packing.OrderStatus, filter shared.Filter) ([]*packing.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*packing.Order, 0)
	for _, o := range r.s.orders {
		if o.TenantID != tenantID || (status != nil && o.Status != *status) {
			continue
		}
		all = append(all, cloneOrder(o))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OrderNumber < all[j].OrderNumber })
	return paginate(all, filter), int64(len(all)), nil
}

func (r *memOrders) Create(_ context.Context, order *packing.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.TenantID == order.TenantID && o.OrderNumber == order.OrderNumber {
			return shared.ErrAlreadyExists
		}
	}
	remember(r.tx, r.s.orders, order.ID, orderValue)
	r.s.orders[order.ID] = *cloneOrder(*order)
	return nil
}

func (r *memOrders) SaveWithVersion(_ context.Context, order *packing.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failOrderSaves > 0 {
		r.s.failOrderSaves--
		return shared.ErrConcurrencyConflict
	}
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return notFound("Order", order.ID)
	}
	if stored.Version != order.Version {
		return shared.ErrConcurrencyConflict
	}
	remember(r.tx, r.s.orders, order.ID, orderValue)
	order.IncrementVersion()
	r.s.orders[order.ID] = *cloneOrder(*order)
	return nil
}
