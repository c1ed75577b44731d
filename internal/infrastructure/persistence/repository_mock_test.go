package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockProduct(t *testing.T) *inventory.Product {
	t.Helper()
	p, err := inventory.NewPhysicalProduct(uuid.New(), "SKU-1", "Product", nil)
	require.NoError(t, err)
	p.CurrentStock = testutil.D("4")
	return p
}

func TestGormProductRepository_SaveWithVersion_SQL(t *testing.T) {
	t.Run("guards on the loaded version", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		product := newMockProduct(t)
		mock.ExpectExec(`UPDATE "products" SET .* WHERE id = \$\d+ AND tenant_id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := NewGormProductRepository(db).SaveWithVersion(context.Background(), product)
		require.NoError(t, err)
		assert.Equal(t, 2, product.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race returns concurrency conflict", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		product := newMockProduct(t)
		mock.ExpectExec(`UPDATE "products" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "products" WHERE id = \$1`).
			WithArgs(product.ID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := NewGormProductRepository(db).SaveWithVersion(context.Background(), product)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, product.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is returned unchanged", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		product := newMockProduct(t)
		mock.ExpectExec(`UPDATE "products" SET`).WillReturnError(assert.AnError)

		err := NewGormProductRepository(db).SaveWithVersion(context.Background(), product)
		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormBatchRepository_FindOpenByProduct_SQL(t *testing.T) {
	db, mock, mockDB := newMockGorm(t)
	defer mockDB.Close()

	tenantID, productID := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "inventory_batches" WHERE .*tenant_id = .*ORDER BY received_at ASC, sequence ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "product_id", "sequence"}).
			AddRow(uuid.New().String(), tenantID.String(), productID.String(), 1).
			AddRow(uuid.New().String(), tenantID.String(), productID.String(), 2))

	batches, err := NewGormBatchRepository(db).FindOpenByProduct(context.Background(), tenantID, productID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, int64(1), batches[0].Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransactionRepository_MarkReversed_SQL(t *testing.T) {
	db, mock, mockDB := newMockGorm(t)
	defer mockDB.Close()

	tx := &inventory.InventoryTransaction{ID: uuid.New(), TenantID: uuid.New()}
	mock.ExpectExec(`UPDATE "inventory_transactions" SET "reversed_at"=\$1 WHERE id = \$2 AND tenant_id = \$3 AND reversed_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "inventory_transactions" WHERE id = \$1`).
		WithArgs(tx.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := NewGormTransactionRepository(db).MarkReversed(context.Background(), tx)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTransactionRepository_FindUnreversedByReference_SQL(t *testing.T) {
	db, mock, mockDB := newMockGorm(t)
	defer mockDB.Close()

	ref := inventory.Reference{Type: inventory.ReferenceTypeOrder, ID: uuid.New()}
	mock.ExpectQuery(`SELECT \* FROM "inventory_transactions" WHERE .*reversed_at IS NULL ORDER BY product_id ASC, sequence ASC, created_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sequence"}))

	txs, err := NewGormTransactionRepository(db).FindUnreversedByReference(context.Background(), uuid.New(), ref, inventory.TransactionTypeSale)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
