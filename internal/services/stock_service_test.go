// internal/services/stock_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanbitmall/mall-backend/internal/models"
)

func TestStockReserve(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "size=M", 10)

	require.NoError(t, svc.Reserve(product.ID, "size=M", 3))
	assert.Equal(t, 7, stockQuantity(t, db, product.ID, "size=M"))

	require.NoError(t, svc.Reserve(product.ID, "size=M", 7))
	assert.Equal(t, 0, stockQuantity(t, db, product.ID, "size=M"))
}

func TestStockReserveInsufficient(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "size=M", 2)

	err := svc.Reserve(product.ID, "size=M", 5)

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 5, oos.Requested)
	assert.Equal(t, 2, oos.Available)
	assert.Equal(t, 2, stockQuantity(t, db, product.ID, "size=M"), "failed reserve must not decrement")
}

func TestStockReserveNonPositiveIsNoop(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 5)

	require.NoError(t, svc.Reserve(product.ID, "", 0))
	require.NoError(t, svc.Reserve(product.ID, "", -3))
	assert.Equal(t, 5, stockQuantity(t, db, product.ID, ""))
}

func TestStockReserveCreatesMissingRow(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")

	err := svc.Reserve(product.ID, "color=red", 1)

	// Row is created at zero, so the reservation itself fails.
	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 0, oos.Available)
	assert.Equal(t, 0, stockQuantity(t, db, product.ID, "color=red"))
}

func TestStockRelease(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "size=L", 1)

	require.NoError(t, svc.Release(product.ID, "size=L", 4))
	assert.Equal(t, 5, stockQuantity(t, db, product.ID, "size=L"))

	require.NoError(t, svc.Release(product.ID, "size=L", 0))
	assert.Equal(t, 5, stockQuantity(t, db, product.ID, "size=L"))
}

func TestStockReleaseCreatesMissingRow(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")

	require.NoError(t, svc.Release(product.ID, "size=XL", 3))
	assert.Equal(t, 3, stockQuantity(t, db, product.ID, "size=XL"))
}

func TestStockAvailable(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "size=M", 4)

	qty, err := svc.Available(product.ID, "size=M")
	require.NoError(t, err)
	assert.Equal(t, 4, qty)

	qty, err = svc.Available(product.ID, "size=S")
	require.NoError(t, err)
	assert.Equal(t, 0, qty, "missing row reads as zero")
}

func TestStockCheckAvailability(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "size=M", 4)

	require.NoError(t, svc.CheckAvailability(product.ID, "size=M", 4))
	require.NoError(t, svc.CheckAvailability(product.ID, "size=M", 0))

	var oos *OutOfStockError
	require.ErrorAs(t, svc.CheckAvailability(product.ID, "size=M", 5), &oos)

	var missing *StockRowMissingError
	require.ErrorAs(t, svc.CheckAvailability(product.ID, "size=S", 1), &missing)
	assert.Equal(t, product.ID, missing.ProductID)

	// Checking never mutates the ledger.
	assert.Equal(t, 4, stockQuantity(t, db, product.ID, "size=M"))
	var count int64
	require.NoError(t, db.Model(&models.ProductStock{}).
		Where("product_id = ? AND option_key = ?", product.ID, "size=S").
		Count(&count).Error)
	assert.Zero(t, count)
}

func TestStockSetQuantity(t *testing.T) {
	db := newTestDB(t)
	svc := NewStockService(db)
	product := createTestProduct(t, db, "10000")

	stock, err := svc.SetQuantity(product.ID, "size=M", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, stock.StockQuantity)
	assert.Equal(t, 12, stockQuantity(t, db, product.ID, "size=M"))

	_, err = svc.SetQuantity(product.ID, "size=M", -1)
	assert.Error(t, err)

	_, err = svc.SetQuantity(uuid.New(), "", 7)
	require.NoError(t, err)
}
