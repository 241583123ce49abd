// internal/services/helpers_test.go
package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

func paginationDefaults() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps the whole suite on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.ProductStock{},
		&models.Cart{},
		&models.CartItem{},
		&models.Purchase{},
		&models.OrderItem{},
		&models.Payment{},
		&models.PaymentEvent{},
	))

	return db
}

func createTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := &models.User{
		Username: "buyer-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@example.com",
		UserType: models.UserTypeCustomer,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("TestPass123!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestProduct(t *testing.T, db *gorm.DB, price string) *models.Product {
	t.Helper()

	dec, err := decimal.NewFromString(price)
	require.NoError(t, err)

	product := &models.Product{
		Title:    "product-" + uuid.NewString()[:8],
		Price:    dec,
		Currency: "KRW",
		Status:   models.ProductStatusActive,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func createTestStock(t *testing.T, db *gorm.DB, productID uuid.UUID, optionKey string, quantity int) *models.ProductStock {
	t.Helper()

	stock := &models.ProductStock{
		ProductID:     productID,
		OptionKey:     optionKey,
		StockQuantity: quantity,
	}
	require.NoError(t, db.Create(stock).Error)
	return stock
}

func stockQuantity(t *testing.T, db *gorm.DB, productID uuid.UUID, optionKey string) int {
	t.Helper()

	var stock models.ProductStock
	require.NoError(t, db.
		Where("product_id = ? AND option_key = ?", productID, optionKey).
		First(&stock).Error)
	return stock.StockQuantity
}

func createTestCartWithItem(t *testing.T, db *gorm.DB, userID, productID uuid.UUID, optionKey string, quantity int, unitPrice string) *models.Cart {
	t.Helper()

	dec, err := decimal.NewFromString(unitPrice)
	require.NoError(t, err)

	cart := &models.Cart{
		UserID:    userID,
		ExpiresAt: time.Now().Add(90 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(cart).Error)

	item := &models.CartItem{
		CartID:    cart.ID,
		ProductID: productID,
		OptionKey: optionKey,
		Quantity:  quantity,
		UnitPrice: dec,
	}
	require.NoError(t, db.Create(item).Error)

	require.NoError(t, db.Preload("Items").First(cart, cart.ID).Error)
	return cart
}
