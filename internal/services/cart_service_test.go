// internal/services/cart_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/optionkey"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT: config.JWTConfig{
			SecretKey:       "test-secret",
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
		},
		Payment: config.PaymentConfig{
			MockMode:        true,
			ProviderTimeout: 10,
			DefaultCurrency: "KRW",
		},
		Cart: config.CartConfig{RetentionDays: 90},
	}
}

func TestGetCartCreatesOnFirstAccess(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)

	cart, err := svc.GetCart(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, cart.UserID)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.ExpiresAt.After(time.Now().Add(89*24*time.Hour)))

	// Second access returns the same cart.
	again, err := svc.GetCart(user.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}

func TestGetCartReplacesExpired(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "5000")

	stale := createTestCartWithItem(t, db, user.ID, product.ID, "", 2, "5000")
	require.NoError(t, db.Model(stale).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	cart, err := svc.GetCart(user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, cart.ID)
	assert.Empty(t, cart.Items, "expired cart lines must not survive")
}

func TestAddItemNormalizesOptions(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "15000")

	_, err := svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Options:   map[string]interface{}{"size": "M", "color": "red"},
		Quantity:  1,
	})
	require.NoError(t, err)

	// Same options in a different order accumulate onto the same line.
	cart, err := svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Options:   map[string]interface{}{"color": "red", "size": "M"},
		Quantity:  2,
	})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, "color=red&size=M", cart.Items[0].OptionKey)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, "15000", cart.Items[0].UnitPrice.String())
}

func TestAddItemDistinctOptionsDistinctLines(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "15000")

	_, err := svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Options:   map[string]interface{}{"size": "M"},
		Quantity:  1,
	})
	require.NoError(t, err)

	cart, err := svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Options:   map[string]interface{}{"size": "L"},
		Quantity:  1,
	})
	require.NoError(t, err)

	assert.Len(t, cart.Items, 2)
	assert.Equal(t, "30000", cart.TotalPrice().String())
	assert.Equal(t, 2, cart.ItemCount())
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "15000")
	require.NoError(t, db.Model(product).
		Update("status", models.ProductStatusSuspended).Error)

	_, err := svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Quantity:  1,
	})
	assert.Error(t, err)
}

func TestUpdateItemQuantity(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "9900")

	cart, err := svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Quantity:  2,
	})
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = svc.UpdateItemQuantity(user.ID, itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	// Zero removes the line.
	cart, err = svc.UpdateItemQuantity(user.ID, itemID, 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	// The removed variant can be added again.
	cart, err = svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Quantity:  1,
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestAddItemLongOptionKey(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "15000")

	options := map[string]interface{}{
		"engraving": "생일 축하해요, 오래오래 행복하세요",
		"wrapping":  "premium gift box with ribbon",
		"color":     "midnight blue",
	}
	cart, err := svc.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Options:   options,
		Quantity:  1,
	})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	key := cart.Items[0].OptionKey
	assert.Equal(t, optionkey.FromMap(options), key)
	assert.Greater(t, len(key), 64, "percent-encoded keys exceed short column widths")
}

func TestClearCart(t *testing.T) {
	db := newTestDB(t)
	svc := NewCartService(db, testConfig())
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "9900")

	_, err := svc.AddItem(user.ID, &AddCartItemRequest{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, svc.ClearCart(user.ID))

	cart, err := svc.GetCart(user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}
