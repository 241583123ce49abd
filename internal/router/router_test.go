// internal/router/router_test.go
package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/models"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database.
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

	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		JWT: config.JWTConfig{
			SecretKey:       "test-secret",
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
		},
		Payment: config.PaymentConfig{
			MockMode:        true,
			ProviderTimeout: 5,
			DefaultCurrency: "KRW",
		},
		Cart: config.CartConfig{RetentionDays: 90},
	}

	return Initialize(db, cfg), db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "response body: %s", w.Body.String())
	return envelope.Data
}

func seedProduct(t *testing.T, db *gorm.DB, price string, quantity int) *models.Product {
	t.Helper()
	product := &models.Product{
		Title:    "Ceramic Mug",
		Category: "kitchen",
		Price:    decimal.RequireFromString(price),
		Currency: "KRW",
		Status:   models.ProductStatusActive,
	}
	require.NoError(t, db.Create(product).Error)
	require.NoError(t, db.Create(&models.ProductStock{
		ProductID:     product.ID,
		OptionKey:     "",
		StockQuantity: quantity,
	}).Error)
	return product
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCartRequiresAuth(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	r, db := setupRouter(t)

	// Register and grab a token.
	w := doJSON(t, r, http.MethodPost, "/v1/auth/register", "", gin.H{
		"username": "shopper_one",
		"email":    "shopper@example.com",
		"password": "Passw0rd!",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token, _ := decodeData(t, w)["token"].(string)
	require.NotEmpty(t, token)

	product := seedProduct(t, db, "15000", 10)

	// Add to cart.
	w = doJSON(t, r, http.MethodPost, "/v1/cart/items", token, gin.H{
		"product_id": product.ID,
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeData(t, w)["item_count"])

	// Everything in the cart is still reservable.
	w = doJSON(t, r, http.MethodGet, "/v1/cart/stock-check", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Checkout.
	w = doJSON(t, r, http.MethodPost, "/v1/orders/checkout", token, gin.H{
		"shipping_recipient": "Kim Jiyeon",
		"shipping_phone":     "010-1234-5678",
		"shipping_postcode":  "04524",
		"shipping_address1":  "100 Sejong-daero",
		"shipping_address2":  "Jung-gu",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decodeData(t, w)["order"].(map[string]interface{})
	assert.Equal(t, "ready", order["status"])
	payments := order["payments"].([]interface{})
	require.Len(t, payments, 1)
	paymentID := payments[0].(map[string]interface{})["id"].(string)

	var stock models.ProductStock
	require.NoError(t, db.First(&stock, "product_id = ?", product.ID).Error)
	assert.Equal(t, 8, stock.StockQuantity)

	// Confirm through the mock gateway.
	w = doJSON(t, r, http.MethodPost, "/v1/payments/"+paymentID+"/confirm", token, gin.H{
		"provider_key": "pk_test_123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, true, data["changed"])
	payment := data["payment"].(map[string]interface{})
	assert.Equal(t, "paid", payment["status"])

	orderID := order["id"].(string)
	w = doJSON(t, r, http.MethodGet, "/v1/orders/"+orderID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fetched := decodeData(t, w)["order"].(map[string]interface{})
	assert.Equal(t, "paid", fetched["status"])
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/auth/register", "", gin.H{
		"username": "empty_cart",
		"email":    "empty@example.com",
		"password": "Passw0rd!",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token, _ := decodeData(t, w)["token"].(string)

	w = doJSON(t, r, http.MethodPost, "/v1/orders/checkout", token, gin.H{
		"shipping_recipient": "Kim Jiyeon",
		"shipping_phone":     "010-1234-5678",
		"shipping_address1":  "100 Sejong-daero",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestAdminEndpointsForbiddenForCustomers(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/auth/register", "", gin.H{
		"username": "plain_user",
		"email":    "plain@example.com",
		"password": "Passw0rd!",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token, _ := decodeData(t, w)["token"].(string)

	w = doJSON(t, r, http.MethodPost, "/v1/admin/products", token, gin.H{
		"title": "Forbidden",
		"price": "1000",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProductAvailabilityEndpoint(t *testing.T) {
	r, db := setupRouter(t)
	product := seedProduct(t, db, "9000", 3)

	w := doJSON(t, r, http.MethodGet, "/v1/products/"+product.ID.String()+"/availability?quantity=2", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/v1/products/"+product.ID.String()+"/availability?quantity=5", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	// A real product whose stock was never configured reports 422, an
	// unknown product id reports 404.
	unstocked := &models.Product{
		Title:    "Linen Apron",
		Category: "kitchen",
		Price:    decimal.RequireFromString("15000"),
		Currency: "KRW",
		Status:   models.ProductStatusActive,
	}
	require.NoError(t, db.Create(unstocked).Error)

	w = doJSON(t, r, http.MethodGet, "/v1/products/"+unstocked.ID.String()+"/availability?quantity=1", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/v1/products/"+uuid.NewString()+"/availability", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}
