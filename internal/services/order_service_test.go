// internal/services/order_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/provider"
)

type testServices struct {
	stock   *StockService
	cart    *CartService
	order   *OrderService
	payment *PaymentService
	gateway *provider.MockGateway
}

func newTestServices(t *testing.T, db *gorm.DB) *testServices {
	t.Helper()

	cfg := testConfig()
	stock := NewStockService(db)
	cart := NewCartService(db, cfg)
	order := NewOrderService(db, cfg, stock, cart)
	gateway := provider.NewMockGateway()
	payment := NewPaymentService(db, cfg, order, gateway)

	return &testServices{
		stock:   stock,
		cart:    cart,
		order:   order,
		payment: payment,
		gateway: gateway,
	}
}

func shippingRequest() *CheckoutRequest {
	return &CheckoutRequest{
		ShippingRecipient: "Kim Jiyeon",
		ShippingPhone:     "010-1234-5678",
		ShippingPostcode:  "06236",
		ShippingAddress1:  "123 Teheran-ro, Gangnam-gu",
		ShippingAddress2:  "Apt 401",
	}
}

func TestCheckout(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "size=L", 10)

	_, err := s.cart.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Options:   map[string]interface{}{"size": "L"},
		Quantity:  2,
	})
	require.NoError(t, err)

	order, err := s.order.Checkout(user.ID, shippingRequest())
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseStatusReady, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "size=L", order.Items[0].OptionKey)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "20000", order.GrandTotal.String())
	assert.Equal(t, "Kim Jiyeon", order.ShippingRecipient)

	// Stock reserved, stub created, cart emptied, all in one commit.
	assert.Equal(t, 8, stockQuantity(t, db, product.ID, "size=L"))
	require.Len(t, order.Payments, 1)
	assert.Equal(t, models.PaymentStatusReady, order.Payments[0].Status)
	assert.Equal(t, "20000", order.Payments[0].AmountTotal.String())

	cart, err := s.cart.GetCart(user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCheckoutOutOfStockRollsBack(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 1)

	_, err := s.cart.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Quantity:  5,
	})
	require.NoError(t, err)

	_, err = s.order.Checkout(user.ID, shippingRequest())

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 1, stockQuantity(t, db, product.ID, ""))

	// Cart line survives the failed checkout.
	cart, err := s.cart.GetCart(user.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	var orders int64
	require.NoError(t, db.Model(&models.Purchase{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestCheckoutUnstockedVariant(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")

	_, err := s.cart.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Options:   map[string]interface{}{"size": "XL"},
		Quantity:  1,
	})
	require.NoError(t, err)

	_, err = s.order.Checkout(user.ID, shippingRequest())

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 0, oos.Available)

	// The variant's ledger row is registered at zero even though the
	// checkout rolled back.
	assert.Equal(t, 0, stockQuantity(t, db, product.ID, "size=XL"))
}

func TestCheckoutMultiLineAtomicity(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	plenty := createTestProduct(t, db, "10000")
	scarce := createTestProduct(t, db, "20000")
	createTestStock(t, db, plenty.ID, "", 100)
	createTestStock(t, db, scarce.ID, "", 0)

	for _, req := range []*AddCartItemRequest{
		{ProductID: plenty.ID, Quantity: 1},
		{ProductID: scarce.ID, Quantity: 1},
	} {
		_, err := s.cart.AddItem(user.ID, req)
		require.NoError(t, err)
	}

	_, err := s.order.Checkout(user.ID, shippingRequest())

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)

	// Neither decrement survives; no order items exist.
	assert.Equal(t, 100, stockQuantity(t, db, plenty.ID, ""))
	assert.Equal(t, 0, stockQuantity(t, db, scarce.ID, ""))
	var items int64
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&items).Error)
	assert.Zero(t, items)
}

func TestCheckoutEmptyCart(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)

	_, err := s.order.Checkout(user.ID, shippingRequest())

	var empty *EmptyCartError
	require.ErrorAs(t, err, &empty)
}

func placeOrder(t *testing.T, db *gorm.DB, s *testServices, user *models.User, product *models.Product, qty int) *models.Purchase {
	t.Helper()

	_, err := s.cart.AddItem(user.ID, &AddCartItemRequest{
		ProductID: product.ID,
		Quantity:  qty,
	})
	require.NoError(t, err)

	order, err := s.order.Checkout(user.ID, shippingRequest())
	require.NoError(t, err)
	return order
}

func TestMaterializeOrderItemsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 10)

	order := placeOrder(t, db, s, user, product, 2)

	created, err := s.order.MaterializeOrderItems(user.ID, order.ID)
	require.NoError(t, err)
	assert.Zero(t, created, "existing lines must not be re-materialized")

	// No additional stock movement.
	assert.Equal(t, 8, stockQuantity(t, db, product.ID, ""))
	var items int64
	require.NoError(t, db.Model(&models.OrderItem{}).
		Where("order_id = ?", order.ID).Count(&items).Error)
	assert.EqualValues(t, 1, items)
}

func TestMaterializeOrderItemsFromCart(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "3000")
	createTestStock(t, db, product.ID, "", 10)

	// Bare header with no lines.
	order := &models.Purchase{UserID: user.ID, Status: models.PurchaseStatusReady}
	require.NoError(t, db.Create(order).Error)

	_, err := s.cart.AddItem(user.ID, &AddCartItemRequest{ProductID: product.ID, Quantity: 4})
	require.NoError(t, err)

	created, err := s.order.MaterializeOrderItems(user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 6, stockQuantity(t, db, product.ID, ""))

	reloaded, err := s.order.GetOrder(user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "12000", reloaded.GrandTotal.String())

	cart, err := s.cart.GetCart(user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items, "materialization consumes the cart")
}

func TestCancelOrder(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 10)

	order := placeOrder(t, db, s, user, product, 3)
	assert.Equal(t, 7, stockQuantity(t, db, product.ID, ""))

	canceled, changed, err := s.order.CancelOrder(user.ID, order.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.PurchaseStatusCanceled, canceled.Status)
	assert.Equal(t, 10, stockQuantity(t, db, product.ID, ""))

	// Repeat is a no-op, stock is not double-released.
	again, changed, err := s.order.CancelOrder(user.ID, order.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.PurchaseStatusCanceled, again.Status)
	assert.Equal(t, 10, stockQuantity(t, db, product.ID, ""))
}

func TestCancelPaidOrder(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 10)

	order := placeOrder(t, db, s, user, product, 2)
	require.NoError(t, db.Model(&models.Purchase{}).
		Where("id = ?", order.ID).
		Update("status", models.PurchaseStatusPaid).Error)

	canceled, changed, err := s.order.CancelOrder(user.ID, order.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.PurchaseStatusCanceled, canceled.Status)
	assert.Equal(t, 10, stockQuantity(t, db, product.ID, ""))

	_, changed, err = s.order.CancelOrder(user.ID, order.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 10, stockQuantity(t, db, product.ID, ""))
}

func TestCancelRefundedOrderRejected(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 10)

	order := placeOrder(t, db, s, user, product, 1)
	require.NoError(t, db.Model(&models.Purchase{}).
		Where("id = ?", order.ID).
		Update("status", models.PurchaseStatusRefunded).Error)

	_, _, err := s.order.CancelOrder(user.ID, order.ID)

	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "refunded", invalid.From)
}

func TestReorderSameVariantAfterCheckout(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "size=M", 10)

	req := &AddCartItemRequest{
		ProductID: product.ID,
		Options:   map[string]interface{}{"size": "M"},
		Quantity:  1,
	}
	_, err := s.cart.AddItem(user.ID, req)
	require.NoError(t, err)
	_, err = s.order.Checkout(user.ID, shippingRequest())
	require.NoError(t, err)

	// Checkout cleared the cart; the same variant must be addable again.
	cart, err := s.cart.AddItem(user.ID, req)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)

	order, err := s.order.Checkout(user.ID, shippingRequest())
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStatusReady, order.Status)
	assert.Equal(t, 8, stockQuantity(t, db, product.ID, "size=M"))
}

func TestRefundOrder(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 10)

	order := placeOrder(t, db, s, user, product, 2)
	require.NoError(t, db.Model(&models.Purchase{}).
		Where("id = ?", order.ID).
		Update("status", models.PurchaseStatusPaid).Error)

	refunded, changed, err := s.order.RefundOrder(user.ID, order.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.PurchaseStatusRefunded, refunded.Status)
	assert.Equal(t, 10, stockQuantity(t, db, product.ID, ""))

	_, changed, err = s.order.RefundOrder(user.ID, order.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 10, stockQuantity(t, db, product.ID, ""))

	// Refunding a ready order is rejected.
	other := placeOrder(t, db, s, user, product, 1)
	_, _, err = s.order.RefundOrder(user.ID, other.ID)
	var invalid *InvalidStateTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestLegacyLines(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "2500")
	createTestStock(t, db, product.ID, "", 10)

	order := placeOrder(t, db, s, user, product, 4)

	lines := s.order.LegacyLines(order)
	require.Len(t, lines, 1)
	assert.Equal(t, order.ID, lines[0].OrderID)
	assert.Equal(t, 4, lines[0].Quantity)
	assert.Equal(t, "10000", lines[0].LineTotal.String())
	assert.Equal(t, models.PurchaseStatusReady, lines[0].Status)
}

func TestValidateCartStock(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "10000")
	createTestStock(t, db, product.ID, "", 3)

	_, err := s.cart.AddItem(user.ID, &AddCartItemRequest{ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)
	require.NoError(t, s.order.ValidateCartStock(user.ID))

	_, err = s.cart.AddItem(user.ID, &AddCartItemRequest{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	var oos *OutOfStockError
	require.ErrorAs(t, s.order.ValidateCartStock(user.ID), &oos)
	assert.Equal(t, 3, stockQuantity(t, db, product.ID, ""), "validation must not reserve")
}

func TestListOrdersAndSummary(t *testing.T) {
	db := newTestDB(t)
	s := newTestServices(t, db)
	user := createTestUser(t, db)
	product := createTestProduct(t, db, "100")
	createTestStock(t, db, product.ID, "", 100)

	placeOrder(t, db, s, user, product, 1)
	placeOrder(t, db, s, user, product, 2)

	result, err := s.order.ListOrders(user.ID, paginationDefaults())
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Total)

	summary, err := s.order.SummarizeReadyOrders(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.OrderCount)
	assert.Equal(t, 3, summary.ItemCount)
	assert.Equal(t, "300", summary.GrandTotal.String())
	assert.True(t, summary.CanMerge)
	assert.Len(t, summary.Orders, 2)
}
