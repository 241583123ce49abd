// internal/services/order_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/database"
	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

// OrderService drives the order lifecycle: checkout from a cart, cancel,
// refund, merge and bulk delete. Every mutation that touches stock runs the
// stock movement and the status change in one transaction.
type OrderService struct {
	db           *gorm.DB
	config       *config.Config
	stockService *StockService
	cartService  *CartService
	notifier     *NotificationService
}

type CheckoutRequest struct {
	ShippingRecipient string `json:"shipping_recipient" validate:"required,max=100"`
	ShippingPhone     string `json:"shipping_phone" validate:"required,max=30"`
	ShippingPostcode  string `json:"shipping_postcode" validate:"max=10"`
	ShippingAddress1  string `json:"shipping_address1" validate:"required,max=255"`
	ShippingAddress2  string `json:"shipping_address2" validate:"max=255"`
	ShippingMemo      string `json:"shipping_memo" validate:"max=255"`
}

// LegacyLine is the flat per-line order shape older clients consume. It is a
// projection over OrderItem rows; nothing writes through it.
type LegacyLine struct {
	OrderID   uuid.UUID              `json:"order_id"`
	ProductID uuid.UUID              `json:"product_id"`
	OptionKey string                 `json:"option_key"`
	Options   map[string]interface{} `json:"options"`
	Quantity  int                    `json:"quantity"`
	UnitPrice decimal.Decimal        `json:"unit_price"`
	LineTotal decimal.Decimal        `json:"line_total"`
	Status    models.PurchaseStatus  `json:"status"`
}

// ReadyOrderSummary aggregates a user's unpaid orders for the order sheet.
type ReadyOrderSummary struct {
	OrderCount int               `json:"order_count"`
	ItemCount  int               `json:"item_count"`
	GrandTotal decimal.Decimal   `json:"grand_total"`
	CanMerge   bool              `json:"can_merge"`
	Orders     []models.Purchase `json:"orders"`
}

func NewOrderService(db *gorm.DB, cfg *config.Config, stockService *StockService, cartService *CartService) *OrderService {
	return &OrderService{
		db:           db,
		config:       cfg,
		stockService: stockService,
		cartService:  cartService,
	}
}

// WithNotifier enables customer emails on lifecycle changes. Without it the
// service stays silent, which is what the tests want.
func (s *OrderService) WithNotifier(n *NotificationService) *OrderService {
	s.notifier = n
	return s
}

func (s *OrderService) notifyOrderConfirmation(userID uuid.UUID, order *models.Purchase) {
	if s.notifier == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return
	}
	s.notifier.NotifyAsync(func() error {
		return s.notifier.SendOrderConfirmation(&user, order)
	})
}

func (s *OrderService) notifyOrderCanceled(userID uuid.UUID, order *models.Purchase, reason string) {
	if s.notifier == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return
	}
	s.notifier.NotifyAsync(func() error {
		return s.notifier.SendOrderCanceled(&user, order, reason)
	})
}

// Checkout turns the user's cart into a ready order in a single transaction:
// stock is reserved per line, order items are snapshotted, a payment stub is
// created and the cart is emptied. Any failure rolls the whole thing back,
// cart included.
func (s *OrderService) Checkout(userID uuid.UUID, req *CheckoutRequest) (*models.Purchase, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var orderID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartService.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		// Stable line order keeps lock acquisition deterministic across
		// concurrent checkouts touching the same stock rows.
		var lines []models.CartItem
		if err := tx.Where("cart_id = ?", cart.ID).
			Order("product_id ASC, option_key ASC").
			Find(&lines).Error; err != nil {
			return fmt.Errorf("failed to load cart lines: %w", err)
		}
		if len(lines) == 0 {
			return &EmptyCartError{Reason: "cart is empty"}
		}

		order := &models.Purchase{
			UserID:            userID,
			Status:            models.PurchaseStatusReady,
			ShippingRecipient: req.ShippingRecipient,
			ShippingPhone:     req.ShippingPhone,
			ShippingPostcode:  req.ShippingPostcode,
			ShippingAddress1:  req.ShippingAddress1,
			ShippingAddress2:  req.ShippingAddress2,
			ShippingMemo:      req.ShippingMemo,
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		total := decimal.Zero
		for _, line := range lines {
			if err := s.stockService.reserve(tx, line.ProductID, line.OptionKey, line.Quantity); err != nil {
				return err
			}

			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				OptionKey: line.OptionKey,
				Options:   line.Options,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				Currency:  s.config.Payment.DefaultCurrency,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			total = total.Add(item.LineTotal())
		}

		if err := tx.Model(order).Updates(map[string]interface{}{
			"items_total": total,
			"grand_total": total,
		}).Error; err != nil {
			return fmt.Errorf("failed to update order totals: %w", err)
		}
		order.ItemsTotal = total
		order.GrandTotal = total

		if _, _, err := createPaymentStubTx(tx, order, s.defaultProvider()); err != nil {
			return err
		}

		if err := clearCartTx(tx, cart.ID); err != nil {
			return err
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		s.stockService.ensureRowAfterOutOfStock(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"order_id": orderID,
	}).Info("Checkout completed")

	order, err := s.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	s.notifyOrderConfirmation(userID, order)
	return order, nil
}

func (s *OrderService) defaultProvider() models.PaymentProvider {
	if s.config.Payment.MockMode {
		return models.PaymentProviderMock
	}
	return models.PaymentProviderStripe
}

func (s *OrderService) loadOrder(orderID uuid.UUID) (*models.Purchase, error) {
	var order models.Purchase
	err := s.db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.product_id ASC, order_items.option_key ASC")
		}).
		Preload("Items.Product").
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("payments.created_at ASC")
		}).
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("order not found")
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// GetOrder loads one order owned by the user.
func (s *OrderService) GetOrder(userID, orderID uuid.UUID) (*models.Purchase, error) {
	order, err := s.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, errors.New("order not found")
	}
	return order, nil
}

// ListOrders returns the user's order history, newest first.
func (s *OrderService) ListOrders(userID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.Model(&models.Purchase{}).Where("user_id = ?", userID)
	if params.Search != "" {
		query = query.Where("status = ?", params.Search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Purchase
	query = utils.ApplySort(query, params, []string{"created_at", "purchased_at", "grand_total", "status"})
	query = utils.ApplyPagination(query, params)
	if err := query.Preload("Items").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	result := utils.CreatePaginationResult(orders, total, params)
	return &result, nil
}

// LegacyLines flattens an order into the per-line shape legacy clients read.
func (s *OrderService) LegacyLines(order *models.Purchase) []LegacyLine {
	lines := make([]LegacyLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, LegacyLine{
			OrderID:   order.ID,
			ProductID: it.ProductID,
			OptionKey: it.OptionKey,
			Options:   map[string]interface{}(it.Options),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal(),
			Status:    order.Status,
		})
	}
	return lines
}

// materializeOrderItemsTx snapshots the user's current cart into order items
// for an order that has none yet, reserving stock per line. Idempotent: when
// the order already has items it returns zero without touching anything.
// The payment confirm path runs it as a safety net for stubs whose order was
// created without lines.
func (s *OrderService) materializeOrderItemsTx(tx *gorm.DB, order *models.Purchase) (int, error) {
	var existing int64
	if err := tx.Model(&models.OrderItem{}).
		Where("order_id = ?", order.ID).
		Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("failed to count order items: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	cart, err := s.cartService.getOrCreateCart(tx, order.UserID)
	if err != nil {
		return 0, err
	}

	var lines []models.CartItem
	if err := tx.Where("cart_id = ?", cart.ID).
		Order("product_id ASC, option_key ASC").
		Find(&lines).Error; err != nil {
		return 0, fmt.Errorf("failed to load cart lines: %w", err)
	}
	if len(lines) == 0 {
		return 0, &EmptyCartError{Reason: "no cart lines to materialize"}
	}

	total := decimal.Zero
	for _, line := range lines {
		if err := s.stockService.reserve(tx, line.ProductID, line.OptionKey, line.Quantity); err != nil {
			return 0, err
		}
		item := models.OrderItem{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			OptionKey: line.OptionKey,
			Options:   line.Options,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Currency:  s.config.Payment.DefaultCurrency,
		}
		if err := tx.Create(&item).Error; err != nil {
			return 0, fmt.Errorf("failed to create order item: %w", err)
		}
		total = total.Add(item.LineTotal())
	}

	if err := tx.Model(order).Updates(map[string]interface{}{
		"items_total": total,
		"grand_total": total,
	}).Error; err != nil {
		return 0, fmt.Errorf("failed to update order totals: %w", err)
	}
	order.ItemsTotal = total
	order.GrandTotal = total

	if err := clearCartTx(tx, cart.ID); err != nil {
		return 0, err
	}

	return len(lines), nil
}

// MaterializeOrderItems is the standalone variant of the confirm-time safety
// net. Returns how many lines were created; zero means the order already had
// its items.
func (s *OrderService) MaterializeOrderItems(userID, orderID uuid.UUID) (int, error) {
	var created int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(tx, userID, orderID)
		if err != nil {
			return err
		}
		created, err = s.materializeOrderItemsTx(tx, order)
		return err
	})
	if err != nil {
		s.stockService.ensureRowAfterOutOfStock(err)
	}
	return created, err
}

func (s *OrderService) lockOrder(tx *gorm.DB, userID, orderID uuid.UUID) (*models.Purchase, error) {
	var order models.Purchase
	err := database.LockForUpdate(tx).
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("order not found")
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return &order, nil
}

// releaseOrderStockTx returns every reserved unit of an order to the ledger.
// Quantities are grouped per (product, option) so each stock row is locked
// once.
func (s *OrderService) releaseOrderStockTx(tx *gorm.DB, orderID uuid.UUID) error {
	grouped, err := s.groupedQuantities(tx, orderID)
	if err != nil {
		return err
	}
	for _, g := range grouped {
		if err := s.stockService.release(tx, g.ProductID, g.OptionKey, g.Quantity); err != nil {
			return err
		}
	}
	return nil
}

type stockGroup struct {
	ProductID uuid.UUID
	OptionKey string
	Quantity  int
}

func (s *OrderService) groupedQuantities(tx *gorm.DB, orderID uuid.UUID) ([]stockGroup, error) {
	var grouped []stockGroup
	err := tx.Model(&models.OrderItem{}).
		Select("product_id, option_key, SUM(quantity) AS quantity").
		Where("order_id = ?", orderID).
		Group("product_id, option_key").
		Order("product_id ASC, option_key ASC").
		Scan(&grouped).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group order quantities: %w", err)
	}
	return grouped, nil
}

// CancelOrder cancels a ready or paid order and returns its stock. Canceling
// an already-canceled order reports changed=false and no error.
func (s *OrderService) CancelOrder(userID, orderID uuid.UUID) (*models.Purchase, bool, error) {
	changed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(tx, userID, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.PurchaseStatusCanceled:
			return nil
		case models.PurchaseStatusReady, models.PurchaseStatusPaid:
		default:
			return &InvalidStateTransitionError{Entity: "order", From: string(order.Status), Op: "cancel"}
		}

		if err := s.releaseOrderStockTx(tx, order.ID); err != nil {
			return err
		}
		if err := tx.Model(order).Update("status", models.PurchaseStatusCanceled).Error; err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		logrus.WithFields(logrus.Fields{
			"user_id":  userID,
			"order_id": orderID,
		}).Info("Order canceled")
	}

	order, err := s.loadOrder(orderID)
	if err == nil && changed {
		s.notifyOrderCanceled(userID, order, "Canceled at your request.")
	}
	return order, changed, err
}

// RefundOrder refunds a paid order and returns its stock. Refunding an
// already-refunded order reports changed=false and no error.
func (s *OrderService) RefundOrder(userID, orderID uuid.UUID) (*models.Purchase, bool, error) {
	changed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(tx, userID, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.PurchaseStatusRefunded:
			return nil
		case models.PurchaseStatusPaid:
		default:
			return &InvalidStateTransitionError{Entity: "order", From: string(order.Status), Op: "refund"}
		}

		if err := s.releaseOrderStockTx(tx, order.ID); err != nil {
			return err
		}
		if err := tx.Model(order).Update("status", models.PurchaseStatusRefunded).Error; err != nil {
			return fmt.Errorf("failed to refund order: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		logrus.WithFields(logrus.Fields{
			"user_id":  userID,
			"order_id": orderID,
		}).Info("Order refunded")
	}

	order, err := s.loadOrder(orderID)
	if err == nil && changed {
		s.notifyOrderCanceled(userID, order, "Your payment has been refunded.")
	}
	return order, changed, err
}

// ValidateCartStock verifies every cart line could be reserved right now,
// without reserving. Used before handing the customer to the payment widget.
func (s *OrderService) ValidateCartStock(userID uuid.UUID) error {
	cart, err := s.cartService.GetCart(userID)
	if err != nil {
		return err
	}
	for _, line := range cart.Items {
		if err := s.stockService.CheckAvailability(line.ProductID, line.OptionKey, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ReadyOrders lists the user's unpaid orders, oldest first.
func (s *OrderService) ReadyOrders(userID uuid.UUID) ([]models.Purchase, error) {
	var orders []models.Purchase
	err := s.db.
		Where("user_id = ? AND status = ?", userID, models.PurchaseStatusReady).
		Order("created_at ASC").
		Preload("Items").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ready orders: %w", err)
	}
	return orders, nil
}

// SummarizeReadyOrders aggregates the user's unpaid orders.
func (s *OrderService) SummarizeReadyOrders(userID uuid.UUID) (*ReadyOrderSummary, error) {
	orders, err := s.ReadyOrders(userID)
	if err != nil {
		return nil, err
	}

	summary := &ReadyOrderSummary{GrandTotal: decimal.Zero, Orders: orders}
	for _, o := range orders {
		summary.OrderCount++
		summary.GrandTotal = summary.GrandTotal.Add(o.GrandTotal)
		for _, it := range o.Items {
			summary.ItemCount += it.Quantity
		}
	}
	summary.CanMerge = summary.OrderCount >= 2
	return summary, nil
}
