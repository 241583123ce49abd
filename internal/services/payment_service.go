// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/database"
	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/provider"
)

// PaymentService drives the payment lifecycle against an external gateway.
// Every transition is recorded as an append-only PaymentEvent.
type PaymentService struct {
	db           *gorm.DB
	config       *config.Config
	orderService *OrderService
	gateway      provider.Gateway
	notifier     *NotificationService
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, orderService *OrderService, gateway provider.Gateway) *PaymentService {
	return &PaymentService{
		db:           db,
		config:       cfg,
		orderService: orderService,
		gateway:      gateway,
	}
}

// WithNotifier enables customer emails on approvals.
func (s *PaymentService) WithNotifier(n *NotificationService) *PaymentService {
	s.notifier = n
	return s
}

func (s *PaymentService) notifyPaymentApproved(userID uuid.UUID, payment *models.Payment) {
	if s.notifier == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return
	}
	s.notifier.NotifyAsync(func() error {
		return s.notifier.SendPaymentApproved(&user, payment)
	})
}

// confirmable payment states; anything else rejects Confirm.
var confirmableStates = map[models.PaymentStatus]bool{
	models.PaymentStatusReady:             true,
	models.PaymentStatusInProgress:        true,
	models.PaymentStatusWaitingForDeposit: true,
}

// createPaymentStubTx ensures a ready payment exists for the order.
// Idempotent: an existing ready stub is returned unchanged. Package-level so
// checkout and merge can create stubs without holding a PaymentService.
func createPaymentStubTx(tx *gorm.DB, order *models.Purchase, prov models.PaymentProvider) (*models.Payment, bool, error) {
	var existing models.Payment
	err := tx.Where("order_id = ? AND status = ?", order.ID, models.PaymentStatusReady).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to load payment stub: %w", err)
	}

	now := time.Now()
	orderNumber := newOrderNumber(now)
	payment := &models.Payment{
		OrderID:     order.ID,
		Provider:    prov,
		OrderNumber: &orderNumber,
		Status:      models.PaymentStatusReady,
		Currency:    "KRW",
		AmountTotal: order.GrandTotal,
		RequestedAt: &now,
	}
	if err := tx.Create(payment).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create payment stub: %w", err)
	}

	if _, err := recordPaymentEventTx(tx, payment.ID, models.PaymentEventSourceAPI,
		models.PaymentEventStubCreated, payment.Status, models.JSONB{
			"order_id":     order.ID.String(),
			"order_number": orderNumber,
			"amount_total": payment.AmountTotal.String(),
		}, nil); err != nil {
		return nil, false, err
	}

	return payment, true, nil
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// recordPaymentEventTx appends one audit event. A non-nil dedupeKey that was
// already recorded for the payment suppresses the write; the bool reports
// whether a row was created.
func recordPaymentEventTx(tx *gorm.DB, paymentID uuid.UUID, source models.PaymentEventSource,
	eventType models.PaymentEventType, status models.PaymentStatus,
	payload models.JSONB, dedupeKey *string) (bool, error) {

	if dedupeKey != nil && *dedupeKey != "" {
		var count int64
		if err := tx.Model(&models.PaymentEvent{}).
			Where("payment_id = ? AND dedupe_key = ?", paymentID, *dedupeKey).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("failed to check event dedupe: %w", err)
		}
		if count > 0 {
			return false, nil
		}
	}

	now := time.Now()
	event := &models.PaymentEvent{
		PaymentID:      paymentID,
		Source:         source,
		EventType:      eventType,
		ProviderStatus: status,
		Payload:        payload,
		DedupeKey:      dedupeKey,
		OccurredAt:     &now,
	}
	if err := tx.Create(event).Error; err != nil {
		return false, fmt.Errorf("failed to record payment event: %w", err)
	}
	return true, nil
}

// CreateStub ensures a ready payment exists for one of the user's ready
// orders, defaulting the amount to the order's grand total.
func (s *PaymentService) CreateStub(userID, orderID uuid.UUID) (*models.Payment, bool, error) {
	var payment *models.Payment
	created := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderService.lockOrder(tx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.PurchaseStatusReady {
			return &InvalidStateTransitionError{Entity: "order", From: string(order.Status), Op: "create payment stub for"}
		}

		payment, created, err = createPaymentStubTx(tx, order, s.gateway.Name())
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return payment, created, nil
}

// GetPayment loads one payment with its events, checking order ownership.
func (s *PaymentService) GetPayment(userID, paymentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_events.created_at ASC")
		}).
		Preload("Order").
		First(&payment, paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("payment not found")
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment.Order.UserID != userID {
		return nil, errors.New("payment not found")
	}
	return &payment, nil
}

func (s *PaymentService) lockPayment(tx *gorm.DB, userID, paymentID uuid.UUID) (*models.Payment, *models.Purchase, error) {
	var payment models.Payment
	err := database.LockForUpdate(tx).First(&payment, paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errors.New("payment not found")
		}
		return nil, nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	order, err := s.orderService.lockOrder(tx, userID, payment.OrderID)
	if err != nil {
		// Ownership mismatch surfaces as not-found, same as a bad id.
		return nil, nil, errors.New("payment not found")
	}
	return &payment, order, nil
}

func (s *PaymentService) providerContext() (context.Context, context.CancelFunc) {
	seconds := s.config.Payment.ProviderTimeout
	if seconds <= 0 {
		seconds = 10
	}
	return context.WithTimeout(context.Background(), time.Duration(seconds)*time.Second)
}

// Confirm settles a payment against the gateway. Valid only from ready,
// in_progress or waiting_for_deposit; confirming an already-paid payment is
// an idempotent no-op that re-fires no side effects. On success the payment
// and its ready order flip to paid, the user's cart is cleared and an
// approval event is recorded, deduplicated by the provider transaction key.
func (s *PaymentService) Confirm(userID, paymentID uuid.UUID, providerKey string, payload map[string]interface{}) (*models.Payment, bool, error) {
	if providerKey == "" {
		return nil, false, errors.New("provider key is required")
	}

	changed := false
	var gatewayErr error
	err := s.db.Transaction(func(tx *gorm.DB) error {
		payment, order, err := s.lockPayment(tx, userID, paymentID)
		if err != nil {
			return err
		}

		if payment.Status == models.PaymentStatusPaid {
			return nil
		}
		if !confirmableStates[payment.Status] {
			return &InvalidStateTransitionError{Entity: "payment", From: string(payment.Status), Op: "confirm"}
		}

		ctx, cancel := s.providerContext()
		defer cancel()

		orderNumber := ""
		if payment.OrderNumber != nil {
			orderNumber = *payment.OrderNumber
		}
		result, err := s.gateway.Confirm(ctx, providerKey, orderNumber, payment.AmountTotal)
		if err != nil {
			gatewayErr = err
			return err
		}

		if result.Status != models.PaymentStatusPaid {
			if err := tx.Model(payment).Update("status", result.Status).Error; err != nil {
				return fmt.Errorf("failed to update payment status: %w", err)
			}
			if _, err := recordPaymentEventTx(tx, payment.ID, models.PaymentEventSourceAPI,
				models.PaymentEventStatusChanged, result.Status, models.JSONB(result.Raw), nil); err != nil {
				return err
			}
			return fmt.Errorf("payment not approved: provider reported %s", result.Status)
		}

		// Safety net for stubs whose order was created without lines; a
		// normal checkout order already has its items and this returns zero.
		if _, err := s.orderService.materializeOrderItemsTx(tx, order); err != nil {
			s.compensateApproval(providerKey, payment.AmountTotal, err)
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{
			"provider_payment_key": providerKey,
			"status":               models.PaymentStatusPaid,
			"approved_at":          now,
		}
		if result.Method != "" {
			updates["method"] = result.Method
		}
		if result.ReceiptURL != "" {
			updates["receipt_url"] = result.ReceiptURL
		}
		if err := tx.Model(payment).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to mark payment paid: %w", err)
		}

		if order.Status == models.PurchaseStatusReady {
			if err := tx.Model(order).Update("status", models.PurchaseStatusPaid).Error; err != nil {
				return fmt.Errorf("failed to mark order paid: %w", err)
			}
		}

		cart, err := s.orderService.cartService.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}
		if err := clearCartTx(tx, cart.ID); err != nil {
			return err
		}

		eventPayload := models.JSONB(result.Raw)
		if eventPayload == nil {
			eventPayload = models.JSONB{}
		}
		for k, v := range payload {
			eventPayload[k] = v
		}
		var dedupe *string
		if result.TransactionKey != "" {
			dedupe = &result.TransactionKey
		}
		if _, err := recordPaymentEventTx(tx, payment.ID, models.PaymentEventSourceAPI,
			models.PaymentEventApproval, models.PaymentStatusPaid, eventPayload, dedupe); err != nil {
			return err
		}

		changed = true
		return nil
	})
	if err != nil {
		s.orderService.stockService.ensureRowAfterOutOfStock(err)
		// The fail event outlives the rolled-back transaction.
		if gatewayErr != nil {
			if _, recErr := recordPaymentEventTx(s.db, paymentID, models.PaymentEventSourceAPI,
				models.PaymentEventFail, models.PaymentStatusFailed, models.JSONB{
					"provider_key": providerKey,
					"error":        gatewayErr.Error(),
				}, nil); recErr != nil {
				logrus.WithError(recErr).Warn("Failed to record payment fail event")
			}
		}
		return nil, false, err
	}

	if changed {
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"payment_id": paymentID,
		}).Info("Payment confirmed")
	}

	payment, err := s.GetPayment(userID, paymentID)
	if err == nil && changed {
		s.notifyPaymentApproved(userID, payment)
	}
	return payment, changed, err
}

// compensateApproval reverses a gateway approval whose local materialization
// failed. Best-effort: the original domain error propagates either way.
func (s *PaymentService) compensateApproval(providerKey string, amount decimal.Decimal, cause error) {
	ctx, cancel := s.providerContext()
	defer cancel()
	if _, err := s.gateway.Cancel(ctx, providerKey, amount, "materialization failed"); err != nil {
		logrus.WithError(err).WithField("provider_key", providerKey).
			Error("Compensating gateway cancel failed")
		return
	}
	logrus.WithError(cause).WithField("provider_key", providerKey).
		Warn("Gateway approval reversed after local failure")
}

// Cancel cancels a payment. A ready or paid linked order gets its stock back
// and flips to canceled; the payment always flips to canceled with a cancel
// event. Canceling an already-canceled payment is a no-op.
func (s *PaymentService) Cancel(userID, paymentID uuid.UUID, reason string) (*models.Payment, bool, error) {
	changed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		payment, order, err := s.lockPayment(tx, userID, paymentID)
		if err != nil {
			return err
		}

		if payment.Status == models.PaymentStatusCanceled {
			return nil
		}

		// A settled payment is reversed at the gateway first; a gateway
		// failure aborts the cancellation rather than faking success.
		if payment.Status == models.PaymentStatusPaid && payment.ProviderPaymentKey != nil {
			ctx, cancel := s.providerContext()
			defer cancel()
			if _, err := s.gateway.Cancel(ctx, *payment.ProviderPaymentKey, payment.AmountTotal, reason); err != nil {
				return err
			}
		}

		if order.Status == models.PurchaseStatusReady || order.Status == models.PurchaseStatusPaid {
			if err := s.orderService.releaseOrderStockTx(tx, order.ID); err != nil {
				return err
			}
			if err := tx.Model(order).Update("status", models.PurchaseStatusCanceled).Error; err != nil {
				return fmt.Errorf("failed to cancel order: %w", err)
			}
		}

		now := time.Now()
		if err := tx.Model(payment).Updates(map[string]interface{}{
			"status":      models.PaymentStatusCanceled,
			"canceled_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to cancel payment: %w", err)
		}

		if _, err := recordPaymentEventTx(tx, payment.ID, models.PaymentEventSourceAPI,
			models.PaymentEventCancel, models.PaymentStatusCanceled, models.JSONB{
				"reason": reason,
			}, nil); err != nil {
			return err
		}

		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"payment_id": paymentID,
			"reason":     reason,
		}).Info("Payment canceled")
	}

	payment, err := s.GetPayment(userID, paymentID)
	return payment, changed, err
}

// Retrieve fetches the provider's current view of the payment without
// changing local state.
func (s *PaymentService) Retrieve(userID, paymentID uuid.UUID) (*provider.Result, error) {
	payment, err := s.GetPayment(userID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.ProviderPaymentKey == nil {
		return nil, errors.New("payment has no provider key yet")
	}

	ctx, cancel := s.providerContext()
	defer cancel()
	return s.gateway.Retrieve(ctx, *payment.ProviderPaymentKey)
}

// Sync reconciles the local payment status with the provider's. A changed
// status is recorded as a status_changed event; reaching paid also stamps
// approval and flips a still-ready order.
func (s *PaymentService) Sync(userID, paymentID uuid.UUID) (*models.Payment, bool, error) {
	changed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		payment, order, err := s.lockPayment(tx, userID, paymentID)
		if err != nil {
			return err
		}
		if payment.ProviderPaymentKey == nil {
			return errors.New("payment has no provider key yet")
		}

		ctx, cancel := s.providerContext()
		defer cancel()
		result, err := s.gateway.Retrieve(ctx, *payment.ProviderPaymentKey)
		if err != nil {
			return err
		}

		if result.Status == payment.Status {
			return nil
		}

		updates := map[string]interface{}{"status": result.Status}
		if result.Status == models.PaymentStatusPaid && payment.ApprovedAt == nil {
			updates["approved_at"] = time.Now()
		}
		if err := tx.Model(payment).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to sync payment status: %w", err)
		}

		if result.Status == models.PaymentStatusPaid && order.Status == models.PurchaseStatusReady {
			if err := tx.Model(order).Update("status", models.PurchaseStatusPaid).Error; err != nil {
				return fmt.Errorf("failed to mark order paid: %w", err)
			}
		}

		if _, err := recordPaymentEventTx(tx, payment.ID, models.PaymentEventSourceSync,
			models.PaymentEventStatusChanged, result.Status, models.JSONB(result.Raw), nil); err != nil {
			return err
		}

		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	payment, err := s.GetPayment(userID, paymentID)
	return payment, changed, err
}
