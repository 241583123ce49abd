// internal/services/order_merge.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/database"
	"github.com/hanbitmall/mall-backend/internal/models"
)

// StockReleaseOutcome reports one release attempt from a bulk delete.
type StockReleaseOutcome struct {
	ProductID uuid.UUID `json:"product_id"`
	OptionKey string    `json:"option_key"`
	Quantity  int       `json:"quantity"`
	Released  bool      `json:"released"`
	Reason    string    `json:"reason,omitempty"`
}

// DeleteReadyOrdersResult aggregates a bulk delete of ready orders.
type DeleteReadyOrdersResult struct {
	OrdersDeleted  int                   `json:"orders_deleted"`
	ItemsDeleted   int                   `json:"items_deleted"`
	UnitsRestored  int                   `json:"units_restored"`
	ReleaseResults []StockReleaseOutcome `json:"release_results"`
}

// MergeOrders combines two or more ready orders into one payable unit. The
// new order inherits the first order's shipping snapshot, takes over every
// line, and gets a fresh payment stub; the originals flip to merged. Stock is
// untouched, the lines stay reserved throughout.
func (s *OrderService) MergeOrders(userID uuid.UUID, orderIDs []uuid.UUID) (*models.Purchase, error) {
	ids := dedupeIDs(orderIDs)
	if len(ids) < 2 {
		return nil, fmt.Errorf("merge requires at least 2 distinct orders, got %d", len(ids))
	}

	var mergedID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var orders []models.Purchase
		if err := database.LockForUpdate(tx).
			Where("id IN ? AND user_id = ? AND status = ?", ids, userID, models.PurchaseStatusReady).
			Order("created_at ASC").
			Find(&orders).Error; err != nil {
			return fmt.Errorf("failed to lock orders: %w", err)
		}
		if len(orders) != len(ids) {
			return &OrderResolutionError{Requested: len(ids), Found: len(orders)}
		}

		// Keep the caller's ordering for the shipping snapshot: the first
		// requested order wins.
		first := orders[0]
		for i := range orders {
			if orders[i].ID == ids[0] {
				first = orders[i]
				break
			}
		}

		merged := &models.Purchase{
			UserID:            userID,
			Status:            models.PurchaseStatusReady,
			ShippingRecipient: first.ShippingRecipient,
			ShippingPhone:     first.ShippingPhone,
			ShippingPostcode:  first.ShippingPostcode,
			ShippingAddress1:  first.ShippingAddress1,
			ShippingAddress2:  first.ShippingAddress2,
			ShippingMemo:      first.ShippingMemo,
		}
		if err := tx.Create(merged).Error; err != nil {
			return fmt.Errorf("failed to create merged order: %w", err)
		}

		if err := tx.Model(&models.OrderItem{}).
			Where("order_id IN ?", ids).
			Update("order_id", merged.ID).Error; err != nil {
			return fmt.Errorf("failed to reassign order items: %w", err)
		}

		total, err := s.sumLineTotals(tx, merged.ID)
		if err != nil {
			return err
		}
		if err := tx.Model(merged).Updates(map[string]interface{}{
			"items_total": total,
			"grand_total": total,
		}).Error; err != nil {
			return fmt.Errorf("failed to update merged totals: %w", err)
		}
		merged.ItemsTotal = total
		merged.GrandTotal = total

		if err := tx.Model(&models.Purchase{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":         models.PurchaseStatusMerged,
				"merged_into_id": merged.ID,
			}).Error; err != nil {
			return fmt.Errorf("failed to mark originals merged: %w", err)
		}

		if _, _, err := createPaymentStubTx(tx, merged, s.defaultProvider()); err != nil {
			return err
		}

		mergedID = merged.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"order_id":  mergedID,
		"merged":    len(ids),
		"order_ids": ids,
	}).Info("Orders merged")

	return s.loadOrder(mergedID)
}

// CancelMerge reverses a merge: every line moves back to the earliest merged
// predecessor, which takes recomputed totals; that predecessor and its
// siblings return to ready and the merge header is deleted. A ready order
// with no merged predecessors degrades to a plain cancellation.
func (s *OrderService) CancelMerge(userID, orderID uuid.UUID) (*models.Purchase, error) {
	var restoredID uuid.UUID
	simpleCancel := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		header, err := s.lockOrder(tx, userID, orderID)
		if err != nil {
			return err
		}
		if header.Status != models.PurchaseStatusReady {
			return &InvalidStateTransitionError{Entity: "order", From: string(header.Status), Op: "cancel merge of"}
		}

		var predecessors []models.Purchase
		if err := database.LockForUpdate(tx).
			Where("merged_into_id = ? AND status = ?", header.ID, models.PurchaseStatusMerged).
			Order("created_at ASC").
			Find(&predecessors).Error; err != nil {
			return fmt.Errorf("failed to lock merged predecessors: %w", err)
		}

		if len(predecessors) == 0 {
			if err := s.releaseOrderStockTx(tx, header.ID); err != nil {
				return err
			}
			if err := tx.Model(header).Update("status", models.PurchaseStatusCanceled).Error; err != nil {
				return fmt.Errorf("failed to cancel order: %w", err)
			}
			simpleCancel = true
			restoredID = header.ID
			return nil
		}

		earliest := predecessors[0]
		if err := tx.Model(&models.OrderItem{}).
			Where("order_id = ?", header.ID).
			Update("order_id", earliest.ID).Error; err != nil {
			return fmt.Errorf("failed to reassign order items: %w", err)
		}

		total, err := s.sumLineTotals(tx, earliest.ID)
		if err != nil {
			return err
		}
		if err := tx.Model(&earliest).Updates(map[string]interface{}{
			"items_total": total,
			"grand_total": total,
		}).Error; err != nil {
			return fmt.Errorf("failed to update restored totals: %w", err)
		}

		predecessorIDs := make([]uuid.UUID, 0, len(predecessors))
		for _, p := range predecessors {
			predecessorIDs = append(predecessorIDs, p.ID)
		}
		if err := tx.Model(&models.Purchase{}).
			Where("id IN ?", predecessorIDs).
			Updates(map[string]interface{}{
				"status":         models.PurchaseStatusReady,
				"merged_into_id": nil,
			}).Error; err != nil {
			return fmt.Errorf("failed to restore merged orders: %w", err)
		}

		// Hard deletes: tombstoned payments would keep their unique
		// order_number slots occupied.
		if err := tx.Unscoped().Where("payment_id IN (?)",
			tx.Model(&models.Payment{}).Select("id").Where("order_id = ?", header.ID),
		).Delete(&models.PaymentEvent{}).Error; err != nil {
			return fmt.Errorf("failed to delete merge payment events: %w", err)
		}
		if err := tx.Unscoped().Where("order_id = ?", header.ID).Delete(&models.Payment{}).Error; err != nil {
			return fmt.Errorf("failed to delete merge payment stub: %w", err)
		}
		if err := tx.Unscoped().Delete(header).Error; err != nil {
			return fmt.Errorf("failed to delete merge header: %w", err)
		}

		restoredID = earliest.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"order_id":      orderID,
		"restored_to":   restoredID,
		"simple_cancel": simpleCancel,
	}).Info("Merge canceled")

	return s.loadOrder(restoredID)
}

// DeleteReadyOrders removes the given ready orders entirely, returning their
// stock first. Stock release is best-effort: a failed release is reported in
// the outcome list and the deletion of remaining lines and orders proceeds.
func (s *OrderService) DeleteReadyOrders(userID uuid.UUID, orderIDs []uuid.UUID) (*DeleteReadyOrdersResult, error) {
	ids := dedupeIDs(orderIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("no orders given")
	}

	result := &DeleteReadyOrdersResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var orders []models.Purchase
		if err := database.LockForUpdate(tx).
			Where("id IN ? AND user_id = ? AND status = ?", ids, userID, models.PurchaseStatusReady).
			Find(&orders).Error; err != nil {
			return fmt.Errorf("failed to lock orders: %w", err)
		}
		if len(orders) != len(ids) {
			return &OrderResolutionError{Requested: len(ids), Found: len(orders)}
		}

		for _, order := range orders {
			grouped, err := s.groupedQuantities(tx, order.ID)
			if err != nil {
				return err
			}
			for _, g := range grouped {
				outcome := StockReleaseOutcome{
					ProductID: g.ProductID,
					OptionKey: g.OptionKey,
					Quantity:  g.Quantity,
				}
				// Savepoint keeps a failed release from aborting the
				// surrounding transaction.
				releaseErr := tx.Transaction(func(inner *gorm.DB) error {
					return s.stockService.release(inner, g.ProductID, g.OptionKey, g.Quantity)
				})
				if err := releaseErr; err != nil {
					outcome.Reason = err.Error()
					logrus.WithFields(logrus.Fields{
						"order_id":   order.ID,
						"product_id": g.ProductID,
						"option_key": g.OptionKey,
						"quantity":   g.Quantity,
					}).WithError(err).Warn("Stock release failed during order deletion")
				} else {
					outcome.Released = true
					result.UnitsRestored += g.Quantity
				}
				result.ReleaseResults = append(result.ReleaseResults, outcome)
			}

			deleted := tx.Unscoped().Where("order_id = ?", order.ID).Delete(&models.OrderItem{})
			if deleted.Error != nil {
				return fmt.Errorf("failed to delete order items: %w", deleted.Error)
			}
			result.ItemsDeleted += int(deleted.RowsAffected)

			if err := tx.Unscoped().Where("payment_id IN (?)",
				tx.Model(&models.Payment{}).Select("id").Where("order_id = ?", order.ID),
			).Delete(&models.PaymentEvent{}).Error; err != nil {
				return fmt.Errorf("failed to delete payment events: %w", err)
			}
			if err := tx.Unscoped().Where("order_id = ?", order.ID).Delete(&models.Payment{}).Error; err != nil {
				return fmt.Errorf("failed to delete payment stubs: %w", err)
			}
			if err := tx.Unscoped().Delete(&order).Error; err != nil {
				return fmt.Errorf("failed to delete order: %w", err)
			}
			result.OrdersDeleted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":        userID,
		"orders_deleted": result.OrdersDeleted,
		"items_deleted":  result.ItemsDeleted,
		"units_restored": result.UnitsRestored,
	}).Info("Ready orders deleted")

	return result, nil
}

func (s *OrderService) sumLineTotals(tx *gorm.DB, orderID uuid.UUID) (decimal.Decimal, error) {
	var items []models.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load order items: %w", err)
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
