// internal/services/stock_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/database"
	"github.com/hanbitmall/mall-backend/internal/models"
)

// StockService owns the per-(product, option) stock ledger. All writes go
// through row-level locks so concurrent reservations never oversell.
type StockService struct {
	db *gorm.DB
}

func NewStockService(db *gorm.DB) *StockService {
	return &StockService{db: db}
}

// Reserve atomically decrements stock for one (product, option) pair.
// Quantities of zero or less are a no-op. Returns *OutOfStockError when the
// available quantity is insufficient; nothing is decremented in that case,
// but a pair that had no ledger row still ends up with one at zero.
func (s *StockService) Reserve(productID uuid.UUID, optionKey string, quantity int) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.reserve(tx, productID, optionKey, quantity)
	})
	s.ensureRowAfterOutOfStock(err)
	return err
}

// ensureRowAfterOutOfStock re-creates the zero-quantity ledger row that a
// failed reservation lazily created and then rolled back. Runs after the
// transaction has returned; the row itself is not part of the failure.
func (s *StockService) ensureRowAfterOutOfStock(err error) {
	var oos *OutOfStockError
	if !errors.As(err, &oos) {
		return
	}
	row := models.ProductStock{
		ProductID:     oos.ProductID,
		OptionKey:     oos.OptionKey,
		StockQuantity: 0,
	}
	if createErr := s.db.
		Where("product_id = ? AND option_key = ?", oos.ProductID, oos.OptionKey).
		FirstOrCreate(&row).Error; createErr != nil {
		logrus.WithError(createErr).WithFields(logrus.Fields{
			"product_id": oos.ProductID,
			"option_key": oos.OptionKey,
		}).Warn("Failed to register empty stock row")
	}
}

// Release atomically increments stock for one (product, option) pair.
// Quantities of zero or less are a no-op. A missing ledger row is created
// on the fly, so releasing into a never-reserved pair is safe.
func (s *StockService) Release(productID uuid.UUID, optionKey string, quantity int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.release(tx, productID, optionKey, quantity)
	})
}

// reserve is the transactional body of Reserve, usable inside a larger
// transaction (checkout reserves every line under one commit).
func (s *StockService) reserve(tx *gorm.DB, productID uuid.UUID, optionKey string, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	stock, err := s.lockStockRow(tx, productID, optionKey)
	if err != nil {
		return err
	}

	if stock.StockQuantity < quantity {
		return &OutOfStockError{
			ProductID: productID,
			OptionKey: optionKey,
			Requested: quantity,
			Available: stock.StockQuantity,
		}
	}

	if err := tx.Model(&models.ProductStock{}).
		Where("id = ?", stock.ID).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", quantity)).Error; err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	return nil
}

func (s *StockService) release(tx *gorm.DB, productID uuid.UUID, optionKey string, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	stock, err := s.lockStockRow(tx, productID, optionKey)
	if err != nil {
		return err
	}

	if err := tx.Model(&models.ProductStock{}).
		Where("id = ?", stock.ID).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", quantity)).Error; err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	return nil
}

// lockStockRow loads the ledger row under FOR UPDATE, creating it at zero
// quantity when it does not exist yet. The lock is held until the enclosing
// transaction commits.
func (s *StockService) lockStockRow(tx *gorm.DB, productID uuid.UUID, optionKey string) (*models.ProductStock, error) {
	var stock models.ProductStock
	err := database.LockForUpdate(tx).
		Where("product_id = ? AND option_key = ?", productID, optionKey).
		First(&stock).Error
	if err == nil {
		return &stock, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to lock stock row: %w", err)
	}

	stock = models.ProductStock{
		ProductID:     productID,
		OptionKey:     optionKey,
		StockQuantity: 0,
	}
	if err := tx.Create(&stock).Error; err != nil {
		return nil, fmt.Errorf("failed to create stock row: %w", err)
	}

	// Re-read under lock: a concurrent creator may have won the unique index.
	if err := database.LockForUpdate(tx).
		Where("product_id = ? AND option_key = ?", productID, optionKey).
		First(&stock).Error; err != nil {
		return nil, fmt.Errorf("failed to lock stock row: %w", err)
	}

	return &stock, nil
}

// Available returns the current available quantity without locking. A pair
// with no ledger row reports zero.
func (s *StockService) Available(productID uuid.UUID, optionKey string) (int, error) {
	var stock models.ProductStock
	err := s.db.
		Where("product_id = ? AND option_key = ?", productID, optionKey).
		First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return stock.StockQuantity, nil
}

// CheckAvailability verifies that the requested quantity could be reserved
// right now, without reserving anything. Returns *StockRowMissingError when
// the pair was never configured, *OutOfStockError when it is short.
func (s *StockService) CheckAvailability(productID uuid.UUID, optionKey string, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	var stock models.ProductStock
	err := s.db.
		Where("product_id = ? AND option_key = ?", productID, optionKey).
		First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &StockRowMissingError{ProductID: productID, OptionKey: optionKey}
	}
	if err != nil {
		return fmt.Errorf("failed to read stock: %w", err)
	}

	if stock.StockQuantity < quantity {
		return &OutOfStockError{
			ProductID: productID,
			OptionKey: optionKey,
			Requested: quantity,
			Available: stock.StockQuantity,
		}
	}

	return nil
}

// SetQuantity overwrites the ledger quantity for a pair, creating the row if
// needed. Used by the catalog admin surface, not by the order flow.
func (s *StockService) SetQuantity(productID uuid.UUID, optionKey string, quantity int) (*models.ProductStock, error) {
	if quantity < 0 {
		return nil, errors.New("stock quantity cannot be negative")
	}

	var stock *models.ProductStock
	err := s.db.Transaction(func(tx *gorm.DB) error {
		row, err := s.lockStockRow(tx, productID, optionKey)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.ProductStock{}).
			Where("id = ?", row.ID).
			Update("stock_quantity", quantity).Error; err != nil {
			return fmt.Errorf("failed to set stock: %w", err)
		}
		row.StockQuantity = quantity
		stock = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}
