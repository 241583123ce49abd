// internal/services/cart_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/database"
	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/optionkey"
)

// CartService manages the one-cart-per-user collection. Access always goes
// through getOrCreateCart, which locks the row and transparently replaces an
// expired cart.
type CartService struct {
	db     *gorm.DB
	config *config.Config
}

type AddCartItemRequest struct {
	ProductID uuid.UUID              `json:"product_id" validate:"required"`
	Options   map[string]interface{} `json:"options,omitempty"`
	Quantity  int                    `json:"quantity" validate:"required,min=1"`
}

func NewCartService(db *gorm.DB, cfg *config.Config) *CartService {
	return &CartService{db: db, config: cfg}
}

func (s *CartService) retention() time.Duration {
	days := s.config.Cart.RetentionDays
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

// getOrCreateCart returns the user's cart, locked for the duration of tx.
// An expired cart is deleted together with its items and a fresh one is
// created, so callers never observe stale lines.
func (s *CartService) getOrCreateCart(tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := database.LockForUpdate(tx).
		Where("user_id = ?", userID).
		First(&cart).Error

	switch {
	case err == nil:
		if cart.Expired(time.Now()) {
			// Hard delete: a tombstone would keep occupying the
			// one-cart-per-user unique index.
			if err := tx.Unscoped().Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
				return nil, fmt.Errorf("failed to drop expired cart items: %w", err)
			}
			if err := tx.Unscoped().Delete(&cart).Error; err != nil {
				return nil, fmt.Errorf("failed to drop expired cart: %w", err)
			}
			return s.createCart(tx, userID)
		}
		return &cart, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createCart(tx, userID)

	default:
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
}

func (s *CartService) createCart(tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.retention()),
	}
	if err := tx.Create(cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// GetCart returns the user's cart with items and product data loaded,
// creating an empty cart on first access.
func (s *CartService) GetCart(userID uuid.UUID) (*models.Cart, error) {
	var cart *models.Cart
	err := s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.created_at ASC")
	}).Preload("Items.Product").First(cart, cart.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return cart, nil
}

// AddItem adds a product line to the cart. The options map is normalized to
// its canonical key, so {"size":"M","color":"red"} and {"color":"red",
// "size":"M"} land on the same line. Re-adding an existing line accumulates
// quantity; the unit price is snapshotted from the catalog on first add.
func (s *CartService) AddItem(userID uuid.UUID, req *AddCartItemRequest) (*models.Cart, error) {
	if req.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	key := optionkey.FromMap(req.Options)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, req.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("product not found")
			}
			return fmt.Errorf("failed to load product: %w", err)
		}
		if product.Status != models.ProductStatusActive {
			return errors.New("product is not available")
		}

		cart, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		var item models.CartItem
		err = tx.Where("cart_id = ? AND product_id = ? AND option_key = ?",
			cart.ID, req.ProductID, key).First(&item).Error
		switch {
		case err == nil:
			return tx.Model(&item).
				Update("quantity", gorm.Expr("quantity + ?", req.Quantity)).Error

		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.CartItem{
				CartID:    cart.ID,
				ProductID: req.ProductID,
				OptionKey: key,
				Options:   models.JSONB(req.Options),
				Quantity:  req.Quantity,
				UnitPrice: product.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to add cart item: %w", err)
			}
			return nil

		default:
			return fmt.Errorf("failed to load cart item: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}

	return s.GetCart(userID)
}

// UpdateItemQuantity sets the quantity of one cart line; zero removes it.
func (s *CartService) UpdateItemQuantity(userID, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, errors.New("quantity cannot be negative")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		cart, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		var item models.CartItem
		if err := tx.Where("id = ? AND cart_id = ?", itemID, cart.ID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("cart item not found")
			}
			return fmt.Errorf("failed to load cart item: %w", err)
		}

		if quantity == 0 {
			// Hard delete so the same (product, option) can be re-added.
			return tx.Unscoped().Delete(&item).Error
		}
		return tx.Model(&item).Update("quantity", quantity).Error
	})
	if err != nil {
		return nil, err
	}

	return s.GetCart(userID)
}

// RemoveItem deletes one line from the user's cart.
func (s *CartService) RemoveItem(userID, itemID uuid.UUID) (*models.Cart, error) {
	return s.UpdateItemQuantity(userID, itemID, 0)
}

// ClearCart removes every line while keeping the cart row.
func (s *CartService) ClearCart(userID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		cart, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}
		return clearCartTx(tx, cart.ID)
	})
}

// clearCartTx empties a cart inside an existing transaction. Checkout uses it
// so the cart empties in the same commit that creates the order. Lines are
// hard-deleted; soft-deleted rows would block re-adding the same variant.
func clearCartTx(tx *gorm.DB, cartID uuid.UUID) error {
	if err := tx.Unscoped().Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
