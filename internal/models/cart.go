// internal/models/cart.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is a user-scoped mutable collection of lines. One cart per user; an
// expired cart is discarded and replaced transparently on next access.
type Cart struct {
	BaseModel
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`

	User  User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Items []CartItem `json:"items,omitempty" gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
}

// TotalPrice sums quantity * unit_price over the loaded items.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ItemCount is the total quantity across the loaded items.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// CartItem is one (product, option) line. UnitPrice is snapshotted at
// add-time from the catalog price and never re-read, Options keeps the raw
// option map verbatim for display, OptionKey is the canonical join key
// shared with the stock ledger.
type CartItem struct {
	BaseModel
	CartID    uuid.UUID       `json:"cart_id" gorm:"type:uuid;not null;uniqueIndex:uq_cart_product_option"`
	ProductID uuid.UUID       `json:"product_id" gorm:"type:uuid;not null;uniqueIndex:uq_cart_product_option"`
	OptionKey string          `json:"option_key" gorm:"size:255;not null;default:'';uniqueIndex:uq_cart_product_option"`
	Options   JSONB           `json:"options" gorm:"type:jsonb"`
	Quantity  int             `json:"quantity" gorm:"not null;default:1"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,2);not null"`

	Cart    Cart    `json:"-" gorm:"foreignKey:CartID"`
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (i *CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
