// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase is the order header. Status moves along the allowed edges only:
// ready→paid, ready→canceled, paid→canceled, paid→refunded, ready→merged.
type Purchase struct {
	BaseModel
	UserID     uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index:idx_purchases_user_created"`
	Status     PurchaseStatus  `json:"status" gorm:"type:varchar(20);default:'ready';index"`
	ItemsTotal decimal.Decimal `json:"items_total" gorm:"type:decimal(12,2);not null;default:0"`
	GrandTotal decimal.Decimal `json:"grand_total" gorm:"type:decimal(12,2);not null;default:0"`

	// Shipping snapshot, copied at checkout time.
	ShippingRecipient string `json:"shipping_recipient" gorm:"size:100"`
	ShippingPhone     string `json:"shipping_phone" gorm:"size:30"`
	ShippingPostcode  string `json:"shipping_postcode" gorm:"size:10"`
	ShippingAddress1  string `json:"shipping_address1" gorm:"size:255"`
	ShippingAddress2  string `json:"shipping_address2" gorm:"size:255"`
	ShippingMemo      string `json:"shipping_memo" gorm:"size:255"`

	// Set on originals when a merge consumes them; cleared when the merge
	// is reversed.
	MergedIntoID *uuid.UUID `json:"merged_into_id" gorm:"type:uuid;index"`

	PurchasedAt time.Time `json:"purchased_at" gorm:"autoCreateTime;index:idx_purchases_user_created"`

	User     User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Items    []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments []Payment   `json:"payments,omitempty" gorm:"foreignKey:OrderID"`
}

func (Purchase) TableName() string {
	return "purchases"
}

// OrderItem is an immutable point-in-time snapshot of what was bought at
// what price. It is never recomputed from the current catalog price; the
// only permitted mutation is order reassignment during merge/split.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID       `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `json:"product_id" gorm:"type:uuid;not null;index"`
	OptionKey string          `json:"option_key" gorm:"size:255;not null;default:'';index"`
	Options   JSONB           `json:"options" gorm:"type:jsonb"`
	Quantity  int             `json:"quantity" gorm:"not null;default:1"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,2);not null"`
	Currency  string          `json:"currency" gorm:"size:3;default:'KRW'"`

	Order   Purchase `json:"-" gorm:"foreignKey:OrderID"`
	Product Product  `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
