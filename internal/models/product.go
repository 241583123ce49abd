// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Product struct {
	BaseModel
	Title       string          `json:"title" gorm:"size:255;not null"`
	Description string          `json:"description" gorm:"type:text"`
	Category    string          `json:"category" gorm:"size:100;index"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Currency    string          `json:"currency" gorm:"size:3;default:'KRW'"`
	Images      pq.StringArray  `json:"images" gorm:"type:text"`
	Status      ProductStatus   `json:"status" gorm:"type:varchar(20);default:'active';index"`

	// Relationships
	Stocks []ProductStock `json:"stocks,omitempty" gorm:"foreignKey:ProductID"`
}

// ProductStock is the atomic unit of inventory, scoped to one
// (product, option key) pair. Rows are created lazily by the stock ledger
// and mutated only through its reserve/release operations.
type ProductStock struct {
	BaseModel
	ProductID     uuid.UUID `json:"product_id" gorm:"type:uuid;not null;uniqueIndex:uq_product_option"`
	OptionKey     string    `json:"option_key" gorm:"size:255;not null;default:'';uniqueIndex:uq_product_option"`
	StockQuantity int       `json:"stock_quantity" gorm:"not null;default:0"`

	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (ProductStock) TableName() string {
	return "product_stocks"
}
