// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is created as a stub before the customer completes payment and
// confirmed later against the provider. ProviderPaymentKey is unique once
// set, which blocks double-confirmation against the same external
// transaction.
type Payment struct {
	BaseModel
	OrderID uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index:idx_payments_order_created"`

	Provider           PaymentProvider `json:"provider" gorm:"type:varchar(20);default:'stripe'"`
	ProviderPaymentKey *string         `json:"provider_payment_key" gorm:"size:200;uniqueIndex"`
	OrderNumber        *string         `json:"order_number" gorm:"size:100;uniqueIndex"`

	Method      string          `json:"method" gorm:"size:30"`
	Status      PaymentStatus   `json:"status" gorm:"type:varchar(32);default:'ready';index"`
	Currency    string          `json:"currency" gorm:"size:3;default:'KRW'"`
	AmountTotal decimal.Decimal `json:"amount_total" gorm:"type:decimal(12,2);not null;default:0"`

	RequestedAt *time.Time `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at"`
	CanceledAt  *time.Time `json:"canceled_at"`

	FailureCode    string `json:"failure_code" gorm:"size:60"`
	FailureMessage string `json:"failure_message" gorm:"type:text"`
	ReceiptURL     string `json:"receipt_url" gorm:"size:255"`

	Order  Purchase       `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Events []PaymentEvent `json:"events,omitempty" gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
}

// PaymentEvent is the append-only audit trail of payment transitions. Rows
// are never mutated after creation; DedupeKey suppresses duplicate
// externally-delivered notifications.
type PaymentEvent struct {
	BaseModel
	PaymentID      uuid.UUID          `json:"payment_id" gorm:"type:uuid;not null;index:idx_payment_events_payment_created"`
	Source         PaymentEventSource `json:"source" gorm:"type:varchar(20);not null"`
	EventType      PaymentEventType   `json:"event_type" gorm:"type:varchar(40);not null"`
	ProviderStatus PaymentStatus      `json:"provider_status" gorm:"type:varchar(32)"`
	Payload        JSONB              `json:"payload" gorm:"type:jsonb"`
	DedupeKey      *string            `json:"dedupe_key" gorm:"size:128;index"`
	OccurredAt     *time.Time         `json:"occurred_at"`

	Payment Payment `json:"-" gorm:"foreignKey:PaymentID"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
