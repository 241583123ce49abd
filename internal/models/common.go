// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the UUID application-side so the same models work
// against postgres and the sqlite test databases.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}

	return nil
}

// Enums
type UserType string

const (
	UserTypeCustomer UserType = "customer"
	UserTypeAdmin    UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "draft"
	ProductStatusActive    ProductStatus = "active"
	ProductStatusSoldOut   ProductStatus = "sold_out"
	ProductStatusSuspended ProductStatus = "suspended"
)

type PurchaseStatus string

const (
	PurchaseStatusReady    PurchaseStatus = "ready"
	PurchaseStatusPaid     PurchaseStatus = "paid"
	PurchaseStatusCanceled PurchaseStatus = "canceled"
	PurchaseStatusRefunded PurchaseStatus = "refunded"
	PurchaseStatusMerged   PurchaseStatus = "merged"
)

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderMock   PaymentProvider = "mock"
)

type PaymentStatus string

const (
	PaymentStatusReady             PaymentStatus = "ready"
	PaymentStatusInProgress        PaymentStatus = "in_progress"
	PaymentStatusWaitingForDeposit PaymentStatus = "waiting_for_deposit"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusPartialCanceled   PaymentStatus = "partial_canceled"
	PaymentStatusCanceled          PaymentStatus = "canceled"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusExpired           PaymentStatus = "expired"
)

type PaymentEventSource string

const (
	PaymentEventSourceAPI     PaymentEventSource = "api"
	PaymentEventSourceSync    PaymentEventSource = "sync"
	PaymentEventSourceWebhook PaymentEventSource = "webhook"
	PaymentEventSourceManual  PaymentEventSource = "manual"
)

type PaymentEventType string

const (
	PaymentEventStubCreated   PaymentEventType = "stub_created"
	PaymentEventApproval      PaymentEventType = "approval"
	PaymentEventCancel        PaymentEventType = "cancel"
	PaymentEventStatusChanged PaymentEventType = "status_changed"
	PaymentEventFail          PaymentEventType = "fail"
)
