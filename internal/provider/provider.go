// internal/provider/provider.go

// Package provider wraps the external payment gateway. Implementations
// normalize the provider's wire status onto the local payment status enum;
// the sandbox gateway is a drop-in substitute with the identical contract.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hanbitmall/mall-backend/internal/models"
)

// Result is the normalized outcome of a gateway call.
type Result struct {
	ProviderKey string
	Status      models.PaymentStatus
	Method      string
	ReceiptURL  string
	// TransactionKey, when present, deduplicates externally-delivered
	// notifications for the same provider transaction.
	TransactionKey string
	Raw            map[string]interface{}
}

type Gateway interface {
	// Confirm approves the payment identified by providerKey for the given
	// order reference and amount.
	Confirm(ctx context.Context, providerKey, orderNumber string, amount decimal.Decimal) (*Result, error)
	// Cancel reverses a previously confirmed payment.
	Cancel(ctx context.Context, providerKey string, amount decimal.Decimal, reason string) (*Result, error)
	// Retrieve fetches the provider's current view of the payment.
	Retrieve(ctx context.Context, providerKey string) (*Result, error)
	// Name identifies the gateway on payment records.
	Name() models.PaymentProvider
}

// Error is a provider/transport failure. It is always surfaced distinctly
// from domain errors and never silently mapped to success.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("payment provider error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a bounded-timeout expiry. A
// timeout must be treated as a failed operation, never assumed to have
// succeeded upstream.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func wrapErr(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
