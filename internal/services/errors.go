// internal/services/errors.go
package services

import (
	"fmt"

	"github.com/google/uuid"
)

// OutOfStockError: the requested quantity exceeds the available quantity.
// Recoverable by the caller (retry with less, or surface to the user).
type OutOfStockError struct {
	ProductID uuid.UUID
	OptionKey string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: product=%s option=%q requested=%d available=%d",
		e.ProductID, e.OptionKey, e.Requested, e.Available)
}

// StockRowMissingError: the (product, option) stock row has never been
// created. Distinguishes "never configured" from "known zero" in read-only
// validation paths.
type StockRowMissingError struct {
	ProductID uuid.UUID
	OptionKey string
}

func (e *StockRowMissingError) Error() string {
	return fmt.Sprintf("stock row missing: product=%s option=%q", e.ProductID, e.OptionKey)
}

// EmptyCartError: checkout attempted with no cart or zero lines. Always
// caller-correctable, never a system fault.
type EmptyCartError struct {
	Reason string
}

func (e *EmptyCartError) Error() string {
	return e.Reason
}

// InvalidStateTransitionError: an operation was attempted from a state that
// does not permit it. Repeating an already-applied transition is NOT this
// error; those paths report an unchanged entity instead.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	Op     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: cannot %s %s in status %q", e.Op, e.Entity, e.From)
}

// OrderResolutionError: a requested order set did not fully resolve to ready
// orders owned by the caller (missing, foreign, or already processed).
type OrderResolutionError struct {
	Requested int
	Found     int
}

func (e *OrderResolutionError) Missing() int {
	return e.Requested - e.Found
}

func (e *OrderResolutionError) Error() string {
	return fmt.Sprintf("some orders could not be found or were already processed (missing: %d)", e.Missing())
}
