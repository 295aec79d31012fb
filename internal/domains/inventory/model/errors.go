package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ===================================
// DOMAIN ERRORS
// ===================================

var (
	// ErrVariantNotFound is returned when a variant id does not exist
	ErrVariantNotFound = errors.New("variant not found")

	// ErrInvalidQuantity is returned when a ledger quantity is below 1
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrInsufficientStock is returned when not enough stock is available to reserve
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOptimisticLockFailed is returned when the row version moved underneath us
	ErrOptimisticLockFailed = errors.New("optimistic lock failed: variant was modified by another transaction")
)

// InsufficientStockError carries the numbers behind ErrInsufficientStock.
type InsufficientStockError struct {
	VariantID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: variant=%s, available=%d, requested=%d",
		ErrInsufficientStock, e.VariantID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ===================================
// ERROR HELPERS
// ===================================

func NewInsufficientStockError(variantID uuid.UUID, available, requested int) error {
	return &InsufficientStockError{VariantID: variantID, Available: available, Requested: requested}
}

func NewVariantNotFoundError(id uuid.UUID) error {
	return fmt.Errorf("%w: id=%s", ErrVariantNotFound, id)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrVariantNotFound)
}

func IsInsufficientStockError(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
