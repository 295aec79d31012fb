package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// =====================================================
// CUSTOM ERROR CODES
// =====================================================
const (
	ErrCodeOrderNotFound            = "ORD001"
	ErrCodeOrderCannotCancel        = "ORD002"
	ErrCodeVersionMismatch          = "ORD003"
	ErrCodeInsufficientStock        = "ORD004"
	ErrCodeIllegalTransition        = "ORD005"
	ErrCodeIllegalPaymentTransition = "ORD006"
	ErrCodeDuplicateRequest         = "ORD007"
	ErrCodeForbidden                = "ORD008"
	ErrCodeVariantNotFound          = "ORD009"
	ErrCodeNotReversible            = "ORD010"
	ErrCodeReversalPartialFailure   = "ORD011"
	ErrCodeInvalidOrder             = "ORD017"
)

// =====================================================
// ERROR DEFINITIONS
// =====================================================
var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrOrderCannotCancel        = errors.New("order cannot be cancelled")
	ErrVersionMismatch          = errors.New("version mismatch - concurrent modification detected")
	ErrIllegalTransition        = errors.New("illegal status transition")
	ErrIllegalPaymentTransition = errors.New("illegal payment status transition")
	ErrReversalPartialFailure   = errors.New("reversal partially failed")
	ErrDuplicateRequest         = errors.New("duplicate request is still being processed")
	ErrForbidden                = errors.New("order belongs to another user")
	ErrNotReversible            = errors.New("order is not cancelled or refunded")
	ErrOrderNumberTaken         = errors.New("order number already exists")
)

// =====================================================
// CUSTOM ERROR TYPE
// =====================================================
type OrderError struct {
	Code    string
	Message string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError
func NewOrderError(code, message string, err error) *OrderError {
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// =====================================================
// STATE MACHINE ERRORS
// =====================================================
type IllegalTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

func NewIllegalTransitionError(from, to OrderStatus) error {
	return &IllegalTransitionError{From: from, To: to}
}

type IllegalPaymentTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *IllegalPaymentTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalPaymentTransition, e.From, e.To)
}

func (e *IllegalPaymentTransitionError) Is(target error) bool {
	return target == ErrIllegalPaymentTransition
}

func NewIllegalPaymentTransitionError(from, to PaymentStatus) error {
	return &IllegalPaymentTransitionError{From: from, To: to}
}

// =====================================================
// REVERSAL ERRORS
// =====================================================

// ReversalFailure is one release or coupon revert that did not go through.
// VariantID is nil for the coupon step.
type ReversalFailure struct {
	VariantID  *uuid.UUID
	Quantity   int
	CouponCode string
	Err        error
}

func (f ReversalFailure) String() string {
	if f.VariantID != nil {
		return fmt.Sprintf("release %d of variant %s: %v", f.Quantity, *f.VariantID, f.Err)
	}
	return fmt.Sprintf("revert coupon %s: %v", f.CouponCode, f.Err)
}

type ReversalPartialFailureError struct {
	OrderID  uuid.UUID
	Failures []ReversalFailure
}

func (e *ReversalPartialFailureError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s for order %s: %s", ErrReversalPartialFailure, e.OrderID, strings.Join(parts, "; "))
}

func (e *ReversalPartialFailureError) Is(target error) bool {
	return target == ErrReversalPartialFailure
}

func (e *ReversalPartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Warnings renders the failures for API responses.
func (e *ReversalPartialFailureError) Warnings() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.String())
	}
	return out
}

func IsReversalPartialFailure(err error) bool {
	return errors.Is(err, ErrReversalPartialFailure)
}
