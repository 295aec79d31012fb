package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrCouponExpired        = errors.New("coupon is expired or inactive")
	ErrCouponExhausted      = errors.New("coupon usage limit reached")
	ErrCouponMinimumNotMet  = errors.New("order amount is below coupon minimum")
	ErrCouponDuplicateCode  = errors.New("coupon code already exists")
	ErrInvalidDiscountType  = errors.New("invalid discount type")
	ErrCouponUpdateConflict = errors.New("coupon was modified concurrently")
)

type ErrorCode string

const (
	ErrCodeCouponNotFound       ErrorCode = "COUPON_NOT_FOUND"
	ErrCodeCouponExpired        ErrorCode = "COUPON_EXPIRED"
	ErrCodeCouponExhausted      ErrorCode = "COUPON_EXHAUSTED"
	ErrCodeCouponMinimumNotMet  ErrorCode = "COUPON_MINIMUM_NOT_MET"
	ErrCodeCouponDuplicateCode  ErrorCode = "COUPON_DUPLICATE_CODE"
	ErrCodeCouponUpdateConflict ErrorCode = "COUPON_UPDATE_CONFLICT"
	ErrCodeValidationFailed     ErrorCode = "VAL_INVALID_INPUT"
	ErrCodeInternalError        ErrorCode = "SYS_INTERNAL_ERROR"
)

// MinimumNotMetError carries the amounts behind ErrCouponMinimumNotMet.
type MinimumNotMetError struct {
	Required decimal.Decimal
	Actual   decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("%s: required=%s, actual=%s", ErrCouponMinimumNotMet, e.Required, e.Actual)
}

func (e *MinimumNotMetError) Is(target error) bool {
	return target == ErrCouponMinimumNotMet
}

func NewMinimumNotMetError(required, actual decimal.Decimal) error {
	return &MinimumNotMetError{Required: required, Actual: actual}
}

// IsCouponRejection reports whether err is one of the buyer-recoverable
// coupon validation failures.
func IsCouponRejection(err error) bool {
	return errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponExhausted) ||
		errors.Is(err, ErrCouponMinimumNotMet)
}

// CodeFor maps a coupon error to its API error code.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrCouponNotFound):
		return ErrCodeCouponNotFound
	case errors.Is(err, ErrCouponExpired):
		return ErrCodeCouponExpired
	case errors.Is(err, ErrCouponExhausted):
		return ErrCodeCouponExhausted
	case errors.Is(err, ErrCouponMinimumNotMet):
		return ErrCodeCouponMinimumNotMet
	case errors.Is(err, ErrCouponDuplicateCode):
		return ErrCodeCouponDuplicateCode
	case errors.Is(err, ErrCouponUpdateConflict):
		return ErrCodeCouponUpdateConflict
	default:
		return ErrCodeInternalError
	}
}
