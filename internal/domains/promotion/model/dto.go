package model

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var couponCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// -------------------------------------------------------------------
// BUYER REQUESTS
// -------------------------------------------------------------------

// ValidateCouponRequest previews the discount of a code for an amount.
type ValidateCouponRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

func (r ValidateCouponRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.OrderAmount, validation.By(decimalAtLeast(decimal.Zero))),
	)
}

// -------------------------------------------------------------------
// ADMIN REQUESTS
// -------------------------------------------------------------------

type CreateCouponRequest struct {
	Code           string          `json:"code"`
	Type           DiscountType    `json:"type"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	MaxUsage       int             `json:"max_usage"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	IsActive       *bool           `json:"is_active"`
}

// Validate enforces the creation-time bounds. Percentage values are
// limited to 0-100 here; the validator itself does not re-check them.
func (r CreateCouponRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code,
			validation.Required,
			validation.Length(3, 50),
			validation.Match(couponCodePattern).Error("only letters, digits, '-' and '_' are allowed"),
		),
		validation.Field(&r.Type,
			validation.Required,
			validation.In(DiscountTypePercentage, DiscountTypeFixed),
		),
		validation.Field(&r.Value,
			validation.By(decimalAtLeast(decimal.Zero)),
			validation.When(r.Type == DiscountTypePercentage, validation.By(decimalAtMost(decimal.NewFromInt(100)))),
		),
		validation.Field(&r.MinOrderAmount, validation.By(decimalAtLeast(decimal.Zero))),
		validation.Field(&r.MaxUsage, validation.Min(0)),
		validation.Field(&r.StartDate, validation.Required),
		validation.Field(&r.EndDate,
			validation.Required,
			validation.Min(r.StartDate).Exclusive().Error("must be after start_date"),
		),
	)
}

// ToCoupon builds the entity with the code normalised to upper case.
func (r CreateCouponRequest) ToCoupon() *Coupon {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &Coupon{
		Code:           NormalizeCode(r.Code),
		Type:           r.Type,
		Value:          r.Value,
		MinOrderAmount: r.MinOrderAmount,
		MaxUsage:       r.MaxUsage,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		IsActive:       active,
	}
}

func decimalAtLeast(min decimal.Decimal) validation.RuleFunc {
	return func(value interface{}) error {
		d, ok := value.(decimal.Decimal)
		if !ok {
			return errors.New("must be a decimal")
		}
		if d.LessThan(min) {
			return errors.New("must be no less than " + min.String())
		}
		return nil
	}
}

func decimalAtMost(max decimal.Decimal) validation.RuleFunc {
	return func(value interface{}) error {
		d, ok := value.(decimal.Decimal)
		if !ok {
			return errors.New("must be a decimal")
		}
		if d.GreaterThan(max) {
			return errors.New("must be no greater than " + max.String())
		}
		return nil
	}
}
