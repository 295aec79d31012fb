package model

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

const (
	MaxOrderLines   = 50
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// =====================================================
// CREATE ORDER
// =====================================================
type CreateOrderRequest struct {
	Items         []CreateOrderItem `json:"items"`
	Shipping      ShippingDetails   `json:"shipping"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	CouponCode    *string           `json:"coupon_code,omitempty"`

	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

type CreateOrderItem struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

func (i CreateOrderItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.VariantID, validation.By(notNilUUID)),
		validation.Field(&i.Quantity, validation.Required, validation.Min(1), validation.Max(1000)),
	)
}

func (s ShippingDetails) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.RecipientName, validation.Required, validation.Length(2, 100)),
		validation.Field(&s.Phone, validation.Required, validation.Match(phonePattern)),
		validation.Field(&s.Address, validation.Required, validation.Length(5, 500)),
		validation.Field(&s.Note, validation.NilOrNotEmpty, validation.Length(1, 500)),
	)
}

func (req CreateOrderRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Items,
			validation.Required,
			validation.Length(1, MaxOrderLines),
			validation.By(uniqueVariants),
		),
		validation.Field(&req.Shipping),
		validation.Field(&req.PaymentMethod,
			validation.Required,
			validation.In(PaymentMethodCOD, PaymentMethodVNPay, PaymentMethodMomo, PaymentMethodBankTransfer),
		),
		validation.Field(&req.CouponCode, validation.NilOrNotEmpty, validation.Length(3, 50)),
		validation.Field(&req.IdempotencyKey, validation.Length(0, 128)),
	)
}

func notNilUUID(value interface{}) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return errors.New("must be a valid id")
	}
	return nil
}

func uniqueVariants(value interface{}) error {
	items, ok := value.([]CreateOrderItem)
	if !ok {
		return errors.New("must be a list of items")
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.VariantID]; dup {
			return errors.New("each variant may appear only once")
		}
		seen[it.VariantID] = struct{}{}
	}
	return nil
}

// =====================================================
// STATUS CHANGES
// =====================================================
type TransitionRequest struct {
	Status OrderStatus `json:"status"`
	Note   *string     `json:"note,omitempty"`
}

func (req TransitionRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Status,
			validation.Required,
			validation.In(
				OrderStatusPending,
				OrderStatusProcessing,
				OrderStatusShipped,
				OrderStatusDelivered,
				OrderStatusCancelled,
				OrderStatusRefunded,
			),
		),
		validation.Field(&req.Note, validation.NilOrNotEmpty, validation.Length(1, 500)),
	)
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (req CancelOrderRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Reason, validation.Required, validation.Length(3, 500)),
	)
}

type PaymentStatusRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status"`
}

func (req PaymentStatusRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.PaymentStatus,
			validation.Required,
			validation.In(PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded),
		),
	)
}

// =====================================================
// LIST ORDERS
// =====================================================
type ListOrdersRequest struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Status string `form:"status"`
}

// Validate applies defaults before checking bounds.
func (req *ListOrdersRequest) Validate() error {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = DefaultPageSize
	}
	return validation.ValidateStruct(req,
		validation.Field(&req.Page, validation.Min(1)),
		validation.Field(&req.Limit, validation.Min(1), validation.Max(MaxPageSize)),
		validation.Field(&req.Status, validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if s != "" && !OrderStatus(s).IsValid() {
				return errors.New("unknown order status")
			}
			return nil
		})),
	)
}

// Filter converts the request into a repository filter.
func (req ListOrdersRequest) Filter(userID *uuid.UUID) OrderFilter {
	f := OrderFilter{
		UserID: userID,
		Offset: (req.Page - 1) * req.Limit,
		Limit:  req.Limit,
	}
	if req.Status != "" {
		s := OrderStatus(req.Status)
		f.Status = &s
	}
	return f
}

type ListOrdersResponse struct {
	Orders     []OrderSummary `json:"orders"`
	Pagination PaginationMeta `json:"pagination"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPaginationMeta(page, limit, total int) PaginationMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return PaginationMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
