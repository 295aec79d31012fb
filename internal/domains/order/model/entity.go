package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =====================================================
// ORDER STATUS
// =====================================================
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) String() string {
	return string(s)
}

// =====================================================
// PAYMENT METHOD
// =====================================================
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodVNPay        PaymentMethod = "vnpay"
	PaymentMethodMomo         PaymentMethod = "momo"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

func (pm PaymentMethod) IsValid() bool {
	switch pm {
	case PaymentMethodCOD, PaymentMethodVNPay, PaymentMethodMomo, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// =====================================================
// PAYMENT STATUS
// =====================================================
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (ps PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[ps]
	return ok
}

// =====================================================
// ACTOR
// =====================================================
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Actor is whoever drives an order operation. The system actor has a nil
// user id and bypasses ownership checks.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

// Privileged actors may act on any order.
func (a Actor) Privileged() bool {
	return a.IsAdmin() || a.IsSystem()
}

// ChangedBy is the user id recorded in status history.
func (a Actor) ChangedBy() *uuid.UUID {
	if a.IsSystem() || a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// =====================================================
// ENTITY: Order
// =====================================================
type ShippingDetails struct {
	RecipientName string  `json:"recipient_name"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	Note          *string `json:"note,omitempty"`
}

type Order struct {
	ID                 uuid.UUID       `json:"id"`
	OrderNumber        string          `json:"order_number"`
	UserID             uuid.UUID       `json:"user_id"`
	Status             OrderStatus     `json:"status"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	Shipping           ShippingDetails `json:"shipping"`
	Items              []OrderItem     `json:"items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	ShippingFee        decimal.Decimal `json:"shipping_fee"`
	Total              decimal.Decimal `json:"total"`
	CouponCode         *string         `json:"coupon_code,omitempty"`
	CouponReverted     bool            `json:"-"`
	CancellationReason *string         `json:"cancellation_reason,omitempty"`
	History            StatusHistory   `json:"status_history"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ComputeTotal returns subtotal - discount + shippingFee.
func ComputeTotal(subtotal, discount, shippingFee decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(shippingFee)
}

func (o *Order) IsCOD() bool {
	return o.PaymentMethod == PaymentMethodCOD
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// HasCoupon reports whether a coupon was consumed by this order.
func (o *Order) HasCoupon() bool {
	return o.CouponCode != nil && *o.CouponCode != ""
}

// NeedsReversal reports whether a cancelled or refunded order still holds
// stock or coupon usage.
func (o *Order) NeedsReversal() bool {
	if !o.Status.IsReversal() {
		return false
	}
	if o.HasCoupon() && !o.CouponReverted {
		return true
	}
	for i := range o.Items {
		if !o.Items[i].Released {
			return true
		}
	}
	return false
}

// OwnedBy reports whether the actor may see and act on the order.
func (o *Order) OwnedBy(a Actor) bool {
	return a.Privileged() || o.UserID == a.UserID
}

// Clone returns a deep copy. Stores hand out clones so callers never share
// item slices or history with the stored record.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	cp.History = o.History.clone()
	return &cp
}

// =====================================================
// ENTITY: OrderItem
// =====================================================

// OrderItem is a frozen snapshot of a variant at order time.
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	Position    int             `json:"position"`
	VariantID   uuid.UUID       `json:"variant_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Released    bool            `json:"-"`
}

// CalculateLineTotal calculates unit price * quantity
func (oi *OrderItem) CalculateLineTotal() decimal.Decimal {
	return oi.UnitPrice.Mul(decimal.NewFromInt(int64(oi.Quantity)))
}

// =====================================================
// LIST VIEW
// =====================================================
type OrderSummary struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"order_number"`
	UserID        uuid.UUID       `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (o *Order) Summary() OrderSummary {
	count := 0
	for i := range o.Items {
		count += o.Items[i].Quantity
	}
	return OrderSummary{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		ItemCount:     count,
		CreatedAt:     o.CreatedAt,
	}
}

// OrderFilter selects orders for listing. A nil UserID lists every buyer.
type OrderFilter struct {
	UserID *uuid.UUID
	Status *OrderStatus
	Offset int
	Limit  int
}
