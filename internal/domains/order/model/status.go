package model

import "time"

// orderTransitions is the legal order lifecycle.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:  {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:   {PaymentStatusPaid, PaymentStatusPending},
	PaymentStatusPaid:     {PaymentStatusRefunded},
	PaymentStatusRefunded: {},
}

// AllowedTransitions returns the statuses reachable from s.
func AllowedTransitions(s OrderStatus) []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[s]...)
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(orderTransitions[s]) == 0
}

// IsReversal reports whether entering s returns stock and coupon usage.
func (s OrderStatus) IsReversal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

func (ps PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[ps] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ApplyTransition moves the order to next and appends the history entry.
// On error the order is left untouched.
func (o *Order) ApplyTransition(next OrderStatus, note *string, actor Actor, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return NewIllegalTransitionError(o.Status, next)
	}

	o.History.Append(next, note, actor.ChangedBy(), at)
	o.Status = next
	o.UpdatedAt = at

	switch next {
	case OrderStatusDelivered:
		if o.IsCOD() && o.PaymentStatus == PaymentStatusPending {
			o.markPaid(at)
		}
	case OrderStatusRefunded:
		if o.IsPaid() {
			o.PaymentStatus = PaymentStatusRefunded
		}
	}
	return nil
}

// ApplyPaymentStatus records a payment status change.
func (o *Order) ApplyPaymentStatus(next PaymentStatus, at time.Time) error {
	if !o.PaymentStatus.CanTransitionTo(next) {
		return NewIllegalPaymentTransitionError(o.PaymentStatus, next)
	}
	if next == PaymentStatusPaid {
		o.markPaid(at)
	} else {
		o.PaymentStatus = next
	}
	o.UpdatedAt = at
	return nil
}

func (o *Order) markPaid(at time.Time) {
	o.PaymentStatus = PaymentStatusPaid
	paidAt := at
	o.PaidAt = &paidAt
}
