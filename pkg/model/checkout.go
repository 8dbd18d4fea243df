package model

import "time"

// CheckoutUnit is one line item of a checkout request.
type CheckoutUnit struct {
	Label string `json:"label" validate:"required,min=2,max=100"`
	Price int64  `json:"price" validate:"min=0"`
}

// CheckoutRequest opens a booking: a hold with a deadline, the attached
// service units, an optional voucher and a pending payment attempt against
// the gateway.
type CheckoutRequest struct {
	BusinessID    string         `json:"business_id" validate:"required,mongodb"`
	CustomerName  string         `json:"customer_name" validate:"required,min=2,max=100"`
	CustomerEmail string         `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone string         `json:"customer_phone" validate:"omitempty,e164"`
	StartTime     time.Time      `json:"start_time" validate:"required"`
	EndTime       time.Time      `json:"end_time" validate:"required,gtfield=StartTime"`
	Currency      string         `json:"currency" validate:"required,iso4217"`
	VoucherCode   string         `json:"voucher_code,omitempty" validate:"omitempty,min=3,max=40"`
	Units         []CheckoutUnit `json:"units" validate:"required,min=1,max=50,dive"`
}

// CheckoutResult is what the checkout handler returns to the storefront.
type CheckoutResult struct {
	Booking  *Booking        `json:"booking"`
	Attempt  *PaymentAttempt `json:"payment_attempt"`
	IntentID string          `json:"intent_id"`
}
