package model

import (
	"time"
)

type BookingStatus string

const (
	BookingHold      BookingStatus = "hold"
	BookingAccepted  BookingStatus = "accepted"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// IsTerminal reports whether no transition may leave the status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
)

// DerivePaymentStatus computes the payment status for a booking from the
// amount collected so far. Amounts are in minor currency units.
func DerivePaymentStatus(amountPaid, grandTotal int64) PaymentStatus {
	switch {
	case grandTotal > 0 && amountPaid >= grandTotal:
		return PaymentPaid
	case amountPaid > 0:
		return PaymentPartiallyPaid
	default:
		return PaymentUnpaid
	}
}

type Booking struct {
	ID            string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BusinessID    string        `json:"business_id" bson:"business_id" validate:"required,mongodb"`
	CustomerName  string        `json:"customer_name" bson:"customer_name" validate:"required,min=2,max=100"`
	CustomerEmail string        `json:"customer_email" bson:"customer_email" validate:"omitempty,email"`
	CustomerPhone string        `json:"customer_phone" bson:"customer_phone" validate:"omitempty,e164"`
	Status        BookingStatus `json:"status" bson:"status" validate:"required,oneof=hold accepted cancelled completed"`
	StartTime     time.Time     `json:"start_time" bson:"start_time" validate:"required"`
	EndTime       time.Time     `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`

	// HoldExpiresAt is non-nil iff Status == BookingHold.
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty" bson:"hold_expires_at,omitempty"`

	GrandTotal    int64         `json:"grand_total" bson:"grand_total" validate:"min=0"`
	AmountPaid    int64         `json:"amount_paid" bson:"amount_paid" validate:"min=0"`
	TotalDiscount int64         `json:"total_discount" bson:"total_discount" validate:"min=0"`
	Currency      string        `json:"currency" bson:"currency" validate:"required,iso4217"`
	PaymentStatus PaymentStatus `json:"payment_status" bson:"payment_status" validate:"required,oneof=unpaid partially_paid paid"`
	VoucherCode   string        `json:"voucher_code,omitempty" bson:"voucher_code,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}
