package model

import (
	"time"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptCanceled  AttemptStatus = "canceled"
	AttemptExpired   AttemptStatus = "expired"
)

// IsTerminal reports whether the attempt has been resolved. Attempt status is
// monotonic: pending moves to exactly one terminal state and never back.
func (s AttemptStatus) IsTerminal() bool {
	return s != AttemptPending
}

// Diagnostic failure reasons recorded on attempts resolved against the
// attempt holder's expectations rather than the gateway's verdict.
const (
	ReasonAmountMismatch   = "AMOUNT_MISMATCH"
	ReasonCurrencyMismatch = "CURRENCY_MISMATCH"
	ReasonHoldExpired      = "HOLD_EXPIRED"
	ReasonPaymentFailed    = "PAYMENT_FAILED"
	ReasonPaymentExpired   = "PAYMENT_EXPIRED"
	ReasonPaymentCanceled  = "PAYMENT_CANCELED"
)

// PaymentAttempt is one try to collect money for a booking via the external
// gateway. A booking may accumulate several attempts sequentially; at most
// one may be pending at a time. Attempts are never deleted.
type PaymentAttempt struct {
	ID              string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BookingID       string        `json:"booking_id" bson:"booking_id" validate:"required,mongodb"`
	BusinessID      string        `json:"business_id" bson:"business_id" validate:"required,mongodb"`
	Status          AttemptStatus `json:"status" bson:"status" validate:"required,oneof=pending succeeded failed canceled expired"`
	AmountCharged   int64         `json:"amount_charged" bson:"amount_charged" validate:"min=0"`
	AmountPrincipal int64         `json:"amount_principal" bson:"amount_principal" validate:"min=0"`
	Currency        string        `json:"currency" bson:"currency" validate:"required,iso4217"`
	IntentID        string        `json:"intent_id" bson:"intent_id" validate:"required"`
	FailureReason   string        `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	ExpiresAt       time.Time     `json:"expires_at" bson:"expires_at" validate:"required"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}
