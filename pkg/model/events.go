package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is a closed enum. Adding a kind here requires a payload struct,
// a constructor and a dispatcher handler; KnownEventTypes keeps the
// dispatcher registry exhaustiveness checkable.
type EventType string

const (
	EventBookingConfirmed       EventType = "BOOKING_CONFIRMED"
	EventBookingCancelled       EventType = "BOOKING_CANCELLED"
	EventPaymentConfirmed       EventType = "PAYMENT_CONFIRMED"
	EventManualPaymentSubmitted EventType = "MANUAL_PAYMENT_SUBMITTED"
	EventSocialPostRequested    EventType = "SOCIAL_POST_REQUESTED"
)

func KnownEventTypes() []EventType {
	return []EventType{
		EventBookingConfirmed,
		EventBookingCancelled,
		EventPaymentConfirmed,
		EventManualPaymentSubmitted,
		EventSocialPostRequested,
	}
}

type BookingConfirmedPayload struct {
	BookingID     string    `json:"booking_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	AmountPaid    int64     `json:"amount_paid"`
	Currency      string    `json:"currency"`
}

type BookingCancelledPayload struct {
	BookingID       string `json:"booking_id"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	Reason          string `json:"reason"`
	VoucherReleased bool   `json:"voucher_released"`
}

type PaymentConfirmedPayload struct {
	BookingID     string `json:"booking_id"`
	AttemptID     string `json:"attempt_id"`
	IntentID      string `json:"intent_id"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email"`
}

type ManualPaymentSubmittedPayload struct {
	BookingID   string `json:"booking_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	SubmittedBy string `json:"submitted_by,omitempty"`
}

type SocialPostRequestedPayload struct {
	BookingID string `json:"booking_id"`
	PostID    string `json:"post_id"`
}

func NewBookingConfirmedEvent(businessID string, p BookingConfirmedPayload) (*OutboxMessage, error) {
	return newOutboxMessage(EventBookingConfirmed, businessID, AggregateBooking, p.BookingID, p)
}

func NewBookingCancelledEvent(businessID string, p BookingCancelledPayload) (*OutboxMessage, error) {
	return newOutboxMessage(EventBookingCancelled, businessID, AggregateBooking, p.BookingID, p)
}

func NewPaymentConfirmedEvent(businessID string, p PaymentConfirmedPayload) (*OutboxMessage, error) {
	return newOutboxMessage(EventPaymentConfirmed, businessID, AggregatePayment, p.AttemptID, p)
}

func NewManualPaymentSubmittedEvent(businessID string, p ManualPaymentSubmittedPayload) (*OutboxMessage, error) {
	return newOutboxMessage(EventManualPaymentSubmitted, businessID, AggregateBooking, p.BookingID, p)
}

func NewSocialPostRequestedEvent(businessID string, p SocialPostRequestedPayload) (*OutboxMessage, error) {
	return newOutboxMessage(EventSocialPostRequested, businessID, AggregateBooking, p.BookingID, p)
}

func newOutboxMessage(eventType EventType, businessID string, aggType AggregateType, aggID string, payload any) (*OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	now := time.Now().UTC()
	return &OutboxMessage{
		ID:            uuid.New().String(),
		EventType:     eventType,
		Payload:       data,
		BusinessID:    businessID,
		AggregateType: aggType,
		AggregateID:   aggID,
		Status:        OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// DecodePayload decodes the message payload into the provided struct.
func (m *OutboxMessage) DecodePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
