package model

import (
	"testing"
)

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		name       string
		amountPaid int64
		grandTotal int64
		want       PaymentStatus
	}{
		{"nothing paid", 0, 5000, PaymentUnpaid},
		{"partial", 2000, 5000, PaymentPartiallyPaid},
		{"exact", 5000, 5000, PaymentPaid},
		{"overpaid", 6000, 5000, PaymentPaid},
		{"free booking unpaid", 0, 0, PaymentUnpaid},
		{"payment against zero total", 100, 0, PaymentPartiallyPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DerivePaymentStatus(tc.amountPaid, tc.grandTotal); got != tc.want {
				t.Errorf("DerivePaymentStatus(%d, %d) = %s, want %s", tc.amountPaid, tc.grandTotal, got, tc.want)
			}
		})
	}
}

func TestBookingStatusIsTerminal(t *testing.T) {
	if BookingHold.IsTerminal() || BookingAccepted.IsTerminal() {
		t.Error("hold and accepted are live states")
	}
	if !BookingCancelled.IsTerminal() || !BookingCompleted.IsTerminal() {
		t.Error("cancelled and completed are terminal states")
	}
}

func TestAttemptStatusIsTerminal(t *testing.T) {
	if AttemptPending.IsTerminal() {
		t.Error("pending is the only live attempt state")
	}
	for _, status := range []AttemptStatus{AttemptSucceeded, AttemptFailed, AttemptCanceled, AttemptExpired} {
		if !status.IsTerminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
}

func TestNewBookingConfirmedEvent(t *testing.T) {
	event, err := NewBookingConfirmedEvent("biz_1", BookingConfirmedPayload{
		BookingID:     "bk_1",
		CustomerEmail: "customer@example.com",
		AmountPaid:    5000,
		Currency:      "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.ID == "" {
		t.Error("event needs a generated id")
	}
	if event.EventType != EventBookingConfirmed {
		t.Errorf("expected %s, got %s", EventBookingConfirmed, event.EventType)
	}
	if event.Status != OutboxPending {
		t.Errorf("new events start pending, got %s", event.Status)
	}
	if event.AggregateID != "bk_1" || event.AggregateType != AggregateBooking {
		t.Errorf("unexpected aggregate: %s/%s", event.AggregateType, event.AggregateID)
	}
	if event.NextAttemptAt.IsZero() {
		t.Error("new events must be immediately due")
	}

	var payload BookingConfirmedPayload
	if err := event.DecodePayload(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.CustomerEmail != "customer@example.com" || payload.AmountPaid != 5000 {
		t.Errorf("payload did not round-trip: %+v", payload)
	}
}

func TestKnownEventTypesCoversConstructors(t *testing.T) {
	known := make(map[EventType]bool)
	for _, eventType := range KnownEventTypes() {
		known[eventType] = true
	}

	events := []*OutboxMessage{}
	for _, build := range []func() (*OutboxMessage, error){
		func() (*OutboxMessage, error) { return NewBookingConfirmedEvent("b", BookingConfirmedPayload{}) },
		func() (*OutboxMessage, error) { return NewBookingCancelledEvent("b", BookingCancelledPayload{}) },
		func() (*OutboxMessage, error) { return NewPaymentConfirmedEvent("b", PaymentConfirmedPayload{}) },
		func() (*OutboxMessage, error) {
			return NewManualPaymentSubmittedEvent("b", ManualPaymentSubmittedPayload{})
		},
		func() (*OutboxMessage, error) { return NewSocialPostRequestedEvent("b", SocialPostRequestedPayload{}) },
	} {
		event, err := build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		events = append(events, event)
	}

	for _, event := range events {
		if !known[event.EventType] {
			t.Errorf("constructor emits %s which is not in KnownEventTypes", event.EventType)
		}
	}
}
