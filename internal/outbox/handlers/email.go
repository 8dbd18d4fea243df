package handlers

import (
	"context"
	"fmt"

	outboxsvc "bookery/internal/outbox/service"
	"bookery/pkg/config"
	"bookery/pkg/kafka"
	"bookery/pkg/model"
)

// EmailNotifier forwards booking and payment events to the notifications
// topic, where the mailer service consumes them. The outbox message id rides
// along as the Kafka event id so downstream consumers can deduplicate
// at-least-once deliveries.
type EmailNotifier struct {
	producer *kafka.Producer
	cfg      *config.Config
}

func NewEmailNotifier(producer *kafka.Producer, cfg *config.Config) *EmailNotifier {
	return &EmailNotifier{
		producer: producer,
		cfg:      cfg,
	}
}

func (n *EmailNotifier) HandleBookingConfirmed(ctx context.Context, msg *model.OutboxMessage) error {
	var payload model.BookingConfirmedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return outboxsvc.NonRetryable("undecodable BOOKING_CONFIRMED payload", err)
	}
	if payload.CustomerEmail == "" {
		return outboxsvc.NonRetryable(fmt.Sprintf("booking %s has no customer email", payload.BookingID), nil)
	}
	return n.publish(ctx, msg, payload.BookingID)
}

func (n *EmailNotifier) HandleBookingCancelled(ctx context.Context, msg *model.OutboxMessage) error {
	var payload model.BookingCancelledPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return outboxsvc.NonRetryable("undecodable BOOKING_CANCELLED payload", err)
	}
	if payload.CustomerEmail == "" {
		return outboxsvc.NonRetryable(fmt.Sprintf("booking %s has no customer email", payload.BookingID), nil)
	}
	return n.publish(ctx, msg, payload.BookingID)
}

func (n *EmailNotifier) HandlePaymentConfirmed(ctx context.Context, msg *model.OutboxMessage) error {
	var payload model.PaymentConfirmedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return outboxsvc.NonRetryable("undecodable PAYMENT_CONFIRMED payload", err)
	}
	if payload.CustomerEmail == "" {
		return outboxsvc.NonRetryable(fmt.Sprintf("booking %s has no customer email", payload.BookingID), nil)
	}
	return n.publish(ctx, msg, payload.BookingID)
}

func (n *EmailNotifier) HandleManualPaymentSubmitted(ctx context.Context, msg *model.OutboxMessage) error {
	var payload model.ManualPaymentSubmittedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return outboxsvc.NonRetryable("undecodable MANUAL_PAYMENT_SUBMITTED payload", err)
	}
	return n.publish(ctx, msg, payload.BookingID)
}

// publish keys the Kafka message by booking id so events of one booking stay
// ordered within a partition.
func (n *EmailNotifier) publish(ctx context.Context, msg *model.OutboxMessage, bookingID string) error {
	kafkaMsg := kafka.NewMessage().
		WithKey(bookingID).
		WithRawValue(msg.Payload).
		WithEventID(msg.ID).
		WithEventType(string(msg.EventType)).
		WithBusinessID(msg.BusinessID).
		WithSource("bookery-dispatcher").
		Build()

	if err := n.producer.Publish(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
