package model

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDelivered  OutboxStatus = "delivered"
	OutboxFailed     OutboxStatus = "failed"
)

type AggregateType string

const (
	AggregateBooking AggregateType = "booking"
	AggregatePayment AggregateType = "payment_attempt"
)

// OutboxMessage is a durable record of a domain event, inserted in the same
// storage transaction as the state change that produced it. Delivery is
// at-least-once; handlers must be idempotent.
type OutboxMessage struct {
	ID            string          `json:"id" bson:"_id"`
	EventType     EventType       `json:"event_type" bson:"event_type"`
	Payload       json.RawMessage `json:"payload" bson:"payload"`
	BusinessID    string          `json:"business_id" bson:"business_id"`
	AggregateType AggregateType   `json:"aggregate_type" bson:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id" bson:"aggregate_id"`
	Status        OutboxStatus    `json:"status" bson:"status"`
	Attempts      int             `json:"attempts" bson:"attempts"`
	LastError     string          `json:"last_error,omitempty" bson:"last_error,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at" bson:"next_attempt_at"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty" bson:"claimed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
}
