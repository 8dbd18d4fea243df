package model

import "time"

type EventOutcome string

const (
	OutcomeProcessed  EventOutcome = "PROCESSED"
	OutcomeIgnored    EventOutcome = "IGNORED"
	OutcomeProcessing EventOutcome = "ALREADY_PROCESSING"
)

// ProcessedEvent is the audit/dedup record for one inbound gateway
// notification. The external event id is the document id, so a second
// delivery of the same event hits a duplicate key and is treated as
// already processed.
type ProcessedEvent struct {
	EventID     string       `json:"event_id" bson:"_id"`
	EventType   string       `json:"event_type" bson:"event_type"`
	Outcome     EventOutcome `json:"outcome" bson:"outcome"`
	AttemptID   string       `json:"attempt_id,omitempty" bson:"attempt_id,omitempty"`
	ProcessedAt time.Time    `json:"processed_at" bson:"processed_at"`
}

// EventLock is an advisory lock row keyed by an application-chosen string.
// Insertion with a duplicate key means the lock is held by another worker;
// deletion releases it. ExpiresAt bounds locks leaked by crashed workers.
type EventLock struct {
	ID        string    `json:"id" bson:"_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
