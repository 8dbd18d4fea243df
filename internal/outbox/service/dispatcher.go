package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookery/internal/outbox/repository"
	"bookery/pkg/config"
	"bookery/pkg/model"
)

// NonRetryableError marks a delivery failure that retrying cannot fix
// (missing recipient, payload that will never decode). The dispatcher moves
// the message straight to failed instead of scheduling another attempt.
type NonRetryableError struct {
	Reason string
	Err    error
}

func (e *NonRetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err as permanently failed.
func NonRetryable(reason string, err error) error {
	return &NonRetryableError{Reason: reason, Err: err}
}

// EventHandler delivers one outbox message. Delivery is at-least-once, so
// handlers must tolerate replays of a message they already handled.
type EventHandler func(ctx context.Context, msg *model.OutboxMessage) error

// Dispatcher drains the outbox: it claims due pending messages, routes each
// to the handler registered for its event type and records the outcome.
// Retries back off exponentially until the attempt cap, after which the
// message is parked as failed for operator attention.
type Dispatcher struct {
	outbox   repository.OutboxRepository
	handlers map[model.EventType]EventHandler
	cfg      *config.Config
}

func NewDispatcher(outbox repository.OutboxRepository, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		handlers: make(map[model.EventType]EventHandler),
		cfg:      cfg,
	}
}

// Register binds a handler to an event type. Registering twice is a wiring
// bug and panics at startup rather than silently shadowing.
func (d *Dispatcher) Register(eventType model.EventType, handler EventHandler) {
	if _, exists := d.handlers[eventType]; exists {
		panic(fmt.Sprintf("handler already registered for event type %s", eventType))
	}
	d.handlers[eventType] = handler
}

// VerifyRegistrations returns an error when any known event type has no
// handler. Called once at startup so a forgotten registration fails fast
// instead of parking every message of that type.
func (d *Dispatcher) VerifyRegistrations() error {
	var missing []model.EventType
	for _, eventType := range model.KnownEventTypes() {
		if _, ok := d.handlers[eventType]; !ok {
			missing = append(missing, eventType)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no handler registered for event types: %v", missing)
	}
	return nil
}

// Run polls the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.OutboxPollInterval)
	defer ticker.Stop()

	d.cfg.Log.Info("Outbox dispatcher started",
		"poll_interval", d.cfg.OutboxPollInterval,
		"batch_size", d.cfg.OutboxBatchSize,
		"max_attempts", d.cfg.OutboxMaxAttempts,
	)

	for {
		select {
		case <-ctx.Done():
			d.cfg.Log.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.cfg.Log.Error("Outbox dispatch cycle failed", "error", err)
			}
		}
	}
}

// DispatchOnce claims and delivers one batch. Returns the number of messages
// handled in the cycle.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	// Reclaim rows a crashed dispatcher left in processing before taking a
	// fresh batch, so they rejoin the queue instead of being stranded.
	cutoff := time.Now().UTC().Add(-d.cfg.OutboxVisibilityTimeout)
	requeued, err := d.outbox.RequeueStale(ctx, cutoff)
	if err != nil {
		d.cfg.Log.Warn("Failed to requeue stale outbox messages", "error", err)
	} else if requeued > 0 {
		d.cfg.Log.Info("Requeued stale outbox messages", "count", requeued)
	}

	batch, err := d.outbox.ClaimDueBatch(ctx, time.Now().UTC(), d.cfg.OutboxBatchSize)
	if err != nil {
		return 0, err
	}

	for _, msg := range batch {
		d.deliver(ctx, msg)
	}

	return len(batch), nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg *model.OutboxMessage) {
	handler, ok := d.handlers[msg.EventType]
	if !ok {
		d.park(ctx, msg, fmt.Sprintf("no handler for event type %s", msg.EventType))
		return
	}

	err := handler(ctx, msg)
	if err == nil {
		if markErr := d.outbox.MarkDelivered(ctx, msg.ID); markErr != nil {
			d.cfg.Log.Error("Failed to mark outbox message delivered",
				"message_id", msg.ID,
				"error", markErr,
			)
		}
		d.cfg.Log.Info("Outbox message delivered",
			"message_id", msg.ID,
			"event_type", msg.EventType,
			"attempts", msg.Attempts,
		)
		return
	}

	var nonRetryable *NonRetryableError
	if errors.As(err, &nonRetryable) {
		d.park(ctx, msg, err.Error())
		return
	}

	if msg.Attempts >= d.cfg.OutboxMaxAttempts {
		d.park(ctx, msg, fmt.Sprintf("attempt cap reached: %v", err))
		return
	}

	nextAttemptAt := time.Now().UTC().Add(d.backoff(msg.Attempts))
	if retryErr := d.outbox.ScheduleRetry(ctx, msg.ID, err.Error(), nextAttemptAt); retryErr != nil {
		d.cfg.Log.Error("Failed to schedule outbox retry",
			"message_id", msg.ID,
			"error", retryErr,
		)
		return
	}

	d.cfg.Log.Warn("Outbox delivery failed, retry scheduled",
		"message_id", msg.ID,
		"event_type", msg.EventType,
		"attempts", msg.Attempts,
		"next_attempt_at", nextAttemptAt,
		"error", err,
	)
}

func (d *Dispatcher) park(ctx context.Context, msg *model.OutboxMessage, reason string) {
	if err := d.outbox.MarkFailed(ctx, msg.ID, reason); err != nil {
		d.cfg.Log.Error("Failed to park outbox message",
			"message_id", msg.ID,
			"error", err,
		)
		return
	}
	d.cfg.Log.Error("Outbox message permanently failed",
		"message_id", msg.ID,
		"event_type", msg.EventType,
		"attempts", msg.Attempts,
		"reason", reason,
	)
}

// backoff doubles the base delay per attempt already made.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.OutboxRetryBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > time.Hour {
			return time.Hour
		}
	}
	return delay
}
