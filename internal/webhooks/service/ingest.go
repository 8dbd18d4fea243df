package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	bookingserrors "bookery/internal/bookings/errors"
	bookingsrepo "bookery/internal/bookings/repository"
	bookingssvc "bookery/internal/bookings/service"
	"bookery/internal/webhooks/repository"
	"bookery/pkg/config"
	apperrors "bookery/pkg/errors"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// IngestService turns verified gateway webhook bodies into booking state
// transitions. Processing is serialized per event id with an advisory lock
// and deduplicated through the processed-events audit collection, so a
// redelivered event is acknowledged without running twice.
type IngestService interface {
	Ingest(ctx context.Context, rawBody []byte) (model.EventOutcome, error)
}

type ingestService struct {
	lifecycle bookingssvc.LifecycleService
	attempts  bookingsrepo.PaymentAttemptRepository
	processed repository.ProcessedEventRepository
	locks     repository.EventLockRepository
	cfg       *config.Config
}

func NewIngestService(
	lifecycle bookingssvc.LifecycleService,
	attempts bookingsrepo.PaymentAttemptRepository,
	processed repository.ProcessedEventRepository,
	locks repository.EventLockRepository,
	cfg *config.Config,
) IngestService {
	return &ingestService{
		lifecycle: lifecycle,
		attempts:  attempts,
		processed: processed,
		locks:     locks,
		cfg:       cfg,
	}
}

func (s *ingestService) Ingest(ctx context.Context, rawBody []byte) (model.EventOutcome, error) {
	event, err := model.ParseGatewayEvent(rawBody)
	if err != nil {
		return "", apperrors.InvalidInput("Malformed webhook payload")
	}

	eventID := event.ID
	if eventID == "" {
		// Some gateway configurations omit event ids; hash the body so
		// redeliveries of the same payload still deduplicate.
		sum := sha256.Sum256(rawBody)
		eventID = hex.EncodeToString(sum[:])
	}

	if _, err := s.processed.FindByEventID(ctx, eventID); err == nil {
		s.cfg.Log.Info("Webhook event already processed", "event_id", eventID, "event_type", event.Type)
		return model.OutcomeIgnored, nil
	} else if !errors.Is(err, repository.ErrEventNotFound) {
		return "", apperrors.Internal("Failed to check event dedup", err)
	}

	lockID, err := s.acquireEventLock(ctx, eventID)
	if err != nil {
		if errors.Is(err, errLockHeld) {
			// A sibling worker is mid-flight; acknowledge so the gateway
			// neither retries immediately nor treats this as a failure.
			s.cfg.Log.Info("Webhook event already being processed", "event_id", eventID)
			return model.OutcomeProcessing, nil
		}
		return "", err
	}
	defer func() {
		if releaseErr := s.locks.Delete(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release event lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	// Re-check under the lock: another worker may have finished between the
	// fast-path check and our lock acquisition.
	if _, err := s.processed.FindByEventID(ctx, eventID); err == nil {
		return model.OutcomeIgnored, nil
	} else if !errors.Is(err, repository.ErrEventNotFound) {
		return "", apperrors.Internal("Failed to check event dedup", err)
	}

	outcome, attemptID, err := s.dispatch(ctx, event)
	if err != nil {
		return "", err
	}

	record := &model.ProcessedEvent{
		EventID:   eventID,
		EventType: event.Type,
		Outcome:   outcome,
		AttemptID: attemptID,
	}
	if err := s.processed.Record(ctx, record); err != nil && !mongo.IsDuplicateKeyError(err) {
		return "", apperrors.Internal("Failed to record processed event", err)
	}

	s.cfg.Log.Info("Webhook event processed",
		"event_id", eventID,
		"event_type", event.Type,
		"outcome", outcome,
		"attempt_id", attemptID,
	)
	return outcome, nil
}

// dispatch applies one event to the booking state machine. All lifecycle
// operations are conditional no-ops on replays, so running this is safe even
// for an event the audit table has not seen.
func (s *ingestService) dispatch(ctx context.Context, event *model.GatewayEvent) (model.EventOutcome, string, error) {
	switch event.Type {
	case model.GatewayEventPaymentSucceeded,
		model.GatewayEventPaymentFailed,
		model.GatewayEventPaymentExpired,
		model.GatewayEventPaymentCanceled:
	default:
		s.cfg.Log.Info("Ignoring unknown webhook event type", "event_type", event.Type)
		return model.OutcomeIgnored, "", nil
	}

	if event.Data.IntentID == "" {
		return "", "", apperrors.InvalidInput("Webhook event is missing the payment intent id")
	}

	attempt, err := s.attempts.FindByIntentID(ctx, event.Data.IntentID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrAttemptNotFound) {
			s.cfg.Log.Warn("Webhook references unknown payment intent",
				"intent_id", event.Data.IntentID,
				"event_type", event.Type,
			)
			return model.OutcomeIgnored, "", nil
		}
		return "", "", apperrors.Internal("Failed to load payment attempt", err)
	}

	switch event.Type {
	case model.GatewayEventPaymentSucceeded:
		if reason := s.verifyCharge(attempt, event); reason != "" {
			s.cfg.Log.Warn("Webhook amount verification failed",
				"attempt_id", attempt.ID,
				"reason", reason,
				"expected_amount", attempt.AmountCharged,
				"observed_amount", event.Data.Amount,
				"expected_currency", attempt.Currency,
				"observed_currency", event.Data.Currency,
			)
			if _, err := s.lifecycle.RecordAttemptMismatch(ctx, attempt.ID, reason); err != nil {
				return "", "", err
			}
			return model.OutcomeProcessed, attempt.ID, nil
		}
		if _, err := s.lifecycle.ConfirmPayment(ctx, attempt.ID); err != nil {
			return "", "", err
		}

	case model.GatewayEventPaymentFailed:
		if _, err := s.lifecycle.FailOrCancelPayment(ctx, attempt.ID, model.AttemptFailed, model.ReasonPaymentFailed); err != nil {
			return "", "", err
		}

	case model.GatewayEventPaymentExpired:
		if _, err := s.lifecycle.FailOrCancelPayment(ctx, attempt.ID, model.AttemptExpired, model.ReasonPaymentExpired); err != nil {
			return "", "", err
		}

	case model.GatewayEventPaymentCanceled:
		if _, err := s.lifecycle.FailOrCancelPayment(ctx, attempt.ID, model.AttemptCanceled, model.ReasonPaymentCanceled); err != nil {
			return "", "", err
		}
	}

	return model.OutcomeProcessed, attempt.ID, nil
}

// verifyCharge compares the gateway-reported amount and currency with the
// attempt. Returns the diagnostic reason, or empty when they agree. Amounts
// may differ by up to the configured tolerance (gateway rounding).
func (s *ingestService) verifyCharge(attempt *model.PaymentAttempt, event *model.GatewayEvent) string {
	if !strings.EqualFold(attempt.Currency, event.Data.Currency) {
		return model.ReasonCurrencyMismatch
	}

	diff := attempt.AmountCharged - event.Data.Amount
	if diff < 0 {
		diff = -diff
	}
	if diff > s.cfg.AmountMismatchTolerance {
		return model.ReasonAmountMismatch
	}
	return ""
}

// errLockHeld reports that another worker holds the advisory lock for the
// event being ingested.
var errLockHeld = errors.New("event lock held")

// acquireEventLock creates an advisory lock so concurrent deliveries of one
// event serialize.
func (s *ingestService) acquireEventLock(ctx context.Context, eventID string) (string, error) {
	lockID := fmt.Sprintf("webhook_lock_%s", eventID)

	lock := &model.EventLock{
		ID:        lockID,
		ExpiresAt: time.Now().Add(s.cfg.EventLockTTL),
	}

	_, err := s.locks.Create(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", errLockHeld
		}
		return "", apperrors.Internal("Failed to acquire event lock", err)
	}

	return lockID, nil
}
