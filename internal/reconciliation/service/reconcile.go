package service

import (
	"context"
	"strings"
	"time"

	bookingsrepo "bookery/internal/bookings/repository"
	bookingssvc "bookery/internal/bookings/service"
	"bookery/pkg/client"
	"bookery/pkg/config"
	apperrors "bookery/pkg/errors"
	"bookery/pkg/model"
)

// Summary is the outcome tally of one reconciliation sweep.
type Summary struct {
	Scanned    int       `json:"scanned"`
	Succeeded  int       `json:"succeeded"`
	Expired    int       `json:"expired"`
	Failed     int       `json:"failed"`
	Canceled   int       `json:"canceled"`
	Mismatched int       `json:"mismatched"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ReconcileService is the safety net for payment attempts whose webhook was
// lost: it polls the gateway for aging pending attempts and applies the same
// lifecycle transitions the webhook would have. One failing attempt never
// aborts the sweep.
type ReconcileService interface {
	Sweep(ctx context.Context) (*Summary, error)
}

type reconcileService struct {
	attempts  bookingsrepo.PaymentAttemptRepository
	lifecycle bookingssvc.LifecycleService
	gateway   *client.GatewayClient
	cfg       *config.Config
}

func NewReconcileService(
	attempts bookingsrepo.PaymentAttemptRepository,
	lifecycle bookingssvc.LifecycleService,
	gateway *client.GatewayClient,
	cfg *config.Config,
) ReconcileService {
	return &reconcileService{
		attempts:  attempts,
		lifecycle: lifecycle,
		gateway:   gateway,
		cfg:       cfg,
	}
}

func (s *reconcileService) Sweep(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now().UTC()}

	cutoff := time.Now().UTC().Add(-s.cfg.ReconcilePendingCutoff)
	attempts, err := s.attempts.FindPendingOlderThan(ctx, cutoff, s.cfg.ReconcileBatchSize)
	if err != nil {
		return nil, apperrors.Internal("Failed to list pending attempts", err)
	}

	for _, attempt := range attempts {
		summary.Scanned++
		s.reconcileOne(ctx, attempt, summary)
	}

	summary.FinishedAt = time.Now().UTC()
	s.cfg.Log.Info("Reconciliation sweep finished",
		"scanned", summary.Scanned,
		"succeeded", summary.Succeeded,
		"expired", summary.Expired,
		"failed", summary.Failed,
		"canceled", summary.Canceled,
		"mismatched", summary.Mismatched,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

func (s *reconcileService) reconcileOne(ctx context.Context, attempt *model.PaymentAttempt, summary *Summary) {
	defer func() {
		if rec := recover(); rec != nil {
			summary.Errors++
			s.cfg.Log.Error("Panic while reconciling attempt",
				"attempt_id", attempt.ID,
				"panic", rec,
			)
		}
	}()

	// An attempt past its own deadline is expired regardless of what the
	// gateway would say; skip the poll and settle it locally.
	if !attempt.ExpiresAt.IsZero() && attempt.ExpiresAt.Before(time.Now().UTC()) {
		if _, err := s.lifecycle.FailOrCancelPayment(ctx, attempt.ID, model.AttemptExpired, model.ReasonPaymentExpired); err != nil {
			summary.Errors++
			return
		}
		summary.Expired++
		return
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, attempt.IntentID)
	if err != nil {
		summary.Errors++
		s.cfg.Log.Warn("Failed to poll gateway for attempt",
			"attempt_id", attempt.ID,
			"intent_id", attempt.IntentID,
			"error", err,
		)
		return
	}

	switch intent.Status {
	case client.IntentSucceeded:
		if reason := s.verifyCharge(attempt, intent); reason != "" {
			if _, err := s.lifecycle.RecordAttemptMismatch(ctx, attempt.ID, reason); err != nil {
				summary.Errors++
				return
			}
			summary.Mismatched++
			return
		}
		if _, err := s.lifecycle.ConfirmPayment(ctx, attempt.ID); err != nil {
			summary.Errors++
			return
		}
		summary.Succeeded++

	case client.IntentFailed:
		if _, err := s.lifecycle.FailOrCancelPayment(ctx, attempt.ID, model.AttemptFailed, model.ReasonPaymentFailed); err != nil {
			summary.Errors++
			return
		}
		summary.Failed++

	case client.IntentCanceled:
		if _, err := s.lifecycle.FailOrCancelPayment(ctx, attempt.ID, model.AttemptCanceled, model.ReasonPaymentCanceled); err != nil {
			summary.Errors++
			return
		}
		summary.Canceled++

	case client.IntentExpired:
		if _, err := s.lifecycle.FailOrCancelPayment(ctx, attempt.ID, model.AttemptExpired, model.ReasonPaymentExpired); err != nil {
			summary.Errors++
			return
		}
		summary.Expired++

	default:
		// Still in flight on the gateway side; a later sweep will see it.
		summary.Skipped++
	}
}

// verifyCharge mirrors the webhook-side check: the gateway's settled amount
// and currency must match what the attempt charged.
func (s *reconcileService) verifyCharge(attempt *model.PaymentAttempt, intent *client.PaymentIntent) string {
	if !strings.EqualFold(attempt.Currency, intent.Currency) {
		return model.ReasonCurrencyMismatch
	}

	diff := attempt.AmountCharged - intent.Amount
	if diff < 0 {
		diff = -diff
	}
	if diff > s.cfg.AmountMismatchTolerance {
		return model.ReasonAmountMismatch
	}
	return ""
}
