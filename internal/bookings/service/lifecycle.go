package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "bookery/internal/bookings/errors"
	"bookery/internal/bookings/repository"
	outboxrepo "bookery/internal/outbox/repository"
	"bookery/pkg/config"
	apperrors "bookery/pkg/errors"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// LifecycleService owns every booking state transition after checkout. Each
// operation runs in a single transaction, uses conditional updates so a lost
// race modifies zero documents, and inserts its outbox events in the same
// transaction as the state change.
type LifecycleService interface {
	CancelExpiredHold(ctx context.Context, bookingID string, now time.Time) (bool, error)
	ConfirmPayment(ctx context.Context, attemptID string) (bool, error)
	FailOrCancelPayment(ctx context.Context, attemptID string, status model.AttemptStatus, reason string) (bool, error)
	RecordAttemptMismatch(ctx context.Context, attemptID string, reason string) (bool, error)
	PromoteToCompletedIfEligible(ctx context.Context, bookingID string) (bool, error)
	SubmitManualPayment(ctx context.Context, bookingID string, amount int64, method string, submittedBy string) (*model.Booking, error)
	MarkUnitDone(ctx context.Context, unitID string) (bool, error)
}

type lifecycleService struct {
	bookings repository.BookingRepository
	attempts repository.PaymentAttemptRepository
	vouchers repository.VoucherRepository
	units    repository.ServiceUnitRepository
	outbox   outboxrepo.OutboxRepository
	posts    outboxrepo.SocialPostRepository
	cfg      *config.Config
}

func NewLifecycleService(
	bookings repository.BookingRepository,
	attempts repository.PaymentAttemptRepository,
	vouchers repository.VoucherRepository,
	units repository.ServiceUnitRepository,
	outbox outboxrepo.OutboxRepository,
	posts outboxrepo.SocialPostRepository,
	cfg *config.Config,
) LifecycleService {
	return &lifecycleService{
		bookings: bookings,
		attempts: attempts,
		vouchers: vouchers,
		units:    units,
		outbox:   outbox,
		posts:    posts,
		cfg:      cfg,
	}
}

// CancelExpiredHold cancels a hold booking whose deadline passed: the booking
// moves to cancelled, its pending payment attempt expires, its voucher
// returns to the pool, its scheduled units are cancelled and a
// BOOKING_CANCELLED event is queued. Returns false without
// touching anything when the booking was confirmed or cancelled in the
// meantime.
func (s *lifecycleService) CancelExpiredHold(ctx context.Context, bookingID string, now time.Time) (bool, error) {
	if bookingID == "" {
		return false, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	cancelled := false
	err := s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		modified, err := s.bookings.CancelHoldIfExpired(sessCtx, bookingID, now)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid booking ID format")
			}
			return apperrors.Internal("Failed to cancel expired hold", err)
		}
		if modified == 0 {
			// Confirmed or cancelled by a concurrent writer, nothing to do.
			return nil
		}
		cancelled = true

		if _, err := s.attempts.MarkTerminalIfPendingByBooking(sessCtx, bookingID, model.AttemptExpired, model.ReasonHoldExpired); err != nil {
			return apperrors.Internal("Failed to expire pending attempts", err)
		}

		released, err := s.vouchers.ReleaseByBooking(sessCtx, bookingID)
		if err != nil {
			return apperrors.Internal("Failed to release voucher", err)
		}

		if _, err := s.units.CancelOpenByBooking(sessCtx, bookingID); err != nil {
			return apperrors.Internal("Failed to cancel service units", err)
		}

		booking, err := s.bookings.FindByID(sessCtx, bookingID)
		if err != nil {
			return apperrors.Internal("Failed to load cancelled booking", err)
		}

		event, err := model.NewBookingCancelledEvent(booking.BusinessID, model.BookingCancelledPayload{
			BookingID:       bookingID,
			CustomerName:    booking.CustomerName,
			CustomerEmail:   booking.CustomerEmail,
			Reason:          model.ReasonHoldExpired,
			VoucherReleased: released > 0,
		})
		if err != nil {
			return apperrors.Internal("Failed to build cancellation event", err)
		}
		if err := s.outbox.Insert(sessCtx, event); err != nil {
			return apperrors.Internal("Failed to queue cancellation event", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel expired hold", "booking_id", bookingID, "error", err)
		return false, err
	}

	if cancelled {
		s.cfg.Log.Info("Expired hold cancelled", "booking_id", bookingID)
	}
	return cancelled, nil
}

// ConfirmPayment resolves a pending attempt as succeeded and applies the
// collected amount to the booking. A hold booking is promoted to accepted;
// an accepted booking gets its payment progress updated; a booking already
// cancelled or completed keeps its state (the money needs a refund flow, not
// a resurrection). Returns false when the attempt was already resolved.
func (s *lifecycleService) ConfirmPayment(ctx context.Context, attemptID string) (bool, error) {
	if attemptID == "" {
		return false, apperrors.InvalidInput("Attempt ID cannot be empty")
	}

	confirmed := false
	var bookingID string
	err := s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		attempt, err := s.attempts.FindByID(sessCtx, attemptID)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrAttemptNotFound) {
				return apperrors.NotFoundWithID("Payment attempt", attemptID)
			}
			if errors.Is(err, bookingserrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid attempt ID format")
			}
			return apperrors.Internal("Failed to load payment attempt", err)
		}

		modified, err := s.attempts.MarkTerminalIfPending(sessCtx, attemptID, model.AttemptSucceeded, "")
		if err != nil {
			return apperrors.Internal("Failed to resolve payment attempt", err)
		}
		if modified == 0 {
			// Already resolved: a duplicate webhook or the reconciler won.
			return nil
		}
		confirmed = true

		booking, err := s.bookings.FindByID(sessCtx, attempt.BookingID)
		if err != nil {
			return apperrors.Internal("Failed to load booking for payment", err)
		}
		bookingID = booking.ID

		// Overpayment (gateway rounding, a retried charge that settled twice)
		// never pushes amount_paid past the grand total.
		newPaid := booking.AmountPaid + attempt.AmountPrincipal
		if newPaid > booking.GrandTotal {
			newPaid = booking.GrandTotal
		}
		paymentStatus := model.DerivePaymentStatus(newPaid, booking.GrandTotal)

		switch booking.Status {
		case model.BookingHold:
			if _, err := s.bookings.AcceptFromHold(sessCtx, booking.ID, newPaid, paymentStatus); err != nil {
				return apperrors.Internal("Failed to accept booking", err)
			}
			event, err := model.NewBookingConfirmedEvent(booking.BusinessID, model.BookingConfirmedPayload{
				BookingID:     booking.ID,
				CustomerName:  booking.CustomerName,
				CustomerEmail: booking.CustomerEmail,
				StartTime:     booking.StartTime,
				EndTime:       booking.EndTime,
				AmountPaid:    newPaid,
				Currency:      booking.Currency,
			})
			if err != nil {
				return apperrors.Internal("Failed to build confirmation event", err)
			}
			if err := s.outbox.Insert(sessCtx, event); err != nil {
				return apperrors.Internal("Failed to queue confirmation event", err)
			}
			if err := s.queueSocialPost(sessCtx, booking); err != nil {
				return err
			}
		case model.BookingAccepted:
			if _, err := s.bookings.UpdatePaymentProgress(sessCtx, booking.ID, newPaid, paymentStatus); err != nil {
				return apperrors.Internal("Failed to update payment progress", err)
			}
		default:
			s.cfg.Log.Warn("Payment succeeded for terminal booking",
				"booking_id", booking.ID,
				"booking_status", booking.Status,
				"attempt_id", attemptID,
			)
		}

		event, err := model.NewPaymentConfirmedEvent(booking.BusinessID, model.PaymentConfirmedPayload{
			BookingID:     booking.ID,
			AttemptID:     attemptID,
			IntentID:      attempt.IntentID,
			AmountPaid:    attempt.AmountPrincipal,
			Currency:      attempt.Currency,
			CustomerEmail: booking.CustomerEmail,
		})
		if err != nil {
			return apperrors.Internal("Failed to build payment event", err)
		}
		if err := s.outbox.Insert(sessCtx, event); err != nil {
			return apperrors.Internal("Failed to queue payment event", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to confirm payment", "attempt_id", attemptID, "error", err)
		return false, err
	}

	if confirmed {
		s.cfg.Log.Info("Payment confirmed", "attempt_id", attemptID)
		// Outside the payment transaction: a booking whose units were all
		// done before the money arrived completes now.
		if _, err := s.PromoteToCompletedIfEligible(ctx, bookingID); err != nil {
			s.cfg.Log.Warn("Post-payment completion check failed",
				"booking_id", bookingID,
				"error", err,
			)
		}
	}
	return confirmed, nil
}

// FailOrCancelPayment resolves a pending attempt as failed, canceled or
// expired and, when the booking is still on hold, cancels it and releases its
// voucher. A zero-row attempt update means the attempt already succeeded or
// was resolved; a stale failure signal must never claw back a confirmed
// payment, so the whole operation becomes a no-op.
func (s *lifecycleService) FailOrCancelPayment(ctx context.Context, attemptID string, status model.AttemptStatus, reason string) (bool, error) {
	if attemptID == "" {
		return false, apperrors.InvalidInput("Attempt ID cannot be empty")
	}
	if status != model.AttemptFailed && status != model.AttemptCanceled && status != model.AttemptExpired {
		return false, apperrors.InvalidInput("Status must be failed, canceled or expired")
	}

	resolved := false
	err := s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		attempt, err := s.attempts.FindByID(sessCtx, attemptID)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrAttemptNotFound) {
				return apperrors.NotFoundWithID("Payment attempt", attemptID)
			}
			if errors.Is(err, bookingserrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid attempt ID format")
			}
			return apperrors.Internal("Failed to load payment attempt", err)
		}

		modified, err := s.attempts.MarkTerminalIfPending(sessCtx, attemptID, status, reason)
		if err != nil {
			return apperrors.Internal("Failed to resolve payment attempt", err)
		}
		if modified == 0 {
			return nil
		}
		resolved = true

		cancelled, err := s.bookings.CancelFromHold(sessCtx, attempt.BookingID)
		if err != nil {
			return apperrors.Internal("Failed to cancel booking", err)
		}
		if cancelled == 0 {
			// Accepted bookings survive a failed follow-up attempt.
			return nil
		}

		released, err := s.vouchers.ReleaseByBooking(sessCtx, attempt.BookingID)
		if err != nil {
			return apperrors.Internal("Failed to release voucher", err)
		}

		if _, err := s.units.CancelOpenByBooking(sessCtx, attempt.BookingID); err != nil {
			return apperrors.Internal("Failed to cancel service units", err)
		}

		booking, err := s.bookings.FindByID(sessCtx, attempt.BookingID)
		if err != nil {
			return apperrors.Internal("Failed to load cancelled booking", err)
		}

		event, err := model.NewBookingCancelledEvent(booking.BusinessID, model.BookingCancelledPayload{
			BookingID:       booking.ID,
			CustomerName:    booking.CustomerName,
			CustomerEmail:   booking.CustomerEmail,
			Reason:          reason,
			VoucherReleased: released > 0,
		})
		if err != nil {
			return apperrors.Internal("Failed to build cancellation event", err)
		}
		if err := s.outbox.Insert(sessCtx, event); err != nil {
			return apperrors.Internal("Failed to queue cancellation event", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to resolve payment attempt",
			"attempt_id", attemptID,
			"status", status,
			"error", err,
		)
		return false, err
	}

	if resolved {
		s.cfg.Log.Info("Payment attempt resolved",
			"attempt_id", attemptID,
			"status", status,
			"reason", reason,
		)
	}
	return resolved, nil
}

// RecordAttemptMismatch fails an attempt whose gateway-reported amount or
// currency disagrees with what we charged. The booking is deliberately left
// untouched: a hold must not be cancelled over a diagnostic discrepancy that
// needs a human look.
func (s *lifecycleService) RecordAttemptMismatch(ctx context.Context, attemptID string, reason string) (bool, error) {
	if attemptID == "" {
		return false, apperrors.InvalidInput("Attempt ID cannot be empty")
	}

	modified, err := s.attempts.MarkTerminalIfPending(ctx, attemptID, model.AttemptFailed, reason)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return false, apperrors.InvalidInput("Invalid attempt ID format")
		}
		s.cfg.Log.Error("Failed to record attempt mismatch", "attempt_id", attemptID, "error", err)
		return false, apperrors.Internal("Failed to record attempt mismatch", err)
	}

	if modified > 0 {
		s.cfg.Log.Warn("Payment attempt failed on mismatch", "attempt_id", attemptID, "reason", reason)
	}
	return modified > 0, nil
}

// PromoteToCompletedIfEligible moves an accepted booking to completed once it
// is fully paid and every attached service unit is done. Returns false when
// any condition does not hold.
func (s *lifecycleService) PromoteToCompletedIfEligible(ctx context.Context, bookingID string) (bool, error) {
	if bookingID == "" {
		return false, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	promoted := false
	err := s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		open, err := s.units.CountOpenByBooking(sessCtx, bookingID)
		if err != nil {
			return apperrors.Internal("Failed to count open service units", err)
		}
		if open > 0 {
			return nil
		}

		modified, err := s.bookings.CompleteIfAccepted(sessCtx, bookingID)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid booking ID format")
			}
			return apperrors.Internal("Failed to complete booking", err)
		}
		promoted = modified > 0
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to promote booking", "booking_id", bookingID, "error", err)
		return false, err
	}

	if promoted {
		s.cfg.Log.Info("Booking completed", "booking_id", bookingID)
	}
	return promoted, nil
}

// SubmitManualPayment records an off-gateway payment (cash, bank transfer)
// against a booking. A hold booking is promoted to accepted just as a gateway
// confirmation would.
func (s *lifecycleService) SubmitManualPayment(ctx context.Context, bookingID string, amount int64, method string, submittedBy string) (*model.Booking, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	if amount <= 0 {
		return nil, apperrors.InvalidInput("Amount must be positive")
	}
	if method == "" {
		return nil, apperrors.InvalidInput("Payment method cannot be empty")
	}

	var updated *model.Booking
	err := s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		booking, err := s.bookings.FindByID(sessCtx, bookingID)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Booking", bookingID)
			}
			if errors.Is(err, bookingserrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid booking ID format")
			}
			return apperrors.Internal("Failed to load booking", err)
		}
		if booking.Status.IsTerminal() {
			return apperrors.Conflict("Booking is already " + string(booking.Status))
		}

		newPaid := booking.AmountPaid + amount
		if newPaid > booking.GrandTotal {
			newPaid = booking.GrandTotal
		}
		paymentStatus := model.DerivePaymentStatus(newPaid, booking.GrandTotal)

		switch booking.Status {
		case model.BookingHold:
			if _, err := s.bookings.AcceptFromHold(sessCtx, bookingID, newPaid, paymentStatus); err != nil {
				return apperrors.Internal("Failed to accept booking", err)
			}
			event, err := model.NewBookingConfirmedEvent(booking.BusinessID, model.BookingConfirmedPayload{
				BookingID:     booking.ID,
				CustomerName:  booking.CustomerName,
				CustomerEmail: booking.CustomerEmail,
				StartTime:     booking.StartTime,
				EndTime:       booking.EndTime,
				AmountPaid:    newPaid,
				Currency:      booking.Currency,
			})
			if err != nil {
				return apperrors.Internal("Failed to build confirmation event", err)
			}
			if err := s.outbox.Insert(sessCtx, event); err != nil {
				return apperrors.Internal("Failed to queue confirmation event", err)
			}
			if err := s.queueSocialPost(sessCtx, booking); err != nil {
				return err
			}
		case model.BookingAccepted:
			if _, err := s.bookings.UpdatePaymentProgress(sessCtx, bookingID, newPaid, paymentStatus); err != nil {
				return apperrors.Internal("Failed to update payment progress", err)
			}
		}

		event, err := model.NewManualPaymentSubmittedEvent(booking.BusinessID, model.ManualPaymentSubmittedPayload{
			BookingID:   booking.ID,
			Amount:      amount,
			Currency:    booking.Currency,
			Method:      method,
			SubmittedBy: submittedBy,
		})
		if err != nil {
			return apperrors.Internal("Failed to build manual payment event", err)
		}
		if err := s.outbox.Insert(sessCtx, event); err != nil {
			return apperrors.Internal("Failed to queue manual payment event", err)
		}

		updated, err = s.bookings.FindByID(sessCtx, bookingID)
		if err != nil {
			return apperrors.Internal("Failed to reload booking", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to submit manual payment", "booking_id", bookingID, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Manual payment submitted",
		"booking_id", bookingID,
		"amount", amount,
		"method", method,
	)
	return updated, nil
}

// MarkUnitDone completes a service unit and promotes its booking when that
// was the last open unit. Returns whether the booking was completed.
func (s *lifecycleService) MarkUnitDone(ctx context.Context, unitID string) (bool, error) {
	if unitID == "" {
		return false, apperrors.InvalidInput("Unit ID cannot be empty")
	}

	promoted := false
	err := s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		unit, err := s.units.FindByID(sessCtx, unitID)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrUnitNotFound) {
				return apperrors.NotFoundWithID("Service unit", unitID)
			}
			if errors.Is(err, bookingserrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid unit ID format")
			}
			return apperrors.Internal("Failed to load service unit", err)
		}

		modified, err := s.units.CompleteUnit(sessCtx, unitID)
		if err != nil {
			return apperrors.Internal("Failed to complete service unit", err)
		}
		if modified == 0 {
			// Already completed or cancelled, nothing more to do.
			return nil
		}

		open, err := s.units.CountOpenByBooking(sessCtx, unit.BookingID)
		if err != nil {
			return apperrors.Internal("Failed to count open service units", err)
		}
		if open > 0 {
			return nil
		}

		completed, err := s.bookings.CompleteIfAccepted(sessCtx, unit.BookingID)
		if err != nil {
			return apperrors.Internal("Failed to complete booking", err)
		}
		promoted = completed > 0
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to mark service unit done", "unit_id", unitID, "error", err)
		return false, err
	}

	if promoted {
		s.cfg.Log.Info("Booking completed after last unit", "unit_id", unitID)
	}
	return promoted, nil
}

// queueSocialPost drafts an announcement post for a newly accepted booking
// and queues the event that publishes it. Runs in the same transaction as
// the hold-to-accepted transition, so a lost race drafts nothing.
func (s *lifecycleService) queueSocialPost(ctx context.Context, booking *model.Booking) error {
	post := &model.SocialPost{
		BookingID:  booking.ID,
		BusinessID: booking.BusinessID,
		Body:       fmt.Sprintf("%s is booked for %s", booking.CustomerName, booking.StartTime.Format("Jan 2, 15:04")),
		Status:     model.SocialPostDraft,
	}
	if err := s.posts.CreateDraft(ctx, post); err != nil {
		return apperrors.Internal("Failed to draft social post", err)
	}

	event, err := model.NewSocialPostRequestedEvent(booking.BusinessID, model.SocialPostRequestedPayload{
		BookingID: booking.ID,
		PostID:    post.ID,
	})
	if err != nil {
		return apperrors.Internal("Failed to build social post event", err)
	}
	if err := s.outbox.Insert(ctx, event); err != nil {
		return apperrors.Internal("Failed to queue social post event", err)
	}
	return nil
}
