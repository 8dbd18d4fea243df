package service

import (
	"context"
	"time"

	bookingsrepo "bookery/internal/bookings/repository"
	bookingssvc "bookery/internal/bookings/service"
	"bookery/pkg/config"
	apperrors "bookery/pkg/errors"
)

// Result tallies one hold-expiry sweep.
type Result struct {
	Success     bool      `json:"success"`
	Scanned     int       `json:"scanned"`
	Expired     int       `json:"expired"`
	Errors      int       `json:"errors"`
	ProcessedAt time.Time `json:"processedAt"`
}

// ExpireService sweeps hold bookings past their deadline and cancels them
// one by one through the lifecycle service, so each expiry gets its own
// transaction, voucher release and cancellation event.
type ExpireService interface {
	ExpireHolds(ctx context.Context) (*Result, error)
}

type expireService struct {
	bookings  bookingsrepo.BookingRepository
	lifecycle bookingssvc.LifecycleService
	cfg       *config.Config
}

func NewExpireService(
	bookings bookingsrepo.BookingRepository,
	lifecycle bookingssvc.LifecycleService,
	cfg *config.Config,
) ExpireService {
	return &expireService{
		bookings:  bookings,
		lifecycle: lifecycle,
		cfg:       cfg,
	}
}

func (s *expireService) ExpireHolds(ctx context.Context) (*Result, error) {
	now := time.Now().UTC()
	result := &Result{ProcessedAt: now}

	holds, err := s.bookings.FindExpiredHolds(ctx, now, s.cfg.HoldSweepLimit)
	if err != nil {
		return nil, apperrors.Internal("Failed to list expired holds", err)
	}

	for _, booking := range holds {
		result.Scanned++
		cancelled, err := s.lifecycle.CancelExpiredHold(ctx, booking.ID, now)
		if err != nil {
			result.Errors++
			s.cfg.Log.Warn("Failed to expire hold", "booking_id", booking.ID, "error", err)
			continue
		}
		if cancelled {
			result.Expired++
		}
	}

	result.Success = result.Errors == 0
	s.cfg.Log.Info("Hold expiry sweep finished",
		"scanned", result.Scanned,
		"expired", result.Expired,
		"errors", result.Errors,
	)
	return result, nil
}
