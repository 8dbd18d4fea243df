package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "bookery/internal/bookings/errors"
	"bookery/internal/bookings/repository"
	"bookery/internal/bookings/validator"
	"bookery/pkg/client"
	"bookery/pkg/config"
	apperrors "bookery/pkg/errors"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// CheckoutService opens bookings. A checkout produces a hold booking with a
// deadline, its service units, an optional voucher reservation and a single
// pending payment attempt backed by a gateway intent.
type CheckoutService interface {
	Checkout(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResult, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
}

type checkoutService struct {
	bookings  repository.BookingRepository
	attempts  repository.PaymentAttemptRepository
	vouchers  repository.VoucherRepository
	units     repository.ServiceUnitRepository
	gateway   *client.GatewayClient
	validator *validator.CheckoutValidator
	cfg       *config.Config
}

func NewCheckoutService(
	bookings repository.BookingRepository,
	attempts repository.PaymentAttemptRepository,
	vouchers repository.VoucherRepository,
	units repository.ServiceUnitRepository,
	gateway *client.GatewayClient,
	checkoutValidator *validator.CheckoutValidator,
	cfg *config.Config,
) CheckoutService {
	return &checkoutService{
		bookings:  bookings,
		attempts:  attempts,
		vouchers:  vouchers,
		units:     units,
		gateway:   gateway,
		validator: checkoutValidator,
		cfg:       cfg,
	}
}

func (s *checkoutService) Checkout(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResult, error) {
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Checkout validation failed", "error", err)
		return nil, apperrors.Validation("Invalid checkout request", map[string]any{"error": err.Error()})
	}

	var subtotal int64
	for _, unit := range req.Units {
		subtotal += unit.Price
	}

	// The gateway call stays outside the transaction: it is slow, remote and
	// has its own idempotency via the intent id we store.
	var result *model.CheckoutResult
	err := s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		holdExpiresAt := time.Now().UTC().Add(s.cfg.HoldTTL)
		booking := &model.Booking{
			BusinessID:    req.BusinessID,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
			Status:        model.BookingHold,
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			HoldExpiresAt: &holdExpiresAt,
			GrandTotal:    subtotal,
			Currency:      req.Currency,
			PaymentStatus: model.PaymentUnpaid,
			VoucherCode:   req.VoucherCode,
		}

		if err := s.bookings.Create(sessCtx, booking); err != nil {
			return apperrors.Internal("Failed to create booking", err)
		}

		if req.VoucherCode != "" {
			voucher, err := s.vouchers.Reserve(sessCtx, req.VoucherCode, req.BusinessID, booking.ID)
			if err != nil {
				if errors.Is(err, bookingserrors.ErrVoucherUnavailable) {
					return apperrors.Conflict("Voucher is not available")
				}
				return apperrors.Internal("Failed to reserve voucher", err)
			}
			booking.TotalDiscount = discountFor(voucher, subtotal)
			booking.GrandTotal = subtotal - booking.TotalDiscount
			if booking.GrandTotal < 0 {
				booking.GrandTotal = 0
			}
			if _, err := s.bookings.ApplyDiscount(sessCtx, booking.ID, booking.GrandTotal, booking.TotalDiscount); err != nil {
				return apperrors.Internal("Failed to apply voucher discount", err)
			}
		}

		units := make([]*model.ServiceUnit, 0, len(req.Units))
		for _, u := range req.Units {
			units = append(units, &model.ServiceUnit{
				BookingID:  booking.ID,
				BusinessID: req.BusinessID,
				Label:      u.Label,
				Status:     model.UnitScheduled,
			})
		}
		if err := s.units.CreateMany(sessCtx, units); err != nil {
			return apperrors.Internal("Failed to create service units", err)
		}

		result = &model.CheckoutResult{Booking: booking}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Checkout failed", "business_id", req.BusinessID, "error", err)
		return nil, err
	}

	booking := result.Booking

	if booking.GrandTotal > 0 {
		// At most one pending attempt per booking; a second intent would let
		// the customer be charged twice for the same hold.
		hasPending, err := s.attempts.HasPendingForBooking(ctx, booking.ID)
		if err != nil {
			return nil, apperrors.Internal("Failed to check pending attempts", err)
		}
		if hasPending {
			return nil, apperrors.Conflict("Booking already has a pending payment attempt")
		}

		intent, err := s.gateway.CreatePaymentIntent(ctx, booking.GrandTotal, booking.Currency,
			fmt.Sprintf("booking %s", booking.ID))
		if err != nil {
			s.cfg.Log.Error("Failed to open payment intent", "booking_id", booking.ID, "error", err)
			return nil, apperrors.Unavailable("Payment gateway")
		}

		attempt := &model.PaymentAttempt{
			BookingID:       booking.ID,
			BusinessID:      booking.BusinessID,
			Status:          model.AttemptPending,
			AmountCharged:   booking.GrandTotal,
			AmountPrincipal: booking.GrandTotal,
			Currency:        booking.Currency,
			IntentID:        intent.ID,
			ExpiresAt:       time.Now().UTC().Add(s.cfg.HoldTTL),
		}
		if err := s.attempts.Create(ctx, attempt); err != nil {
			return nil, apperrors.Internal("Failed to create payment attempt", err)
		}
		result.Attempt = attempt
		result.IntentID = intent.ID
	}

	s.cfg.Log.Info("Checkout opened",
		"booking_id", booking.ID,
		"business_id", booking.BusinessID,
		"grand_total", booking.GrandTotal,
		"currency", booking.Currency,
		"intent_id", result.IntentID,
	)
	return result, nil
}

func (s *checkoutService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return booking, nil
}

func discountFor(voucher *model.Voucher, subtotal int64) int64 {
	switch voucher.DiscountType {
	case model.DiscountPercent:
		if voucher.DiscountValue > 100 {
			return subtotal
		}
		return subtotal * voucher.DiscountValue / 100
	default:
		if voucher.DiscountValue > subtotal {
			return subtotal
		}
		return voucher.DiscountValue
	}
}
