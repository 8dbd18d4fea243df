package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bookingserrors "bookery/internal/bookings/errors"
	"bookery/internal/bookings/validator"
	"bookery/pkg/client"
	apperrors "bookery/pkg/errors"
	"bookery/pkg/model"
)

const testBusinessID = "64a000000000000000000010"

func validCheckoutRequest() *model.CheckoutRequest {
	start := time.Now().Add(24 * time.Hour)
	return &model.CheckoutRequest{
		BusinessID:   testBusinessID,
		CustomerName: "Dana Levi",
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Currency:     "USD",
		Units: []model.CheckoutUnit{
			{Label: "Haircut", Price: 3000},
			{Label: "Color", Price: 2000},
		},
	}
}

// intentStub answers intent creation with a fixed id.
func intentStub(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"id":"pi_new","attributes":{"status":"awaiting_payment_method","amount":5000,"currency":"USD"}}}`)
	}))
	return server, &calls
}

func newCheckout(
	bookings *mockBookingRepository,
	attempts *mockAttemptRepository,
	vouchers *mockVoucherRepository,
	units *mockUnitRepository,
	gatewayURL string,
) *checkoutService {
	cfg := newTestConfig()
	cfg.HoldTTL = 15 * time.Minute
	return &checkoutService{
		bookings:  bookings,
		attempts:  attempts,
		vouchers:  vouchers,
		units:     units,
		gateway:   client.NewGatewayClient(gatewayURL, "sk_test", 5*time.Second),
		validator: validator.NewCheckoutValidator(cfg.Log),
		cfg:       cfg,
	}
}

func TestCheckout_OpensHoldWithAttempt(t *testing.T) {
	server, calls := intentStub(t)
	defer server.Close()

	var createdBooking *model.Booking
	bookings := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			booking.ID = testBookingID
			createdBooking = booking
			return nil
		},
	}
	var createdUnits []*model.ServiceUnit
	units := &mockUnitRepository{
		createManyFunc: func(ctx context.Context, batch []*model.ServiceUnit) error {
			createdUnits = batch
			return nil
		},
	}
	var createdAttempt *model.PaymentAttempt
	attempts := &mockAttemptRepository{
		createFunc: func(ctx context.Context, attempt *model.PaymentAttempt) error {
			createdAttempt = attempt
			return nil
		},
	}

	svc := newCheckout(bookings, attempts, &mockVoucherRepository{}, units, server.URL)

	result, err := svc.Checkout(context.Background(), validCheckoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if createdBooking == nil || createdBooking.Status != model.BookingHold {
		t.Fatal("expected a hold booking")
	}
	if createdBooking.HoldExpiresAt == nil || !createdBooking.HoldExpiresAt.After(time.Now()) {
		t.Error("hold deadline must be in the future")
	}
	if createdBooking.GrandTotal != 5000 {
		t.Errorf("expected grand total 5000, got %d", createdBooking.GrandTotal)
	}
	if len(createdUnits) != 2 {
		t.Errorf("expected 2 service units, got %d", len(createdUnits))
	}
	for _, unit := range createdUnits {
		if unit.Status != model.UnitScheduled || unit.BookingID != testBookingID {
			t.Errorf("unexpected unit: %+v", unit)
		}
	}
	if *calls != 1 {
		t.Errorf("expected 1 gateway call, got %d", *calls)
	}
	if createdAttempt == nil || createdAttempt.Status != model.AttemptPending {
		t.Fatal("expected a pending payment attempt")
	}
	if createdAttempt.IntentID != "pi_new" || result.IntentID != "pi_new" {
		t.Errorf("expected intent id pi_new, got %q / %q", createdAttempt.IntentID, result.IntentID)
	}
	if createdAttempt.AmountCharged != 5000 {
		t.Errorf("expected attempt amount 5000, got %d", createdAttempt.AmountCharged)
	}
}

func TestCheckout_VoucherDiscountApplied(t *testing.T) {
	server, _ := intentStub(t)
	defer server.Close()

	bookings := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			booking.ID = testBookingID
			return nil
		},
	}
	vouchers := &mockVoucherRepository{
		reserveFunc: func(ctx context.Context, code string, businessID string, bookingID string) (*model.Voucher, error) {
			return &model.Voucher{
				Code:          code,
				BusinessID:    businessID,
				DiscountType:  model.DiscountPercent,
				DiscountValue: 20,
			}, nil
		},
	}
	var discountedTotal, discount int64
	bookings.applyDiscountFunc = func(ctx context.Context, id string, grandTotal int64, totalDiscount int64) (int64, error) {
		discountedTotal = grandTotal
		discount = totalDiscount
		return 1, nil
	}

	svc := newCheckout(bookings, &mockAttemptRepository{}, vouchers, &mockUnitRepository{}, server.URL)

	req := validCheckoutRequest()
	req.VoucherCode = "SAVE20"

	result, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discount != 1000 || discountedTotal != 4000 {
		t.Errorf("expected 20%% off 5000 (discount 1000, total 4000), got discount %d total %d", discount, discountedTotal)
	}
	if result.Booking.GrandTotal != 4000 {
		t.Errorf("expected booking total 4000, got %d", result.Booking.GrandTotal)
	}
}

func TestCheckout_FullDiscountSkipsGateway(t *testing.T) {
	server, calls := intentStub(t)
	defer server.Close()

	bookings := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			booking.ID = testBookingID
			return nil
		},
	}
	vouchers := &mockVoucherRepository{
		reserveFunc: func(ctx context.Context, code string, businessID string, bookingID string) (*model.Voucher, error) {
			return &model.Voucher{
				Code:          code,
				DiscountType:  model.DiscountFixed,
				DiscountValue: 9999999,
			}, nil
		},
	}
	attemptCreated := false
	attempts := &mockAttemptRepository{
		createFunc: func(ctx context.Context, attempt *model.PaymentAttempt) error {
			attemptCreated = true
			return nil
		},
	}

	svc := newCheckout(bookings, attempts, vouchers, &mockUnitRepository{}, server.URL)

	req := validCheckoutRequest()
	req.VoucherCode = "FREEBIE"

	result, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Booking.GrandTotal != 0 {
		t.Errorf("fixed discount caps at the subtotal, got total %d", result.Booking.GrandTotal)
	}
	if *calls != 0 {
		t.Error("free booking must not open a payment intent")
	}
	if attemptCreated || result.Attempt != nil {
		t.Error("free booking must not create a payment attempt")
	}
}

func TestCheckout_PendingAttemptConflicts(t *testing.T) {
	server, calls := intentStub(t)
	defer server.Close()

	bookings := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			booking.ID = testBookingID
			return nil
		},
	}
	attempts := &mockAttemptRepository{
		hasPendingForBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			return true, nil
		},
	}

	svc := newCheckout(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, server.URL)

	_, err := svc.Checkout(context.Background(), validCheckoutRequest())
	if err == nil {
		t.Fatal("expected conflict when a pending attempt already exists")
	}
	appErr := &apperrors.AppError{}
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected conflict error, got %v", err)
	}
	if *calls != 0 {
		t.Error("a second payment intent must not be opened")
	}
}

func TestCheckout_VoucherUnavailableConflicts(t *testing.T) {
	server, _ := intentStub(t)
	defer server.Close()

	bookings := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			booking.ID = testBookingID
			return nil
		},
	}
	vouchers := &mockVoucherRepository{
		reserveFunc: func(ctx context.Context, code string, businessID string, bookingID string) (*model.Voucher, error) {
			return nil, bookingserrors.ErrVoucherUnavailable
		},
	}

	svc := newCheckout(bookings, &mockAttemptRepository{}, vouchers, &mockUnitRepository{}, server.URL)

	req := validCheckoutRequest()
	req.VoucherCode = "TAKEN"

	_, err := svc.Checkout(context.Background(), req)
	if err == nil {
		t.Fatal("expected conflict for a consumed voucher")
	}
	appErr := &apperrors.AppError{}
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected conflict error, got %v", err)
	}
}

func TestCheckout_ValidationRejectsBadRequest(t *testing.T) {
	svc := newCheckout(&mockBookingRepository{}, &mockAttemptRepository{}, &mockVoucherRepository{}, &mockUnitRepository{}, "http://gateway.invalid")

	cases := []struct {
		name   string
		mutate func(req *model.CheckoutRequest)
	}{
		{"missing business", func(req *model.CheckoutRequest) { req.BusinessID = "" }},
		{"bad currency", func(req *model.CheckoutRequest) { req.Currency = "DOLLARS" }},
		{"no units", func(req *model.CheckoutRequest) { req.Units = nil }},
		{"end before start", func(req *model.CheckoutRequest) { req.EndTime = req.StartTime.Add(-time.Hour) }},
		{"start in the past", func(req *model.CheckoutRequest) {
			req.StartTime = time.Now().Add(-time.Hour)
			req.EndTime = time.Now().Add(time.Hour)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCheckoutRequest()
			tc.mutate(req)

			_, err := svc.Checkout(context.Background(), req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			appErr := &apperrors.AppError{}
			if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return nil, bookingserrors.ErrNotFound
		},
	}

	svc := newCheckout(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, &mockUnitRepository{}, "http://gateway.invalid")

	_, err := svc.GetBooking(context.Background(), testBookingID)
	if err == nil {
		t.Fatal("expected not found error")
	}
	appErr := &apperrors.AppError{}
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeNotFound {
		t.Errorf("expected not found error, got %v", err)
	}
}
