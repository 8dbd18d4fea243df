package service

import (
	"context"
	"testing"
	"time"

	"bookery/pkg/config"
	mongotx "bookery/pkg/db/mongo"
	"bookery/pkg/logger"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// Mock repositories for testing

type mockBookingRepository struct {
	createFunc                func(ctx context.Context, booking *model.Booking) error
	findByIDFunc              func(ctx context.Context, id string) (*model.Booking, error)
	findExpiredHoldsFunc      func(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
	applyDiscountFunc         func(ctx context.Context, id string, grandTotal int64, totalDiscount int64) (int64, error)
	cancelHoldIfExpiredFunc   func(ctx context.Context, id string, now time.Time) (int64, error)
	cancelFromHoldFunc        func(ctx context.Context, id string) (int64, error)
	acceptFromHoldFunc        func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error)
	updatePaymentProgressFunc func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error)
	completeIfAcceptedFunc    func(ctx context.Context, id string) (int64, error)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.Booking{ID: id}, nil
}

func (m *mockBookingRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	if m.findExpiredHoldsFunc != nil {
		return m.findExpiredHoldsFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockBookingRepository) ApplyDiscount(ctx context.Context, id string, grandTotal int64, totalDiscount int64) (int64, error) {
	if m.applyDiscountFunc != nil {
		return m.applyDiscountFunc(ctx, id, grandTotal, totalDiscount)
	}
	return 1, nil
}

func (m *mockBookingRepository) CancelHoldIfExpired(ctx context.Context, id string, now time.Time) (int64, error) {
	if m.cancelHoldIfExpiredFunc != nil {
		return m.cancelHoldIfExpiredFunc(ctx, id, now)
	}
	return 0, nil
}

func (m *mockBookingRepository) CancelFromHold(ctx context.Context, id string) (int64, error) {
	if m.cancelFromHoldFunc != nil {
		return m.cancelFromHoldFunc(ctx, id)
	}
	return 0, nil
}

func (m *mockBookingRepository) AcceptFromHold(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
	if m.acceptFromHoldFunc != nil {
		return m.acceptFromHoldFunc(ctx, id, amountPaid, paymentStatus)
	}
	return 1, nil
}

func (m *mockBookingRepository) UpdatePaymentProgress(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
	if m.updatePaymentProgressFunc != nil {
		return m.updatePaymentProgressFunc(ctx, id, amountPaid, paymentStatus)
	}
	return 1, nil
}

func (m *mockBookingRepository) CompleteIfAccepted(ctx context.Context, id string) (int64, error) {
	if m.completeIfAcceptedFunc != nil {
		return m.completeIfAcceptedFunc(ctx, id)
	}
	return 0, nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type mockAttemptRepository struct {
	createFunc                         func(ctx context.Context, attempt *model.PaymentAttempt) error
	findByIDFunc                       func(ctx context.Context, id string) (*model.PaymentAttempt, error)
	findByIntentIDFunc                 func(ctx context.Context, intentID string) (*model.PaymentAttempt, error)
	markTerminalIfPendingFunc          func(ctx context.Context, id string, status model.AttemptStatus, reason string) (int64, error)
	markTerminalIfPendingByBookingFunc func(ctx context.Context, bookingID string, status model.AttemptStatus, reason string) (int64, error)
	findPendingOlderThanFunc           func(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentAttempt, error)
	hasPendingForBookingFunc           func(ctx context.Context, bookingID string) (bool, error)
}

func (m *mockAttemptRepository) Create(ctx context.Context, attempt *model.PaymentAttempt) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, attempt)
	}
	return nil
}

func (m *mockAttemptRepository) FindByID(ctx context.Context, id string) (*model.PaymentAttempt, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.PaymentAttempt{ID: id, Status: model.AttemptPending}, nil
}

func (m *mockAttemptRepository) FindByIntentID(ctx context.Context, intentID string) (*model.PaymentAttempt, error) {
	if m.findByIntentIDFunc != nil {
		return m.findByIntentIDFunc(ctx, intentID)
	}
	return &model.PaymentAttempt{IntentID: intentID, Status: model.AttemptPending}, nil
}

func (m *mockAttemptRepository) MarkTerminalIfPending(ctx context.Context, id string, status model.AttemptStatus, reason string) (int64, error) {
	if m.markTerminalIfPendingFunc != nil {
		return m.markTerminalIfPendingFunc(ctx, id, status, reason)
	}
	return 1, nil
}

func (m *mockAttemptRepository) MarkTerminalIfPendingByBooking(ctx context.Context, bookingID string, status model.AttemptStatus, reason string) (int64, error) {
	if m.markTerminalIfPendingByBookingFunc != nil {
		return m.markTerminalIfPendingByBookingFunc(ctx, bookingID, status, reason)
	}
	return 1, nil
}

func (m *mockAttemptRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentAttempt, error) {
	if m.findPendingOlderThanFunc != nil {
		return m.findPendingOlderThanFunc(ctx, cutoff, limit)
	}
	return nil, nil
}

func (m *mockAttemptRepository) HasPendingForBooking(ctx context.Context, bookingID string) (bool, error) {
	if m.hasPendingForBookingFunc != nil {
		return m.hasPendingForBookingFunc(ctx, bookingID)
	}
	return false, nil
}

type mockVoucherRepository struct {
	reserveFunc          func(ctx context.Context, code string, businessID string, bookingID string) (*model.Voucher, error)
	releaseByBookingFunc func(ctx context.Context, bookingID string) (int64, error)
	findByCodeFunc       func(ctx context.Context, code string, businessID string) (*model.Voucher, error)
}

func (m *mockVoucherRepository) Reserve(ctx context.Context, code string, businessID string, bookingID string) (*model.Voucher, error) {
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, code, businessID, bookingID)
	}
	return &model.Voucher{Code: code}, nil
}

func (m *mockVoucherRepository) ReleaseByBooking(ctx context.Context, bookingID string) (int64, error) {
	if m.releaseByBookingFunc != nil {
		return m.releaseByBookingFunc(ctx, bookingID)
	}
	return 0, nil
}

func (m *mockVoucherRepository) FindByCode(ctx context.Context, code string, businessID string) (*model.Voucher, error) {
	if m.findByCodeFunc != nil {
		return m.findByCodeFunc(ctx, code, businessID)
	}
	return &model.Voucher{Code: code}, nil
}

type mockUnitRepository struct {
	createManyFunc          func(ctx context.Context, units []*model.ServiceUnit) error
	findByIDFunc            func(ctx context.Context, unitID string) (*model.ServiceUnit, error)
	findByBookingIDFunc     func(ctx context.Context, bookingID string) ([]*model.ServiceUnit, error)
	countOpenByBookingFunc  func(ctx context.Context, bookingID string) (int64, error)
	completeUnitFunc        func(ctx context.Context, unitID string) (int64, error)
	cancelOpenByBookingFunc func(ctx context.Context, bookingID string) (int64, error)
}

func (m *mockUnitRepository) CreateMany(ctx context.Context, units []*model.ServiceUnit) error {
	if m.createManyFunc != nil {
		return m.createManyFunc(ctx, units)
	}
	return nil
}

func (m *mockUnitRepository) FindByID(ctx context.Context, unitID string) (*model.ServiceUnit, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, unitID)
	}
	return &model.ServiceUnit{ID: unitID, Status: model.UnitScheduled}, nil
}

func (m *mockUnitRepository) FindByBookingID(ctx context.Context, bookingID string) ([]*model.ServiceUnit, error) {
	if m.findByBookingIDFunc != nil {
		return m.findByBookingIDFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *mockUnitRepository) CountOpenByBooking(ctx context.Context, bookingID string) (int64, error) {
	if m.countOpenByBookingFunc != nil {
		return m.countOpenByBookingFunc(ctx, bookingID)
	}
	return 0, nil
}

func (m *mockUnitRepository) CompleteUnit(ctx context.Context, unitID string) (int64, error) {
	if m.completeUnitFunc != nil {
		return m.completeUnitFunc(ctx, unitID)
	}
	return 1, nil
}

func (m *mockUnitRepository) CancelOpenByBooking(ctx context.Context, bookingID string) (int64, error) {
	if m.cancelOpenByBookingFunc != nil {
		return m.cancelOpenByBookingFunc(ctx, bookingID)
	}
	return 0, nil
}

type mockOutboxRepository struct {
	inserted        []*model.OutboxMessage
	insertFunc      func(ctx context.Context, msg *model.OutboxMessage) error
	claimDueFunc    func(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error)
	requeueStaleFn  func(ctx context.Context, claimedBefore time.Time) (int64, error)
	markDeliveredFn func(ctx context.Context, id string) error
	markFailedFn    func(ctx context.Context, id string, lastError string) error
	scheduleRetryFn func(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error
	countByStatusFn func(ctx context.Context, status model.OutboxStatus) (int64, error)
}

func (m *mockOutboxRepository) Insert(ctx context.Context, msg *model.OutboxMessage) error {
	m.inserted = append(m.inserted, msg)
	if m.insertFunc != nil {
		return m.insertFunc(ctx, msg)
	}
	return nil
}

func (m *mockOutboxRepository) ClaimDueBatch(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	if m.claimDueFunc != nil {
		return m.claimDueFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockOutboxRepository) RequeueStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	if m.requeueStaleFn != nil {
		return m.requeueStaleFn(ctx, claimedBefore)
	}
	return 0, nil
}

func (m *mockOutboxRepository) MarkDelivered(ctx context.Context, id string) error {
	if m.markDeliveredFn != nil {
		return m.markDeliveredFn(ctx, id)
	}
	return nil
}

func (m *mockOutboxRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	if m.markFailedFn != nil {
		return m.markFailedFn(ctx, id, lastError)
	}
	return nil
}

func (m *mockOutboxRepository) ScheduleRetry(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	if m.scheduleRetryFn != nil {
		return m.scheduleRetryFn(ctx, id, lastError, nextAttemptAt)
	}
	return nil
}

func (m *mockOutboxRepository) CountByStatus(ctx context.Context, status model.OutboxStatus) (int64, error) {
	if m.countByStatusFn != nil {
		return m.countByStatusFn(ctx, status)
	}
	return 0, nil
}

func (m *mockOutboxRepository) eventTypes() []model.EventType {
	types := make([]model.EventType, 0, len(m.inserted))
	for _, msg := range m.inserted {
		types = append(types, msg.EventType)
	}
	return types
}

type mockSocialPostRepository struct {
	drafts           []*model.SocialPost
	createDraftFunc  func(ctx context.Context, post *model.SocialPost) error
	findByIDFunc     func(ctx context.Context, id string) (*model.SocialPost, error)
	publishIfDraftFn func(ctx context.Context, id string) (int64, error)
}

func (m *mockSocialPostRepository) CreateDraft(ctx context.Context, post *model.SocialPost) error {
	if m.createDraftFunc != nil {
		return m.createDraftFunc(ctx, post)
	}
	post.ID = "64a0000000000000000000aa"
	m.drafts = append(m.drafts, post)
	return nil
}

func (m *mockSocialPostRepository) FindByID(ctx context.Context, id string) (*model.SocialPost, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.SocialPost{ID: id, Status: model.SocialPostDraft}, nil
}

func (m *mockSocialPostRepository) PublishIfDraft(ctx context.Context, id string) (int64, error) {
	if m.publishIfDraftFn != nil {
		return m.publishIfDraftFn(ctx, id)
	}
	return 1, nil
}

func newTestConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:     "error",
			Format:    logger.JSON,
			AddSource: false,
			Service:   "test",
		}),
		ReadTimeout:             5 * time.Second,
		WriteTimeout:            5 * time.Second,
		AmountMismatchTolerance: 1,
	}
}

func newLifecycle(
	bookings *mockBookingRepository,
	attempts *mockAttemptRepository,
	vouchers *mockVoucherRepository,
	units *mockUnitRepository,
	outbox *mockOutboxRepository,
) *lifecycleService {
	return newLifecycleWithPosts(bookings, attempts, vouchers, units, outbox, &mockSocialPostRepository{})
}

func newLifecycleWithPosts(
	bookings *mockBookingRepository,
	attempts *mockAttemptRepository,
	vouchers *mockVoucherRepository,
	units *mockUnitRepository,
	outbox *mockOutboxRepository,
	posts *mockSocialPostRepository,
) *lifecycleService {
	return &lifecycleService{
		bookings: bookings,
		attempts: attempts,
		vouchers: vouchers,
		units:    units,
		outbox:   outbox,
		posts:    posts,
		cfg:      newTestConfig(),
	}
}

const (
	testBookingID = "64a000000000000000000001"
	testAttemptID = "64a000000000000000000002"
	testUnitID    = "64a000000000000000000003"
)

func TestConfirmPayment_PromotesHoldToAccepted(t *testing.T) {
	var acceptedAmount int64
	var acceptedStatus model.PaymentStatus

	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:         testBookingID,
				Status:     model.BookingHold,
				GrandTotal: 5000,
				AmountPaid: 0,
				Currency:   "USD",
			}, nil
		},
		acceptFromHoldFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			acceptedAmount = amountPaid
			acceptedStatus = paymentStatus
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.PaymentAttempt, error) {
			return &model.PaymentAttempt{
				ID:              testAttemptID,
				BookingID:       testBookingID,
				Status:          model.AttemptPending,
				AmountPrincipal: 5000,
				Currency:        "USD",
			}, nil
		},
	}
	outbox := &mockOutboxRepository{}
	posts := &mockSocialPostRepository{}

	svc := newLifecycleWithPosts(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, outbox, posts)

	confirmed, err := svc.ConfirmPayment(context.Background(), testAttemptID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmed {
		t.Fatal("expected payment to be confirmed")
	}
	if acceptedAmount != 5000 {
		t.Errorf("expected amount_paid 5000, got %d", acceptedAmount)
	}
	if acceptedStatus != model.PaymentPaid {
		t.Errorf("expected payment status paid, got %s", acceptedStatus)
	}

	types := outbox.eventTypes()
	if len(types) != 3 {
		t.Fatalf("expected 3 outbox events, got %d: %v", len(types), types)
	}
	if types[0] != model.EventBookingConfirmed || types[1] != model.EventSocialPostRequested || types[2] != model.EventPaymentConfirmed {
		t.Errorf("unexpected event types: %v", types)
	}
	if len(posts.drafts) != 1 {
		t.Fatalf("expected 1 social post draft, got %d", len(posts.drafts))
	}
	if posts.drafts[0].BookingID != testBookingID {
		t.Errorf("draft references booking %s, want %s", posts.drafts[0].BookingID, testBookingID)
	}
}

func TestConfirmPayment_PartialPaymentKeepsAccepted(t *testing.T) {
	var progressAmount int64
	var progressStatus model.PaymentStatus
	acceptCalled := false

	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:         testBookingID,
				Status:     model.BookingAccepted,
				GrandTotal: 5000,
				AmountPaid: 2000,
				Currency:   "USD",
			}, nil
		},
		acceptFromHoldFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			acceptCalled = true
			return 1, nil
		},
		updatePaymentProgressFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			progressAmount = amountPaid
			progressStatus = paymentStatus
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.PaymentAttempt, error) {
			return &model.PaymentAttempt{
				ID:              testAttemptID,
				BookingID:       testBookingID,
				Status:          model.AttemptPending,
				AmountPrincipal: 1000,
				Currency:        "USD",
			}, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, outbox)

	confirmed, err := svc.ConfirmPayment(context.Background(), testAttemptID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmed {
		t.Fatal("expected payment to be confirmed")
	}
	if acceptCalled {
		t.Error("accepted booking must not go through AcceptFromHold again")
	}
	if progressAmount != 3000 {
		t.Errorf("expected amount_paid 3000, got %d", progressAmount)
	}
	if progressStatus != model.PaymentPartiallyPaid {
		t.Errorf("expected payment status partially_paid, got %s", progressStatus)
	}

	types := outbox.eventTypes()
	if len(types) != 1 || types[0] != model.EventPaymentConfirmed {
		t.Errorf("expected only PAYMENT_CONFIRMED, got %v", types)
	}
}

func TestConfirmPayment_OverpaymentClampedToGrandTotal(t *testing.T) {
	var acceptedAmount int64
	var acceptedStatus model.PaymentStatus

	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:         testBookingID,
				Status:     model.BookingHold,
				GrandTotal: 300,
				AmountPaid: 0,
				Currency:   "USD",
			}, nil
		},
		acceptFromHoldFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			acceptedAmount = amountPaid
			acceptedStatus = paymentStatus
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.PaymentAttempt, error) {
			return &model.PaymentAttempt{
				ID:              testAttemptID,
				BookingID:       testBookingID,
				Status:          model.AttemptPending,
				AmountPrincipal: 600,
				Currency:        "USD",
			}, nil
		},
	}

	svc := newLifecycle(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, &mockOutboxRepository{})

	confirmed, err := svc.ConfirmPayment(context.Background(), testAttemptID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmed {
		t.Fatal("expected payment to be confirmed")
	}
	if acceptedAmount != 300 {
		t.Errorf("amount_paid must be clamped to the grand total, got %d", acceptedAmount)
	}
	if acceptedStatus != model.PaymentPaid {
		t.Errorf("expected payment status paid, got %s", acceptedStatus)
	}
}

func TestConfirmPayment_PromotesToCompletedAfterCommit(t *testing.T) {
	completeCalled := false

	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:         testBookingID,
				Status:     model.BookingAccepted,
				GrandTotal: 5000,
				AmountPaid: 4000,
				Currency:   "USD",
			}, nil
		},
		completeIfAcceptedFunc: func(ctx context.Context, id string) (int64, error) {
			if id != testBookingID {
				t.Errorf("expected booking %s, got %s", testBookingID, id)
			}
			completeCalled = true
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.PaymentAttempt, error) {
			return &model.PaymentAttempt{
				ID:              testAttemptID,
				BookingID:       testBookingID,
				Status:          model.AttemptPending,
				AmountPrincipal: 1000,
				Currency:        "USD",
			}, nil
		},
	}
	units := &mockUnitRepository{
		countOpenByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			return 0, nil
		},
	}

	svc := newLifecycle(bookings, attempts, &mockVoucherRepository{}, units, &mockOutboxRepository{})

	confirmed, err := svc.ConfirmPayment(context.Background(), testAttemptID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmed {
		t.Fatal("expected payment to be confirmed")
	}
	if !completeCalled {
		t.Error("a fully serviced booking must complete once the payment lands")
	}
}

func TestConfirmPayment_AlreadyResolvedIsNoOp(t *testing.T) {
	bookingTouched := false

	bookings := &mockBookingRepository{
		acceptFromHoldFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			bookingTouched = true
			return 1, nil
		},
		updatePaymentProgressFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			bookingTouched = true
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		markTerminalIfPendingFunc: func(ctx context.Context, id string, status model.AttemptStatus, reason string) (int64, error) {
			return 0, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, outbox)

	confirmed, err := svc.ConfirmPayment(context.Background(), testAttemptID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed {
		t.Error("replayed confirmation must be a no-op")
	}
	if bookingTouched {
		t.Error("booking must not change on a replayed confirmation")
	}
	if len(outbox.inserted) != 0 {
		t.Errorf("no events expected, got %d", len(outbox.inserted))
	}
}

func TestFailOrCancelPayment_StaleFailureNeverClawsBack(t *testing.T) {
	cancelCalled := false

	bookings := &mockBookingRepository{
		cancelFromHoldFunc: func(ctx context.Context, id string) (int64, error) {
			cancelCalled = true
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		// Attempt already resolved as succeeded by an earlier webhook.
		markTerminalIfPendingFunc: func(ctx context.Context, id string, status model.AttemptStatus, reason string) (int64, error) {
			return 0, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, outbox)

	resolved, err := svc.FailOrCancelPayment(context.Background(), testAttemptID, model.AttemptFailed, model.ReasonPaymentFailed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved {
		t.Error("stale failure must be ignored")
	}
	if cancelCalled {
		t.Error("stale failure must not cancel the booking")
	}
}

func TestFailOrCancelPayment_CancelsHoldAndReleasesVoucher(t *testing.T) {
	voucherReleased := false
	unitsCancelled := false

	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: testBookingID, Status: model.BookingCancelled, BusinessID: "biz"}, nil
		},
		cancelFromHoldFunc: func(ctx context.Context, id string) (int64, error) {
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.PaymentAttempt, error) {
			return &model.PaymentAttempt{ID: testAttemptID, BookingID: testBookingID, Status: model.AttemptPending}, nil
		},
	}
	vouchers := &mockVoucherRepository{
		releaseByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			voucherReleased = true
			return 1, nil
		},
	}
	units := &mockUnitRepository{
		cancelOpenByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			unitsCancelled = true
			return 2, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, attempts, vouchers, units, outbox)

	resolved, err := svc.FailOrCancelPayment(context.Background(), testAttemptID, model.AttemptExpired, model.ReasonPaymentExpired)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved {
		t.Fatal("expected attempt to be resolved")
	}
	if !voucherReleased {
		t.Error("expected voucher release")
	}
	if !unitsCancelled {
		t.Error("expected open units to be cancelled")
	}

	types := outbox.eventTypes()
	if len(types) != 1 || types[0] != model.EventBookingCancelled {
		t.Errorf("expected BOOKING_CANCELLED, got %v", types)
	}

	var payload model.BookingCancelledPayload
	if err := outbox.inserted[0].DecodePayload(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if !payload.VoucherReleased {
		t.Error("payload should report the voucher release")
	}
	if payload.Reason != model.ReasonPaymentExpired {
		t.Errorf("expected reason %s, got %s", model.ReasonPaymentExpired, payload.Reason)
	}
}

func TestFailOrCancelPayment_AcceptedBookingSurvives(t *testing.T) {
	voucherReleased := false

	bookings := &mockBookingRepository{
		// Booking already accepted: the conditional cancel matches nothing.
		cancelFromHoldFunc: func(ctx context.Context, id string) (int64, error) {
			return 0, nil
		},
	}
	vouchers := &mockVoucherRepository{
		releaseByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			voucherReleased = true
			return 1, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, vouchers, &mockUnitRepository{}, outbox)

	resolved, err := svc.FailOrCancelPayment(context.Background(), testAttemptID, model.AttemptFailed, model.ReasonPaymentFailed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved {
		t.Fatal("expected attempt to be resolved")
	}
	if voucherReleased {
		t.Error("voucher must stay consumed when the booking survives")
	}
	if len(outbox.inserted) != 0 {
		t.Errorf("no events expected, got %d", len(outbox.inserted))
	}
}

func TestRecordAttemptMismatch_LeavesBookingUntouched(t *testing.T) {
	var recordedStatus model.AttemptStatus
	var recordedReason string
	bookingTouched := false

	bookings := &mockBookingRepository{
		cancelFromHoldFunc: func(ctx context.Context, id string) (int64, error) {
			bookingTouched = true
			return 1, nil
		},
	}
	attempts := &mockAttemptRepository{
		markTerminalIfPendingFunc: func(ctx context.Context, id string, status model.AttemptStatus, reason string) (int64, error) {
			recordedStatus = status
			recordedReason = reason
			return 1, nil
		},
	}

	svc := newLifecycle(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, &mockOutboxRepository{})

	recorded, err := svc.RecordAttemptMismatch(context.Background(), testAttemptID, model.ReasonAmountMismatch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded {
		t.Fatal("expected mismatch to be recorded")
	}
	if recordedStatus != model.AttemptFailed {
		t.Errorf("expected failed status, got %s", recordedStatus)
	}
	if recordedReason != model.ReasonAmountMismatch {
		t.Errorf("expected reason %s, got %s", model.ReasonAmountMismatch, recordedReason)
	}
	if bookingTouched {
		t.Error("a mismatch must never cancel the booking")
	}
}

func TestCancelExpiredHold_NoOpWhenRaced(t *testing.T) {
	voucherReleased := false

	bookings := &mockBookingRepository{
		cancelHoldIfExpiredFunc: func(ctx context.Context, id string, now time.Time) (int64, error) {
			return 0, nil
		},
	}
	vouchers := &mockVoucherRepository{
		releaseByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			voucherReleased = true
			return 1, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, vouchers, &mockUnitRepository{}, outbox)

	cancelled, err := svc.CancelExpiredHold(context.Background(), testBookingID, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled {
		t.Error("expected no-op when booking was confirmed concurrently")
	}
	if voucherReleased {
		t.Error("voucher must not be released on a lost race")
	}
	if len(outbox.inserted) != 0 {
		t.Errorf("no events expected, got %d", len(outbox.inserted))
	}
}

func TestCancelExpiredHold_ReleasesVoucherAndEmitsEvent(t *testing.T) {
	bookings := &mockBookingRepository{
		cancelHoldIfExpiredFunc: func(ctx context.Context, id string, now time.Time) (int64, error) {
			return 1, nil
		},
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: testBookingID, Status: model.BookingCancelled, BusinessID: "biz"}, nil
		},
	}
	vouchers := &mockVoucherRepository{
		releaseByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			return 1, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, vouchers, &mockUnitRepository{}, outbox)

	cancelled, err := svc.CancelExpiredHold(context.Background(), testBookingID, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled {
		t.Fatal("expected hold to be cancelled")
	}

	types := outbox.eventTypes()
	if len(types) != 1 || types[0] != model.EventBookingCancelled {
		t.Fatalf("expected BOOKING_CANCELLED, got %v", types)
	}

	var payload model.BookingCancelledPayload
	if err := outbox.inserted[0].DecodePayload(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Reason != model.ReasonHoldExpired {
		t.Errorf("expected reason %s, got %s", model.ReasonHoldExpired, payload.Reason)
	}
}

func TestCancelExpiredHold_ExpiresPendingAttempt(t *testing.T) {
	var expiredBookingID string
	var expiredStatus model.AttemptStatus
	var expiredReason string

	bookings := &mockBookingRepository{
		cancelHoldIfExpiredFunc: func(ctx context.Context, id string, now time.Time) (int64, error) {
			return 1, nil
		},
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: testBookingID, Status: model.BookingCancelled, BusinessID: "biz"}, nil
		},
	}
	attempts := &mockAttemptRepository{
		markTerminalIfPendingByBookingFunc: func(ctx context.Context, bookingID string, status model.AttemptStatus, reason string) (int64, error) {
			expiredBookingID = bookingID
			expiredStatus = status
			expiredReason = reason
			return 1, nil
		},
	}

	svc := newLifecycle(bookings, attempts, &mockVoucherRepository{}, &mockUnitRepository{}, &mockOutboxRepository{})

	cancelled, err := svc.CancelExpiredHold(context.Background(), testBookingID, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled {
		t.Fatal("expected hold to be cancelled")
	}
	if expiredBookingID != testBookingID {
		t.Errorf("expected pending attempts of booking %s to be expired, got %q", testBookingID, expiredBookingID)
	}
	if expiredStatus != model.AttemptExpired {
		t.Errorf("expected attempt status expired, got %s", expiredStatus)
	}
	if expiredReason != model.ReasonHoldExpired {
		t.Errorf("expected reason %s, got %s", model.ReasonHoldExpired, expiredReason)
	}
}

func TestPromoteToCompleted_BlockedByOpenUnits(t *testing.T) {
	completeCalled := false

	bookings := &mockBookingRepository{
		completeIfAcceptedFunc: func(ctx context.Context, id string) (int64, error) {
			completeCalled = true
			return 1, nil
		},
	}
	units := &mockUnitRepository{
		countOpenByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			return 2, nil
		},
	}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, units, &mockOutboxRepository{})

	promoted, err := svc.PromoteToCompletedIfEligible(context.Background(), testBookingID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if promoted {
		t.Error("expected promotion to be blocked")
	}
	if completeCalled {
		t.Error("CompleteIfAccepted must not run with open units")
	}
}

func TestPromoteToCompleted_Succeeds(t *testing.T) {
	bookings := &mockBookingRepository{
		completeIfAcceptedFunc: func(ctx context.Context, id string) (int64, error) {
			return 1, nil
		},
	}
	units := &mockUnitRepository{
		countOpenByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			return 0, nil
		},
	}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, units, &mockOutboxRepository{})

	promoted, err := svc.PromoteToCompletedIfEligible(context.Background(), testBookingID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !promoted {
		t.Error("expected booking to be promoted")
	}
}

func TestMarkUnitDone_LastUnitCompletesBooking(t *testing.T) {
	bookings := &mockBookingRepository{
		completeIfAcceptedFunc: func(ctx context.Context, id string) (int64, error) {
			if id != testBookingID {
				t.Errorf("expected booking %s, got %s", testBookingID, id)
			}
			return 1, nil
		},
	}
	units := &mockUnitRepository{
		findByIDFunc: func(ctx context.Context, unitID string) (*model.ServiceUnit, error) {
			return &model.ServiceUnit{ID: unitID, BookingID: testBookingID, Status: model.UnitScheduled}, nil
		},
		countOpenByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			return 0, nil
		},
	}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, units, &mockOutboxRepository{})

	promoted, err := svc.MarkUnitDone(context.Background(), testUnitID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !promoted {
		t.Error("expected booking completion after last unit")
	}
}

func TestMarkUnitDone_AlreadyCompletedIsNoOp(t *testing.T) {
	completeCalled := false

	bookings := &mockBookingRepository{
		completeIfAcceptedFunc: func(ctx context.Context, id string) (int64, error) {
			completeCalled = true
			return 1, nil
		},
	}
	units := &mockUnitRepository{
		completeUnitFunc: func(ctx context.Context, unitID string) (int64, error) {
			return 0, nil
		},
	}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, units, &mockOutboxRepository{})

	promoted, err := svc.MarkUnitDone(context.Background(), testUnitID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if promoted {
		t.Error("replayed completion must be a no-op")
	}
	if completeCalled {
		t.Error("booking must not be touched on a replayed completion")
	}
}

func TestSubmitManualPayment_PartialOnAccepted(t *testing.T) {
	var progressAmount int64

	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:         testBookingID,
				Status:     model.BookingAccepted,
				GrandTotal: 10000,
				AmountPaid: 4000,
				Currency:   "USD",
				BusinessID: "biz",
			}, nil
		},
		updatePaymentProgressFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			progressAmount = amountPaid
			return 1, nil
		},
	}
	outbox := &mockOutboxRepository{}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, &mockUnitRepository{}, outbox)

	booking, err := svc.SubmitManualPayment(context.Background(), testBookingID, 3000, "cash", "reception")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking == nil {
		t.Fatal("expected updated booking")
	}
	if progressAmount != 7000 {
		t.Errorf("expected amount_paid 7000, got %d", progressAmount)
	}

	types := outbox.eventTypes()
	if len(types) != 1 || types[0] != model.EventManualPaymentSubmitted {
		t.Errorf("expected MANUAL_PAYMENT_SUBMITTED, got %v", types)
	}
}

func TestSubmitManualPayment_OverpaymentClamped(t *testing.T) {
	var progressAmount int64
	var progressStatus model.PaymentStatus

	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:         testBookingID,
				Status:     model.BookingAccepted,
				GrandTotal: 300,
				AmountPaid: 0,
				Currency:   "USD",
				BusinessID: "biz",
			}, nil
		},
		updatePaymentProgressFunc: func(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
			progressAmount = amountPaid
			progressStatus = paymentStatus
			return 1, nil
		},
	}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, &mockUnitRepository{}, &mockOutboxRepository{})

	if _, err := svc.SubmitManualPayment(context.Background(), testBookingID, 500, "cash", "reception"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if progressAmount != 300 {
		t.Errorf("amount_paid must be clamped to the grand total, got %d", progressAmount)
	}
	if progressStatus != model.PaymentPaid {
		t.Errorf("expected payment status paid, got %s", progressStatus)
	}
}

func TestSubmitManualPayment_RejectsTerminalBooking(t *testing.T) {
	bookings := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: testBookingID, Status: model.BookingCancelled}, nil
		},
	}

	svc := newLifecycle(bookings, &mockAttemptRepository{}, &mockVoucherRepository{}, &mockUnitRepository{}, &mockOutboxRepository{})

	if _, err := svc.SubmitManualPayment(context.Background(), testBookingID, 3000, "cash", ""); err == nil {
		t.Fatal("expected error for cancelled booking")
	}
}

func TestSubmitManualPayment_RejectsBadInput(t *testing.T) {
	svc := newLifecycle(&mockBookingRepository{}, &mockAttemptRepository{}, &mockVoucherRepository{}, &mockUnitRepository{}, &mockOutboxRepository{})

	if _, err := svc.SubmitManualPayment(context.Background(), testBookingID, 0, "cash", ""); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
	if _, err := svc.SubmitManualPayment(context.Background(), testBookingID, 100, "", ""); err == nil {
		t.Fatal("expected error for missing method")
	}
}
