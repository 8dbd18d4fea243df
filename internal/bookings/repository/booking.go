package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "bookery/internal/bookings/errors"
	"bookery/pkg/config"
	mongotx "bookery/pkg/db/mongo"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
	ApplyDiscount(ctx context.Context, id string, grandTotal int64, totalDiscount int64) (int64, error)
	CancelHoldIfExpired(ctx context.Context, id string, now time.Time) (int64, error)
	CancelFromHold(ctx context.Context, id string) (int64, error)
	AcceptFromHold(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error)
	UpdatePaymentProgress(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error)
	CompleteIfAccepted(ctx context.Context, id string) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// When inside a transaction (SessionContext), returns the original context unchanged
// with a no-op cancel function, as we cannot wrap SessionContext without breaking
// transaction semantics.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		// Inside transaction - cannot wrap SessionContext, return no-op cancel
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}

	var booking model.Booking
	err = r.collection.FindOne(ctx, filter).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

// ApplyDiscount stamps voucher pricing onto a booking during checkout.
func (r *mongoBookingRepository) ApplyDiscount(ctx context.Context, id string, grandTotal int64, totalDiscount int64) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"grand_total":    grandTotal,
			"total_discount": totalDiscount,
			"updated_at":     time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID, "status": model.BookingHold}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to apply discount: %w", err)
	}

	return result.ModifiedCount, nil
}

// FindExpiredHolds returns hold bookings whose hold deadline passed before now,
// oldest deadline first.
func (r *mongoBookingRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":          model.BookingHold,
		"hold_expires_at": bson.M{"$lte": now},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "hold_expires_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode expired holds: %w", err)
	}

	return bookings, nil
}

// CancelHoldIfExpired cancels a hold booking only when its deadline has passed.
// Returns the number of documents modified; zero means the booking was already
// moved on by a concurrent writer (confirmed, cancelled) or is still live.
func (r *mongoBookingRepository) CancelHoldIfExpired(ctx context.Context, id string, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":             objectID,
		"status":          model.BookingHold,
		"hold_expires_at": bson.M{"$lte": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     model.BookingCancelled,
			"updated_at": time.Now().UTC(),
		},
		"$unset": bson.M{"hold_expires_at": ""},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel expired hold: %w", err)
	}

	return result.ModifiedCount, nil
}

// CancelFromHold cancels a booking only while it is still on hold, regardless
// of the hold deadline.
func (r *mongoBookingRepository) CancelFromHold(ctx context.Context, id string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": model.BookingHold,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     model.BookingCancelled,
			"updated_at": time.Now().UTC(),
		},
		"$unset": bson.M{"hold_expires_at": ""},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel booking: %w", err)
	}

	return result.ModifiedCount, nil
}

// AcceptFromHold promotes a hold booking to accepted, clearing the hold
// deadline and recording the collected amount.
func (r *mongoBookingRepository) AcceptFromHold(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": model.BookingHold,
	}
	update := bson.M{
		"$set": bson.M{
			"status":         model.BookingAccepted,
			"amount_paid":    amountPaid,
			"payment_status": paymentStatus,
			"updated_at":     time.Now().UTC(),
		},
		"$unset": bson.M{"hold_expires_at": ""},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to accept booking: %w", err)
	}

	return result.ModifiedCount, nil
}

// UpdatePaymentProgress records an additional payment against an already
// accepted booking.
func (r *mongoBookingRepository) UpdatePaymentProgress(ctx context.Context, id string, amountPaid int64, paymentStatus model.PaymentStatus) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": model.BookingAccepted,
	}
	update := bson.M{
		"$set": bson.M{
			"amount_paid":    amountPaid,
			"payment_status": paymentStatus,
			"updated_at":     time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update payment progress: %w", err)
	}

	return result.ModifiedCount, nil
}

// CompleteIfAccepted promotes an accepted booking to completed. Callers gate
// on all service units being done; the filter only guards the state edge.
func (r *mongoBookingRepository) CompleteIfAccepted(ctx context.Context, id string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": model.BookingAccepted,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     model.BookingCompleted,
			"updated_at": time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to complete booking: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
