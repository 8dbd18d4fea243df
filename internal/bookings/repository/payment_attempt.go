package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "bookery/internal/bookings/errors"
	"bookery/pkg/config"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AttemptCollectionName = "Payment_attempts"

type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt *model.PaymentAttempt) error
	FindByID(ctx context.Context, id string) (*model.PaymentAttempt, error)
	FindByIntentID(ctx context.Context, intentID string) (*model.PaymentAttempt, error)
	MarkTerminalIfPending(ctx context.Context, id string, status model.AttemptStatus, reason string) (int64, error)
	MarkTerminalIfPendingByBooking(ctx context.Context, bookingID string, status model.AttemptStatus, reason string) (int64, error)
	FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentAttempt, error)
	HasPendingForBooking(ctx context.Context, bookingID string) (bool, error)
}

type mongoPaymentAttemptRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoPaymentAttemptRepository(cfg *config.Config) PaymentAttemptRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoPaymentAttemptRepository{
		cfg:        cfg,
		collection: db.Collection(AttemptCollectionName),
	}
}

func (r *mongoPaymentAttemptRepository) Create(ctx context.Context, attempt *model.PaymentAttempt) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	attempt.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, attempt)
	if err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		attempt.ID = oid.Hex()
	}
	return nil
}

func (r *mongoPaymentAttemptRepository) FindByID(ctx context.Context, id string) (*model.PaymentAttempt, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var attempt model.PaymentAttempt
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&attempt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to find payment attempt: %w", err)
	}

	return &attempt, nil
}

func (r *mongoPaymentAttemptRepository) FindByIntentID(ctx context.Context, intentID string) (*model.PaymentAttempt, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var attempt model.PaymentAttempt
	err := r.collection.FindOne(ctx, bson.M{"intent_id": intentID}).Decode(&attempt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to find payment attempt by intent: %w", err)
	}

	return &attempt, nil
}

// MarkTerminalIfPending resolves a pending attempt into the given terminal
// status. Zero modified count means the attempt was already resolved, which
// callers treat as "someone else got here first".
func (r *mongoPaymentAttemptRepository) MarkTerminalIfPending(ctx context.Context, id string, status model.AttemptStatus, reason string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if !status.IsTerminal() {
		return 0, fmt.Errorf("attempt status %q is not terminal", status)
	}

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	set := bson.M{
		"status":      status,
		"resolved_at": time.Now().UTC(),
	}
	if reason != "" {
		set["failure_reason"] = reason
	}

	filter := bson.M{
		"_id":    objectID,
		"status": model.AttemptPending,
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve payment attempt: %w", err)
	}

	return result.ModifiedCount, nil
}

// MarkTerminalIfPendingByBooking resolves every pending attempt of a booking
// into the given terminal status. Used when a booking is cancelled, so no
// orphaned attempt keeps the reconciler polling a dead intent.
func (r *mongoPaymentAttemptRepository) MarkTerminalIfPendingByBooking(ctx context.Context, bookingID string, status model.AttemptStatus, reason string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if !status.IsTerminal() {
		return 0, fmt.Errorf("attempt status %q is not terminal", status)
	}

	set := bson.M{
		"status":      status,
		"resolved_at": time.Now().UTC(),
	}
	if reason != "" {
		set["failure_reason"] = reason
	}

	filter := bson.M{
		"booking_id": bookingID,
		"status":     model.AttemptPending,
	}

	result, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve booking attempts: %w", err)
	}

	return result.ModifiedCount, nil
}

// FindPendingOlderThan returns pending attempts created before the cutoff,
// oldest first. Used by the reconciliation sweep.
func (r *mongoPaymentAttemptRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentAttempt, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.AttemptPending,
		"created_at": bson.M{"$lt": cutoff},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []*model.PaymentAttempt
	if err = cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode pending attempts: %w", err)
	}

	return attempts, nil
}

func (r *mongoPaymentAttemptRepository) HasPendingForBooking(ctx context.Context, bookingID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"booking_id": bookingID,
		"status":     model.AttemptPending,
	})
	if err != nil {
		return false, fmt.Errorf("failed to count pending attempts: %w", err)
	}

	return count > 0, nil
}
