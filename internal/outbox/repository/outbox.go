package repository

import (
	"context"
	"fmt"
	"time"

	"bookery/pkg/config"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Outbox"

type OutboxRepository interface {
	Insert(ctx context.Context, msg *model.OutboxMessage) error
	ClaimDueBatch(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error)
	RequeueStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	ScheduleRetry(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error
	CountByStatus(ctx context.Context, status model.OutboxStatus) (int64, error)
}

type mongoOutboxRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoOutboxRepository(cfg *config.Config) OutboxRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoOutboxRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// Insert is routinely called with a SessionContext so the message commits with
// the state change that produced it.
func (r *mongoOutboxRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
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

func (r *mongoOutboxRepository) Insert(ctx context.Context, msg *model.OutboxMessage) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}
	return nil
}

// ClaimDueBatch atomically moves due pending messages to processing and
// returns them. Each message is claimed by at most one dispatcher because the
// findAndModify filter requires status pending.
func (r *mongoOutboxRepository) ClaimDueBatch(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	claimed := make([]*model.OutboxMessage, 0, limit)
	for i := 0; i < limit; i++ {
		filter := bson.M{
			"status":          model.OutboxPending,
			"next_attempt_at": bson.M{"$lte": now},
		}
		update := bson.M{
			"$set": bson.M{"status": model.OutboxProcessing, "claimed_at": now},
			"$inc": bson.M{"attempts": 1},
		}
		opts := options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetReturnDocument(options.After)

		var msg model.OutboxMessage
		err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				break
			}
			return claimed, fmt.Errorf("failed to claim outbox message: %w", err)
		}
		claimed = append(claimed, &msg)
	}

	return claimed, nil
}

// RequeueStale returns processing messages claimed before the cutoff to
// pending. A dispatcher that crashes between claiming and recording the
// outcome leaves its rows in processing; this makes a later cycle retry them.
func (r *mongoOutboxRepository) RequeueStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.OutboxProcessing,
		"claimed_at": bson.M{"$lt": claimedBefore},
	}
	update := bson.M{
		"$set": bson.M{
			"status":          model.OutboxPending,
			"next_attempt_at": time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale outbox messages: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoOutboxRepository) MarkDelivered(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":       model.OutboxDelivered,
			"delivered_at": now,
		},
		"$unset": bson.M{"last_error": ""},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message delivered: %w", err)
	}
	return nil
}

func (r *mongoOutboxRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":     model.OutboxFailed,
			"last_error": lastError,
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message failed: %w", err)
	}
	return nil
}

// ScheduleRetry returns a processing message to pending with a future due
// time so a later poll picks it up again.
func (r *mongoOutboxRepository) ScheduleRetry(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":          model.OutboxPending,
			"last_error":      lastError,
			"next_attempt_at": nextAttemptAt,
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to schedule outbox retry: %w", err)
	}
	return nil
}

func (r *mongoOutboxRepository) CountByStatus(ctx context.Context, status model.OutboxStatus) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox messages: %w", err)
	}
	return count, nil
}
