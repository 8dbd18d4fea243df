package repository

import (
	"context"
	"errors"
	"time"

	"bookery/pkg/config"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EventLockRepository provides advisory locks keyed by event id so two
// workers never process the same gateway notification concurrently.
type EventLockRepository interface {
	Create(ctx context.Context, lock *model.EventLock) (*model.EventLock, error)
	Delete(ctx context.Context, lockID string) error
}

type mongoEventLockRepository struct {
	collection *mongo.Collection
}

func NewMongoEventLockRepository(cfg *config.Config) EventLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoEventLockRepository{
		collection: db.Collection("Event_locks"),
	}
}

// Create acquires the lock, returning a duplicate key error when it is held.
// A lock whose holder crashed without releasing it is stolen once its
// expires_at passes, so a wedged event id never blocks redeliveries forever.
func (r *mongoEventLockRepository) Create(ctx context.Context, lock *model.EventLock) (*model.EventLock, error) {
	lock.CreatedAt = time.Now()

	_, insertErr := r.collection.InsertOne(ctx, lock)
	if insertErr == nil {
		return lock, nil
	}
	if !mongo.IsDuplicateKeyError(insertErr) {
		return nil, insertErr
	}

	filter := bson.M{
		"_id":        lock.ID,
		"expires_at": bson.M{"$lt": time.Now()},
	}
	result := r.collection.FindOneAndReplace(ctx, filter, lock)
	if result.Err() != nil {
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			// The holder is still live.
			return nil, insertErr
		}
		return nil, result.Err()
	}

	return lock, nil
}

// Delete removes an advisory lock
func (r *mongoEventLockRepository) Delete(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}
