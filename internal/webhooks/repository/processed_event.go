package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookery/pkg/config"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const ProcessedCollectionName = "Processed_events"

type ProcessedEventRepository interface {
	Record(ctx context.Context, event *model.ProcessedEvent) error
	FindByEventID(ctx context.Context, eventID string) (*model.ProcessedEvent, error)
}

var ErrEventNotFound = errors.New("processed event not found")

type mongoProcessedEventRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoProcessedEventRepository(cfg *config.Config) ProcessedEventRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoProcessedEventRepository{
		cfg:        cfg,
		collection: db.Collection(ProcessedCollectionName),
	}
}

// Record inserts the audit row for an inbound event. The event id is the
// document id; a duplicate key error surfaces to the caller, which treats it
// as "already processed".
func (r *mongoProcessedEventRepository) Record(ctx context.Context, event *model.ProcessedEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	event.ProcessedAt = time.Now().UTC()
	_, err := r.collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	return nil
}

func (r *mongoProcessedEventRepository) FindByEventID(ctx context.Context, eventID string) (*model.ProcessedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var event model.ProcessedEvent
	err := r.collection.FindOne(ctx, bson.M{"_id": eventID}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to find processed event: %w", err)
	}

	return &event, nil
}
