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
)

const UnitCollectionName = "Service_units"

type ServiceUnitRepository interface {
	CreateMany(ctx context.Context, units []*model.ServiceUnit) error
	FindByID(ctx context.Context, unitID string) (*model.ServiceUnit, error)
	FindByBookingID(ctx context.Context, bookingID string) ([]*model.ServiceUnit, error)
	CountOpenByBooking(ctx context.Context, bookingID string) (int64, error)
	CompleteUnit(ctx context.Context, unitID string) (int64, error)
	CancelOpenByBooking(ctx context.Context, bookingID string) (int64, error)
}

type mongoServiceUnitRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoServiceUnitRepository(cfg *config.Config) ServiceUnitRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoServiceUnitRepository{
		cfg:        cfg,
		collection: db.Collection(UnitCollectionName),
	}
}

func (r *mongoServiceUnitRepository) CreateMany(ctx context.Context, units []*model.ServiceUnit) error {
	if len(units) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]interface{}, 0, len(units))
	for _, unit := range units {
		unit.CreatedAt = now
		docs = append(docs, unit)
	}

	result, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to create service units: %w", err)
	}

	for i, insertedID := range result.InsertedIDs {
		if oid, ok := insertedID.(primitive.ObjectID); ok {
			units[i].ID = oid.Hex()
		}
	}
	return nil
}

func (r *mongoServiceUnitRepository) FindByID(ctx context.Context, unitID string) (*model.ServiceUnit, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(unitID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, unitID)
	}

	var unit model.ServiceUnit
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&unit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to find service unit: %w", err)
	}

	return &unit, nil
}

func (r *mongoServiceUnitRepository) FindByBookingID(ctx context.Context, bookingID string) ([]*model.ServiceUnit, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to find service units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []*model.ServiceUnit
	if err = cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode service units: %w", err)
	}

	return units, nil
}

// CountOpenByBooking counts units still scheduled. Zero open units makes the
// booking eligible for completion.
func (r *mongoServiceUnitRepository) CountOpenByBooking(ctx context.Context, bookingID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"booking_id": bookingID,
		"status":     model.UnitScheduled,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count open service units: %w", err)
	}

	return count, nil
}

// CompleteUnit marks a scheduled unit completed. Zero modified count means
// the unit was already completed or cancelled.
func (r *mongoServiceUnitRepository) CompleteUnit(ctx context.Context, unitID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(unitID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, unitID)
	}

	now := time.Now().UTC()
	filter := bson.M{
		"_id":    objectID,
		"status": model.UnitScheduled,
	}
	update := bson.M{
		"$set": bson.M{
			"status":       model.UnitCompleted,
			"completed_at": now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to complete service unit: %w", err)
	}

	return result.ModifiedCount, nil
}

// CancelOpenByBooking cancels every still-scheduled unit of a booking, used
// when the booking itself is cancelled.
func (r *mongoServiceUnitRepository) CancelOpenByBooking(ctx context.Context, bookingID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"booking_id": bookingID,
		"status":     model.UnitScheduled,
	}
	update := bson.M{
		"$set": bson.M{"status": model.UnitCancelled},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel service units: %w", err)
	}

	return result.ModifiedCount, nil
}
