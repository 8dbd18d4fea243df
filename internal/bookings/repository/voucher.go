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
	"go.mongodb.org/mongo-driver/mongo"
)

const VoucherCollectionName = "Vouchers"

type VoucherRepository interface {
	Reserve(ctx context.Context, code string, businessID string, bookingID string) (*model.Voucher, error)
	ReleaseByBooking(ctx context.Context, bookingID string) (int64, error)
	FindByCode(ctx context.Context, code string, businessID string) (*model.Voucher, error)
}

type mongoVoucherRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoVoucherRepository(cfg *config.Config) VoucherRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoVoucherRepository{
		cfg:        cfg,
		collection: db.Collection(VoucherCollectionName),
	}
}

// Reserve takes a voucher out of circulation for a booking. The filter only
// matches an active, unclaimed voucher, so a double reserve loses the race
// and gets ErrVoucherUnavailable.
func (r *mongoVoucherRepository) Reserve(ctx context.Context, code string, businessID string, bookingID string) (*model.Voucher, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":         code,
		"business_id": businessID,
		"is_active":   true,
		"used_by_id":  nil,
	}
	update := bson.M{
		"$set": bson.M{
			"is_active":  false,
			"used_by_id": bookingID,
			"updated_at": time.Now().UTC(),
		},
	}

	var voucher model.Voucher
	err := r.collection.FindOneAndUpdate(ctx, filter, update).Decode(&voucher)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrVoucherUnavailable
		}
		return nil, fmt.Errorf("failed to reserve voucher: %w", err)
	}

	return &voucher, nil
}

// ReleaseByBooking puts a reserved voucher back into circulation when the
// booking it was reserved for is cancelled. Idempotent: a second release
// matches nothing and modifies zero documents.
func (r *mongoVoucherRepository) ReleaseByBooking(ctx context.Context, bookingID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"used_by_id": bookingID}
	update := bson.M{
		"$set": bson.M{
			"is_active":  true,
			"used_by_id": nil,
			"updated_at": time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to release voucher: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoVoucherRepository) FindByCode(ctx context.Context, code string, businessID string) (*model.Voucher, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var voucher model.Voucher
	err := r.collection.FindOne(ctx, bson.M{"_id": code, "business_id": businessID}).Decode(&voucher)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrVoucherUnavailable
		}
		return nil, fmt.Errorf("failed to find voucher: %w", err)
	}

	return &voucher, nil
}
