package repository

import (
	"context"
	"fmt"
	"time"

	"bookery/pkg/config"
	"bookery/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const SocialPostCollectionName = "Social_posts"

type SocialPostRepository interface {
	CreateDraft(ctx context.Context, post *model.SocialPost) error
	FindByID(ctx context.Context, id string) (*model.SocialPost, error)
	PublishIfDraft(ctx context.Context, id string) (int64, error)
}

type mongoSocialPostRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSocialPostRepository(cfg *config.Config) SocialPostRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSocialPostRepository{
		cfg:        cfg,
		collection: db.Collection(SocialPostCollectionName),
	}
}

// CreateDraft inserts a draft post and backfills its generated id. Called in
// the same transaction as the booking acceptance that announces it.
func (r *mongoSocialPostRepository) CreateDraft(ctx context.Context, post *model.SocialPost) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	post.Status = model.SocialPostDraft
	post.CreatedAt = time.Now().UTC()
	result, err := r.collection.InsertOne(ctx, post)
	if err != nil {
		return fmt.Errorf("failed to create social post draft: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		post.ID = oid.Hex()
	}
	return nil
}

func (r *mongoSocialPostRepository) FindByID(ctx context.Context, id string) (*model.SocialPost, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid social post ID: %s", id)
	}

	var post model.SocialPost
	if err := r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&post); err != nil {
		return nil, fmt.Errorf("failed to find social post: %w", err)
	}
	return &post, nil
}

// PublishIfDraft flips a draft post to published. Zero modified count means
// a previous delivery already published it, which redelivery treats as done.
func (r *mongoSocialPostRepository) PublishIfDraft(ctx context.Context, id string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("invalid social post ID: %s", id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": model.SocialPostDraft,
	}
	update := bson.M{
		"$set": bson.M{
			"status":       model.SocialPostPublished,
			"published_at": time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to publish social post: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoSocialPostRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
