package handlers

import (
	"context"
	"fmt"

	"bookery/internal/outbox/repository"
	outboxsvc "bookery/internal/outbox/service"
	"bookery/pkg/config"
	"bookery/pkg/kafka"
	"bookery/pkg/model"
)

// SocialPublisher handles SOCIAL_POST_REQUESTED events: it flips the draft
// post to published and announces it on the social topic. The conditional
// draft-to-published update makes a redelivered event a clean no-op.
type SocialPublisher struct {
	posts    repository.SocialPostRepository
	producer *kafka.Producer
	cfg      *config.Config
}

func NewSocialPublisher(posts repository.SocialPostRepository, producer *kafka.Producer, cfg *config.Config) *SocialPublisher {
	return &SocialPublisher{
		posts:    posts,
		producer: producer,
		cfg:      cfg,
	}
}

func (p *SocialPublisher) HandleSocialPostRequested(ctx context.Context, msg *model.OutboxMessage) error {
	var payload model.SocialPostRequestedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return outboxsvc.NonRetryable("undecodable SOCIAL_POST_REQUESTED payload", err)
	}
	if payload.PostID == "" {
		return outboxsvc.NonRetryable(fmt.Sprintf("event for booking %s carries no post id", payload.BookingID), nil)
	}

	modified, err := p.posts.PublishIfDraft(ctx, payload.PostID)
	if err != nil {
		return fmt.Errorf("failed to publish social post %s: %w", payload.PostID, err)
	}
	if modified == 0 {
		// Already published by an earlier delivery.
		p.cfg.Log.Info("Social post already published", "post_id", payload.PostID)
		return nil
	}

	kafkaMsg := kafka.NewMessage().
		WithKey(payload.BookingID).
		WithRawValue(msg.Payload).
		WithEventID(msg.ID).
		WithEventType(string(msg.EventType)).
		WithBusinessID(msg.BusinessID).
		WithSource("bookery-dispatcher").
		Build()

	if err := p.producer.Publish(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to announce social post: %w", err)
	}
	return nil
}
