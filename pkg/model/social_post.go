package model

import "time"

type SocialPostStatus string

const (
	SocialPostDraft     SocialPostStatus = "draft"
	SocialPostPublished SocialPostStatus = "published"
)

// SocialPost is the publish target for the social delivery handler. The
// draft-to-published transition is conditional, so redelivered events find
// the post already published and count as success.
type SocialPost struct {
	ID          string           `json:"id,omitempty" bson:"_id,omitempty"`
	BookingID   string           `json:"booking_id" bson:"booking_id"`
	BusinessID  string           `json:"business_id" bson:"business_id"`
	Body        string           `json:"body" bson:"body"`
	Status      SocialPostStatus `json:"status" bson:"status"`
	CreatedAt   time.Time        `json:"created_at" bson:"created_at"`
	PublishedAt *time.Time       `json:"published_at,omitempty" bson:"published_at,omitempty"`
}
