package model

import "time"

type DiscountType string

const (
	DiscountFixed   DiscountType = "fixed"
	DiscountPercent DiscountType = "percent"
)

// Voucher is a discount code exclusively usable once. It is reserved
// optimistically when attached to a hold booking (UsedByID set, IsActive
// false), released back to the pool when that booking is cancelled
// (UsedByID nil, IsActive true) and permanently consumed when the booking
// is accepted or completed.
type Voucher struct {
	Code          string       `json:"code" bson:"_id" validate:"required,min=3,max=40"`
	BusinessID    string       `json:"business_id" bson:"business_id" validate:"required,mongodb"`
	DiscountType  DiscountType `json:"discount_type" bson:"discount_type" validate:"required,oneof=fixed percent"`
	DiscountValue int64        `json:"discount_value" bson:"discount_value" validate:"min=0"`
	IsActive      bool         `json:"is_active" bson:"is_active"`
	UsedByID      *string      `json:"used_by_id,omitempty" bson:"used_by_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" bson:"updated_at"`
}
