package model

import "time"

type UnitStatus string

const (
	UnitScheduled UnitStatus = "scheduled"
	UnitCompleted UnitStatus = "completed"
	UnitCancelled UnitStatus = "cancelled"
)

// ServiceUnit is one unit of work attached to a booking (a haircut, a
// massage slot, a court hour). A booking is promoted to completed once
// every attached unit is completed or cancelled.
type ServiceUnit struct {
	ID          string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BookingID   string     `json:"booking_id" bson:"booking_id" validate:"required,mongodb"`
	BusinessID  string     `json:"business_id" bson:"business_id" validate:"required,mongodb"`
	Label       string     `json:"label" bson:"label" validate:"required,min=2,max=100"`
	Status      UnitStatus `json:"status" bson:"status" validate:"required,oneof=scheduled completed cancelled"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}
