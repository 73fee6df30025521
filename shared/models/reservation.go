package models

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle state of a booking request.
// A reservation starts pending and moves to exactly one terminal state;
// it never leaves a terminal state again.
type ReservationStatus string

const (
	ReservationPending  ReservationStatus = "pending"
	ReservationAccepted ReservationStatus = "accepted"
	ReservationRejected ReservationStatus = "rejected"
)

// IsTerminal reports whether the status can no longer change.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationAccepted || s == ReservationRejected
}

// Reservation is a prospective tenant's request to join a listing.
type Reservation struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	ListingID uuid.UUID         `json:"listing_id" gorm:"type:uuid;not null;index"`
	UserID    string            `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Message   string            `json:"message"`
	Status    ReservationStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	Listing *Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID;references:CognitoID"`
}

func (Reservation) TableName() string {
	return "listing_reservations"
}
