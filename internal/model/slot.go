package model

import (
	"time"

	"github.com/google/uuid"
)

// SlotInstance is the materialized, bookable unit of a doctor's availability.
// It is a denormalized capacity/lock cache over the occupying appointments
// for its (doctor, start, mode) key; appointment rows remain the
// authoritative truth and both are consulted on every availability check.
type SlotInstance struct {
	Base
	DoctorID        uuid.UUID        `db:"doctor_id" json:"doctor_id"`
	SlotDate        time.Time        `db:"slot_date" json:"slot_date"`
	StartTime       time.Time        `db:"start_time" json:"start_time"`
	EndTime         time.Time        `db:"end_time" json:"end_time"`
	Mode            ConsultationMode `db:"consultation_mode" json:"consultation_mode"`
	MaxBookings     int              `db:"max_bookings" json:"max_bookings"`
	CurrentBookings int              `db:"current_bookings" json:"current_bookings"`
	LockedBy        *uuid.UUID       `db:"locked_by" json:"locked_by,omitempty"`
	LockExpiresAt   *time.Time       `db:"lock_expires_at" json:"lock_expires_at,omitempty"`
	Blocked         bool             `db:"blocked" json:"blocked"`
	BlockReason     *string          `db:"block_reason" json:"block_reason,omitempty"`
}

// LockHeldBy reports whether a non-expired exclusive lock is held by someone
// other than requester at the given instant.
func (s *SlotInstance) LockHeldBy(requester uuid.UUID, now time.Time) bool {
	if s.LockedBy == nil || s.LockExpiresAt == nil {
		return false
	}
	if !s.LockExpiresAt.After(now) {
		return false
	}
	return *s.LockedBy != requester
}

// AtCapacity reports whether the instance's occupancy cache is full.
func (s *SlotInstance) AtCapacity() bool {
	return s.CurrentBookings >= s.MaxBookings
}

// AvailableSlot is the listing view returned to booking clients, ordered by
// start time ascending.
type AvailableSlot struct {
	SlotID            *uuid.UUID       `json:"slot_id,omitempty"`
	Date              string           `json:"date"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time"`
	Mode              ConsultationMode `json:"mode"`
	RemainingCapacity int              `json:"remaining_capacity"`
	Fee               float64          `json:"fee"`
}

type LockSlotRequest struct {
	RequesterID uuid.UUID `json:"requester_id" binding:"required"`
}
