package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DateOnly is the wire format used for calendar dates throughout the API.
const DateOnly = "2006-01-02"

// TimeOfDay is the wire format for clock times in schedules ("15:04").
const TimeOfDay = "15:04"
