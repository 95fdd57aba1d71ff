package model

import (
	"github.com/google/uuid"
)

// Doctor carries the subset of the doctor profile this core reads: the
// verified/active gate for the horizon sweep and the fee surfaced in slot
// listings. Profile management itself is an external collaborator.
type Doctor struct {
	Base
	HospitalID      uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Name            string    `db:"name" json:"name"`
	ConsultationFee float64   `db:"consultation_fee" json:"consultation_fee"`
	Verified        bool      `db:"verified" json:"verified"`
	Active          bool      `db:"active" json:"active"`
}
