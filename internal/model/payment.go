package model

import (
	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusExpired PaymentStatus = "expired"
)

// Payment is the row linked to a booking attempt. The gateway protocol lives
// in a separate subsystem; this core only creates the pending row and applies
// status transitions driven by gateway events or the expiry sweep.
type Payment struct {
	Base
	AppointmentID uuid.UUID     `db:"appointment_id" json:"appointment_id"`
	Amount        float64       `db:"amount" json:"amount"`
	Status        PaymentStatus `db:"status" json:"status"`
}

// PaymentEvent is the callback payload emitted by the payment subsystem.
type PaymentEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
	Status        string    `json:"status" binding:"required,oneof=succeeded failed"`
	Reference     string    `json:"reference,omitempty"`
}
