package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPendingPayment AppointmentStatus = "pending_payment"
	AppointmentStatusConfirmed      AppointmentStatus = "confirmed"
	AppointmentStatusCheckedIn      AppointmentStatus = "checked_in"
	AppointmentStatusInProgress     AppointmentStatus = "in_progress"
	AppointmentStatusCompleted      AppointmentStatus = "completed"
	AppointmentStatusCancelled      AppointmentStatus = "cancelled"
	AppointmentStatusExpired        AppointmentStatus = "expired"
	AppointmentStatusNoShow         AppointmentStatus = "no_show"
	AppointmentStatusRescheduled    AppointmentStatus = "rescheduled"
)

// OccupyingStatuses are the appointment states that consume slot capacity.
// The partial unique index on (doctor_id, start_time) is filtered to this
// set; it is the binding guard against double booking.
var OccupyingStatuses = []AppointmentStatus{
	AppointmentStatusPendingPayment,
	AppointmentStatusConfirmed,
	AppointmentStatusCheckedIn,
	AppointmentStatusInProgress,
	AppointmentStatusRescheduled,
}

func (s AppointmentStatus) Occupying() bool {
	for _, o := range OccupyingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

type Appointment struct {
	Base
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	HospitalID   uuid.UUID         `db:"hospital_id" json:"hospital_id"`
	ScheduledFor time.Time         `db:"scheduled_for" json:"scheduled_for"`
	StartTime    time.Time         `db:"start_time" json:"start_time"`
	EndTime      time.Time         `db:"end_time" json:"end_time"`
	Mode         ConsultationMode  `db:"consultation_mode" json:"consultation_mode"`
	Status       AppointmentStatus `db:"status" json:"status"`
	CancelReason *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

type CreateBookingRequest struct {
	PatientID  uuid.UUID        `json:"patient_id" binding:"required"`
	DoctorID   uuid.UUID        `json:"doctor_id" binding:"required"`
	HospitalID uuid.UUID        `json:"hospital_id" binding:"required"`
	Date       string           `json:"date" binding:"required"`
	Time       string           `json:"time" binding:"required"`
	Mode       ConsultationMode `json:"mode" binding:"required,oneof=remote in_person"`
}

// AvailabilityRequest is the internal query answered by the availability
// manager. RequesterID identifies the caller so its own exclusive lock does
// not count against it.
type AvailabilityRequest struct {
	DoctorID    uuid.UUID
	HospitalID  uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Mode        ConsultationMode
	RequesterID uuid.UUID
}

// AvailabilityResult carries the outcome of a check. SlotID may be nil: a
// slot instance is an optimization, not a precondition for booking.
type AvailabilityResult struct {
	Available bool       `json:"available"`
	SlotID    *uuid.UUID `json:"slot_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
