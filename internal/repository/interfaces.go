package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
)

// ErrDuplicateBooking is returned when an insert collides with the partial
// unique index over occupying appointments for a (doctor, start time) pair.
// It is the insert-time backstop behind every availability pre-check.
var ErrDuplicateBooking = errors.New("an occupying appointment already exists for this doctor and time")

// ErrSlotCapacity is returned when the conditional occupancy bump inside the
// booking transaction finds the slot instance already full.
var ErrSlotCapacity = errors.New("slot instance is at capacity")

// All repository interfaces in one file
type (
	// ScheduleRepository reads the recurring availability windows and their
	// date-specific overrides. Writes come from the administration UI, not
	// from this core.
	ScheduleRepository interface {
		ListActive(ctx context.Context, doctorID uuid.UUID) ([]*model.WeeklySchedule, error)
		GetOverride(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.ScheduleOverride, error)
	}

	SlotRepository interface {
		// UpsertIgnoreConflicts inserts slot instances keyed by
		// (doctor, start time, mode), silently skipping rows that already
		// exist so occupancy of booked slots is never reset.
		UpsertIgnoreConflicts(ctx context.Context, slots []*model.SlotInstance) (int64, error)
		Get(ctx context.Context, id uuid.UUID) (*model.SlotInstance, error)
		// GetByKey returns nil without error when no instance has been
		// materialized yet for the key.
		GetByKey(ctx context.Context, doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) (*model.SlotInstance, error)
		ListForDate(ctx context.Context, doctorID uuid.UUID, date time.Time, mode model.ConsultationMode) ([]*model.SlotInstance, error)
		IncrementOccupancy(ctx context.Context, id uuid.UUID) error
		// DecrementOccupancy resolves the slot the same way GetByKey does,
		// so only the booking's own mode row (or its either row) is touched.
		DecrementOccupancy(ctx context.Context, doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) error
		AcquireLock(ctx context.Context, id, requesterID uuid.UUID, expiresAt time.Time) (bool, error)
		ReleaseLock(ctx context.Context, id, requesterID uuid.UUID) (bool, error)
		ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error)
		// BlockDate blocks zero-occupancy slots on the given date; slots with
		// bookings are left for the administrative cancellation flow.
		BlockDate(ctx context.Context, doctorID uuid.UUID, date time.Time, reason string) (int64, error)
		DeleteUnoccupiedFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) (int64, error)
	}

	AppointmentRepository interface {
		// CreateBooking inserts the appointment in pending payment state
		// together with its payment row and, when a slot instance exists,
		// bumps its occupancy, all in one transaction. Returns
		// ErrDuplicateBooking when the uniqueness constraint fires.
		CreateBooking(ctx context.Context, appt *model.Appointment, slotID *uuid.UUID, payment *model.Payment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		ListOccupying(ctx context.Context, doctorID uuid.UUID, start time.Time) ([]*model.Appointment, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *string) error
		ListPendingPaymentBefore(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error)
		MarkNoShows(ctx context.Context, now time.Time) (int64, error)
	}

	PaymentRepository interface {
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error)
		UpdateStatusByAppointment(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		// ListBookable returns verified, active doctors, the population the
		// daily horizon-extension sweep walks.
		ListBookable(ctx context.Context) ([]*model.Doctor, error)
	}
)
