package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
)

const uniqueViolation = "23505"

const occupyingStatuses = `('pending_payment', 'confirmed', 'checked_in', 'in_progress', 'rescheduled')`

func (r *appointmentRepository) CreateBooking(ctx context.Context, appt *model.Appointment, slotID *uuid.UUID, payment *model.Payment) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO appointments (
				id, patient_id, doctor_id, hospital_id, scheduled_for,
				start_time, end_time, consultation_mode, status,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		appt.ID = uuid.New()
		appt.Status = model.AppointmentStatusPendingPayment
		appt.CreatedAt = time.Now()
		appt.UpdatedAt = time.Now()

		_, err := tx.ExecContext(ctx, query,
			appt.ID,
			appt.PatientID,
			appt.DoctorID,
			appt.HospitalID,
			appt.ScheduledFor.Format(model.DateOnly),
			appt.StartTime,
			appt.EndTime,
			appt.Mode,
			appt.Status,
			appt.CreatedAt,
			appt.UpdatedAt,
		)
		if err != nil {
			// The partial unique index over occupying appointments is the
			// final guard against double booking; surface it as a sentinel
			// the service layer turns into a typed rejection.
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return repository.ErrDuplicateBooking
			}
			return fmt.Errorf("failed to create appointment: %w", err)
		}

		if slotID != nil {
			if err := incrementOccupancy(ctx, tx, *slotID); err != nil {
				return err
			}
		}

		if payment != nil {
			payment.ID = uuid.New()
			payment.AppointmentID = appt.ID
			payment.Status = model.PaymentStatusPending
			payment.CreatedAt = time.Now()
			payment.UpdatedAt = time.Now()

			paymentQuery := `
				INSERT INTO payments (id, appointment_id, amount, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`
			if _, err := tx.ExecContext(ctx, paymentQuery,
				payment.ID,
				payment.AppointmentID,
				payment.Amount,
				payment.Status,
				payment.CreatedAt,
				payment.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to create payment: %w", err)
			}
		}

		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, hospital_id, scheduled_for,
			   start_time, end_time, consultation_mode, status, cancel_reason,
			   created_at, updated_at
		FROM appointments
		WHERE id = $1
	`
	var appt model.Appointment
	err := r.db.GetContext(ctx, &appt, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appt, nil
}

func (r *appointmentRepository) ListOccupying(ctx context.Context, doctorID uuid.UUID, start time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, hospital_id, scheduled_for,
			   start_time, end_time, consultation_mode, status, cancel_reason,
			   created_at, updated_at
		FROM appointments
		WHERE doctor_id = $1 AND start_time = $2
		AND status IN ` + occupyingStatuses + `
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, doctorID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupying appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *string) error {
	query := `
		UPDATE appointments
		SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("appointment not found")
	}
	return nil
}

func (r *appointmentRepository) ListPendingPaymentBefore(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, hospital_id, scheduled_for,
			   start_time, end_time, consultation_mode, status, cancel_reason,
			   created_at, updated_at
		FROM appointments
		WHERE status = 'pending_payment' AND created_at < $1
		ORDER BY created_at ASC
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending appointments: %w", err)
	}
	return appointments, nil
}

// MarkNoShows transitions confirmed appointments whose end time has passed.
// Set-based and idempotent: a second run matches zero rows.
func (r *appointmentRepository) MarkNoShows(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE appointments
		SET status = 'no_show', updated_at = $1
		WHERE status = 'confirmed' AND end_time < $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark no-shows: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
