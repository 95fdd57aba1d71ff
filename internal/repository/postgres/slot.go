package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
)

func (r *slotRepository) UpsertIgnoreConflicts(ctx context.Context, slots []*model.SlotInstance) (int64, error) {
	query := `
		INSERT INTO slot_instances (
			id, doctor_id, slot_date, start_time, end_time, consultation_mode,
			max_bookings, current_bookings, blocked, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, false, $8, $9)
		ON CONFLICT (doctor_id, start_time, consultation_mode) DO NOTHING
	`
	var inserted int64
	for _, slot := range slots {
		slot.ID = uuid.New()
		slot.CreatedAt = time.Now()
		slot.UpdatedAt = time.Now()

		result, err := r.db.ExecContext(ctx, query,
			slot.ID,
			slot.DoctorID,
			slot.SlotDate.Format(model.DateOnly),
			slot.StartTime,
			slot.EndTime,
			slot.Mode,
			slot.MaxBookings,
			slot.CreatedAt,
			slot.UpdatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert slot instance: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += rows
	}
	return inserted, nil
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.SlotInstance, error) {
	query := `
		SELECT id, doctor_id, slot_date, start_time, end_time, consultation_mode,
			   max_bookings, current_bookings, locked_by, lock_expires_at,
			   blocked, block_reason, created_at, updated_at
		FROM slot_instances
		WHERE id = $1
	`
	var slot model.SlotInstance
	err := r.db.GetContext(ctx, &slot, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot instance: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) GetByKey(ctx context.Context, doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) (*model.SlotInstance, error) {
	query := `
		SELECT id, doctor_id, slot_date, start_time, end_time, consultation_mode,
			   max_bookings, current_bookings, locked_by, lock_expires_at,
			   blocked, block_reason, created_at, updated_at
		FROM slot_instances
		WHERE doctor_id = $1 AND start_time = $2
		AND consultation_mode IN ($3, 'either')
	`
	var slot model.SlotInstance
	err := r.db.GetContext(ctx, &slot, query, doctorID, start, mode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot instance by key: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) ListForDate(ctx context.Context, doctorID uuid.UUID, date time.Time, mode model.ConsultationMode) ([]*model.SlotInstance, error) {
	query := `
		SELECT id, doctor_id, slot_date, start_time, end_time, consultation_mode,
			   max_bookings, current_bookings, locked_by, lock_expires_at,
			   blocked, block_reason, created_at, updated_at
		FROM slot_instances
		WHERE doctor_id = $1 AND slot_date = $2 AND blocked = false
		AND consultation_mode IN ($3, 'either')
		ORDER BY start_time ASC
	`
	var slots []*model.SlotInstance
	err := r.db.SelectContext(ctx, &slots, query, doctorID, date.Format(model.DateOnly), mode)
	if err != nil {
		return nil, fmt.Errorf("failed to list slot instances: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) IncrementOccupancy(ctx context.Context, id uuid.UUID) error {
	return incrementOccupancy(ctx, r.db, id)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func incrementOccupancy(ctx context.Context, db execer, id uuid.UUID) error {
	query := `
		UPDATE slot_instances
		SET current_bookings = current_bookings + 1, updated_at = $2
		WHERE id = $1 AND current_bookings < max_bookings
	`
	result, err := db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to increment slot occupancy: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrSlotCapacity
	}
	return nil
}

func (r *slotRepository) DecrementOccupancy(ctx context.Context, doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) error {
	query := `
		UPDATE slot_instances
		SET current_bookings = GREATEST(current_bookings - 1, 0), updated_at = $4
		WHERE doctor_id = $1 AND start_time = $2
		AND consultation_mode IN ($3, 'either')
	`
	_, err := r.db.ExecContext(ctx, query, doctorID, start, mode, time.Now())
	if err != nil {
		return fmt.Errorf("failed to decrement slot occupancy: %w", err)
	}
	return nil
}

// AcquireLock succeeds only when the current lock is absent, expired, or
// already held by the requester.
func (r *slotRepository) AcquireLock(ctx context.Context, id, requesterID uuid.UUID, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE slot_instances
		SET locked_by = $2, lock_expires_at = $3, updated_at = $4
		WHERE id = $1
		AND (locked_by IS NULL OR lock_expires_at < $4 OR locked_by = $2)
	`
	result, err := r.db.ExecContext(ctx, query, id, requesterID, expiresAt, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to acquire slot lock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *slotRepository) ReleaseLock(ctx context.Context, id, requesterID uuid.UUID) (bool, error) {
	query := `
		UPDATE slot_instances
		SET locked_by = NULL, lock_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND locked_by = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, requesterID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to release slot lock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *slotRepository) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE slot_instances
		SET locked_by = NULL, lock_expires_at = NULL, updated_at = $1
		WHERE lock_expires_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *slotRepository) BlockDate(ctx context.Context, doctorID uuid.UUID, date time.Time, reason string) (int64, error) {
	query := `
		UPDATE slot_instances
		SET blocked = true, block_reason = $3, updated_at = $4
		WHERE doctor_id = $1 AND slot_date = $2 AND current_bookings = 0
	`
	result, err := r.db.ExecContext(ctx, query, doctorID, date.Format(model.DateOnly), reason, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to block slots: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *slotRepository) DeleteUnoccupiedFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) (int64, error) {
	query := `
		DELETE FROM slot_instances
		WHERE doctor_id = $1 AND start_time >= $2 AND current_bookings = 0
	`
	result, err := r.db.ExecContext(ctx, query, doctorID, from)
	if err != nil {
		return 0, fmt.Errorf("failed to delete slot instances: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
