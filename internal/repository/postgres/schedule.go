package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
)

func (r *scheduleRepository) ListActive(ctx context.Context, doctorID uuid.UUID) ([]*model.WeeklySchedule, error) {
	query := `
		SELECT id, doctor_id, day_of_week, start_time, end_time, slot_minutes,
			   break_start, break_end, consultation_mode, max_bookings, active,
			   created_at, updated_at
		FROM weekly_schedules
		WHERE doctor_id = $1 AND active = true
		ORDER BY day_of_week, start_time
	`
	var schedules []*model.WeeklySchedule
	err := r.db.SelectContext(ctx, &schedules, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

func (r *scheduleRepository) GetOverride(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.ScheduleOverride, error) {
	query := `
		SELECT id, doctor_id, override_date, kind, start_time, end_time, reason,
			   created_at, updated_at
		FROM schedule_overrides
		WHERE doctor_id = $1 AND override_date = $2
	`
	var override model.ScheduleOverride
	err := r.db.GetContext(ctx, &override, query, doctorID, date.Format(model.DateOnly))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule override: %w", err)
	}
	return &override, nil
}
