package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
)

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	query := `
		SELECT id, hospital_id, name, consultation_fee, verified, active,
			   created_at, updated_at
		FROM doctors
		WHERE id = $1
	`
	var doctor model.Doctor
	err := r.db.GetContext(ctx, &doctor, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return &doctor, nil
}

func (r *doctorRepository) ListBookable(ctx context.Context) ([]*model.Doctor, error) {
	query := `
		SELECT id, hospital_id, name, consultation_fee, verified, active,
			   created_at, updated_at
		FROM doctors
		WHERE verified = true AND active = true
		ORDER BY created_at
	`
	var doctors []*model.Doctor
	err := r.db.SelectContext(ctx, &doctors, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookable doctors: %w", err)
	}
	return doctors, nil
}
