package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
)

func (r *paymentRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	query := `
		SELECT id, appointment_id, amount, status, created_at, updated_at
		FROM payments
		WHERE appointment_id = $1
	`
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) UpdateStatusByAppointment(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error {
	query := `
		UPDATE payments
		SET status = $2, updated_at = $3
		WHERE appointment_id = $1
	`
	_, err := r.db.ExecContext(ctx, query, appointmentID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}
