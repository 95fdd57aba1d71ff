package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
	apperrors "github.com/healthbridge/booking-api/pkg/errors"
	"github.com/healthbridge/booking-api/pkg/logger"
	"github.com/healthbridge/booking-api/pkg/metrics"
)

// Service answers booking-time availability queries and manages the
// short-lived exclusive slot locks used by the checkout flow. Every check
// here is an optimization for UX; the insert-time uniqueness constraint is
// the correctness mechanism.
type Service struct {
	appointmentRepo repository.AppointmentRepository
	slotRepo        repository.SlotRepository
	doctorRepo      repository.DoctorRepository
	logger          *logger.Logger
	metrics         *metrics.Metrics
	paymentTimeout  time.Duration
	lockTTL         time.Duration
}

func NewService(
	appointmentRepo repository.AppointmentRepository,
	slotRepo repository.SlotRepository,
	doctorRepo repository.DoctorRepository,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	paymentTimeout time.Duration,
	lockTTL time.Duration,
) *Service {
	return &Service{
		appointmentRepo: appointmentRepo,
		slotRepo:        slotRepo,
		doctorRepo:      doctorRepo,
		logger:          logger,
		metrics:         metrics,
		paymentTimeout:  paymentTimeout,
		lockTTL:         lockTTL,
	}
}

// CheckAvailability runs the ordered checks; the first failing one wins.
// Appointment rows are authoritative and are consulted before the slot
// instance cache, which may legitimately not exist yet.
func (s *Service) CheckAvailability(ctx context.Context, req *model.AvailabilityRequest) (*model.AvailabilityResult, error) {
	occupying, err := s.appointmentRepo.ListOccupying(ctx, req.DoctorID, req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing appointments: %w", err)
	}

	now := time.Now()
	for _, appt := range occupying {
		if appt.Status == model.AppointmentStatusPendingPayment {
			// A stale pending booking is treated as abandoned at read time
			// and reaped later by the janitor. Two racing callers can both
			// pass here; the insert constraint breaks the tie.
			if now.Sub(appt.CreatedAt) < s.paymentTimeout {
				return unavailable(apperrors.ReasonBookingInProgress), nil
			}
			continue
		}
		return unavailable(apperrors.ReasonAlreadyBooked), nil
	}

	slot, err := s.slotRepo.GetByKey(ctx, req.DoctorID, req.StartTime, req.Mode)
	if err != nil {
		// A failed slot lookup defaults to "assume booked", trading
		// availability for safety.
		s.logger.Warn("slot lookup failed, assuming booked", "doctor_id", req.DoctorID.String(), "error", err.Error())
		return unavailable(apperrors.ReasonTemporarilyReserved), nil
	}
	if slot == nil {
		// Generation has not materialized this slot yet; a slot row is an
		// optimization, not a precondition for booking.
		return &model.AvailabilityResult{Available: true}, nil
	}

	if slot.Blocked {
		return unavailable(apperrors.ReasonSlotBlocked), nil
	}
	if slot.AtCapacity() {
		return unavailable(apperrors.ReasonAtCapacity), nil
	}
	if slot.LockHeldBy(req.RequesterID, now) {
		return unavailable(apperrors.ReasonTemporarilyReserved), nil
	}

	return &model.AvailabilityResult{Available: true, SlotID: &slot.ID}, nil
}

// LockSlot places a best-effort exclusive hold on a slot for the checkout
// flow. It succeeds only when the current lock is absent, expired, or held
// by the same requester.
func (s *Service) LockSlot(ctx context.Context, slotID, requesterID uuid.UUID, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.lockTTL
	}

	locked, err := s.slotRepo.AcquireLock(ctx, slotID, requesterID, time.Now().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to lock slot: %w", err)
	}

	if s.metrics != nil {
		if locked {
			s.metrics.SlotLocksAcquired.Inc()
		} else {
			s.metrics.SlotLocksRejected.Inc()
		}
	}
	return locked, nil
}

// ReleaseSlotLock releases a hold; only the holder can release an unexpired
// lock.
func (s *Service) ReleaseSlotLock(ctx context.Context, slotID, requesterID uuid.UUID) (bool, error) {
	released, err := s.slotRepo.ReleaseLock(ctx, slotID, requesterID)
	if err != nil {
		return false, fmt.Errorf("failed to release slot lock: %w", err)
	}
	return released, nil
}

// ListOpenSlots returns the bookable slots for a doctor and date, ascending
// by start time, with remaining capacity and the doctor's fee.
func (s *Service) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, mode model.ConsultationMode) ([]*model.AvailableSlot, error) {
	doctor, err := s.doctorRepo.Get(ctx, doctorID)
	if err != nil {
		return nil, apperrors.NewNotFound("doctor", err)
	}

	slots, err := s.slotRepo.ListForDate(ctx, doctorID, date, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	open := make([]*model.AvailableSlot, 0, len(slots))
	for _, slot := range slots {
		remaining := slot.MaxBookings - slot.CurrentBookings
		if remaining <= 0 {
			continue
		}
		slotID := slot.ID
		open = append(open, &model.AvailableSlot{
			SlotID:            &slotID,
			Date:              slot.SlotDate.Format(model.DateOnly),
			StartTime:         slot.StartTime,
			EndTime:           slot.EndTime,
			Mode:              slot.Mode,
			RemainingCapacity: remaining,
			Fee:               doctor.ConsultationFee,
		})
	}
	return open, nil
}

func unavailable(reason string) *model.AvailabilityResult {
	return &model.AvailabilityResult{Available: false, Reason: reason}
}
