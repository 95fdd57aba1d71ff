package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
	"github.com/healthbridge/booking-api/internal/service/availability"
	apperrors "github.com/healthbridge/booking-api/pkg/errors"
	"github.com/healthbridge/booking-api/pkg/logger"
	"github.com/healthbridge/booking-api/pkg/messaging"
	"github.com/healthbridge/booking-api/pkg/metrics"
)

// DefaultSlotMinutes is the appointment length assumed when no slot instance
// has been materialized for the requested time.
const DefaultSlotMinutes = 30

// Service owns the booking transaction: the only entry point that may
// transition a slot from available to held. The pre-check is advisory; the
// store's uniqueness constraint settles races, and losing that race is
// reported exactly like a failed pre-check.
type Service struct {
	availabilitySvc *availability.Service
	appointmentRepo repository.AppointmentRepository
	paymentRepo     repository.PaymentRepository
	slotRepo        repository.SlotRepository
	doctorRepo      repository.DoctorRepository
	broker          messaging.Broker
	logger          *logger.Logger
	metrics         *metrics.Metrics
}

func NewService(
	availabilitySvc *availability.Service,
	appointmentRepo repository.AppointmentRepository,
	paymentRepo repository.PaymentRepository,
	slotRepo repository.SlotRepository,
	doctorRepo repository.DoctorRepository,
	broker messaging.Broker,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		availabilitySvc: availabilitySvc,
		appointmentRepo: appointmentRepo,
		paymentRepo:     paymentRepo,
		slotRepo:        slotRepo,
		doctorRepo:      doctorRepo,
		broker:          broker,
		logger:          logger,
		metrics:         metrics,
	}
}

func (s *Service) CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Appointment, error) {
	start, err := parseStart(req.Date, req.Time)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid booking date or time", err)
	}

	doctor, err := s.doctorRepo.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, apperrors.NewNotFound("doctor", err)
	}
	if !doctor.Verified || !doctor.Active {
		return nil, apperrors.NewBadRequest("doctor is not accepting bookings", nil)
	}

	result, err := s.availabilitySvc.CheckAvailability(ctx, &model.AvailabilityRequest{
		DoctorID:    req.DoctorID,
		HospitalID:  req.HospitalID,
		StartTime:   start,
		Mode:        req.Mode,
		RequesterID: req.PatientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if !result.Available {
		return nil, s.reject(result.Reason)
	}

	end := start.Add(DefaultSlotMinutes * time.Minute)
	if result.SlotID != nil {
		if slot, err := s.slotRepo.Get(ctx, *result.SlotID); err == nil {
			end = slot.EndTime
		}
	}

	appt := &model.Appointment{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		HospitalID:   req.HospitalID,
		ScheduledFor: truncateToDay(start),
		StartTime:    start,
		EndTime:      end,
		Mode:         req.Mode,
	}
	payment := &model.Payment{Amount: doctor.ConsultationFee}

	if err := s.appointmentRepo.CreateBooking(ctx, appt, result.SlotID, payment); err != nil {
		// Losing the race after a passing pre-check is an expected outcome,
		// never an internal error.
		if errors.Is(err, repository.ErrDuplicateBooking) {
			if s.metrics != nil {
				s.metrics.BookingInsertConflicts.Inc()
			}
			return nil, s.reject(apperrors.ReasonAlreadyBooked)
		}
		if errors.Is(err, repository.ErrSlotCapacity) {
			return nil, s.reject(apperrors.ReasonAtCapacity)
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BookingsCreated.Inc()
	}
	s.publish(ctx, messaging.EventBookingCreated, appt)

	return appt, nil
}

// ConfirmPayment applies the payment subsystem's "payment succeeded" event.
// Re-delivery of the event is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, appointmentID uuid.UUID) error {
	appt, err := s.appointmentRepo.Get(ctx, appointmentID)
	if err != nil {
		return apperrors.NewNotFound("appointment", err)
	}

	if appt.Status == model.AppointmentStatusConfirmed {
		return nil
	}
	if appt.Status != model.AppointmentStatusPendingPayment {
		return apperrors.NewBadRequest(fmt.Sprintf("appointment is %s, not awaiting payment", appt.Status), nil)
	}

	if err := s.appointmentRepo.UpdateStatus(ctx, appointmentID, model.AppointmentStatusConfirmed, nil); err != nil {
		return fmt.Errorf("failed to confirm appointment: %w", err)
	}
	if err := s.paymentRepo.UpdateStatusByAppointment(ctx, appointmentID, model.PaymentStatusPaid); err != nil {
		s.logger.Error(err, "failed to mark payment paid", "appointment_id", appointmentID.String())
	}

	s.publish(ctx, messaging.EventBookingConfirmed, appt)
	return nil
}

// FailPayment applies the "payment failed" event: the booking is cancelled
// and its held capacity returned.
func (s *Service) FailPayment(ctx context.Context, appointmentID uuid.UUID) error {
	appt, err := s.appointmentRepo.Get(ctx, appointmentID)
	if err != nil {
		return apperrors.NewNotFound("appointment", err)
	}
	if appt.Status != model.AppointmentStatusPendingPayment {
		return nil
	}

	reason := "payment failed"
	if err := s.appointmentRepo.UpdateStatus(ctx, appointmentID, model.AppointmentStatusCancelled, &reason); err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if err := s.paymentRepo.UpdateStatusByAppointment(ctx, appointmentID, model.PaymentStatusFailed); err != nil {
		s.logger.Error(err, "failed to mark payment failed", "appointment_id", appointmentID.String())
	}
	if err := s.slotRepo.DecrementOccupancy(ctx, appt.DoctorID, appt.StartTime, appt.Mode); err != nil {
		s.logger.Error(err, "failed to return slot capacity", "appointment_id", appointmentID.String())
	}

	s.publish(ctx, messaging.EventBookingCancelled, appt)
	return nil
}

func (s *Service) CancelBooking(ctx context.Context, appointmentID uuid.UUID, reason string) error {
	appt, err := s.appointmentRepo.Get(ctx, appointmentID)
	if err != nil {
		return apperrors.NewNotFound("appointment", err)
	}

	switch appt.Status {
	case model.AppointmentStatusCancelled, model.AppointmentStatusExpired:
		return apperrors.NewBadRequest("appointment is already cancelled", nil)
	case model.AppointmentStatusCompleted:
		return apperrors.NewBadRequest("cannot cancel a completed appointment", nil)
	}

	if err := s.appointmentRepo.UpdateStatus(ctx, appointmentID, model.AppointmentStatusCancelled, &reason); err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if err := s.slotRepo.DecrementOccupancy(ctx, appt.DoctorID, appt.StartTime, appt.Mode); err != nil {
		s.logger.Error(err, "failed to return slot capacity", "appointment_id", appointmentID.String())
	}

	s.publish(ctx, messaging.EventBookingCancelled, appt)
	return nil
}

func (s *Service) GetBooking(ctx context.Context, appointmentID uuid.UUID) (*model.Appointment, error) {
	appt, err := s.appointmentRepo.Get(ctx, appointmentID)
	if err != nil {
		return nil, apperrors.NewNotFound("appointment", err)
	}
	return appt, nil
}

func (s *Service) reject(reason string) error {
	if s.metrics != nil {
		s.metrics.BookingsRejected.WithLabelValues(reason).Inc()
	}
	return apperrors.NewSlotUnavailable(reason, messageFor(reason))
}

// publish emits a lifecycle event; delivery failures never fail the booking.
func (s *Service) publish(ctx context.Context, eventType string, appt *model.Appointment) {
	if s.broker == nil {
		return
	}
	event := messaging.BookingEvent{
		Type:          eventType,
		AppointmentID: appt.ID.String(),
		Payload:       appt,
	}
	if err := s.broker.Publish(ctx, messaging.BookingEventsChannel, event); err != nil {
		s.logger.Error(err, "failed to publish booking event", "type", eventType, "appointment_id", appt.ID.String())
	}
}

func messageFor(reason string) string {
	switch reason {
	case apperrors.ReasonAtCapacity:
		return "the requested slot is fully booked"
	case apperrors.ReasonTemporarilyReserved:
		return "the slot is reserved by another patient completing checkout"
	case apperrors.ReasonAlreadyBooked:
		return "an appointment already exists for this slot"
	case apperrors.ReasonBookingInProgress:
		return "another booking for this slot is awaiting payment"
	case apperrors.ReasonSlotBlocked:
		return "the doctor is unavailable at this time"
	default:
		return "the requested slot is not available"
	}
}

func parseStart(date, clock string) (time.Time, error) {
	return time.ParseInLocation(model.DateOnly+" "+model.TimeOfDay, date+" "+clock, time.Local)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
