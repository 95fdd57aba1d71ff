package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
	"github.com/healthbridge/booking-api/pkg/logger"
	"github.com/healthbridge/booking-api/pkg/messaging"
	"github.com/healthbridge/booking-api/pkg/metrics"
)

const (
	sweepPaymentExpiry = "payment_expiry"
	sweepLockReclaim   = "lock_reclaim"
	sweepNoShow        = "no_show"
)

// Service reconciles state drift left behind by abandoned booking flows.
// Each sweep is idempotent and safe to run concurrently with booking
// traffic; re-running on consistent data affects zero rows.
type Service struct {
	appointmentRepo repository.AppointmentRepository
	paymentRepo     repository.PaymentRepository
	slotRepo        repository.SlotRepository
	broker          messaging.Broker
	logger          *logger.Logger
	metrics         *metrics.Metrics
	paymentTimeout  time.Duration
}

func NewService(
	appointmentRepo repository.AppointmentRepository,
	paymentRepo repository.PaymentRepository,
	slotRepo repository.SlotRepository,
	broker messaging.Broker,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	paymentTimeout time.Duration,
) *Service {
	return &Service{
		appointmentRepo: appointmentRepo,
		paymentRepo:     paymentRepo,
		slotRepo:        slotRepo,
		broker:          broker,
		logger:          logger,
		metrics:         metrics,
		paymentTimeout:  paymentTimeout,
	}
}

// RunPaymentExpiry cancels pending-payment appointments older than the
// payment timeout and marks their payment rows expired. Items are processed
// independently; a failure is logged, counted, and skipped.
func (s *Service) RunPaymentExpiry(ctx context.Context) (int64, error) {
	defer s.observe(sweepPaymentExpiry)()

	cutoff := time.Now().Add(-s.paymentTimeout)
	stale, err := s.appointmentRepo.ListPendingPaymentBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale pending appointments: %w", err)
	}

	reason := "payment timeout"
	var expired int64
	for _, appt := range stale {
		if err := s.appointmentRepo.UpdateStatus(ctx, appt.ID, model.AppointmentStatusCancelled, &reason); err != nil {
			s.fail(sweepPaymentExpiry, err, appt.ID.String())
			continue
		}
		if err := s.paymentRepo.UpdateStatusByAppointment(ctx, appt.ID, model.PaymentStatusExpired); err != nil {
			// The appointment transition already happened; payment catch-up
			// lands on the next run.
			s.fail(sweepPaymentExpiry, err, appt.ID.String())
		}
		if err := s.slotRepo.DecrementOccupancy(ctx, appt.DoctorID, appt.StartTime, appt.Mode); err != nil {
			s.fail(sweepPaymentExpiry, err, appt.ID.String())
		}
		s.publishExpired(ctx, appt)
		expired++
	}

	if expired > 0 {
		s.logger.Info("expired stale pending bookings", "count", expired)
	}
	s.count(sweepPaymentExpiry, expired)
	return expired, nil
}

// ReleaseExpiredLocks clears every exclusive lock whose expiry has passed,
// regardless of holder.
func (s *Service) ReleaseExpiredLocks(ctx context.Context) (int64, error) {
	defer s.observe(sweepLockReclaim)()

	released, err := s.slotRepo.ReleaseExpiredLocks(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}

	if released > 0 {
		s.logger.Info("released expired slot locks", "count", released)
	}
	s.count(sweepLockReclaim, released)
	return released, nil
}

// MarkNoShows transitions confirmed appointments whose end time has passed.
func (s *Service) MarkNoShows(ctx context.Context) (int64, error) {
	defer s.observe(sweepNoShow)()

	marked, err := s.appointmentRepo.MarkNoShows(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark no-shows: %w", err)
	}

	if marked > 0 {
		s.logger.Info("marked no-show appointments", "count", marked)
	}
	s.count(sweepNoShow, marked)
	return marked, nil
}

// publishExpired emits the lifecycle event for a timed-out booking; delivery
// failures never abort the sweep.
func (s *Service) publishExpired(ctx context.Context, appt *model.Appointment) {
	if s.broker == nil {
		return
	}
	event := messaging.BookingEvent{
		Type:          messaging.EventBookingExpired,
		AppointmentID: appt.ID.String(),
		Payload:       appt,
	}
	if err := s.broker.Publish(ctx, messaging.BookingEventsChannel, event); err != nil {
		s.logger.Error(err, "failed to publish booking event", "type", messaging.EventBookingExpired, "appointment_id", appt.ID.String())
	}
}

func (s *Service) observe(sweep string) func() {
	if s.metrics == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(s.metrics.JanitorSweepDuration.WithLabelValues(sweep))
	return func() { timer.ObserveDuration() }
}

func (s *Service) count(sweep string, n int64) {
	if s.metrics != nil && n > 0 {
		s.metrics.JanitorSweepItems.WithLabelValues(sweep).Add(float64(n))
	}
}

func (s *Service) fail(sweep string, err error, id string) {
	s.logger.Error(err, "janitor item failed", "sweep", sweep, "id", id)
	if s.metrics != nil {
		s.metrics.JanitorSweepFailures.WithLabelValues(sweep).Inc()
	}
}
