package janitor_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
	"github.com/healthbridge/booking-api/internal/repository/memory"
	"github.com/healthbridge/booking-api/internal/service/janitor"
	"github.com/healthbridge/booking-api/pkg/logger"
	"github.com/healthbridge/booking-api/pkg/messaging"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func newService(store *memory.Store) *janitor.Service {
	return janitor.NewService(store.Appointments(), store, store, nil, testLogger(), nil, 30*time.Minute)
}

// recordingBroker captures published events for assertions.
type recordingBroker struct {
	mu     sync.Mutex
	events []messaging.BookingEvent
}

func (b *recordingBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if event, ok := message.(messaging.BookingEvent); ok {
		b.events = append(b.events, event)
	}
	return nil
}

func (b *recordingBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) published() []messaging.BookingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]messaging.BookingEvent(nil), b.events...)
}

// seedPendingBooking creates an appointment, payment, and occupied slot the
// way the booking transaction would, then backdates the appointment.
func seedPendingBooking(t *testing.T, store *memory.Store, age time.Duration) *model.Appointment {
	t.Helper()

	doctorID := uuid.New()
	start := time.Now().Add(24 * time.Hour)
	slot := &model.SlotInstance{
		DoctorID:    doctorID,
		SlotDate:    start,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Mode:        model.ConsultationModeInPerson,
		MaxBookings: 1,
	}
	store.AddSlot(slot)

	appt := &model.Appointment{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Mode:      model.ConsultationModeInPerson,
	}
	payment := &model.Payment{Amount: 100}
	require.NoError(t, store.CreateBooking(context.Background(), appt, &slot.ID, payment))

	appt.CreatedAt = time.Now().Add(-age)
	return appt
}

func TestRunPaymentExpiry(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store)
	ctx := context.Background()

	stale := seedPendingBooking(t, store, time.Hour)
	fresh := seedPendingBooking(t, store, time.Minute)

	expired, err := svc.RunPaymentExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	staleAppt, err := store.GetAppointment(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, staleAppt.Status)
	require.NotNil(t, staleAppt.CancelReason)
	assert.Equal(t, "payment timeout", *staleAppt.CancelReason)

	payment, err := store.GetByAppointment(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusExpired, payment.Status)

	freshAppt, err := store.GetAppointment(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPendingPayment, freshAppt.Status)

	// Capacity held by the stale booking is returned.
	for _, slot := range store.SlotSnapshot() {
		if slot.DoctorID == stale.DoctorID {
			assert.Equal(t, 0, slot.CurrentBookings)
		}
	}

	// A second run finds nothing to do.
	expired, err = svc.RunPaymentExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), expired)
}

func TestRunPaymentExpiryPublishesExpiredEvents(t *testing.T) {
	store := memory.NewStore()
	broker := &recordingBroker{}
	svc := janitor.NewService(store.Appointments(), store, store, broker, testLogger(), nil, 30*time.Minute)
	ctx := context.Background()

	stale := seedPendingBooking(t, store, time.Hour)
	seedPendingBooking(t, store, time.Minute)

	expired, err := svc.RunPaymentExpiry(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	events := broker.published()
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventBookingExpired, events[0].Type)
	assert.Equal(t, stale.ID.String(), events[0].AppointmentID)

	// Re-running must not re-announce already expired bookings.
	_, err = svc.RunPaymentExpiry(ctx)
	require.NoError(t, err)
	assert.Len(t, broker.published(), 1)
}

type flakyAppointments struct {
	repository.AppointmentRepository
	failID uuid.UUID
}

func (f *flakyAppointments) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *string) error {
	if id == f.failID {
		return errors.New("deadlock detected")
	}
	return f.AppointmentRepository.UpdateStatus(ctx, id, status, reason)
}

func TestRunPaymentExpiryContinuesPastFailures(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	broken := seedPendingBooking(t, store, time.Hour)
	healthy := seedPendingBooking(t, store, time.Hour)

	flaky := &flakyAppointments{AppointmentRepository: store.Appointments(), failID: broken.ID}
	svc := janitor.NewService(flaky, store, store, nil, testLogger(), nil, 30*time.Minute)

	expired, err := svc.RunPaymentExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	healthyAppt, err := store.GetAppointment(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, healthyAppt.Status)

	// The failed item stays pending and is retried on the next run.
	brokenAppt, err := store.GetAppointment(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPendingPayment, brokenAppt.Status)
}

func TestReleaseExpiredLocks(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store)
	ctx := context.Background()

	expiredHolder := uuid.New()
	activeHolder := uuid.New()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	store.AddSlot(&model.SlotInstance{
		DoctorID:      uuid.New(),
		StartTime:     time.Now().Add(24 * time.Hour),
		Mode:          model.ConsultationModeInPerson,
		MaxBookings:   1,
		LockedBy:      &expiredHolder,
		LockExpiresAt: &past,
	})
	store.AddSlot(&model.SlotInstance{
		DoctorID:      uuid.New(),
		StartTime:     time.Now().Add(25 * time.Hour),
		Mode:          model.ConsultationModeInPerson,
		MaxBookings:   1,
		LockedBy:      &activeHolder,
		LockExpiresAt: &future,
	})

	released, err := svc.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	var held int
	for _, slot := range store.SlotSnapshot() {
		if slot.LockedBy != nil {
			held++
			assert.Equal(t, activeHolder, *slot.LockedBy)
		}
	}
	assert.Equal(t, 1, held)

	released, err = svc.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)
}

func TestMarkNoShows(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store)
	ctx := context.Background()

	past := &model.Appointment{
		DoctorID:  uuid.New(),
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-90 * time.Minute),
		Status:    model.AppointmentStatusConfirmed,
	}
	upcoming := &model.Appointment{
		DoctorID:  uuid.New(),
		StartTime: time.Now().Add(time.Hour),
		EndTime:   time.Now().Add(90 * time.Minute),
		Status:    model.AppointmentStatusConfirmed,
	}
	completed := &model.Appointment{
		DoctorID:  uuid.New(),
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-90 * time.Minute),
		Status:    model.AppointmentStatusCompleted,
	}
	store.AddAppointment(past)
	store.AddAppointment(upcoming)
	store.AddAppointment(completed)

	marked, err := svc.MarkNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	pastAppt, err := store.GetAppointment(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, pastAppt.Status)

	upcomingAppt, err := store.GetAppointment(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, upcomingAppt.Status)

	marked, err = svc.MarkNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)
}
