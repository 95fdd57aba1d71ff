package booking_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository/memory"
	"github.com/healthbridge/booking-api/internal/service/availability"
	"github.com/healthbridge/booking-api/internal/service/booking"
	apperrors "github.com/healthbridge/booking-api/pkg/errors"
	"github.com/healthbridge/booking-api/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

type fixture struct {
	store  *memory.Store
	svc    *booking.Service
	doctor *model.Doctor
	start  time.Time
	req    *model.CreateBookingRequest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	log := testLogger()
	availabilitySvc := availability.NewService(store.Appointments(), store, store.Doctors(), log, nil, 30*time.Minute, 5*time.Minute)
	svc := booking.NewService(availabilitySvc, store.Appointments(), store, store, store.Doctors(), nil, log, nil)

	doctor := &model.Doctor{Name: "Dr. Mensah", ConsultationFee: 150, Verified: true, Active: true}
	store.AddDoctor(doctor)

	start := time.Date(2026, 9, 15, 10, 0, 0, 0, time.Local)
	store.AddSlot(&model.SlotInstance{
		DoctorID:    doctor.ID,
		SlotDate:    start,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Mode:        model.ConsultationModeInPerson,
		MaxBookings: 1,
	})

	return &fixture{
		store:  store,
		svc:    svc,
		doctor: doctor,
		start:  start,
		req: &model.CreateBookingRequest{
			PatientID:  uuid.New(),
			DoctorID:   doctor.ID,
			HospitalID: uuid.New(),
			Date:       "2026-09-15",
			Time:       "10:00",
			Mode:       model.ConsultationModeInPerson,
		},
	}
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.req)
	require.NoError(t, err)
	require.NotNil(t, appt)

	assert.Equal(t, model.AppointmentStatusPendingPayment, appt.Status)
	assert.Equal(t, f.start, appt.StartTime)
	assert.Equal(t, f.start.Add(30*time.Minute), appt.EndTime)

	payment, err := f.store.GetByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.Equal(t, 150.0, payment.Amount)

	slots := f.store.SlotSnapshot()
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].CurrentBookings)
}

func TestCreateBookingRejectsWhilePaymentPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, f.req)
	require.NoError(t, err)

	second := *f.req
	second.PatientID = uuid.New()
	_, err = f.svc.CreateBooking(ctx, &second)
	require.Error(t, err)

	se, ok := apperrors.AsSlotUnavailable(err)
	require.True(t, ok, "expected a slot-unavailable rejection, got %v", err)
	assert.Equal(t, apperrors.ReasonBookingInProgress, se.Reason)
}

func TestCreateBookingLostRaceReadsAsAlreadyBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.req)
	require.NoError(t, err)

	// Backdate the pending booking past the payment timeout and drift the
	// occupancy cache back to zero: every pre-check now passes, and only
	// the insert constraint stands between the two bookings.
	appt.CreatedAt = appt.CreatedAt.Add(-31 * time.Minute)
	require.NoError(t, f.store.DecrementOccupancy(ctx, f.doctor.ID, f.start, model.ConsultationModeInPerson))

	second := *f.req
	second.PatientID = uuid.New()
	_, err = f.svc.CreateBooking(ctx, &second)
	require.Error(t, err)

	se, ok := apperrors.AsSlotUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonAlreadyBooked, se.Reason)
}

func TestCreateBookingConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := *f.req
			req.PatientID = uuid.New()
			_, err := f.svc.CreateBooking(ctx, &req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		_, ok := apperrors.AsSlotUnavailable(err)
		require.True(t, ok, "unexpected error kind: %v", err)
		rejections++
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, rejections)

	slots := f.store.SlotSnapshot()
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].CurrentBookings)
}

func TestCreateBookingUnbookableDoctor(t *testing.T) {
	f := newFixture(t)
	f.doctor.Verified = false

	_, err := f.svc.CreateBooking(context.Background(), f.req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accepting bookings")
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.req)
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmPayment(ctx, appt.ID))

	stored, err := f.store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, stored.Status)

	payment, err := f.store.GetByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, payment.Status)

	// Re-delivered gateway events are no-ops.
	require.NoError(t, f.svc.ConfirmPayment(ctx, appt.ID))

	// Confirming a cancelled appointment is a client error.
	require.NoError(t, f.svc.CancelBooking(ctx, appt.ID, "change of plans"))
	err = f.svc.ConfirmPayment(ctx, appt.ID)
	require.Error(t, err)
}

func TestFailPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.req)
	require.NoError(t, err)

	require.NoError(t, f.svc.FailPayment(ctx, appt.ID))

	stored, err := f.store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, stored.Status)

	payment, err := f.store.GetByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, payment.Status)

	// Capacity goes back and the slot is immediately bookable again.
	slots := f.store.SlotSnapshot()
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].CurrentBookings)

	second := *f.req
	second.PatientID = uuid.New()
	_, err = f.svc.CreateBooking(ctx, &second)
	require.NoError(t, err)

	// FailPayment on a non-pending appointment is a no-op.
	require.NoError(t, f.svc.FailPayment(ctx, appt.ID))
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.req)
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmPayment(ctx, appt.ID))

	require.NoError(t, f.svc.CancelBooking(ctx, appt.ID, "patient request"))

	stored, err := f.store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "patient request", *stored.CancelReason)

	slots := f.store.SlotSnapshot()
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].CurrentBookings)

	err = f.svc.CancelBooking(ctx, appt.ID, "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already cancelled")
}

func TestCancelBookingLeavesOtherModeSlotsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A remote slot at the same start with its own occupancy must not be
	// drained when the in-person booking is cancelled.
	remote := &model.SlotInstance{
		DoctorID:        f.doctor.ID,
		SlotDate:        f.start,
		StartTime:       f.start,
		EndTime:         f.start.Add(30 * time.Minute),
		Mode:            model.ConsultationModeRemote,
		MaxBookings:     2,
		CurrentBookings: 1,
	}
	f.store.AddSlot(remote)

	appt, err := f.svc.CreateBooking(ctx, f.req)
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelBooking(ctx, appt.ID, "patient request"))

	for _, slot := range f.store.SlotSnapshot() {
		switch slot.Mode {
		case model.ConsultationModeInPerson:
			assert.Equal(t, 0, slot.CurrentBookings)
		case model.ConsultationModeRemote:
			assert.Equal(t, 1, slot.CurrentBookings)
		}
	}
}
