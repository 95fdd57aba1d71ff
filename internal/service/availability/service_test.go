package availability_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
	"github.com/healthbridge/booking-api/internal/repository/memory"
	"github.com/healthbridge/booking-api/internal/service/availability"
	apperrors "github.com/healthbridge/booking-api/pkg/errors"
	"github.com/healthbridge/booking-api/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func newService(store *memory.Store, paymentTimeout, lockTTL time.Duration) *availability.Service {
	return availability.NewService(store.Appointments(), store, store.Doctors(), testLogger(), nil, paymentTimeout, lockTTL)
}

func TestCheckAvailabilityNoSlotInstance(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, 30*time.Minute, 5*time.Minute)

	result, err := svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:  uuid.New(),
		StartTime: time.Now().Add(24 * time.Hour),
		Mode:      model.ConsultationModeInPerson,
	})

	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Nil(t, result.SlotID)
}

func TestCheckAvailabilityConfirmedAppointmentWins(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, 30*time.Minute, 5*time.Minute)

	doctorID := uuid.New()
	start := time.Now().Add(24 * time.Hour)

	// An open slot instance exists, but the confirmed appointment row is
	// authoritative.
	store.AddSlot(&model.SlotInstance{
		DoctorID:    doctorID,
		SlotDate:    start,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Mode:        model.ConsultationModeInPerson,
		MaxBookings: 1,
	})
	store.AddAppointment(&model.Appointment{
		Base:      model.Base{CreatedAt: time.Now()},
		DoctorID:  doctorID,
		StartTime: start,
		Status:    model.AppointmentStatusConfirmed,
	})

	result, err := svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:  doctorID,
		StartTime: start,
		Mode:      model.ConsultationModeInPerson,
	})

	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, apperrors.ReasonAlreadyBooked, result.Reason)
}

func TestCheckAvailabilityPendingPayment(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, 30*time.Minute, 5*time.Minute)

	doctorID := uuid.New()
	start := time.Now().Add(24 * time.Hour)

	appt := &model.Appointment{
		Base:      model.Base{CreatedAt: time.Now()},
		DoctorID:  doctorID,
		StartTime: start,
		Status:    model.AppointmentStatusPendingPayment,
	}
	store.AddAppointment(appt)

	result, err := svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:  doctorID,
		StartTime: start,
		Mode:      model.ConsultationModeInPerson,
	})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, apperrors.ReasonBookingInProgress, result.Reason)

	// Once the pending booking outlives the payment timeout it is treated
	// as abandoned at read time.
	appt.CreatedAt = time.Now().Add(-31 * time.Minute)
	result, err = svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:  doctorID,
		StartTime: start,
		Mode:      model.ConsultationModeInPerson,
	})
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestCheckAvailabilityBlockedAndFullSlots(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, 30*time.Minute, 5*time.Minute)

	doctorID := uuid.New()
	start := time.Now().Add(24 * time.Hour)

	slot := &model.SlotInstance{
		DoctorID:    doctorID,
		SlotDate:    start,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Mode:        model.ConsultationModeInPerson,
		MaxBookings: 1,
		Blocked:     true,
	}
	store.AddSlot(slot)

	result, err := svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:  doctorID,
		StartTime: start,
		Mode:      model.ConsultationModeInPerson,
	})
	require.NoError(t, err)
	assert.Equal(t, apperrors.ReasonSlotBlocked, result.Reason)

	slot.Blocked = false
	slot.CurrentBookings = 1
	result, err = svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:  doctorID,
		StartTime: start,
		Mode:      model.ConsultationModeInPerson,
	})
	require.NoError(t, err)
	assert.Equal(t, apperrors.ReasonAtCapacity, result.Reason)
}

func TestCheckAvailabilityRespectsForeignLock(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, 30*time.Minute, 5*time.Minute)

	doctorID := uuid.New()
	holder := uuid.New()
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

	locked, err := svc.LockSlot(context.Background(), slot.ID, holder, time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	// Someone else sees the slot as reserved.
	result, err := svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:    doctorID,
		StartTime:   start,
		Mode:        model.ConsultationModeInPerson,
		RequesterID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, apperrors.ReasonTemporarilyReserved, result.Reason)

	// The holder's own lock does not count against them.
	result, err = svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:    doctorID,
		StartTime:   start,
		Mode:        model.ConsultationModeInPerson,
		RequesterID: holder,
	})
	require.NoError(t, err)
	assert.True(t, result.Available)
	require.NotNil(t, result.SlotID)
	assert.Equal(t, slot.ID, *result.SlotID)
}

type failingSlotRepo struct {
	repository.SlotRepository
}

func (f *failingSlotRepo) GetByKey(ctx context.Context, doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) (*model.SlotInstance, error) {
	return nil, errors.New("connection refused")
}

func TestCheckAvailabilityAssumesBookedOnStoreError(t *testing.T) {
	store := memory.NewStore()
	svc := availability.NewService(store.Appointments(), &failingSlotRepo{store}, store.Doctors(), testLogger(), nil, 30*time.Minute, 5*time.Minute)

	result, err := svc.CheckAvailability(context.Background(), &model.AvailabilityRequest{
		DoctorID:  uuid.New(),
		StartTime: time.Now().Add(24 * time.Hour),
		Mode:      model.ConsultationModeInPerson,
	})

	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, apperrors.ReasonTemporarilyReserved, result.Reason)
}

func TestLockSlotLifecycle(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, 30*time.Minute, 5*time.Minute)

	slot := &model.SlotInstance{
		DoctorID:    uuid.New(),
		StartTime:   time.Now().Add(24 * time.Hour),
		Mode:        model.ConsultationModeInPerson,
		MaxBookings: 1,
	}
	store.AddSlot(slot)

	holder := uuid.New()
	intruder := uuid.New()

	locked, err := svc.LockSlot(context.Background(), slot.ID, holder, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, locked)

	// Re-acquiring your own lock succeeds; taking someone else's does not.
	locked, err = svc.LockSlot(context.Background(), slot.ID, holder, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = svc.LockSlot(context.Background(), slot.ID, intruder, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, locked)

	released, err := svc.ReleaseSlotLock(context.Background(), slot.ID, intruder)
	require.NoError(t, err)
	assert.False(t, released)

	// After expiry the lock is up for grabs without janitor involvement.
	time.Sleep(60 * time.Millisecond)
	locked, err = svc.LockSlot(context.Background(), slot.ID, intruder, time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	released, err = svc.ReleaseSlotLock(context.Background(), slot.ID, intruder)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestListOpenSlots(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, 30*time.Minute, 5*time.Minute)

	doctor := &model.Doctor{Name: "Dr. Osei", ConsultationFee: 120, Verified: true, Active: true}
	store.AddDoctor(doctor)

	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.Local)
	mk := func(hour int, booked, max int, blocked bool) {
		start := day.Add(time.Duration(hour) * time.Hour)
		store.AddSlot(&model.SlotInstance{
			DoctorID:        doctor.ID,
			SlotDate:        day,
			StartTime:       start,
			EndTime:         start.Add(30 * time.Minute),
			Mode:            model.ConsultationModeInPerson,
			MaxBookings:     max,
			CurrentBookings: booked,
			Blocked:         blocked,
		})
	}
	mk(11, 0, 2, false)
	mk(9, 0, 1, false)
	mk(10, 1, 1, false) // full
	mk(12, 0, 1, true)  // blocked

	open, err := svc.ListOpenSlots(context.Background(), doctor.ID, day, model.ConsultationModeInPerson)
	require.NoError(t, err)
	require.Len(t, open, 2)

	assert.Equal(t, day.Add(9*time.Hour), open[0].StartTime)
	assert.Equal(t, day.Add(11*time.Hour), open[1].StartTime)
	assert.Equal(t, 2, open[1].RemainingCapacity)
	assert.Equal(t, 120.0, open[0].Fee)
}
