// Package memory provides an in-process implementation of the repository
// interfaces with the same concurrency semantics as the Postgres layer: the
// partial uniqueness guard over occupying appointments, the conditional
// occupancy bump, and compare-and-set lock acquisition. It backs the service
// tests and local development without a database.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
)

type Store struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*model.Appointment
	payments     map[uuid.UUID]*model.Payment
	slots        map[uuid.UUID]*model.SlotInstance
	schedules    []*model.WeeklySchedule
	overrides    map[string]*model.ScheduleOverride
	doctors      map[uuid.UUID]*model.Doctor
}

func NewStore() *Store {
	return &Store{
		appointments: make(map[uuid.UUID]*model.Appointment),
		payments:     make(map[uuid.UUID]*model.Payment),
		slots:        make(map[uuid.UUID]*model.SlotInstance),
		overrides:    make(map[string]*model.ScheduleOverride),
		doctors:      make(map[uuid.UUID]*model.Doctor),
	}
}

func overrideKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + ":" + date.Format(model.DateOnly)
}

// Seed helpers; they take the lock so tests can call them at any point.

func (s *Store) AddDoctor(d *model.Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.doctors[d.ID] = d
}

func (s *Store) AddSchedule(sched *model.WeeklySchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched.ID == uuid.Nil {
		sched.ID = uuid.New()
	}
	s.schedules = append(s.schedules, sched)
}

func (s *Store) AddOverride(o *model.ScheduleOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	s.overrides[overrideKey(o.DoctorID, o.Date)] = o
}

func (s *Store) AddSlot(slot *model.SlotInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	s.slots[slot.ID] = slot
}

func (s *Store) AddAppointment(appt *model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	s.appointments[appt.ID] = appt
}

// SlotSnapshot returns a copy of all slot instances, unordered.
func (s *Store) SlotSnapshot() []*model.SlotInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.SlotInstance, 0, len(s.slots))
	for _, slot := range s.slots {
		copied := *slot
		out = append(out, &copied)
	}
	return out
}

// Get is the only colliding method name across the repository interfaces;
// the Store's own Get serves slots, and appointments and doctors are reached
// through thin views.

func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentView{s} }

func (s *Store) Doctors() repository.DoctorRepository { return &doctorView{s} }

type appointmentView struct{ *Store }

func (v *appointmentView) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return v.GetAppointment(ctx, id)
}

type doctorView struct{ *Store }

func (v *doctorView) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	return v.GetDoctor(ctx, id)
}

// ScheduleRepository

func (s *Store) ListActive(ctx context.Context, doctorID uuid.UUID) ([]*model.WeeklySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WeeklySchedule
	for _, sched := range s.schedules {
		if sched.DoctorID == doctorID && sched.Active {
			out = append(out, sched)
		}
	}
	return out, nil
}

func (s *Store) GetOverride(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.ScheduleOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrides[overrideKey(doctorID, date)], nil
}

// SlotRepository

func (s *Store) UpsertIgnoreConflicts(ctx context.Context, slots []*model.SlotInstance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, slot := range slots {
		if s.findByKeyLocked(slot.DoctorID, slot.StartTime, slot.Mode) != nil {
			continue
		}
		slot.ID = uuid.New()
		slot.CreatedAt = time.Now()
		slot.UpdatedAt = time.Now()
		s.slots[slot.ID] = slot
		inserted++
	}
	return inserted, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.SlotInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot instance %s not found", id)
	}
	copied := *slot
	return &copied, nil
}

func (s *Store) GetByKey(ctx context.Context, doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) (*model.SlotInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.findByKeyLocked(doctorID, start, mode)
	if slot == nil {
		return nil, nil
	}
	copied := *slot
	return &copied, nil
}

func (s *Store) findByKeyLocked(doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) *model.SlotInstance {
	for _, slot := range s.slots {
		if slot.DoctorID == doctorID && slot.StartTime.Equal(start) &&
			(slot.Mode == mode || slot.Mode == model.ConsultationModeEither) {
			return slot
		}
	}
	return nil
}

func (s *Store) ListForDate(ctx context.Context, doctorID uuid.UUID, date time.Time, mode model.ConsultationMode) ([]*model.SlotInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SlotInstance
	for _, slot := range s.slots {
		if slot.DoctorID != doctorID || slot.Blocked {
			continue
		}
		if slot.SlotDate.Format(model.DateOnly) != date.Format(model.DateOnly) {
			continue
		}
		if slot.Mode != mode && slot.Mode != model.ConsultationModeEither {
			continue
		}
		copied := *slot
		out = append(out, &copied)
	}
	// callers rely on ascending start order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartTime.Before(out[j-1].StartTime); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (s *Store) IncrementOccupancy(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(id)
}

func (s *Store) incrementLocked(id uuid.UUID) error {
	slot, ok := s.slots[id]
	if !ok {
		return fmt.Errorf("slot instance %s not found", id)
	}
	if slot.CurrentBookings >= slot.MaxBookings {
		return repository.ErrSlotCapacity
	}
	slot.CurrentBookings++
	return nil
}

func (s *Store) DecrementOccupancy(ctx context.Context, doctorID uuid.UUID, start time.Time, mode model.ConsultationMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.DoctorID != doctorID || !slot.StartTime.Equal(start) {
			continue
		}
		if slot.Mode != mode && slot.Mode != model.ConsultationModeEither {
			continue
		}
		if slot.CurrentBookings > 0 {
			slot.CurrentBookings--
		}
	}
	return nil
}

func (s *Store) AcquireLock(ctx context.Context, id, requesterID uuid.UUID, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return false, nil
	}
	now := time.Now()
	free := slot.LockedBy == nil ||
		(slot.LockExpiresAt != nil && slot.LockExpiresAt.Before(now)) ||
		*slot.LockedBy == requesterID
	if !free {
		return false, nil
	}
	holder := requesterID
	expiry := expiresAt
	slot.LockedBy = &holder
	slot.LockExpiresAt = &expiry
	return true, nil
}

func (s *Store) ReleaseLock(ctx context.Context, id, requesterID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok || slot.LockedBy == nil || *slot.LockedBy != requesterID {
		return false, nil
	}
	slot.LockedBy = nil
	slot.LockExpiresAt = nil
	return true, nil
}

func (s *Store) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var released int64
	for _, slot := range s.slots {
		if slot.LockExpiresAt != nil && slot.LockExpiresAt.Before(now) {
			slot.LockedBy = nil
			slot.LockExpiresAt = nil
			released++
		}
	}
	return released, nil
}

func (s *Store) BlockDate(ctx context.Context, doctorID uuid.UUID, date time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := date.Format(model.DateOnly)
	var blocked int64
	for _, slot := range s.slots {
		if slot.DoctorID == doctorID && slot.SlotDate.Format(model.DateOnly) == day && slot.CurrentBookings == 0 {
			slot.Blocked = true
			r := reason
			slot.BlockReason = &r
			blocked++
		}
	}
	return blocked, nil
}

func (s *Store) DeleteUnoccupiedFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, slot := range s.slots {
		if slot.DoctorID == doctorID && !slot.StartTime.Before(from) && slot.CurrentBookings == 0 {
			delete(s.slots, id)
			deleted++
		}
	}
	return deleted, nil
}

// AppointmentRepository

func (s *Store) CreateBooking(ctx context.Context, appt *model.Appointment, slotID *uuid.UUID, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.appointments {
		if existing.DoctorID == appt.DoctorID && existing.StartTime.Equal(appt.StartTime) && existing.Status.Occupying() {
			return repository.ErrDuplicateBooking
		}
	}

	if slotID != nil {
		if err := s.incrementLocked(*slotID); err != nil {
			return err
		}
	}

	appt.ID = uuid.New()
	appt.Status = model.AppointmentStatusPendingPayment
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = time.Now()
	s.appointments[appt.ID] = appt

	if payment != nil {
		payment.ID = uuid.New()
		payment.AppointmentID = appt.ID
		payment.Status = model.PaymentStatusPending
		payment.CreatedAt = time.Now()
		payment.UpdatedAt = time.Now()
		s.payments[appt.ID] = payment
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %s not found", id)
	}
	copied := *appt
	return &copied, nil
}

func (s *Store) ListOccupying(ctx context.Context, doctorID uuid.UUID, start time.Time) ([]*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Appointment
	for _, appt := range s.appointments {
		if appt.DoctorID == doctorID && appt.StartTime.Equal(start) && appt.Status.Occupying() {
			copied := *appt
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %s not found", id)
	}
	appt.Status = status
	if reason != nil {
		appt.CancelReason = reason
	}
	appt.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListPendingPaymentBefore(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Appointment
	for _, appt := range s.appointments {
		if appt.Status == model.AppointmentStatusPendingPayment && appt.CreatedAt.Before(cutoff) {
			copied := *appt
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *Store) MarkNoShows(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var marked int64
	for _, appt := range s.appointments {
		if appt.Status == model.AppointmentStatusConfirmed && appt.EndTime.Before(now) {
			appt.Status = model.AppointmentStatusNoShow
			appt.UpdatedAt = time.Now()
			marked++
		}
	}
	return marked, nil
}

// PaymentRepository

func (s *Store) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[appointmentID]
	if !ok {
		return nil, fmt.Errorf("payment for appointment %s not found", appointmentID)
	}
	copied := *payment
	return &copied, nil
}

func (s *Store) UpdateStatusByAppointment(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[appointmentID]
	if !ok {
		return fmt.Errorf("payment for appointment %s not found", appointmentID)
	}
	payment.Status = status
	payment.UpdatedAt = time.Now()
	return nil
}

// DoctorRepository

func (s *Store) GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doctor, ok := s.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor %s not found", id)
	}
	copied := *doctor
	return &copied, nil
}

func (s *Store) ListBookable(ctx context.Context) ([]*model.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Doctor
	for _, doctor := range s.doctors {
		if doctor.Verified && doctor.Active {
			copied := *doctor
			out = append(out, &copied)
		}
	}
	return out, nil
}
