package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository"
	"github.com/healthbridge/booking-api/pkg/logger"
	"github.com/healthbridge/booking-api/pkg/metrics"
	"github.com/healthbridge/booking-api/pkg/validator"
)

// Service materializes weekly schedules into dated slot instances over a
// rolling horizon. Generation is idempotent: the upsert ignores conflicts on
// (doctor, start time, mode) so booked slots are never duplicated or reset.
type Service struct {
	scheduleRepo repository.ScheduleRepository
	slotRepo     repository.SlotRepository
	doctorRepo   repository.DoctorRepository
	validate     *validator.Validator
	logger       *logger.Logger
	metrics      *metrics.Metrics
	horizonDays  int
}

func NewService(
	scheduleRepo repository.ScheduleRepository,
	slotRepo repository.SlotRepository,
	doctorRepo repository.DoctorRepository,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	horizonDays int,
) *Service {
	return &Service{
		scheduleRepo: scheduleRepo,
		slotRepo:     slotRepo,
		doctorRepo:   doctorRepo,
		validate:     validator.New(),
		logger:       logger,
		metrics:      metrics,
		horizonDays:  horizonDays,
	}
}

// GenerateSlots expands the doctor's active weekly schedules over [from, to]
// inclusive, applying date overrides, and upserts the resulting instances.
// Returns the number of newly materialized slots.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	schedules, err := s.scheduleRepo.ListActive(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("failed to load schedules: %w", err)
	}
	if len(schedules) == 0 {
		return 0, nil
	}

	var created int64
	for date := truncateToDay(from); !date.After(truncateToDay(to)); date = date.AddDate(0, 0, 1) {
		slots, err := s.expandDay(ctx, doctorID, schedules, date)
		if err != nil {
			return created, err
		}
		if len(slots) == 0 {
			continue
		}

		inserted, err := s.slotRepo.UpsertIgnoreConflicts(ctx, slots)
		if err != nil {
			return created, fmt.Errorf("failed to upsert slots for %s: %w", date.Format(model.DateOnly), err)
		}
		created += inserted
	}

	if s.metrics != nil {
		s.metrics.SlotsGenerated.Add(float64(created))
	}
	return created, nil
}

// RegenerateForDoctor is invoked after a schedule edit: future slots with no
// bookings are dropped, then the horizon is rebuilt. Occupied slots survive
// and are reconciled by the administrative cancellation flow.
func (s *Service) RegenerateForDoctor(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	now := time.Now()
	deleted, err := s.slotRepo.DeleteUnoccupiedFrom(ctx, doctorID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear future slots: %w", err)
	}
	s.logger.Debug("cleared future unoccupied slots", "doctor_id", doctorID.String(), "deleted", deleted)

	return s.GenerateSlots(ctx, doctorID, now, now.AddDate(0, 0, s.horizonDays))
}

// ExtendHorizon runs the daily sweep over all bookable doctors. A failure
// for one doctor is logged and does not abort the rest.
func (s *Service) ExtendHorizon(ctx context.Context) (int64, error) {
	doctors, err := s.doctorRepo.ListBookable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list bookable doctors: %w", err)
	}

	now := time.Now()
	var total int64
	for _, doctor := range doctors {
		created, err := s.GenerateSlots(ctx, doctor.ID, now, now.AddDate(0, 0, s.horizonDays))
		if err != nil {
			s.logger.Error(err, "failed to extend slot horizon", "doctor_id", doctor.ID.String())
			continue
		}
		total += created
	}
	return total, nil
}

func (s *Service) expandDay(ctx context.Context, doctorID uuid.UUID, schedules []*model.WeeklySchedule, date time.Time) ([]*model.SlotInstance, error) {
	override, err := s.scheduleRepo.GetOverride(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load override: %w", err)
	}
	if override != nil {
		if err := override.Validate(); err != nil {
			s.logger.Warn("skipping malformed override", "override_id", override.ID.String(), "date", date.Format(model.DateOnly), "error", err.Error())
			override = nil
		}
	}

	if override != nil && override.Suppresses() {
		reason := override.Reason
		if reason == "" {
			reason = string(override.Kind)
		}
		blocked, err := s.slotRepo.BlockDate(ctx, doctorID, date, reason)
		if err != nil {
			return nil, fmt.Errorf("failed to block slots: %w", err)
		}
		if blocked > 0 {
			s.logger.Info("blocked slots for override", "doctor_id", doctorID.String(), "date", date.Format(model.DateOnly), "blocked", blocked)
		}
		return nil, nil
	}

	var slots []*model.SlotInstance
	for _, sched := range schedules {
		if sched.DayOfWeek != int(date.Weekday()) {
			continue
		}
		if err := s.validate.Validate(sched); err != nil {
			s.logger.Warn("skipping malformed schedule", "schedule_id", sched.ID.String(), "error", err.Error())
			continue
		}
		if err := sched.Validate(); err != nil {
			s.logger.Warn("skipping malformed schedule", "schedule_id", sched.ID.String(), "error", err.Error())
			continue
		}

		start := atClock(date, sched.StartTime)
		end := atClock(date, sched.EndTime)
		if override != nil && override.Kind == model.OverrideKindSpecialHours {
			start = atClock(date, *override.StartTime)
			end = atClock(date, *override.EndTime)
		}

		slots = append(slots, expandWindow(sched, date, start, end)...)
	}
	return slots, nil
}

// expandWindow cuts [start, end) into fixed-width slots, dropping any slot
// that overlaps the schedule's break window. A slot overlaps the break when
// it starts before the break ends and ends after the break starts.
func expandWindow(sched *model.WeeklySchedule, date, start, end time.Time) []*model.SlotInstance {
	width := time.Duration(sched.SlotMinutes) * time.Minute

	var breakStart, breakEnd time.Time
	hasBreak := sched.BreakStart != nil && sched.BreakEnd != nil
	if hasBreak {
		breakStart = atClock(date, *sched.BreakStart)
		breakEnd = atClock(date, *sched.BreakEnd)
	}

	var slots []*model.SlotInstance
	for t := start; !t.Add(width).After(end); t = t.Add(width) {
		slotEnd := t.Add(width)
		if hasBreak && t.Before(breakEnd) && slotEnd.After(breakStart) {
			continue
		}
		slots = append(slots, &model.SlotInstance{
			DoctorID:    sched.DoctorID,
			SlotDate:    date,
			StartTime:   t,
			EndTime:     slotEnd,
			Mode:        sched.Mode,
			MaxBookings: sched.MaxBookings,
		})
	}
	return slots
}

func atClock(date time.Time, clock string) time.Time {
	t, err := time.Parse(model.TimeOfDay, clock)
	if err != nil {
		return date
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
