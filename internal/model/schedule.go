package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConsultationMode string

const (
	ConsultationModeRemote   ConsultationMode = "remote"
	ConsultationModeInPerson ConsultationMode = "in_person"
	ConsultationModeEither   ConsultationMode = "either"
)

// WeeklySchedule is a doctor's recurring availability window for one day of
// the week. Written by hospital administration, read by the slot generator.
type WeeklySchedule struct {
	Base
	DoctorID    uuid.UUID        `db:"doctor_id" json:"doctor_id"`
	DayOfWeek   int              `db:"day_of_week" json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime   string           `db:"start_time" json:"start_time" validate:"required"`
	EndTime     string           `db:"end_time" json:"end_time" validate:"required"`
	SlotMinutes int              `db:"slot_minutes" json:"slot_minutes" validate:"gte=5,lte=240"`
	BreakStart  *string          `db:"break_start" json:"break_start,omitempty"`
	BreakEnd    *string          `db:"break_end" json:"break_end,omitempty"`
	Mode        ConsultationMode `db:"consultation_mode" json:"consultation_mode" validate:"required,oneof=remote in_person either"`
	MaxBookings int              `db:"max_bookings" json:"max_bookings" validate:"gte=1"`
	Active      bool             `db:"active" json:"active"`
}

// Validate checks the window invariants: start < end and the break window,
// when present, lies within [start, end).
func (s *WeeklySchedule) Validate() error {
	start, err := time.Parse(TimeOfDay, s.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", s.StartTime, err)
	}
	end, err := time.Parse(TimeOfDay, s.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", s.EndTime, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("schedule start %s must be before end %s", s.StartTime, s.EndTime)
	}

	if (s.BreakStart == nil) != (s.BreakEnd == nil) {
		return fmt.Errorf("break window must carry both start and end")
	}
	if s.BreakStart != nil {
		bs, err := time.Parse(TimeOfDay, *s.BreakStart)
		if err != nil {
			return fmt.Errorf("invalid break start %q: %w", *s.BreakStart, err)
		}
		be, err := time.Parse(TimeOfDay, *s.BreakEnd)
		if err != nil {
			return fmt.Errorf("invalid break end %q: %w", *s.BreakEnd, err)
		}
		if !bs.Before(be) {
			return fmt.Errorf("break start %s must be before break end %s", *s.BreakStart, *s.BreakEnd)
		}
		if bs.Before(start) || be.After(end) {
			return fmt.Errorf("break window must lie within the schedule window")
		}
	}

	return nil
}

type OverrideKind string

const (
	OverrideKindHoliday      OverrideKind = "holiday"
	OverrideKindLeave        OverrideKind = "leave"
	OverrideKindSpecialHours OverrideKind = "special_hours"
)

// ScheduleOverride is a date-specific exception to the weekly schedule.
// Holiday and leave suppress generation for the date; special hours replace
// the weekly window with the override's own start/end.
type ScheduleOverride struct {
	Base
	DoctorID  uuid.UUID    `db:"doctor_id" json:"doctor_id"`
	Date      time.Time    `db:"override_date" json:"date"`
	Kind      OverrideKind `db:"kind" json:"kind" validate:"required,oneof=holiday leave special_hours"`
	StartTime *string      `db:"start_time" json:"start_time,omitempty"`
	EndTime   *string      `db:"end_time" json:"end_time,omitempty"`
	Reason    string       `db:"reason" json:"reason,omitempty"`
}

func (o *ScheduleOverride) Validate() error {
	if o.Kind == OverrideKindSpecialHours {
		if o.StartTime == nil || o.EndTime == nil {
			return fmt.Errorf("special hours override must carry both start and end times")
		}
	}
	return nil
}

// Suppresses reports whether the override removes the doctor's availability
// for its date entirely.
func (o *ScheduleOverride) Suppresses() bool {
	return o.Kind == OverrideKindHoliday || o.Kind == OverrideKindLeave
}
