package model

import (
	"time"

	"github.com/Freeeeeet/tutorbook/internal/timeslot"
)

// AvailabilitySlot is a bookable interval declared by a tutor.
// For recurring slots Date only anchors the weekday.
type AvailabilitySlot struct {
	ID        int64          `json:"id"`
	TutorID   int64          `json:"tutor_id"`
	Date      time.Time      `json:"date"` // midnight UTC, see timeslot.DateOf
	StartTime timeslot.Clock `json:"start_time"`
	EndTime   timeslot.Clock `json:"end_time"`
	Recurring bool           `json:"recurring"`
	CreatedAt time.Time      `json:"created_at"`
}

// Span returns the slot's time-of-day range
func (s *AvailabilitySlot) Span() timeslot.Interval {
	return timeslot.Interval{From: s.StartTime, To: s.EndTime}
}

// Rule converts the slot to a matching rule
func (s *AvailabilitySlot) Rule() timeslot.Rule {
	return timeslot.Rule{Date: s.Date, Span: s.Span(), Recurring: s.Recurring}
}

// SameStart reports whether both slots begin at the same date and time,
// which the store treats as a duplicate.
func (s *AvailabilitySlot) SameStart(o *AvailabilitySlot) bool {
	return s.TutorID == o.TutorID && timeslot.SameDate(s.Date, o.Date) && s.StartTime == o.StartTime
}
