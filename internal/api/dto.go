package api

import (
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
)

type createSessionRequest struct {
	TutorID         int64     `json:"tutor_id" validate:"required,gt=0"`
	StartAt         time.Time `json:"start_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	Topic           string    `json:"topic"`
	Mode            string    `json:"mode" validate:"required"`
	Notes           string    `json:"notes"`
}

func (req createSessionRequest) toInput(studentID int64) service.RequestSessionInput {
	return service.RequestSessionInput{
		TutorID:   req.TutorID,
		StudentID: studentID,
		StartAt:   req.StartAt,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Topic:     req.Topic,
		Mode:      model.SessionMode(req.Mode),
		Notes:     req.Notes,
	}
}

type rescheduleRequest struct {
	StartAt time.Time `json:"start_at" validate:"required"`
}

type rescheduleResponseRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type slotRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Recurring bool   `json:"recurring"`
}

// toInput parses the wire formats; prefix qualifies field names in batches
func (req slotRequest) toInput(prefix string) (service.SlotInput, error) {
	invalid := func(field string, err error) error {
		return apperr.Validation("invalid availability slot", map[string]string{prefix + field: err.Error()})
	}

	date, err := timeslot.ParseDate(req.Date)
	if err != nil {
		return service.SlotInput{}, invalid("date", err)
	}
	start, err := timeslot.ParseClock(req.StartTime)
	if err != nil {
		return service.SlotInput{}, invalid("start_time", err)
	}
	end, err := timeslot.ParseClock(req.EndTime)
	if err != nil {
		return service.SlotInput{}, invalid("end_time", err)
	}

	return service.SlotInput{Date: date, StartTime: start, EndTime: end, Recurring: req.Recurring}, nil
}

type setAvailabilityRequest struct {
	Slots []slotRequest `json:"slots" validate:"required,min=1,dive"`
}

type sessionResponse struct {
	ID                  int64      `json:"id"`
	TutorID             int64      `json:"tutor_id"`
	StudentID           int64      `json:"student_id"`
	StartAt             time.Time  `json:"start_at"`
	EndAt               time.Time  `json:"end_at"`
	DurationMinutes     int        `json:"duration_minutes"`
	Topic               string     `json:"topic"`
	Mode                string     `json:"mode"`
	Status              string     `json:"status"`
	Notes               string     `json:"notes,omitempty"`
	PendingRescheduleAt *time.Time `json:"pending_reschedule_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func newSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		ID:                  s.ID,
		TutorID:             s.TutorID,
		StudentID:           s.StudentID,
		StartAt:             s.StartAt,
		EndAt:               s.EndAt(),
		DurationMinutes:     int(s.Duration / time.Minute),
		Topic:               s.Topic,
		Mode:                string(s.Mode),
		Status:              string(s.Status),
		Notes:               s.Notes,
		PendingRescheduleAt: s.PendingRescheduleAt,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func newSessionList(sessions []*model.Session) []sessionResponse {
	out := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = newSessionResponse(s)
	}
	return out
}

type slotResponse struct {
	ID        int64  `json:"id"`
	TutorID   int64  `json:"tutor_id"`
	Date      string `json:"date"`
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Recurring bool   `json:"recurring"`
}

func newSlotResponse(s *model.AvailabilitySlot) slotResponse {
	return slotResponse{
		ID:        s.ID,
		TutorID:   s.TutorID,
		Date:      s.Date.Format(time.DateOnly),
		Weekday:   s.Date.Weekday().String(),
		StartTime: s.StartTime.String(),
		EndTime:   s.EndTime.String(),
		Recurring: s.Recurring,
	}
}

func newSlotList(slots []*model.AvailabilitySlot) []slotResponse {
	out := make([]slotResponse, len(slots))
	for i, s := range slots {
		out[i] = newSlotResponse(s)
	}
	return out
}

type availabilityCheckResponse struct {
	TutorID   int64  `json:"tutor_id"`
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}
