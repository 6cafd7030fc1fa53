// Package notify delivers session lifecycle events to external channels.
// The booking engine only enqueues events; delivery happens on background workers.
package notify

import (
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingRequest     EventType = "booking_request"
	EventBookingConfirmed   EventType = "booking_confirmed"
	EventBookingRejected    EventType = "booking_rejected"
	EventSessionCancelled   EventType = "session_cancelled"
	EventSessionRescheduled EventType = "session_rescheduled"
	EventRescheduleAccepted EventType = "reschedule_accepted"
	EventRescheduleRejected EventType = "reschedule_rejected"
	EventSessionCompleted   EventType = "session_completed"
	EventNewReview          EventType = "new_review"
	EventSessionReminder    EventType = "session_reminder"
)

// Event is a single notification addressed to one user.
type Event struct {
	ID            uuid.UUID           `json:"id"`
	Type          EventType           `json:"type"`
	RecipientID   int64               `json:"recipient_id"`
	ActorID       int64               `json:"actor_id"` // 0 for the scheduler
	SessionID     int64               `json:"session_id"`
	SessionStatus model.SessionStatus `json:"session_status"`
	StartAt       time.Time           `json:"start_at"`
	Title         string              `json:"title"`
	Message       string              `json:"message"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(ev Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Emit(Event) {}

// NewSessionEvent builds the event of type t about s for recipient.
// The session start is rendered in loc.
func NewSessionEvent(t EventType, s *model.Session, recipientID, actorID int64, now time.Time, loc *time.Location) Event {
	title, message := render(t, s, loc)
	return Event{
		ID:            uuid.New(),
		Type:          t,
		RecipientID:   recipientID,
		ActorID:       actorID,
		SessionID:     s.ID,
		SessionStatus: s.Status,
		StartAt:       s.StartAt,
		Title:         title,
		Message:       message,
		OccurredAt:    now,
	}
}

// NewReviewEvent builds the new_review event for the reviewed tutor.
func NewReviewEvent(r *model.Review, s *model.Session, now time.Time, loc *time.Location) Event {
	ev := NewSessionEvent(EventNewReview, s, r.TutorID, r.StudentID, now, loc)
	ev.Message = formatReview(r, s, loc)
	return ev
}
