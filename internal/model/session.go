package model

import "time"

type SessionStatus string

const (
	SessionStatusPending           SessionStatus = "pending"            // Waiting for the tutor
	SessionStatusConfirmed         SessionStatus = "confirmed"          // Accepted by the tutor
	SessionStatusRejected          SessionStatus = "rejected"           // Declined by the tutor
	SessionStatusReschedulePending SessionStatus = "reschedule_pending" // Tutor proposed a new time
	SessionStatusCancelled         SessionStatus = "cancelled"
	SessionStatusCompleted         SessionStatus = "completed"
)

// ActiveSessionStatuses are the statuses that hold a tutor's time.
var ActiveSessionStatuses = []SessionStatus{
	SessionStatusPending,
	SessionStatusConfirmed,
	SessionStatusReschedulePending,
}

// ParseSessionStatus validates a status name
func ParseSessionStatus(s string) (SessionStatus, bool) {
	switch st := SessionStatus(s); st {
	case SessionStatusPending, SessionStatusConfirmed, SessionStatusRejected,
		SessionStatusReschedulePending, SessionStatusCancelled, SessionStatusCompleted:
		return st, true
	}
	return "", false
}

// IsActive reports whether the status blocks the tutor's calendar
func (s SessionStatus) IsActive() bool {
	for _, st := range ActiveSessionStatuses {
		if s == st {
			return true
		}
	}
	return false
}

type SessionMode string

const (
	SessionModeWebcam   SessionMode = "webcam"
	SessionModeInPerson SessionMode = "in-person"
)

type Session struct {
	ID        int64         `json:"id"`
	TutorID   int64         `json:"tutor_id"`
	StudentID int64         `json:"student_id"`
	StartAt   time.Time     `json:"start_at"`
	Duration  time.Duration `json:"duration"`
	Topic     string        `json:"topic"`
	Mode      SessionMode   `json:"mode"`
	Status    SessionStatus `json:"status"`
	Notes     string        `json:"notes"`

	PendingRescheduleAt *time.Time `json:"pending_reschedule_at,omitempty"` // nil - no open proposal
	ReminderSentAt      *time.Time `json:"reminder_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EndAt returns the exclusive end of the session
func (s *Session) EndAt() time.Time {
	return s.StartAt.Add(s.Duration)
}

// HasEnded reports whether the session's end is strictly before now
func (s *Session) HasEnded(now time.Time) bool {
	return now.After(s.EndAt())
}

// IsParticipant checks if userID is the tutor or the student of the session
func (s *Session) IsParticipant(userID int64) bool {
	return s.TutorID == userID || s.StudentID == userID
}

// Counterpart returns the other participant
func (s *Session) Counterpart(userID int64) int64 {
	if userID == s.TutorID {
		return s.StudentID
	}
	return s.TutorID
}
