package service

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/notify"
)

// SessionEvent names a lifecycle transition.
type SessionEvent string

const (
	EvConfirm           SessionEvent = "confirm"
	EvReject            SessionEvent = "reject"
	EvCancel            SessionEvent = "cancel"
	EvProposeReschedule SessionEvent = "propose_reschedule"
	EvAcceptReschedule  SessionEvent = "accept_reschedule"
	EvRejectReschedule  SessionEvent = "reject_reschedule"
	EvComplete          SessionEvent = "complete"
	EvAutoComplete      SessionEvent = "auto_complete"
)

// Actor is the party allowed to trigger a transition.
type Actor int

const (
	ActorTutor Actor = iota + 1
	ActorStudent
	ActorParticipant
	ActorSystem
)

// SystemActorID identifies the scheduler as the actor of a transition.
const SystemActorID int64 = 0

func (a Actor) allows(s *model.Session, actorID int64) bool {
	switch a {
	case ActorTutor:
		return actorID == s.TutorID
	case ActorStudent:
		return actorID == s.StudentID
	case ActorParticipant:
		return s.IsParticipant(actorID)
	case ActorSystem:
		return actorID == SystemActorID
	}
	return false
}

func (a Actor) String() string {
	switch a {
	case ActorTutor:
		return "the tutor"
	case ActorStudent:
		return "the student"
	case ActorParticipant:
		return "a participant"
	case ActorSystem:
		return "the scheduler"
	}
	return "nobody"
}

// Transition is a single allowed edge in the session lifecycle.
type Transition struct {
	From   model.SessionStatus
	To     model.SessionStatus
	Event  SessionEvent
	Actor  Actor
	Notify notify.EventType
}

var transitionsTable = []Transition{
	{From: model.SessionStatusPending, To: model.SessionStatusConfirmed, Event: EvConfirm, Actor: ActorTutor, Notify: notify.EventBookingConfirmed},
	{From: model.SessionStatusPending, To: model.SessionStatusRejected, Event: EvReject, Actor: ActorTutor, Notify: notify.EventBookingRejected},

	{From: model.SessionStatusPending, To: model.SessionStatusCancelled, Event: EvCancel, Actor: ActorParticipant, Notify: notify.EventSessionCancelled},
	{From: model.SessionStatusConfirmed, To: model.SessionStatusCancelled, Event: EvCancel, Actor: ActorParticipant, Notify: notify.EventSessionCancelled},
	{From: model.SessionStatusReschedulePending, To: model.SessionStatusCancelled, Event: EvCancel, Actor: ActorParticipant, Notify: notify.EventSessionCancelled},

	// Reschedule negotiation
	{From: model.SessionStatusConfirmed, To: model.SessionStatusReschedulePending, Event: EvProposeReschedule, Actor: ActorTutor, Notify: notify.EventSessionRescheduled},
	{From: model.SessionStatusReschedulePending, To: model.SessionStatusConfirmed, Event: EvAcceptReschedule, Actor: ActorStudent, Notify: notify.EventRescheduleAccepted},
	{From: model.SessionStatusReschedulePending, To: model.SessionStatusCancelled, Event: EvRejectReschedule, Actor: ActorStudent, Notify: notify.EventRescheduleRejected},

	{From: model.SessionStatusConfirmed, To: model.SessionStatusCompleted, Event: EvComplete, Actor: ActorParticipant, Notify: notify.EventSessionCompleted},
	{From: model.SessionStatusConfirmed, To: model.SessionStatusCompleted, Event: EvAutoComplete, Actor: ActorSystem, Notify: notify.EventSessionCompleted},
}

// TransitionFor returns the allowed transition for a given status+event.
func TransitionFor(from model.SessionStatus, ev SessionEvent) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

func actorFor(ev SessionEvent) Actor {
	for _, tr := range transitionsTable {
		if tr.Event == ev {
			return tr.Actor
		}
	}
	return 0
}

// eventForTarget maps a SetStatus target to its named event.
func eventForTarget(target model.SessionStatus) (SessionEvent, bool) {
	switch target {
	case model.SessionStatusConfirmed:
		return EvConfirm, true
	case model.SessionStatusRejected:
		return EvReject, true
	case model.SessionStatusCancelled:
		return EvCancel, true
	case model.SessionStatusCompleted:
		return EvComplete, true
	}
	return "", false
}

// Change is a requested transition of one session.
type Change struct {
	Event   SessionEvent
	ActorID int64
	Now     time.Time
	// NewStart is the proposed start of EvProposeReschedule.
	NewStart time.Time
}

// ApplyTransition checks the actor rule, the source status and the event's own
// preconditions, then mutates s in place. It is the only place session status
// changes. Checks that need the store (overlap, availability) are done by the
// caller in the same transaction.
func ApplyTransition(s *model.Session, c Change) (Transition, error) {
	actor := actorFor(c.Event)
	if actor == 0 {
		return Transition{}, apperr.New(apperr.KindInvalidTarget, fmt.Sprintf("unknown event %q", c.Event))
	}
	if !actor.allows(s, c.ActorID) {
		return Transition{}, apperr.New(apperr.KindInvalidActor,
			fmt.Sprintf("only %s can %s this session", actor, humanEvent(c.Event)))
	}

	tr, ok := TransitionFor(s.Status, c.Event)
	if !ok {
		return Transition{}, apperr.New(apperr.KindInvalidState,
			fmt.Sprintf("cannot %s a session that is %s", humanEvent(c.Event), s.Status))
	}

	switch c.Event {
	case EvProposeReschedule:
		if !c.NewStart.After(c.Now) {
			return Transition{}, apperr.New(apperr.KindPastBooking, "cannot reschedule to a time in the past")
		}
		proposed := c.NewStart
		s.PendingRescheduleAt = &proposed

	case EvAcceptReschedule:
		if s.PendingRescheduleAt == nil {
			return Transition{}, apperr.New(apperr.KindInvalidState, "session has no pending reschedule proposal")
		}
		if !s.PendingRescheduleAt.After(c.Now) {
			return Transition{}, apperr.New(apperr.KindPastBooking, "the proposed time has already passed")
		}
		s.StartAt = *s.PendingRescheduleAt
		s.PendingRescheduleAt = nil

	case EvRejectReschedule, EvCancel:
		s.PendingRescheduleAt = nil

	case EvComplete:
		if c.Now.Before(s.StartAt) {
			return Transition{}, apperr.New(apperr.KindInvalidState, "cannot complete a session that has not started")
		}

	case EvAutoComplete:
		if !s.HasEnded(c.Now) {
			return Transition{}, apperr.New(apperr.KindInvalidState, "session has not ended yet")
		}
	}

	s.Status = tr.To
	return tr, nil
}

// recipientOf returns who is told about tr.
func recipientOf(tr Transition, s *model.Session, actorID int64) int64 {
	switch tr.Notify {
	case notify.EventSessionCancelled:
		return s.Counterpart(actorID)
	case notify.EventRescheduleAccepted, notify.EventRescheduleRejected:
		return s.TutorID
	}
	return s.StudentID
}

func humanEvent(ev SessionEvent) string {
	switch ev {
	case EvProposeReschedule:
		return "reschedule"
	case EvAcceptReschedule:
		return "accept the reschedule of"
	case EvRejectReschedule:
		return "reject the reschedule of"
	case EvAutoComplete:
		return "auto-complete"
	}
	return string(ev)
}
