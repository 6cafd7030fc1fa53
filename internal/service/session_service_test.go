package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestSessionFromRecurringSlot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	other := e.store.AddUser("other", model.RoleStudent)

	// Monday 09:00-12:00 every week
	e.addSlot(t, day(2024, 1, 1), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), true)

	monday := day(2024, 1, 15)
	session, err := e.request(e.student.ID, at(monday, 10, 0), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPending, session.Status)

	slots, err := e.avail.GetAvailability(ctx, e.tutor.ID)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	var oneOff *model.AvailabilitySlot
	for _, s := range slots {
		if !s.Recurring {
			oneOff = s
		}
	}
	require.NotNil(t, oneOff)
	assert.Equal(t, monday, oneOff.Date)
	assert.Equal(t, timeslot.NewClock(9, 0), oneOff.StartTime)
	assert.Equal(t, timeslot.NewClock(12, 0), oneOff.EndTime)

	_, err = e.request(other.ID, at(monday, 10, 30), time.Hour)
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)

	slots, err = e.avail.GetAvailability(ctx, e.tutor.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	ev := e.events.Last()
	assert.Equal(t, notify.EventBookingRequest, ev.Type)
	assert.Equal(t, e.tutor.ID, ev.RecipientID)
}

func TestRequestSessionOnRecurringAnchorDate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.addSlot(t, day(2024, 1, 8), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), true)

	_, err := e.request(e.student.ID, at(day(2024, 1, 8), 9, 0), time.Hour)
	require.NoError(t, err)

	slots, err := e.avail.GetAvailability(ctx, e.tutor.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestRequestSessionWhenAnotherRuleHoldsTheStart(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 15)

	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(10, 0), true)
	e.addSlot(t, day(2024, 1, 22), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), true)

	ok, err := e.avail.IsAvailable(ctx, e.tutor.ID, monday, timeslot.NewClock(10, 0), timeslot.NewClock(11, 30))
	require.NoError(t, err)
	require.True(t, ok)

	session, err := e.request(e.student.ID, at(monday, 10, 0), 90*time.Minute)
	require.NoError(t, err)

	// both weekly rules stay as they were
	slots, err := e.avail.GetAvailability(ctx, e.tutor.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	_, err = e.sessions.ConfirmSession(ctx, session.ID, e.tutor.ID)
	require.NoError(t, err)

	moved, err := e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusReschedulePending, moved.Status)
}

func TestProposeRescheduleWidensEarlierOneOffSlot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 15)

	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(10, 0), true)
	e.addSlot(t, monday, timeslot.NewClock(7, 0), timeslot.NewClock(9, 0), false)

	session, err := e.request(e.student.ID, at(monday, 7, 0), 90*time.Minute)
	require.NoError(t, err)
	_, err = e.sessions.ConfirmSession(ctx, session.ID, e.tutor.ID)
	require.NoError(t, err)

	// 09:00 is taken by the weekly rule, which is too short for 90 minutes
	_, err = e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 9, 0))
	require.NoError(t, err)

	slots, err := e.avail.GetAvailability(ctx, e.tutor.ID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	for _, slot := range slots {
		if slot.Recurring {
			assert.Equal(t, timeslot.NewClock(10, 0), slot.EndTime)
			continue
		}
		assert.Equal(t, timeslot.NewClock(7, 0), slot.StartTime)
		assert.Equal(t, timeslot.NewClock(10, 30), slot.EndTime)
	}
}

func TestRequestSessionRejectsUnavailableTimes(t *testing.T) {
	e := newTestEnv(t)
	e.addSlot(t, day(2024, 1, 8), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)

	tests := []struct {
		name  string
		start time.Time
		dur   time.Duration
	}{
		{"before slot", at(day(2024, 1, 8), 8, 30), time.Hour},
		{"runs past slot end", at(day(2024, 1, 8), 11, 30), time.Hour},
		{"other date", at(day(2024, 1, 9), 10, 0), time.Hour},
		{"same weekday next week", at(day(2024, 1, 15), 10, 0), time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.request(e.student.ID, tt.start, tt.dur)
			assert.ErrorIs(t, err, apperr.ErrTutorUnavailable)
		})
	}
}

func TestRequestSessionAcrossMidnight(t *testing.T) {
	e := newTestEnv(t)
	e.addSlot(t, day(2024, 1, 8), timeslot.NewClock(22, 0), timeslot.EndOfDay, false)

	_, err := e.request(e.student.ID, at(day(2024, 1, 8), 23, 30), time.Hour)
	assert.ErrorIs(t, err, apperr.ErrTutorUnavailable)

	_, err = e.request(e.student.ID, at(day(2024, 1, 8), 23, 0), time.Hour)
	assert.NoError(t, err)
}

func TestRequestSessionInThePast(t *testing.T) {
	e := newTestEnv(t)
	today := day(2024, 1, 1)
	e.addSlot(t, today, timeslot.NewClock(6, 0), timeslot.NewClock(12, 0), false)

	for _, start := range []time.Time{at(today, 7, 0), startOfTest} {
		_, err := e.request(e.student.ID, start, time.Hour)
		assert.ErrorIs(t, err, apperr.ErrPastBooking, start.String())
	}

	_, err := e.request(e.student.ID, startOfTest.Add(time.Minute), time.Hour)
	assert.NoError(t, err)
}

func TestRequestSessionValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    RequestSessionInput
		field string
	}{
		{
			name:  "missing mode",
			in:    RequestSessionInput{TutorID: e.tutor.ID, StudentID: e.student.ID, StartAt: at(day(2024, 1, 8), 10, 0), Duration: time.Hour},
			field: "mode",
		},
		{
			name:  "unknown mode",
			in:    RequestSessionInput{TutorID: e.tutor.ID, StudentID: e.student.ID, StartAt: at(day(2024, 1, 8), 10, 0), Duration: time.Hour, Mode: "phone"},
			field: "mode",
		},
		{
			name:  "same user on both sides",
			in:    RequestSessionInput{TutorID: e.tutor.ID, StudentID: e.tutor.ID, StartAt: at(day(2024, 1, 8), 10, 0), Duration: time.Hour, Mode: model.SessionModeWebcam},
			field: "student_id",
		},
		{
			name:  "zero duration",
			in:    RequestSessionInput{TutorID: e.tutor.ID, StudentID: e.student.ID, StartAt: at(day(2024, 1, 8), 10, 0), Mode: model.SessionModeWebcam},
			field: "duration",
		},
		{
			name:  "fractional minutes",
			in:    RequestSessionInput{TutorID: e.tutor.ID, StudentID: e.student.ID, StartAt: at(day(2024, 1, 8), 10, 0), Duration: 90 * time.Second, Mode: model.SessionModeWebcam},
			field: "duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.sessions.RequestSession(ctx, tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}
}

func TestRequestSessionRoles(t *testing.T) {
	e := newTestEnv(t)
	e.addSlot(t, day(2024, 1, 8), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)
	notTutor := e.store.AddUser("plain", model.RoleStudent)
	anotherTutor := e.store.AddUser("tutor2", model.RoleTutor)
	ctx := context.Background()

	_, err := e.sessions.RequestSession(ctx, RequestSessionInput{
		TutorID: notTutor.ID, StudentID: e.student.ID,
		StartAt: at(day(2024, 1, 8), 10, 0), Duration: time.Hour, Mode: model.SessionModeWebcam,
	})
	assert.ErrorIs(t, err, apperr.ErrNotATutor)

	_, err = e.sessions.RequestSession(ctx, RequestSessionInput{
		TutorID: e.tutor.ID, StudentID: anotherTutor.ID,
		StartAt: at(day(2024, 1, 8), 10, 0), Duration: time.Hour, Mode: model.SessionModeWebcam,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	_, err = e.sessions.RequestSession(ctx, RequestSessionInput{
		TutorID: 9999, StudentID: e.student.ID,
		StartAt: at(day(2024, 1, 8), 10, 0), Duration: time.Hour, Mode: model.SessionModeWebcam,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRequestSessionPreviouslyDenied(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)

	session, err := e.request(e.student.ID, at(monday, 10, 0), time.Hour)
	require.NoError(t, err)
	_, err = e.sessions.RejectSession(ctx, session.ID, e.tutor.ID)
	require.NoError(t, err)

	for _, start := range []time.Time{at(monday, 10, 0), at(monday, 10, 20), at(monday, 10, 30), at(monday, 9, 30)} {
		_, err = e.request(e.student.ID, start, time.Hour)
		assert.ErrorIs(t, err, apperr.ErrPreviouslyDenied, start.String())
	}

	// another student is not affected
	other := e.store.AddUser("other", model.RoleStudent)
	_, err = e.request(other.ID, at(monday, 10, 0), time.Hour)
	require.NoError(t, err)

	_, err = e.request(e.student.ID, at(monday, 11, 1), time.Hour)
	assert.NoError(t, err)
}

func TestConcurrentRequestsBookOnce(t *testing.T) {
	e := newTestEnv(t)
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)

	const n = 20
	students := make([]*model.User, n)
	for i := range students {
		students[i] = e.store.AddUser(fmt.Sprintf("student-%d", i), model.RoleStudent)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.request(students[i].ID, at(monday, 10, i), time.Hour)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				errs = append(errs, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	for _, err := range errs {
		assert.ErrorIs(t, err, apperr.ErrSlotConflict)
	}

	sessions, err := e.sessions.ListSessions(context.Background(), e.tutor.ID, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionLifecycleActors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)
	stranger := e.store.AddUser("stranger", model.RoleStudent, model.RoleTutor)

	session, err := e.request(e.student.ID, at(monday, 10, 0), time.Hour)
	require.NoError(t, err)

	_, err = e.sessions.ConfirmSession(ctx, session.ID, e.student.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	_, err = e.sessions.RejectSession(ctx, session.ID, stranger.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	_, err = e.sessions.CancelSession(ctx, session.ID, stranger.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	confirmed, err := e.sessions.ConfirmSession(ctx, session.ID, e.tutor.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, confirmed.Status)
	assert.Equal(t, notify.EventBookingConfirmed, e.events.Last().Type)
	assert.Equal(t, e.student.ID, e.events.Last().RecipientID)

	_, err = e.sessions.ConfirmSession(ctx, session.ID, e.tutor.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = e.sessions.RejectSession(ctx, session.ID, e.tutor.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	cancelled, err := e.sessions.CancelSession(ctx, session.ID, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, cancelled.Status)
	assert.Equal(t, notify.EventSessionCancelled, e.events.Last().Type)
	assert.Equal(t, e.tutor.ID, e.events.Last().RecipientID)

	_, err = e.sessions.CancelSession(ctx, session.ID, e.tutor.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = e.sessions.ConfirmSession(ctx, 9999, e.tutor.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelledSessionFreesTheSlot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)
	other := e.store.AddUser("other", model.RoleStudent)

	session := e.confirmed(t, e.student.ID, at(monday, 10, 0))
	_, err := e.sessions.CancelSession(ctx, session.ID, e.tutor.ID)
	require.NoError(t, err)

	_, err = e.request(other.ID, at(monday, 10, 0), time.Hour)
	assert.NoError(t, err)
}

func TestRescheduleAccepted(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)

	session, err := e.sessions.RequestSession(ctx, RequestSessionInput{
		TutorID: e.tutor.ID, StudentID: e.student.ID,
		StartAt: at(monday, 10, 0), Duration: time.Hour,
		Mode: model.SessionModeInPerson, Notes: "bring the textbook",
	})
	require.NoError(t, err)
	_, err = e.sessions.ConfirmSession(ctx, session.ID, e.tutor.ID)
	require.NoError(t, err)

	newStart := at(day(2024, 1, 9), 14, 0)
	proposed, err := e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, newStart)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusReschedulePending, proposed.Status)
	assert.Equal(t, at(monday, 10, 0), proposed.StartAt)
	require.NotNil(t, proposed.PendingRescheduleAt)
	assert.Equal(t, newStart, *proposed.PendingRescheduleAt)
	assert.Equal(t, notify.EventSessionRescheduled, e.events.Last().Type)
	assert.Equal(t, e.student.ID, e.events.Last().RecipientID)

	// availability was ensured at the new time
	available, err := e.avail.IsAvailable(ctx, e.tutor.ID, day(2024, 1, 9), timeslot.NewClock(14, 0), timeslot.NewClock(15, 0))
	require.NoError(t, err)
	assert.True(t, available)

	_, err = e.sessions.RespondToReschedule(ctx, session.ID, e.tutor.ID, true)
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	accepted, err := e.sessions.RespondToReschedule(ctx, session.ID, e.student.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, accepted.Status)
	assert.Equal(t, newStart, accepted.StartAt)
	assert.Nil(t, accepted.PendingRescheduleAt)
	assert.Equal(t, "bring the textbook", accepted.Notes)
	assert.Equal(t, notify.EventRescheduleAccepted, e.events.Last().Type)
	assert.Equal(t, e.tutor.ID, e.events.Last().RecipientID)
}

func TestRescheduleRejectedCancels(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)

	session := e.confirmed(t, e.student.ID, at(monday, 10, 0))
	_, err := e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 11, 0))
	require.NoError(t, err)

	rejected, err := e.sessions.RespondToReschedule(ctx, session.ID, e.student.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, rejected.Status)
	assert.Nil(t, rejected.PendingRescheduleAt)
	assert.Equal(t, at(monday, 10, 0), rejected.StartAt)
	assert.Equal(t, notify.EventRescheduleRejected, e.events.Last().Type)

	_, err = e.sessions.RespondToReschedule(ctx, session.ID, e.student.ID, false)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestProposeRescheduleChecks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)
	other := e.store.AddUser("other", model.RoleStudent)

	session := e.confirmed(t, e.student.ID, at(monday, 9, 0))
	e.confirmed(t, other.ID, at(monday, 11, 0))

	_, err := e.sessions.ProposeReschedule(ctx, session.ID, e.student.ID, at(monday, 12, 0))
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	_, err = e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, startOfTest.Add(-time.Hour))
	assert.ErrorIs(t, err, apperr.ErrPastBooking)

	_, err = e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 11, 30))
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)

	// moving within its own interval is not a conflict with itself
	moved, err := e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 9, 30))
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusReschedulePending, moved.Status)

	// the rejected proposals above left no trace
	got, err := e.sessions.GetSession(ctx, session.ID, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, at(monday, 9, 30), *got.PendingRescheduleAt)

	_, err = e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 12, 0))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAcceptRescheduleRechecksConflicts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(10, 0), false)
	other := e.store.AddUser("other", model.RoleStudent)

	session := e.confirmed(t, e.student.ID, at(monday, 9, 0))
	_, err := e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 15, 0))
	require.NoError(t, err)

	// the proposal does not reserve the time
	_, err = e.request(other.ID, at(monday, 15, 0), time.Hour)
	require.NoError(t, err)

	_, err = e.sessions.RespondToReschedule(ctx, session.ID, e.student.ID, true)
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)

	got, err := e.sessions.GetSession(ctx, session.ID, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusReschedulePending, got.Status)
}

func TestAcceptRescheduleAfterProposedTimePassed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)

	session := e.confirmed(t, e.student.ID, at(monday, 11, 0))
	_, err := e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(day(2024, 1, 2), 10, 0))
	require.NoError(t, err)

	e.clock.Set(at(day(2024, 1, 2), 10, 0))
	_, err = e.sessions.RespondToReschedule(ctx, session.ID, e.student.ID, true)
	assert.ErrorIs(t, err, apperr.ErrPastBooking)
}

func TestCancelDuringRescheduleClearsProposal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)

	session := e.confirmed(t, e.student.ID, at(monday, 9, 0))
	_, err := e.sessions.ProposeReschedule(ctx, session.ID, e.tutor.ID, at(monday, 11, 0))
	require.NoError(t, err)

	cancelled, err := e.sessions.SetStatus(ctx, session.ID, e.student.ID, model.SessionStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.PendingRescheduleAt)

	_, err = e.sessions.RespondToReschedule(ctx, session.ID, e.student.ID, true)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSetStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	monday := day(2024, 1, 8)
	e.addSlot(t, monday, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)

	session, err := e.request(e.student.ID, at(monday, 9, 0), time.Hour)
	require.NoError(t, err)

	for _, target := range []model.SessionStatus{model.SessionStatusPending, model.SessionStatusReschedulePending, "archived"} {
		_, err = e.sessions.SetStatus(ctx, session.ID, e.tutor.ID, target)
		assert.ErrorIs(t, err, apperr.ErrInvalidTarget, string(target))
	}

	_, err = e.sessions.SetStatus(ctx, session.ID, e.student.ID, model.SessionStatusConfirmed)
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	_, err = e.sessions.SetStatus(ctx, session.ID, e.tutor.ID, model.SessionStatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	confirmed, err := e.sessions.SetStatus(ctx, session.ID, e.tutor.ID, model.SessionStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, confirmed.Status)

	// completing a session that has not started
	_, err = e.sessions.SetStatus(ctx, session.ID, e.student.ID, model.SessionStatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	e.clock.Set(at(monday, 9, 30))
	completed, err := e.sessions.SetStatus(ctx, session.ID, e.student.ID, model.SessionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, completed.Status)
	assert.Equal(t, notify.EventSessionCompleted, e.events.Last().Type)
}

func TestAutoCompleteSweep(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	today := day(2024, 1, 1)
	e.addSlot(t, today, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)

	done := e.confirmed(t, e.student.ID, at(today, 9, 0))
	running := e.confirmed(t, e.student.ID, at(today, 10, 0))
	pending, err := e.request(e.student.ID, at(today, 12, 0), time.Hour)
	require.NoError(t, err)

	// exactly at the end is not yet past it
	e.clock.Set(at(today, 10, 0))
	n, err := e.sessions.RunAutoCompleteSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	e.clock.Set(at(today, 10, 30))
	n, err = e.sessions.RunAutoCompleteSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.sessions.RunAutoCompleteSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := e.sessions.GetSession(ctx, done.ID, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, got.Status)

	got, err = e.sessions.GetSession(ctx, running.ID, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, got.Status)

	completedEvents := e.events.OfType(notify.EventSessionCompleted)
	require.Len(t, completedEvents, 1)
	assert.Equal(t, e.student.ID, completedEvents[0].RecipientID)
	assert.Equal(t, SystemActorID, completedEvents[0].ActorID)

	// pending sessions are never auto-completed
	e.clock.Set(at(today, 20, 0))
	_, err = e.sessions.RunAutoCompleteSweep(ctx)
	require.NoError(t, err)
	got, err = e.sessions.GetSession(ctx, pending.ID, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPending, got.Status)
}

func TestListSessionsCompletesElapsedFirst(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	today := day(2024, 1, 1)
	e.addSlot(t, today, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)
	other := e.store.AddUser("other", model.RoleStudent)

	first := e.confirmed(t, e.student.ID, at(today, 9, 0))
	second, err := e.request(other.ID, at(today, 11, 0), time.Hour)
	require.NoError(t, err)

	e.clock.Set(at(today, 10, 1))
	sessions, err := e.sessions.ListSessions(ctx, e.tutor.ID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
	assert.Equal(t, model.SessionStatusCompleted, sessions[1].Status)

	sessions, err = e.sessions.ListSessions(ctx, e.student.ID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	sessions, err = e.sessions.ListSessions(ctx, e.tutor.ID, ListFilter{Status: model.SessionStatusPending})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, second.ID, sessions[0].ID)

	_, err = e.sessions.ListSessions(ctx, 9999, ListFilter{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendReminders(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addSlot(t, day(2024, 1, 1), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)
	e.addSlot(t, day(2024, 1, 3), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)

	e.confirmed(t, e.student.ID, at(day(2024, 1, 1), 10, 0))
	e.confirmed(t, e.student.ID, at(day(2024, 1, 3), 10, 0))

	n, err := e.sessions.SendReminders(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reminders := e.events.OfType(notify.EventSessionReminder)
	require.Len(t, reminders, 2)
	assert.ElementsMatch(t, []int64{e.tutor.ID, e.student.ID}, []int64{reminders[0].RecipientID, reminders[1].RecipientID})

	n, err = e.sessions.SendReminders(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetSessionVisibility(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addSlot(t, day(2024, 1, 8), timeslot.NewClock(9, 0), timeslot.NewClock(12, 0), false)
	stranger := e.store.AddUser("stranger", model.RoleStudent)

	session, err := e.request(e.student.ID, at(day(2024, 1, 8), 9, 0), time.Hour)
	require.NoError(t, err)

	_, err = e.sessions.GetSession(ctx, session.ID, stranger.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidActor)

	_, err = e.sessions.GetSession(ctx, session.ID+100, e.student.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type failingSweepSessions struct {
	repository.SessionRepository
}

func (failingSweepSessions) ListElapsedConfirmed(context.Context, time.Time) ([]int64, error) {
	return nil, errors.New("disk unavailable")
}

// failingSweepStore breaks only the auto-complete candidate query.
type failingSweepStore struct {
	repository.Store
}

func (s failingSweepStore) InTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	return s.Store.InTx(ctx, func(repos repository.Repositories) error {
		repos.Sessions = failingSweepSessions{repos.Sessions}
		return fn(repos)
	})
}

func TestListSessionsSurvivesFailedSweep(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	today := day(2024, 1, 1)
	e.addSlot(t, today, timeslot.NewClock(9, 0), timeslot.NewClock(13, 0), false)
	booked := e.confirmed(t, e.student.ID, at(today, 9, 0))

	core, logs := observer.New(zap.WarnLevel)
	opts := Options{Now: e.clock.Now, Location: time.UTC, Emitter: e.events}
	sessions := NewSessionService(failingSweepStore{e.store}, opts, zap.New(core))

	_, err := sessions.RunAutoCompleteSweep(ctx)
	require.Error(t, err)

	list, err := sessions.ListSessions(ctx, e.student.ID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, booked.ID, list[0].ID)
	assert.Equal(t, 1, logs.FilterMessage("Auto-complete before listing failed").Len())
}
