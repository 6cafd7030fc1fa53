package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/Freeeeeet/tutorbook/internal/repository/memory"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Monday
var startOfTest = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingEmitter) Emit(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) Last() notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return notify.Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *recordingEmitter) OfType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	store    *memory.Store
	clock    *testClock
	events   *recordingEmitter
	avail    *AvailabilityService
	sessions *SessionService
	ratings  *RatingService
	tutor    *model.User
	student  *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{t: startOfTest}
	events := &recordingEmitter{}
	store := memory.NewStore(clock.Now)
	opts := Options{Now: clock.Now, Location: time.UTC, Emitter: events}
	logger := zap.NewNop()

	return &testEnv{
		store:    store,
		clock:    clock,
		events:   events,
		avail:    NewAvailabilityService(store, logger),
		sessions: NewSessionService(store, opts, logger),
		ratings:  NewRatingService(store, opts, logger),
		tutor:    store.AddUser("tutor", model.RoleTutor),
		student:  store.AddUser("student", model.RoleStudent),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(date time.Time, hour, minute int) time.Time {
	return timeslot.At(date, timeslot.NewClock(hour, minute), time.UTC)
}

func (e *testEnv) addSlot(t *testing.T, date time.Time, from, to timeslot.Clock, recurring bool) *model.AvailabilitySlot {
	t.Helper()
	slot, err := e.avail.CreateSlot(context.Background(), e.tutor.ID, SlotInput{
		Date:      date,
		StartTime: from,
		EndTime:   to,
		Recurring: recurring,
	})
	require.NoError(t, err)
	return slot
}

func (e *testEnv) request(studentID int64, start time.Time, d time.Duration) (*model.Session, error) {
	return e.sessions.RequestSession(context.Background(), RequestSessionInput{
		TutorID:   e.tutor.ID,
		StudentID: studentID,
		StartAt:   start,
		Duration:  d,
		Topic:     "Algebra",
		Mode:      model.SessionModeWebcam,
	})
}

// confirmed books a one-hour session at start inside a fresh one-off slot and confirms it.
func (e *testEnv) confirmed(t *testing.T, studentID int64, start time.Time) *model.Session {
	t.Helper()
	session, err := e.request(studentID, start, time.Hour)
	require.NoError(t, err)
	session, err = e.sessions.ConfirmSession(context.Background(), session.ID, e.tutor.ID)
	require.NoError(t, err)
	return session
}
