package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestStore connects to TEST_DB_DSN, migrates a clean schema and
// returns a store over it. The test is skipped when no database is configured.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.ResetContext(ctx, db, "../../../migrations"))
	require.NoError(t, goose.UpContext(ctx, db, "../../../migrations"))

	return NewStore(pool, zap.NewNop())
}

func addUser(t *testing.T, store *Store, name string, roles ...model.Role) *model.User {
	t.Helper()
	user := &model.User{Username: name, Roles: roles}
	err := store.InTx(context.Background(), func(repos repository.Repositories) error {
		return repos.Users.Create(context.Background(), user)
	})
	require.NoError(t, err)
	return user
}

func TestAvailabilityRoundTrip(t *testing.T) {
	store := newTestStore(t)
	tutor := addUser(t, store, "tutor", model.RoleTutor)
	ctx := context.Background()
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	err := store.InTx(ctx, func(repos repository.Repositories) error {
		slot := &model.AvailabilitySlot{TutorID: tutor.ID, Date: date, StartTime: timeslot.NewClock(9, 0), EndTime: timeslot.EndOfDay, Recurring: true}
		require.NoError(t, repos.Availability.Create(ctx, slot))

		dup := &model.AvailabilitySlot{TutorID: tutor.ID, Date: date, StartTime: timeslot.NewClock(9, 0), EndTime: timeslot.NewClock(10, 0)}
		return repos.Availability.Create(ctx, dup)
	})
	require.ErrorIs(t, err, apperr.ErrDuplicateSlot)

	err = store.InTx(ctx, func(repos repository.Repositories) error {
		slot := &model.AvailabilitySlot{TutorID: tutor.ID, Date: date, StartTime: timeslot.NewClock(9, 0), EndTime: timeslot.EndOfDay, Recurring: true}
		require.NoError(t, repos.Availability.Create(ctx, slot))

		slots, err := repos.Availability.ListForDate(ctx, tutor.ID, date.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, timeslot.EndOfDay, slots[0].EndTime)
		assert.True(t, timeslot.SameDate(date, slots[0].Date))
		return nil
	})
	require.NoError(t, err)
}

func TestSessionQueries(t *testing.T) {
	store := newTestStore(t)
	tutor := addUser(t, store, "tutor", model.RoleTutor)
	student := addUser(t, store, "student", model.RoleStudent)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	var session *model.Session
	err := store.InTx(ctx, func(repos repository.Repositories) error {
		session = &model.Session{
			TutorID:   tutor.ID,
			StudentID: student.ID,
			StartAt:   start,
			Duration:  time.Hour,
			Topic:     "Algebra",
			Mode:      model.SessionModeWebcam,
			Status:    model.SessionStatusConfirmed,
		}
		return repos.Sessions.Create(ctx, session)
	})
	require.NoError(t, err)

	err = store.InTx(ctx, func(repos repository.Repositories) error {
		overlapping, err := repos.Sessions.ListOverlapping(ctx, tutor.ID, start.Add(59*time.Minute), start.Add(2*time.Hour), 0)
		require.NoError(t, err)
		assert.Len(t, overlapping, 1)

		adjacent, err := repos.Sessions.ListOverlapping(ctx, tutor.ID, start.Add(time.Hour), start.Add(2*time.Hour), 0)
		require.NoError(t, err)
		assert.Empty(t, adjacent)

		elapsed, err := repos.Sessions.ListElapsedConfirmed(ctx, start.Add(61*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []int64{session.ID}, elapsed)

		got, err := repos.Sessions.GetForUpdate(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, got.Duration)
		assert.True(t, got.StartAt.Equal(start))
		return nil
	})
	require.NoError(t, err)
}

func TestReviewUniqueness(t *testing.T) {
	store := newTestStore(t)
	tutor := addUser(t, store, "tutor", model.RoleTutor)
	student := addUser(t, store, "student", model.RoleStudent)
	ctx := context.Background()

	err := store.InTx(ctx, func(repos repository.Repositories) error {
		session := &model.Session{
			TutorID: tutor.ID, StudentID: student.ID,
			StartAt: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), Duration: time.Hour,
			Mode: model.SessionModeWebcam, Status: model.SessionStatusCompleted,
		}
		require.NoError(t, repos.Sessions.Create(ctx, session))

		review := &model.Review{SessionID: session.ID, TutorID: tutor.ID, StudentID: student.ID, Rating: 4}
		require.NoError(t, repos.Reviews.Create(ctx, review))

		again := &model.Review{SessionID: session.ID, TutorID: tutor.ID, StudentID: student.ID, Rating: 5}
		return repos.Reviews.Create(ctx, again)
	})
	require.ErrorIs(t, err, apperr.ErrReviewAlreadyExists)
}

func TestMissingRowsAreNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InTx(ctx, func(repos repository.Repositories) error {
		return repos.Availability.Delete(ctx, 404)
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = store.InTx(ctx, func(repos repository.Repositories) error {
		slot := &model.AvailabilitySlot{ID: 404, TutorID: 1, Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			StartTime: timeslot.NewClock(9, 0), EndTime: timeslot.NewClock(10, 0)}
		return repos.Availability.Update(ctx, slot)
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = store.InTx(ctx, func(repos repository.Repositories) error {
		session := &model.Session{ID: 404, StartAt: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), Duration: time.Hour,
			Mode: model.SessionModeWebcam, Status: model.SessionStatusConfirmed}
		return repos.Sessions.Update(ctx, session)
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// TestConcurrentRequestsBookOnce runs overlapping requests against the
// serializable store: exactly one wins, the rest see a conflict.
func TestConcurrentRequestsBookOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	logger := zap.NewNop()

	now := time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)
	opts := service.Options{Now: func() time.Time { return now }, Location: time.UTC}
	avail := service.NewAvailabilityService(store, logger)
	sessions := service.NewSessionService(store, opts, logger)

	tutor := addUser(t, store, "tutor", model.RoleTutor)
	monday := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	_, err := avail.CreateSlot(ctx, tutor.ID, service.SlotInput{
		Date:      monday,
		StartTime: timeslot.NewClock(9, 0),
		EndTime:   timeslot.NewClock(12, 0),
	})
	require.NoError(t, err)

	const n = 8
	students := make([]*model.User, n)
	for i := range students {
		students[i] = addUser(t, store, fmt.Sprintf("student%d", i), model.RoleStudent)
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	start := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sessions.RequestSession(ctx, service.RequestSessionInput{
				TutorID:   tutor.ID,
				StudentID: students[i].ID,
				StartAt:   start.Add(time.Duration(i) * 5 * time.Minute),
				Duration:  time.Hour,
				Mode:      model.SessionModeWebcam,
			})
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, err := range errs {
		if err == nil {
			booked++
			continue
		}
		kind := apperr.KindOf(err)
		assert.Contains(t, []apperr.Kind{apperr.KindSlotConflict, apperr.KindConflict}, kind, err.Error())
	}
	assert.Equal(t, 1, booked)

	err = store.InTx(ctx, func(repos repository.Repositories) error {
		active, err := repos.Sessions.ListOverlapping(ctx, tutor.ID, start, start.Add(2*time.Hour), 0)
		require.NoError(t, err)
		assert.Len(t, active, 1)
		return nil
	})
	require.NoError(t, err)
}
