// Package memory is an in-process implementation of the repository contracts.
// Transactions are fully serialized: InTx works on a copy of the data and swaps it
// in only when fn succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
)

type data struct {
	users    map[int64]*model.User
	slots    map[int64]*model.AvailabilitySlot
	sessions map[int64]*model.Session
	reviews  map[int64]*model.Review
	seq      int64
}

func newData() *data {
	return &data{
		users:    make(map[int64]*model.User),
		slots:    make(map[int64]*model.AvailabilitySlot),
		sessions: make(map[int64]*model.Session),
		reviews:  make(map[int64]*model.Review),
	}
}

func (d *data) clone() *data {
	c := newData()
	c.seq = d.seq
	for id, u := range d.users {
		c.users[id] = copyUser(u)
	}
	for id, s := range d.slots {
		c.slots[id] = copySlot(s)
	}
	for id, s := range d.sessions {
		c.sessions[id] = copySession(s)
	}
	for id, r := range d.reviews {
		c.reviews[id] = copyReview(r)
	}
	return c
}

func (d *data) nextID() int64 {
	d.seq++
	return d.seq
}

type Store struct {
	mu   sync.Mutex
	data *data
	now  func() time.Time
}

// NewStore creates an empty store. now stamps created/updated timestamps.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{data: newData(), now: now}
}

func (s *Store) InTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(s.repositories(work)); err != nil {
		return err
	}

	s.data = work
	return nil
}

// AddUser inserts an identity record outside of any transaction
func (s *Store) AddUser(username string, roles ...model.Role) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &model.User{
		ID:        s.data.nextID(),
		Username:  username,
		Roles:     roles,
		CreatedAt: s.now(),
	}
	s.data.users[u.ID] = copyUser(u)
	return u
}

func (s *Store) repositories(d *data) repository.Repositories {
	return repository.Repositories{
		Users:        &userRepo{d: d, now: s.now},
		Availability: &availabilityRepo{d: d, now: s.now},
		Sessions:     &sessionRepo{d: d, now: s.now},
		Reviews:      &reviewRepo{d: d, now: s.now},
	}
}

type userRepo struct {
	d   *data
	now func() time.Time
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	if user.TelegramID != nil {
		if linked, _ := r.GetByTelegramID(ctx, *user.TelegramID); linked != nil {
			return apperr.Validation("telegram chat already linked", map[string]string{"telegram_id": "is linked to another user"})
		}
	}
	user.ID = r.d.nextID()
	user.CreatedAt = r.now()
	r.d.users[user.ID] = copyUser(user)
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := r.d.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *userRepo) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	for _, u := range r.d.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *userRepo) UpdateRating(_ context.Context, rating model.TutorRating) error {
	u, ok := r.d.users[rating.TutorID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	u.AverageRating = copyFloat(rating.Average)
	u.TotalRatings = rating.Total
	return nil
}

type availabilityRepo struct {
	d   *data
	now func() time.Time
}

func (r *availabilityRepo) Create(_ context.Context, slot *model.AvailabilitySlot) error {
	if r.duplicate(slot) {
		return apperr.New(apperr.KindDuplicateSlot, "slot on "+slot.Date.Format(time.DateOnly)+" at "+slot.StartTime.String()+" already exists")
	}
	slot.ID = r.d.nextID()
	slot.CreatedAt = r.now()
	r.d.slots[slot.ID] = copySlot(slot)
	return nil
}

func (r *availabilityRepo) GetByID(_ context.Context, id int64) (*model.AvailabilitySlot, error) {
	s, ok := r.d.slots[id]
	if !ok {
		return nil, nil
	}
	return copySlot(s), nil
}

func (r *availabilityRepo) Update(_ context.Context, slot *model.AvailabilitySlot) error {
	if _, ok := r.d.slots[slot.ID]; !ok {
		return apperr.New(apperr.KindNotFound, "availability slot not found")
	}
	if r.duplicate(slot) {
		return apperr.New(apperr.KindDuplicateSlot, "another slot already starts at this date and time")
	}
	r.d.slots[slot.ID] = copySlot(slot)
	return nil
}

func (r *availabilityRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.d.slots[id]; !ok {
		return apperr.New(apperr.KindNotFound, "availability slot not found")
	}
	delete(r.d.slots, id)
	return nil
}

func (r *availabilityRepo) ListByTutor(_ context.Context, tutorID int64) ([]*model.AvailabilitySlot, error) {
	out := r.filter(func(s *model.AvailabilitySlot) bool { return s.TutorID == tutorID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *availabilityRepo) ListForDate(_ context.Context, tutorID int64, date time.Time) ([]*model.AvailabilitySlot, error) {
	out := r.filter(func(s *model.AvailabilitySlot) bool {
		return s.TutorID == tutorID && (s.Recurring || s.Date.Equal(date))
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Recurring != out[j].Recurring {
			return !out[i].Recurring
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *availabilityRepo) duplicate(slot *model.AvailabilitySlot) bool {
	for _, s := range r.d.slots {
		if s.ID != slot.ID && s.SameStart(slot) {
			return true
		}
	}
	return false
}

func (r *availabilityRepo) filter(keep func(*model.AvailabilitySlot) bool) []*model.AvailabilitySlot {
	var out []*model.AvailabilitySlot
	for _, s := range r.d.slots {
		if keep(s) {
			out = append(out, copySlot(s))
		}
	}
	return out
}

type sessionRepo struct {
	d   *data
	now func() time.Time
}

func (r *sessionRepo) Create(_ context.Context, session *model.Session) error {
	session.ID = r.d.nextID()
	session.CreatedAt = r.now()
	session.UpdatedAt = session.CreatedAt
	r.d.sessions[session.ID] = copySession(session)
	return nil
}

func (r *sessionRepo) GetByID(_ context.Context, id int64) (*model.Session, error) {
	s, ok := r.d.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

// GetForUpdate is GetByID; transactions are already serialized.
func (r *sessionRepo) GetForUpdate(ctx context.Context, id int64) (*model.Session, error) {
	return r.GetByID(ctx, id)
}

func (r *sessionRepo) Update(_ context.Context, session *model.Session) error {
	if _, ok := r.d.sessions[session.ID]; !ok {
		return apperr.New(apperr.KindNotFound, "session not found")
	}
	session.UpdatedAt = r.now()
	r.d.sessions[session.ID] = copySession(session)
	return nil
}

func (r *sessionRepo) ListOverlapping(_ context.Context, tutorID int64, start, end time.Time, excludeID int64) ([]*model.Session, error) {
	out := r.filter(func(s *model.Session) bool {
		return s.TutorID == tutorID &&
			s.ID != excludeID &&
			s.Status.IsActive() &&
			timeslot.Overlaps(start, end.Sub(start), s.StartAt, s.Duration)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (r *sessionRepo) ExistsRejected(_ context.Context, tutorID, studentID int64, from, to time.Time) (bool, error) {
	for _, s := range r.d.sessions {
		if s.TutorID == tutorID && s.StudentID == studentID &&
			s.Status == model.SessionStatusRejected &&
			!s.StartAt.Before(from) && !s.StartAt.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func (r *sessionRepo) List(_ context.Context, f repository.SessionFilter) ([]*model.Session, error) {
	out := r.filter(func(s *model.Session) bool {
		if f.ParticipantID != 0 && !s.IsParticipant(f.ParticipantID) {
			return false
		}
		if f.Status != "" && s.Status != f.Status {
			return false
		}
		if f.TutorID != 0 && s.TutorID != f.TutorID {
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.After(out[j].StartAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *sessionRepo) ListElapsedConfirmed(_ context.Context, now time.Time) ([]int64, error) {
	return r.ids(func(s *model.Session) bool {
		return s.Status == model.SessionStatusConfirmed && s.HasEnded(now)
	}), nil
}

func (r *sessionRepo) ListReminderDue(_ context.Context, from, to time.Time) ([]int64, error) {
	return r.ids(func(s *model.Session) bool {
		return s.Status == model.SessionStatusConfirmed &&
			s.ReminderSentAt == nil &&
			s.StartAt.After(from) && !s.StartAt.After(to)
	}), nil
}

func (r *sessionRepo) filter(keep func(*model.Session) bool) []*model.Session {
	var out []*model.Session
	for _, s := range r.d.sessions {
		if keep(s) {
			out = append(out, copySession(s))
		}
	}
	return out
}

func (r *sessionRepo) ids(keep func(*model.Session) bool) []int64 {
	matched := r.filter(keep)
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartAt.Before(matched[j].StartAt) })

	ids := make([]int64, len(matched))
	for i, s := range matched {
		ids[i] = s.ID
	}
	return ids
}

type reviewRepo struct {
	d   *data
	now func() time.Time
}

func (r *reviewRepo) Create(_ context.Context, review *model.Review) error {
	for _, existing := range r.d.reviews {
		if existing.SessionID == review.SessionID {
			return apperr.New(apperr.KindReviewAlreadyExists, "session already has a review")
		}
	}
	review.ID = r.d.nextID()
	review.CreatedAt = r.now()
	r.d.reviews[review.ID] = copyReview(review)
	return nil
}

func (r *reviewRepo) GetBySessionID(_ context.Context, sessionID int64) (*model.Review, error) {
	for _, rv := range r.d.reviews {
		if rv.SessionID == sessionID {
			return copyReview(rv), nil
		}
	}
	return nil, nil
}

func (r *reviewRepo) ListByTutor(_ context.Context, tutorID int64) ([]*model.Review, error) {
	var out []*model.Review
	for _, rv := range r.d.reviews {
		if rv.TutorID == tutorID {
			out = append(out, copyReview(rv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *reviewRepo) RatingsByTutor(ctx context.Context, tutorID int64) ([]int, error) {
	reviews, _ := r.ListByTutor(ctx, tutorID)
	ratings := make([]int, len(reviews))
	for i, rv := range reviews {
		ratings[i] = rv.Rating
	}
	return ratings, nil
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.Roles = append([]model.Role(nil), u.Roles...)
	c.AverageRating = copyFloat(u.AverageRating)
	if u.TelegramID != nil {
		id := *u.TelegramID
		c.TelegramID = &id
	}
	return &c
}

func copySlot(s *model.AvailabilitySlot) *model.AvailabilitySlot {
	c := *s
	return &c
}

func copySession(s *model.Session) *model.Session {
	c := *s
	c.PendingRescheduleAt = copyTime(s.PendingRescheduleAt)
	c.ReminderSentAt = copyTime(s.ReminderSentAt)
	return &c
}

func copyReview(r *model.Review) *model.Review {
	c := *r
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
