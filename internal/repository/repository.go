// Package repository declares the storage contracts of the booking engine.
// Implementations live in the postgres and memory subpackages.
package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
)

// UserRepository reads identity records and stores the derived rating aggregate.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	UpdateRating(ctx context.Context, rating model.TutorRating) error
}

type AvailabilityRepository interface {
	// Create fails with apperr.ErrDuplicateSlot when the tutor already has a slot
	// starting at the same date and time.
	Create(ctx context.Context, slot *model.AvailabilitySlot) error
	GetByID(ctx context.Context, id int64) (*model.AvailabilitySlot, error)
	Update(ctx context.Context, slot *model.AvailabilitySlot) error
	Delete(ctx context.Context, id int64) error
	ListByTutor(ctx context.Context, tutorID int64) ([]*model.AvailabilitySlot, error)
	// ListForDate returns the tutor's one-off slots on date and all recurring slots.
	ListForDate(ctx context.Context, tutorID int64, date time.Time) ([]*model.AvailabilitySlot, error)
}

// SessionFilter narrows ListSessions. Zero values mean "any".
type SessionFilter struct {
	ParticipantID int64
	Status        model.SessionStatus
	TutorID       int64
}

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	// GetForUpdate reads the session and locks it for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (*model.Session, error)
	Update(ctx context.Context, session *model.Session) error
	// ListOverlapping returns the tutor's sessions in an active status whose interval
	// intersects [start, end), excluding excludeID (0 excludes nothing).
	ListOverlapping(ctx context.Context, tutorID int64, start, end time.Time, excludeID int64) ([]*model.Session, error)
	// ExistsRejected reports whether the student has a rejected request with the
	// tutor starting within [from, to].
	ExistsRejected(ctx context.Context, tutorID, studentID int64, from, to time.Time) (bool, error)
	// List orders by start time, latest first.
	List(ctx context.Context, filter SessionFilter) ([]*model.Session, error)
	// ListElapsedConfirmed returns IDs of confirmed sessions that ended before now.
	ListElapsedConfirmed(ctx context.Context, now time.Time) ([]int64, error)
	// ListReminderDue returns IDs of confirmed sessions starting in (from, to]
	// that have not been reminded yet.
	ListReminderDue(ctx context.Context, from, to time.Time) ([]int64, error)
}

type ReviewRepository interface {
	// Create fails with apperr.ErrReviewAlreadyExists when the session is already reviewed.
	Create(ctx context.Context, review *model.Review) error
	GetBySessionID(ctx context.Context, sessionID int64) (*model.Review, error)
	ListByTutor(ctx context.Context, tutorID int64) ([]*model.Review, error)
	RatingsByTutor(ctx context.Context, tutorID int64) ([]int, error)
}

// Repositories is the set of repositories bound to one transaction.
type Repositories struct {
	Users        UserRepository
	Availability AvailabilityRepository
	Sessions     SessionRepository
	Reviews      ReviewRepository
}

// Store is the transaction boundary. Every check-then-write sequence of a booking
// operation runs inside one InTx call; the store's isolation is the only mutual
// exclusion between concurrent callers.
type Store interface {
	InTx(ctx context.Context, fn func(repos Repositories) error) error
}
