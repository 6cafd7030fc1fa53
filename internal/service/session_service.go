package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	// DeniedWindow is how close to a rejected request's start a new request
	// from the same student to the same tutor is refused.
	DeniedWindow = 30 * time.Minute

	MaxSessionDuration = 12 * time.Hour
)

// RequestSessionInput is a student's booking request.
type RequestSessionInput struct {
	TutorID   int64             `json:"tutor_id" validate:"required,gt=0"`
	StudentID int64             `json:"student_id" validate:"required,gt=0,nefield=TutorID"`
	StartAt   time.Time         `json:"start_at" validate:"required"`
	Duration  time.Duration     `json:"duration"`
	Topic     string            `json:"topic" validate:"max=255"`
	Mode      model.SessionMode `json:"mode" validate:"required,oneof=webcam in-person"`
	Notes     string            `json:"notes" validate:"max=2000"`
}

// ListFilter narrows ListSessions. Zero values mean "any".
type ListFilter struct {
	Status  model.SessionStatus
	TutorID int64
}

type SessionService struct {
	store    repository.Store
	emitter  notify.Emitter
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	loc      *time.Location
}

func NewSessionService(store repository.Store, opts Options, logger *zap.Logger) *SessionService {
	opts = opts.withDefaults()
	return &SessionService{
		store:    store,
		emitter:  opts.Emitter,
		validate: NewValidator(),
		logger:   logger,
		now:      opts.Now,
		loc:      opts.Location,
	}
}

// RequestSession создаёт запрос на занятие от студента
func (s *SessionService) RequestSession(ctx context.Context, in RequestSessionInput) (*model.Session, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, ValidationError(err)
	}
	if err := checkDuration(in.Duration); err != nil {
		return nil, err
	}

	now := s.now()
	if !in.StartAt.After(now) {
		return nil, apperr.New(apperr.KindPastBooking, "cannot book sessions in the past")
	}

	var session *model.Session
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		if _, err := requireTutor(ctx, repos, in.TutorID); err != nil {
			return err
		}

		student, err := repos.Users.GetByID(ctx, in.StudentID)
		if err != nil {
			return fmt.Errorf("get student: %w", err)
		}
		if student == nil {
			return notFound("student")
		}
		if !student.IsStudent() {
			return apperr.New(apperr.KindInvalidActor, "only students can request sessions")
		}

		// Учитель уже отклонял запрос на это время
		denied, err := repos.Sessions.ExistsRejected(ctx, in.TutorID, in.StudentID,
			in.StartAt.Add(-DeniedWindow), in.StartAt.Add(DeniedWindow))
		if err != nil {
			return fmt.Errorf("check rejected sessions: %w", err)
		}
		if denied {
			return apperr.New(apperr.KindPreviouslyDenied,
				"this booking request was previously denied by the tutor, please select a different time")
		}

		match, err := matchAvailability(ctx, repos, in.TutorID, in.StartAt, in.Duration, s.loc)
		if err != nil {
			return err
		}
		if match.slot == nil {
			return apperr.New(apperr.KindTutorUnavailable, "tutor is not available at this time, please select a different time")
		}

		if err := checkOverlap(ctx, repos, in.TutorID, in.StartAt, in.Duration, 0); err != nil {
			return err
		}

		if _, err := match.materialize(ctx, repos, in.TutorID); err != nil {
			return err
		}

		session = &model.Session{
			TutorID:   in.TutorID,
			StudentID: in.StudentID,
			StartAt:   in.StartAt,
			Duration:  in.Duration,
			Topic:     in.Topic,
			Mode:      in.Mode,
			Status:    model.SessionStatusPending,
			Notes:     in.Notes,
		}
		if err := repos.Sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session requested",
		zap.Int64("session_id", session.ID),
		zap.Int64("tutor_id", session.TutorID),
		zap.Int64("student_id", session.StudentID),
		zap.Time("start_at", session.StartAt),
		zap.Duration("duration", session.Duration))

	s.emitter.Emit(notify.NewSessionEvent(notify.EventBookingRequest, session, session.TutorID, session.StudentID, now, s.loc))

	return session, nil
}

// ConfirmSession подтверждает запрос (только учитель)
func (s *SessionService) ConfirmSession(ctx context.Context, sessionID, actorID int64) (*model.Session, error) {
	return s.transition(ctx, sessionID, Change{Event: EvConfirm, ActorID: actorID}, nil)
}

// RejectSession отклоняет запрос (только учитель)
func (s *SessionService) RejectSession(ctx context.Context, sessionID, actorID int64) (*model.Session, error) {
	return s.transition(ctx, sessionID, Change{Event: EvReject, ActorID: actorID}, nil)
}

// CancelSession отменяет занятие (учитель или студент). An open reschedule
// proposal is discarded with it.
func (s *SessionService) CancelSession(ctx context.Context, sessionID, actorID int64) (*model.Session, error) {
	return s.transition(ctx, sessionID, Change{Event: EvCancel, ActorID: actorID}, nil)
}

// ProposeReschedule stores the tutor's proposed new start until the student
// responds. The new time must be free and gets a one-off availability slot if
// the tutor has none covering it.
func (s *SessionService) ProposeReschedule(ctx context.Context, sessionID, actorID int64, newStart time.Time) (*model.Session, error) {
	if newStart.IsZero() {
		return nil, apperr.Validation("invalid input", map[string]string{"start_at": "is required"})
	}

	change := Change{Event: EvProposeReschedule, ActorID: actorID, NewStart: newStart}
	return s.transition(ctx, sessionID, change, func(ctx context.Context, repos repository.Repositories, session *model.Session) error {
		if err := checkOverlap(ctx, repos, session.TutorID, newStart, session.Duration, session.ID); err != nil {
			return err
		}

		match, err := matchAvailability(ctx, repos, session.TutorID, newStart, session.Duration, s.loc)
		if err != nil {
			return err
		}
		_, err = match.ensure(ctx, repos, session.TutorID)
		return err
	})
}

// RespondToReschedule is the student's answer to a proposal: accept moves the
// session to the proposed time, reject cancels it.
func (s *SessionService) RespondToReschedule(ctx context.Context, sessionID, actorID int64, accept bool) (*model.Session, error) {
	if !accept {
		return s.transition(ctx, sessionID, Change{Event: EvRejectReschedule, ActorID: actorID}, nil)
	}

	return s.transition(ctx, sessionID, Change{Event: EvAcceptReschedule, ActorID: actorID},
		func(ctx context.Context, repos repository.Repositories, session *model.Session) error {
			// время могли занять, пока студент думал
			return checkOverlap(ctx, repos, session.TutorID, session.StartAt, session.Duration, session.ID)
		})
}

// SetStatus applies the named transition that leads to target, with that
// transition's actor rule.
func (s *SessionService) SetStatus(ctx context.Context, sessionID, actorID int64, target model.SessionStatus) (*model.Session, error) {
	ev, ok := eventForTarget(target)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidTarget, fmt.Sprintf("status cannot be set to %q directly", target))
	}
	return s.transition(ctx, sessionID, Change{Event: ev, ActorID: actorID}, nil)
}

// GetSession возвращает занятие участнику
func (s *SessionService) GetSession(ctx context.Context, sessionID, actorID int64) (*model.Session, error) {
	var session *model.Session
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		session, err = repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if session == nil {
			return notFound("session")
		}
		if !session.IsParticipant(actorID) {
			return apperr.New(apperr.KindInvalidActor, "only participants can view this session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// ListSessions returns the user's sessions, latest start first. Elapsed
// confirmed sessions are completed before reading.
func (s *SessionService) ListSessions(ctx context.Context, userID int64, filter ListFilter) ([]*model.Session, error) {
	if _, err := s.RunAutoCompleteSweep(ctx); err != nil {
		s.logger.Warn("Auto-complete before listing failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	var sessions []*model.Session
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user == nil {
			return notFound("user")
		}

		sessions, err = repos.Sessions.List(ctx, repository.SessionFilter{
			ParticipantID: userID,
			Status:        filter.Status,
			TutorID:       filter.TutorID,
		})
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// RunAutoCompleteSweep completes every confirmed session that has ended, one
// transaction per session. A session changed concurrently is re-read and
// skipped if it is no longer confirmed. Returns how many sessions it completed.
func (s *SessionService) RunAutoCompleteSweep(ctx context.Context) (int, error) {
	now := s.now()

	var ids []int64
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		ids, err = repos.Sessions.ListElapsedConfirmed(ctx, now)
		if err != nil {
			return fmt.Errorf("list elapsed sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	completed := 0
	var errs []error
	for _, id := range ids {
		session, err := s.autoComplete(ctx, id, now)
		if err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				s.logger.Warn("Auto-complete lost a race, skipping", zap.Int64("session_id", id))
				continue
			}
			s.logger.Error("Failed to auto-complete session", zap.Int64("session_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if session == nil {
			continue
		}

		completed++
		s.emitter.Emit(notify.NewSessionEvent(notify.EventSessionCompleted, session, session.StudentID, SystemActorID, now, s.loc))
	}

	if completed > 0 {
		s.logger.Info("Auto-complete sweep finished",
			zap.Int("completed", completed),
			zap.Int("candidates", len(ids)))
	}

	return completed, errors.Join(errs...)
}

// autoComplete returns nil if the session no longer qualifies.
func (s *SessionService) autoComplete(ctx context.Context, sessionID int64, now time.Time) (*model.Session, error) {
	var done *model.Session
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		session, err := repos.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if session == nil || session.Status != model.SessionStatusConfirmed || !session.HasEnded(now) {
			return nil
		}

		if _, err := ApplyTransition(session, Change{Event: EvAutoComplete, ActorID: SystemActorID, Now: now}); err != nil {
			return err
		}
		if err := repos.Sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		done = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	return done, nil
}

// SendReminders notifies both participants once about every confirmed session
// starting within lead. Returns how many sessions were reminded.
func (s *SessionService) SendReminders(ctx context.Context, lead time.Duration) (int, error) {
	now := s.now()

	var ids []int64
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		ids, err = repos.Sessions.ListReminderDue(ctx, now, now.Add(lead))
		if err != nil {
			return fmt.Errorf("list sessions due for reminder: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, id := range ids {
		var session *model.Session
		err := s.store.InTx(ctx, func(repos repository.Repositories) error {
			current, err := repos.Sessions.GetForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}
			if current == nil || current.Status != model.SessionStatusConfirmed ||
				current.ReminderSentAt != nil || !current.StartAt.After(now) {
				return nil
			}

			current.ReminderSentAt = &now
			if err := repos.Sessions.Update(ctx, current); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
			session = current
			return nil
		})
		if err != nil {
			if !errors.Is(err, apperr.ErrConflict) {
				s.logger.Error("Failed to mark reminder", zap.Int64("session_id", id), zap.Error(err))
				errs = append(errs, err)
			}
			continue
		}
		if session == nil {
			continue
		}

		sent++
		for _, recipient := range []int64{session.TutorID, session.StudentID} {
			s.emitter.Emit(notify.NewSessionEvent(notify.EventSessionReminder, session, recipient, SystemActorID, now, s.loc))
		}
	}

	if sent > 0 {
		s.logger.Info("Session reminders sent", zap.Int("sessions", sent))
	}

	return sent, errors.Join(errs...)
}

type transitionCheck func(ctx context.Context, repos repository.Repositories, session *model.Session) error

// transition applies c to the session and runs check, when given, against the
// mutated session before writing it, all in one transaction.
func (s *SessionService) transition(ctx context.Context, sessionID int64, c Change, check transitionCheck) (*model.Session, error) {
	c.Now = s.now()

	var (
		session *model.Session
		tr      Transition
		from    model.SessionStatus
	)
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		session, err = repos.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if session == nil {
			return notFound("session")
		}

		from = session.Status
		tr, err = ApplyTransition(session, c)
		if err != nil {
			return err
		}

		if check != nil {
			if err := check(ctx, repos, session); err != nil {
				return err
			}
		}

		if err := repos.Sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session status changed",
		zap.Int64("session_id", session.ID),
		zap.String("event", string(c.Event)),
		zap.Int64("actor_id", c.ActorID),
		zap.String("from", string(from)),
		zap.String("to", string(session.Status)))

	recipient := recipientOf(tr, session, c.ActorID)
	s.emitter.Emit(notify.NewSessionEvent(tr.Notify, session, recipient, c.ActorID, c.Now, s.loc))

	return session, nil
}

// checkOverlap fails with SlotConflict if another active session of the tutor
// intersects [start, start+d).
func checkOverlap(ctx context.Context, repos repository.Repositories, tutorID int64, start time.Time, d time.Duration, excludeID int64) error {
	overlapping, err := repos.Sessions.ListOverlapping(ctx, tutorID, start, start.Add(d), excludeID)
	if err != nil {
		return fmt.Errorf("check overlapping sessions: %w", err)
	}
	if len(overlapping) > 0 {
		return apperr.New(apperr.KindSlotConflict, "this time slot is already booked")
	}
	return nil
}

func checkDuration(d time.Duration) error {
	var msg string
	switch {
	case d <= 0:
		msg = "must be positive"
	case d%time.Minute != 0:
		msg = "must be a whole number of minutes"
	case d > MaxSessionDuration:
		msg = "must be at most " + MaxSessionDuration.String()
	default:
		return nil
	}
	return apperr.Validation("invalid input", map[string]string{"duration": msg})
}
