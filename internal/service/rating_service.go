package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type SubmitReviewInput struct {
	SessionID int64  `json:"session_id" validate:"required,gt=0"`
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Rating    int    `json:"rating" validate:"min=1,max=5"`
	Comment   string `json:"comment" validate:"max=2000"`
}

type RatingService struct {
	store    repository.Store
	emitter  notify.Emitter
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	loc      *time.Location
}

func NewRatingService(store repository.Store, opts Options, logger *zap.Logger) *RatingService {
	opts = opts.withDefaults()
	return &RatingService{
		store:    store,
		emitter:  opts.Emitter,
		validate: NewValidator(),
		logger:   logger,
		now:      opts.Now,
		loc:      opts.Location,
	}
}

// SubmitReview stores the student's review of a completed session and
// recomputes the tutor's rating in the same transaction.
func (s *RatingService) SubmitReview(ctx context.Context, in SubmitReviewInput) (*model.Review, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, ValidationError(err)
	}

	var (
		review  *model.Review
		session *model.Session
		rating  model.TutorRating
	)
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		session, err = repos.Sessions.GetForUpdate(ctx, in.SessionID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if session == nil {
			return notFound("session")
		}
		if session.Status != model.SessionStatusCompleted || session.StudentID != in.StudentID {
			return apperr.New(apperr.KindSessionNotCompleted, "only the student of a completed session can review it")
		}

		existing, err := repos.Reviews.GetBySessionID(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("get review: %w", err)
		}
		if existing != nil {
			return apperr.New(apperr.KindReviewAlreadyExists, "a review already exists for this session")
		}

		review = &model.Review{
			SessionID: session.ID,
			TutorID:   session.TutorID,
			StudentID: session.StudentID,
			Rating:    in.Rating,
			Comment:   in.Comment,
		}
		if err := repos.Reviews.Create(ctx, review); err != nil {
			return err
		}

		rating, err = recompute(ctx, repos, session.TutorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Review submitted",
		zap.Int64("review_id", review.ID),
		zap.Int64("session_id", review.SessionID),
		zap.Int64("tutor_id", review.TutorID),
		zap.Int("rating", review.Rating),
		zap.Int("total_ratings", rating.Total))

	s.emitter.Emit(notify.NewReviewEvent(review, session, s.now(), s.loc))

	return review, nil
}

// RecomputeTutorRating пересчитывает рейтинг учителя по всем отзывам
func (s *RatingService) RecomputeTutorRating(ctx context.Context, tutorID int64) (model.TutorRating, error) {
	var rating model.TutorRating
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		if _, err := requireTutor(ctx, repos, tutorID); err != nil {
			return err
		}

		var err error
		rating, err = recompute(ctx, repos, tutorID)
		return err
	})
	if err != nil {
		return model.TutorRating{}, err
	}

	s.logger.Info("Tutor rating recomputed",
		zap.Int64("tutor_id", tutorID),
		zap.Int("total_ratings", rating.Total))

	return rating, nil
}

// GetTutorRating возвращает сохранённый агрегат рейтинга
func (s *RatingService) GetTutorRating(ctx context.Context, tutorID int64) (model.TutorRating, error) {
	var rating model.TutorRating
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		tutor, err := requireTutor(ctx, repos, tutorID)
		if err != nil {
			return err
		}
		rating = model.TutorRating{TutorID: tutor.ID, Average: tutor.AverageRating, Total: tutor.TotalRatings}
		return nil
	})
	if err != nil {
		return model.TutorRating{}, err
	}

	return rating, nil
}

// ListTutorReviews возвращает отзывы учителя, новые первыми
func (s *RatingService) ListTutorReviews(ctx context.Context, tutorID int64) ([]*model.Review, error) {
	var reviews []*model.Review
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		if _, err := requireTutor(ctx, repos, tutorID); err != nil {
			return err
		}

		var err error
		reviews, err = repos.Reviews.ListByTutor(ctx, tutorID)
		if err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return reviews, nil
}

// GetReviewForSession returns the session's review to one of its participants.
// A session without a review is reported as not found.
func (s *RatingService) GetReviewForSession(ctx context.Context, sessionID, actorID int64) (*model.Review, error) {
	var review *model.Review
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		session, err := repos.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if session == nil {
			return notFound("session")
		}
		if !session.IsParticipant(actorID) {
			return apperr.New(apperr.KindInvalidActor, "only participants can view this review")
		}

		review, err = repos.Reviews.GetBySessionID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get review: %w", err)
		}
		if review == nil {
			return notFound("review")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return review, nil
}

func recompute(ctx context.Context, repos repository.Repositories, tutorID int64) (model.TutorRating, error) {
	ratings, err := repos.Reviews.RatingsByTutor(ctx, tutorID)
	if err != nil {
		return model.TutorRating{}, fmt.Errorf("list tutor ratings: %w", err)
	}

	rating := model.ComputeTutorRating(tutorID, ratings)
	if err := repos.Users.UpdateRating(ctx, rating); err != nil {
		return model.TutorRating{}, fmt.Errorf("update tutor rating: %w", err)
	}
	return rating, nil
}
