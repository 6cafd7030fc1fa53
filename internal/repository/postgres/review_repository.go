package postgres

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/jackc/pgx/v5"
)

const reviewColumns = `id, session_id, tutor_id, student_id, rating, comment, created_at`

type ReviewRepository struct {
	db DBTX
}

func NewReviewRepository(db DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create создаёт отзыв на занятие
func (r *ReviewRepository) Create(ctx context.Context, review *model.Review) error {
	query := `
		INSERT INTO reviews (session_id, tutor_id, student_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		review.SessionID,
		review.TutorID,
		review.StudentID,
		review.Rating,
		review.Comment,
	).Scan(&review.ID, &review.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindReviewAlreadyExists, "session already has a review", err)
		}
		return fmt.Errorf("create review: %w", err)
	}

	return nil
}

// GetBySessionID получает отзыв по ID занятия
func (r *ReviewRepository) GetBySessionID(ctx context.Context, sessionID int64) (*model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE session_id = $1`

	review, err := scanReview(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get review by session id: %w", err)
	}

	return review, nil
}

// ListByTutor получает отзывы учителя, новые первыми
func (r *ReviewRepository) ListByTutor(ctx context.Context, tutorID int64) ([]*model.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE tutor_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by tutor: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return reviews, nil
}

// RatingsByTutor получает все оценки учителя
func (r *ReviewRepository) RatingsByTutor(ctx context.Context, tutorID int64) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT rating FROM reviews WHERE tutor_id = $1`, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list tutor ratings: %w", err)
	}

	ratings, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("collect tutor ratings: %w", err)
	}

	return ratings, nil
}

func scanReview(row pgx.Row) (*model.Review, error) {
	var review model.Review
	err := row.Scan(
		&review.ID,
		&review.SessionID,
		&review.TutorID,
		&review.StudentID,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &review, nil
}
