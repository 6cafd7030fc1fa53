package postgres

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (username, telegram_id, roles)
		VALUES ($1, $2, $3)
		RETURNING id, total_ratings, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		user.Username,
		user.TelegramID,
		rolesToStrings(user.Roles),
	).Scan(&user.ID, &user.TotalRatings, &user.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Validation("telegram chat already linked", map[string]string{"telegram_id": "is linked to another user"})
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

const userColumns = `id, username, telegram_id, roles, average_rating, total_ratings, created_at`

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user  model.User
		roles []string
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.TelegramID,
		&roles,
		&user.AverageRating,
		&user.TotalRatings,
		&user.CreatedAt,
	)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	user.Roles = stringsToRoles(roles)
	return &user, nil
}

// UpdateRating writes both aggregate fields in one statement
func (r *UserRepository) UpdateRating(ctx context.Context, rating model.TutorRating) error {
	query := `
		UPDATE users
		SET average_rating = $1, total_ratings = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(ctx, query, rating.Average, rating.Total, rating.TutorID)
	if err != nil {
		return fmt.Errorf("update tutor rating: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}

	return nil
}

func rolesToStrings(roles []model.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(roles []string) []model.Role {
	out := make([]model.Role, len(roles))
	for i, r := range roles {
		out[i] = model.Role(r)
	}
	return out
}
