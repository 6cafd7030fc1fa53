package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type CreateUserInput struct {
	Username   string       `json:"username" validate:"required,max=150"`
	TelegramID *int64       `json:"telegram_id" validate:"omitempty,gt=0"`
	Roles      []model.Role `json:"roles" validate:"required,min=1,dive,oneof=student tutor"`
}

// UserService provisions identity records for local setups and resolves
// notification recipients.
type UserService struct {
	store    repository.Store
	validate *validator.Validate
	logger   *zap.Logger
}

func NewUserService(store repository.Store, logger *zap.Logger) *UserService {
	return &UserService{
		store:    store,
		validate: NewValidator(),
		logger:   logger,
	}
}

// CreateUser создаёт нового пользователя
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, ValidationError(err)
	}

	user := &model.User{
		Username:   in.Username,
		TelegramID: in.TelegramID,
		Roles:      in.Roles,
	}
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User created",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Any("roles", user.Roles))

	return user, nil
}

// GetByID получает пользователя по ID. Returns nil if the user does not exist.
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user *model.User
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		user, err = repos.Users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// GetByTelegramID находит пользователя по привязанному Telegram чату.
// Returns nil if no user is linked to the chat.
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user *model.User
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		user, err = repos.Users.GetByTelegramID(ctx, telegramID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	return user, nil
}
