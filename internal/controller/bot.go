package controller

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// UserFinder resolves a Telegram chat to a linked user.
type UserFinder interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

// SessionActions is the part of the session engine the bot drives.
type SessionActions interface {
	ListSessions(ctx context.Context, userID int64, filter service.ListFilter) ([]*model.Session, error)
	ConfirmSession(ctx context.Context, sessionID, actorID int64) (*model.Session, error)
	RejectSession(ctx context.Context, sessionID, actorID int64) (*model.Session, error)
	CancelSession(ctx context.Context, sessionID, actorID int64) (*model.Session, error)
	RespondToReschedule(ctx context.Context, sessionID, actorID int64, accept bool) (*model.Session, error)
}

// BotController is the Telegram front-end: it lists a user's sessions and
// applies the inline button answers sent with notifications.
type BotController struct {
	bot      *bot.Bot
	users    UserFinder
	sessions SessionActions
	loc      *time.Location
	logger   *zap.Logger
}

func NewBotController(botInstance *bot.Bot, users UserFinder, sessions SessionActions, loc *time.Location, logger *zap.Logger) *BotController {
	if loc == nil {
		loc = time.UTC
	}
	return &BotController{
		bot:      botInstance,
		users:    users,
		sessions: sessions,
		loc:      loc,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sessions", bot.MatchTypeExact, c.HandleSessions)

	// Обработчик нажатий на inline кнопки
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.HandleCallbackQuery)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Link this chat"},
		{Command: "help", Description: "❓ Help"},
		{Command: "sessions", Description: "📅 My upcoming sessions"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает бота. Blocks until ctx is done.
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
}
