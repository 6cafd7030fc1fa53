package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"

	"github.com/Freeeeeet/tutorbook/internal/controller/callbackdata"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/avast/retry-go/v4"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogSink writes events to the application log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.logger.Info("Notification",
		zap.String("event_id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
		zap.Int64("recipient_id", ev.RecipientID),
		zap.Int64("actor_id", ev.ActorID),
		zap.Int64("session_id", ev.SessionID),
		zap.String("session_status", string(ev.SessionStatus)),
		zap.String("title", ev.Title),
		zap.String("message", ev.Message))
	return nil
}

// UserLookup resolves recipients to identity records.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSink sends events as Telegram messages to recipients with a linked chat.
type TelegramSink struct {
	sender messageSender
	users  UserLookup
	logger *zap.Logger
}

// NewTelegramSink создаёт sink поверх Telegram бота
func NewTelegramSink(token string, users UserLookup, logger *zap.Logger) (*TelegramSink, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSink{sender: b, users: users, logger: logger}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Deliver(ctx context.Context, ev Event) error {
	user, err := s.users.GetByID(ctx, ev.RecipientID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if user == nil || user.TelegramID == nil {
		s.logger.Debug("Recipient has no telegram chat, skipping",
			zap.Int64("recipient_id", ev.RecipientID),
			zap.String("type", string(ev.Type)))
		return nil
	}

	params := &bot.SendMessageParams{
		ChatID:    *user.TelegramID,
		Text:      fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(ev.Title), html.EscapeString(ev.Message)),
		ParseMode: models.ParseModeHTML,
	}
	if kb := actionKeyboard(ev); kb != nil {
		params.ReplyMarkup = kb
	}

	_, err = s.sender.SendMessage(ctx, params)
	if err != nil {
		if errors.Is(err, bot.ErrorForbidden) {
			// the user blocked the bot
			return retry.Unrecoverable(err)
		}
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

// actionKeyboard returns the buttons the recipient can answer the event with
func actionKeyboard(ev Event) *models.InlineKeyboardMarkup {
	if ev.SessionID == 0 {
		return nil
	}
	switch ev.Type {
	case EventBookingRequest:
		return callbackdata.Keyboard(
			callbackdata.Button("✅ Confirm", callbackdata.Confirm, ev.SessionID),
			callbackdata.Button("❌ Reject", callbackdata.Reject, ev.SessionID),
		)
	case EventSessionRescheduled:
		return callbackdata.Keyboard(
			callbackdata.Button("✅ Accept", callbackdata.AcceptReschedule, ev.SessionID),
			callbackdata.Button("❌ Decline", callbackdata.DeclineReschedule, ev.SessionID),
		)
	default:
		return nil
	}
}

// RedisStreamSink appends events to a Redis stream for downstream consumers.
type RedisStreamSink struct {
	client *redis.Client
	stream string
}

// NewRedisStreamSink подключается к Redis и проверяет соединение
func NewRedisStreamSink(ctx context.Context, redisURL, stream string) (*RedisStreamSink, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStreamSink{client: client, stream: stream}, nil
}

func (s *RedisStreamSink) Name() string { return "redis" }

func (s *RedisStreamSink) Deliver(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("marshal event: %w", err))
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":           ev.ID.String(),
			"type":         string(ev.Type),
			"recipient_id": ev.RecipientID,
			"payload":      string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}

	return nil
}

func (s *RedisStreamSink) Close() error {
	return s.client.Close()
}
