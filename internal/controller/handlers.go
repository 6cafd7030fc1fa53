package controller

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/controller/callbackdata"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const maxListedSessions = 10

var errNotLinked = errors.New("chat is not linked to a user")

const (
	notLinkedText = "🔒 This chat is not linked to an account yet.\n\n" +
		"Ask an administrator to link your Telegram ID: %d"
	helpText = "📚 Commands:\n\n" +
		"/sessions - Upcoming and pending sessions\n" +
		"/help - Show this help\n\n" +
		"Booking requests and reschedule proposals arrive here with buttons to answer them."
)

// HandleStart обрабатывает команду /start
func (c *BotController) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	telegramID := update.Message.From.ID

	user, err := c.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		c.logger.Error("Failed to look up user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		c.reply(ctx, b, update.Message.Chat.ID, "❌ Something went wrong. Try again later.", nil)
		return
	}
	if user == nil {
		c.reply(ctx, b, update.Message.Chat.ID, fmt.Sprintf(notLinkedText, telegramID), nil)
		return
	}

	c.reply(ctx, b, update.Message.Chat.ID,
		fmt.Sprintf("👋 Hi, %s!\n\nNotifications about your sessions will arrive in this chat.\n\n%s", user.Username, helpText), nil)
}

// HandleHelp обрабатывает команду /help
func (c *BotController) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	c.reply(ctx, b, update.Message.Chat.ID, helpText, nil)
}

// HandleSessions показывает активные занятия пользователя
func (c *BotController) HandleSessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	telegramID := update.Message.From.ID

	text, markup, err := c.sessionsView(ctx, telegramID)
	switch {
	case errors.Is(err, errNotLinked):
		text = fmt.Sprintf(notLinkedText, telegramID)
	case err != nil:
		c.logger.Error("Failed to list sessions", zap.Int64("telegram_id", telegramID), zap.Error(err))
		text = "❌ Could not load your sessions. Try again later."
	}

	c.reply(ctx, b, update.Message.Chat.ID, text, markup)
}

// HandleCallbackQuery обрабатывает нажатия на inline кнопки
func (c *BotController) HandleCallbackQuery(ctx context.Context, b *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}

	answer, err := c.handleAction(ctx, query.From.ID, query.Data)
	if err != nil {
		c.logger.Warn("Callback action failed",
			zap.Int64("telegram_id", query.From.ID),
			zap.String("data", query.Data),
			zap.Error(err))
		answer = actionErrorText(err)
	}

	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            answer,
		ShowAlert:       err != nil,
	})

	// убираем кнопки, чтобы на уведомление нельзя было ответить дважды
	if err == nil && query.Message.Message != nil {
		b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
			ChatID:    query.Message.Message.Chat.ID,
			MessageID: query.Message.Message.ID,
		})
	}
}

// sessionsView renders the user's active sessions with the buttons they can act on
func (c *BotController) sessionsView(ctx context.Context, telegramID int64) (string, *models.InlineKeyboardMarkup, error) {
	user, err := c.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, errNotLinked
	}

	all, err := c.sessions.ListSessions(ctx, user.ID, service.ListFilter{})
	if err != nil {
		return "", nil, err
	}

	var active []*model.Session
	for _, s := range all {
		if s.Status.IsActive() {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return "📭 You have no upcoming sessions.", nil, nil
	}
	if len(active) > maxListedSessions {
		active = active[:maxListedSessions]
	}

	var sb strings.Builder
	sb.WriteString("📅 <b>Your sessions</b>\n")

	var rows [][]models.InlineKeyboardButton
	for _, s := range active {
		display := GetSessionStatusDisplay(s.Status)
		fmt.Fprintf(&sb, "\n%s #%d %s, %s\n%s, %s",
			display.Emoji, s.ID,
			notify.FormatDateTime(s.StartAt.In(c.loc)), notify.FormatDuration(s.Duration),
			html.EscapeString(topicOrDash(s.Topic)), display.Text)
		if s.PendingRescheduleAt != nil {
			fmt.Fprintf(&sb, " → %s", notify.FormatDateTime(s.PendingRescheduleAt.In(c.loc)))
		}
		sb.WriteString("\n")

		if row := sessionButtons(s, user.ID); len(row) > 0 {
			rows = append(rows, row)
		}
	}

	var markup *models.InlineKeyboardMarkup
	if len(rows) > 0 {
		markup = &models.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	return sb.String(), markup, nil
}

// sessionButtons returns the actions userID may take on the session right now
func sessionButtons(s *model.Session, userID int64) []models.InlineKeyboardButton {
	isTutor := s.TutorID == userID
	isStudent := s.StudentID == userID

	switch s.Status {
	case model.SessionStatusPending:
		if isTutor {
			return []models.InlineKeyboardButton{
				callbackdata.Button(fmt.Sprintf("✅ #%d", s.ID), callbackdata.Confirm, s.ID),
				callbackdata.Button(fmt.Sprintf("❌ #%d", s.ID), callbackdata.Reject, s.ID),
			}
		}
		return []models.InlineKeyboardButton{
			callbackdata.Button(fmt.Sprintf("🗑 Cancel #%d", s.ID), callbackdata.Cancel, s.ID),
		}
	case model.SessionStatusReschedulePending:
		if isStudent {
			return []models.InlineKeyboardButton{
				callbackdata.Button(fmt.Sprintf("✅ Accept #%d", s.ID), callbackdata.AcceptReschedule, s.ID),
				callbackdata.Button(fmt.Sprintf("❌ Decline #%d", s.ID), callbackdata.DeclineReschedule, s.ID),
			}
		}
		return []models.InlineKeyboardButton{
			callbackdata.Button(fmt.Sprintf("🗑 Cancel #%d", s.ID), callbackdata.Cancel, s.ID),
		}
	case model.SessionStatusConfirmed:
		return []models.InlineKeyboardButton{
			callbackdata.Button(fmt.Sprintf("🗑 Cancel #%d", s.ID), callbackdata.Cancel, s.ID),
		}
	default:
		return nil
	}
}

// handleAction applies a button press on behalf of the chat's user and
// returns the text to answer the callback with.
func (c *BotController) handleAction(ctx context.Context, telegramID int64, data string) (string, error) {
	action, sessionID, err := callbackdata.Decode(data)
	if err != nil {
		return "", apperr.Validation("unsupported button", nil)
	}

	user, err := c.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errNotLinked
	}

	var session *model.Session
	switch action {
	case callbackdata.Confirm:
		session, err = c.sessions.ConfirmSession(ctx, sessionID, user.ID)
	case callbackdata.Reject:
		session, err = c.sessions.RejectSession(ctx, sessionID, user.ID)
	case callbackdata.Cancel:
		session, err = c.sessions.CancelSession(ctx, sessionID, user.ID)
	case callbackdata.AcceptReschedule:
		session, err = c.sessions.RespondToReschedule(ctx, sessionID, user.ID, true)
	case callbackdata.DeclineReschedule:
		session, err = c.sessions.RespondToReschedule(ctx, sessionID, user.ID, false)
	}
	if err != nil {
		return "", err
	}

	c.logger.Info("Session updated from Telegram",
		zap.Int64("session_id", session.ID),
		zap.Int64("user_id", user.ID),
		zap.String("action", string(action)),
		zap.String("status", string(session.Status)))

	display := GetSessionStatusDisplay(session.Status)
	return fmt.Sprintf("%s Session #%d: %s", display.Emoji, session.ID, display.Text), nil
}

func actionErrorText(err error) string {
	if errors.Is(err, errNotLinked) {
		return "🔒 This chat is not linked to an account."
	}

	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "❌ Session not found."
	case apperr.KindInvalidActor, apperr.KindNotATutor:
		return "🚫 You cannot do this with this session."
	case apperr.KindInvalidState:
		return "⚠️ The session has already changed. Use /sessions to see its status."
	case apperr.KindSlotConflict, apperr.KindTutorUnavailable, apperr.KindPastBooking:
		return "⚠️ That time is no longer available."
	case apperr.KindConflict:
		return "⚠️ The session was changed at the same time. Please try again."
	case apperr.KindValidation:
		return "❌ This button is no longer supported."
	default:
		return "❌ Something went wrong. Try again later."
	}
}

func (c *BotController) reply(ctx context.Context, b *bot.Bot, chatID int64, text string, markup *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := b.SendMessage(ctx, params); err != nil {
		c.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func topicOrDash(topic string) string {
	if topic == "" {
		return "no topic"
	}
	return topic
}
