// Package callbackdata encodes inline-button payloads shared by the Telegram
// notification sink and the bot controller.
package callbackdata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
)

type Action string

const (
	Confirm           Action = "confirm"         // confirm:123
	Reject            Action = "reject"          // reject:123
	Cancel            Action = "cancel"          // cancel:123
	AcceptReschedule  Action = "resched_accept"  // resched_accept:123
	DeclineReschedule Action = "resched_decline" // resched_decline:123
)

// Encode builds the payload for an action on a session
func Encode(a Action, sessionID int64) string {
	return string(a) + ":" + strconv.FormatInt(sessionID, 10)
}

// Decode parses a payload produced by Encode
func Decode(data string) (Action, int64, error) {
	name, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid callback data %q", data)
	}

	a := Action(name)
	switch a {
	case Confirm, Reject, Cancel, AcceptReschedule, DeclineReschedule:
	default:
		return "", 0, fmt.Errorf("unknown callback action %q", name)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid session id in callback data %q", data)
	}
	return a, id, nil
}

// Button создаёт inline кнопку для действия над занятием
func Button(text string, a Action, sessionID int64) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: Encode(a, sessionID)}
}

// Keyboard builds a one-row inline keyboard, or nil when there are no buttons
func Keyboard(buttons ...models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{buttons}}
}
