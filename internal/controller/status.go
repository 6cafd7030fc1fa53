package controller

import "github.com/Freeeeeet/tutorbook/internal/model"

// SessionStatusDisplay представляет отображение статуса занятия
type SessionStatusDisplay struct {
	Emoji string
	Text  string
}

var sessionStatusDisplays = map[model.SessionStatus]SessionStatusDisplay{
	model.SessionStatusPending:           {"⏳", "waiting for the tutor"},
	model.SessionStatusConfirmed:         {"✅", "confirmed"},
	model.SessionStatusRejected:          {"🚫", "rejected"},
	model.SessionStatusReschedulePending: {"🔁", "new time proposed"},
	model.SessionStatusCancelled:         {"❌", "cancelled"},
	model.SessionStatusCompleted:         {"✔️", "completed"},
}

// GetSessionStatusDisplay возвращает emoji и текст для статуса занятия
func GetSessionStatusDisplay(status model.SessionStatus) SessionStatusDisplay {
	if display, ok := sessionStatusDisplays[status]; ok {
		return display
	}
	return SessionStatusDisplay{"❓", string(status)}
}
