package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
)

// FormatDateTime форматирует дату и время
func FormatDateTime(t time.Time) string {
	return t.Format("Mon 02.01.2006 15:04")
}

// FormatDuration форматирует длительность
func FormatDuration(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}

func render(t EventType, s *model.Session, loc *time.Location) (title, message string) {
	when := FormatDateTime(s.StartAt.In(loc))
	what := describe(s)

	switch t {
	case EventBookingRequest:
		return "New booking request", fmt.Sprintf("New request for %s on %s.", what, when)
	case EventBookingConfirmed:
		return "Booking confirmed", fmt.Sprintf("Your session %s on %s has been confirmed.", what, when)
	case EventBookingRejected:
		return "Booking rejected", fmt.Sprintf("Your request for %s on %s has been rejected.", what, when)
	case EventSessionCancelled:
		return "Session cancelled", fmt.Sprintf("The session %s on %s has been cancelled.", what, when)
	case EventSessionRescheduled:
		proposed := when
		if s.PendingRescheduleAt != nil {
			proposed = FormatDateTime(s.PendingRescheduleAt.In(loc))
		}
		return "Reschedule proposed", fmt.Sprintf("Your tutor proposed to move %s from %s to %s.", what, when, proposed)
	case EventRescheduleAccepted:
		return "Reschedule accepted", fmt.Sprintf("The student accepted the new time for %s: %s.", what, when)
	case EventRescheduleRejected:
		return "Reschedule rejected", fmt.Sprintf("The student rejected the new time for %s; the session is cancelled.", what)
	case EventSessionCompleted:
		return "Session completed", fmt.Sprintf("Your session %s on %s is completed. Leave a review!", what, when)
	case EventSessionReminder:
		return "Session reminder", fmt.Sprintf("Reminder: %s starts on %s.", what, when)
	case EventNewReview:
		return "New review", fmt.Sprintf("You received a new review for %s.", what)
	}
	return string(t), fmt.Sprintf("Session %d: %s", s.ID, s.Status)
}

func describe(s *model.Session) string {
	var b strings.Builder
	if s.Topic != "" {
		fmt.Fprintf(&b, "%q", s.Topic)
	} else {
		fmt.Fprintf(&b, "#%d", s.ID)
	}
	fmt.Fprintf(&b, " (%s, %s)", FormatDuration(s.Duration), s.Mode)
	return b.String()
}

func formatReview(r *model.Review, s *model.Session, loc *time.Location) string {
	stars := strings.Repeat("★", r.Rating) + strings.Repeat("☆", model.MaxRating-r.Rating)
	msg := fmt.Sprintf("New review for %s on %s: %s", describe(s), FormatDateTime(s.StartAt.In(loc)), stars)
	if r.Comment != "" {
		msg += "\n" + r.Comment
	}
	return msg
}
