package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// User is the slice of the identity record the booking engine depends on.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	TelegramID *int64    `json:"telegram_id,omitempty"` // nil - no Telegram chat linked
	Roles      []Role    `json:"roles"`
	CreatedAt  time.Time `json:"created_at"`

	// Derived from reviews; maintained by the rating aggregator.
	AverageRating *float64 `json:"average_rating"`
	TotalRatings  int      `json:"total_ratings"`
}

// HasRole checks if the user holds role
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsTutor checks if the user holds the tutor role
func (u *User) IsTutor() bool {
	return u.HasRole(RoleTutor)
}

// IsStudent checks if the user holds the student role
func (u *User) IsStudent() bool {
	return u.HasRole(RoleStudent)
}
