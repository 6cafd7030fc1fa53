package model

import "time"

// MaxRating is the top of the 1..5 scale
const MaxRating = 5

// Review is the student's single rating of a completed session
type Review struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	TutorID   int64     `json:"tutor_id"` // denormalized from the session for aggregation
	StudentID int64     `json:"student_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// TutorRating is the derived aggregate stored on the tutor record
type TutorRating struct {
	TutorID int64    `json:"tutor_id"`
	Average *float64 `json:"average_rating"` // nil when Total == 0
	Total   int      `json:"total_ratings"`
}

// ComputeTutorRating recomputes the aggregate from scratch
func ComputeTutorRating(tutorID int64, ratings []int) TutorRating {
	agg := TutorRating{TutorID: tutorID, Total: len(ratings)}
	if len(ratings) == 0 {
		return agg
	}

	sum := 0
	for _, r := range ratings {
		sum += r
	}
	avg := float64(sum) / float64(len(ratings))
	agg.Average = &avg
	return agg
}
