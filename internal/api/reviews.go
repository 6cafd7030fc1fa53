package api

import (
	"net/http"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/service"
)

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req reviewRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	review, err := s.svc.Ratings.SubmitReview(r.Context(), service.SubmitReviewInput{
		SessionID: sessionID,
		StudentID: actorFrom(r.Context()),
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	review, err := s.svc.Ratings.GetReviewForSession(r.Context(), sessionID, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, review)
}

func (s *Server) listTutorReviews(w http.ResponseWriter, r *http.Request) {
	tutorID, err := pathID(r, "tutorID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reviews, err := s.svc.Ratings.ListTutorReviews(r.Context(), tutorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []*model.Review{}
	}

	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) getTutorRating(w http.ResponseWriter, r *http.Request) {
	tutorID, err := pathID(r, "tutorID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rating, err := s.svc.Ratings.GetTutorRating(r.Context(), tutorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rating)
}
