package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/service"
)

func (s *Server) requestSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.svc.Sessions.RequestSession(r.Context(), req.toInput(actorFrom(r.Context())))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/sessions/"+strconv.FormatInt(session.ID, 10))
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	var filter service.ListFilter

	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		status, ok := model.ParseSessionStatus(raw)
		if !ok {
			s.writeError(w, r, apperr.Validation("invalid query", map[string]string{"status": "unknown status " + strconv.Quote(raw)}))
			return
		}
		filter.Status = status
	}
	if raw := q.Get("tutor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			s.writeError(w, r, apperr.Validation("invalid query", map[string]string{"tutor_id": "must be a positive integer"}))
			return
		}
		filter.TutorID = id
	}

	sessions, err := s.svc.Sessions.ListSessions(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionList(sessions))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, s.svc.Sessions.GetSession)
}

func (s *Server) confirmSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, s.svc.Sessions.ConfirmSession)
}

func (s *Server) rejectSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, s.svc.Sessions.RejectSession)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, s.svc.Sessions.CancelSession)
}

func (s *Server) proposeReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.sessionAction(w, r, func(ctx context.Context, sessionID, actorID int64) (*model.Session, error) {
		return s.svc.Sessions.ProposeReschedule(ctx, sessionID, actorID, req.StartAt)
	})
}

func (s *Server) respondToReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleResponseRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.sessionAction(w, r, func(ctx context.Context, sessionID, actorID int64) (*model.Session, error) {
		return s.svc.Sessions.RespondToReschedule(ctx, sessionID, actorID, *req.Accept)
	})
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.sessionAction(w, r, func(ctx context.Context, sessionID, actorID int64) (*model.Session, error) {
		return s.svc.Sessions.SetStatus(ctx, sessionID, actorID, model.SessionStatus(req.Status))
	})
}

// sessionAction runs op for the session in the path on behalf of the actor
func (s *Server) sessionAction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, sessionID, actorID int64) (*model.Session, error)) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := op(r.Context(), sessionID, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(session))
}
