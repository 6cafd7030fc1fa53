// Package api exposes the booking engine over HTTP. Authentication happens
// upstream; the acting user arrives in the X-User-ID header.
package api

import (
	"net/http"

	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Services are the engine operations the API exposes
type Services struct {
	Availability *service.AvailabilityService
	Sessions     *service.SessionService
	Ratings      *service.RatingService
}

type Server struct {
	router   *chi.Mux
	svc      Services
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer создаёт HTTP сервер и регистрирует маршруты
func NewServer(svc Services, corsOrigins []string, logger *zap.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		svc:      svc,
		validate: service.NewValidator(),
		logger:   logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(s.accessLog)
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsHandler(corsOrigins))

	s.mountHandlers(s.router)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mountHandlers(r chi.Router) {
	r.Get("/healthz", s.health)

	r.Route("/tutors/{tutorID}", func(r chi.Router) {
		r.Get("/availability", s.getAvailability)
		r.Get("/reviews", s.listTutorReviews)
		r.Get("/rating", s.getTutorRating)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireActor)

		r.Route("/availability", func(r chi.Router) {
			r.Post("/", s.setAvailability)
			r.Put("/{slotID}", s.updateSlot)
			r.Delete("/{slotID}", s.deleteSlot)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.requestSession)
			r.Get("/", s.listSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Post("/confirm", s.confirmSession)
				r.Post("/reject", s.rejectSession)
				r.Post("/cancel", s.cancelSession)
				r.Post("/reschedule", s.proposeReschedule)
				r.Post("/reschedule/response", s.respondToReschedule)
				r.Post("/status", s.setStatus)
				r.Post("/review", s.submitReview)
				r.Get("/review", s.getReview)
			})
		})
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
