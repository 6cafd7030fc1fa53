package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
)

// getAvailability lists the tutor's slots, or answers whether the tutor is
// available when date, start and end are given.
func (s *Server) getAvailability(w http.ResponseWriter, r *http.Request) {
	tutorID, err := pathID(r, "tutorID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	if q.Get("date") == "" {
		slots, err := s.svc.Availability.GetAvailability(r.Context(), tutorID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newSlotList(slots))
		return
	}

	fields := map[string]string{}
	date, err := timeslot.ParseDate(q.Get("date"))
	if err != nil {
		fields["date"] = err.Error()
	}
	start, err := timeslot.ParseClock(q.Get("start"))
	if err != nil {
		fields["start"] = err.Error()
	}
	end, err := timeslot.ParseClock(q.Get("end"))
	if err != nil {
		fields["end"] = err.Error()
	}
	if len(fields) > 0 {
		s.writeError(w, r, apperr.Validation("invalid query", fields))
		return
	}

	ok, err := s.svc.Availability.IsAvailable(r.Context(), tutorID, date, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityCheckResponse{
		TutorID:   tutorID,
		Date:      date.Format(time.DateOnly),
		Start:     start.String(),
		End:       end.String(),
		Available: ok,
	})
}

func (s *Server) setAvailability(w http.ResponseWriter, r *http.Request) {
	var req setAvailabilityRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	inputs := make([]service.SlotInput, len(req.Slots))
	for i, slot := range req.Slots {
		prefix := ""
		if len(req.Slots) > 1 {
			prefix = fmt.Sprintf("slots[%d].", i)
		}
		in, err := slot.toInput(prefix)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		inputs[i] = in
	}

	slots, err := s.svc.Availability.SetAvailability(r.Context(), actorFrom(r.Context()), inputs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newSlotList(slots))
}

func (s *Server) updateSlot(w http.ResponseWriter, r *http.Request) {
	slotID, err := pathID(r, "slotID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req slotRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.toInput("")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	slot, err := s.svc.Availability.UpdateSlot(r.Context(), actorFrom(r.Context()), slotID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSlotResponse(slot))
}

func (s *Server) deleteSlot(w http.ResponseWriter, r *http.Request) {
	slotID, err := pathID(r, "slotID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.svc.Availability.DeleteSlot(r.Context(), actorFrom(r.Context()), slotID); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
