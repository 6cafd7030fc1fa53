package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
	"go.uber.org/zap"
)

// SlotInput describes an availability slot to create or replace.
type SlotInput struct {
	Date      time.Time      `json:"date"`
	StartTime timeslot.Clock `json:"start_time"`
	EndTime   timeslot.Clock `json:"end_time"`
	Recurring bool           `json:"recurring"`
}

// check validates the input; prefix qualifies field names in batches.
func (in SlotInput) check(prefix string) error {
	invalid := func(field, msg string) error {
		return apperr.Validation("invalid availability slot", map[string]string{prefix + field: msg})
	}

	switch {
	case in.Date.IsZero():
		return invalid("date", "is required")
	case !in.StartTime.Valid() || in.StartTime == timeslot.EndOfDay:
		return invalid("start_time", "must be between 00:00 and 23:59")
	case !in.EndTime.Valid():
		return invalid("end_time", "must be between 00:00 and 24:00")
	case in.EndTime <= in.StartTime:
		return invalid("end_time", "must be after start_time")
	}
	return nil
}

func (in SlotInput) toSlot(tutorID int64) *model.AvailabilitySlot {
	return &model.AvailabilitySlot{
		TutorID:   tutorID,
		Date:      timeslot.DateOf(in.Date),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Recurring: in.Recurring,
	}
}

type AvailabilityService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewAvailabilityService(store repository.Store, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  store,
		logger: logger,
	}
}

// IsAvailable reports whether a one-off slot on date, or a recurring slot on
// date's weekday, fully contains [start, end).
func (s *AvailabilityService) IsAvailable(ctx context.Context, tutorID int64, date time.Time, start, end timeslot.Clock) (bool, error) {
	want := timeslot.Interval{From: start, To: end}
	if !want.Valid() {
		return false, apperr.Validation("invalid interval", map[string]string{"end": "must be after start"})
	}

	var available bool
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		day := timeslot.DateOf(date)
		slots, err := repos.Availability.ListForDate(ctx, tutorID, day)
		if err != nil {
			return fmt.Errorf("list availability: %w", err)
		}
		idx, _ := timeslot.Match(rulesOf(slots), day, want)
		available = idx >= 0
		return nil
	})
	if err != nil {
		return false, err
	}

	return available, nil
}

// GetAvailability возвращает все слоты учителя
func (s *AvailabilityService) GetAvailability(ctx context.Context, tutorID int64) ([]*model.AvailabilitySlot, error) {
	var slots []*model.AvailabilitySlot
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		if _, err := requireTutor(ctx, repos, tutorID); err != nil {
			return err
		}

		var err error
		slots, err = repos.Availability.ListByTutor(ctx, tutorID)
		if err != nil {
			return fmt.Errorf("list availability: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return slots, nil
}

// SetAvailability adds all slots or none of them.
func (s *AvailabilityService) SetAvailability(ctx context.Context, tutorID int64, inputs []SlotInput) ([]*model.AvailabilitySlot, error) {
	for i, in := range inputs {
		prefix := ""
		if len(inputs) > 1 {
			prefix = fmt.Sprintf("slots[%d].", i)
		}
		if err := in.check(prefix); err != nil {
			return nil, err
		}
	}

	created := make([]*model.AvailabilitySlot, 0, len(inputs))
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		created = created[:0]
		if _, err := requireTutor(ctx, repos, tutorID); err != nil {
			return err
		}

		for _, in := range inputs {
			slot := in.toSlot(tutorID)
			if err := repos.Availability.Create(ctx, slot); err != nil {
				return err
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Availability added",
		zap.Int64("tutor_id", tutorID),
		zap.Int("slots", len(created)))

	return created, nil
}

// CreateSlot создаёт один слот доступности
func (s *AvailabilityService) CreateSlot(ctx context.Context, tutorID int64, in SlotInput) (*model.AvailabilitySlot, error) {
	slots, err := s.SetAvailability(ctx, tutorID, []SlotInput{in})
	if err != nil {
		return nil, err
	}
	return slots[0], nil
}

// UpdateSlot заменяет дату и время слота. Доступно только владельцу.
func (s *AvailabilityService) UpdateSlot(ctx context.Context, tutorID, slotID int64, in SlotInput) (*model.AvailabilitySlot, error) {
	if err := in.check(""); err != nil {
		return nil, err
	}

	var slot *model.AvailabilitySlot
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		var err error
		slot, err = ownedSlot(ctx, repos, tutorID, slotID)
		if err != nil {
			return err
		}

		slot.Date = timeslot.DateOf(in.Date)
		slot.StartTime = in.StartTime
		slot.EndTime = in.EndTime
		slot.Recurring = in.Recurring
		return repos.Availability.Update(ctx, slot)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Availability slot updated",
		zap.Int64("tutor_id", tutorID),
		zap.Int64("slot_id", slotID),
		zap.String("span", slot.Span().String()),
		zap.Bool("recurring", slot.Recurring))

	return slot, nil
}

// DeleteSlot удаляет слот. Доступно только владельцу.
func (s *AvailabilityService) DeleteSlot(ctx context.Context, tutorID, slotID int64) error {
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		if _, err := ownedSlot(ctx, repos, tutorID, slotID); err != nil {
			return err
		}
		return repos.Availability.Delete(ctx, slotID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Availability slot deleted",
		zap.Int64("tutor_id", tutorID),
		zap.Int64("slot_id", slotID))

	return nil
}

// MaterializeRecurring creates the one-off occurrence of a recurring slot on date.
func (s *AvailabilityService) MaterializeRecurring(ctx context.Context, tutorID int64, date time.Time, recurringSlotID int64) (*model.AvailabilitySlot, error) {
	var slot *model.AvailabilitySlot
	err := s.store.InTx(ctx, func(repos repository.Repositories) error {
		rule, err := ownedSlot(ctx, repos, tutorID, recurringSlotID)
		if err != nil {
			return err
		}
		if !rule.Recurring {
			return apperr.New(apperr.KindValidation, "slot is not recurring")
		}
		if rule.Date.Weekday() != date.Weekday() {
			return apperr.New(apperr.KindValidation,
				fmt.Sprintf("slot recurs on %s, not on %s", rule.Date.Weekday(), date.Weekday()))
		}

		existing, err := repos.Availability.ListForDate(ctx, tutorID, timeslot.DateOf(date))
		if err != nil {
			return fmt.Errorf("list availability: %w", err)
		}
		slot, err = provideSlot(ctx, repos, tutorID, timeslot.DateOf(date), rule.Span(), existing)
		return err
	})
	if err != nil {
		return nil, err
	}

	return slot, nil
}

// availabilityMatch is the result of matching a session against availability.
type availabilityMatch struct {
	date   time.Time
	span   timeslot.Interval
	slot   *model.AvailabilitySlot
	direct bool
	slots  []*model.AvailabilitySlot // everything loaded for date
}

// matchAvailability finds the slot covering [start, start+d) in loc. It fails with
// TutorUnavailable when nothing covers the session.
func matchAvailability(ctx context.Context, repos repository.Repositories, tutorID int64, start time.Time, d time.Duration, loc *time.Location) (*availabilityMatch, error) {
	date, span, ok := timeslot.DaySpan(start.In(loc), d)
	if !ok {
		return nil, apperr.New(apperr.KindTutorUnavailable, "sessions cannot run past midnight")
	}

	slots, err := repos.Availability.ListForDate(ctx, tutorID, date)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}

	m := &availabilityMatch{date: date, span: span, slots: slots}
	idx, direct := timeslot.Match(rulesOf(slots), date, span)
	if idx >= 0 {
		m.slot = slots[idx]
		m.direct = direct
	}
	return m, nil
}

// materialize makes a recurring match durable for the matched date.
func (m *availabilityMatch) materialize(ctx context.Context, repos repository.Repositories, tutorID int64) (*model.AvailabilitySlot, error) {
	if m.slot == nil || m.direct {
		return m.slot, nil
	}
	span := m.slot.Span()
	if heldByRecurring(m.slots, m.date, span) != nil {
		// the date's start belongs to another weekly rule; the matched rule still applies
		return m.slot, nil
	}
	return provideSlot(ctx, repos, tutorID, m.date, span, m.slots)
}

// ensure guarantees a one-off slot covering the matched span exists, creating
// one for exactly the span when nothing covers it.
func (m *availabilityMatch) ensure(ctx context.Context, repos repository.Repositories, tutorID int64) (*model.AvailabilitySlot, error) {
	if m.slot != nil {
		return m.materialize(ctx, repos, tutorID)
	}
	if heldByRecurring(m.slots, m.date, m.span) != nil {
		if slot := extendable(m.slots, m.date, m.span); slot != nil {
			slot.EndTime = m.span.To
			if err := repos.Availability.Update(ctx, slot); err != nil {
				return nil, fmt.Errorf("widen availability slot: %w", err)
			}
			return slot, nil
		}
		return nil, apperr.New(apperr.KindTutorUnavailable,
			fmt.Sprintf("a recurring slot already starts at %s on %s", m.span.From, m.date.Format(time.DateOnly)))
	}
	return provideSlot(ctx, repos, tutorID, m.date, m.span, m.slots)
}

// heldByRecurring returns the recurring slot anchored on date that takes the
// start of span without covering it. Such a start cannot get a one-off slot.
func heldByRecurring(existing []*model.AvailabilitySlot, date time.Time, span timeslot.Interval) *model.AvailabilitySlot {
	for _, slot := range existing {
		if slot.Recurring && timeslot.SameDate(slot.Date, date) &&
			slot.StartTime == span.From && slot.EndTime < span.To {
			return slot
		}
	}
	return nil
}

// extendable finds a one-off slot on date that starts before span and reaches
// its start, so widening its end makes it cover span.
func extendable(existing []*model.AvailabilitySlot, date time.Time, span timeslot.Interval) *model.AvailabilitySlot {
	for _, slot := range existing {
		if !slot.Recurring && timeslot.SameDate(slot.Date, date) &&
			slot.StartTime < span.From && slot.EndTime >= span.From {
			return slot
		}
	}
	return nil
}

// provideSlot creates a one-off slot for span on date. A one-off slot already
// starting at the same time is widened instead, since starts are unique.
func provideSlot(ctx context.Context, repos repository.Repositories, tutorID int64, date time.Time, span timeslot.Interval, existing []*model.AvailabilitySlot) (*model.AvailabilitySlot, error) {
	for _, slot := range existing {
		if !timeslot.SameDate(slot.Date, date) || slot.StartTime != span.From {
			continue
		}
		if slot.EndTime >= span.To {
			return slot, nil
		}
		if slot.Recurring {
			return nil, apperr.New(apperr.KindTutorUnavailable,
				fmt.Sprintf("a recurring slot already starts at %s on %s", span.From, date.Format(time.DateOnly)))
		}
		slot.EndTime = span.To
		if err := repos.Availability.Update(ctx, slot); err != nil {
			return nil, fmt.Errorf("widen availability slot: %w", err)
		}
		return slot, nil
	}

	slot := &model.AvailabilitySlot{
		TutorID:   tutorID,
		Date:      date,
		StartTime: span.From,
		EndTime:   span.To,
	}
	if err := repos.Availability.Create(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

func rulesOf(slots []*model.AvailabilitySlot) []timeslot.Rule {
	rules := make([]timeslot.Rule, len(slots))
	for i, slot := range slots {
		rules[i] = slot.Rule()
	}
	return rules
}

func requireTutor(ctx context.Context, repos repository.Repositories, userID int64) (*model.User, error) {
	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, notFound("user")
	}
	if !user.IsTutor() {
		return nil, apperr.New(apperr.KindNotATutor, fmt.Sprintf("user %d is not a tutor", userID))
	}
	return user, nil
}

func ownedSlot(ctx context.Context, repos repository.Repositories, tutorID, slotID int64) (*model.AvailabilitySlot, error) {
	if _, err := requireTutor(ctx, repos, tutorID); err != nil {
		return nil, err
	}

	slot, err := repos.Availability.GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get availability slot: %w", err)
	}
	if slot == nil || slot.TutorID != tutorID {
		return nil, notFound("availability slot")
	}
	return slot, nil
}
