package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/timeslot"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const availabilityColumns = `id, tutor_id, available_date, start_time, end_time, recurring, created_at`

type AvailabilityRepository struct {
	db DBTX
}

func NewAvailabilityRepository(db DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Create создаёт новый слот доступности
func (r *AvailabilityRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	query := `
		INSERT INTO availability_slots (tutor_id, available_date, start_time, end_time, recurring)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.TutorID,
		pgtype.Date{Time: slot.Date, Valid: true},
		clockToPG(slot.StartTime),
		clockToPG(slot.EndTime),
		slot.Recurring,
	).Scan(&slot.ID, &slot.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindDuplicateSlot,
				fmt.Sprintf("slot on %s at %s already exists", slot.Date.Format(time.DateOnly), slot.StartTime), err)
		}
		return fmt.Errorf("create availability slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *AvailabilityRepository) GetByID(ctx context.Context, id int64) (*model.AvailabilitySlot, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_slots WHERE id = $1`

	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability slot by id: %w", err)
	}

	return slot, nil
}

// Update обновляет слот
func (r *AvailabilityRepository) Update(ctx context.Context, slot *model.AvailabilitySlot) error {
	query := `
		UPDATE availability_slots
		SET available_date = $1, start_time = $2, end_time = $3, recurring = $4
		WHERE id = $5
	`

	result, err := r.db.Exec(
		ctx, query,
		pgtype.Date{Time: slot.Date, Valid: true},
		clockToPG(slot.StartTime),
		clockToPG(slot.EndTime),
		slot.Recurring,
		slot.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindDuplicateSlot, "another slot already starts at this date and time", err)
		}
		return fmt.Errorf("update availability slot: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "availability slot not found")
	}

	return nil
}

// Delete удаляет слот
func (r *AvailabilityRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability slot: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "availability slot not found")
	}

	return nil
}

// ListByTutor получает все слоты учителя
func (r *AvailabilityRepository) ListByTutor(ctx context.Context, tutorID int64) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_slots
		WHERE tutor_id = $1
		ORDER BY available_date, start_time
	`

	rows, err := r.db.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list availability by tutor: %w", err)
	}

	return collectSlots(rows)
}

// ListForDate получает разовые слоты на дату и все регулярные слоты
func (r *AvailabilityRepository) ListForDate(ctx context.Context, tutorID int64, date time.Time) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_slots
		WHERE tutor_id = $1 AND (available_date = $2 OR recurring)
		ORDER BY recurring, start_time
	`

	rows, err := r.db.Query(ctx, query, tutorID, pgtype.Date{Time: date, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("list availability for date: %w", err)
	}

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]*model.AvailabilitySlot, error) {
	defer rows.Close()

	var slots []*model.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability slot: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability slots: %w", err)
	}

	return slots, nil
}

func scanSlot(row pgx.Row) (*model.AvailabilitySlot, error) {
	var (
		slot       model.AvailabilitySlot
		date       pgtype.Date
		start, end pgtype.Time
	)
	err := row.Scan(
		&slot.ID,
		&slot.TutorID,
		&date,
		&start,
		&end,
		&slot.Recurring,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.Date = timeslot.DateOf(date.Time)
	slot.StartTime = clockFromPG(start)
	slot.EndTime = clockFromPG(end)
	return &slot, nil
}

func clockToPG(c timeslot.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: c.Duration().Microseconds(), Valid: true}
}

func clockFromPG(t pgtype.Time) timeslot.Clock {
	return timeslot.ClockFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}
