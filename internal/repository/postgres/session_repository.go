package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, tutor_id, student_id, start_at, duration_minutes, topic, mode, status, notes,
	pending_reschedule_at, reminder_sent_at, created_at, updated_at`

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create создаёт новое занятие
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (tutor_id, student_id, start_at, duration_minutes, topic, mode, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		session.TutorID,
		session.StudentID,
		session.StartAt,
		int(session.Duration/time.Minute),
		session.Topic,
		string(session.Mode),
		string(session.Status),
		session.Notes,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID получает занятие по ID
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// GetForUpdate получает занятие и блокирует строку до конца транзакции
func (r *SessionRepository) GetForUpdate(ctx context.Context, id int64) (*model.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
}

func (r *SessionRepository) get(ctx context.Context, query string, id int64) (*model.Session, error) {
	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	return session, nil
}

// Update сохраняет изменяемые поля занятия
func (r *SessionRepository) Update(ctx context.Context, session *model.Session) error {
	query := `
		UPDATE sessions
		SET start_at = $1, status = $2, notes = $3, pending_reschedule_at = $4,
		    reminder_sent_at = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		session.StartAt,
		string(session.Status),
		session.Notes,
		session.PendingRescheduleAt,
		session.ReminderSentAt,
		session.ID,
	).Scan(&session.UpdatedAt)

	if err != nil {
		if IsNotFound(err) {
			return apperr.New(apperr.KindNotFound, "session not found")
		}
		return fmt.Errorf("update session: %w", err)
	}

	return nil
}

// ListOverlapping получает активные занятия учителя, пересекающиеся с [start, end)
func (r *SessionRepository) ListOverlapping(ctx context.Context, tutorID int64, start, end time.Time, excludeID int64) ([]*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tutor_id = $1
		  AND status = ANY($2)
		  AND start_at < $3
		  AND start_at + make_interval(mins => duration_minutes) > $4
		  AND id <> $5
		ORDER BY start_at
	`

	rows, err := r.db.Query(ctx, query, tutorID, activeStatuses(), end, start, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list overlapping sessions: %w", err)
	}

	return collectSessions(rows)
}

// ExistsRejected проверяет, отклонял ли учитель запрос студента на близкое время
func (r *SessionRepository) ExistsRejected(ctx context.Context, tutorID, studentID int64, from, to time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM sessions
			WHERE tutor_id = $1 AND student_id = $2 AND status = 'rejected'
			  AND start_at >= $3 AND start_at <= $4
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, tutorID, studentID, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check rejected session: %w", err)
	}

	return exists, nil
}

// List получает занятия участника с необязательными фильтрами
func (r *SessionRepository) List(ctx context.Context, filter repository.SessionFilter) ([]*model.Session, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ParticipantID != 0 {
		args = append(args, filter.ParticipantID)
		conds = append(conds, fmt.Sprintf("(tutor_id = $%d OR student_id = $%d)", len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TutorID != 0 {
		args = append(args, filter.TutorID)
		conds = append(conds, fmt.Sprintf("tutor_id = $%d", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY start_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return collectSessions(rows)
}

// ListElapsedConfirmed получает подтверждённые занятия, которые уже закончились
func (r *SessionRepository) ListElapsedConfirmed(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
		SELECT id FROM sessions
		WHERE status = 'confirmed'
		  AND start_at + make_interval(mins => duration_minutes) < $1
		ORDER BY start_at
	`
	return r.ids(ctx, query, now)
}

// ListReminderDue получает подтверждённые занятия, о которых ещё не напоминали
func (r *SessionRepository) ListReminderDue(ctx context.Context, from, to time.Time) ([]int64, error) {
	query := `
		SELECT id FROM sessions
		WHERE status = 'confirmed'
		  AND reminder_sent_at IS NULL
		  AND start_at > $1 AND start_at <= $2
		ORDER BY start_at
	`
	return r.ids(ctx, query, from, to)
}

func (r *SessionRepository) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect session ids: %w", err)
	}

	return ids, nil
}

func collectSessions(rows pgx.Rows) ([]*model.Session, error) {
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		session         model.Session
		durationMinutes int
		mode, status    string
	)
	err := row.Scan(
		&session.ID,
		&session.TutorID,
		&session.StudentID,
		&session.StartAt,
		&durationMinutes,
		&session.Topic,
		&mode,
		&status,
		&session.Notes,
		&session.PendingRescheduleAt,
		&session.ReminderSentAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Duration = time.Duration(durationMinutes) * time.Minute
	session.Mode = model.SessionMode(mode)
	session.Status = model.SessionStatus(status)
	return &session, nil
}

func activeStatuses() []string {
	out := make([]string, len(model.ActiveSessionStatuses))
	for i, st := range model.ActiveSessionStatuses {
		out[i] = string(st)
	}
	return out
}
