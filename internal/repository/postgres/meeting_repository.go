package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

// reserving статусы, занимающие время коуча
const reserving = `status IN ('scheduled', 'active')`

const meetingColumns = `
	scheduled_at, duration_minutes, timezone, status, meeting_url, auto_activated, reminder_sent,
	early_join_enabled, meeting_started_at, meeting_ended_at, completed_date`

func meetingDest(m *model.Meeting) []any {
	return []any{
		&m.ScheduledAt,
		&m.DurationMinutes,
		&m.Timezone,
		&m.Status,
		&m.MeetingURL,
		&m.AutoActivated,
		&m.ReminderSent,
		&m.EarlyJoinEnabled,
		&m.MeetingStartedAt,
		&m.MeetingEndedAt,
		&m.CompletedDate,
	}
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, proposal_id, contract_id, coach_id, student_id, session_number, title, calendar_event_id,
	student_notes, coach_notes,` + meetingColumns + `,
	reschedule_requested, COALESCE(reschedule_requested_by, ''), reschedule_reason, reschedule_proposed_time,
	reschedule_requested_at, reschedule_deadline, created_at, updated_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s      model.Session
		reason *string
	)
	dest := []any{
		&s.ID,
		&s.ProposalID,
		&s.ContractID,
		&s.CoachID,
		&s.StudentID,
		&s.SessionNumber,
		&s.Title,
		&s.CalendarEventID,
		&s.StudentNotes,
		&s.CoachNotes,
	}
	dest = append(dest, meetingDest(&s.Meeting)...)
	dest = append(dest,
		&s.RescheduleRequested,
		&s.RescheduleRequestedBy,
		&reason,
		&s.RescheduleProposedTime,
		&s.RescheduleRequestedAt,
		&s.RescheduleDeadline,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	s.RescheduleReason = derefString(reason)
	return &s, nil
}

func collectSessions(rows pgx.Rows, err error) ([]*model.Session, error) {
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Create занятый номер в контракте даёт ErrDuplicate
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	query := `
		INSERT INTO sessions (proposal_id, contract_id, coach_id, student_id, session_number, title,
			calendar_event_id, student_notes, coach_notes, scheduled_at, duration_minutes, timezone,
			status, meeting_url, early_join_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		s.ProposalID,
		s.ContractID,
		s.CoachID,
		s.StudentID,
		s.SessionNumber,
		s.Title,
		s.CalendarEventID,
		s.StudentNotes,
		s.CoachNotes,
		s.ScheduledAt,
		s.DurationMinutes,
		s.Timezone,
		s.Status,
		s.MeetingURL,
		s.EarlyJoinEnabled,
		s.CreatedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", mapErr(err))
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get session: %w", mapErr(err))
	}
	return s, nil
}

func (r *SessionRepository) GetForUpdate(ctx context.Context, id int64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("get session for update: %w", mapErr(err))
	}
	return s, nil
}

// Update сохраняет всё изменяемое состояние занятия
func (r *SessionRepository) Update(ctx context.Context, s *model.Session) error {
	query := `
		UPDATE sessions
		SET title = $1, student_notes = $2, coach_notes = $3, scheduled_at = $4, duration_minutes = $5,
			timezone = $6, status = $7, meeting_url = $8, auto_activated = $9, reminder_sent = $10,
			early_join_enabled = $11, meeting_started_at = $12, meeting_ended_at = $13, completed_date = $14,
			reschedule_requested = $15, reschedule_requested_by = $16, reschedule_reason = $17,
			reschedule_proposed_time = $18, reschedule_requested_at = $19, reschedule_deadline = $20,
			updated_at = $21
		WHERE id = $22
	`

	err := requireOne(execAffected(
		ctx, r.db, query,
		s.Title,
		s.StudentNotes,
		s.CoachNotes,
		s.ScheduledAt,
		s.DurationMinutes,
		s.Timezone,
		s.Status,
		s.MeetingURL,
		s.AutoActivated,
		s.ReminderSent,
		s.EarlyJoinEnabled,
		s.MeetingStartedAt,
		s.MeetingEndedAt,
		s.CompletedDate,
		s.RescheduleRequested,
		nullString(string(s.RescheduleRequestedBy)),
		nullString(s.RescheduleReason),
		s.RescheduleProposedTime,
		s.RescheduleRequestedAt,
		s.RescheduleDeadline,
		s.UpdatedAt,
		s.ID,
	))
	if err != nil {
		return fmt.Errorf("update session: %w", mapErr(err))
	}
	return nil
}

func (r *SessionRepository) ListByContract(ctx context.Context, contractID int64) ([]*model.Session, error) {
	return collectSessions(r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE contract_id = $1 ORDER BY scheduled_at, id
	`, contractID))
}

func (r *SessionRepository) UsedNumbers(ctx context.Context, contractID int64) ([]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT session_number FROM sessions
		WHERE contract_id = $1 AND status <> 'cancelled'
		ORDER BY session_number
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("used session numbers: %w", err)
	}
	nums, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("collect session numbers: %w", err)
	}
	return nums, nil
}

// ListReserving пересечение [from, to) с [scheduled_at, scheduled_at + duration)
func (r *SessionRepository) ListReserving(ctx context.Context, coachID int64, from, to time.Time, excludeID int64) ([]*model.Session, error) {
	return collectSessions(r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE coach_id = $1 AND id <> $4 AND `+reserving+`
			AND scheduled_at < $3
			AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at, id
	`, coachID, from, to, excludeID))
}

func (r *SessionRepository) ListDue(ctx context.Context, until time.Time) ([]*model.Session, error) {
	return collectSessions(r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE `+reserving+` AND scheduled_at <= $1
		ORDER BY scheduled_at, id
	`, until))
}

func (r *SessionRepository) ListExpiredReschedules(ctx context.Context, now time.Time) ([]*model.Session, error) {
	return collectSessions(r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE reschedule_requested AND reschedule_deadline < $1
		ORDER BY reschedule_deadline, id
	`, now))
}

func (r *SessionRepository) ListUpcomingForUser(ctx context.Context, userID int64, from time.Time) ([]*model.Session, error) {
	return collectSessions(r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE (coach_id = $1 OR student_id = $1) AND `+reserving+`
			AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at, id
	`, userID, from))
}

func (r *SessionRepository) CancelScheduledByContract(ctx context.Context, contractID int64) (int64, error) {
	n, err := execAffected(ctx, r.db, `
		UPDATE sessions
		SET status = 'cancelled', reschedule_requested = FALSE, reschedule_requested_by = NULL,
			reschedule_reason = NULL, reschedule_proposed_time = NULL, reschedule_requested_at = NULL,
			reschedule_deadline = NULL, updated_at = NOW()
		WHERE contract_id = $1 AND status = 'scheduled'
	`, contractID)
	if err != nil {
		return 0, fmt.Errorf("cancel contract sessions: %w", err)
	}
	return n, nil
}

type CallRepository struct {
	db DBTX
}

func NewCallRepository(db DBTX) *CallRepository {
	return &CallRepository{db: db}
}

const callColumns = `
	id, coach_id, student_id, call_type, title, (price * 100)::bigint, notes,` + meetingColumns + `,
	created_at, updated_at`

func scanCall(row pgx.Row) (*model.ScheduledCall, error) {
	var c model.ScheduledCall
	dest := []any{
		&c.ID,
		&c.CoachID,
		&c.StudentID,
		&c.CallType,
		&c.Title,
		moneyDest(&c.Price),
		&c.Notes,
	}
	dest = append(dest, meetingDest(&c.Meeting)...)
	dest = append(dest, &c.CreatedAt, &c.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCalls(rows pgx.Rows, err error) ([]*model.ScheduledCall, error) {
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []*model.ScheduledCall
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}

	return calls, nil
}

func (r *CallRepository) Create(ctx context.Context, c *model.ScheduledCall) error {
	query := `
		INSERT INTO scheduled_calls (coach_id, student_id, call_type, title, price, notes, scheduled_at,
			duration_minutes, timezone, status, meeting_url, early_join_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::bigint / 100.0, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		c.CoachID,
		c.StudentID,
		c.CallType,
		c.Title,
		cents(c.Price),
		c.Notes,
		c.ScheduledAt,
		c.DurationMinutes,
		c.Timezone,
		c.Status,
		c.MeetingURL,
		c.EarlyJoinEnabled,
		c.CreatedAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create call: %w", mapErr(err))
	}
	return nil
}

func (r *CallRepository) GetByID(ctx context.Context, id int64) (*model.ScheduledCall, error) {
	c, err := scanCall(r.db.QueryRow(ctx, `SELECT `+callColumns+` FROM scheduled_calls WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get call: %w", mapErr(err))
	}
	return c, nil
}

func (r *CallRepository) GetForUpdate(ctx context.Context, id int64) (*model.ScheduledCall, error) {
	c, err := scanCall(r.db.QueryRow(ctx, `SELECT `+callColumns+` FROM scheduled_calls WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("get call for update: %w", mapErr(err))
	}
	return c, nil
}

func (r *CallRepository) Update(ctx context.Context, c *model.ScheduledCall) error {
	query := `
		UPDATE scheduled_calls
		SET title = $1, notes = $2, scheduled_at = $3, duration_minutes = $4, timezone = $5, status = $6,
			meeting_url = $7, auto_activated = $8, reminder_sent = $9, early_join_enabled = $10,
			meeting_started_at = $11, meeting_ended_at = $12, completed_date = $13, updated_at = $14
		WHERE id = $15
	`

	err := requireOne(execAffected(
		ctx, r.db, query,
		c.Title,
		c.Notes,
		c.ScheduledAt,
		c.DurationMinutes,
		c.Timezone,
		c.Status,
		c.MeetingURL,
		c.AutoActivated,
		c.ReminderSent,
		c.EarlyJoinEnabled,
		c.MeetingStartedAt,
		c.MeetingEndedAt,
		c.CompletedDate,
		c.UpdatedAt,
		c.ID,
	))
	if err != nil {
		return fmt.Errorf("update call: %w", mapErr(err))
	}
	return nil
}

func (r *CallRepository) ListReserving(ctx context.Context, coachID int64, from, to time.Time, excludeID int64) ([]*model.ScheduledCall, error) {
	return collectCalls(r.db.Query(ctx, `
		SELECT `+callColumns+`
		FROM scheduled_calls
		WHERE coach_id = $1 AND id <> $4 AND `+reserving+`
			AND scheduled_at < $3
			AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at, id
	`, coachID, from, to, excludeID))
}

func (r *CallRepository) ListDue(ctx context.Context, until time.Time) ([]*model.ScheduledCall, error) {
	return collectCalls(r.db.Query(ctx, `
		SELECT `+callColumns+`
		FROM scheduled_calls
		WHERE `+reserving+` AND scheduled_at <= $1
		ORDER BY scheduled_at, id
	`, until))
}

func (r *CallRepository) ListUpcomingForUser(ctx context.Context, userID int64, from time.Time) ([]*model.ScheduledCall, error) {
	return collectCalls(r.db.Query(ctx, `
		SELECT `+callColumns+`
		FROM scheduled_calls
		WHERE (coach_id = $1 OR student_id = $1) AND `+reserving+`
			AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at, id
	`, userID, from))
}
