package model

import (
	"fmt"
	"time"
)

type MeetingStatus string

const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusActive    MeetingStatus = "active"
	MeetingStatusCompleted MeetingStatus = "completed"
	MeetingStatusCancelled MeetingStatus = "cancelled"
	MeetingStatusMissed    MeetingStatus = "missed"
)

// Временные окна жизненного цикла встречи относительно scheduled_at
const (
	EarlyJoinWindow     = 10 * time.Minute
	ReminderLeadTime    = 30 * time.Minute
	ReminderTargetLead  = 15 * time.Minute
	AutoActivateLead    = 5 * time.Minute
	MissedGracePeriod   = 15 * time.Minute
	FreeConsultationLen = 15
)

// DefaultMeetingProviders хосты сервисов встреч, разрешённые по умолчанию
var DefaultMeetingProviders = []string{
	"meet.google.com",
	"zoom.us",
	"teams.microsoft.com",
	"whereby.com",
	"vimeo.com",
	"jitsi.org",
	"meet.jit.si",
}

// Meeting общее состояние встречи для Session и ScheduledCall
type Meeting struct {
	ScheduledAt      time.Time     `json:"scheduled_at"`
	DurationMinutes  int           `json:"duration_minutes"`
	Timezone         string        `json:"timezone"`
	Status           MeetingStatus `json:"status"`
	MeetingURL       string        `json:"meeting_url"`
	AutoActivated    bool          `json:"auto_activated"`
	ReminderSent     bool          `json:"reminder_sent"`
	EarlyJoinEnabled bool          `json:"early_join_enabled"`
	MeetingStartedAt *time.Time    `json:"meeting_started_at,omitempty"`
	MeetingEndedAt   *time.Time    `json:"meeting_ended_at,omitempty"`
	CompletedDate    *time.Time    `json:"completed_date,omitempty"`
}

// Duration длительность встречи
func (m *Meeting) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

// EndsAt плановое окончание встречи
func (m *Meeting) EndsAt() time.Time {
	return m.ScheduledAt.Add(m.Duration())
}

// Reserves занимает ли встреча время коуча
func (m *Meeting) Reserves() bool {
	return m.Status == MeetingStatusScheduled || m.Status == MeetingStatusActive
}

// CanJoinEarly можно зайти за 10 минут до начала
func (m *Meeting) CanJoinEarly(now time.Time) bool {
	if !m.EarlyJoinEnabled {
		return false
	}
	return !now.Before(m.ScheduledAt.Add(-EarlyJoinWindow)) && !now.After(m.ScheduledAt)
}

// ShouldSendReminder напоминание уходит один раз, начиная за 30 минут до начала.
// Целевое окно [-30, -15] минут; если проход его пропустил, напоминание
// досылается до момента начала
func (m *Meeting) ShouldSendReminder(now time.Time) bool {
	if m.ReminderSent || m.Status != MeetingStatusScheduled {
		return false
	}
	return !now.Before(m.ScheduledAt.Add(-ReminderLeadTime)) && now.Before(m.ScheduledAt)
}

// CanAutoActivate встреча активируется начиная за 5 минут до начала
func (m *Meeting) CanAutoActivate(now time.Time) bool {
	if m.Status != MeetingStatusScheduled || m.AutoActivated {
		return false
	}
	return !now.Before(m.ScheduledAt.Add(-AutoActivateLead))
}

// ShouldBeCompleted активная встреча завершается по истечении длительности
func (m *Meeting) ShouldBeCompleted(now time.Time) bool {
	if m.Status != MeetingStatusActive || m.MeetingStartedAt == nil {
		return false
	}
	return !m.MeetingStartedAt.Add(m.Duration()).After(now)
}

// IsMissed встреча не началась в течение 15 минут после назначенного времени
func (m *Meeting) IsMissed(now time.Time) bool {
	if m.Status != MeetingStatusScheduled {
		return false
	}
	return m.ScheduledAt.Add(MissedGracePeriod).Before(now)
}

// MarkReminderSent отмечает отправку напоминания, повторный вызов ничего не меняет
func (m *Meeting) MarkReminderSent() bool {
	if m.ReminderSent {
		return false
	}
	m.ReminderSent = true
	return true
}

// AutoActivate переводит встречу в active. Идемпотентна: повторный вызов - no-op
func (m *Meeting) AutoActivate(now time.Time) (bool, error) {
	if m.AutoActivated || m.Status != MeetingStatusScheduled {
		return false, nil
	}
	if !m.CanAutoActivate(now) {
		return false, fmt.Errorf("%w: activation opens at %s", ErrNotDue, m.ScheduledAt.Add(-AutoActivateLead).Format(time.RFC3339))
	}
	m.AutoActivated = true
	m.MeetingStartedAt = &now
	m.Status = MeetingStatusActive
	return true, nil
}

// Start ручной старт встречи, только из scheduled и не раньше окна раннего входа
func (m *Meeting) Start(now time.Time) error {
	if m.Status != MeetingStatusScheduled {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, m.Status)
	}
	if now.Before(m.ScheduledAt.Add(-EarlyJoinWindow)) {
		return fmt.Errorf("%w: meeting can be started from %s", ErrNotDue, m.ScheduledAt.Add(-EarlyJoinWindow).Format(time.RFC3339))
	}
	m.MeetingStartedAt = &now
	m.Status = MeetingStatusActive
	return nil
}

// Complete завершает встречу: из active, либо из scheduled если время уже наступило
func (m *Meeting) Complete(now time.Time) error {
	switch m.Status {
	case MeetingStatusActive:
	case MeetingStatusScheduled:
		if now.Before(m.ScheduledAt) {
			return fmt.Errorf("%w: meeting has not started yet", ErrNotDue)
		}
	default:
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, m.Status)
	}
	m.Status = MeetingStatusCompleted
	m.CompletedDate = &now
	m.MeetingEndedAt = &now
	return nil
}

// MarkMissed только из scheduled и только после назначенного времени
func (m *Meeting) MarkMissed(now time.Time) error {
	if m.Status != MeetingStatusScheduled {
		return fmt.Errorf("%w: mark missed from %s", ErrInvalidTransition, m.Status)
	}
	if !m.ScheduledAt.Before(now) {
		return fmt.Errorf("%w: meeting is in the future", ErrNotDue)
	}
	m.Status = MeetingStatusMissed
	return nil
}

// Cancel только из scheduled
func (m *Meeting) Cancel() error {
	if m.Status != MeetingStatusScheduled {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, m.Status)
	}
	m.Status = MeetingStatusCancelled
	return nil
}
