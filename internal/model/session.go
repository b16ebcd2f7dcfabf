package model

import (
	"fmt"
	"time"
)

// Политика переноса занятий
const (
	RescheduleCutoff         = 5 * time.Hour
	RescheduleResponseWindow = 24 * time.Hour
	MinRescheduleReasonChars = 10
	MinRescheduleLead        = time.Hour
)

// Session одно занятие по контракту
type Session struct {
	ID              int64  `json:"id"`
	ProposalID      int64  `json:"proposal_id"`
	ContractID      int64  `json:"contract_id"`
	CoachID         int64  `json:"coach_id"`
	StudentID       int64  `json:"student_id"`
	SessionNumber   int    `json:"session_number"`
	Title           string `json:"title"`
	CalendarEventID string `json:"calendar_event_id"`
	StudentNotes    string `json:"student_notes"`
	CoachNotes      string `json:"coach_notes"`
	Meeting

	RescheduleRequested    bool       `json:"reschedule_requested"`
	RescheduleRequestedBy  Role       `json:"reschedule_requested_by,omitempty"`
	RescheduleReason       string     `json:"reschedule_reason,omitempty"`
	RescheduleProposedTime *time.Time `json:"reschedule_proposed_time,omitempty"`
	RescheduleRequestedAt  *time.Time `json:"reschedule_requested_at,omitempty"`
	RescheduleDeadline     *time.Time `json:"reschedule_deadline,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleOf роль пользователя в занятии
func (s *Session) RoleOf(userID int64) Role {
	switch userID {
	case s.StudentID:
		return RoleStudent
	case s.CoachID:
		return RoleCoach
	default:
		return RoleNone
	}
}

// Counterparty вторая сторона занятия
func (s *Session) Counterparty(userID int64) int64 {
	if userID == s.StudentID {
		return s.CoachID
	}
	return s.StudentID
}

// WithinRescheduleCutoff до начала осталось не больше 5 часов
func (s *Session) WithinRescheduleCutoff(now time.Time) bool {
	return s.ScheduledAt.Sub(now) <= RescheduleCutoff
}

// CanRequestReschedule проверяет право запросить перенос.
// Внутри cutoff инициировать перенос может только студент
func (s *Session) CanRequestReschedule(by Role, now time.Time) error {
	if s.Status != MeetingStatusScheduled {
		return fmt.Errorf("%w: reschedule from %s", ErrInvalidTransition, s.Status)
	}
	if s.RescheduleRequested {
		return fmt.Errorf("%w: reschedule request already pending", ErrInvalidTransition)
	}
	if s.WithinRescheduleCutoff(now) && by != RoleStudent {
		return fmt.Errorf("%w: only the student may reschedule within %s of the start", ErrInvalidTransition, RescheduleCutoff)
	}
	return nil
}

// OpenRescheduleRequest сохраняет запрос, ожидающий ответа второй стороны
func (s *Session) OpenRescheduleRequest(by Role, reason string, proposed *time.Time, now time.Time) {
	deadline := now.Add(RescheduleResponseWindow)
	s.RescheduleRequested = true
	s.RescheduleRequestedBy = by
	s.RescheduleReason = reason
	s.RescheduleProposedTime = proposed
	s.RescheduleRequestedAt = &now
	s.RescheduleDeadline = &deadline
	s.UpdatedAt = now
}

// ClearRescheduleRequest сбрасывает все поля запроса переноса
func (s *Session) ClearRescheduleRequest() {
	s.RescheduleRequested = false
	s.RescheduleRequestedBy = RoleNone
	s.RescheduleReason = ""
	s.RescheduleProposedTime = nil
	s.RescheduleRequestedAt = nil
	s.RescheduleDeadline = nil
}

// RescheduleExpired истёк ли срок ответа на запрос переноса
func (s *Session) RescheduleExpired(now time.Time) bool {
	return s.RescheduleRequested && s.RescheduleDeadline != nil && s.RescheduleDeadline.Before(now)
}

// MoveTo переносит занятие, сбрасывая флаги напоминания и активации
func (s *Session) MoveTo(at time.Time, now time.Time) {
	s.ScheduledAt = at.UTC()
	s.ReminderSent = false
	s.AutoActivated = false
	s.UpdatedAt = now
}
