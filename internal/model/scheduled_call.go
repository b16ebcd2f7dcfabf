package model

import "time"

type CallType string

const (
	CallTypeFreeConsultation CallType = "free_consultation"
	CallTypePaid             CallType = "paid_call"
)

// ScheduledCall бесплатная 15-минутная консультация или платный звонок вне контракта
type ScheduledCall struct {
	ID        int64    `json:"id"`
	CoachID   int64    `json:"coach_id"`
	StudentID int64    `json:"student_id"`
	CallType  CallType `json:"call_type"`
	Title     string   `json:"title"`
	Price     Money    `json:"price"`
	Notes     string   `json:"notes"`
	Meeting

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleOf роль пользователя в звонке
func (c *ScheduledCall) RoleOf(userID int64) Role {
	switch userID {
	case c.StudentID:
		return RoleStudent
	case c.CoachID:
		return RoleCoach
	default:
		return RoleNone
	}
}

// Counterparty вторая сторона звонка
func (c *ScheduledCall) Counterparty(userID int64) int64 {
	if userID == c.StudentID {
		return c.CoachID
	}
	return c.StudentID
}
