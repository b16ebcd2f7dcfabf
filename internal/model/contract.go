package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ContractStatus string

const (
	ContractStatusAwaitingResponse ContractStatus = "awaiting_response"
	ContractStatusAccepted         ContractStatus = "accepted"
	ContractStatusActive           ContractStatus = "active"
	ContractStatusCompleted        ContractStatus = "completed"
	ContractStatusCancelled        ContractStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentModel string

const (
	PaymentPerSession PaymentModel = "per_session"
	PaymentPerHour    PaymentModel = "per_hour"
)

const contractNumberPrefix = "CTR-"

// Contract принятое предложение с бюджетом занятий и статусом оплаты
type Contract struct {
	ID                 int64          `json:"id"`
	ContractNumber     string         `json:"contract_number"`
	ProposalID         int64          `json:"proposal_id"`
	RequestID          int64          `json:"request_id"`
	StudentID          int64          `json:"student_id"`
	CoachID            int64          `json:"coach_id"`
	Title              string         `json:"title"`
	Status             ContractStatus `json:"status"`
	PaymentStatus      PaymentStatus  `json:"payment_status"`
	StartDate          *time.Time     `json:"start_date,omitempty"`
	EndDate            *time.Time     `json:"end_date,omitempty"`
	TotalSessions      int            `json:"total_sessions"`
	CompletedSessions  int            `json:"completed_sessions"`
	Rate               Money          `json:"rate"`
	DurationMinutes    int            `json:"duration_minutes"`
	PaymentModel       PaymentModel   `json:"payment_model"`
	Timezone           string         `json:"timezone"`
	CancellationPolicy string         `json:"cancellation_policy"`
	LearningOutcomes   string         `json:"learning_outcomes"`
	TotalAmount        Money          `json:"total_amount"`
	PaidAmount         Money          `json:"paid_amount"`
	ExternalPaymentID  string         `json:"external_payment_id,omitempty"`
	PaymentCompletedAt *time.Time     `json:"payment_completed_at,omitempty"`
	RejectionReason    string         `json:"rejection_reason,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
	AcceptedAt         *time.Time     `json:"accepted_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ContractNumberPrefix префикс номеров контрактов за день: CTR-YYYYMMDD-
func ContractNumberPrefix(day time.Time) string {
	return contractNumberPrefix + day.UTC().Format("20060102") + "-"
}

// FormatContractNumber собирает номер вида CTR-YYYYMMDD-NNNN
func FormatContractNumber(day time.Time, counter int) string {
	return fmt.Sprintf("%s%04d", ContractNumberPrefix(day), counter)
}

// ParseContractCounter возвращает дневной счётчик из номера контракта
func ParseContractCounter(number string) (int, bool) {
	if !strings.HasPrefix(number, contractNumberPrefix) {
		return 0, false
	}
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(number[idx+1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// CanScheduleSessions занятия можно планировать только по активному оплаченному контракту
func (c *Contract) CanScheduleSessions() bool {
	return c.Status == ContractStatusActive && c.PaymentStatus == PaymentStatusPaid
}

// IsParty проверяет что пользователь - сторона контракта
func (c *Contract) IsParty(userID int64) bool {
	return c.StudentID == userID || c.CoachID == userID
}

// RoleOf возвращает роль пользователя в контракте
func (c *Contract) RoleOf(userID int64) Role {
	switch userID {
	case c.StudentID:
		return RoleStudent
	case c.CoachID:
		return RoleCoach
	default:
		return RoleNone
	}
}

// Counterparty возвращает идентификатор второй стороны
func (c *Contract) Counterparty(userID int64) int64 {
	if userID == c.StudentID {
		return c.CoachID
	}
	return c.StudentID
}

// RemainingSessions сколько занятий ещё не проведено
func (c *Contract) RemainingSessions() int {
	if c.CompletedSessions >= c.TotalSessions {
		return 0
	}
	return c.TotalSessions - c.CompletedSessions
}

// ProgressPercent процент проведённых занятий
func (c *Contract) ProgressPercent() int {
	if c.TotalSessions <= 0 {
		return 0
	}
	return c.CompletedSessions * 100 / c.TotalSessions
}

// CoachAccept awaiting_response -> accepted
func (c *Contract) CoachAccept(now time.Time) error {
	if c.Status != ContractStatusAwaitingResponse {
		return fmt.Errorf("%w: accept from %s", ErrInvalidTransition, c.Status)
	}
	c.Status = ContractStatusAccepted
	c.AcceptedAt = &now
	c.UpdatedAt = now
	return nil
}

// CoachReject awaiting_response -> cancelled с причиной
func (c *Contract) CoachReject(reason string, now time.Time) error {
	if c.Status != ContractStatusAwaitingResponse {
		return fmt.Errorf("%w: reject from %s", ErrInvalidTransition, c.Status)
	}
	c.Status = ContractStatusCancelled
	c.RejectionReason = reason
	c.CancelledAt = &now
	c.UpdatedAt = now
	return nil
}

// MarkPaid accepted -> active, payment pending|failed -> paid
func (c *Contract) MarkPaid(externalPaymentID string, now time.Time) error {
	if c.Status != ContractStatusAccepted {
		return fmt.Errorf("%w: pay from %s", ErrInvalidTransition, c.Status)
	}
	if c.PaymentStatus == PaymentStatusPaid || c.PaymentStatus == PaymentStatusRefunded {
		return fmt.Errorf("%w: payment already %s", ErrInvalidTransition, c.PaymentStatus)
	}
	c.PaymentStatus = PaymentStatusPaid
	c.PaidAmount = c.TotalAmount
	c.ExternalPaymentID = externalPaymentID
	c.PaymentCompletedAt = &now
	c.Status = ContractStatusActive
	if c.StartDate == nil {
		c.StartDate = &now
	}
	c.UpdatedAt = now
	return nil
}

// MarkPaymentFailed фиксирует неуспешную оплату, контракт остаётся accepted
func (c *Contract) MarkPaymentFailed(now time.Time) error {
	if c.Status != ContractStatusAccepted || c.PaymentStatus == PaymentStatusPaid {
		return fmt.Errorf("%w: payment failure from %s/%s", ErrInvalidTransition, c.Status, c.PaymentStatus)
	}
	c.PaymentStatus = PaymentStatusFailed
	c.UpdatedAt = now
	return nil
}

// Refund возврат средств: терминальное состояние (payment refunded, contract cancelled)
func (c *Contract) Refund(now time.Time) error {
	if c.Status != ContractStatusActive && c.Status != ContractStatusAccepted {
		return fmt.Errorf("%w: refund from %s", ErrInvalidTransition, c.Status)
	}
	c.PaymentStatus = PaymentStatusRefunded
	c.Status = ContractStatusCancelled
	c.CancellationReason = "refunded"
	c.CancelledAt = &now
	c.UpdatedAt = now
	return nil
}

// Cancel отмена возможна только для активного контракта без проведённых занятий
func (c *Contract) Cancel(reason string, now time.Time) error {
	if c.Status != ContractStatusActive {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, c.Status)
	}
	if c.CompletedSessions > 0 {
		return fmt.Errorf("%w: %d sessions already completed", ErrInvalidTransition, c.CompletedSessions)
	}
	c.Status = ContractStatusCancelled
	c.CancellationReason = reason
	c.CancelledAt = &now
	c.UpdatedAt = now
	return nil
}

// RecordCompletedSession увеличивает счётчик проведённых занятий.
// Возвращает true если контракт завершился
func (c *Contract) RecordCompletedSession(now time.Time) (bool, error) {
	if c.Status != ContractStatusActive {
		return false, fmt.Errorf("%w: complete session on %s contract", ErrInvalidTransition, c.Status)
	}
	if c.CompletedSessions >= c.TotalSessions {
		return false, fmt.Errorf("%w: all %d sessions already completed", ErrInvalidTransition, c.TotalSessions)
	}

	c.CompletedSessions++
	c.UpdatedAt = now

	if c.CompletedSessions >= c.TotalSessions {
		c.Status = ContractStatusCompleted
		c.CompletedAt = &now
		if c.EndDate == nil {
			c.EndDate = &now
		}
		return true, nil
	}
	return false, nil
}

// SessionEarnings сумма, начисляемая коучу за одно проведённое занятие
func (c *Contract) SessionEarnings() Money {
	if c.PaymentModel == PaymentPerHour {
		return Money(int64(c.Rate) * int64(c.DurationMinutes) / 60)
	}
	return c.Rate
}
