package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContract() *Contract {
	return &Contract{
		Status:        ContractStatusAwaitingResponse,
		PaymentStatus: PaymentStatusPending,
		TotalSessions: 2,
		Rate:          Dollars(50),
		TotalAmount:   Dollars(100),
	}
}

func TestContractNumberFormat(t *testing.T) {
	day := time.Date(2025, 7, 1, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "CTR-20250701-0001", FormatContractNumber(day, 1))
	assert.Equal(t, "CTR-20250701-", ContractNumberPrefix(day))

	n, ok := ParseContractCounter("CTR-20250701-0042")
	require.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = ParseContractCounter("INV-20250701-0042")
	assert.False(t, ok)
	_, ok = ParseContractCounter("CTR-20250701-")
	assert.False(t, ok)
}

func TestContractLifecycle(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	c := newTestContract()

	assert.False(t, c.CanScheduleSessions())
	require.ErrorIs(t, c.MarkPaid("pay_1", now), ErrInvalidTransition)

	require.NoError(t, c.CoachAccept(now))
	assert.Equal(t, ContractStatusAccepted, c.Status)
	require.ErrorIs(t, c.CoachAccept(now), ErrInvalidTransition)

	require.NoError(t, c.MarkPaid("pay_1", now))
	assert.Equal(t, ContractStatusActive, c.Status)
	assert.Equal(t, PaymentStatusPaid, c.PaymentStatus)
	assert.Equal(t, c.TotalAmount, c.PaidAmount)
	require.NotNil(t, c.PaymentCompletedAt)
	assert.True(t, c.CanScheduleSessions())

	done, err := c.RecordCompletedSession(now)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 50, c.ProgressPercent())

	require.ErrorIs(t, c.Cancel("changed my mind", now), ErrInvalidTransition)

	done, err = c.RecordCompletedSession(now)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, ContractStatusCompleted, c.Status)
	assert.Equal(t, 0, c.RemainingSessions())
	assert.False(t, c.CanScheduleSessions())

	_, err = c.RecordCompletedSession(now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, c.TotalSessions, c.CompletedSessions)
}

func TestContractCoachReject(t *testing.T) {
	now := time.Now().UTC()
	c := newTestContract()

	require.NoError(t, c.CoachReject("schedule is full", now))
	assert.Equal(t, ContractStatusCancelled, c.Status)
	assert.Equal(t, "schedule is full", c.RejectionReason)
	assert.ErrorIs(t, c.CoachAccept(now), ErrInvalidTransition)
}

func TestContractPaymentFailureAndRefund(t *testing.T) {
	now := time.Now().UTC()
	c := newTestContract()
	require.NoError(t, c.CoachAccept(now))

	require.NoError(t, c.MarkPaymentFailed(now))
	assert.Equal(t, PaymentStatusFailed, c.PaymentStatus)
	assert.Equal(t, ContractStatusAccepted, c.Status)

	// повторная оплата после неудачи разрешена
	require.NoError(t, c.MarkPaid("pay_2", now))
	require.ErrorIs(t, c.MarkPaymentFailed(now), ErrInvalidTransition)

	require.NoError(t, c.Refund(now))
	assert.Equal(t, PaymentStatusRefunded, c.PaymentStatus)
	assert.Equal(t, ContractStatusCancelled, c.Status)
	assert.ErrorIs(t, c.Refund(now), ErrInvalidTransition)
}

func TestContractCancelWithoutCompletedSessions(t *testing.T) {
	now := time.Now().UTC()
	c := newTestContract()
	require.ErrorIs(t, c.Cancel("x", now), ErrInvalidTransition)

	require.NoError(t, c.CoachAccept(now))
	require.NoError(t, c.MarkPaid("pay", now))
	require.NoError(t, c.Cancel("student moved", now))
	assert.Equal(t, ContractStatusCancelled, c.Status)
	assert.Equal(t, "student moved", c.CancellationReason)
}

func TestContractParties(t *testing.T) {
	c := &Contract{StudentID: 1, CoachID: 2}

	assert.Equal(t, RoleStudent, c.RoleOf(1))
	assert.Equal(t, RoleCoach, c.RoleOf(2))
	assert.Equal(t, RoleNone, c.RoleOf(3))
	assert.Equal(t, int64(2), c.Counterparty(1))
	assert.Equal(t, int64(1), c.Counterparty(2))
	assert.False(t, c.IsParty(3))
}

func TestContractSessionEarnings(t *testing.T) {
	c := newTestContract()
	assert.Equal(t, Dollars(50), c.SessionEarnings())

	c.PaymentModel = PaymentPerHour
	c.DurationMinutes = 90
	assert.Equal(t, Dollars(75), c.SessionEarnings())
}
