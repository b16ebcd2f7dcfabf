package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meetingStart = time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)

func newTestMeeting() *Meeting {
	return &Meeting{
		ScheduledAt:      meetingStart,
		DurationMinutes:  60,
		Status:           MeetingStatusScheduled,
		EarlyJoinEnabled: true,
	}
}

func at(h, m int) time.Time {
	return time.Date(2025, 7, 1, h, m, 0, 0, time.UTC)
}

func TestMeetingCanJoinEarly(t *testing.T) {
	m := newTestMeeting()

	assert.False(t, m.CanJoinEarly(at(13, 49)))
	assert.True(t, m.CanJoinEarly(at(13, 50)))
	assert.True(t, m.CanJoinEarly(at(14, 0)))
	assert.False(t, m.CanJoinEarly(at(14, 1)))

	m.EarlyJoinEnabled = false
	assert.False(t, m.CanJoinEarly(at(13, 55)))
}

func TestMeetingReminderWindow(t *testing.T) {
	m := newTestMeeting()

	assert.False(t, m.ShouldSendReminder(at(13, 29)))
	assert.True(t, m.ShouldSendReminder(at(13, 30)))
	assert.True(t, m.ShouldSendReminder(at(13, 45)))
	assert.True(t, m.ShouldSendReminder(at(13, 52)))
	assert.False(t, m.ShouldSendReminder(at(14, 0)))

	assert.True(t, m.MarkReminderSent())
	assert.False(t, m.MarkReminderSent())
	assert.False(t, m.ShouldSendReminder(at(13, 52)))
}

func TestMeetingAutoActivate(t *testing.T) {
	m := newTestMeeting()

	changed, err := m.AutoActivate(at(13, 54))
	require.ErrorIs(t, err, ErrNotDue)
	assert.False(t, changed)
	assert.Equal(t, MeetingStatusScheduled, m.Status)

	assert.True(t, m.CanAutoActivate(at(13, 55)))
	changed, err = m.AutoActivate(at(13, 56))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, MeetingStatusActive, m.Status)
	require.NotNil(t, m.MeetingStartedAt)
	assert.Equal(t, at(13, 56), *m.MeetingStartedAt)
	assert.False(t, m.MeetingStartedAt.Before(m.ScheduledAt.Add(-AutoActivateLead)))

	// повторный вызов ничего не меняет
	changed, err = m.AutoActivate(at(13, 58))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, at(13, 56), *m.MeetingStartedAt)
}

func TestMeetingShouldBeCompleted(t *testing.T) {
	m := newTestMeeting()
	_, err := m.AutoActivate(at(13, 56))
	require.NoError(t, err)

	assert.False(t, m.ShouldBeCompleted(at(14, 55)))
	assert.True(t, m.ShouldBeCompleted(at(14, 56)))
	assert.True(t, m.ShouldBeCompleted(at(15, 0)))

	require.NoError(t, m.Complete(at(15, 0)))
	assert.Equal(t, MeetingStatusCompleted, m.Status)
	assert.False(t, m.ShouldBeCompleted(at(15, 1)))
	assert.ErrorIs(t, m.Complete(at(15, 1)), ErrInvalidTransition)
}

func TestMeetingCompleteFromScheduled(t *testing.T) {
	m := newTestMeeting()

	require.ErrorIs(t, m.Complete(at(13, 59)), ErrNotDue)
	require.NoError(t, m.Complete(at(14, 30)))
	assert.Equal(t, MeetingStatusCompleted, m.Status)
	require.NotNil(t, m.CompletedDate)
}

func TestMeetingMissed(t *testing.T) {
	m := newTestMeeting()

	assert.False(t, m.IsMissed(at(14, 15)))
	assert.True(t, m.IsMissed(at(14, 16)))

	require.ErrorIs(t, newTestMeeting().MarkMissed(at(13, 0)), ErrNotDue)
	require.NoError(t, m.MarkMissed(at(14, 16)))
	assert.Equal(t, MeetingStatusMissed, m.Status)
	assert.False(t, m.IsMissed(at(14, 30)))
	assert.ErrorIs(t, m.MarkMissed(at(14, 30)), ErrInvalidTransition)
}

func TestMeetingStartAndCancel(t *testing.T) {
	m := newTestMeeting()
	require.ErrorIs(t, m.Start(at(13, 0)), ErrNotDue)
	require.NoError(t, m.Start(at(13, 51)))
	assert.False(t, m.AutoActivated)
	assert.ErrorIs(t, m.Cancel(), ErrInvalidTransition)

	m = newTestMeeting()
	require.NoError(t, m.Cancel())
	assert.Equal(t, MeetingStatusCancelled, m.Status)
	assert.False(t, m.Reserves())
}
