package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

func TestSweeperDrivesSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	s := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))

	f.clock.Set(mustTime(t, "2025-07-01T13:52:00Z"))
	rep := f.sweep(t)
	assert.Equal(t, 1, rep.Reminders)
	got := f.session(t, s.ID)
	assert.True(t, got.ReminderSent)
	assert.Equal(t, model.MeetingStatusScheduled, got.Status)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationSessionReminder)
	assert.Contains(t, f.notificationTypes(t, f.coach.ID), model.NotificationSessionReminder)

	f.clock.Set(mustTime(t, "2025-07-01T13:56:00Z"))
	rep = f.sweep(t)
	assert.Equal(t, 0, rep.Reminders)
	assert.Equal(t, 1, rep.Activated)
	got = f.session(t, s.ID)
	assert.True(t, got.AutoActivated)
	assert.Equal(t, model.MeetingStatusActive, got.Status)
	require.NotNil(t, got.MeetingStartedAt)
	assert.False(t, got.MeetingStartedAt.Before(got.ScheduledAt.Add(-model.AutoActivateLead)))

	f.clock.Set(mustTime(t, "2025-07-01T15:00:00Z"))
	rep = f.sweep(t)
	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, model.MeetingStatusCompleted, f.session(t, s.ID).Status)
	assert.Equal(t, 1, f.contract(t, c.ID).CompletedSessions)

	profile, err := f.svc.Identity.CoachProfile(f.ctx, f.coach.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Dollars(50), profile.TotalEarnings)
}

func TestSweeperIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	s := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))

	f.clock.Set(mustTime(t, "2025-07-01T13:52:00Z"))
	first := f.sweep(t)
	before := len(f.notificationTypes(t, f.student.ID))
	second := f.sweep(t)
	assert.Equal(t, 1, first.Reminders)
	assert.True(t, second.Empty())
	assert.Len(t, f.notificationTypes(t, f.student.ID), before)

	f.clock.Set(mustTime(t, "2025-07-01T13:57:00Z"))
	f.sweep(t)
	activated := f.session(t, s.ID)
	f.clock.Set(mustTime(t, "2025-07-01T13:58:00Z"))
	assert.True(t, f.sweep(t).Empty())
	again := f.session(t, s.ID)
	assert.Equal(t, activated.MeetingStartedAt, again.MeetingStartedAt)
	assert.Equal(t, activated.UpdatedAt, again.UpdatedAt)

	f.clock.Set(mustTime(t, "2025-07-01T15:30:00Z"))
	f.sweep(t)
	assert.True(t, f.sweep(t).Empty())
	assert.Equal(t, 1, f.contract(t, c.ID).CompletedSessions)
}

func TestSweeperCatchesUpLateReminder(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	s := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))

	// проход за 40 минут ещё рано
	f.clock.Set(mustTime(t, "2025-07-01T13:20:00Z"))
	assert.True(t, f.sweep(t).Empty())

	f.clock.Set(mustTime(t, "2025-07-01T13:59:00Z"))
	rep := f.sweep(t)
	assert.Equal(t, 1, rep.Reminders)
	assert.Equal(t, 1, rep.Activated)
	assert.Equal(t, model.MeetingStatusActive, f.session(t, s.ID).Status)
}

func TestSweeperMarksMissed(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	s := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))

	// первый проход после простоя опоздал больше чем на 15 минут:
	// занятие считается пропущенным и не активируется задним числом
	f.clock.Set(mustTime(t, "2025-07-01T14:16:00Z"))
	rep := f.sweep(t)
	assert.Equal(t, 1, rep.Missed)
	assert.Equal(t, 0, rep.Activated)
	assert.Equal(t, 0, rep.Completed)
	missed := f.session(t, s.ID)
	assert.Equal(t, model.MeetingStatusMissed, missed.Status)
	assert.False(t, missed.AutoActivated)
	assert.Nil(t, missed.MeetingStartedAt)
	assert.Equal(t, 0, f.contract(t, c.ID).CompletedSessions)

	// номер пропущенного занятия не освобождается
	next := f.schedule(t, c.ID, mustTime(t, "2025-07-02T14:00:00Z"))
	assert.Equal(t, 2, next.SessionNumber)
}

func TestSweeperContinuesAfterEntityFailure(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	broken := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))
	healthy := f.schedule(t, c.ID, mustTime(t, "2025-07-01T16:00:00Z"))

	// занятие, чей контракт пропал, не должно останавливать проход
	broken.ContractID = 999
	require.NoError(t, f.store.Repos().Sessions.Update(f.ctx, broken))

	f.clock.Set(mustTime(t, "2025-07-01T15:50:00Z"))
	rep := f.sweep(t)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Reminders)
	assert.True(t, f.session(t, healthy.ID).ReminderSent)
}

func TestAllSessionsCompleteContract(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)

	start := mustTime(t, "2025-07-01T10:00:00Z")
	var ids []int64
	for i := 0; i < 5; i++ {
		s := f.schedule(t, c.ID, start.AddDate(0, 0, i))
		assert.Equal(t, i+1, s.SessionNumber)
		ids = append(ids, s.ID)
	}

	_, err := f.svc.Scheduling.ScheduleSession(f.ctx, f.student.ID, ScheduleSessionInput{
		ContractID:  c.ID,
		ScheduledAt: start.AddDate(0, 0, 10),
	})
	assertKind(t, err, KindNotAllowed, ReasonNoSessionsLeft)

	for i, id := range ids {
		f.clock.Set(start.AddDate(0, 0, i).Add(30 * time.Minute))
		_, err := f.svc.Meetings.CompleteSession(f.ctx, f.student.ID, id, "")
		require.NoError(t, err)
	}

	got := f.contract(t, c.ID)
	assert.Equal(t, model.ContractStatusCompleted, got.Status)
	assert.Equal(t, got.TotalSessions, got.CompletedSessions)
	require.NotNil(t, got.CompletedAt)
	assert.Contains(t, f.notificationTypes(t, f.coach.ID), model.NotificationContractCompleted)

	_, err = f.svc.Scheduling.ScheduleSession(f.ctx, f.student.ID, ScheduleSessionInput{
		ContractID:  c.ID,
		ScheduledAt: start.AddDate(0, 0, 10),
	})
	assertKind(t, err, KindNotAllowed, ReasonNotActive)
}

func TestManualSessionTransitions(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	s := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))

	f.clock.Set(mustTime(t, "2025-07-01T13:45:00Z"))
	_, err := f.svc.Meetings.StartSession(f.ctx, f.coach.ID, s.ID)
	assertKind(t, err, KindNotAllowed, "")
	_, err = f.svc.Meetings.MarkSessionMissed(f.ctx, f.coach.ID, s.ID)
	assertKind(t, err, KindNotAllowed, "")

	outsider := f.approvedCoach(t, "otto@example.com")
	f.clock.Set(mustTime(t, "2025-07-01T13:51:00Z"))
	_, err = f.svc.Meetings.StartSession(f.ctx, outsider.ID, s.ID)
	assertKind(t, err, KindNotAllowed, ReasonNotParty)

	started, err := f.svc.Meetings.StartSession(f.ctx, f.coach.ID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MeetingStatusActive, started.Status)
	assert.False(t, started.AutoActivated)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationSessionStarted)

	_, err = f.svc.Meetings.CancelSession(f.ctx, f.student.ID, s.ID)
	assertKind(t, err, KindNotAllowed, "")

	// ручной старт не даёт автоактивации сработать повторно
	f.clock.Set(mustTime(t, "2025-07-01T13:57:00Z"))
	assert.Equal(t, 0, f.sweep(t).Activated)

	f.clock.Set(mustTime(t, "2025-07-01T14:40:00Z"))
	done, err := f.svc.Meetings.CompleteSession(f.ctx, f.coach.ID, s.ID, "Worked on worker pools")
	require.NoError(t, err)
	assert.Equal(t, model.MeetingStatusCompleted, done.Status)
	assert.Equal(t, "Worked on worker pools", done.CoachNotes)
	assert.Empty(t, done.StudentNotes)
}

func TestCancelSessionFreesNumber(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	first := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))
	f.schedule(t, c.ID, mustTime(t, "2025-07-02T14:00:00Z"))

	cancelled, err := f.svc.Meetings.CancelSession(f.ctx, f.coach.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MeetingStatusCancelled, cancelled.Status)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationSessionCancelled)

	again := f.schedule(t, c.ID, mustTime(t, "2025-07-01T14:00:00Z"))
	assert.Equal(t, 1, again.SessionNumber)
}

func TestSessionJoinInfo(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	s, err := f.svc.Scheduling.ScheduleSession(f.ctx, f.student.ID, ScheduleSessionInput{
		ContractID:  c.ID,
		ScheduledAt: mustTime(t, "2025-07-01T14:00:00Z"),
		MeetingURL:  "https://meet.google.com/abc-defg-hij",
	})
	require.NoError(t, err)

	f.clock.Set(mustTime(t, "2025-07-01T13:45:00Z"))
	info, err := f.svc.Meetings.SessionJoinInfo(f.ctx, f.student.ID, s.ID)
	require.NoError(t, err)
	assert.False(t, info.CanJoin)
	assert.Equal(t, 15, info.MinutesUntilStart)
	assert.Empty(t, info.MeetingURL)

	f.clock.Set(mustTime(t, "2025-07-01T13:52:00Z"))
	info, err = f.svc.Meetings.SessionJoinInfo(f.ctx, f.student.ID, s.ID)
	require.NoError(t, err)
	assert.True(t, info.CanJoinEarly)
	assert.True(t, info.CanJoin)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", info.MeetingURL)

	f.clock.Set(mustTime(t, "2025-07-01T14:20:00Z"))
	info, err = f.svc.Meetings.SessionJoinInfo(f.ctx, f.student.ID, s.ID)
	require.NoError(t, err)
	assert.False(t, info.CanJoin)
}

func TestSweeperDrivesCalls(t *testing.T) {
	f := newFixture(t)
	call, err := f.svc.Scheduling.ScheduleCall(f.ctx, f.student.ID, ScheduleCallInput{
		CoachID:     f.coach.ID,
		StudentID:   f.student.ID,
		CallType:    model.CallTypeFreeConsultation,
		ScheduledAt: mustTime(t, "2025-07-01T10:00:00Z"),
		Title:       "Intro call",
	})
	require.NoError(t, err)
	assert.Equal(t, model.FreeConsultationLen, call.DurationMinutes)
	assert.Equal(t, model.Money(0), call.Price)

	f.clock.Set(mustTime(t, "2025-07-01T09:50:00Z"))
	assert.Equal(t, 1, f.sweep(t).Reminders)

	f.clock.Set(mustTime(t, "2025-07-01T09:56:00Z"))
	assert.Equal(t, 1, f.sweep(t).Activated)

	f.clock.Set(mustTime(t, "2025-07-01T10:15:00Z"))
	assert.Equal(t, 1, f.sweep(t).Completed)

	got, err := f.store.Repos().Calls.GetByID(f.ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MeetingStatusCompleted, got.Status)
}

func TestSweeperPurgesOldNotifications(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Messaging.Send(f.ctx, f.student.ID, f.coach.ID, "Hello, are you available?")
	require.NoError(t, err)
	require.Len(t, f.notificationTypes(t, f.coach.ID), 1)

	f.clock.Advance(model.NotificationRetention + time.Hour)
	rep := f.sweep(t)
	assert.Equal(t, int64(1), rep.PurgedNotifications)
	assert.Empty(t, f.notificationTypes(t, f.coach.ID))
}
