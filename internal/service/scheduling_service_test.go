package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

func TestStudentRescheduleWithinCutoffNeedsApproval(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	now := f.clock.Now()
	f.schedule(t, c.ID, now.Add(26*time.Hour))
	s := f.schedule(t, c.ID, now.Add(time.Hour))
	require.Equal(t, 2, s.SessionNumber)

	proposed := now.Add(3 * time.Hour)
	res, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.student.ID, s.ID, RescheduleInput{
		Reason:       "family emergency",
		ProposedTime: &proposed,
	})
	require.NoError(t, err)
	assert.Equal(t, ReschedulePendingApproval, res.Outcome)

	pending := f.session(t, s.ID)
	assert.True(t, pending.RescheduleRequested)
	assert.Equal(t, model.RoleStudent, pending.RescheduleRequestedBy)
	require.NotNil(t, pending.RescheduleDeadline)
	assert.Equal(t, now.Add(24*time.Hour), *pending.RescheduleDeadline)
	assert.Equal(t, now.Add(time.Hour), pending.ScheduledAt)
	assert.Contains(t, f.notificationTypes(t, f.coach.ID), model.NotificationRescheduleRequested)

	_, err = f.svc.Scheduling.ApproveReschedule(f.ctx, f.student.ID, s.ID, nil)
	assertKind(t, err, KindNotAllowed, "own_request")

	approved, err := f.svc.Scheduling.ApproveReschedule(f.ctx, f.coach.ID, s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, proposed, approved.ScheduledAt)
	assert.Equal(t, model.MeetingStatusScheduled, approved.Status)

	cleared := f.session(t, s.ID)
	assert.False(t, cleared.RescheduleRequested)
	assert.Equal(t, model.RoleNone, cleared.RescheduleRequestedBy)
	assert.Nil(t, cleared.RescheduleProposedTime)
	assert.Nil(t, cleared.RescheduleDeadline)
	assert.Empty(t, cleared.RescheduleReason)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationRescheduleApproved)
}

func TestCoachRescheduleCutoff(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	now := f.clock.Now()
	soon := f.schedule(t, c.ID, now.Add(2*time.Hour))
	later := f.schedule(t, c.ID, now.Add(48*time.Hour))

	_, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.coach.ID, soon.ID, RescheduleInput{Reason: "conference talk overlaps"})
	assertKind(t, err, KindNotAllowed, "")
	assert.False(t, f.session(t, soon.ID).RescheduleRequested)

	moved := now.Add(72 * time.Hour)
	res, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.coach.ID, later.ID, RescheduleInput{
		Reason:       "conference talk overlaps",
		ProposedTime: &moved,
	})
	require.NoError(t, err)
	assert.Equal(t, RescheduleAutoApproved, res.Outcome)
	assert.Equal(t, moved, res.Session.ScheduledAt)
	assert.False(t, res.Session.RescheduleRequested)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationSessionRescheduled)
}

func TestRescheduleValidation(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	s := f.schedule(t, c.ID, f.clock.Now().Add(48*time.Hour))

	_, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.student.ID, s.ID, RescheduleInput{Reason: "sick"})
	assertKind(t, err, KindValidation, "reason")

	tooSoon := f.clock.Now().Add(30 * time.Minute)
	_, err = f.svc.Scheduling.RequestReschedule(f.ctx, f.student.ID, s.ID, RescheduleInput{
		Reason:       "family emergency",
		ProposedTime: &tooSoon,
	})
	assertKind(t, err, KindValidation, "proposed_time")
}

func TestRescheduleIntoConflictFails(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	now := f.clock.Now()
	first := f.schedule(t, c.ID, now.Add(24*time.Hour))
	second := f.schedule(t, c.ID, now.Add(48*time.Hour))

	overlap := first.ScheduledAt.Add(30 * time.Minute)
	_, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.student.ID, second.ID, RescheduleInput{
		Reason:       "moving house that day",
		ProposedTime: &overlap,
	})
	assertKind(t, err, KindConflict, ReasonConflicts)
	assert.Equal(t, second.ScheduledAt, f.session(t, second.ID).ScheduledAt)
}

func TestDeclineAndExpireReschedule(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	now := f.clock.Now()
	s := f.schedule(t, c.ID, now.Add(4*time.Hour))

	open := func() {
		_, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.student.ID, s.ID, RescheduleInput{Reason: "train got cancelled"})
		require.NoError(t, err)
	}

	open()
	declined, err := f.svc.Scheduling.DeclineReschedule(f.ctx, f.coach.ID, s.ID)
	require.NoError(t, err)
	assert.False(t, declined.RescheduleRequested)
	assert.Equal(t, now.Add(4*time.Hour), declined.ScheduledAt)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationRescheduleDeclined)

	_, err = f.svc.Scheduling.DeclineReschedule(f.ctx, f.coach.ID, s.ID)
	assertKind(t, err, KindNotAllowed, "no_pending_request")

	open()
	stored := f.session(t, s.ID)
	deadline := now.Add(30 * time.Minute)
	stored.RescheduleDeadline = &deadline
	require.NoError(t, f.store.Repos().Sessions.Update(f.ctx, stored))

	f.clock.Set(now.Add(time.Hour))
	rep := f.sweep(t)
	assert.Equal(t, 1, rep.ExpiredReschedules)
	expired := f.session(t, s.ID)
	assert.False(t, expired.RescheduleRequested)
	assert.Nil(t, expired.RescheduleDeadline)
	assert.Equal(t, model.MeetingStatusScheduled, expired.Status)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationRescheduleExpired)

	assert.Equal(t, 0, f.sweep(t).ExpiredReschedules)
}

func TestScheduleConflictAcrossContracts(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	at := mustTime(t, "2025-07-01T14:00:00Z")
	booked := f.schedule(t, c.ID, at)

	other := f.signup(t, "olga@example.com", model.RoleStudent)
	req, err := f.svc.Marketplace.PostRequest(f.ctx, other.ID, requestInput())
	require.NoError(t, err)
	p := f.propose(t, f.coach.ID, req.ID)
	c2, err := f.svc.Marketplace.AcceptProposal(f.ctx, other.ID, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Contracts.CoachAccept(f.ctx, f.coach.ID, c2.ID)
	require.NoError(t, err)
	_, err = f.svc.Contracts.MarkPaymentPaid(f.ctx, c2.ID, "pi_456")
	require.NoError(t, err)

	_, err = f.svc.Scheduling.ScheduleSession(f.ctx, other.ID, ScheduleSessionInput{
		ContractID:  c2.ID,
		ScheduledAt: at.Add(30 * time.Minute),
	})
	assertKind(t, err, KindConflict, ReasonConflicts)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	require.Len(t, svcErr.Conflicts, 1)
	assert.Equal(t, booked.ID, svcErr.Conflicts[0].ID)

	// встык к занятому окну можно
	_, err = f.svc.Scheduling.ScheduleSession(f.ctx, other.ID, ScheduleSessionInput{
		ContractID:  c2.ID,
		ScheduledAt: at.Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestScheduleSessionFromLocalTime(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)

	s, err := f.svc.Scheduling.ScheduleSession(f.ctx, f.coach.ID, ScheduleSessionInput{
		ContractID: c.ID,
		Date:       "2025-07-01",
		Time:       "16:00",
		Timezone:   "Europe/Berlin",
	})
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2025-07-01T14:00:00Z"), s.ScheduledAt)
	assert.Equal(t, "Europe/Berlin", s.Timezone)
	assert.NotEmpty(t, s.CalendarEventID)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationSessionScheduled)

	_, err = f.svc.Scheduling.ScheduleSession(f.ctx, f.coach.ID, ScheduleSessionInput{ContractID: c.ID})
	assertKind(t, err, KindValidation, "scheduled_at")

	_, err = f.svc.Scheduling.ScheduleSession(f.ctx, f.coach.ID, ScheduleSessionInput{
		ContractID:  c.ID,
		ScheduledAt: f.clock.Now().Add(-time.Hour),
	})
	assertKind(t, err, KindValidation, ReasonPastTime)
}

func TestValidateMeetingURL(t *testing.T) {
	f := newFixtureWith(t, Policy{MeetingProviders: []string{"zoom.us", "meet.google.com"}}, nil)

	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://meet.google.com/abc-defg-hij", true},
		{"https://us02web.zoom.us/j/123", true},
		{"http://zoom.us/j/123", false},
		{"https://notzoom.us/j/123", false},
		{"https://evil.example.com/zoom.us", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		_, err := f.svc.Scheduling.ValidateMeetingURL(tt.raw)
		if tt.ok {
			assert.NoError(t, err, tt.raw)
		} else {
			assert.Equal(t, KindValidation, KindOf(err), tt.raw)
		}
	}
}

func TestScheduleCallRules(t *testing.T) {
	f := newFixture(t)
	at := mustTime(t, "2025-07-01T10:00:00Z")

	_, err := f.svc.Scheduling.ScheduleCall(f.ctx, f.student.ID, ScheduleCallInput{
		CoachID:         f.coach.ID,
		StudentID:       f.student.ID,
		CallType:        model.CallTypePaid,
		ScheduledAt:     at,
		DurationMinutes: 30,
	})
	assertKind(t, err, KindValidation, "price")

	outsider := f.signup(t, "olga@example.com", model.RoleStudent)
	_, err = f.svc.Scheduling.ScheduleCall(f.ctx, outsider.ID, ScheduleCallInput{
		CoachID:     f.coach.ID,
		StudentID:   f.student.ID,
		CallType:    model.CallTypeFreeConsultation,
		ScheduledAt: at,
	})
	assertKind(t, err, KindNotAllowed, ReasonNotParty)

	call, err := f.svc.Scheduling.ScheduleCall(f.ctx, f.coach.ID, ScheduleCallInput{
		CoachID:         f.coach.ID,
		StudentID:       f.student.ID,
		CallType:        model.CallTypePaid,
		ScheduledAt:     at,
		DurationMinutes: 45,
		Price:           model.Dollars(40),
	})
	require.NoError(t, err)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationCallScheduled)

	// звонок занимает календарь коуча так же, как занятие
	c := f.activeContract(t)
	_, err = f.svc.Scheduling.ScheduleSession(f.ctx, f.student.ID, ScheduleSessionInput{
		ContractID:  c.ID,
		ScheduledAt: at.Add(15 * time.Minute),
	})
	assertKind(t, err, KindConflict, ReasonConflicts)

	_, err = f.svc.Scheduling.CancelCall(f.ctx, f.student.ID, call.ID)
	require.NoError(t, err)
	f.schedule(t, c.ID, at.Add(15*time.Minute))
}

func TestUpcomingForUser(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	f.schedule(t, c.ID, mustTime(t, "2025-07-02T10:00:00Z"))
	_, err := f.svc.Scheduling.ScheduleCall(f.ctx, f.student.ID, ScheduleCallInput{
		CoachID:     f.coach.ID,
		StudentID:   f.student.ID,
		CallType:    model.CallTypeFreeConsultation,
		ScheduledAt: mustTime(t, "2025-07-01T10:00:00Z"),
	})
	require.NoError(t, err)

	items, err := f.svc.Scheduling.UpcomingForUser(f.ctx, f.coach.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.ReservationCall, items[0].Kind)
	assert.Equal(t, model.ReservationSession, items[1].Kind)
	assert.Equal(t, f.student.ID, items[0].CounterpartyID)
}

func TestPendingRescheduleClosedWhenSessionStarts(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	now := f.clock.Now()
	s := f.schedule(t, c.ID, now.Add(3*time.Hour))

	_, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.student.ID, s.ID, RescheduleInput{Reason: "train got cancelled"})
	require.NoError(t, err)

	f.clock.Set(s.ScheduledAt.Add(-4 * time.Minute))
	rep := f.sweep(t)
	assert.Equal(t, 1, rep.Activated)

	active := f.session(t, s.ID)
	assert.Equal(t, model.MeetingStatusActive, active.Status)
	assert.False(t, active.RescheduleRequested)
	assert.Nil(t, active.RescheduleDeadline)
	assert.Contains(t, f.notificationTypes(t, f.student.ID), model.NotificationRescheduleExpired)

	later := f.clock.Now().Add(20 * time.Hour)
	_, err = f.svc.Scheduling.ApproveReschedule(f.ctx, f.coach.ID, s.ID, &later)
	assertKind(t, err, KindNotAllowed, "no_pending_request")

	// запрос, оставшийся на активном занятии, не может его перенести
	deadline := f.clock.Now().Add(time.Hour)
	active.RescheduleRequested = true
	active.RescheduleRequestedBy = model.RoleStudent
	active.RescheduleDeadline = &deadline
	require.NoError(t, f.store.Repos().Sessions.Update(f.ctx, active))

	_, err = f.svc.Scheduling.ApproveReschedule(f.ctx, f.coach.ID, s.ID, &later)
	assertKind(t, err, KindNotAllowed, "not_scheduled")
	_, err = f.svc.Scheduling.DeclineReschedule(f.ctx, f.coach.ID, s.ID)
	assertKind(t, err, KindNotAllowed, "not_scheduled")

	kept := f.session(t, s.ID)
	assert.Equal(t, s.ScheduledAt, kept.ScheduledAt)
	assert.True(t, kept.AutoActivated)

	f.clock.Set(s.ScheduledAt.Add(2 * time.Hour))
	assert.Equal(t, 1, f.sweep(t).Completed)
	done := f.session(t, s.ID)
	assert.Equal(t, model.MeetingStatusCompleted, done.Status)
	assert.False(t, done.RescheduleRequested)
	assert.Equal(t, 1, f.contract(t, c.ID).CompletedSessions)
}

func TestPendingRescheduleClosedByManualTransitions(t *testing.T) {
	f := newFixture(t)
	c := f.activeContract(t)
	now := f.clock.Now()
	started := f.schedule(t, c.ID, now.Add(2*time.Hour))
	completed := f.schedule(t, c.ID, now.Add(4*time.Hour))

	for _, id := range []int64{started.ID, completed.ID} {
		_, err := f.svc.Scheduling.RequestReschedule(f.ctx, f.student.ID, id, RescheduleInput{Reason: "train got cancelled"})
		require.NoError(t, err)
	}

	f.clock.Set(started.ScheduledAt.Add(-5 * time.Minute))
	_, err := f.svc.Meetings.StartSession(f.ctx, f.coach.ID, started.ID)
	require.NoError(t, err)
	assert.False(t, f.session(t, started.ID).RescheduleRequested)

	f.clock.Set(completed.ScheduledAt.Add(5 * time.Minute))
	_, err = f.svc.Meetings.CompleteSession(f.ctx, f.coach.ID, completed.ID, "covered channels")
	require.NoError(t, err)
	assert.False(t, f.session(t, completed.ID).RescheduleRequested)

	_, err = f.svc.Scheduling.ApproveReschedule(f.ctx, f.coach.ID, completed.ID, nil)
	assertKind(t, err, KindNotAllowed, "no_pending_request")
	assert.Equal(t, completed.ScheduledAt, f.session(t, completed.ID).ScheduledAt)
}

func TestMeetingProvidersDefaultToAllowList(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Scheduling.ValidateMeetingURL("https://meet.google.com/abc-defg-hij")
	assert.NoError(t, err)

	_, err = f.svc.Scheduling.ValidateMeetingURL("https://rooms.example.com/abc")
	assertKind(t, err, KindValidation, "meeting_url")
}
