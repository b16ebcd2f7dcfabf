package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

// JoinInfo можно ли зайти на встречу сейчас
type JoinInfo struct {
	Status            model.MeetingStatus `json:"status"`
	CanJoin           bool                `json:"can_join"`
	CanJoinEarly      bool                `json:"can_join_early"`
	MinutesUntilStart int                 `json:"minutes_until_start"`
	MeetingURL        string              `json:"meeting_url,omitempty"`
}

// MeetingService жизненный цикл занятий и звонков
type MeetingService struct {
	store         repository.Store
	notifications *NotificationService
	now           Clock
	logger        *zap.Logger
}

func NewMeetingService(store repository.Store, notifications *NotificationService, clock Clock, logger *zap.Logger) *MeetingService {
	return &MeetingService{
		store:         store,
		notifications: notifications,
		now:           clock,
		logger:        logger,
	}
}

// lockSession блокирует контракт, затем занятие: тот же порядок, что у
// отмены контракта, иначе транзакции могут взаимно заблокироваться
func lockSession(ctx context.Context, r repository.Repos, sessionID int64) (*model.Session, *model.Contract, error) {
	peek, err := r.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, notFound("session", err)
	}
	c, err := r.Contracts.GetForUpdate(ctx, peek.ContractID)
	if err != nil {
		return nil, nil, notFound("contract", err)
	}
	session, err := r.Sessions.GetForUpdate(ctx, sessionID)
	if err != nil {
		return nil, nil, notFound("session", err)
	}
	return session, c, nil
}

func lockSessionForParty(ctx context.Context, r repository.Repos, userID, sessionID int64) (*model.Session, *model.Contract, model.Role, error) {
	session, c, err := lockSession(ctx, r, sessionID)
	if err != nil {
		return nil, nil, model.RoleNone, err
	}
	role := session.RoleOf(userID)
	if role == model.RoleNone {
		return nil, nil, model.RoleNone, notAllowed(ReasonNotParty, "user %d is not a party of session %d", userID, sessionID)
	}
	return session, c, role, nil
}

// closePendingReschedule запрос переноса закрывается, как только занятие
// покинуло scheduled; инициатор получает уведомление
func closePendingReschedule(ctx context.Context, r repository.Repos, out *outbox, session *model.Session, now time.Time) error {
	if !session.RescheduleRequested {
		return nil
	}
	requester := requesterID(session)
	session.ClearRescheduleRequest()
	return out.add(ctx, r, note(requester, model.NotificationRescheduleExpired,
		"Reschedule request closed",
		fmt.Sprintf("Session %d is already %s, so your reschedule request was closed.", session.SessionNumber, session.Status),
		model.RelatedSession, session.ID, now))
}

// completeSession завершает занятие и учитывает его в контракте и заработке коуча.
// Занятие отменённого контракта завершается без учёта.
// Возвращает true если контракт завершился
func completeSession(ctx context.Context, r repository.Repos, out *outbox, session *model.Session, c *model.Contract, notes string, by model.Role, now time.Time) (bool, error) {
	if err := session.Complete(now); err != nil {
		return false, transitionErr(err)
	}
	if err := closePendingReschedule(ctx, r, out, session, now); err != nil {
		return false, err
	}
	switch by {
	case model.RoleStudent:
		session.StudentNotes = notes
	case model.RoleCoach:
		session.CoachNotes = notes
	}
	session.UpdatedAt = now
	if err := r.Sessions.Update(ctx, session); err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	if c.Status != model.ContractStatusActive {
		return false, nil
	}

	done, err := c.RecordCompletedSession(now)
	if err != nil {
		return false, transitionErr(err)
	}
	if err := r.Contracts.Update(ctx, c); err != nil {
		return false, fmt.Errorf("update contract: %w", err)
	}

	profile, err := r.Profiles.GetCoach(ctx, c.CoachID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("get coach profile: %w", err)
	default:
		profile.TotalEarnings += c.SessionEarnings()
		profile.UpdatedAt = now
		if err := r.Profiles.UpdateCoach(ctx, profile); err != nil {
			return false, fmt.Errorf("update coach earnings: %w", err)
		}
	}
	return done, nil
}

// completionNotes уведомления о проведённом занятии и, если нужно, о завершении контракта
func completionNotes(ctx context.Context, r repository.Repos, out *outbox, session *model.Session, c *model.Contract, recipients []int64, contractDone bool, now time.Time) error {
	for _, userID := range recipients {
		err := out.add(ctx, r, note(userID, model.NotificationSessionCompleted,
			"Session completed",
			fmt.Sprintf("Session %d of %d for %s is completed.", session.SessionNumber, c.TotalSessions, c.ContractNumber),
			model.RelatedSession, session.ID, now))
		if err != nil {
			return err
		}
	}
	if !contractDone {
		return nil
	}
	for _, userID := range []int64{c.StudentID, c.CoachID} {
		err := out.add(ctx, r, note(userID, model.NotificationContractCompleted,
			"Contract completed",
			fmt.Sprintf("All %d sessions of %s are completed.", c.TotalSessions, c.ContractNumber),
			model.RelatedContract, c.ID, now))
		if err != nil {
			return err
		}
	}
	return nil
}

// StartSession ручной старт, не раньше окна раннего входа
func (s *MeetingService) StartSession(ctx context.Context, actorID, sessionID int64) (*model.Session, error) {
	now := s.now()

	var (
		session *model.Session
		out     outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, _, err := sessionForParty(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}
		if err := sess.Start(now); err != nil {
			return transitionErr(err)
		}
		if err := closePendingReschedule(ctx, r, &out, sess, now); err != nil {
			return err
		}
		sess.UpdatedAt = now
		if err := r.Sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session = sess

		return out.add(ctx, r, note(sess.Counterparty(actorID), model.NotificationSessionStarted,
			"Session started",
			fmt.Sprintf("Session %d has started. Join now.", sess.SessionNumber),
			model.RelatedSession, sess.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Session started", zap.Int64("session_id", sessionID), zap.Int64("user_id", actorID))
	return session, nil
}

// CompleteSession завершение стороной занятия с заметками
func (s *MeetingService) CompleteSession(ctx context.Context, actorID, sessionID int64, notes string) (*model.Session, error) {
	now := s.now()

	var (
		session      *model.Session
		contractDone bool
		out          outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, c, role, err := lockSessionForParty(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}
		contractDone, err = completeSession(ctx, r, &out, sess, c, notes, role, now)
		if err != nil {
			return err
		}
		session = sess
		return completionNotes(ctx, r, &out, sess, c, []int64{sess.Counterparty(actorID)}, contractDone, now)
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Session completed",
		zap.Int64("session_id", sessionID),
		zap.Int64("user_id", actorID),
		zap.Bool("contract_completed", contractDone),
	)
	return session, nil
}

// MarkSessionMissed только из scheduled и после назначенного времени
func (s *MeetingService) MarkSessionMissed(ctx context.Context, actorID, sessionID int64) (*model.Session, error) {
	now := s.now()

	var (
		session *model.Session
		out     outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, _, err := sessionForParty(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}
		if err := sess.MarkMissed(now); err != nil {
			return transitionErr(err)
		}
		sess.ClearRescheduleRequest()
		sess.UpdatedAt = now
		if err := r.Sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session = sess

		return out.add(ctx, r, note(sess.Counterparty(actorID), model.NotificationSessionMissed,
			"Session missed",
			fmt.Sprintf("Session %d was marked as missed.", sess.SessionNumber),
			model.RelatedSession, sess.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Session marked missed", zap.Int64("session_id", sessionID), zap.Int64("user_id", actorID))
	return session, nil
}

// CancelSession отмена занятия, только из scheduled; номер освобождается
func (s *MeetingService) CancelSession(ctx context.Context, actorID, sessionID int64) (*model.Session, error) {
	now := s.now()

	var (
		session *model.Session
		out     outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, _, err := sessionForParty(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}
		if err := sess.Cancel(); err != nil {
			return transitionErr(err)
		}
		sess.ClearRescheduleRequest()
		sess.UpdatedAt = now
		if err := r.Sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session = sess

		return out.add(ctx, r, note(sess.Counterparty(actorID), model.NotificationSessionCancelled,
			"Session cancelled",
			fmt.Sprintf("Session %d was cancelled.", sess.SessionNumber),
			model.RelatedSession, sess.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Session cancelled", zap.Int64("session_id", sessionID), zap.Int64("user_id", actorID))
	return session, nil
}

func joinInfo(m *model.Meeting, now time.Time) JoinInfo {
	info := JoinInfo{
		Status:       m.Status,
		CanJoinEarly: m.Status == model.MeetingStatusScheduled && m.CanJoinEarly(now),
	}
	if until := m.ScheduledAt.Sub(now); until > 0 {
		info.MinutesUntilStart = int(math.Ceil(until.Minutes()))
	}
	switch m.Status {
	case model.MeetingStatusActive:
		info.CanJoin = true
	case model.MeetingStatusScheduled:
		info.CanJoin = info.CanJoinEarly || (!now.Before(m.ScheduledAt) && !m.IsMissed(now))
	}
	if info.CanJoin {
		info.MeetingURL = m.MeetingURL
	}
	return info
}

// SessionJoinInfo ссылка отдаётся только когда вход открыт
func (s *MeetingService) SessionJoinInfo(ctx context.Context, actorID, sessionID int64) (*JoinInfo, error) {
	sess, err := s.store.Repos().Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound("session", err)
	}
	if sess.RoleOf(actorID) == model.RoleNone {
		return nil, notAllowed(ReasonNotParty, "user %d is not a party of session %d", actorID, sessionID)
	}
	info := joinInfo(&sess.Meeting, s.now())
	return &info, nil
}

func (s *MeetingService) CallJoinInfo(ctx context.Context, actorID, callID int64) (*JoinInfo, error) {
	call, err := s.store.Repos().Calls.GetByID(ctx, callID)
	if err != nil {
		return nil, notFound("call", err)
	}
	if call.RoleOf(actorID) == model.RoleNone {
		return nil, notAllowed(ReasonNotParty, "user %d is not a party of call %d", actorID, callID)
	}
	info := joinInfo(&call.Meeting, s.now())
	return &info, nil
}

// mutateCall применяет переход к звонку стороны и уведомляет вторую сторону
func (s *MeetingService) mutateCall(ctx context.Context, actorID, callID int64, apply func(c *model.ScheduledCall, now time.Time) error, typ model.NotificationType, title string) (*model.ScheduledCall, error) {
	now := s.now()

	var (
		call *model.ScheduledCall
		out  outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		c, err := r.Calls.GetForUpdate(ctx, callID)
		if err != nil {
			return notFound("call", err)
		}
		if c.RoleOf(actorID) == model.RoleNone {
			return notAllowed(ReasonNotParty, "user %d is not a party of call %d", actorID, callID)
		}
		if err := apply(c, now); err != nil {
			return transitionErr(err)
		}
		c.UpdatedAt = now
		if err := r.Calls.Update(ctx, c); err != nil {
			return fmt.Errorf("update call: %w", err)
		}
		call = c

		return out.add(ctx, r, note(c.Counterparty(actorID), typ, title,
			fmt.Sprintf("%s: %s.", title, c.Title),
			model.RelatedCall, c.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Call updated",
		zap.Int64("call_id", callID),
		zap.Int64("user_id", actorID),
		zap.String("status", string(call.Status)),
	)
	return call, nil
}

func (s *MeetingService) StartCall(ctx context.Context, actorID, callID int64) (*model.ScheduledCall, error) {
	return s.mutateCall(ctx, actorID, callID, func(c *model.ScheduledCall, now time.Time) error {
		return c.Start(now)
	}, model.NotificationSessionStarted, "Call started")
}

func (s *MeetingService) CompleteCall(ctx context.Context, actorID, callID int64) (*model.ScheduledCall, error) {
	return s.mutateCall(ctx, actorID, callID, func(c *model.ScheduledCall, now time.Time) error {
		return c.Complete(now)
	}, model.NotificationSessionCompleted, "Call completed")
}

func (s *MeetingService) MarkCallMissed(ctx context.Context, actorID, callID int64) (*model.ScheduledCall, error) {
	return s.mutateCall(ctx, actorID, callID, func(c *model.ScheduledCall, now time.Time) error {
		return c.MarkMissed(now)
	}, model.NotificationSessionMissed, "Call missed")
}

// sweepSession продвигает занятие по времени: напоминание, пропуск или
// автоактивация, затем автозавершение. Каждый шаг защищён своим флагом
// или статусом, повторный проход ничего не меняет
func (s *MeetingService) sweepSession(ctx context.Context, r repository.Repos, sessionID int64, now time.Time, out *outbox, rep *SweepReport) error {
	sess, c, err := lockSession(ctx, r, sessionID)
	if err != nil {
		return err
	}
	parties := []int64{sess.StudentID, sess.CoachID}
	changed := false

	if sess.ShouldSendReminder(now) && sess.MarkReminderSent() {
		changed = true
		rep.Reminders++
		left := int(math.Ceil(sess.ScheduledAt.Sub(now).Minutes()))
		for _, userID := range parties {
			err := out.add(ctx, r, note(userID, model.NotificationSessionReminder,
				"Session reminder",
				fmt.Sprintf("Session %d of %s starts in %d minutes.", sess.SessionNumber, c.ContractNumber, left),
				model.RelatedSession, sess.ID, now))
			if err != nil {
				return err
			}
		}
	}

	if sess.IsMissed(now) {
		if err := sess.MarkMissed(now); err != nil {
			return transitionErr(err)
		}
		sess.ClearRescheduleRequest()
		changed = true
		rep.Missed++
		for _, userID := range parties {
			err := out.add(ctx, r, note(userID, model.NotificationSessionMissed,
				"Session missed",
				fmt.Sprintf("Session %d did not start within %d minutes of its time.", sess.SessionNumber, int(model.MissedGracePeriod.Minutes())),
				model.RelatedSession, sess.ID, now))
			if err != nil {
				return err
			}
		}
	} else if sess.CanAutoActivate(now) {
		activated, err := sess.AutoActivate(now)
		if err != nil {
			return transitionErr(err)
		}
		if activated {
			changed = true
			rep.Activated++
			if err := closePendingReschedule(ctx, r, out, sess, now); err != nil {
				return err
			}
			for _, userID := range parties {
				err := out.add(ctx, r, note(userID, model.NotificationSessionStarted,
					"Session started",
					fmt.Sprintf("Session %d has started. Join now.", sess.SessionNumber),
					model.RelatedSession, sess.ID, now))
				if err != nil {
					return err
				}
			}
		}
	}

	if sess.ShouldBeCompleted(now) {
		done, err := completeSession(ctx, r, out, sess, c, "", model.RoleNone, now)
		if err != nil {
			return err
		}
		rep.Completed++
		return completionNotes(ctx, r, out, sess, c, parties, done, now)
	}

	if !changed {
		return nil
	}
	sess.UpdatedAt = now
	if err := r.Sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// sweepCall те же шаги для звонка; на контракт звонок не влияет
func (s *MeetingService) sweepCall(ctx context.Context, r repository.Repos, callID int64, now time.Time, out *outbox, rep *SweepReport) error {
	call, err := r.Calls.GetForUpdate(ctx, callID)
	if err != nil {
		return notFound("call", err)
	}
	parties := []int64{call.StudentID, call.CoachID}
	changed := false

	notify := func(typ model.NotificationType, title, body string) error {
		for _, userID := range parties {
			if err := out.add(ctx, r, note(userID, typ, title, body, model.RelatedCall, call.ID, now)); err != nil {
				return err
			}
		}
		return nil
	}

	if call.ShouldSendReminder(now) && call.MarkReminderSent() {
		changed = true
		rep.Reminders++
		left := int(math.Ceil(call.ScheduledAt.Sub(now).Minutes()))
		if err := notify(model.NotificationSessionReminder, "Call reminder",
			fmt.Sprintf("%s starts in %d minutes.", call.Title, left)); err != nil {
			return err
		}
	}

	if call.IsMissed(now) {
		if err := call.MarkMissed(now); err != nil {
			return transitionErr(err)
		}
		changed = true
		rep.Missed++
		if err := notify(model.NotificationSessionMissed, "Call missed",
			fmt.Sprintf("%s did not start in time.", call.Title)); err != nil {
			return err
		}
	} else if call.CanAutoActivate(now) {
		activated, err := call.AutoActivate(now)
		if err != nil {
			return transitionErr(err)
		}
		if activated {
			changed = true
			rep.Activated++
			if err := notify(model.NotificationSessionStarted, "Call started",
				fmt.Sprintf("%s has started. Join now.", call.Title)); err != nil {
				return err
			}
		}
	}

	if call.ShouldBeCompleted(now) {
		if err := call.Complete(now); err != nil {
			return transitionErr(err)
		}
		changed = true
		rep.Completed++
	}

	if !changed {
		return nil
	}
	call.UpdatedAt = now
	if err := r.Calls.Update(ctx, call); err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return nil
}
