package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
	"github.com/Freeeeeet/coach_marketplace/internal/timezone"
)

// Исход запроса на перенос
const (
	RescheduleAutoApproved    = "auto_approved"
	ReschedulePendingApproval = "pending_approval"
)

type ScheduleSessionInput struct {
	ContractID int64 `json:"contract_id" validate:"required"`
	// ScheduledAt момент в UTC; если пуст, используются Date, Time и Timezone
	ScheduledAt time.Time `json:"scheduled_at"`
	Date        string    `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time        string    `json:"time" validate:"omitempty,datetime=15:04"`
	Timezone    string    `json:"timezone" validate:"omitempty,iana"`
	Title       string    `json:"title" validate:"max=200"`
	MeetingURL  string    `json:"meeting_url" validate:"omitempty,max=500"`
}

type RescheduleInput struct {
	Reason       string     `json:"reason"`
	ProposedTime *time.Time `json:"proposed_time"`
}

type ScheduleCallInput struct {
	CoachID         int64          `json:"coach_id" validate:"required"`
	StudentID       int64          `json:"student_id" validate:"required"`
	CallType        model.CallType `json:"call_type" validate:"required,oneof=free_consultation paid_call"`
	ScheduledAt     time.Time      `json:"scheduled_at" validate:"required"`
	DurationMinutes int            `json:"duration_minutes" validate:"gte=0,max=480"`
	Price           model.Money    `json:"price" validate:"gte=0"`
	Title           string         `json:"title" validate:"max=200"`
	Notes           string         `json:"notes" validate:"max=2000"`
	MeetingURL      string         `json:"meeting_url" validate:"omitempty,max=500"`
}

// RescheduleResult итог запроса на перенос
type RescheduleResult struct {
	Outcome string         `json:"outcome"`
	Session *model.Session `json:"session"`
}

// AgendaItem ближайшая встреча пользователя
type AgendaItem struct {
	model.Reservation
	Status         model.MeetingStatus `json:"status"`
	CounterpartyID int64               `json:"counterparty_id"`
	MeetingURL     string              `json:"meeting_url,omitempty"`
	Display        string              `json:"display"`
}

// SchedulingService бронирование занятий и звонков, переносы
type SchedulingService struct {
	store         repository.Store
	availability  *AvailabilityService
	notifications *NotificationService
	providers     []string
	now           Clock
	logger        *zap.Logger
}

func NewSchedulingService(store repository.Store, availability *AvailabilityService, notifications *NotificationService, policy Policy, clock Clock, logger *zap.Logger) *SchedulingService {
	return &SchedulingService{
		store:         store,
		availability:  availability,
		notifications: notifications,
		providers:     policy.MeetingProviders,
		now:           clock,
		logger:        logger,
	}
}

// ValidateMeetingURL ссылка должна вести на один из разрешённых сервисов встреч
func (s *SchedulingService) ValidateMeetingURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", validationErr("meeting_url", "meeting url %q is not a valid url", raw)
	}
	if u.Scheme != "https" {
		return "", validationErr("meeting_url", "meeting url must use https")
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range s.providers {
		p = strings.ToLower(p)
		if host == p || strings.HasSuffix(host, "."+p) {
			return u.String(), nil
		}
	}
	return "", validationErr("meeting_url", "meeting provider %s is not supported", host)
}

// lowestFreeNumber наименьший номер занятия, не занятый неотменёнными занятиями
func lowestFreeNumber(used []int, total int) (int, bool) {
	taken := make(map[int]bool, len(used))
	for _, n := range used {
		taken[n] = true
	}
	for n := 1; n <= total; n++ {
		if !taken[n] {
			return n, true
		}
	}
	return 0, false
}

// resolveStart переводит вход в момент UTC
func resolveStart(in ScheduleSessionInput, actor *model.User) (time.Time, string, error) {
	zone := in.Timezone
	if zone == "" {
		zone = actor.Timezone
	}
	if zone == "" {
		zone = "UTC"
	}
	if !in.ScheduledAt.IsZero() {
		return in.ScheduledAt.UTC(), zone, nil
	}
	if in.Date == "" || in.Time == "" {
		return time.Time{}, "", validationErr("scheduled_at", "either scheduled_at or date and time are required")
	}
	at, err := timezone.ParseLocal(in.Date, in.Time, zone)
	if err != nil {
		return time.Time{}, "", validationErr("scheduled_at", "%v", err)
	}
	return at, zone, nil
}

func renderFor(u *model.User, t time.Time) string {
	return timezone.Render(t, u.Timezone)
}

// ScheduleSession планирует следующее занятие по оплаченному активному контракту
func (s *SchedulingService) ScheduleSession(ctx context.Context, actorID int64, in ScheduleSessionInput) (*model.Session, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	meetingURL := ""
	if strings.TrimSpace(in.MeetingURL) != "" {
		var err error
		if meetingURL, err = s.ValidateMeetingURL(in.MeetingURL); err != nil {
			return nil, err
		}
	}
	now := s.now()

	var (
		session *model.Session
		out     outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		actor, err := loadUser(ctx, r, actorID)
		if err != nil {
			return err
		}
		start, zone, err := resolveStart(in, actor)
		if err != nil {
			return err
		}

		c, err := r.Contracts.GetForUpdate(ctx, in.ContractID)
		if err != nil {
			return notFound("contract", err)
		}
		role := c.RoleOf(actorID)
		if role == model.RoleNone {
			return notAllowed(ReasonNotParty, "user %d is not a party of contract %d", actorID, c.ID)
		}
		if err := ensureSchedulable(c); err != nil {
			return err
		}

		// Брони одного коуча сериализуются до конца транзакции
		if err := r.Locks.LockCoachCalendar(ctx, c.CoachID); err != nil {
			return fmt.Errorf("lock coach calendar: %w", err)
		}

		used, err := r.Sessions.UsedNumbers(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("list session numbers: %w", err)
		}
		number, ok := lowestFreeNumber(used, c.TotalSessions)
		if !ok {
			return notAllowed(ReasonNoSessionsLeft, "all %d sessions of contract %s are booked", c.TotalSessions, c.ContractNumber)
		}

		duration := time.Duration(c.DurationMinutes) * time.Minute
		avail, err := s.availability.check(ctx, r, c.CoachID, start, start.Add(duration), 0, 0)
		if err != nil {
			return err
		}
		if err := availabilityErr(avail); err != nil {
			return err
		}

		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = fmt.Sprintf("%s: session %d of %d", c.Title, number, c.TotalSessions)
		}
		session = &model.Session{
			ProposalID:      c.ProposalID,
			ContractID:      c.ID,
			CoachID:         c.CoachID,
			StudentID:       c.StudentID,
			SessionNumber:   number,
			Title:           title,
			CalendarEventID: uuid.NewString(),
			Meeting: model.Meeting{
				ScheduledAt:      start,
				DurationMinutes:  c.DurationMinutes,
				Timezone:         zone,
				Status:           model.MeetingStatusScheduled,
				MeetingURL:       meetingURL,
				EarlyJoinEnabled: true,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Sessions.Create(ctx, session); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &Error{Kind: KindConflict, Reason: "session_number", Err: err}
			}
			return fmt.Errorf("create session: %w", err)
		}

		counterparty, err := loadUser(ctx, r, c.Counterparty(actorID))
		if err != nil {
			return err
		}
		_, err = postCard(ctx, r, card{
			Type:        model.MessageTypeSessionScheduled,
			SenderID:    actorID,
			SenderRole:  role,
			RecipientID: counterparty.ID,
			Content:     fmt.Sprintf("Session %d scheduled for %s", number, renderFor(counterparty, start)),
			Payload: map[string]any{
				"session_id":       session.ID,
				"contract_id":      c.ID,
				"session_number":   number,
				"scheduled_at":     start,
				"duration_minutes": session.DurationMinutes,
				"meeting_url":      meetingURL,
			},
		}, now)
		if err != nil {
			return err
		}

		return out.add(ctx, r, note(counterparty.ID, model.NotificationSessionScheduled,
			"Session scheduled",
			fmt.Sprintf("%s scheduled session %d of %s for %s.", actor.FullName(), number, c.ContractNumber, renderFor(counterparty, start)),
			model.RelatedSession, session.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Session scheduled",
		zap.Int64("session_id", session.ID),
		zap.Int64("contract_id", session.ContractID),
		zap.Int("session_number", session.SessionNumber),
		zap.Time("scheduled_at", session.ScheduledAt),
	)
	return session, nil
}

// sessionForParty занятие под блокировкой и роль пользователя в нём
func sessionForParty(ctx context.Context, r repository.Repos, userID, sessionID int64) (*model.Session, model.Role, error) {
	session, err := r.Sessions.GetForUpdate(ctx, sessionID)
	if err != nil {
		return nil, model.RoleNone, notFound("session", err)
	}
	role := session.RoleOf(userID)
	if role == model.RoleNone {
		return nil, model.RoleNone, notAllowed(ReasonNotParty, "user %d is not a party of session %d", userID, sessionID)
	}
	return session, role, nil
}

// sessionContractGate перенос по контракту тоже проходит платёжный шлюз
func sessionContractGate(ctx context.Context, r repository.Repos, session *model.Session) error {
	c, err := r.Contracts.GetByID(ctx, session.ContractID)
	if err != nil {
		return notFound("contract", err)
	}
	return ensureSchedulable(c)
}

// SetMeetingURL ссылка на встречу задаётся стороной занятия
func (s *SchedulingService) SetMeetingURL(ctx context.Context, actorID, sessionID int64, rawURL string) (*model.Session, error) {
	meetingURL, err := s.ValidateMeetingURL(rawURL)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var session *model.Session
	err = s.store.InTx(ctx, func(r repository.Repos) error {
		sess, _, err := sessionForParty(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}
		if !sess.Reserves() {
			return notAllowed(ReasonNotActive, "session %d is %s", sessionID, sess.Status)
		}
		sess.MeetingURL = meetingURL
		sess.UpdatedAt = now
		if err := r.Sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// moveSession переносит занятие на at после проверки занятости коуча
func (s *SchedulingService) moveSession(ctx context.Context, r repository.Repos, session *model.Session, at time.Time, now time.Time) error {
	if err := r.Locks.LockCoachCalendar(ctx, session.CoachID); err != nil {
		return fmt.Errorf("lock coach calendar: %w", err)
	}
	at = at.UTC()
	avail, err := s.availability.check(ctx, r, session.CoachID, at, at.Add(session.Duration()), session.ID, 0)
	if err != nil {
		return err
	}
	if err := availabilityErr(avail); err != nil {
		return err
	}
	session.MoveTo(at, now)
	return nil
}

// RequestReschedule запрос на перенос.
// Вне 5-часового окна перенос применяется сразу; внутри окна его может
// запросить только студент, и нужно согласие коуча в течение 24 часов
func (s *SchedulingService) RequestReschedule(ctx context.Context, actorID, sessionID int64, in RescheduleInput) (*RescheduleResult, error) {
	reason := strings.TrimSpace(in.Reason)
	if len([]rune(reason)) < model.MinRescheduleReasonChars {
		return nil, validationErr("reason", "reason must be at least %d characters", model.MinRescheduleReasonChars)
	}
	now := s.now()
	if in.ProposedTime != nil && in.ProposedTime.Before(now.Add(model.MinRescheduleLead)) {
		return nil, validationErr("proposed_time", "proposed time must be at least %s from now", model.MinRescheduleLead)
	}

	var (
		result *RescheduleResult
		out    outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		session, role, err := sessionForParty(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}
		if err := session.CanRequestReschedule(role, now); err != nil {
			return transitionErr(err)
		}
		if err := sessionContractGate(ctx, r, session); err != nil {
			return err
		}
		counterparty, err := loadUser(ctx, r, session.Counterparty(actorID))
		if err != nil {
			return err
		}

		if !session.WithinRescheduleCutoff(now) {
			if in.ProposedTime != nil {
				if err := s.moveSession(ctx, r, session, *in.ProposedTime, now); err != nil {
					return err
				}
			}
			session.UpdatedAt = now
			if err := r.Sessions.Update(ctx, session); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
			result = &RescheduleResult{Outcome: RescheduleAutoApproved, Session: session}
			return out.add(ctx, r, note(counterparty.ID, model.NotificationSessionRescheduled,
				"Session rescheduled",
				fmt.Sprintf("Session %d was rescheduled to %s. Reason: %s", session.SessionNumber, renderFor(counterparty, session.ScheduledAt), reason),
				model.RelatedSession, session.ID, now))
		}

		session.OpenRescheduleRequest(role, reason, in.ProposedTime, now)
		if err := r.Sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		content := fmt.Sprintf("Reschedule requested for session %d: %s", session.SessionNumber, reason)
		if in.ProposedTime != nil {
			content += fmt.Sprintf(". Proposed time: %s", renderFor(counterparty, *in.ProposedTime))
		}
		_, err = postCard(ctx, r, card{
			Type:        model.MessageTypeSystem,
			SenderID:    actorID,
			SenderRole:  role,
			RecipientID: counterparty.ID,
			Content:     content,
			Payload: map[string]any{
				"session_id":    session.ID,
				"proposed_time": in.ProposedTime,
				"deadline":      session.RescheduleDeadline,
			},
		}, now)
		if err != nil {
			return err
		}

		result = &RescheduleResult{Outcome: ReschedulePendingApproval, Session: session}
		return out.add(ctx, r, note(counterparty.ID, model.NotificationRescheduleRequested,
			"Reschedule requested",
			content+". Please respond within 24 hours.",
			model.RelatedSession, session.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Reschedule requested",
		zap.Int64("session_id", sessionID),
		zap.Int64("user_id", actorID),
		zap.String("outcome", result.Outcome),
	)
	return result, nil
}

// pendingForResponder ожидающий запрос, на который может ответить только вторая сторона
func pendingForResponder(ctx context.Context, r repository.Repos, actorID, sessionID int64) (*model.Session, error) {
	session, role, err := sessionForParty(ctx, r, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.RescheduleRequested {
		return nil, notAllowed("no_pending_request", "session %d has no pending reschedule request", sessionID)
	}
	if session.Status != model.MeetingStatusScheduled {
		return nil, notAllowed("not_scheduled", "session %d is %s", sessionID, session.Status)
	}
	if role == session.RescheduleRequestedBy {
		return nil, notAllowed("own_request", "cannot respond to own reschedule request")
	}
	return session, nil
}

func requesterID(session *model.Session) int64 {
	if session.RescheduleRequestedBy == model.RoleCoach {
		return session.CoachID
	}
	return session.StudentID
}

// ApproveReschedule согласие второй стороны: новое время из запроса или указанное
func (s *SchedulingService) ApproveReschedule(ctx context.Context, actorID, sessionID int64, newTime *time.Time) (*model.Session, error) {
	now := s.now()

	var (
		session *model.Session
		out     outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := pendingForResponder(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}

		target := newTime
		if target == nil {
			target = sess.RescheduleProposedTime
		}
		if target != nil {
			if target.Before(now.Add(model.MinRescheduleLead)) {
				return validationErr("proposed_time", "new time must be at least %s from now", model.MinRescheduleLead)
			}
			if err := sessionContractGate(ctx, r, sess); err != nil {
				return err
			}
			if err := s.moveSession(ctx, r, sess, *target, now); err != nil {
				return err
			}
		}

		requester, err := loadUser(ctx, r, requesterID(sess))
		if err != nil {
			return err
		}
		sess.ClearRescheduleRequest()
		sess.UpdatedAt = now
		if err := r.Sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session = sess

		return out.add(ctx, r, note(requester.ID, model.NotificationRescheduleApproved,
			"Reschedule approved",
			fmt.Sprintf("Session %d is now at %s.", sess.SessionNumber, renderFor(requester, sess.ScheduledAt)),
			model.RelatedSession, sess.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Reschedule approved",
		zap.Int64("session_id", sessionID),
		zap.Int64("user_id", actorID),
		zap.Time("scheduled_at", session.ScheduledAt),
	)
	return session, nil
}

// DeclineReschedule отказ: время занятия не меняется
func (s *SchedulingService) DeclineReschedule(ctx context.Context, actorID, sessionID int64) (*model.Session, error) {
	now := s.now()

	var (
		session *model.Session
		out     outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := pendingForResponder(ctx, r, actorID, sessionID)
		if err != nil {
			return err
		}
		requester := requesterID(sess)
		sess.ClearRescheduleRequest()
		sess.UpdatedAt = now
		if err := r.Sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session = sess

		return out.add(ctx, r, note(requester, model.NotificationRescheduleDeclined,
			"Reschedule declined",
			fmt.Sprintf("Your reschedule request for session %d was declined. The original time stays.", sess.SessionNumber),
			model.RelatedSession, sess.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Reschedule declined", zap.Int64("session_id", sessionID), zap.Int64("user_id", actorID))
	return session, nil
}

// expireReschedule просроченный запрос считается отклонённым
func expireReschedule(ctx context.Context, r repository.Repos, sessionID int64, now time.Time, out *outbox) (bool, error) {
	sess, err := r.Sessions.GetForUpdate(ctx, sessionID)
	if err != nil {
		return false, notFound("session", err)
	}
	if !sess.RescheduleExpired(now) {
		return false, nil
	}
	requester := requesterID(sess)
	sess.ClearRescheduleRequest()
	sess.UpdatedAt = now
	if err := r.Sessions.Update(ctx, sess); err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	err = out.add(ctx, r, note(requester, model.NotificationRescheduleExpired,
		"Reschedule request expired",
		fmt.Sprintf("Your reschedule request for session %d got no answer within 24 hours. The original time stays.", sess.SessionNumber),
		model.RelatedSession, sess.ID, now))
	return err == nil, err
}

// ScheduleCall бесплатная 15-минутная консультация или платный звонок вне контракта
func (s *SchedulingService) ScheduleCall(ctx context.Context, actorID int64, in ScheduleCallInput) (*model.ScheduledCall, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	switch in.CallType {
	case model.CallTypeFreeConsultation:
		in.DurationMinutes = model.FreeConsultationLen
		in.Price = 0
	case model.CallTypePaid:
		if in.DurationMinutes <= 0 {
			return nil, validationErr("duration_minutes", "paid call requires a duration")
		}
		if in.Price <= 0 {
			return nil, validationErr("price", "paid call requires a price")
		}
	}
	if in.CoachID == in.StudentID {
		return nil, validationErr("student_id", "coach and student must differ")
	}
	meetingURL := ""
	if strings.TrimSpace(in.MeetingURL) != "" {
		var err error
		if meetingURL, err = s.ValidateMeetingURL(in.MeetingURL); err != nil {
			return nil, err
		}
	}
	now := s.now()

	var (
		call *model.ScheduledCall
		out  outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		if actorID != in.CoachID && actorID != in.StudentID {
			return notAllowed(ReasonNotParty, "user %d is not a party of the call", actorID)
		}
		coach, err := loadUser(ctx, r, in.CoachID)
		if err != nil {
			return err
		}
		student, err := loadUser(ctx, r, in.StudentID)
		if err != nil {
			return err
		}
		if !coach.IsCoach || !student.IsStudent {
			return notAllowed(ReasonWrongRole, "call requires a coach and a student")
		}
		profile, err := r.Profiles.GetCoach(ctx, coach.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("get coach profile: %w", err)
		}
		if profile == nil || !profile.IsBookable() {
			return notAllowed(ReasonNotApproved, "coach %d is not bookable", coach.ID)
		}

		if err := r.Locks.LockCoachCalendar(ctx, coach.ID); err != nil {
			return fmt.Errorf("lock coach calendar: %w", err)
		}
		start := in.ScheduledAt.UTC()
		avail, err := s.availability.check(ctx, r, coach.ID, start, start.Add(time.Duration(in.DurationMinutes)*time.Minute), 0, 0)
		if err != nil {
			return err
		}
		if err := availabilityErr(avail); err != nil {
			return err
		}

		actor, other := coach, student
		if actorID == student.ID {
			actor, other = student, coach
		}
		call = &model.ScheduledCall{
			CoachID:   coach.ID,
			StudentID: student.ID,
			CallType:  in.CallType,
			Title:     strings.TrimSpace(in.Title),
			Price:     in.Price,
			Notes:     strings.TrimSpace(in.Notes),
			Meeting: model.Meeting{
				ScheduledAt:      start,
				DurationMinutes:  in.DurationMinutes,
				Timezone:         actor.Timezone,
				Status:           model.MeetingStatusScheduled,
				MeetingURL:       meetingURL,
				EarlyJoinEnabled: true,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Calls.Create(ctx, call); err != nil {
			return fmt.Errorf("create call: %w", err)
		}

		msgType := model.MessageTypeCallScheduled
		label := "Paid call"
		if call.CallType == model.CallTypeFreeConsultation {
			msgType = model.MessageTypeFreeConsultation
			label = "Free consultation"
		}
		callID := call.ID
		_, err = postCard(ctx, r, card{
			Type:        msgType,
			SenderID:    actor.ID,
			SenderRole:  call.RoleOf(actor.ID),
			RecipientID: other.ID,
			Content:     fmt.Sprintf("%s scheduled for %s", label, renderFor(other, start)),
			Payload: map[string]any{
				"call_id":          call.ID,
				"call_type":        call.CallType,
				"scheduled_at":     start,
				"duration_minutes": call.DurationMinutes,
				"price":            call.Price.String(),
				"meeting_url":      meetingURL,
			},
			CallID: &callID,
		}, now)
		if err != nil {
			return err
		}

		return out.add(ctx, r, note(other.ID, model.NotificationCallScheduled,
			label+" scheduled",
			fmt.Sprintf("%s booked a %d-minute call for %s.", actor.FullName(), call.DurationMinutes, renderFor(other, start)),
			model.RelatedCall, call.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Call scheduled",
		zap.Int64("call_id", call.ID),
		zap.String("call_type", string(call.CallType)),
		zap.Int64("coach_id", call.CoachID),
		zap.Time("scheduled_at", call.ScheduledAt),
	)
	return call, nil
}

// CancelCall отмена звонка любой из сторон, только из scheduled
func (s *SchedulingService) CancelCall(ctx context.Context, actorID, callID int64) (*model.ScheduledCall, error) {
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
		if err := c.Cancel(); err != nil {
			return transitionErr(err)
		}
		c.UpdatedAt = now
		if err := r.Calls.Update(ctx, c); err != nil {
			return fmt.Errorf("update call: %w", err)
		}
		call = c

		other, err := loadUser(ctx, r, c.Counterparty(actorID))
		if err != nil {
			return err
		}
		return out.add(ctx, r, note(other.ID, model.NotificationSessionCancelled,
			"Call cancelled",
			fmt.Sprintf("The call planned for %s was cancelled.", renderFor(other, c.ScheduledAt)),
			model.RelatedCall, c.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Call cancelled", zap.Int64("call_id", callID), zap.Int64("user_id", actorID))
	return call, nil
}

// UpcomingForUser ближайшие занятия и звонки, время в часовом поясе пользователя
func (s *SchedulingService) UpcomingForUser(ctx context.Context, userID int64) ([]AgendaItem, error) {
	r := s.store.Repos()
	user, err := loadUser(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	sessions, err := r.Sessions.ListUpcomingForUser(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list upcoming sessions: %w", err)
	}
	calls, err := r.Calls.ListUpcomingForUser(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list upcoming calls: %w", err)
	}

	items := make([]AgendaItem, 0, len(sessions)+len(calls))
	for _, sess := range sessions {
		items = append(items, AgendaItem{
			Reservation:    model.SessionReservation(sess),
			Status:         sess.Status,
			CounterpartyID: sess.Counterparty(userID),
			MeetingURL:     sess.MeetingURL,
			Display:        renderFor(user, sess.ScheduledAt),
		})
	}
	for _, c := range calls {
		items = append(items, AgendaItem{
			Reservation:    model.CallReservation(c),
			Status:         c.Status,
			CounterpartyID: c.Counterparty(userID),
			MeetingURL:     c.MeetingURL,
			Display:        renderFor(user, c.ScheduledAt),
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Start.Before(items[j].Start) })
	return items, nil
}
