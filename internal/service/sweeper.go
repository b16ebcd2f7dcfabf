package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

// SweepReport счётчики одного прохода
type SweepReport struct {
	Reminders           int   `json:"reminders"`
	Activated           int   `json:"activated"`
	Completed           int   `json:"completed"`
	Missed              int   `json:"missed"`
	ExpiredReschedules  int   `json:"expired_reschedules"`
	PurgedNotifications int64 `json:"purged_notifications"`
	Failed              int   `json:"failed"`
}

func (r *SweepReport) merge(o SweepReport) {
	r.Reminders += o.Reminders
	r.Activated += o.Activated
	r.Completed += o.Completed
	r.Missed += o.Missed
	r.ExpiredReschedules += o.ExpiredReschedules
}

// Empty ничего не изменилось
func (r SweepReport) Empty() bool {
	return r == SweepReport{}
}

// Sweeper единственный фоновый обработчик, продвигающий состояние по времени
type Sweeper struct {
	store         repository.Store
	meetings      *MeetingService
	notifications *NotificationService
	now           Clock
	logger        *zap.Logger
}

func NewSweeper(store repository.Store, meetings *MeetingService, notifications *NotificationService, clock Clock, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:         store,
		meetings:      meetings,
		notifications: notifications,
		now:           clock,
		logger:        logger.Named("sweeper"),
	}
}

// entity одна транзакция на сущность; ошибка логируется и не прерывает проход
func (s *Sweeper) entity(ctx context.Context, kind string, id int64, rep *SweepReport, fn func(r repository.Repos, out *outbox, delta *SweepReport) error) {
	var (
		out   outbox
		delta SweepReport
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		return fn(r, &out, &delta)
	})
	if err != nil {
		rep.Failed++
		s.logger.Error("Failed to sweep entity",
			zap.String("kind", kind),
			zap.Int64("id", id),
			zap.Error(err),
		)
		return
	}
	rep.merge(delta)
	s.notifications.Deliver(ctx, out)
}

// Sweep один проход: занятия, звонки, просроченные переносы, очистка уведомлений.
// Ошибка возвращается только если не удалось получить списки работы
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	var rep SweepReport

	repos := s.store.Repos()
	sessions, err := repos.Sessions.ListDue(ctx, now.Add(model.ReminderLeadTime))
	if err != nil {
		return rep, fmt.Errorf("list due sessions: %w", err)
	}
	calls, err := repos.Calls.ListDue(ctx, now.Add(model.ReminderLeadTime))
	if err != nil {
		return rep, fmt.Errorf("list due calls: %w", err)
	}
	expired, err := repos.Sessions.ListExpiredReschedules(ctx, now)
	if err != nil {
		return rep, fmt.Errorf("list expired reschedules: %w", err)
	}

	for _, sess := range sessions {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		s.entity(ctx, "session", sess.ID, &rep, func(r repository.Repos, out *outbox, delta *SweepReport) error {
			return s.meetings.sweepSession(ctx, r, sess.ID, now, out, delta)
		})
	}
	for _, call := range calls {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		s.entity(ctx, "call", call.ID, &rep, func(r repository.Repos, out *outbox, delta *SweepReport) error {
			return s.meetings.sweepCall(ctx, r, call.ID, now, out, delta)
		})
	}
	for _, sess := range expired {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		s.entity(ctx, "reschedule", sess.ID, &rep, func(r repository.Repos, out *outbox, delta *SweepReport) error {
			ok, err := expireReschedule(ctx, r, sess.ID, now, out)
			if ok {
				delta.ExpiredReschedules++
			}
			return err
		})
	}

	purged, err := s.notifications.Purge(ctx)
	if err != nil {
		rep.Failed++
		s.logger.Error("Failed to purge notifications", zap.Error(err))
	}
	rep.PurgedNotifications = purged

	if rep.Empty() {
		s.logger.Debug("Sweep finished, nothing to do")
	} else {
		s.logger.Info("Sweep finished",
			zap.Int("reminders", rep.Reminders),
			zap.Int("activated", rep.Activated),
			zap.Int("completed", rep.Completed),
			zap.Int("missed", rep.Missed),
			zap.Int("expired_reschedules", rep.ExpiredReschedules),
			zap.Int64("purged_notifications", rep.PurgedNotifications),
			zap.Int("failed", rep.Failed),
		)
	}
	return rep, nil
}

// Run обёртка для планировщика фоновых задач
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
