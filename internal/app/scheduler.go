package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job фоновая задача. Ошибка логируется, следующие запуски продолжаются
type Job func(ctx context.Context) error

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron   *cron.Cron
	lease  Lease
	logger *zap.Logger
	jobs   []namedJob
	// ctx из Start; запуски по расписанию отменяются вместе с ним
	ctx context.Context
}

type namedJob struct {
	name    string
	timeout time.Duration
	run     Job
}

// NewScheduler lease может быть nil: тогда задачи выполняются без координации
func NewScheduler(logger *zap.Logger, lease Lease) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		lease:  lease,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add регистрирует задачу с cron-расписанием ("@every 1m", "*/5 * * * *")
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	nj := namedJob{name: name, timeout: timeout, run: job}
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(s.ctx, nj) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs = append(s.jobs, nj)
	return nil
}

// Start первый запуск задач сразу, далее по расписанию
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Int("jobs", len(s.jobs)))
	s.ctx = ctx

	for _, job := range s.jobs {
		s.runOnce(ctx, job)
	}
	s.cron.Start()
}

// Stop останавливает расписание и ждёт завершения текущих задач
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runOnce(ctx context.Context, job namedJob) {
	if job.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.timeout)
		defer cancel()
	}

	if ctx.Err() != nil {
		return
	}

	if s.lease != nil {
		ok, err := s.lease.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("Failed to acquire job lease", zap.String("job", job.name), zap.Error(err))
			return
		}
		if !ok {
			s.logger.Debug("Job lease held by another instance", zap.String("job", job.name))
			return
		}
		defer func() {
			if err := s.lease.Release(context.Background()); err != nil {
				s.logger.Warn("Failed to release job lease", zap.String("job", job.name), zap.Error(err))
			}
		}()
	}

	started := time.Now()
	if err := job.run(ctx); err != nil {
		s.logger.Error("Background job failed", zap.String("job", job.name), zap.Error(err))
		return
	}
	s.logger.Debug("Background job finished", zap.String("job", job.name), zap.Duration("took", time.Since(started)))
}
