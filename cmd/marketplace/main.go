package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Freeeeeet/coach_marketplace/internal/app"
	"github.com/Freeeeeet/coach_marketplace/internal/auth"
	"github.com/Freeeeeet/coach_marketplace/internal/config"
	"github.com/Freeeeeet/coach_marketplace/internal/controller"
	"github.com/Freeeeeet/coach_marketplace/internal/notify"
	"github.com/Freeeeeet/coach_marketplace/internal/repository/postgres"
	"github.com/Freeeeeet/coach_marketplace/internal/service"
)

const (
	sweeperTimeout = 50 * time.Second
	sweeperLease   = time.Minute
	tokenTTL       = 7 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Marketplace stopped with error", zap.Error(err))
	}
	logger.Info("Marketplace stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting marketplace",
		zap.String("environment", cfg.Environment),
		zap.Bool("test_mode", cfg.TestMode),
		zap.Bool("telegram", cfg.TelegramToken != ""),
		zap.Bool("mail", cfg.MailEnabled()),
	)

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if cfg.MigrationsEnabled {
		if err := migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	hours, err := cfg.Policy.Hours()
	if err != nil {
		return fmt.Errorf("working hours: %w", err)
	}

	var senders []notify.Sender
	if cfg.MailEnabled() {
		senders = append(senders, notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.MailServer,
			Port:     cfg.MailPort,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			From:     cfg.MailFrom,
		}))
	} else {
		senders = append(senders, notify.NewLogMailer(logger))
	}

	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("create amqp publisher: %w", err)
		}
		defer publisher.Close()
		senders = append(senders, publisher)
	}

	var telegram *bot.Bot
	if cfg.TelegramToken != "" {
		telegram, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		senders = append(senders, notify.NewTelegramNotifier(telegram))
	}

	svc := service.New(service.Deps{
		Store:  postgres.NewStore(pool),
		Sender: notify.NewMulti(senders...),
		Tokens: auth.NewTokenIssuer(cfg.SecretKey, tokenTTL),
		Logger: logger,
		Policy: service.Policy{
			WorkingHours:      hours,
			MeetingProviders:  cfg.Policy.Providers(),
			CommonTimezones:   cfg.Policy.CommonTimezones,
			BookingHorizon:    cfg.Policy.BookingHorizon(),
			TestMode:          cfg.TestMode,
			EmailVerification: cfg.EmailVerification,
			BaseURL:           cfg.BaseURL,
		},
	})

	// без Redis sweeper работает без координации: подходит для одного экземпляра
	var lease app.Lease
	if cfg.RedisAddr != "" {
		redisLease, err := app.NewRedisLease(cfg.RedisAddr, "marketplace:sweeper", sweeperLease)
		if err != nil {
			return fmt.Errorf("create sweeper lease: %w", err)
		}
		defer redisLease.Close()
		lease = redisLease
	}

	scheduler := app.NewScheduler(logger, lease)
	if err := scheduler.Add("sweeper", cfg.SweeperSchedule, sweeperTimeout, svc.Sweeper.Run); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	if telegram != nil {
		ctrl := controller.NewBotController(telegram, svc, cfg.AdminPassword, logger)
		if err := ctrl.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands menu not set", zap.Error(err))
		}
		g.Go(func() error {
			return ctrl.Start(gctx)
		})
	}

	return g.Wait()
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
