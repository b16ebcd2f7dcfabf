package controller

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/controller/handlers"
	"github.com/Freeeeeet/coach_marketplace/internal/controller/state"
	"github.com/Freeeeeet/coach_marketplace/internal/service"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(botInstance *bot.Bot, svc *service.Services, adminPassword string, logger *zap.Logger) *BotController {
	logger = logger.Named("bot")
	dialogs := state.NewManager(state.DefaultTTL, time.Now)

	return &BotController{
		bot:      botInstance,
		handlers: handlers.NewHandlers(svc, dialogs, adminPassword, logger),
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	// /start принимает токен привязки аргументом
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.handlers.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.handlers.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/upcoming", bot.MatchTypeExact, c.handlers.HandleUpcoming)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/join", bot.MatchTypePrefix, c.handlers.HandleJoin)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/notifications", bot.MatchTypeExact, c.handlers.HandleNotifications)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/role", bot.MatchTypePrefix, c.handlers.HandleRole)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/message", bot.MatchTypePrefix, c.handlers.HandleMessage)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/reschedule", bot.MatchTypePrefix, c.handlers.HandleReschedule)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/approve", bot.MatchTypePrefix, c.handlers.HandleApprove)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact, c.handlers.HandleCancel)

	// Обработчик текстовых сообщений (для диалогов с состояниями)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, c.handlers.HandleTextMessage)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "upcoming", Description: "📅 Upcoming sessions and calls"},
		{Command: "join", Description: "🟢 Join link for a session"},
		{Command: "notifications", Description: "🔔 Latest notifications"},
		{Command: "message", Description: "✍️ Write to a student or coach"},
		{Command: "reschedule", Description: "🔁 Ask to move a session"},
		{Command: "role", Description: "🔄 Switch role"},
		{Command: "help", Description: "❓ Help"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает long polling; блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot")
	c.bot.Start(ctx)
	return nil
}
