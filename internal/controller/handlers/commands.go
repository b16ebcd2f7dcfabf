package handlers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/controller/state"
	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

const notificationsShown = 10

// HandleStart обрабатывает /start; ссылка с сайта передаёт токен: /start <token>
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	token := commandArg(update.Message.Text)
	if token == "" {
		if _, err := h.identity.UserByTelegramChat(ctx, chatID); err != nil {
			h.sendMessage(ctx, b, chatID, "👋 Welcome to the coaching marketplace bot!\n\n"+textNotLinked)
			return
		}
		h.sendMessage(ctx, b, chatID, "👋 Welcome back!\n\n"+textHelp)
		return
	}

	user, err := h.identity.LinkTelegram(ctx, token, chatID)
	if err != nil {
		h.replyErr(ctx, b, chatID, "link_telegram", err)
		return
	}

	h.sendMessage(ctx, b, chatID, fmt.Sprintf(
		"✅ Hi, %s! Notifications about your sessions will arrive here.\n\n%s",
		user.FirstName, textHelp,
	))
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, textHelp)
}

// HandleUpcoming ближайшие занятия и звонки
func (h *Handlers) HandleUpcoming(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	items, err := h.scheduling.UpcomingForUser(ctx, user.ID)
	if err != nil {
		h.replyErr(ctx, b, chatID, "upcoming", err)
		return
	}
	h.sendMessage(ctx, b, chatID, formatAgenda(items))
}

// HandleJoin ссылка на занятие, если зайти уже можно
func (h *Handlers) HandleJoin(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	sessionID, err := commandID(update.Message.Text)
	if err != nil {
		h.sendMessage(ctx, b, chatID, "Usage: /join <session_id>")
		return
	}

	info, err := h.meetings.SessionJoinInfo(ctx, user.ID, sessionID)
	if err != nil {
		h.replyErr(ctx, b, chatID, "join", err)
		return
	}
	h.sendMessage(ctx, b, chatID, formatJoin(info))
}

// HandleNotifications последние уведомления; показанные отмечаются прочитанными
func (h *Handlers) HandleNotifications(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	list, err := h.notifications.List(ctx, user.ID, notificationsShown)
	if err != nil {
		h.replyErr(ctx, b, chatID, "notifications", err)
		return
	}
	h.sendMessage(ctx, b, chatID, formatNotifications(list))

	if _, err := h.notifications.MarkAllRead(ctx, user.ID); err != nil {
		h.logger.Warn("Failed to mark notifications read", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

// HandleRole переключает текущую роль: /role coach
func (h *Handlers) HandleRole(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	target := model.Role(strings.ToLower(commandArg(update.Message.Text)))
	if !target.Valid() {
		h.sendMessage(ctx, b, chatID, fmt.Sprintf("Usage: /role <student|coach>\n\nYou are acting as %s.", user.CurrentRole))
		return
	}

	switched, err := h.identity.SwitchRole(ctx, user.ID, target)
	if err != nil {
		h.replyErr(ctx, b, chatID, "switch_role", err)
		return
	}
	h.sendMessage(ctx, b, chatID, fmt.Sprintf("🔄 You are now acting as %s.", switched.CurrentRole))
}

// HandleMessage начинает диалог отправки сообщения: /message <user_id>
func (h *Handlers) HandleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	recipientID, err := commandID(update.Message.Text)
	if err != nil {
		h.sendMessage(ctx, b, chatID, "Usage: /message <user_id>")
		return
	}

	allowed, err := h.messaging.CanMessage(ctx, user.ID, recipientID)
	if err != nil {
		h.replyErr(ctx, b, chatID, "can_message", err)
		return
	}
	if !allowed {
		h.sendMessage(ctx, b, chatID, "⛔ You cannot message this user yet.")
		return
	}

	h.dialogs.Start(chatID, state.Dialog{State: state.StateComposingMessage, UserID: user.ID, RecipientID: recipientID})
	h.sendMessage(ctx, b, chatID, "✍️ Type your message. /cancel to stop.")
}

// HandleReschedule начинает запрос переноса: /reschedule <session_id>
func (h *Handlers) HandleReschedule(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	sessionID, err := commandID(update.Message.Text)
	if err != nil {
		h.sendMessage(ctx, b, chatID, "Usage: /reschedule <session_id>")
		return
	}

	h.dialogs.Start(chatID, state.Dialog{State: state.StateRescheduleReason, UserID: user.ID, SessionID: sessionID})
	h.sendMessage(ctx, b, chatID, fmt.Sprintf(
		"✍️ Why do you need to move session #%d? At least %d characters. /cancel to stop.",
		sessionID, model.MinRescheduleReasonChars,
	))
}

// HandleApprove модерация коуча: /approve <coach_id> <admin_password>
func (h *Handlers) HandleApprove(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	fields := strings.Fields(update.Message.Text)
	if h.adminPassword == "" || len(fields) != 3 ||
		subtle.ConstantTimeCompare([]byte(fields[2]), []byte(h.adminPassword)) != 1 {
		h.logger.Warn("Rejected approve command", zap.Int64("chat_id", chatID))
		h.sendMessage(ctx, b, chatID, "⛔ Not allowed.")
		return
	}
	coachID, err := commandID(fields[0] + " " + fields[1])
	if err != nil {
		h.sendMessage(ctx, b, chatID, "Usage: /approve <coach_id> <admin_password>")
		return
	}

	if _, err := h.identity.ApproveCoach(ctx, coachID); err != nil {
		h.replyErr(ctx, b, chatID, "approve_coach", err)
		return
	}
	h.sendMessage(ctx, b, chatID, fmt.Sprintf("✅ Coach #%d approved.", coachID))
}

// HandleCancel обрабатывает команду /cancel - отмена текущего диалога
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if !h.dialogs.Clear(chatID) {
		h.sendMessage(ctx, b, chatID, "❌ Nothing to cancel.")
		return
	}
	h.sendMessage(ctx, b, chatID, "✅ Cancelled.")
}
