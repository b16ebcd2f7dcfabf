package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/controller/state"
	"github.com/Freeeeeet/coach_marketplace/internal/service"
)

// HandleTextMessage продолжает активный диалог чата
func (h *Handlers) HandleTextMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	// Команды обрабатываются своими handlers
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}

	chatID := update.Message.Chat.ID
	dialog, ok := h.dialogs.Get(chatID)
	if !ok {
		return
	}

	switch dialog.State {
	case state.StateComposingMessage:
		h.finishMessage(ctx, b, chatID, dialog, update.Message.Text)
	case state.StateRescheduleReason:
		h.finishReschedule(ctx, b, chatID, dialog, update.Message.Text)
	default:
		h.logger.Warn("Unknown dialog state", zap.String("state", string(dialog.State)))
		h.dialogs.Clear(chatID)
	}
}

func (h *Handlers) finishMessage(ctx context.Context, b *bot.Bot, chatID int64, dialog state.Dialog, text string) {
	_, err := h.messaging.Send(ctx, dialog.UserID, dialog.RecipientID, text)
	if err != nil {
		// на ошибке ввода даём исправить текст, не выходя из диалога
		if service.KindOf(err) != service.KindValidation {
			h.dialogs.Clear(chatID)
		}
		h.replyErr(ctx, b, chatID, "send_message", err)
		return
	}

	h.dialogs.Clear(chatID)
	h.sendMessage(ctx, b, chatID, "📨 Sent.")
}

func (h *Handlers) finishReschedule(ctx context.Context, b *bot.Bot, chatID int64, dialog state.Dialog, text string) {
	res, err := h.scheduling.RequestReschedule(ctx, dialog.UserID, dialog.SessionID, service.RescheduleInput{
		Reason: strings.TrimSpace(text),
	})
	if err != nil {
		if service.KindOf(err) != service.KindValidation {
			h.dialogs.Clear(chatID)
		}
		h.replyErr(ctx, b, chatID, "request_reschedule", err)
		return
	}

	h.dialogs.Clear(chatID)
	h.sendMessage(ctx, b, chatID, fmt.Sprintf("🔁 Reschedule request for session #%d: %s.",
		res.Session.ID, strings.ReplaceAll(res.Outcome, "_", " ")))
}
