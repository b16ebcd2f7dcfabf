package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/service"
)

// requireUser находит пользователя, привязавшего этот чат
// Возвращает user и true если OK, nil и false если нет
func (h *Handlers) requireUser(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, bool) {
	if update.Message == nil {
		return nil, false
	}

	chatID := update.Message.Chat.ID
	user, err := h.identity.UserByTelegramChat(ctx, chatID)
	if err != nil {
		if service.KindOf(err) == service.KindNotFound {
			h.sendMessage(ctx, b, chatID, textNotLinked)
			return nil, false
		}
		h.logger.Error("Failed to get user by chat", zap.Int64("chat_id", chatID), zap.Error(err))
		h.sendMessage(ctx, b, chatID, textInternalError)
		return nil, false
	}

	return user, true
}

// replyErr отвечает пользователю текстом ошибки сервиса; внутренние ошибки логируются
func (h *Handlers) replyErr(ctx context.Context, b *bot.Bot, chatID int64, op string, err error) {
	kind := service.KindOf(err)
	if kind == service.KindInternal || kind == service.KindExternal {
		h.logger.Error("Command failed", zap.String("op", op), zap.Int64("chat_id", chatID), zap.Error(err))
	} else {
		h.logger.Debug("Command rejected", zap.String("op", op), zap.Int64("chat_id", chatID), zap.Error(err))
	}
	h.sendMessage(ctx, b, chatID, errorText(err))
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
