package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/repository"
)

const (
	maxMessageChars          = 5000
	defaultConversationLimit = 100
	messagePreviewChars      = 120
)

// MessagingService переписка между студентами и коучами
type MessagingService struct {
	store         repository.Store
	notifications *NotificationService
	now           Clock
	logger        *zap.Logger
}

func NewMessagingService(store repository.Store, notifications *NotificationService, clock Clock, logger *zap.Logger) *MessagingService {
	return &MessagingService{
		store:         store,
		notifications: notifications,
		now:           clock,
		logger:        logger,
	}
}

// CanMessage проверяет правило переписки для текущих ролей обоих пользователей
func (s *MessagingService) CanMessage(ctx context.Context, senderID, recipientID int64) (bool, error) {
	r := s.store.Repos()
	sender, err := loadUser(ctx, r, senderID)
	if err != nil {
		return false, err
	}
	recipient, err := loadUser(ctx, r, recipientID)
	if err != nil {
		return false, err
	}
	return canMessage(ctx, r, sender, recipient)
}

func canMessage(ctx context.Context, r repository.Repos, sender, recipient *model.User) (bool, error) {
	if sender.ID == recipient.ID {
		return false, nil
	}
	senderRole, recipientRole := sender.CurrentRole, recipient.CurrentRole

	var messagedFirst, accepted bool
	if senderRole == model.RoleCoach && recipientRole == model.RoleStudent {
		var err error
		if messagedFirst, err = r.Messages.HasMessaged(ctx, recipient.ID, sender.ID); err != nil {
			return false, fmt.Errorf("check conversation: %w", err)
		}
		if !messagedFirst {
			if accepted, err = r.Proposals.AcceptedBetween(ctx, recipient.ID, sender.ID); err != nil {
				return false, fmt.Errorf("check accepted proposal: %w", err)
			}
		}
	}
	return model.CanMessage(senderRole, recipientRole, messagedFirst, accepted), nil
}

// Send обычное текстовое сообщение
func (s *MessagingService) Send(ctx context.Context, senderID, recipientID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationErr("content", "message is empty")
	}
	if len([]rune(content)) > maxMessageChars {
		return nil, validationErr("content", "message longer than %d characters", maxMessageChars)
	}
	now := s.now()

	var (
		msg *model.Message
		out outbox
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sender, err := loadUser(ctx, r, senderID)
		if err != nil {
			return err
		}
		recipient, err := loadUser(ctx, r, recipientID)
		if err != nil {
			return err
		}

		ok, err := canMessage(ctx, r, sender, recipient)
		if err != nil {
			return err
		}
		if !ok {
			return notAllowed(ReasonWrongRole, "%s cannot message %s", sender.CurrentRole, recipient.CurrentRole)
		}

		msg = &model.Message{
			SenderID:      sender.ID,
			RecipientID:   recipient.ID,
			SenderRole:    sender.CurrentRole,
			RecipientRole: recipient.CurrentRole,
			Content:       content,
			Type:          model.MessageTypeText,
			CreatedAt:     now,
		}
		if err := r.Messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		return out.add(ctx, r, note(recipient.ID, model.NotificationNewMessage,
			"New message from "+sender.FullName(),
			preview(content),
			model.RelatedMessage, msg.ID, now))
	})
	if err != nil {
		return nil, err
	}
	s.notifications.Deliver(ctx, out)

	s.logger.Info("Message sent",
		zap.Int64("message_id", msg.ID),
		zap.Int64("sender_id", senderID),
		zap.Int64("recipient_id", recipientID),
	)
	return msg, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= messagePreviewChars {
		return content
	}
	return string(runes[:messagePreviewChars]) + "..."
}

// card структурированное сообщение о событии сделки
type card struct {
	Type        model.MessageType
	SenderID    int64
	SenderRole  model.Role
	RecipientID int64
	Content     string
	Payload     any
	CallID      *int64
}

// postCard пишет карточку в текущей транзакции. Правило переписки не
// применяется: карточку порождает сама система от имени стороны сделки
func postCard(ctx context.Context, r repository.Repos, c card, now time.Time) (*model.Message, error) {
	msg := &model.Message{
		SenderID:      c.SenderID,
		RecipientID:   c.RecipientID,
		SenderRole:    c.SenderRole,
		RecipientRole: c.SenderRole.Counterpart(),
		Content:       c.Content,
		Type:          c.Type,
		CallID:        c.CallID,
		CreatedAt:     now,
	}
	if c.Payload != nil {
		raw, err := json.Marshal(c.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal card payload: %w", err)
		}
		msg.Payload = raw
	}
	if err := r.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create %s message: %w", c.Type, err)
	}
	return msg, nil
}

// Conversation последние сообщения между двумя пользователями
func (s *MessagingService) Conversation(ctx context.Context, userID, otherID int64, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	msgs, err := s.store.Repos().Messages.ListConversation(ctx, userID, otherID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return msgs, nil
}

// MarkRead отмечает прочитанными сообщения от otherID
func (s *MessagingService) MarkRead(ctx context.Context, userID, otherID int64) (int64, error) {
	n, err := s.store.Repos().Messages.MarkConversationRead(ctx, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return n, nil
}

func (s *MessagingService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.Repos().Messages.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return n, nil
}
