package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id, sender_id, recipient_id, sender_role, recipient_role, content, is_read, message_type,
	call_id, payload, created_at`

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	query := `
		INSERT INTO messages (sender_id, recipient_id, sender_role, recipient_role, content, is_read,
			message_type, call_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	var payload []byte
	if len(m.Payload) > 0 {
		payload = m.Payload
	}

	err := r.db.QueryRow(
		ctx, query,
		m.SenderID,
		m.RecipientID,
		m.SenderRole,
		m.RecipientRole,
		m.Content,
		m.IsRead,
		m.Type,
		m.CallID,
		payload,
		m.CreatedAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *MessageRepository) HasMessaged(ctx context.Context, from, to int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM messages WHERE sender_id = $1 AND recipient_id = $2)
	`, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check messaged: %w", err)
	}
	return exists, nil
}

// ListConversation последние limit сообщений в хронологическом порядке
func (r *MessageRepository) ListConversation(ctx context.Context, a, b int64, limit int) ([]*model.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+`
			FROM messages
			WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY created_at, id
	`, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var m model.Message
		err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.RecipientID,
			&m.SenderRole,
			&m.RecipientRole,
			&m.Content,
			&m.IsRead,
			&m.Type,
			&m.CallID,
			&m.Payload,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) MarkConversationRead(ctx context.Context, recipientID, senderID int64) (int64, error) {
	n, err := execAffected(ctx, r.db, `
		UPDATE messages SET is_read = TRUE
		WHERE recipient_id = $1 AND sender_id = $2 AND NOT is_read
	`, recipientID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return n, nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return n, nil
}

type NotificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, body, related_id, related_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Body,
		n.RelatedID,
		nullString(n.RelatedType),
		n.CreatedAt,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, title, body, related_id, COALESCE(related_type, ''), is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Notification, error) {
		var n model.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.RelatedID, &n.RelatedType, &n.IsRead, &n.CreatedAt)
		return &n, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead чужое уведомление неотличимо от несуществующего
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	err := requireOne(execAffected(ctx, r.db, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID))
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := execAffected(ctx, r.db, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := execAffected(ctx, r.db, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return n, nil
}
