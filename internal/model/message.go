package model

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MessageTypeText             MessageType = "TEXT"
	MessageTypeSystem           MessageType = "SYSTEM"
	MessageTypeContractOffer    MessageType = "CONTRACT_OFFER"
	MessageTypeCallScheduled    MessageType = "CALL_SCHEDULED"
	MessageTypeFreeConsultation MessageType = "FREE_CONSULTATION"
	MessageTypeSessionScheduled MessageType = "SESSION_SCHEDULED"
)

// Structured сообщения этого типа рендерятся как интерактивная карточка
func (t MessageType) Structured() bool {
	return t != MessageTypeText
}

type Message struct {
	ID            int64           `json:"id"`
	SenderID      int64           `json:"sender_id"`
	RecipientID   int64           `json:"recipient_id"`
	SenderRole    Role            `json:"sender_role"`
	RecipientRole Role            `json:"recipient_role"`
	Content       string          `json:"content"`
	IsRead        bool            `json:"is_read"`
	Type          MessageType     `json:"message_type"`
	CallID        *int64          `json:"call_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CanMessage правило авторизации переписки:
// студент пишет коучу всегда; коуч пишет студенту только если студент написал
// первым или между ними есть принятое предложение. Одинаковые роли не переписываются
func CanMessage(senderRole, recipientRole Role, recipientMessagedFirst, acceptedProposal bool) bool {
	switch {
	case senderRole == RoleStudent && recipientRole == RoleCoach:
		return true
	case senderRole == RoleCoach && recipientRole == RoleStudent:
		return recipientMessagedFirst || acceptedProposal
	default:
		return false
	}
}
