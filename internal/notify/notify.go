// Package notify доставка исходящих уведомлений: email, Telegram, лог.
// Ошибки доставки не откатывают бизнес-операции
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Message уведомление одному получателю
type Message struct {
	UserID         int64
	Type           string
	Email          string
	Name           string
	TelegramChatID *int64
	Subject        string
	Text           string
}

// Sender транспорт доставки
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// ErrNoAddress у получателя нет адреса для этого транспорта
var ErrNoAddress = errors.New("recipient has no address for transport")

// Multi рассылает сообщение по всем транспортам; отсутствие адреса не ошибка
type Multi struct {
	senders []Sender
}

func NewMulti(senders ...Sender) *Multi {
	return &Multi{senders: senders}
}

func (m *Multi) Name() string {
	return "multi"
}

func (m *Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m.senders {
		err := s.Send(ctx, msg)
		if err == nil || errors.Is(err, ErrNoAddress) {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return errors.Join(errs...)
}
