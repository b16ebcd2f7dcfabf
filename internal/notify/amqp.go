package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "marketplace.notifications"

// publisher часть *amqp.Channel, нужная для публикации
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// event тело сообщения в брокере
type event struct {
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// AMQPPublisher публикует уведомления в topic exchange RabbitMQ
// с ключом маршрутизации notification.<type>; получатель адреса не требует
type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       publisher
	exchange string
	now      func() time.Time
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := newAMQPPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch publisher, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, now: time.Now}
}

func (p *AMQPPublisher) Name() string {
	return "amqp"
}

func (p *AMQPPublisher) Send(ctx context.Context, msg Message) error {
	now := p.now().UTC()
	body, err := json.Marshal(event{
		UserID:    msg.UserID,
		Type:      msg.Type,
		Subject:   msg.Subject,
		Text:      msg.Text,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := "notification." + msg.Type
	if msg.Type == "" {
		key = "notification.generic"
	}

	// канал AMQP не рассчитан на конкурентную публикацию
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
