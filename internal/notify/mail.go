package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer отправляет письма через SMTP
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) Name() string {
	return "smtp"
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.Email == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetAddressHeader("To", msg.Email, msg.Name)
	mail.SetHeader("Subject", msg.Subject)
	mail.SetBody("text/plain", msg.Text)

	if err := m.dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogMailer используется когда почта не настроена: письмо не уходит, пишется предупреждение
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Name() string {
	return "log"
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if msg.Email == "" {
		return ErrNoAddress
	}
	m.logger.Warn("Mail disabled, message not sent",
		zap.Int64("user_id", msg.UserID),
		zap.String("to", msg.Email),
		zap.String("subject", msg.Subject),
	)
	return nil
}
