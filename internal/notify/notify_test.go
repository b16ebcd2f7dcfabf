package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

type recordingSender struct {
	name string
	err  error
	got  []Message
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.got = append(s.got, msg)
	return s.err
}

func TestMultiIgnoresMissingAddress(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	noAddr := &recordingSender{name: "noaddr", err: ErrNoAddress}
	multi := NewMulti(ok, noAddr)

	require.NoError(t, multi.Send(context.Background(), Message{UserID: 1}))
	assert.Len(t, ok.got, 1)
	assert.Len(t, noAddr.got, 1)
}

func TestMultiJoinsFailures(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordingSender{name: "failing", err: boom}
	ok := &recordingSender{name: "ok"}

	err := NewMulti(failing, ok).Send(context.Background(), Message{UserID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Len(t, ok.got, 1)
}

func TestLogMailerWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mailer := NewLogMailer(zap.New(core))

	require.NoError(t, mailer.Send(context.Background(), Message{UserID: 7, Email: "a@example.com", Subject: "Hi"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Mail disabled, message not sent", logs.All()[0].Message)

	assert.ErrorIs(t, mailer.Send(context.Background(), Message{UserID: 7}), ErrNoAddress)
}

func TestRenderNotification(t *testing.T) {
	chatID := int64(99)
	user := &model.User{ID: 3, Email: "ann@example.com", FirstName: "Ann", TelegramChatID: &chatID}
	relatedID := int64(12)
	n := &model.Notification{
		Title:       "Contract accepted",
		Body:        "Your coach accepted the contract.",
		RelatedID:   &relatedID,
		RelatedType: model.RelatedContract,
	}

	msg, err := Render("https://example.com/", user, n)
	require.NoError(t, err)

	assert.Equal(t, "Contract accepted", msg.Subject)
	assert.Equal(t, "ann@example.com", msg.Email)
	assert.Equal(t, &chatID, msg.TelegramChatID)
	assert.Contains(t, msg.Text, "Hi Ann,")
	assert.Contains(t, msg.Text, "https://example.com/contracts/12")
}

func TestLinkWithoutRelated(t *testing.T) {
	assert.Empty(t, Link("https://example.com", &model.Notification{}))
	id := int64(1)
	assert.Equal(t, "https://example.com/messages", Link("https://example.com", &model.Notification{RelatedID: &id, RelatedType: model.RelatedMessage}))
}

func TestTelegramNotifierSends(t *testing.T) {
	var hits atomic.Int32
	var chat atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			hits.Add(1)
			_ = r.ParseMultipartForm(1 << 20)
			chat.Store(r.FormValue("chat_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	b, err := bot.New("test-token", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	require.NoError(t, err)
	notifier := NewTelegramNotifier(b)

	assert.ErrorIs(t, notifier.Send(context.Background(), Message{UserID: 1}), ErrNoAddress)

	chatID := int64(42)
	require.NoError(t, notifier.Send(context.Background(), Message{UserID: 1, TelegramChatID: &chatID, Subject: "S", Text: "T"}))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "42", chat.Load())
}
