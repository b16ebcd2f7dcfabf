package handlers

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/service"
)

func TestCommandID(t *testing.T) {
	tests := []struct {
		text    string
		want    int64
		wantErr bool
	}{
		{"/join 42", 42, false},
		{"/join   7 ", 7, false},
		{"/join", 0, true},
		{"/join abc", 0, true},
		{"/join -3", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := commandID(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "abc.def", commandArg("/start abc.def"))
	assert.Empty(t, commandArg("/start"))
}

func TestFormatAgenda(t *testing.T) {
	assert.Contains(t, formatAgenda(nil), "No upcoming")

	start := time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)
	text := formatAgenda([]service.AgendaItem{
		{
			Reservation: model.Reservation{Kind: model.ReservationSession, ID: 3, Title: "Go concurrency", Start: start, End: start.Add(time.Hour)},
			Status:      model.MeetingStatusScheduled,
			MeetingURL:  "https://meet.google.com/abc-defg-hij",
			Display:     "Tue, Jul 1 2025 at 16:00 CEST",
		},
		{
			Reservation: model.Reservation{Kind: model.ReservationCall, ID: 9, Title: "Intro call", Start: start.Add(2 * time.Hour)},
			Status:      model.MeetingStatusScheduled,
		},
	})

	assert.Contains(t, text, "Session #3: Go concurrency")
	assert.Contains(t, text, "Tue, Jul 1 2025 at 16:00 CEST")
	assert.Contains(t, text, "🔗 https://meet.google.com/abc-defg-hij")
	assert.Contains(t, text, "Call #9: Intro call")
}

func TestFormatJoin(t *testing.T) {
	assert.Contains(t, formatJoin(&service.JoinInfo{CanJoin: true, MeetingURL: "https://zoom.us/j/1"}), "https://zoom.us/j/1")
	assert.Contains(t, formatJoin(&service.JoinInfo{CanJoin: true}), "no meeting link")
	assert.Contains(t, formatJoin(&service.JoinInfo{Status: model.MeetingStatusScheduled, MinutesUntilStart: 45}), "Starts in 45 min")
	assert.Contains(t, formatJoin(&service.JoinInfo{Status: model.MeetingStatusCompleted}), "completed")
}

func TestFormatNotifications(t *testing.T) {
	assert.Contains(t, formatNotifications(nil), "No notifications")

	text := formatNotifications([]*model.Notification{
		{Title: "Session reminder", Body: "Starts in 30 minutes"},
		{Title: "Contract accepted", IsRead: true},
	})
	assert.Contains(t, text, "🆕 Session reminder")
	assert.Contains(t, text, "Starts in 30 minutes")
	assert.Contains(t, text, "• Contract accepted")
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &service.Error{Kind: service.KindValidation, Reason: "proposed_time"}, "⚠️ Invalid proposed time."},
		{"not party", &service.Error{Kind: service.KindNotAllowed, Reason: service.ReasonNotParty}, "⛔ You are not a party of this session."},
		{"conflicts", &service.Error{Kind: service.KindConflict, Conflicts: make([]model.Reservation, 2)}, "📅 The time overlaps with 2 other booking(s)."},
		{"wrapped", fmt.Errorf("op: %w", &service.Error{Kind: service.KindPaymentRequired}), "💳 The contract must be paid first."},
		{"internal", errors.New("connection reset"), textInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorText(tt.err))
		})
	}
}
