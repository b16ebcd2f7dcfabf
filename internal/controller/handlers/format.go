package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
	"github.com/Freeeeeet/coach_marketplace/internal/service"
)

const (
	textNotLinked = "🔗 This chat is not linked to an account yet.\n\n" +
		"Open your profile on the website and press \"Connect Telegram\"."
	textInternalError = "❌ Something went wrong. Try again later."
	textHelp          = "📚 Commands:\n\n" +
		"/upcoming - Upcoming sessions and calls\n" +
		"/join <session_id> - Join link for a session\n" +
		"/notifications - Latest notifications\n" +
		"/message <user_id> - Write to a student or coach\n" +
		"/reschedule <session_id> - Ask to move a session\n" +
		"/role <student|coach> - Switch your role\n" +
		"/cancel - Cancel the current dialog\n" +
		"/help - Show this help"
)

// статусы встреч для отображения
var meetingStatusEmoji = map[model.MeetingStatus]string{
	model.MeetingStatusScheduled: "🕒",
	model.MeetingStatusActive:    "🟢",
	model.MeetingStatusCompleted: "✅",
	model.MeetingStatusCancelled: "❌",
	model.MeetingStatusMissed:    "⚠️",
}

// commandArg аргумент команды: "/join 42" -> "42"
func commandArg(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

// commandID числовой аргумент команды
func commandID(text string) (int64, error) {
	arg := commandArg(text)
	if arg == "" {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func formatAgenda(items []service.AgendaItem) string {
	if len(items) == 0 {
		return "📭 No upcoming sessions or calls."
	}

	var sb strings.Builder
	sb.WriteString("📅 Upcoming:\n")
	for _, it := range items {
		kind := "Session"
		if it.Kind == model.ReservationCall {
			kind = "Call"
		}
		fmt.Fprintf(&sb, "\n%s %s #%d: %s\n", meetingStatusEmoji[it.Status], kind, it.ID, it.Title)
		fmt.Fprintf(&sb, "   %s\n", it.Display)
		if it.MeetingURL != "" {
			fmt.Fprintf(&sb, "   🔗 %s\n", it.MeetingURL)
		}
	}
	return sb.String()
}

func formatJoin(info *service.JoinInfo) string {
	switch {
	case info.CanJoin && info.MeetingURL != "":
		return "🟢 You can join now:\n" + info.MeetingURL
	case info.CanJoin:
		return "🟢 The session is open, but no meeting link was added yet."
	case info.Status == model.MeetingStatusScheduled && info.MinutesUntilStart > 0:
		return fmt.Sprintf("🕒 Starts in %d min. The link opens %d minutes before the start.",
			info.MinutesUntilStart, int(model.EarlyJoinWindow.Minutes()))
	default:
		return fmt.Sprintf("%s The session is %s.", meetingStatusEmoji[info.Status], info.Status)
	}
}

func formatNotifications(list []*model.Notification) string {
	if len(list) == 0 {
		return "📭 No notifications."
	}

	var sb strings.Builder
	sb.WriteString("🔔 Notifications:\n")
	for _, n := range list {
		mark := "•"
		if !n.IsRead {
			mark = "🆕"
		}
		fmt.Fprintf(&sb, "\n%s %s\n", mark, n.Title)
		if n.Body != "" {
			fmt.Fprintf(&sb, "   %s\n", n.Body)
		}
	}
	return sb.String()
}

// errorText текст ошибки сервиса для пользователя
func errorText(err error) string {
	reason := service.ReasonOf(err)
	switch service.KindOf(err) {
	case service.KindValidation:
		if reason != "" {
			return "⚠️ Invalid " + strings.ReplaceAll(reason, "_", " ") + "."
		}
		return "⚠️ Invalid input."
	case service.KindNotAllowed:
		switch reason {
		case service.ReasonNotParty:
			return "⛔ You are not a party of this session."
		case service.ReasonNotApproved:
			return "⛔ Your coach profile is waiting for approval."
		case service.ReasonWrongRole:
			return "⛔ Not available in your current role."
		}
		return "⛔ This action is not allowed right now."
	case service.KindNotFound:
		return "🔍 Not found."
	case service.KindConflict:
		var svcErr *service.Error
		if errors.As(err, &svcErr) && len(svcErr.Conflicts) > 0 {
			return fmt.Sprintf("📅 The time overlaps with %d other booking(s).", len(svcErr.Conflicts))
		}
		return "📅 Conflict with an existing booking."
	case service.KindAlreadyProcessed:
		return "ℹ️ Already done."
	case service.KindPaymentRequired:
		return "💳 The contract must be paid first."
	default:
		return textInternalError
	}
}
