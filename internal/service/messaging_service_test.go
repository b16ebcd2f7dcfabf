package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

func TestCoachWaitsForStudent(t *testing.T) {
	f := newFixture(t)

	ok, err := f.svc.Messaging.CanMessage(f.ctx, f.coach.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Messaging.Send(f.ctx, f.coach.ID, f.student.ID, "Hi, need help with Go?")
	assertKind(t, err, KindNotAllowed, ReasonWrongRole)

	msg, err := f.svc.Messaging.Send(f.ctx, f.student.ID, f.coach.ID, "  Hello, are you free this week?  ")
	require.NoError(t, err)
	assert.Equal(t, "Hello, are you free this week?", msg.Content)
	assert.Equal(t, model.MessageTypeText, msg.Type)
	assert.Equal(t, model.RoleStudent, msg.SenderRole)
	assert.Equal(t, model.RoleCoach, msg.RecipientRole)
	assert.Contains(t, f.notificationTypes(t, f.coach.ID), model.NotificationNewMessage)

	_, err = f.svc.Messaging.Send(f.ctx, f.coach.ID, f.student.ID, "Yes, Tuesday works")
	require.NoError(t, err)
}

func TestCoachMayMessageAfterAcceptedProposal(t *testing.T) {
	f := newFixture(t)
	f.acceptedContract(t)

	ok, err := f.svc.Messaging.CanMessage(f.ctx, f.coach.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSameRolesCannotMessage(t *testing.T) {
	f := newFixture(t)
	other := f.signup(t, "olga@example.com", model.RoleStudent)
	rival := f.approvedCoach(t, "rex@example.com")

	_, err := f.svc.Messaging.Send(f.ctx, f.student.ID, other.ID, "Hey")
	assertKind(t, err, KindNotAllowed, ReasonWrongRole)

	_, err = f.svc.Messaging.Send(f.ctx, f.coach.ID, rival.ID, "Hey")
	assertKind(t, err, KindNotAllowed, ReasonWrongRole)

	ok, err := f.svc.Messaging.CanMessage(f.ctx, f.student.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessagingFollowsCurrentRole(t *testing.T) {
	f := newFixture(t)
	dana := f.signup(t, "dana@example.com", model.RoleStudent)
	_, err := f.svc.Identity.UpgradeTo(f.ctx, dana.ID, model.RoleCoach)
	require.NoError(t, err)

	// dana сейчас коуч: писать коучу нельзя, студенту - только после его сообщения
	_, err = f.svc.Messaging.Send(f.ctx, dana.ID, f.coach.ID, "Question about pricing")
	assertKind(t, err, KindNotAllowed, ReasonWrongRole)
	_, err = f.svc.Messaging.Send(f.ctx, dana.ID, f.student.ID, "Want lessons?")
	assertKind(t, err, KindNotAllowed, ReasonWrongRole)

	_, err = f.svc.Identity.SwitchRole(f.ctx, dana.ID, model.RoleStudent)
	require.NoError(t, err)

	msg, err := f.svc.Messaging.Send(f.ctx, dana.ID, f.coach.ID, "Question about pricing")
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, msg.SenderRole)
}

func TestMessageContentRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Messaging.Send(f.ctx, f.student.ID, f.coach.ID, "   ")
	assertKind(t, err, KindValidation, "content")

	_, err = f.svc.Messaging.Send(f.ctx, f.student.ID, f.coach.ID, strings.Repeat("a", 5001))
	assertKind(t, err, KindValidation, "content")

	_, err = f.svc.Messaging.Send(f.ctx, f.student.ID, f.coach.ID, strings.Repeat("я", 5000))
	require.NoError(t, err)

	_, err = f.svc.Messaging.Send(f.ctx, f.student.ID, 9999, "Hello")
	assertKind(t, err, KindNotFound, "")
}

func TestConversationAndUnread(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"First", "Second", "Third"} {
		_, err := f.svc.Messaging.Send(f.ctx, f.student.ID, f.coach.ID, text)
		require.NoError(t, err)
	}
	_, err := f.svc.Messaging.Send(f.ctx, f.coach.ID, f.student.ID, "Reply")
	require.NoError(t, err)

	conv, err := f.svc.Messaging.Conversation(f.ctx, f.coach.ID, f.student.ID, 0)
	require.NoError(t, err)
	require.Len(t, conv, 4)
	assert.Equal(t, "First", conv[0].Content)
	assert.Equal(t, "Reply", conv[3].Content)

	last, err := f.svc.Messaging.Conversation(f.ctx, f.student.ID, f.coach.ID, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "Third", last[0].Content)

	unread, err := f.svc.Messaging.UnreadCount(f.ctx, f.coach.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	n, err := f.svc.Messaging.MarkRead(f.ctx, f.coach.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	unread, err = f.svc.Messaging.UnreadCount(f.ctx, f.coach.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	unread, err = f.svc.Messaging.UnreadCount(f.ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}
