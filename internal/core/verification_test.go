package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate() (*VerificationGate, *fakeMembers, *fakeMessenger) {
	members := newFakeMembers()
	members.statuses[testChannel] = "member"
	members.statuses[testGroup] = "member"
	messenger := newFakeMessenger()
	gate := NewVerificationGate(GateConfig{
		AdminID:         testAdminID,
		ChannelUsername: testChannel,
		GroupUsername:   testGroup,
	}, members, messenger)
	return gate, members, messenger
}

func TestCheckMembership_VerifiedSessionMakesNoLookups(t *testing.T) {
	ctx := context.Background()
	gate, members, _ := newTestGate()
	sess := newSession()

	require.True(t, gate.CheckMembership(ctx, 5, 5, sess, true))
	lookups := members.callCount()
	assert.Equal(t, 2, lookups)

	for i := 0; i < 3; i++ {
		assert.True(t, gate.CheckMembership(ctx, 5, 5, sess, true))
	}
	assert.Equal(t, lookups, members.callCount())
}

func TestCheckMembership_AdminSkipsLookups(t *testing.T) {
	gate, members, _ := newTestGate()
	sess := newSession()

	assert.True(t, gate.CheckMembership(context.Background(), testAdminID, testAdminID, sess, true))
	assert.True(t, sess.Verified())
	assert.Zero(t, members.callCount())
}

func TestCheckMembership_ChannelFailureShortCircuits(t *testing.T) {
	for _, status := range []string{"left", "kicked", "restricted", ""} {
		t.Run(fmt.Sprintf("status=%q", status), func(t *testing.T) {
			gate, members, messenger := newTestGate()
			members.statuses[testChannel] = status
			sess := newSession()

			assert.False(t, gate.CheckMembership(context.Background(), 5, 5, sess, true))
			assert.False(t, sess.Verified())
			require.Len(t, members.calls, 1)
			assert.Equal(t, testChannel, members.calls[0].Chat)

			require.Len(t, messenger.messages, 1)
			assert.Contains(t, messenger.messages[0].Text, "Channel")
			assert.NotEmpty(t, messenger.messages[0].Keyboard)
		})
	}
}

func TestCheckMembership_GroupFailure(t *testing.T) {
	gate, members, messenger := newTestGate()
	members.statuses[testGroup] = "left"
	sess := newSession()

	assert.False(t, gate.CheckMembership(context.Background(), 5, 5, sess, true))
	assert.Len(t, members.calls, 2)
	require.Len(t, messenger.messages, 1)
	assert.Contains(t, messenger.messages[0].Text, "Chat Group")
}

func TestCheckMembership_PassingStatuses(t *testing.T) {
	for _, status := range []string{"member", "administrator", "creator"} {
		gate, members, _ := newTestGate()
		members.statuses[testChannel] = status
		members.statuses[testGroup] = status
		sess := newSession()

		assert.True(t, gate.CheckMembership(context.Background(), 5, 5, sess, false), status)
		assert.True(t, sess.Verified(), status)
	}
}

func TestCheckMembership_UserNotFound(t *testing.T) {
	gate, members, messenger := newTestGate()
	members.errs[testChannel] = fmt.Errorf("get chat member: %w", ErrMemberNotFound)
	sess := newSession()

	assert.False(t, gate.CheckMembership(context.Background(), 5, 5, sess, true))
	assert.Len(t, members.calls, 1)
	require.Len(t, messenger.messages, 1)
	assert.Contains(t, messenger.messages[0].Text, "haven't joined both groups")
	assert.NotEmpty(t, messenger.messages[0].Keyboard)
}

func TestCheckMembership_LookupErrorFailsClosed(t *testing.T) {
	gate, members, messenger := newTestGate()
	members.errs[testChannel] = errors.New("Bad Request: member list is inaccessible")
	sess := newSession()

	assert.False(t, gate.CheckMembership(context.Background(), 5, 5, sess, true))
	assert.False(t, sess.Verified())
	require.Len(t, messenger.messages, 1)
	assert.Contains(t, messenger.messages[0].Text, "An error occurred during verification")
	assert.Empty(t, messenger.messages[0].Keyboard)
}

func TestCheckMembership_NoPromptWhenSilent(t *testing.T) {
	gate, members, messenger := newTestGate()
	members.statuses[testChannel] = "left"

	assert.False(t, gate.CheckMembership(context.Background(), 5, 5, newSession(), false))
	assert.Empty(t, messenger.messages)
}

func TestCheckMembership_RecheckAfterFailure(t *testing.T) {
	ctx := context.Background()
	gate, members, _ := newTestGate()
	members.statuses[testGroup] = "left"
	sess := newSession()

	require.False(t, gate.CheckMembership(ctx, 5, 5, sess, false))
	members.statuses[testGroup] = "member"
	assert.True(t, gate.CheckMembership(ctx, 5, 5, sess, false))
	assert.True(t, sess.Verified())
}

func TestJoinKeyboard(t *testing.T) {
	gate, _, _ := newTestGate()
	kb := gate.JoinKeyboard()

	require.Len(t, kb, 2)
	assert.Equal(t, "https://t.me/testchat", kb[0][0].URL)
	assert.Equal(t, "https://t.me/testupdates", kb[0][1].URL)
	assert.Equal(t, VerifyCallbackData, kb[1][0].Data)
}
