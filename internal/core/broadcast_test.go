package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(m *fakeMessenger) (*BroadcastEngine, *[]time.Duration) {
	var pauses []time.Duration
	b := NewBroadcastEngine(m, testAdminID, DefaultBroadcastDelay, nil)
	b.pause = func(_ context.Context, d time.Duration) { pauses = append(pauses, d) }
	return b, &pauses
}

func TestBroadcast_CountsAndClassifies(t *testing.T) {
	m := newFakeMessenger()
	m.sendErrs[2] = fmt.Errorf("forbidden: %w", ErrRecipientBlocked)
	m.sendErrs[3] = fmt.Errorf("bad request: %w", ErrChatNotFound)
	m.sendErrs[4] = errors.New("connection reset")
	b, pauses := newTestBroadcaster(m)

	recipients := []int64{1, testAdminID, 2, 3, 4, 5}
	res, err := b.Broadcast(context.Background(), BroadcastPayload{Text: "hello all"}, recipients)
	require.NoError(t, err)

	assert.Equal(t, len(recipients), res.Total)
	assert.Equal(t, 3, res.Success)
	assert.Equal(t, 3, res.Failure)
	assert.Equal(t, len(recipients), res.Success+res.Failure)
	assert.NotEmpty(t, res.JobID)

	var sentTo []int64
	for _, msg := range m.messages {
		sentTo = append(sentTo, msg.ChatID)
		assert.Equal(t, "hello all", msg.Text)
	}
	assert.Equal(t, []int64{1, 5}, sentTo)
	assert.Len(t, *pauses, len(recipients)-1)
	for _, d := range *pauses {
		assert.Equal(t, DefaultBroadcastDelay, d)
	}
}

func TestBroadcast_AdminCountedWithoutSend(t *testing.T) {
	m := newFakeMessenger()
	b, pauses := newTestBroadcaster(m)

	res, err := b.Broadcast(context.Background(), BroadcastPayload{Text: "hi"}, []int64{testAdminID})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Success)
	assert.Zero(t, res.Failure)
	assert.Empty(t, m.messages)
	assert.Empty(t, *pauses, "the admin is not paced")
}

func TestBroadcast_Photo(t *testing.T) {
	m := newFakeMessenger()
	b, _ := newTestBroadcaster(m)

	res, err := b.Broadcast(context.Background(), BroadcastPayload{PhotoRef: "photo-1", Caption: "look"}, []int64{1, 2})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Success)
	assert.Equal(t, []sentPhoto{{1, "photo-1", "look"}, {2, "photo-1", "look"}}, m.photos)
	assert.Empty(t, m.messages)
}

func TestBroadcast_EmptyPayload(t *testing.T) {
	b, _ := newTestBroadcaster(newFakeMessenger())

	_, err := b.Broadcast(context.Background(), BroadcastPayload{}, []int64{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBroadcastResult_Summary(t *testing.T) {
	s := BroadcastResult{Success: 4, Failure: 2}.Summary()
	assert.Contains(t, s, "Sent to: 4 users")
	assert.Contains(t, s, "Failed for: 2 users")
}
