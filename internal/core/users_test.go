package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserDirectory_LogUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemStore()
	d := NewUserDirectory(repo, testAdminID)
	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return seen }

	d.LogUser(ctx, Sender{ID: 5, Username: "asha", FirstName: "Asha"})
	d.LogUser(ctx, Sender{ID: -100123, FirstName: "Channel"})
	d.LogUser(ctx, Sender{ID: 5, Username: "asha_k", FirstName: "Asha"})

	require.Len(t, repo.users, 1)
	assert.Equal(t, "asha_k", repo.users[0].Username)
	assert.Equal(t, seen, repo.users[0].LastSeen)
}

func TestUserDirectory_BlockList(t *testing.T) {
	ctx := context.Background()
	repo := newMemStore()
	d := NewUserDirectory(repo, testAdminID)

	assert.ErrorIs(t, d.Block(ctx, testAdminID), ErrProtectedResource)
	repo.blocked[testAdminID] = true
	assert.False(t, d.IsBlocked(ctx, testAdminID))

	require.NoError(t, d.Block(ctx, 7))
	assert.True(t, d.IsBlocked(ctx, 7))

	existed, err := d.Unblock(ctx, 7)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.False(t, d.IsBlocked(ctx, 7))
}

func TestUserDirectory_FailsOpen(t *testing.T) {
	ctx := context.Background()
	repo := newMemStore()
	repo.blocked[7] = true
	d := NewUserDirectory(repo, testAdminID)
	repo.fail = true

	assert.False(t, d.IsBlocked(ctx, 7))
	assert.NotPanics(t, func() {
		d.LogUser(ctx, Sender{ID: 7})
		d.AddActiveChat(ctx, 7)
		d.RemoveActiveChat(ctx, 7)
	})
	_, err := d.RecipientIDs(ctx)
	assert.Error(t, err)
}

func TestUserDirectory_NoAdminConfigured(t *testing.T) {
	d := NewUserDirectory(newMemStore(), 0)
	assert.False(t, d.IsAdmin(0))
	assert.False(t, d.IsAdmin(5))
}
