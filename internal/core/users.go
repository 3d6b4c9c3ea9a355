package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ananyabot/ananya/internal/store"
)

// UserDirectory owns the user log, the block list and the active
// conversation registry. Reads fail open; bookkeeping writes are best effort.
type UserDirectory struct {
	repo    UserRepository
	adminID int64
	now     func() time.Time
}

func NewUserDirectory(repo UserRepository, adminID int64) *UserDirectory {
	return &UserDirectory{repo: repo, adminID: adminID, now: time.Now}
}

func (d *UserDirectory) IsAdmin(userID int64) bool {
	return d.adminID != 0 && userID == d.adminID
}

func (d *UserDirectory) AdminID() int64 {
	return d.adminID
}

// LogUser upserts a user record. Negative ids (channels, anonymous group
// admins) are ignored.
func (d *UserDirectory) LogUser(ctx context.Context, sender Sender) {
	if sender.ID < 0 {
		return
	}
	err := d.repo.UpsertUser(ctx, store.User{
		ID:        sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		LastSeen:  d.now().UTC(),
	})
	if err != nil {
		slog.Error("failed to log user", "user_id", sender.ID, "error", err)
	}
}

// IsBlocked never reports the administrator, and reports false when the
// block list cannot be read.
func (d *UserDirectory) IsBlocked(ctx context.Context, userID int64) bool {
	if d.IsAdmin(userID) {
		return false
	}
	blocked, err := d.repo.IsBlocked(ctx, userID)
	if err != nil {
		slog.Error("failed to read block list", "user_id", userID, "error", err)
		return false
	}
	return blocked
}

func (d *UserDirectory) Block(ctx context.Context, userID int64) error {
	if d.IsAdmin(userID) {
		return fmt.Errorf("%w: cannot block the admin", ErrProtectedResource)
	}
	return d.repo.BlockUser(ctx, userID)
}

// Unblock reports whether the user was on the block list.
func (d *UserDirectory) Unblock(ctx context.Context, userID int64) (bool, error) {
	return d.repo.UnblockUser(ctx, userID)
}

func (d *UserDirectory) AddActiveChat(ctx context.Context, chatID int64) {
	if err := d.repo.AddActiveChat(ctx, chatID); err != nil {
		slog.Error("failed to register active chat", "chat_id", chatID, "error", err)
	}
}

func (d *UserDirectory) RemoveActiveChat(ctx context.Context, chatID int64) {
	if err := d.repo.RemoveActiveChat(ctx, chatID); err != nil {
		slog.Error("failed to remove active chat", "chat_id", chatID, "error", err)
	}
}

func (d *UserDirectory) Stats(ctx context.Context) (store.Stats, error) {
	return d.repo.Stats(ctx)
}

// RecipientIDs lists every logged user id in stored order.
func (d *UserDirectory) RecipientIDs(ctx context.Context) ([]int64, error) {
	return d.repo.ListUserIDs(ctx)
}
