package core

import (
	"context"
	"log/slog"

	"github.com/ananyabot/ananya/internal/store"
)

// HistoryWindow is the number of turns kept per conversation (ten exchanges).
const HistoryWindow = 20

// HistoryStore keeps the bounded per-conversation turn log. Reads fail open
// to an empty history and writes are best effort.
type HistoryStore struct {
	repo HistoryRepository
}

func NewHistoryStore(repo HistoryRepository) *HistoryStore {
	return &HistoryStore{repo: repo}
}

func (h *HistoryStore) Read(ctx context.Context, chatID int64) []store.Turn {
	turns, err := h.repo.GetHistory(ctx, chatID)
	if err != nil {
		slog.Error("failed to read chat history", "chat_id", chatID, "error", err)
		return []store.Turn{}
	}
	if turns == nil {
		return []store.Turn{}
	}
	return turns
}

// Write persists the full desired history, keeping only the newest
// HistoryWindow turns.
func (h *HistoryStore) Write(ctx context.Context, chatID int64, turns []store.Turn) {
	if err := h.repo.SaveHistory(ctx, chatID, TrimHistory(turns)); err != nil {
		slog.Error("failed to save chat history", "chat_id", chatID, "error", err)
	}
}

func (h *HistoryStore) Reset(ctx context.Context, chatID int64) {
	if err := h.repo.DeleteHistory(ctx, chatID); err != nil {
		slog.Error("failed to delete chat history", "chat_id", chatID, "error", err)
	}
}

// TrimHistory returns the last HistoryWindow turns in their original order.
func TrimHistory(turns []store.Turn) []store.Turn {
	if len(turns) <= HistoryWindow {
		return turns
	}
	trimmed := make([]store.Turn, HistoryWindow)
	copy(trimmed, turns[len(turns)-HistoryWindow:])
	return trimmed
}
