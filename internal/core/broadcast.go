package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ananyabot/ananya/internal/metrics"
)

const DefaultBroadcastDelay = 100 * time.Millisecond

// BroadcastPayload is either Text or a PhotoRef with an optional Caption.
type BroadcastPayload struct {
	Text     string
	PhotoRef string
	Caption  string
}

type BroadcastResult struct {
	JobID   string
	Total   int
	Success int
	Failure int
}

func (r BroadcastResult) Summary() string {
	return fmt.Sprintf("<b>Broadcast Complete!</b>\n• Sent to: %d users (including admin)\n• Failed for: %d users", r.Success, r.Failure)
}

// BroadcastEngine sends one payload to every recipient in order. It never
// stops early and it paces every attempted send.
type BroadcastEngine struct {
	messenger Messenger
	adminID   int64
	delay     time.Duration
	pause     func(ctx context.Context, d time.Duration)
	metrics   *metrics.Metrics
}

func NewBroadcastEngine(messenger Messenger, adminID int64, delay time.Duration, m *metrics.Metrics) *BroadcastEngine {
	return &BroadcastEngine{
		messenger: messenger,
		adminID:   adminID,
		delay:     delay,
		pause:     sleepContext,
		metrics:   m,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Broadcast delivers payload to recipients in order. The admin recipient is
// counted as sent without being messaged, so it is not paced either.
func (b *BroadcastEngine) Broadcast(ctx context.Context, payload BroadcastPayload, recipients []int64) (BroadcastResult, error) {
	if payload.Text == "" && payload.PhotoRef == "" {
		return BroadcastResult{}, fmt.Errorf("%w: broadcast needs text or a photo", ErrInvalidArgument)
	}

	res := BroadcastResult{JobID: uuid.NewString(), Total: len(recipients)}
	logger := slog.With("job_id", res.JobID)
	logger.Info("broadcast started", "recipients", res.Total)

	for _, id := range recipients {
		if b.adminID != 0 && id == b.adminID {
			res.Success++
			b.metrics.RecordBroadcastRecipient("admin")
			continue
		}

		err := b.send(ctx, id, payload)
		switch {
		case err == nil:
			res.Success++
			b.metrics.RecordBroadcastRecipient("sent")
		case errors.Is(err, ErrRecipientBlocked):
			res.Failure++
			logger.Warn("broadcast failed: bot was blocked", "user_id", id)
			b.metrics.RecordBroadcastRecipient("blocked")
		case errors.Is(err, ErrChatNotFound):
			res.Failure++
			logger.Warn("broadcast failed: chat not found", "user_id", id)
			b.metrics.RecordBroadcastRecipient("chat_not_found")
		default:
			res.Failure++
			logger.Error("broadcast failed", "user_id", id, "error", err)
			b.metrics.RecordBroadcastRecipient("error")
		}
		b.pause(ctx, b.delay)
	}

	logger.Info("broadcast finished", "success", res.Success, "failure", res.Failure)
	return res, nil
}

func (b *BroadcastEngine) send(ctx context.Context, chatID int64, payload BroadcastPayload) error {
	if payload.PhotoRef != "" {
		return b.messenger.SendPhoto(ctx, chatID, payload.PhotoRef, payload.Caption)
	}
	return b.messenger.SendMessage(ctx, OutgoingMessage{ChatID: chatID, Text: payload.Text})
}
