package core

import (
	"context"
	"log/slog"
)

// AvailabilitySwitch is the process-wide serve/don't-serve flag. An unset
// flag initializes to on; an unreadable flag counts as off.
type AvailabilitySwitch struct {
	repo StatusRepository
}

func NewAvailabilitySwitch(repo StatusRepository) *AvailabilitySwitch {
	return &AvailabilitySwitch{repo: repo}
}

func (a *AvailabilitySwitch) Get(ctx context.Context) bool {
	status, err := a.repo.GetBotStatus(ctx)
	if err != nil {
		slog.Error("failed to read bot status, treating bot as off", "error", err)
		return false
	}
	if status == nil {
		if err := a.repo.SetBotStatus(ctx, true); err != nil {
			slog.Error("failed to initialize bot status", "error", err)
		}
		return true
	}
	return *status
}

// Set performs no authorization; callers must check the administrator.
func (a *AvailabilitySwitch) Set(ctx context.Context, on bool) error {
	if err := a.repo.SetBotStatus(ctx, on); err != nil {
		return err
	}
	slog.Info("bot status changed", "is_on", on)
	return nil
}
