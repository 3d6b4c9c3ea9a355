package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ADMIN_USER_ID", "12345")
	t.Setenv("SECRET_KEY", "s3cret")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, int64(12345), cfg.AdminUserID)
	assert.Equal(t, "gemini-2.5-pro", cfg.GeminiModel)
	assert.Equal(t, "@ananyabotchat", cfg.GroupUsername)
	assert.Equal(t, "@ananyabotupdates", cfg.ChannelUsername)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 100*time.Millisecond, cfg.BroadcastDelay)
	assert.Equal(t, 8, cfg.WebhookWorkers)
}

func TestLoadConfig_InvalidAdminDoesNotFail(t *testing.T) {
	t.Setenv("ADMIN_USER_ID", "not-a-number")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.AdminUserID)
}

func TestLoadConfig_InvalidDelay(t *testing.T) {
	t.Setenv("BROADCAST_DELAY", "soon")

	_, err := LoadConfig(viper.New())
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"WARNING": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}

func TestLoadConfig_WebhookSecret(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", " s3cret_token-1 ")
	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "s3cret_token-1", cfg.WebhookSecret)

	t.Setenv("WEBHOOK_SECRET", "not allowed!")
	_, err = LoadConfig(viper.New())
	assert.Error(t, err)
}
