package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Telegram only accepts these characters in a webhook secret token.
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

type Config struct {
	TelegramBotToken  string
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTTSModel    string
	GeminiAPIBase     string
	DatabaseURL       string
	HTTPPort          string
	LogLevel          string
	AdminUserID       int64
	GroupUsername     string
	ChannelUsername   string
	DashboardPassword string
	JWTSecret         string
	PublicURL         string
	WebhookSecret     string
	WebhookWorkers    int
	BroadcastDelay    time.Duration
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-pro")
	v.SetDefault("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts")
	v.SetDefault("GEMINI_API_BASE", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("DATABASE_URL", "ananya_bot.db")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("ADMIN_USER_ID", "")
	v.SetDefault("GROUP_USERNAME", "@ananyabotchat")
	v.SetDefault("CHANNEL_USERNAME", "@ananyabotupdates")
	v.SetDefault("DASHBOARD_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SECRET_KEY", "")
	v.SetDefault("PUBLIC_URL", "")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("WEBHOOK_WORKERS", 8)
	v.SetDefault("BROADCAST_DELAY", "100ms")
}

// LoadConfig reads the configuration from the environment (and a .env file
// when present) through v. Missing credentials are not an error here: the
// components that need them report themselves unconfigured at first use.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	SetDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		TelegramBotToken:  v.GetString("TELEGRAM_BOT_TOKEN"),
		GeminiAPIKey:      v.GetString("GEMINI_API_KEY"),
		GeminiModel:       v.GetString("GEMINI_MODEL"),
		GeminiTTSModel:    v.GetString("GEMINI_TTS_MODEL"),
		GeminiAPIBase:     strings.TrimRight(v.GetString("GEMINI_API_BASE"), "/"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		HTTPPort:          v.GetString("HTTP_PORT"),
		LogLevel:          strings.ToUpper(v.GetString("LOG_LEVEL")),
		GroupUsername:     v.GetString("GROUP_USERNAME"),
		ChannelUsername:   v.GetString("CHANNEL_USERNAME"),
		DashboardPassword: v.GetString("DASHBOARD_PASSWORD"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		PublicURL:         strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		WebhookSecret:     strings.TrimSpace(v.GetString("WEBHOOK_SECRET")),
		WebhookWorkers:    v.GetInt("WEBHOOK_WORKERS"),
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = v.GetString("SECRET_KEY")
	}

	adminID, err := strconv.ParseInt(strings.TrimSpace(v.GetString("ADMIN_USER_ID")), 10, 64)
	if err != nil {
		slog.Error("ADMIN_USER_ID is not set or invalid; admin commands are disabled", "error", err)
		adminID = 0
	}
	cfg.AdminUserID = adminID

	delay, err := time.ParseDuration(v.GetString("BROADCAST_DELAY"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROADCAST_DELAY: %w", err)
	}
	cfg.BroadcastDelay = delay

	if cfg.WebhookSecret != "" && !webhookSecretPattern.MatchString(cfg.WebhookSecret) {
		return nil, fmt.Errorf("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ or -")
	}

	if cfg.WebhookWorkers < 1 {
		return nil, fmt.Errorf("WEBHOOK_WORKERS must be at least 1, got %d", cfg.WebhookWorkers)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to INFO.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
