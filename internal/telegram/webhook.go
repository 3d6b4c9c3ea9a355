package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const WebhookPath = "/webhook"

var allowedUpdates = []string{"message", "callback_query", "my_chat_member"}

var publicCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start the bot"},
	{Command: "help", Description: "Show help and commands"},
	{Command: "reset", Description: "Reset to default personality"},
	{Command: "set", Description: "Change personality (e.g. /set spiritual)"},
	{Command: "voice", Description: "Change my voice"},
	{Command: "say", Description: "Speak text as audio"},
}

var adminCommands = []tgbotapi.BotCommand{
	{Command: "admin", Description: "Show the admin panel"},
	{Command: "admin_stats", Description: "Show usage statistics"},
	{Command: "news", Description: "Fetch verified news"},
	{Command: "broadcast", Description: "Send a message to all users"},
	{Command: "block", Description: "Block a user"},
	{Command: "unblock", Description: "Unblock a user"},
	{Command: "bot_on", Description: "Turn the bot on"},
	{Command: "bot_off", Description: "Turn the bot off"},
	{Command: "bot_status", Description: "Show whether the bot is on"},
	{Command: "admin_get_prompt", Description: "Show a personality prompt"},
	{Command: "admin_set_prompt", Description: "Set a personality prompt"},
	{Command: "admin_delete_prompt", Description: "Delete a custom prompt"},
}

// WebhookURL joins the public base URL and the webhook path.
func WebhookURL(publicURL string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if base == "" {
		return "", fmt.Errorf("PUBLIC_URL is not set")
	}
	u, err := url.Parse(base + WebhookPath)
	if err != nil {
		return "", fmt.Errorf("invalid PUBLIC_URL: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("webhook URL must use https, got %q", u.Scheme)
	}
	return u.String(), nil
}

// SecretHeader carries the webhook secret token on every update Telegram
// delivers.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret returns the configured secret, or one derived from the bot
// token when none is configured. It is empty only when both are.
func WebhookSecret(configured, botToken string) string {
	if configured != "" {
		return configured
	}
	if botToken == "" {
		return ""
	}
	sum := sha256.Sum256([]byte("webhook:" + botToken))
	return hex.EncodeToString(sum[:])
}

// SetWebhook registers the webhook with its secret token, dropping pending
// updates, and installs the public command menu plus the admin menu in the
// admin's chat.
func (b *Bot) SetWebhook(ctx context.Context, webhookURL, secretToken string, adminID int64) error {
	if secretToken == "" {
		return fmt.Errorf("webhook secret token is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}

	// tgbotapi's WebhookConfig has no secret_token field.
	params := tgbotapi.Params{"url": u.String(), "secret_token": secretToken}
	params.AddBool("drop_pending_updates", true)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("failed to encode allowed updates: %w", err)
	}
	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", classifyError(err))
	}
	slog.Info("webhook set", "url", webhookURL)

	if err := b.request(ctx, tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeDefault(), publicCommands...)); err != nil {
		return fmt.Errorf("failed to set public commands: %w", err)
	}
	if adminID != 0 {
		all := append(append([]tgbotapi.BotCommand{}, publicCommands...), adminCommands...)
		if err := b.request(ctx, tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(adminID), all...)); err != nil {
			return fmt.Errorf("failed to set admin commands: %w", err)
		}
	}
	return nil
}

func (b *Bot) DeleteWebhook(ctx context.Context) error {
	if err := b.request(ctx, tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	slog.Info("webhook deleted")
	return nil
}
