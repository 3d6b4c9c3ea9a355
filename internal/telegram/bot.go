// Package telegram adapts the Telegram Bot API to the session core.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ananyabot/ananya/internal/core"
)

const maxDownloadBytes = 20 << 20 // Telegram bot download limit

type Options struct {
	// APIEndpoint and FileEndpoint are format strings taking the token and
	// the method or file path. Empty means the public Telegram endpoints.
	APIEndpoint  string
	FileEndpoint string
	HTTPClient   *http.Client
}

// Bot implements core.Messenger and core.MembershipChecker on top of
// tgbotapi.
type Bot struct {
	api          *tgbotapi.BotAPI
	client       *http.Client
	fileEndpoint string
}

// NewBot connects to Telegram (getMe) and returns the adapter.
func NewBot(token string, opts Options) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token: %w", core.ErrNotConfigured)
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.FileEndpoint == "" {
		opts.FileEndpoint = tgbotapi.FileEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, opts.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", api.Self.UserName, "bot_id", api.Self.ID)

	return &Bot{api: api, client: opts.HTTPClient, fileEndpoint: opts.FileEndpoint}, nil
}

func (b *Bot) Identity() core.Identity {
	return core.Identity{ID: b.api.Self.ID, Username: b.api.Self.UserName}
}

// request sends c unless ctx is already done. tgbotapi has no context
// support, so an in-flight call is not interrupted.
func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Request(c)
	return classifyError(err)
}

func (b *Bot) SendMessage(ctx context.Context, msg core.OutgoingMessage) error {
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ParseMode = msg.ParseMode
	cfg.ReplyToMessageID = msg.ReplyTo
	if len(msg.Keyboard) > 0 {
		cfg.ReplyMarkup = inlineKeyboard(msg.Keyboard)
	}
	return b.request(ctx, cfg)
}

func (b *Bot) SendPhoto(ctx context.Context, chatID int64, photoRef, caption string) error {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(photoRef))
	cfg.Caption = caption
	return b.request(ctx, cfg)
}

func (b *Bot) SendAudio(ctx context.Context, chatID int64, fileName string, data []byte, replyTo int) error {
	cfg := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	cfg.ReplyToMessageID = replyTo
	return b.request(ctx, cfg)
}

func (b *Bot) SendTyping(ctx context.Context, chatID int64) error {
	return b.request(ctx, tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text, parseMode string) error {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = parseMode
	return b.request(ctx, cfg)
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID string) error {
	return b.request(ctx, tgbotapi.NewCallback(callbackID, ""))
}

// DownloadFile fetches a file by its Telegram file id.
func (b *Bot) DownloadFile(ctx context.Context, fileRef string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileRef})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file info: %w", classifyError(err))
	}

	link := fmt.Sprintf(b.fileEndpoint, b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

// MemberStatus looks up userID in a public chat given by @username.
func (b *Bot) MemberStatus(ctx context.Context, chat string, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{SuperGroupUsername: chat, UserID: userID},
	})
	if err != nil {
		return "", classifyError(err)
	}
	return member.Status, nil
}

func inlineKeyboard(rows [][]core.Button) tgbotapi.InlineKeyboardMarkup {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			if btn.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
			}
		}
		markup = append(markup, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...)
}

// classifyError maps Telegram API errors onto core sentinels.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("telegram: %w", err)
	}
	desc := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", core.ErrRecipientBlocked, apiErr.Message)
	case strings.Contains(desc, "chat not found"):
		return fmt.Errorf("%w: %s", core.ErrChatNotFound, apiErr.Message)
	case strings.Contains(desc, "user not found"), strings.Contains(desc, "participant_id_invalid"):
		return fmt.Errorf("%w: %s", core.ErrMemberNotFound, apiErr.Message)
	default:
		return fmt.Errorf("telegram: %d %s", apiErr.Code, apiErr.Message)
	}
}
