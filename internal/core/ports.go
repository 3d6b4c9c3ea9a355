package core

import (
	"context"
	"errors"

	"github.com/ananyabot/ananya/internal/store"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrProtectedResource = errors.New("protected resource")
	ErrNotConfigured     = errors.New("not configured")

	// Transport classifications. Adapters wrap their native errors with these.
	ErrMemberNotFound   = errors.New("user not found in chat")
	ErrRecipientBlocked = errors.New("recipient blocked the bot")
	ErrChatNotFound     = errors.New("chat not found")
)

type ChatKind int

const (
	ChatPrivate ChatKind = iota
	ChatGroup
	ChatChannel
)

// Button is an inline keyboard button carrying either a URL or callback data.
type Button struct {
	Text string
	URL  string
	Data string
}

type OutgoingMessage struct {
	ChatID    int64
	Text      string
	ParseMode string // "HTML", "Markdown" or empty
	ReplyTo   int
	Keyboard  [][]Button
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) error
	SendPhoto(ctx context.Context, chatID int64, photoRef, caption string) error
	SendAudio(ctx context.Context, chatID int64, fileName string, data []byte, replyTo int) error
	SendTyping(ctx context.Context, chatID int64) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text, parseMode string) error
	AnswerCallback(ctx context.Context, callbackID string) error
	DownloadFile(ctx context.Context, fileRef string) ([]byte, string, error)
}

// MembershipChecker looks up a user's status in a group or channel.
// It returns ErrMemberNotFound (wrapped) when the user has no relation to the chat.
type MembershipChecker interface {
	MemberStatus(ctx context.Context, chat string, userID int64) (string, error)
}

type HistoryRepository interface {
	GetHistory(ctx context.Context, chatID int64) ([]store.Turn, error)
	SaveHistory(ctx context.Context, chatID int64, turns []store.Turn) error
	DeleteHistory(ctx context.Context, chatID int64) error
}

type PromptRepository interface {
	GetPrompt(ctx context.Context, name string) (*store.Prompt, error)
	SavePrompt(ctx context.Context, name, prompt string) error
	DeletePrompt(ctx context.Context, name string) (bool, error)
	ListPrompts(ctx context.Context) ([]store.Prompt, error)
}

type StatusRepository interface {
	GetBotStatus(ctx context.Context) (*bool, error)
	SetBotStatus(ctx context.Context, isOn bool) error
}

type UserRepository interface {
	UpsertUser(ctx context.Context, user store.User) error
	ListUserIDs(ctx context.Context) ([]int64, error)
	BlockUser(ctx context.Context, id int64) error
	UnblockUser(ctx context.Context, id int64) (bool, error)
	IsBlocked(ctx context.Context, id int64) (bool, error)
	AddActiveChat(ctx context.Context, chatID int64) error
	RemoveActiveChat(ctx context.Context, chatID int64) error
	Stats(ctx context.Context) (store.Stats, error)
}

// Identity is the bot's own account on the transport.
type Identity struct {
	ID       int64
	Username string
}

type Sender struct {
	ID        int64
	Username  string
	FirstName string
}

// Message is one inbound chat message, already decoded from the transport.
type Message struct {
	MessageID       int
	ChatID          int64
	Kind            ChatKind
	From            Sender
	Text            string
	Caption         string
	PhotoRef        string // largest photo size, empty when no photo
	HasVoice        bool
	ReplyToSenderID int64 // author of the replied-to message, 0 when not a reply
	Command         string
	Args            []string
	ArgText         string // raw text after the command
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	From      Sender
	ChatID    int64
	Kind      ChatKind
	MessageID int
	Data      string
}

// MembershipChange reports a change of the bot's own status in a chat.
type MembershipChange struct {
	ChatID int64
	Status string
}

// Update carries exactly one of its fields.
type Update struct {
	ID         int
	Message    *Message
	Callback   *Callback
	Membership *MembershipChange
}
