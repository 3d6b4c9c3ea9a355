package store

import "time"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastSeen  time.Time `json:"last_seen"`
}

// InlineData is a base64 media payload embedded in a turn.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is either text or inline media, never both.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// Turn is one role-tagged entry of a conversation history.
type Turn struct {
	Role  string `json:"role"` // "user" or "model"
	Parts []Part `json:"parts"`
}

func TextTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

type Prompt struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

type Stats struct {
	TotalUsers   int `json:"total_users"`
	TotalBlocked int `json:"total_blocked"`
	TotalChats   int `json:"total_chats"`
}
