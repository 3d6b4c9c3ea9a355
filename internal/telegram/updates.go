package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ananyabot/ananya/internal/core"
)

// ConvertUpdate maps a Telegram update onto the core update model. ok is
// false for updates the bot does not act on: channel posts, edits, inline
// queries and membership changes that concern other users.
func ConvertUpdate(u tgbotapi.Update, self core.Identity) (core.Update, bool) {
	out := core.Update{ID: u.UpdateID}
	switch {
	case u.MyChatMember != nil:
		out.Membership = membershipChange(u.MyChatMember)
	case u.ChatMember != nil && u.ChatMember.NewChatMember.User != nil && u.ChatMember.NewChatMember.User.ID == self.ID:
		out.Membership = membershipChange(u.ChatMember)
	case u.CallbackQuery != nil:
		out.Callback = convertCallback(u.CallbackQuery)
	case u.Message != nil:
		out.Message = convertMessage(u.Message, self)
	}
	ok := out.Membership != nil || out.Callback != nil || out.Message != nil
	return out, ok
}

func membershipChange(m *tgbotapi.ChatMemberUpdated) *core.MembershipChange {
	return &core.MembershipChange{ChatID: m.Chat.ID, Status: m.NewChatMember.Status}
}

func convertCallback(q *tgbotapi.CallbackQuery) *core.Callback {
	if q.From == nil {
		return nil
	}
	cb := &core.Callback{
		ID:     q.ID,
		From:   convertUser(q.From),
		ChatID: q.From.ID,
		Kind:   core.ChatPrivate,
		Data:   q.Data,
	}
	if q.Message != nil && q.Message.Chat != nil {
		cb.ChatID = q.Message.Chat.ID
		cb.Kind = chatKind(q.Message.Chat)
		cb.MessageID = q.Message.MessageID
	}
	return cb
}

func convertMessage(m *tgbotapi.Message, self core.Identity) *core.Message {
	if m.From == nil || m.Chat == nil {
		return nil
	}
	msg := &core.Message{
		MessageID: m.MessageID,
		ChatID:    m.Chat.ID,
		Kind:      chatKind(m.Chat),
		From:      convertUser(m.From),
		Text:      m.Text,
		Caption:   m.Caption,
		HasVoice:  m.Voice != nil,
	}
	if msg.Kind == core.ChatChannel {
		return nil
	}
	if n := len(m.Photo); n > 0 {
		// Sizes arrive smallest first.
		msg.PhotoRef = m.Photo[n-1].FileID
	}
	if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil {
		msg.ReplyToSenderID = m.ReplyToMessage.From.ID
	}

	// Commands come from the text, or from the caption of a photo so that
	// "/broadcast" can carry an image.
	text, entities := m.Text, m.Entities
	if msg.PhotoRef != "" {
		text, entities = m.Caption, m.CaptionEntities
	}
	if cmd, args, ok := parseCommand(text, entities, self.Username); ok {
		msg.Command = cmd
		if args != "" {
			msg.ArgText = args
			msg.Args = strings.Fields(args)
		}
	}
	return msg
}

// parseCommand extracts a leading bot command. Commands addressed to another
// bot ("/start@otherbot") are not ours.
func parseCommand(text string, entities []tgbotapi.MessageEntity, botUsername string) (string, string, bool) {
	if len(entities) == 0 {
		return "", "", false
	}
	e := entities[0]
	if e.Offset != 0 || !e.IsCommand() || e.Length > len(text) || e.Length < 2 {
		return "", "", false
	}
	name := text[1:e.Length]
	if at := strings.Index(name, "@"); at != -1 {
		if !strings.EqualFold(name[at+1:], botUsername) {
			return "", "", false
		}
		name = name[:at]
	}
	return strings.ToLower(name), strings.TrimSpace(text[e.Length:]), true
}

func chatKind(c *tgbotapi.Chat) core.ChatKind {
	switch {
	case c.IsPrivate():
		return core.ChatPrivate
	case c.IsChannel():
		return core.ChatChannel
	default:
		return core.ChatGroup
	}
}

func convertUser(u *tgbotapi.User) core.Sender {
	return core.Sender{ID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}
