package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// VerifyCallbackData is the callback payload of the "Verify Me" button.
const VerifyCallbackData = "verify_membership"

// VerifyStatus is the outcome of one membership check.
type VerifyStatus int

const (
	StatusVerified VerifyStatus = iota
	StatusNotInChannel
	StatusNotInGroup
	StatusNotMember
	StatusCheckFailed
)

func (s VerifyStatus) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusNotInChannel:
		return "not_in_channel"
	case StatusNotInGroup:
		return "not_in_group"
	case StatusNotMember:
		return "not_member"
	default:
		return "check_failed"
	}
}

var passingStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

type GateConfig struct {
	AdminID         int64
	ChannelUsername string
	GroupUsername   string
}

// VerificationGate decides whether a sender in a private chat may use the bot,
// based on membership of the announcement channel and the discussion group.
type VerificationGate struct {
	cfg       GateConfig
	members   MembershipChecker
	messenger Messenger
}

func NewVerificationGate(cfg GateConfig, members MembershipChecker, messenger Messenger) *VerificationGate {
	return &VerificationGate{cfg: cfg, members: members, messenger: messenger}
}

// CheckMembership returns true when the session is verified or becomes
// verified by this call. On failure with emitPrompt set, the join
// instructions (or a verification error) are sent to chatID.
func (g *VerificationGate) CheckMembership(ctx context.Context, chatID, userID int64, sess *Session, emitPrompt bool) bool {
	status, err := g.Check(ctx, userID, sess)
	if status == StatusVerified {
		return true
	}
	if emitPrompt {
		if sendErr := g.messenger.SendMessage(ctx, g.failureNotice(chatID, status, err)); sendErr != nil {
			slog.Error("failed to send verification prompt", "chat_id", chatID, "error", sendErr)
		}
	}
	return false
}

// Check runs the state machine without emitting anything. The session flag is
// only ever set, never cleared.
func (g *VerificationGate) Check(ctx context.Context, userID int64, sess *Session) (VerifyStatus, error) {
	if sess.Verified() {
		return StatusVerified, nil
	}
	if g.cfg.AdminID != 0 && userID == g.cfg.AdminID {
		sess.MarkVerified()
		return StatusVerified, nil
	}

	checks := []struct {
		chat   string
		failed VerifyStatus
	}{
		{g.cfg.ChannelUsername, StatusNotInChannel},
		{g.cfg.GroupUsername, StatusNotInGroup},
	}
	for _, c := range checks {
		status, err := g.members.MemberStatus(ctx, c.chat, userID)
		if err != nil {
			if errors.Is(err, ErrMemberNotFound) {
				return StatusNotMember, nil
			}
			slog.Error("membership lookup failed", "chat", c.chat, "user_id", userID, "error", err)
			return StatusCheckFailed, err
		}
		if !passingStatuses[status] {
			return c.failed, nil
		}
	}

	sess.MarkVerified()
	return StatusVerified, nil
}

// JoinKeyboard links to the group and channel and offers the verify button.
func (g *VerificationGate) JoinKeyboard() [][]Button {
	return [][]Button{
		{
			{Text: "1. Join Chat 💬", URL: "https://t.me/" + strings.TrimPrefix(g.cfg.GroupUsername, "@")},
			{Text: "2. Join Channel 📢", URL: "https://t.me/" + strings.TrimPrefix(g.cfg.ChannelUsername, "@")},
		},
		{
			{Text: "✅ Verify Me", Data: VerifyCallbackData},
		},
	}
}

// WelcomePrompt is the join instructions shown on /start to unverified users.
func (g *VerificationGate) WelcomePrompt(chatID int64) OutgoingMessage {
	return OutgoingMessage{
		ChatID: chatID,
		Text: "<b>Welcome! To chat with me, you must be a member of our community.</b>\n\n" +
			"Please join our chat and channel, then click 'Verify Me'.\n\n" +
			fmt.Sprintf("1. <b>Join the Chat:</b> %s\n", g.cfg.GroupUsername) +
			fmt.Sprintf("2. <b>Join the Channel:</b> %s", g.cfg.ChannelUsername),
		ParseMode: "HTML",
		Keyboard:  g.JoinKeyboard(),
	}
}

func (g *VerificationGate) failureNotice(chatID int64, status VerifyStatus, err error) OutgoingMessage {
	msg := OutgoingMessage{ChatID: chatID, ParseMode: "HTML", Keyboard: g.JoinKeyboard()}
	switch status {
	case StatusNotInChannel:
		msg.Text = "It looks like you haven't joined the <b>Channel</b> yet. Please join and click Verify again."
	case StatusNotInGroup:
		msg.Text = "It looks like you haven't joined the <b>Chat Group</b> yet. Please join and click Verify again."
	case StatusNotMember:
		msg.Text = "It looks like you haven't joined both groups yet. Please join them and click Verify again."
	default:
		msg.ParseMode = ""
		msg.Keyboard = nil
		msg.Text = fmt.Sprintf("An error occurred during verification. The bot might not be an admin in the groups. (Error: %v)", err)
	}
	return msg
}
