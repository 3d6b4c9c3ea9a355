package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/ananyabot/ananya/internal/metrics"
	"github.com/ananyabot/ananya/internal/store"
)

const (
	msgApology           = "Sorry, I had a little hiccup. Could you try that again?"
	msgVoiceNoteReply    = "Arre waah, voice note! Cool. Main abhi voice notes sun nahi sakti, kyunki mere paas kaan nahi hain! 😅 \nAap type karke bataoge toh main pakka reply karungi!"
	voiceNotePlaceholder = "[User sent a voice note]"
	defaultImagePrompt   = "Please describe this image in a friendly and conversational way. Be brief unless the image is complex."
)

// Router outcomes, recorded as the metrics "outcome" label.
const (
	outcomeReplied     = "replied"
	outcomeCommand     = "command"
	outcomeIgnored     = "ignored"
	outcomeUnavailable = "unavailable"
	outcomeUnverified  = "unverified"
	outcomeBlocked     = "blocked"
	outcomeDenied      = "denied"
	outcomeVerified    = "verified"
	outcomeError       = "error"
)

type RouterDeps struct {
	Bot           Identity
	Messenger     Messenger
	Sessions      *SessionRegistry
	Gate          *VerificationGate
	Availability  *AvailabilitySwitch
	Users         *UserDirectory
	Personalities *PersonalityRegistry
	History       *HistoryStore
	LLM           Completer
	Speech        Synthesizer
	Broadcaster   *BroadcastEngine
	Metrics       *metrics.Metrics
}

// Router turns one inbound update into at most one reply. It is safe for
// concurrent use; nothing serializes updates of the same conversation.
type Router struct {
	bot           Identity
	messenger     Messenger
	sessions      *SessionRegistry
	gate          *VerificationGate
	availability  *AvailabilitySwitch
	users         *UserDirectory
	personalities *PersonalityRegistry
	history       *HistoryStore
	llm           Completer
	speech        Synthesizer
	broadcaster   *BroadcastEngine
	metrics       *metrics.Metrics
	commands      map[string]command
}

func NewRouter(deps RouterDeps) *Router {
	r := &Router{
		bot:           deps.Bot,
		messenger:     deps.Messenger,
		sessions:      deps.Sessions,
		gate:          deps.Gate,
		availability:  deps.Availability,
		users:         deps.Users,
		personalities: deps.Personalities,
		history:       deps.History,
		llm:           deps.LLM,
		speech:        deps.Speech,
		broadcaster:   deps.Broadcaster,
		metrics:       deps.Metrics,
	}
	r.commands = r.commandTable()
	return r
}

func (r *Router) HandleUpdate(ctx context.Context, u Update) {
	switch {
	case u.Membership != nil:
		r.trackChat(ctx, *u.Membership)
		r.metrics.RecordMessage("membership", outcomeCommand)
	case u.Callback != nil:
		r.guard(ctx, u.Callback.ChatID, "callback", func() (string, error) {
			return r.handleCallback(ctx, u.Callback)
		})
	case u.Message != nil:
		r.guard(ctx, u.Message.ChatID, messageKind(u.Message), func() (string, error) {
			return r.handleMessage(ctx, u.Message)
		})
	}
}

// guard runs fn and turns an error or a panic into one apology message.
func (r *Router) guard(ctx context.Context, chatID int64, kind string, fn func() (string, error)) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic while handling update", "chat_id", chatID, "kind", kind, "panic", rec, "stack", string(debug.Stack()))
			r.metrics.RecordMessage(kind, outcomeError)
			r.apologize(ctx, chatID)
		}
	}()

	outcome, err := fn()
	if err != nil {
		slog.Error("failed to handle update", "chat_id", chatID, "kind", kind, "error", err)
		r.metrics.RecordMessage(kind, outcomeError)
		r.apologize(ctx, chatID)
		return
	}
	r.metrics.RecordMessage(kind, outcome)
}

func (r *Router) apologize(ctx context.Context, chatID int64) {
	if err := r.messenger.SendMessage(ctx, OutgoingMessage{ChatID: chatID, Text: msgApology}); err != nil {
		slog.Error("failed to send apology", "chat_id", chatID, "error", err)
	}
}

func messageKind(m *Message) string {
	switch {
	case m.Command != "":
		return "command"
	case m.HasVoice:
		return "voice"
	case m.PhotoRef != "":
		return "photo"
	case m.Text != "":
		return "text"
	default:
		return "other"
	}
}

func (r *Router) handleMessage(ctx context.Context, m *Message) (string, error) {
	if !r.users.IsAdmin(m.From.ID) && !r.availability.Get(ctx) {
		return outcomeUnavailable, nil
	}

	sess, created := r.sessions.Get(m.ChatID)
	if created {
		r.users.AddActiveChat(ctx, m.ChatID)
	}

	if m.Command != "" {
		return r.dispatchCommand(ctx, m, sess)
	}

	if outcome, ok := r.admit(ctx, m, sess); !ok {
		return outcome, nil
	}

	text, ok := r.addressed(m)
	if !ok {
		return outcomeIgnored, nil
	}

	switch {
	case m.HasVoice:
		return r.handleVoice(ctx, m)
	case m.PhotoRef != "":
		return r.handleImage(ctx, m, sess, text)
	case text != "":
		return r.handleText(ctx, m, sess, text)
	default:
		return outcomeIgnored, nil
	}
}

// admit runs verification (private chats only), logs the sender and applies
// the block list.
func (r *Router) admit(ctx context.Context, m *Message, sess *Session) (string, bool) {
	if m.Kind == ChatPrivate && !r.gate.CheckMembership(ctx, m.ChatID, m.From.ID, sess, true) {
		return outcomeUnverified, false
	}
	r.users.LogUser(ctx, m.From)
	if r.users.IsBlocked(ctx, m.From.ID) {
		return outcomeBlocked, false
	}
	return "", true
}

// addressed returns the message text with the bot mention removed. In groups
// a message is only addressed to the bot when it mentions the bot or replies
// to one of its messages.
func (r *Router) addressed(m *Message) (string, bool) {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if m.Kind == ChatPrivate {
		return strings.TrimSpace(text), true
	}

	mention := "@" + r.bot.Username
	isMention := r.bot.Username != "" && strings.Contains(text, mention)
	isReply := r.bot.ID != 0 && m.ReplyToSenderID == r.bot.ID
	if !isMention && !isReply {
		return "", false
	}
	if isMention {
		text = strings.ReplaceAll(text, mention, "")
	}
	return strings.TrimSpace(text), true
}

func (r *Router) handleText(ctx context.Context, m *Message, sess *Session, text string) (string, error) {
	r.typing(ctx, m.ChatID)

	history := r.history.Read(ctx, m.ChatID)
	res := r.llm.Complete(ctx, CompletionRequest{
		Text:         text,
		History:      history,
		SystemPrompt: r.personalities.ResolvePrompt(ctx, sess.Personality(), ""),
	})

	if err := r.messenger.SendMessage(ctx, OutgoingMessage{ChatID: m.ChatID, Text: res.Text}); err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	r.commit(ctx, m.ChatID, history, text, res.Text)
	return outcomeReplied, nil
}

func (r *Router) handleImage(ctx context.Context, m *Message, sess *Session, caption string) (string, error) {
	r.typing(ctx, m.ChatID)

	data, mimeType, err := r.messenger.DownloadFile(ctx, m.PhotoRef)
	if err != nil {
		return "", fmt.Errorf("failed to download photo: %w", err)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	prompt := caption
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	history := r.history.Read(ctx, m.ChatID)
	res := r.llm.Complete(ctx, CompletionRequest{
		Text:         prompt,
		History:      history,
		SystemPrompt: r.personalities.ResolvePrompt(ctx, sess.Personality(), ""),
		Image:        &Image{MIMEType: mimeType, Data: data},
	})

	if err := r.messenger.SendMessage(ctx, OutgoingMessage{ChatID: m.ChatID, Text: res.Text, ReplyTo: m.MessageID}); err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	// The image itself is not kept; later turns only see the caption.
	r.commit(ctx, m.ChatID, history, fmt.Sprintf("[User sent an image with caption: %s]", prompt), res.Text)
	return outcomeReplied, nil
}

func (r *Router) handleVoice(ctx context.Context, m *Message) (string, error) {
	if err := r.messenger.SendMessage(ctx, OutgoingMessage{ChatID: m.ChatID, Text: msgVoiceNoteReply, ReplyTo: m.MessageID}); err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	r.commit(ctx, m.ChatID, r.history.Read(ctx, m.ChatID), voiceNotePlaceholder, msgVoiceNoteReply)
	return outcomeReplied, nil
}

// commit appends one user/model pair to history and writes it back.
func (r *Router) commit(ctx context.Context, chatID int64, history []store.Turn, userText, modelText string) {
	turns := append(history[:len(history):len(history)],
		store.TextTurn(store.RoleUser, userText),
		store.TextTurn(store.RoleModel, modelText),
	)
	r.history.Write(ctx, chatID, turns)
}

func (r *Router) typing(ctx context.Context, chatID int64) {
	if err := r.messenger.SendTyping(ctx, chatID); err != nil {
		slog.Debug("failed to send typing action", "chat_id", chatID, "error", err)
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *Callback) (string, error) {
	if !r.users.IsAdmin(cb.From.ID) && !r.availability.Get(ctx) {
		return outcomeUnavailable, nil
	}
	if err := r.messenger.AnswerCallback(ctx, cb.ID); err != nil {
		slog.Warn("failed to answer callback", "callback_id", cb.ID, "error", err)
	}
	if cb.Data != VerifyCallbackData {
		return outcomeIgnored, nil
	}

	// Same session the message path reads, so a success here admits later messages.
	sess, _ := r.sessions.Get(cb.ChatID)
	if status, _ := r.gate.Check(ctx, cb.From.ID, sess); status == StatusVerified {
		err := r.messenger.EditMessage(ctx, cb.ChatID, cb.MessageID,
			"<b>Verification successful!</b> ✅\n\nYou're all set. You can chat with me now!", "HTML")
		if err != nil {
			return "", fmt.Errorf("failed to confirm verification: %w", err)
		}
		return outcomeVerified, nil
	}

	err := r.messenger.SendMessage(ctx, OutgoingMessage{
		ChatID: cb.ChatID,
		Text: "❌ <b>Verification Failed</b>\n\nI checked, and it looks like you haven't joined both the chat and the channel yet. \n\n" +
			"Please join both and then click '✅ Verify Me' again.",
		ParseMode: "HTML",
		Keyboard:  r.gate.JoinKeyboard(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send verification failure: %w", err)
	}
	return outcomeUnverified, nil
}

func (r *Router) trackChat(ctx context.Context, mc MembershipChange) {
	switch mc.Status {
	case "member", "administrator":
		slog.Info("added to chat", "chat_id", mc.ChatID)
		r.users.AddActiveChat(ctx, mc.ChatID)
	case "left", "kicked":
		slog.Info("removed from chat", "chat_id", mc.ChatID)
		r.users.RemoveActiveChat(ctx, mc.ChatID)
	}
}
