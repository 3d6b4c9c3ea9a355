package core

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ananyabot/ananya/internal/audio"
)

const (
	msgPermissionDenied = "You do not have permission to use this command."
	msgAdminOnly        = "Sorry, this is an admin-only command."

	newsSystemPrompt = "You are a news summarizer. You must provide concise, factual summaries of the news. " +
		"Your task is to act as a news reporting service. " +
		"Provide verified news only. Give headlines and a brief summary for each. " +
		"ALWAYS cite your sources using the (Source: [URL]) format at the end of each news item."
)

type commandHandler func(ctx context.Context, m *Message, sess *Session) error

type command struct {
	handler commandHandler
	// gated commands go through verification, user logging and the block list.
	gated     bool
	adminOnly bool
	denyText  string
}

func (r *Router) commandTable() map[string]command {
	admin := func(h commandHandler) command {
		return command{handler: h, adminOnly: true, denyText: msgPermissionDenied}
	}
	return map[string]command{
		"start": {handler: r.cmdStart},
		"help":  {handler: r.cmdHelp, gated: true},
		"reset": {handler: r.cmdReset, gated: true},
		"set":   {handler: r.cmdSet, gated: true},
		"voice": {handler: r.cmdVoice, gated: true},
		"say":   {handler: r.cmdSay, gated: true},

		"news": {handler: r.cmdNews, adminOnly: true, denyText: msgAdminOnly},

		"admin":               admin(r.cmdAdmin),
		"admin_stats":         admin(r.cmdAdminStats),
		"block":               admin(r.cmdBlock),
		"unblock":             admin(r.cmdUnblock),
		"admin_get_prompt":    admin(r.cmdGetPrompt),
		"admin_set_prompt":    admin(r.cmdSetPrompt),
		"admin_delete_prompt": admin(r.cmdDeletePrompt),
		"broadcast":           admin(r.cmdBroadcast),
		"bot_on":              admin(r.cmdBotOn),
		"bot_off":             admin(r.cmdBotOff),
		"bot_status":          admin(r.cmdBotStatus),
	}
}

func (r *Router) dispatchCommand(ctx context.Context, m *Message, sess *Session) (string, error) {
	cmd, ok := r.commands[m.Command]
	if !ok {
		return outcomeIgnored, nil
	}
	if cmd.gated {
		if outcome, ok := r.admit(ctx, m, sess); !ok {
			return outcome, nil
		}
	}
	if cmd.adminOnly && !r.users.IsAdmin(m.From.ID) {
		return outcomeDenied, r.reply(ctx, m, cmd.denyText)
	}
	if err := cmd.handler(ctx, m, sess); err != nil {
		return "", fmt.Errorf("/%s: %w", m.Command, err)
	}
	return outcomeCommand, nil
}

func (r *Router) reply(ctx context.Context, m *Message, text string) error {
	return r.messenger.SendMessage(ctx, OutgoingMessage{ChatID: m.ChatID, Text: text})
}

func (r *Router) replyHTML(ctx context.Context, m *Message, text string) error {
	return r.messenger.SendMessage(ctx, OutgoingMessage{ChatID: m.ChatID, Text: text, ParseMode: "HTML"})
}

func (r *Router) cmdStart(ctx context.Context, m *Message, sess *Session) error {
	r.users.LogUser(ctx, m.From)
	if r.users.IsBlocked(ctx, m.From.ID) {
		return nil
	}
	r.users.AddActiveChat(ctx, m.ChatID)

	if m.Kind != ChatPrivate {
		return r.replyHTML(ctx, m, "Hi everyone! I'm Ananya, your friendly AI assistant. 🇮🇳\n\n"+
			"To talk to me in this group, please @-mention me "+
			fmt.Sprintf("(e.g., @%s) or reply to my messages.\n\n", r.bot.Username)+
			"Type /help to see all my commands and personalities!")
	}

	if r.gate.CheckMembership(ctx, m.ChatID, m.From.ID, sess, false) {
		return r.replyHTML(ctx, m, fmt.Sprintf("Hi %s! I'm Ananya, your friendly AI assistant. 🇮🇳\n\n", html.EscapeString(m.From.FirstName))+
			"I see you're already a member of our community. Welcome back! 😉\n\n"+
			"You can chat with me, or type /help to see all my commands.")
	}
	return r.messenger.SendMessage(ctx, r.gate.WelcomePrompt(m.ChatID))
}

func (r *Router) cmdHelp(ctx context.Context, m *Message, _ *Session) error {
	var b strings.Builder
	b.WriteString("<b>How I Work</b>\n")
	b.WriteString("I am a multi-personality AI bot! You can change my personality at any time.\n\n")
	b.WriteString("• <b>In Private Chat:</b> I respond to all messages.\n")
	fmt.Fprintf(&b, "• <b>In Group Chats:</b> I respond when you @-mention me (<code>@%s</code>) or when you reply to one of my messages.\n\n", r.bot.Username)
	b.WriteString("<b>Public Commands:</b>\n")
	b.WriteString("<code>/start</code> - Welcome message.\n")
	b.WriteString("<code>/help</code> - Shows this help panel.\n")
	b.WriteString("<code>/reset</code> - Resets me to my default friendly personality.\n")
	b.WriteString("<code>/say &lt;text&gt;</code> - I will speak the text back to you in a .wav audio file.\n")
	b.WriteString("<code>/voice &lt;name&gt;</code> - Change my voice for the /say command. Type <code>/voice</code> to see all options.\n")
	b.WriteString("<code>/set &lt;name&gt;</code> - Change my personality (e.g., <code>/set spiritual</code>).\n\n")
	b.WriteString("<b>Default Personalities:</b>\n")
	for _, name := range BuiltinPersonalityNames()[1:] {
		fmt.Fprintf(&b, "• <code>%s</code>\n", name)
	}
	b.WriteString("(Your admin can add more!)\n\n")
	fmt.Fprintf(&b, `For more information and help, you can <a href="tg://user?id=%d">contact my admin</a>.`, r.users.AdminID())
	return r.replyHTML(ctx, m, b.String())
}

func (r *Router) cmdReset(ctx context.Context, m *Message, sess *Session) error {
	sess.Reset()
	r.history.Reset(ctx, m.ChatID)
	return r.reply(ctx, m, "I'm back to my natural self! I've also cleared our recent chat history for a fresh start.")
}

func (r *Router) cmdSet(ctx context.Context, m *Message, sess *Session) error {
	if len(m.Args) == 0 {
		return r.reply(ctx, m, "Usage: /set <personality_name>\n(e.g., /set spiritual)")
	}
	name := NormalizeName(m.Args[0])
	if !r.personalities.IsValidPersonality(ctx, name) {
		return r.reply(ctx, m, fmt.Sprintf("Sorry, I don't recognize the personality '%s'.", name))
	}
	if sess.Personality() != name {
		r.history.Reset(ctx, m.ChatID)
	}
	sess.SetPersonality(name)
	return r.replyHTML(ctx, m, fmt.Sprintf("I am now in <b>%s</b> mode. How can I help?", html.EscapeString(name)))
}

func (r *Router) cmdVoice(ctx context.Context, m *Message, sess *Session) error {
	requested := strings.TrimSpace(m.ArgText)
	if requested == "" {
		var b strings.Builder
		b.WriteString("<b>Choose a voice for me!</b>\n\n")
		fmt.Fprintf(&b, "Your current voice is: <b>%s</b>\n\n", sess.Voice())
		b.WriteString("Available voices:\n")
		for _, v := range AvailableVoices() {
			fmt.Fprintf(&b, "• <code>/voice %s</code> - %s\n", v.Key, v.Description)
		}
		return r.replyHTML(ctx, m, b.String())
	}

	voice, ok := LookupVoice(requested)
	if !ok {
		return r.replyHTML(ctx, m, "Sorry, I don't recognize that voice. Type <code>/voice</code> to see the list.")
	}
	sess.SetVoice(voice)
	return r.replyHTML(ctx, m, fmt.Sprintf("My voice is now set to <b>%s</b>! Try it out with the <code>/say</code> command.", voice))
}

func (r *Router) cmdSay(ctx context.Context, m *Message, sess *Session) error {
	text := strings.TrimSpace(m.ArgText)
	if text == "" {
		return r.reply(ctx, m, "Usage: /say <text to speak>")
	}
	r.typing(ctx, m.ChatID)

	pcm, err := r.speech.Synthesize(ctx, text, sess.Voice())
	if err != nil {
		var speechErr *SpeechError
		if errors.As(err, &speechErr) {
			return r.reply(ctx, m, speechErr.UserMessage())
		}
		return r.reply(ctx, m, fmt.Sprintf("Sorry, an error occurred: %v", err))
	}

	wav, err := audio.PCMToWAV(pcm)
	if err != nil {
		slog.Error("failed to package audio", "chat_id", m.ChatID, "error", err)
		return r.reply(ctx, m, "Sorry, I couldn't package the audio file.")
	}
	return r.messenger.SendAudio(ctx, m.ChatID, "ananya_reply.wav", wav, m.MessageID)
}

func (r *Router) cmdNews(ctx context.Context, m *Message, _ *Session) error {
	r.users.LogUser(ctx, m.From)

	query := "Provide a summary of the top 5 latest world and national news headlines."
	if topic := strings.TrimSpace(m.ArgText); topic != "" {
		query = "Provide a news summary about: " + topic
	}
	r.typing(ctx, m.ChatID)

	res := r.llm.Complete(ctx, CompletionRequest{
		Text:         query,
		SystemPrompt: r.personalities.ResolvePrompt(ctx, "", newsSystemPrompt),
		UseSearch:    true,
	})
	return r.reply(ctx, m, res.Text)
}

func (r *Router) cmdAdmin(ctx context.Context, m *Message, _ *Session) error {
	return r.replyHTML(ctx, m, "<b>Ananya Bot Admin Panel</b>\n\n"+
		"Here are your available commands:\n\n"+
		"<b>User Management:</b>\n"+
		"• <code>/block &lt;user_id&gt;</code> - Blocks a user from the bot.\n"+
		"• <code>/unblock &lt;user_id&gt;</code> - Unblocks a user.\n\n"+
		"<b>Bot Control:</b>\n"+
		"• <code>/bot_on</code>, <code>/bot_off</code> - Turns the bot on or off for everyone but you.\n"+
		"• <code>/bot_status</code> - Shows whether the bot is on.\n"+
		"• <code>/admin_stats</code> - Shows usage statistics.\n\n"+
		"<b>Content Management:</b>\n"+
		"• <code>/news [query]</code> - Fetches verified news.\n"+
		"• <code>/broadcast &lt;text&gt;</code> - Sends text to all users.\n"+
		"• <code>/broadcast</code> (as caption) - Sends a photo and caption to all users.\n\n"+
		"<b>Personality Management:</b>\n"+
		"• <code>/admin_get_prompt &lt;name&gt;</code> - Shows prompt for 'default', 'spiritual', or any custom name.\n"+
		"• <code>/admin_set_prompt &lt;name&gt; &lt;text&gt;</code> - Sets a new persistent prompt for a personality.\n"+
		"• <code>/admin_delete_prompt &lt;name&gt;</code> - Deletes a custom prompt from the DB.")
}

func (r *Router) cmdAdminStats(ctx context.Context, m *Message, _ *Session) error {
	stats, err := r.users.Stats(ctx)
	if err != nil {
		slog.Error("failed to fetch stats", "error", err)
		return r.reply(ctx, m, "Error fetching stats.")
	}
	return r.replyHTML(ctx, m, fmt.Sprintf("<b>Bot Statistics</b>\n"+
		"• <b>Total Unique Users:</b> %d\n"+
		"• <b>Total Blocked Users:</b> %d\n"+
		"• <b>Total Active Chats (Groups + Private):</b> %d",
		stats.TotalUsers, stats.TotalBlocked, stats.TotalChats))
}

func parseUserID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	return id, err == nil
}

func (r *Router) cmdBlock(ctx context.Context, m *Message, _ *Session) error {
	id, ok := parseUserID(m.Args)
	if !ok {
		return r.reply(ctx, m, "Usage: /block <user_id>")
	}
	if err := r.users.Block(ctx, id); err != nil {
		if errors.Is(err, ErrProtectedResource) {
			return r.reply(ctx, m, "Cannot block the admin.")
		}
		slog.Error("failed to block user", "user_id", id, "error", err)
		return r.reply(ctx, m, "An error occurred while blocking.")
	}
	return r.reply(ctx, m, fmt.Sprintf("User %d has been blocked.", id))
}

func (r *Router) cmdUnblock(ctx context.Context, m *Message, _ *Session) error {
	id, ok := parseUserID(m.Args)
	if !ok {
		return r.reply(ctx, m, "Usage: /unblock <user_id>")
	}
	existed, err := r.users.Unblock(ctx, id)
	if err != nil {
		slog.Error("failed to unblock user", "user_id", id, "error", err)
		return r.reply(ctx, m, "An error occurred while unblocking.")
	}
	if !existed {
		return r.reply(ctx, m, fmt.Sprintf("User %d was not in the block list.", id))
	}
	return r.reply(ctx, m, fmt.Sprintf("User %d has been unblocked.", id))
}

func (r *Router) cmdGetPrompt(ctx context.Context, m *Message, _ *Session) error {
	if len(m.Args) == 0 {
		return r.reply(ctx, m, "Usage: /admin_get_prompt <name>")
	}
	name := NormalizeName(m.Args[0])
	text, source, ok := r.personalities.Lookup(ctx, name)
	if !ok {
		return r.reply(ctx, m, fmt.Sprintf("Personality '%s' not found in database or local defaults.", name))
	}
	return r.replyHTML(ctx, m, fmt.Sprintf("<b>Prompt for '%s' (from %s):</b>\n\n%s",
		html.EscapeString(name), source, html.EscapeString(text)))
}

func (r *Router) cmdSetPrompt(ctx context.Context, m *Message, _ *Session) error {
	if len(m.Args) == 0 {
		return r.reply(ctx, m, "Usage: /admin_set_prompt <name> <new_prompt_text>")
	}
	name := NormalizeName(m.Args[0])
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(m.ArgText), m.Args[0]))

	if err := r.personalities.SetPrompt(ctx, name, text); err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			return r.reply(ctx, m, "Error: Prompt cannot be empty. Usage: /admin_set_prompt <name> <prompt_text>")
		}
		slog.Error("failed to save prompt", "name", name, "error", err)
		return r.reply(ctx, m, fmt.Sprintf("An error occurred while saving: %v", err))
	}
	return r.replyHTML(ctx, m, fmt.Sprintf("Successfully saved new persistent prompt for '%s' to the database.\n"+
		"Users can now access it with: <code>/set %s</code>", html.EscapeString(name), html.EscapeString(name)))
}

func (r *Router) cmdDeletePrompt(ctx context.Context, m *Message, _ *Session) error {
	if len(m.Args) == 0 {
		return r.reply(ctx, m, "Usage: /admin_delete_prompt <name>")
	}
	name := NormalizeName(m.Args[0])
	existed, err := r.personalities.DeletePrompt(ctx, name)
	switch {
	case errors.Is(err, ErrProtectedResource):
		return r.reply(ctx, m, "Cannot delete a core personality. You can only overwrite it with /admin_set_prompt.")
	case err != nil:
		slog.Error("failed to delete prompt", "name", name, "error", err)
		return r.reply(ctx, m, fmt.Sprintf("An error occurred while deleting: %v", err))
	case !existed:
		return r.reply(ctx, m, fmt.Sprintf("No custom prompt named '%s' was found in the database.", name))
	default:
		return r.reply(ctx, m, fmt.Sprintf("Successfully deleted custom prompt '%s' from the database.", name))
	}
}

func (r *Router) cmdBroadcast(ctx context.Context, m *Message, _ *Session) error {
	payload := BroadcastPayload{}
	if m.PhotoRef != "" {
		payload.PhotoRef = m.PhotoRef
		payload.Caption = strings.TrimSpace(m.ArgText)
	} else {
		payload.Text = strings.TrimSpace(m.ArgText)
		if payload.Text == "" {
			return r.reply(ctx, m, "Usage: /broadcast <text to send>\nOr send an image with /broadcast in the caption.")
		}
	}

	recipients, err := r.users.RecipientIDs(ctx)
	if err != nil {
		slog.Error("failed to fetch user list for broadcast", "error", err)
		return r.reply(ctx, m, fmt.Sprintf("Failed to fetch user list: %v", err))
	}
	if err := r.reply(ctx, m, fmt.Sprintf("Starting broadcast to %d users... This may take a while.", len(recipients))); err != nil {
		return err
	}

	res, err := r.broadcaster.Broadcast(ctx, payload, recipients)
	if err != nil {
		return r.reply(ctx, m, "I can only broadcast text or a photo with a caption.")
	}
	return r.replyHTML(ctx, m, res.Summary())
}

func (r *Router) cmdBotOn(ctx context.Context, m *Message, _ *Session) error {
	return r.setAvailability(ctx, m, true)
}

func (r *Router) cmdBotOff(ctx context.Context, m *Message, _ *Session) error {
	return r.setAvailability(ctx, m, false)
}

func (r *Router) setAvailability(ctx context.Context, m *Message, on bool) error {
	if err := r.availability.Set(ctx, on); err != nil {
		slog.Error("failed to set bot status", "error", err)
		return r.reply(ctx, m, "Error: could not update the bot status.")
	}
	if on {
		return r.reply(ctx, m, "The bot is now ON for everyone.")
	}
	return r.reply(ctx, m, "The bot is now OFF. Only you can use it until you turn it back on.")
}

func (r *Router) cmdBotStatus(ctx context.Context, m *Message, _ *Session) error {
	if r.availability.Get(ctx) {
		return r.reply(ctx, m, "The bot is currently ON.")
	}
	return r.reply(ctx, m, "The bot is currently OFF.")
}
