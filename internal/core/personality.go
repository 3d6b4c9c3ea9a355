package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const DefaultPersonality = "default"

var builtinPersonalities = map[string]string{
	"default": "You are Ananya. You are a helpful and friendly AI with a warm, human-like personality. " +
		"Talk naturally, as a real person would. Be kind, polite, engaging, witty, and charming. " +
		"You can be a little playful sometimes, and may drop an emoji now and then. " +
		"Your name is Ananya. Avoid using excessive emojis. " +
		"Be a good, supportive friend. " +
		"IMPORTANT: Keep your answers concise and to the point. Answer what the user asks without unnecessary filler.",
	"spiritual": "You are Ananya, in spiritual guide mode. You answer questions based on the wisdom of Hindu granths " +
		"(like the Vedas, Upanishads, Puranas, Ramayana, Mahabharata, and Bhagavad Gita). " +
		"You should quote or refer to teachings from these texts when relevant. Your tone is calm, wise, and compassionate.",
	"nationalist": "You are Ananya, in nationalist mode. You are a proud Indian and you're happy to share that. " +
		"Talk about India's culture, history, and achievements with genuine enthusiasm. " +
		"Your tone is positive, confident, and full of hope for the country's future. " +
		"It's like talking to a friend who really loves their homeland.",
}

// PromptSource tells where a resolved prompt came from.
type PromptSource string

const (
	SourceDatabase PromptSource = "database"
	SourceBuiltin  PromptSource = "local default"
)

type PromptEntry struct {
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`
	IsLocal bool   `json:"is_local"`
}

// PersonalityRegistry resolves personality names to system prompts. Persisted
// overrides shadow the built-in set; built-in names can never be deleted.
type PersonalityRegistry struct {
	repo PromptRepository
}

func NewPersonalityRegistry(repo PromptRepository) *PersonalityRegistry {
	return &PersonalityRegistry{repo: repo}
}

// NormalizeName lowercases and trims a personality name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func IsBuiltinPersonality(name string) bool {
	_, ok := builtinPersonalities[NormalizeName(name)]
	return ok
}

// BuiltinPersonalityNames returns the built-in names in display order.
func BuiltinPersonalityNames() []string {
	return []string{"default", "spiritual", "nationalist"}
}

// ResolvePrompt returns override verbatim when it is non-empty. Otherwise it
// returns the persisted text for name, then the built-in text, and finally the
// built-in default.
func (p *PersonalityRegistry) ResolvePrompt(ctx context.Context, name, override string) string {
	if override != "" {
		return override
	}
	if text, _, ok := p.Lookup(ctx, name); ok {
		return text
	}
	return builtinPersonalities[DefaultPersonality]
}

// Lookup finds name in the overlay, then in the built-in set. A storage
// failure is logged and treated as a missing override.
func (p *PersonalityRegistry) Lookup(ctx context.Context, name string) (string, PromptSource, bool) {
	name = NormalizeName(name)
	if name == "" {
		return "", "", false
	}
	stored, err := p.repo.GetPrompt(ctx, name)
	if err != nil {
		slog.Error("failed to read personality override", "name", name, "error", err)
	} else if stored != nil {
		return stored.Prompt, SourceDatabase, true
	}
	if text, ok := builtinPersonalities[name]; ok {
		return text, SourceBuiltin, true
	}
	return "", "", false
}

func (p *PersonalityRegistry) IsValidPersonality(ctx context.Context, name string) bool {
	_, _, ok := p.Lookup(ctx, name)
	return ok
}

// SetPrompt upserts an override. Both name and text must be non-empty.
func (p *PersonalityRegistry) SetPrompt(ctx context.Context, name, text string) error {
	name = NormalizeName(name)
	if name == "" {
		return fmt.Errorf("%w: personality name is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidArgument)
	}
	return p.repo.SavePrompt(ctx, name, text)
}

// DeletePrompt removes an override and reports whether one existed.
func (p *PersonalityRegistry) DeletePrompt(ctx context.Context, name string) (bool, error) {
	name = NormalizeName(name)
	if name == "" {
		return false, fmt.Errorf("%w: personality name is required", ErrInvalidArgument)
	}
	if IsBuiltinPersonality(name) {
		return false, fmt.Errorf("%w: %q is a core personality", ErrProtectedResource, name)
	}
	return p.repo.DeletePrompt(ctx, name)
}

// List returns the persisted overrides followed by the built-ins they do not shadow.
func (p *PersonalityRegistry) List(ctx context.Context) ([]PromptEntry, error) {
	stored, err := p.repo.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]PromptEntry, 0, len(stored)+len(builtinPersonalities))
	shadowed := make(map[string]bool, len(stored))
	for _, s := range stored {
		entries = append(entries, PromptEntry{Name: s.Name, Prompt: s.Prompt})
		shadowed[s.Name] = true
	}
	for _, name := range BuiltinPersonalityNames() {
		if !shadowed[name] {
			entries = append(entries, PromptEntry{Name: name, Prompt: builtinPersonalities[name], IsLocal: true})
		}
	}
	return entries, nil
}
