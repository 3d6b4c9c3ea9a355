package core

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultVoice = "Kore"

// DefaultSessionCapacity bounds the registry. The least recently used
// conversation is dropped first and starts over with defaults.
const DefaultSessionCapacity = 10000

// Session is the in-memory state of one conversation.
type Session struct {
	mu          sync.Mutex
	personality string
	voice       string
	verified    bool
}

func newSession() *Session {
	return &Session{personality: DefaultPersonality, voice: DefaultVoice}
}

func (s *Session) Personality() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personality
}

func (s *Session) SetPersonality(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personality = name
}

func (s *Session) Voice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

func (s *Session) SetVoice(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = name
}

func (s *Session) Verified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

// MarkVerified is one-way: nothing clears the flag for the life of the session.
func (s *Session) MarkVerified() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = true
}

// Reset restores personality and voice defaults. Verification is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personality = DefaultPersonality
	s.voice = DefaultVoice
}

// SessionRegistry maps conversation ids to their sessions.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions *lru.Cache[int64, *Session]
}

func NewSessionRegistry() *SessionRegistry {
	return newSessionRegistry(DefaultSessionCapacity)
}

func newSessionRegistry(size int) *SessionRegistry {
	// New only fails for a non-positive size.
	sessions, _ := lru.New[int64, *Session](size)
	return &SessionRegistry{sessions: sessions}
}

// Get returns the session for chatID, creating it with defaults on first use
// or after it was evicted. created reports whether this call created it.
func (r *SessionRegistry) Get(chatID int64) (sess *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions.Get(chatID); ok {
		return s, false
	}
	s := newSession()
	r.sessions.Add(chatID, s)
	return s, true
}

func (r *SessionRegistry) Len() int {
	return r.sessions.Len()
}

// Voice is a prebuilt speech voice.
type Voice struct {
	Key         string
	Description string
}

var availableVoices = []Voice{
	{"kore", "Kore (Clear, Firm)"},
	{"puck", "Puck (Upbeat, Friendly)"},
	{"leda", "Leda (Youthful, Bright)"},
	{"erinome", "Erinome (Clear, Professional)"},
	{"algenib", "Algenib (Gravelly, Deep)"},
	{"achird", "Achird (Friendly, Warm)"},
	{"vindemiatrix", "Vindemiatrix (Gentle, Soft)"},
}

func AvailableVoices() []Voice {
	out := make([]Voice, len(availableVoices))
	copy(out, availableVoices)
	return out
}

// LookupVoice returns the display name ("Kore") for a voice key in any case.
func LookupVoice(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, v := range availableVoices {
		if v.Key == key {
			return strings.ToUpper(key[:1]) + key[1:], true
		}
	}
	return "", false
}
