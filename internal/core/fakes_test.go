package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ananyabot/ananya/internal/store"
)

var errStorage = errors.New("storage unavailable")

// memStore is an in-memory implementation of every repository interface.
type memStore struct {
	mu       sync.Mutex
	fail     bool
	users    []store.User
	blocked  map[int64]bool
	chats    map[int64]bool
	history  map[int64][]store.Turn
	prompts  map[string]string
	status   *bool
	getCalls int
}

func newMemStore() *memStore {
	return &memStore{
		blocked: make(map[int64]bool),
		chats:   make(map[int64]bool),
		history: make(map[int64][]store.Turn),
		prompts: make(map[string]string),
	}
}

func (s *memStore) UpsertUser(_ context.Context, user store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	for i := range s.users {
		if s.users[i].ID == user.ID {
			s.users[i] = user
			return nil
		}
	}
	s.users = append(s.users, user)
	return nil
}

func (s *memStore) ListUserIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStorage
	}
	ids := make([]int64, 0, len(s.users))
	for _, u := range s.users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (s *memStore) BlockUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	s.blocked[id] = true
	return nil
}

func (s *memStore) UnblockUser(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errStorage
	}
	existed := s.blocked[id]
	delete(s.blocked, id)
	return existed, nil
}

func (s *memStore) IsBlocked(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errStorage
	}
	return s.blocked[id], nil
}

func (s *memStore) AddActiveChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	s.chats[chatID] = true
	return nil
}

func (s *memStore) RemoveActiveChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	delete(s.chats, chatID)
	return nil
}

func (s *memStore) Stats(context.Context) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return store.Stats{}, errStorage
	}
	return store.Stats{TotalUsers: len(s.users), TotalBlocked: len(s.blocked), TotalChats: len(s.chats)}, nil
}

func (s *memStore) GetHistory(_ context.Context, chatID int64) ([]store.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStorage
	}
	turns, ok := s.history[chatID]
	if !ok {
		return nil, nil
	}
	out := make([]store.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *memStore) SaveHistory(_ context.Context, chatID int64, turns []store.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	saved := make([]store.Turn, len(turns))
	copy(saved, turns)
	s.history[chatID] = saved
	return nil
}

func (s *memStore) DeleteHistory(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	delete(s.history, chatID)
	return nil
}

func (s *memStore) GetPrompt(_ context.Context, name string) (*store.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStorage
	}
	text, ok := s.prompts[name]
	if !ok {
		return nil, nil
	}
	return &store.Prompt{Name: name, Prompt: text}, nil
}

func (s *memStore) SavePrompt(_ context.Context, name, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	s.prompts[name] = prompt
	return nil
}

func (s *memStore) DeletePrompt(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errStorage
	}
	_, ok := s.prompts[name]
	delete(s.prompts, name)
	return ok, nil
}

func (s *memStore) ListPrompts(context.Context) ([]store.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStorage
	}
	out := make([]store.Prompt, 0, len(s.prompts))
	for name, text := range s.prompts {
		out = append(out, store.Prompt{Name: name, Prompt: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) GetBotStatus(context.Context) (*bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.fail {
		return nil, errStorage
	}
	if s.status == nil {
		return nil, nil
	}
	v := *s.status
	return &v, nil
}

func (s *memStore) SetBotStatus(_ context.Context, isOn bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStorage
	}
	s.status = &isOn
	return nil
}

type sentPhoto struct {
	ChatID   int64
	PhotoRef string
	Caption  string
}

type sentAudio struct {
	ChatID   int64
	FileName string
	Data     []byte
	ReplyTo  int
}

type editedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
}

// fakeMessenger records every outbound call. sendErrs fails sends to
// specific chats.
type fakeMessenger struct {
	mu        sync.Mutex
	messages  []OutgoingMessage
	photos    []sentPhoto
	audios    []sentAudio
	edits     []editedMessage
	typing    int
	callbacks []string
	sendErrs  map[int64]error
	files     map[string][]byte
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{sendErrs: make(map[int64]error), files: make(map[string][]byte)}
}

func (f *fakeMessenger) SendMessage(_ context.Context, msg OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErrs[msg.ChatID]; err != nil {
		return err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessenger) SendPhoto(_ context.Context, chatID int64, photoRef, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErrs[chatID]; err != nil {
		return err
	}
	f.photos = append(f.photos, sentPhoto{chatID, photoRef, caption})
	return nil
}

func (f *fakeMessenger) SendAudio(_ context.Context, chatID int64, fileName string, data []byte, replyTo int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audios = append(f.audios, sentAudio{chatID, fileName, data, replyTo})
	return nil
}

func (f *fakeMessenger) SendTyping(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, chatID int64, messageID int, text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{chatID, messageID, text})
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

func (f *fakeMessenger) DownloadFile(_ context.Context, fileRef string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[fileRef]
	if !ok {
		return nil, "", errors.New("file not found")
	}
	return data, "image/jpeg", nil
}

// outbound counts every call that would reach the user.
func (f *fakeMessenger) outbound() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages) + len(f.photos) + len(f.audios) + len(f.edits) + f.typing
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].Text
}

type memberLookup struct {
	Chat   string
	UserID int64
}

// fakeMembers answers membership lookups per chat.
type fakeMembers struct {
	mu       sync.Mutex
	statuses map[string]string
	errs     map[string]error
	calls    []memberLookup
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{statuses: make(map[string]string), errs: make(map[string]error)}
}

func (f *fakeMembers) MemberStatus(_ context.Context, chat string, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, memberLookup{chat, userID})
	if err := f.errs[chat]; err != nil {
		return "", err
	}
	return f.statuses[chat], nil
}

func (f *fakeMembers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    Completion
	requests []CompletionRequest
	panics   bool
}

func (f *fakeLLM) Complete(_ context.Context, req CompletionRequest) Completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("model exploded")
	}
	f.requests = append(f.requests, req)
	return f.reply
}

type fakeSpeech struct {
	pcm    []byte
	err    error
	voices []string
}

func (f *fakeSpeech) Synthesize(_ context.Context, _ string, voice string) ([]byte, error) {
	f.voices = append(f.voices, voice)
	return f.pcm, f.err
}

const (
	testAdminID = int64(1000)
	testBotID   = int64(999)
	testChannel = "@testupdates"
	testGroup   = "@testchat"
)

type routerFixture struct {
	router    *Router
	store     *memStore
	messenger *fakeMessenger
	members   *fakeMembers
	llm       *fakeLLM
	speech    *fakeSpeech
	sessions  *SessionRegistry
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		store:     newMemStore(),
		messenger: newFakeMessenger(),
		members:   newFakeMembers(),
		llm:       &fakeLLM{reply: Completion{Text: "hello from the model", Outcome: OutcomeOK}},
		speech:    &fakeSpeech{},
		sessions:  NewSessionRegistry(),
	}
	f.members.statuses[testChannel] = "member"
	f.members.statuses[testGroup] = "member"

	broadcaster := NewBroadcastEngine(f.messenger, testAdminID, 0, nil)
	broadcaster.pause = func(context.Context, time.Duration) {}

	f.router = NewRouter(RouterDeps{
		Bot:       Identity{ID: testBotID, Username: "ananya_test_bot"},
		Messenger: f.messenger,
		Sessions:  f.sessions,
		Gate: NewVerificationGate(GateConfig{
			AdminID:         testAdminID,
			ChannelUsername: testChannel,
			GroupUsername:   testGroup,
		}, f.members, f.messenger),
		Availability:  NewAvailabilitySwitch(f.store),
		Users:         NewUserDirectory(f.store, testAdminID),
		Personalities: NewPersonalityRegistry(f.store),
		History:       NewHistoryStore(f.store),
		LLM:           f.llm,
		Speech:        f.speech,
		Broadcaster:   broadcaster,
	})
	return f
}

func userRecord(id int64) store.User {
	return store.User{ID: id, FirstName: "User", LastSeen: time.Unix(1700000000, 0)}
}

func privateText(userID int64, text string) Update {
	return Update{Message: &Message{
		MessageID: 1,
		ChatID:    userID,
		Kind:      ChatPrivate,
		From:      Sender{ID: userID, Username: "user", FirstName: "Asha"},
		Text:      text,
	}}
}

func privateCommand(userID int64, command string, args ...string) Update {
	u := privateText(userID, "/"+command)
	u.Message.Command = command
	u.Message.Args = args
	u.Message.ArgText = strings.Join(args, " ")
	return u
}
