package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategybot/internal/config"
	"strategybot/internal/domain"
	"strategybot/internal/integrations/openrouter"
	"strategybot/internal/service/calculator"
	"strategybot/internal/service/illustration"
	"strategybot/internal/service/risk"
	"strategybot/internal/store/memory"
)

type fakeMessenger struct {
	mu        sync.Mutex
	replies   []domain.Reply
	photos    []domain.Photo
	actions   []string
	callbacks []string
	photoErr  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, _ int64, r domain.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, r)
	return nil
}

func (f *fakeMessenger) SendPhoto(_ context.Context, _ int64, p domain.Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, p)
	return f.photoErr
}

func (f *fakeMessenger) SendChatAction(_ context.Context, _ int64, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, id)
	return nil
}

func (f *fakeMessenger) last() domain.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return domain.Reply{}
	}
	return f.replies[len(f.replies)-1]
}

type fakeMembership struct {
	members map[int64]bool
	err     error
}

func (f fakeMembership) IsMember(_ context.Context, _ string, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[userID], nil
}

type fakeCompleter struct {
	mu       sync.Mutex
	requests []openrouter.Request
	reply    string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, req openrouter.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeKnowledge struct {
	text    string
	source  string
	next    string
	reloads int
	err     error
}

func (f *fakeKnowledge) Text() string   { return f.text }
func (f *fakeKnowledge) Source() string { return f.source }
func (f *fakeKnowledge) Size() int      { return len([]rune(f.text)) }
func (f *fakeKnowledge) Reload() error {
	f.reloads++
	if f.err != nil {
		f.text, f.source = "ERROR: strategy file not found.", ""
		return f.err
	}
	f.text = f.next
	return nil
}

const member int64 = 1
const stranger int64 = 2

type harness struct {
	a         *Assistant
	store     *memory.Store
	messenger *fakeMessenger
	completer *fakeCompleter
	knowledge *fakeKnowledge
}

func newHarness(t *testing.T, mutate func(*Options, *Deps)) *harness {
	t.Helper()
	catalog, err := illustration.Parse([]byte(`
illustrations:
  - caption: "Setup #2"
    keywords: ["setup 2"]
    images: ["setup2.png"]
`), "img")
	require.NoError(t, err)

	h := &harness{
		store:     memory.NewStore(20),
		messenger: &fakeMessenger{},
		completer: &fakeCompleter{reply: "answer"},
		knowledge: &fakeKnowledge{text: "STRATEGY", source: "strategy.txt", next: "NEW STRATEGY TEXT"},
	}
	opts := Options{
		ChannelID:     "@club",
		AccessURL:     "https://example.com/buy",
		Model:         "test/model",
		SystemPrompt:  "PROMPT:",
		HistoryLimit:  10,
		MaxMessageLen: 1000,
	}
	deps := Deps{
		Store:         h.store,
		Messenger:     h.messenger,
		Membership:    fakeMembership{members: map[int64]bool{member: true}},
		Completer:     h.completer,
		Knowledge:     h.knowledge,
		Illustrations: catalog,
		Calculator:    calculator.NewController(risk.NewEngine(risk.DefaultCatalog())),
		Limiters:      NewLimiters(10),
	}
	if mutate != nil {
		mutate(&opts, &deps)
	}
	h.a = New(opts, deps, zerolog.Nop())
	return h
}

func (h *harness) say(t *testing.T, userID int64, text string) domain.Reply {
	t.Helper()
	require.NoError(t, h.a.Handle(context.Background(), domain.Message{UserID: userID, ChatID: userID, FirstName: "Ann", Text: text}))
	return h.messenger.last()
}

func (h *harness) press(t *testing.T, userID int64, data string) domain.Reply {
	t.Helper()
	require.NoError(t, h.a.Handle(context.Background(), domain.Message{UserID: userID, ChatID: userID, CallbackID: "cb-" + data, Data: data}))
	return h.messenger.last()
}

func TestStart_MemberGetsWelcome(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, member, "/start")
	assert.Contains(t, reply.Text, "Hi, Ann!")
	assert.Empty(t, reply.Buttons)
}

func TestStart_NonMemberGetsLockedCard(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, stranger, "/start")
	assert.Contains(t, reply.Text, "Access closed")
	assert.Equal(t, domain.ParseHTML, reply.ParseMode)
	require.Len(t, reply.Buttons, 1)
	assert.Equal(t, "https://example.com/buy", reply.Buttons[0][0].URL)
}

func TestQuestion_NonMemberNeverReachesCompleter(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, stranger, "what is setup 2?")
	assert.Contains(t, reply.Text, "Access closed")
	assert.Empty(t, h.completer.requests)
	assert.Empty(t, h.messenger.photos)
}

func TestQuestion_MembershipFailureIsNoAccess(t *testing.T) {
	h := newHarness(t, func(_ *Options, d *Deps) {
		d.Membership = fakeMembership{err: errors.New("telegram down")}
	})
	reply := h.say(t, member, "hello")
	assert.Contains(t, reply.Text, "Access closed")
	assert.Empty(t, h.completer.requests)
}

func TestQuestion_SendsIllustrationsThenAnswer(t *testing.T) {
	h := newHarness(t, nil)
	h.completer.reply = "Setup 2 uses the weekly FVG."

	reply := h.say(t, member, "Explain setup 2")
	assert.Equal(t, "Setup 2 uses the weekly FVG.", reply.Text)
	assert.Equal(t, []domain.Photo{{Path: "img/setup2.png", Caption: "Setup #2"}}, h.messenger.photos)
	assert.Equal(t, []string{"typing"}, h.messenger.actions)

	require.Len(t, h.completer.requests, 1)
	req := h.completer.requests[0]
	assert.Equal(t, "PROMPT:STRATEGY", req.SystemPrompt)
	assert.Equal(t, "Explain setup 2", req.Message)
	assert.Empty(t, req.History)

	history := h.store.History(member)
	assert.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Content: "Explain setup 2"},
		{Role: domain.RoleAssistant, Content: "Setup 2 uses the weekly FVG."},
	}, history)
}

func TestQuestion_PhotoFailureDoesNotBlockAnswer(t *testing.T) {
	h := newHarness(t, nil)
	h.messenger.photoErr = errors.New("file missing")
	reply := h.say(t, member, "setup 2?")
	assert.Equal(t, "answer", reply.Text)
}

func TestQuestion_FailureLeavesHistoryUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, member, "first")
	before := h.store.History(member)
	require.Len(t, before, 2)

	h.completer.err = fmt.Errorf("%w: status 502", openrouter.ErrUpstream)
	reply := h.say(t, member, "second")
	assert.Equal(t, textCompletionError, reply.Text)
	assert.Equal(t, before, h.store.History(member))

	h.completer.err = nil
	h.say(t, member, "second")
	assert.Len(t, h.store.History(member), 4, "retry succeeds immediately")
}

func TestQuestion_HistoryWindowAndTrim(t *testing.T) {
	h := newHarness(t, func(_ *Options, d *Deps) { d.Limiters = nil })
	for i := 0; i < 15; i++ {
		h.say(t, member, fmt.Sprintf("q%d", i))
	}
	last := h.completer.requests[len(h.completer.requests)-1]
	require.Len(t, last.History, 10)
	assert.Equal(t, "q9", last.History[0].Content)
	assert.Len(t, h.store.History(member), 20)
}

func TestQuestion_TooLong(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, member, strings.Repeat("я", 1001))
	assert.Contains(t, reply.Text, "1000 characters")
	assert.Empty(t, h.completer.requests)

	h.say(t, member, strings.Repeat("я", 1000))
	assert.Len(t, h.completer.requests, 1)
}

func TestQuestion_RateLimited(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h.a.Limiters.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		h.say(t, member, "q")
	}
	reply := h.say(t, member, "q")
	assert.Equal(t, textRateLimited, reply.Text)
	assert.Len(t, h.completer.requests, 10)

	now = now.Add(time.Minute)
	h.say(t, member, "q")
	assert.Len(t, h.completer.requests, 11)
}

func TestCalc_FullSessionByTextAndButtons(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, member, "/calc")
	assert.Contains(t, reply.Text, "Step 1/8")

	h.say(t, member, "48500")
	h.say(t, member, "50000")
	h.press(t, member, "calc:funded")
	h.press(t, member, "calc:1")
	h.press(t, member, "calc:1")
	h.press(t, member, "calc:1")
	h.say(t, member, "1")
	reply = h.press(t, member, "calc:0")

	assert.Contains(t, reply.Text, "Final risk: 0.55% = $274.62")
	_, ok := h.store.Session(member)
	assert.False(t, ok, "finished session is discarded")
	assert.Empty(t, h.completer.requests, "calculator answers never reach the completer")
	assert.Len(t, h.messenger.callbacks, 5)
}

func TestCalc_InvalidAnswerRepromptsSameStep(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, member, "/calc")
	reply := h.say(t, member, "lots")
	assert.True(t, strings.HasPrefix(reply.Text, "⚠️ "))
	s, ok := h.store.Session(member)
	require.True(t, ok)
	assert.Equal(t, domain.StepBalance, s.Step)
}

func TestCalc_CancelCommandAndButton(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, member, "/calc")
	h.say(t, member, "48500")
	reply := h.say(t, member, "/cancel")
	assert.Contains(t, reply.Text, "cancelled")
	_, ok := h.store.Session(member)
	assert.False(t, ok)

	reply = h.say(t, member, "/cancel")
	assert.Equal(t, textNothingToCancel, reply.Text)

	h.say(t, member, "/calc")
	reply = h.press(t, member, "calc:cancel")
	assert.Contains(t, reply.Text, "cancelled")
	_, ok = h.store.Session(member)
	assert.False(t, ok)
}

func TestCalc_StaleButtonWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.press(t, member, "calc:funded")
	assert.Equal(t, textSessionExpired, reply.Text)
}

func TestCalc_RequiresAccess(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, stranger, "/calc")
	assert.Contains(t, reply.Text, "Access closed")
	_, ok := h.store.Session(stranger)
	assert.False(t, ok)
}

func TestClear_ResetsHistoryAndSession(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, member, "question")
	h.say(t, member, "/calc")
	reply := h.say(t, member, "/clear")
	assert.Equal(t, textHistoryCleared, reply.Text)
	assert.Empty(t, h.store.History(member))
	_, ok := h.store.Session(member)
	assert.False(t, ok)
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *Deps) { o.IsAdmin = config.Config{AdminIDs: []int64{member}}.IsAdmin })

	reply := h.say(t, stranger, "/reload")
	assert.Equal(t, textAdminsOnly, reply.Text)
	assert.Zero(t, h.knowledge.reloads)

	sent := len(h.messenger.replies)
	require.NoError(t, h.a.Handle(context.Background(), domain.Message{UserID: stranger, ChatID: stranger, Text: "/status"}))
	assert.Len(t, h.messenger.replies, sent, "status is silent for non-admins")

	reply = h.say(t, member, "/reload@StrategyBot")
	assert.Equal(t, "✅ Reloaded! 8 → 17 characters", reply.Text)

	reply = h.say(t, member, "/status")
	assert.Equal(t, "📊 Status: strategy.txt\nModel: test/model\nCharacters: 17", reply.Text)

	h.knowledge.err = errors.New("strategy file not found")
	reply = h.say(t, member, "/reload")
	assert.Contains(t, reply.Text, "placeholder installed")
	reply = h.say(t, member, "/status")
	assert.Contains(t, reply.Text, "❌ not found")
}

func TestAdminCommands_EmptyAdminListAllowsEveryone(t *testing.T) {
	h := newHarness(t, nil)
	reply := h.say(t, stranger, "/status")
	assert.Contains(t, reply.Text, "Model: test/model")
}

func TestHandle_SerializesPerUser(t *testing.T) {
	h := newHarness(t, func(_ *Options, d *Deps) { d.Limiters = nil })
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h.a.Handle(context.Background(), domain.Message{UserID: member, ChatID: member, Text: fmt.Sprintf("q%d", i)})
		}(i)
	}
	wg.Wait()

	history := h.store.History(member)
	require.Len(t, history, 20)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, domain.RoleUser, history[i].Role)
		assert.Equal(t, domain.RoleAssistant, history[i+1].Role)
	}
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))
	assert.Equal(t, []string{"aaaa\n", "bbbb"}, splitText("aaaa\nbbbb", 6))
	assert.Equal(t, []string{"ёёё", "ёё"}, splitText("ёёёёё", 3))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/start", "start", true},
		{"/Calc@StrategyBot now", "calc", true},
		{"/", "", false},
		{"setup 2", "", false},
	}
	for _, tt := range tests {
		got, ok := parseCommand(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLimiters_Prune(t *testing.T) {
	l := NewLimiters(10)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow(1)
	now = now.Add(time.Hour)
	l.Allow(2)

	assert.Equal(t, 1, l.Prune(30*time.Minute))
	assert.Equal(t, 1, l.Len())
}
