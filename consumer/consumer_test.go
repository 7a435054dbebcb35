package consumer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/sally-bot/config"
	"github.com/onnwee/sally-bot/db"
	"github.com/onnwee/sally-bot/exchange"
	"github.com/onnwee/sally-bot/ledger"
	"github.com/onnwee/sally-bot/llm"
	"github.com/onnwee/sally-bot/memory"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	systems []string
	turns   [][]llm.Turn
	panics  bool
}

func (f *fakeCompleter) Complete(_ context.Context, system string, turns []llm.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("completer exploded")
	}
	f.calls++
	f.systems = append(f.systems, system)
	f.turns = append(f.turns, turns)
	return f.reply, f.err
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return f.err
}

// lineSource returns queued lines once; repeat makes every Poll return them again.
type lineSource struct {
	lines  []exchange.Line
	repeat bool
}

func (s *lineSource) Poll() ([]exchange.Line, error) {
	out := s.lines
	if !s.repeat {
		s.lines = nil
	}
	return out, nil
}

type errSource struct{}

func (errSource) Poll() ([]exchange.Line, error) { return nil, errors.New("disk on fire") }

type fakeRecorder struct{ entries []db.TranscriptEntry }

func (r *fakeRecorder) Record(_ context.Context, e db.TranscriptEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	c        *Consumer
	cfg      *config.Config
	llm      *fakeCompleter
	speaker  *fakeSpeaker
	ledger   *ledger.Ledger
	memory   *memory.Store
	youtube  *lineSource
	streamer *lineSource
	enable   *lineSource
	clock    *fakeClock
	dir      string
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		BotName:           "Sally",
		AnswerRate:        0,
		RedeemCost:        20,
		RedeemCooldown:    300 * time.Second,
		ConversationLimit: 40,
		PollInterval:      10 * time.Millisecond,
		DataDir:           dir,
	}
}

func newHarness(t *testing.T, mutate func(*config.Config, *Deps)) *harness {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prompt_chat.txt"), []byte("You are Sally. Stream: STREAM_TITLE playing GAME_NAME.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	l, err := ledger.New(ctx, ledger.NewFileStore(filepath.Join(dir, "sally_tokens.json")))
	if err != nil {
		t.Fatal(err)
	}
	mem, err := memory.Open(filepath.Join(dir, "memory.txt"))
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		cfg:      testConfig(dir),
		llm:      &fakeCompleter{reply: "hello there"},
		speaker:  &fakeSpeaker{},
		ledger:   l,
		memory:   mem,
		youtube:  &lineSource{},
		streamer: &lineSource{},
		enable:   &lineSource{},
		clock:    &fakeClock{t: time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)},
		dir:      dir,
	}
	deps := Deps{
		Completer: h.llm,
		Speaker:   h.speaker,
		Ledger:    l,
		Memory:    mem,
		YouTube:   h.youtube,
		Streamer:  h.streamer,
		Enable:    h.enable,
	}
	if mutate != nil {
		mutate(h.cfg, &deps)
	}
	c, err := New(h.cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = h.clock.Now
	c.sleep = func(context.Context, time.Duration) {}
	c.roll = func() int { return 100 }
	c.loadPrompt()
	h.c = c
	return h
}

func (h *harness) redeem(t *testing.T) {
	t.Helper()
	h.c.enterRedeemed("test")
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(testConfig(t.TempDir()), Deps{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
}

func TestConversationNeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 3, 40} {
		conv := NewConversation(limit)
		for i := 0; i < 100; i++ {
			conv.Append(llm.RoleUser, strings.Repeat("x", i))
			if conv.Len() > limit {
				t.Fatalf("limit %d: len %d after append %d", limit, conv.Len(), i)
			}
		}
		turns := conv.Turns()
		if turns[len(turns)-1].Content != strings.Repeat("x", 99) {
			t.Errorf("limit %d: newest turn evicted", limit)
		}
	}
}

func TestYouTubeMessageGrantsTokenAndIsAnswered(t *testing.T) {
	rec := &fakeRecorder{}
	h := newHarness(t, func(_ *config.Config, d *Deps) { d.Transcript = rec })
	h.redeem(t)
	h.youtube.lines = []exchange.Line{{Author: "viewer1", Content: "hello sally"}}

	h.c.Step(context.Background()) // polls the line
	if got := h.ledger.Balance("viewer1"); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
	if h.c.queue.Len() != 1 {
		t.Fatalf("queue depth = %d, want 1", h.c.queue.Len())
	}

	if !h.c.Step(context.Background()) {
		t.Fatal("expected the message to be processed")
	}
	if h.llm.calls != 1 {
		t.Fatalf("completions = %d, want 1", h.llm.calls)
	}
	turns := h.c.conv.Turns()
	if len(turns) != 2 || turns[0].Content != "viewer1 on YouTube: hello sally" || turns[1].Role != llm.RoleAssistant {
		t.Errorf("conversation = %+v", turns)
	}
	if len(h.speaker.spoken) != 1 || h.speaker.spoken[0] != "hello there" {
		t.Errorf("spoken = %v", h.speaker.spoken)
	}
	if len(rec.entries) != 2 || rec.entries[1].Author != "Sally" {
		t.Errorf("transcript = %+v", rec.entries)
	}
}

func TestBlacklistedAuthorEarnsNothing(t *testing.T) {
	h := newHarness(t, func(_ *config.Config, d *Deps) {
		d.Roster = &config.Roster{Blacklisted: []string{"spammer"}}
	})
	h.youtube.lines = []exchange.Line{{Author: "spammer", Content: "buy followers"}}
	h.c.Step(context.Background())
	if got := h.ledger.Balance("spammer"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestTokenRedeem(t *testing.T) {
	tests := []struct {
		name         string
		start        int
		preRedeemed  bool
		wantRedeemed bool
		wantBalance  int
	}{
		{name: "enough tokens", start: 19, wantRedeemed: true, wantBalance: 0},
		{name: "insufficient", start: 5, wantRedeemed: false, wantBalance: 6},
		{name: "already redeemed", start: 40, preRedeemed: true, wantRedeemed: true, wantBalance: 41},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()
			for i := 0; i < tt.start; i++ {
				if _, err := h.ledger.Grant(ctx, "viewer1"); err != nil {
					t.Fatal(err)
				}
			}
			if tt.preRedeemed {
				h.redeem(t)
			}
			h.youtube.lines = []exchange.Line{{Author: "viewer1", Content: "!Sally wake up please"}}
			h.c.Step(ctx)

			if h.c.state.Redeemed != tt.wantRedeemed {
				t.Errorf("redeemed = %v, want %v", h.c.state.Redeemed, tt.wantRedeemed)
			}
			if got := h.ledger.Balance("viewer1"); got != tt.wantBalance {
				t.Errorf("balance = %d, want %d", got, tt.wantBalance)
			}
		})
	}
}

func TestRedeemingMessageSurvivesIdleDrain(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, _ = h.ledger.Grant(ctx, "viewer1")
	}
	h.c.Put("someone", "unrelated chatter", PlatformTwitch)
	h.youtube.lines = []exchange.Line{{Author: "viewer1", Content: "!sally tell a joke"}}

	if !h.c.Step(ctx) {
		t.Fatal("expected redeem")
	}
	m, ok := h.c.queue.Pop()
	if !ok || !m.Redeem || !m.Answer || m.Author != "viewer1" {
		t.Fatalf("queued = %+v, %v", m, ok)
	}
	if h.c.conv.Len() != 1 {
		t.Errorf("unrelated message should be folded into history, len = %d", h.c.conv.Len())
	}
}

func TestEnableFileRedeems(t *testing.T) {
	h := newHarness(t, nil)
	h.enable.lines = []exchange.Line{{Author: "viewer9", Content: "say something nice"}}
	h.c.Step(context.Background())
	if !h.c.state.Redeemed {
		t.Fatal("expected redeemed after enable line")
	}
	m, ok := h.c.queue.Pop()
	if !ok || m.Platform != "Twitch freed Sally with the message" || !m.Answer {
		t.Errorf("queued = %+v", m)
	}
}

func TestShedAllButNewest(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config, _ *Deps) { cfg.NoCommand = true })
	h.redeem(t)
	for i := 1; i <= 6; i++ {
		h.c.Put("viewer", "message number "+string(rune('0'+i)), PlatformTwitch)
	}
	h.c.Step(context.Background())

	if h.llm.calls != 1 {
		t.Fatalf("completions = %d, want 1", h.llm.calls)
	}
	last := h.llm.turns[0][len(h.llm.turns[0])-1]
	if last.Content != "viewer on Twitch: message number 6" {
		t.Errorf("evaluated turn = %q", last.Content)
	}
	// five shed turns, the answered turn and the reply
	if h.c.conv.Len() != 7 {
		t.Errorf("history = %d, want 7", h.c.conv.Len())
	}
}

func TestExitAfterCooldownWithEmptyQueue(t *testing.T) {
	h := newHarness(t, nil)
	h.redeem(t)
	h.clock.Advance(299 * time.Second)
	h.c.Step(context.Background())
	if !h.c.state.Redeemed {
		t.Fatal("left redeem before cooldown")
	}
	h.clock.Advance(2 * time.Second)
	h.c.Step(context.Background())
	if h.c.state.Redeemed {
		t.Fatal("expected idle after cooldown with empty queue")
	}
}

func TestOverrunForcesExit(t *testing.T) {
	h := newHarness(t, nil)
	h.streamer.lines = []exchange.Line{{Author: "streamer", Content: "keep talking chat"}}
	h.streamer.repeat = true
	h.redeem(t)
	h.clock.Advance(301 * time.Second)

	for i := 1; i < MaxOverrun; i++ {
		h.c.Step(context.Background())
		if !h.c.state.Redeemed {
			t.Fatalf("left redeem after %d overrun iterations", i)
		}
		if h.c.state.Overrun != i {
			t.Fatalf("overrun = %d, want %d", h.c.state.Overrun, i)
		}
	}
	h.c.Step(context.Background())
	if h.c.state.Redeemed {
		t.Fatal("expected forced idle after overrun limit")
	}
}

func TestIgnoredAndInvalidMessagesAreNotCompleted(t *testing.T) {
	tests := []struct {
		name     string
		author   string
		content  string
		wantConv int
	}{
		{name: "ignored author", author: "nightbot", content: "sally follow the channel", wantConv: 0},
		{name: "too short", author: "viewer", content: "sally", wantConv: 0},
		{name: "too long", author: "viewer", content: "sally " + strings.Repeat("a", 150), wantConv: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(_ *config.Config, d *Deps) {
				d.Roster = &config.Roster{Ignored: []string{"nightbot"}}
			})
			h.redeem(t)
			h.c.Put(tt.author, tt.content, PlatformTwitch)
			h.c.Step(context.Background())
			if h.llm.calls != 0 {
				t.Errorf("completions = %d, want 0", h.llm.calls)
			}
			if h.c.conv.Len() != tt.wantConv {
				t.Errorf("history = %d, want %d", h.c.conv.Len(), tt.wantConv)
			}
		})
	}
}

func TestUnansweredMessageIsOnlyAppended(t *testing.T) {
	h := newHarness(t, nil)
	h.redeem(t)
	h.c.Put("viewer", "nice weather today", PlatformTwitch)
	h.c.Step(context.Background())
	if h.llm.calls != 0 || h.c.conv.Len() != 1 {
		t.Errorf("calls = %d, history = %d", h.llm.calls, h.c.conv.Len())
	}
}

func TestDuplicateMessageSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.redeem(t)
	h.c.Put("viewer", "hey sally how are you", PlatformTwitch)
	h.c.Step(context.Background())
	h.c.Put("viewer", "hey sally how are you", PlatformTwitch)
	h.c.Step(context.Background())
	if h.llm.calls != 1 {
		t.Errorf("completions = %d, want 1", h.llm.calls)
	}
}

func TestMemoryMarkersAndCleanup(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.reply = "Sally: write_memory{viewer1 likes cats}nice to_meet you"
	h.redeem(t)
	h.c.Put("viewer1", "sally I like cats", PlatformTwitch)
	h.c.Step(context.Background())

	if len(h.speaker.spoken) != 1 || h.speaker.spoken[0] != "nice to meet you" {
		t.Fatalf("spoken = %q", h.speaker.spoken)
	}
	b, err := os.ReadFile(filepath.Join(h.dir, "memory.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "viewer1 likes cats\n" {
		t.Errorf("memory file = %q", b)
	}
	turns := h.c.conv.Turns()
	if turns[len(turns)-1].Content != h.llm.reply {
		t.Errorf("assistant turn = %q, want raw reply", turns[len(turns)-1].Content)
	}
	if !strings.Contains(h.c.SystemPrompt(), "MEMORY: viewer1 likes cats") {
		t.Errorf("memory missing from prompt: %q", h.c.SystemPrompt())
	}
}

func TestAssistantReplyNotDuplicated(t *testing.T) {
	h := newHarness(t, nil)
	h.redeem(t)
	h.c.Put("a", "sally first question", PlatformTwitch)
	h.c.Step(context.Background())
	h.c.Put("b", "sally second question", PlatformTwitch)
	h.c.Step(context.Background())
	n := 0
	for _, turn := range h.c.conv.Turns() {
		if turn.Role == llm.RoleAssistant {
			n++
		}
	}
	if n != 1 {
		t.Errorf("assistant turns = %d, want 1", n)
	}
}

func TestCompletionFailureSkipsTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.err = errors.New("upstream 500")
	h.redeem(t)
	h.c.Put("viewer", "sally are you there", PlatformTwitch)
	h.c.Step(context.Background())
	if len(h.speaker.spoken) != 0 {
		t.Errorf("spoke %v after failed completion", h.speaker.spoken)
	}
	if h.c.conv.Len() != 1 {
		t.Errorf("history = %d, want only the user turn", h.c.conv.Len())
	}
}

func TestSpeechFailureKeepsReply(t *testing.T) {
	h := newHarness(t, nil)
	h.speaker.err = errors.New("connection refused")
	h.redeem(t)
	h.c.Put("viewer", "sally are you there", PlatformTwitch)
	h.c.Step(context.Background())
	if h.c.conv.Len() != 2 {
		t.Errorf("history = %d, want 2", h.c.conv.Len())
	}
}

func TestTalkToSelf(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config, _ *Deps) { cfg.TalkToSelf = true })
	h.c.lastAnswer = h.clock.Now()
	h.redeem(t)
	h.c.Step(context.Background())
	if h.llm.calls != 0 {
		t.Fatal("talked to self too early")
	}
	h.clock.Advance(21 * time.Second)
	if !h.c.Step(context.Background()) {
		t.Fatal("expected self-directed reply")
	}
	if h.llm.calls != 1 || len(h.speaker.spoken) != 1 {
		t.Errorf("calls = %d, spoken = %v", h.llm.calls, h.speaker.spoken)
	}
}

func TestSystemPromptUsesStreamInfo(t *testing.T) {
	h := newHarness(t, nil)
	before := h.c.SystemPrompt()
	if !strings.Contains(before, "STREAM_TITLE") {
		t.Errorf("placeholders should stay until stream info is known: %q", before)
	}
	if err := h.c.Control(Command{Kind: CmdSetStreamInfo, Game: "Celeste", Title: "Any% attempts"}); err != nil {
		t.Fatal(err)
	}
	h.c.Step(context.Background())
	want := "You are Sally. Stream: Any% attempts playing Celeste. DATE:2026-10-19 MEMORY: "
	if got := h.c.SystemPrompt(); got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
	if err := os.WriteFile(filepath.Join(h.dir, "prompt_chat.txt"), []byte("New prompt about GAME_NAME"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = h.c.Control(Command{Kind: CmdReloadPrompt})
	h.c.Step(context.Background())
	if got := h.c.SystemPrompt(); !strings.HasPrefix(got, "New prompt about Celeste DATE:") {
		t.Errorf("stream info lost on reload: %q", got)
	}
}

func TestOperatorControls(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.c.conv.Append(llm.RoleUser, "old")

	_ = h.c.Control(Command{Kind: CmdToggleVerbose}, Command{Kind: CmdClearConversation}, Command{Kind: CmdEnable})
	h.c.Step(ctx)
	if !h.c.verbose || h.c.conv.Len() != 0 {
		t.Errorf("verbose = %v, history = %d", h.c.verbose, h.c.conv.Len())
	}
	if !h.c.state.Redeemed || h.c.state.Cooldown != EnableCooldown {
		t.Errorf("state after enable = %+v", h.c.state)
	}

	_ = h.c.Control(Command{Kind: CmdDisable})
	h.c.Step(ctx)
	if h.c.state.Redeemed || h.c.state.Cooldown != 300*time.Second {
		t.Errorf("state after disable = %+v", h.c.state)
	}
	snap := h.c.Snapshot()
	if snap.Redeemed || !snap.Verbose || snap.CooldownSeconds != 300 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestControlBufferFull(t *testing.T) {
	h := newHarness(t, nil)
	var err error
	for i := 0; i < controlBuffer+1 && err == nil; i++ {
		err = h.c.Control(Command{Kind: CmdToggleVerbose})
	}
	if !errors.Is(err, ErrControlBusy) {
		t.Fatalf("err = %v, want ErrControlBusy", err)
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		noCommand bool
		rate      int
		roll      int
		author    string
		content   string
		want      bool
	}{
		{name: "no command override", noCommand: true, content: "anything", want: true},
		{name: "name mention", content: "hey SALLY what's up", want: true},
		{name: "command token", content: "?response please", want: true},
		{name: "random draw hits", rate: 30, roll: 29, content: "hi all", want: true},
		{name: "random draw misses", rate: 30, roll: 30, content: "hi all", want: false},
		{name: "allowed author", author: "Caesar LP", content: "hi all", want: true},
		{name: "nothing", author: "viewer", content: "hi all", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(cfg *config.Config, d *Deps) {
				cfg.NoCommand = tt.noCommand
				cfg.AnswerRate = tt.rate
				d.Roster = &config.Roster{Allow: []string{"caesarlp"}}
			})
			roll := tt.roll
			if roll == 0 {
				roll = 100
			}
			h.c.roll = func() int { return roll }
			if got := h.c.Decide(NewMessage(tt.author, tt.content, PlatformTwitch)); got != tt.want {
				t.Errorf("Decide = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Sally: hi chat", "hi chat"},
		{"Sally on Twitch: hi", "hi"},
		{"Sally on YouTube: hi", "hi"},
		{"Sally on Stream: hi", "hi"},
		{"snake_case_words", "snake case words"},
		{"I am Sally: really", "I am Sally: really"},
	}
	for _, tt := range tests {
		if got := CleanReply(tt.in, "Sally"); got != tt.want {
			t.Errorf("CleanReply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMessageTurn(t *testing.T) {
	m := NewMessage("cool_viewer_42", "héllo sally ✨", PlatformYouTube)
	if got := m.Turn(); got != "cool viewer 42 on YouTube: hllo sally " {
		t.Errorf("Turn() = %q", got)
	}
}

func TestSourceErrorIsNoNewMessages(t *testing.T) {
	h := newHarness(t, func(_ *config.Config, d *Deps) { d.YouTube = errSource{} })
	h.c.Step(context.Background())
	if h.c.queue.Len() != 0 {
		t.Errorf("queue = %d", h.c.queue.Len())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunReturnsOnPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.panics = true
	h.redeem(t)
	h.c.Put("viewer", "sally please crash", PlatformTwitch)
	done := make(chan error, 1)
	go func() { done <- h.c.Run(context.Background()) }()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after panic")
	}
}

func TestDisableFoldsLeftoverRedeemMessages(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.redeem(t)
	m := NewMessage("viewer1", "sally tell a joke", PlatformYouTube)
	m.Redeem, m.Answer = true, true
	h.c.queue.Put(m)

	_ = h.c.Control(Command{Kind: CmdDisable})
	h.c.Step(ctx)
	if h.c.state.Redeemed {
		t.Fatal("still redeemed after disable")
	}
	if h.c.queue.Len() != 0 {
		t.Errorf("queue = %d, want leftover redeem message drained", h.c.queue.Len())
	}
	if !h.c.conv.Contains(m.Turn()) {
		t.Errorf("leftover message not folded into history: %v", h.c.conv.Turns())
	}
	if h.llm.calls != 0 {
		t.Errorf("calls = %d, want no completion while idle", h.llm.calls)
	}
}

func TestQueueClearRedeem(t *testing.T) {
	q := NewQueue()
	for i, redeem := range []bool{true, false, true} {
		m := NewMessage("viewer", "message "+string(rune('a'+i)), PlatformTwitch)
		m.Redeem = redeem
		q.Put(m)
	}
	if n := q.ClearRedeem(); n != 2 {
		t.Errorf("cleared = %d, want 2", n)
	}
	if n := q.ClearRedeem(); n != 0 {
		t.Errorf("second clear = %d, want 0", n)
	}
	if q.Len() != 3 {
		t.Errorf("len = %d, want messages kept", q.Len())
	}
}

func TestTalkToSelfAfterSkippedMessage(t *testing.T) {
	tests := []struct {
		name   string
		author string
	}{
		{"ignored author", "nightbot"},
		{"already answered", "viewer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(cfg *config.Config, d *Deps) {
				cfg.TalkToSelf = true
				d.Roster = &config.Roster{Ignored: []string{"nightbot"}}
			})
			ctx := context.Background()
			h.c.lastAnswer = h.clock.Now()
			h.redeem(t)
			m := h.c.Put(tt.author, "sally what now", PlatformTwitch)
			h.c.conv.Append(llm.RoleUser, m.Turn())
			h.clock.Advance(21 * time.Second)

			h.c.Step(ctx)
			if h.llm.calls != 1 || len(h.speaker.spoken) != 1 {
				t.Errorf("calls = %d, spoken = %v, want one self-directed reply", h.llm.calls, h.speaker.spoken)
			}
		})
	}
}

func TestHistorySeedsConversation(t *testing.T) {
	history := []db.TranscriptEntry{
		{Role: string(llm.RoleUser), Author: "cool_viewer", Content: "hi sally", Platform: PlatformYouTube},
		{Role: string(llm.RoleAssistant), Content: "hello cool viewer"},
	}
	h := newHarness(t, func(_ *config.Config, d *Deps) { d.History = history })
	turns := h.c.conv.Turns()
	if len(turns) != 2 {
		t.Fatalf("turns = %v", turns)
	}
	if turns[0].Role != llm.RoleUser || turns[0].Content != "cool viewer on YouTube: hi sally" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[1].Role != llm.RoleAssistant || turns[1].Content != "hello cool viewer" {
		t.Errorf("assistant turn = %+v", turns[1])
	}
	if !h.c.conv.HasAssistant("hello cool viewer") {
		t.Error("restored reply should count as already given")
	}
}
