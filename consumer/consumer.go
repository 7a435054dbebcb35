// Package consumer implements the chat queue consumer: source polling, the token
// gate, the response decision, the redeem state machine and reply generation.
//
// All mutable bot state is owned by the goroutine running Run. Other goroutines
// interact through Put (enqueue), Control (operator commands) and Snapshot.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/onnwee/sally-bot/config"
	"github.com/onnwee/sally-bot/db"
	"github.com/onnwee/sally-bot/exchange"
	"github.com/onnwee/sally-bot/ledger"
	"github.com/onnwee/sally-bot/llm"
	"github.com/onnwee/sally-bot/memory"
	"github.com/onnwee/sally-bot/telemetry"
)

const (
	// MaxQueueDepth is the depth above which a redeemed consumer sheds backlog.
	MaxQueueDepth = 5
	// MaxOverrun bounds how many messages are processed after the cooldown expired.
	MaxOverrun = 10
	// TalkToSelfAfter is the silence after which a self-directed reply is generated.
	TalkToSelfAfter = 20 * time.Second
	// EnableCooldown is the cooldown used when an operator force-enables the bot.
	EnableCooldown = 999999 * time.Second
	// CommandToken in a message always requests an answer.
	CommandToken = "?response"
)

// Completer generates a reply for a system prompt and conversation.
type Completer interface {
	Complete(ctx context.Context, system string, turns []llm.Turn) (string, error)
}

// Speaker delivers text to speech synthesis.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Source yields pending chat lines.
type Source interface {
	Poll() ([]exchange.Line, error)
}

// Recorder persists conversation turns.
type Recorder interface {
	Record(ctx context.Context, e db.TranscriptEntry) error
}

// Deps are the collaborators of a Consumer. YouTube, Streamer and Enable may be nil.
type Deps struct {
	Completer  Completer
	Speaker    Speaker
	Ledger     *ledger.Ledger
	Memory     *memory.Store
	Roster     *config.Roster
	YouTube    Source
	Streamer   Source
	Enable     Source
	Transcript Recorder
	// History is replayed into the conversation at start, oldest first.
	History []db.TranscriptEntry
}

// RedeemState tracks the redeem window.
type RedeemState struct {
	Redeemed   bool
	RedeemedAt time.Time
	Overrun    int
	Cooldown   time.Duration
}

// Consumer is the queue consumer.
type Consumer struct {
	cfg        *config.Config
	promptPath string
	log        *slog.Logger

	completer  Completer
	speaker    Speaker
	ledger     *ledger.Ledger
	memory     *memory.Store
	roster     *config.Roster
	youtube    Source
	streamer   Source
	enable     Source
	transcript Recorder

	queue    *Queue
	controls chan Command
	wake     chan struct{}
	snap     atomic.Pointer[Snapshot]

	// loop-owned state
	conv       *Conversation
	state      RedeemState
	prompt     string
	game       string
	title      string
	lastAnswer time.Time
	verbose    bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	roll  func() int
}

// New wires a consumer. The prompt is read from prompt_chat.txt in DataDir.
func New(cfg *config.Config, deps Deps) (*Consumer, error) {
	if deps.Completer == nil || deps.Speaker == nil || deps.Ledger == nil || deps.Memory == nil {
		return nil, errors.New("consumer: completer, speaker, ledger and memory are required")
	}
	roster := deps.Roster
	if roster == nil {
		roster = &config.Roster{}
	}
	c := &Consumer{
		cfg:        cfg,
		promptPath: cfg.Path("prompt_chat.txt"),
		log:        slog.Default().With(slog.String("component", "consumer")),
		completer:  deps.Completer,
		speaker:    deps.Speaker,
		ledger:     deps.Ledger,
		memory:     deps.Memory,
		roster:     roster,
		youtube:    deps.YouTube,
		streamer:   deps.Streamer,
		enable:     deps.Enable,
		transcript: deps.Transcript,
		queue:      NewQueue(),
		controls:   make(chan Command, controlBuffer),
		wake:       make(chan struct{}, 1),
		conv:       NewConversation(cfg.ConversationLimit),
		state:      RedeemState{Cooldown: cfg.RedeemCooldown},
		verbose:    cfg.Verbose,
		now:        time.Now,
		sleep:      sleepCtx,
		roll:       func() int { return rand.IntN(100) + 1 },
	}
	c.seedHistory(deps.History)
	c.publish()
	return c, nil
}

// seedHistory rebuilds conversation turns from recorded transcript entries.
func (c *Consumer) seedHistory(entries []db.TranscriptEntry) {
	for _, e := range entries {
		switch llm.Role(e.Role) {
		case llm.RoleUser:
			m := Message{Author: e.Author, Content: e.Content, Platform: e.Platform}
			c.conv.Append(llm.RoleUser, m.Turn())
		case llm.RoleAssistant:
			c.conv.Append(llm.RoleAssistant, e.Content)
		}
	}
	if len(entries) > 0 {
		c.log.Info("conversation restored", slog.Int("turns", c.conv.Len()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Put enqueues a chat message from any goroutine, deciding whether it gets an answer.
func (c *Consumer) Put(author, content, platform string) Message {
	m := NewMessage(author, content, platform)
	m.Answer = c.Decide(m)
	c.queue.Put(m)
	telemetry.IncIngested(platform)
	return m
}

// Run processes the queue until ctx is cancelled. A panic inside an iteration is
// recovered and returned as an error; the loop does not restart.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer started", slog.Int("conversation_limit", c.cfg.ConversationLimit), slog.Int("answer_rate", c.cfg.AnswerRate))
	c.loadPrompt()
	c.lastAnswer = c.now()
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			c.log.Info("consumer stopped")
			return nil
		}
		worked, err := c.safeStep(ctx)
		if err != nil {
			return err
		}
		if worked {
			continue
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
		case <-c.wake:
		case <-c.queue.Notify():
		case <-t.C:
		}
		t.Stop()
	}
}

func (c *Consumer) safeStep(ctx context.Context) (worked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("consumer iteration panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("consumer iteration panicked: %v", r)
		}
	}()
	return c.Step(ctx), nil
}

// Step runs one loop iteration and reports whether any message was processed.
func (c *Consumer) Step(ctx context.Context) bool {
	telemetry.Inc(telemetry.ConsumerIterations)
	defer c.publish()
	c.applyControls()
	if !c.state.Redeemed {
		c.idleStep(ctx)
		return c.state.Redeemed
	}
	return c.redeemStep(ctx)
}

func (c *Consumer) idleStep(ctx context.Context) {
	c.pollSources(ctx)
	drained := c.queue.DrainExcept(func(m Message) bool { return m.Redeem })
	for _, m := range drained {
		c.appendUser(ctx, m)
	}
	if !c.state.Redeemed {
		c.pollEnable()
	}
	telemetry.SetQueueDepth(c.queue.Len())
}

func (c *Consumer) redeemStep(ctx context.Context) bool {
	worked := false
	if c.queue.Len() > MaxQueueDepth {
		shed := c.queue.ShedAllButNewest()
		c.log.Warn("flushing queue", slog.Int("shed", len(shed)))
		for _, m := range shed {
			c.appendUser(ctx, m)
		}
		telemetry.Add(telemetry.MessagesShed, len(shed))
	}

	m, popped := c.queue.Pop()
	switch {
	case !popped:
	case c.roster.IsIgnored(m.Author):
		c.log.Warn("message ignored, user on ignore list", slog.String("author", m.Author))
		worked = true
	case c.conv.Contains(m.Content, m.Turn()):
		c.log.Debug("message already answered", slog.String("author", m.Author))
	default:
		c.respond(ctx, &m)
		c.sleep(ctx, pace(m.Content))
		c.lastAnswer = c.now()
		worked = true
	}

	if c.queue.Len() == 0 && c.cfg.TalkToSelf && c.now().Sub(c.lastAnswer) > TalkToSelfAfter {
		c.log.Info("queue empty, replying to self")
		c.respond(ctx, nil)
		c.lastAnswer = c.now()
		worked = true
	}

	c.pollSources(ctx)
	c.checkExit()
	telemetry.SetQueueDepth(c.queue.Len())
	return worked
}

// checkExit leaves the redeemed state once the cooldown elapsed and the queue is
// empty, or after MaxOverrun further iterations with a backlog.
func (c *Consumer) checkExit() {
	if !c.state.Redeemed || c.now().Sub(c.state.RedeemedAt) <= c.state.Cooldown {
		return
	}
	if c.queue.Len() == 0 {
		c.exitRedeemed("cooldown reached")
		return
	}
	c.state.Overrun++
	if c.state.Overrun >= MaxOverrun {
		c.log.Warn("cooldown reached, overrun limit hit, leaving redeem", slog.Int("overrun", c.state.Overrun), slog.Int("queued", c.queue.Len()))
		c.exitRedeemed("overrun")
		return
	}
	c.log.Warn("cooldown reached, still processing messages", slog.Int("overrun", c.state.Overrun))
}

func (c *Consumer) enterRedeemed(reason string) {
	if !c.state.Redeemed {
		c.log.Info("redeemed", slog.String("reason", reason), slog.Duration("cooldown", c.state.Cooldown))
	}
	c.state.Redeemed = true
	c.state.RedeemedAt = c.now()
	c.state.Overrun = 0
	telemetry.SetRedeemed(true)
}

// exitRedeemed returns to idle. Leftover redeem messages lose their flag so the
// next idle drain folds them into history instead of carrying them into a later redeem.
func (c *Consumer) exitRedeemed(reason string) {
	if c.state.Redeemed {
		c.log.Info("waiting for another redeem", slog.String("reason", reason))
	}
	if n := c.queue.ClearRedeem(); n > 0 {
		c.log.Info("dropped stale redeem messages", slog.Int("count", n))
	}
	c.state.Redeemed = false
	c.state.Overrun = 0
	telemetry.SetRedeemed(false)
}

// pace is the pause after speaking text, roughly its reading time.
func pace(text string) time.Duration {
	return time.Duration(len(text)) * time.Second / 10
}

func (c *Consumer) loadPrompt() {
	b, err := os.ReadFile(c.promptPath)
	if err != nil {
		c.log.Error("failed to load prompt", slog.String("path", c.promptPath), slog.Any("err", err))
		return
	}
	c.prompt = strings.TrimRight(string(b), "\n")
	c.log.Info("prompt loaded", slog.String("path", c.promptPath), slog.Int("bytes", len(b)))
}

// SystemPrompt renders the prompt template with stream info, date and memory.
func (c *Consumer) SystemPrompt() string {
	p := c.prompt
	if c.title != "" {
		p = strings.ReplaceAll(p, "STREAM_TITLE", c.title)
	}
	if c.game != "" {
		p = strings.ReplaceAll(p, "GAME_NAME", c.game)
	}
	return fmt.Sprintf("%s DATE:%s MEMORY: %s", p, c.now().Format("2006-01-02"), c.memory.String())
}
