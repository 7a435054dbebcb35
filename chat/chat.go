package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/sally-bot/config"
	"github.com/onnwee/sally-bot/consumer"
	"github.com/onnwee/sally-bot/twitchapi"
)

// Sink receives chat messages and operator controls.
type Sink interface {
	Put(author, content, platform string) consumer.Message
	Control(cmds ...consumer.Command) error
}

// StreamInfoFetcher returns the current game and title of a channel.
type StreamInfoFetcher interface {
	StreamInfo(ctx context.Context, login string) (game, title string, err error)
}

// Bot relays Twitch chat to the consumer.
type Bot struct {
	cfg    *config.Config
	sink   Sink
	info   StreamInfoFetcher // nil disables stream info updates
	client *twitch.Client
	log    *slog.Logger
}

// New returns a bot for cfg.TwitchChannel. info may be nil.
func New(cfg *config.Config, sink Sink, info StreamInfoFetcher) *Bot {
	return &Bot{
		cfg:    cfg,
		sink:   sink,
		info:   info,
		client: twitch.NewClient(cfg.TwitchBotUsername, twitchapi.IRCToken(cfg.TwitchOAuthToken)),
		log:    slog.Default().With(slog.String("component", "twitch_chat")),
	}
}

// Run connects and blocks until ctx is cancelled or the connection fails.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.cfg.ValidateChatReady(); err != nil {
		return err
	}
	b.client.OnConnect(func() {
		b.log.Info("logged in", slog.String("nick", b.cfg.TwitchBotUsername), slog.String("channel", b.cfg.TwitchChannel))
		go b.updateStreamInfo(ctx)
	})
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		b.Handle(ctx, msg.User.Name, msg.Message)
	})

	// Handle context cancellation by closing the client
	go func() {
		<-ctx.Done()
		_ = b.client.Disconnect()
	}()

	b.client.Join(b.cfg.TwitchChannel)
	err := b.client.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		return nil
	}
	return err
}

// SetToken swaps the IRC token used on the next (re)connect.
func (b *Bot) SetToken(access string) {
	b.client.SetIRCToken(twitchapi.IRCToken(access))
}

type operatorCommand struct {
	trigger string
	run     func(ctx context.Context) error
}

func (b *Bot) commands() []operatorCommand {
	bot := strings.ToLower(b.cfg.BotName)
	control := func(cmds ...consumer.Command) func(context.Context) error {
		return func(context.Context) error { return b.sink.Control(cmds...) }
	}
	return []operatorCommand{
		{"!reload_prompt", control(consumer.Command{Kind: consumer.CmdReloadPrompt})},
		{"!toggle_verbose", control(consumer.Command{Kind: consumer.CmdToggleVerbose})},
		{"!clear_conv", control(consumer.Command{Kind: consumer.CmdClearConversation})},
		{"!update_info", func(ctx context.Context) error {
			return b.sink.Control(append(b.streamInfoCommands(ctx), consumer.Command{Kind: consumer.CmdReloadPrompt})...)
		}},
		{"!reload_all", func(ctx context.Context) error {
			return b.sink.Control(append(b.streamInfoCommands(ctx),
				consumer.Command{Kind: consumer.CmdReloadPrompt},
				consumer.Command{Kind: consumer.CmdClearConversation})...)
		}},
		{"!enable_" + bot, control(consumer.Command{Kind: consumer.CmdEnable})},
		{"!disable_" + bot, control(consumer.Command{Kind: consumer.CmdDisable})},
	}
}

// Handle routes one chat message: operator commands become controls, everything
// else is enqueued as a Twitch message.
func (b *Bot) Handle(ctx context.Context, author, text string) {
	if b.cfg.Operator != "" && strings.EqualFold(author, b.cfg.Operator) {
		for _, cmd := range b.commands() {
			if !strings.Contains(text, cmd.trigger) {
				continue
			}
			b.log.Warn("operator command", slog.String("command", cmd.trigger))
			if err := cmd.run(ctx); err != nil {
				b.log.Error("operator command failed", slog.String("command", cmd.trigger), slog.Any("err", err))
			}
			return
		}
	}
	b.log.Debug("message received", slog.String("author", author), slog.String("content", text))
	b.sink.Put(author, text, consumer.PlatformTwitch)
}

func (b *Bot) streamInfoCommands(ctx context.Context) []consumer.Command {
	if b.info == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	game, title, err := b.info.StreamInfo(ctx, b.cfg.TwitchChannel)
	if err != nil {
		b.log.Warn("failed to fetch stream info", slog.Any("err", err))
		return nil
	}
	return []consumer.Command{{Kind: consumer.CmdSetStreamInfo, Game: game, Title: title}}
}

func (b *Bot) updateStreamInfo(ctx context.Context) {
	cmds := b.streamInfoCommands(ctx)
	if len(cmds) == 0 {
		return
	}
	if err := b.sink.Control(cmds...); err != nil {
		b.log.Warn("failed to apply stream info", slog.Any("err", err))
	}
}
