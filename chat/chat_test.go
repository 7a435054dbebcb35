package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/onnwee/sally-bot/config"
	"github.com/onnwee/sally-bot/consumer"
)

type fakeSink struct {
	mu       sync.Mutex
	messages []consumer.Message
	controls []consumer.Command
}

func (f *fakeSink) Put(author, content, platform string) consumer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := consumer.NewMessage(author, content, platform)
	f.messages = append(f.messages, m)
	return m
}

func (f *fakeSink) Control(cmds ...consumer.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, cmds...)
	return nil
}

type fakeInfo struct {
	game, title string
	err         error
	logins      []string
}

func (f *fakeInfo) StreamInfo(_ context.Context, login string) (string, string, error) {
	f.logins = append(f.logins, login)
	return f.game, f.title, f.err
}

func kinds(cmds []consumer.Command) []consumer.CommandKind {
	out := make([]consumer.CommandKind, len(cmds))
	for i, c := range cmds {
		out[i] = c.Kind
	}
	return out
}

func TestHandleOperatorCommands(t *testing.T) {
	tests := []struct {
		text string
		want []consumer.CommandKind
	}{
		{"!reload_prompt", []consumer.CommandKind{consumer.CmdReloadPrompt}},
		{"!toggle_verbose", []consumer.CommandKind{consumer.CmdToggleVerbose}},
		{"please !clear_conv now", []consumer.CommandKind{consumer.CmdClearConversation}},
		{"!update_info", []consumer.CommandKind{consumer.CmdSetStreamInfo, consumer.CmdReloadPrompt}},
		{"!reload_all", []consumer.CommandKind{consumer.CmdSetStreamInfo, consumer.CmdReloadPrompt, consumer.CmdClearConversation}},
		{"!enable_sally", []consumer.CommandKind{consumer.CmdEnable}},
		{"!disable_sally", []consumer.CommandKind{consumer.CmdDisable}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			sink := &fakeSink{}
			info := &fakeInfo{game: "Celeste", title: "Any%"}
			cfg := &config.Config{BotName: "Sally", Operator: "caesarlp", TwitchChannel: "caesarlp"}
			b := New(cfg, sink, info)

			b.Handle(context.Background(), "CaesarLP", tt.text)

			if len(sink.messages) != 0 {
				t.Errorf("command was enqueued as chat: %+v", sink.messages)
			}
			got := kinds(sink.controls)
			if len(got) != len(tt.want) {
				t.Fatalf("controls = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("controls = %v, want %v", got, tt.want)
				}
			}
			if tt.want[0] == consumer.CmdSetStreamInfo {
				if sink.controls[0].Game != "Celeste" || sink.controls[0].Title != "Any%" {
					t.Errorf("stream info = %+v", sink.controls[0])
				}
				if len(info.logins) != 1 || info.logins[0] != "caesarlp" {
					t.Errorf("looked up %v", info.logins)
				}
			}
		})
	}
}

func TestHandleUpdateInfoFailureStillReloads(t *testing.T) {
	sink := &fakeSink{}
	b := New(&config.Config{BotName: "Sally", Operator: "op"}, sink, &fakeInfo{err: errors.New("helix down")})
	b.Handle(context.Background(), "op", "!update_info")
	if got := kinds(sink.controls); len(got) != 1 || got[0] != consumer.CmdReloadPrompt {
		t.Errorf("controls = %v", got)
	}
}

func TestHandleChatMessages(t *testing.T) {
	tests := []struct {
		name   string
		author string
		text   string
	}{
		{"viewer", "viewer1", "hello sally"},
		{"viewer using a command", "viewer1", "!clear_conv"},
		{"operator chatting", "op", "good morning chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			b := New(&config.Config{BotName: "Sally", Operator: "op"}, sink, nil)
			b.Handle(context.Background(), tt.author, tt.text)
			if len(sink.controls) != 0 {
				t.Errorf("unexpected controls %v", sink.controls)
			}
			if len(sink.messages) != 1 || sink.messages[0].Platform != consumer.PlatformTwitch || sink.messages[0].Content != tt.text {
				t.Errorf("messages = %+v", sink.messages)
			}
		})
	}
}

func TestRunRequiresCredentials(t *testing.T) {
	b := New(&config.Config{BotName: "Sally"}, &fakeSink{}, nil)
	if err := b.Run(context.Background()); err == nil {
		t.Fatal("expected error without twitch credentials")
	}
}
