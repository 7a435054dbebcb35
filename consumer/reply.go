package consumer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/onnwee/sally-bot/db"
	"github.com/onnwee/sally-bot/llm"
	"github.com/onnwee/sally-bot/telemetry"
)

// respond appends m to the conversation and, when it asks for an answer, requests a
// completion, applies memory markers, speaks the cleaned reply and records it.
// A nil m produces a self-directed reply to the current conversation.
func (c *Consumer) respond(ctx context.Context, m *Message) {
	log := c.log
	if m != nil {
		ctx = telemetry.WithCorrelation(ctx, m.ID.String())
		log = telemetry.LoggerWithCorr(ctx).With(slog.String("component", "consumer"))
		if err := m.Validate(); err != nil {
			log.Warn("message ignored", slog.String("author", m.Author), slog.Any("err", err))
			return
		}
		c.appendUser(ctx, *m)
		if !m.Answer {
			log.Debug("message appended, not answering", slog.String("author", m.Author))
			return
		}
	}
	platform := "self"
	if m != nil {
		platform = m.Platform
	}
	ctx, span := telemetry.StartSpan(ctx, "consumer", "respond", telemetry.PlatformAttr(platform))
	defer span.End()

	system := c.SystemPrompt()
	turns := c.conv.Turns()
	if c.verbose {
		log.Info("requesting completion", slog.Any("conversation", turns))
	}
	var reply string
	var err error
	telemetry.TimeFunc(telemetry.CompletionDuration, func() {
		reply, err = c.completer.Complete(ctx, system, turns)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.Inc(telemetry.CompletionsFailed)
		log.Error("completion failed", slog.Any("err", err))
		return
	}
	telemetry.Inc(telemetry.CompletionsOK)
	reply = strings.TrimSpace(reply)

	ex, err := c.memory.Extract(reply)
	if err != nil {
		log.Error("failed to persist memory", slog.Any("err", err))
	}
	for _, w := range ex.Written {
		log.Info("memory written", slog.String("entry", w))
	}
	for _, d := range ex.Deleted {
		log.Info("memory deleted", slog.String("entry", d))
	}
	text := CleanReply(ex.Text, c.cfg.BotName)
	log.Info("bot reply", slog.String("reply", reply))

	if err := c.speaker.Speak(ctx, text); err != nil {
		telemetry.Inc(telemetry.SpeechFailures)
		log.Error("failed to speak reply", slog.Any("err", err))
	}
	if !c.conv.HasAssistant(reply) {
		c.conv.Append(llm.RoleAssistant, reply)
		var from Message
		if m != nil {
			from = *m
		}
		c.record(ctx, string(llm.RoleAssistant), from, reply)
	}
	telemetry.SetSpanSuccess(span)
	c.sleep(ctx, pace(reply))
}

// CleanReply makes a reply suitable for speech: underscores become spaces and a
// leading "<bot>:" or "<bot> on <platform>:" speaker tag is removed.
func CleanReply(reply, botName string) string {
	out := strings.ReplaceAll(reply, "_", " ")
	prefixes := []string{
		botName + ":",
		botName + " on " + PlatformTwitch + ":",
		botName + " on " + PlatformYouTube + ":",
		botName + " on " + PlatformStream + ":",
	}
	for _, p := range prefixes {
		out = strings.TrimPrefix(out, p)
	}
	return strings.TrimSpace(out)
}

func (c *Consumer) record(ctx context.Context, role string, m Message, content string) {
	if c.transcript == nil {
		return
	}
	e := db.TranscriptEntry{Role: role, Platform: m.Platform, Author: m.Author, Content: content, Answered: m.Answer}
	if m.Author != "" {
		e.MessageID = m.ID.String()
	}
	if role == string(llm.RoleAssistant) {
		e.Author = c.cfg.BotName
	}
	if err := c.transcript.Record(ctx, e); err != nil {
		c.log.Warn("failed to record transcript", slog.Any("err", err))
	}
}
