package consumer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/onnwee/sally-bot/ledger"
	"github.com/onnwee/sally-bot/llm"
	"github.com/onnwee/sally-bot/telemetry"
)

func (c *Consumer) pollSources(ctx context.Context) {
	c.ingest(ctx, c.youtube, PlatformYouTube)
	c.ingest(ctx, c.streamer, PlatformStream)
}

func (c *Consumer) pollEnable() {
	if c.ingest(context.Background(), c.enable, EnablePlatform(c.cfg.BotName)) > 0 {
		c.enterRedeemed("enable file")
	}
}

// ingest moves pending lines from src into the queue and returns how many were read.
func (c *Consumer) ingest(ctx context.Context, src Source, platform string) int {
	if src == nil {
		return 0
	}
	lines, err := src.Poll()
	if err != nil {
		c.log.Warn("source poll failed", slog.String("platform", platform), slog.Any("err", err))
		return 0
	}
	for _, l := range lines {
		m := NewMessage(l.Author, l.Content, platform)
		switch platform {
		case PlatformYouTube:
			redeemed := c.gate(ctx, m)
			m.Answer = c.Decide(m) || redeemed
			m.Redeem = redeemed
		case EnablePlatform(c.cfg.BotName):
			m.Answer, m.Redeem = true, true
		default:
			m.Answer = c.Decide(m)
		}
		c.log.Info("message received", slog.String("author", m.Author), slog.String("platform", platform), slog.String("content", m.Content), slog.Bool("answer", m.Answer))
		c.queue.Put(m)
		telemetry.IncIngested(platform)
	}
	return len(lines)
}

// gate credits the author one token and spends RedeemCost when the message asks for
// a redeem. It reports whether the message redeemed the bot.
func (c *Consumer) gate(ctx context.Context, m Message) bool {
	if c.roster.IsBlacklisted(m.Author) {
		c.log.Warn("user blacklisted, not granting token", slog.String("author", m.Author))
	} else {
		if _, err := c.ledger.Grant(ctx, m.Author); err != nil {
			c.log.Error("failed to persist token grant", slog.String("author", m.Author), slog.Any("err", err))
		}
		telemetry.Inc(telemetry.TokensGranted)
	}
	if !strings.Contains(strings.ToLower(m.Content), c.cfg.RedeemKeyword()) {
		return false
	}
	if c.state.Redeemed {
		c.log.Warn("redeem while already redeemed", slog.String("author", m.Author), slog.String("content", m.Content))
		return false
	}
	bal, err := c.ledger.Spend(ctx, m.Author, c.cfg.RedeemCost)
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.log.Warn("redeem with insufficient funds", slog.String("author", m.Author), slog.Int("balance", bal), slog.Int("cost", c.cfg.RedeemCost))
		return false
	case err != nil:
		c.log.Error("failed to persist redeem", slog.String("author", m.Author), slog.Any("err", err))
	}
	c.log.Info("token redeem", slog.String("author", m.Author), slog.String("content", m.Content), slog.Int("balance", bal))
	telemetry.Inc(telemetry.Redeems)
	c.enterRedeemed("token redeem by " + m.Author)
	return true
}

// Decide reports whether m should get an answer. Safe for concurrent use.
func (c *Consumer) Decide(m Message) bool {
	lower := strings.ToLower(m.Content)
	switch {
	case c.cfg.NoCommand:
		return true
	case strings.Contains(lower, strings.ToLower(c.cfg.BotName)):
		return true
	case strings.Contains(lower, CommandToken):
		return true
	case c.roll() < c.cfg.AnswerRate:
		return true
	case c.roster.Allowed(m.Author):
		return true
	}
	return false
}

// appendUser folds m into the conversation without answering.
func (c *Consumer) appendUser(ctx context.Context, m Message) {
	c.conv.Append(llm.RoleUser, m.Turn())
	c.record(ctx, string(llm.RoleUser), m, m.Content)
}
