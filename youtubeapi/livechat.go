package youtubeapi

import (
	"context"
	"log/slog"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/sally-bot/exchange"
)

const (
	minPollInterval = time.Second
	errorBackoff    = 10 * time.Second
	bufferSize      = 256
)

// Poller follows a live chat and buffers its messages until the consumer polls them.
type Poller struct {
	svc        *yt.Service
	liveChatID string
	videoID    string

	lines chan exchange.Line
	// SkipBacklog drops the messages already in the chat when the poller starts.
	SkipBacklog bool
}

// NewPoller follows liveChatID, or the active chat of videoID when liveChatID is empty.
func NewPoller(svc *yt.Service, liveChatID, videoID string) *Poller {
	return &Poller{svc: svc, liveChatID: liveChatID, videoID: videoID, lines: make(chan exchange.Line, bufferSize), SkipBacklog: true}
}

// Poll returns the messages buffered since the last call without blocking.
func (p *Poller) Poll() ([]exchange.Line, error) {
	var out []exchange.Line
	for {
		select {
		case l := <-p.lines:
			out = append(out, l)
		default:
			return out, nil
		}
	}
}

// Run follows the chat until ctx is cancelled. API errors are logged and retried after a backoff.
func (p *Poller) Run(ctx context.Context) {
	log := slog.Default().With(slog.String("component", "youtube_live_chat"))
	for p.liveChatID == "" {
		id, err := ResolveLiveChatID(ctx, p.svc, p.videoID)
		if err == nil {
			p.liveChatID = id
			break
		}
		log.Warn("waiting for live chat", slog.String("video_id", p.videoID), slog.Any("err", err))
		if !sleep(ctx, errorBackoff) {
			return
		}
	}
	log.Info("following live chat", slog.String("live_chat_id", p.liveChatID))

	pageToken := ""
	first := true
	for {
		res, err := p.svc.LiveChatMessages.List(p.liveChatID, []string{"snippet", "authorDetails"}).PageToken(pageToken).Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("liveChatMessages.list failed", slog.Any("err", err))
			if !sleep(ctx, errorBackoff) {
				return
			}
			continue
		}
		pageToken = res.NextPageToken
		if !(first && p.SkipBacklog) {
			p.buffer(log, res.Items)
		}
		first = false

		wait := time.Duration(res.PollingIntervalMillis) * time.Millisecond
		if wait < minPollInterval {
			wait = minPollInterval
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (p *Poller) buffer(log *slog.Logger, items []*yt.LiveChatMessage) {
	for _, it := range items {
		if it.Snippet == nil || it.AuthorDetails == nil || it.Snippet.DisplayMessage == "" {
			continue
		}
		l := exchange.Line{Author: it.AuthorDetails.DisplayName, Content: it.Snippet.DisplayMessage}
		select {
		case p.lines <- l:
		default:
			log.Warn("live chat buffer full, dropping message", slog.String("author", l.Author))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
