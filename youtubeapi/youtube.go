// Package youtubeapi wraps the YouTube Data API for reading live chat. Credentials are
// either an API key or an OAuth2 refresh token; refreshed OAuth tokens are persisted via
// the optional TokenStore so they survive restarts.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/sally-bot/config"
)

const provider = "youtube"

// TokenStore persists OAuth tokens (see db.TokenStoreAdapter).
type TokenStore interface {
	Get(ctx context.Context, provider string) (access, refresh string, expiry time.Time, err error)
	Put(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// NewService builds a YouTube client. OAuth credentials take precedence over the API key.
func NewService(ctx context.Context, cfg *config.Config, store TokenStore, extra ...option.ClientOption) (*yt.Service, error) {
	opts := append([]option.ClientOption(nil), extra...)
	switch {
	case cfg.YTRefreshToken != "" && cfg.YTClientID != "" && cfg.YTClientSecret != "":
		oc := &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{yt.YoutubeReadonlyScope},
		}
		tok := &oauth2.Token{RefreshToken: cfg.YTRefreshToken}
		if store != nil {
			if access, refresh, expiry, err := store.Get(ctx, provider); err != nil {
				slog.Warn("failed to load stored youtube token", slog.Any("err", err))
			} else if access != "" {
				tok = &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
			}
		}
		ts := oauth2.ReuseTokenSource(tok, &persistingSource{base: oc.TokenSource(ctx, tok), store: store})
		opts = append(opts, option.WithTokenSource(ts))
	case cfg.YTAPIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.YTAPIKey))
	default:
		return nil, errors.New("youtube: need YT_API_KEY or YT_CLIENT_ID/YT_CLIENT_SECRET/YT_REFRESH_TOKEN")
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// persistingSource stores every token fetched from base.
type persistingSource struct {
	base  oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil && tok.AccessToken != p.last {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.store.Put(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, yt.YoutubeReadonlyScope); err != nil {
			slog.Warn("failed to persist youtube token", slog.Any("err", err))
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// ResolveLiveChatID returns the active live chat of a broadcast video.
func ResolveLiveChatID(ctx context.Context, svc *yt.Service, videoID string) (string, error) {
	res, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("videos.list %s: %w", videoID, err)
	}
	if len(res.Items) == 0 || res.Items[0].LiveStreamingDetails == nil || res.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", fmt.Errorf("video %s has no active live chat", videoID)
	}
	return res.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
}
