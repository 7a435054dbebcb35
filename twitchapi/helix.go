// Package twitchapi contains minimal helpers to interact with the Twitch Helix API
// (user id resolution and channel information for the prompt) and the Twitch OAuth
// token endpoints (app tokens and bot token refresh).
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultHelixURL is the Helix API root.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// HelixClient provides the few Helix calls the bot needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	BaseURL        string // defaults to DefaultHelixURL
}

// ChannelInfo is the subset of /helix/channels used in the system prompt.
type ChannelInfo struct {
	BroadcasterID string `json:"broadcaster_id"`
	GameName      string `json:"game_name"`
	Title         string `json:"title"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) get(ctx context.Context, path string, q url.Values, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	base := hc.BaseURL
	if base == "" {
		base = DefaultHelixURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		hc.AppTokenSource.Invalidate()
		return fmt.Errorf("helix %s: unauthorized", path)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/users", url.Values{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// GetChannelInformation returns the current game and title of a broadcaster.
func (hc *HelixClient) GetChannelInformation(ctx context.Context, broadcasterID string) (*ChannelInfo, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	var body struct {
		Data []ChannelInfo `json:"data"`
	}
	if err := hc.get(ctx, "/channels", url.Values{"broadcaster_id": {broadcasterID}}, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("channel not found")
	}
	return &body.Data[0], nil
}

// StreamInfo resolves login and returns (game, title). The title is cut at the first "|",
// which streamers use to separate the headline from tags and schedule notes.
func (hc *HelixClient) StreamInfo(ctx context.Context, login string) (game, title string, err error) {
	id, err := hc.GetUserID(ctx, login)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", login, err)
	}
	info, err := hc.GetChannelInformation(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("channel info %s: %w", login, err)
	}
	title, _, _ = strings.Cut(info.Title, "|")
	return info.GameName, strings.TrimSpace(title), nil
}
