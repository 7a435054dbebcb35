package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RefreshResult represents the response from a refresh_token grant.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	Scope        []string
	ExpiresIn    int
}

// Refresher exchanges the bot account's refresh token for a new IRC access token.
type Refresher struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	TokenURL     string // defaults to DefaultTokenURL
}

// Refresh performs the refresh_token grant.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if r.ClientID == "" || r.ClientSecret == "" || refreshToken == "" {
		return nil, errors.New("missing clientID/clientSecret/refreshToken")
	}
	form := url.Values{}
	form.Set("client_id", r.ClientID)
	form.Set("client_secret", r.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	var res tokenResponse
	if err := postForm(ctx, r.HTTPClient, tokenURL(r.TokenURL), form, &res); err != nil {
		return nil, fmt.Errorf("twitch refresh failed: %w", err)
	}
	if res.AccessToken == "" {
		return nil, errors.New("empty access_token in twitch refresh response")
	}
	return &RefreshResult{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken, Scope: res.Scope, ExpiresIn: res.ExpiresIn}, nil
}

// ComputeExpiry returns absolute expiry time from seconds, defaulting to +60m when unknown.
func ComputeExpiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Now().Add(60 * time.Minute)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}

// IRCToken formats an access token the way the IRC PASS command expects it.
func IRCToken(access string) string {
	if strings.HasPrefix(access, "oauth:") {
		return access
	}
	return "oauth:" + access
}
