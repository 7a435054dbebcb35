// Package oauth provides generic token refresh scheduling for providers whose
// tokens are persisted through a TokenStore. It performs jittered checks and
// refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// ApplyFunc receives every newly refreshed access token (e.g. to update a live IRC client).
type ApplyFunc func(access string)

// TokenStore persists tokens per provider. db.TokenStoreAdapter stores them in Postgres.
type TokenStore interface {
	Get(ctx context.Context, provider string) (access, refresh string, expiry time.Time, err error)
	Put(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// MemoryStore keeps tokens in process memory; used when no database is configured.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]memToken
}

type memToken struct {
	access, refresh, scope string
	expiry                 time.Time
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{tokens: make(map[string]memToken)} }

func (m *MemoryStore) Get(_ context.Context, provider string) (string, string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tokens[provider]
	return t.access, t.refresh, t.expiry, nil
}

func (m *MemoryStore) Put(_ context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[provider] = memToken{access: access, refresh: refresh, expiry: expiry, scope: scope}
	return nil
}

// ErrNoRefreshToken is returned by RefreshOnce when nothing can be refreshed.
var ErrNoRefreshToken = errors.New("oauth: no refresh token stored")

// RefreshOnce refreshes the provider token when its remaining lifetime is within window.
// A zero expiry is treated as expired. It reports the new access token, or "" when the
// stored token is still fresh.
func RefreshOnce(ctx context.Context, store TokenStore, provider string, window time.Duration, fn RefreshFunc) (string, error) {
	_, rt, exp, err := store.Get(ctx, provider)
	if err != nil {
		return "", err
	}
	if rt == "" {
		return "", ErrNoRefreshToken
	}
	if !exp.IsZero() && time.Until(exp) > window {
		return "", nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
	cancel()
	if err != nil {
		return "", err
	}
	if newRT == "" {
		newRT = rt
	}
	if err := store.Put(ctx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		return newAT, err
	}
	return newAT, nil
}

// StartRefresher launches a goroutine that periodically checks the stored token and refreshes it.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc, apply ApplyFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			access, err := RefreshOnce(ctx, store, provider, window, fn)
			switch {
			case errors.Is(err, ErrNoRefreshToken):
			case err != nil:
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
			case access != "":
				slog.Info("token refreshed", slog.String("provider", provider))
				if apply != nil {
					apply(access)
				}
			}
			// Per-iteration jitter (+/-20% of interval) for scheduling diversity.
			jitterRange := int64(interval/5) + 1
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}
