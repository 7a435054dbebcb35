package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuth(t *testing.T) {
	cfg := &authConfig{adminUsername: "admin", adminPassword: "secret", adminToken: "tok", enabled: true}
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  int
	}{
		{"no credentials", func(r *http.Request) {}, http.StatusUnauthorized},
		{"valid token", func(r *http.Request) { r.Header.Set("X-Admin-Token", "tok") }, http.StatusOK},
		{"wrong token", func(r *http.Request) { r.Header.Set("X-Admin-Token", "nope") }, http.StatusUnauthorized},
		{"valid basic auth", func(r *http.Request) { r.SetBasicAuth("admin", "secret") }, http.StatusOK},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "guess") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/say", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			adminAuth(okHandler(), cfg).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("code = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestAdminAuthDisabledPassesThrough(t *testing.T) {
	rr := httptest.NewRecorder()
	adminAuth(okHandler(), &authConfig{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/say", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("code = %d", rr.Code)
	}
}

func TestLoadAuthConfig(t *testing.T) {
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("ADMIN_TOKEN", "")
	if loadAuthConfig().enabled {
		t.Error("auth enabled without credentials")
	}
	t.Setenv("ADMIN_USERNAME", "admin")
	if loadAuthConfig().enabled {
		t.Error("username alone must not enable auth")
	}
	t.Setenv("ADMIN_PASSWORD", "pw")
	if !loadAuthConfig().enabled {
		t.Error("basic auth credentials should enable auth")
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 2, window: time.Minute})
	h := rateLimitMiddleware(okHandler(), limiter)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/say", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/admin/say", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusOK {
		t.Errorf("other ip code = %d", rr.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 5, window: time.Second})
	limiter.allow("1.2.3.4")
	limiter.cleanup(time.Now().Add(time.Minute))
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.visitors) != 0 {
		t.Errorf("visitors = %v", limiter.visitors)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	if got := clientIP(req); got != "192.168.1.5" {
		t.Errorf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("forwarded clientIP = %q", got)
	}
}

func TestAdminRoutesRequireAuthThroughMux(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "tok")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bot := &fakeBot{}
	h := NewMux(ctx, Deps{Bot: bot})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/prompt/reload", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated code = %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/prompt/reload", nil)
	req.Header.Set("X-Admin-Token", "tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("authenticated code = %d", rr.Code)
	}
	// public routes stay open
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("healthz code = %d", rr.Code)
	}
}
