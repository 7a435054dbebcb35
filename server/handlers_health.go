package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HandleHealthz answers liveness checks, checking the database when one is configured.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.pingDB(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports readiness with per-dependency checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.pingDB(r.Context()) }},
		{"consumer", func() error {
			snap := h.bot.Snapshot()
			if snap.UpdatedAt.IsZero() {
				return errors.New("consumer loop not started")
			}
			if age := h.now().Sub(snap.UpdatedAt); age > h.staleAfter {
				return fmt.Errorf("consumer heartbeat stale for %s", age.Round(time.Second))
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
