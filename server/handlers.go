package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/sally-bot/consumer"
)

// DefaultStaleAfter is how old the consumer heartbeat may get before /readyz fails.
// A single paced reply can hold the loop for tens of seconds.
const DefaultStaleAfter = 3 * time.Minute

// Bot is the part of the consumer the HTTP API drives.
type Bot interface {
	Snapshot() consumer.Snapshot
	Control(cmds ...consumer.Command) error
}

// Balances exposes the token ledger.
type Balances interface {
	Snapshot() map[string]int
}

// Deps are the server collaborators. DB and Ledger are optional.
type Deps struct {
	Bot        Bot
	Speaker    consumer.Speaker
	Ledger     Balances
	DB         *sql.DB
	StaleAfter time.Duration
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	bot        Bot
	speaker    consumer.Speaker
	ledger     Balances
	db         *sql.DB
	staleAfter time.Duration
	now        func() time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	stale := deps.StaleAfter
	if stale <= 0 {
		stale = DefaultStaleAfter
	}
	return &Handlers{
		bot:        deps.Bot,
		speaker:    deps.Speaker,
		ledger:     deps.Ledger,
		db:         deps.DB,
		staleAfter: stale,
		now:        time.Now,
	}
}

// HandleStatus returns the latest consumer snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.bot.Snapshot())
}

func (h *Handlers) pingDB(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.PingContext(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
