package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/sally-bot/consumer"
	"github.com/onnwee/sally-bot/telemetry"
)

const maxAdminBody = 4 << 10

// HandleAdminRedeem switches redeem mode on or off: {"enabled": true}.
func (h *Handlers) HandleAdminRedeem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeAdmin(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}
	cmd := consumer.Command{Kind: consumer.CmdDisable}
	if *body.Enabled {
		cmd.Kind = consumer.CmdEnable
	}
	h.control(w, r, cmd)
}

// HandleAdminSay speaks text directly, bypassing the conversation: {"text": "..."}.
func (h *Handlers) HandleAdminSay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeAdmin(w, r, &body) {
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if h.speaker == nil {
		http.Error(w, "speech not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.speaker.Speak(r.Context(), text); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("admin say failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "speech failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAdminClearConversation empties the conversation history.
func (h *Handlers) HandleAdminClearConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.control(w, r, consumer.Command{Kind: consumer.CmdClearConversation})
}

// HandleAdminReloadPrompt re-reads the prompt file.
func (h *Handlers) HandleAdminReloadPrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.control(w, r, consumer.Command{Kind: consumer.CmdReloadPrompt})
}

// HandleAdminStreamInfo sets the game and title substituted into the prompt.
func (h *Handlers) HandleAdminStreamInfo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Game  string `json:"game"`
		Title string `json:"title"`
	}
	if !decodeAdmin(w, r, &body) {
		return
	}
	h.control(w, r,
		consumer.Command{Kind: consumer.CmdSetStreamInfo, Game: body.Game, Title: body.Title},
		consumer.Command{Kind: consumer.CmdReloadPrompt},
	)
}

func (h *Handlers) control(w http.ResponseWriter, r *http.Request, cmds ...consumer.Command) {
	if err := h.bot.Control(cmds...); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, consumer.ErrControlBusy) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	kinds := make([]string, len(cmds))
	for i, c := range cmds {
		kinds[i] = c.Kind.String()
	}
	telemetry.LoggerWithCorr(r.Context()).Info("admin control queued", slog.Any("commands", kinds), slog.String("component", "http"))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "commands": kinds})
}

// decodeAdmin enforces POST and decodes a small JSON body into v.
func decodeAdmin(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// HandleAdminBalances lists every viewer's token balance.
func (h *Handlers) HandleAdminBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.ledger == nil {
		http.Error(w, "ledger not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]int{"balances": h.ledger.Snapshot()})
}
