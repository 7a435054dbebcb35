// Package speech delivers reply text to the local text-to-speech service over a
// websocket.
package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// DefaultURL is where the speech service listens by default.
const DefaultURL = "ws://localhost:7585/speak"

// Packet is the JSON envelope understood by the speech service.
type Packet struct {
	Request string `json:"request"`
	ID      string `json:"id"`
	Voice   string `json:"voice"`
	Message string `json:"message"`
}

// Dispatcher owns a single lazily dialed websocket connection.
// Speak is safe for concurrent use; writes are serialized. Each connection has a
// reader goroutine that drops it once the service closes its end, so the next
// Speak dials afresh instead of writing into a dead socket.
type Dispatcher struct {
	url     string
	voice   string
	timeout time.Duration
	dialer  *ws.Dialer

	mu   sync.Mutex
	conn *ws.Conn

	// newID returns the request id; replaced in tests.
	newID func() string
}

// New returns a dispatcher for url speaking with voice.
func New(url, voice string, timeout time.Duration) *Dispatcher {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		url:     url,
		voice:   voice,
		timeout: timeout,
		dialer:  &ws.Dialer{HandshakeTimeout: timeout},
		newID:   RandomID,
	}
}

// RandomID returns a five digit request id.
func RandomID() string { return strconv.Itoa(10000 + rand.IntN(90000)) }

// Speak sends text. On a failed write the connection is redialed and the write
// retried once.
func (d *Dispatcher) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	payload, err := json.Marshal(Packet{Request: "Speak", ID: d.newID(), Voice: d.voice, Message: text})
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeLocked(ctx, payload); err != nil {
		slog.Warn("speech write failed, redialing", slog.String("url", d.url), slog.Any("err", err))
		d.closeLocked()
		if err := d.writeLocked(ctx, payload); err != nil {
			d.closeLocked()
			return fmt.Errorf("speak: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) writeLocked(ctx context.Context, payload []byte) error {
	if d.conn == nil {
		dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
		conn, _, err := d.dialer.DialContext(dialCtx, d.url, nil)
		cancel()
		if err != nil {
			return fmt.Errorf("dial %s: %w", d.url, err)
		}
		slog.Debug("speech connected", slog.String("url", d.url))
		d.conn = conn
		go d.watch(conn)
	}
	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return d.conn.WriteMessage(ws.TextMessage, payload)
}

// watch reads until conn fails or receives a close frame, then forgets it.
// Incoming data frames are discarded.
func (d *Dispatcher) watch(conn *ws.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			d.mu.Lock()
			if d.conn == conn {
				slog.Warn("speech connection lost", slog.String("url", d.url), slog.Any("err", err))
				d.closeLocked()
			}
			d.mu.Unlock()
			return
		}
	}
}

func (d *Dispatcher) closeLocked() {
	if d.conn == nil {
		return
	}
	if err := d.conn.Close(); err != nil && !errors.Is(err, ws.ErrCloseSent) {
		slog.Debug("speech close", slog.Any("err", err))
	}
	d.conn = nil
}

// Close sends a close frame and releases the connection.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	_ = d.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	d.closeLocked()
	return nil
}
