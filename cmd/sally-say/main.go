// Command sally-say reads lines from stdin and speaks each one through the speech service.
//
//	echo "hello chat" | sally-say --url ws://localhost:7585/speak
package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/onnwee/sally-bot/speech"
)

func main() {
	envFile := flag.StringP("env", "e", ".env", "env file path")
	url := flag.StringP("url", "u", "", "speech websocket url (default SPEECH_URL or "+speech.DefaultURL+")")
	voice := flag.StringP("voice", "v", "", "voice name (default SPEECH_VOICE or Sally)")
	timeout := flag.DurationP("timeout", "t", 5*time.Second, "per-line send timeout")
	flag.Parse()

	_ = godotenv.Load(*envFile)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	d := speech.New(firstNonEmpty(*url, os.Getenv("SPEECH_URL"), speech.DefaultURL),
		firstNonEmpty(*voice, os.Getenv("SPEECH_VOICE"), "Sally"), *timeout)
	defer func() { _ = d.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := speakLines(ctx, d, os.Stdin)
	if err != nil {
		slog.Error("speak failed", slog.Any("err", err), slog.Int("sent", n))
		stop()
		os.Exit(1)
	}
}

type speaker interface {
	Speak(ctx context.Context, text string) error
}

// speakLines sends every non-blank line of r and reports how many were sent.
func speakLines(ctx context.Context, s speaker, r io.Reader) (int, error) {
	sent := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := s.Speak(ctx, line); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, sc.Err()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
