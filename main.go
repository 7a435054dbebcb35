// Command sally-bot runs the Sally chat persona.
// It:
//   - Loads configuration (.env via --env) and initializes structured logging.
//   - Optionally connects to Postgres and runs idempotent migrations.
//   - Starts the queue consumer, the Twitch IRC bot, the YouTube live chat poller
//     and the Twitch token refresher.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics and admin endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/onnwee/sally-bot/chat"
	"github.com/onnwee/sally-bot/config"
	"github.com/onnwee/sally-bot/consumer"
	"github.com/onnwee/sally-bot/db"
	"github.com/onnwee/sally-bot/exchange"
	"github.com/onnwee/sally-bot/ledger"
	"github.com/onnwee/sally-bot/llm"
	"github.com/onnwee/sally-bot/memory"
	"github.com/onnwee/sally-bot/oauth"
	"github.com/onnwee/sally-bot/server"
	"github.com/onnwee/sally-bot/speech"
	"github.com/onnwee/sally-bot/telemetry"
	"github.com/onnwee/sally-bot/twitchapi"
	"github.com/onnwee/sally-bot/youtubeapi"
)

func main() {
	envFile := flag.StringP("env", "e", ".env", "env file path")
	flag.Parse()

	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(*envFile)

	closeLog, err := setupLogging()
	if err != nil {
		slog.Error("logging setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeLog()

	if err := run(); err != nil {
		slog.Error("sally-bot exited with error", slog.Any("err", err))
		closeLog()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCompletionReady(); err != nil {
		return err
	}
	roster, err := config.LoadRoster(cfg.RosterFile)
	if err != nil {
		return err
	}
	roster = roster.WithOperator(cfg.Operator)

	// Metrics / telemetry init
	telemetry.Init()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing is optional; it needs OTEL_EXPORTER_OTLP_ENDPOINT
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg, "1.0.0")
	if err != nil {
		return err
	}
	defer shutdownTracing()

	// DB (optional)
	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return err
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			return err
		}
	}

	var balances ledger.Store = ledger.NewFileStore(cfg.Path("sally_tokens.json"))
	var tokens oauth.TokenStore = oauth.NewMemoryStore()
	if database != nil {
		balances = &ledger.PostgresStore{DB: database}
		adapter := &db.TokenStoreAdapter{DB: database}
		if cfg.TokenEncryptionKey != "" {
			if adapter.Sealer, err = db.NewSealer(cfg.TokenEncryptionKey); err != nil {
				return err
			}
		} else {
			slog.Warn("TOKEN_ENCRYPTION_KEY not set; oauth tokens are stored in plaintext", slog.String("component", "db"))
		}
		tokens = adapter
	}
	led, err := ledger.New(ctx, balances)
	if err != nil {
		return err
	}
	mem, err := memory.Open(cfg.Path("memory.txt"))
	if err != nil {
		return err
	}

	completer, err := llm.New(cfg)
	if err != nil {
		return err
	}
	speaker := speech.New(cfg.SpeechURL, cfg.SpeechVoice, cfg.SpeechTimeout)
	defer func() { _ = speaker.Close() }()

	deps := consumer.Deps{
		Completer: completer,
		Speaker:   speaker,
		Ledger:    led,
		Memory:    mem,
		Roster:    roster,
		YouTube:   exchange.NewFileSource(cfg.Path("chat_exchange.txt")),
		Streamer:  exchange.NewFileSource(cfg.Path("streamer_exchange.txt")),
		Enable:    exchange.NewFileSource(cfg.Path("sally_enable.txt")),
	}
	if database != nil {
		transcript := &db.Transcript{DB: database}
		deps.Transcript = transcript
		history, err := transcript.RecentTranscript(ctx, cfg.ConversationLimit)
		if err != nil {
			slog.Warn("failed to load conversation history", slog.Any("err", err))
		}
		deps.History = history
	}
	if cfg.YouTubeLiveEnabled() {
		svc, err := youtubeapi.NewService(ctx, cfg, tokens)
		if err != nil {
			return err
		}
		poller := youtubeapi.NewPoller(svc, cfg.YTLiveChatID, cfg.YTVideoID)
		go poller.Run(ctx)
		deps.YouTube = poller
		slog.Info("youtube live chat poller enabled", slog.String("component", "youtube_live_chat"))
	}

	bot, err := consumer.New(cfg, deps)
	if err != nil {
		return err
	}

	startTwitch(ctx, cfg, bot, tokens)

	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, server.Deps{Bot: bot, Speaker: speaker, Ledger: led, DB: database}); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("sally-bot running", slog.String("bot", cfg.BotName), slog.Bool("talk_to_self", cfg.TalkToSelf), slog.Int("answer_rate", cfg.AnswerRate))
	err = bot.Run(ctx)
	slog.Info("shutting down")
	return err
}

// startTwitch launches the IRC bot and, with a refresh token, the token refresher.
func startTwitch(ctx context.Context, cfg *config.Config, bot *consumer.Consumer, tokens oauth.TokenStore) {
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("twitch chat disabled", slog.Any("reason", err))
		return
	}

	refresher := &twitchapi.Refresher{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	refresh := func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		res, err := refresher.Refresh(rctx, refreshToken)
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return res.AccessToken, res.RefreshToken, twitchapi.ComputeExpiry(res.ExpiresIn), strings.Join(res.Scope, " "), nil
	}

	if cfg.TwitchRefreshToken != "" {
		if _, rt, _, err := tokens.Get(ctx, "twitch"); err == nil && rt == "" {
			// Unknown expiry: stored with a zero time so the first check refreshes.
			_ = tokens.Put(ctx, "twitch", cfg.TwitchOAuthToken, cfg.TwitchRefreshToken, time.Time{}, "")
		}
		if access, err := oauth.RefreshOnce(ctx, tokens, "twitch", 15*time.Minute, refresh); err != nil {
			slog.Warn("initial twitch token refresh failed", slog.Any("err", err))
		} else if access != "" {
			cfg.TwitchOAuthToken = access
		} else if stored, _, _, err := tokens.Get(ctx, "twitch"); err == nil && stored != "" {
			cfg.TwitchOAuthToken = stored
		}
	}

	var info chat.StreamInfoFetcher
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		info = &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		}
	}
	ircBot := chat.New(cfg, bot, info)

	if cfg.TwitchRefreshToken != "" {
		oauth.StartRefresher(ctx, tokens, "twitch", 5*time.Minute, 15*time.Minute, refresh, ircBot.SetToken)
	}

	go func() {
		if err := ircBot.Run(ctx); err != nil {
			slog.Error("twitch chat stopped", slog.Any("err", err), slog.String("component", "twitch_chat"))
		}
	}()
}
