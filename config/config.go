// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with only an OpenAI key.
// For feature prerequisites (Twitch chat, completions), use the Validate* helpers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultBotName is the persona name used in prompts, the redeem keyword and reply cleanup.
const DefaultBotName = "Sally"

type Config struct {
	// Persona
	BotName  string
	Operator string // the only chat account allowed to run operator commands

	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchRefreshToken string
	TwitchClientID     string
	TwitchClientSecret string

	// LLM
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIProxy       string // optional SOCKS5 address
	Model             string
	Temperature       float64
	MaxTokens         int
	FrequencyPenalty  float64
	PresencePenalty   float64
	Stop              []string
	ContextTokens     int // 0 disables token-budget trimming
	CompletionTimeout time.Duration

	// Speech
	SpeechURL     string
	SpeechVoice   string
	SpeechTimeout time.Duration

	// Consumer behaviour
	AnswerRate        int
	NoCommand         bool
	TalkToSelf        bool
	Verbose           bool
	RedeemCost        int
	RedeemCooldown    time.Duration
	ConversationLimit int
	PollInterval      time.Duration

	// Storage
	DataDir    string
	RosterFile string
	DBDsn      string
	// TokenEncryptionKey (base64, 32 bytes) seals OAuth tokens stored in Postgres.
	TokenEncryptionKey string

	// YouTube live chat (optional; falls back to the chat export file)
	YTAPIKey       string
	YTLiveChatID   string
	YTVideoID      string
	YTClientID     string
	YTClientSecret string
	YTRefreshToken string

	// HTTP
	HTTPAddr string

	// Tracing (disabled without an endpoint)
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// Load reads environment variables and applies defaults. Missing optional variables disable
// features (Twitch chat, YouTube API, database) instead of failing.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BotName = envOr("BOT_NAME", DefaultBotName)
	cfg.Operator = strings.ToLower(os.Getenv("OPERATOR"))

	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchRefreshToken = os.Getenv("TWITCH_REFRESH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OpenAIProxy = os.Getenv("OPENAI_PROXY")
	cfg.Model = envOr("OPENAI_MODEL", "gpt-4o")
	cfg.Stop = []string{"SALLY:", "CHATTER:", "CHATTER_NAME"}
	if v := os.Getenv("LLM_STOP"); v != "" {
		cfg.Stop = splitList(v)
	}

	var err error
	if cfg.Temperature, err = envFloat("LLM_TEMPERATURE", 1.1); err != nil {
		return nil, err
	}
	if cfg.FrequencyPenalty, err = envFloat("LLM_FREQUENCY_PENALTY", 2.0); err != nil {
		return nil, err
	}
	if cfg.PresencePenalty, err = envFloat("LLM_PRESENCE_PENALTY", 2.0); err != nil {
		return nil, err
	}
	if cfg.MaxTokens, err = envInt("LLM_MAX_TOKENS", 250); err != nil {
		return nil, err
	}
	if cfg.ContextTokens, err = envInt("LLM_CONTEXT_TOKENS", 0); err != nil {
		return nil, err
	}
	if cfg.CompletionTimeout, err = envDuration("LLM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	cfg.SpeechURL = envOr("SPEECH_URL", "ws://localhost:7585/speak")
	cfg.SpeechVoice = envOr("SPEECH_VOICE", cfg.BotName)
	if cfg.SpeechTimeout, err = envDuration("SPEECH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if cfg.AnswerRate, err = envInt("ANSWER_RATE", 20); err != nil {
		return nil, err
	}
	if cfg.AnswerRate < 0 || cfg.AnswerRate > 100 {
		return nil, fmt.Errorf("invalid ANSWER_RATE %d: must be within 0..100", cfg.AnswerRate)
	}
	cfg.NoCommand = envBool("NO_COMMAND")
	cfg.TalkToSelf = envBool("TALK_TO_SELF")
	cfg.Verbose = envBool("VERBOSE")
	if cfg.RedeemCost, err = envInt("REDEEM_COST", 20); err != nil {
		return nil, err
	}
	if cfg.RedeemCost <= 0 {
		return nil, fmt.Errorf("invalid REDEEM_COST %d: must be positive", cfg.RedeemCost)
	}
	if cfg.RedeemCooldown, err = envDuration("REDEEM_COOLDOWN", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.ConversationLimit, err = envInt("CONVERSATION_LIMIT", 40); err != nil {
		return nil, err
	}
	if cfg.ConversationLimit <= 0 {
		return nil, fmt.Errorf("invalid CONVERSATION_LIMIT %d: must be positive", cfg.ConversationLimit)
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}

	cfg.DataDir = envOr("DATA_DIR", ".")
	cfg.RosterFile = envOr("ROSTER_FILE", cfg.Path("roster.yaml"))
	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.TokenEncryptionKey = os.Getenv("TOKEN_ENCRYPTION_KEY")

	cfg.YTAPIKey = os.Getenv("YT_API_KEY")
	cfg.YTLiveChatID = os.Getenv("YT_LIVE_CHAT_ID")
	cfg.YTVideoID = os.Getenv("YT_VIDEO_ID")
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRefreshToken = os.Getenv("YT_REFRESH_TOKEN")

	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if cfg.TraceSampleRatio, err = envFloat("OTEL_TRACE_SAMPLE_RATIO", 1.0); err != nil {
		return nil, err
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		return nil, fmt.Errorf("invalid OTEL_TRACE_SAMPLE_RATIO %g: must be within 0..1", cfg.TraceSampleRatio)
	}

	return cfg, nil
}

// Path resolves a data file name inside DataDir.
func (c *Config) Path(name string) string { return filepath.Join(c.DataDir, name) }

// RedeemKeyword is the chat keyword viewers use to spend tokens, e.g. "!sally".
func (c *Config) RedeemKeyword() string { return "!" + strings.ToLower(c.BotName) }

// ValidateChatReady checks required fields when the Twitch IRC bot is enabled.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || (c.TwitchOAuthToken == "" && c.TwitchRefreshToken == "") {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN or TWITCH_REFRESH_TOKEN")
	}
	return nil
}

// ValidateCompletionReady checks that the LLM endpoint can be called.
func (c *Config) ValidateCompletionReady() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("missing OPENAI_API_KEY")
	}
	return nil
}

// YouTubeLiveEnabled reports whether the YouTube API poller replaces the chat export file.
func (c *Config) YouTubeLiveEnabled() bool {
	return c.YTLiveChatID != "" || c.YTVideoID != ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// envDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
