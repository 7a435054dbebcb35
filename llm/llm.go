// Package llm wraps the chat-completion endpoint used to generate replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/onnwee/sally-bot/config"
)

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation sent with each request.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrEmptyCompletion is returned when the endpoint answers without any text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Options are the sampling parameters of every request.
type Options struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
	Timeout          time.Duration
	// ContextTokens, when > 0, trims the oldest turns so that the prompt fits.
	ContextTokens int
}

// OptionsFromConfig maps the LLM_* settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
		Stop:             cfg.Stop,
		Timeout:          cfg.CompletionTimeout,
		ContextTokens:    cfg.ContextTokens,
	}
}

// Client sends chat completions.
type Client struct {
	api     openai.Client
	opts    Options
	counter Counter
}

// New builds a client from config. OPENAI_PROXY routes requests through a SOCKS5 proxy.
func New(cfg *config.Config) (*Client, error) {
	if err := cfg.ValidateCompletionReady(); err != nil {
		return nil, err
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey), option.WithMaxRetries(0)}
	if cfg.OpenAIBaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.OpenAIProxy != "" {
		hc, err := NewSocksClient(cfg.OpenAIProxy, cfg.CompletionTimeout)
		if err != nil {
			return nil, fmt.Errorf("llm proxy %s: %w", cfg.OpenAIProxy, err)
		}
		reqOpts = append(reqOpts, option.WithHTTPClient(hc))
		slog.Info("llm requests routed through proxy", slog.String("proxy", cfg.OpenAIProxy))
	}
	return NewWithOptions(OptionsFromConfig(cfg), reqOpts...), nil
}

// NewWithOptions builds a client from explicit options and transport settings.
func NewWithOptions(opts Options, reqOpts ...option.RequestOption) *Client {
	return &Client{api: openai.NewClient(reqOpts...), opts: opts, counter: NewCounter()}
}

// Complete sends system plus turns and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	if c.opts.ContextTokens > 0 {
		before := len(turns)
		turns = Fit(c.counter, system, turns, c.opts.ContextTokens-c.opts.MaxTokens)
		if dropped := before - len(turns); dropped > 0 {
			slog.Debug("trimmed conversation to token budget", slog.Int("dropped", dropped), slog.Int("budget", c.opts.ContextTokens))
		}
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	resp, err := c.api.Chat.Completions.New(ctx, c.params(system, turns))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) params(system string, turns []Turn) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	msgs = append(msgs, openai.SystemMessage(system))
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	p := openai.ChatCompletionNewParams{
		Messages:         msgs,
		Model:            openai.ChatModel(c.opts.Model),
		Temperature:      openai.Float(c.opts.Temperature),
		FrequencyPenalty: openai.Float(c.opts.FrequencyPenalty),
		PresencePenalty:  openai.Float(c.opts.PresencePenalty),
	}
	if c.opts.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(c.opts.MaxTokens))
	}
	if len(c.opts.Stop) > 0 {
		p.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: c.opts.Stop}
	}
	return p
}
