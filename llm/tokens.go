package llm

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates the number of prompt tokens in a string.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(string) int

func (f CounterFunc) Count(text string) int { return f(text) }

var (
	encoding     *tiktoken.Tiktoken
	encodingOnce sync.Once
)

// NewCounter returns a cl100k_base counter, or a chars/4 estimate when the
// encoding cannot be loaded (it is fetched on first use).
func NewCounter() Counter {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("token counting falls back to estimate", slog.Any("err", err))
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return CounterFunc(EstimateTokens)
	}
	return CounterFunc(func(s string) int { return len(encoding.Encode(s, nil, nil)) })
}

// EstimateTokens approximates tokens as one per four characters.
func EstimateTokens(s string) int { return (len(s) + 3) / 4 }

// perTurnOverhead approximates the role/separator tokens of each chat message.
const perTurnOverhead = 4

// Fit drops the oldest turns until system plus turns fit within budget.
// The newest turn is always kept.
func Fit(c Counter, system string, turns []Turn, budget int) []Turn {
	if budget <= 0 || len(turns) == 0 {
		return turns
	}
	total := c.Count(system) + perTurnOverhead
	sizes := make([]int, len(turns))
	for i, t := range turns {
		sizes[i] = c.Count(t.Content) + perTurnOverhead
		total += sizes[i]
	}
	start := 0
	for total > budget && start < len(turns)-1 {
		total -= sizes[start]
		start++
	}
	return turns[start:]
}
