package consumer

import "github.com/onnwee/sally-bot/llm"

// Conversation is the rolling window of turns sent with every completion.
// It is owned by the consumer goroutine.
type Conversation struct {
	limit int
	turns []llm.Turn
}

// NewConversation returns an empty history holding at most limit turns.
func NewConversation(limit int) *Conversation {
	if limit <= 0 {
		limit = 1
	}
	return &Conversation{limit: limit}
}

// Append adds a turn and evicts from the front until the limit holds.
func (c *Conversation) Append(role llm.Role, content string) {
	c.turns = append(c.turns, llm.Turn{Role: role, Content: content})
	if over := len(c.turns) - c.limit; over > 0 {
		c.turns = append([]llm.Turn(nil), c.turns[over:]...)
	}
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []llm.Turn { return append([]llm.Turn(nil), c.turns...) }

func (c *Conversation) Len() int { return len(c.turns) }

func (c *Conversation) Clear() { c.turns = nil }

// Contains reports whether any turn's content equals one of contents.
func (c *Conversation) Contains(contents ...string) bool {
	for _, t := range c.turns {
		for _, s := range contents {
			if t.Content == s {
				return true
			}
		}
	}
	return false
}

// HasAssistant reports whether content was already recorded as an assistant turn.
func (c *Conversation) HasAssistant(content string) bool {
	for _, t := range c.turns {
		if t.Role == llm.RoleAssistant && t.Content == content {
			return true
		}
	}
	return false
}
