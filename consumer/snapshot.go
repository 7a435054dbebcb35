package consumer

import "time"

// Snapshot is a read-only view of the consumer state for status reporting.
type Snapshot struct {
	Redeemed        bool      `json:"redeemed"`
	RedeemedAt      time.Time `json:"redeemed_at,omitempty"`
	CooldownSeconds float64   `json:"cooldown_seconds"`
	Overrun         int       `json:"overrun"`
	QueueDepth      int       `json:"queue_depth"`
	HistoryLength   int       `json:"history_length"`
	MemoryEntries   int       `json:"memory_entries"`
	LastAnswer      time.Time `json:"last_answer,omitempty"`
	Verbose         bool      `json:"verbose"`
	Game            string    `json:"game,omitempty"`
	Title           string    `json:"title,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot returns the state published after the latest loop iteration.
func (c *Consumer) Snapshot() Snapshot {
	if s := c.snap.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

func (c *Consumer) publish() {
	s := &Snapshot{
		Redeemed:        c.state.Redeemed,
		CooldownSeconds: c.state.Cooldown.Seconds(),
		Overrun:         c.state.Overrun,
		QueueDepth:      c.queue.Len(),
		HistoryLength:   c.conv.Len(),
		LastAnswer:      c.lastAnswer,
		Verbose:         c.verbose,
		Game:            c.game,
		Title:           c.title,
		UpdatedAt:       c.now(),
	}
	if c.state.Redeemed {
		s.RedeemedAt = c.state.RedeemedAt
	}
	if c.memory != nil {
		s.MemoryEntries = c.memory.Len()
	}
	c.snap.Store(s)
}
