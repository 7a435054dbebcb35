package consumer

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Platforms a message can originate from.
const (
	PlatformTwitch  = "Twitch"
	PlatformYouTube = "YouTube"
	PlatformStream  = "Stream"
)

// Content length bounds for messages that get a completion.
const (
	MaxContentLength = 150
	MinContentLength = 6
)

var (
	ErrTooLong  = errors.New("message too long")
	ErrTooShort = errors.New("message too short")
)

// EnablePlatform is the platform label of lines read from the redeem-enable file.
func EnablePlatform(botName string) string {
	return fmt.Sprintf("Twitch freed %s with the message", botName)
}

// Message is a chat line normalized from any source.
type Message struct {
	ID         uuid.UUID
	Author     string
	Content    string
	Platform   string
	Answer     bool // request a completion for this message
	Redeem     bool // message triggered the current redeem
	ReceivedAt time.Time
}

// NewMessage returns a message with a fresh id.
func NewMessage(author, content, platform string) Message {
	return Message{ID: uuid.New(), Author: author, Content: content, Platform: platform, ReceivedAt: time.Now()}
}

// Turn renders the message as the user turn stored in the conversation.
func (m Message) Turn() string {
	return fmt.Sprintf("%s on %s: %s", strings.ReplaceAll(m.Author, "_", " "), m.Platform, asciiOnly(m.Content))
}

// Validate checks the content length bounds.
func (m Message) Validate() error {
	n := utf8.RuneCountInString(m.Content)
	if n > MaxContentLength {
		return ErrTooLong
	}
	if n < MinContentLength {
		return ErrTooShort
	}
	return nil
}

func asciiOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < utf8.RuneSelf {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
