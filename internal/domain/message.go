package domain

import (
	"fmt"
	"time"
)

// Channel identifies the external messaging surface a message belongs to.
type Channel string

const (
	ChannelChatwoot Channel = "chatwoot"
	ChannelTelegram Channel = "telegram"
	ChannelTwilio   Channel = "twilio_whatsapp"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelChatwoot, ChannelTelegram, ChannelTwilio:
		return true
	}
	return false
}

// ParseChannel converts a string to a Channel, rejecting unknown values.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q (expected chatwoot, telegram or twilio_whatsapp)", s)
	}
	return c, nil
}

// Sender is the author of a stored message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Message is one row of the conversation history log. Messages are
// append-only: once stored they are never edited.
type Message struct {
	ID             int64     `json:"id"`
	Channel        Channel   `json:"channel"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}
