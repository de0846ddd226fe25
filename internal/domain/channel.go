package domain

import "context"

// Verdict classifies an inbound webhook payload.
type Verdict int

const (
	// Accept means the payload is a new user message the relay must answer.
	Accept Verdict = iota
	// Ignore means the payload is well-formed but not actionable
	// (echo of our own reply, wrong event type, missing fields).
	Ignore
	// Invalid means the payload could not be parsed at all.
	Invalid
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Ignore:
		return "ignore"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// NormalizedMessage is the channel-independent view of an inbound message.
type NormalizedMessage struct {
	ConversationID string
	Text           string
	DisplayName    string // optional
}

// Inbound is the result of normalizing a raw webhook payload.
type Inbound struct {
	Verdict Verdict
	Reason  string
	Message NormalizedMessage
}

// ChannelAdapter translates one external channel's payloads into
// NormalizedMessage values and delivers replies back to it.
type ChannelAdapter interface {
	Channel() Channel
	Normalize(raw []byte) Inbound
	Send(ctx context.Context, conversationID, text string) error
}
