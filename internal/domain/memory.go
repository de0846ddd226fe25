package domain

import "context"

// HistoryStore is the durable, append-only message log keyed by
// (channel, conversation id).
type HistoryStore interface {
	// Append stores one message with a server-assigned timestamp.
	Append(ctx context.Context, channel Channel, conversationID string, sender Sender, text string) (Message, error)
	// Query returns every message of the pair ordered by creation time.
	// A conversation with no messages yields an empty slice, not an error.
	Query(ctx context.Context, channel Channel, conversationID string) ([]Message, error)
	Close() error
}
