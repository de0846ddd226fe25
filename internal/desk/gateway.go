package desk

import (
	"context"
	"log/slog"
	"strconv"

	"deskrelay/internal/domain"

	"github.com/pkg/errors"
)

const statusResolved = "resolved"

// Gateway maps channel users onto Chatwoot contacts and conversations so
// Telegram and WhatsApp traffic can be mirrored into a desk inbox.
type Gateway struct {
	client *Client
	logger *slog.Logger
}

func NewGateway(client *Client, logger *slog.Logger) *Gateway {
	return &Gateway{client: client, logger: logger.With("component", "desk-gateway")}
}

// Client exposes the underlying REST client.
func (g *Gateway) Client() *Client { return g.client }

// GetOrCreateContact finds the contact whose identifier is sourceID, or
// creates it in inboxID.
func (g *Gateway) GetOrCreateContact(ctx context.Context, inboxID int64, displayName, sourceID string) (*Contact, error) {
	contact, err := g.client.SearchContact(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		return contact, nil
	}
	if displayName == "" {
		displayName = sourceID
	}
	g.logger.Info("creating desk contact", "inbox_id", inboxID, "source_id", sourceID)
	return g.client.CreateContact(ctx, inboxID, displayName, sourceID)
}

// FindOrCreateConversation returns the contact's first unresolved
// conversation in inboxID, creating one when there is none.
func (g *Gateway) FindOrCreateConversation(ctx context.Context, contact *Contact, inboxID int64, sourceID string) (*Conversation, error) {
	convs, err := g.client.ContactConversations(ctx, contact.ID)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].InboxID == inboxID && convs[i].Status != statusResolved {
			return &convs[i], nil
		}
	}
	g.logger.Info("creating desk conversation", "contact_id", contact.ID, "inbox_id", inboxID)
	return g.client.CreateConversation(ctx, contact.ID, inboxID, sourceID)
}

// MirrorMessage copies text into a desk conversation. direction is Incoming
// for user messages and Outgoing for bot replies.
func (g *Gateway) MirrorMessage(ctx context.Context, conversationID int64, text, direction string) error {
	return g.client.CreateMessage(ctx, strconv.FormatInt(conversationID, 10), text, direction)
}

// Mirror records one exchange in the desk: the user message, then the reply.
// The first failure aborts the rest.
func (g *Gateway) Mirror(ctx context.Context, inboxID int64, msg domain.NormalizedMessage, reply string) error {
	contact, err := g.GetOrCreateContact(ctx, inboxID, msg.DisplayName, msg.ConversationID)
	if err != nil {
		return errors.Wrap(err, "mirror")
	}
	conv, err := g.FindOrCreateConversation(ctx, contact, inboxID, msg.ConversationID)
	if err != nil {
		return errors.Wrap(err, "mirror")
	}
	if err := g.MirrorMessage(ctx, conv.ID, msg.Text, Incoming); err != nil {
		return errors.Wrap(err, "mirror user message")
	}
	if err := g.MirrorMessage(ctx, conv.ID, reply, Outgoing); err != nil {
		return errors.Wrap(err, "mirror bot reply")
	}
	return nil
}

// Escalate hands a desk conversation to the human team: it reopens the
// conversation and clears the assignee.
func (g *Gateway) Escalate(ctx context.Context, conversationID string) error {
	if err := g.client.ToggleStatus(ctx, conversationID, "open"); err != nil {
		return err
	}
	return g.client.Assign(ctx, conversationID, 0)
}
