package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"deskrelay/internal/desk"
	"deskrelay/internal/domain"
)

// MessagePoster posts a message into a desk conversation.
type MessagePoster interface {
	CreateMessage(ctx context.Context, conversationID, content, messageType string) error
}

// Chatwoot handles agent-bot webhooks from a Chatwoot account and answers
// through its REST API.
type Chatwoot struct {
	desk   MessagePoster
	logger *slog.Logger
}

var _ domain.ChannelAdapter = (*Chatwoot)(nil)

func NewChatwoot(poster MessagePoster, logger *slog.Logger) *Chatwoot {
	return &Chatwoot{desk: poster, logger: logger.With("channel", string(domain.ChannelChatwoot))}
}

type chatwootPayload struct {
	Event       string `json:"event"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	Sender      struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"sender"`
	Conversation struct {
		ID FlexID `json:"id"`
	} `json:"conversation"`
}

func (c *Chatwoot) Channel() domain.Channel { return domain.ChannelChatwoot }

func (c *Chatwoot) Normalize(raw []byte) domain.Inbound {
	if !isJSONObject(raw) {
		return domain.Inbound{Verdict: domain.Invalid, Reason: ReasonNotJSONObject}
	}
	var p chatwootPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Inbound{Verdict: domain.Invalid, Reason: ReasonNotJSONObject}
	}

	if p.Event != "message_created" || p.MessageType != "incoming" || p.Sender.Type == "agent_bot" {
		return domain.Inbound{Verdict: domain.Ignore, Reason: ReasonNotUserMessage}
	}
	text := strings.TrimSpace(p.Content)
	if text == "" || p.Conversation.ID == "" {
		return domain.Inbound{Verdict: domain.Ignore, Reason: ReasonNoContent}
	}

	return domain.Inbound{
		Verdict: domain.Accept,
		Message: domain.NormalizedMessage{
			ConversationID: string(p.Conversation.ID),
			Text:           text,
			DisplayName:    p.Sender.Name,
		},
	}
}

// Send posts text as a public outgoing message.
func (c *Chatwoot) Send(ctx context.Context, conversationID, text string) error {
	if err := c.desk.CreateMessage(ctx, conversationID, text, desk.Outgoing); err != nil {
		return err
	}
	c.logger.Debug("desk reply posted", "conversation_id", conversationID, "text_len", len(text))
	return nil
}
