package channel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"deskrelay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonUnmarshal(s string, v any) error { return json.Unmarshal([]byte(s), v) }

type fakePoster struct {
	convID, content, messageType string
	err                          error
}

func (f *fakePoster) CreateMessage(_ context.Context, conversationID, content, messageType string) error {
	f.convID, f.content, f.messageType = conversationID, content, messageType
	return f.err
}

func TestChatwoot_Normalize(t *testing.T) {
	c := NewChatwoot(&fakePoster{}, testLogger())

	tests := []struct {
		name    string
		body    string
		verdict domain.Verdict
		reason  string
		want    domain.NormalizedMessage
	}{
		{
			name:    "incoming user message",
			body:    `{"event":"message_created","message_type":"incoming","content":" Olá ","sender":{"type":"contact","name":"Ana"},"conversation":{"id":42}}`,
			verdict: domain.Accept,
			want:    domain.NormalizedMessage{ConversationID: "42", Text: "Olá", DisplayName: "Ana"},
		},
		{
			name:    "string conversation id",
			body:    `{"event":"message_created","message_type":"incoming","content":"hi","conversation":{"id":"77"}}`,
			verdict: domain.Accept,
			want:    domain.NormalizedMessage{ConversationID: "77", Text: "hi"},
		},
		{
			name:    "outgoing echo",
			body:    `{"event":"message_created","message_type":"outgoing","content":"hi","conversation":{"id":42}}`,
			verdict: domain.Ignore,
			reason:  ReasonNotUserMessage,
		},
		{
			name:    "agent bot sender",
			body:    `{"event":"message_created","message_type":"incoming","content":"hi","sender":{"type":"agent_bot"},"conversation":{"id":42}}`,
			verdict: domain.Ignore,
			reason:  ReasonNotUserMessage,
		},
		{
			name:    "other event",
			body:    `{"event":"conversation_status_changed"}`,
			verdict: domain.Ignore,
			reason:  ReasonNotUserMessage,
		},
		{
			name:    "blank content",
			body:    `{"event":"message_created","message_type":"incoming","content":"   ","conversation":{"id":42}}`,
			verdict: domain.Ignore,
			reason:  ReasonNoContent,
		},
		{
			name:    "missing conversation",
			body:    `{"event":"message_created","message_type":"incoming","content":"hi"}`,
			verdict: domain.Ignore,
			reason:  ReasonNoContent,
		},
		{name: "not json", body: `not json`, verdict: domain.Invalid, reason: ReasonNotJSONObject},
		{name: "json array", body: `[1,2]`, verdict: domain.Invalid, reason: ReasonNotJSONObject},
		{name: "json null", body: `null`, verdict: domain.Invalid, reason: ReasonNotJSONObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := c.Normalize([]byte(tt.body))
			assert.Equal(t, tt.verdict, in.Verdict)
			assert.Equal(t, tt.reason, in.Reason)
			if tt.verdict == domain.Accept {
				assert.Equal(t, tt.want, in.Message)
			}
		})
	}
}

func TestChatwoot_SendPostsOutgoing(t *testing.T) {
	p := &fakePoster{}
	c := NewChatwoot(p, testLogger())

	require.NoError(t, c.Send(context.Background(), "42", "resposta"))
	assert.Equal(t, "42", p.convID)
	assert.Equal(t, "resposta", p.content)
	assert.Equal(t, "outgoing", p.messageType)
	assert.Equal(t, domain.ChannelChatwoot, c.Channel())
}

func TestChatwoot_SendError(t *testing.T) {
	p := &fakePoster{err: errors.New("desk 502")}
	c := NewChatwoot(p, testLogger())

	err := c.Send(context.Background(), "42", "resposta")
	assert.EqualError(t, err, "desk 502")
}
