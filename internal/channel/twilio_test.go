package channel

import (
	"context"
	"errors"
	"testing"

	"deskrelay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeMessenger struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessenger) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilio_Normalize(t *testing.T) {
	tw := NewTwilio(TwilioConfig{API: &fakeMessenger{}, FromNumber: "+14155238886", Logger: testLogger()})

	in := tw.Normalize([]byte("From=whatsapp%3A%2B5511999990000&Body=+Ol%C3%A1+&ProfileName=Ana"))
	require.Equal(t, domain.Accept, in.Verdict)
	assert.Equal(t, domain.NormalizedMessage{
		ConversationID: "whatsapp:+5511999990000",
		Text:           "Olá",
		DisplayName:    "Ana",
	}, in.Message)

	assert.Equal(t, ReasonMissingFromBody, tw.Normalize([]byte("Body=hi")).Reason)
	assert.Equal(t, ReasonMissingFromBody, tw.Normalize([]byte("From=whatsapp%3A%2B1&Body=+++")).Reason)
	assert.Equal(t, domain.Ignore, tw.Normalize([]byte("")).Verdict)
	assert.Equal(t, domain.Invalid, tw.Normalize([]byte("From=%zz")).Verdict)
}

func TestTwilio_SendPrefixesAddresses(t *testing.T) {
	m := &fakeMessenger{}
	tw := NewTwilio(TwilioConfig{API: m, FromNumber: "+14155238886", Logger: testLogger()})

	require.NoError(t, tw.Send(context.Background(), "+5511999990000", "oi"))
	require.Len(t, m.params, 1)
	assert.Equal(t, "whatsapp:+5511999990000", *m.params[0].To)
	assert.Equal(t, "whatsapp:+14155238886", *m.params[0].From)
	assert.Equal(t, "oi", *m.params[0].Body)
}

func TestTwilio_SendKeepsExistingPrefix(t *testing.T) {
	m := &fakeMessenger{}
	tw := NewTwilio(TwilioConfig{API: m, FromNumber: "whatsapp:+14155238886", Logger: testLogger()})

	require.NoError(t, tw.Send(context.Background(), "whatsapp:+5511", "oi"))
	assert.Equal(t, "whatsapp:+5511", *m.params[0].To)
	assert.Equal(t, "whatsapp:+14155238886", *m.params[0].From)
}

func TestTwilio_SendError(t *testing.T) {
	m := &fakeMessenger{err: errors.New("20003 authenticate")}
	tw := NewTwilio(TwilioConfig{API: m, FromNumber: "+1", Logger: testLogger()})
	assert.Error(t, tw.Send(context.Background(), "whatsapp:+2", "oi"))
}

func TestEnsureWhatsAppPrefix(t *testing.T) {
	assert.Equal(t, "whatsapp:+1", ensureWhatsAppPrefix("+1"))
	assert.Equal(t, "whatsapp:+1", ensureWhatsAppPrefix("whatsapp:+1"))
	assert.Equal(t, "", ensureWhatsAppPrefix(""))
}
