package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"deskrelay/internal/domain"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsappPrefix = "whatsapp:"

// Messenger is the part of the Twilio REST API the adapter needs.
type Messenger interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Twilio handles WhatsApp messages delivered by Twilio's messaging webhook.
type Twilio struct {
	api    Messenger
	from   string
	logger *slog.Logger
}

var _ domain.ChannelAdapter = (*Twilio)(nil)

type TwilioConfig struct {
	API        Messenger
	FromNumber string
	Logger     *slog.Logger
}

func NewTwilio(cfg TwilioConfig) *Twilio {
	return &Twilio{
		api:    cfg.API,
		from:   ensureWhatsAppPrefix(cfg.FromNumber),
		logger: cfg.Logger.With("channel", string(domain.ChannelTwilio)),
	}
}

// NewTwilioAPI returns the Api v2010 service authenticated with the account
// credentials.
func NewTwilioAPI(accountSID, authToken string) *twilioApi.ApiService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return client.Api
}

func (t *Twilio) Channel() domain.Channel { return domain.ChannelTwilio }

func (t *Twilio) Normalize(raw []byte) domain.Inbound {
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return domain.Inbound{Verdict: domain.Invalid, Reason: ReasonNotForm}
	}
	from := strings.TrimSpace(form.Get("From"))
	body := strings.TrimSpace(form.Get("Body"))
	if from == "" || body == "" {
		return domain.Inbound{Verdict: domain.Ignore, Reason: ReasonMissingFromBody}
	}
	return domain.Inbound{
		Verdict: domain.Accept,
		Message: domain.NormalizedMessage{
			ConversationID: from,
			Text:           body,
			DisplayName:    form.Get("ProfileName"),
		},
	}
}

func (t *Twilio) Send(_ context.Context, conversationID, text string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(ensureWhatsAppPrefix(conversationID))
	params.SetFrom(t.from)
	params.SetBody(text)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio: create message: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		t.logger.Debug("twilio message queued", "sid", *resp.Sid)
	}
	return nil
}

func ensureWhatsAppPrefix(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.HasPrefix(addr, whatsappPrefix) {
		return addr
	}
	return whatsappPrefix + addr
}
