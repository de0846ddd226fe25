package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"deskrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// BotSender is the part of tgbotapi.BotAPI the adapter needs.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram handles Bot API webhook updates and replies with sendMessage.
type Telegram struct {
	bot       BotSender
	parseMode string
	logger    *slog.Logger
}

var _ domain.ChannelAdapter = (*Telegram)(nil)

type TelegramConfig struct {
	Bot       BotSender
	ParseMode string // default Markdown
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.ParseMode == "" {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	return &Telegram{
		bot:       cfg.Bot,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger.With("channel", string(domain.ChannelTelegram)),
	}
}

// NewTelegramBot returns a Bot API client without calling getMe, so a
// temporarily unreachable API does not block startup.
func NewTelegramBot(token string, hc *http.Client) *tgbotapi.BotAPI {
	if hc == nil {
		hc = &http.Client{}
	}
	bot := &tgbotapi.BotAPI{Token: token, Client: hc, Buffer: 100}
	bot.SetAPIEndpoint(tgbotapi.APIEndpoint)
	return bot
}

func (t *Telegram) Channel() domain.Channel { return domain.ChannelTelegram }

func (t *Telegram) Normalize(raw []byte) domain.Inbound {
	if !isJSONObject(raw) {
		return domain.Inbound{Verdict: domain.Invalid, Reason: ReasonNotJSONObject}
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return domain.Inbound{Verdict: domain.Invalid, Reason: ReasonNotJSONObject}
	}

	msg := update.Message
	if msg == nil {
		return domain.Inbound{Verdict: domain.Ignore, Reason: ReasonNoMessage}
	}
	if msg.Chat == nil || msg.Chat.ID == 0 {
		return domain.Inbound{Verdict: domain.Ignore, Reason: ReasonNoChatID}
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return domain.Inbound{Verdict: domain.Ignore, Reason: ReasonNoText}
	}
	if msg.From != nil && msg.From.IsBot {
		return domain.Inbound{Verdict: domain.Ignore, Reason: ReasonFromBot}
	}

	var name string
	if msg.From != nil {
		name = msg.From.FirstName
	}
	return domain.Inbound{
		Verdict: domain.Accept,
		Message: domain.NormalizedMessage{
			ConversationID: strconv.FormatInt(msg.Chat.ID, 10),
			Text:           text,
			DisplayName:    name,
		},
	}
}

// Send delivers text in chunks of at most 4000 bytes.
func (t *Telegram) Send(_ context.Context, conversationID, text string) error {
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", conversationID, err)
	}
	for i, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(chatID, chunk); err != nil {
			return fmt.Errorf("telegram: send chunk %d: %w", i+1, err)
		}
	}
	return nil
}

// sendChunk sends with the configured parse mode. A 400 from the Bot API
// (usually malformed markup) gets exactly one plain-text resend.
func (t *Telegram) sendChunk(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = t.parseMode

	_, err := t.bot.Send(msg)
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest || msg.ParseMode == "" {
		return err
	}

	t.logger.Warn("telegram rejected formatted message, resending as plain text",
		"chat_id", chatID, "err", err, "parse_mode", t.parseMode)
	plain := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(plain); err != nil {
		return fmt.Errorf("plain resend: %w", err)
	}
	return nil
}
