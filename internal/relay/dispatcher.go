// Package relay runs the webhook pipeline shared by every channel:
// normalize → persist → reply → persist → deliver → mirror.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"deskrelay/internal/domain"
	"deskrelay/internal/metrics"
)

// ErrStorage wraps every HistoryStore failure returned by Dispatch.
var ErrStorage = errors.New("history storage failure")

// Outcome is the terminal state of one Dispatch call.
type Outcome string

const (
	Ignored   Outcome = "ignored"
	Invalid   Outcome = "invalid"
	Replied   Outcome = "replied"
	HandedOff Outcome = "handed_off"
)

// ReasonEmptyReply marks a Replied result where nothing was stored or sent.
const ReasonEmptyReply = "empty ai response"

type Result struct {
	Outcome        Outcome
	Reason         string
	ConversationID string
	Reply          string
}

// Replier produces the bot reply for a conversation history.
type Replier interface {
	Reply(ctx context.Context, history []domain.Message, systemPrompt string) string
}

// Mirror copies an exchange into a desk inbox.
type Mirror interface {
	Mirror(ctx context.Context, inboxID int64, msg domain.NormalizedMessage, reply string) error
}

// HandoffPolicy transfers a conversation to a human once the bot has
// replied AfterReplies times. AfterReplies 0 disables it.
type HandoffPolicy struct {
	AfterReplies int
	Message      string
	Escalate     func(ctx context.Context, conversationID string) error
}

func (h HandoffPolicy) due(history []domain.Message) bool {
	if h.AfterReplies <= 0 {
		return false
	}
	bot := 0
	for _, m := range history {
		if m.Sender == domain.SenderBot {
			bot++
		}
	}
	return bot >= h.AfterReplies
}

// Route binds an adapter to its per-channel settings.
type Route struct {
	Adapter      domain.ChannelAdapter
	SystemPrompt string
	MirrorInbox  int64 // 0 = no mirror
	Handoff      HandoffPolicy
}

type Config struct {
	Store     domain.HistoryStore
	Responder Replier
	Mirror    Mirror // optional
	Logger    *slog.Logger
}

// Dispatcher processes one webhook at a time per request goroutine. It
// holds no per-conversation state; history lives in the store.
type Dispatcher struct {
	store     domain.HistoryStore
	responder Replier
	mirror    Mirror
	logger    *slog.Logger
}

func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		store:     cfg.Store,
		responder: cfg.Responder,
		mirror:    cfg.Mirror,
		logger:    cfg.Logger.With("component", "dispatcher"),
	}
}

// Dispatch runs the pipeline for one raw payload. The returned error is
// non-nil only for storage failures, and then wraps ErrStorage. Delivery
// and mirror failures are logged and counted but do not fail the call.
func (d *Dispatcher) Dispatch(ctx context.Context, route Route, raw []byte) (Result, error) {
	ch := route.Adapter.Channel()
	log := d.logger.With("channel", string(ch))

	res, err := d.dispatch(ctx, route, raw, log)
	if err != nil {
		metrics.StorageErrors.Inc()
		metrics.WebhookOutcome(string(ch), "storage_error").Inc()
		return res, err
	}
	metrics.WebhookOutcome(string(ch), string(res.Outcome)).Inc()
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, route Route, raw []byte, log *slog.Logger) (Result, error) {
	ch := route.Adapter.Channel()

	in := route.Adapter.Normalize(raw)
	switch in.Verdict {
	case domain.Invalid:
		log.Warn("invalid webhook payload", "reason", in.Reason, "bytes", len(raw))
		return Result{Outcome: Invalid, Reason: in.Reason}, nil
	case domain.Ignore:
		log.Info("webhook ignored", "reason", in.Reason)
		return Result{Outcome: Ignored, Reason: in.Reason}, nil
	}

	msg := in.Message
	res := Result{ConversationID: msg.ConversationID}
	log = log.With("conversation_id", msg.ConversationID)
	log.Info("message received", "text_len", len(msg.Text))

	if _, err := d.store.Append(ctx, ch, msg.ConversationID, domain.SenderUser, msg.Text); err != nil {
		return res, fmt.Errorf("%w: append user message: %w", ErrStorage, err)
	}
	history, err := d.store.Query(ctx, ch, msg.ConversationID)
	if err != nil {
		return res, fmt.Errorf("%w: query history: %w", ErrStorage, err)
	}

	if route.Handoff.due(history) {
		return d.handoff(ctx, route, msg, log)
	}

	reply := strings.TrimSpace(d.responder.Reply(ctx, history, route.SystemPrompt))
	if reply == "" {
		log.Warn("ai reply is empty, nothing sent")
		res.Outcome, res.Reason = Replied, ReasonEmptyReply
		return res, nil
	}

	if _, err := d.store.Append(ctx, ch, msg.ConversationID, domain.SenderBot, reply); err != nil {
		return res, fmt.Errorf("%w: append bot reply: %w", ErrStorage, err)
	}
	res.Outcome, res.Reply = Replied, reply

	if err := route.Adapter.Send(ctx, msg.ConversationID, reply); err != nil {
		log.Error("reply delivery failed", "err", err)
		metrics.SendFailure(string(ch)).Inc()
	}

	if route.MirrorInbox != 0 && d.mirror != nil {
		if err := d.mirror.Mirror(ctx, route.MirrorInbox, msg, reply); err != nil {
			log.Error("desk mirror failed", "err", err, "inbox_id", route.MirrorInbox)
			metrics.MirrorFailure(string(ch)).Inc()
		}
	}

	log.Info("bot replied", "reply_len", len(reply))
	return res, nil
}

func (d *Dispatcher) handoff(ctx context.Context, route Route, msg domain.NormalizedMessage, log *slog.Logger) (Result, error) {
	ch := route.Adapter.Channel()
	text := route.Handoff.Message
	res := Result{Outcome: HandedOff, ConversationID: msg.ConversationID, Reply: text}

	log.Info("reply limit reached, transferring to a human agent", "after_replies", route.Handoff.AfterReplies)

	if _, err := d.store.Append(ctx, ch, msg.ConversationID, domain.SenderBot, text); err != nil {
		return res, fmt.Errorf("%w: append handoff message: %w", ErrStorage, err)
	}
	if err := route.Adapter.Send(ctx, msg.ConversationID, text); err != nil {
		log.Error("handoff message delivery failed", "err", err)
		metrics.SendFailure(string(ch)).Inc()
	}
	if route.Handoff.Escalate != nil {
		if err := route.Handoff.Escalate(ctx, msg.ConversationID); err != nil {
			log.Error("handoff escalation failed", "err", err)
		}
	}
	return res, nil
}
