package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"deskrelay/internal/domain"
	"deskrelay/internal/metrics"
)

// Responder turns stored history into a reply. It never fails: any provider
// error, or an empty completion, yields the fallback text.
type Responder struct {
	provider domain.ChatProvider
	fallback string
	logger   *slog.Logger
}

func NewResponder(p domain.ChatProvider, fallback string, logger *slog.Logger) *Responder {
	return &Responder{
		provider: p,
		fallback: fallback,
		logger:   logger.With("component", "responder", "provider", p.Name()),
	}
}

// Fallback returns the text used when the provider fails.
func (r *Responder) Fallback() string { return r.fallback }

// Reply sends systemPrompt and history to the provider once.
func (r *Responder) Reply(ctx context.Context, history []domain.Message, systemPrompt string) string {
	turns := Turns(history)

	start := time.Now()
	text, err := r.provider.Complete(ctx, systemPrompt, turns)
	metrics.LLMLatency(r.provider.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		r.logger.Error("ai call failed, using fallback reply", "err", err, "turns", len(turns))
		metrics.AIFallbacks.Inc()
		return r.fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		r.logger.Warn("ai returned an empty reply, using fallback reply", "turns", len(turns))
		metrics.AIFallbacks.Inc()
		return r.fallback
	}
	return text
}

// Turns maps stored messages to model turns: user messages keep the user
// role, bot messages become assistant turns.
func Turns(history []domain.Message) []domain.Turn {
	turns := make([]domain.Turn, 0, len(history))
	for _, m := range history {
		role := domain.RoleUser
		if m.Sender == domain.SenderBot {
			role = domain.RoleAssistant
		}
		turns = append(turns, domain.Turn{Role: role, Content: m.Text})
	}
	return turns
}
