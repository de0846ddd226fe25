package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deskrelay/internal/domain"
)

// FailoverProvider tries providers in order and returns the first success.
// Each provider is called at most once per request; there is no backoff.
type FailoverProvider struct {
	providers []domain.ChatProvider
	logger    *slog.Logger
}

var _ domain.ChatProvider = (*FailoverProvider)(nil)

// NewFailoverProvider creates a failover chain. At least one provider is
// required.
func NewFailoverProvider(providers []domain.ChatProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{providers: providers, logger: logger}
}

func (fp *FailoverProvider) Name() string {
	names := make([]string, len(fp.providers))
	for i, p := range fp.providers {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (fp *FailoverProvider) Complete(ctx context.Context, systemPrompt string, turns []domain.Turn) (string, error) {
	if len(fp.providers) == 0 {
		return "", fmt.Errorf("failover: no providers configured")
	}
	var lastErr error
	for i, p := range fp.providers {
		text, err := p.Complete(ctx, systemPrompt, turns)
		if err == nil {
			if i > 0 {
				fp.logger.Info("failover: used fallback provider", "provider", p.Name(), "attempt", i+1)
			}
			return text, nil
		}
		lastErr = err
		fp.logger.Warn("failover: provider failed",
			"provider", p.Name(),
			"attempt", i+1,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all providers in failover chain failed: %w", lastErr)
}
