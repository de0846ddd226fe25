package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"deskrelay/internal/config"
	"deskrelay/internal/domain"
)

// Spec is the provider-independent description of one backend.
type Spec struct {
	Kind        string // openai | openrouter | gemini
	Model       string
	APIBase     string
	APIKey      string
	Temperature float64
}

// Constructor creates a provider from a Spec.
type Constructor func(ctx context.Context, s Spec, hc *http.Client, logger *slog.Logger) (domain.ChatProvider, error)

var constructors = map[string]Constructor{
	"openai": func(_ context.Context, s Spec, hc *http.Client, logger *slog.Logger) (domain.ChatProvider, error) {
		return NewOpenAI(OpenAIConfig{
			Name:        "openai",
			APIKey:      s.APIKey,
			APIBase:     s.APIBase,
			Model:       s.Model,
			Temperature: s.Temperature,
			HTTPClient:  hc,
			Logger:      logger,
		}), nil
	},
	"openrouter": func(_ context.Context, s Spec, hc *http.Client, logger *slog.Logger) (domain.ChatProvider, error) {
		if s.APIBase == "" {
			s.APIBase = defaultOpenRouterBase
		}
		if s.Model == "" {
			s.Model = defaultOpenRouterModel
		}
		return NewOpenAI(OpenAIConfig{
			Name:        "openrouter",
			APIKey:      s.APIKey,
			APIBase:     s.APIBase,
			Model:       s.Model,
			Temperature: s.Temperature,
			Headers:     map[string]string{"X-Title": "deskrelay"},
			HTTPClient:  hc,
			Logger:      logger,
		}), nil
	},
	"gemini": func(ctx context.Context, s Spec, hc *http.Client, logger *slog.Logger) (domain.ChatProvider, error) {
		return NewGemini(ctx, GeminiConfig{
			APIKey:      s.APIKey,
			APIBase:     s.APIBase,
			Model:       s.Model,
			Temperature: s.Temperature,
			HTTPClient:  hc,
			Logger:      logger,
		})
	},
}

// Build creates a single provider for s.
func Build(ctx context.Context, s Spec, hc *http.Client, logger *slog.Logger) (domain.ChatProvider, error) {
	ctor, ok := constructors[s.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", s.Kind)
	}
	return ctor(ctx, s, hc, logger)
}

// New builds the configured provider. When ai.fallbackProvider is set the
// result is a two-step failover chain.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (domain.ChatProvider, error) {
	hc := SharedHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second)

	// The default base URL and model belong to OpenRouter; other kinds use
	// their own unless one is set explicitly.
	base, model := cfg.APIBase, cfg.Model
	if cfg.Provider != "openrouter" {
		if base == defaultOpenRouterBase {
			base = ""
		}
		if model == defaultOpenRouterModel {
			model = ""
		}
	}

	primary, err := Build(ctx, Spec{
		Kind:        cfg.Provider,
		Model:       model,
		APIBase:     base,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
	}, hc, logger)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackProvider == "" {
		return primary, nil
	}

	key := cfg.FallbackAPIKey
	if key == "" && cfg.FallbackProvider == cfg.Provider {
		key = cfg.APIKey
	}
	secondary, err := Build(ctx, Spec{
		Kind:        cfg.FallbackProvider,
		Model:       cfg.FallbackModel,
		APIBase:     cfg.FallbackAPIBase,
		APIKey:      key,
		Temperature: cfg.Temperature,
	}, hc, logger)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewFailoverProvider([]domain.ChatProvider{primary, secondary}, logger), nil
}
