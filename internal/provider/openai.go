package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"deskrelay/internal/domain"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

const (
	defaultOpenRouterBase  = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "deepseek/deepseek-chat"
	defaultOpenAIModel     = "gpt-4o-mini"
)

// OpenAIConfig configures any OpenAI-compatible chat completions backend
// (OpenAI itself, OpenRouter, local gateways).
type OpenAIConfig struct {
	Name        string // reported in logs and metrics
	APIKey      string
	APIBase     string
	Model       string
	Temperature float64
	Headers     map[string]string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// OpenAI implements domain.ChatProvider over the chat completions API.
type OpenAI struct {
	name        string
	client      openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

var _ domain.ChatProvider = (*OpenAI)(nil)

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Retries are disabled: a failed call falls through to the fallback
	// provider or the fallback reply.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.APIBase, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &OpenAI{
		name:        cfg.Name,
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      cfg.Logger.With("provider", cfg.Name),
	}
}

func (p *OpenAI) Name() string { return p.name }

func (p *OpenAI) Complete(ctx context.Context, systemPrompt string, turns []domain.Turn) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: buildOpenAIMessages(systemPrompt, turns),
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}

	p.logger.Debug("chat completion request", "model", p.model, "turns", len(turns))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: no choices in response", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// buildOpenAIMessages puts the system prompt first (when set) followed by
// the turns in order.
func buildOpenAIMessages(systemPrompt string, turns []domain.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		switch t.Role {
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return msgs
}
