package provider

import (
	"context"
	"testing"

	"deskrelay/internal/config"
	"deskrelay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNew_OpenRouterDefault(t *testing.T) {
	cfg := config.Defaults().AI
	cfg.APIKey = "k"

	p, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())
	assert.IsType(t, &OpenAI{}, p)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.Defaults().AI
	cfg.Provider = "llama"
	_, err := New(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestNew_WithFallbackBuildsFailover(t *testing.T) {
	cfg := config.Defaults().AI
	cfg.APIKey = "k"
	cfg.FallbackProvider = "openai"
	cfg.FallbackModel = "gpt-4o-mini"
	cfg.FallbackAPIKey = "k2"

	p, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "failover(openrouter,openai)", p.Name())
}

func TestNew_Gemini(t *testing.T) {
	cfg := config.Defaults().AI
	cfg.Provider = "gemini"
	cfg.Model = "gemini-1.5-flash"
	cfg.APIKey = "test-key"

	p, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
}

func TestNew_ProviderOnlyUsesBackendDefaults(t *testing.T) {
	for _, tc := range []struct {
		yaml, model string
	}{
		{"ai:\n  provider: gemini\n  apiKey: k\n", defaultGeminiModel},
		{"ai:\n  provider: openai\n  apiKey: k\n", defaultOpenAIModel},
		{"ai:\n  provider: openrouter\n  apiKey: k\n", defaultOpenRouterModel},
	} {
		cfg, err := config.Parse([]byte(tc.yaml), false)
		require.NoError(t, err)

		p, err := New(context.Background(), cfg.AI, testLogger())
		require.NoError(t, err)
		switch p := p.(type) {
		case *Gemini:
			assert.Equal(t, tc.model, p.model)
		case *OpenAI:
			assert.Equal(t, tc.model, p.model, p.name)
		default:
			t.Fatalf("unexpected provider %T", p)
		}
	}
}

func TestNew_ExplicitModelKept(t *testing.T) {
	cfg := config.Defaults().AI
	cfg.Provider = "openai"
	cfg.Model = "gpt-4.1"
	cfg.APIKey = "k"

	p, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", p.(*OpenAI).model)
}

func TestBuildGeminiContents(t *testing.T) {
	contents := buildGeminiContents([]domain.Turn{
		{Role: domain.RoleUser, Content: "Oi"},
		{Role: domain.RoleAssistant, Content: "Olá"},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, "Oi", contents[0].Parts[0].Text)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "Olá", contents[1].Parts[0].Text)
}

func TestGeminiGenerateConfig(t *testing.T) {
	g := &Gemini{temperature: 0.5}
	cfg := g.generateConfig("be kind")
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be kind", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.5, *cfg.Temperature, 0.0001)

	assert.Nil(t, (&Gemini{}).generateConfig("").SystemInstruction)
}
