package config

const (
	DefaultSystemPrompt  = "Você é um assistente útil e direto de uma organização social. Responda com clareza."
	DefaultFallbackReply = "Desculpe, estou reorganizando meus pensamentos. Tente novamente."
	DefaultHandoffText   = "Obrigado por suas respostas. Estou transferindo você para um de nossos atendentes."
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:      "info",
			LogFormat:     "text",
			SystemPrompt:  DefaultSystemPrompt,
			FallbackReply: DefaultFallbackReply,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			BasePath:           "/api/v1",
			ReadTimeoutSeconds: 30,
		},
		History: HistoryConfig{
			DBPath: "~/.deskrelay/history.db",
		},
		AI: AIConfig{
			Provider:       "openrouter",
			Model:          "deepseek/deepseek-chat",
			APIBase:        "https://openrouter.ai/api/v1",
			TimeoutSeconds: 60,
			Temperature:    0.7,
		},
		Channels: ChannelsConfig{
			Chatwoot: ChatwootConfig{
				Enabled:         false,
				AuthMode:        "hmac",
				SignatureHeader: "X-Chatwoot-Signature",
				TokenHeader:     "X-Chatwoot-Token",
				Handoff: HandoffConfig{
					AfterReplies: 0,
					Message:      DefaultHandoffText,
				},
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			Twilio: TwilioConfig{
				Enabled: false,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
