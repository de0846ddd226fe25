package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for deskrelay.
type Config struct {
	General  GeneralConfig  `yaml:"general" toml:"general"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	History  HistoryConfig  `yaml:"history" toml:"history"`
	AI       AIConfig       `yaml:"ai" toml:"ai"`
	Desk     DeskConfig     `yaml:"desk" toml:"desk"`
	Channels ChannelsConfig `yaml:"channels" toml:"channels"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

type GeneralConfig struct {
	LogLevel      string `yaml:"logLevel" toml:"logLevel" validate:"oneof=debug info warn error"`
	LogFormat     string `yaml:"logFormat" toml:"logFormat" validate:"oneof=text json"`
	LogFile       string `yaml:"logFile,omitempty" toml:"logFile,omitempty"` // optional, in addition to stderr
	SystemPrompt  string `yaml:"systemPrompt" toml:"systemPrompt"`           // default for every channel
	FallbackReply string `yaml:"fallbackReply" toml:"fallbackReply"`         // sent when the AI call fails
}

type ServerConfig struct {
	Host               string `yaml:"host" toml:"host"`
	Port               int    `yaml:"port" toml:"port" validate:"min=1,max=65535"`
	BasePath           string `yaml:"basePath" toml:"basePath" validate:"startswith=/"`
	ReadTimeoutSeconds int    `yaml:"readTimeoutSeconds" toml:"readTimeoutSeconds" validate:"min=1"`
}

type HistoryConfig struct {
	DBPath string `yaml:"dbPath" toml:"dbPath" validate:"required"`
}

// AIConfig selects and configures the LLM backend.
type AIConfig struct {
	Provider       string  `yaml:"provider" toml:"provider" validate:"oneof=openai openrouter gemini"`
	Model          string  `yaml:"model" toml:"model"`
	APIBase        string  `yaml:"apiBase,omitempty" toml:"apiBase,omitempty" validate:"omitempty,url"`
	APIKey         string  `yaml:"apiKey" toml:"apiKey"`
	TimeoutSeconds int     `yaml:"timeoutSeconds" toml:"timeoutSeconds" validate:"min=1,max=600"`
	Temperature    float64 `yaml:"temperature" toml:"temperature" validate:"min=0,max=2"`

	// Optional second provider tried once when the primary fails.
	FallbackProvider string `yaml:"fallbackProvider,omitempty" toml:"fallbackProvider,omitempty" validate:"omitempty,oneof=openai openrouter gemini"`
	FallbackModel    string `yaml:"fallbackModel,omitempty" toml:"fallbackModel,omitempty"`
	FallbackAPIBase  string `yaml:"fallbackApiBase,omitempty" toml:"fallbackApiBase,omitempty" validate:"omitempty,url"`
	FallbackAPIKey   string `yaml:"fallbackApiKey,omitempty" toml:"fallbackApiKey,omitempty"`
}

// DeskConfig points at the Chatwoot account API.
type DeskConfig struct {
	APIURL      string `yaml:"apiURL" toml:"apiURL" validate:"omitempty,url"`
	AccountID   string `yaml:"accountId" toml:"accountId"`
	AccessToken string `yaml:"accessToken" toml:"accessToken"`
}

// Configured reports whether enough is set to call the desk API.
func (d DeskConfig) Configured() bool {
	return d.APIURL != "" && d.AccountID != "" && d.AccessToken != ""
}

type ChannelsConfig struct {
	Chatwoot ChatwootConfig `yaml:"chatwoot" toml:"chatwoot"`
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
	Twilio   TwilioConfig   `yaml:"twilio" toml:"twilio"`
}

type ChatwootConfig struct {
	Enabled         bool          `yaml:"enabled" toml:"enabled"`
	AuthMode        string        `yaml:"authMode" toml:"authMode" validate:"oneof=none hmac token"`
	Secret          string        `yaml:"secret" toml:"secret"`
	SignatureHeader string        `yaml:"signatureHeader" toml:"signatureHeader"`
	TokenHeader     string        `yaml:"tokenHeader" toml:"tokenHeader"`
	SystemPrompt    string        `yaml:"systemPrompt,omitempty" toml:"systemPrompt,omitempty"`
	Handoff         HandoffConfig `yaml:"handoff" toml:"handoff"`
}

// HandoffConfig transfers a conversation to a human agent after a number of
// bot replies. AfterReplies 0 disables it.
type HandoffConfig struct {
	AfterReplies int    `yaml:"afterReplies" toml:"afterReplies" validate:"min=0"`
	Message      string `yaml:"message" toml:"message"`
}

type TelegramConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	Token         string `yaml:"token" toml:"token" validate:"required_if=Enabled true"`
	ParseMode     string `yaml:"parseMode" toml:"parseMode" validate:"omitempty,oneof=Markdown MarkdownV2 HTML"`
	SystemPrompt  string `yaml:"systemPrompt,omitempty" toml:"systemPrompt,omitempty"`
	MirrorInboxID int64  `yaml:"mirrorInboxId,omitempty" toml:"mirrorInboxId,omitempty" validate:"min=0"`
}

type TwilioConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	AccountSID    string `yaml:"accountSid" toml:"accountSid" validate:"required_if=Enabled true"`
	AuthToken     string `yaml:"authToken" toml:"authToken" validate:"required_if=Enabled true"`
	FromNumber    string `yaml:"fromNumber" toml:"fromNumber" validate:"required_if=Enabled true"`
	SystemPrompt  string `yaml:"systemPrompt,omitempty" toml:"systemPrompt,omitempty"`
	MirrorInboxID int64  `yaml:"mirrorInboxId,omitempty" toml:"mirrorInboxId,omitempty" validate:"min=0"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Endpoint string `yaml:"endpoint" toml:"endpoint" validate:"startswith=/"`
}

// PromptFor returns the channel-specific prompt, or the general one.
func (c *Config) PromptFor(channelPrompt string) string {
	if strings.TrimSpace(channelPrompt) != "" {
		return channelPrompt
	}
	return c.General.SystemPrompt
}

// DefaultConfigDir returns the default config directory (~/.deskrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskrelay"
	}
	return filepath.Join(home, ".deskrelay")
}

// DefaultConfigPath honours DESKRELAY_CONFIG, falling back to
// ~/.deskrelay/config.yaml.
func DefaultConfigPath() string {
	if p := os.Getenv("DESKRELAY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads, expands, decodes and validates the config file at path.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg, err := Parse(data, isTOML(path))
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Parse decodes raw config bytes on top of Defaults without validating.
func Parse(data []byte, asTOML bool) (*Config, error) {
	// Substitute environment variables: ${VAR} and ${VAR:-default}
	expanded := ExpandEnvVars(string(data))

	cfg := Defaults()
	if asTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, err
		}
	} else {
		dec := yaml.NewDecoder(strings.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}

	cfg.History.DBPath = expandPath(cfg.History.DBPath)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)
	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg to path, creating the directory. The format follows the
// file extension like Load.
func Save(path string, cfg *Config) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := Marshal(cfg, isTOML(path))
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// The file holds API tokens.
	return os.WriteFile(path, data, 0o600)
}

// Marshal encodes cfg as YAML or TOML.
func Marshal(cfg *Config, asTOML bool) ([]byte, error) {
	if asTOML {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the config has valid values. All problems are
// collected and reported together.
func Validate(cfg *Config) error {
	var errs []string

	if err := validate.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, describeFieldError(fe))
		}
	}

	cw := cfg.Channels.Chatwoot
	if cw.Enabled {
		if !cfg.Desk.Configured() {
			errs = append(errs, "channels.chatwoot: desk.apiURL, desk.accountId and desk.accessToken are required")
		}
		if cw.AuthMode != "none" && cw.Secret == "" {
			errs = append(errs, fmt.Sprintf("channels.chatwoot.secret is required when authMode is %s", cw.AuthMode))
		}
		if cw.Handoff.AfterReplies > 0 && strings.TrimSpace(cw.Handoff.Message) == "" {
			errs = append(errs, "channels.chatwoot.handoff.message is required when handoff.afterReplies > 0")
		}
	}
	if cfg.Channels.Telegram.MirrorInboxID > 0 && !cfg.Desk.Configured() {
		errs = append(errs, "channels.telegram.mirrorInboxId requires the desk section")
	}
	if cfg.Channels.Twilio.MirrorInboxID > 0 && !cfg.Desk.Configured() {
		errs = append(errs, "channels.twilio.mirrorInboxId requires the desk section")
	}
	if cfg.AI.FallbackProvider != "" && cfg.AI.FallbackModel == "" {
		errs = append(errs, "ai.fallbackModel is required when ai.fallbackProvider is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "Config.section.field"; drop the root type name.
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be >= %s", key, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", key, fe.Param())
	case "url":
		return key + " must be a valid URL"
	case "startswith":
		return fmt.Sprintf("%s must start with %q", key, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
}
