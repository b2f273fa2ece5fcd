package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/or0ji/Association-Website-Template/internal/handlers"
	"github.com/or0ji/Association-Website-Template/internal/services"
	"gopkg.in/yaml.v3"
)

type upstreamConfig interface {
	upstream(store services.HistoryStore, logger *slog.Logger) (handlers.Upstream, error)
}

// BaseUpstreamConfig contains the common fields for all upstream configurations.
type BaseUpstreamConfig struct {
	Provider     string        `yaml:"provider"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"systemPrompt"`
}

type config struct {
	Port           string         `yaml:"port"`
	LogLevel       string         `yaml:"logLevel"`
	DBPath         string         `yaml:"dbPath"`
	UploadDir      string         `yaml:"uploadDir"`
	AllowedOrigins []string       `yaml:"allowedOrigins"`
	Upstream       upstreamConfig `yaml:"upstream"`
}

type cozeConfig struct {
	BaseUpstreamConfig `yaml:",inline"`
	BaseURL            string `yaml:"baseURL"`
	BotID              string `yaml:"botID"`
	Token              string `yaml:"token"`
}

type openAIConfig struct {
	BaseUpstreamConfig `yaml:",inline"`
	BaseURL            string                 `yaml:"baseURL"`
	APIKey             string                 `yaml:"apiKey"`
	Model              string                 `yaml:"model"`
	Params             services.LLMParameters `yaml:"params"`
}

type ollamaConfig struct {
	BaseUpstreamConfig `yaml:",inline"`
	Host               string `yaml:"host"`
	Model              string `yaml:"model"`
}

type anthropicConfig struct {
	BaseUpstreamConfig `yaml:",inline"`
	BaseURL            string `yaml:"baseURL"`
	APIKey             string `yaml:"apiKey"`
	Model              string `yaml:"model"`
	MaxTokens          int    `yaml:"maxTokens"`
}

const (
	defaultPort      = "8000"
	defaultUploadDir = "uploads"
	defaultTimeout   = 120 * time.Second
	defaultOllama    = "http://localhost:11434"
)

// loadConfig decodes the configuration from r and fills the defaults. An empty document is a valid
// configuration relaying to Coze with credentials from the environment.
func loadConfig(r io.Reader, defaultDBPath string) (config, error) {
	cfg := config{}
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return config{}, fmt.Errorf("error decoding config: %w", err)
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = defaultUploadDir
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Upstream == nil {
		cfg.Upstream = &cozeConfig{BaseUpstreamConfig: BaseUpstreamConfig{Provider: "coze"}}
	}

	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port           string         `yaml:"port"`
		LogLevel       string         `yaml:"logLevel"`
		DBPath         string         `yaml:"dbPath"`
		UploadDir      string         `yaml:"uploadDir"`
		AllowedOrigins []string       `yaml:"allowedOrigins"`
		Upstream       map[string]any `yaml:"upstream"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel
	c.DBPath = rawConfig.DBPath
	c.UploadDir = rawConfig.UploadDir
	c.AllowedOrigins = rawConfig.AllowedOrigins

	if rawConfig.Upstream == nil {
		return nil
	}

	provider, ok := rawConfig.Upstream["provider"].(string)
	if !ok {
		provider = "coze"
	}

	upstreamRawYAML, err := yaml.Marshal(rawConfig.Upstream)
	if err != nil {
		return err
	}

	var upstream upstreamConfig
	switch provider {
	case "coze":
		upstream = &cozeConfig{}
	case "openai":
		upstream = &openAIConfig{}
	case "ollama":
		upstream = &ollamaConfig{}
	case "anthropic":
		upstream = &anthropicConfig{}
	default:
		return fmt.Errorf("unknown upstream provider: %s", provider)
	}

	if err := yaml.Unmarshal(upstreamRawYAML, upstream); err != nil {
		return err
	}

	c.Upstream = upstream

	return nil
}

func (b BaseUpstreamConfig) timeout() time.Duration {
	if b.Timeout == 0 {
		return defaultTimeout
	}
	return b.Timeout
}

func envOr(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func (c cozeConfig) upstream(_ services.HistoryStore, logger *slog.Logger) (handlers.Upstream, error) {
	token := envOr(c.Token, "COZE_API_TOKEN")
	botID := envOr(c.BotID, "COZE_BOT_ID")
	baseURL := envOr(c.BaseURL, "COZE_API_BASE")
	if botID == "" {
		logger.Warn("Coze bot id is not configured, chat requests will fail")
	}
	return services.NewCoze(baseURL, botID, token, c.timeout(), logger), nil
}

func (o openAIConfig) upstream(store services.HistoryStore, logger *slog.Logger) (handlers.Upstream, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := envOr(o.APIKey, "OPENAI_API_KEY")
	completer := services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.SystemPrompt, o.Params, logger)
	return services.NewAssistant(completer, store, o.timeout(), logger), nil
}

func (o ollamaConfig) upstream(store services.HistoryStore, logger *slog.Logger) (handlers.Upstream, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := envOr(o.Host, "OLLAMA_HOST")
	if host == "" {
		host = defaultOllama
	}
	completer, err := services.NewOllama(host, o.Model, o.SystemPrompt, logger)
	if err != nil {
		return nil, err
	}
	return services.NewAssistant(completer, store, o.timeout(), logger), nil
}

func (a anthropicConfig) upstream(store services.HistoryStore, logger *slog.Logger) (handlers.Upstream, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}

	apiKey := envOr(a.APIKey, "ANTHROPIC_API_KEY")
	completer := services.NewAnthropic(apiKey, a.BaseURL, a.Model, a.SystemPrompt, a.MaxTokens, logger)
	return services.NewAssistant(completer, store, a.timeout(), logger), nil
}
