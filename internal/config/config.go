package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider     = "openai"
	DefaultSystemPrompt = "You are Kipbot, a helpful personal AI assistant."
	EnvPrefix           = "KIPBOT"
)

// Config holds all configuration for kipbot
type Config struct {
	SystemPrompt string         `mapstructure:"system_prompt" yaml:"system_prompt"`
	Language     string         `mapstructure:"language" yaml:"language"`
	LLM          LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Memory       MemoryConfig   `mapstructure:"memory" yaml:"memory"`
	Telegram     TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Discord      DiscordConfig  `mapstructure:"discord" yaml:"discord"`
	Kakao        KakaoConfig    `mapstructure:"kakao" yaml:"kakao"`
	Web          WebConfig      `mapstructure:"web" yaml:"web"`
	Server       ServerConfig   `mapstructure:"server" yaml:"server"`
	Tools        ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Log          LogConfig      `mapstructure:"log" yaml:"log"`
}

// LLMConfig holds language model settings
type LLMConfig struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	Model             string  `mapstructure:"model" yaml:"model"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout           int     `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries"`
	BreakerFailures   uint32  `mapstructure:"breaker_failures" yaml:"breaker_failures"`
}

// MemoryConfig holds persistent memory settings
type MemoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Backend string `mapstructure:"backend" yaml:"backend"` // local, sqlite or badger
	Path    string `mapstructure:"path" yaml:"path"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	Token        string  `mapstructure:"token" yaml:"token"`
	AllowedUsers []int64 `mapstructure:"allowed_users" yaml:"allowed_users"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled"`
	Token         string   `mapstructure:"token" yaml:"token"`
	AllowedGuilds []string `mapstructure:"allowed_guilds" yaml:"allowed_guilds"`
}

// KakaoConfig holds Kakao i Open Builder skill server settings
type KakaoConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BotID   string `mapstructure:"bot_id" yaml:"bot_id"`
}

// WebConfig holds the browser WebSocket chat settings
type WebConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ServerConfig holds the gateway HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// ToolsConfig holds built-in tool settings
type ToolsConfig struct {
	DefaultTimezone string          `mapstructure:"default_timezone" yaml:"default_timezone"`
	WebSearch       WebSearchConfig `mapstructure:"web_search" yaml:"web_search"`
}

// WebSearchConfig holds web search tool settings
type WebSearchConfig struct {
	Engine  string `mapstructure:"engine" yaml:"engine"` // tavily or duckduckgo
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Timeout int    `mapstructure:"timeout" yaml:"timeout"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Load loads configuration from file, env, and defaults. A missing file
// is reported as ErrConfigNotFound.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrConfigNotFound, fmt.Errorf("%s: %w", configPath, err))
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrConfigInvalid, fmt.Errorf("failed to read config: %w", err))
	}

	// Environment variables (KIPBOT_LLM_API_KEY, KIPBOT_TELEGRAM_TOKEN, etc.)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrConfigInvalid, fmt.Errorf("failed to unmarshal config: %w", err))
	}

	applyEnvAliases(&cfg)
	cfg.Memory.Path = expandHome(cfg.Memory.Path)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("system_prompt", d.SystemPrompt)
	v.SetDefault("language", d.Language)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.breaker_failures", d.LLM.BreakerFailures)

	v.SetDefault("memory.enabled", d.Memory.Enabled)
	v.SetDefault("memory.backend", d.Memory.Backend)
	v.SetDefault("memory.path", d.Memory.Path)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("discord.enabled", false)
	v.SetDefault("discord.token", "")
	v.SetDefault("kakao.enabled", false)
	v.SetDefault("kakao.api_key", "")
	v.SetDefault("web.enabled", false)

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("tools.default_timezone", d.Tools.DefaultTimezone)
	v.SetDefault("tools.web_search.engine", d.Tools.WebSearch.Engine)
	v.SetDefault("tools.web_search.api_key", "")
	v.SetDefault("tools.web_search.timeout", d.Tools.WebSearch.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Default returns the configuration written by `kipbot init`.
func Default() *Config {
	return &Config{
		SystemPrompt: DefaultSystemPrompt,
		Language:     "ko",
		LLM: LLMConfig{
			Provider:        DefaultProvider,
			Model:           "gpt-4o-mini",
			Temperature:     0.7,
			MaxTokens:       4096,
			Timeout:         60,
			BreakerFailures: 5,
		},
		Memory: MemoryConfig{
			Enabled: true,
			Backend: "local",
			Path:    filepath.Join(DefaultDir(), "memory"),
		},
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    5000,
		},
		Tools: ToolsConfig{
			DefaultTimezone: "Asia/Seoul",
			WebSearch: WebSearchConfig{
				Engine:  "tavily",
				Timeout: 10,
			},
		},
		Log: LogConfig{
			Level:       "info",
			Development: true,
		},
	}
}

// DefaultDir returns ~/.kipbot, or ./.kipbot when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kipbot"
	}
	return filepath.Join(home, ".kipbot")
}

// DefaultConfigPath returns the config file used when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Save writes cfg as YAML, refusing to overwrite an existing file.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.LLM.Provider == "" {
		return apperrors.WithCause(apperrors.ErrConfigInvalid, fmt.Errorf("llm.provider is required"))
	}
	if cfg.LLM.Model == "" {
		return apperrors.WithCause(apperrors.ErrConfigInvalid, fmt.Errorf("llm.model is required"))
	}

	switch cfg.Memory.Backend {
	case "local", "sqlite", "badger":
	default:
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("memory.backend %q must be one of local, sqlite, badger", cfg.Memory.Backend))
	}

	if cfg.Memory.Enabled && cfg.Memory.Path == "" {
		return apperrors.WithCause(apperrors.ErrConfigInvalid, fmt.Errorf("memory.path is required when memory is enabled"))
	}

	switch cfg.Tools.WebSearch.Engine {
	case "tavily", "duckduckgo":
	default:
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("tools.web_search.engine %q must be tavily or duckduckgo", cfg.Tools.WebSearch.Engine))
	}

	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
