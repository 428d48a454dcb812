package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvFiles loads ./.env and ~/.kipbot/.env without overriding
// variables already present in the environment.
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
		filepath.Join(DefaultDir(), ".env"),
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// envAliases maps canonical KIPBOT_ keys to the conventional names
// other tools already export.
var envAliases = map[string][]string{
	"KIPBOT_LLM_API_KEY":              {"OPENAI_API_KEY", "OPENROUTER_API_KEY"},
	"KIPBOT_TELEGRAM_TOKEN":           {"TELEGRAM_BOT_TOKEN"},
	"KIPBOT_DISCORD_TOKEN":            {"DISCORD_BOT_TOKEN", "DISCORD_TOKEN"},
	"KIPBOT_KAKAO_API_KEY":            {"KAKAO_API_KEY"},
	"KIPBOT_TOOLS_WEB_SEARCH_API_KEY": {"TAVILY_API_KEY"},
}

// ResolveEnvWithAliases returns the canonical variable, falling back to
// its aliases in order.
func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	for _, alias := range envAliases[canonicalKey] {
		if val := os.Getenv(alias); val != "" {
			return val
		}
	}

	return ""
}

// GetEnvWithFallback returns the first non-empty variable among keys.
func GetEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

// applyEnvAliases fills secrets that are still empty after viper's
// KIPBOT_ lookup from their conventional aliases.
func applyEnvAliases(cfg *Config) {
	fill := func(dst *string, canonical string) {
		if *dst == "" {
			*dst = ResolveEnvWithAliases(canonical)
		}
	}

	fill(&cfg.LLM.APIKey, "KIPBOT_LLM_API_KEY")
	fill(&cfg.Telegram.Token, "KIPBOT_TELEGRAM_TOKEN")
	fill(&cfg.Discord.Token, "KIPBOT_DISCORD_TOKEN")
	fill(&cfg.Kakao.APIKey, "KIPBOT_KAKAO_API_KEY")
	fill(&cfg.Tools.WebSearch.APIKey, "KIPBOT_TOOLS_WEB_SEARCH_API_KEY")
}
