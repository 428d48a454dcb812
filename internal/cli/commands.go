// Package cli implements the kipbot subcommands and the terminal chat.
package cli

import (
	"fmt"
	"io"

	"github.com/gmsas95/kipbot/internal/config"
)

// Version is set at build time
var Version = "dev"

// Init writes the default configuration to path. An existing file is
// left untouched.
func Init(path string, out io.Writer) error {
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if err := config.Save(config.Default(), path); err != nil {
		return err
	}

	fmt.Fprintf(out, "Config created at %s\n", path)
	fmt.Fprintln(out, "Edit the config file to add your API keys and enable platforms.")
	return nil
}

func PrintVersion(out io.Writer) {
	fmt.Fprintf(out, "kipbot v%s\n", Version)
}

func PrintHelp(out io.Writer) {
	fmt.Fprint(out, `kipbot - personal AI assistant

Usage:
  kipbot [--config PATH] <command> [args]

Commands:
  init                 Write the default config (~/.kipbot/config.yaml)
  run [platform]       Start kipbot on telegram (default), discord, kakao, web or all
  chat                 Start an interactive chat session in the terminal
  version              Show the kipbot version
  help                 Show this help

Flags (accepted before or after the command):
  --config PATH        Config file to use instead of ~/.kipbot/config.yaml
  --version, -v        Show the kipbot version
`)
}

func PrintInteractiveHelp(out io.Writer) {
	fmt.Fprint(out, `Commands:
  /new                 Start a new conversation (memory is kept)
  help                 Show this help
  exit, quit, q        Leave the chat
`)
}

// PrintSummary shows which surfaces are configured, with secrets masked
func PrintSummary(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Model:     %s/%s (key %s)\n", cfg.LLM.Provider, cfg.LLM.Model, maskToken(cfg.LLM.APIKey))
	fmt.Fprintf(out, "Memory:    %s (%s)\n", channelStatus(cfg.Memory.Enabled), cfg.Memory.Backend)
	fmt.Fprintf(out, "Telegram:  %s (token %s)\n", channelStatus(cfg.Telegram.Enabled), maskToken(cfg.Telegram.Token))
	fmt.Fprintf(out, "Discord:   %s (token %s)\n", channelStatus(cfg.Discord.Enabled), maskToken(cfg.Discord.Token))
	fmt.Fprintf(out, "Kakao:     %s\n", channelStatus(cfg.Kakao.Enabled))
	fmt.Fprintf(out, "Web:       %s\n", channelStatus(cfg.Web.Enabled))
	fmt.Fprintf(out, "Gateway:   %s:%d\n", cfg.Server.Address, cfg.Server.Port)
}

func channelStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
