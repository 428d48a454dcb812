// Package app wires configuration into a running kipbot: the model
// client, memory, tools, agent and the chat surfaces.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gmsas95/kipbot/internal/agent"
	"github.com/gmsas95/kipbot/internal/api"
	"github.com/gmsas95/kipbot/internal/channels"
	"github.com/gmsas95/kipbot/internal/channels/discord"
	"github.com/gmsas95/kipbot/internal/channels/telegram"
	"github.com/gmsas95/kipbot/internal/cli"
	"github.com/gmsas95/kipbot/internal/config"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"github.com/gmsas95/kipbot/internal/llm"
	"github.com/gmsas95/kipbot/internal/memory"
	"github.com/gmsas95/kipbot/internal/metrics"
	"github.com/gmsas95/kipbot/internal/security"
	"github.com/gmsas95/kipbot/pkg/tools"
	"go.uber.org/zap"
)

// Platform names accepted by Run
const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
	PlatformKakao    = "kakao"
	PlatformWeb      = "web"
	PlatformAll      = "all"
)

// adapter is a chat surface with a start/stop lifecycle
type adapter interface {
	Start(ctx context.Context) error
	Stop() error
}

type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Memory     memory.Store
	Tools      *tools.Registry
	Agent      *agent.Agent
	Dispatcher *channels.Dispatcher
	Version    string
}

// New builds every component from cfg. configPath is watched for
// system prompt changes while Run is active; empty disables watching.
func New(cfg *config.Config, configPath string, logger *zap.Logger, version string) (*App, error) {
	client := llm.NewClient(cfg.LLM, logger)
	model := llm.NewGuard(client, llm.GuardConfig{
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		MaxRetries:        cfg.LLM.MaxRetries,
		BreakerFailures:   cfg.LLM.BreakerFailures,
	}, logger)

	a, err := newApp(cfg, logger, model)
	if err != nil {
		return nil, err
	}
	a.ConfigPath = configPath
	a.Version = version

	logger.Info("Kipbot initialized",
		zap.String("version", version),
		zap.String("model", client.Model()),
		zap.Strings("tools", a.Tools.Names()),
		zap.Bool("memory", a.Memory.Enabled()),
	)
	return a, nil
}

func newApp(cfg *config.Config, logger *zap.Logger, model llm.Completer) (*App, error) {
	m := metrics.Default()

	store, err := memory.New(cfg.Memory, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory: %w", err)
	}

	registry := buildTools(cfg.Tools, logger)

	ag := agent.New(agent.Options{
		Model:         model,
		Tools:         registry,
		Memory:        store,
		Conversations: agent.NewMemoryConversations(),
		SystemPrompt:  cfg.SystemPrompt,
		Metrics:       m,
		Logger:        logger,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Memory:     store,
		Tools:      registry,
		Agent:      ag,
		Dispatcher: channels.NewDispatcher(ag, security.NewGuard(logger), m, logger),
	}, nil
}

func buildTools(cfg config.ToolsConfig, logger *zap.Logger) *tools.Registry {
	registry := tools.NewRegistry(logger)
	registry.Register(tools.NewDateTimeTool(cfg.DefaultTimezone))
	registry.Register(tools.NewCalculatorTool())
	registry.Register(tools.NewWebSearchTool(
		cfg.WebSearch.Engine,
		cfg.WebSearch.APIKey,
		time.Duration(cfg.WebSearch.Timeout)*time.Second,
	))
	registry.Register(tools.NewFetchURLTool())
	return registry
}

// Platforms expands a run argument into the surfaces to start. A named
// platform starts regardless of its enabled flag; "all" starts every
// enabled one.
func (a *App) Platforms(name string) ([]string, error) {
	switch name {
	case "":
		return []string{PlatformTelegram}, nil
	case PlatformTelegram, PlatformDiscord, PlatformKakao, PlatformWeb:
		return []string{name}, nil
	case PlatformAll:
		var out []string
		if a.Config.Telegram.Enabled {
			out = append(out, PlatformTelegram)
		}
		if a.Config.Discord.Enabled {
			out = append(out, PlatformDiscord)
		}
		if a.Config.Kakao.Enabled {
			out = append(out, PlatformKakao)
		}
		if a.Config.Web.Enabled {
			out = append(out, PlatformWeb)
		}
		if len(out) == 0 {
			return nil, apperrors.WithCause(apperrors.ErrChannelNotConfigured, fmt.Errorf("no platform is enabled"))
		}
		return out, nil
	default:
		return nil, apperrors.WithCause(apperrors.ErrChannelUnknown, fmt.Errorf("unknown platform: %s", name))
	}
}

func (a *App) buildAdapters(platforms []string) ([]adapter, error) {
	var adapters []adapter
	gateway := api.Options{
		Address:     a.Config.Server.Address,
		Port:        a.Config.Server.Port,
		KakaoAPIKey: a.Config.Kakao.APIKey,
	}

	for _, p := range platforms {
		switch p {
		case PlatformTelegram:
			bot, err := telegram.NewBot(telegram.Config{
				Token:        a.Config.Telegram.Token,
				AllowedUsers: a.Config.Telegram.AllowedUsers,
			}, a.Dispatcher, a.Logger)
			if err != nil {
				return nil, fmt.Errorf("telegram: %w", err)
			}
			adapters = append(adapters, bot)
		case PlatformDiscord:
			bot, err := discord.NewBot(discord.Config{
				Token:         a.Config.Discord.Token,
				AllowedGuilds: a.Config.Discord.AllowedGuilds,
			}, a.Dispatcher, a.Logger)
			if err != nil {
				return nil, fmt.Errorf("discord: %w", err)
			}
			adapters = append(adapters, bot)
		case PlatformKakao:
			gateway.Kakao = true
		case PlatformWeb:
			gateway.Web = true
		}
	}

	// The gateway always runs so /health and /metrics are reachable
	adapters = append(adapters, api.New(gateway, a.Dispatcher, a.Metrics, a.Logger))
	return adapters, nil
}

// Run starts the requested platforms and blocks until ctx is cancelled
func (a *App) Run(ctx context.Context, platform string) error {
	platforms, err := a.Platforms(platform)
	if err != nil {
		return err
	}

	adapters, err := a.buildAdapters(platforms)
	if err != nil {
		return err
	}

	var started []adapter
	for _, ad := range adapters {
		if err := ad.Start(ctx); err != nil {
			stopAll(started, a.Logger)
			return err
		}
		started = append(started, ad)
	}
	a.Logger.Info("Kipbot running", zap.Strings("platforms", platforms))

	a.watchConfig(ctx)

	<-ctx.Done()
	a.Logger.Info("Shutting down...")
	stopAll(started, a.Logger)
	return nil
}

// RunChat runs the terminal chat until the user leaves or ctx is cancelled
func (a *App) RunChat(ctx context.Context, opts cli.ChatOptions) error {
	a.watchConfig(ctx)

	done := make(chan error, 1)
	go func() {
		done <- cli.NewChat(a.Dispatcher, opts).Run(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Close releases the memory store
func (a *App) Close() error {
	return a.Memory.Close()
}

// PrintSummary writes the configured surfaces to out
func (a *App) PrintSummary(out io.Writer) {
	cli.PrintSummary(out, a.Config)
}

// watchConfig applies system prompt edits to the running agent
func (a *App) watchConfig(ctx context.Context) {
	if a.ConfigPath == "" {
		return
	}

	go func() {
		err := config.Watch(ctx, a.ConfigPath, a.Logger, func(cfg *config.Config) {
			if cfg.SystemPrompt == a.Agent.SystemPrompt() {
				return
			}
			a.Agent.SetSystemPrompt(cfg.SystemPrompt)
			a.Logger.Info("System prompt updated from config")
		})
		if err != nil {
			a.Logger.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

func stopAll(adapters []adapter, logger *zap.Logger) {
	for i := len(adapters) - 1; i >= 0; i-- {
		if err := adapters[i].Stop(); err != nil {
			logger.Error("Failed to stop adapter", zap.Error(err))
		}
	}
}
