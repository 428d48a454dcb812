package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmsas95/kipbot/internal/api"
	"github.com/gmsas95/kipbot/internal/app"
	"github.com/gmsas95/kipbot/internal/cli"
	"github.com/gmsas95/kipbot/internal/config"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var version = "dev"

// invocation is the parsed command line
type invocation struct {
	configPath string
	command    string
	args       []string
}

// parseArgs accepts flags anywhere on the command line, so
// "kipbot run discord --config x.yaml" and "kipbot --config x.yaml run discord"
// are equivalent.
func parseArgs(argv []string) (invocation, error) {
	inv := invocation{command: "help"}
	var showVersion bool

	fs := flag.NewFlagSet("kipbot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&inv.configPath, "config", "", "Path to config file")
	fs.BoolVar(&showVersion, "version", false, "Show the kipbot version")
	fs.BoolVar(&showVersion, "v", false, "Show the kipbot version")

	var positional []string
	rest := argv
	for {
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return invocation{command: "help"}, nil
			}
			return inv, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	switch {
	case showVersion:
		inv.command = "version"
	case len(positional) > 0:
		inv.command = positional[0]
		inv.args = positional[1:]
	}
	return inv, nil
}

func main() {
	cli.Version = version
	api.Version = version

	inv, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		cli.PrintHelp(os.Stderr)
		os.Exit(2)
	}

	switch inv.command {
	case "init":
		if err := cli.Init(inv.configPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "run":
		platform := app.PlatformTelegram
		if len(inv.args) > 0 {
			platform = inv.args[0]
		}
		os.Exit(run(inv.configPath, func(ctx context.Context, a *app.App) error {
			a.PrintSummary(os.Stdout)
			return a.Run(ctx, platform)
		}, false))
	case "chat":
		os.Exit(run(inv.configPath, func(ctx context.Context, a *app.App) error {
			return a.RunChat(ctx, chatOptions())
		}, true))
	case "version":
		cli.PrintVersion(os.Stdout)
	case "help":
		cli.PrintHelp(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", inv.command)
		cli.PrintHelp(os.Stderr)
		os.Exit(1)
	}
}

// run loads config, builds the app and runs fn until SIGINT/SIGTERM
func run(configPath string, fn func(ctx context.Context, a *app.App) error, quiet bool) int {
	config.LoadEnvFiles()

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, apperrors.ErrConfigNotFound) {
			fmt.Fprintln(os.Stderr, "No config found. Run 'kipbot init' first.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	logger, err := newLogger(cfg.Log, quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	a, err := app.New(cfg, path, logger, version)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close memory store", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, a); err != nil {
		if errors.Is(err, apperrors.ErrChannelUnknown) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		logger.Error("Kipbot stopped with error", zap.Error(err))
		return 1
	}
	return 0
}

// newLogger builds the zap logger from config. quiet raises the default
// info level to warn so logs do not interleave with the terminal chat.
func newLogger(cfg config.LogConfig, quiet bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	if quiet && level == zapcore.InfoLevel {
		level = zapcore.WarnLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

func chatOptions() cli.ChatOptions {
	opts := cli.ChatOptions{In: os.Stdin, Out: os.Stdout}

	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		opts.Styled = true
		if width, _, err := term.GetSize(fd); err == nil {
			opts.Width = width
		}
	}
	return opts
}
