// Package telegram provides Telegram bot integration
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/gmsas95/kipbot/internal/channels"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Platform is the platform tag for Telegram conversations
const Platform = "telegram"

// MaxMessageLength is Telegram's per-message text limit
const MaxMessageLength = 4096

const (
	greeting       = "Hello! I'm Kipbot, your personal AI assistant."
	helpText       = "*Available Commands:*\n\n/start - Start the bot\n/new - Start a new conversation\n/help - Show this help\n\nOr just send me a message!"
	resetText      = "Starting a new conversation! Context cleared."
	unknownCommand = "Unknown command. Use /help for available commands."
	notAuthorized  = "You are not authorized to use this bot."
)

// Config holds Telegram bot configuration
type Config struct {
	Token        string
	AllowedUsers []int64 // empty = allow all
}

// api is the subset of *tgbotapi.BotAPI the bot sends through
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot represents a Telegram bot integration
type Bot struct {
	bot        *tgbotapi.BotAPI
	api        api
	dispatcher *channels.Dispatcher
	allowList  map[int64]bool
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewBot connects to the Bot API with the given token
func NewBot(cfg Config, d *channels.Dispatcher, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, apperrors.WithCause(apperrors.ErrChannelNotConfigured, fmt.Errorf("telegram token is empty"))
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	botAPI.Debug = false

	b := newBot(botAPI, cfg, d, logger)
	b.bot = botAPI
	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))
	return b, nil
}

func newBot(a api, cfg Config, d *channels.Dispatcher, logger *zap.Logger) *Bot {
	allowList := make(map[int64]bool, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowList[id] = true
	}
	return &Bot{
		api:        a,
		dispatcher: d,
		allowList:  allowList,
		logger:     logger,
	}
}

// Start begins long polling until ctx is cancelled or Stop is called
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	b.wg.Add(1)
	go b.run(ctx, updates)

	b.logger.Info("Telegram bot started")
	return nil
}

// Stop ends polling and waits for in-flight updates
func (b *Bot) Stop() error {
	b.bot.StopReceivingUpdates()
	b.wg.Wait()
	return nil
}

func (b *Bot) run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			// One goroutine per update so a slow turn never stalls other chats
			b.wg.Add(1)
			go func(u tgbotapi.Update) {
				defer b.wg.Done()
				if err := b.handleUpdate(ctx, u); err != nil {
					b.logger.Error("Failed to handle update", zap.Error(err))
				}
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}

	if len(b.allowList) > 0 && !b.allowList[msg.From.ID] {
		b.logger.Warn("Unauthorized Telegram user", zap.Int64("user_id", msg.From.ID))
		return b.sendMessage(msg.Chat.ID, notAuthorized)
	}

	if msg.IsCommand() {
		return b.handleCommand(msg)
	}

	if msg.Text == "" {
		return nil
	}
	return b.handleMessage(ctx, msg)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		return b.sendMessage(chatID, greeting)
	case "help":
		return b.sendMessage(chatID, helpText)
	case "new":
		b.dispatcher.Reset(userID(msg), Platform)
		return b.sendMessage(chatID, resetText)
	default:
		return b.sendMessage(chatID, unknownCommand)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Typing indicator failed", zap.Error(err))
	}

	reply := b.dispatcher.Dispatch(ctx, userID(msg), Platform, msg.Text)

	for _, part := range channels.SplitMessage(reply, MaxMessageLength) {
		if err := b.sendMessage(chatID, part); err != nil {
			return err
		}
	}

	b.logger.Info("Replied", zap.String("platform", Platform), zap.Int64("chat_id", chatID))
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(msg); err != nil {
		// Model output is not always valid Markdown; retry as plain text
		msg.ParseMode = ""
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

func userID(msg *tgbotapi.Message) string {
	return strconv.FormatInt(msg.From.ID, 10)
}
