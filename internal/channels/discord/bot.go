// Package discord provides Discord bot integration
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gmsas95/kipbot/internal/channels"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"go.uber.org/zap"
)

// Platform is the platform tag for Discord conversations
const Platform = "discord"

// MaxMessageLength is Discord's per-message content limit
const MaxMessageLength = 2000

const (
	helpText  = "**Kipbot**\n\nMention me or send a DM and ask anything.\n\n`/new` - Start a new conversation\n`/help` - Show this help"
	resetText = "New conversation started!"
)

// Config holds Discord bot configuration
type Config struct {
	Token         string
	AllowedGuilds []string // empty = all guilds
}

// session is the subset of *discordgo.Session used to answer messages
type session interface {
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Bot represents a Discord bot instance
type Bot struct {
	session    *discordgo.Session
	dispatcher *channels.Dispatcher
	guilds     map[string]bool
	logger     *zap.Logger
	ctx        context.Context
}

// NewBot creates a new Discord bot
func NewBot(cfg Config, d *channels.Dispatcher, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, apperrors.WithCause(apperrors.ErrChannelNotConfigured, fmt.Errorf("discord token is empty"))
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	b := newBot(cfg, d, logger)
	b.session = s

	s.AddHandler(b.ready)
	s.AddHandler(b.messageCreate)
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return b, nil
}

func newBot(cfg Config, d *channels.Dispatcher, logger *zap.Logger) *Bot {
	guilds := make(map[string]bool, len(cfg.AllowedGuilds))
	for _, g := range cfg.AllowedGuilds {
		guilds[g] = true
	}
	return &Bot{
		dispatcher: d,
		guilds:     guilds,
		logger:     logger,
		ctx:        context.Background(),
	}
}

// Start opens the gateway connection. Turns run under ctx.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	b.logger.Info("Discord bot started",
		zap.String("username", b.session.State.User.Username),
	)
	return nil
}

// Stop closes the gateway connection
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) ready(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("Discord bot ready",
		zap.String("username", event.User.Username),
		zap.Int("guilds", len(event.Guilds)),
	)
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State == nil || s.State.User == nil {
		return
	}
	b.handleMessage(b.ctx, s, s.State.User.ID, m.Message)
}

// handleMessage answers m when it is a DM or mentions the bot
func (b *Bot) handleMessage(ctx context.Context, s session, botID string, m *discordgo.Message) {
	if m.Author == nil || m.Author.ID == botID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	if !isDM && len(b.guilds) > 0 && !b.guilds[m.GuildID] {
		return
	}

	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == botID {
			mentioned = true
			break
		}
	}
	if !isDM && !mentioned {
		return
	}

	content := stripMention(m.Content, botID)
	if content == "" {
		return
	}

	userID := m.Author.ID
	switch strings.ToLower(content) {
	case "/help":
		b.reply(s, m, helpText)
		return
	case "/new":
		b.dispatcher.Reset(userID, Platform)
		b.reply(s, m, resetText)
		return
	}

	if err := s.ChannelTyping(m.ChannelID); err != nil {
		b.logger.Debug("Typing indicator failed", zap.Error(err))
	}

	b.reply(s, m, b.dispatcher.Dispatch(ctx, userID, Platform, content))
}

func (b *Bot) reply(s session, m *discordgo.Message, text string) {
	for _, part := range channels.SplitMessage(text, MaxMessageLength) {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, part, m.Reference()); err != nil {
			b.logger.Error("Failed to send Discord reply",
				zap.String("channel_id", m.ChannelID),
				zap.Error(err),
			)
			return
		}
	}
}

func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}
