package discord

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/gmsas95/kipbot/internal/channels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const botID = "999"

type fakeSession struct {
	mu      sync.Mutex
	replies []string
	refs    []*discordgo.MessageReference
	typing  int
}

func (f *fakeSession) ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, content)
	f.refs = append(f.refs, reference)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelTyping(string, ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

type fakeHandler struct {
	mu     sync.Mutex
	calls  []string
	resets []string
	reply  string
}

func (f *fakeHandler) Handle(_ context.Context, userID, platform, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+"|"+platform+"|"+text)
	return f.reply, nil
}

func (f *fakeHandler) Reset(userID, platform string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, userID+"|"+platform)
}

func newTestBot(cfg Config, reply string) (*Bot, *fakeSession, *fakeHandler) {
	h := &fakeHandler{reply: reply}
	d := channels.NewDispatcher(h, nil, nil, zap.NewNop())
	return newBot(cfg, d, zap.NewNop()), &fakeSession{}, h
}

func guildMessage(guild, content string, mentionBot bool) *discordgo.Message {
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   guild,
		Content:   content,
		Author:    &discordgo.User{ID: "u1"},
	}
	if mentionBot {
		m.Mentions = []*discordgo.User{{ID: botID}}
	}
	return m
}

func TestHandleMessage_Mention(t *testing.T) {
	b, s, h := newTestBot(Config{}, "pong")

	b.handleMessage(context.Background(), s, botID, guildMessage("g1", "<@999> ping", true))

	assert.Equal(t, []string{"u1|discord|ping"}, h.calls)
	assert.Equal(t, []string{"pong"}, s.replies)
	require.NotNil(t, s.refs[0])
	assert.Equal(t, "m1", s.refs[0].MessageID)
	assert.Equal(t, 1, s.typing)
}

func TestHandleMessage_NicknameMention(t *testing.T) {
	b, s, h := newTestBot(Config{}, "pong")

	b.handleMessage(context.Background(), s, botID, guildMessage("g1", "<@!999>   hello  ", true))

	assert.Equal(t, []string{"u1|discord|hello"}, h.calls)
	assert.Len(t, s.replies, 1)
}

func TestHandleMessage_DirectMessage(t *testing.T) {
	b, s, h := newTestBot(Config{}, "hi back")

	b.handleMessage(context.Background(), s, botID, guildMessage("", "hi", false))

	assert.Len(t, h.calls, 1)
	assert.Equal(t, []string{"hi back"}, s.replies)
}

func TestHandleMessage_Ignored(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		msg  *discordgo.Message
	}{
		{"not mentioned", Config{}, guildMessage("g1", "hello", false)},
		{"own message", Config{}, &discordgo.Message{GuildID: "", Content: "hi", Author: &discordgo.User{ID: botID}}},
		{"other bot", Config{}, &discordgo.Message{GuildID: "", Content: "hi", Author: &discordgo.User{ID: "b2", Bot: true}}},
		{"only mention", Config{}, guildMessage("g1", "<@999>", true)},
		{"guild not allowed", Config{AllowedGuilds: []string{"g2"}}, guildMessage("g1", "<@999> hi", true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, s, h := newTestBot(tt.cfg, "unused")
			b.handleMessage(context.Background(), s, botID, tt.msg)
			assert.Empty(t, h.calls)
			assert.Empty(t, s.replies)
		})
	}
}

func TestHandleMessage_AllowedGuild(t *testing.T) {
	b, s, h := newTestBot(Config{AllowedGuilds: []string{"g1"}}, "ok")

	b.handleMessage(context.Background(), s, botID, guildMessage("g1", "<@999> hi", true))
	assert.Len(t, h.calls, 1)
	assert.Len(t, s.replies, 1)
}

func TestHandleMessage_Commands(t *testing.T) {
	b, s, h := newTestBot(Config{}, "unused")

	b.handleMessage(context.Background(), s, botID, guildMessage("g1", "<@999> /new", true))
	b.handleMessage(context.Background(), s, botID, guildMessage("", "/help", false))

	assert.Equal(t, []string{"u1|discord"}, h.resets)
	assert.Empty(t, h.calls)
	assert.Equal(t, []string{resetText, helpText}, s.replies)
}

func TestHandleMessage_SplitsLongReplies(t *testing.T) {
	b, s, _ := newTestBot(Config{}, strings.Repeat("x", MaxMessageLength+10))

	b.handleMessage(context.Background(), s, botID, guildMessage("", "long", false))

	require.Len(t, s.replies, 2)
	assert.Len(t, s.replies[0], MaxMessageLength)
	assert.Equal(t, strings.Repeat("x", 10), s.replies[1])
}

func TestNewBot_RequiresToken(t *testing.T) {
	_, err := NewBot(Config{}, nil, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAN_001")
}
