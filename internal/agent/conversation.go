package agent

import (
	"sync"

	"github.com/gmsas95/kipbot/internal/llm"
)

// Conversation is the in-memory history of one user on one platform.
// Its lock is held for a whole turn, so turns for the same key run one
// at a time.
type Conversation struct {
	UserID   string
	Platform string

	mu      sync.Mutex
	history []llm.Message
}

// NewConversation creates an empty conversation
func NewConversation(userID, platform string) *Conversation {
	return &Conversation{UserID: userID, Platform: platform}
}

// History returns a copy of the messages so far. It waits for any
// in-flight turn to finish.
func (c *Conversation) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.history...)
}

func (c *Conversation) append(msgs ...llm.Message) {
	c.history = append(c.history, msgs...)
}

// ConversationStore resolves conversations by (user, platform)
type ConversationStore interface {
	// Get returns the conversation for the key, creating it on first use
	Get(userID, platform string) *Conversation
	// Reset forgets the conversation so the next Get starts fresh
	Reset(userID, platform string)
	Len() int
}

type conversationKey struct {
	userID   string
	platform string
}

// MemoryConversations keeps conversations for the process lifetime
type MemoryConversations struct {
	mu    sync.Mutex
	convs map[conversationKey]*Conversation
}

// NewMemoryConversations creates an empty store
func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{convs: make(map[conversationKey]*Conversation)}
}

func (s *MemoryConversations) Get(userID, platform string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey{userID, platform}
	conv, ok := s.convs[key]
	if !ok {
		conv = NewConversation(userID, platform)
		s.convs[key] = conv
	}
	return conv
}

func (s *MemoryConversations) Reset(userID, platform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationKey{userID, platform})
}

func (s *MemoryConversations) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
