// Package agent turns one user message into a reply, interleaving model
// calls with tool execution for a bounded number of rounds.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gmsas95/kipbot/internal/llm"
	"github.com/gmsas95/kipbot/internal/memory"
	"github.com/gmsas95/kipbot/internal/metrics"
	"github.com/gmsas95/kipbot/pkg/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxToolRounds bounds model calls that may request tools in one turn
	MaxToolRounds = 5
	// HistoryWindow is how many history messages go into each prompt
	HistoryWindow = 30
	// MemorySeedLimit is how many memory entries seed an empty conversation
	MemorySeedLimit = 10
)

const (
	exhaustedInstruction = "You have reached the tool call limit. Answer my previous question now, " +
		"using only the tool results already in this conversation. Do not request more tools."
	fallbackReply = "Sorry, I couldn't come up with an answer this time. Please try asking again."
)

// Options configures an Agent
type Options struct {
	Model         llm.Completer
	Tools         *tools.Registry
	Memory        memory.Store
	Conversations ConversationStore
	SystemPrompt  string
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// Agent handles conversation and tool execution
type Agent struct {
	model         llm.Completer
	tools         *tools.Registry
	memory        memory.Store
	conversations ConversationStore
	metrics       *metrics.Metrics
	logger        *zap.Logger

	promptMu     sync.RWMutex
	systemPrompt string
}

// New creates a new Agent. Nil Memory, Conversations and Logger get
// working defaults; a nil Tools registry disables tool calling.
func New(opts Options) *Agent {
	a := &Agent{
		model:         opts.Model,
		tools:         opts.Tools,
		memory:        opts.Memory,
		conversations: opts.Conversations,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		systemPrompt:  opts.SystemPrompt,
	}
	if a.memory == nil {
		a.memory = memory.NopStore{}
	}
	if a.conversations == nil {
		a.conversations = NewMemoryConversations()
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.tools != nil && a.metrics != nil {
		a.tools.Observe(a.metrics.RecordToolCall)
	}
	return a
}

// SystemPrompt returns the current system prompt
func (a *Agent) SystemPrompt() string {
	a.promptMu.RLock()
	defer a.promptMu.RUnlock()
	return a.systemPrompt
}

// SetSystemPrompt replaces the system prompt for subsequent turns
func (a *Agent) SetSystemPrompt(prompt string) {
	a.promptMu.Lock()
	defer a.promptMu.Unlock()
	a.systemPrompt = prompt
}

// Handle resolves the conversation for (userID, platform) and runs one turn
func (a *Agent) Handle(ctx context.Context, userID, platform, text string) (string, error) {
	conv := a.conversations.Get(userID, platform)
	a.metrics.SetConversations(a.conversations.Len())
	return a.Chat(ctx, conv, text)
}

// Reset drops the conversation for (userID, platform). Persisted memory
// is kept and will seed the next conversation.
func (a *Agent) Reset(userID, platform string) {
	a.conversations.Reset(userID, platform)
	a.metrics.SetConversations(a.conversations.Len())
}

// Chat runs one turn and returns the reply text. Model transport errors
// are returned; tool and memory failures never are.
func (a *Agent) Chat(ctx context.Context, conv *Conversation, userMessage string) (string, error) {
	conv.mu.Lock()
	defer conv.mu.Unlock()

	log := a.logger.With(
		zap.String("turn_id", uuid.NewString()),
		zap.String("user_id", conv.UserID),
		zap.String("platform", conv.Platform),
	)
	log.Info("Processing message", zap.Int("length", len(userMessage)))

	done := a.metrics.TurnStarted()
	defer done()
	start := time.Now()

	reply, err := a.turn(ctx, conv, userMessage, log)

	a.metrics.RecordTurn(conv.Platform, err, time.Since(start))
	if err != nil {
		log.Error("Turn failed", zap.Error(err))
		return "", err
	}

	log.Info("Turn complete", zap.Duration("elapsed", time.Since(start)))
	return reply, nil
}

func (a *Agent) turn(ctx context.Context, conv *Conversation, userMessage string, log *zap.Logger) (string, error) {
	a.seed(ctx, conv, log)

	conv.append(llm.Message{Role: llm.RoleUser, Content: userMessage})

	schema := a.toolSchema()

	for round := 1; round <= MaxToolRounds; round++ {
		reply, err := a.complete(ctx, conv, schema)
		if err != nil {
			return "", err
		}

		if !reply.WantsTools() {
			a.metrics.RecordRounds(round)
			return a.finish(ctx, conv, userMessage, reply.Text), nil
		}

		conv.append(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   reply.Text,
			ToolCalls: reply.ToolCalls,
		})

		for _, call := range reply.ToolCalls {
			log.Info("Executing tool",
				zap.String("tool", call.Function.Name),
				zap.Int("round", round),
			)
			output := a.executeTool(ctx, call)
			conv.append(llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
	}

	log.Warn("Tool round limit reached, forcing a final answer", zap.Int("rounds", MaxToolRounds))
	a.metrics.RecordExhausted()
	a.metrics.RecordRounds(MaxToolRounds + 1)

	conv.append(llm.Message{Role: llm.RoleUser, Content: exhaustedInstruction})

	reply, err := a.complete(ctx, conv, nil)
	if err != nil {
		return "", err
	}
	// Tool calls are ignored here; no tools were offered.
	return a.finish(ctx, conv, userMessage, reply.Text), nil
}

// finish records the assistant reply and persists the exchange
func (a *Agent) finish(ctx context.Context, conv *Conversation, userMessage, text string) string {
	if strings.TrimSpace(text) == "" {
		text = fallbackReply
	}
	conv.append(llm.Message{Role: llm.RoleAssistant, Content: text})
	a.memory.Save(ctx, conv.UserID, userMessage, text)
	return text
}

// seed replays persisted memory into an empty conversation
func (a *Agent) seed(ctx context.Context, conv *Conversation, log *zap.Logger) {
	if len(conv.history) > 0 || !a.memory.Enabled() {
		return
	}

	entries := a.memory.Load(ctx, conv.UserID, MemorySeedLimit)
	for _, e := range entries {
		conv.append(
			llm.Message{Role: llm.RoleUser, Content: e.User},
			llm.Message{Role: llm.RoleAssistant, Content: e.Assistant},
		)
	}
	if len(entries) > 0 {
		log.Debug("Seeded conversation from memory", zap.Int("entries", len(entries)))
	}
}

func (a *Agent) executeTool(ctx context.Context, call llm.ToolCall) string {
	if a.tools == nil {
		// The model asked for a tool it was never offered
		return tools.NewRegistry(a.logger).Execute(ctx, call.Function.Name, call.Function.Arguments)
	}
	return a.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
}

func (a *Agent) complete(ctx context.Context, conv *Conversation, schema []llm.Tool) (*llm.Reply, error) {
	reply, err := a.model.Complete(ctx, a.buildMessages(conv.history), schema)
	a.metrics.RecordModelCall(err)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// buildMessages frames the prompt: the system prompt followed by the last
// HistoryWindow history messages. Older messages stay in history.
func (a *Agent) buildMessages(history []llm.Message) []llm.Message {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.SystemPrompt()})
	return append(messages, history...)
}

// toolSchema converts the registry schema for the model client. Nil
// disables tool calling for the turn.
func (a *Agent) toolSchema() []llm.Tool {
	if a.tools == nil {
		return nil
	}
	defs := a.tools.Schema()
	if len(defs) == 0 {
		return nil
	}

	schema := make([]llm.Tool, 0, len(defs))
	for _, d := range defs {
		schema = append(schema, llm.Tool{
			Type: d.Type,
			Function: llm.ToolFunction{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return schema
}
