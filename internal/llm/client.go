// Package llm talks to OpenAI-compatible chat completion endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gmsas95/kipbot/internal/config"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"go.uber.org/zap"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// Message represents a chat message
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall represents a tool call from the model
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function half of a ToolCall. Arguments is raw JSON text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool represents a tool definition
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction represents a function tool
type ToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// ChatRequest represents an API request
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// ChatResponse represents a non-streaming API response
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Reply is the outcome of one model call: either final text or a list of
// tool invocations the model wants performed first.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// WantsTools reports whether the model asked for tool execution.
func (r *Reply) WantsTools() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Completer sends a prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Reply, error)
}

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Client provides LLM API access
type Client struct {
	cfg     config.LLMConfig
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a new LLM client
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Provider]
	}
	if baseURL == "" {
		baseURL = defaultBaseURLs[config.DefaultProvider]
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   ModelString(cfg.Provider, cfg.Model),
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		logger: logger,
	}
}

// ModelString returns the model identifier sent on the wire: the bare
// model for the default provider, otherwise "provider/model".
func ModelString(provider, model string) string {
	if provider == "" || provider == config.DefaultProvider {
		return model
	}
	return provider + "/" + model
}

// Model returns the model identifier sent on the wire
func (c *Client) Model() string {
	return c.model
}

// Complete sends messages and the optional tool schema, returning either
// text or tool calls. It performs no retries.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []Tool) (*Reply, error) {
	req := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("Model request failed",
			zap.String("model", c.model),
			zap.Int("messages", len(messages)),
			zap.Error(err),
		)
		return nil, err
	}

	if len(resp.Choices) == 0 {
		c.logger.Error("Model returned no choices", zap.String("model", c.model))
		return nil, apperrors.ErrEmptyCompletion
	}

	msg := resp.Choices[0].Message
	return &Reply{Text: msg.Content, ToolCalls: msg.ToolCalls}, nil
}

// ChatCompletion sends a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}
