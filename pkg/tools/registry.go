// Package tools provides the capabilities the model may invoke during a turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Param describes one tool argument
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Descriptor is the immutable description of a tool
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
}

// Result is what a tool hands back to the model. Failures are reported
// in-band with Success false.
type Result struct {
	Success bool
	Output  string
}

// Tool is the interface for all tools
type Tool interface {
	Describe() Descriptor
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Definition is the function-calling schema entry for one tool
type Definition struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes a callable function
type FunctionSchema struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters is the JSON-schema object describing tool arguments
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property is one argument in Parameters
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Observer is told the outcome of every Execute call
type Observer func(tool string, success bool)

// Registry manages available tools
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	order    []string
	observer Observer
	logger   *zap.Logger
}

// NewRegistry creates an empty tool registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. A tool with the same name replaces the earlier
// one in place.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Describe().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Observe installs fn as the result observer
func (r *Registry) Observe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

func (r *Registry) notify(name string, success bool) {
	r.mu.RLock()
	fn := r.observer
	r.mu.RUnlock()
	if fn != nil {
		fn(name, success)
	}
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Schema returns the function-calling schema for every tool, or nil when
// the registry is empty.
func (r *Registry) Schema() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return nil
	}

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		d := r.tools[name].Describe()

		params := Parameters{
			Type:       "object",
			Properties: make(map[string]Property, len(d.Params)),
			Required:   []string{},
		}
		for _, p := range d.Params {
			params.Properties[p.Name] = Property{Type: p.Type, Description: p.Description}
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}

		defs = append(defs, Definition{
			Type: "function",
			Function: FunctionSchema{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// Execute runs a tool with JSON arguments and always returns text for
// the model. Unknown tools, bad arguments, errors and panics become
// error strings.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (output string) {
	tool, ok := r.Get(name)
	if !ok {
		r.logger.Warn("Unknown tool requested", zap.String("tool", name))
		r.notify(name, false)
		return fmt.Sprintf("Error: unknown tool '%s'", name)
	}

	success := false
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Tool panicked", zap.String("tool", name), zap.Any("panic", rec))
			output = fmt.Sprintf("Error executing %s: %v", name, rec)
			success = false
		}
		r.notify(name, success)
	}()

	args := map[string]any{}
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			r.logger.Warn("Invalid tool arguments", zap.String("tool", name), zap.Error(err))
			return fmt.Sprintf("Error executing %s: %v", name, err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		r.logger.Error("Tool failed", zap.String("tool", name), zap.Error(err))
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}

	success = result.Success
	r.logger.Info("Tool executed", zap.String("tool", name), zap.Bool("success", success))
	return result.Output
}

// stringArg returns a trimmed string argument, or "" when absent.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// intArg accepts JSON numbers and numeric strings.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
