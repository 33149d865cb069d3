package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolSpec is a tool declaration handed to the completion capability.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionRequest describes one outbound model call. An empty Tools slice
// means tool calling is disabled for the request. OnDelta, when set, receives
// streamed content fragments as they arrive; the full content is still
// returned in the result.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
	OnDelta     func(delta string)
}

// CompletionResult is the model's final answer for a request.
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
}

// Completer is the abstract completion capability. Implementations must honor
// context cancellation so an interrupted client never leaves a turn half
// persisted.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// NewCompleter builds the configured provider client.
func NewCompleter(cfg LLMConfig) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// isContextOverflowError reports whether a completion failure looks like the
// prompt exceeded the model's context window.
func isContextOverflowError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, needle := range []string{
		"context length",
		"context window",
		"maximum context",
		"prompt is too long",
		"too many tokens",
		"token limit",
		"request too large",
	} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
