// Package llm defines a uniform completion model over the OpenAI, Anthropic
// and Gemini HTTP APIs.
package llm

import (
	"context"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Request defaults.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.0
)

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one entry of a conversation. ToolCallID and Name are set on
// tool-role messages and refer to the call being answered.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// UserMessage returns a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolResultMessage returns the tool-role reply to call.
func ToolResultMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// ToolSchema describes a callable tool. Parameters is a JSON-schema object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a provider-independent completion request. Zero MaxTokens
// means DefaultMaxTokens; an empty Model means the provider default.
type Request struct {
	Messages    []Message    `json:"messages"`
	Model       string       `json:"model,omitempty"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature"`
	System      string       `json:"system,omitempty"`
}

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

func (r Request) model(def string) string {
	if r.Model == "" {
		return def
	}
	return r.Model
}

// Usage holds token counters normalized across providers.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Map returns the counters keyed the way they are recorded in step metadata.
// A zero Usage yields an empty map.
func (u Usage) Map() map[string]any {
	if u == (Usage{}) {
		return map[string]any{}
	}
	return map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
	}
}

// Response is a provider-independent completion result.
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        Usage      `json:"usage"`
}

// Provider is an LLM backend.
type Provider interface {
	Name() string
	DefaultModel() string
	// IsAvailable reports whether a credential is configured.
	IsAvailable() bool
	Complete(ctx context.Context, req Request) (*Response, error)
}
