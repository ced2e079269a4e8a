// Package provider abstracts the chat models the agent loop can run on.
// Every provider speaks the same message/tool-call shapes; the orchestrator
// never sees a vendor API.
package provider

import (
	"context"
)

// Message is one turn of a model conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool result messages
}

// ToolDefinition declares one callable tool to the model. Parameters is a
// JSON-schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is the model asking for one tool invocation. Args is the raw JSON
// argument object as the model emitted it.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// Response is the model's reply to one Chat call.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage is the token accounting of one Chat call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across the turns of one run.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Provider defines the interface for chat model interactions.
type Provider interface {
	// Chat sends a conversation plus the available tools to the model and
	// returns its reply, which may request tool calls.
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)

	// Name returns the provider identifier (e.g., "openai", "stub").
	Name() string
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)
