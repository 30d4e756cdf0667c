// Package types provides the core value types shared across the agent
// runtime. This package has ZERO dependencies on other agentcore packages
// so that every other package can depend on it without risking an import
// cycle.
package types

import (
	"encoding/json"
	"time"
)

// Role identifies the participant that produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
	RoleTool      Role = "tool"
)

// ToolCall represents a single structured tool/function invocation
// requested by an LLM response.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// FunctionCall is the legacy single-call shape some providers still emit;
// kept distinct from ToolCall so a provider adapter can surface either
// without the core caring which wire shape produced it.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry in a conversation's message log.
type Message struct {
	Role         Role           `json:"role"`
	Content      string         `json:"content,omitempty"`
	Name         string         `json:"name,omitempty"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID   string         `json:"tool_call_id,omitempty"`
	FunctionCall *FunctionCall  `json:"function_call,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp,omitempty"`
}

// NewMessage creates a message with the given role and content, stamped
// with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

func NewSystemMessage(content string) Message    { return NewMessage(RoleSystem, content) }
func NewUserMessage(content string) Message      { return NewMessage(RoleUser, content) }
func NewAssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// NewToolMessage creates a tool-result message referencing the call it answers.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       name,
		ToolCallID: toolCallID,
		Timestamp:  time.Now(),
	}
}

// WithToolCalls attaches tool calls to an assistant message.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

// WithMetadata attaches arbitrary metadata to a message.
func (m Message) WithMetadata(metadata map[string]any) Message {
	m.Metadata = metadata
	return m
}
