// Package llmmanager implements the multi-provider LLM layer: a Provider
// adapter contract, health-aware selection across registered providers, and
// a Manager that wraps every call in retry + circuit-breaker protection.
package llmmanager

import (
	"context"
	"time"

	"github.com/BaSui01/agentcore/types"
)

// Provider is the adapter contract every LLM backend implements. Concrete
// vendor wire protocols (OpenAI, Anthropic, Gemini, Ollama, ...) are out of
// scope for this module — callers register their own Provider
// implementations; llmmanager owns selection, health tracking, retry and
// fallback only.
type Provider interface {
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
	Name() string
	SupportsNativeFunctionCalling() bool
	Capabilities() []string
}

// HealthStatus is the result of a single provider health probe.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	ErrorRate float64       `json:"error_rate"`
}

// ChatRequest is a provider-agnostic completion request.
type ChatRequest struct {
	TraceID     string            `json:"trace_id"`
	Model       string            `json:"model"`
	Messages    []types.Message   `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// RequiredCapabilities, when non-empty, restricts candidate selection to
	// providers advertising every named capability, under every routing
	// strategy — e.g. "vision", "tool_calling", "json_mode".
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// PreferredProvider, when set and healthy, short-circuits selection to
	// it ahead of the configured RoutingStrategy (spec.md §4.B selection
	// rule 1). Ignored if the named provider isn't registered or its
	// breaker is open — selection falls through to the strategy as usual.
	PreferredProvider string `json:"preferred_provider,omitempty"`
}

// ChatResponse is a provider-agnostic completion response.
type ChatResponse struct {
	ID        string          `json:"id,omitempty"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Choices   []ChatChoice    `json:"choices"`
	Usage     types.TokenUsage `json:"usage"`
	CreatedAt time.Time       `json:"created_at"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

// StreamChunk is one increment of a streaming completion.
type StreamChunk struct {
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	Index        int           `json:"index,omitempty"`
	Delta        types.Message `json:"delta"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Err          *types.Error  `json:"error,omitempty"`
}
