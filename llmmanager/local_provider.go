package llmmanager

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

// Responder produces the assistant reply for a LocalProvider completion.
// Concrete vendor wire protocols are out of scope for this module; a caller
// who wants a real backend supplies a Responder that does the HTTP call and
// registers the resulting LocalProvider, following the same
// constructor/Name/HealthCheck shape the teacher's per-vendor adapters use.
type Responder func(ctx context.Context, req *ChatRequest) (types.Message, error)

// LocalProvider is the reference Provider implementation: it delegates the
// actual completion to a Responder func, so it can back either an
// in-process echo/test agent or a thin wrapper around a real HTTP client
// without llmmanager needing to know which.
type LocalProvider struct {
	name         string
	responder    Responder
	capabilities []string
	nativeTools  bool
	logger       *zap.Logger
}

// NewLocalProvider constructs a Provider named name, delegating completions
// to responder.
func NewLocalProvider(name string, responder Responder, capabilities []string, nativeTools bool, logger *zap.Logger) *LocalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalProvider{
		name:         name,
		responder:    responder,
		capabilities: capabilities,
		nativeTools:  nativeTools,
		logger:       logger.With(zap.String("provider", name)),
	}
}

func (p *LocalProvider) Name() string                        { return p.name }
func (p *LocalProvider) SupportsNativeFunctionCalling() bool  { return p.nativeTools }
func (p *LocalProvider) Capabilities() []string               { return p.capabilities }

func (p *LocalProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	msg, err := p.responder(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Provider:  p.name,
		Model:     req.Model,
		CreatedAt: time.Now(),
		Choices: []ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      msg,
		}},
		Usage: estimateUsage(req.Messages, msg),
	}, nil
}

// estimateUsage fills in prompt/completion token counts for a Responder that
// has no real usage accounting of its own — a Responder wrapping a vendor
// HTTP client would report the vendor's own numbers here instead.
func estimateUsage(prompt []types.Message, reply types.Message) types.TokenUsage {
	counter := types.NewEstimateTokenizer()
	promptTokens := counter.CountMessagesTokens(prompt)
	completionTokens := counter.CountMessageTokens(reply)
	return types.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// Stream synthesizes a single-chunk stream from the Responder's full reply;
// a real streaming backend would replace this with incremental deltas.
func (p *LocalProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	msg, err := p.responder(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Provider: p.name, Model: req.Model, Delta: msg, FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (p *LocalProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	_, err := p.responder(ctx, &ChatRequest{Model: "health-check", Messages: []types.Message{types.NewUserMessage("ping")}})
	if err != nil {
		return &HealthStatus{Healthy: false}, err
	}
	return &HealthStatus{Healthy: true, Latency: time.Since(start)}, nil
}
