package llmmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/types"
)

func TestLocalProvider_Completion_EstimatesUsage(t *testing.T) {
	p := NewLocalProvider("echo", func(_ context.Context, req *ChatRequest) (types.Message, error) {
		return types.NewAssistantMessage("hello there"), nil
	}, []string{"tool_calling"}, true, nil)

	resp, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Greater(t, resp.Usage.PromptTokens, 0)
	assert.Greater(t, resp.Usage.CompletionTokens, 0)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestLocalProvider_Stream_SynthesizesSingleChunk(t *testing.T) {
	p := NewLocalProvider("echo", func(_ context.Context, req *ChatRequest) (types.Message, error) {
		return types.NewAssistantMessage("reply"), nil
	}, []string{"tool_calling"}, true, nil)

	ch, err := p.Stream(context.Background(), &ChatRequest{Messages: []types.Message{types.NewUserMessage("hi")}})
	require.NoError(t, err)

	chunk, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "reply", chunk.Delta.Content)

	_, ok = <-ch
	assert.False(t, ok)
}
