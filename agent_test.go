package agentcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/conversation"
	"github.com/BaSui01/agentcore/llmmanager"
	"github.com/BaSui01/agentcore/resilience/retry"
	"github.com/BaSui01/agentcore/types"
)

func echoLLM(t *testing.T) *llmmanager.Manager {
	t.Helper()
	cfg := llmmanager.DefaultConfig()
	cfg.ProbeInterval = 0
	cfg.RetryPolicy = &retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond}
	m := llmmanager.New(cfg, nil)
	m.Register(llmmanager.NewLocalProvider("echo", func(_ context.Context, req *llmmanager.ChatRequest) (types.Message, error) {
		last := req.Messages[len(req.Messages)-1]
		return types.NewAssistantMessage("echo: " + last.Content), nil
	}, []string{"tool_calling", "code"}, true, nil))
	return m
}

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := New(context.Background(), nil, Dependencies{LLM: echoLLM(t)})
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

const researchPrompt = "please research and explain best practices"

func TestAgent_Process_ExecuteNowCompletesSynchronously(t *testing.T) {
	a := newTestAgent(t)

	resp, err := a.Process(context.Background(), &Request{Content: researchPrompt})
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	assert.Contains(t, resp.Content, "echo: ")
	assert.Equal(t, "echo", resp.Provider)
}

func TestAgent_Process_EmptyContentRejected(t *testing.T) {
	a := newTestAgent(t)

	_, err := a.Process(context.Background(), &Request{Content: ""})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

func TestAgent_Process_UnclassifiableTextDefaultsToHybridApproval(t *testing.T) {
	a := newTestAgent(t)

	// No category keyword scores >= 0.3 for a single bare token, so the
	// router falls back to CategoryHybrid, whose base complexity (4) alone
	// crosses the approval threshold.
	resp, err := a.Process(context.Background(), &Request{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "pending_approval", resp.Status)
}

func TestAgent_Process_DestructiveRequestNeedsApproval(t *testing.T) {
	a := newTestAgent(t)

	resp, err := a.Process(context.Background(), &Request{Content: "please delete the temp folder now"})
	require.NoError(t, err)
	assert.Equal(t, "pending_approval", resp.Status)
	assert.NotEmpty(t, resp.ApprovalID)
}

func TestAgent_Approve_SubmitsQueuedTask(t *testing.T) {
	a := newTestAgent(t)

	resp, err := a.Process(context.Background(), &Request{Content: "please delete the temp folder now"})
	require.NoError(t, err)
	require.Equal(t, "pending_approval", resp.Status)

	approved, err := a.Approve(context.Background(), resp.ApprovalID, true)
	require.NoError(t, err)
	assert.Equal(t, "queued", approved.Status)
	assert.NotEmpty(t, approved.TaskID)

	_, err = a.Approve(context.Background(), resp.ApprovalID, true)
	assert.Error(t, err)
}

func TestAgent_Approve_Rejected(t *testing.T) {
	a := newTestAgent(t)

	resp, err := a.Process(context.Background(), &Request{Content: "please delete the temp folder now"})
	require.NoError(t, err)

	declined, err := a.Approve(context.Background(), resp.ApprovalID, false)
	require.NoError(t, err)
	assert.Equal(t, "rejected", declined.Status)
}

func TestAgent_ProvideContext_SubmitsQueuedTask(t *testing.T) {
	a := newTestAgent(t)

	resp, err := a.Process(context.Background(), &Request{Content: "please read this file"})
	require.NoError(t, err)
	require.Equal(t, "pending_context", resp.Status)
	require.NotEmpty(t, resp.MissingContext)

	done, err := a.ProvideContext(context.Background(), resp.ContextID, map[string]any{"target": "payments-service"})
	require.NoError(t, err)
	assert.Equal(t, "queued", done.Status)
	assert.NotEmpty(t, done.TaskID)
}

func TestAgent_CreateAndEndSession(t *testing.T) {
	a := newTestAgent(t)

	convID := a.CreateSession("demo")
	require.NotEmpty(t, convID)

	_, err := a.Process(context.Background(), &Request{
		Content:  researchPrompt,
		Metadata: map[string]any{"conversation_id": convID},
	})
	require.NoError(t, err)

	require.NoError(t, a.EndSession("demo", convID))
}

func TestAgent_SearchConversations_RanksTitleMatchFirst(t *testing.T) {
	a := newTestAgent(t)
	titled := a.CreateSession("project apollo kickoff")
	other := a.CreateSession("unrelated")
	_, err := a.conversations.AddMessage(context.Background(), other, types.NewUserMessage("mentions apollo here"), conversation.MessageMeta{})
	require.NoError(t, err)

	results := a.SearchConversations("apollo", 10)
	require.Len(t, results, 2)
	assert.Equal(t, titled, results[0].ConversationID)
}

func TestAgent_ExportConversation_RoundTripsJSON(t *testing.T) {
	a := newTestAgent(t)
	convID := a.CreateSession("export me")
	_, err := a.conversations.AddMessage(context.Background(), convID, types.NewUserMessage("hi"), conversation.MessageMeta{})
	require.NoError(t, err)

	out, err := a.ExportConversation(convID, conversation.ExportJSON)
	require.NoError(t, err)
	assert.Contains(t, out, "export me")
	assert.Contains(t, out, "hi")
}

func TestAgent_Status_ReportsQueueAndProviderState(t *testing.T) {
	a := newTestAgent(t)

	status := a.Status()
	assert.Contains(t, status, "queue_depth")
	assert.Contains(t, status, "providers")
}

func TestAgent_GetTaskStatusUnknown(t *testing.T) {
	a := newTestAgent(t)

	_, ok := a.GetTaskStatus("does-not-exist")
	assert.False(t, ok)
}

func TestAgent_ProcessStream_ExecuteNowStreamsThenClosesChannel(t *testing.T) {
	a := newTestAgent(t)

	out, err := a.ProcessStream(context.Background(), &Request{Content: researchPrompt})
	require.NoError(t, err)

	var last StreamChunk
	for chunk := range out {
		last = chunk
	}
	assert.True(t, last.Done)
	assert.Contains(t, last.Delta.Content, "echo: ")
}

func TestAgent_ProcessStream_RejectedYieldsSingleDoneChunk(t *testing.T) {
	a := newTestAgent(t)

	out, err := a.ProcessStream(context.Background(), &Request{Content: "x"})
	require.NoError(t, err)

	n := 0
	for chunk := range out {
		n++
		assert.True(t, chunk.Done)
	}
	assert.Equal(t, 1, n)
}

func TestIsMCPTaskType(t *testing.T) {
	assert.True(t, isMCPTaskType("file_operation"))
	assert.True(t, isMCPTaskType("system_operation"))
	assert.True(t, isMCPTaskType("desktop_operation"))
	assert.False(t, isMCPTaskType("hybrid"))
	assert.False(t, isMCPTaskType("llm_query"))
}

func TestMissingContext(t *testing.T) {
	missing := missingContext(map[string]any{"target": "x"})
	assert.ElementsMatch(t, []string{"scope", "reference"}, missing)

	assert.Empty(t, missingContext(map[string]any{"target": "x", "scope": "y", "reference": "z"}))
}

func TestTrimToTokenBudget_DropsOldestNonSystemMessagesFirst(t *testing.T) {
	messages := []types.Message{types.NewSystemMessage("sys")}
	for i := 0; i < 20; i++ {
		messages = append(messages, types.NewUserMessage("this is a reasonably long filler message to burn through the token budget"))
	}
	trimmed := trimToTokenBudget(messages, 40)

	assert.Less(t, len(trimmed), len(messages))
	assert.Equal(t, messages[0], trimmed[0])
	assert.Equal(t, messages[len(messages)-1], trimmed[len(trimmed)-1])
}

func TestTrimToTokenBudget_NoopUnderBudget(t *testing.T) {
	messages := []types.Message{types.NewSystemMessage("sys"), types.NewUserMessage("hi")}
	assert.Equal(t, messages, trimToTokenBudget(messages, 10000))
}
