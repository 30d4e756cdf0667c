package agentcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/llmmanager"
	"github.com/BaSui01/agentcore/orchestrator"
	"github.com/BaSui01/agentcore/reasoning"
	"github.com/BaSui01/agentcore/types"
)

// handleLLMQuery is the orchestrator.Handler registered under task type
// "llm_query" (spec.md §4.G). It reaches back into the conversation the
// task was submitted from, if any, so a queued chat turn still gets its
// reply appended to the log the same way the EXECUTE_NOW path does.
func (a *Agent) handleLLMQuery(ctx context.Context, task *orchestrator.Task) (any, error) {
	convID, _ := task.Context["conversation_id"].(string)

	var messages []types.Message
	if convID != "" {
		msgs, err := a.buildMessages(convID, ModeTask, task.Description)
		if err != nil {
			return nil, err
		}
		messages = msgs
	} else {
		messages = []types.Message{types.NewUserMessage(task.Description)}
	}

	req := &llmmanager.ChatRequest{Messages: messages}
	if codeKeywordPattern.MatchString(task.Description) {
		req.RequiredCapabilities = append(req.RequiredCapabilities, "code")
	}

	resp, err := a.llm.Completion(ctx, req)
	if err != nil {
		return nil, err
	}

	if convID != "" && len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if appendErr := a.appendAssistantReply(ctx, convID, choice.Message.Content, resp.Provider, resp.Model, choice.Message.ToolCalls, resp.Usage); appendErr != nil {
			a.logger.Warn("failed to append queued task reply", zap.String("task_id", task.ID), zap.Error(appendErr))
		}
	}
	return resp, nil
}

// handleMCPTask backs the "file_operation" / "system_operation" /
// "desktop_operation" task types (spec.md §4.G): dispatch to the MCP pool
// with requirements.operation + requirements.parameters. client defaults
// to the task type itself when requirements.client is absent, since a
// caller submitting a single-server setup has no reason to repeat it.
func (a *Agent) handleMCPTask(ctx context.Context, task *orchestrator.Task) (any, error) {
	if a.mcp == nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "mcp pool not configured").WithRetryable(false)
	}

	client, _ := task.Requirements["client"].(string)
	if client == "" {
		client = task.TaskType
	}
	op, _ := task.Requirements["operation"].(string)
	if op == "" {
		op = "execute"
	}
	params, _ := task.Requirements["parameters"].(map[string]any)

	return a.mcp.ExecuteTool(ctx, client, op, params)
}

// handleAnalysis and handleHybrid are the "placeholder pipelines that may
// enqueue further LLM and MCP calls" spec.md §4.G names for the analysis
// and hybrid task types — here, one reasoning pipeline pass each, using
// the pattern that best matches the task type's intent.
func (a *Agent) handleAnalysis(ctx context.Context, task *orchestrator.Task) (any, error) {
	return a.reasoner.Run(ctx, reasoning.PatternCausalAnalysis, task.Description)
}

func (a *Agent) handleHybrid(ctx context.Context, task *orchestrator.Task) (any, error) {
	return a.reasoner.Run(ctx, reasoning.PatternChainOfThought, task.Description)
}
