package conversation

import (
	"context"
	"strings"

	"github.com/BaSui01/agentcore/llmmanager"
	"github.com/BaSui01/agentcore/types"
)

// Completer is the narrow slice of llmmanager.Manager a Summarizer needs,
// kept as an interface so conversation never depends on llmmanager's
// provider registration surface.
type Completer interface {
	Completion(ctx context.Context, req *llmmanager.ChatRequest) (*llmmanager.ChatResponse, error)
}

// LLMSummarizer implements Summarizer over a Completer using the fixed
// summarisation prompt spec.md §4.D calls for.
type LLMSummarizer struct {
	completer Completer
	model     string
}

func NewLLMSummarizer(completer Completer, model string) *LLMSummarizer {
	return &LLMSummarizer{completer: completer, model: model}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, messages []types.Message) (string, []string, error) {
	req := &llmmanager.ChatRequest{
		Model: s.model,
		Messages: []types.Message{
			types.NewSystemMessage(fixedSummarizationPrompt),
			types.NewUserMessage(formatMessagesForSummary(messages)),
		},
	}

	resp, err := s.completer.Completion(ctx, req)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, nil
	}

	return splitSummaryAndKeyPoints(resp.Choices[0].Message.Content)
}

func splitSummaryAndKeyPoints(text string) (string, []string, error) {
	lines := strings.Split(text, "\n")
	var summaryLines []string
	var keyPoints []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") {
			keyPoints = append(keyPoints, strings.TrimPrefix(trimmed, "- "))
			continue
		}
		if trimmed != "" {
			summaryLines = append(summaryLines, trimmed)
		}
	}

	return strings.Join(summaryLines, " "), keyPoints, nil
}
