package types

// TokenUsage records token consumption for a single completion call.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

// Tokenizer is the framework-level, Message-aware token counting contract.
// llmmanager/tokenizer implements a second, provider-model-aware Tokenizer
// that wraps tiktoken-go; the two are kept distinct because the lower-level
// one here must not import llmmanager (it would cycle), and it never
// returns an error since character-estimate counting cannot fail.
type Tokenizer interface {
	CountTokens(text string) int
	CountMessageTokens(msg Message) int
	CountMessagesTokens(msgs []Message) int
	EstimateToolTokens(tools []ToolSchema) int
}

// EstimateTokenizer is a dependency-free fallback tokenizer used wherever a
// real tokenizer hasn't been wired in (tests, offline tooling). It weighs
// CJK characters separately from the default heuristic since treating them
// as 4-chars-per-token badly undercounts.
type EstimateTokenizer struct {
	charsPerToken float64
	msgOverhead   int
}

func NewEstimateTokenizer() *EstimateTokenizer {
	return &EstimateTokenizer{charsPerToken: 4.0, msgOverhead: 4}
}

func (t *EstimateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjkCount, otherCount int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjkCount++
		} else {
			otherCount++
		}
	}
	tokens := float64(cjkCount)/1.5 + float64(otherCount)/t.charsPerToken
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}

func (t *EstimateTokenizer) CountMessageTokens(msg Message) int {
	tokens := t.msgOverhead
	tokens += t.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += t.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += t.CountTokens(tc.Name)
		tokens += len(tc.Arguments) / 4
	}
	return tokens
}

func (t *EstimateTokenizer) CountMessagesTokens(msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}

func (t *EstimateTokenizer) EstimateToolTokens(tools []ToolSchema) int {
	total := 0
	for _, tool := range tools {
		total += t.CountTokens(tool.Name)
		total += t.CountTokens(tool.Description)
		total += len(tool.Parameters) / 4
		total += 10
	}
	return total
}
