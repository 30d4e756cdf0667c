package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/agentcore/types"
)

// Tiktoken wraps github.com/pkoukk/tiktoken-go for exact token counting
// against OpenAI-family models.
type Tiktoken struct {
	model     string
	encoding  string
	maxTokens int

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

type modelInfo struct {
	encoding  string
	maxTokens int
}

var modelEncodings = map[string]modelInfo{
	"gpt-4o":        {"o200k_base", 128000},
	"gpt-4o-mini":   {"o200k_base", 128000},
	"gpt-4-turbo":   {"cl100k_base", 128000},
	"gpt-4":         {"cl100k_base", 8192},
	"gpt-3.5-turbo": {"cl100k_base", 16385},
}

// NewTiktoken creates a tokenizer for model, falling back to cl100k_base
// when the model isn't in the known table.
func NewTiktoken(model string) *Tiktoken {
	info, ok := modelEncodings[model]
	if !ok {
		for prefix, i := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				info, ok = i, true
				break
			}
		}
	}
	if !ok {
		info = modelInfo{"cl100k_base", 8192}
	}
	return &Tiktoken{model: model, encoding: info.encoding, maxTokens: info.maxTokens}
}

// RegisterOpenAIModels registers a Tiktoken tokenizer for every known model.
func RegisterOpenAIModels() {
	for model := range modelEncodings {
		Register(model, NewTiktoken(model))
	}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// CountMessages accounts for the fixed per-message overhead
// (<|start|>role\ncontent<|end|>\n) on top of the raw content and role
// token counts, plus a fixed conversation-end overhead.
func (t *Tiktoken) CountMessages(messages []types.Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	total := 0
	for _, msg := range messages {
		total += 4
		total += len(t.enc.Encode(msg.Content, nil, nil))
		total += len(t.enc.Encode(string(msg.Role), nil, nil))
	}
	return total + 3, nil
}

func (t *Tiktoken) Encode(text string) ([]int, error) {
	if err := t.init(); err != nil {
		return nil, err
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *Tiktoken) Decode(tokens []int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	return t.enc.Decode(tokens), nil
}

func (t *Tiktoken) MaxTokens() int { return t.maxTokens }
func (t *Tiktoken) Name() string   { return fmt.Sprintf("tiktoken[%s]", t.encoding) }
