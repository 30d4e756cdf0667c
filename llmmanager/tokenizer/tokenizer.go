// Package tokenizer provides model-aware token counting for llmmanager: an
// exact tiktoken-backed counter for OpenAI-family models, and a CJK-aware
// estimator for everything else.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/BaSui01/agentcore/types"
)

// Tokenizer is the model-aware counting contract. Unlike types.Tokenizer
// (which never fails), this one can error — a tiktoken encoding fetch can
// fail on first use.
type Tokenizer interface {
	CountTokens(text string) (int, error)
	CountMessages(messages []types.Message) (int, error)
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
	MaxTokens() int
	Name() string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Tokenizer)
)

// Register associates a Tokenizer with a model name.
func Register(model string, t Tokenizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[model] = t
}

// Get returns the tokenizer registered for model, trying the longest
// registered prefix match before giving up (so "gpt-4o-2024-08-06"
// resolves via "gpt-4o").
func Get(model string) (Tokenizer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if t, ok := registry[model]; ok {
		return t, nil
	}
	var best Tokenizer
	bestLen := -1
	for prefix, t := range registry {
		if len(prefix) > bestLen && len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best, nil
	}
	return nil, fmt.Errorf("no tokenizer registered for model %q", model)
}

// GetOrEstimate returns the registered tokenizer for model, falling back to
// a dependency-free estimator when none is registered.
func GetOrEstimate(model string) Tokenizer {
	if t, err := Get(model); err == nil {
		return t
	}
	return NewEstimator(model, 0)
}
