// Package reasoning implements the reasoning pipeline the Agent Facade
// invokes for Mode = REASONING or ANALYSIS (spec.md §4.H). Grounded on
// agent/reasoning/patterns.go's ReasoningPattern/PatternRegistry shape,
// reduced from that file's full tree-search patterns (Tree-of-Thought,
// ReAct with tool loops, reflection/backtracking) to three fixed
// prompt-construction templates — spec.md §1 treats reasoning "modes" as
// prompt-construction strategies and fixes only their contract, not their
// wording, so the tree-search machinery has no contract to fulfil here.
package reasoning

import (
	"context"
	"strings"

	"github.com/BaSui01/agentcore/llmmanager"
	"github.com/BaSui01/agentcore/types"
)

// Pattern names the prompt-construction strategy a Run call used.
type Pattern string

const (
	PatternChainOfThought   Pattern = "chain_of_thought"
	PatternLogicalDeduction Pattern = "logical_deduction"
	PatternCausalAnalysis   Pattern = "causal_analysis"
)

// Result is the outcome of one reasoning pipeline invocation. Conclusion is
// what the facade folds into (or appends to) the response content
// (spec.md §4.H).
type Result struct {
	Pattern    Pattern          `json:"pattern"`
	Steps      []string         `json:"steps"`
	Conclusion string           `json:"conclusion"`
	Usage      types.TokenUsage `json:"usage"`
}

// Completer is the narrow slice of llmmanager.Manager the reasoning engine
// needs — mirrors conversation.Completer so neither package couples to the
// other beyond llmmanager's request/response shapes.
type Completer interface {
	Completion(ctx context.Context, req *llmmanager.ChatRequest) (*llmmanager.ChatResponse, error)
}

// Engine runs a fixed prompt template through a Completer and parses the
// step/conclusion structure back out of the reply.
type Engine struct {
	completer Completer
}

func New(completer Completer) *Engine {
	return &Engine{completer: completer}
}

// templates maps a Pattern to the instruction prefixed onto the task text.
var templates = map[Pattern]string{
	PatternChainOfThought: "Think through this step by step, one short line per step prefixed \"Step N:\". " +
		"Finish with a line starting \"Conclusion:\" giving your final answer.\n\nTask: ",
	PatternLogicalDeduction: "Identify the premises relevant to this task, state each as a line prefixed " +
		"\"Premise:\", then derive the answer. Finish with a line starting \"Conclusion:\".\n\nTask: ",
	PatternCausalAnalysis: "Analyse the causes and effects at play, one line per factor prefixed \"Factor:\". " +
		"Finish with a line starting \"Conclusion:\" naming the most likely outcome.\n\nTask: ",
}

// Run invokes pattern's template against task via the wired Completer and
// parses the reply into steps + a conclusion. If no line is prefixed
// "Conclusion:", the last non-empty line (which also stays in Steps)
// becomes the conclusion.
func (e *Engine) Run(ctx context.Context, pattern Pattern, task string) (*Result, error) {
	prompt, ok := templates[pattern]
	if !ok {
		prompt = templates[PatternChainOfThought]
		pattern = PatternChainOfThought
	}

	req := &llmmanager.ChatRequest{
		Messages: []types.Message{types.NewUserMessage(prompt + task)},
	}
	resp, err := e.completer.Completion(ctx, req)
	if err != nil {
		return nil, err
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	steps, conclusion := parseReply(content)
	return &Result{Pattern: pattern, Steps: steps, Conclusion: conclusion, Usage: resp.Usage}, nil
}

// ForMode maps the facade's request Mode to the pattern the pipeline runs —
// REASONING gets chain-of-thought, ANALYSIS gets causal analysis
// (spec.md §4.H names both modes but leaves the mapping as an
// implementation detail).
func ForMode(mode string) Pattern {
	if mode == "analysis" {
		return PatternCausalAnalysis
	}
	return PatternChainOfThought
}

func parseReply(content string) (steps []string, conclusion string) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := cutPrefixFold(line, "conclusion:"); ok {
			conclusion = strings.TrimSpace(rest)
			continue
		}
		steps = append(steps, line)
	}
	if conclusion == "" && len(steps) > 0 {
		conclusion = steps[len(steps)-1]
	}
	return steps, conclusion
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
