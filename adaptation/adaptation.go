// Package adaptation implements a manual-trigger rule engine over
// recorded feedback. Grounded on
// original_source/src/agent/ai/adaptation_engine.py's FeedbackEntry/
// AdaptationRule shapes, reduced to the resolved Open Question in
// SPEC_FULL.md §11: adaptation only runs when explicitly triggered, never
// on a background timer — the original's continuous
// ModelPerformanceTracker/FeedbackAnalyzer trend analysis is out of
// scope, since spec.md never names a live performance-monitoring loop.
package adaptation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/persistence"
)

// Engine evaluates persisted rules against recorded feedback on demand.
type Engine struct {
	store  persistence.Store
	logger *zap.Logger

	mu    sync.Mutex
	rules []persistence.Rule
}

// New loads rules from store at construction time (spec.md §9's
// "loads rules at startup").
func New(store persistence.Store, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rules, err := store.LoadRules()
	if err != nil {
		return nil, fmt.Errorf("adaptation: load rules: %w", err)
	}
	return &Engine{store: store, logger: logger.With(zap.String("component", "adaptation")), rules: rules}, nil
}

// RecordFeedback persists one feedback entry for later rule evaluation.
func (e *Engine) RecordFeedback(taskType, outcome, detail string, metadata map[string]any) error {
	f := persistence.Feedback{
		ID:        uuid.NewString(),
		TaskType:  taskType,
		Outcome:   outcome,
		Detail:    detail,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	return e.store.SaveFeedback(f)
}

// AddRule registers a rule and persists the updated set.
func (e *Engine) AddRule(rule persistence.Rule) error {
	e.mu.Lock()
	e.rules = append(e.rules, rule)
	rules := append([]persistence.Rule(nil), e.rules...)
	e.mu.Unlock()

	return e.store.SaveRules(rules)
}

// AppliedAdaptation is the result of matching one rule during Trigger.
type AppliedAdaptation struct {
	RuleID string
	Action string
	Result string
}

// Trigger evaluates every enabled rule against taskType/outcome and
// applies each rule that matches, recording each application to the
// adaptation history. Rules are applied only when Trigger is called —
// there is no background loop (spec.md §9 Open Question: manual trigger
// only).
func (e *Engine) Trigger(taskType, outcome string) ([]AppliedAdaptation, error) {
	e.mu.Lock()
	rules := append([]persistence.Rule(nil), e.rules...)
	e.mu.Unlock()

	var applied []AppliedAdaptation
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !ruleMatches(rule, taskType, outcome) {
			continue
		}

		record := persistence.AdaptationRecord{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			Action:    rule.Action,
			AppliedAt: time.Now(),
			Result:    "applied",
		}
		if err := e.store.AppendAdaptation(record); err != nil {
			e.logger.Warn("failed to record applied adaptation", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}

		applied = append(applied, AppliedAdaptation{RuleID: rule.ID, Action: rule.Action, Result: record.Result})
	}
	return applied, nil
}

// History returns the full applied-adaptation log.
func (e *Engine) History() ([]persistence.AdaptationRecord, error) {
	return e.store.LoadAdaptationHistory()
}

// ruleMatches interprets Rule.Trigger as "task_type" or
// "task_type:outcome" — a condition string format simple enough to
// express as structured YAML/JSON rather than the original's free-form
// Python condition expressions, which this core never evaluates.
func ruleMatches(rule persistence.Rule, taskType, outcome string) bool {
	parts := strings.SplitN(rule.Trigger, ":", 2)
	if parts[0] != "" && parts[0] != taskType {
		return false
	}
	if len(parts) == 2 && parts[1] != outcome {
		return false
	}
	return true
}
