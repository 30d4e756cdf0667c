package adaptation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/persistence"
)

func TestRecordFeedbackPersists(t *testing.T) {
	store := persistence.NewJSONStore(t.TempDir(), nil)
	engine, err := New(store, nil)
	require.NoError(t, err)

	require.NoError(t, engine.RecordFeedback("llm_query", "failure", "timed out", nil))
}

func TestTriggerAppliesMatchingRuleOnly(t *testing.T) {
	store := persistence.NewJSONStore(t.TempDir(), nil)
	engine, err := New(store, nil)
	require.NoError(t, err)

	require.NoError(t, engine.AddRule(persistence.Rule{ID: "r1", Trigger: "llm_query:failure", Action: "lower_priority", Enabled: true}))
	require.NoError(t, engine.AddRule(persistence.Rule{ID: "r2", Trigger: "file_operation:failure", Action: "require_approval", Enabled: true}))

	applied, err := engine.Trigger("llm_query", "failure")
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "r1", applied[0].RuleID)
}

func TestTriggerSkipsDisabledRules(t *testing.T) {
	store := persistence.NewJSONStore(t.TempDir(), nil)
	engine, err := New(store, nil)
	require.NoError(t, err)

	require.NoError(t, engine.AddRule(persistence.Rule{ID: "r1", Trigger: "llm_query:failure", Action: "lower_priority", Enabled: false}))

	applied, err := engine.Trigger("llm_query", "failure")
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestHistoryReflectsAppliedAdaptations(t *testing.T) {
	store := persistence.NewJSONStore(t.TempDir(), nil)
	engine, err := New(store, nil)
	require.NoError(t, err)
	require.NoError(t, engine.AddRule(persistence.Rule{ID: "r1", Trigger: "llm_query", Action: "lower_priority", Enabled: true}))

	_, err = engine.Trigger("llm_query", "failure")
	require.NoError(t, err)

	history, err := engine.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "r1", history[0].RuleID)
}
