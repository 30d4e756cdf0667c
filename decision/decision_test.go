package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/router"
)

func idleSnapshot() SystemSnapshot {
	return SystemSnapshot{MaxConcurrentTasks: 10}
}

func TestRejectOnLowConfidence(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.2}
	d := e.Decide("llm_query", routing, nil, idleSnapshot())
	assert.Equal(t, VerdictReject, d.Verdict)
}

func TestRequestApprovalForDestructive(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.9, RequiresApproval: true, Category: router.CategoryFileOps, Strategy: router.StrategyMCPOnly}
	d := e.Decide("file_operation", routing, nil, idleSnapshot())
	require.Equal(t, VerdictRequestApproval, d.Verdict)
	assert.NotEmpty(t, d.ApprovalID)
}

func TestApproveIdempotentRejectionThenApprove(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.9, RequiresApproval: true}
	d := e.Decide("file_operation", routing, nil, idleSnapshot())

	_, ok := e.Approve(d.ApprovalID, false)
	assert.False(t, ok)

	_, ok = e.Approve(d.ApprovalID, true)
	assert.False(t, ok, "approval id already resolved by rejection")
}

func TestApproveThenExecute(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.9, RequiresApproval: true}
	d := e.Decide("file_operation", routing, nil, idleSnapshot())

	approved, ok := e.Approve(d.ApprovalID, true)
	require.True(t, ok)
	assert.Equal(t, VerdictExecuteNow, approved.Verdict)
}

func TestGatherContextWhenMissing(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.9, RequiresContext: true}
	d := e.Decide("llm_query", routing, []string{"current_file"}, idleSnapshot())
	assert.Equal(t, VerdictGatherContext, d.Verdict)
	assert.Equal(t, []string{"current_file"}, d.MissingContext)
}

func TestDecomposeOnHybridStrategy(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.9, Strategy: router.StrategyMultiStep, Category: router.CategoryHybrid}
	d := e.Decide("hybrid", routing, nil, idleSnapshot())
	require.Equal(t, VerdictDecompose, d.Verdict)
	assert.GreaterOrEqual(t, len(d.ChildTasks), 2)
}

func TestQueueWhenBusyAndComplex(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.9, EstimatedComplexity: 3}
	snap := SystemSnapshot{MaxConcurrentTasks: 10, ActiveCount: 9} // 0.9 > 0.8 busy
	d := e.Decide("llm_query", routing, nil, snap)
	assert.Equal(t, VerdictQueue, d.Verdict)
	assert.Equal(t, "LOW", d.ForcedPriority)
}

func TestExecuteNowOnIdleSystem(t *testing.T) {
	e := New()
	routing := router.RoutingDecision{Confidence: 0.9, EstimatedComplexity: 1}
	d := e.Decide("llm_query", routing, nil, idleSnapshot())
	assert.Equal(t, VerdictExecuteNow, d.Verdict)
}
