// Package decision implements the Decision Engine: it combines a Task, the
// Task Router's verdict, and a live system snapshot into an execution
// Verdict — execute now, queue, require approval, gather context,
// decompose, or reject.
//
// Grounded on the verdict-ordering style of llm/router/router.go's Select
// (an ordered chain of candidate filters, first match wins) and on
// workflow/routing.go for the "route to a named handler" shape generalized
// here into "route to a named Verdict". The two pending-request maps
// (approvals, context requests) follow the single-mutex-per-resource
// discipline spec.md §5 calls out for Decision Engine state.
package decision

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/BaSui01/agentcore/router"
)

// Verdict is the Decision Engine's closed outcome set.
type Verdict string

const (
	VerdictExecuteNow       Verdict = "EXECUTE_NOW"
	VerdictQueue            Verdict = "QUEUE"
	VerdictRequestApproval  Verdict = "REQUEST_APPROVAL"
	VerdictDecompose        Verdict = "DECOMPOSE"
	VerdictGatherContext    Verdict = "GATHER_CONTEXT"
	VerdictReject           Verdict = "REJECT"
)

// ChildTaskSpec describes one task a DECOMPOSE verdict produces; the
// orchestrator turns these into real Task values with fresh ids.
type ChildTaskSpec struct {
	TaskType    string
	Description string
}

// ExecutionDecision is the engine's pure output value.
type ExecutionDecision struct {
	Verdict          Verdict                `json:"verdict"`
	Routing          router.RoutingDecision `json:"routing"`
	Reason           string                 `json:"reason,omitempty"`
	ApprovalID       string                 `json:"approval_id,omitempty"`
	ContextID        string                 `json:"context_id,omitempty"`
	MissingContext   []string               `json:"missing_context,omitempty"`
	ChildTasks       []ChildTaskSpec        `json:"child_tasks,omitempty"`
	ForcedPriority   string                 `json:"forced_priority,omitempty"`
}

// SystemSnapshot is the live scheduler state the engine reads to decide
// QUEUE vs EXECUTE_NOW and whether to DECOMPOSE a long task.
type SystemSnapshot struct {
	QueueDepth           int
	ActiveCount          int
	MaxConcurrentTasks   int
	ActiveTaskTypeCounts map[string]int
	PendingApprovals     int
}

// Busy reports active/max_concurrent > 0.8, per spec.md §4.F step 5.
func (s SystemSnapshot) Busy() bool {
	if s.MaxConcurrentTasks <= 0 {
		return false
	}
	return float64(s.ActiveCount)/float64(s.MaxConcurrentTasks) > 0.8
}

// pendingApproval / pendingContext record what the engine stashed pending a
// caller's approve()/provide_context() response.
type pendingApproval struct {
	decision ExecutionDecision
	taskType string
	resolved bool
}

type pendingContext struct {
	decision ExecutionDecision
	taskType string
	resolved bool
}

// Engine is the Decision Engine. It is safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	approvals map[string]*pendingApproval
	contexts  map[string]*pendingContext
}

func New() *Engine {
	return &Engine{
		approvals: make(map[string]*pendingApproval),
		contexts:  make(map[string]*pendingContext),
	}
}

// Decide evaluates the verdict rules in spec.md §4.F, in order. taskType and
// requiredContext are carried from the Task that produced routing;
// requiredContext lists context keys the caller has not yet supplied.
func (e *Engine) Decide(taskType string, routing router.RoutingDecision, requiredContext []string, snap SystemSnapshot) ExecutionDecision {
	base := ExecutionDecision{Routing: routing}

	if routing.Confidence < 0.3 {
		base.Verdict = VerdictReject
		base.Reason = "ambiguous"
		return base
	}

	if routing.RequiresApproval {
		id := uuid.NewString()
		d := base
		d.Verdict = VerdictRequestApproval
		d.ApprovalID = id
		e.mu.Lock()
		e.approvals[id] = &pendingApproval{decision: d, taskType: taskType}
		e.mu.Unlock()
		return d
	}

	if routing.RequiresContext && len(requiredContext) > 0 {
		id := uuid.NewString()
		d := base
		d.Verdict = VerdictGatherContext
		d.ContextID = id
		d.MissingContext = requiredContext
		e.mu.Lock()
		e.contexts[id] = &pendingContext{decision: d, taskType: taskType}
		e.mu.Unlock()
		return d
	}

	if shouldDecompose(routing, snap) {
		d := base
		d.Verdict = VerdictDecompose
		d.ChildTasks = decompositionTemplate(taskType, routing)
		return d
	}

	if snap.Busy() && routing.EstimatedComplexity >= 3 {
		d := base
		d.Verdict = VerdictQueue
		d.ForcedPriority = "LOW"
		d.Reason = "system busy"
		return d
	}

	d := base
	d.Verdict = VerdictExecuteNow
	return d
}

func shouldDecompose(routing router.RoutingDecision, snap SystemSnapshot) bool {
	if routing.Strategy == router.StrategyMultiStep {
		return true
	}
	if routing.EstimatedComplexity >= 4 {
		return true
	}
	if routing.EstimatedDurationSecs > 600 && snap.Busy() {
		return true
	}
	return false
}

// decompositionTemplate implements the two named templates spec.md §4.F
// lists: a HYBRID-category split into analyse/execute, and a high-complexity
// split into prepare/execute reusing the original task_type for the second
// step.
func decompositionTemplate(taskType string, routing router.RoutingDecision) []ChildTaskSpec {
	if routing.Category == router.CategoryHybrid {
		return []ChildTaskSpec{
			{TaskType: "llm_query", Description: "analyse requirements"},
			{TaskType: "file_operation", Description: "execute"},
		}
	}
	if routing.EstimatedComplexity >= 4 {
		return []ChildTaskSpec{
			{TaskType: "analysis", Description: "prepare"},
			{TaskType: taskType, Description: "execute"},
		}
	}
	return []ChildTaskSpec{{TaskType: taskType, Description: "execute"}}
}

// Approve resolves a pending approval request. approved=false discards it
// permanently; approved=true returns the now-EXECUTE_NOW decision. A second
// call on the same id (in either direction) returns ok=false — approval
// resolution is idempotent-once, per spec.md §8's round-trip property.
func (e *Engine) Approve(approvalID string, approved bool) (ExecutionDecision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending, ok := e.approvals[approvalID]
	if !ok || pending.resolved {
		return ExecutionDecision{}, false
	}
	pending.resolved = true

	if !approved {
		delete(e.approvals, approvalID)
		return ExecutionDecision{}, false
	}

	d := pending.decision
	d.Verdict = VerdictExecuteNow
	d.ApprovalID = ""
	delete(e.approvals, approvalID)
	return d, true
}

// ProvideContext resolves a pending GATHER_CONTEXT request with the caller's
// supplied data, producing a new EXECUTE_NOW decision.
func (e *Engine) ProvideContext(contextID string, data map[string]any) (ExecutionDecision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending, ok := e.contexts[contextID]
	if !ok || pending.resolved {
		return ExecutionDecision{}, false
	}
	pending.resolved = true
	delete(e.contexts, contextID)

	d := pending.decision
	d.Verdict = VerdictExecuteNow
	d.ContextID = ""
	d.MissingContext = nil
	_ = data // the supplied context is merged into the task by the caller (Agent.ProvideContext)
	return d, true
}

// PendingApprovalCount is used by the facade's status() surface.
func (e *Engine) PendingApprovalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.approvals)
}

func (e *Engine) PendingContextCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.contexts)
}

var ErrUnknownRequest = fmt.Errorf("unknown approval/context request id")
