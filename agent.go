// Package agentcore is the Agent Facade: the runtime's single entry point,
// process(Request) -> Response, that owns the Retry Manager (via the LLM
// manager and MCP pool it is constructed with), the LLM Provider Manager,
// the MCP Client Pool, the Conversation Store, the Task Router, the
// Decision Engine, and the Orchestrator, and routes a request through
// whichever of them the caller's Mode and the scheduler's live state
// require.
//
// Grounded on cmd/agentflow/server.go's Server: a thin struct holding cfg +
// logger + lazily-built subsystems, with construction and start kept
// separate from the subsystems' own internal wiring.
package agentcore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/adaptation"
	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/conversation"
	"github.com/BaSui01/agentcore/conversation/cache"
	"github.com/BaSui01/agentcore/decision"
	"github.com/BaSui01/agentcore/internal/metrics"
	"github.com/BaSui01/agentcore/llmmanager"
	"github.com/BaSui01/agentcore/llmmanager/tokenizer"
	"github.com/BaSui01/agentcore/mcppool"
	"github.com/BaSui01/agentcore/orchestrator"
	"github.com/BaSui01/agentcore/persistence"
	"github.com/BaSui01/agentcore/reasoning"
	"github.com/BaSui01/agentcore/router"
	"github.com/BaSui01/agentcore/types"
)

// Mode selects the prompt-construction strategy and response shape a
// Request wants (spec.md §3).
type Mode string

const (
	ModeChat       Mode = "chat"
	ModeTask       Mode = "task"
	ModeReasoning  Mode = "reasoning"
	ModeAnalysis   Mode = "analysis"
	ModeAutomation Mode = "automation"
	ModeDebug      Mode = "debug"
)

// Request is the facade's single entry contract. Immutable once submitted
// to Process/ProcessStream/Submit (spec.md §3).
type Request struct {
	ID                   string
	Content              string
	Mode                 Mode
	Context              map[string]any
	RequiredCapabilities []string
	PreferredProvider    string
	Stream               bool
	MaxTokens            int
	Temperature          float32
	UseMemory            bool
	UseReasoning         bool
	Timeout              time.Duration
	Metadata             map[string]any // may carry "conversation_id"
}

func (r *Request) conversationID() string {
	if r.Metadata == nil {
		return ""
	}
	id, _ := r.Metadata["conversation_id"].(string)
	return id
}

// Response is what Process returns on completion, or immediately for a
// REJECT/REQUEST_APPROVAL/GATHER_CONTEXT verdict.
type Response struct {
	RequestID      string
	ConversationID string
	Status         string // "completed" | "pending_approval" | "pending_context" | "queued" | "rejected"
	Content        string
	Provider       string
	Model          string
	ToolCalls      []types.ToolCall
	Usage          types.TokenUsage
	Reasoning      *reasoning.Result
	ApprovalID     string
	ContextID      string
	MissingContext []string
	TaskID         string
	ChildTaskIDs   []string
	CreatedAt      time.Time
}

// StreamChunk is one increment of a streaming Process call.
type StreamChunk struct {
	Delta types.Message
	Done  bool
	Err   error
}

// Dependencies are the components the facade composes but does not itself
// construct, because constructing them requires vendor-specific wiring
// this module explicitly treats as an external collaborator (spec.md §1):
// registering concrete LLM provider adapters, dialing concrete MCP server
// URLs, opening a concrete persistence backend.
type Dependencies struct {
	LLM              *llmmanager.Manager
	MCP              *mcppool.Pool
	Store            persistence.Store // optional: receives conversation memory handoffs
	Adaptation       *adaptation.Engine
	Metrics          *metrics.Collector  // optional
	ConversationCache *cache.Cache        // optional: distributed summary/session cache
	Logger           *zap.Logger
}

// pendingRequest is what Approve/ProvideContext need to resume a task the
// Decision Engine stashed under an approval_id/context_id — the engine
// itself only remembers the routing decision and task type (decision.go),
// not the original description/messages, so the facade keeps its own
// shadow map keyed by the same id.
type pendingRequest struct {
	taskType       string
	description    string
	conversationID string
	messages       []types.Message
}

// Agent is the runtime's entry point. Safe for concurrent use; every
// subsystem it owns manages its own locking (spec.md §5).
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	llm           *llmmanager.Manager
	mcp           *mcppool.Pool
	conversations *conversation.Store
	decisions     *decision.Engine
	scheduler     *orchestrator.Orchestrator
	reasoner      *reasoning.Engine
	adaptation    *adaptation.Engine
	metrics       *metrics.Collector

	pendingMu sync.Mutex
	pending   map[string]pendingRequest
}

// New wires the facade together: builds the Decision Engine, Orchestrator,
// Conversation Store and reasoning Engine from cfg, registers the
// task-type handlers spec.md §4.G names, and starts the scheduler loop.
func New(ctx context.Context, cfg *config.Config, deps Dependencies) (*Agent, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("agentcore: Dependencies.LLM is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "agent"))

	a := &Agent{
		cfg:        cfg,
		logger:     logger,
		llm:        deps.LLM,
		mcp:        deps.MCP,
		decisions:  decision.New(),
		adaptation: deps.Adaptation,
		metrics:    deps.Metrics,
		pending:    make(map[string]pendingRequest),
	}
	a.reasoner = reasoning.New(a.llm)

	convCfg := conversation.Config{
		AutoSummarize:    cfg.Conversation.AutoSummarize,
		SummaryThreshold: cfg.Conversation.SummaryThreshold,
		PreserveRecent:   cfg.Conversation.PreserveRecent,
		MinBatchSize:     cfg.Conversation.MinBatchSize,
	}
	var handoff conversation.MemoryHandoff
	if deps.Store != nil {
		handoff = storeHandoff{deps.Store}
	}
	a.conversations = conversation.New(convCfg, conversation.NewLLMSummarizer(a.llm, ""), handoff, logger).
		WithMetrics(deps.Metrics).
		WithCache(deps.ConversationCache)

	registry := orchestrator.NewRegistry()
	registry.Register("llm_query", orchestrator.HandlerFunc(a.handleLLMQuery))
	registry.Register("file_operation", orchestrator.HandlerFunc(a.handleMCPTask))
	registry.Register("system_operation", orchestrator.HandlerFunc(a.handleMCPTask))
	registry.Register("desktop_operation", orchestrator.HandlerFunc(a.handleMCPTask))
	registry.Register("analysis", orchestrator.HandlerFunc(a.handleAnalysis))
	registry.Register("hybrid", orchestrator.HandlerFunc(a.handleHybrid))

	schedCfg := &orchestrator.Config{
		MaxConcurrentTasks:    cfg.Orchestrator.MaxConcurrentTasks,
		TaskTimeout:           cfg.Orchestrator.TaskTimeout,
		PollInterval:          cfg.Orchestrator.PollInterval,
		ContextRetentionLimit: cfg.Orchestrator.ContextRetentionLimit,
		Metrics:               deps.Metrics,
	}
	a.scheduler = orchestrator.New(schedCfg, registry, logger)
	a.scheduler.Start(ctx)

	return a, nil
}

// storeHandoff adapts persistence.Store to conversation.MemoryHandoff.
type storeHandoff struct{ store persistence.Store }

func (h storeHandoff) Handoff(_ context.Context, rec types.MemoryRecord) error {
	return h.store.SaveMemory(rec)
}

// CreateSession starts a new conversation and returns its id.
func (a *Agent) CreateSession(title string) string {
	return a.conversations.Create(title)
}

// EndSession closes a conversation, handing its summary off to long-term
// memory if a Store was wired (spec.md §4.D: fire-and-forget).
func (a *Agent) EndSession(sessionID, conversationID string) error {
	return a.conversations.End(sessionID, conversationID)
}

// SearchConversations ranks conversations by title/message/summary
// relevance to query (spec.md §4.D's weighted search).
func (a *Agent) SearchConversations(query string, limit int) []conversation.SearchResult {
	return a.conversations.Search(query, limit)
}

// ExportConversation renders a conversation in the given format for
// download or archival (spec.md §4.D/§8).
func (a *Agent) ExportConversation(convID string, format conversation.ExportFormat) (string, error) {
	return a.conversations.Export(convID, format)
}

// Shutdown gracefully cancels active tasks, drains the scheduler, and
// closes the MCP pool and LLM manager's background probe loop
// (spec.md §5: "Graceful shutdown cancels all active tasks, drains
// background loops, and waits for each provider/MCP client to close
// transports").
func (a *Agent) Shutdown() {
	a.scheduler.Shutdown()
	if a.mcp != nil {
		a.mcp.Shutdown()
	}
	a.llm.Stop()
}

// Status reports queue/active counts, provider health, and MCP health —
// the live snapshot spec.md §4.H's status surface exposes.
func (a *Agent) Status() map[string]any {
	snap := a.scheduler.Snapshot()
	if a.metrics != nil {
		a.metrics.TasksQueued.Set(float64(snap.QueueDepth))
		a.metrics.TasksActive.Set(float64(snap.ActiveCount))
	}
	status := map[string]any{
		"queue_depth":           snap.QueueDepth,
		"active_count":          snap.ActiveCount,
		"active_by_task_type":   snap.ActiveByTaskType,
		"pending_approvals":     a.decisions.PendingApprovalCount(),
		"pending_context":       a.decisions.PendingContextCount(),
		"providers":             a.llm.Stats(),
	}
	if a.mcp != nil {
		status["mcp"] = a.mcp.HealthCheck()
	}
	return status
}

// codeKeywordPattern is spec.md §4.G's literal heuristic: "code/
// programming/script/function" anywhere in the task description routes to
// the CODE-capable provider rather than PRIMARY.
var codeKeywordPattern = regexp.MustCompile(`(?i)\b(code|programming|script|function)\b`)

func systemPromptForMode(mode Mode) string {
	switch mode {
	case ModeReasoning:
		return "You are a careful reasoning assistant. Think before you answer."
	case ModeAnalysis:
		return "You are an analytical assistant. Identify causes and effects before concluding."
	case ModeAutomation:
		return "You are an automation assistant executing a concrete task. Be terse and precise."
	case ModeDebug:
		return "You are a debugging assistant. Reason about failure causes from the evidence given."
	default:
		return "You are a helpful assistant."
	}
}

// buildMessages assembles system prompt + last N message pairs + the new
// user message (spec.md §4.H). System messages already in the log are
// always retained during trim — GetMessages(includeSummaries=true) already
// folds prior summaries into synthetic system messages, so trimming here
// only ever drops non-system turns. A second, token-estimated budget
// (MaxContextTokens) trims further when ContextWindowPairs alone would
// still overflow a small model's window — estimated with
// llmmanager/tokenizer rather than a fixed pair count, since pair count and
// token count diverge badly once messages vary in length.
func (a *Agent) buildMessages(convID string, mode Mode, content string) ([]types.Message, error) {
	pairs := a.cfg.Conversation.ContextWindowPairs
	if pairs <= 0 {
		pairs = 10
	}
	history, err := a.conversations.GetMessages(convID, pairs*2, true)
	if err != nil {
		return nil, err
	}

	out := make([]types.Message, 0, len(history)+2)
	out = append(out, types.NewSystemMessage(systemPromptForMode(mode)))
	out = append(out, history...)
	out = append(out, types.NewUserMessage(content))

	if budget := a.cfg.Conversation.MaxContextTokens; budget > 0 {
		out = trimToTokenBudget(out, budget)
	}
	return out, nil
}

// trimToTokenBudget drops the oldest non-system messages (after the leading
// system prompt) until the estimated token count fits budget, or until only
// system messages and the final user turn remain.
func trimToTokenBudget(messages []types.Message, budget int) []types.Message {
	counter := tokenizer.GetOrEstimate("")
	for len(messages) > 2 {
		n, err := counter.CountMessages(messages)
		if err != nil || n <= budget {
			break
		}
		drop := -1
		for i := 1; i < len(messages)-1; i++ {
			if messages[i].Role != types.RoleSystem {
				drop = i
				break
			}
		}
		if drop < 0 {
			break
		}
		messages = append(messages[:drop], messages[drop+1:]...)
	}
	return messages
}

func isMCPTaskType(taskType string) bool {
	switch taskType {
	case "file_operation", "system_operation", "desktop_operation":
		return true
	default:
		return false
	}
}

func taskTypeForRouting(routing router.RoutingDecision) string {
	switch routing.Strategy {
	case router.StrategyMCPOnly:
		switch routing.Category {
		case router.CategorySystemInteraction, router.CategorySystemMonitoring:
			return "system_operation"
		case router.CategoryDesktopAutomation:
			return "desktop_operation"
		default:
			return "file_operation"
		}
	case router.StrategyHybrid, router.StrategyMultiStep, router.StrategyParallel:
		return "hybrid"
	default:
		return "llm_query"
	}
}

// contextualKeys is the fixed candidate set GATHER_CONTEXT checks a
// request's Context map against. Concrete wording here is an
// implementation detail (spec.md §1): the contract is only that a
// non-empty missing list accompanies RequiresContext.
var contextualKeys = []string{"target", "scope", "reference"}

func missingContext(ctx map[string]any) []string {
	var missing []string
	for _, k := range contextualKeys {
		if _, ok := ctx[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func (a *Agent) snapshot() decision.SystemSnapshot {
	snap := a.scheduler.Snapshot()
	return decision.SystemSnapshot{
		QueueDepth:           snap.QueueDepth,
		ActiveCount:          snap.ActiveCount,
		MaxConcurrentTasks:   a.cfg.Orchestrator.MaxConcurrentTasks,
		ActiveTaskTypeCounts: snap.ActiveByTaskType,
		PendingApprovals:     a.decisions.PendingApprovalCount(),
	}
}

// Process is the facade's synchronous entry point: classify, decide, and
// either execute immediately, submit to the scheduler, or return a
// pending/rejected Response (spec.md §4.H).
func (a *Agent) Process(ctx context.Context, req *Request) (*Response, error) {
	if req.Content == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "request content is empty").WithRetryable(false)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	convID := req.conversationID()
	if convID == "" {
		convID = a.conversations.Create("")
	}
	if _, err := a.conversations.AddMessage(ctx, convID, types.NewUserMessage(req.Content), conversation.MessageMeta{}); err != nil {
		return nil, err
	}

	routing := router.Classify(req.Content, req.Context, nil)
	taskType := taskTypeForRouting(routing)
	verdict := a.decisions.Decide(taskType, routing, missingContext(req.Context), a.snapshot())

	resp := &Response{RequestID: req.ID, ConversationID: convID, CreatedAt: time.Now()}

	switch verdict.Verdict {
	case decision.VerdictReject:
		resp.Status = "rejected"
		return resp, nil

	case decision.VerdictRequestApproval:
		a.stashPending(verdict.ApprovalID, taskType, req.Content, convID)
		resp.Status = "pending_approval"
		resp.ApprovalID = verdict.ApprovalID
		return resp, nil

	case decision.VerdictGatherContext:
		a.stashPending(verdict.ContextID, taskType, req.Content, convID)
		resp.Status = "pending_context"
		resp.ContextID = verdict.ContextID
		resp.MissingContext = verdict.MissingContext
		return resp, nil

	case decision.VerdictDecompose:
		ids, err := a.submitChildren(verdict.ChildTasks, convID)
		if err != nil {
			return nil, err
		}
		resp.Status = "queued"
		resp.ChildTaskIDs = ids
		return resp, nil

	case decision.VerdictQueue:
		taskID, err := a.submitTask(taskType, req.Content, convID, "MEDIUM")
		if err != nil {
			return nil, err
		}
		resp.Status = "queued"
		resp.TaskID = taskID
		return resp, nil
	}

	// EXECUTE_NOW: run synchronously in this call.
	return a.executeNow(ctx, req, convID, routing, taskType)
}

func (a *Agent) stashPending(id, taskType, description, convID string) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	a.pending[id] = pendingRequest{taskType: taskType, description: description, conversationID: convID}
}

func (a *Agent) takePending(id string) (pendingRequest, bool) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	p, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	return p, ok
}

// Approve resolves a REQUEST_APPROVAL verdict. approved=false discards the
// request; approved=true submits it to the scheduler and returns its task
// id.
func (a *Agent) Approve(ctx context.Context, approvalID string, approved bool) (*Response, error) {
	_, ok := a.decisions.Approve(approvalID, approved)
	if !ok {
		if !approved {
			a.takePending(approvalID)
			return &Response{Status: "rejected"}, nil
		}
		return nil, types.NewError(types.ErrNotFound, "unknown or already-resolved approval id").WithRetryable(false)
	}

	pending, ok := a.takePending(approvalID)
	if !ok {
		return nil, types.NewError(types.ErrInternal, "approval resolved but original request was lost")
	}

	taskID, err := a.submitTask(pending.taskType, pending.description, pending.conversationID, "MEDIUM")
	if err != nil {
		return nil, err
	}
	return &Response{Status: "queued", TaskID: taskID, ConversationID: pending.conversationID}, nil
}

// ProvideContext resolves a GATHER_CONTEXT verdict with caller-supplied
// data and submits the now-executable task.
func (a *Agent) ProvideContext(ctx context.Context, contextID string, data map[string]any) (*Response, error) {
	_, ok := a.decisions.ProvideContext(contextID, data)
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "unknown or already-resolved context id").WithRetryable(false)
	}

	pending, ok := a.takePending(contextID)
	if !ok {
		return nil, types.NewError(types.ErrInternal, "context request resolved but original request was lost")
	}

	taskID := uuid.NewString()
	task := orchestrator.NewTask(taskID, pending.taskType, pending.description, orchestrator.PriorityMedium)
	task.Context = make(map[string]any, len(data)+1)
	for k, v := range data {
		task.Context[k] = v
	}
	task.Context["conversation_id"] = pending.conversationID
	if err := a.scheduler.Submit(task); err != nil {
		return nil, err
	}
	return &Response{Status: "queued", TaskID: taskID, ConversationID: pending.conversationID}, nil
}

func priorityFromString(p string) orchestrator.Priority {
	switch strings.ToUpper(p) {
	case "CRITICAL":
		return orchestrator.PriorityCritical
	case "HIGH":
		return orchestrator.PriorityHigh
	case "LOW":
		return orchestrator.PriorityLow
	default:
		return orchestrator.PriorityMedium
	}
}

func (a *Agent) submitTask(taskType, description, convID, priority string) (string, error) {
	id := uuid.NewString()
	task := orchestrator.NewTask(id, taskType, description, priorityFromString(priority))
	task.Context = map[string]any{"conversation_id": convID}
	if err := a.scheduler.Submit(task); err != nil {
		return "", err
	}
	return id, nil
}

func (a *Agent) submitChildren(children []decision.ChildTaskSpec, convID string) ([]string, error) {
	ids := make([]string, 0, len(children))
	for _, c := range children {
		id, err := a.submitTask(c.TaskType, c.Description, convID, "MEDIUM")
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetTaskStatus reports a submitted task's current lifecycle status.
func (a *Agent) GetTaskStatus(taskID string) (orchestrator.Status, bool) {
	t, ok := a.scheduler.GetTask(taskID)
	if !ok {
		return "", false
	}
	return t.Status, true
}

// GetTaskResult returns a completed task's result, or its error if it
// failed. ok is false if the task id is unknown or still in flight.
func (a *Agent) GetTaskResult(taskID string) (result any, taskErr *types.Error, ok bool) {
	t, found := a.scheduler.GetTask(taskID)
	if !found || !t.Status.Terminal() {
		return nil, nil, false
	}
	return t.Result, t.Err, true
}

// executeNow runs the EXECUTE_NOW path synchronously: optionally invokes
// the reasoning pipeline, calls the LLM (or, for a non-chat strategy
// resolved to EXECUTE_NOW, the corresponding handler directly), and appends
// the reply to the conversation log.
func (a *Agent) executeNow(ctx context.Context, req *Request, convID string, routing router.RoutingDecision, taskType string) (*Response, error) {
	messages, err := a.buildMessages(convID, req.Mode, req.Content)
	if err != nil {
		return nil, err
	}

	resp := &Response{RequestID: req.ID, ConversationID: convID, Status: "completed", CreatedAt: time.Now()}

	if req.Mode == ModeReasoning || req.Mode == ModeAnalysis {
		result, err := a.reasoner.Run(ctx, reasoning.ForMode(string(req.Mode)), req.Content)
		if err != nil {
			return nil, err
		}
		resp.Reasoning = result
		resp.Content = result.Conclusion
		resp.Usage = result.Usage
		a.recordFeedback(taskType, "success", "")
		_ = a.appendAssistantReply(ctx, convID, resp.Content, "", "", nil, result.Usage)
		return resp, nil
	}

	if isMCPTaskType(taskType) && a.mcp != nil {
		result, herr := a.runMCPDirect(ctx, req, convID)
		if herr != nil {
			a.recordFeedback(taskType, "failure", herr.Error())
			return nil, herr
		}
		resp.Content = fmt.Sprintf("%v", result)
		a.recordFeedback(taskType, "success", "")
		_ = a.appendAssistantReply(ctx, convID, resp.Content, "", "", nil, types.TokenUsage{})
		return resp, nil
	}

	chatReq := &llmmanager.ChatRequest{
		Messages:             messages,
		MaxTokens:            req.MaxTokens,
		Temperature:          req.Temperature,
		RequiredCapabilities: req.RequiredCapabilities,
		PreferredProvider:    req.PreferredProvider,
	}
	if codeKeywordPattern.MatchString(req.Content) {
		chatReq.RequiredCapabilities = append(chatReq.RequiredCapabilities, "code")
	}

	chatResp, err := a.llm.Completion(ctx, chatReq)
	if err != nil {
		a.recordFeedback(taskType, "failure", err.Error())
		return nil, err
	}

	var toolCalls []types.ToolCall
	if len(chatResp.Choices) > 0 {
		resp.Content = chatResp.Choices[0].Message.Content
		toolCalls = chatResp.Choices[0].Message.ToolCalls
	}
	resp.Provider = chatResp.Provider
	resp.Model = chatResp.Model
	resp.ToolCalls = toolCalls
	resp.Usage = chatResp.Usage
	a.recordProviderUsage(chatResp.Provider, chatResp.Model, chatResp.Usage)

	a.recordFeedback(taskType, "success", "")
	if err := a.appendAssistantReply(ctx, convID, resp.Content, chatResp.Provider, chatResp.Model, toolCalls, chatResp.Usage); err != nil {
		a.logger.Warn("failed to append assistant reply", zap.Error(err))
	}
	return resp, nil
}

// ProcessStream is the streaming counterpart to Process: it runs routing and
// decisioning synchronously (a pending/queued/rejected verdict is returned as
// a single closed-channel chunk, matching Process's contract) and, for
// EXECUTE_NOW, returns a channel of incremental deltas sourced from
// llmmanager.Manager.Stream (spec.md §4.H: "ordering of chunks is preserved;
// cancellation of the iterator cancels the upstream call" — cancelling ctx
// stops the upstream Stream goroutine and closes the returned channel).
func (a *Agent) ProcessStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	if req.Content == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "request content is empty").WithRetryable(false)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	convID := req.conversationID()
	if convID == "" {
		convID = a.conversations.Create("")
	}
	if _, err := a.conversations.AddMessage(ctx, convID, types.NewUserMessage(req.Content), conversation.MessageMeta{}); err != nil {
		return nil, err
	}

	routing := router.Classify(req.Content, req.Context, nil)
	taskType := taskTypeForRouting(routing)
	verdict := a.decisions.Decide(taskType, routing, missingContext(req.Context), a.snapshot())

	if verdict.Verdict != decision.VerdictExecuteNow {
		out := make(chan StreamChunk, 1)
		switch verdict.Verdict {
		case decision.VerdictReject:
			out <- StreamChunk{Done: true}
		case decision.VerdictRequestApproval:
			a.stashPending(verdict.ApprovalID, taskType, req.Content, convID)
			out <- StreamChunk{Done: true}
		case decision.VerdictGatherContext:
			a.stashPending(verdict.ContextID, taskType, req.Content, convID)
			out <- StreamChunk{Done: true}
		case decision.VerdictDecompose:
			if _, err := a.submitChildren(verdict.ChildTasks, convID); err != nil {
				out <- StreamChunk{Err: err, Done: true}
			} else {
				out <- StreamChunk{Done: true}
			}
		case decision.VerdictQueue:
			if _, err := a.submitTask(taskType, req.Content, convID, "MEDIUM"); err != nil {
				out <- StreamChunk{Err: err, Done: true}
			} else {
				out <- StreamChunk{Done: true}
			}
		}
		close(out)
		return out, nil
	}

	messages, err := a.buildMessages(convID, req.Mode, req.Content)
	if err != nil {
		return nil, err
	}

	chatReq := &llmmanager.ChatRequest{
		Messages:             messages,
		MaxTokens:            req.MaxTokens,
		Temperature:          req.Temperature,
		RequiredCapabilities: req.RequiredCapabilities,
		PreferredProvider:    req.PreferredProvider,
	}
	if codeKeywordPattern.MatchString(req.Content) {
		chatReq.RequiredCapabilities = append(chatReq.RequiredCapabilities, "code")
	}

	upstream, err := a.llm.Stream(ctx, chatReq)
	if err != nil {
		a.recordFeedback(taskType, "failure", err.Error())
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		var full strings.Builder
		var provider, model string
		for chunk := range upstream {
			provider, model = chunk.Provider, chunk.Model
			full.WriteString(chunk.Delta.Content)
			select {
			case out <- StreamChunk{Delta: chunk.Delta, Done: chunk.FinishReason != ""}:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				a.recordFeedback(taskType, "failure", chunk.Err.Error())
				return
			}
		}
		a.recordFeedback(taskType, "success", "")
		if err := a.appendAssistantReply(ctx, convID, full.String(), provider, model, nil, types.TokenUsage{}); err != nil {
			a.logger.Warn("failed to append streamed assistant reply", zap.Error(err))
		}
	}()
	return out, nil
}

func (a *Agent) appendAssistantReply(ctx context.Context, convID, content, provider, model string, toolCalls []types.ToolCall, usage types.TokenUsage) error {
	msg := types.NewAssistantMessage(content).WithToolCalls(toolCalls).WithMetadata(map[string]any{
		"provider": provider,
		"model":    model,
	})
	_, err := a.conversations.AddMessage(ctx, convID, msg, conversation.MessageMeta{Tokens: usage.TotalTokens, Cost: usage.Cost})
	return err
}

func (a *Agent) recordFeedback(taskType, outcome, detail string) {
	if a.metrics != nil {
		a.metrics.TasksTotal.WithLabelValues(taskType, outcome).Inc()
	}
	if a.adaptation == nil {
		return
	}
	if err := a.adaptation.RecordFeedback(taskType, outcome, detail, nil); err != nil {
		a.logger.Warn("failed to record adaptation feedback", zap.Error(err))
	}
}

// recordProviderUsage feeds a completed LLM call's usage into the provider
// request/token counters — the facade's own vantage point on every
// completion regardless of which routing strategy selected the provider.
func (a *Agent) recordProviderUsage(provider, model string, usage types.TokenUsage) {
	if a.metrics == nil {
		return
	}
	a.metrics.ProviderRequestsTotal.WithLabelValues(provider, model, "success").Inc()
	if usage.PromptTokens > 0 {
		a.metrics.ProviderTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		a.metrics.ProviderTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
	}
}

// runMCPDirect executes an mcp-strategy request inline (outside the
// scheduler) for the EXECUTE_NOW path. req.Context carries the operation
// and parameters the Task Router's suggested_tools imply; concrete
// client/operation naming is the caller's domain (spec.md §1's MCP server
// tool catalogues are out of scope).
func (a *Agent) runMCPDirect(ctx context.Context, req *Request, _ string) (any, error) {
	client, _ := req.Context["client"].(string)
	op, _ := req.Context["operation"].(string)
	params, _ := req.Context["parameters"].(map[string]any)
	if client == "" || op == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "mcp request requires context.client and context.operation").WithRetryable(false)
	}
	return a.mcp.ExecuteTool(ctx, client, op, params)
}
