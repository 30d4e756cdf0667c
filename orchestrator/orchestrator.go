// Package orchestrator implements the Orchestrator / Scheduler: a
// priority-ordered, bounded-concurrency task runner with lifecycle
// tracking, cancellation, and per-task timeout.
//
// Grounded on internal/pool's GoroutinePool for the bounded-worker-spawn
// idiom (atomic worker/active counters, panic-safe task execution) and on
// workflow/dag_executor.go / workflow/parallel.go for structuring
// concurrent work with golang.org/x/sync/semaphore rather than a fixed
// worker-count channel pool — adapted from FIFO dispatch to the priority
// queue spec.md §4.G requires.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/agentcore/internal/metrics"
	"github.com/BaSui01/agentcore/types"
)

// Config tunes an Orchestrator.
type Config struct {
	MaxConcurrentTasks   int
	TaskTimeout          time.Duration
	PollInterval         time.Duration // sleep between queue-empty polls
	ContextRetentionLimit int          // completed_tasks trim bound

	// Metrics is optional; when set, task durations are recorded against it.
	Metrics *metrics.Collector
}

func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentTasks:    10,
		TaskTimeout:           5 * time.Minute,
		PollInterval:          50 * time.Millisecond,
		ContextRetentionLimit: 500,
	}
}

func (c *Config) normalize() {
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 10
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.ContextRetentionLimit <= 0 {
		c.ContextRetentionLimit = 500
	}
}

// Orchestrator owns the task priority queue, the active-task map, and the
// bounded-concurrency semaphore. One logical scheduler exists per agent
// instance (spec.md §5).
type Orchestrator struct {
	cfg      *Config
	logger   *zap.Logger
	registry *Registry

	mu        sync.Mutex // guards queue + active + completed (spec.md §5 table)
	queue     *priorityQueue
	active    map[string]*Task
	completed []*Task
	cancels   map[string]context.CancelFunc

	sem *semaphore.Weighted

	running   bool
	stopCh    chan struct{}
	loopDone  chan struct{}
	wg        sync.WaitGroup
}

// New creates an Orchestrator. A nil config falls back to DefaultConfig.
func New(cfg *Config, registry *Registry, logger *zap.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "orchestrator")),
		registry: registry,
		queue:    newPriorityQueue(),
		active:   make(map[string]*Task),
		cancels:  make(map[string]context.CancelFunc),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
	}
}

// Start launches the scheduler's main loop. Calling Start twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.loopDone = make(chan struct{})
	o.mu.Unlock()

	go o.loop(ctx)
}

// Submit validates task.TaskType against the handler registry and inserts
// the task into the priority queue. Returns an error immediately for an
// unregistered task type rather than discovering it inside a worker
// (Design Notes, spec.md §9).
func (o *Orchestrator) Submit(task *Task) error {
	if _, err := o.registry.Lookup(task.TaskType); err != nil {
		return types.NewError(types.ErrTaskTypeUnknown, err.Error()).WithRetryable(false)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue.Push(task)
	return nil
}

// GetTask returns the task by id, looking first in active then completed.
func (o *Orchestrator) GetTask(id string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.active[id]; ok {
		return t, true
	}
	for _, t := range o.completed {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Snapshot reports queue depth, active count, and per-task-type active
// histogram — the live state the Decision Engine reads.
type Snapshot struct {
	QueueDepth       int
	ActiveCount      int
	ActiveByTaskType map[string]int
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	byType := make(map[string]int, len(o.active))
	for _, t := range o.active {
		byType[t.TaskType]++
	}
	return Snapshot{
		QueueDepth:       o.queue.Len(),
		ActiveCount:      len(o.active),
		ActiveByTaskType: byType,
	}
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.loopDone)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.cancelAll()
			return
		case <-o.stopCh:
			o.cancelAll()
			return
		case <-ticker.C:
			o.dispatchReady(ctx)
		}
	}
}

// dispatchReady pops every task the semaphore currently has room for and
// spawns a worker goroutine per task.
func (o *Orchestrator) dispatchReady(ctx context.Context) {
	for {
		if !o.sem.TryAcquire(1) {
			return
		}

		o.mu.Lock()
		task, ok := o.queue.Pop()
		o.mu.Unlock()

		if !ok {
			o.sem.Release(1)
			return
		}

		o.wg.Add(1)
		go o.runWorker(ctx, task)
	}
}

func (o *Orchestrator) runWorker(ctx context.Context, task *Task) {
	defer o.wg.Done()
	defer o.sem.Release(1)

	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	o.mu.Lock()
	task.Status = StatusInProgress
	task.StartedAt = time.Now()
	o.active[task.ID] = task
	o.cancels[task.ID] = cancel
	o.mu.Unlock()

	handler, err := o.registry.Lookup(task.TaskType)
	if err != nil {
		o.finish(task, nil, types.NewError(types.ErrTaskTypeUnknown, err.Error()))
		return
	}

	result, herr := handler.Handle(taskCtx, task)

	if herr != nil {
		if taskCtx.Err() == context.DeadlineExceeded {
			o.finish(task, nil, types.NewError(types.ErrTimeout, "task timed out").WithRetryable(true))
			return
		}
		o.finish(task, nil, toTaskError(herr))
		return
	}
	o.finish(task, result, nil)
}

func toTaskError(err error) *types.Error {
	if terr, ok := err.(*types.Error); ok {
		return terr
	}
	return types.NewError(types.ErrInternal, err.Error()).WithCause(err)
}

func (o *Orchestrator) finish(task *Task, result any, err *types.Error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, stillActive := o.active[task.ID]; !stillActive {
		// cancelAll already moved this task to completed with a terminal
		// CANCELLED status while its worker was still running; the worker's
		// own finish must not re-append it or overwrite that terminal
		// status (exactly one terminal status per task, spec.md §3, §8.1).
		return
	}

	task.CompletedAt = time.Now()
	delete(o.active, task.ID)
	delete(o.cancels, task.ID)

	if err != nil {
		task.Status = StatusFailed
		task.Err = err
		o.logger.Warn("task failed", zap.String("task_id", task.ID), zap.String("task_type", task.TaskType), zap.Error(err))
	} else {
		task.Status = StatusCompleted
		task.Result = result
	}

	o.completed = append(o.completed, task)
	if len(o.completed) > o.cfg.ContextRetentionLimit {
		o.completed = o.completed[len(o.completed)-o.cfg.ContextRetentionLimit:]
	}

	if o.cfg.Metrics != nil && !task.StartedAt.IsZero() {
		o.cfg.Metrics.TaskDuration.WithLabelValues(task.TaskType).Observe(task.CompletedAt.Sub(task.StartedAt).Seconds())
	}
}

func (o *Orchestrator) cancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, cancel := range o.cancels {
		cancel()
		if t, ok := o.active[id]; ok {
			t.Status = StatusCancelled
			t.CompletedAt = time.Now()
			o.completed = append(o.completed, t)
			delete(o.active, id)
		}
	}
	o.cancels = make(map[string]context.CancelFunc)
}

// Shutdown cancels all active tasks and waits for their workers to return.
// Per spec.md §5, this is the "graceful shutdown" the facade calls before
// closing the provider manager and MCP pool.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	running := o.running
	o.running = false
	o.mu.Unlock()

	if running {
		close(o.stopCh)
		<-o.loopDone
	}
	o.wg.Wait()
}
