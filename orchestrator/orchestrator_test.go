package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/internal/metrics"
)

func newTestOrchestrator(t *testing.T, handlers map[string]Handler) *Orchestrator {
	t.Helper()
	reg := NewRegistry()
	for name, h := range handlers {
		reg.Register(name, h)
	}
	cfg := &Config{
		MaxConcurrentTasks:    1,
		TaskTimeout:           time.Second,
		PollInterval:          5 * time.Millisecond,
		ContextRetentionLimit: 10,
	}
	return New(cfg, reg, nil)
}

func TestSubmitUnknownTaskType(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	err := o.Submit(NewTask("1", "nope", "d", PriorityLow))
	require.Error(t, err)
}

func TestPriorityBeatsArrivalOrder(t *testing.T) {
	var order []string
	done := make(chan struct{}, 2)

	handler := HandlerFunc(func(ctx context.Context, task *Task) (any, error) {
		order = append(order, task.ID)
		done <- struct{}{}
		return nil, nil
	})

	o := newTestOrchestrator(t, map[string]Handler{"work": handler})

	// Submit MEDIUM first, then CRITICAL — CRITICAL must still dispatch
	// before MEDIUM's successor since priority outranks arrival time
	// (spec.md §8 seed scenario 6). MaxConcurrentTasks=1 forces serial
	// dispatch so ordering is observable.
	medium := NewTask("medium", "work", "d", PriorityMedium)
	critical := NewTask("critical", "work", "d", PriorityCritical)
	medium.CreatedAt = time.Now()
	critical.CreatedAt = medium.CreatedAt.Add(time.Millisecond)

	require.NoError(t, o.Submit(medium))
	require.NoError(t, o.Submit(critical))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Shutdown()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	require.Len(t, order, 2)
	assert.Equal(t, "critical", order[0])
	assert.Equal(t, "medium", order[1])
}

func TestTaskReachesTerminalStatus(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, task *Task) (any, error) {
		return "ok", nil
	})
	o := newTestOrchestrator(t, map[string]Handler{"work": handler})

	task := NewTask("t1", "work", "d", PriorityHigh)
	require.NoError(t, o.Submit(task))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Shutdown()

	require.Eventually(t, func() bool {
		got, ok := o.GetTask("t1")
		return ok && got.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := o.GetTask("t1")
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "ok", got.Result)
}

func TestMaxConcurrentTasksRespected(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var activeCount int
	var maxObserved int

	handler := HandlerFunc(func(ctx context.Context, task *Task) (any, error) {
		mu.Lock()
		activeCount++
		if activeCount > maxObserved {
			maxObserved = activeCount
		}
		mu.Unlock()

		<-release

		mu.Lock()
		activeCount--
		mu.Unlock()
		return nil, nil
	})

	reg := NewRegistry()
	reg.Register("work", handler)
	cfg := &Config{MaxConcurrentTasks: 2, TaskTimeout: 5 * time.Second, PollInterval: 5 * time.Millisecond, ContextRetentionLimit: 10}
	o := New(cfg, reg, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, o.Submit(NewTask(string(rune('a'+i)), "work", "d", PriorityMedium)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	close(release)
	o.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxObserved, 2)
}

func TestFinish_RecordsTaskDurationWhenMetricsWired(t *testing.T) {
	done := make(chan struct{})
	handler := HandlerFunc(func(ctx context.Context, task *Task) (any, error) {
		close(done)
		return "ok", nil
	})

	reg := NewRegistry()
	reg.Register("work", handler)
	cfg := &Config{
		MaxConcurrentTasks:    1,
		TaskTimeout:           time.Second,
		PollInterval:          5 * time.Millisecond,
		ContextRetentionLimit: 10,
		Metrics:               metrics.NewCollector("test_orchestrator_finish", nil),
	}
	o := New(cfg, reg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	require.NoError(t, o.Submit(NewTask("1", "work", "d", PriorityMedium)))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not complete")
	}
	o.Shutdown()

	assert.Equal(t, 1, testutil.CollectAndCount(cfg.Metrics.TaskDuration))
}

// TestShutdown_WorkerFinishDoesNotOverwriteCancelledStatus covers the race
// between cancelAll (run from the scheduler loop on shutdown) and a still
// in-flight worker's own finish call: cancelAll must win, and the worker's
// later finish must not re-append the task or flip its terminal status.
func TestShutdown_WorkerFinishDoesNotOverwriteCancelledStatus(t *testing.T) {
	started := make(chan struct{})
	handler := HandlerFunc(func(ctx context.Context, task *Task) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	reg := NewRegistry()
	reg.Register("work", handler)
	cfg := &Config{MaxConcurrentTasks: 1, TaskTimeout: 5 * time.Second, PollInterval: 5 * time.Millisecond, ContextRetentionLimit: 10}
	o := New(cfg, reg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	require.NoError(t, o.Submit(NewTask("1", "work", "d", PriorityMedium)))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task never started")
	}

	o.Shutdown()

	got, ok := o.GetTask("1")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, got.Status)

	matches := 0
	for _, ct := range o.completed {
		if ct.ID == "1" {
			matches++
		}
	}
	assert.Equal(t, 1, matches, "task must appear exactly once in completed history")
}
