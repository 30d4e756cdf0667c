package orchestrator

import (
	"time"

	"github.com/BaSui01/agentcore/types"
)

// Priority is the closed task priority set. Higher values sort first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Status is a Task's lifecycle state. PENDING is the only non-terminal
// status besides IN_PROGRESS; every task reaches exactly one of the three
// terminal statuses (spec.md §3 invariant 1, §8 invariant 1).
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is the internal unit of work the orchestrator schedules. Mutated by
// the worker that owns it (spec.md §3), with one exception: on shutdown the
// scheduler loop's cancelAll marks still-active tasks CANCELLED and sets
// CompletedAt, under the orchestrator lock.
type Task struct {
	ID           string
	Description  string
	TaskType     string
	Priority     Priority
	Status       Status
	Context      map[string]any
	Requirements map[string]any

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Result any
	Err    *types.Error

	// Attempts is a field for status reporting. The orchestrator runs each
	// handler once and nothing in this module increments it.
	Attempts int
}

// NewTask creates a PENDING task. id is generated by the caller (the
// facade or decision engine) via github.com/google/uuid so two submissions
// of logically identical work get distinct ids and independent lifecycles
// (spec.md §8 round-trip property).
func NewTask(id, taskType, description string, priority Priority) *Task {
	return &Task{
		ID:          id,
		TaskType:    taskType,
		Description: description,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}
