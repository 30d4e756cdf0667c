// Package conversation implements the Conversation / Memory Store: a
// per-conversation append-only message log plus a sorted summary list,
// with search, export, and a fire-and-forget long-term memory handoff.
// Grounded on agent/context/window.go's windowing/trimming contract and
// agent/memory/layered_memory.go's short-term/long-term split, adapted
// from a single in-process context window to a multi-conversation store
// keyed by conversation id.
package conversation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentcore/types"
)

// Summary is one completed summarisation pass over a contiguous message
// range. Index ranges across a conversation's summaries are disjoint and
// ascending — summarise never re-spans messages a prior summary already
// covered.
type Summary struct {
	ID         string    `json:"id"`
	StartIndex int       `json:"start_index"` // inclusive
	EndIndex   int       `json:"end_index"`   // exclusive
	Content    string    `json:"content"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Conversation holds the append-only log and summary list for one
// conversation id, plus running token/cost totals.
type Conversation struct {
	ID          string
	Title       string
	Messages    []types.Message
	Summaries   []Summary
	TotalTokens int
	TotalCost   float64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	summarising bool // serialises concurrent auto-summarisation
}

func newConversation(id string) *Conversation {
	now := time.Now()
	return &Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
}

// lastSummaryEnd returns the exclusive end index of the most recent
// summary, or 0 if none exist yet.
func (c *Conversation) lastSummaryEnd() int {
	if len(c.Summaries) == 0 {
		return 0
	}
	return c.Summaries[len(c.Summaries)-1].EndIndex
}

// MessageMeta carries the per-message accounting add_message folds into
// the conversation's running totals.
type MessageMeta struct {
	Tokens int
	Cost   float64
}

func newID() string { return uuid.NewString() }

var errNotFound = func(conv string) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("conversation %q not found", conv)).WithRetryable(false)
}
