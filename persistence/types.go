// Package persistence implements the on-disk state layout spec.md §6
// names: feedback entries, adaptation rules, adaptation history, and
// memory items under a configurable storage root. Grounded on
// internal/database/pool.go's gorm.DB wiring for the SQL-backed Store,
// with a JSON-file Store as the spec's literal fallback (spec.md §6: "A
// missing or corrupt file is logged and skipped; the system starts
// empty" only makes sense against flat files, not a database).
package persistence

import (
	"time"

	"github.com/BaSui01/agentcore/types"
)

// Rule is one adaptation rule loaded from <root>/rules.json.
type Rule struct {
	ID        string         `json:"id"`
	Trigger   string         `json:"trigger"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Enabled   bool           `json:"enabled"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Feedback is one adaptation feedback entry under <root>/feedback/<id>.json.
type Feedback struct {
	ID        string         `json:"id"`
	TaskType  string         `json:"task_type"`
	Outcome   string         `json:"outcome"` // "success" | "failure"
	Detail    string         `json:"detail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AdaptationRecord is one applied adaptation in the append-only history
// at <root>/adaptation_history.json.
type AdaptationRecord struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	Action    string    `json:"action"`
	AppliedAt time.Time `json:"applied_at"`
	Result    string    `json:"result"`
}

// Store is the persisted-state contract both backends implement.
type Store interface {
	SaveFeedback(f Feedback) error
	LoadRules() ([]Rule, error)
	SaveRules(rules []Rule) error
	AppendAdaptation(rec AdaptationRecord) error
	LoadAdaptationHistory() ([]AdaptationRecord, error)
	SaveMemory(rec types.MemoryRecord) error
	LoadMemory(query types.MemoryQuery) ([]types.MemoryRecord, error)
}
