package persistence

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentcore/types"
)

// GormStore implements Store over a gorm.DB (sqlite by default via
// github.com/glebarez/sqlite, grounded on internal/database/pool.go and
// llm/db_init.go's AutoMigrate-on-boot pattern). Preferred over JSONStore
// when config.StorageConfig.Driver is "sqlite" — spec.md §6 names the file
// layout as the contract, not the storage engine, so a relational backend
// satisfying the same Store interface is a compatible implementation.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

type feedbackRow struct {
	ID        string `gorm:"primaryKey"`
	TaskType  string
	Outcome   string
	Detail    string
	Metadata  string // JSON-encoded map[string]any
	CreatedAt time.Time
}

type ruleRow struct {
	ID        string `gorm:"primaryKey"`
	Trigger   string
	Action    string
	Params    string // JSON-encoded map[string]any
	Enabled   bool
	UpdatedAt time.Time
}

type adaptationRow struct {
	ID        string `gorm:"primaryKey"`
	RuleID    string
	Action    string
	AppliedAt time.Time
	Result    string
}

type memoryRow struct {
	ID         string `gorm:"primaryKey"`
	SessionID  string
	Type       string
	Content    string
	Importance float64
	Metadata   string // JSON-encoded map[string]any
	CreatedAt  time.Time
	LastAccess time.Time
}

// NewGormStore runs AutoMigrate for the four row types and returns a
// ready Store.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&feedbackRow{}, &ruleRow{}, &adaptationRow{}, &memoryRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, logger: logger.With(zap.String("component", "gorm_store"))}, nil
}

// Ping verifies the underlying connection is reachable. Grounded on
// internal/database/pool.go's PoolManager.Ping.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool. Grounded on
// internal/database/pool.go's PoolManager.Close.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) SaveFeedback(f Feedback) error {
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return err
	}
	row := feedbackRow{ID: f.ID, TaskType: f.TaskType, Outcome: f.Outcome, Detail: f.Detail, Metadata: string(meta), CreatedAt: f.CreatedAt}
	return s.db.Save(&row).Error
}

func (s *GormStore) LoadRules() ([]Rule, error) {
	var rows []ruleRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(rows))
	for _, r := range rows {
		var params map[string]any
		_ = json.Unmarshal([]byte(r.Params), &params)
		rules = append(rules, Rule{ID: r.ID, Trigger: r.Trigger, Action: r.Action, Params: params, Enabled: r.Enabled, UpdatedAt: r.UpdatedAt})
	}
	return rules, nil
}

func (s *GormStore) SaveRules(rules []Rule) error {
	for _, r := range rules {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return err
		}
		row := ruleRow{ID: r.ID, Trigger: r.Trigger, Action: r.Action, Params: string(params), Enabled: r.Enabled, UpdatedAt: r.UpdatedAt}
		if err := s.db.Save(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *GormStore) AppendAdaptation(rec AdaptationRecord) error {
	row := adaptationRow{ID: rec.ID, RuleID: rec.RuleID, Action: rec.Action, AppliedAt: rec.AppliedAt, Result: rec.Result}
	return s.db.Create(&row).Error
}

func (s *GormStore) LoadAdaptationHistory() ([]AdaptationRecord, error) {
	var rows []adaptationRow
	if err := s.db.Order("applied_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]AdaptationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, AdaptationRecord{ID: r.ID, RuleID: r.RuleID, Action: r.Action, AppliedAt: r.AppliedAt, Result: r.Result})
	}
	return out, nil
}

func (s *GormStore) SaveMemory(rec types.MemoryRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	row := memoryRow{
		ID: rec.ID, SessionID: rec.SessionID, Type: string(rec.Type), Content: rec.Content,
		Importance: rec.Importance, Metadata: string(meta), CreatedAt: rec.CreatedAt, LastAccess: rec.LastAccess,
	}
	return s.db.Save(&row).Error
}

func (s *GormStore) LoadMemory(query types.MemoryQuery) ([]types.MemoryRecord, error) {
	q := s.db.Model(&memoryRow{})
	if query.Type != "" {
		q = q.Where("type = ?", string(query.Type))
	}
	if query.SessionID != "" {
		q = q.Where("session_id = ?", query.SessionID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var rows []memoryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.MemoryRecord, 0, len(rows))
	for _, r := range rows {
		var meta map[string]any
		_ = json.Unmarshal([]byte(r.Metadata), &meta)
		out = append(out, types.MemoryRecord{
			ID: r.ID, SessionID: r.SessionID, Type: types.MemoryType(r.Type), Content: r.Content,
			Importance: r.Importance, Metadata: meta, CreatedAt: r.CreatedAt, LastAccess: r.LastAccess,
		})
	}
	return out, nil
}
