package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

// JSONStore implements Store directly over the spec.md §6 file layout:
//
//	<root>/feedback/<id>.json
//	<root>/rules.json
//	<root>/adaptation_history.json
//	<root>/memory/<memory_type>/<id>.json
type JSONStore struct {
	root   string
	logger *zap.Logger
	mu     sync.Mutex
}

func NewJSONStore(root string, logger *zap.Logger) *JSONStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONStore{root: root, logger: logger.With(zap.String("component", "json_store"))}
}

func (s *JSONStore) feedbackDir() string        { return filepath.Join(s.root, "feedback") }
func (s *JSONStore) rulesPath() string          { return filepath.Join(s.root, "rules.json") }
func (s *JSONStore) historyPath() string        { return filepath.Join(s.root, "adaptation_history.json") }
func (s *JSONStore) memoryDir(t types.MemoryType) string {
	return filepath.Join(s.root, "memory", string(t))
}

func (s *JSONStore) SaveFeedback(f Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.feedbackDir(), 0o755); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(s.feedbackDir(), f.ID+".json"), f)
}

func (s *JSONStore) LoadRules() ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rules []Rule
	if err := readJSONFile(s.rulesPath(), &rules); err != nil {
		s.logger.Warn("rules.json missing or corrupt, starting empty", zap.Error(err))
		return nil, nil
	}
	return rules, nil
}

func (s *JSONStore) SaveRules(rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	return writeJSONFile(s.rulesPath(), rules)
}

func (s *JSONStore) AppendAdaptation(rec AdaptationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []AdaptationRecord
	_ = readJSONFile(s.historyPath(), &history) // missing/corrupt: start empty
	history = append(history, rec)

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	return writeJSONFile(s.historyPath(), history)
}

func (s *JSONStore) LoadAdaptationHistory() ([]AdaptationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []AdaptationRecord
	if err := readJSONFile(s.historyPath(), &history); err != nil {
		s.logger.Warn("adaptation_history.json missing or corrupt, starting empty", zap.Error(err))
		return nil, nil
	}
	return history, nil
}

func (s *JSONStore) SaveMemory(rec types.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.memoryDir(rec.Type)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, rec.ID+".json"), rec)
}

func (s *JSONStore) LoadMemory(query types.MemoryQuery) ([]types.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var types_ []types.MemoryType
	if query.Type != "" {
		types_ = []types.MemoryType{query.Type}
	} else {
		types_ = []types.MemoryType{types.MemoryEpisodic, types.MemorySemantic, types.MemoryProcedural}
	}

	var out []types.MemoryRecord
	for _, mt := range types_ {
		entries, err := os.ReadDir(s.memoryDir(mt))
		if err != nil {
			continue // directory absent: no records of this type yet
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			var rec types.MemoryRecord
			path := filepath.Join(s.memoryDir(mt), entry.Name())
			if err := readJSONFile(path, &rec); err != nil {
				s.logger.Warn("skipping corrupt memory file", zap.String("path", path), zap.Error(err))
				continue
			}
			if query.SessionID != "" && rec.SessionID != query.SessionID {
				continue
			}
			out = append(out, rec)
			if query.Limit > 0 && len(out) >= query.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func writeJSONFile(path string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

func readJSONFile(path string, v any) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
