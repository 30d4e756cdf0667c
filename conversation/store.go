package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/conversation/cache"
	"github.com/BaSui01/agentcore/internal/metrics"
	"github.com/BaSui01/agentcore/types"
)

// Summarizer compresses a message range into a summary. Grounded on
// agent/context/window.go's Summarizer interface, extended to also
// surface key points for search scoring (spec.md §4.D).
type Summarizer interface {
	Summarize(ctx context.Context, messages []types.Message) (content string, keyPoints []string, err error)
}

// MemoryHandoff writes a conversation's summary into a long-term memory
// store. The store itself is out of scope (spec.md §4.D); this is an
// interface-only port so the facade can wire a real implementation.
type MemoryHandoff interface {
	Handoff(ctx context.Context, record types.MemoryRecord) error
}

// Config tunes a Store.
type Config struct {
	AutoSummarize    bool
	SummaryThreshold int // message count that triggers auto-summarisation
	PreserveRecent   int // messages kept out of the summarised range
	MinBatchSize     int // minimum new messages before summarising (spec.md: 5)
}

func DefaultConfig() Config {
	return Config{AutoSummarize: true, SummaryThreshold: 20, PreserveRecent: 6, MinBatchSize: 5}
}

func (c *Config) normalize() {
	if c.SummaryThreshold <= 0 {
		c.SummaryThreshold = 20
	}
	if c.PreserveRecent < 0 {
		c.PreserveRecent = 6
	}
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = 5
	}
}

// Store holds every conversation in memory, keyed by conversation id.
// Grounded on agent/memory/layered_memory.go's short-term/long-term
// split: Store is the short-term side; MemoryHandoff reaches the
// long-term side.
type Store struct {
	cfg        Config
	summarizer Summarizer
	handoff    MemoryHandoff
	logger     *zap.Logger
	metrics    *metrics.Collector
	cache      *cache.Cache

	mu   sync.RWMutex
	data map[string]*Conversation
}

func New(cfg Config, summarizer Summarizer, handoff MemoryHandoff, logger *zap.Logger) *Store {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:        cfg,
		summarizer: summarizer,
		handoff:    handoff,
		logger:     logger.With(zap.String("component", "conversation_store")),
		data:       make(map[string]*Conversation),
	}
}

// WithMetrics attaches a Collector that Summarize reports completed passes
// against; returns the store for chaining at construction time.
func (s *Store) WithMetrics(m *metrics.Collector) *Store {
	s.metrics = m
	return s
}

// WithCache attaches an optional distributed cache: completed summaries
// and session-ended markers are written through to it so another process
// sharing the same Redis instance can read them without this Store's
// in-memory map.
func (s *Store) WithCache(c *cache.Cache) *Store {
	s.cache = c
	return s
}

// Create starts a new conversation and returns its id.
func (s *Store) Create(title string) string {
	id := newID()
	s.mu.Lock()
	conv := newConversation(id)
	conv.Title = title
	s.data[id] = conv
	s.mu.Unlock()
	return id
}

func (s *Store) get(convID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[convID]
	if !ok {
		return nil, errNotFound(convID)
	}
	return c, nil
}

// AddMessage appends msg to the conversation, folds meta into running
// totals, and — if auto-summarise is enabled, the message count is at or
// past SummaryThreshold and no summarisation is already running for this
// conversation — schedules summarisation in the background.
func (s *Store) AddMessage(ctx context.Context, convID string, msg types.Message, meta MessageMeta) (int, error) {
	conv, err := s.get(convID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	conv.Messages = append(conv.Messages, msg)
	conv.TotalTokens += meta.Tokens
	conv.TotalCost += meta.Cost
	conv.UpdatedAt = time.Now()
	idx := len(conv.Messages) - 1
	shouldSummarize := s.cfg.AutoSummarize && len(conv.Messages) >= s.cfg.SummaryThreshold && !conv.summarising
	s.mu.Unlock()

	if shouldSummarize {
		go s.summarizeAsync(convID)
	}

	return idx, nil
}

// GetMessages returns up to limit messages (0 = all), with synthetic
// system messages representing prior summaries prepended when
// includeSummaries truncates early history.
func (s *Store) GetMessages(convID string, limit int, includeSummaries bool) ([]types.Message, error) {
	conv, err := s.get(convID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := conv.Messages
	if limit <= 0 || limit >= len(msgs) {
		return append([]types.Message(nil), msgs...), nil
	}

	tail := msgs[len(msgs)-limit:]
	if !includeSummaries {
		return append([]types.Message(nil), tail...), nil
	}

	firstKeptIndex := len(msgs) - limit
	var prefix []types.Message
	for _, summary := range conv.Summaries {
		if summary.StartIndex >= firstKeptIndex {
			continue
		}
		prefix = append(prefix, types.NewSystemMessage(fmt.Sprintf("[summary %d-%d] %s", summary.StartIndex, summary.EndIndex, summary.Content)))
	}

	out := make([]types.Message, 0, len(prefix)+len(tail))
	out = append(out, prefix...)
	out = append(out, tail...)
	return out, nil
}

// summarizeAsync serialises summarisation per conversation: a second
// trigger while one is in flight is dropped silently (the next
// AddMessage past the threshold will try again).
func (s *Store) summarizeAsync(convID string) {
	s.mu.Lock()
	conv, ok := s.data[convID]
	if !ok || conv.summarising {
		s.mu.Unlock()
		return
	}
	conv.summarising = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		conv.summarising = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.summarize(ctx, convID, "auto"); err != nil {
		s.logger.Warn("auto summarisation failed", zap.String("conversation", convID), zap.Error(err))
	}
}

// Summarize runs one summarisation pass synchronously over
// [last_summary_end, len-PreserveRecent). No-op if fewer than
// MinBatchSize new messages are available or no Summarizer is wired.
func (s *Store) Summarize(ctx context.Context, convID string) error {
	return s.summarize(ctx, convID, "manual")
}

func (s *Store) summarize(ctx context.Context, convID, trigger string) error {
	if s.summarizer == nil {
		return nil
	}

	s.mu.Lock()
	conv, ok := s.data[convID]
	if !ok {
		s.mu.Unlock()
		return errNotFound(convID)
	}
	start := conv.lastSummaryEnd()
	end := len(conv.Messages) - s.cfg.PreserveRecent
	if end <= start || end-start < s.cfg.MinBatchSize {
		s.mu.Unlock()
		return nil
	}
	batch := append([]types.Message(nil), conv.Messages[start:end]...)
	s.mu.Unlock()

	content, keyPoints, err := s.summarizer.Summarize(ctx, batch)
	if err != nil {
		return err
	}

	summary := Summary{
		ID:         newID(),
		StartIndex: start,
		EndIndex:   end,
		Content:    content,
		KeyPoints:  keyPoints,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	conv.Summaries = append(conv.Summaries, summary)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConversationSummariesTotal.WithLabelValues(trigger).Inc()
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cache.SummaryKey(convID), summary, 0); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("conversation", convID), zap.Error(err))
		}
	}
	return nil
}

// LatestSummary returns the most recent summary for convID. When a cache
// is wired it is consulted first (so a second process's summarisation
// pass is visible here without sharing the in-memory store); a cache
// miss falls back to the in-memory list and writes the result through.
func (s *Store) LatestSummary(ctx context.Context, convID string) (Summary, bool, error) {
	if s.cache != nil {
		var cached Summary
		err := s.cache.GetJSON(ctx, cache.SummaryKey(convID), &cached)
		if err == nil {
			return cached, true, nil
		}
		if err != cache.ErrMiss {
			s.logger.Warn("summary cache read failed", zap.String("conversation", convID), zap.Error(err))
		}
	}

	conv, err := s.get(convID)
	if err != nil {
		return Summary{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(conv.Summaries) == 0 {
		return Summary{}, false, nil
	}
	latest := conv.Summaries[len(conv.Summaries)-1]

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cache.SummaryKey(convID), latest, 0); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("conversation", convID), zap.Error(err))
		}
	}
	return latest, true, nil
}

// End closes out a conversation and, if a MemoryHandoff is wired, writes
// its latest summary to long-term memory in the background. The handoff
// never blocks the caller (spec.md §4.D: "MUST NOT block session
// teardown").
func (s *Store) End(sessionID, convID string) error {
	conv, err := s.get(convID)
	if err != nil {
		return err
	}

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.cache.SetJSON(ctx, cache.SessionEndedKey(sessionID), true, 24*time.Hour); err != nil {
			s.logger.Warn("session-ended cache write failed", zap.String("session", sessionID), zap.Error(err))
		}
		cancel()
	}

	if s.handoff == nil {
		return nil
	}

	s.mu.RLock()
	var content string
	if len(conv.Summaries) > 0 {
		content = conv.Summaries[len(conv.Summaries)-1].Content
	}
	s.mu.RUnlock()

	if content == "" {
		return nil
	}

	record := types.MemoryRecord{
		ID:        newID(),
		SessionID: sessionID,
		Type:      types.MemoryEpisodic,
		Content:   content,
		CreatedAt: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.handoff.Handoff(ctx, record); err != nil {
			s.logger.Warn("memory handoff failed", zap.String("conversation", convID), zap.Error(err))
		}
	}()
	return nil
}

// SessionEnded reports whether sessionID was ended, consulting the cache
// wired via WithCache. Returns false, nil when no cache is wired or the
// marker isn't present — this is a best-effort cross-process check, not
// the source of truth for End's own side effects.
func (s *Store) SessionEnded(ctx context.Context, sessionID string) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	var ended bool
	err := s.cache.GetJSON(ctx, cache.SessionEndedKey(sessionID), &ended)
	if err == cache.ErrMiss {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ended, nil
}

// fixedSummarizationPrompt is the prompt every LLMSummarizer call uses.
const fixedSummarizationPrompt = "Summarize the following conversation messages in one short paragraph. " +
	"Then list up to 5 key points as lines starting with \"- \"."

func formatMessagesForSummary(msgs []types.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
