package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/types"
)

type stubSummarizer struct {
	calls int
}

func (s *stubSummarizer) Summarize(ctx context.Context, messages []types.Message) (string, []string, error) {
	s.calls++
	return "a short summary", []string{"point one"}, nil
}

type stubHandoff struct {
	records chan types.MemoryRecord
}

func newStubHandoff() *stubHandoff { return &stubHandoff{records: make(chan types.MemoryRecord, 1)} }

func (h *stubHandoff) Handoff(ctx context.Context, record types.MemoryRecord) error {
	h.records <- record
	return nil
}

func TestAddMessageAccumulatesTotals(t *testing.T) {
	store := New(DefaultConfig(), nil, nil, nil)
	id := store.Create("test")

	_, err := store.AddMessage(context.Background(), id, types.NewUserMessage("hi"), MessageMeta{Tokens: 5, Cost: 0.01})
	require.NoError(t, err)

	conv, err := store.get(id)
	require.NoError(t, err)
	assert.Equal(t, 5, conv.TotalTokens)
}

func TestGetMessagesLimitAndSummaryPrefix(t *testing.T) {
	store := New(DefaultConfig(), nil, nil, nil)
	id := store.Create("test")

	for i := 0; i < 5; i++ {
		_, err := store.AddMessage(context.Background(), id, types.NewUserMessage("m"), MessageMeta{})
		require.NoError(t, err)
	}

	conv, _ := store.get(id)
	conv.Summaries = append(conv.Summaries, Summary{ID: "s1", StartIndex: 0, EndIndex: 2, Content: "early stuff"})

	msgs, err := store.GetMessages(id, 2, true)
	require.NoError(t, err)
	require.Len(t, msgs, 3) // 1 synthetic summary + 2 kept messages
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
}

func TestSummarizeProducesDisjointRange(t *testing.T) {
	cfg := Config{AutoSummarize: false, SummaryThreshold: 100, PreserveRecent: 2, MinBatchSize: 3}
	summarizer := &stubSummarizer{}
	store := New(cfg, summarizer, nil, nil)
	id := store.Create("test")

	for i := 0; i < 6; i++ {
		_, err := store.AddMessage(context.Background(), id, types.NewUserMessage("m"), MessageMeta{})
		require.NoError(t, err)
	}

	require.NoError(t, store.Summarize(context.Background(), id))
	conv, _ := store.get(id)
	require.Len(t, conv.Summaries, 1)
	assert.Equal(t, 0, conv.Summaries[0].StartIndex)
	assert.Equal(t, 4, conv.Summaries[0].EndIndex)
	assert.Equal(t, 1, summarizer.calls)
}

func TestSummarizeSkipsBelowMinBatch(t *testing.T) {
	cfg := Config{AutoSummarize: false, SummaryThreshold: 100, PreserveRecent: 2, MinBatchSize: 5}
	summarizer := &stubSummarizer{}
	store := New(cfg, summarizer, nil, nil)
	id := store.Create("test")

	for i := 0; i < 3; i++ {
		_, _ = store.AddMessage(context.Background(), id, types.NewUserMessage("m"), MessageMeta{})
	}

	require.NoError(t, store.Summarize(context.Background(), id))
	conv, _ := store.get(id)
	assert.Empty(t, conv.Summaries)
	assert.Equal(t, 0, summarizer.calls)
}

func TestSearchWeightsTitleHighest(t *testing.T) {
	store := New(DefaultConfig(), nil, nil, nil)
	idTitle := store.Create("project apollo kickoff")
	idMsg := store.Create("unrelated")
	_, _ = store.AddMessage(context.Background(), idMsg, types.NewUserMessage("mentions apollo here"), MessageMeta{})

	results := store.Search("apollo", 10)
	require.Len(t, results, 2)
	assert.Equal(t, idTitle, results[0].ConversationID)
}

func TestExportJSONRoundTrips(t *testing.T) {
	store := New(DefaultConfig(), nil, nil, nil)
	id := store.Create("round trip")
	_, _ = store.AddMessage(context.Background(), id, types.NewUserMessage("hello"), MessageMeta{})

	out, err := store.Export(id, ExportJSON)
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "round trip")
}

func TestEndHandsOffToMemoryWithoutBlocking(t *testing.T) {
	handoff := newStubHandoff()
	summarizer := &stubSummarizer{}
	cfg := Config{AutoSummarize: false, SummaryThreshold: 100, PreserveRecent: 0, MinBatchSize: 1}
	store := New(cfg, summarizer, handoff, nil)
	id := store.Create("test")

	for i := 0; i < 2; i++ {
		_, _ = store.AddMessage(context.Background(), id, types.NewUserMessage("m"), MessageMeta{})
	}
	require.NoError(t, store.Summarize(context.Background(), id))

	require.NoError(t, store.End("session-1", id))

	select {
	case record := <-handoff.records:
		assert.Equal(t, types.MemoryEpisodic, record.Type)
	case <-time.After(time.Second):
		t.Fatal("handoff did not fire")
	}
}
