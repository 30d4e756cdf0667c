package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/conversation/cache"
	"github.com/BaSui01/agentcore/types"
)

func setupStoreWithCache(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := cache.New(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MinBatchSize = 1
	cfg.PreserveRecent = 0
	store := New(cfg, &stubSummarizer{}, nil, nil).WithCache(c)

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})
	return mr, store
}

func TestStore_SummarizeWritesThroughToCache(t *testing.T) {
	mr, store := setupStoreWithCache(t)
	ctx := context.Background()
	convID := store.Create("demo")

	_, err := store.AddMessage(ctx, convID, types.NewUserMessage("hi"), MessageMeta{})
	require.NoError(t, err)
	require.NoError(t, store.Summarize(ctx, convID))

	assert.True(t, mr.Exists(cache.SummaryKey(convID)))
}

func TestStore_LatestSummaryPrefersCache(t *testing.T) {
	mr, store := setupStoreWithCache(t)
	ctx := context.Background()
	convID := store.Create("demo")

	_, err := store.AddMessage(ctx, convID, types.NewUserMessage("hi"), MessageMeta{})
	require.NoError(t, err)
	require.NoError(t, store.Summarize(ctx, convID))
	require.True(t, mr.Exists(cache.SummaryKey(convID)))

	summary, ok, err := store.LatestSummary(ctx, convID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a short summary", summary.Content)
}

func TestStore_LatestSummaryFallsBackAndWritesThrough(t *testing.T) {
	mr, store := setupStoreWithCache(t)
	ctx := context.Background()
	convID := store.Create("demo")

	_, err := store.AddMessage(ctx, convID, types.NewUserMessage("hi"), MessageMeta{})
	require.NoError(t, err)
	require.NoError(t, store.Summarize(ctx, convID))

	require.NoError(t, store.cache.Delete(ctx, cache.SummaryKey(convID)))
	require.False(t, mr.Exists(cache.SummaryKey(convID)))

	summary, ok, err := store.LatestSummary(ctx, convID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a short summary", summary.Content)
	assert.True(t, mr.Exists(cache.SummaryKey(convID)))
}

func TestStore_EndMarksSessionEndedInCache(t *testing.T) {
	mr, store := setupStoreWithCache(t)
	ctx := context.Background()
	convID := store.Create("demo")

	require.NoError(t, store.End("sess-1", convID))
	assert.True(t, mr.Exists(cache.SessionEndedKey("sess-1")))

	ended, err := store.SessionEnded(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ended)
}

func TestStore_SessionEndedWithoutCacheReturnsFalse(t *testing.T) {
	store := New(DefaultConfig(), nil, nil, nil)
	ended, err := store.SessionEnded(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, ended)
}
