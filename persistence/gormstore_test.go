package persistence

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/agentcore/types"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	store, err := NewGormStore(db, nil)
	require.NoError(t, err)
	return store
}

func TestGormStoreRulesRoundTrip(t *testing.T) {
	store := newTestGormStore(t)
	rules := []Rule{{ID: "r1", Trigger: "slow_provider", Action: "demote", Enabled: true, UpdatedAt: time.Now()}}

	require.NoError(t, store.SaveRules(rules))
	loaded, err := store.LoadRules()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "slow_provider", loaded[0].Trigger)
}

func TestGormStoreAdaptationHistoryOrdered(t *testing.T) {
	store := newTestGormStore(t)
	now := time.Now()
	require.NoError(t, store.AppendAdaptation(AdaptationRecord{ID: "a1", AppliedAt: now}))
	require.NoError(t, store.AppendAdaptation(AdaptationRecord{ID: "a2", AppliedAt: now.Add(time.Second)}))

	history, err := store.LoadAdaptationHistory()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a1", history[0].ID)
}

func TestGormStoreMemoryQueryByType(t *testing.T) {
	store := newTestGormStore(t)
	require.NoError(t, store.SaveMemory(types.MemoryRecord{ID: "m1", Type: types.MemoryProcedural, Content: "retry harder", CreatedAt: time.Now()}))
	require.NoError(t, store.SaveMemory(types.MemoryRecord{ID: "m2", Type: types.MemoryEpisodic, Content: "ran once", CreatedAt: time.Now()}))

	loaded, err := store.LoadMemory(types.MemoryQuery{Type: types.MemoryProcedural})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "m1", loaded[0].ID)
}
