package store

import (
	"context"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_StatsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Initialize(ctx))

	type snapshot struct {
		Index      string  `json:"index"`
		MissedRate float64 `json:"missed_rate"`
	}
	payload, err := sonic.Marshal(snapshot{Index: "idx-1", MissedRate: 0.1667})
	require.NoError(t, err)

	now := time.Now().UTC()
	rows := []StatsRow{
		{ParticipantIndex: "idx-1", StatsJSON: payload, CachedAt: now},
		{ParticipantIndex: "idx-2", StatsJSON: []byte(`{"index":"idx-2"}`), CachedAt: now},
	}
	require.NoError(t, s.SaveStatsBatch(ctx, 7, 100, rows))

	got, err := s.GetStats(ctx, 7, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "idx-1", got[0].ParticipantIndex)
	assert.Equal(t, "idx-2", got[1].ParticipantIndex)

	var back snapshot
	require.NoError(t, sonic.Unmarshal(got[0].StatsJSON, &back))
	assert.Equal(t, snapshot{Index: "idx-1", MissedRate: 0.1667}, back)
}

func TestMemoryStore_StatsUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := []StatsRow{{ParticipantIndex: "idx-1", StatsJSON: []byte(`{"v":1}`)}}
	second := []StatsRow{{ParticipantIndex: "idx-1", StatsJSON: []byte(`{"v":2}`)}}
	require.NoError(t, s.SaveStatsBatch(ctx, 1, 10, first))
	require.NoError(t, s.SaveStatsBatch(ctx, 1, 10, second))

	got, err := s.GetStats(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte(`{"v":2}`), got[0].StatsJSON)
}

func TestMemoryStore_StatsKeyedByEpochAndHeight(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveStatsBatch(ctx, 1, 10, []StatsRow{{ParticipantIndex: "idx-1", StatsJSON: []byte(`{}`)}}))

	other, err := s.GetStats(ctx, 1, 11)
	require.NoError(t, err)
	assert.Empty(t, other)

	other, err = s.GetStats(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStore_ModelsCache(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	entry, err := s.GetModelsCache(ctx, 3, 30)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, s.SaveModelsCache(ctx, 3, 30, []byte(`{"models":[]}`), []byte(`{"stats":[]}`)))
	require.NoError(t, s.SaveModelsCache(ctx, 3, 30, []byte(`{"models":["m1"]}`), []byte(`{"stats":["s1"]}`)))

	entry, err = s.GetModelsCache(ctx, 3, 30)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte(`{"models":["m1"]}`), entry.ModelsAll)
	assert.Equal(t, []byte(`{"stats":["s1"]}`), entry.ModelsStats)
	assert.False(t, entry.CachedAt.IsZero())
}

func TestMemoryStore_TimelineSingleton(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	entry, err := s.GetTimelineCache(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, s.SaveTimelineCache(ctx, []byte(`{"v":1}`)))
	require.NoError(t, s.SaveTimelineCache(ctx, []byte(`{"v":2}`)))

	entry, err = s.GetTimelineCache(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte(`{"v":2}`), entry.Timeline)
}

func TestMemoryStore_ParticipantInferences(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rows, err := s.GetParticipantInferences(ctx, 5, "idx-1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	saved := []InferenceRow{
		{InferenceID: "inf-2", Status: "expired", RowJSON: []byte(`{"id":"inf-2"}`)},
		{InferenceID: "inf-1", Status: "successful", RowJSON: []byte(`{"id":"inf-1"}`)},
	}
	require.NoError(t, s.SaveParticipantInferences(ctx, 5, "idx-1", saved))

	rows, err = s.GetParticipantInferences(ctx, 5, "idx-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "inf-1", rows[0].InferenceID)
	assert.Equal(t, "inf-2", rows[1].InferenceID)
}

func TestStoreKeys(t *testing.T) {
	assert.Equal(t, "inference_stats:7:100", statsKey(7, 100))
	assert.Equal(t, "models_cache:7:100", modelsKey(7, 100))
	assert.Equal(t, "participant_inferences:7:idx-1", inferencesKey(7, "idx-1"))
}
