// Package store persists computed tracker snapshots (participant stats,
// models cache, timeline) keyed by epoch and height.
package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gonka-top/tracker/internal/config"
)

// StatsRow is one participant snapshot within an (epoch, height) batch.
// StatsJSON is the serialized participant record, stored verbatim.
type StatsRow struct {
	ParticipantIndex string    `json:"participant_index"`
	StatsJSON        []byte    `json:"stats_json"`
	SeedSignature    *string   `json:"seed_signature"`
	CachedAt         time.Time `json:"cached_at"`
}

// ModelsCacheEntry is the models listing blob pair for an (epoch, height).
type ModelsCacheEntry struct {
	ModelsAll   []byte    `json:"models_all"`
	ModelsStats []byte    `json:"models_stats"`
	CachedAt    time.Time `json:"cached_at"`
}

// TimelineEntry is the singleton timeline blob, most-recent-wins.
type TimelineEntry struct {
	Timeline []byte    `json:"timeline"`
	CachedAt time.Time `json:"cached_at"`
}

// InferenceRow is one cached inference for a participant within an epoch.
// Retained schema for future hydration of the per-participant breakdown.
type InferenceRow struct {
	InferenceID string    `json:"inference_id"`
	Status      string    `json:"status"`
	RowJSON     []byte    `json:"row_json"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store is the persistence facade for tracker snapshots. All keyspaces have
// upsert-overwrite semantics; nothing is ever evicted.
type Store interface {
	// Initialize prepares the backing keyspaces. Idempotent and safe to run
	// on every startup.
	Initialize(ctx context.Context) error

	SaveStatsBatch(ctx context.Context, epochID, height int64, rows []StatsRow) error
	GetStats(ctx context.Context, epochID, height int64) ([]StatsRow, error)

	SaveModelsCache(ctx context.Context, epochID, height int64, modelsAll, modelsStats []byte) error
	GetModelsCache(ctx context.Context, epochID, height int64) (*ModelsCacheEntry, error)

	SaveTimelineCache(ctx context.Context, timeline []byte) error
	GetTimelineCache(ctx context.Context) (*TimelineEntry, error)

	SaveParticipantInferences(ctx context.Context, epochID int64, participantID string, rows []InferenceRow) error
	GetParticipantInferences(ctx context.Context, epochID int64, participantID string) ([]InferenceRow, error)
}

// NewStore returns a Redis-backed store, or an in-memory store with identical
// semantics when Redis is unreachable. Callers never observe the difference
// except that in-memory data does not survive a restart.
func NewStore(cfg *config.RedisEnvConfig) Store {
	rs, err := NewRedisStore(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, falling back to in-memory snapshot cache")
		return NewMemoryStore()
	}
	return rs
}
