package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"

	"github.com/gonka-top/tracker/internal/config"
)

func statsKey(epochID, height int64) string {
	return fmt.Sprintf("inference_stats:%d:%d", epochID, height)
}

func modelsKey(epochID, height int64) string {
	return fmt.Sprintf("models_cache:%d:%d", epochID, height)
}

const timelineKey = "timeline_cache"

func inferencesKey(epochID int64, participantID string) string {
	return fmt.Sprintf("participant_inferences:%d:%s", epochID, participantID)
}

// RedisStore persists snapshots in Redis. Stats and inference rows live in
// hashes keyed per batch so re-saving a participant overwrites its field.
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore connects to Redis using the provided configuration.
func NewRedisStore(cfg *config.RedisEnvConfig) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)},
		Password:    cfg.RedisPassword,
		SelectDB:    cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Initialize verifies connectivity. Redis keyspaces need no schema, so this
// is a ping and is trivially idempotent.
func (s *RedisStore) Initialize(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *RedisStore) SaveStatsBatch(ctx context.Context, epochID, height int64, rows []StatsRow) error {
	if len(rows) == 0 {
		return nil
	}
	cmd := s.client.B().Hset().Key(statsKey(epochID, height)).FieldValue()
	for _, row := range rows {
		payload, err := sonic.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal stats row %s: %w", row.ParticipantIndex, err)
		}
		cmd = cmd.FieldValue(row.ParticipantIndex, string(payload))
	}
	return s.client.Do(ctx, cmd.Build()).Error()
}

func (s *RedisStore) GetStats(ctx context.Context, epochID, height int64) ([]StatsRow, error) {
	resp := s.client.Do(ctx, s.client.B().Hgetall().Key(statsKey(epochID, height)).Build())
	fields, err := resp.AsStrMap()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return []StatsRow{}, nil
		}
		return nil, err
	}
	rows := make([]StatsRow, 0, len(fields))
	for _, payload := range fields {
		var row StatsRow
		if err := sonic.Unmarshal([]byte(payload), &row); err != nil {
			return nil, fmt.Errorf("unmarshal stats row: %w", err)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ParticipantIndex < rows[j].ParticipantIndex })
	return rows, nil
}

func (s *RedisStore) SaveModelsCache(ctx context.Context, epochID, height int64, modelsAll, modelsStats []byte) error {
	entry := ModelsCacheEntry{ModelsAll: modelsAll, ModelsStats: modelsStats, CachedAt: nowUTC()}
	payload, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal models cache: %w", err)
	}
	return s.client.Do(ctx, s.client.B().Set().Key(modelsKey(epochID, height)).Value(string(payload)).Build()).Error()
}

func (s *RedisStore) GetModelsCache(ctx context.Context, epochID, height int64) (*ModelsCacheEntry, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(modelsKey(epochID, height)).Build())
	payload, err := resp.ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry ModelsCacheEntry
	if err := sonic.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal models cache: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) SaveTimelineCache(ctx context.Context, timeline []byte) error {
	entry := TimelineEntry{Timeline: timeline, CachedAt: nowUTC()}
	payload, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal timeline cache: %w", err)
	}
	return s.client.Do(ctx, s.client.B().Set().Key(timelineKey).Value(string(payload)).Build()).Error()
}

func (s *RedisStore) GetTimelineCache(ctx context.Context) (*TimelineEntry, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(timelineKey).Build())
	payload, err := resp.ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry TimelineEntry
	if err := sonic.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal timeline cache: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) SaveParticipantInferences(ctx context.Context, epochID int64, participantID string, rows []InferenceRow) error {
	if len(rows) == 0 {
		return nil
	}
	cmd := s.client.B().Hset().Key(inferencesKey(epochID, participantID)).FieldValue()
	for _, row := range rows {
		payload, err := sonic.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal inference row %s: %w", row.InferenceID, err)
		}
		cmd = cmd.FieldValue(row.InferenceID, string(payload))
	}
	return s.client.Do(ctx, cmd.Build()).Error()
}

func (s *RedisStore) GetParticipantInferences(ctx context.Context, epochID int64, participantID string) ([]InferenceRow, error) {
	resp := s.client.Do(ctx, s.client.B().Hgetall().Key(inferencesKey(epochID, participantID)).Build())
	fields, err := resp.AsStrMap()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return []InferenceRow{}, nil
		}
		return nil, err
	}
	rows := make([]InferenceRow, 0, len(fields))
	for _, payload := range fields {
		var row InferenceRow
		if err := sonic.Unmarshal([]byte(payload), &row); err != nil {
			return nil, fmt.Errorf("unmarshal inference row: %w", err)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].InferenceID < rows[j].InferenceID })
	return rows, nil
}
