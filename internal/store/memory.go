package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// MemoryStore implements Store with in-process maps. Used when Redis is not
// reachable; same keys and upsert-overwrite behavior, data does not survive
// a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	stats      map[string]map[string]StatsRow
	models     map[string]ModelsCacheEntry
	timeline   *TimelineEntry
	inferences map[string]map[string]InferenceRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stats:      make(map[string]map[string]StatsRow),
		models:     make(map[string]ModelsCacheEntry),
		inferences: make(map[string]map[string]InferenceRow),
	}
}

func (s *MemoryStore) Initialize(_ context.Context) error {
	return nil
}

func (s *MemoryStore) SaveStatsBatch(_ context.Context, epochID, height int64, rows []StatsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := statsKey(epochID, height)
	batch, ok := s.stats[key]
	if !ok {
		batch = make(map[string]StatsRow, len(rows))
		s.stats[key] = batch
	}
	for _, row := range rows {
		batch[row.ParticipantIndex] = row
	}
	return nil
}

func (s *MemoryStore) GetStats(_ context.Context, epochID, height int64) ([]StatsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch := s.stats[statsKey(epochID, height)]
	rows := make([]StatsRow, 0, len(batch))
	for _, row := range batch {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ParticipantIndex < rows[j].ParticipantIndex })
	return rows, nil
}

func (s *MemoryStore) SaveModelsCache(_ context.Context, epochID, height int64, modelsAll, modelsStats []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[modelsKey(epochID, height)] = ModelsCacheEntry{
		ModelsAll:   modelsAll,
		ModelsStats: modelsStats,
		CachedAt:    nowUTC(),
	}
	return nil
}

func (s *MemoryStore) GetModelsCache(_ context.Context, epochID, height int64) (*ModelsCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.models[modelsKey(epochID, height)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) SaveTimelineCache(_ context.Context, timeline []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = &TimelineEntry{Timeline: timeline, CachedAt: nowUTC()}
	return nil
}

func (s *MemoryStore) GetTimelineCache(_ context.Context) (*TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.timeline == nil {
		return nil, nil
	}
	entry := *s.timeline
	return &entry, nil
}

func (s *MemoryStore) SaveParticipantInferences(_ context.Context, epochID int64, participantID string, rows []InferenceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inferencesKey(epochID, participantID)
	batch, ok := s.inferences[key]
	if !ok {
		batch = make(map[string]InferenceRow, len(rows))
		s.inferences[key] = batch
	}
	for _, row := range rows {
		batch[row.InferenceID] = row
	}
	return nil
}

func (s *MemoryStore) GetParticipantInferences(_ context.Context, epochID int64, participantID string) ([]InferenceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch := s.inferences[inferencesKey(epochID, participantID)]
	rows := make([]InferenceRow, 0, len(batch))
	for _, row := range batch {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].InferenceID < rows[j].InferenceID })
	return rows, nil
}
