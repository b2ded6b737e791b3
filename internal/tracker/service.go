// Package tracker implements the aggregation core: it joins the participant
// registry with the active epoch set, derives QoS metrics, estimates block
// time, and maintains the short-lived current view cache.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/gonka-top/tracker/internal/gonka"
	"github.com/gonka-top/tracker/internal/store"
)

const (
	// currentCacheTTL is how long the one-slot current view stays valid.
	currentCacheTTL = 30 * time.Second
	// epochLength is the timeline placeholder until the chain exposes epoch
	// boundaries.
	epochLength = 25000
)

// ErrParticipantNotFound signals a lookup for an index absent from the
// participant registry. The request layer maps it to a not-found response.
var ErrParticipantNotFound = errors.New("participant not found")

// Service aggregates upstream chain data into dashboard views. It holds a
// single most-recent slot for the current inference view; the mutex guards
// the slot and serializes fetches so concurrent reloads cannot lose updates.
type Service struct {
	gonka gonka.ClientInterface
	store store.Store

	mu        sync.Mutex
	current   *CurrentInferenceResponse
	lastFetch time.Time
}

func NewService(client gonka.ClientInterface, st store.Store) *Service {
	return &Service{
		gonka: client,
		store: st,
	}
}

// enrichment is the active-set data joined onto registry participants.
type enrichment struct {
	weight       int64
	models       []string
	validatorKey *string
}

// GetCurrentInference returns the aggregated current-epoch view. Unless
// reload is set, a cached response younger than the TTL is returned without
// any upstream calls.
func (s *Service) GetCurrentInference(ctx context.Context, reload bool) (*CurrentInferenceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !reload && s.current != nil && time.Since(s.lastFetch) < currentCacheTTL {
		return s.current, nil
	}

	resp, err := s.fetchCurrentInference(ctx)
	if err != nil {
		return nil, err
	}

	s.current = resp
	s.lastFetch = time.Now()
	return resp, nil
}

func (s *Service) fetchCurrentInference(ctx context.Context) (*CurrentInferenceResponse, error) {
	height, err := s.gonka.GetLatestHeight()
	if err != nil {
		return nil, fmt.Errorf("fetch latest height: %w", err)
	}
	epochData, err := s.gonka.GetCurrentEpochParticipants()
	if err != nil {
		return nil, fmt.Errorf("fetch current epoch participants: %w", err)
	}
	epochID := int64(epochData.ActiveParticipants.EpochGroupID)

	all, err := s.gonka.GetAllParticipants(height)
	if err != nil {
		return nil, fmt.Errorf("fetch participant list: %w", err)
	}

	active := make(map[string]enrichment, len(epochData.ActiveParticipants.Participants))
	for _, p := range epochData.ActiveParticipants.Participants {
		models := p.Models
		if models == nil {
			models = []string{}
		}
		active[p.Index] = enrichment{
			weight:       int64(p.Weight),
			models:       models,
			validatorKey: p.ValidatorKey,
		}
	}

	now := time.Now().UTC()
	participants := make([]Participant, 0, len(all.Participant))
	rows := make([]store.StatsRow, 0, len(all.Participant))
	for _, p := range all.Participant {
		extra, ok := active[p.Index]
		if !ok {
			// Participants outside the active set are not part of the
			// current view.
			continue
		}
		counts := parseEpochStats(p.CurrentEpochStats)
		participant := Participant{
			Index:             p.Index,
			Address:           p.Address,
			Weight:            extra.weight,
			ValidatorKey:      extra.validatorKey,
			InferenceURL:      p.InferenceURL,
			Status:            p.Status,
			Models:            extra.models,
			CurrentEpochStats: p.CurrentEpochStats,
			MissedRate:        missedRate(counts),
			InvalidationRate:  invalidationRate(counts),
		}
		participants = append(participants, participant)

		payload, err := sonic.Marshal(statsRecord{Participant: participant})
		if err != nil {
			log.Warn().Err(err).Str("participant", p.Index).Msg("failed to serialize stats row, skipping persist")
			continue
		}
		rows = append(rows, store.StatsRow{
			ParticipantIndex: p.Index,
			StatsJSON:        payload,
			CachedAt:         now,
		})
	}

	// Persistence is a best-effort cache; a store outage never blocks
	// serving fresh data.
	if err := s.store.SaveStatsBatch(ctx, epochID, height, rows); err != nil {
		log.Warn().Err(err).Int64("epoch_id", epochID).Int64("height", height).Msg("failed to persist participant stats batch")
	}

	avgBlockTime := s.averageBlockTime(height)
	currBlock, err := s.gonka.GetBlock(height)
	if err != nil {
		return nil, fmt.Errorf("fetch current block: %w", err)
	}
	ts, ok := currBlock.HeaderTime()
	if !ok {
		ts = now.Format(time.RFC3339)
	}

	return &CurrentInferenceResponse{
		EpochID:               epochID,
		Height:                height,
		Participants:          participants,
		CachedAt:              time.Now().UTC().Format(time.RFC3339),
		IsCurrent:             true,
		CurrentBlockHeight:    height,
		CurrentBlockTimestamp: ts,
		AvgBlockTime:          avgBlockTime,
	}, nil
}

// GetCurrentModels returns the current models view. When the upstream model
// endpoints are unavailable the listing is synthesized from the current
// participants' model assignments.
func (s *Service) GetCurrentModels(ctx context.Context) (*ModelsResponse, error) {
	height, err := s.gonka.GetLatestHeight()
	if err != nil {
		return nil, fmt.Errorf("fetch latest height: %w", err)
	}
	latest, err := s.gonka.GetLatestEpoch()
	if err != nil {
		return nil, fmt.Errorf("fetch latest epoch: %w", err)
	}
	epochID := int64(latest.LatestEpoch.Index)

	modelsAll, errAll := s.gonka.GetModelsAll()
	var modelsStats gonka.ModelsStatsResponse
	errStats := errAll
	if errAll == nil {
		modelsStats, errStats = s.gonka.GetModelsStats()
	}
	if errAll != nil || errStats != nil {
		log.Warn().AnErr("models_all", errAll).AnErr("models_stats", errStats).
			Msg("models endpoints unavailable, synthesizing from current participants")
		modelsAll, modelsStats, err = s.synthesizeModels(ctx)
		if err != nil {
			return nil, err
		}
	}

	allPayload, errA := sonic.Marshal(modelsAll)
	statsPayload, errS := sonic.Marshal(modelsStats)
	if errA != nil || errS != nil {
		log.Warn().AnErr("models_all", errA).AnErr("models_stats", errS).Msg("failed to serialize models cache, skipping persist")
	} else if err := s.store.SaveModelsCache(ctx, epochID, height, allPayload, statsPayload); err != nil {
		log.Warn().Err(err).Int64("epoch_id", epochID).Int64("height", height).Msg("failed to persist models cache")
	}

	avgBlockTime := s.averageBlockTime(height)
	currBlock, err := s.gonka.GetBlock(height)
	if err != nil {
		return nil, fmt.Errorf("fetch current block: %w", err)
	}
	ts, ok := currBlock.HeaderTime()
	if !ok {
		ts = time.Now().UTC().Format(time.RFC3339)
	}

	models := modelsAll.Models
	if models == nil {
		models = []json.RawMessage{}
	}
	stats := modelsStats.Stats
	if stats == nil {
		stats = []json.RawMessage{}
	}

	return &ModelsResponse{
		EpochID:               epochID,
		Height:                height,
		Models:                models,
		Stats:                 stats,
		CachedAt:              time.Now().UTC().Format(time.RFC3339),
		IsCurrent:             true,
		CurrentBlockTimestamp: ts,
		AvgBlockTime:          avgBlockTime,
	}, nil
}

// syntheticModel mirrors an upstream model registry entry; fields not
// derivable from participant data carry placeholder values.
type syntheticModel struct {
	ID                     string              `json:"id"`
	TotalWeight            int64               `json:"total_weight"`
	ParticipantCount       int                 `json:"participant_count"`
	ProposedBy             string              `json:"proposed_by"`
	VRAM                   string              `json:"v_ram"`
	ThroughputPerNonce     string              `json:"throughput_per_nonce"`
	UnitsOfComputePerToken string              `json:"units_of_compute_per_token"`
	HfRepo                 string              `json:"hf_repo"`
	HfCommit               string              `json:"hf_commit"`
	ModelArgs              []string            `json:"model_args"`
	ValidationThreshold    validationThreshold `json:"validation_threshold"`
}

type validationThreshold struct {
	Value    string `json:"value"`
	Exponent int    `json:"exponent"`
}

type syntheticModelStat struct {
	Model      string `json:"model"`
	AiTokens   string `json:"ai_tokens"`
	Inferences int    `json:"inferences"`
}

// synthesizeModels regroups the current participants' model lists into a
// histogram keyed by model id, preserving first-seen order.
func (s *Service) synthesizeModels(ctx context.Context) (gonka.ModelsAllResponse, gonka.ModelsStatsResponse, error) {
	var all gonka.ModelsAllResponse
	var stats gonka.ModelsStatsResponse

	current, err := s.GetCurrentInference(ctx, false)
	if err != nil {
		return all, stats, err
	}

	order := make([]string, 0)
	grouped := make(map[string]*syntheticModel)
	for _, p := range current.Participants {
		for _, id := range p.Models {
			entry, ok := grouped[id]
			if !ok {
				entry = &syntheticModel{
					ID:                     id,
					ProposedBy:             "-",
					VRAM:                   "-",
					ThroughputPerNonce:     "-",
					UnitsOfComputePerToken: "-",
					HfRepo:                 "-",
					HfCommit:               "-",
					ModelArgs:              []string{},
					ValidationThreshold:    validationThreshold{Value: "0", Exponent: 0},
				}
				grouped[id] = entry
				order = append(order, id)
			}
			entry.TotalWeight += p.Weight
			entry.ParticipantCount++
		}
	}

	all.Models = make([]json.RawMessage, 0, len(order))
	stats.Stats = make([]json.RawMessage, 0, len(order))
	for _, id := range order {
		modelPayload, err := sonic.Marshal(grouped[id])
		if err != nil {
			return all, stats, fmt.Errorf("marshal synthesized model %s: %w", id, err)
		}
		statPayload, err := sonic.Marshal(syntheticModelStat{Model: id, AiTokens: "0", Inferences: 0})
		if err != nil {
			return all, stats, fmt.Errorf("marshal synthesized model stat %s: %w", id, err)
		}
		all.Models = append(all.Models, modelPayload)
		stats.Stats = append(stats.Stats, statPayload)
	}
	return all, stats, nil
}

// GetTimeline returns the block timeline view with the current and reference
// block samples.
func (s *Service) GetTimeline(ctx context.Context) (*TimelineResponse, error) {
	height, err := s.gonka.GetLatestHeight()
	if err != nil {
		return nil, fmt.Errorf("fetch latest height: %w", err)
	}
	latest, err := s.gonka.GetLatestEpoch()
	if err != nil {
		return nil, fmt.Errorf("fetch latest epoch: %w", err)
	}
	epochID := int64(latest.LatestEpoch.Index)

	avgBlockTime := s.averageBlockTime(height)
	currBlock, err := s.gonka.GetBlock(height)
	if err != nil {
		return nil, fmt.Errorf("fetch current block: %w", err)
	}
	ts, ok := currBlock.HeaderTime()
	if !ok {
		ts = time.Now().UTC().Format(time.RFC3339)
	}

	refHeight := height - blockTimeSpan
	if refHeight < 1 {
		refHeight = 1
	}
	refBlock, err := s.gonka.GetBlock(refHeight)
	if err != nil {
		return nil, fmt.Errorf("fetch reference block: %w", err)
	}
	refTs, ok := refBlock.HeaderTime()
	if !ok {
		refTs = ts
	}

	resp := &TimelineResponse{
		CurrentBlock:   TimelineBlock{Height: height, Timestamp: ts},
		ReferenceBlock: TimelineBlock{Height: refHeight, Timestamp: refTs},
		AvgBlockTime:   avgBlockTime,
		Events:         []TimelineEvent{},
		// The chain does not expose the epoch start height yet; the current
		// height stands in for it.
		CurrentEpochStart: height,
		CurrentEpochIndex: epochID,
		EpochLength:       epochLength,
	}

	payload, err := sonic.Marshal(resp)
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize timeline cache, skipping persist")
	} else if err := s.store.SaveTimelineCache(ctx, payload); err != nil {
		log.Warn().Err(err).Msg("failed to persist timeline cache")
	}

	return resp, nil
}

// GetParticipantDetails returns the denormalized view for one participant.
// Unlike the current view, participants outside the active set are retained
// with zero-filled enrichment. Epoch scoping is not implemented yet; details
// are always computed against the current epoch.
func (s *Service) GetParticipantDetails(ctx context.Context, participantID string, epochID *int64) (*ParticipantDetails, error) {
	height, err := s.gonka.GetLatestHeight()
	if err != nil {
		return nil, fmt.Errorf("fetch latest height: %w", err)
	}
	epochData, err := s.gonka.GetCurrentEpochParticipants()
	if err != nil {
		return nil, fmt.Errorf("fetch current epoch participants: %w", err)
	}
	all, err := s.gonka.GetAllParticipants(height)
	if err != nil {
		return nil, fmt.Errorf("fetch participant list: %w", err)
	}

	var base *gonka.ChainParticipant
	for i := range all.Participant {
		if all.Participant[i].Index == participantID {
			base = &all.Participant[i]
			break
		}
	}
	if base == nil {
		return nil, fmt.Errorf("participant %s: %w", participantID, ErrParticipantNotFound)
	}

	extra := enrichment{models: []string{}}
	for _, p := range epochData.ActiveParticipants.Participants {
		if p.Index == base.Index {
			models := p.Models
			if models == nil {
				models = []string{}
			}
			extra = enrichment{weight: int64(p.Weight), models: models, validatorKey: p.ValidatorKey}
			break
		}
	}

	counts := parseEpochStats(base.CurrentEpochStats)
	participant := Participant{
		Index:             base.Index,
		Address:           base.Address,
		Weight:            extra.weight,
		ValidatorKey:      extra.validatorKey,
		InferenceURL:      base.InferenceURL,
		Status:            base.Status,
		Models:            extra.models,
		CurrentEpochStats: base.CurrentEpochStats,
		MissedRate:        missedRate(counts),
		InvalidationRate:  invalidationRate(counts),
	}

	return &ParticipantDetails{
		Participant: participant,
		Rewards:     []json.RawMessage{},
		WarmKeys:    []string{},
		MLNodes:     []json.RawMessage{},
	}, nil
}

// GetParticipantInferences returns the per-participant inference breakdown
// for the requested epoch (latest when unspecified). Rows come from the local
// snapshot cache; nothing hydrates it yet, so the buckets stay empty until
// the chain exposes a per-inference source.
func (s *Service) GetParticipantInferences(ctx context.Context, participantID string, epochID *int64) (*ParticipantInferences, error) {
	var effective int64
	if epochID != nil {
		effective = *epochID
	} else {
		latest, err := s.gonka.GetLatestEpoch()
		if err != nil {
			return nil, fmt.Errorf("fetch latest epoch: %w", err)
		}
		effective = int64(latest.LatestEpoch.Index)
	}

	result := &ParticipantInferences{
		EpochID:       effective,
		ParticipantID: participantID,
		Successful:    []json.RawMessage{},
		Expired:       []json.RawMessage{},
		Invalidated:   []json.RawMessage{},
		CachedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	rows, err := s.store.GetParticipantInferences(ctx, effective, participantID)
	if err != nil {
		log.Warn().Err(err).Str("participant", participantID).Int64("epoch_id", effective).Msg("failed to read cached inferences")
		return result, nil
	}
	for _, row := range rows {
		switch row.Status {
		case "successful":
			result.Successful = append(result.Successful, json.RawMessage(row.RowJSON))
		case "expired":
			result.Expired = append(result.Expired, json.RawMessage(row.RowJSON))
		case "invalidated":
			result.Invalidated = append(result.Invalidated, json.RawMessage(row.RowJSON))
		}
	}
	return result, nil
}
