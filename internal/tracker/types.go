package tracker

import "encoding/json"

// Participant is the denormalized per-participant view joined from the full
// registry and the active-epoch set. Weight, models and validator key come
// from the active set; everything else from the registry.
type Participant struct {
	Index             string          `json:"index"`
	Address           string          `json:"address"`
	Weight            int64           `json:"weight"`
	ValidatorKey      *string         `json:"validator_key"`
	InferenceURL      string          `json:"inference_url"`
	Status            string          `json:"status"`
	Models            []string        `json:"models"`
	CurrentEpochStats json.RawMessage `json:"current_epoch_stats"`
	MissedRate        float64         `json:"missed_rate"`
	InvalidationRate  float64         `json:"invalidation_rate"`
}

// statsRecord is the persisted participant snapshot. The seed signature is
// not derivable from chain data yet and is stored as null.
type statsRecord struct {
	Participant
	SeedSignature *string `json:"seed_signature"`
}

// CurrentInferenceResponse is the aggregated current-epoch view.
type CurrentInferenceResponse struct {
	EpochID               int64         `json:"epoch_id"`
	Height                int64         `json:"height"`
	Participants          []Participant `json:"participants"`
	CachedAt              string        `json:"cached_at"`
	IsCurrent             bool          `json:"is_current"`
	CurrentBlockHeight    int64         `json:"current_block_height"`
	CurrentBlockTimestamp string        `json:"current_block_timestamp"`
	AvgBlockTime          float64       `json:"avg_block_time"`
}

// ModelsResponse is the current models view. Model and stat entries are
// passed through from upstream, or synthesized when upstream is unavailable.
type ModelsResponse struct {
	EpochID               int64             `json:"epoch_id"`
	Height                int64             `json:"height"`
	Models                []json.RawMessage `json:"models"`
	Stats                 []json.RawMessage `json:"stats"`
	CachedAt              string            `json:"cached_at"`
	IsCurrent             bool              `json:"is_current"`
	CurrentBlockTimestamp string            `json:"current_block_timestamp"`
	AvgBlockTime          float64           `json:"avg_block_time"`
}

// TimelineBlock is a height/timestamp pair.
type TimelineBlock struct {
	Height    int64  `json:"height"`
	Timestamp string `json:"timestamp"`
}

// TimelineEvent is a chain event on the timeline. No events are emitted yet;
// the shape is declared for the frontend contract.
type TimelineEvent struct {
	Height int64  `json:"height"`
	Label  string `json:"label"`
}

// TimelineResponse is the epoch timeline view.
type TimelineResponse struct {
	CurrentBlock      TimelineBlock   `json:"current_block"`
	ReferenceBlock    TimelineBlock   `json:"reference_block"`
	AvgBlockTime      float64         `json:"avg_block_time"`
	Events            []TimelineEvent `json:"events"`
	CurrentEpochStart int64           `json:"current_epoch_start"`
	CurrentEpochIndex int64           `json:"current_epoch_index"`
	EpochLength       int64           `json:"epoch_length"`
	EpochStages       json.RawMessage `json:"epoch_stages"`
	NextEpochStages   json.RawMessage `json:"next_epoch_stages"`
}

// ParticipantDetails is the single-participant view. Rewards, seed, warm keys
// and ML nodes are acknowledged stubs pending upstream sources.
type ParticipantDetails struct {
	Participant Participant       `json:"participant"`
	Rewards     []json.RawMessage `json:"rewards"`
	Seed        json.RawMessage   `json:"seed"`
	WarmKeys    []string          `json:"warm_keys"`
	MLNodes     []json.RawMessage `json:"ml_nodes"`
}

// ParticipantInferences is the per-participant inference breakdown for an
// epoch, bucketed by outcome.
type ParticipantInferences struct {
	EpochID       int64             `json:"epoch_id"`
	ParticipantID string            `json:"participant_id"`
	Successful    []json.RawMessage `json:"successful"`
	Expired       []json.RawMessage `json:"expired"`
	Invalidated   []json.RawMessage `json:"invalidated"`
	CachedAt      string            `json:"cached_at"`
}
