package gonka

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexInt decodes chain API integers that arrive either as JSON numbers or as
// string-encoded numbers.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse flexible int %q: %w", data, err)
	}
	*f = FlexInt(n)
	return nil
}

// EpochResponse is the /v1/epochs/latest payload.
type EpochResponse struct {
	LatestEpoch struct {
		Index FlexInt `json:"index"`
	} `json:"latest_epoch"`
}

// StatusResponse is the /chain-rpc/status payload.
type StatusResponse struct {
	Result struct {
		SyncInfo struct {
			LatestBlockHeight string `json:"latest_block_height"`
		} `json:"sync_info"`
	} `json:"result"`
}

// ActiveParticipant is one entry of the active set for an epoch. Weight and
// models are only known for active participants.
type ActiveParticipant struct {
	Index        string   `json:"index"`
	Weight       FlexInt  `json:"weight"`
	Models       []string `json:"models"`
	ValidatorKey *string  `json:"validator_key"`
}

// ActiveParticipantsResponse is the /v1/epochs/current/participants payload.
type ActiveParticipantsResponse struct {
	ActiveParticipants struct {
		EpochGroupID FlexInt             `json:"epoch_group_id"`
		Participants []ActiveParticipant `json:"participants"`
	} `json:"active_participants"`
}

// ChainParticipant is one entry of the full participant registry.
// CurrentEpochStats is carried opaquely and passed through to callers
// unmodified; derived metrics parse it separately.
type ChainParticipant struct {
	Index             string          `json:"index"`
	Address           string          `json:"address"`
	InferenceURL      string          `json:"inference_url"`
	Status            string          `json:"status"`
	CurrentEpochStats json.RawMessage `json:"current_epoch_stats"`
}

// ParticipantListResponse is the chain-api participant listing payload.
type ParticipantListResponse struct {
	Participant []ChainParticipant `json:"participant"`
}

// BlockHeader carries the fields we read from a block header.
type BlockHeader struct {
	Height string `json:"height"`
	Time   string `json:"time"`
}

// Block is a chain block with its header.
type Block struct {
	Header BlockHeader `json:"header"`
}

// BlockResponse accepts both upstream block response shapes: the block at the
// top level, or nested under a result wrapper.
type BlockResponse struct {
	Block  *Block `json:"block"`
	Result *struct {
		Block *Block `json:"block"`
	} `json:"result"`
}

// HeaderTime extracts the block header timestamp, trying the direct shape
// first and the result-wrapped shape second.
func (r *BlockResponse) HeaderTime() (string, bool) {
	if r.Block != nil && r.Block.Header.Time != "" {
		return r.Block.Header.Time, true
	}
	if r.Result != nil && r.Result.Block != nil && r.Result.Block.Header.Time != "" {
		return r.Result.Block.Header.Time, true
	}
	return "", false
}

// ModelsAllResponse is the /models/all payload. Model entries are carried
// verbatim; the tracker only regroups them when synthesizing a fallback.
type ModelsAllResponse struct {
	Models []json.RawMessage `json:"models"`
}

// ModelsStatsResponse is the /models/stats payload.
type ModelsStatsResponse struct {
	Stats []json.RawMessage `json:"stats"`
}
