// Package gonka provides a client for the Gonka chain REST and RPC endpoints
// with failover across a configured list of base URLs.
package gonka

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/gonka-top/tracker/internal/config"
)

// participantPageLimit caps the participant listing in a single page. The
// upstream registry is assumed to stay below this; no continuation tokens.
const participantPageLimit = "10000"

// ClientInterface is the set of upstream accessors used by the tracker service.
type ClientInterface interface {
	GetLatestEpoch() (EpochResponse, error)
	GetLatestHeight() (int64, error)
	GetCurrentEpochParticipants() (ActiveParticipantsResponse, error)
	GetEpochParticipants(epochID int64) (ActiveParticipantsResponse, error)
	GetAllParticipants(height int64) (ParticipantListResponse, error)
	GetBlock(height int64) (BlockResponse, error)
	GetModelsAll() (ModelsAllResponse, error)
	GetModelsStats() (ModelsStatsResponse, error)
}

// Client issues GET requests against an ordered list of base URLs. On any
// failure it advances to the next base and retries, at most once per base.
// The rotation pointer is sticky: a success does not reset it, so load keeps
// moving away from dead bases across calls.
type Client struct {
	client *resty.Client
	bases  []string

	mu      sync.Mutex
	current int
}

// NewClient creates a new Gonka client using the provided environment configuration.
func NewClient(cfg *config.GonkaEnvConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	client := resty.New().
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(cfg.HTTPTimeout)

	return &Client{
		client: client,
		bases:  cfg.InferenceUrls,
	}, nil
}

func (c *Client) currentBase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bases) == 0 {
		return ""
	}
	return c.bases[c.current]
}

func (c *Client) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bases) == 0 {
		return
	}
	c.current = (c.current + 1) % len(c.bases)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func getJSON[T any](c *Client, path string, query, headers map[string]string) (T, error) {
	var zero T

	attempts := len(c.bases)
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		url := joinURL(c.currentBase(), path)

		var result T
		resp, err := c.client.R().
			SetQueryParams(query).
			SetHeaders(headers).
			SetResult(&result).
			Get(url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("get request failed, rotating base")
			lastErr = fmt.Errorf("get %s: %w", path, err)
			c.rotate()
			continue
		}
		if resp.IsError() {
			log.Warn().Int("status", resp.StatusCode()).Str("url", url).Msg("get non-2xx, rotating base")
			lastErr = fmt.Errorf("get %s returned status %d: %s", path, resp.StatusCode(), resp.String())
			c.rotate()
			continue
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("get %s: no base url configured", path)
	}
	return zero, lastErr
}

// GetLatestEpoch fetches the most recent epoch descriptor.
func (c *Client) GetLatestEpoch() (EpochResponse, error) {
	return getJSON[EpochResponse](c, "/v1/epochs/latest", nil, nil)
}

// GetLatestHeight reads the current chain height from the node status.
func (c *Client) GetLatestHeight() (int64, error) {
	status, err := getJSON[StatusResponse](c, "/chain-rpc/status", nil, nil)
	if err != nil {
		return 0, err
	}
	raw := status.Result.SyncInfo.LatestBlockHeight
	if raw == "" {
		return 0, nil
	}
	height, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse latest block height %q: %w", raw, err)
	}
	return height, nil
}

// GetCurrentEpochParticipants fetches the active participant set for the
// current epoch.
func (c *Client) GetCurrentEpochParticipants() (ActiveParticipantsResponse, error) {
	return getJSON[ActiveParticipantsResponse](c, "/v1/epochs/current/participants", nil, nil)
}

// GetEpochParticipants fetches the active participant set for a given epoch.
func (c *Client) GetEpochParticipants(epochID int64) (ActiveParticipantsResponse, error) {
	path := fmt.Sprintf("/v1/epochs/%d/participants", epochID)
	return getJSON[ActiveParticipantsResponse](c, path, nil, nil)
}

// GetAllParticipants fetches the full participant registry, pinned to the
// given block height when height > 0.
func (c *Client) GetAllParticipants(height int64) (ParticipantListResponse, error) {
	query := map[string]string{"pagination.limit": participantPageLimit}
	var headers map[string]string
	if height > 0 {
		headers = map[string]string{"X-Cosmos-Block-Height": strconv.FormatInt(height, 10)}
	}
	return getJSON[ParticipantListResponse](c, "/chain-api/productscience/inference/inference/participant", query, headers)
}

// GetBlock fetches the block at the given height.
func (c *Client) GetBlock(height int64) (BlockResponse, error) {
	path := fmt.Sprintf("/chain-api/cosmos/base/tendermint/v1beta1/blocks/%d", height)
	return getJSON[BlockResponse](c, path, nil, nil)
}

// GetModelsAll fetches the model registry listing.
func (c *Client) GetModelsAll() (ModelsAllResponse, error) {
	return getJSON[ModelsAllResponse](c, "/models/all", nil, nil)
}

// GetModelsStats fetches per-model usage statistics.
func (c *Client) GetModelsStats() (ModelsStatsResponse, error) {
	return getJSON[ModelsStatsResponse](c, "/models/stats", nil, nil)
}
