package tracker

import (
	"encoding/json"
	"math"

	"github.com/bytedance/sonic"

	"github.com/gonka-top/tracker/internal/gonka"
)

// epochStatCounts are the counters parsed out of the opaque
// current_epoch_stats structure for metric derivation.
type epochStatCounts struct {
	InferenceCount        gonka.FlexInt `json:"inference_count"`
	MissedRequests        gonka.FlexInt `json:"missed_requests"`
	ValidatedInferences   gonka.FlexInt `json:"validated_inferences"`
	InvalidatedInferences gonka.FlexInt `json:"invalidated_inferences"`
}

// parseEpochStats tolerates absent or malformed stats; unparseable counters
// yield zero counts and therefore zero rates.
func parseEpochStats(raw json.RawMessage) epochStatCounts {
	var counts epochStatCounts
	if len(raw) == 0 {
		return counts
	}
	if err := sonic.Unmarshal(raw, &counts); err != nil {
		return epochStatCounts{}
	}
	return counts
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// missedRate is missed / (missed + inferences), 0 when the denominator is 0.
func missedRate(counts epochStatCounts) float64 {
	missed := float64(counts.MissedRequests)
	total := missed + float64(counts.InferenceCount)
	if total == 0 {
		return 0
	}
	return round4(missed / total)
}

// invalidationRate is invalidated / inferences, 0 when no inferences ran.
func invalidationRate(counts epochStatCounts) float64 {
	inferences := float64(counts.InferenceCount)
	if inferences == 0 {
		return 0
	}
	return round4(float64(counts.InvalidatedInferences) / inferences)
}
