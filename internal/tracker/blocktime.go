package tracker

import (
	"fmt"
	"math"
	"time"

	"github.com/gonka-top/tracker/internal/gonka"
)

const (
	// blockTimeSpan is how many blocks back the reference sample sits.
	blockTimeSpan = 10000
	// fallbackAvgBlockTime is used whenever either block sample cannot be
	// fetched or parsed.
	fallbackAvgBlockTime = 6.0
)

func parseBlockTime(block *gonka.BlockResponse) (time.Time, error) {
	ts, ok := block.HeaderTime()
	if !ok {
		return time.Time{}, fmt.Errorf("block header time missing")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse block time %q: %w", ts, err)
	}
	return t, nil
}

// averageBlockTime estimates seconds per block from the blocks at height and
// height-blockTimeSpan, rounded to 2 decimals. Elapsed time is clamped to at
// least one second. Sub-failures never propagate; the fixed fallback is
// returned instead.
func (s *Service) averageBlockTime(height int64) float64 {
	reference := height - blockTimeSpan

	currBlock, err := s.gonka.GetBlock(height)
	if err != nil {
		return fallbackAvgBlockTime
	}
	refBlock, err := s.gonka.GetBlock(reference)
	if err != nil {
		return fallbackAvgBlockTime
	}

	currTime, err := parseBlockTime(&currBlock)
	if err != nil {
		return fallbackAvgBlockTime
	}
	refTime, err := parseBlockTime(&refBlock)
	if err != nil {
		return fallbackAvgBlockTime
	}

	elapsed := currTime.Sub(refTime).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return math.Round(elapsed/float64(height-reference)*100) / 100
}
