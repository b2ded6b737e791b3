package tracker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEpochStats(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want epochStatCounts
	}{
		{
			name: "string encoded counters",
			raw:  `{"inference_count":"10","missed_requests":"2","invalidated_inferences":"1"}`,
			want: epochStatCounts{InferenceCount: 10, MissedRequests: 2, InvalidatedInferences: 1},
		},
		{
			name: "numeric counters",
			raw:  `{"inference_count":10,"missed_requests":2}`,
			want: epochStatCounts{InferenceCount: 10, MissedRequests: 2},
		},
		{
			name: "empty payload",
			raw:  "",
			want: epochStatCounts{},
		},
		{
			name: "malformed payload yields zeros",
			raw:  `{"inference_count":"ten"}`,
			want: epochStatCounts{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseEpochStats(json.RawMessage(tc.raw)))
		})
	}
}

func TestMissedRate(t *testing.T) {
	cases := []struct {
		name   string
		counts epochStatCounts
		want   float64
	}{
		{"two of twelve", epochStatCounts{InferenceCount: 10, MissedRequests: 2}, 0.1667},
		{"zero denominator", epochStatCounts{}, 0},
		{"all missed", epochStatCounts{MissedRequests: 5}, 1},
		{"one third", epochStatCounts{InferenceCount: 2, MissedRequests: 1}, 0.3333},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, missedRate(tc.counts))
		})
	}
}

func TestInvalidationRate(t *testing.T) {
	cases := []struct {
		name   string
		counts epochStatCounts
		want   float64
	}{
		{"one of ten", epochStatCounts{InferenceCount: 10, InvalidatedInferences: 1}, 0.1},
		{"no inferences", epochStatCounts{InvalidatedInferences: 3}, 0},
		{"repeating decimal rounds", epochStatCounts{InferenceCount: 3, InvalidatedInferences: 1}, 0.3333},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, invalidationRate(tc.counts))
		})
	}
}
