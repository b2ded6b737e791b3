package gonka

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gonka-top/tracker/internal/config"
)

func newTestClient(t *testing.T, bases []string) *Client {
	t.Helper()
	c, err := NewClient(&config.GonkaEnvConfig{
		InferenceUrls: bases,
		HTTPTimeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func jsonHandler(hits *int64, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

const statusBody = `{"result":{"sync_info":{"latest_block_height":"123"}}}`

func TestNewClient_NilConfig(t *testing.T) {
	_, err := NewClient(nil)
	if err == nil {
		t.Fatalf("expected error when cfg is nil")
	}
}

func TestFailover_RotatesToNextBase(t *testing.T) {
	var hits1, hits2 int64
	bad := httptest.NewServer(jsonHandler(&hits1, http.StatusServiceUnavailable, `{}`))
	t.Cleanup(bad.Close)
	good := httptest.NewServer(jsonHandler(&hits2, http.StatusOK, statusBody))
	t.Cleanup(good.Close)

	c := newTestClient(t, []string{bad.URL, good.URL})

	height, err := c.GetLatestHeight()
	if err != nil {
		t.Fatalf("GetLatestHeight error: %v", err)
	}
	if height != 123 {
		t.Fatalf("expected height 123, got %d", height)
	}
	if hits1 != 1 || hits2 != 1 {
		t.Fatalf("expected one hit per base, got %d and %d", hits1, hits2)
	}
}

func TestFailover_StickyRotation(t *testing.T) {
	var hits1, hits2 int64
	bad := httptest.NewServer(jsonHandler(&hits1, http.StatusServiceUnavailable, `{}`))
	t.Cleanup(bad.Close)
	good := httptest.NewServer(jsonHandler(&hits2, http.StatusOK, statusBody))
	t.Cleanup(good.Close)

	c := newTestClient(t, []string{bad.URL, good.URL})

	if _, err := c.GetLatestHeight(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	// The pointer stays on the good base after the first rotation, so the
	// second call must not touch the dead one again.
	if _, err := c.GetLatestHeight(); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if hits1 != 1 {
		t.Fatalf("dead base hit again after rotation: %d hits", hits1)
	}
	if hits2 != 2 {
		t.Fatalf("expected 2 hits on healthy base, got %d", hits2)
	}
}

func TestFailover_AllBasesFail(t *testing.T) {
	var hits1, hits2 int64
	bad1 := httptest.NewServer(jsonHandler(&hits1, http.StatusServiceUnavailable, `{}`))
	t.Cleanup(bad1.Close)
	bad2 := httptest.NewServer(jsonHandler(&hits2, http.StatusServiceUnavailable, `{}`))
	t.Cleanup(bad2.Close)

	c := newTestClient(t, []string{bad1.URL, bad2.URL})

	_, err := c.GetLatestHeight()
	if err == nil {
		t.Fatalf("expected error when all bases fail")
	}
	if hits1 != 1 || hits2 != 1 {
		t.Fatalf("expected exactly one attempt per base, got %d and %d", hits1, hits2)
	}
}

func TestFailover_NoBases(t *testing.T) {
	c := newTestClient(t, nil)
	if _, err := c.GetLatestHeight(); err == nil {
		t.Fatalf("expected error with no bases configured")
	}
}

func TestJoinURL_NormalizesSlashes(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"http://a", "/p", "http://a/p"},
		{"http://a/", "/p", "http://a/p"},
		{"http://a/", "p", "http://a/p"},
		{"http://a", "p", "http://a/p"},
	}
	for _, tc := range cases {
		if got := joinURL(tc.base, tc.path); got != tc.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}

func TestGetAllParticipants_HeightHeaderAndLimit(t *testing.T) {
	var gotHeader, gotLimit, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Cosmos-Block-Height")
		gotLimit = r.URL.Query().Get("pagination.limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"participant":[{"index":"idx-1","address":"addr"}]}`))
	}))
	t.Cleanup(ts.Close)

	c := newTestClient(t, []string{ts.URL})

	res, err := c.GetAllParticipants(42)
	if err != nil {
		t.Fatalf("GetAllParticipants error: %v", err)
	}
	if gotPath != "/chain-api/productscience/inference/inference/participant" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotHeader != "42" {
		t.Fatalf("expected height header 42, got %q", gotHeader)
	}
	if gotLimit != "10000" {
		t.Fatalf("expected pagination.limit 10000, got %q", gotLimit)
	}
	if len(res.Participant) != 1 || res.Participant[0].Index != "idx-1" {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestGetAllParticipants_NoHeightPin(t *testing.T) {
	headerSet := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerSet = r.Header.Get("X-Cosmos-Block-Height") != ""
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"participant":[]}`))
	}))
	t.Cleanup(ts.Close)

	c := newTestClient(t, []string{ts.URL})
	if _, err := c.GetAllParticipants(0); err != nil {
		t.Fatalf("GetAllParticipants error: %v", err)
	}
	if headerSet {
		t.Fatalf("height header must not be sent for an unpinned request")
	}
}

func TestGetBlock_BothShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"direct", `{"block":{"header":{"height":"10","time":"2024-01-01T00:00:00Z"}}}`},
		{"nested", `{"result":{"block":{"header":{"height":"10","time":"2024-01-01T00:00:00Z"}}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/chain-api/cosmos/base/tendermint/v1beta1/blocks/10" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.body))
			}))
			t.Cleanup(ts.Close)

			c := newTestClient(t, []string{ts.URL})
			block, err := c.GetBlock(10)
			if err != nil {
				t.Fatalf("GetBlock error: %v", err)
			}
			got, ok := block.HeaderTime()
			if !ok || got != "2024-01-01T00:00:00Z" {
				t.Fatalf("unexpected header time %q (ok=%v)", got, ok)
			}
		})
	}
}

func TestGetLatestEpoch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/epochs/latest" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"latest_epoch":{"index":"7"}}`))
	}))
	t.Cleanup(ts.Close)

	c := newTestClient(t, []string{ts.URL})
	res, err := c.GetLatestEpoch()
	if err != nil {
		t.Fatalf("GetLatestEpoch error: %v", err)
	}
	if res.LatestEpoch.Index != 7 {
		t.Fatalf("expected epoch 7, got %d", res.LatestEpoch.Index)
	}
}
