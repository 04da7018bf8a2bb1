package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hitcounter/core"
	"github.com/yourusername/hitcounter/metrics"
	"github.com/yourusername/hitcounter/store"
)

func newTestServer(t *testing.T, config core.Config) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	window, err := core.NewSlidingWindow(config)
	require.NoError(t, err)

	tracker := metrics.NewMetrics()
	h := NewHandler(store.NewMemoryStore(), window, tracker, nil)
	h.now = func() int64 { return 1_000 }

	srv := httptest.NewServer(Routes(h, tracker))
	t.Cleanup(srv.Close)
	return srv, tracker
}

func record(t *testing.T, srv *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/record", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func hits(t *testing.T, srv *httptest.Server, key string, ts int64) HitsResponse {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/hits?key=%s&timestamp=%d", srv.URL, key, ts))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out HitsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRecordAndGetHits(t *testing.T) {
	srv, tracker := newTestServer(t, core.Config{})

	for _, ts := range []int64{1, 2, 3} {
		status, body := record(t, srv, fmt.Sprintf(`{"key":"user-1","timestamp":%d}`, ts))
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(ts), body["timestamp"])
	}
	assert.Equal(t, int64(3), hits(t, srv, "user-1", 4).Hits)

	status, body := record(t, srv, `{"key":"user-1","timestamp":300}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["hits"])

	got := hits(t, srv, "user-1", 300)
	assert.Equal(t, HitsResponse{Key: "user-1", Timestamp: 300, Window: 300, Hits: 4}, got)
	assert.Equal(t, int64(3), hits(t, srv, "user-1", 301).Hits)
	assert.Equal(t, int64(0), hits(t, srv, "nobody", 301).Hits)

	snap := tracker.GetSnapshot()
	assert.Equal(t, int64(4), snap.AcceptedRecords)
	assert.Equal(t, int64(4), snap.TotalQueries)
}

func TestRecord_DefaultsToNow(t *testing.T) {
	srv, _ := newTestServer(t, core.Config{Width: 10})

	status, body := record(t, srv, `{"key":"k"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1_000), body["timestamp"])
	assert.Equal(t, float64(1), body["hits"])

	resp, err := http.Get(srv.URL + "/hits?key=k")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out HitsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(1), out.Hits)
	assert.Equal(t, int64(10), out.Window)
}

func TestRecord_Errors(t *testing.T) {
	srv, tracker := newTestServer(t, core.Config{Policy: core.Strict})

	status, _ := record(t, srv, `{"key":"k","timestamp":50}`)
	require.Equal(t, http.StatusOK, status)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"invalid json", `{"key":`, http.StatusBadRequest, "invalid_request"},
		{"missing key", `{"timestamp":5}`, http.StatusBadRequest, "missing_key"},
		{"negative timestamp", `{"key":"k","timestamp":-1}`, http.StatusConflict, "invalid_timestamp"},
		{"out of order", `{"key":"k","timestamp":49}`, http.StatusConflict, "invalid_timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := record(t, srv, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}

	// rejected records leave the log alone
	assert.Equal(t, int64(1), hits(t, srv, "k", 50).Hits)
	assert.Equal(t, int64(2), tracker.GetSnapshot().RejectedRecords)
}

type failingStore struct{ store.Store }

func (failingStore) Update(context.Context, string, store.UpdateFunc) (*core.HitLog, error) {
	return nil, store.ErrStoreFailed
}

func TestRecord_StoreUnavailable(t *testing.T) {
	window, err := core.NewSlidingWindow(core.Config{})
	require.NoError(t, err)
	tracker := metrics.NewMetrics()
	srv := httptest.NewServer(Routes(NewHandler(failingStore{}, window, tracker, nil), tracker))
	t.Cleanup(srv.Close)

	status, body := record(t, srv, `{"key":"k","timestamp":10}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "store_unavailable", body["error"])

	snap := tracker.GetSnapshot()
	assert.Equal(t, int64(0), snap.RejectedRecords)
	assert.Equal(t, int64(0), snap.TotalRecords)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, core.Config{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/record"},
		{http.MethodPost, "/hits?key=k"},
		{http.MethodGet, "/counters?key=k"},
	} {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestGetHits_BadQuery(t *testing.T) {
	srv, _ := newTestServer(t, core.Config{})

	for _, path := range []string{"/hits", "/hits?key=k&timestamp=soon"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestReset(t *testing.T) {
	srv, _ := newTestServer(t, core.Config{})

	status, _ := record(t, srv, `{"key":"k","timestamp":10}`)
	require.Equal(t, http.StatusOK, status)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/counters?key=k", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, int64(0), hits(t, srv, "k", 10).Hits)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/counters", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, core.Config{})
	status, _ := record(t, srv, `{"key":"k","timestamp":10}`)
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.TotalRecords)
	require.Len(t, snap.TopKeys, 1)
	assert.Equal(t, "k", snap.TopKeys[0].Key)

	resp, err = http.Get(srv.URL + "/metrics/prometheus")
	require.NoError(t, err)
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), `hitcounter_records_total{result="accepted"} 1`)

	resp, err = http.Post(srv.URL+"/metrics", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
