package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/oracle-monitor/internal/model"
	"github.com/rickgao/oracle-monitor/internal/poller"
)

type fakeCycles struct {
	sum     poller.Summary
	ok      bool
	running bool
}

func (f fakeCycles) LastCycle() (poller.Summary, bool) { return f.sum, f.ok }
func (f fakeCycles) Running() bool { return f.running }

type fakeState model.State

func (f fakeState) Snapshot() model.State { return model.State(f).Clone() }

type fakeHead struct {
	height    int64
	connected bool
}

func (f fakeHead) Height() int64 { return f.height }
func (f fakeHead) LastBlockAt() time.Time { return time.Unix(1700000000, 0) }
func (f fakeHead) IsConnected() bool { return f.connected }

func getJSON(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	recent := poller.Summary{ID: "c1", StartedAt: time.Now(), Result: poller.ResultOK, Saved: true}
	old := poller.Summary{ID: "c0", StartedAt: time.Now().Add(-time.Hour), Result: poller.ResultOK}

	tests := []struct {
		name       string
		cycles     fakeCycles
		head       HeadSource
		wantStatus string
		wantCode   int
	}{
		{"starting", fakeCycles{running: true}, nil, StatusStarting, http.StatusOK},
		{"healthy", fakeCycles{sum: recent, ok: true}, fakeHead{height: 42, connected: true}, StatusHealthy, http.StatusOK},
		{"partial cycle", fakeCycles{sum: poller.Summary{StartedAt: time.Now(), Result: poller.ResultPartial}, ok: true}, nil, StatusDegraded, http.StatusOK},
		{"head disconnected", fakeCycles{sum: recent, ok: true}, fakeHead{connected: false}, StatusDegraded, http.StatusOK},
		{"stalled", fakeCycles{sum: old, ok: true}, nil, StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(Config{
				Cycles:   tt.cycles,
				Head:     tt.head,
				Network:  "local",
				Interval: 10 * time.Second,
			})
			code, body := getJSON(t, h, "/health")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, "local", body["network"])
			assert.Contains(t, body, "version")
		})
	}
}

func TestHealth_ChainHead(t *testing.T) {
	h := NewRouter(Config{Head: fakeHead{height: 42, connected: true}})
	_, body := getJSON(t, h, "/health")

	components := body["components"].(map[string]any)
	head := components["chain_head"].(map[string]any)
	assert.EqualValues(t, 42, head["height"])
	assert.Equal(t, true, head["connected"])
	assert.Equal(t, "2023-11-14T22:13:20Z", head["last_block_at"])
}

func TestCheckpoints(t *testing.T) {
	state := fakeState{
		"agoric1a": {
			LastIndex: 4,
			Values: map[string]model.FeedValue{
				"ATOM-USD": {Price: model.MustDec("9.5"), ID: 1700000000000, Round: 12},
			},
		},
	}
	h := NewRouter(Config{State: state})

	code, body := getJSON(t, h, "/debug/checkpoints")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	oracles := body["oracles"].(map[string]any)
	cp := oracles["agoric1a"].(map[string]any)
	assert.EqualValues(t, 4, cp["last_index"])
	value := cp["values"].(map[string]any)["ATOM-USD"].(map[string]any)
	assert.EqualValues(t, 9.5, value["price"])
	assert.EqualValues(t, 12, value["round"])
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "oracle_monitor_up 1\n")
	})
	srv := httptest.NewServer(NewRouter(Config{MetricsPath: "/prom", Metrics: metrics}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/prom")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "oracle_monitor_up 1\n", string(body))

	resp2, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
