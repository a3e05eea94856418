package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/oracle-monitor/internal/model"
	"github.com/rickgao/oracle-monitor/internal/reconcile"
)

func newTestMetrics() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func TestDeviation(t *testing.T) {
	tests := []struct {
		name      string
		submitted string
		canonical string
		want      string
		ok        bool
	}{
		{name: "above", submitted: "100", canonical: "90", want: "11.111111111111111111", ok: true},
		{name: "below", submitted: "90", canonical: "100", want: "10.000000000000000000", ok: true},
		{name: "equal", submitted: "100", canonical: "100", want: "0.000000000000000000", ok: true},
		{name: "zero canonical", submitted: "100", canonical: "0", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Deviation(model.MustDec(tt.submitted), model.MustDec(tt.canonical))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}

	_, ok := Deviation(model.MustDec("1"), math.LegacyDec{})
	assert.False(t, ok, "missing canonical")
}

func sampleOracle() model.Oracle {
	return model.Oracle{Address: "agoric1oracle", Name: "DSRV"}
}

func TestUpdater_Apply(t *testing.T) {
	m := newTestMetrics()
	u := NewUpdater(m, nil)

	res := &reconcile.Result{
		Oracle:    "agoric1oracle",
		LastIndex: 4,
		Feeds: []reconcile.FeedObservation{
			{
				Feed:         "ATOM-USD",
				Value:        model.FeedValue{Price: model.MustDec("100"), ID: 1700000000123, Round: 3},
				Canonical:    model.MustDec("90"),
				HasCanonical: true,
			},
		},
		Balances: []model.Balance{
			{Brand: "BLD", Value: math.NewInt(1_000_000)},
			{Brand: "IST", Value: math.NewInt(250)},
		},
	}
	u.Apply(sampleOracle(), res)

	labels := []string{"DSRV", "agoric1oracle", "ATOM-USD"}
	assert.Equal(t, 100.0, testutil.ToFloat64(m.LatestValue.WithLabelValues(labels...)))
	assert.Equal(t, 1700000000123.0, testutil.ToFloat64(m.LastObservation.WithLabelValues(labels...)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LastRound.WithLabelValues(labels...)))
	assert.InDelta(t, 11.1111, testutil.ToFloat64(m.PriceDeviation.WithLabelValues(labels...)), 0.0001)
	assert.Equal(t, 90.0, testutil.ToFloat64(m.ActualPrice.WithLabelValues("ATOM-USD")))
	assert.Equal(t, 1_000_000.0, testutil.ToFloat64(m.Balance.WithLabelValues("DSRV", "agoric1oracle", "BLD")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Balance))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LastIndex.WithLabelValues("DSRV", "agoric1oracle")))
}

func TestUpdater_EndToEndDeviationZero(t *testing.T) {
	m := newTestMetrics()
	NewUpdater(m, nil).Apply(sampleOracle(), &reconcile.Result{
		Feeds: []reconcile.FeedObservation{{
			Feed:         "ATOM-USD",
			Value:        model.FeedValue{Price: model.MustDec("100"), ID: 1, Round: 3},
			Canonical:    model.MustDec("100"),
			HasCanonical: true,
		}},
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.PriceDeviation.WithLabelValues("DSRV", "agoric1oracle", "ATOM-USD")))
}

func TestUpdater_SkipsDeviationWithoutCanonical(t *testing.T) {
	m := newTestMetrics()
	u := NewUpdater(m, nil)

	u.Apply(sampleOracle(), &reconcile.Result{
		Feeds: []reconcile.FeedObservation{
			{Feed: "ATOM-USD", Value: model.FeedValue{Price: model.MustDec("100")}, HasCanonical: false},
			{Feed: "OSMO-USD", Value: model.FeedValue{Price: model.MustDec("1")}, Canonical: math.LegacyZeroDec(), HasCanonical: true},
		},
	})

	assert.Equal(t, 2, testutil.CollectAndCount(m.LatestValue))
	assert.Equal(t, 0, testutil.CollectAndCount(m.PriceDeviation), "no series, not NaN or Inf")
	assert.Equal(t, 1, testutil.CollectAndCount(m.ActualPrice))

	u.Apply(sampleOracle(), nil)
}

func TestRecordError(t *testing.T) {
	m := newTestMetrics()
	m.RecordError(model.ErrKindDecode)
	m.RecordError(model.ErrKindDecode)
	m.RecordError(model.ErrKindConnectivity)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Errors.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("connectivity")))
}

func TestAppLabel(t *testing.T) {
	m := newTestMetrics()
	NewUpdater(m, nil).ObserveHeight(42)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "oracle_monitor_chain_height" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		metric := mf.GetMetric()[0]
		assert.Equal(t, 42.0, metric.GetGauge().GetValue())
		require.Len(t, metric.GetLabel(), 1)
		assert.Equal(t, "app", metric.GetLabel()[0].GetName())
		assert.Equal(t, "agoric-cl-oracle-monitor", metric.GetLabel()[0].GetValue())
	}
	assert.True(t, found)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ActualPrice.WithLabelValues("ATOM-USD").Set(9.87)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `actual_price{app="agoric-cl-oracle-monitor",feed="ATOM-USD"} 9.87`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "11.1111%", FormatPercent(model.MustDec("11.111111")))
}
