package metrics

import (
	"log/slog"
	"strconv"

	"cosmossdk.io/math"

	"github.com/rickgao/oracle-monitor/internal/model"
	"github.com/rickgao/oracle-monitor/internal/reconcile"
)

var hundred = math.LegacyNewDec(100)

// Deviation returns |submitted - canonical| / canonical * 100. It reports
// false when canonical is zero or missing.
func Deviation(submitted, canonical math.LegacyDec) (math.LegacyDec, bool) {
	if submitted.IsNil() || canonical.IsNil() || canonical.IsZero() {
		return math.LegacyDec{}, false
	}
	return submitted.Sub(canonical).Abs().Mul(hundred).Quo(canonical), true
}

// Updater pushes reconciliation results into the gauges.
type Updater struct {
	m      *Metrics
	logger *slog.Logger
}

// NewUpdater creates an updater.
func NewUpdater(m *Metrics, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{m: m, logger: logger}
}

// Apply sets the feed and balance series of one oracle.
func (u *Updater) Apply(o model.Oracle, res *reconcile.Result) {
	if res == nil {
		return
	}

	for _, obs := range res.Feeds {
		labels := []string{o.Name, o.Address, obs.Feed}

		u.m.LatestValue.WithLabelValues(labels...).Set(model.DecFloat(obs.Value.Price))
		u.m.LastObservation.WithLabelValues(labels...).Set(float64(obs.Value.ID))
		u.m.LastRound.WithLabelValues(labels...).Set(float64(obs.Value.Round))

		if !obs.HasCanonical {
			continue
		}
		u.m.ActualPrice.WithLabelValues(obs.Feed).Set(model.DecFloat(obs.Canonical))

		dev, ok := Deviation(obs.Value.Price, obs.Canonical)
		if !ok {
			u.logger.Debug("deviation undefined", "feed", obs.Feed, "canonical", obs.Canonical.String())
			continue
		}
		u.m.PriceDeviation.WithLabelValues(labels...).Set(model.DecFloat(dev))
	}

	for _, b := range res.Balances {
		u.m.Balance.WithLabelValues(o.Name, o.Address, b.Brand).Set(model.IntFloat(b.Value))
	}

	u.m.LastIndex.WithLabelValues(o.Name, o.Address).Set(float64(res.LastIndex))
}

// ObserveHeight records the latest chain height.
func (u *Updater) ObserveHeight(height int64) {
	u.m.ChainHeight.Set(float64(height))
}

// FormatPercent renders a deviation for logs and the CLI.
func FormatPercent(d math.LegacyDec) string {
	f := model.DecFloat(d)
	return strconv.FormatFloat(f, 'f', 4, 64) + "%"
}
