// Package server exposes the monitor's HTTP surface: Prometheus metrics, a
// health report and a dump of the checkpoint state.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/oracle-monitor/internal/model"
	"github.com/rickgao/oracle-monitor/internal/poller"
	"github.com/rickgao/oracle-monitor/internal/version"
)

// CycleSource reports poll progress.
type CycleSource interface {
	LastCycle() (poller.Summary, bool)
	Running() bool
}

// StateSource returns the last persisted checkpoint state.
type StateSource interface {
	Snapshot() model.State
}

// HeadSource reports the chain head subscription.
type HeadSource interface {
	Height() int64
	LastBlockAt() time.Time
	IsConnected() bool
}

// Config wires the handlers. Head is optional.
type Config struct {
	MetricsPath string
	Metrics     http.Handler
	Cycles      CycleSource
	State       StateSource
	Head        HeadSource
	Network     string
	Interval    time.Duration // Poll interval, used to detect a stalled scheduler
	Logger      *slog.Logger
}

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusStarting  = "starting"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// staleCycles is how many intervals may pass without a cycle before the
// monitor reports unhealthy.
const staleCycles = 3

type healthReport struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Network    string         `json:"network,omitempty"`
	Components map[string]any `json:"components"`
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, cfg.Metrics)
	}
	r.Get("/health", healthHandler(cfg))
	r.Get("/debug/checkpoints", checkpointsHandler(cfg))

	return r
}

func healthHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := healthReport{
			Status:     StatusHealthy,
			Version:    version.Version,
			Network:    cfg.Network,
			Components: make(map[string]any),
		}

		if cfg.Cycles != nil {
			sum, ok := cfg.Cycles.LastCycle()
			switch {
			case !ok:
				health.Status = StatusStarting
				health.Components["poller"] = map[string]any{
					"status":  "waiting for first cycle",
					"running": cfg.Cycles.Running(),
				}
			default:
				age := time.Since(sum.StartedAt.Add(sum.Duration))
				health.Components["poller"] = map[string]any{
					"last_cycle": sum,
					"age":        age.Round(time.Millisecond).String(),
					"running":    cfg.Cycles.Running(),
				}
				if cfg.Interval > 0 && age > staleCycles*cfg.Interval {
					health.Status = StatusUnhealthy
				} else if sum.Result != poller.ResultOK {
					health.Status = StatusDegraded
				}
			}
		}

		if cfg.Head != nil {
			head := map[string]any{
				"connected": cfg.Head.IsConnected(),
				"height":    cfg.Head.Height(),
			}
			if at := cfg.Head.LastBlockAt(); !at.IsZero() {
				head["last_block_at"] = at.UTC().Format(time.RFC3339)
			}
			health.Components["chain_head"] = head
			if !cfg.Head.IsConnected() && health.Status == StatusHealthy {
				health.Status = StatusDegraded
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			cfg.Logger.Debug("write health response", "err", err)
		}
	}
}

func checkpointsHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := model.State{}
		if cfg.State != nil {
			state = cfg.State.Snapshot()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"count":   len(state),
			"oracles": state,
		}); err != nil {
			cfg.Logger.Debug("write checkpoints response", "err", err)
		}
	}
}
