package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/oracle-monitor/internal/logging"
	"github.com/rickgao/oracle-monitor/internal/metrics"
	"github.com/rickgao/oracle-monitor/internal/model"
	"github.com/rickgao/oracle-monitor/internal/reconcile"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("poller: already started")

// Cycle results as exported on oracle_monitor_cycles_total.
const (
	ResultOK         = "ok"
	ResultPartial    = "partial"
	ResultSaveFailed = "save_failed"
)

// StateStore persists the aggregate checkpoint state.
type StateStore interface {
	Save(ctx context.Context, state model.State) error
}

// FeedResolver fills in an oracle's invitation to feed mapping.
type FeedResolver interface {
	Resolve(ctx context.Context, o *model.Oracle) error
}

// Config holds scheduler configuration.
type Config struct {
	Interval    time.Duration // Time between cycles (default: 10s)
	Concurrency int           // Oracles reconciled in parallel (default: 1)
	Timeout     time.Duration // Per-cycle deadline, 0 for none
}

// DefaultConfig returns the defaults used by the monitor.
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Second,
		Concurrency: 1,
	}
}

// Summary describes one completed cycle.
type Summary struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Oracles   int           `json:"oracles"`
	Failed    int           `json:"failed"`
	Scanned   int           `json:"scanned"`
	Restarted int           `json:"restarted"`
	Saved     bool          `json:"saved"`
	Result    string        `json:"result"`
}

// Scheduler drives reconciliation cycles.
type Scheduler struct {
	cfg        Config
	oracles    []model.Oracle
	reconciler *reconcile.Reconciler
	store      StateStore
	metrics    *metrics.Metrics
	updater    *metrics.Updater
	logger     *slog.Logger

	resolver   FeedResolver
	unresolved map[string]bool // oracle address -> feeds not resolved yet

	running atomic.Bool

	mu    sync.RWMutex
	state model.State
	last  *Summary

	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithResolver resolves each oracle's feeds at the start of a cycle until
// resolution succeeds. An oracle is not reconciled while its feeds are
// unresolved, so its checkpoint does not move past pushes it cannot map.
func WithResolver(r FeedResolver) Option {
	return func(s *Scheduler) {
		s.resolver = r
	}
}

// New creates a scheduler starting from the given loaded state.
func New(
	cfg Config,
	oracles []model.Oracle,
	state model.State,
	reconciler *reconcile.Reconciler,
	store StateStore,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if state == nil {
		state = make(model.State)
	}
	s := &Scheduler{
		cfg:        cfg,
		oracles:    oracles,
		reconciler: reconciler,
		store:      store,
		metrics:    m,
		updater:    metrics.NewUpdater(m, logger),
		logger:     logger,
		state:      state.Clone(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver != nil {
		s.unresolved = make(map[string]bool, len(oracles))
		for _, o := range oracles {
			s.unresolved[o.Address] = true
		}
	}
	return s
}

// Start runs a cycle immediately and then on every interval.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	cronLogger := logging.CronLogger(s.logger)
	chain := cron.NewChain(cron.Recover(cronLogger))
	job := chain.Then(cron.FuncJob(s.tick))

	s.cron = cron.New(cron.WithLogger(cronLogger))
	s.cron.Schedule(every(s.cfg.Interval), job)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()
	s.cron.Start()

	s.logger.Info("poll scheduler started",
		"interval", s.cfg.Interval,
		"concurrency", s.cfg.Concurrency,
		"oracles", len(s.oracles),
	)
	return nil
}

// every is a fixed-delay cron schedule. Unlike cron.Every it keeps
// sub-second precision.
type every time.Duration

// Next implements cron.Schedule.
func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Stop cancels the running cycle and waits for it to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("poll scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a copy of the in-memory checkpoint state.
func (s *Scheduler) State() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// LastCycle returns the summary of the most recent cycle, if any.
func (s *Scheduler) LastCycle() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.TicksDropped.Inc()
		s.logger.Warn("previous cycle still running, tick dropped")
		return
	}
	defer s.running.Store(false)

	s.runCycle(s.ctx)
}

// RunCycle runs one cycle unless another is already in progress.
func (s *Scheduler) RunCycle(ctx context.Context) (Summary, bool) {
	if !s.running.CompareAndSwap(false, true) {
		return Summary{}, false
	}
	defer s.running.Store(false)

	return s.runCycle(ctx), true
}

// resolveFeeds retries resolution for oracles whose feeds are still unknown
// and marks the ones that fail in outcomes.
func (s *Scheduler) resolveFeeds(ctx context.Context, logger *slog.Logger, outcomes []outcome) {
	for i := range s.oracles {
		o := &s.oracles[i]
		if !s.unresolved[o.Address] {
			continue
		}
		if err := s.resolver.Resolve(ctx, o); err != nil {
			s.metrics.RecordError(model.ErrKindConnectivity)
			outcomes[i].err = fmt.Errorf("resolve feeds: %w", err)
			continue
		}
		delete(s.unresolved, o.Address)
		logger.Info("oracle feeds resolved", "oracle", o.Name, "feeds", len(o.Feeds))
	}
}

type outcome struct {
	cp  model.Checkpoint
	res *reconcile.Result
	err error
}

func (s *Scheduler) runCycle(ctx context.Context) Summary {
	sum := Summary{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Oracles:   len(s.oracles),
	}
	logger := s.logger.With("cycle", sum.ID)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	prev := s.State()
	cycle := s.reconciler.NewCycle()
	outcomes := make([]outcome, len(s.oracles))
	s.resolveFeeds(ctx, logger, outcomes)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, o := range s.oracles {
		if outcomes[i].err != nil {
			continue
		}
		cp, ok := prev[o.Address]
		if !ok {
			cp = model.NewCheckpoint()
		}
		g.Go(func() error {
			next, res, err := cycle.Reconcile(ctx, o, cp)
			outcomes[i] = outcome{cp: next, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	next := prev
	for i, o := range s.oracles {
		out := outcomes[i]
		if out.err != nil {
			sum.Failed++
			logger.Warn("oracle reconcile failed",
				"oracle", o.Name,
				"address", o.Address,
				"err", out.err,
			)
			continue
		}
		next[o.Address] = out.cp
		sum.Scanned += out.res.Scanned
		if out.res.Restarted {
			sum.Restarted++
		}
		s.updater.Apply(o, out.res)
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	saveCtx := ctx
	if ctx.Err() != nil {
		// Persist progress made before cancellation.
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := s.store.Save(saveCtx, next.Clone()); err != nil {
		s.metrics.RecordError(model.ErrKindCheckpoint)
		logger.Error("failed to save checkpoints", "err", err)
	} else {
		sum.Saved = true
	}

	switch {
	case !sum.Saved:
		sum.Result = ResultSaveFailed
	case sum.Failed > 0:
		sum.Result = ResultPartial
	default:
		sum.Result = ResultOK
	}
	sum.Duration = time.Since(sum.StartedAt)

	s.metrics.CycleDuration.Observe(sum.Duration.Seconds())
	s.metrics.Cycles.WithLabelValues(sum.Result).Inc()

	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()

	logger.Info("poll cycle complete",
		"oracles", sum.Oracles,
		"failed", sum.Failed,
		"scanned", sum.Scanned,
		"restarted", sum.Restarted,
		"saved", sum.Saved,
		"duration", sum.Duration,
	)
	return sum
}
