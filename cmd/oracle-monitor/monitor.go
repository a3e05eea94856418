package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/oracle-monitor/internal/checkpoint"
	"github.com/rickgao/oracle-monitor/internal/feeds"
	"github.com/rickgao/oracle-monitor/internal/ledger"
	"github.com/rickgao/oracle-monitor/internal/metrics"
	"github.com/rickgao/oracle-monitor/internal/model"
	"github.com/rickgao/oracle-monitor/internal/poller"
	"github.com/rickgao/oracle-monitor/internal/reconcile"
	"github.com/rickgao/oracle-monitor/internal/server"
)

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Poll oracle wallets and serve Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMonitor(ctx, opts.configPath)
		},
	}
}

func runMonitor(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, logger := a.cfg, a.logger

	oracles, err := cfg.LoadOracles()
	if err != nil {
		return fmt.Errorf("load oracles: %w", err)
	}
	if len(oracles) == 0 {
		logger.Warn("no oracles configured")
	}

	m := metrics.New()
	updater := metrics.NewUpdater(m, logger)

	// Feeds are resolved by the scheduler, retried each cycle until they succeed.
	resolver := feeds.NewResolver(a.client, logger, feeds.WithSkipHook(func(*feeds.ResolutionError) {
		m.RecordError(model.ErrKindResolution)
	}))

	store, err := checkpoint.Open(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	ids := make([]string, 0, len(oracles))
	list := make([]model.Oracle, 0, len(oracles))
	for _, o := range oracles {
		ids = append(ids, o.Address)
		list = append(list, *o)
	}

	state, err := store.Load(ctx, ids)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}
	logger.Info("checkpoints loaded", "backend", store.Backend(), "oracles", len(state))

	rec := reconcile.New(a.client, feeds.NewDecoder(a.client, logger),
		reconcile.WithLogger(logger),
		reconcile.WithBrands(cfg.Balances.Brands),
		reconcile.WithErrorHook(m.RecordError),
	)

	sched := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Poller.Timeout,
	}, list, state, rec, store, m, logger, poller.WithResolver(resolver))

	routerCfg := server.Config{
		MetricsPath: cfg.Metrics.Path,
		Metrics:     m.Handler(),
		Cycles:      sched,
		State:       store,
		Network:     cfg.Network.Name,
		Interval:    cfg.Poller.Interval,
		Logger:      logger,
	}

	var head *ledger.HeadWatcher
	if cfg.Network.HeadWatchEnabled() {
		head = ledger.NewHeadWatcher(ledger.HeadConfig{URL: ledger.WebsocketURL(a.rpcURL)}, updater.ObserveHeight, logger)
		if err := head.Start(ctx); err != nil {
			return fmt.Errorf("start head watcher: %w", err)
		}
		routerCfg.Head = head
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("oracle monitor running",
		"oracles", len(list),
		"interval", cfg.Poller.Interval,
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	if head != nil {
		if err := head.Stop(shutdownCtx); err != nil {
			logger.Warn("head watcher did not stop cleanly", "error", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}

	logger.Info("oracle monitor stopped")
	return nil
}
