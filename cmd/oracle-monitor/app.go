package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/oracle-monitor/internal/config"
	"github.com/rickgao/oracle-monitor/internal/ledger"
	"github.com/rickgao/oracle-monitor/internal/logging"
	"github.com/rickgao/oracle-monitor/internal/version"
)

// app holds what every command needs: config, logger and a ledger client.
type app struct {
	cfg    *config.MonitorConfig
	logger *slog.Logger
	logs   io.Closer
	client *ledger.Client
	rpcURL string
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, err
	}

	logger, logs, err := logging.Setup(cfg.Logging, version.App)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	logger.Info("configuration loaded",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"network", cfg.Network.Name,
	)

	hc := &http.Client{Timeout: cfg.Network.Timeout}
	resolveCtx, cancel := context.WithTimeout(ctx, cfg.Network.Timeout)
	defer cancel()

	rpcURL, err := ledger.ResolveNetwork(resolveCtx, hc, cfg.Network.Name, cfg.Network.RPC, cfg.Network.ConfigURL)
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("resolve network %q: %w", cfg.Network.Name, err)
	}
	logger.Info("using rpc endpoint", "rpc", rpcURL)

	client := ledger.NewClient(rpcURL,
		ledger.WithLogger(logger),
		ledger.WithTimeout(cfg.Network.Timeout),
		ledger.WithRetries(cfg.Network.MaxRetries, time.Second),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		logs:   logs,
		client: client,
		rpcURL: rpcURL,
	}, nil
}

func (a *app) Close() {
	if a.logs != nil {
		a.logs.Close()
	}
}
