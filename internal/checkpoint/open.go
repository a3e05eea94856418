package checkpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/oracle-monitor/internal/config"
	"github.com/rickgao/oracle-monitor/internal/database"
	"github.com/rickgao/oracle-monitor/internal/version"
)

// Open builds the store for the configured backend.
func Open(ctx context.Context, cfg config.CheckpointConfig, logger *slog.Logger) (*Store, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Backend {
	case "", "file":
		backend = NewFileBackend(cfg.File)
	case "bolt":
		backend, err = NewBoltBackend(cfg.Bolt.Path, cfg.Bolt.Bucket)
	case "redis":
		backend, err = NewRedisBackend(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
	case "postgres":
		pool, perr := database.Connect(ctx, cfg.Postgres)
		if perr != nil {
			return nil, fmt.Errorf("connect postgres: %w", perr)
		}
		backend, err = NewPostgresBackend(ctx, pool, version.App)
		if err != nil {
			pool.Close()
		}
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewStore(backend, logger), nil
}
