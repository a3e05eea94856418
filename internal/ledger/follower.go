package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// cellReader is the part of Client the follower needs.
type cellReader interface {
	ReadCell(ctx context.Context, path string, height int64) (StreamCell, error)
}

// Follower recovers the full history of published paths.
//
// Cells are immutable once written, so each path's history is cached and
// later calls only walk back to the newest cell already seen.
type Follower struct {
	reader cellReader
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string][]StreamCell // path -> cells, oldest first
}

// NewFollower creates a follower reading through reader.
func NewFollower(reader cellReader, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		reader: reader,
		logger: logger,
		cache:  make(map[string][]StreamCell),
	}
}

// History returns every cell ever written to path, oldest first.
func (f *Follower) History(ctx context.Context, path string) ([]StreamCell, error) {
	latest, err := f.reader.ReadCell(ctx, path, 0)
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if latest.BlockHeight == 0 {
		// Unframed value: there is no history to walk.
		return []StreamCell{latest}, nil
	}

	f.mu.Lock()
	cached := f.cache[path]
	f.mu.Unlock()

	var top int64
	if len(cached) > 0 {
		top = cached[len(cached)-1].BlockHeight
		if latest.BlockHeight < top {
			f.logger.Warn("stream height went backwards, dropping cached history",
				"path", path,
				"cached_height", top,
				"latest_height", latest.BlockHeight,
			)
			cached, top = nil, 0
		}
	}

	// Walk back from the newest cell until we reach what is cached.
	var fresh []StreamCell
	cell := latest
	for {
		if len(cached) > 0 && cell.BlockHeight <= top {
			break
		}
		fresh = append(fresh, cell)
		if cell.BlockHeight <= 1 {
			break
		}

		prev, err := f.reader.ReadCell(ctx, path, cell.BlockHeight-1)
		if err != nil {
			if isHistoryEnd(err) {
				f.logger.Debug("stream history ends", "path", path, "height", cell.BlockHeight, "error", err)
				break
			}
			return nil, err
		}
		if prev.BlockHeight >= cell.BlockHeight {
			break
		}
		cell = prev
	}

	history := make([]StreamCell, 0, len(cached)+len(fresh))
	history = append(history, cached...)
	for i := len(fresh) - 1; i >= 0; i-- {
		history = append(history, fresh[i])
	}

	f.mu.Lock()
	f.cache[path] = history
	f.mu.Unlock()

	return history, nil
}

// Values flattens a path's history into its published values, oldest first.
func (f *Follower) Values(ctx context.Context, path string) ([]string, error) {
	history, err := f.History(ctx, path)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, cell := range history {
		values = append(values, cell.Values...)
	}
	return values, nil
}

// Forget drops the cached history of path.
func (f *Follower) Forget(path string) {
	f.mu.Lock()
	delete(f.cache, path)
	f.mu.Unlock()
}

// isHistoryEnd reports whether a failed read of an older cell means there is
// nothing further back: the path did not exist yet, or the node pruned it.
func isHistoryEnd(err error) bool {
	if errors.Is(err, ErrNoData) {
		return true
	}
	var ledgerErr *Error
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code != 0
	}
	return false
}
