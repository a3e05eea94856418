package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/oracle-monitor/internal/model"
)

// ErrNotFound is returned by a backend that holds no document yet.
var ErrNotFound = errors.New("checkpoint document not found")

// Backend reads and writes the raw state document.
type Backend interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Store loads and saves the checkpoint document through a backend.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu   sync.RWMutex
	last model.State // Most recently loaded or saved state
}

// NewStore creates a store over backend.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Backend returns the backend name (e.g., "file").
func (s *Store) Backend() string {
	return s.backend.Name()
}

// Load returns the persisted state with a checkpoint for every oracle in
// oracleIDs. A missing or corrupt document is replaced by a zeroed one, which
// is written back before Load returns. Backend failures are returned.
func (s *Store) Load(ctx context.Context, oracleIDs []string) (model.State, error) {
	data, err := s.backend.Read(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("read checkpoint (%s): %w", s.backend.Name(), err)
	}

	var state model.State
	initialize := errors.Is(err, ErrNotFound)
	if !initialize {
		if err := json.Unmarshal(data, &state); err != nil {
			s.logger.Warn("checkpoint document corrupt, reinitializing",
				"backend", s.backend.Name(),
				"error", err,
			)
			initialize = true
		}
	}

	if initialize {
		state = make(model.State, len(oracleIDs))
		for _, id := range oracleIDs {
			state[id] = model.NewCheckpoint()
		}
		if err := s.Save(ctx, state); err != nil {
			return nil, err
		}
		s.logger.Info("initialized checkpoint", "backend", s.backend.Name(), "oracles", len(oracleIDs))
		return state, nil
	}

	if state == nil {
		state = make(model.State, len(oracleIDs))
	}
	for id, cp := range state {
		if cp.Values == nil {
			cp.Values = make(map[string]model.FeedValue)
			state[id] = cp
		}
	}
	for _, id := range oracleIDs {
		if _, ok := state[id]; !ok {
			state[id] = model.NewCheckpoint()
		}
	}

	s.remember(state)
	s.logger.Info("loaded checkpoint", "backend", s.backend.Name(), "oracles", len(state))
	return state, nil
}

// Save overwrites the persisted document with state.
func (s *Store) Save(ctx context.Context, state model.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("write checkpoint (%s): %w", s.backend.Name(), err)
	}
	s.remember(state)
	return nil
}

// Snapshot returns a copy of the most recently loaded or saved state.
func (s *Store) Snapshot() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.Clone()
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) remember(state model.State) {
	s.mu.Lock()
	s.last = state.Clone()
	s.mu.Unlock()
}
