package reconcile

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"cosmossdk.io/math"

	"github.com/rickgao/oracle-monitor/internal/feeds"
	"github.com/rickgao/oracle-monitor/internal/model"
)

// WalletSource provides coalesced wallet snapshots.
type WalletSource interface {
	WalletSnapshot(ctx context.Context, addr string) (*model.WalletSnapshot, error)
}

// QuoteSource provides canonical feed quotes.
type QuoteSource interface {
	Decode(ctx context.Context, feed string) (feeds.Quote, error)
}

// Reconciler holds the cross-cycle state of the reconciliation engine.
type Reconciler struct {
	wallets WalletSource
	quotes  QuoteSource
	logger  *slog.Logger
	brands  []string
	onError func(model.ErrorKind)

	mu           sync.RWMutex
	denominators map[string]math.Int // feed -> last decoded amountIn
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBrands sets the balance allow-list.
func WithBrands(brands []string) Option {
	return func(r *Reconciler) {
		r.brands = append([]string(nil), brands...)
	}
}

// WithErrorHook is called once for every recoverable error.
func WithErrorHook(fn func(model.ErrorKind)) Option {
	return func(r *Reconciler) {
		r.onError = fn
	}
}

// DefaultBrands is the balance allow-list used when none is configured.
var DefaultBrands = []string{"BLD", "IST"}

// New creates a reconciler.
func New(wallets WalletSource, quotes QuoteSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		wallets:      wallets,
		quotes:       quotes,
		logger:       slog.Default(),
		brands:       DefaultBrands,
		denominators: make(map[string]math.Int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewCycle starts a poll sweep with an empty quote cache.
func (r *Reconciler) NewCycle() *Cycle {
	return &Cycle{
		r:      r,
		quotes: make(map[string]quoteResult),
	}
}

// Denominator returns the last decoded amount-in for feed.
func (r *Reconciler) Denominator(feed string) (math.Int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.denominators[feed]
	return d, ok
}

func (r *Reconciler) setDenominator(feed string, d math.Int) {
	r.mu.Lock()
	r.denominators[feed] = d
	r.mu.Unlock()
}

func (r *Reconciler) allowBrand(brand string) bool {
	return slices.Contains(r.brands, brand)
}

func (r *Reconciler) record(kind model.ErrorKind) {
	if r.onError != nil {
		r.onError(kind)
	}
}
