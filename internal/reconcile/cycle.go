package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"cosmossdk.io/math"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/oracle-monitor/internal/feeds"
	"github.com/rickgao/oracle-monitor/internal/model"
)

// FeedObservation is the derived state of one feed for one oracle.
type FeedObservation struct {
	Feed         string
	Value        model.FeedValue // Normalized submission
	Canonical    math.LegacyDec  // Feed's published price, valid when HasCanonical
	HasCanonical bool
}

// Result is everything one reconciliation derived for an oracle.
type Result struct {
	Oracle      string
	BlockHeight int64
	StartIndex  int
	LastIndex   int
	Restarted   bool // Checkpoint was past the end of history, scan restarted at 0
	Scanned     int  // Offers visited
	Feeds       []FeedObservation
	Balances    []model.Balance
}

// Cycle is one poll sweep. Its methods are safe for concurrent use.
type Cycle struct {
	r *Reconciler

	group  singleflight.Group
	mu     sync.Mutex
	quotes map[string]quoteResult
}

type quoteResult struct {
	quote feeds.Quote
	err   error
}

// Quote returns the feed's canonical quote, fetching it at most once per
// cycle. A successful fetch also refreshes the feed's denominator.
func (c *Cycle) Quote(ctx context.Context, feed string) (feeds.Quote, error) {
	if res, ok := c.cached(feed); ok {
		return res.quote, res.err
	}

	v, _, _ := c.group.Do(feed, func() (any, error) {
		if res, ok := c.cached(feed); ok {
			return res, nil
		}

		q, err := c.r.quotes.Decode(ctx, feed)
		if err != nil {
			kind := model.ErrKindConnectivity
			var decErr *feeds.DecodeError
			if errors.As(err, &decErr) {
				kind = model.ErrKindDecode
			}
			c.r.logger.Warn("feed quote unavailable", "feed", feed, "kind", kind, "error", err)
			c.r.record(kind)
		} else {
			c.r.setDenominator(feed, q.AmountIn)
		}

		res := quoteResult{quote: q, err: err}
		c.mu.Lock()
		c.quotes[feed] = res
		c.mu.Unlock()
		return res, nil
	})

	res := v.(quoteResult)
	return res.quote, res.err
}

func (c *Cycle) cached(feed string) (quoteResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.quotes[feed]
	return res, ok
}

// Reconcile scans the oracle's offers from the checkpoint forward and returns
// the new checkpoint with the values derived from it. On a wallet read failure
// the given checkpoint is returned unchanged along with the error.
func (c *Cycle) Reconcile(ctx context.Context, o model.Oracle, cp model.Checkpoint) (model.Checkpoint, *Result, error) {
	r := c.r
	logger := r.logger.With("oracle", o.Name, "address", o.Address)

	snap, err := r.wallets.WalletSnapshot(ctx, o.Address)
	if err != nil {
		r.record(model.ErrKindConnectivity)
		return cp, nil, fmt.Errorf("wallet snapshot %s: %w", o.Address, err)
	}

	offers := snap.Offers
	start := cp.LastIndex
	res := &Result{
		Oracle:      o.Address,
		BlockHeight: snap.BlockHeight,
	}
	if start > len(offers) || start < 0 {
		logger.Warn("checkpoint beyond offer history, rescanning from 0",
			"last_index", cp.LastIndex,
			"offers", len(offers),
		)
		start = 0
		res.Restarted = true
	}
	res.StartIndex = start

	next := model.Checkpoint{LastIndex: start, Values: make(map[string]model.FeedValue)}
	observed := make(map[string]FeedObservation)

	for i := start; i < len(offers); i++ {
		offer := offers[i]
		res.Scanned++
		if !offer.IsPricePush() {
			continue
		}
		// Every price push advances the index, usable or not.
		next.LastIndex = i

		obs, ok := c.observe(ctx, logger, o, offer)
		if !ok {
			continue
		}
		next.Values[obs.Feed] = obs.Value
		observed[obs.Feed] = obs
	}
	res.LastIndex = next.LastIndex

	for _, feed := range sortedKeys(observed) {
		res.Feeds = append(res.Feeds, observed[feed])
	}
	for _, b := range snap.Balances {
		if r.allowBrand(b.Brand) {
			res.Balances = append(res.Balances, b)
		}
	}

	logger.Debug("reconciled oracle",
		"start_index", res.StartIndex,
		"last_index", res.LastIndex,
		"scanned", res.Scanned,
		"feeds", len(res.Feeds),
		"balances", len(res.Balances),
	)
	return next, res, nil
}

// observe derives the feed value of one price push.
func (c *Cycle) observe(ctx context.Context, logger *slog.Logger, o model.Oracle, offer model.Offer) (FeedObservation, bool) {
	r := c.r

	if offer.Push == nil {
		logger.Warn("skipping price push without arguments", "offer_id", offer.ID, "index", offer.Index)
		r.record(model.ErrKindOffer)
		return FeedObservation{}, false
	}

	feed, ok := o.FeedFor(offer.PreviousOffer)
	if !ok {
		err := &feeds.ResolutionError{Oracle: o.Address, InvitationID: offer.PreviousOffer}
		logger.Warn("skipping price push", "offer_id", offer.ID, "index", offer.Index, "error", err)
		r.record(model.ErrKindResolution)
		return FeedObservation{}, false
	}

	id, err := strconv.ParseInt(offer.ID, 10, 64)
	if err != nil {
		logger.Warn("skipping price push with non-numeric id", "offer_id", offer.ID, "index", offer.Index)
		r.record(model.ErrKindOffer)
		return FeedObservation{}, false
	}

	quote, quoteErr := c.Quote(ctx, feed)

	den, ok := r.Denominator(feed)
	if !ok {
		logger.Warn("no denominator for feed yet, skipping submission", "feed", feed, "offer_id", offer.ID)
		return FeedObservation{}, false
	}

	price, err := model.Ratio(offer.Push.UnitPrice, den)
	if err != nil {
		logger.Warn("cannot normalize submission", "feed", feed, "offer_id", offer.ID, "error", err)
		r.record(model.ErrKindDecode)
		return FeedObservation{}, false
	}

	return FeedObservation{
		Feed: feed,
		Value: model.FeedValue{
			Price: price,
			ID:    id,
			Round: offer.Push.RoundID,
		},
		Canonical:    quote.Price,
		HasCanonical: quoteErr == nil,
	}, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
