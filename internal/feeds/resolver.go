package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/oracle-monitor/internal/model"
)

// priceFeedSuffix ends every price feed instance name in agoricNames.
const priceFeedSuffix = " price feed"

// Registry is the ledger view the resolver needs.
type Registry interface {
	WalletCurrent(ctx context.Context, addr string) (*model.WalletCurrent, error)
	InstanceNames(ctx context.Context) (map[string]string, error)
}

// Resolver fills each oracle's invitation -> feed map.
type Resolver struct {
	registry Registry
	logger   *slog.Logger
	onSkip   func(*ResolutionError)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSkipHook is called for every invitation that could not be resolved.
func WithSkipHook(fn func(*ResolutionError)) ResolverOption {
	return func(r *Resolver) {
		r.onSkip = fn
	}
}

// NewResolver creates a resolver.
func NewResolver(registry Registry, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{registry: registry, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FeedName strips the instance suffix from a registry name
// ("ATOM-USD price feed" -> "ATOM-USD").
func FeedName(instanceName string) string {
	name, _, _ := strings.Cut(instanceName, priceFeedSuffix)
	return name
}

// Resolve merges the oracle's used invitations into its feed map.
func (r *Resolver) Resolve(ctx context.Context, o *model.Oracle) error {
	names, err := r.registry.InstanceNames(ctx)
	if err != nil {
		return fmt.Errorf("read instance registry: %w", err)
	}
	return r.resolve(ctx, o, names)
}

// ResolveAll resolves every oracle against one read of the registry.
// Oracles whose wallet cannot be read are reported in the joined error;
// the others are still resolved.
func (r *Resolver) ResolveAll(ctx context.Context, oracles []*model.Oracle) error {
	names, err := r.registry.InstanceNames(ctx)
	if err != nil {
		return fmt.Errorf("read instance registry: %w", err)
	}

	var errs []error
	for _, o := range oracles {
		if err := r.resolve(ctx, o, names); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) resolve(ctx context.Context, o *model.Oracle, names map[string]string) error {
	current, err := r.registry.WalletCurrent(ctx, o.Address)
	if err != nil {
		return fmt.Errorf("read wallet %s: %w", o.Address, err)
	}

	found := make(map[string]string, len(current.UsedInvitations))
	for invitation, instance := range current.UsedInvitations {
		name, ok := names[instance]
		if !ok {
			r.skip(&ResolutionError{Oracle: o.Address, InvitationID: invitation, Instance: instance})
			continue
		}
		found[invitation] = FeedName(name)
	}
	o.MergeFeeds(found)

	r.logger.Info("resolved oracle feeds",
		"oracle", o.Name,
		"address", o.Address,
		"feeds", len(o.Feeds),
	)
	return nil
}

func (r *Resolver) skip(err *ResolutionError) {
	r.logger.Warn("skipping invitation", "error", err)
	if r.onSkip != nil {
		r.onSkip(err)
	}
}
