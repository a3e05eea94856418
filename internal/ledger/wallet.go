package ledger

import (
	"context"
	"fmt"
	"math/big"

	"cosmossdk.io/math"

	"github.com/rickgao/oracle-monitor/internal/capdata"
	"github.com/rickgao/oracle-monitor/internal/model"
)

// WalletPath returns the vstorage path of a wallet's update stream.
func WalletPath(addr string) string {
	return "published.wallet." + addr
}

// InstancesPath is where the chain publishes its contract instance registry.
const InstancesPath = "published.agoricNames.instance"

// WalletSnapshot follows a wallet's full update stream and coalesces it into
// ordered offers and balances.
func (c *Client) WalletSnapshot(ctx context.Context, addr string) (*model.WalletSnapshot, error) {
	path := WalletPath(addr)

	history, err := c.follower.History(ctx, path)
	if err != nil {
		return nil, err
	}

	co := newCoalescer()
	for _, cell := range history {
		for _, raw := range cell.Values {
			if err := co.add(raw); err != nil {
				c.logger.Warn("skipping undecodable wallet update",
					"address", addr,
					"height", cell.BlockHeight,
					"error", err,
				)
			}
		}
	}

	snap := co.snapshot()
	snap.Address = addr
	if len(history) > 0 {
		snap.BlockHeight = history[len(history)-1].BlockHeight
	}
	return snap, nil
}

// WalletCurrent reads the wallet's "current" record and returns which
// invitation instance each used offer id refers to.
func (c *Client) WalletCurrent(ctx context.Context, addr string) (*model.WalletCurrent, error) {
	path := WalletPath(addr) + ".current"

	v, err := c.readLatestValue(ctx, path)
	if err != nil {
		return nil, err
	}

	current := &model.WalletCurrent{
		Address:         addr,
		UsedInvitations: make(map[string]string),
	}

	add := func(id string, amount any) {
		inst, ok := capdata.Field(capdata.Index(capdata.Field(amount, "value"), 0), "instance").(capdata.Slot)
		if !ok || inst.BoardID == "" {
			c.logger.Debug("used invitation without instance", "address", addr, "offer_id", id)
			return
		}
		current.UsedInvitations[id] = inst.BoardID
	}

	switch used := capdata.Field(v, "offerToUsedInvitation").(type) {
	case map[string]any:
		for id, amount := range used {
			add(id, amount)
		}
	case []any:
		for _, entry := range used {
			id, ok := capdata.String(capdata.Index(entry, 0))
			if !ok {
				continue
			}
			add(id, capdata.Index(entry, 1))
		}
	case nil:
	default:
		return nil, &Error{Op: "wallet_current", Path: path, Message: fmt.Sprintf("unexpected offerToUsedInvitation %T", used)}
	}

	return current, nil
}

// InstanceNames returns the instance registry as board id -> name
// (e.g., "board02963" -> "ATOM-USD price feed").
func (c *Client) InstanceNames(ctx context.Context) (map[string]string, error) {
	v, err := c.readLatestValue(ctx, InstancesPath)
	if err != nil {
		return nil, err
	}

	entries, ok := v.([]any)
	if !ok {
		return nil, &Error{Op: "instance_names", Path: InstancesPath, Message: fmt.Sprintf("unexpected registry %T", v)}
	}

	names := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, ok := capdata.Index(entry, 0).(string)
		if !ok {
			continue
		}
		slot, ok := capdata.Index(entry, 1).(capdata.Slot)
		if !ok || slot.BoardID == "" {
			continue
		}
		names[slot.BoardID] = name
	}
	return names, nil
}

// readLatestValue decodes the newest value published at path.
func (c *Client) readLatestValue(ctx context.Context, path string) (any, error) {
	cell, err := c.ReadCell(ctx, path, 0)
	if err != nil {
		return nil, err
	}
	if len(cell.Values) == 0 {
		return nil, &Error{Op: "read_value", Path: path, Err: ErrNoData}
	}

	v, err := capdata.Unmarshal([]byte(cell.Values[len(cell.Values)-1]))
	if err != nil {
		return nil, &Error{Op: "read_value", Path: path, Message: "decode capdata", Err: err}
	}
	return v, nil
}

// -----------------------------------------------------------------------------
// Coalescing
// -----------------------------------------------------------------------------

// coalescer folds wallet updates into their latest state per offer and
// per brand, keeping first-seen order.
type coalescer struct {
	offerOrder []string
	offers     map[string]map[string]any

	brandOrder []string
	balances   map[string]model.Balance
}

func newCoalescer() *coalescer {
	return &coalescer{
		offers:   make(map[string]map[string]any),
		balances: make(map[string]model.Balance),
	}
}

func (co *coalescer) add(raw string) error {
	v, err := capdata.Unmarshal([]byte(raw))
	if err != nil {
		return err
	}

	switch updated, _ := capdata.Field(v, "updated").(string); updated {
	case "offerStatus":
		status, ok := capdata.Field(v, "status").(map[string]any)
		if !ok {
			return fmt.Errorf("offerStatus update without status")
		}
		id, ok := capdata.String(status["id"])
		if !ok {
			return fmt.Errorf("offer status without id")
		}

		prev, seen := co.offers[id]
		if !seen {
			co.offerOrder = append(co.offerOrder, id)
		} else if satisfied(prev) {
			// A settled offer's record is final.
			return nil
		}
		co.offers[id] = status

	case "balance":
		amount := capdata.Field(v, "currentAmount")
		brand, ok := capdata.Field(amount, "brand").(capdata.Slot)
		if !ok {
			return fmt.Errorf("balance update without brand")
		}
		raw, ok := capdata.BigInt(capdata.Field(amount, "value"))
		if !ok {
			// Non-fungible purses carry a set, not a number.
			return nil
		}
		value, ok := boundedInt(raw)
		if !ok {
			return fmt.Errorf("balance of %s exceeds %d bits", brand.Iface, math.MaxBitLen)
		}

		key := brand.BoardID
		if key == "" {
			key = brand.Iface
		}
		if _, seen := co.balances[key]; !seen {
			co.brandOrder = append(co.brandOrder, key)
		}
		co.balances[key] = model.Balance{
			Brand: capdata.BrandName(brand),
			Value: value,
		}
	}

	return nil
}

func (co *coalescer) snapshot() *model.WalletSnapshot {
	snap := &model.WalletSnapshot{
		Offers:   make([]model.Offer, 0, len(co.offerOrder)),
		Balances: make([]model.Balance, 0, len(co.brandOrder)),
	}

	for i, id := range co.offerOrder {
		snap.Offers = append(snap.Offers, parseOffer(i, id, co.offers[id]))
	}
	for _, key := range co.brandOrder {
		snap.Balances = append(snap.Balances, co.balances[key])
	}
	return snap
}

func satisfied(status map[string]any) bool {
	n, ok := capdata.Int64(status["numWantsSatisfied"])
	return ok && n > 0
}

func parseOffer(index int, id string, status map[string]any) model.Offer {
	spec := capdata.Field(status, "invitationSpec")

	offer := model.Offer{Index: index, ID: id}
	offer.InvitationMaker, _ = capdata.Field(spec, "invitationMakerName").(string)
	offer.PreviousOffer, _ = capdata.String(capdata.Field(spec, "previousOffer"))

	if !offer.IsPricePush() {
		return offer
	}

	args := capdata.Index(capdata.Field(spec, "invitationArgs"), 0)
	raw, ok := capdata.BigInt(capdata.Field(args, "unitPrice"))
	if !ok {
		return offer
	}
	unitPrice, ok := boundedInt(raw)
	if !ok {
		return offer
	}
	round, _ := capdata.Int64(capdata.Field(args, "roundId"))

	offer.Push = &model.PriceSubmission{
		UnitPrice: unitPrice,
		RoundID:   round,
	}
	return offer
}

// boundedInt converts n unless it is too wide for math.Int.
func boundedInt(n *big.Int) (math.Int, bool) {
	if n.BitLen() > math.MaxBitLen {
		return math.Int{}, false
	}
	return math.NewIntFromBigInt(n), true
}
