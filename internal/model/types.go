package model

import (
	"maps"

	"cosmossdk.io/math"
)

// PushPriceMaker is the invitation maker name used by price submissions.
const PushPriceMaker = "PushPrice"

// -----------------------------------------------------------------------------
// Oracles
// -----------------------------------------------------------------------------

// Oracle is a monitored account that submits prices to one or more feeds.
type Oracle struct {
	Address string            // bech32 wallet address (e.g., "agoric1...")
	Name    string            // Display name used in metric labels
	Feeds   map[string]string // Invitation (offer) id -> feed name (e.g., "ATOM-USD")
}

// MergeFeeds adds the given invitation mappings without dropping existing ones.
func (o *Oracle) MergeFeeds(feeds map[string]string) {
	if o.Feeds == nil {
		o.Feeds = make(map[string]string, len(feeds))
	}
	maps.Copy(o.Feeds, feeds)
}

// FeedFor returns the feed an invitation grants submission rights to.
func (o *Oracle) FeedFor(invitationID string) (string, bool) {
	feed, ok := o.Feeds[invitationID]
	return feed, ok
}

// -----------------------------------------------------------------------------
// Wallet Types
// -----------------------------------------------------------------------------

// PriceSubmission holds the arguments of a PushPrice offer.
type PriceSubmission struct {
	UnitPrice math.Int // Raw price, scaled by the feed's amountIn
	RoundID   int64    // Aggregator round the price was pushed for
}

// Offer is one entry in a wallet's coalesced offer history.
type Offer struct {
	Index           int              // Position in the coalesced list (0-based, strictly increasing)
	ID              string           // Offer id chosen by the wallet owner (a ms timestamp for oracles)
	InvitationMaker string           // invitationSpec.invitationMakerName
	PreviousOffer   string           // invitationSpec.previousOffer (the accepted invitation)
	Push            *PriceSubmission // Parsed arguments, nil unless a well-formed PushPrice
}

// IsPricePush reports whether the offer is a price submission.
func (o Offer) IsPricePush() bool {
	return o.InvitationMaker == PushPriceMaker
}

// Balance is a purse balance taken from the wallet snapshot.
type Balance struct {
	Brand string   // Short brand name (e.g., "BLD")
	Value math.Int // Raw amount in the brand's smallest unit
}

// WalletSnapshot is the coalesced state of a smart wallet.
type WalletSnapshot struct {
	Address     string
	BlockHeight int64     // Height of the newest stream cell read
	Offers      []Offer   // Ordered by first appearance
	Balances    []Balance // Ordered by first appearance
}

// WalletCurrent is the wallet's published "current" record.
type WalletCurrent struct {
	Address         string
	UsedInvitations map[string]string // Offer id -> instance board id
}
