// Package ledger reads published state from an Agoric chain.
//
// All reads go through the Tendermint RPC abci_query endpoint against the
// vstorage module. Published paths hold stream cells; a Follower walks a
// path's cells backwards by block height to recover its full history.
//
// Wallet helpers on top of the follower coalesce a smart wallet's update
// stream into ordered offers and balances.
//
// HeadWatcher subscribes to new blocks over the RPC websocket.
package ledger
