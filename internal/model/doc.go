// Package model defines shared data types used across the oracle monitor.
//
// Conventions:
//   - Prices: cosmossdk.io/math.LegacyDec (18-decimal fixed point, round half-even)
//   - Raw on-chain amounts: cosmossdk.io/math.Int
//   - Offer and submission ids: string as published, int64 once used as a timestamp
//   - Oracles are keyed by their bech32 address everywhere
package model
