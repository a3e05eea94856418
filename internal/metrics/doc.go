// Package metrics exports oracle observations as Prometheus series.
//
// Oracle series (all carry app="agoric-cl-oracle-monitor"):
//   - oracle_latest_value{oracleName, oracle, feed}: last normalized submission
//   - oracle_last_observation{oracleName, oracle, feed}: submission id (ms timestamp)
//   - oracle_last_round{oracleName, oracle, feed}
//   - oracle_price_deviation{oracleName, oracle, feed}: percent from the feed price
//   - actual_price{feed}: the feed's published price
//   - oracle_balance{oracleName, oracle, brand}
//
// Operational series live under the oracle_monitor_ prefix.
package metrics
