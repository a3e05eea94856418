// Package config loads the monitor configuration.
//
// Configuration comes from an optional YAML file (with ${VAR} expansion)
// and the environment variables the monitor has always honored:
//
//	PORT           metrics.port
//	POLL_INTERVAL  poller.interval, in seconds
//	AGORIC_NET     network.name ("local" uses AGORIC_RPC)
//	AGORIC_RPC     network.rpc
//	STATE_FILE     checkpoint.file
//	ORACLE_FILE    oracles.file
//
// Environment variables win over the file.
package config
