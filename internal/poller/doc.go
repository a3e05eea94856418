// Package poller runs the monitor's poll cycle on a fixed interval.
//
// Each cycle reconciles every configured oracle against its checkpoint,
// publishes the results to the metrics updater and saves the aggregate state
// once. A tick that fires while a cycle is still running is dropped.
package poller
