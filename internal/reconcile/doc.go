// Package reconcile turns an oracle's wallet history into checkpoints and
// derived price values.
//
// A Reconciler lives for the whole process and remembers each feed's
// amount-in denominator. A Cycle lives for one poll sweep and fetches each
// feed's canonical quote at most once, however many oracles ask for it.
package reconcile
