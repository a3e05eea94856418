// Package checkpoint persists per-oracle reconciliation progress.
//
// The whole state is one JSON document, read once at startup and rewritten
// after every poll cycle. Backends only move bytes; Store owns the document
// format and the load-or-initialize policy.
package checkpoint
