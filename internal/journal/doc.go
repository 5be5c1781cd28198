// Package journal keeps a tamper-evident audit trail of committed exchange
// transitions in SQLite.
//
// Each record stores the canonical JSON of one notify.Event and a digest
// chained to the previous record:
//
//	digest = sha256("escrow/journal/v1" || 0x00 || prev_digest || 0x00 || payload)
//
// Verify walks the chain and reports the first record that does not match.
//
// The journal is an audit record, not a recovery log: nothing is replayed
// from it on startup.
package journal
