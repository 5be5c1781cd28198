// Package inventory provides the per-party cash and asset ledger with
// escrow semantics.
//
// # Partitions
//
// Every party ledger splits its holdings into two partitions:
//   - available: spendable cash and assets the party may offer
//   - escrowed: value locked behind a pending exchange
//
// Value only moves between partitions through the lock, release and transfer
// primitives. Lock is check-and-move in one step under the ledger lock, so two
// callers can never both pass a balance check against the same funds.
//
// # Locking
//
// Each ledger carries its own RWMutex. Operations that touch several parties
// run through Store.Atomically, which acquires the ledger locks in ascending
// party-id order. Two concurrent multi-party operations therefore always lock
// in the same order and cannot deadlock. Snapshots take the read lock and copy,
// so a reader never sees a half-applied mutation.
//
// # Errors
//
// Expected business conditions (insufficient funds, asset not owned, value not
// escrowed) are returned as *Error values with a Code; nothing panics for them.
// Use errors.Is against the ErrXxx sentinels or CodeOf to branch.
package inventory
