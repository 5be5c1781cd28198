// Package engine implements the escrow exchange engine.
//
// A proposal moves through a small state machine:
//
//	pending -> accepted | cancelled | rejected
//
// Terminal states have no outgoing transitions.
//
// ESCROW:
//
// CreateExchange locks both legs at proposal time: the proposer's offering
// and the counterparty's requested stake move from available to escrowed in
// one multi-party inventory transaction. If the second lock is refused the
// first is released before the transaction ends, so creation is all or
// nothing.
//
// SETTLEMENT:
//
// AcceptExchange runs four steps under the two parties' ledger locks:
//
//  1. offering leaves the proposer's escrow for the counterparty
//  2. offering title is recorded in the registry (asset legs only)
//  3. requesting leaves the counterparty's escrow for the proposer
//  4. requesting title is recorded in the registry (asset legs only)
//
// Each completed step pushes a compensation. A failure drains the list in
// reverse order and leaves the proposal pending. Title reversals append a
// history entry marked Reversal; history is never rewritten.
//
// LOCKING:
//
// Proposal mutex, then party ledgers in ascending party id, then the
// registry. Notifications are published after every lock is released.
//
// A process crash between settlement steps leaves in-memory state partially
// applied; there is no durable transaction log to recover from.
package engine
