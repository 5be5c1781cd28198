// Package registry records who owns each tokenized asset, what it is valued
// at, and how ownership has changed over time.
//
// The registry is the title record. Escrow state lives in the inventory
// package; the exchange engine keeps the two consistent by recording a title
// transfer for every asset leg it settles.
//
// History is append-only. Callers always receive copies.
package registry
