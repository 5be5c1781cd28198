// Package domain provides the value types shared by every escrow package.
//
// This package contains type definitions only. All other internal packages
// import domain; domain imports nothing internal. This keeps the value types
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Cash is always decimal.Decimal, never a binary float
//   - Asset identifiers are opaque and compared by exact equality only
//   - Asset classes have independent id namespaces, so (class, id) is the key
//   - All JSON tags use snake_case
package domain
