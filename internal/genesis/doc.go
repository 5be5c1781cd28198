// Package genesis bootstraps parties and assets.
//
// A genesis definition is written in CUE:
//
//	party: alice: {name: "Alice", cash: 1000000}
//	party: bob: {name: "Bob"}
//
//	asset: real_estate: re_1: {owner: "bob", valuation: "750000.00"}
//
// or as the YAML embedded in harness scenarios. Both compile to a Spec,
// which Validate checks and Apply loads into an inventory store and an
// asset registry.
package genesis
