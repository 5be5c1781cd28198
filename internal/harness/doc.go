// Package harness runs escrow scenarios as executable contract tests.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: cash_for_asset
//	description: "Alice buys Bob's unit for cash"
//	genesis:
//	  parties:
//	    - {id: alice, cash: 1000000}
//	    - {id: bob}
//	  assets:
//	    - {id: re_1, class: real_estate, owner: bob, valuation: 750000}
//	steps:
//	  - op: create
//	    ref: deal
//	    from: alice
//	    to: bob
//	    offering: {type: cash, amount: "750000"}
//	    requesting: {type: asset, asset_class: real_estate, asset_id: re_1}
//	  - op: accept
//	    ref: deal
//	    party: bob
//	    expect: {status: accepted}
//	assertions:
//	  - {type: owner, asset_class: real_estate, asset_id: re_1, owner: alice}
//	  - {type: conservation}
//
// genesis_file may name a CUE genesis definition instead, resolved relative
// to the scenario file.
//
// # Steps
//
//   - create: proposes an exchange; ref names it for later steps
//   - accept: settles it; fail_at injects a failure before a settlement step
//   - cancel, reject: close it; expect.result is the returned bool
//   - deposit, withdraw: move cash in or out of a ledger
//
// Every step without an expect clause must succeed (or return true).
//
// # Assertion Types
//
//   - inventory: compares a party's cash and asset partitions
//   - owner: checks the registry owner of an asset
//   - status: checks an exchange status
//   - history_count: checks the length of an asset's title history
//   - conservation: cash and assets are neither created nor destroyed, and
//     the ledger holder of every asset matches the registry owner
//
// # Deterministic Testing
//
// Exchange ids are sequential ("ex-0001") and wall time comes from a
// stepping clock, so traces are byte-identical across runs and can be
// compared against golden files.
package harness
