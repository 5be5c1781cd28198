package harness

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/inventory"
	"github.com/roach88/escrow/internal/registry"
)

func TestFormatAssets(t *testing.T) {
	assert.Equal(t, "{}", formatAssets(nil))
	assert.Equal(t, "{}", formatAssets(map[domain.AssetClass][]domain.AssetID{domain.ClassRealEstate: {}}))
	assert.Equal(t,
		"{private_equity:[a b] real_estate:[z]}",
		formatAssets(map[domain.AssetClass][]domain.AssetID{
			domain.ClassRealEstate:    {"z"},
			domain.ClassPrivateEquity: {"b", "a"},
		}))
}

func TestAssertions_Failures(t *testing.T) {
	s := mustParse(t, `
name: asserts
description: d
genesis:
  parties: [{id: a, cash: 5}, {id: b}]
  assets: [{id: u1, class: real_estate, owner: a}]
steps: [{op: deposit, party: b, amount: 1}]
assertions:
  - {type: inventory, party: ghost}
  - {type: inventory, party: a, assets_available: {real_estate: [u2]}, assets_escrowed: {real_estate: [u1]}}
  - {type: owner, asset_class: real_estate, asset_id: u1, owner: b}
  - {type: owner, asset_class: private_equity, asset_id: u1, owner: a}
  - {type: history_count, asset_class: real_estate, asset_id: u1, count: 2}
  - {type: history_count, asset_class: real_estate, asset_id: nope, count: 0}
  - {type: status, exchange: ex-0001, status: pending}
  - {type: conservation}
`)
	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 7)
	assert.Contains(t, result.Errors[0], "unknown party")
	assert.Contains(t, result.Errors[1], "assets_available {real_estate:[u1]} != {real_estate:[u2]}")
	assert.Contains(t, result.Errors[1], "assets_escrowed {} != {real_estate:[u1]}")
	assert.Contains(t, result.Errors[2], "Expected: b")
	assert.Contains(t, result.Errors[3], "unregistered asset")
	assert.Contains(t, result.Errors[4], "Actual: 0")
	assert.Contains(t, result.Errors[5], "assertions[5]")
	assert.Contains(t, result.Errors[6], "no such exchange")
}

func TestAssertConservation_DetectsDrift(t *testing.T) {
	h := &Harness{
		inv:            inventory.New(),
		reg:            registry.New(),
		expectedCash:   decimal.NewFromInt(10),
		expectedAssets: 2,
	}
	require.NoError(t, h.inv.Initialize("a", "A", decimal.NewFromInt(5)))
	require.NoError(t, h.inv.Initialize("b", "B", decimal.Zero))
	require.NoError(t, h.reg.Register(registry.Asset{ID: "u1", Class: domain.ClassRealEstate, Owner: "a"}))
	require.NoError(t, h.inv.GrantAsset("b", "u1", domain.ClassRealEstate))

	err := assertConservation(h)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: conservation")
	assert.Contains(t, msg, "total cash 5 != 10")
	assert.Contains(t, msg, "asset count 1 != 2")
	assert.Contains(t, msg, `asset real_estate/u1 held by b but owned by "a"`)
}
