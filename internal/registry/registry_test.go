package registry

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/domain"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.Register(Asset{
		ID: "unit-101", Class: domain.ClassRealEstate, Owner: "bob",
		Valuation: decimal.NewFromInt(500000),
	}))
	require.NoError(t, r.Register(Asset{
		ID: "pe-1", Class: domain.ClassPrivateEquity, Owner: "bob",
		Valuation: decimal.NewFromInt(1000),
	}))
	return r
}

func entry(from, to domain.PartyID, exchangeID string) domain.HistoryEntry {
	return domain.HistoryEntry{
		At:                 time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		From:               from,
		To:                 to,
		ExchangeID:         exchangeID,
		Consideration:      "cash:500000",
		ConsiderationValue: decimal.NewFromInt(500000),
	}
}

func TestRegister(t *testing.T) {
	r := setupTestRegistry(t)
	assert.Equal(t, 2, r.Len())

	err := r.Register(Asset{ID: "unit-101", Class: domain.ClassRealEstate, Owner: "carol"})
	require.ErrorIs(t, err, ErrAssetExists)

	// Same id in the other class is a distinct asset.
	require.NoError(t, r.Register(Asset{ID: "unit-101", Class: domain.ClassPrivateEquity, Owner: "carol"}))

	require.Error(t, r.Register(Asset{ID: "x", Class: "bonds"}))
	require.Error(t, r.Register(Asset{Class: domain.ClassRealEstate}))
}

func TestRecordTransfer(t *testing.T) {
	r := setupTestRegistry(t)

	require.NoError(t, r.RecordTransfer(domain.ClassRealEstate, "unit-101", "alice", entry("bob", "alice", "ex-1")))

	owner, ok := r.Owner(domain.ClassRealEstate, "unit-101")
	require.True(t, ok)
	assert.Equal(t, domain.PartyID("alice"), owner)

	hist, err := r.History(domain.ClassRealEstate, "unit-101")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "ex-1", hist[0].ExchangeID)

	err = r.RecordTransfer(domain.ClassRealEstate, "missing", "alice", entry("bob", "alice", "ex-2"))
	require.ErrorIs(t, err, ErrUnknownAsset)
}

func TestHistory_IsCopy(t *testing.T) {
	r := setupTestRegistry(t)
	require.NoError(t, r.RecordTransfer(domain.ClassRealEstate, "unit-101", "alice", entry("bob", "alice", "ex-1")))

	hist, err := r.History(domain.ClassRealEstate, "unit-101")
	require.NoError(t, err)
	hist[0].ExchangeID = "tampered"

	again, err := r.History(domain.ClassRealEstate, "unit-101")
	require.NoError(t, err)
	assert.Equal(t, "ex-1", again[0].ExchangeID)

	_, err = r.History(domain.ClassRealEstate, "missing")
	assert.True(t, errors.Is(err, ErrUnknownAsset))
}

func TestHistoryIter_RestartableSnapshot(t *testing.T) {
	r := setupTestRegistry(t)
	require.NoError(t, r.RecordTransfer(domain.ClassRealEstate, "unit-101", "alice", entry("bob", "alice", "ex-1")))

	seq := r.HistoryIter(domain.ClassRealEstate, "unit-101")

	// Later writes are not visible to an iterator taken earlier.
	require.NoError(t, r.RecordTransfer(domain.ClassRealEstate, "unit-101", "bob", entry("alice", "bob", "ex-2")))

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Len(t, first, 1)
	assert.Equal(t, first, second)

	assert.Empty(t, slices.Collect(r.HistoryIter(domain.ClassRealEstate, "missing")))
}

func TestByOwner(t *testing.T) {
	r := setupTestRegistry(t)

	assets := r.ByOwner("bob")
	require.Len(t, assets, 2)
	assert.Equal(t, domain.ClassPrivateEquity, assets[0].Class)
	assert.Equal(t, domain.ClassRealEstate, assets[1].Class)

	assert.Empty(t, r.ByOwner("nobody"))
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := setupTestRegistry(t)
	require.NoError(t, r.RecordTransfer(domain.ClassRealEstate, "unit-101", "alice", entry("bob", "alice", "ex-1")))

	a, ok := r.Get(domain.ClassRealEstate, "unit-101")
	require.True(t, ok)
	a.History[0].To = "mallory"
	a.Owner = "mallory"

	owner, _ := r.Owner(domain.ClassRealEstate, "unit-101")
	assert.Equal(t, domain.PartyID("alice"), owner)
	hist, _ := r.History(domain.ClassRealEstate, "unit-101")
	assert.Equal(t, domain.PartyID("alice"), hist[0].To)

	_, ok = r.Get(domain.ClassRealEstate, "missing")
	assert.False(t, ok)
}

func TestRecordTransfer_Concurrent(t *testing.T) {
	r := setupTestRegistry(t)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RecordTransfer(domain.ClassPrivateEquity, "pe-1", "alice", entry("bob", "alice", "ex"))
			_, _ = r.History(domain.ClassPrivateEquity, "pe-1")
		}()
	}
	wg.Wait()

	hist, err := r.History(domain.ClassPrivateEquity, "pe-1")
	require.NoError(t, err)
	assert.Len(t, hist, writers)
}
