package registry

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
)

var (
	// ErrUnknownAsset is returned for an asset key that was never registered.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrAssetExists is returned when registering an asset key twice.
	ErrAssetExists = errors.New("asset already registered")
)

// Asset is the registry record of one asset unit.
type Asset struct {
	ID        domain.AssetID        `json:"id"`
	Class     domain.AssetClass     `json:"class"`
	Owner     domain.PartyID        `json:"owner"`
	Valuation decimal.Decimal       `json:"valuation"`
	History   []domain.HistoryEntry `json:"history"`
}

// Key returns the registry key of a.
func (a Asset) Key() domain.AssetKey {
	return domain.AssetKey{Class: a.Class, ID: a.ID}
}

func (a Asset) clone() Asset {
	a.History = slices.Clone(a.History)
	return a
}

// Registry is an in-memory asset registry, safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	assets map[domain.AssetKey]*Asset
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{assets: make(map[domain.AssetKey]*Asset)}
}

// Register adds an asset. Any history on a is kept as the starting history.
func (r *Registry) Register(a Asset) error {
	if !a.Class.Valid() {
		return fmt.Errorf("register %s: invalid asset class %q", a.ID, a.Class)
	}
	if a.ID == "" {
		return fmt.Errorf("register: empty asset id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := a.Key()
	if _, exists := r.assets[key]; exists {
		return fmt.Errorf("register %s: %w", key, ErrAssetExists)
	}
	c := a.clone()
	r.assets[key] = &c
	return nil
}

// RecordTransfer sets the owner of an asset and appends entry to its history.
func (r *Registry) RecordTransfer(class domain.AssetClass, id domain.AssetID, newOwner domain.PartyID, entry domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[domain.AssetKey{Class: class, ID: id}]
	if !ok {
		return fmt.Errorf("record transfer %s/%s: %w", class, id, ErrUnknownAsset)
	}
	a.Owner = newOwner
	a.History = append(a.History, entry)
	return nil
}

// Get returns a copy of the asset record.
func (r *Registry) Get(class domain.AssetClass, id domain.AssetID) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[domain.AssetKey{Class: class, ID: id}]
	if !ok {
		return Asset{}, false
	}
	return a.clone(), true
}

// Owner returns the current owner of an asset.
func (r *Registry) Owner(class domain.AssetClass, id domain.AssetID) (domain.PartyID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[domain.AssetKey{Class: class, ID: id}]
	if !ok {
		return "", false
	}
	return a.Owner, true
}

// History returns a fresh copy of an asset's history, oldest first.
func (r *Registry) History(class domain.AssetClass, id domain.AssetID) ([]domain.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[domain.AssetKey{Class: class, ID: id}]
	if !ok {
		return nil, fmt.Errorf("history %s/%s: %w", class, id, ErrUnknownAsset)
	}
	return slices.Clone(a.History), nil
}

// HistoryIter yields the history as it stood when HistoryIter was called.
// The sequence can be ranged over any number of times. An unknown asset
// yields nothing.
func (r *Registry) HistoryIter(class domain.AssetClass, id domain.AssetID) iter.Seq[domain.HistoryEntry] {
	entries, _ := r.History(class, id)
	return slices.Values(entries)
}

// ByOwner returns every asset held by owner, ordered by class then id.
func (r *Registry) ByOwner(owner domain.PartyID) []Asset {
	r.mu.RLock()
	var out []Asset
	for _, a := range r.assets {
		if a.Owner == owner {
			out = append(out, a.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}
