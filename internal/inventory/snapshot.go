package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
)

// Snapshot is an immutable point-in-time view of one party ledger.
type Snapshot struct {
	PartyID         domain.PartyID                          `json:"party_id"`
	DisplayName     string                                  `json:"display_name"`
	CashAvailable   decimal.Decimal                         `json:"cash_available"`
	CashEscrowed    decimal.Decimal                         `json:"cash_escrowed"`
	AssetsAvailable map[domain.AssetClass][]domain.AssetID `json:"assets_available"`
	AssetsEscrowed  map[domain.AssetClass][]domain.AssetID `json:"assets_escrowed"`
	LastUpdated     time.Time                               `json:"last_updated"`
}

// TotalCash returns available plus escrowed cash.
func (s Snapshot) TotalCash() decimal.Decimal {
	return s.CashAvailable.Add(s.CashEscrowed)
}

// HasAvailable reports whether the asset is in the available partition.
func (s Snapshot) HasAvailable(class domain.AssetClass, id domain.AssetID) bool {
	return contains(s.AssetsAvailable[class], id)
}

// HasEscrowed reports whether the asset is in the escrowed partition.
func (s Snapshot) HasEscrowed(class domain.AssetClass, id domain.AssetID) bool {
	return contains(s.AssetsEscrowed[class], id)
}

// AssetCount returns the number of assets across both partitions.
func (s Snapshot) AssetCount() int {
	n := 0
	for _, ids := range s.AssetsAvailable {
		n += len(ids)
	}
	for _, ids := range s.AssetsEscrowed {
		n += len(ids)
	}
	return n
}

func contains(ids []domain.AssetID, id domain.AssetID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Canonical returns the canonical-JSON friendly form of the snapshot.
// Asset classes with no ids are omitted.
func (s Snapshot) Canonical() map[string]any {
	return map[string]any{
		"party_id":         s.PartyID,
		"display_name":     s.DisplayName,
		"cash_available":   s.CashAvailable,
		"cash_escrowed":    s.CashEscrowed,
		"assets_available": canonicalAssets(s.AssetsAvailable),
		"assets_escrowed":  canonicalAssets(s.AssetsEscrowed),
		"last_updated":     s.LastUpdated,
	}
}

func canonicalAssets(m map[domain.AssetClass][]domain.AssetID) map[string]any {
	out := make(map[string]any, len(m))
	for class, ids := range m {
		if len(ids) == 0 {
			continue
		}
		list := make([]any, len(ids))
		for i, id := range ids {
			list[i] = id
		}
		out[string(class)] = list
	}
	return out
}
