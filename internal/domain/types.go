package domain

import (
	"fmt"
	"strings"
)

// PartyID identifies a party holding a ledger.
type PartyID string

// AssetID identifies one unit of a tokenized holding within its asset class.
type AssetID string

// AssetClass categorizes tokenized holdings.
type AssetClass string

const (
	// ClassRealEstate covers real-estate units.
	ClassRealEstate AssetClass = "real_estate"
	// ClassPrivateEquity covers private-equity tokens.
	ClassPrivateEquity AssetClass = "private_equity"
)

// AssetClasses lists every supported class in a stable order.
var AssetClasses = []AssetClass{ClassRealEstate, ClassPrivateEquity}

// Valid reports whether c is a supported asset class.
func (c AssetClass) Valid() bool {
	switch c {
	case ClassRealEstate, ClassPrivateEquity:
		return true
	}
	return false
}

// ParseAssetClass parses a class name. Hyphenated spellings are accepted.
func ParseAssetClass(s string) (AssetClass, error) {
	c := AssetClass(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	if !c.Valid() {
		return "", fmt.Errorf("unknown asset class %q", s)
	}
	return c, nil
}

// AssetKey is the registry key of an asset.
type AssetKey struct {
	Class AssetClass `json:"asset_class"`
	ID    AssetID    `json:"asset_id"`
}

func (k AssetKey) String() string {
	return string(k.Class) + "/" + string(k.ID)
}
