package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// OfferKind discriminates the Offer variants.
type OfferKind string

const (
	OfferCash  OfferKind = "cash"
	OfferAsset OfferKind = "asset"
)

// Offer is one side's stake in an exchange.
//
// The interface is sealed: CashOffer and AssetOffer are the only variants.
// Code that switches on an Offer must handle both and panic on anything else
// (see MustBeOffer).
type Offer interface {
	Kind() OfferKind
	String() string
	isOffer()
}

// CashOffer stakes an amount of cash.
type CashOffer struct {
	Amount decimal.Decimal
}

// AssetOffer stakes a single asset unit.
type AssetOffer struct {
	Class AssetClass
	ID    AssetID
}

func (CashOffer) Kind() OfferKind  { return OfferCash }
func (AssetOffer) Kind() OfferKind { return OfferAsset }
func (CashOffer) isOffer()         {}
func (AssetOffer) isOffer()        {}

func (o CashOffer) String() string { return "cash:" + o.Amount.String() }

func (o AssetOffer) String() string { return "asset:" + string(o.Class) + "/" + string(o.ID) }

// Key returns the registry key of the staked asset.
func (o AssetOffer) Key() AssetKey { return AssetKey{Class: o.Class, ID: o.ID} }

// Cash builds a CashOffer.
func Cash(amount decimal.Decimal) Offer { return CashOffer{Amount: amount} }

// Asset builds an AssetOffer.
func Asset(class AssetClass, id AssetID) Offer { return AssetOffer{Class: class, ID: id} }

// MustBeOffer panics for offer values outside the sealed set, including nil.
func MustBeOffer(o Offer) {
	switch o.(type) {
	case CashOffer, AssetOffer:
		return
	default:
		panic(fmt.Sprintf("domain: unknown offer variant %T", o))
	}
}

// OfferJSON is the wire form of an Offer.
type OfferJSON struct {
	Type       OfferKind        `json:"type" yaml:"type"`
	Amount     *decimal.Decimal `json:"amount,omitempty" yaml:"amount,omitempty"`
	AssetClass AssetClass       `json:"asset_class,omitempty" yaml:"asset_class,omitempty"`
	AssetID    AssetID          `json:"asset_id,omitempty" yaml:"asset_id,omitempty"`
}

// EncodeOffer converts an Offer to its wire form.
func EncodeOffer(o Offer) OfferJSON {
	switch v := o.(type) {
	case CashOffer:
		amt := v.Amount
		return OfferJSON{Type: OfferCash, Amount: &amt}
	case AssetOffer:
		return OfferJSON{Type: OfferAsset, AssetClass: v.Class, AssetID: v.ID}
	default:
		MustBeOffer(o)
		return OfferJSON{}
	}
}

// Decode converts the wire form back to an Offer. Shape errors are reported;
// value checks (positive amount, resolvable asset) belong to the engine.
func (j OfferJSON) Decode() (Offer, error) {
	switch j.Type {
	case OfferCash:
		if j.Amount == nil {
			return nil, fmt.Errorf("cash offer requires amount")
		}
		return CashOffer{Amount: *j.Amount}, nil
	case OfferAsset:
		if j.AssetID == "" {
			return nil, fmt.Errorf("asset offer requires asset_id")
		}
		class := j.AssetClass
		if class == "" {
			return nil, fmt.Errorf("asset offer requires asset_class")
		}
		// Spelling variants normalize; unknown classes pass through for the
		// engine to reject as an invalid offer.
		if parsed, err := ParseAssetClass(string(class)); err == nil {
			class = parsed
		}
		return AssetOffer{Class: class, ID: j.AssetID}, nil
	default:
		return nil, fmt.Errorf("unknown offer type %q", j.Type)
	}
}

// MarshalOffer renders an Offer as JSON.
func MarshalOffer(o Offer) ([]byte, error) {
	return json.Marshal(EncodeOffer(o))
}

// UnmarshalOffer parses JSON produced by MarshalOffer.
func UnmarshalOffer(data []byte) (Offer, error) {
	var j OfferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal offer: %w", err)
	}
	return j.Decode()
}
