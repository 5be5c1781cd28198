package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bogusOffer struct{ CashOffer }

func TestUnmarshalOffer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Offer
		wantErr string
	}{
		{"cash", `{"type":"cash","amount":"12.5"}`, CashOffer{Amount: decimal.RequireFromString("12.5")}, ""},
		{"asset", `{"type":"asset","asset_class":"real_estate","asset_id":"u1"}`, AssetOffer{Class: ClassRealEstate, ID: "u1"}, ""},
		{"asset hyphenated class", `{"type":"asset","asset_class":"private-equity","asset_id":"pe-9"}`, AssetOffer{Class: ClassPrivateEquity, ID: "pe-9"}, ""},
		{"asset unknown class kept", `{"type":"asset","asset_class":"timeshare","asset_id":"t1"}`, AssetOffer{Class: AssetClass("timeshare"), ID: "t1"}, ""},
		{"cash without amount", `{"type":"cash"}`, nil, "requires amount"},
		{"asset without id", `{"type":"asset","asset_class":"real_estate"}`, nil, "requires asset_id"},
		{"asset without class", `{"type":"asset","asset_id":"u1"}`, nil, "requires asset_class"},
		{"unknown type", `{"type":"barter"}`, nil, "unknown offer type"},
		{"malformed", `{`, nil, "unmarshal offer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalOffer([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if c, ok := tt.want.(CashOffer); ok {
				gc, ok := got.(CashOffer)
				require.True(t, ok)
				assert.True(t, c.Amount.Equal(gc.Amount))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOffer_String(t *testing.T) {
	assert.Equal(t, "cash:100", Cash(decimal.NewFromInt(100)).String())
	assert.Equal(t, "asset:private_equity/pe-9", Asset(ClassPrivateEquity, "pe-9").String())
}

func TestMustBeOffer_PanicsOnUnknownVariant(t *testing.T) {
	assert.NotPanics(t, func() { MustBeOffer(Cash(decimal.NewFromInt(1))) })
	assert.Panics(t, func() { MustBeOffer(bogusOffer{}) })
	assert.Panics(t, func() { MustBeOffer(nil) })
}

func TestParseAssetClass(t *testing.T) {
	c, err := ParseAssetClass("private-equity")
	require.NoError(t, err)
	assert.Equal(t, ClassPrivateEquity, c)

	_, err = ParseAssetClass("bonds")
	require.Error(t, err)
}
