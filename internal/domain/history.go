package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEntry is one line of an asset's ownership history.
//
// Entries are append-only. A rolled-back title transfer is recorded as a
// second entry with Reversal set rather than by removing the first.
type HistoryEntry struct {
	At                 time.Time       `json:"at"`
	From               PartyID         `json:"from"`
	To                 PartyID         `json:"to"`
	ExchangeID         string          `json:"exchange_id"`
	Consideration      string          `json:"consideration"`
	ConsiderationValue decimal.Decimal `json:"consideration_value"`
	Reversal           bool            `json:"reversal,omitempty"`
}
