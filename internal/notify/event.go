package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/inventory"
)

// EventType distinguishes event payloads.
type EventType string

const (
	// EventExchange carries a proposal after a state transition.
	EventExchange EventType = "exchange"
	// EventInventoryUpdate carries a party ledger snapshot after it changed.
	EventInventoryUpdate EventType = "inventory_update"
)

// Event is one notification. Exactly one of Exchange and Inventory is set,
// matching Type.
type Event struct {
	Type      EventType           `json:"type"`
	Seq       int64               `json:"seq"`
	At        time.Time           `json:"at"`
	Exchange  *domain.Proposal    `json:"exchange,omitempty"`
	Inventory *inventory.Snapshot `json:"inventory,omitempty"`
}

// Key is the partition key of the event: the exchange id or the party id.
func (e Event) Key() string {
	switch {
	case e.Exchange != nil:
		return e.Exchange.ID
	case e.Inventory != nil:
		return string(e.Inventory.PartyID)
	}
	return ""
}

// Marshal renders the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Canonical returns the canonical-JSON friendly form of the event,
// the form hashed into the audit journal.
func (e Event) Canonical() map[string]any {
	m := map[string]any{
		"type": string(e.Type),
		"seq":  e.Seq,
		"at":   e.At,
	}
	if e.Exchange != nil {
		m["exchange"] = domain.CanonicalProposal(*e.Exchange)
	}
	if e.Inventory != nil {
		m["inventory"] = e.Inventory.Canonical()
	}
	return m
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
