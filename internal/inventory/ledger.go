package inventory

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
)

type assetSet map[domain.AssetClass]map[domain.AssetID]struct{}

func (s assetSet) has(class domain.AssetClass, id domain.AssetID) bool {
	_, ok := s[class][id]
	return ok
}

func (s assetSet) add(class domain.AssetClass, id domain.AssetID) {
	ids, ok := s[class]
	if !ok {
		ids = make(map[domain.AssetID]struct{})
		s[class] = ids
	}
	ids[id] = struct{}{}
}

func (s assetSet) remove(class domain.AssetClass, id domain.AssetID) {
	ids, ok := s[class]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(s, class)
	}
}

func (s assetSet) count() int {
	n := 0
	for _, ids := range s {
		n += len(ids)
	}
	return n
}

// sorted returns a deep copy with ids in lexical order.
func (s assetSet) sorted() map[domain.AssetClass][]domain.AssetID {
	out := make(map[domain.AssetClass][]domain.AssetID, len(s))
	for class, ids := range s {
		list := make([]domain.AssetID, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		out[class] = list
	}
	return out
}

// ledger holds the full state of one party.
// Fields must not be read or written without mu.
type ledger struct {
	mu sync.RWMutex

	id            domain.PartyID
	displayName   string
	cashAvailable decimal.Decimal
	cashEscrowed  decimal.Decimal
	available     assetSet
	escrowed      assetSet
	lastUpdated   time.Time
}

func newLedger(id domain.PartyID, name string, cash decimal.Decimal, now time.Time) *ledger {
	return &ledger{
		id:            id,
		displayName:   name,
		cashAvailable: cash,
		cashEscrowed:  decimal.Zero,
		available:     make(assetSet),
		escrowed:      make(assetSet),
		lastUpdated:   now,
	}
}

// snapshot copies the ledger. Caller holds at least the read lock.
func (l *ledger) snapshot() Snapshot {
	return Snapshot{
		PartyID:         l.id,
		DisplayName:     l.displayName,
		CashAvailable:   l.cashAvailable,
		CashEscrowed:    l.cashEscrowed,
		AssetsAvailable: l.available.sorted(),
		AssetsEscrowed:  l.escrowed.sorted(),
		LastUpdated:     l.lastUpdated,
	}
}
