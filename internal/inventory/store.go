package inventory

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
)

// Store is the inventory ledger for every party.
// All public methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex // guards the ledgers map, not ledger contents
	ledgers map[domain.PartyID]*ledger

	// holders indexes which party holds each asset system-wide.
	// Leaf lock: taken only while ledger locks are already held, never the reverse.
	holdersMu sync.Mutex
	holders   map[domain.AssetKey]domain.PartyID

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the wall clock used for LastUpdated stamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		ledgers: make(map[domain.PartyID]*ledger),
		holders: make(map[domain.AssetKey]domain.PartyID),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize creates the ledger for a party with an initial cash grant.
// Returns ErrAlreadyExists if the party already has a ledger.
func (s *Store) Initialize(partyID domain.PartyID, displayName string, initialCash decimal.Decimal) error {
	if partyID == "" {
		return newError(CodeUnknownParty, partyID, "party id is empty")
	}
	if initialCash.IsNegative() {
		return newError(CodeInvalidAmount, partyID, "initial cash %s is negative", initialCash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ledgers[partyID]; exists {
		return newError(CodeAlreadyExists, partyID, "ledger already initialized")
	}
	s.ledgers[partyID] = newLedger(partyID, displayName, initialCash, s.now())
	return nil
}

// Atomically runs fn with the ledgers of all named parties locked for writing.
//
// Locks are acquired in ascending party-id order and released in reverse.
// Duplicate ids are collapsed. Parties without a ledger are simply absent
// from the transaction; operations on them return ErrUnknownParty.
//
// fn must not call back into the Store's public methods for the same parties:
// ledger locks are not reentrant.
func (s *Store) Atomically(parties []domain.PartyID, fn func(tx *Tx) error) error {
	ids := orderedUnique(parties)

	s.mu.RLock()
	locked := make([]*ledger, 0, len(ids))
	for _, id := range ids {
		if l, ok := s.ledgers[id]; ok {
			locked = append(locked, l)
		}
	}
	s.mu.RUnlock()

	for _, l := range locked {
		l.mu.Lock()
	}
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}()

	tx := &Tx{store: s, ledgers: make(map[domain.PartyID]*ledger, len(locked)), now: s.now()}
	for _, l := range locked {
		tx.ledgers[l.id] = l
	}
	return fn(tx)
}

// ValidateAndLockCash moves amount from available to escrowed cash if, and
// only if, the party can afford it. Check and move are one indivisible step.
func (s *Store) ValidateAndLockCash(partyID domain.PartyID, amount decimal.Decimal) error {
	return s.Atomically([]domain.PartyID{partyID}, func(tx *Tx) error {
		return tx.LockCash(partyID, amount)
	})
}

// ValidateAndLockAsset moves an available asset into escrow.
func (s *Store) ValidateAndLockAsset(partyID domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	return s.Atomically([]domain.PartyID{partyID}, func(tx *Tx) error {
		return tx.LockAsset(partyID, assetID, class)
	})
}

// ReleaseCashFromEscrow moves escrowed cash back to available.
func (s *Store) ReleaseCashFromEscrow(partyID domain.PartyID, amount decimal.Decimal) error {
	return s.Atomically([]domain.PartyID{partyID}, func(tx *Tx) error {
		return tx.ReleaseCash(partyID, amount)
	})
}

// ReleaseAssetFromEscrow moves an escrowed asset back to available.
func (s *Store) ReleaseAssetFromEscrow(partyID domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	return s.Atomically([]domain.PartyID{partyID}, func(tx *Tx) error {
		return tx.ReleaseAsset(partyID, assetID, class)
	})
}

// TransferCashFromEscrow debits from's escrow and credits to's available cash.
// On failure neither ledger changes.
func (s *Store) TransferCashFromEscrow(from, to domain.PartyID, amount decimal.Decimal) error {
	return s.Atomically([]domain.PartyID{from, to}, func(tx *Tx) error {
		return tx.TransferCash(from, to, amount)
	})
}

// TransferAssetFromEscrow moves an escrowed asset of from into to's available set.
func (s *Store) TransferAssetFromEscrow(from, to domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	return s.Atomically([]domain.PartyID{from, to}, func(tx *Tx) error {
		return tx.TransferAsset(from, to, assetID, class)
	})
}

// GrantAsset places an asset in a party's available set at bootstrap.
// Returns ErrAssetExists if any party already holds the asset.
func (s *Store) GrantAsset(partyID domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	return s.Atomically([]domain.PartyID{partyID}, func(tx *Tx) error {
		return tx.GrantAsset(partyID, assetID, class)
	})
}

// Deposit credits available cash. amount must be positive.
func (s *Store) Deposit(partyID domain.PartyID, amount decimal.Decimal) error {
	return s.Atomically([]domain.PartyID{partyID}, func(tx *Tx) error {
		return tx.Deposit(partyID, amount)
	})
}

// Withdraw debits available cash. amount must be positive and covered.
func (s *Store) Withdraw(partyID domain.PartyID, amount decimal.Decimal) error {
	return s.Atomically([]domain.PartyID{partyID}, func(tx *Tx) error {
		return tx.Withdraw(partyID, amount)
	})
}

// Snapshot returns a consistent copy of a party ledger.
// Returns (zero, false) if the party is unknown.
func (s *Store) Snapshot(partyID domain.PartyID) (Snapshot, bool) {
	s.mu.RLock()
	l, ok := s.ledgers[partyID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot(), true
}

// Exists reports whether the party has a ledger.
func (s *Store) Exists(partyID domain.PartyID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ledgers[partyID]
	return ok
}

// Parties returns every party id in ascending order.
func (s *Store) Parties() []domain.PartyID {
	s.mu.RLock()
	ids := make([]domain.PartyID, 0, len(s.ledgers))
	for id := range s.ledgers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Holder returns the party currently holding an asset in either partition.
func (s *Store) Holder(class domain.AssetClass, assetID domain.AssetID) (domain.PartyID, bool) {
	s.holdersMu.Lock()
	defer s.holdersMu.Unlock()
	p, ok := s.holders[domain.AssetKey{Class: class, ID: assetID}]
	return p, ok
}

// Totals is a system-wide view taken with every ledger locked at once.
type Totals struct {
	Cash      decimal.Decimal
	Escrowed  decimal.Decimal
	Assets    int
	Snapshots []Snapshot
}

// Totals returns the sum of cash and the number of assets across all parties.
// Every ledger is locked for the duration, so the result is one consistent cut.
func (s *Store) Totals() Totals {
	var t Totals
	t.Cash = decimal.Zero
	t.Escrowed = decimal.Zero
	_ = s.Atomically(s.Parties(), func(tx *Tx) error {
		for _, id := range orderedUnique(tx.partyIDs()) {
			snap := tx.ledgers[id].snapshot()
			t.Cash = t.Cash.Add(snap.TotalCash())
			t.Escrowed = t.Escrowed.Add(snap.CashEscrowed)
			t.Assets += snap.AssetCount()
			t.Snapshots = append(t.Snapshots, snap)
		}
		return nil
	})
	return t
}

func (s *Store) setHolder(key domain.AssetKey, party domain.PartyID) {
	s.holdersMu.Lock()
	s.holders[key] = party
	s.holdersMu.Unlock()
}

func orderedUnique(ids []domain.PartyID) []domain.PartyID {
	seen := make(map[domain.PartyID]struct{}, len(ids))
	out := make([]domain.PartyID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
