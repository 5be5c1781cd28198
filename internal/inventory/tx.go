package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
)

// Tx is a view over a set of locked ledgers handed out by Store.Atomically.
// Every method checks before it mutates: a returned error means no change.
// A Tx must not be retained after the callback returns.
type Tx struct {
	store   *Store
	ledgers map[domain.PartyID]*ledger
	now     time.Time
}

func (tx *Tx) ledger(id domain.PartyID) (*ledger, error) {
	l, ok := tx.ledgers[id]
	if !ok {
		return nil, newError(CodeUnknownParty, id, "no ledger for party")
	}
	return l, nil
}

func (tx *Tx) partyIDs() []domain.PartyID {
	ids := make([]domain.PartyID, 0, len(tx.ledgers))
	for id := range tx.ledgers {
		ids = append(ids, id)
	}
	return ids
}

func (tx *Tx) touch(ls ...*ledger) {
	for _, l := range ls {
		l.lastUpdated = tx.now
	}
}

func requirePositive(party domain.PartyID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return newError(CodeInvalidAmount, party, "amount %s must be positive", amount)
	}
	return nil
}

// Snapshot copies one of the locked ledgers.
func (tx *Tx) Snapshot(partyID domain.PartyID) (Snapshot, bool) {
	l, ok := tx.ledgers[partyID]
	if !ok {
		return Snapshot{}, false
	}
	return l.snapshot(), true
}

// LockCash moves amount from available to escrowed.
func (tx *Tx) LockCash(partyID domain.PartyID, amount decimal.Decimal) error {
	l, err := tx.ledger(partyID)
	if err != nil {
		return err
	}
	if err := requirePositive(partyID, amount); err != nil {
		return err
	}
	if l.cashAvailable.LessThan(amount) {
		return newError(CodeInsufficientFunds, partyID, "available %s < %s", l.cashAvailable, amount)
	}
	l.cashAvailable = l.cashAvailable.Sub(amount)
	l.cashEscrowed = l.cashEscrowed.Add(amount)
	tx.touch(l)
	return nil
}

// LockAsset moves an available asset into escrow.
func (tx *Tx) LockAsset(partyID domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	l, err := tx.ledger(partyID)
	if err != nil {
		return err
	}
	if !l.available.has(class, assetID) {
		return newError(CodeNotOwned, partyID, "asset %s/%s not available", class, assetID)
	}
	l.available.remove(class, assetID)
	l.escrowed.add(class, assetID)
	tx.touch(l)
	return nil
}

// ReleaseCash moves escrowed cash back to available.
func (tx *Tx) ReleaseCash(partyID domain.PartyID, amount decimal.Decimal) error {
	l, err := tx.ledger(partyID)
	if err != nil {
		return err
	}
	if err := requirePositive(partyID, amount); err != nil {
		return err
	}
	if l.cashEscrowed.LessThan(amount) {
		return newError(CodeInsufficientEscrow, partyID, "escrowed %s < %s", l.cashEscrowed, amount)
	}
	l.cashEscrowed = l.cashEscrowed.Sub(amount)
	l.cashAvailable = l.cashAvailable.Add(amount)
	tx.touch(l)
	return nil
}

// ReleaseAsset moves an escrowed asset back to available.
func (tx *Tx) ReleaseAsset(partyID domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	l, err := tx.ledger(partyID)
	if err != nil {
		return err
	}
	if !l.escrowed.has(class, assetID) {
		return newError(CodeNotEscrowed, partyID, "asset %s/%s not in escrow", class, assetID)
	}
	l.escrowed.remove(class, assetID)
	l.available.add(class, assetID)
	tx.touch(l)
	return nil
}

// TransferCash debits from's escrow and credits to's available cash.
func (tx *Tx) TransferCash(from, to domain.PartyID, amount decimal.Decimal) error {
	src, err := tx.ledger(from)
	if err != nil {
		return err
	}
	dst, err := tx.ledger(to)
	if err != nil {
		return err
	}
	if err := requirePositive(from, amount); err != nil {
		return err
	}
	if src.cashEscrowed.LessThan(amount) {
		return newError(CodeInsufficientEscrow, from, "escrowed %s < %s", src.cashEscrowed, amount)
	}
	src.cashEscrowed = src.cashEscrowed.Sub(amount)
	dst.cashAvailable = dst.cashAvailable.Add(amount)
	tx.touch(src, dst)
	return nil
}

// TransferAsset moves an escrowed asset of from into to's available set.
func (tx *Tx) TransferAsset(from, to domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	src, err := tx.ledger(from)
	if err != nil {
		return err
	}
	dst, err := tx.ledger(to)
	if err != nil {
		return err
	}
	if !src.escrowed.has(class, assetID) {
		return newError(CodeNotEscrowed, from, "asset %s/%s not in escrow", class, assetID)
	}
	src.escrowed.remove(class, assetID)
	dst.available.add(class, assetID)
	tx.store.setHolder(domain.AssetKey{Class: class, ID: assetID}, to)
	tx.touch(src, dst)
	return nil
}

// ReverseCashTransfer undoes TransferCash: to's available cash goes back
// into from's escrow.
func (tx *Tx) ReverseCashTransfer(from, to domain.PartyID, amount decimal.Decimal) error {
	src, err := tx.ledger(from)
	if err != nil {
		return err
	}
	dst, err := tx.ledger(to)
	if err != nil {
		return err
	}
	if err := requirePositive(to, amount); err != nil {
		return err
	}
	if dst.cashAvailable.LessThan(amount) {
		return newError(CodeInsufficientFunds, to, "available %s < %s", dst.cashAvailable, amount)
	}
	dst.cashAvailable = dst.cashAvailable.Sub(amount)
	src.cashEscrowed = src.cashEscrowed.Add(amount)
	tx.touch(src, dst)
	return nil
}

// ReverseAssetTransfer undoes TransferAsset: the asset leaves to's available
// set and returns to from's escrow.
func (tx *Tx) ReverseAssetTransfer(from, to domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	src, err := tx.ledger(from)
	if err != nil {
		return err
	}
	dst, err := tx.ledger(to)
	if err != nil {
		return err
	}
	if !dst.available.has(class, assetID) {
		return newError(CodeNotOwned, to, "asset %s/%s not available", class, assetID)
	}
	dst.available.remove(class, assetID)
	src.escrowed.add(class, assetID)
	tx.store.setHolder(domain.AssetKey{Class: class, ID: assetID}, from)
	tx.touch(src, dst)
	return nil
}

// GrantAsset places an asset in the party's available set.
// The asset must not be held by anyone.
func (tx *Tx) GrantAsset(partyID domain.PartyID, assetID domain.AssetID, class domain.AssetClass) error {
	l, err := tx.ledger(partyID)
	if err != nil {
		return err
	}
	if !class.Valid() {
		return newError(CodeInvalidClass, partyID, "unknown asset class %q", class)
	}
	key := domain.AssetKey{Class: class, ID: assetID}

	tx.store.holdersMu.Lock()
	defer tx.store.holdersMu.Unlock()
	if holder, ok := tx.store.holders[key]; ok {
		return newError(CodeAssetExists, partyID, "asset %s already held by %s", key, holder)
	}
	tx.store.holders[key] = partyID
	l.available.add(class, assetID)
	tx.touch(l)
	return nil
}

// Deposit credits available cash.
func (tx *Tx) Deposit(partyID domain.PartyID, amount decimal.Decimal) error {
	l, err := tx.ledger(partyID)
	if err != nil {
		return err
	}
	if err := requirePositive(partyID, amount); err != nil {
		return err
	}
	l.cashAvailable = l.cashAvailable.Add(amount)
	tx.touch(l)
	return nil
}

// Withdraw debits available cash. Escrowed cash is never touched.
func (tx *Tx) Withdraw(partyID domain.PartyID, amount decimal.Decimal) error {
	l, err := tx.ledger(partyID)
	if err != nil {
		return err
	}
	if err := requirePositive(partyID, amount); err != nil {
		return err
	}
	if l.cashAvailable.LessThan(amount) {
		return newError(CodeInsufficientFunds, partyID, "available %s < %s", l.cashAvailable, amount)
	}
	l.cashAvailable = l.cashAvailable.Sub(amount)
	tx.touch(l)
	return nil
}
