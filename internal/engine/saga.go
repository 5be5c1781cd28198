package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/inventory"
	"github.com/roach88/escrow/internal/registry"
)

// Step names one settlement sub-step of AcceptExchange.
type Step string

const (
	StepOfferingTransfer   Step = "offering_transfer"
	StepOfferingTitle      Step = "offering_title"
	StepRequestingTransfer Step = "requesting_transfer"
	StepRequestingTitle    Step = "requesting_title"
)

// Steps lists the settlement steps in execution order.
var Steps = []Step{StepOfferingTransfer, StepOfferingTitle, StepRequestingTransfer, StepRequestingTitle}

// StepInterceptor runs before each settlement step. A non-nil error fails
// the step as if the underlying store had rejected it.
type StepInterceptor func(exchangeID string, step Step) error

// compensationKind tags an undo action.
type compensationKind int

const (
	reverseCashTransfer compensationKind = iota + 1
	reverseAssetTransfer
	reverseTitleTransfer
)

func (k compensationKind) String() string {
	switch k {
	case reverseCashTransfer:
		return "ReverseCashTransfer"
	case reverseAssetTransfer:
		return "ReverseAssetTransfer"
	case reverseTitleTransfer:
		return "ReverseTitleTransfer"
	}
	return fmt.Sprintf("compensationKind(%d)", int(k))
}

// compensation undoes one completed settlement step.
// from/to are the direction of the original step.
type compensation struct {
	kind   compensationKind
	from   domain.PartyID
	to     domain.PartyID
	amount decimal.Decimal
	asset  domain.AssetKey
	entry  domain.HistoryEntry // reversal entry for title steps
}

// saga is the settlement of one exchange under the parties' ledger locks.
type saga struct {
	tx         *inventory.Tx
	reg        *registry.Registry
	exchangeID string
	intercept  StepInterceptor
	undo       []compensation
}

// run executes step unless the interceptor vetoes it.
func (s *saga) run(step Step, fn func() (compensation, error)) error {
	if s.intercept != nil {
		if err := s.intercept(s.exchangeID, step); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	c, err := fn()
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	s.undo = append(s.undo, c)
	return nil
}

// transfer moves the escrowed offer of from to to's available holdings.
func (s *saga) transfer(step Step, from, to domain.PartyID, offer domain.Offer) error {
	return s.run(step, func() (compensation, error) {
		switch o := offer.(type) {
		case domain.CashOffer:
			if err := s.tx.TransferCash(from, to, o.Amount); err != nil {
				return compensation{}, err
			}
			return compensation{kind: reverseCashTransfer, from: from, to: to, amount: o.Amount}, nil
		case domain.AssetOffer:
			if err := s.tx.TransferAsset(from, to, o.ID, o.Class); err != nil {
				return compensation{}, err
			}
			return compensation{kind: reverseAssetTransfer, from: from, to: to, asset: o.Key()}, nil
		default:
			domain.MustBeOffer(offer)
			return compensation{}, nil
		}
	})
}

// title records the ownership change of an asset leg. entry describes the
// forward transfer; its reversal is kept for compensation.
func (s *saga) title(step Step, asset domain.AssetOffer, entry domain.HistoryEntry) error {
	return s.run(step, func() (compensation, error) {
		if err := s.reg.RecordTransfer(asset.Class, asset.ID, entry.To, entry); err != nil {
			return compensation{}, err
		}
		rev := entry
		rev.From, rev.To = entry.To, entry.From
		rev.Reversal = true
		return compensation{kind: reverseTitleTransfer, from: entry.From, to: entry.To, asset: asset.Key(), entry: rev}, nil
	})
}

// rollback drains the compensation list in reverse order. Every entry is
// attempted; failures are joined.
func (s *saga) rollback() error {
	var errs []error
	for i := len(s.undo) - 1; i >= 0; i-- {
		c := s.undo[i]
		var err error
		switch c.kind {
		case reverseCashTransfer:
			err = s.tx.ReverseCashTransfer(c.from, c.to, c.amount)
		case reverseAssetTransfer:
			err = s.tx.ReverseAssetTransfer(c.from, c.to, c.asset.ID, c.asset.Class)
		case reverseTitleTransfer:
			err = s.reg.RecordTransfer(c.asset.Class, c.asset.ID, c.from, c.entry)
		default:
			panic(fmt.Sprintf("engine: unknown compensation %v", c.kind))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", c.kind, c.asset, err))
		}
	}
	s.undo = nil
	return errors.Join(errs...)
}
