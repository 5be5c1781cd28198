package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/inventory"
	"github.com/roach88/escrow/internal/notify"
	"github.com/roach88/escrow/internal/registry"
)

const tracerName = "github.com/roach88/escrow/internal/engine"

// Engine runs the exchange-proposal state machine over an inventory store
// and an asset registry.
//
// Thread-safety: all methods are safe for concurrent use. Mutations of one
// proposal are serialized by its mutex. Lock order is proposal, then party
// ledgers in ascending id, then the registry. The proposals index lock is a
// leaf and is never held while acquiring another lock.
type Engine struct {
	inv    *inventory.Store
	reg    *registry.Registry
	sink   notify.Sink
	ids    IDGenerator
	clock  *Clock
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer

	intercept StepInterceptor

	mu        sync.RWMutex
	proposals map[string]*record
	order     []*record // creation order
}

// record guards one proposal.
type record struct {
	mu sync.Mutex
	p  domain.Proposal
}

func (r *record) snapshot() domain.Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.p.Clone()
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets where committed transitions are published.
// Default: notify.Discard.
func WithSink(s notify.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithIDGenerator sets the exchange id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithNow sets the wall clock used for timestamps. Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithClock sets the logical clock used to stamp transitions.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithStepInterceptor installs a hook that runs before every settlement step.
func WithStepInterceptor(fn StepInterceptor) Option {
	return func(e *Engine) {
		e.intercept = fn
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTracerProvider sets the OpenTelemetry provider for engine spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// New creates an Engine over the given stores.
func New(inv *inventory.Store, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		inv:       inv,
		reg:       reg,
		sink:      notify.Discard,
		ids:       UUIDv7Generator{},
		clock:     NewClock(),
		now:       time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		proposals: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateExchange validates an offer pair, escrows both legs and registers a
// pending proposal. Either both legs are locked and the proposal exists, or
// nothing changed.
func (e *Engine) CreateExchange(ctx context.Context, from, to domain.PartyID, offering, requesting domain.Offer, description string) (domain.Proposal, error) {
	ctx, span := e.tracer.Start(ctx, "engine.CreateExchange", trace.WithAttributes(
		attribute.String("exchange.from", string(from)),
		attribute.String("exchange.to", string(to)),
	))
	defer span.End()

	if err := e.validateOffers(from, to, offering, requesting); err != nil {
		return domain.Proposal{}, e.fail(span, err)
	}

	var created *record
	var ledgers []inventory.Snapshot
	err := e.inv.Atomically([]domain.PartyID{from, to}, func(tx *inventory.Tx) error {
		if err := lockOffer(tx, from, offering); err != nil {
			return fromInventory(err, "")
		}
		if err := lockOffer(tx, to, requesting); err != nil {
			reason := fromInventory(err, "")
			if rerr := releaseOffer(tx, from, offering); rerr != nil {
				e.logger.Warn("release of first leg failed after second leg was refused",
					"from", from, "offering", offering.String(), "error", rerr)
				reason.Err = errors.Join(reason.Err, rerr)
			}
			return reason
		}

		now := e.now()
		created = &record{p: domain.Proposal{
			ID:          e.ids.Generate(),
			From:        from,
			To:          to,
			Offering:    offering,
			Requesting:  requesting,
			Description: description,
			Status:      domain.StatusPending,
			Seq:         e.clock.Next(),
			CreatedAt:   now,
		}}
		e.mu.Lock()
		e.proposals[created.p.ID] = created
		e.order = append(e.order, created)
		e.mu.Unlock()
		ledgers = captureLedgers(tx, from, to)
		return nil
	})
	if err != nil {
		return domain.Proposal{}, e.fail(span, err)
	}

	p := created.snapshot()
	span.SetAttributes(attribute.String("exchange.id", p.ID))
	e.logger.Info("exchange created",
		"exchange_id", p.ID,
		"from", p.From,
		"to", p.To,
		"offering", p.Offering.String(),
		"requesting", p.Requesting.String(),
		"seq", p.Seq,
	)
	e.emit(ctx, p, ledgers)
	return p, nil
}

// AcceptExchange settles a pending proposal on behalf of its counterparty.
//
// Both legs are already escrowed, so availability is not re-checked. The
// four settlement steps run under the parties' ledger locks; if any fails,
// completed steps are undone in reverse order, the proposal stays pending,
// and ErrTransferFailed is returned.
func (e *Engine) AcceptExchange(ctx context.Context, id string, party domain.PartyID) (domain.Proposal, error) {
	ctx, span := e.tracer.Start(ctx, "engine.AcceptExchange", trace.WithAttributes(
		attribute.String("exchange.id", id),
		attribute.String("exchange.party", string(party)),
	))
	defer span.End()

	rec, ok := e.lookup(id)
	if !ok {
		return domain.Proposal{}, e.fail(span, newError(CodeNotFound, id, "no such exchange"))
	}

	rec.mu.Lock()
	p := rec.p
	if !p.Status.CanTransition(domain.StatusAccepted) {
		rec.mu.Unlock()
		return domain.Proposal{}, e.fail(span, newError(CodeInvalidState, id, "exchange is %s", p.Status))
	}
	if party != p.To {
		rec.mu.Unlock()
		err := newError(CodeNotAuthorized, id, "only the counterparty may accept")
		err.Party = party
		return domain.Proposal{}, e.fail(span, err)
	}

	var ledgers []inventory.Snapshot
	err := e.inv.Atomically([]domain.PartyID{p.From, p.To}, func(tx *inventory.Tx) error {
		if err := e.settle(tx, p); err != nil {
			return err
		}
		now := e.now()
		rec.p.Status = domain.StatusAccepted
		rec.p.AcceptedAt = &now
		rec.p.Seq = e.clock.Next()
		ledgers = captureLedgers(tx, p.From, p.To)
		return nil
	})
	if err != nil {
		rec.mu.Unlock()
		return domain.Proposal{}, e.fail(span, err)
	}
	accepted := rec.p.Clone()
	rec.mu.Unlock()

	e.logger.Info("exchange accepted", "exchange_id", id, "seq", accepted.Seq)
	e.emit(ctx, accepted, ledgers)
	return accepted, nil
}

// settle runs the four settlement steps. Caller holds the proposal and
// both ledger locks.
func (e *Engine) settle(tx *inventory.Tx, p domain.Proposal) error {
	s := &saga{tx: tx, reg: e.reg, exchangeID: p.ID, intercept: e.intercept}
	now := e.now()

	err := s.transfer(StepOfferingTransfer, p.From, p.To, p.Offering)
	if err == nil {
		if asset, ok := p.Offering.(domain.AssetOffer); ok {
			err = s.title(StepOfferingTitle, asset, e.historyEntry(now, p.ID, p.From, p.To, p.Requesting))
		}
	}
	if err == nil {
		err = s.transfer(StepRequestingTransfer, p.To, p.From, p.Requesting)
	}
	if err == nil {
		if asset, ok := p.Requesting.(domain.AssetOffer); ok {
			err = s.title(StepRequestingTitle, asset, e.historyEntry(now, p.ID, p.To, p.From, p.Offering))
		}
	}
	if err == nil {
		return nil
	}

	failure := &Error{Code: CodeTransferFailed, Message: "settlement failed and was rolled back", ExchangeID: p.ID, Err: err}
	if rerr := s.rollback(); rerr != nil {
		e.logger.Warn("compensation failed; ledgers may be inconsistent",
			"exchange_id", p.ID, "cause", err, "error", rerr)
		failure.Message = "settlement failed and rollback was incomplete"
		failure.Err = errors.Join(err, rerr)
	} else {
		e.logger.Info("settlement rolled back", "exchange_id", p.ID, "cause", err)
	}
	return failure
}

// historyEntry describes an asset moving from -> to in exchange for consideration.
func (e *Engine) historyEntry(at time.Time, exchangeID string, from, to domain.PartyID, consideration domain.Offer) domain.HistoryEntry {
	value := decimal.Zero
	switch c := consideration.(type) {
	case domain.CashOffer:
		value = c.Amount
	case domain.AssetOffer:
		if a, ok := e.reg.Get(c.Class, c.ID); ok {
			value = a.Valuation
		}
	}
	return domain.HistoryEntry{
		At:                 at,
		From:               from,
		To:                 to,
		ExchangeID:         exchangeID,
		Consideration:      consideration.String(),
		ConsiderationValue: value,
	}
}

// CancelExchange withdraws a pending proposal on behalf of its proposer and
// releases both legs. Returns false on any precondition violation.
func (e *Engine) CancelExchange(ctx context.Context, id string, party domain.PartyID) bool {
	return e.close(ctx, "engine.CancelExchange", id, party, domain.StatusCancelled)
}

// RejectExchange declines a pending proposal on behalf of its counterparty
// and releases both legs. Returns false on any precondition violation.
func (e *Engine) RejectExchange(ctx context.Context, id string, party domain.PartyID) bool {
	return e.close(ctx, "engine.RejectExchange", id, party, domain.StatusRejected)
}

func (e *Engine) close(ctx context.Context, spanName, id string, party domain.PartyID, next domain.Status) bool {
	ctx, span := e.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("exchange.id", id),
		attribute.String("exchange.party", string(party)),
	))
	defer span.End()

	rec, ok := e.lookup(id)
	if !ok {
		return false
	}

	rec.mu.Lock()
	p := rec.p
	allowed := p.From
	if next == domain.StatusRejected {
		allowed = p.To
	}
	if !p.Status.CanTransition(next) || party != allowed {
		rec.mu.Unlock()
		e.logger.Debug("close refused", "exchange_id", id, "party", party, "status", p.Status, "want", next)
		return false
	}

	var ledgers []inventory.Snapshot
	err := e.inv.Atomically([]domain.PartyID{p.From, p.To}, func(tx *inventory.Tx) error {
		if err := releaseOffer(tx, p.From, p.Offering); err != nil {
			return err
		}
		if err := releaseOffer(tx, p.To, p.Requesting); err != nil {
			if rerr := lockOffer(tx, p.From, p.Offering); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		now := e.now()
		rec.p.Status = next
		if next == domain.StatusCancelled {
			rec.p.CancelledAt = &now
		} else {
			rec.p.RejectedAt = &now
		}
		rec.p.Seq = e.clock.Next()
		ledgers = captureLedgers(tx, p.From, p.To)
		return nil
	})
	if err != nil {
		rec.mu.Unlock()
		e.logger.Warn("escrow release failed", "exchange_id", id, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}

	closed := rec.p.Clone()
	rec.mu.Unlock()

	e.logger.Info("exchange closed", "exchange_id", id, "status", next, "seq", closed.Seq)
	e.emit(ctx, closed, ledgers)
	return true
}

// Deposit credits a party's available cash from the off-engine ledger.
func (e *Engine) Deposit(ctx context.Context, party domain.PartyID, amount decimal.Decimal) error {
	return e.adjust(ctx, party, func(tx *inventory.Tx) error { return tx.Deposit(party, amount) })
}

// Withdraw debits a party's available cash. Escrowed cash is untouched.
func (e *Engine) Withdraw(ctx context.Context, party domain.PartyID, amount decimal.Decimal) error {
	return e.adjust(ctx, party, func(tx *inventory.Tx) error { return tx.Withdraw(party, amount) })
}

// adjust applies a single-party cash change and emits the ledger as it was
// committed, stamped under the same lock.
func (e *Engine) adjust(ctx context.Context, party domain.PartyID, change func(tx *inventory.Tx) error) error {
	var seq int64
	var ledgers []inventory.Snapshot
	err := e.inv.Atomically([]domain.PartyID{party}, func(tx *inventory.Tx) error {
		if err := change(tx); err != nil {
			return err
		}
		seq = e.clock.Next()
		ledgers = captureLedgers(tx, party)
		return nil
	})
	if err != nil {
		return fromInventory(err, "")
	}
	e.emitLedgers(ctx, seq, ledgers)
	return nil
}

// GetExchange returns a copy of the proposal.
func (e *Engine) GetExchange(id string) (domain.Proposal, bool) {
	rec, ok := e.lookup(id)
	if !ok {
		return domain.Proposal{}, false
	}
	return rec.snapshot(), true
}

// ExchangesByParty returns every proposal the party is on either side of,
// in creation order.
func (e *Engine) ExchangesByParty(party domain.PartyID) []domain.Proposal {
	e.mu.RLock()
	recs := make([]*record, len(e.order))
	copy(recs, e.order)
	e.mu.RUnlock()

	var out []domain.Proposal
	for _, rec := range recs {
		p := rec.snapshot()
		if p.Involves(party) {
			out = append(out, p)
		}
	}
	return out
}

// Exchanges returns every proposal in creation order.
func (e *Engine) Exchanges() []domain.Proposal {
	e.mu.RLock()
	recs := make([]*record, len(e.order))
	copy(recs, e.order)
	e.mu.RUnlock()

	out := make([]domain.Proposal, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	return out
}

// InventorySnapshot returns the party's ledger.
func (e *Engine) InventorySnapshot(party domain.PartyID) (inventory.Snapshot, bool) {
	return e.inv.Snapshot(party)
}

func (e *Engine) lookup(id string) (*record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.proposals[id]
	return rec, ok
}

func (e *Engine) validateOffers(from, to domain.PartyID, offering, requesting domain.Offer) error {
	if from == to {
		return newError(CodeInvalidOffer, "", "a party cannot exchange with itself")
	}
	for _, party := range []domain.PartyID{from, to} {
		if !e.inv.Exists(party) {
			err := newError(CodeUnknownParty, "", "party %q has no ledger", party)
			err.Party = party
			return err
		}
	}
	for _, leg := range []struct {
		name  string
		offer domain.Offer
	}{{"offering", offering}, {"requesting", requesting}} {
		switch o := leg.offer.(type) {
		case nil:
			return newError(CodeInvalidOffer, "", "%s is missing", leg.name)
		case domain.CashOffer:
			if !o.Amount.IsPositive() {
				return newError(CodeInvalidOffer, "", "%s cash amount %s must be positive", leg.name, o.Amount)
			}
		case domain.AssetOffer:
			if !o.Class.Valid() {
				return newError(CodeInvalidOffer, "", "%s asset class %q is unknown", leg.name, o.Class)
			}
			if _, ok := e.reg.Get(o.Class, o.ID); !ok {
				return newError(CodeInvalidOffer, "", "%s asset %s is not registered", leg.name, o.Key())
			}
		default:
			domain.MustBeOffer(leg.offer)
		}
	}
	return nil
}

func lockOffer(tx *inventory.Tx, party domain.PartyID, offer domain.Offer) error {
	switch o := offer.(type) {
	case domain.CashOffer:
		return tx.LockCash(party, o.Amount)
	case domain.AssetOffer:
		return tx.LockAsset(party, o.ID, o.Class)
	default:
		domain.MustBeOffer(offer)
		return nil
	}
}

func releaseOffer(tx *inventory.Tx, party domain.PartyID, offer domain.Offer) error {
	switch o := offer.(type) {
	case domain.CashOffer:
		return tx.ReleaseCash(party, o.Amount)
	case domain.AssetOffer:
		return tx.ReleaseAsset(party, o.ID, o.Class)
	default:
		domain.MustBeOffer(offer)
		return nil
	}
}

// captureLedgers copies the named ledgers in ascending party order. The
// caller holds their locks, so the copies are exactly the committed state.
func captureLedgers(tx *inventory.Tx, parties ...domain.PartyID) []inventory.Snapshot {
	sorted := slices.Clone(parties)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]inventory.Snapshot, 0, len(sorted))
	for _, party := range sorted {
		if snap, ok := tx.Snapshot(party); ok {
			out = append(out, snap)
		}
	}
	return out
}

// emit publishes the proposal followed by the ledgers captured when the
// transition committed. Called after every lock has been released.
func (e *Engine) emit(ctx context.Context, p domain.Proposal, ledgers []inventory.Snapshot) {
	e.publish(ctx, notify.Event{Type: notify.EventExchange, Seq: p.Seq, At: e.now(), Exchange: &p})
	e.emitLedgers(ctx, p.Seq, ledgers)
}

func (e *Engine) emitLedgers(ctx context.Context, seq int64, ledgers []inventory.Snapshot) {
	for i := range ledgers {
		snap := ledgers[i]
		e.publish(ctx, notify.Event{Type: notify.EventInventoryUpdate, Seq: seq, At: e.now(), Inventory: &snap})
	}
}

func (e *Engine) publish(ctx context.Context, ev notify.Event) {
	if err := e.sink.Publish(ctx, ev); err != nil {
		e.logger.Warn("notification dropped", "type", ev.Type, "key", ev.Key(), "error", err)
	}
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Debug("operation refused", "code", CodeOf(err), "error", err)
	return err
}
