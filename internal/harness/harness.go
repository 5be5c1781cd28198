package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/genesis"
	"github.com/roach88/escrow/internal/inventory"
	"github.com/roach88/escrow/internal/notify"
	"github.com/roach88/escrow/internal/registry"
	"github.com/roach88/escrow/internal/testutil"
)

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine *engine.Engine
	inv    *inventory.Store
	reg    *registry.Registry
	logger *slog.Logger

	refs   map[string]string
	failAt map[string]engine.Step

	// cash and asset totals the ledgers must add up to
	expectedCash   decimal.Decimal
	expectedAssets int

	mu      sync.Mutex
	pending []notify.Event
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes engine logs. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns its result.
//
// Each scenario gets its own inventory, registry and engine with sequential
// exchange ids and a stepping clock. The error return is reserved for
// scenarios that cannot start (bad genesis); step and assertion failures
// are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	spec, err := loadGenesis(scenario)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewStepClock(testutil.Epoch, 0)
	h := &Harness{
		inv:    inventory.New(inventory.WithNow(clock.Now)),
		reg:    registry.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		refs:   make(map[string]string),
		failAt: make(map[string]engine.Step),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := genesis.Apply(spec, h.inv, h.reg); err != nil {
		return nil, fmt.Errorf("failed to apply genesis: %w", err)
	}
	h.expectedCash = decimal.Zero
	for _, p := range spec.Parties {
		h.expectedCash = h.expectedCash.Add(p.Cash)
	}
	h.expectedAssets = len(spec.Assets)

	h.engine = engine.New(h.inv, h.reg,
		engine.WithIDGenerator(testutil.NewSequentialIDs("ex")),
		engine.WithNow(clock.Now),
		engine.WithLogger(h.logger),
		engine.WithSink(notify.SinkFunc(h.record)),
		engine.WithStepInterceptor(h.intercept),
	)

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		h.execute(ctx, i, step, result)
	}

	for _, msg := range EvaluateAssertions(h, scenario.Assertions) {
		result.AddError(msg)
	}
	h.captureState(result)
	return result, nil
}

// RunFile loads and runs a scenario file.
func RunFile(path string, opts ...Option) (*Scenario, *Result, error) {
	s, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := Run(s, opts...)
	return s, r, err
}

func loadGenesis(s *Scenario) (*genesis.Spec, error) {
	if s.GenesisFile != "" {
		spec, err := genesis.LoadCUE(s.GenesisFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load genesis: %w", err)
		}
		return spec, nil
	}
	if s.Genesis == nil {
		return nil, fmt.Errorf("scenario %q has no genesis", s.Name)
	}
	return s.Genesis, nil
}

func (h *Harness) record(_ context.Context, ev notify.Event) error {
	h.mu.Lock()
	h.pending = append(h.pending, ev)
	h.mu.Unlock()
	return nil
}

func (h *Harness) intercept(exchangeID string, step engine.Step) error {
	if want, ok := h.failAt[exchangeID]; ok && want == step {
		return fmt.Errorf("injected failure at %s", step)
	}
	return nil
}

// resolve maps a ref to an exchange id.
func (h *Harness) resolve(ref string) string {
	if id, ok := h.refs[ref]; ok {
		return id
	}
	return ref
}

// execute runs one step, compares it with its expectation and appends the
// step and the notifications it caused to the trace.
func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) {
	ev := TraceEvent{Kind: KindStep, Op: step.Op}
	var err error
	var returned *bool

	switch step.Op {
	case OpCreate:
		ev.Party = string(step.From)
		var offering, requesting domain.Offer
		offering, err = step.Offering.Decode()
		if err == nil {
			requesting, err = step.Requesting.Decode()
		}
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			return
		}
		var p domain.Proposal
		p, err = h.engine.CreateExchange(ctx, step.From, step.To, offering, requesting, step.Description)
		if err == nil {
			ev.Exchange = p.ID
			if step.Ref != "" {
				h.refs[step.Ref] = p.ID
			}
		}

	case OpAccept:
		ev.Party = string(step.Party)
		ev.Exchange = h.resolve(step.Ref)
		if step.FailAt != "" {
			h.failAt[ev.Exchange] = step.FailAt
		}
		_, err = h.engine.AcceptExchange(ctx, ev.Exchange, step.Party)
		delete(h.failAt, ev.Exchange)

	case OpCancel, OpReject:
		ev.Party = string(step.Party)
		ev.Exchange = h.resolve(step.Ref)
		var ok bool
		if step.Op == OpCancel {
			ok = h.engine.CancelExchange(ctx, ev.Exchange, step.Party)
		} else {
			ok = h.engine.RejectExchange(ctx, ev.Exchange, step.Party)
		}
		returned = &ok

	case OpDeposit, OpWithdraw:
		ev.Party = string(step.Party)
		if step.Op == OpDeposit {
			err = h.engine.Deposit(ctx, step.Party, *step.Amount)
			if err == nil {
				h.expectedCash = h.expectedCash.Add(*step.Amount)
			}
		} else {
			err = h.engine.Withdraw(ctx, step.Party, *step.Amount)
			if err == nil {
				h.expectedCash = h.expectedCash.Sub(*step.Amount)
			}
		}
	}

	switch {
	case returned != nil:
		ev.Outcome = strconv.FormatBool(*returned)
	case err != nil:
		ev.Outcome = string(engine.CodeOf(err))
	default:
		ev.Outcome = "ok"
	}
	if ev.Exchange != "" {
		if p, ok := h.engine.GetExchange(ev.Exchange); ok {
			ev.Status = string(p.Status)
		}
	}
	result.add(ev)
	h.flush(result)

	for _, msg := range checkExpect(step, ev, err, returned) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
	}
	h.logger.Debug("step completed", "step", i, "op", step.Op, "exchange", ev.Exchange, "outcome", ev.Outcome)
}

// flush moves the notifications recorded during the last step into the trace.
func (h *Harness) flush(result *Result) {
	h.mu.Lock()
	events := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, n := range events {
		ev := TraceEvent{Kind: KindEvent, Event: string(n.Type), Key: n.Key(), EngineSeq: n.Seq}
		switch {
		case n.Exchange != nil:
			ev.Status = string(n.Exchange.Status)
		case n.Inventory != nil:
			ev.CashAvailable = n.Inventory.CashAvailable.String()
			ev.CashEscrowed = n.Inventory.CashEscrowed.String()
		}
		result.add(ev)
	}
}

func checkExpect(step Step, ev TraceEvent, err error, returned *bool) []string {
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}
	var msgs []string

	if returned != nil {
		want := true
		if exp.Result != nil {
			want = *exp.Result
		}
		if *returned != want {
			msgs = append(msgs, fmt.Sprintf("expected result %t, got %t", want, *returned))
		}
	} else {
		got := string(engine.CodeOf(err))
		if err != nil && got == "" {
			got = err.Error()
		}
		if got != exp.Error {
			if exp.Error == "" {
				msgs = append(msgs, fmt.Sprintf("expected success, got %s", got))
			} else if got == "" {
				msgs = append(msgs, fmt.Sprintf("expected error %s, got success", exp.Error))
			} else {
				msgs = append(msgs, fmt.Sprintf("expected error %s, got %s", exp.Error, got))
			}
		}
	}

	if exp.Status != "" && ev.Status != string(exp.Status) {
		msgs = append(msgs, fmt.Sprintf("expected status %s, got %q", exp.Status, ev.Status))
	}
	return msgs
}

func (h *Harness) captureState(result *Result) {
	for _, party := range h.inv.Parties() {
		snap, ok := h.inv.Snapshot(party)
		if !ok {
			continue
		}
		result.Parties = append(result.Parties, PartyState{
			Party:           string(party),
			CashAvailable:   snap.CashAvailable,
			CashEscrowed:    snap.CashEscrowed,
			AssetsAvailable: assetLists(snap.AssetsAvailable),
			AssetsEscrowed:  assetLists(snap.AssetsEscrowed),
		})
	}
	for _, p := range h.engine.Exchanges() {
		result.Exchanges = append(result.Exchanges, ExchangeState{ID: p.ID, Status: string(p.Status)})
	}
}

// assetLists copies a partition with sorted ids, dropping empty classes.
func assetLists(m map[domain.AssetClass][]domain.AssetID) map[string][]string {
	out := make(map[string][]string, len(m))
	for class, ids := range m {
		if len(ids) == 0 {
			continue
		}
		list := make([]string, len(ids))
		for i, id := range ids {
			list[i] = string(id)
		}
		sort.Strings(list)
		out[string(class)] = list
	}
	return out
}
