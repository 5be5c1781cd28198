package harness

import "github.com/shopspring/decimal"

// Trace entry kinds.
const (
	KindStep  = "step"
	KindEvent = "event"
)

// TraceEvent is one entry of a scenario trace: either a step the harness
// performed or a notification the engine published while performing it.
type TraceEvent struct {
	Kind     string `json:"kind"`
	Seq      int64  `json:"seq"`
	Op       string `json:"op,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Party    string `json:"party,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Status   string `json:"status,omitempty"`

	Event         string `json:"event,omitempty"`
	Key           string `json:"key,omitempty"`
	EngineSeq     int64  `json:"engine_seq,omitempty"`
	CashAvailable string `json:"cash_available,omitempty"`
	CashEscrowed  string `json:"cash_escrowed,omitempty"`
}

// PartyState is the final ledger of one party.
type PartyState struct {
	Party           string              `json:"party"`
	CashAvailable   decimal.Decimal     `json:"cash_available"`
	CashEscrowed    decimal.Decimal     `json:"cash_escrowed"`
	AssetsAvailable map[string][]string `json:"assets_available"`
	AssetsEscrowed  map[string][]string `json:"assets_escrowed"`
}

// ExchangeState is the final status of one exchange.
type ExchangeState struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	Parties   []PartyState    `json:"parties"`
	Exchanges []ExchangeState `json:"exchanges"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
