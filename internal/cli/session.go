package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/inventory"
)

// Request is one JSON-line command read by `escrow run`.
//
//	{"op":"create","from":"alice","to":"bob","offering":{"type":"cash","amount":"10"},"requesting":{"type":"asset","asset_class":"real_estate","asset_id":"re_1"}}
//	{"op":"accept","id":"...","party":"bob"}
//	{"op":"snapshot","party":"alice"}
type Request struct {
	Op          string            `json:"op"`
	ID          string            `json:"id,omitempty"`
	From        domain.PartyID    `json:"from,omitempty"`
	To          domain.PartyID    `json:"to,omitempty"`
	Party       domain.PartyID    `json:"party,omitempty"`
	Offering    *domain.OfferJSON `json:"offering,omitempty"`
	Requesting  *domain.OfferJSON `json:"requesting,omitempty"`
	Description string            `json:"description,omitempty"`
	Amount      *decimal.Decimal  `json:"amount,omitempty"`
}

// Session executes requests against one engine.
type Session struct {
	engine *engine.Engine
}

// NewSession creates a session over eng.
func NewSession(eng *engine.Engine) *Session {
	return &Session{engine: eng}
}

// proposalView is the text form of a proposal.
type proposalView struct{ domain.Proposal }

func (v proposalView) MarshalJSON() ([]byte, error) { return json.Marshal(v.Proposal) }

func (v proposalView) Text() string {
	return fmt.Sprintf("%s %s %s->%s offering=%s requesting=%s seq=%d",
		v.ID, v.Status, v.From, v.To, v.Offering, v.Requesting, v.Seq)
}

type proposalList []domain.Proposal

func (l proposalList) Text() string {
	if len(l) == 0 {
		return "no exchanges"
	}
	lines := make([]string, len(l))
	for i, p := range l {
		lines[i] = proposalView{p}.Text()
	}
	return strings.Join(lines, "\n")
}

type snapshotView struct{ inventory.Snapshot }

func (v snapshotView) MarshalJSON() ([]byte, error) { return json.Marshal(v.Snapshot) }

func (v snapshotView) Text() string {
	return fmt.Sprintf("%s available=%s escrowed=%s assets=%s escrowed_assets=%s",
		v.PartyID, v.CashAvailable, v.CashEscrowed,
		formatPartition(v.AssetsAvailable), formatPartition(v.AssetsEscrowed))
}

func formatPartition(m map[domain.AssetClass][]domain.AssetID) string {
	var parts []string
	for _, class := range domain.AssetClasses {
		for _, id := range m[class] {
			parts = append(parts, domain.AssetKey{Class: class, ID: id}.String())
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// closeResult is the outcome of cancel and reject.
type closeResult struct {
	ID     string `json:"id"`
	Op     string `json:"op"`
	Closed bool   `json:"closed"`
}

func (r closeResult) Text() string {
	return fmt.Sprintf("%s %s closed=%t", r.ID, r.Op, r.Closed)
}

// Handle decodes and executes one request line. Exactly one of the results
// is non-nil.
func (s *Session) Handle(ctx context.Context, line []byte) (any, *CLIError) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, &CLIError{Code: ErrCodeBadRequest, Message: fmt.Sprintf("invalid request: %v", err)}
	}
	return s.Do(ctx, req)
}

// Do executes a decoded request.
func (s *Session) Do(ctx context.Context, req Request) (any, *CLIError) {
	switch req.Op {
	case "create":
		if req.Offering == nil || req.Requesting == nil {
			return nil, badRequest("create requires offering and requesting")
		}
		offering, err := req.Offering.Decode()
		if err != nil {
			return nil, badRequest("offering: %v", err)
		}
		requesting, err := req.Requesting.Decode()
		if err != nil {
			return nil, badRequest("requesting: %v", err)
		}
		p, err := s.engine.CreateExchange(ctx, req.From, req.To, offering, requesting, req.Description)
		if err != nil {
			return nil, engineError(err)
		}
		return proposalView{p}, nil

	case "accept":
		p, err := s.engine.AcceptExchange(ctx, req.ID, req.Party)
		if err != nil {
			return nil, engineError(err)
		}
		return proposalView{p}, nil

	case "cancel":
		return closeResult{ID: req.ID, Op: req.Op, Closed: s.engine.CancelExchange(ctx, req.ID, req.Party)}, nil

	case "reject":
		return closeResult{ID: req.ID, Op: req.Op, Closed: s.engine.RejectExchange(ctx, req.ID, req.Party)}, nil

	case "deposit", "withdraw":
		if req.Amount == nil {
			return nil, badRequest("%s requires amount", req.Op)
		}
		var err error
		if req.Op == "deposit" {
			err = s.engine.Deposit(ctx, req.Party, *req.Amount)
		} else {
			err = s.engine.Withdraw(ctx, req.Party, *req.Amount)
		}
		if err != nil {
			return nil, engineError(err)
		}
		return s.snapshot(req.Party)

	case "get":
		p, ok := s.engine.GetExchange(req.ID)
		if !ok {
			return nil, &CLIError{Code: string(engine.CodeNotFound), Message: fmt.Sprintf("no exchange %q", req.ID)}
		}
		return proposalView{p}, nil

	case "list":
		if req.Party == "" {
			return proposalList(s.engine.Exchanges()), nil
		}
		return proposalList(s.engine.ExchangesByParty(req.Party)), nil

	case "snapshot":
		return s.snapshot(req.Party)

	case "":
		return nil, badRequest("op is required")
	default:
		return nil, badRequest("unknown op %q", req.Op)
	}
}

func (s *Session) snapshot(party domain.PartyID) (any, *CLIError) {
	snap, ok := s.engine.InventorySnapshot(party)
	if !ok {
		return nil, &CLIError{Code: string(engine.CodeUnknownParty), Message: fmt.Sprintf("no ledger for %q", party)}
	}
	return snapshotView{snap}, nil
}

func badRequest(format string, args ...any) *CLIError {
	return &CLIError{Code: ErrCodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func engineError(err error) *CLIError {
	code := string(engine.CodeOf(err))
	if code == "" {
		code = ErrCodeBadRequest
	}
	return &CLIError{Code: code, Message: err.Error()}
}
