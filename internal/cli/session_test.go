package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/genesis"
	"github.com/roach88/escrow/internal/inventory"
	"github.com/roach88/escrow/internal/registry"
)

const sessionGenesis = `
party: alice: {cash: 1000}
party: bob: {}
asset: real_estate: re_1: {owner: "bob", valuation: 900}
`

func newTestSession(t *testing.T, ids ...string) *Session {
	t.Helper()
	spec, err := genesis.CompileString(sessionGenesis)
	require.NoError(t, err)
	inv := inventory.New()
	reg := registry.New()
	require.NoError(t, genesis.Apply(spec, inv, reg))
	eng := engine.New(inv, reg, engine.WithIDGenerator(engine.NewFixedGenerator(ids...)))
	return NewSession(eng)
}

func handle(t *testing.T, s *Session, line string) (any, *CLIError) {
	t.Helper()
	return s.Handle(context.Background(), []byte(line))
}

func TestSession_CreateAndAccept(t *testing.T) {
	s := newTestSession(t, "ex-1")

	out, cliErr := handle(t, s, `{"op":"create","from":"alice","to":"bob","offering":{"type":"cash","amount":"400"},"requesting":{"type":"asset","asset_class":"real_estate","asset_id":"re_1"}}`)
	require.Nil(t, cliErr)
	created, ok := out.(proposalView)
	require.True(t, ok)
	assert.Equal(t, "ex-1", created.ID)
	assert.Equal(t, domain.StatusPending, created.Status)

	out, cliErr = handle(t, s, `{"op":"snapshot","party":"alice"}`)
	require.Nil(t, cliErr)
	snap := out.(snapshotView)
	assert.Equal(t, "600", snap.CashAvailable.String())
	assert.Equal(t, "400", snap.CashEscrowed.String())

	out, cliErr = handle(t, s, `{"op":"accept","id":"ex-1","party":"bob"}`)
	require.Nil(t, cliErr)
	assert.Equal(t, domain.StatusAccepted, out.(proposalView).Status)

	out, cliErr = handle(t, s, `{"op":"snapshot","party":"alice"}`)
	require.Nil(t, cliErr)
	snap = out.(snapshotView)
	assert.Equal(t, []domain.AssetID{"re_1"}, snap.AssetsAvailable[domain.ClassRealEstate])
	assert.True(t, snap.CashEscrowed.IsZero())
}

func TestSession_CreateAcceptsHyphenatedClass(t *testing.T) {
	spec, err := genesis.CompileString(`
party: alice: {cash: 500}
party: carol: {}
asset: private_equity: pe_1: {owner: "carol", valuation: 20}
`)
	require.NoError(t, err)
	inv := inventory.New()
	reg := registry.New()
	require.NoError(t, genesis.Apply(spec, inv, reg))
	s := NewSession(engine.New(inv, reg, engine.WithIDGenerator(engine.NewFixedGenerator("ex-1"))))

	out, cliErr := handle(t, s, `{"op":"create","from":"alice","to":"carol","offering":{"type":"cash","amount":"20"},"requesting":{"type":"asset","asset_class":"private-equity","asset_id":"pe_1"}}`)
	require.Nil(t, cliErr)
	created := out.(proposalView)
	assert.Equal(t, domain.StatusPending, created.Status)

	out, cliErr = handle(t, s, `{"op":"snapshot","party":"carol"}`)
	require.Nil(t, cliErr)
	assert.Equal(t, []domain.AssetID{"pe_1"}, out.(snapshotView).AssetsEscrowed[domain.ClassPrivateEquity])
}

func TestSession_CancelAndReject(t *testing.T) {
	s := newTestSession(t, "ex-1", "ex-2")

	create := `{"op":"create","from":"alice","to":"bob","offering":{"type":"cash","amount":"10"},"requesting":{"type":"asset","asset_class":"real_estate","asset_id":"re_1"}}`
	_, cliErr := handle(t, s, create)
	require.Nil(t, cliErr)

	// Only the proposer may cancel.
	out, cliErr := handle(t, s, `{"op":"cancel","id":"ex-1","party":"bob"}`)
	require.Nil(t, cliErr)
	assert.Equal(t, closeResult{ID: "ex-1", Op: "cancel", Closed: false}, out)

	out, cliErr = handle(t, s, `{"op":"cancel","id":"ex-1","party":"alice"}`)
	require.Nil(t, cliErr)
	assert.True(t, out.(closeResult).Closed)

	_, cliErr = handle(t, s, create)
	require.Nil(t, cliErr)
	out, cliErr = handle(t, s, `{"op":"reject","id":"ex-2","party":"bob"}`)
	require.Nil(t, cliErr)
	assert.True(t, out.(closeResult).Closed)

	out, cliErr = handle(t, s, `{"op":"list","party":"alice"}`)
	require.Nil(t, cliErr)
	list := out.(proposalList)
	require.Len(t, list, 2)
	assert.Equal(t, domain.StatusCancelled, list[0].Status)
	assert.Equal(t, domain.StatusRejected, list[1].Status)
}

func TestSession_DepositWithdraw(t *testing.T) {
	s := newTestSession(t)

	out, cliErr := handle(t, s, `{"op":"deposit","party":"bob","amount":"25.5"}`)
	require.Nil(t, cliErr)
	assert.Equal(t, "25.5", out.(snapshotView).CashAvailable.String())

	out, cliErr = handle(t, s, `{"op":"withdraw","party":"bob","amount":"5"}`)
	require.Nil(t, cliErr)
	assert.Equal(t, "20.5", out.(snapshotView).CashAvailable.String())

	_, cliErr = handle(t, s, `{"op":"withdraw","party":"bob","amount":"100"}`)
	require.NotNil(t, cliErr)
	assert.Equal(t, string(engine.CodeInsufficientFunds), cliErr.Code)
}

func TestSession_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		code string
	}{
		{"malformed json", `{"op":`, ErrCodeBadRequest},
		{"unknown field", `{"op":"get","bogus":1}`, ErrCodeBadRequest},
		{"missing op", `{}`, ErrCodeBadRequest},
		{"unknown op", `{"op":"transfer"}`, ErrCodeBadRequest},
		{"create without legs", `{"op":"create","from":"alice","to":"bob"}`, ErrCodeBadRequest},
		{"bad offer kind", `{"op":"create","from":"alice","to":"bob","offering":{"type":"bond"},"requesting":{"type":"cash","amount":"1"}}`, ErrCodeBadRequest},
		{"deposit without amount", `{"op":"deposit","party":"bob"}`, ErrCodeBadRequest},
		{"get missing", `{"op":"get","id":"nope"}`, string(engine.CodeNotFound)},
		{"accept missing", `{"op":"accept","id":"nope","party":"bob"}`, string(engine.CodeNotFound)},
		{"snapshot unknown party", `{"op":"snapshot","party":"zed"}`, string(engine.CodeUnknownParty)},
		{"unknown asset class", `{"op":"create","from":"alice","to":"bob","offering":{"type":"cash","amount":"1"},"requesting":{"type":"asset","asset_class":"timeshare","asset_id":"re_1"}}`, string(engine.CodeInvalidOffer)},
		{"asset not owned", `{"op":"create","from":"alice","to":"bob","offering":{"type":"asset","asset_class":"real_estate","asset_id":"re_1"},"requesting":{"type":"cash","amount":"1"}}`, string(engine.CodeNotOwned)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, "ex-1")
			out, cliErr := handle(t, s, tt.line)
			assert.Nil(t, out)
			require.NotNil(t, cliErr)
			assert.Equal(t, tt.code, cliErr.Code)
			assert.NotEmpty(t, cliErr.Message)
		})
	}
}

func TestSession_ViewsMarshalAsDomainJSON(t *testing.T) {
	s := newTestSession(t, "ex-1")
	out, cliErr := handle(t, s, `{"op":"create","from":"alice","to":"bob","offering":{"type":"cash","amount":"10"},"requesting":{"type":"asset","asset_class":"real_estate","asset_id":"re_1"}}`)
	require.Nil(t, cliErr)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ex-1", decoded["id"])
	assert.Equal(t, "alice", decoded["from_party"])
	assert.Equal(t, "pending", decoded["status"])

	assert.Contains(t, out.(Texter).Text(), "ex-1 pending alice->bob")
}
