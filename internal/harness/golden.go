package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/escrow/internal/domain"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden form of a scenario run: its trace and the
// final ledgers and exchanges.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// Canonical converts the snapshot to a map for canonical JSON serialization.
func (s *TraceSnapshot) Canonical() map[string]any {
	trace := make([]any, len(s.Result.Trace))
	for i, ev := range s.Result.Trace {
		m := map[string]any{
			"kind": ev.Kind,
			"seq":  ev.Seq,
		}
		for k, v := range map[string]string{
			"op":             ev.Op,
			"exchange":       ev.Exchange,
			"party":          ev.Party,
			"outcome":        ev.Outcome,
			"status":         ev.Status,
			"event":          ev.Event,
			"key":            ev.Key,
			"cash_available": ev.CashAvailable,
			"cash_escrowed":  ev.CashEscrowed,
		} {
			if v != "" {
				m[k] = v
			}
		}
		if ev.EngineSeq != 0 {
			m["engine_seq"] = ev.EngineSeq
		}
		trace[i] = m
	}

	parties := make([]any, len(s.Result.Parties))
	for i, p := range s.Result.Parties {
		parties[i] = map[string]any{
			"party":            p.Party,
			"cash_available":   p.CashAvailable,
			"cash_escrowed":    p.CashEscrowed,
			"assets_available": canonicalLists(p.AssetsAvailable),
			"assets_escrowed":  canonicalLists(p.AssetsEscrowed),
		}
	}

	exchanges := make([]any, len(s.Result.Exchanges))
	for i, x := range s.Result.Exchanges {
		exchanges[i] = map[string]any{"id": x.ID, "status": x.Status}
	}

	return map[string]any{
		"scenario":  s.ScenarioName,
		"pass":      s.Result.Pass,
		"trace":     trace,
		"parties":   parties,
		"exchanges": exchanges,
	}
}

func canonicalLists(m map[string][]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalTrace renders a result as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Result: result}
	return domain.MarshalCanonical(snap.Canonical())
}

// RunWithGolden executes a scenario and compares its canonical trace with
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
