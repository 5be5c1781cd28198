package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/escrow/internal/domain"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Subject  string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the harness state and
// returns the failure messages.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(h, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(h *Harness, a Assertion) error {
	switch a.Type {
	case AssertInventory:
		return assertInventory(h, a)
	case AssertOwner:
		return assertOwner(h, a)
	case AssertStatus:
		return assertStatus(h, a)
	case AssertHistoryCount:
		return assertHistoryCount(h, a)
	case AssertConservation:
		return assertConservation(h)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertInventory(h *Harness, a Assertion) error {
	snap, ok := h.inv.Snapshot(a.Party)
	if !ok {
		return &AssertionError{Type: a.Type, Subject: string(a.Party), Expected: "a ledger", Actual: "unknown party"}
	}

	var diffs []string
	if a.CashAvailable != nil && !snap.CashAvailable.Equal(*a.CashAvailable) {
		diffs = append(diffs, fmt.Sprintf("cash_available %s != %s", snap.CashAvailable, a.CashAvailable))
	}
	if a.CashEscrowed != nil && !snap.CashEscrowed.Equal(*a.CashEscrowed) {
		diffs = append(diffs, fmt.Sprintf("cash_escrowed %s != %s", snap.CashEscrowed, a.CashEscrowed))
	}
	if a.AssetsAvailable != nil {
		if got, want := formatAssets(snap.AssetsAvailable), formatAssets(a.AssetsAvailable); got != want {
			diffs = append(diffs, fmt.Sprintf("assets_available %s != %s", got, want))
		}
	}
	if a.AssetsEscrowed != nil {
		if got, want := formatAssets(snap.AssetsEscrowed), formatAssets(a.AssetsEscrowed); got != want {
			diffs = append(diffs, fmt.Sprintf("assets_escrowed %s != %s", got, want))
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Subject:  string(a.Party),
		Expected: "ledger to match",
		Actual:   strings.Join(diffs, "; "),
	}
}

// formatAssets renders a partition as "class:[id id] ..." with classes and
// ids sorted and empty classes omitted.
func formatAssets(m map[domain.AssetClass][]domain.AssetID) string {
	classes := make([]string, 0, len(m))
	for class, ids := range m {
		if len(ids) > 0 {
			classes = append(classes, string(class))
		}
	}
	sort.Strings(classes)

	parts := make([]string, 0, len(classes))
	for _, class := range classes {
		ids := m[domain.AssetClass(class)]
		list := make([]string, len(ids))
		for i, id := range ids {
			list[i] = string(id)
		}
		sort.Strings(list)
		parts = append(parts, fmt.Sprintf("%s:[%s]", class, strings.Join(list, " ")))
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func assertOwner(h *Harness, a Assertion) error {
	key := domain.AssetKey{Class: a.AssetClass, ID: a.AssetID}
	owner, ok := h.reg.Owner(a.AssetClass, a.AssetID)
	if !ok {
		return &AssertionError{Type: a.Type, Subject: key.String(), Expected: string(a.Owner), Actual: "unregistered asset"}
	}
	if owner != a.Owner {
		return &AssertionError{Type: a.Type, Subject: key.String(), Expected: string(a.Owner), Actual: string(owner)}
	}
	return nil
}

func assertStatus(h *Harness, a Assertion) error {
	id := h.resolve(a.Exchange)
	p, ok := h.engine.GetExchange(id)
	if !ok {
		return &AssertionError{Type: a.Type, Subject: a.Exchange, Expected: string(a.Status), Actual: "no such exchange"}
	}
	if p.Status != a.Status {
		return &AssertionError{Type: a.Type, Subject: a.Exchange, Expected: string(a.Status), Actual: string(p.Status)}
	}
	return nil
}

func assertHistoryCount(h *Harness, a Assertion) error {
	key := domain.AssetKey{Class: a.AssetClass, ID: a.AssetID}
	history, err := h.reg.History(a.AssetClass, a.AssetID)
	if err != nil {
		return &AssertionError{Type: a.Type, Subject: key.String(), Expected: fmt.Sprint(*a.Count), Actual: err.Error()}
	}
	if len(history) != *a.Count {
		return &AssertionError{Type: a.Type, Subject: key.String(), Expected: fmt.Sprint(*a.Count), Actual: fmt.Sprint(len(history))}
	}
	return nil
}

// assertConservation checks that total cash equals genesis cash plus net
// deposits, that no asset appeared or vanished, and that the ledger holding
// each asset is its registry owner.
func assertConservation(h *Harness) error {
	totals := h.inv.Totals()
	var diffs []string
	if !totals.Cash.Equal(h.expectedCash) {
		diffs = append(diffs, fmt.Sprintf("total cash %s != %s", totals.Cash, h.expectedCash))
	}
	if totals.Assets != h.expectedAssets {
		diffs = append(diffs, fmt.Sprintf("asset count %d != %d", totals.Assets, h.expectedAssets))
	}
	if totals.Escrowed.IsNegative() {
		diffs = append(diffs, fmt.Sprintf("escrowed cash %s is negative", totals.Escrowed))
	}

	var keys []domain.AssetKey
	for _, snap := range totals.Snapshots {
		for _, m := range []map[domain.AssetClass][]domain.AssetID{snap.AssetsAvailable, snap.AssetsEscrowed} {
			for class, ids := range m {
				for _, id := range ids {
					key := domain.AssetKey{Class: class, ID: id}
					if slices.Contains(keys, key) {
						diffs = append(diffs, fmt.Sprintf("asset %s held twice", key))
					}
					keys = append(keys, key)
					owner, ok := h.reg.Owner(class, id)
					if !ok || owner != snap.PartyID {
						diffs = append(diffs, fmt.Sprintf("asset %s held by %s but owned by %q", key, snap.PartyID, owner))
					}
				}
			}
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	sort.Strings(diffs)
	return &AssertionError{
		Type:     AssertConservation,
		Expected: "cash and assets conserved",
		Actual:   strings.Join(diffs, "; "),
	}
}

