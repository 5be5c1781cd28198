package journal

import (
	"context"
	"fmt"

	"github.com/roach88/escrow/internal/domain"
)

// ChainError reports the first record whose digest chain is broken.
type ChainError struct {
	RecordID int64
	Expected string
	Actual   string
	Reason   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("journal chain broken at record %d: %s (expected %s, got %s)",
		e.RecordID, e.Reason, short(e.Expected), short(e.Actual))
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	if d == "" {
		return "<empty>"
	}
	return d
}

// Verify recomputes the digest chain from the first record.
// Returns the number of records checked, or a *ChainError.
func (j *Journal) Verify(ctx context.Context) (int, error) {
	records, err := j.ReadAll(ctx)
	if err != nil {
		return 0, err
	}

	prev := ""
	for i, r := range records {
		if r.PrevDigest != prev {
			return i, &ChainError{RecordID: r.ID, Expected: prev, Actual: r.PrevDigest, Reason: "predecessor mismatch"}
		}
		want := domain.ChainDigestBytes(prev, []byte(r.Payload))
		if r.Digest != want {
			return i, &ChainError{RecordID: r.ID, Expected: want, Actual: r.Digest, Reason: "payload digest mismatch"}
		}
		prev = r.Digest
	}
	return len(records), nil
}
