package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/notify"
)

var _ notify.Sink = (*Journal)(nil)

// Publish appends ev to the journal. It implements notify.Sink.
func (j *Journal) Publish(ctx context.Context, ev notify.Event) error {
	payload, err := domain.MarshalCanonical(ev.Canonical())
	if err != nil {
		return fmt.Errorf("journal: canonical payload: %w", err)
	}

	var exchangeID, from, to, party, status string
	if ev.Exchange != nil {
		exchangeID = ev.Exchange.ID
		from = string(ev.Exchange.From)
		to = string(ev.Exchange.To)
		status = string(ev.Exchange.Status)
	}
	if ev.Inventory != nil {
		party = string(ev.Inventory.PartyID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	digest := domain.ChainDigestBytes(j.head, payload)
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO records
		(seq, type, exchange_id, from_party, to_party, party_id, status, at, payload, prev_digest, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Seq,
		string(ev.Type),
		exchangeID,
		from,
		to,
		party,
		status,
		ev.At.UTC().Format(time.RFC3339Nano),
		string(payload),
		j.head,
		digest,
	)
	if err != nil {
		return fmt.Errorf("journal: append seq %d: %w", ev.Seq, err)
	}
	j.head = digest
	return nil
}
