package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/escrow/internal/domain"
)

// Record is one journal row.
type Record struct {
	ID         int64     `json:"id"`
	Seq        int64     `json:"seq"`
	Type       string    `json:"type"`
	ExchangeID string    `json:"exchange_id,omitempty"`
	FromParty  string    `json:"from_party,omitempty"`
	ToParty    string    `json:"to_party,omitempty"`
	PartyID    string    `json:"party_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	At         time.Time `json:"at"`
	Payload    string    `json:"payload"`
	PrevDigest string    `json:"prev_digest"`
	Digest     string    `json:"digest"`
}

const recordColumns = `id, seq, type, exchange_id, from_party, to_party, party_id, status, at, payload, prev_digest, digest`

// ReadAll returns every record in append order.
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) ReadAll(ctx context.Context) ([]Record, error) {
	return j.query(ctx, `SELECT `+recordColumns+` FROM records ORDER BY id ASC`)
}

// ReadExchange returns the records of one exchange in append order.
func (j *Journal) ReadExchange(ctx context.Context, exchangeID string) ([]Record, error) {
	return j.query(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE exchange_id = ?
		ORDER BY id ASC
	`, exchangeID)
}

// ReadParty returns every record touching a party: its inventory updates and
// the exchanges it is on either side of.
func (j *Journal) ReadParty(ctx context.Context, party domain.PartyID) ([]Record, error) {
	p := string(party)
	return j.query(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE party_id = ? OR from_party = ? OR to_party = ?
		ORDER BY id ASC
	`, p, p, p)
}

// Count returns the number of records.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var at string
	if err := rows.Scan(&r.ID, &r.Seq, &r.Type, &r.ExchangeID, &r.FromParty, &r.ToParty,
		&r.PartyID, &r.Status, &at, &r.Payload, &r.PrevDigest, &r.Digest); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Record{}, fmt.Errorf("record %d: parse time %q: %w", r.ID, at, err)
	}
	r.At = t
	return r, nil
}
