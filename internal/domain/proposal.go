package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the state of an exchange proposal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows s -> next.
// Only pending has outgoing edges, and only to the three terminal states.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next.Terminal()
}

// Proposal is a two-sided exchange. From stakes Offering, To stakes Requesting.
type Proposal struct {
	ID          string
	From        PartyID
	To          PartyID
	Offering    Offer
	Requesting  Offer
	Description string
	Status      Status
	Seq         int64
	CreatedAt   time.Time
	AcceptedAt  *time.Time
	CancelledAt *time.Time
	RejectedAt  *time.Time
}

// Involves reports whether p is one of the two parties.
func (p Proposal) Involves(party PartyID) bool {
	return p.From == party || p.To == party
}

// Clone returns a copy that shares no pointers with p.
func (p Proposal) Clone() Proposal {
	c := p
	c.AcceptedAt = cloneTime(p.AcceptedAt)
	c.CancelledAt = cloneTime(p.CancelledAt)
	c.RejectedAt = cloneTime(p.RejectedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type proposalJSON struct {
	ID          string     `json:"id"`
	From        PartyID    `json:"from_party"`
	To          PartyID    `json:"to_party"`
	Offering    OfferJSON  `json:"offering"`
	Requesting  OfferJSON  `json:"requesting"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Seq         int64      `json:"seq"`
	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
}

// MarshalJSON encodes the offers through their wire form.
func (p Proposal) MarshalJSON() ([]byte, error) {
	return json.Marshal(proposalJSON{
		ID:          p.ID,
		From:        p.From,
		To:          p.To,
		Offering:    EncodeOffer(p.Offering),
		Requesting:  EncodeOffer(p.Requesting),
		Description: p.Description,
		Status:      p.Status,
		Seq:         p.Seq,
		CreatedAt:   p.CreatedAt,
		AcceptedAt:  p.AcceptedAt,
		CancelledAt: p.CancelledAt,
		RejectedAt:  p.RejectedAt,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var j proposalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	offering, err := j.Offering.Decode()
	if err != nil {
		return fmt.Errorf("offering: %w", err)
	}
	requesting, err := j.Requesting.Decode()
	if err != nil {
		return fmt.Errorf("requesting: %w", err)
	}
	*p = Proposal{
		ID:          j.ID,
		From:        j.From,
		To:          j.To,
		Offering:    offering,
		Requesting:  requesting,
		Description: j.Description,
		Status:      j.Status,
		Seq:         j.Seq,
		CreatedAt:   j.CreatedAt,
		AcceptedAt:  j.AcceptedAt,
		CancelledAt: j.CancelledAt,
		RejectedAt:  j.RejectedAt,
	}
	return nil
}
