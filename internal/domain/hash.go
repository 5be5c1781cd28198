package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix enables algorithm migration.
const (
	DomainJournal = "escrow/journal/v1"
	DomainTrace   = "escrow/trace/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || parts[0] || 0x00 || parts[1] ...).
// The null separators prevent boundary ambiguity between domain and data.
func hashWithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChainDigest computes the digest of a journal record linked to its predecessor.
// prev is empty for the first record.
func ChainDigest(prev string, payload map[string]any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("ChainDigest: failed to marshal: %w", err)
	}
	return ChainDigestBytes(prev, canonical), nil
}

// ChainDigestBytes is ChainDigest over an already canonical payload.
func ChainDigestBytes(prev string, canonical []byte) string {
	return hashWithDomain(DomainJournal, []byte(prev), canonical)
}

// TraceDigest hashes a canonical trace for quick comparison in logs.
func TraceDigest(payload map[string]any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("TraceDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// CanonicalOffer returns the canonical-JSON friendly form of an Offer.
func CanonicalOffer(o Offer) map[string]any {
	switch v := o.(type) {
	case CashOffer:
		return map[string]any{"type": string(OfferCash), "amount": v.Amount}
	case AssetOffer:
		return map[string]any{"type": string(OfferAsset), "asset_class": v.Class, "asset_id": v.ID}
	default:
		MustBeOffer(o)
		return nil
	}
}

// CanonicalProposal returns the canonical-JSON friendly form of a Proposal.
// Unset timestamps and an empty description are omitted.
func CanonicalProposal(p Proposal) map[string]any {
	m := map[string]any{
		"id":         p.ID,
		"from_party": p.From,
		"to_party":   p.To,
		"offering":   CanonicalOffer(p.Offering),
		"requesting": CanonicalOffer(p.Requesting),
		"status":     p.Status,
		"seq":        p.Seq,
		"created_at": p.CreatedAt,
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if p.AcceptedAt != nil {
		m["accepted_at"] = *p.AcceptedAt
	}
	if p.CancelledAt != nil {
		m["cancelled_at"] = *p.CancelledAt
	}
	if p.RejectedAt != nil {
		m["rejected_at"] = *p.RejectedAt
	}
	return m
}
