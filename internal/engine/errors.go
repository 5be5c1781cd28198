package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/inventory"
)

// Code categorizes engine failures.
type Code string

const (
	// CodeInvalidOffer indicates a malformed offer pair or an unresolvable asset.
	CodeInvalidOffer Code = "INVALID_OFFER"

	// CodeInsufficientFunds indicates a cash leg could not be locked.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// CodeNotOwned indicates an asset leg is not in the party's available set.
	CodeNotOwned Code = "NOT_OWNED"

	// CodeUnknownParty indicates a party has no ledger.
	CodeUnknownParty Code = "UNKNOWN_PARTY"

	// CodeNotFound indicates no proposal has the given id.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidState indicates the proposal is no longer pending.
	CodeInvalidState Code = "INVALID_STATE"

	// CodeNotAuthorized indicates the caller is not the party allowed to act.
	CodeNotAuthorized Code = "NOT_AUTHORIZED"

	// CodeTransferFailed indicates a settlement step failed and was rolled back.
	CodeTransferFailed Code = "TRANSFER_FAILED"

	// CodeInvalidAmount indicates a non-positive cash adjustment.
	CodeInvalidAmount Code = "INVALID_AMOUNT"
)

// Error is the named failure reason returned by every engine operation.
type Error struct {
	Code Code

	// Message is a human-readable description.
	Message string

	// ExchangeID identifies the affected proposal, if any.
	ExchangeID string

	// Party identifies the party whose ledger caused the failure, if any.
	Party domain.PartyID

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ExchangeID != "" {
		msg += fmt.Sprintf(" (exchange=%s)", e.ExchangeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidOffer      = &Error{Code: CodeInvalidOffer}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds}
	ErrNotOwned          = &Error{Code: CodeNotOwned}
	ErrUnknownParty      = &Error{Code: CodeUnknownParty}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrInvalidState      = &Error{Code: CodeInvalidState}
	ErrNotAuthorized     = &Error{Code: CodeNotAuthorized}
	ErrTransferFailed    = &Error{Code: CodeTransferFailed}
	ErrInvalidAmount     = &Error{Code: CodeInvalidAmount}
)

// CodeOf returns the engine code carried by err, or "" if there is none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code Code, exchangeID string, format string, args ...any) *Error {
	return &Error{Code: code, ExchangeID: exchangeID, Message: fmt.Sprintf(format, args...)}
}

// fromInventory translates an inventory failure into the engine's vocabulary.
func fromInventory(err error, exchangeID string) *Error {
	code := CodeTransferFailed
	switch inventory.CodeOf(err) {
	case inventory.CodeInsufficientFunds:
		code = CodeInsufficientFunds
	case inventory.CodeNotOwned:
		code = CodeNotOwned
	case inventory.CodeUnknownParty:
		code = CodeUnknownParty
	case inventory.CodeInvalidAmount:
		code = CodeInvalidAmount
	case inventory.CodeInvalidClass:
		code = CodeInvalidOffer
	}
	var party domain.PartyID
	var ie *inventory.Error
	if errors.As(err, &ie) {
		party = ie.Party
	}
	return &Error{Code: code, Message: "inventory rejected operation", ExchangeID: exchangeID, Party: party, Err: err}
}
