package inventory

import (
	"errors"
	"fmt"

	"github.com/roach88/escrow/internal/domain"
)

// Code categorizes inventory failures.
type Code string

const (
	CodeUnknownParty       Code = "UNKNOWN_PARTY"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeNotOwned           Code = "NOT_OWNED"
	CodeInsufficientEscrow Code = "INSUFFICIENT_ESCROW"
	CodeNotEscrowed        Code = "NOT_ESCROWED"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeAssetExists        Code = "ASSET_EXISTS"
	CodeInvalidClass       Code = "INVALID_CLASS"
)

// Error is the typed failure returned by every store operation.
type Error struct {
	Code   Code
	Party  domain.PartyID
	Detail string
}

func (e *Error) Error() string {
	switch {
	case e.Party != "" && e.Detail != "":
		return fmt.Sprintf("%s: %s (party=%s)", e.Code, e.Detail, e.Party)
	case e.Party != "":
		return fmt.Sprintf("%s (party=%s)", e.Code, e.Party)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return string(e.Code)
}

// Is matches any *Error carrying the same code, so the package sentinels
// work with errors.Is regardless of party or detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrUnknownParty       = &Error{Code: CodeUnknownParty}
	ErrAlreadyExists      = &Error{Code: CodeAlreadyExists}
	ErrInsufficientFunds  = &Error{Code: CodeInsufficientFunds}
	ErrNotOwned           = &Error{Code: CodeNotOwned}
	ErrInsufficientEscrow = &Error{Code: CodeInsufficientEscrow}
	ErrNotEscrowed        = &Error{Code: CodeNotEscrowed}
	ErrInvalidAmount      = &Error{Code: CodeInvalidAmount}
	ErrAssetExists        = &Error{Code: CodeAssetExists}
	ErrInvalidClass       = &Error{Code: CodeInvalidClass}
)

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code Code, party domain.PartyID, format string, args ...any) *Error {
	return &Error{Code: code, Party: party, Detail: fmt.Sprintf(format, args...)}
}
