// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"fmt"
	"math/big"
)

type balanceErrorType string

type causerSign string

const (
	// InsufficientErrorTypeBitcoin defines insufficient bitcoin balance error type.
	InsufficientErrorTypeBitcoin balanceErrorType = "bitcoin"
	// InsufficientErrorTypeRune defines insufficient rune balance error type.
	InsufficientErrorTypeRune balanceErrorType = "rune"
	// InsufficientErrorTypeFee defines insufficient balance to pay the fee and postage.
	InsufficientErrorTypeFee balanceErrorType = "fee"

	// CauserSender defines that the sender caused this error type.
	CauserSender causerSign = "sender"
	// CauserSecondarySender defines that the bitcoin sender of the combined transfer caused this error type.
	CauserSecondarySender causerSign = "secondary-sender"
	// CauserFeePayer defines that the fee-payer caused this error type.
	CauserFeePayer causerSign = "fee-payer"
)

var (
	// ErrInsufficientBitcoinBalance matches any insufficient bitcoin balance error with errors.Is.
	ErrInsufficientBitcoinBalance = NewInsufficientError(InsufficientErrorTypeBitcoin, nil, nil)
	// ErrInsufficientRuneBalance matches any insufficient rune balance error with errors.Is.
	ErrInsufficientRuneBalance = NewInsufficientError(InsufficientErrorTypeRune, nil, nil)
	// ErrInsufficientFeeBalance matches any insufficient fee balance error with errors.Is.
	ErrInsufficientFeeBalance = NewInsufficientError(InsufficientErrorTypeFee, nil, nil)
)

// Requirement is everything the failed round needed, so the caller can top up at once.
type Requirement struct {
	Rune    *big.Int // rune units, nil when no runes were transferred.
	Bitcoin uint64   // satoshi sent to the bitcoin receiver.
	Fee     uint64   // satoshi for the fee and postage.
}

// InsufficientError is the error type to describe insufficient balance errors with details.
type InsufficientError struct {
	Type     balanceErrorType
	Need     *big.Int
	Have     *big.Int
	Causer   causerSign
	Required *Requirement
}

// NewInsufficientError is a constructor for InsufficientError.
func NewInsufficientError(type_ balanceErrorType, need, have *big.Int) *InsufficientError {
	return &InsufficientError{Type: type_, Need: need, Have: have}
}

// Error returns error description.
func (e *InsufficientError) Error() string {
	var errMsg = fmt.Sprintf("insufficient %s balance", e.Type)

	if e.Have != nil && e.Need != nil {
		errMsg += fmt.Sprintf(": need %s, have %s", e.Need, e.Have)
	}

	if e.Causer != "" {
		errMsg += " (" + string(e.Causer) + ")"
	}

	return errMsg
}

// Is implements comparator method for [errors] package.
// Errors match by type, and by causer when target has one.
func (e *InsufficientError) Is(target error) bool {
	t, ok := target.(*InsufficientError)
	if !ok {
		return false
	}

	return e.Type == t.Type && (t.Causer == "" || e.Causer == t.Causer)
}

// Shortfall returns how much is missing.
func (e *InsufficientError) Shortfall() *big.Int {
	if e.Need == nil || e.Have == nil || e.Need.Cmp(e.Have) <= 0 {
		return new(big.Int)
	}

	return new(big.Int).Sub(e.Need, e.Have)
}

// setCauser updates InsufficientError with provided causer.
func (e *InsufficientError) setCauser(causer causerSign) *InsufficientError {
	e.Causer = causer
	return e
}

// require updates InsufficientError with requirement of the failed round.
func (e *InsufficientError) require(required *Requirement) *InsufficientError {
	e.Required = required
	return e
}

// insufficientSats is a shortcut for errors of satoshi amounts.
func insufficientSats(type_ balanceErrorType, causer causerSign, need, have uint64) *InsufficientError {
	return NewInsufficientError(type_, new(big.Int).SetUint64(need), new(big.Int).SetUint64(have)).setCauser(causer)
}
