// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math/big"
)

// MaxDivisibility defines maximum divisibility for runes.
const MaxDivisibility byte = 38

// MaxSpacers defines max value for spacers.
const MaxSpacers uint32 = 0b00000111_11111111_11111111_11111111

// Etching defines values to create new rune.
type Etching struct {
	Divisibility *byte
	Premine      *big.Int
	Rune         *Rune
	Spacers      *uint32
	Symbol       *rune
	Terms        *Terms
	Turbo        bool
}

// Terms defines open mint parameters of the Etching.
type Terms struct {
	Amount      *big.Int
	Cap         *big.Int
	HeightStart *uint64
	HeightEnd   *uint64
	OffsetStart *uint64
	OffsetEnd   *uint64
}

// Supply returns premine + cap * amount or nil if it overflows uint128.
func (e *Etching) Supply() *big.Int {
	supply := new(big.Int)
	if e.Premine != nil {
		supply.Set(e.Premine)
	}

	if e.Terms != nil && e.Terms.Cap != nil && e.Terms.Amount != nil {
		supply.Add(supply, new(big.Int).Mul(e.Terms.Cap, e.Terms.Amount))
	}

	if supply.Cmp(maxUint128) > 0 {
		return nil
	}

	return supply
}

// Equal compares etchings field by field, absent and present fields are different.
func (e *Etching) Equal(other *Etching) bool {
	if e == nil || other == nil {
		return e == other
	}

	return equalPtr(e.Divisibility, other.Divisibility) &&
		equalBig(e.Premine, other.Premine) &&
		e.Rune.Equal(other.Rune) &&
		equalPtr(e.Spacers, other.Spacers) &&
		equalPtr(e.Symbol, other.Symbol) &&
		e.Terms.Equal(other.Terms) &&
		e.Turbo == other.Turbo
}

// Equal compares terms field by field.
func (t *Terms) Equal(other *Terms) bool {
	if t == nil || other == nil {
		return t == other
	}

	return equalBig(t.Amount, other.Amount) &&
		equalBig(t.Cap, other.Cap) &&
		equalPtr(t.HeightStart, other.HeightStart) &&
		equalPtr(t.HeightEnd, other.HeightEnd) &&
		equalPtr(t.OffsetStart, other.OffsetStart) &&
		equalPtr(t.OffsetEnd, other.OffsetEnd)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func equalBig(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.Cmp(b) == 0
}
