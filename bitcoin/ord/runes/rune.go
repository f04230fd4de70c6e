// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"errors"
	"math/big"
	"math/bits"
	"strings"

	"github.com/BoostyLabs/runecustody/internal/numbers"
	"github.com/BoostyLabs/runecustody/internal/reverse"
)

// DefaultSpacer defines default spacer for Rune name.
const DefaultSpacer = '•'

// AlternativeSpacer is accepted on parsing as well as DefaultSpacer.
const AlternativeSpacer = '.'

const (
	// ProtocolBlockStart defines the block when protocol was launched.
	ProtocolBlockStart uint64 = 840_000
	// UnlockNamePeriod defines interval in blocks to unlock shorter name.
	UnlockNamePeriod uint64 = 17_500

	// StartNameLength defines minimum name length on the ProtocolBlockStart.
	StartNameLength = 13
)

var (
	// ErrInvalidRuneName is returned when the name has symbols other than A-Z or bad spacers.
	ErrInvalidRuneName = errors.New("invalid rune name")
	// ErrRuneOverflow is returned when the name does not fit into uint128.
	ErrRuneOverflow = errors.New("rune name overflows uint128")
)

// base26 defines 26 as *big.Int.
var base26 = big.NewInt(26)

// FirstReservedRuneNameInt defines the first reserved rune name AAAAAAAAAAAAAAAAAAAAAAAAAAA as number.
var FirstReservedRuneNameInt, _ = new(big.Int).SetString("6402364363415443603228541259936211926", 10)

// Rune defines rune names and encodes as modified base-26 integers.
type Rune struct {
	value *big.Int
}

// NewRuneFromString creates new Rune from string name.
// NOTE: Valid symbols are A-Z only.
func NewRuneFromString(name string) (*Rune, error) {
	if name == "" {
		return nil, ErrInvalidRuneName
	}

	value := new(big.Int)
	for i, c := range name {
		if c < 'A' || c > 'Z' {
			return nil, ErrInvalidRuneName
		}
		if i > 0 {
			value.Add(value, numbers.OneBigInt)
		}

		value.Mul(value, base26)
		value.Add(value, big.NewInt(int64(c-'A')))
		if !numbers.IsUint128(value) {
			return nil, ErrRuneOverflow
		}
	}

	return &Rune{value: value}, nil
}

// ParseSpacedRune parses name with spacers (• or .) between letters.
// Returns the rune and the spacers bit field.
func ParseSpacedRune(spaced string) (*Rune, uint32, error) {
	var (
		name    strings.Builder
		spacers uint32
		letters int
	)
	for _, c := range spaced {
		switch {
		case c >= 'A' && c <= 'Z':
			name.WriteRune(c)
			letters++
		case c == DefaultSpacer || c == AlternativeSpacer:
			if letters == 0 || letters > 32 {
				return nil, 0, ErrInvalidRuneName
			}

			flag := uint32(1) << (letters - 1)
			if spacers&flag != 0 {
				return nil, 0, ErrInvalidRuneName
			}

			spacers |= flag
		default:
			return nil, 0, ErrInvalidRuneName
		}
	}

	// trailing spacer.
	if 32-bits.LeadingZeros32(spacers) >= letters {
		return nil, 0, ErrInvalidRuneName
	}

	r, err := NewRuneFromString(name.String())
	if err != nil {
		return nil, 0, err
	}

	return r, spacers, nil
}

// NewRuneFromNumber creates new Rune from number.
func NewRuneFromNumber(number *big.Int) (*Rune, error) {
	if !numbers.IsUint128(number) {
		return nil, ErrRuneOverflow
	}

	return &Rune{value: new(big.Int).Set(number)}, nil
}

// Value returns Rune name as number.
func (r *Rune) Value() *big.Int {
	return new(big.Int).Set(r.value)
}

// Equal reports whether both runes have the same name.
func (r *Rune) Equal(other *Rune) bool {
	if r == nil || other == nil {
		return r == other
	}

	return numbers.IsEqual(r.value, other.value)
}

// IsReserved reports whether the name is from the reserved range, such names can not be etched.
func (r *Rune) IsReserved() bool {
	return r.value.Cmp(FirstReservedRuneNameInt) >= 0
}

// Commitment returns the name value as little-endian bytes without trailing zeros,
// the form used in the inscription envelope.
func (r *Rune) Commitment() []byte {
	return reverse.LittleEndian(r.value)
}

// String returns Rune name as string.
func (r *Rune) String() string {
	if numbers.IsEqual(r.value, numbers.MaxUInt128Value) {
		return "BCGDENLQRQWDSLRUGSNLBTMFIJAV"
	}

	var (
		value  = new(big.Int).Add(r.value, numbers.OneBigInt)
		symbol []byte
		idx    = new(big.Int)
	)
	for value.Sign() > 0 {
		value.Sub(value, numbers.OneBigInt)
		value.DivMod(value, base26, idx)
		symbol = append(symbol, byte('A'+idx.Int64()))
	}

	return string(reverse.Bytes(symbol))
}

// SpacedString returns Rune name with DefaultSpacer placed by spacers bit field.
func (r *Rune) SpacedString(spacers uint32) string {
	var (
		name    = r.String()
		builder strings.Builder
	)
	for idx, char := range name {
		builder.WriteRune(char)
		if idx < len(name)-1 && idx < 32 && spacers&(1<<idx) != 0 {
			builder.WriteRune(DefaultSpacer)
		}
	}

	return builder.String()
}

// RuneReserve returns allocated rune name in case it was omitted in etching.
func RuneReserve(runeID RuneID) *Rune {
	reserved := new(big.Int).Lsh(new(big.Int).SetUint64(runeID.Block), 32)
	reserved.Or(reserved, new(big.Int).SetUint64(uint64(runeID.TxID)))

	return &Rune{value: reserved.Add(reserved, FirstReservedRuneNameInt)}
}

// MinNameLength returns unlocked rune name length depending on block.
func MinNameLength(currentBlock uint64) int {
	if currentBlock < ProtocolBlockStart {
		return StartNameLength
	}

	unlocked := (currentBlock - ProtocolBlockStart) / UnlockNamePeriod
	if unlocked >= StartNameLength-1 {
		return 1
	}

	return StartNameLength - 1 - int(unlocked)
}
