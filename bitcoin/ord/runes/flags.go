// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math/big"
)

// Flag is a bit position inside the Flags field of the runestone.
type Flag uint

const (
	// FlagEtching defines that the transaction contains an etching.
	FlagEtching Flag = 0
	// FlagTerms defines that the transaction's etching has open mint terms.
	FlagTerms Flag = 1
	// FlagTurbo defines that the transaction's etching has set turbo mode.
	FlagTurbo Flag = 2
	// FlagCenotaph is unrecognized.
	FlagCenotaph Flag = 127
)

// Set sets the flag bit in flags.
func (f Flag) Set(flags *big.Int) {
	flags.SetBit(flags, int(f), 1)
}

// Take clears the flag bit in flags and reports whether it was set.
func (f Flag) Take(flags *big.Int) bool {
	if flags.Bit(int(f)) == 0 {
		return false
	}

	flags.SetBit(flags, int(f), 0)

	return true
}
