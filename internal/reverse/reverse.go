// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package reverse

import (
	"math/big"
)

// Bytes returns reversed copy of value, the argument is left untouched.
func Bytes(value []byte) []byte {
	reversed := make([]byte, len(value))
	for i, b := range value {
		reversed[len(value)-1-i] = b
	}

	return reversed
}

// LittleEndian returns num as little-endian bytes without trailing zeros.
// Zero is encoded as an empty slice.
func LittleEndian(num *big.Int) []byte {
	return Bytes(num.Bytes())
}

// FromLittleEndian is the inverse of LittleEndian.
func FromLittleEndian(data []byte) *big.Int {
	return new(big.Int).SetBytes(Bytes(data))
}
