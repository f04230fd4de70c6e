// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math/big"
)

// Tag defines tag type for untyped message parsing.
type Tag uint64

const (
	// TagBody defines Body tag, all integers after it are edicts.
	TagBody Tag = 0
	// TagDivisibility defines Divisibility tag.
	TagDivisibility Tag = 1
	// TagFlags defines Flags tag.
	TagFlags Tag = 2
	// TagSpacers defines Spacers tag.
	TagSpacers Tag = 3
	// TagRune defines Rune tag.
	TagRune Tag = 4
	// TagSymbol defines Symbol tag.
	TagSymbol Tag = 5
	// TagPremine defines Premine tag.
	TagPremine Tag = 6
	// TagCap defines Cap tag.
	TagCap Tag = 8
	// TagAmount defines Amount tag.
	TagAmount Tag = 10
	// TagHeightStart defines HeightStart tag.
	TagHeightStart Tag = 12
	// TagHeightEnd defines HeightEnd tag.
	TagHeightEnd Tag = 14
	// TagOffsetStart defines OffsetStart tag.
	TagOffsetStart Tag = 16
	// TagOffsetEnd defines OffsetEnd tag.
	TagOffsetEnd Tag = 18
	// TagMint defines Mint tag.
	TagMint Tag = 20
	// TagPointer defines Pointer tag.
	TagPointer Tag = 22
	// TagCenotaph defines Cenotaph tag.
	TagCenotaph Tag = 126
	// TagNop defines Nop tag.
	TagNop Tag = 127
)

// BigInt returns Tag as big.Int.
func (t Tag) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(t))
}

// IsEven reports whether unknown tag of this kind makes runestone a cenotaph.
func (t Tag) IsEven() bool {
	return t%2 == 0
}

// take removes n first values of the tag from fields if convert accepts them.
func (t Tag) take(fields map[Tag][]*big.Int, n int, convert func([]*big.Int) bool) {
	values := fields[t]
	if len(values) < n {
		return
	}

	if !convert(values[:n]) {
		return
	}

	if len(values) == n {
		delete(fields, t)
		return
	}

	fields[t] = values[n:]
}

// encode appends tag and values pairs to payload.
func (t Tag) encode(sequence []*big.Int, values ...*big.Int) []*big.Int {
	for _, value := range values {
		sequence = append(sequence, t.BigInt(), value)
	}

	return sequence
}
