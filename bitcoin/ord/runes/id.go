// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ErrInvalidRuneID is returned for malformed rune ids.
var ErrInvalidRuneID = errors.New("invalid rune id")

// RuneID defined the id of the rune, the block and the index of the etching transaction in it.
type RuneID struct {
	Block uint64
	TxID  uint32
}

// NewRuneIDFromString returns RuneID parsed from "<block>:<tx>" string.
func NewRuneIDFromString(s string) (RuneID, error) {
	block, tx, found := strings.Cut(s, ":")
	if !found {
		return RuneID{}, fmt.Errorf("%w: %q", ErrInvalidRuneID, s)
	}

	blockNum, err := strconv.ParseUint(block, 10, 64)
	if err != nil {
		return RuneID{}, fmt.Errorf("%w: %v", ErrInvalidRuneID, err)
	}

	txNum, err := strconv.ParseUint(tx, 10, 32)
	if err != nil {
		return RuneID{}, fmt.Errorf("%w: %v", ErrInvalidRuneID, err)
	}

	id := RuneID{Block: blockNum, TxID: uint32(txNum)}
	if id.Block == 0 && id.TxID != 0 {
		return RuneID{}, fmt.Errorf("%w: %q", ErrInvalidRuneID, s)
	}

	return id, nil
}

// String returns RuneID as string.
func (id RuneID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.TxID)
}

// Cmp orders ids by block first, then by transaction index.
func (id RuneID) Cmp(other RuneID) int {
	switch {
	case id.Block < other.Block:
		return -1
	case id.Block > other.Block:
		return 1
	case id.TxID < other.TxID:
		return -1
	case id.TxID > other.TxID:
		return 1
	}

	return 0
}

// Delta returns delta encoding of next relatively to id, next must not be less than id.
func (id RuneID) Delta(next RuneID) (RuneID, error) {
	if next.Cmp(id) < 0 {
		return RuneID{}, errors.New("rune ids are not sorted")
	}

	if next.Block == id.Block {
		return RuneID{Block: 0, TxID: next.TxID - id.TxID}, nil
	}

	return RuneID{Block: next.Block - id.Block, TxID: next.TxID}, nil
}

// Next produces next RuneID from delta encoding, ok is false on overflow.
func (id RuneID) Next(blockDelta, txDelta *big.Int) (next RuneID, ok bool) {
	if !blockDelta.IsUint64() || !txDelta.IsUint64() {
		return RuneID{}, false
	}

	block, tx := blockDelta.Uint64(), txDelta.Uint64()
	if block > math.MaxUint64-id.Block {
		return RuneID{}, false
	}

	if block == 0 {
		tx += uint64(id.TxID)
	}
	if tx > math.MaxUint32 {
		return RuneID{}, false
	}

	return RuneID{Block: id.Block + block, TxID: uint32(tx)}, true
}

// ToIntSeq returns RuneID as integer sequence.
func (id RuneID) ToIntSeq() []*big.Int {
	return []*big.Int{new(big.Int).SetUint64(id.Block), new(big.Int).SetUint64(uint64(id.TxID))}
}
