// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
)

// Outpoint references output of the previous transaction.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// NewOutpointFromString parses outpoint from "<txid>:<vout>" string.
func NewOutpointFromString(s string) (Outpoint, error) {
	txID, index, found := strings.Cut(s, ":")
	if !found {
		return Outpoint{}, fmt.Errorf("invalid outpoint format: %s", s)
	}

	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return Outpoint{}, err
	}

	vout, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return Outpoint{}, err
	}

	return Outpoint{TxID: *hash, Index: uint32(vout)}, nil
}

// String returns outpoint as "<txid>:<vout>".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// Wire returns outpoint in the btcd wire form.
func (o Outpoint) Wire() *wire.OutPoint {
	return wire.NewOutPoint(&o.TxID, o.Index)
}

// Cmp orders outpoints by txid bytes, then by index.
func (o Outpoint) Cmp(other Outpoint) int {
	if c := bytes.Compare(o.TxID[:], other.TxID[:]); c != 0 {
		return c
	}

	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	}

	return 0
}

// UTXO describes unspent transaction output data.
type UTXO struct {
	Outpoint
	Value  uint64 // in Satoshi.
	Height uint32 // confirmation height, 0 for unconfirmed.
}

// Confirmations returns confirmations count of the utxo at the tip height.
func (u UTXO) Confirmations(tip uint32) uint32 {
	if u.Height == 0 || tip < u.Height {
		return 0
	}

	return tip - u.Height + 1
}

// RuneUTXO describes output which carries rune balance together with its bitcoin value.
type RuneUTXO struct {
	UTXO
	RuneID  runes.RuneID
	Balance *big.Int // in rune units.
}
