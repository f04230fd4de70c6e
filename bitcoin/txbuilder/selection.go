// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"math/big"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/numbers"
)

// selectBitcoin takes the smallest utxos of the address until their sum is strictly greater than required.
// Pool exhaustion is not an error here: the caller compares returned total with required.
func selectBitcoin(reservation *utxopool.Reservation, address string, required uint64) ([]bitcoin.UTXO, uint64, error) {
	var (
		utxos []bitcoin.UTXO
		total uint64
	)
	for total <= required {
		utxo, ok := reservation.TakeSmallestBitcoin(address)
		if !ok {
			break
		}

		var err error
		total, err = numbers.AddUint64(total, utxo.Value)
		if err != nil {
			return nil, 0, bitcoin.NewConstructionError("selected value", err)
		}
		utxos = append(utxos, utxo)
	}

	return utxos, total, nil
}

// selectRunes takes the smallest rune utxos of the address until their balance covers amount.
func selectRunes(reservation *utxopool.Reservation, address string, id runes.RuneID, amount *big.Int) ([]bitcoin.RuneUTXO, *big.Int) {
	var (
		utxos []bitcoin.RuneUTXO
		total = new(big.Int)
	)
	for total.Cmp(amount) < 0 {
		utxo, ok := reservation.TakeSmallestRune(address, id)
		if !ok {
			break
		}

		total.Add(total, utxo.Balance)
		utxos = append(utxos, utxo)
	}

	return utxos, total
}

// saturatingSub returns a - b or 0.
func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}

	return a - b
}
