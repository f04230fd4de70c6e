// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package storage_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/submission"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/storage"
)

const address = "mkHS9ne12qx9pS9VojpwU5xtRd4T7X7ZUt"

func openDB(t *testing.T) *storage.DB {
	db, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func TestPoolStore(t *testing.T) {
	db := openDB(t)
	id := runes.RuneID{Block: 840000, TxID: 1}
	balance, ok := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	require.True(t, ok)

	pool, err := utxopool.New(db.Pools())
	require.NoError(t, err)

	pool.Record(address,
		bitcoin.UTXO{Outpoint: bitcoin.Outpoint{TxID: chainhash.HashH([]byte("a")), Index: 1}, Value: 5000, Height: 10},
		bitcoin.UTXO{Outpoint: bitcoin.Outpoint{TxID: chainhash.HashH([]byte("b")), Index: 0}, Value: 7000},
	)
	pool.RecordRunes(address, bitcoin.RuneUTXO{
		UTXO:    bitcoin.UTXO{Outpoint: bitcoin.Outpoint{TxID: chainhash.HashH([]byte("c")), Index: 2}, Value: 10000, Height: 11},
		RuneID:  id,
		Balance: balance,
	})

	t.Run("reload", func(t *testing.T) {
		reloaded, err := utxopool.New(db.Pools())
		require.NoError(t, err)
		require.EqualValues(t, 12000, reloaded.Balance(address))
		require.Equal(t, 0, reloaded.RuneBalance(address, id).Cmp(balance))
		require.Equal(t, pool.Snapshot(address), reloaded.Snapshot(address))
	})

	t.Run("empty pool is deleted", func(t *testing.T) {
		reservation := pool.Reserve()
		for {
			if _, ok := reservation.TakeSmallestBitcoin(address); !ok {
				break
			}
		}
		_, ok := reservation.TakeSmallestRune(address, id)
		require.True(t, ok)
		reservation.Commit()

		pools, err := db.Pools().Load()
		require.NoError(t, err)
		require.Empty(t, pools)
	})
}

func TestRevealStore(t *testing.T) {
	db := openDB(t)
	store := db.Reveals()

	reveal := &submission.PendingReveal{
		ID:             uuid.New(),
		Rune:           "STORED•RUNE",
		CommitAddress:  "bcrt1pqqqsyqcyq5rqwzqfpg9scrgwpugpzysn3tn9nl",
		CommitOutpoint: bitcoin.Outpoint{TxID: chainhash.HashH([]byte("commit")), Index: 0},
		RevealTxID:     chainhash.HashH([]byte("reveal")),
		Reveal:         []byte{0x02, 0x00, 0x00, 0x00},
		State:          submission.StateAwaitingConfirmation,
		Attempts:       2,
		CreatedAt:      time.Date(2024, 4, 20, 0, 9, 27, 123456789, time.UTC),
	}
	require.NoError(t, store.SaveReveal(reveal))

	reveals, err := store.Reveals()
	require.NoError(t, err)
	require.Len(t, reveals, 1)
	require.Equal(t, reveal.ID, reveals[0].ID)
	require.Equal(t, reveal.CommitOutpoint, reveals[0].CommitOutpoint)
	require.Equal(t, reveal.RevealTxID, reveals[0].RevealTxID)
	require.Equal(t, reveal.Reveal, reveals[0].Reveal)
	require.Equal(t, reveal.Attempts, reveals[0].Attempts)
	require.True(t, reveal.CreatedAt.Equal(reveals[0].CreatedAt))

	require.NoError(t, store.DeleteReveal(reveal.ID))
	require.ErrorIs(t, store.DeleteReveal(reveal.ID), submission.ErrRevealNotFound)

	reveals, err = store.Reveals()
	require.NoError(t, err)
	require.Empty(t, reveals)
}
