// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package utxopool_test

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
)

const address = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"

var runeID = runes.RuneID{Block: 840000, TxID: 1}

func utxo(seed byte, index uint32, value uint64) bitcoin.UTXO {
	return bitcoin.UTXO{Outpoint: bitcoin.Outpoint{TxID: chainhash.Hash{seed}, Index: index}, Value: value, Height: 100}
}

func runeUTXO(seed byte, balance int64) bitcoin.RuneUTXO {
	return bitcoin.RuneUTXO{UTXO: utxo(seed, 0, 10000), RuneID: runeID, Balance: big.NewInt(balance)}
}

func newPool(t *testing.T) *utxopool.Pool {
	pool, err := utxopool.New(utxopool.NewMemoryStore())
	require.NoError(t, err)

	return pool
}

func TestPool(t *testing.T) {
	t.Run("smallest first", func(t *testing.T) {
		pool := newPool(t)
		require.Equal(t, 3, pool.Record(address, utxo(1, 0, 10000), utxo(2, 0, 100), utxo(3, 0, 500)))

		first, ok := pool.TakeSmallestBitcoin(address)
		require.True(t, ok)
		require.EqualValues(t, 100, first.Value)

		second, ok := pool.TakeSmallestBitcoin(address)
		require.True(t, ok)
		require.EqualValues(t, 500, second.Value)
		require.EqualValues(t, 10000, pool.Balance(address))
	})

	t.Run("equal values are ordered by outpoint", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(2, 1, 700), utxo(2, 0, 700), utxo(1, 5, 700))

		for _, expected := range []bitcoin.Outpoint{utxo(1, 5, 0).Outpoint, utxo(2, 0, 0).Outpoint, utxo(2, 1, 0).Outpoint} {
			taken, ok := pool.TakeSmallestBitcoin(address)
			require.True(t, ok)
			require.Equal(t, expected, taken.Outpoint)
		}

		_, ok := pool.TakeSmallestBitcoin(address)
		require.False(t, ok)
	})

	t.Run("record is idempotent", func(t *testing.T) {
		pool := newPool(t)
		require.Equal(t, 1, pool.Record(address, utxo(1, 0, 1000)))
		require.Equal(t, 0, pool.Record(address, utxo(1, 0, 1000)))
		require.Equal(t, 0, pool.Record(address, utxo(2, 0, 0)))
		require.EqualValues(t, 1000, pool.Balance(address))

		require.Equal(t, 1, pool.RecordRunes(address, runeUTXO(3, 50)))
		require.Equal(t, 0, pool.RecordRunes(address, runeUTXO(3, 50)))
		require.Equal(t, 0, pool.Record(address, runeUTXO(3, 50).UTXO))
		require.Equal(t, big.NewInt(50), pool.RuneBalance(address, runeID))
	})

	t.Run("rune classification moves bitcoin utxo", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, runeUTXO(1, 0).UTXO)
		require.EqualValues(t, 10000, pool.Balance(address))

		pool.RecordRunes(address, runeUTXO(1, 70))
		require.Zero(t, pool.Balance(address))
		require.True(t, pool.IsRecordedAsRune(address, runeUTXO(1, 70).Outpoint))
		require.True(t, pool.Contains(address, runeUTXO(1, 70).Outpoint))
	})

	t.Run("smallest rune", func(t *testing.T) {
		pool := newPool(t)
		pool.RecordRunes(address, runeUTXO(1, 300), runeUTXO(2, 20), runeUTXO(3, 100))
		require.Equal(t, big.NewInt(420), pool.RuneBalance(address, runeID))
		require.Equal(t, map[runes.RuneID]*big.Int{runeID: big.NewInt(420)}, pool.RuneBalances(address))

		taken, ok := pool.TakeSmallestRune(address, runeID)
		require.True(t, ok)
		require.Equal(t, big.NewInt(20), taken.Balance)

		_, ok = pool.TakeSmallestRune(address, runes.RuneID{Block: 1})
		require.False(t, ok)
		_, ok = pool.TakeSmallestRune("unknown", runeID)
		require.False(t, ok)
	})

	t.Run("remove spent", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(1, 0, 1000), utxo(2, 0, 2000))
		require.True(t, pool.RemoveBitcoin(address, utxo(1, 0, 0).Outpoint))
		require.False(t, pool.RemoveBitcoin(address, utxo(1, 0, 0).Outpoint))
		require.EqualValues(t, 2000, pool.Balance(address))
		require.Equal(t, []string{address}, pool.Addresses())
	})
}

func TestReservation(t *testing.T) {
	t.Run("restore", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(1, 0, 1000), utxo(2, 0, 2000))
		pool.RecordRunes(address, runeUTXO(3, 10))
		before := pool.Snapshot(address)

		reservation := pool.Reserve()
		_, ok := reservation.TakeSmallestBitcoin(address)
		require.True(t, ok)
		_, ok = reservation.TakeSmallestRune(address, runeID)
		require.True(t, ok)
		require.Equal(t, 2, reservation.Len())
		require.EqualValues(t, 2000, pool.Balance(address))

		reservation.Restore()
		reservation.Restore()
		require.Zero(t, reservation.Len())
		require.Equal(t, before, pool.Snapshot(address))
	})

	t.Run("commit", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(1, 0, 1000))

		reservation := pool.Reserve()
		_, ok := reservation.TakeSmallestBitcoin(address)
		require.True(t, ok)

		reservation.Commit()
		reservation.Restore()
		require.Zero(t, pool.Balance(address))
	})

	t.Run("reserved outpoint is not recorded again", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(1, 0, 1000), utxo(2, 0, 2000))

		reservation := pool.Reserve()
		taken, ok := reservation.TakeSmallestBitcoin(address)
		require.True(t, ok)
		require.True(t, pool.IsHeld(address, taken.Outpoint))

		require.Zero(t, pool.Record(address, taken))
		require.Zero(t, pool.RecordRunes(address, bitcoin.RuneUTXO{UTXO: taken, RuneID: runeID, Balance: big.NewInt(1)}))

		other, ok := pool.TakeSmallestBitcoin(address)
		require.True(t, ok)
		require.NotEqual(t, taken.Outpoint, other.Outpoint)

		reservation.Restore()
		require.False(t, pool.IsHeld(address, taken.Outpoint))
		require.EqualValues(t, 1000, pool.Balance(address))
	})

	t.Run("committed outpoint stays spent until forgotten", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(1, 0, 1000))

		reservation := pool.Reserve()
		taken, ok := reservation.TakeSmallestBitcoin(address)
		require.True(t, ok)
		reservation.Commit()

		require.Zero(t, pool.Record(address, taken))
		require.Zero(t, pool.ForgetSpent(address, map[bitcoin.Outpoint]struct{}{taken.Outpoint: {}}))
		require.True(t, pool.IsHeld(address, taken.Outpoint))

		require.Equal(t, 1, pool.ForgetSpent(address, nil))
		require.Equal(t, 1, pool.Record(address, taken))
	})

	t.Run("reserved outpoint is not forgotten", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(1, 0, 1000))
		pool.MarkSpent(address, utxo(9, 0, 0).Outpoint)

		reservation := pool.Reserve()
		taken, ok := reservation.TakeSmallestBitcoin(address)
		require.True(t, ok)

		require.Equal(t, 1, pool.ForgetSpent(address, nil))
		require.True(t, pool.IsHeld(address, taken.Outpoint))
		require.False(t, pool.IsHeld(address, utxo(9, 0, 0).Outpoint))
	})

	t.Run("merge", func(t *testing.T) {
		pool := newPool(t)
		pool.Record(address, utxo(1, 0, 1000), utxo(2, 0, 2000))

		first, second := pool.Reserve(), pool.Reserve()
		_, _ = first.TakeSmallestBitcoin(address)
		_, _ = second.TakeSmallestBitcoin(address)

		first.Merge(second)
		require.Equal(t, 2, first.Len())
		require.Zero(t, second.Len())

		first.Restore()
		require.EqualValues(t, 3000, pool.Balance(address))
	})

	t.Run("no double spend under interleaving", func(t *testing.T) {
		pool := newPool(t)
		for i := 0; i < 100; i++ {
			pool.Record(address, utxo(byte(i), uint32(i), uint64(1000+i)))
		}

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			taken = make(map[bitcoin.Outpoint]int)
		)
		for worker := 0; worker < 8; worker++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				reservation := pool.Reserve()
				for {
					u, ok := reservation.TakeSmallestBitcoin(address)
					if !ok {
						break
					}

					mu.Lock()
					taken[u.Outpoint]++
					mu.Unlock()
				}
				reservation.Commit()
			}()
		}
		wg.Wait()

		require.Len(t, taken, 100)
		for _, count := range taken {
			require.Equal(t, 1, count)
		}
	})
}

func TestPersistence(t *testing.T) {
	store := utxopool.NewMemoryStore()
	pool, err := utxopool.New(store)
	require.NoError(t, err)

	pool.Record(address, utxo(1, 0, 1000))
	pool.RecordRunes(address, runeUTXO(2, 5))

	reloaded, err := utxopool.New(store)
	require.NoError(t, err)
	require.EqualValues(t, 1000, reloaded.Balance(address))
	require.Equal(t, big.NewInt(5), reloaded.RuneBalance(address, runeID))

	_, err = utxopool.New(failingStore{})
	require.Error(t, err)
}

type failingStore struct{}

func (failingStore) Load() (map[string]*utxopool.AddressPool, error) {
	return nil, errors.New("unavailable")
}

func (failingStore) Save(string, *utxopool.AddressPool) error {
	return errors.New("unavailable")
}
