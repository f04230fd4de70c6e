// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes_test

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
)

func mustHex(s string) []byte {
	data, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return data
}

func mustRuneFromNumber(t *testing.T, num *big.Int) *runes.Rune {
	r, err := runes.NewRuneFromNumber(num)
	require.NoError(t, err)

	return r
}

func TestRunestone(t *testing.T) {
	pointer1 := uint32(1)
	pointer14 := uint32(14)

	divisibility10, spacers0, symbolM := byte(10), uint32(0), rune(77)
	divisibility4, spacers256, symbolDollar := byte(4), uint32(256), rune(36)

	vectors := []struct {
		name      string
		script    string
		runestone *runes.Runestone
	}{
		{
			name:   "edict only",
			script: "6a5d09008fe69d0154d70e01",
			runestone: &runes.Runestone{
				Edicts: []runes.Edict{{RuneID: runes.RuneID{Block: 2585359, TxID: 84}, Amount: big.NewInt(1879), Output: 1}},
			},
		},
		{
			name:      "mint only",
			script:    "6a5d0814e5e49d0114cc01",
			runestone: &runes.Runestone{Mint: &runes.RuneID{Block: 2585189, TxID: 204}},
		},
		{
			name:      "mint with pointer",
			script:    "6a5d0a14b0dd9d011482011601",
			runestone: &runes.Runestone{Mint: &runes.RuneID{Block: 2584240, TxID: 130}, Pointer: &pointer1},
		},
		{
			name:      "pointer only",
			script:    "6a5d02160e",
			runestone: &runes.Runestone{Pointer: &pointer14},
		},
		{
			name:   "etching only",
			script: "6a5d15020104dedfd1e58fd617010a0300054d0680b19164",
			runestone: &runes.Runestone{
				Etching: &runes.Etching{
					Divisibility: &divisibility10,
					Premine:      big.NewInt(210000000),
					Rune:         mustRuneFromNumber(t, big.NewInt(104114246938590)),
					Spacers:      &spacers0,
					Symbol:       &symbolM,
				},
			},
		},
		{
			name:   "etching with pointer",
			script: "6a5d1a020104fae2a3e9ac8cb9d814010403800205240680c2d72f1601",
			runestone: &runes.Runestone{
				Etching: &runes.Etching{
					Divisibility: &divisibility4,
					Premine:      big.NewInt(100000000),
					Rune:         mustRuneFromNumber(t, big.NewInt(1490942589659574650)),
					Spacers:      &spacers256,
					Symbol:       &symbolDollar,
				},
				Pointer: &pointer1,
			},
		},
	}

	t.Run("ParseRunestone", func(t *testing.T) {
		for _, vector := range vectors {
			t.Run(vector.name, func(t *testing.T) {
				parsed, err := runes.ParseRunestone(mustHex(vector.script), 16)
				require.NoError(t, err)
				require.True(t, vector.runestone.Equal(parsed), "%+v", parsed)
			})
		}
	})

	t.Run("Encipher", func(t *testing.T) {
		for _, vector := range vectors {
			t.Run(vector.name, func(t *testing.T) {
				script, err := vector.runestone.Encipher()
				require.NoError(t, err)
				require.Equal(t, vector.script, hex.EncodeToString(script))
			})
		}
	})

	t.Run("legacy field order is accepted", func(t *testing.T) {
		parsed, err := runes.ParseRunestone(mustHex("6a5d15010a0201030004dedfd1e58fd617054d0680b19164"), 2)
		require.NoError(t, err)
		require.True(t, vectors[4].runestone.Equal(parsed))
	})

	t.Run("edicts are sorted and delta encoded", func(t *testing.T) {
		runestone := &runes.Runestone{
			Edicts: []runes.Edict{
				{RuneID: runes.RuneID{Block: 2585360, TxID: 3}, Amount: big.NewInt(5), Output: 2},
				{RuneID: runes.RuneID{Block: 2585359, TxID: 100}, Amount: big.NewInt(7), Output: 1},
				{RuneID: runes.RuneID{Block: 2585359, TxID: 84}, Amount: big.NewInt(1879), Output: 1},
			},
		}

		sequence, err := runestone.IntSequence()
		require.NoError(t, err)

		expected := []int64{0, 2585359, 84, 1879, 1, 0, 16, 7, 1, 1, 3, 5, 2}
		require.Len(t, sequence, len(expected))
		for i, value := range expected {
			require.EqualValues(t, value, sequence[i].Int64(), "position %d", i)
		}

		script, err := runestone.Encipher()
		require.NoError(t, err)

		parsed, err := runes.ParseRunestone(script, 3)
		require.NoError(t, err)
		require.Len(t, parsed.Edicts, 3)
		require.Equal(t, runes.RuneID{Block: 2585359, TxID: 84}, parsed.Edicts[0].RuneID)
		require.Equal(t, runes.RuneID{Block: 2585359, TxID: 100}, parsed.Edicts[1].RuneID)
		require.Equal(t, runes.RuneID{Block: 2585360, TxID: 3}, parsed.Edicts[2].RuneID)
	})

	t.Run("cenotaphs", func(t *testing.T) {
		tests := []struct {
			name    string
			script  string
			outputs int
			flaw    runes.Flaw
		}{
			{"trailing integers", "6a5d0a008fe69d0154d70e0115", 2, runes.FlawTrailingIntegers},
			{"edict output out of range", "6a5d09008fe69d0154d70e05", 2, runes.FlawEdictOutput},
			{"truncated field", "6a5d0116", 2, runes.FlawTruncatedField},
			{"unrecognized even tag", "6a5d021801", 2, runes.FlawUnrecognizedEvenTag},
			{"unrecognized flag", "6a5d020208", 2, runes.FlawUnrecognizedFlag},
			{"non push opcode", "6a5d51", 2, runes.FlawOpcode},
			{"unterminated varint", "6a5d0180", 2, runes.FlawVarint},
		}

		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				_, err := runes.ParseRunestone(mustHex(test.script), test.outputs)
				var cenotaph *runes.CenotaphError
				require.ErrorAs(t, err, &cenotaph)
				require.Equal(t, test.flaw, cenotaph.Flaw)
			})
		}
	})

	t.Run("unknown odd tag is ignored", func(t *testing.T) {
		parsed, err := runes.ParseRunestone(mustHex("6a5d0417011601"), 2)
		require.NoError(t, err)
		require.NotNil(t, parsed.Pointer)
		require.EqualValues(t, 1, *parsed.Pointer)
	})

	t.Run("pointer out of range is dropped and even tag makes cenotaph", func(t *testing.T) {
		_, err := runes.ParseRunestone(mustHex("6a5d02160e"), 2)
		var cenotaph *runes.CenotaphError
		require.ErrorAs(t, err, &cenotaph)
		require.Equal(t, runes.FlawUnrecognizedEvenTag, cenotaph.Flaw)
	})

	t.Run("Decipher", func(t *testing.T) {
		tx := wire.NewMsgTx(2)
		tx.AddTxOut(wire.NewTxOut(10000, mustHex("76a914000000000000000000000000000000000000000088ac")))
		tx.AddTxOut(wire.NewTxOut(0, mustHex("6a0401020304")))
		tx.AddTxOut(wire.NewTxOut(0, mustHex("6a5d09008fe69d0154d70e01")))

		parsed, err := runes.Decipher(tx)
		require.NoError(t, err)
		require.True(t, vectors[0].runestone.Equal(parsed))

		tx.TxOut = tx.TxOut[:2]
		_, err = runes.Decipher(tx)
		require.ErrorIs(t, err, runes.ErrNoRunestone)
	})

	t.Run("pushdata payload", func(t *testing.T) {
		// the same edict payload pushed with OP_PUSHDATA1.
		parsed, err := runes.ParseRunestone(mustHex("6a5d4c09008fe69d0154d70e01"), 2)
		require.NoError(t, err)
		require.True(t, vectors[0].runestone.Equal(parsed))
	})

	t.Run("too large", func(t *testing.T) {
		runestone := new(runes.Runestone)
		for i := uint32(0); i < 10; i++ {
			runestone.Edicts = append(runestone.Edicts, runes.Edict{
				RuneID: runes.RuneID{Block: 840000 + uint64(i)*1000, TxID: i},
				Amount: new(big.Int).Lsh(big.NewInt(1), 100),
				Output: 1,
			})
		}

		_, err := runestone.Encipher()
		require.ErrorIs(t, err, runes.ErrRunestoneTooLarge)
	})
}
