// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package etching_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/etching"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/txbuilder"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
)

const feeRate = 2000

type failingSchnorr struct {
	*signer.Gateway
}

func (failingSchnorr) SignSchnorr(context.Context, []byte) ([]byte, error) {
	return nil, &bitcoin.SigningError{Input: -1, Err: errors.New("oracle unavailable")}
}

type fixture struct {
	gateway *signer.Gateway
	pool    *utxopool.Pool
	builder *txbuilder.TxBuilder
	payer   signer.Party
	holder  string
}

func newFixture(t *testing.T, funds ...uint64) *fixture {
	oracle, err := signer.NewLocalOracleFromSeed([]byte("etching"))
	require.NoError(t, err)

	gateway, err := signer.NewGateway(context.Background(), oracle, signer.GatewayConfig{Network: &chaincfg.RegressionNetParams})
	require.NoError(t, err)

	pool, err := utxopool.New(utxopool.NewMemoryStore())
	require.NoError(t, err)

	payer, err := gateway.Party(signer.Account{Owner: []byte("payer")})
	require.NoError(t, err)

	holder, err := gateway.Address(signer.Account{Owner: []byte("holder")})
	require.NoError(t, err)

	for i, value := range funds {
		pool.Record(payer.Address, bitcoin.UTXO{
			Outpoint: bitcoin.Outpoint{TxID: chainhash.HashH([]byte{byte(i)}), Index: 1},
			Value:    value,
			Height:   10,
		})
	}

	return &fixture{
		gateway: gateway,
		pool:    pool,
		builder: txbuilder.NewTxBuilder(&chaincfg.RegressionNetParams),
		payer:   payer,
		holder:  holder,
	}
}

func (f *fixture) params() etching.Params {
	symbol := 'R'

	return etching.Params{
		Name:          "TESTRUNE",
		Divisibility:  3,
		Premine:       big.NewInt(500),
		Symbol:        &symbol,
		RevealAddress: f.holder,
		FeePayer:      f.payer,
		FeeRate:       feeRate,
		Logo:          []byte("<svg/>"),
		ContentType:   "image/svg+xml",
	}
}

func TestEtch(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		f := newFixture(t, 100000)

		etched, err := etching.NewEtcher(f.builder, f.gateway).Etch(context.Background(), f.pool, f.params())
		require.NoError(t, err)

		runestone, err := runes.Decipher(etched.Reveal)
		require.NoError(t, err)
		require.True(t, runestone.Equal(etched.Runestone))
		require.NotNil(t, runestone.Etching)
		require.Equal(t, "TESTRUNE", runestone.Etching.Rune.String())
		require.EqualValues(t, 3, *runestone.Etching.Divisibility)
		require.EqualValues(t, 500, runestone.Etching.Premine.Int64())
		require.Equal(t, 'R', *runestone.Etching.Symbol)
		require.False(t, runestone.Etching.Turbo)
		require.Nil(t, runestone.Etching.Terms)
		require.EqualValues(t, 0, *runestone.Pointer)

		// commit pays to the taproot commitment first.
		commit := etched.Commit.Tx
		require.Equal(t, etched.Commitment.PkScript, commit.TxOut[0].PkScript)
		require.EqualValues(t, etched.CommitValue, commit.TxOut[0].Value)
		require.Equal(t, etched.RevealFee+etching.TargetPostage, etched.CommitValue)
		require.Equal(t, bitcoin.Outpoint{TxID: commit.TxHash(), Index: 0}, etched.CommitOutpoint)
		require.Zero(t, f.pool.Balance(f.payer.Address))

		// reveal spends it after 5 blocks and pays the premine postage first.
		reveal := etched.Reveal
		require.Len(t, reveal.TxIn, 1)
		require.Equal(t, *etched.CommitOutpoint.Wire(), reveal.TxIn[0].PreviousOutPoint)
		require.EqualValues(t, etching.RevealSequence, reveal.TxIn[0].Sequence)
		require.Len(t, reveal.TxOut, 2)
		require.EqualValues(t, etching.TargetPostage, reveal.TxOut[0].Value)
		require.Zero(t, reveal.TxOut[1].Value)

		vsize := uint64(mempool.GetTxVirtualSize(btcutil.NewTx(reveal)))
		require.Equal(t, vsize*feeRate/1000, etched.RevealFee)

		fetcher := txscript.NewCannedPrevOutputFetcher(commit.TxOut[0].PkScript, commit.TxOut[0].Value)
		engine, err := txscript.NewEngine(commit.TxOut[0].PkScript, reveal, 0, txscript.StandardVerifyFlags, nil,
			txscript.NewTxSigHashes(reveal, fetcher), commit.TxOut[0].Value, fetcher)
		require.NoError(t, err)
		require.NoError(t, engine.Execute())

		inscription, err := inscriptions.FromWitness(reveal.TxIn[0].Witness)
		require.NoError(t, err)
		require.Equal(t, "image/svg+xml", inscription.ContentType)
		require.Equal(t, []byte("<svg/>"), inscription.Body)
		require.True(t, inscription.Rune.Equal(runestone.Etching.Rune))

		require.Equal(t, etched.Commitment.Address.EncodeAddress(), etched.CommitAddress())
	})

	t.Run("commit inputs are signed", func(t *testing.T) {
		f := newFixture(t, 6000, 90000)

		etched, err := etching.NewEtcher(f.builder, f.gateway).Etch(context.Background(), f.pool, f.params())
		require.NoError(t, err)

		commit := etched.Commit
		fetcher := txscript.NewMultiPrevOutFetcher(nil)
		for _, input := range commit.Inputs {
			fetcher.AddPrevOut(*input.UTXO.Wire(), wire.NewTxOut(int64(input.UTXO.Value), input.PkScript))
		}
		for idx, input := range commit.Inputs {
			engine, err := txscript.NewEngine(input.PkScript, commit.Tx, idx, txscript.StandardVerifyFlags, nil,
				txscript.NewTxSigHashes(commit.Tx, fetcher), int64(input.UTXO.Value), fetcher)
			require.NoError(t, err)
			require.NoError(t, engine.Execute())
		}
	})

	t.Run("no premine", func(t *testing.T) {
		f := newFixture(t, 100000)
		params := f.params()
		params.Premine = nil
		params.RevealAddress = ""

		etched, err := etching.NewEtcher(f.builder, f.gateway).Etch(context.Background(), f.pool, params)
		require.NoError(t, err)
		require.Len(t, etched.Reveal.TxOut, 1)
		require.Nil(t, etched.Runestone.Pointer)
		require.Zero(t, etched.Runestone.Etching.Premine.Sign())
	})

	t.Run("reveal psbt", func(t *testing.T) {
		f := newFixture(t, 100000)

		etched, err := etching.NewEtcher(f.builder, f.gateway).Etch(context.Background(), f.pool, f.params())
		require.NoError(t, err)

		raw, err := etched.RevealPSBT()
		require.NoError(t, err)

		packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
		require.NoError(t, err)
		require.Len(t, packet.Inputs, 1)
		require.Len(t, packet.Inputs[0].TaprootLeafScript, 1)
		require.Equal(t, etched.Commitment.LeafScript, packet.Inputs[0].TaprootLeafScript[0].Script)
		require.Equal(t, etched.Commitment.ControlBlock, packet.Inputs[0].TaprootLeafScript[0].ControlBlock)
	})

	t.Run("insufficient fee payer", func(t *testing.T) {
		f := newFixture(t, 3000)

		_, err := etching.NewEtcher(f.builder, f.gateway).Etch(context.Background(), f.pool, f.params())
		require.ErrorIs(t, err, txbuilder.ErrInsufficientFeeBalance)
		require.EqualValues(t, 3000, f.pool.Balance(f.payer.Address))
	})

	t.Run("signing failure restores the pool", func(t *testing.T) {
		f := newFixture(t, 100000)

		_, err := etching.NewEtcher(f.builder, failingSchnorr{f.gateway}).Etch(context.Background(), f.pool, f.params())
		require.True(t, bitcoin.IsRetryable(err))
		require.EqualValues(t, 100000, f.pool.Balance(f.payer.Address))
	})
}

func TestParamsValidate(t *testing.T) {
	valid := etching.Params{Name: "TEST•RUNE", Divisibility: 2}

	r, spacers, err := valid.Validate()
	require.NoError(t, err)
	require.Equal(t, "TESTRUNE", r.String())
	require.EqualValues(t, 0b1000, spacers)

	tests := []struct {
		name   string
		params etching.Params
	}{
		{"lowercase", etching.Params{Name: "test"}},
		{"trailing spacer", etching.Params{Name: "TEST•"}},
		{"reserved", etching.Params{Name: "AAAAAAAAAAAAAAAAAAAAAAAAAAA"}},
		{"divisibility", etching.Params{Name: "TESTRUNE", Divisibility: 39}},
		{"premine", etching.Params{Name: "TESTRUNE", Premine: new(big.Int).Lsh(big.NewInt(1), 128)}},
		{"locked name", etching.Params{Name: "A", Height: 840000}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := test.params.Validate()
			require.ErrorIs(t, err, etching.ErrInvalidParams)
		})
	}
}
