// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
)

func TestPathFor(t *testing.T) {
	owner := []byte{0xaa, 0xbb}

	var zero [32]byte
	withoutSubaccount := signer.PathFor(signer.Account{Owner: owner})
	withZeroSubaccount := signer.PathFor(signer.Account{Owner: owner, Subaccount: &zero})
	require.Equal(t, withoutSubaccount, withZeroSubaccount)
	require.Equal(t, signer.DerivationPath{{0x01}, owner, zero[:]}, withoutSubaccount)

	subaccount := [32]byte{31: 1}
	require.NotEqual(t, withoutSubaccount, signer.PathFor(signer.Account{Owner: owner, Subaccount: &subaccount}))
	require.Equal(t, "m/01/aabb/"+string(bytes.Repeat([]byte("0"), 64)), withoutSubaccount.String())
}

func TestDerivation(t *testing.T) {
	master, chainCode := newMaster(t)
	extended := signer.ExtendedKey{PublicKey: master.PubKey(), ChainCode: chainCode}

	paths := []signer.DerivationPath{
		{},
		{{0x01}},
		signer.PathFor(signer.Account{Owner: []byte("alice")}),
		signer.PathFor(signer.Account{Owner: []byte("bob")}),
	}

	seen := make(map[string]bool)
	for _, path := range paths {
		public, err := signer.DerivePublicKey(extended, path)
		require.NoError(t, err)

		private, privateChainCode, err := signer.DerivePrivateKey(master, chainCode, path)
		require.NoError(t, err)
		require.True(t, private.PubKey().IsEqual(public.PublicKey), path.String())
		require.Equal(t, public.ChainCode, privateChainCode)

		again, err := signer.DerivePublicKey(extended, path.Clone())
		require.NoError(t, err)
		require.True(t, again.PublicKey.IsEqual(public.PublicKey))

		key := string(public.PublicKey.SerializeCompressed())
		require.False(t, seen[key])
		seen[key] = true
	}

	root, err := signer.DerivePublicKey(extended, signer.DerivationPath{})
	require.NoError(t, err)
	require.True(t, root.PublicKey.IsEqual(master.PubKey()))

	_, err = signer.DerivePublicKey(signer.ExtendedKey{PublicKey: master.PubKey(), ChainCode: []byte{1}}, paths[1])
	require.ErrorIs(t, err, signer.ErrInvalidChainCode)
}

func TestSEC1ToDER(t *testing.T) {
	t.Run("high bit gets leading zero", func(t *testing.T) {
		sig := append(bytes.Repeat([]byte{0x80}, 32), bytes.Repeat([]byte{0x11}, 32)...)
		der, err := signer.SEC1ToDER(sig)
		require.NoError(t, err)
		require.Equal(t, []byte{0x30, 69, 0x02, 33, 0x00, 0x80}, der[:6])
		require.Equal(t, []byte{0x02, 32, 0x11}, der[37:40])
		require.Len(t, der, 71)
	})

	t.Run("low bit is kept as is", func(t *testing.T) {
		sig := append(bytes.Repeat([]byte{0x7f}, 32), bytes.Repeat([]byte{0x81}, 32)...)
		der, err := signer.SEC1ToDER(sig)
		require.NoError(t, err)
		require.Equal(t, []byte{0x30, 69, 0x02, 32, 0x7f}, der[:5])
		require.Equal(t, []byte{0x02, 33, 0x00, 0x81}, der[36:40])
	})

	t.Run("placeholder has maximum size", func(t *testing.T) {
		der, err := signer.SEC1ToDER(bytes.Repeat([]byte{0xff}, 64))
		require.NoError(t, err)
		require.Len(t, der, 72)
	})

	t.Run("real signature parses", func(t *testing.T) {
		master, _ := newMaster(t)
		hash := sha256.Sum256([]byte("message"))

		compact := ecdsa.SignCompact(master, hash[:], true)

		der, err := signer.SEC1ToDER(compact[1:])
		require.NoError(t, err)

		parsed, err := ecdsa.ParseDERSignature(der)
		require.NoError(t, err)
		require.True(t, parsed.Verify(hash[:], master.PubKey()))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := signer.SEC1ToDER(make([]byte, 63))
		require.ErrorIs(t, err, signer.ErrMalformedSignature)
	})
}

func TestParseCompact(t *testing.T) {
	_, err := signer.ParseCompact(make([]byte, 64))
	require.ErrorIs(t, err, signer.ErrMalformedSignature)

	_, err = signer.ParseCompact(bytes.Repeat([]byte{0xff}, 64))
	require.ErrorIs(t, err, signer.ErrMalformedSignature)

	var highS btcec.ModNScalar
	highS.SetInt(1).Negate()
	sBytes := highS.Bytes()
	sig := append(bytes.Repeat([]byte{0x01}, 32), sBytes[:]...)

	normalized, err := signer.ParseCompact(sig)
	require.NoError(t, err)
	require.Equal(t, sig[:32], normalized[:32])
	require.Equal(t, append(make([]byte, 31), 0x01), normalized[32:])
}

func TestGateway(t *testing.T) {
	ctx := context.Background()
	master, chainCode := newMaster(t)

	oracle, err := signer.NewLocalOracle(master, chainCode)
	require.NoError(t, err)

	gateway, err := signer.NewGateway(ctx, oracle, signer.GatewayConfig{Network: &chaincfg.RegressionNetParams})
	require.NoError(t, err)

	account := signer.Account{Owner: []byte("alice")}

	t.Run("party", func(t *testing.T) {
		party, err := gateway.Party(account)
		require.NoError(t, err)

		address, err := btcutil.DecodeAddress(party.Address, &chaincfg.RegressionNetParams)
		require.NoError(t, err)
		require.IsType(t, &btcutil.AddressPubKeyHash{}, address)
		require.Equal(t, btcutil.Hash160(party.PublicKey.SerializeCompressed()), address.ScriptAddress())

		same, err := gateway.Address(account)
		require.NoError(t, err)
		require.Equal(t, party.Address, same)
	})

	t.Run("sign ecdsa", func(t *testing.T) {
		path := signer.PathFor(account)
		hash := sha256.Sum256([]byte("hash"))

		sig, err := gateway.SignECDSA(ctx, hash[:], path)
		require.NoError(t, err)

		key, err := gateway.PublicKey(path)
		require.NoError(t, err)
		require.True(t, signer.VerifyCompact(sig, hash[:], key))
		require.False(t, signer.VerifyCompact(sig, hash[:], master.PubKey()))
	})

	t.Run("sign schnorr", func(t *testing.T) {
		message := sha256.Sum256([]byte("message"))

		sig, err := gateway.SignSchnorr(ctx, message[:])
		require.NoError(t, err)

		parsed, err := schnorr.ParseSignature(sig)
		require.NoError(t, err)
		require.True(t, parsed.Verify(message[:], gateway.SchnorrPublicKey()))
	})

	t.Run("oracle failures are retryable", func(t *testing.T) {
		broken, err := signer.NewGateway(ctx, &brokenOracle{LocalOracle: oracle, sig: make([]byte, 10)}, signer.GatewayConfig{Network: &chaincfg.RegressionNetParams})
		require.NoError(t, err)

		_, err = broken.SignECDSA(ctx, make([]byte, 32), signer.PathFor(account))
		require.ErrorIs(t, err, signer.ErrMalformedSignature)
		require.True(t, bitcoin.IsRetryable(err))

		failing, err := signer.NewGateway(ctx, &brokenOracle{LocalOracle: oracle, err: errors.New("unavailable")}, signer.GatewayConfig{Network: &chaincfg.RegressionNetParams})
		require.NoError(t, err)

		_, err = failing.SignSchnorr(ctx, make([]byte, 32))
		require.True(t, bitcoin.IsRetryable(err))
	})
}

func TestSignLegacyInputs(t *testing.T) {
	ctx := context.Background()
	master, chainCode := newMaster(t)

	oracle, err := signer.NewLocalOracle(master, chainCode)
	require.NoError(t, err)

	gateway, err := signer.NewGateway(ctx, oracle, signer.GatewayConfig{Network: &chaincfg.RegressionNetParams})
	require.NoError(t, err)

	alice, err := gateway.Party(signer.Account{Owner: []byte("alice")})
	require.NoError(t, err)
	bob, err := gateway.Party(signer.Account{Owner: []byte("bob")})
	require.NoError(t, err)

	parties := []signer.Party{alice, bob}
	tx := wire.NewMsgTx(2)
	inputs := make([]signer.LegacyInput, len(parties))
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	for idx, party := range parties {
		pkScript := payToAddress(t, party.Address)
		outpoint := wire.NewOutPoint(&chainhash.Hash{byte(idx + 1)}, uint32(idx))

		tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
		inputs[idx] = signer.LegacyInput{PkScript: pkScript, Path: party.Path, PublicKey: party.PublicKey}
		prevOuts[*outpoint] = wire.NewTxOut(50000, pkScript)
	}
	tx.AddTxOut(wire.NewTxOut(90000, payToAddress(t, alice.Address)))

	require.NoError(t, signer.SignLegacyInputs(ctx, gateway, tx, inputs))

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	for idx, input := range inputs {
		engine, err := txscript.NewEngine(input.PkScript, tx, idx, txscript.StandardVerifyFlags, nil,
			txscript.NewTxSigHashes(tx, fetcher), 50000, fetcher)
		require.NoError(t, err)
		require.NoError(t, engine.Execute())
	}

	err = signer.SignLegacyInputs(ctx, gateway, tx, inputs[:1])
	require.Error(t, err)
}

type brokenOracle struct {
	*signer.LocalOracle
	sig []byte
	err error
}

func (o *brokenOracle) SignECDSA(context.Context, []byte, signer.DerivationPath, string) ([]byte, error) {
	return o.sig, o.err
}

func (o *brokenOracle) SignSchnorr(context.Context, []byte, signer.DerivationPath, string) ([]byte, error) {
	return o.sig, o.err
}

func newMaster(t *testing.T) (*btcec.PrivateKey, []byte) {
	oracleKey := sha256.Sum256([]byte("master"))
	master, _ := btcec.PrivKeyFromBytes(oracleKey[:])
	chainCode := sha256.Sum256([]byte("chain code"))

	return master, chainCode[:]
}

func payToAddress(t *testing.T, address string) []byte {
	decoded, err := btcutil.DecodeAddress(address, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	return script
}
