// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/runecustody/bitcoin"
)

// ECDSASigner signs hashes with the key of the path.
type ECDSASigner interface {
	SignECDSA(ctx context.Context, hash []byte, path DerivationPath) ([]byte, error)
}

// LegacyInput describes P2PKH input owner and the script of the spent output.
type LegacyInput struct {
	PkScript  []byte
	Path      DerivationPath
	PublicKey *btcec.PublicKey
}

// SignLegacyInputs signs every input of tx with SIGHASH_ALL, inputs[i] describes tx.TxIn[i].
// ScriptSig is <DER signature || sighash type> <compressed public key>.
func SignLegacyInputs(ctx context.Context, signer ECDSASigner, tx *wire.MsgTx, inputs []LegacyInput) error {
	if len(inputs) != len(tx.TxIn) {
		return errors.New("inputs count mismatch")
	}

	for idx, input := range inputs {
		hash, err := txscript.CalcSignatureHash(input.PkScript, txscript.SigHashAll, tx, idx)
		if err != nil {
			return bitcoin.NewConstructionError(fmt.Sprintf("sighash of input %d", idx), err)
		}

		sig, err := signer.SignECDSA(ctx, hash, input.Path)
		if err != nil {
			return signingError(idx, err)
		}

		der, err := SEC1ToDER(sig)
		if err != nil {
			return &bitcoin.SigningError{Input: idx, Err: err}
		}

		tx.TxIn[idx].SignatureScript, err = txscript.NewScriptBuilder().
			AddData(append(der, byte(txscript.SigHashAll))).
			AddData(input.PublicKey.SerializeCompressed()).
			Script()
		if err != nil {
			return bitcoin.NewConstructionError(fmt.Sprintf("script sig of input %d", idx), err)
		}
	}

	return nil
}

// signingError attaches input index to the signing error.
func signingError(idx int, err error) error {
	var signingErr *bitcoin.SigningError
	if errors.As(err, &signingErr) {
		return &bitcoin.SigningError{Input: idx, Err: signingErr.Err}
	}

	return &bitcoin.SigningError{Input: idx, Err: err}
}
