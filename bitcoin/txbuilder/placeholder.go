// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
)

var (
	// placeholderSignature is the largest compact signature, its DER form takes 72 bytes.
	placeholderSignature = bytes.Repeat([]byte{0xff}, signer.CompactSignatureSize)
	// placeholderPublicKey has size of the compressed public key.
	placeholderPublicKey = append([]byte{0x02}, bytes.Repeat([]byte{0xff}, 32)...)
)

// placeholderSigned returns copy of tx with every input signed by the largest possible legacy signature,
// so the size of the copy is an upper bound for the signed transaction.
func placeholderSigned(tx *wire.MsgTx) (*wire.MsgTx, error) {
	der, err := signer.SEC1ToDER(placeholderSignature)
	if err != nil {
		return nil, bitcoin.NewConstructionError("placeholder signature", err)
	}

	sigScript, err := txscript.NewScriptBuilder().
		AddData(append(der, byte(txscript.SigHashAll))).
		AddData(placeholderPublicKey).
		Script()
	if err != nil {
		return nil, bitcoin.NewConstructionError("placeholder script sig", err)
	}

	signed := tx.Copy()
	for _, in := range signed.TxIn {
		in.SignatureScript = sigScript
	}

	return signed, nil
}
