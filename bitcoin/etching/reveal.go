// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package etching

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/utils"
	"github.com/BoostyLabs/runecustody/internal/numbers"
)

// newRevealTx returns unsigned reveal spending the commit outpoint.
func newRevealTx(commit wire.OutPoint, outputs []*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(2)

	in := wire.NewTxIn(&commit, nil, nil)
	in.Sequence = RevealSequence
	tx.AddTxIn(in)

	for _, out := range outputs {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}

	return tx
}

// estimateRevealFee returns fee of the reveal with zero schnorr signature in the witness.
// Default sighash signature has the same size, so no placeholder signing is needed.
func estimateRevealFee(reveal *wire.MsgTx, commitment *utils.TaprootCommitment, feeRate uint64) (uint64, error) {
	dummy := reveal.Copy()
	dummy.TxIn[0].Witness = wire.TxWitness{make([]byte, schnorr.SignatureSize), commitment.LeafScript, commitment.ControlBlock}

	vsize := uint64(mempool.GetTxVirtualSize(btcutil.NewTx(dummy)))
	fee, err := numbers.MulUint64(vsize, feeRate)
	if err != nil {
		return 0, bitcoin.NewConstructionError("reveal fee", err)
	}

	return fee / 1000, nil
}

// signReveal signs the script path spend of the commit output with the schnorr master key.
func (e *Etcher) signReveal(ctx context.Context, reveal *wire.MsgTx, commitment *utils.TaprootCommitment, commitOut *wire.TxOut) error {
	fetcher := txscript.NewCannedPrevOutputFetcher(commitOut.PkScript, commitOut.Value)

	hash, err := txscript.CalcTapscriptSignaturehash(
		txscript.NewTxSigHashes(reveal, fetcher),
		txscript.SigHashDefault,
		reveal,
		0,
		fetcher,
		txscript.NewBaseTapLeaf(commitment.LeafScript),
	)
	if err != nil {
		return bitcoin.NewConstructionError("reveal sighash", err)
	}

	sig, err := e.signer.SignSchnorr(ctx, hash)
	if err != nil {
		return err
	}

	reveal.TxIn[0].Witness = wire.TxWitness{sig, commitment.LeafScript, commitment.ControlBlock}

	return nil
}

// RevealPSBT returns unsigned reveal of the etching as PSBT with the tapscript leaf data of the commit input.
func (e *Etching) RevealPSBT() ([]byte, error) {
	unsigned := e.Reveal.Copy()
	unsigned.TxIn[0].Witness = nil

	p, err := psbt.NewFromUnsignedTx(unsigned)
	if err != nil {
		return nil, err
	}

	input := &p.Inputs[0]
	input.WitnessUtxo = wire.NewTxOut(int64(e.CommitValue), e.Commitment.PkScript)
	input.WitnessScript = e.Commitment.LeafScript
	input.TaprootInternalKey = schnorr.SerializePubKey(e.Commitment.InternalKey)
	input.SighashType = txscript.SigHashDefault

	if err = utils.UpdatePSBTInputWithTapScriptLeafData(input, e.Commitment.Tree); err != nil {
		return nil, err
	}

	w := bytes.NewBuffer(nil)
	if err = p.Serialize(w); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
