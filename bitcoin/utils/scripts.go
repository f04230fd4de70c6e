// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// MaxScriptElementSize defines maximum size of a single data push in bitcoin scripts.
const MaxScriptElementSize = 520

// AppendPush appends data push to the script without small integer opcode substitution,
// so single-byte values are always pushed as data, the way ord envelopes and runestones expect.
func AppendPush(script []byte, data []byte) []byte {
	switch size := len(data); {
	case size < txscript.OP_PUSHDATA1:
		script = append(script, byte(size))
	case size <= 0xff:
		script = append(script, txscript.OP_PUSHDATA1, byte(size))
	default:
		script = append(script, txscript.OP_PUSHDATA2, byte(size), byte(size>>8))
	}

	return append(script, data...)
}

// AppendChunkedPush appends data as sequence of pushes of MaxScriptElementSize at most.
func AppendChunkedPush(script []byte, data []byte) []byte {
	for start := 0; start < len(data); start += MaxScriptElementSize {
		end := min(start+MaxScriptElementSize, len(data))
		script = AppendPush(script, data[start:end])
	}

	return script
}

// NewCheckSigLeafScript builds tapscript leaf prefix that locks the output to the x-only key: <key> OP_CHECKSIG.
func NewCheckSigLeafScript(xOnlyPubKey []byte) ([]byte, error) {
	if len(xOnlyPubKey) != schnorr.PubKeyBytesLen {
		return nil, errors.New("x-only public key must be 32 bytes")
	}

	return txscript.NewScriptBuilder().
		AddData(xOnlyPubKey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// NewTapScriptTreeFromRawScripts builds tapScript tree from provided raw leaf scripts.
func NewTapScriptTreeFromRawScripts(leafScripts ...[]byte) (*txscript.IndexedTapScriptTree, error) {
	if len(leafScripts) == 0 {
		return nil, errors.New("no leaf scripts provided")
	}

	var tapLeafs = make([]txscript.TapLeaf, len(leafScripts))
	for i, leafScript := range leafScripts {
		tapLeafs[i] = txscript.NewBaseTapLeaf(leafScript)
	}

	return txscript.AssembleTaprootScriptTree(tapLeafs...), nil
}

// UpdatePSBTInputWithTapScriptLeafData updates provided psbt input with all data needed to sign
// the single-leaf taproot utxo through the script path.
func UpdatePSBTInputWithTapScriptLeafData(input *psbt.PInput, tapScriptTree *txscript.IndexedTapScriptTree) error {
	if len(input.TaprootInternalKey) == 0 {
		return errors.New("no taproot internal key provided")
	}
	if len(input.WitnessScript) == 0 {
		return errors.New("no witness script provided")
	}

	tapLeaf := txscript.NewBaseTapLeaf(input.WitnessScript)
	internalKey, err := schnorr.ParsePubKey(input.TaprootInternalKey)
	if err != nil {
		return err
	}

	ctrlBlock := tapScriptTree.LeafMerkleProofs[0].ToControlBlock(internalKey)
	tapLeafScript := &psbt.TaprootTapLeafScript{
		Script:      tapLeaf.Script,
		LeafVersion: tapLeaf.LeafVersion,
	}
	tapLeafScript.ControlBlock, err = ctrlBlock.ToBytes()
	if err != nil {
		return err
	}

	if len(input.TaprootLeafScript) == 0 {
		input.TaprootLeafScript = []*psbt.TaprootTapLeafScript{tapLeafScript}
	}

	if len(input.TaprootMerkleRoot) == 0 {
		input.TaprootMerkleRoot = ctrlBlock.RootHash(tapLeaf.Script)
	}

	return nil
}
