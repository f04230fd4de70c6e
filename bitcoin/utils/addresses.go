// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// TaprootCommitment holds everything needed to pay into and spend a single-leaf taproot output.
type TaprootCommitment struct {
	InternalKey  *btcec.PublicKey
	LeafScript   []byte
	Tree         *txscript.IndexedTapScriptTree
	OutputKey    *btcec.PublicKey
	ControlBlock []byte
	Address      *btcutil.AddressTaproot
	PkScript     []byte
}

// NewTaprootCommitment tweaks internalKey with the single leaf tree of leafScript.
func NewTaprootCommitment(chainParams *chaincfg.Params, internalKey *btcec.PublicKey, leafScript []byte) (*TaprootCommitment, error) {
	tree, err := NewTapScriptTreeFromRawScripts(leafScript)
	if err != nil {
		return nil, err
	}

	rootHash := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])

	controlBlock := tree.LeafMerkleProofs[0].ToControlBlock(internalKey)
	ctrlBlock, err := controlBlock.ToBytes()
	if err != nil {
		return nil, err
	}

	address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), chainParams)
	if err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return nil, err
	}

	return &TaprootCommitment{
		InternalKey:  internalKey,
		LeafScript:   leafScript,
		Tree:         tree,
		OutputKey:    outputKey,
		ControlBlock: ctrlBlock,
		Address:      address,
		PkScript:     pkScript,
	}, nil
}

// NewP2PKHAddress returns legacy pay-to-pubkey-hash address of the compressed public key.
func NewP2PKHAddress(chainParams *chaincfg.Params, publicKey *btcec.PublicKey) (*btcutil.AddressPubKeyHash, error) {
	return btcutil.NewAddressPubKeyHash(btcutil.Hash160(publicKey.SerializeCompressed()), chainParams)
}
