// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/numbers"
)

// Draft kinds.
const (
	KindBitcoinTransfer  = "bitcoin_transfer"
	KindRuneTransfer     = "rune_transfer"
	KindCombinedTransfer = "combined_transfer"
	KindCommit           = "commit"
)

// Input describes the spent utxo and its owner.
type Input struct {
	Role     Role
	Party    signer.Party
	UTXO     bitcoin.UTXO
	PkScript []byte
}

// Draft is an unsigned transaction with the reservation of the utxos it spends.
// Reservation must be either committed after broadcast or restored.
type Draft struct {
	Kind        string
	Tx          *wire.MsgTx
	Inputs      []Input
	Fee         uint64
	Reservation *utxopool.Reservation
}

func newDraft() *Draft {
	return &Draft{Tx: wire.NewMsgTx(txVersion)}
}

// TxID returns hash of the transaction in its current state.
func (d *Draft) TxID() chainhash.Hash {
	return d.Tx.TxHash()
}

// InputValue returns sum of the spent utxos.
func (d *Draft) InputValue() (uint64, error) {
	var sum uint64
	for _, input := range d.Inputs {
		var err error
		sum, err = numbers.AddUint64(sum, input.UTXO.Value)
		if err != nil {
			return 0, err
		}
	}

	return sum, nil
}

// OutputValue returns sum of the outputs.
func (d *Draft) OutputValue() (uint64, error) {
	var sum uint64
	for _, out := range d.Tx.TxOut {
		if out.Value < 0 {
			return 0, fmt.Errorf("negative output value %d", out.Value)
		}

		var err error
		sum, err = numbers.AddUint64(sum, uint64(out.Value))
		if err != nil {
			return 0, err
		}
	}

	return sum, nil
}

// actualFee returns fee actually paid by the transaction including forfeited change.
func (d *Draft) actualFee() (uint64, error) {
	in, err := d.InputValue()
	if err != nil {
		return 0, err
	}

	out, err := d.OutputValue()
	if err != nil {
		return 0, err
	}

	return numbers.SubUint64(in, out)
}

// Outpoints returns spent outpoints in input order.
func (d *Draft) Outpoints() []bitcoin.Outpoint {
	outpoints := make([]bitcoin.Outpoint, 0, len(d.Inputs))
	for _, input := range d.Inputs {
		outpoints = append(outpoints, input.UTXO.Outpoint)
	}

	return outpoints
}

// LegacyInputs returns signing descriptions of the inputs.
func (d *Draft) LegacyInputs() []signer.LegacyInput {
	inputs := make([]signer.LegacyInput, 0, len(d.Inputs))
	for _, input := range d.Inputs {
		inputs = append(inputs, signer.LegacyInput{
			PkScript:  input.PkScript,
			Path:      input.Party.Path,
			PublicKey: input.Party.PublicKey,
		})
	}

	return inputs
}

// RoleIndexes returns input indexes grouped by role.
func (d *Draft) RoleIndexes() map[Role][]int {
	result := make(map[Role][]int, 3)
	for idx, input := range d.Inputs {
		result[input.Role] = append(result[input.Role], idx)
	}

	return result
}

// Serialize returns serialized transaction.
func (d *Draft) Serialize() ([]byte, error) {
	w := bytes.NewBuffer(make([]byte, 0, d.Tx.SerializeSize()))
	if err := d.Tx.Serialize(w); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// PSBT returns serialised PSBT of the unsigned transaction.
// Input indexes of every role are stored in global Unknowns with the role byte as key.
func (d *Draft) PSBT() ([]byte, error) {
	unsigned := d.Tx.Copy()
	for _, in := range unsigned.TxIn {
		in.SignatureScript, in.Witness = nil, nil
	}

	p, err := psbt.NewFromUnsignedTx(unsigned)
	if err != nil {
		return nil, err
	}

	for idx, input := range d.Inputs {
		p.Inputs[idx].WitnessUtxo = wire.NewTxOut(int64(input.UTXO.Value), input.PkScript)
		p.Inputs[idx].SighashType = txscript.SigHashAll
	}

	for _, role := range []Role{RoleSender, RoleSecondarySender, RoleFeePayer} {
		indexes, ok := d.RoleIndexes()[role]
		if !ok {
			continue
		}

		value := make([]byte, 0, len(indexes))
		for _, idx := range indexes {
			if idx > 0xff {
				return nil, errors.New("too many inputs to describe roles")
			}
			value = append(value, byte(idx))
		}

		p.Unknowns = append(p.Unknowns, &psbt.Unknown{Key: role.Bytes(), Value: value})
	}

	w := bytes.NewBuffer(nil)
	if err = p.Serialize(w); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// RoleInputsFromPSBT returns map with roles and input indexes to sign.
func RoleInputsFromPSBT(data []byte) (map[Role][]int, error) {
	p, err := psbt.NewFromRawBytes(bytes.NewReader(data), false)
	if err != nil {
		return nil, err
	}

	result := make(map[Role][]int, 3)
	for _, unknown := range p.Unknowns {
		role, err := RoleFromBytes(unknown.Key)
		if err != nil {
			return nil, err
		}

		indexes := make([]int, len(unknown.Value))
		for idx, val := range unknown.Value {
			indexes[idx] = int(val)
		}
		result[role] = indexes
	}

	return result, nil
}
