// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/numbers"
)

// BitcoinTransferParams describes parameters for plain bitcoin transfer.
type BitcoinTransferParams struct {
	Sender   signer.Party
	Receiver string
	Amount   uint64
	// PaidBySender defines whether the fee is raised on top of the amount,
	// otherwise the receiver gets the amount minus the fee.
	PaidBySender bool
	// FeeRate in millisatoshi per vbyte.
	FeeRate uint64
}

// BuildBitcoinTransfer builds fee converged draft of plain bitcoin transfer.
// Outputs: [receiver, sender change if it is not dust].
func (b *TxBuilder) BuildBitcoinTransfer(pool *utxopool.Pool, params BitcoinTransferParams) (*Draft, error) {
	if params.Amount == 0 {
		return nil, bitcoin.NewConstructionError("zero amount", nil)
	}

	return b.converge(pool, KindBitcoinTransfer, params.FeeRate, func(reservation *utxopool.Reservation, fee uint64) (*Draft, error) {
		required, received := params.Amount, params.Amount
		if params.PaidBySender {
			var err error
			required, err = numbers.AddUint64(params.Amount, fee)
			if err != nil {
				return nil, bitcoin.NewConstructionError("required value", err)
			}
		} else {
			if params.Amount <= fee {
				return nil, insufficientSats(InsufficientErrorTypeFee, CauserSender, fee+1, params.Amount).
					require(&Requirement{Bitcoin: params.Amount, Fee: fee})
			}
			received = params.Amount - fee
		}

		utxos, total, err := selectBitcoin(reservation, params.Sender.Address, required)
		if err != nil {
			return nil, err
		}
		if total < required {
			return nil, insufficientSats(InsufficientErrorTypeBitcoin, CauserSender, required, total).
				require(&Requirement{Bitcoin: params.Amount, Fee: fee})
		}

		draft := newDraft()
		if err = b.addInputs(draft, RoleSender, params.Sender, utxos); err != nil {
			return nil, err
		}

		if err = b.addOutput(draft.Tx, params.Receiver, received); err != nil {
			return nil, err
		}

		if change := total - required; change >= DustThreshold {
			if err = b.addOutput(draft.Tx, params.Sender.Address, change); err != nil {
				return nil, err
			}
		}

		return draft, nil
	})
}

// CommitParams describes parameters for transaction paying fixed value to the script.
type CommitParams struct {
	FeePayer signer.Party
	PkScript []byte
	Value    uint64
	FeeRate  uint64
}

// BuildCommit builds fee converged draft paying value to the script, used for the etching commit.
// Outputs: [script, fee payer change if it is not dust].
func (b *TxBuilder) BuildCommit(pool *utxopool.Pool, params CommitParams) (*Draft, error) {
	if len(params.PkScript) == 0 {
		return nil, bitcoin.NewConstructionError("empty commit script", nil)
	}

	return b.converge(pool, KindCommit, params.FeeRate, func(reservation *utxopool.Reservation, fee uint64) (*Draft, error) {
		required, err := numbers.AddUint64(params.Value, fee)
		if err != nil {
			return nil, bitcoin.NewConstructionError("required value", err)
		}

		utxos, total, err := selectBitcoin(reservation, params.FeePayer.Address, required)
		if err != nil {
			return nil, err
		}
		if total < required {
			return nil, insufficientSats(InsufficientErrorTypeFee, CauserFeePayer, required, total).
				require(&Requirement{Fee: required})
		}

		draft := newDraft()
		if err = b.addInputs(draft, RoleFeePayer, params.FeePayer, utxos); err != nil {
			return nil, err
		}

		if err = addScriptOutput(draft.Tx, params.PkScript, params.Value); err != nil {
			return nil, err
		}

		if change := total - required; change >= DustThreshold {
			if err = b.addOutput(draft.Tx, params.FeePayer.Address, change); err != nil {
				return nil, err
			}
		}

		return draft, nil
	})
}
