// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"math/big"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/numbers"
)

// receiverRuneOutput defines index of the receiver postage output when the runestone is emitted.
const receiverRuneOutput uint32 = 2

// RuneTransferParams describes parameters for rune transfer.
type RuneTransferParams struct {
	RuneID   runes.RuneID
	Amount   *big.Int
	Sender   signer.Party
	Receiver string
	FeePayer signer.Party
	// Postage defines bitcoin value of the rune outputs, DefaultPostage if zero.
	Postage uint64
	FeeRate uint64
}

// BuildRuneTransfer builds fee converged draft of rune transfer.
// Outputs when the sender gets rune change: [runestone, sender postage, receiver postage, fee payer change?],
// otherwise: [receiver postage, fee payer change?] and runes go to the receiver by the default allocation.
func (b *TxBuilder) BuildRuneTransfer(pool *utxopool.Pool, params RuneTransferParams) (*Draft, error) {
	if err := validateRuneAmount(params.Amount); err != nil {
		return nil, err
	}
	postage := postageOrDefault(params.Postage)

	return b.converge(pool, KindRuneTransfer, params.FeeRate, func(reservation *utxopool.Reservation, fee uint64) (*Draft, error) {
		leg, insufficient := takeRuneLeg(reservation, params.Sender.Address, params.RuneID, params.Amount, postage)
		if insufficient != nil {
			return nil, insufficient.require(&Requirement{Rune: params.Amount, Fee: fee})
		}

		required, err := numbers.AddUint64(fee, leg.requiredPostage())
		if err != nil {
			return nil, bitcoin.NewConstructionError("required fee", err)
		}

		utxos, total, err := selectBitcoin(reservation, params.FeePayer.Address, required)
		if err != nil {
			return nil, err
		}
		if total < required {
			return nil, insufficientSats(InsufficientErrorTypeFee, CauserFeePayer, required, total).
				require(&Requirement{Rune: params.Amount, Fee: required})
		}

		draft := newDraft()
		if err = b.writeRuneLeg(draft, leg, params.Sender, params.Receiver, params.RuneID, params.Amount); err != nil {
			return nil, err
		}
		if err = b.addInputs(draft, RoleFeePayer, params.FeePayer, utxos); err != nil {
			return nil, err
		}

		change, err := numbers.AddUint64(total-required, leg.surplus())
		if err != nil {
			return nil, bitcoin.NewConstructionError("change", err)
		}
		if change >= DustThreshold {
			if err = b.addOutput(draft.Tx, params.FeePayer.Address, change); err != nil {
				return nil, err
			}
		}

		return draft, nil
	})
}

// CombinedTransferParams describes parameters for transfer of runes and bitcoin in one transaction.
type CombinedTransferParams struct {
	RuneID          runes.RuneID
	RuneAmount      *big.Int
	RuneSender      signer.Party
	RuneReceiver    string
	BitcoinAmount   uint64
	BitcoinSender   signer.Party
	BitcoinReceiver string
	FeePayer        signer.Party
	Postage         uint64
	FeeRate         uint64
}

// BuildCombinedTransfer builds fee converged draft transferring runes and bitcoin.
// Outputs: [rune outputs as in BuildRuneTransfer, bitcoin receiver, bitcoin sender change?, fee payer change?].
// When the fee payer is the bitcoin sender, the fee is raised by the same selection and
// the change is paid once.
func (b *TxBuilder) BuildCombinedTransfer(pool *utxopool.Pool, params CombinedTransferParams) (*Draft, error) {
	if err := validateRuneAmount(params.RuneAmount); err != nil {
		return nil, err
	}
	if params.BitcoinAmount == 0 {
		return nil, bitcoin.NewConstructionError("zero bitcoin amount", nil)
	}
	postage := postageOrDefault(params.Postage)
	sameFeePayer := params.FeePayer.Address == params.BitcoinSender.Address

	return b.converge(pool, KindCombinedTransfer, params.FeeRate, func(reservation *utxopool.Reservation, fee uint64) (*Draft, error) {
		requirement := &Requirement{Rune: params.RuneAmount, Bitcoin: params.BitcoinAmount, Fee: fee}

		leg, insufficient := takeRuneLeg(reservation, params.RuneSender.Address, params.RuneID, params.RuneAmount, postage)
		if insufficient != nil {
			return nil, insufficient.require(requirement)
		}

		feeRequired, err := numbers.AddUint64(fee, leg.requiredPostage())
		if err != nil {
			return nil, bitcoin.NewConstructionError("required fee", err)
		}
		requirement.Fee = feeRequired

		bitcoinRequired := params.BitcoinAmount
		if sameFeePayer {
			bitcoinRequired, err = numbers.AddUint64(bitcoinRequired, feeRequired)
			if err != nil {
				return nil, bitcoin.NewConstructionError("required value", err)
			}
		}

		bitcoinUTXOs, bitcoinTotal, err := selectBitcoin(reservation, params.BitcoinSender.Address, bitcoinRequired)
		if err != nil {
			return nil, err
		}
		if bitcoinTotal < bitcoinRequired {
			return nil, insufficientSats(InsufficientErrorTypeBitcoin, CauserSecondarySender, bitcoinRequired, bitcoinTotal).
				require(requirement)
		}

		var (
			feeUTXOs []bitcoin.UTXO
			feeTotal uint64
		)
		if !sameFeePayer {
			feeUTXOs, feeTotal, err = selectBitcoin(reservation, params.FeePayer.Address, feeRequired)
			if err != nil {
				return nil, err
			}
			if feeTotal < feeRequired {
				return nil, insufficientSats(InsufficientErrorTypeFee, CauserFeePayer, feeRequired, feeTotal).
					require(requirement)
			}
		}

		draft := newDraft()
		if err = b.writeRuneLeg(draft, leg, params.RuneSender, params.RuneReceiver, params.RuneID, params.RuneAmount); err != nil {
			return nil, err
		}
		if err = b.addInputs(draft, RoleSecondarySender, params.BitcoinSender, bitcoinUTXOs); err != nil {
			return nil, err
		}
		if err = b.addInputs(draft, RoleFeePayer, params.FeePayer, feeUTXOs); err != nil {
			return nil, err
		}

		if err = b.addOutput(draft.Tx, params.BitcoinReceiver, params.BitcoinAmount); err != nil {
			return nil, err
		}

		bitcoinChange, err := numbers.SubUint64(bitcoinTotal, bitcoinRequired)
		if err != nil {
			return nil, bitcoin.NewConstructionError("bitcoin change", err)
		}

		var feeChange uint64
		if sameFeePayer {
			bitcoinChange, err = numbers.AddUint64(bitcoinChange, leg.surplus())
		} else {
			feeChange, err = numbers.SubUint64(feeTotal, feeRequired)
			if err == nil {
				feeChange, err = numbers.AddUint64(feeChange, leg.surplus())
			}
		}
		if err != nil {
			return nil, bitcoin.NewConstructionError("change", err)
		}

		if bitcoinChange >= DustThreshold {
			if err = b.addOutput(draft.Tx, params.BitcoinSender.Address, bitcoinChange); err != nil {
				return nil, err
			}
		}
		if feeChange >= DustThreshold {
			if err = b.addOutput(draft.Tx, params.FeePayer.Address, feeChange); err != nil {
				return nil, err
			}
		}

		return draft, nil
	})
}

// runeLeg holds rune utxos selected for the transfer.
type runeLeg struct {
	utxos   []bitcoin.RuneUTXO
	total   *big.Int
	carried uint64 // bitcoin value of the rune utxos.
	change  bool
	postage uint64
}

// takeRuneLeg selects rune utxos of the sender.
func takeRuneLeg(reservation *utxopool.Reservation, address string, id runes.RuneID, amount *big.Int, postage uint64) (*runeLeg, *InsufficientError) {
	utxos, total := selectRunes(reservation, address, id, amount)
	if total.Cmp(amount) < 0 {
		return nil, NewInsufficientError(InsufficientErrorTypeRune, amount, total).setCauser(CauserSender)
	}

	leg := &runeLeg{
		utxos:   utxos,
		total:   total,
		change:  len(utxos) > 1 || total.Cmp(amount) > 0,
		postage: postage,
	}
	for _, utxo := range utxos {
		// rune utxos values are dust-sized, sum of them cannot overflow in practice.
		leg.carried += utxo.Value
	}

	return leg, nil
}

// outputsPostage returns bitcoin value of the rune outputs.
func (leg *runeLeg) outputsPostage() uint64 {
	if leg.change {
		return 2 * leg.postage
	}

	return leg.postage
}

// requiredPostage returns postage which is not covered by the value of the rune utxos.
func (leg *runeLeg) requiredPostage() uint64 {
	return saturatingSub(leg.outputsPostage(), leg.carried)
}

// surplus returns value of the rune utxos above the postage.
func (leg *runeLeg) surplus() uint64 {
	return saturatingSub(leg.carried, leg.outputsPostage())
}

// writeRuneLeg adds rune inputs and rune outputs to the draft.
func (b *TxBuilder) writeRuneLeg(draft *Draft, leg *runeLeg, sender signer.Party, receiver string, id runes.RuneID, amount *big.Int) error {
	utxos := make([]bitcoin.UTXO, 0, len(leg.utxos))
	for _, utxo := range leg.utxos {
		utxos = append(utxos, utxo.UTXO)
	}
	if err := b.addInputs(draft, RoleSender, sender, utxos); err != nil {
		return err
	}

	if !leg.change {
		return b.addOutput(draft.Tx, receiver, leg.postage)
	}

	runestone := runes.Runestone{
		Edicts: []runes.Edict{{RuneID: id, Amount: new(big.Int).Set(amount), Output: receiverRuneOutput}},
	}
	script, err := runestone.Encipher()
	if err != nil {
		return bitcoin.NewConstructionError("runestone", err)
	}

	if err = addScriptOutput(draft.Tx, script, 0); err != nil {
		return err
	}
	if err = b.addOutput(draft.Tx, sender.Address, leg.postage); err != nil {
		return err
	}

	return b.addOutput(draft.Tx, receiver, leg.postage)
}

func validateRuneAmount(amount *big.Int) error {
	if amount == nil || !numbers.IsPositive(amount) || !numbers.IsUint128(amount) {
		return bitcoin.NewConstructionError("rune amount must be positive u128", nil)
	}

	return nil
}

func postageOrDefault(postage uint64) uint64 {
	if postage == 0 {
		return DefaultPostage
	}

	return postage
}
