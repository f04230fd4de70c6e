// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/metrics"
	"github.com/BoostyLabs/runecustody/internal/numbers"
)

const (
	// DustThreshold defines the smallest change in satoshi worth an output, smaller change goes to the fee.
	DustThreshold uint64 = 1000
	// DefaultPostage defines bitcoin value of the rune outputs in satoshi.
	DefaultPostage uint64 = 10000
	// DefaultMaxRounds defines fee loop rounds limit.
	DefaultMaxRounds = 32

	// txVersion defines transaction version for this builder.
	txVersion int32 = 2
	// millisatPerSat converts fee rate in millisatoshi per vbyte.
	millisatPerSat uint64 = 1000
)

// ErrFeeNotConverged is returned when the fee loop exceeded the rounds limit.
var ErrFeeNotConverged = errors.New("fee did not converge")

// TxBuilder provides transaction building related logic.
type TxBuilder struct {
	networkParams *chaincfg.Params
	maxRounds     int
	log           *log.Entry
}

// NewTxBuilder is a constructor for TxBuilder.
func NewTxBuilder(networkParams *chaincfg.Params) *TxBuilder {
	return &TxBuilder{
		networkParams: networkParams,
		maxRounds:     DefaultMaxRounds,
		log:           log.WithField("component", "txbuilder"),
	}
}

// WithMaxRounds returns copy of the builder with fee loop rounds limit set.
func (b *TxBuilder) WithMaxRounds(rounds int) *TxBuilder {
	clone := *b
	clone.maxRounds = max(rounds, 1)

	return &clone
}

// Network returns network params of the builder.
func (b *TxBuilder) Network() *chaincfg.Params {
	return b.networkParams
}

// attemptFn builds candidate draft for the assumed fee, taking utxos through the reservation.
type attemptFn func(reservation *utxopool.Reservation, assumedFee uint64) (*Draft, error)

// converge runs attempt until the fee of the placeholder signed candidate equals the assumed one.
// The candidate is also accepted when its fee is below the assumed one that was already tried:
// the loop oscillates between two states when the change output toggles around the dust threshold,
// the accepted draft overpays by the difference.
func (b *TxBuilder) converge(pool *utxopool.Pool, kind string, feeRate uint64, attempt attemptFn) (*Draft, error) {
	var (
		assumedFee uint64
		tried      = make(map[uint64]struct{})
	)
	for round := 1; round <= b.maxRounds; round++ {
		reservation := pool.Reserve()

		draft, err := attempt(reservation, assumedFee)
		if err != nil {
			reservation.Restore()
			metrics.DraftFailures.WithLabelValues(kind, failureReason(err)).Inc()

			return nil, err
		}

		realFee, err := estimateFee(draft.Tx, feeRate)
		if err != nil {
			reservation.Restore()
			metrics.DraftFailures.WithLabelValues(kind, failureReason(err)).Inc()

			return nil, err
		}

		_, seen := tried[realFee]
		if realFee == assumedFee || (realFee < assumedFee && seen) {
			draft.Kind = kind
			draft.Reservation = reservation
			draft.Fee, err = draft.actualFee()
			if err != nil {
				reservation.Restore()
				return nil, bitcoin.NewConstructionError("fee", err)
			}

			metrics.DraftRounds.WithLabelValues(kind).Observe(float64(round))
			b.log.WithFields(log.Fields{"kind": kind, "rounds": round, "fee": draft.Fee}).Debug("draft converged")

			return draft, nil
		}

		reservation.Restore()
		tried[assumedFee] = struct{}{}
		assumedFee = realFee
	}

	metrics.DraftFailures.WithLabelValues(kind, "not_converged").Inc()

	return nil, bitcoin.NewConstructionError(fmt.Sprintf("%d rounds", b.maxRounds), ErrFeeNotConverged)
}

// estimateFee returns fee of the placeholder signed copy of tx: vsize * rate / 1000.
func estimateFee(tx *wire.MsgTx, feeRate uint64) (uint64, error) {
	signed, err := placeholderSigned(tx)
	if err != nil {
		return 0, err
	}

	vsize := uint64(mempool.GetTxVirtualSize(btcutil.NewTx(signed)))
	fee, err := numbers.MulUint64(vsize, feeRate)
	if err != nil {
		return 0, bitcoin.NewConstructionError("fee", err)
	}

	return fee / millisatPerSat, nil
}

// addOutput adds dust checked output paying value to the address.
func (b *TxBuilder) addOutput(tx *wire.MsgTx, address string, value uint64) error {
	pkScript, err := b.payToAddress(address)
	if err != nil {
		return err
	}

	return addScriptOutput(tx, pkScript, value)
}

// addScriptOutput adds dust checked output paying value to the script.
func addScriptOutput(tx *wire.MsgTx, pkScript []byte, value uint64) error {
	out := wire.NewTxOut(int64(value), pkScript)
	if IsDust(out) {
		return bitcoin.NewConstructionError(fmt.Sprintf("output %d of %d sat is dust", len(tx.TxOut), value), nil)
	}

	tx.AddTxOut(out)

	return nil
}

// IsDust checks the output against the default relay fee.
// Any OP_RETURN output, runestones included, is never dust.
func IsDust(out *wire.TxOut) bool {
	if len(out.PkScript) > 0 && out.PkScript[0] == txscript.OP_RETURN {
		return false
	}

	return txrules.IsDustOutput(out, txrules.DefaultRelayFeePerKb)
}

// payToAddress returns output script of the address on the builder network.
func (b *TxBuilder) payToAddress(address string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, b.networkParams)
	if err != nil {
		return nil, bitcoin.NewConstructionError("address "+address, err)
	}
	if !decoded.IsForNet(b.networkParams) {
		return nil, bitcoin.NewConstructionError("address "+address+" is for another network", nil)
	}

	pkScript, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, bitcoin.NewConstructionError("address "+address, err)
	}

	return pkScript, nil
}

// addInputs adds inputs spending utxos of the party with the role.
func (b *TxBuilder) addInputs(draft *Draft, role Role, party signer.Party, utxos []bitcoin.UTXO) error {
	pkScript, err := b.payToAddress(party.Address)
	if err != nil {
		return err
	}

	for _, utxo := range utxos {
		draft.Tx.AddTxIn(wire.NewTxIn(utxo.Wire(), nil, nil))
		draft.Inputs = append(draft.Inputs, Input{Role: role, Party: party, UTXO: utxo, PkScript: pkScript})
	}

	return nil
}

func failureReason(err error) string {
	var (
		insufficientErr *InsufficientError
		constructionErr *bitcoin.ConstructionError
	)
	switch {
	case errors.As(err, &insufficientErr):
		return "insufficient_" + string(insufficientErr.Type)
	case errors.As(err, &constructionErr):
		return "construction"
	}

	return "other"
}
