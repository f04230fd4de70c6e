// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package etching

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/txbuilder"
	"github.com/BoostyLabs/runecustody/bitcoin/utils"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/numbers"
)

const (
	// CommitConfirmations defines confirmations of the commit output required before the reveal is mined.
	CommitConfirmations = 6
	// RevealSequence defines relative height lock of the reveal input.
	RevealSequence = CommitConfirmations - 1
	// TargetPostage defines bitcoin value of the premine output.
	TargetPostage = txbuilder.DefaultPostage
)

var (
	// ErrInvalidParams defines that etching parameters are invalid.
	ErrInvalidParams = errors.New("invalid etching params")
	// ErrEtchingMismatch defines that the reveal runestone does not decode into the intended etching.
	ErrEtchingMismatch = errors.New("reveal runestone does not match etching")
)

// Signer signs the commit with derived ecdsa keys and the reveal with the schnorr master key.
type Signer interface {
	signer.ECDSASigner
	SchnorrPublicKey() *btcec.PublicKey
	SignSchnorr(ctx context.Context, message []byte) ([]byte, error)
}

// Params describes rune to etch and who pays for it.
type Params struct {
	// Name is the spaced rune name, letters A-Z with • or . spacers.
	Name         string
	Divisibility uint8
	Premine      *big.Int
	Symbol       *rune
	Turbo        bool
	// RevealAddress receives the premine.
	RevealAddress string
	FeePayer      signer.Party
	FeeRate       uint64
	// Logo is the inscription body, optional.
	Logo        []byte
	ContentType string
	// Height is the current block height, when set the name must be unlocked at it.
	Height uint64
}

// Validate checks params and returns the rune and its spacers.
func (params Params) Validate() (*runes.Rune, uint32, error) {
	r, spacers, err := runes.ParseSpacedRune(params.Name)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: name %q: %v", ErrInvalidParams, params.Name, err)
	}
	if r.IsReserved() {
		return nil, 0, fmt.Errorf("%w: name %q is reserved", ErrInvalidParams, params.Name)
	}
	if params.Height > 0 && len(r.String()) < runes.MinNameLength(params.Height) {
		return nil, 0, fmt.Errorf("%w: name %q is locked at height %d", ErrInvalidParams, params.Name, params.Height)
	}
	if params.Divisibility > runes.MaxDivisibility {
		return nil, 0, fmt.Errorf("%w: divisibility %d", ErrInvalidParams, params.Divisibility)
	}
	if params.Premine != nil && !numbers.IsUint128(params.Premine) {
		return nil, 0, fmt.Errorf("%w: premine %s", ErrInvalidParams, params.Premine)
	}
	if params.Symbol != nil && !utf8.ValidRune(*params.Symbol) {
		return nil, 0, fmt.Errorf("%w: symbol %U", ErrInvalidParams, *params.Symbol)
	}

	return r, spacers, nil
}

func (params Params) premine() *big.Int {
	if params.Premine == nil {
		return new(big.Int)
	}

	return new(big.Int).Set(params.Premine)
}

// Etching holds signed commit and reveal transactions.
// Commit.Reservation holds the fee payer utxos until the commit is broadcast.
type Etching struct {
	Commit         *txbuilder.Draft
	Reveal         *wire.MsgTx
	Runestone      *runes.Runestone
	Commitment     *utils.TaprootCommitment
	CommitOutpoint bitcoin.Outpoint
	CommitValue    uint64
	RevealFee      uint64
}

// CommitAddress returns address of the taproot commit output.
func (e *Etching) CommitAddress() string {
	return e.Commitment.Address.EncodeAddress()
}

// Etcher builds etching commit and reveal transactions.
type Etcher struct {
	builder *txbuilder.TxBuilder
	signer  Signer
	log     *log.Entry
}

// NewEtcher is a constructor for Etcher.
func NewEtcher(builder *txbuilder.TxBuilder, signer Signer) *Etcher {
	return &Etcher{
		builder: builder,
		signer:  signer,
		log:     log.WithField("component", "etching"),
	}
}

// Etch builds and signs commit and reveal transactions of the etching.
// On any error after the commit utxos were taken they are restored to the pool.
func (e *Etcher) Etch(ctx context.Context, pool *utxopool.Pool, params Params) (*Etching, error) {
	r, spacers, err := params.Validate()
	if err != nil {
		return nil, err
	}

	inscription := &inscriptions.Inscription{
		Body:        params.Logo,
		ContentType: params.ContentType,
		Rune:        r,
	}

	internalKey := e.signer.SchnorrPublicKey()
	leafScript, err := inscription.LeafScript(schnorr.SerializePubKey(internalKey))
	if err != nil {
		return nil, bitcoin.NewConstructionError("leaf script", err)
	}

	commitment, err := utils.NewTaprootCommitment(e.builder.Network(), internalKey, leafScript)
	if err != nil {
		return nil, bitcoin.NewConstructionError("taproot commitment", err)
	}

	runestone, outputs, err := e.revealOutputs(params, r, spacers)
	if err != nil {
		return nil, err
	}

	revealFee, err := estimateRevealFee(newRevealTx(wire.OutPoint{}, outputs), commitment, params.FeeRate)
	if err != nil {
		return nil, err
	}

	commitValue, err := numbers.AddUint64(revealFee, TargetPostage)
	if err != nil {
		return nil, bitcoin.NewConstructionError("commit value", err)
	}

	commit, err := e.builder.BuildCommit(pool, txbuilder.CommitParams{
		FeePayer: params.FeePayer,
		PkScript: commitment.PkScript,
		Value:    commitValue,
		FeeRate:  params.FeeRate,
	})
	if err != nil {
		return nil, err
	}

	etching, err := e.finish(ctx, commit, commitment, runestone, outputs)
	if err != nil {
		commit.Reservation.Restore()
		return nil, err
	}
	etching.CommitValue = commitValue
	etching.RevealFee = revealFee

	e.log.WithFields(log.Fields{
		"rune":   params.Name,
		"commit": etching.CommitOutpoint.TxID.String(),
		"reveal": etching.Reveal.TxHash().String(),
	}).Info("etching built")

	return etching, nil
}

// finish signs the commit, then builds and signs the reveal spending it.
func (e *Etcher) finish(ctx context.Context, commit *txbuilder.Draft, commitment *utils.TaprootCommitment, runestone *runes.Runestone, outputs []*wire.TxOut) (*Etching, error) {
	if err := signer.SignLegacyInputs(ctx, e.signer, commit.Tx, commit.LegacyInputs()); err != nil {
		return nil, err
	}

	// BuildCommit puts the commit output first.
	commitOutpoint := bitcoin.Outpoint{TxID: commit.Tx.TxHash(), Index: 0}
	reveal := newRevealTx(*commitOutpoint.Wire(), outputs)

	for idx, out := range reveal.TxOut {
		if txbuilder.IsDust(out) {
			return nil, bitcoin.NewConstructionError(fmt.Sprintf("reveal output %d of %d sat is dust", idx, out.Value), nil)
		}
	}

	if err := e.signReveal(ctx, reveal, commitment, commit.Tx.TxOut[0]); err != nil {
		return nil, err
	}

	deciphered, err := runes.Decipher(reveal)
	if err != nil {
		return nil, bitcoin.NewConstructionError("reveal runestone", fmt.Errorf("%w: %v", ErrEtchingMismatch, err))
	}
	if !deciphered.Equal(runestone) {
		return nil, bitcoin.NewConstructionError("reveal runestone", ErrEtchingMismatch)
	}

	return &Etching{
		Commit:         commit,
		Reveal:         reveal,
		Runestone:      runestone,
		Commitment:     commitment,
		CommitOutpoint: commitOutpoint,
	}, nil
}

// revealOutputs returns the runestone and reveal outputs: [reveal address postage if premine > 0, runestone].
func (e *Etcher) revealOutputs(params Params, r *runes.Rune, spacers uint32) (*runes.Runestone, []*wire.TxOut, error) {
	var (
		premine      = params.premine()
		divisibility = params.Divisibility
		outputs      []*wire.TxOut
	)

	runestone := &runes.Runestone{
		Etching: &runes.Etching{
			Divisibility: &divisibility,
			Premine:      premine,
			Rune:         r,
			Spacers:      &spacers,
			Symbol:       params.Symbol,
			Turbo:        params.Turbo,
		},
	}

	if numbers.IsPositive(premine) {
		address, err := btcutil.DecodeAddress(params.RevealAddress, e.builder.Network())
		if err != nil || !address.IsForNet(e.builder.Network()) {
			return nil, nil, fmt.Errorf("%w: reveal address %q", ErrInvalidParams, params.RevealAddress)
		}

		pkScript, err := txscript.PayToAddrScript(address)
		if err != nil {
			return nil, nil, bitcoin.NewConstructionError("reveal address", err)
		}

		outputs = append(outputs, wire.NewTxOut(int64(TargetPostage), pkScript))
		pointer := uint32(len(outputs) - 1)
		runestone.Pointer = &pointer
	}

	script, err := runestone.Encipher()
	if err != nil {
		return nil, nil, bitcoin.NewConstructionError("runestone", err)
	}

	return runestone, append(outputs, wire.NewTxOut(0, script)), nil
}
