// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package submission

import (
	"bytes"
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/chain"
	"github.com/BoostyLabs/runecustody/bitcoin/etching"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/txbuilder"
	"github.com/BoostyLabs/runecustody/internal/metrics"
)

// Submission describes result of the submitted transaction.
type Submission struct {
	ID    uuid.UUID
	Kind  string
	TxID  chainhash.Hash
	State string
}

// EtchingSubmission describes broadcast commit and the scheduled reveal.
type EtchingSubmission struct {
	Commit     *Submission
	RevealID   uuid.UUID
	RevealTxID chainhash.Hash
}

// Submitter signs drafts for real and broadcasts them.
type Submitter struct {
	signer    signer.ECDSASigner
	client    chain.Client
	scheduler *RevealScheduler
	log       *log.Entry
}

// NewSubmitter is a constructor for Submitter, scheduler is required for etchings only.
func NewSubmitter(signer signer.ECDSASigner, client chain.Client, scheduler *RevealScheduler) *Submitter {
	return &Submitter{
		signer:    signer,
		client:    client,
		scheduler: scheduler,
		log:       log.WithField("component", "submission"),
	}
}

// Submit signs every input of the draft with the key of its owner and broadcasts it.
// The draft utxos are committed on success and restored to the pool on any failure.
func (s *Submitter) Submit(ctx context.Context, draft *txbuilder.Draft) (*Submission, error) {
	machine := newTxMachine()

	if err := signer.SignLegacyInputs(ctx, s.signer, draft.Tx, draft.LegacyInputs()); err != nil {
		return nil, s.fail(ctx, machine, draft, err)
	}
	if err := machine.Event(ctx, EventSign); err != nil {
		return nil, s.fail(ctx, machine, draft, err)
	}

	return s.broadcast(ctx, machine, draft)
}

// SubmitEtching broadcasts the signed commit and schedules the reveal.
// The commit utxos are restored to the pool if the commit broadcast fails.
func (s *Submitter) SubmitEtching(ctx context.Context, etched *etching.Etching, runeName string) (*EtchingSubmission, error) {
	machine := newTxMachine()
	// commit is signed by the etcher.
	if err := machine.Event(ctx, EventSign); err != nil {
		return nil, s.fail(ctx, machine, etched.Commit, err)
	}

	commit, err := s.broadcast(ctx, machine, etched.Commit)
	if err != nil {
		return nil, err
	}

	raw := bytes.NewBuffer(make([]byte, 0, etched.Reveal.SerializeSize()))
	if err = etched.Reveal.Serialize(raw); err != nil {
		return nil, bitcoin.NewConstructionError("reveal serialization", err)
	}

	pending := &PendingReveal{
		ID:             uuid.New(),
		Rune:           runeName,
		CommitAddress:  etched.CommitAddress(),
		CommitOutpoint: etched.CommitOutpoint,
		RevealTxID:     etched.Reveal.TxHash(),
		Reveal:         raw.Bytes(),
		State:          StateCommitBroadcast,
		CreatedAt:      time.Now().UTC(),
	}
	if err = s.scheduler.Schedule(ctx, pending); err != nil {
		return nil, err
	}

	return &EtchingSubmission{Commit: commit, RevealID: pending.ID, RevealTxID: pending.RevealTxID}, nil
}

// broadcast relays signed draft.
func (s *Submitter) broadcast(ctx context.Context, machine *fsm.FSM, draft *txbuilder.Draft) (*Submission, error) {
	raw, err := draft.Serialize()
	if err != nil {
		return nil, s.fail(ctx, machine, draft, bitcoin.NewConstructionError("serialization", err))
	}

	txID := draft.Tx.TxHash()
	if err = s.client.SendTransaction(ctx, raw); err != nil {
		metrics.Broadcasts.WithLabelValues(draft.Kind, "failure").Inc()
		return nil, s.fail(ctx, machine, draft, &bitcoin.BroadcastError{TxID: txID.String(), Err: err})
	}
	metrics.Broadcasts.WithLabelValues(draft.Kind, "success").Inc()

	if err = machine.Event(ctx, EventBroadcast); err != nil {
		return nil, err
	}
	draft.Reservation.Commit()
	if err = machine.Event(ctx, EventAccept); err != nil {
		return nil, err
	}

	s.log.WithFields(log.Fields{"kind": draft.Kind, "txid": txID.String(), "fee": draft.Fee}).Info("transaction broadcast")

	return &Submission{ID: uuid.New(), Kind: draft.Kind, TxID: txID, State: machine.Current()}, nil
}

// fail restores the draft utxos and moves machine to failed state.
func (s *Submitter) fail(ctx context.Context, machine *fsm.FSM, draft *txbuilder.Draft, err error) error {
	draft.Reservation.Restore()

	if eventErr := machine.Event(ctx, EventFail); eventErr != nil {
		s.log.WithError(eventErr).Error("could not fail submission")
	}

	s.log.WithError(err).WithFields(log.Fields{"kind": draft.Kind, "state": machine.Current()}).Warn("submission failed")

	return err
}
