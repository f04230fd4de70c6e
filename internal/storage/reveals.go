// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package storage

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/submission"
)

// ensures that RevealStore implements submission.RevealStore.
var _ submission.RevealStore = (*RevealStore)(nil)

type revealRecord struct {
	ID            []byte     `cbor:"1,keyasint"`
	Rune          string     `cbor:"2,keyasint"`
	CommitAddress string     `cbor:"3,keyasint"`
	Commit        utxoRecord `cbor:"4,keyasint"`
	RevealTxID    []byte     `cbor:"5,keyasint"`
	Reveal        []byte     `cbor:"6,keyasint"`
	State         string     `cbor:"7,keyasint"`
	Attempts      int        `cbor:"8,keyasint,omitempty"`
	CreatedAt     time.Time  `cbor:"9,keyasint"`
}

// RevealStore keeps pending etching reveals.
type RevealStore struct {
	db *badger.DB
}

// SaveReveal stores the reveal.
func (s *RevealStore) SaveReveal(reveal *submission.PendingReveal) error {
	return put(s.db, revealPrefix+reveal.ID.String(), revealRecord{
		ID:            reveal.ID[:],
		Rune:          reveal.Rune,
		CommitAddress: reveal.CommitAddress,
		Commit:        utxoRecord{TxID: reveal.CommitOutpoint.TxID[:], Index: reveal.CommitOutpoint.Index},
		RevealTxID:    reveal.RevealTxID[:],
		Reveal:        reveal.Reveal,
		State:         reveal.State,
		Attempts:      reveal.Attempts,
		CreatedAt:     reveal.CreatedAt,
	})
}

// DeleteReveal removes the reveal.
func (s *RevealStore) DeleteReveal(id uuid.UUID) error {
	key := revealPrefix + id.String()

	ok, err := exists(s.db, key)
	if err != nil {
		return err
	}
	if !ok {
		return submission.ErrRevealNotFound
	}

	return remove(s.db, key)
}

// Reveals returns all stored reveals.
func (s *RevealStore) Reveals() ([]*submission.PendingReveal, error) {
	var reveals []*submission.PendingReveal
	err := scan(s.db, revealPrefix, func(key string, value []byte) error {
		var record revealRecord
		if err := cbor.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("reveal %s: %w", key, err)
		}

		reveal, err := record.pendingReveal()
		if err != nil {
			return fmt.Errorf("reveal %s: %w", key, err)
		}
		reveals = append(reveals, reveal)

		return nil
	})

	return reveals, err
}

func (r revealRecord) pendingReveal() (*submission.PendingReveal, error) {
	id, err := uuid.FromBytes(r.ID)
	if err != nil {
		return nil, err
	}
	commit, err := r.Commit.utxo()
	if err != nil {
		return nil, err
	}
	revealTxID, err := chainhash.NewHash(r.RevealTxID)
	if err != nil {
		return nil, err
	}

	return &submission.PendingReveal{
		ID:             id,
		Rune:           r.Rune,
		CommitAddress:  r.CommitAddress,
		CommitOutpoint: bitcoin.Outpoint{TxID: commit.TxID, Index: commit.Index},
		RevealTxID:     *revealTxID,
		Reveal:         r.Reveal,
		State:          r.State,
		Attempts:       r.Attempts,
		CreatedAt:      r.CreatedAt,
	}, nil
}
