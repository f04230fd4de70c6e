// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package submission

import (
	"errors"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/BoostyLabs/runecustody/bitcoin"
)

// ErrRevealNotFound defines that pending reveal does not exist.
var ErrRevealNotFound = errors.New("pending reveal not found")

// PendingReveal is a signed reveal waiting for the commit confirmations.
type PendingReveal struct {
	ID             uuid.UUID
	Rune           string
	CommitAddress  string
	CommitOutpoint bitcoin.Outpoint
	RevealTxID     chainhash.Hash
	Reveal         []byte // serialized signed reveal.
	State          string
	Attempts       int
	CreatedAt      time.Time
}

// RevealStore persists pending reveals between restarts.
type RevealStore interface {
	SaveReveal(reveal *PendingReveal) error
	DeleteReveal(id uuid.UUID) error
	Reveals() ([]*PendingReveal, error)
}

// ensures that MemoryRevealStore implements RevealStore.
var _ RevealStore = (*MemoryRevealStore)(nil)

// MemoryRevealStore keeps pending reveals in memory.
type MemoryRevealStore struct {
	mu      sync.Mutex
	reveals map[uuid.UUID]PendingReveal
}

// NewMemoryRevealStore is a constructor for MemoryRevealStore.
func NewMemoryRevealStore() *MemoryRevealStore {
	return &MemoryRevealStore{reveals: make(map[uuid.UUID]PendingReveal)}
}

// SaveReveal stores copy of the reveal.
func (s *MemoryRevealStore) SaveReveal(reveal *PendingReveal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reveals[reveal.ID] = *reveal

	return nil
}

// DeleteReveal removes the reveal.
func (s *MemoryRevealStore) DeleteReveal(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reveals[id]; !ok {
		return ErrRevealNotFound
	}
	delete(s.reveals, id)

	return nil
}

// Reveals returns copies of all stored reveals.
func (s *MemoryRevealStore) Reveals() ([]*PendingReveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reveals := make([]*PendingReveal, 0, len(s.reveals))
	for _, reveal := range s.reveals {
		reveal := reveal
		reveals = append(reveals, &reveal)
	}

	return reveals, nil
}
