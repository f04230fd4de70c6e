// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package utxopool

import (
	"sync"
)

// ensures that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps address pools in memory, used in tests and for ephemeral deployments.
type MemoryStore struct {
	mu    sync.Mutex
	pools map[string]*AddressPool
}

// NewMemoryStore is a constructor for MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: make(map[string]*AddressPool)}
}

// Load returns copies of all saved address pools.
func (s *MemoryStore) Load() (map[string]*AddressPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools := make(map[string]*AddressPool, len(s.pools))
	for address, pool := range s.pools {
		pools[address] = pool.Clone()
	}

	return pools, nil
}

// Save replaces saved state of the address, empty pools are dropped.
func (s *MemoryStore) Save(address string, pool *AddressPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pool.IsEmpty() {
		delete(s.pools, address)
		return nil
	}

	s.pools[address] = pool.Clone()

	return nil
}
