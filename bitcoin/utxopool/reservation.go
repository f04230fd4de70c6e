// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package utxopool

import (
	"sync"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
)

// Reservation remembers utxos taken from the pool by one call, so they can be returned on error
// or forgotten once the spending transaction is broadcast.
type Reservation struct {
	pool *Pool

	mu      sync.Mutex
	bitcoin map[string][]bitcoin.UTXO
	runes   map[string][]bitcoin.RuneUTXO
}

// TakeSmallestBitcoin takes the smallest bitcoin utxo of the address and remembers it.
func (r *Reservation) TakeSmallestBitcoin(address string) (bitcoin.UTXO, bool) {
	utxo, ok := r.pool.TakeSmallestBitcoin(address)
	if !ok {
		return utxo, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bitcoin == nil {
		r.bitcoin = make(map[string][]bitcoin.UTXO)
	}
	r.bitcoin[address] = append(r.bitcoin[address], utxo)

	return utxo, true
}

// TakeSmallestRune takes the utxo with the smallest balance of the rune and remembers it.
func (r *Reservation) TakeSmallestRune(address string, id runes.RuneID) (bitcoin.RuneUTXO, bool) {
	utxo, ok := r.pool.TakeSmallestRune(address, id)
	if !ok {
		return utxo, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runes == nil {
		r.runes = make(map[string][]bitcoin.RuneUTXO)
	}
	r.runes[address] = append(r.runes[address], utxo)

	return utxo, true
}

// Restore returns every remembered utxo to the pool. Calling it again does nothing.
func (r *Reservation) Restore() {
	bitcoinUTXOs, runeUTXOs := r.release()
	if len(bitcoinUTXOs) == 0 && len(runeUTXOs) == 0 {
		return
	}

	r.pool.restore(bitcoinUTXOs, runeUTXOs)
}

// Commit forgets remembered utxos, they stay out of the pool as spent.
func (r *Reservation) Commit() {
	bitcoinUTXOs, runeUTXOs := r.release()
	if len(bitcoinUTXOs) == 0 && len(runeUTXOs) == 0 {
		return
	}

	r.pool.spend(bitcoinUTXOs, runeUTXOs)
}

// Merge moves remembered utxos of other into r.
func (r *Reservation) Merge(other *Reservation) {
	if other == nil || other == r {
		return
	}

	bitcoinUTXOs, runeUTXOs := other.release()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bitcoin == nil {
		r.bitcoin = make(map[string][]bitcoin.UTXO)
	}
	for address, utxos := range bitcoinUTXOs {
		r.bitcoin[address] = append(r.bitcoin[address], utxos...)
	}

	if r.runes == nil {
		r.runes = make(map[string][]bitcoin.RuneUTXO)
	}
	for address, utxos := range runeUTXOs {
		r.runes[address] = append(r.runes[address], utxos...)
	}
}

// Len returns count of remembered utxos.
func (r *Reservation) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, utxos := range r.bitcoin {
		count += len(utxos)
	}
	for _, utxos := range r.runes {
		count += len(utxos)
	}

	return count
}

func (r *Reservation) release() (map[string][]bitcoin.UTXO, map[string][]bitcoin.RuneUTXO) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bitcoinUTXOs, runeUTXOs := r.bitcoin, r.runes
	r.bitcoin, r.runes = nil, nil

	return bitcoinUTXOs, runeUTXOs
}
