// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package utxopool keeps spendable outputs of the custody addresses and hands them out smallest first.
package utxopool

import (
	"math/big"
	"slices"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
)

// AddressPool is the custody state of a single address.
// An outpoint is a member of exactly one set at a time.
type AddressPool struct {
	Bitcoin []bitcoin.UTXO
	Runes   map[runes.RuneID][]bitcoin.RuneUTXO
}

// NewAddressPool is a constructor for AddressPool.
func NewAddressPool() *AddressPool {
	return &AddressPool{Runes: make(map[runes.RuneID][]bitcoin.RuneUTXO)}
}

// Clone returns deep copy of the address pool.
func (ap *AddressPool) Clone() *AddressPool {
	clone := &AddressPool{
		Bitcoin: slices.Clone(ap.Bitcoin),
		Runes:   make(map[runes.RuneID][]bitcoin.RuneUTXO, len(ap.Runes)),
	}
	for id, utxos := range ap.Runes {
		cloned := make([]bitcoin.RuneUTXO, len(utxos))
		for i, utxo := range utxos {
			cloned[i] = utxo
			cloned[i].Balance = new(big.Int).Set(utxo.Balance)
		}

		clone.Runes[id] = cloned
	}

	return clone
}

// IsEmpty reports whether the address holds nothing.
func (ap *AddressPool) IsEmpty() bool {
	return len(ap.Bitcoin) == 0 && len(ap.Runes) == 0
}

func (ap *AddressPool) hasBitcoin(outpoint bitcoin.Outpoint) bool {
	return slices.ContainsFunc(ap.Bitcoin, func(u bitcoin.UTXO) bool { return u.Outpoint == outpoint })
}

func (ap *AddressPool) hasRune(outpoint bitcoin.Outpoint) bool {
	for _, utxos := range ap.Runes {
		if slices.ContainsFunc(utxos, func(u bitcoin.RuneUTXO) bool { return u.Outpoint == outpoint }) {
			return true
		}
	}

	return false
}

// insertBitcoin keeps the set sorted by value, then by outpoint.
func (ap *AddressPool) insertBitcoin(utxo bitcoin.UTXO) {
	idx := sort.Search(len(ap.Bitcoin), func(i int) bool { return lessBitcoin(utxo, ap.Bitcoin[i]) })
	ap.Bitcoin = slices.Insert(ap.Bitcoin, idx, utxo)
}

// insertRune keeps the set sorted by balance, then by outpoint.
func (ap *AddressPool) insertRune(utxo bitcoin.RuneUTXO) {
	set := ap.Runes[utxo.RuneID]
	idx := sort.Search(len(set), func(i int) bool { return lessRune(utxo, set[i]) })
	ap.Runes[utxo.RuneID] = slices.Insert(set, idx, utxo)
}

func lessBitcoin(a, b bitcoin.UTXO) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}

	return a.Outpoint.Cmp(b.Outpoint) < 0
}

func lessRune(a, b bitcoin.RuneUTXO) bool {
	if c := a.Balance.Cmp(b.Balance); c != 0 {
		return c < 0
	}

	return a.Outpoint.Cmp(b.Outpoint) < 0
}

// Store persists address pools between restarts.
type Store interface {
	// Load returns all saved address pools.
	Load() (map[string]*AddressPool, error)
	// Save replaces saved state of the address.
	Save(address string, pool *AddressPool) error
}

// hold describes why an outpoint is out of the pool.
type hold int

const (
	// holdReserved marks outpoint taken by an in-flight call.
	holdReserved hold = iota + 1
	// holdSpent marks outpoint spent by a broadcast transaction, the chain may still report it.
	holdSpent
)

// Pool holds custody state of all addresses.
// Every extraction happens inside one critical section, so concurrent callers never get the same outpoint.
// Taken outpoints stay held until restored, so recording them again from the chain is a no-op.
type Pool struct {
	mu    sync.Mutex
	pools map[string]*AddressPool
	held  map[string]map[bitcoin.Outpoint]hold
	store Store
	log   *log.Entry
}

// New loads saved state from store and returns Pool.
func New(store Store) (*Pool, error) {
	pools, err := store.Load()
	if err != nil {
		return nil, err
	}
	if pools == nil {
		pools = make(map[string]*AddressPool)
	}

	return &Pool{
		pools: pools,
		held:  make(map[string]map[bitcoin.Outpoint]hold),
		store: store,
		log:   log.WithField("component", "utxopool"),
	}, nil
}

// Record merges bitcoin utxos into the address pool, returns how many were added.
// Outpoints already known to the address in any set, or held, are skipped.
func (p *Pool) Record(address string, utxos ...bitcoin.UTXO) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap := p.addressPool(address)
	added := 0
	for _, utxo := range utxos {
		if utxo.Value == 0 || p.isHeld(address, utxo.Outpoint) || ap.hasBitcoin(utxo.Outpoint) || ap.hasRune(utxo.Outpoint) {
			continue
		}

		ap.insertBitcoin(utxo)
		added++
	}

	if added > 0 {
		p.save(address, ap)
	}

	return added
}

// RecordRunes merges rune utxos into the address pool, returns how many were added.
// An outpoint recorded as bitcoin before is moved to the rune set.
func (p *Pool) RecordRunes(address string, utxos ...bitcoin.RuneUTXO) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap := p.addressPool(address)
	added := 0
	for _, utxo := range utxos {
		if utxo.Balance == nil || utxo.Balance.Sign() <= 0 || p.isHeld(address, utxo.Outpoint) || ap.hasRune(utxo.Outpoint) {
			continue
		}

		ap.Bitcoin = slices.DeleteFunc(ap.Bitcoin, func(u bitcoin.UTXO) bool { return u.Outpoint == utxo.Outpoint })
		utxo.Balance = new(big.Int).Set(utxo.Balance)
		ap.insertRune(utxo)
		added++
	}

	if added > 0 {
		p.save(address, ap)
	}

	return added
}

// TakeSmallestBitcoin removes and returns the smallest bitcoin utxo of the address.
func (p *Pool) TakeSmallestBitcoin(address string) (bitcoin.UTXO, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap, ok := p.pools[address]
	if !ok || len(ap.Bitcoin) == 0 {
		return bitcoin.UTXO{}, false
	}

	utxo := ap.Bitcoin[0]
	ap.Bitcoin = slices.Delete(ap.Bitcoin, 0, 1)
	p.hold(address, utxo.Outpoint, holdReserved)
	p.save(address, ap)

	return utxo, true
}

// TakeSmallestRune removes and returns the utxo with the smallest balance of the rune.
func (p *Pool) TakeSmallestRune(address string, id runes.RuneID) (bitcoin.RuneUTXO, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap, ok := p.pools[address]
	if !ok || len(ap.Runes[id]) == 0 {
		return bitcoin.RuneUTXO{}, false
	}

	utxo := ap.Runes[id][0]
	ap.Runes[id] = slices.Delete(ap.Runes[id], 0, 1)
	if len(ap.Runes[id]) == 0 {
		delete(ap.Runes, id)
	}
	p.hold(address, utxo.Outpoint, holdReserved)
	p.save(address, ap)

	return utxo, true
}

// RemoveBitcoin forgets spent bitcoin utxo.
func (p *Pool) RemoveBitcoin(address string, outpoint bitcoin.Outpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap, ok := p.pools[address]
	if !ok || !ap.hasBitcoin(outpoint) {
		return false
	}

	ap.Bitcoin = slices.DeleteFunc(ap.Bitcoin, func(u bitcoin.UTXO) bool { return u.Outpoint == outpoint })
	p.hold(address, outpoint, holdSpent)
	p.save(address, ap)

	return true
}

// MarkSpent holds outpoints spent outside of the pool, the following records skip them.
func (p *Pool) MarkSpent(address string, outpoints ...bitcoin.Outpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, outpoint := range outpoints {
		p.hold(address, outpoint, holdSpent)
	}
}

// IsHeld reports whether the outpoint is taken by an in-flight call or spent.
func (p *Pool) IsHeld(address string, outpoint bitcoin.Outpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.isHeld(address, outpoint)
}

// ForgetSpent drops spent outpoints of the address which are not in seen, returns how many were dropped.
// Reserved outpoints are kept until their reservation is done.
func (p *Pool) ForgetSpent(address string, seen map[bitcoin.Outpoint]struct{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	forgotten := 0
	for outpoint, reason := range p.held[address] {
		if _, ok := seen[outpoint]; reason == holdSpent && !ok {
			delete(p.held[address], outpoint)
			forgotten++
		}
	}
	if len(p.held[address]) == 0 {
		delete(p.held, address)
	}

	return forgotten
}

// Balance returns sum of bitcoin utxos values of the address.
func (p *Pool) Balance(address string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total uint64
	if ap, ok := p.pools[address]; ok {
		for _, utxo := range ap.Bitcoin {
			total += utxo.Value
		}
	}

	return total
}

// RuneBalance returns sum of the rune balances of the address.
func (p *Pool) RuneBalance(address string, id runes.RuneID) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := new(big.Int)
	if ap, ok := p.pools[address]; ok {
		for _, utxo := range ap.Runes[id] {
			total.Add(total, utxo.Balance)
		}
	}

	return total
}

// RuneBalances returns balances of all runes held by the address.
func (p *Pool) RuneBalances(address string) map[runes.RuneID]*big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()

	balances := make(map[runes.RuneID]*big.Int)
	if ap, ok := p.pools[address]; ok {
		for id, utxos := range ap.Runes {
			total := new(big.Int)
			for _, utxo := range utxos {
				total.Add(total, utxo.Balance)
			}

			balances[id] = total
		}
	}

	return balances
}

// Contains reports whether the outpoint is held by the address in any set.
func (p *Pool) Contains(address string, outpoint bitcoin.Outpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap, ok := p.pools[address]

	return ok && (ap.hasBitcoin(outpoint) || ap.hasRune(outpoint))
}

// IsRecordedAsRune reports whether the outpoint is held by the address as rune-bearing.
func (p *Pool) IsRecordedAsRune(address string, outpoint bitcoin.Outpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap, ok := p.pools[address]

	return ok && ap.hasRune(outpoint)
}

// Addresses returns sorted list of addresses with custody state.
func (p *Pool) Addresses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	addresses := make([]string, 0, len(p.pools))
	for address := range p.pools {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	return addresses
}

// Snapshot returns deep copy of the address pool.
func (p *Pool) Snapshot(address string) *AddressPool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap, ok := p.pools[address]
	if !ok {
		return NewAddressPool()
	}

	return ap.Clone()
}

// Reserve returns new reservation token bound to the pool.
func (p *Pool) Reserve() *Reservation {
	return &Reservation{pool: p}
}

func (p *Pool) addressPool(address string) *AddressPool {
	ap, ok := p.pools[address]
	if !ok {
		ap = NewAddressPool()
		p.pools[address] = ap
	}

	return ap
}

func (p *Pool) hold(address string, outpoint bitcoin.Outpoint, reason hold) {
	set, ok := p.held[address]
	if !ok {
		set = make(map[bitcoin.Outpoint]hold)
		p.held[address] = set
	}
	set[outpoint] = reason
}

func (p *Pool) unhold(address string, outpoint bitcoin.Outpoint) {
	delete(p.held[address], outpoint)
	if len(p.held[address]) == 0 {
		delete(p.held, address)
	}
}

func (p *Pool) isHeld(address string, outpoint bitcoin.Outpoint) bool {
	_, ok := p.held[address][outpoint]

	return ok
}

// spend moves reserved outpoints to spent ones.
func (p *Pool) spend(bitcoinUTXOs map[string][]bitcoin.UTXO, runeUTXOs map[string][]bitcoin.RuneUTXO) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for address, utxos := range bitcoinUTXOs {
		for _, utxo := range utxos {
			p.hold(address, utxo.Outpoint, holdSpent)
		}
	}
	for address, utxos := range runeUTXOs {
		for _, utxo := range utxos {
			p.hold(address, utxo.Outpoint, holdSpent)
		}
	}
}

// save writes through to the store, in-memory state stays authoritative on failure.
func (p *Pool) save(address string, ap *AddressPool) {
	if err := p.store.Save(address, ap.Clone()); err != nil {
		p.log.WithError(err).WithField("address", address).Warn("failed to persist address pool")
	}
}

// restore returns utxos taken before, skipping those recorded again meanwhile.
func (p *Pool) restore(bitcoinUTXOs map[string][]bitcoin.UTXO, runeUTXOs map[string][]bitcoin.RuneUTXO) {
	p.mu.Lock()
	defer p.mu.Unlock()

	touched := make(map[string]struct{})
	for address, utxos := range bitcoinUTXOs {
		ap := p.addressPool(address)
		for _, utxo := range utxos {
			p.unhold(address, utxo.Outpoint)
			if !ap.hasBitcoin(utxo.Outpoint) && !ap.hasRune(utxo.Outpoint) {
				ap.insertBitcoin(utxo)
			}
		}
		touched[address] = struct{}{}
	}

	for address, utxos := range runeUTXOs {
		ap := p.addressPool(address)
		for _, utxo := range utxos {
			p.unhold(address, utxo.Outpoint)
			if !ap.hasRune(utxo.Outpoint) {
				ap.Bitcoin = slices.DeleteFunc(ap.Bitcoin, func(u bitcoin.UTXO) bool { return u.Outpoint == utxo.Outpoint })
				ap.insertRune(utxo)
			}
		}
		touched[address] = struct{}{}
	}

	for address := range touched {
		p.save(address, p.pools[address])
	}
}
