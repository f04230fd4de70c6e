// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package storage

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
)

// ensures that PoolStore implements utxopool.Store.
var _ utxopool.Store = (*PoolStore)(nil)

type utxoRecord struct {
	TxID   []byte `cbor:"1,keyasint"`
	Index  uint32 `cbor:"2,keyasint"`
	Value  uint64 `cbor:"3,keyasint"`
	Height uint32 `cbor:"4,keyasint,omitempty"`
}

type runeUTXORecord struct {
	UTXO    utxoRecord `cbor:"1,keyasint"`
	Balance []byte     `cbor:"2,keyasint"` // big-endian.
}

// addressPoolRecord keys runes by "block:tx" rune id.
type addressPoolRecord struct {
	Bitcoin []utxoRecord                `cbor:"1,keyasint,omitempty"`
	Runes   map[string][]runeUTXORecord `cbor:"2,keyasint,omitempty"`
}

// PoolStore keeps address pools.
type PoolStore struct {
	db *badger.DB
}

// Save replaces stored pool of the address, empty pool is deleted.
func (s *PoolStore) Save(address string, pool *utxopool.AddressPool) error {
	key := poolPrefix + address
	if pool.IsEmpty() {
		ok, err := exists(s.db, key)
		if err != nil || !ok {
			return err
		}

		return remove(s.db, key)
	}

	return put(s.db, key, newAddressPoolRecord(pool))
}

// Load returns all stored pools.
func (s *PoolStore) Load() (map[string]*utxopool.AddressPool, error) {
	pools := make(map[string]*utxopool.AddressPool)
	err := scan(s.db, poolPrefix, func(address string, value []byte) error {
		var record addressPoolRecord
		if err := cbor.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("pool of %s: %w", address, err)
		}

		pool, err := record.addressPool()
		if err != nil {
			return fmt.Errorf("pool of %s: %w", address, err)
		}
		pools[address] = pool

		return nil
	})

	return pools, err
}

func newUTXORecord(utxo bitcoin.UTXO) utxoRecord {
	return utxoRecord{TxID: utxo.TxID[:], Index: utxo.Index, Value: utxo.Value, Height: utxo.Height}
}

func (r utxoRecord) utxo() (bitcoin.UTXO, error) {
	txID, err := chainhash.NewHash(r.TxID)
	if err != nil {
		return bitcoin.UTXO{}, err
	}

	return bitcoin.UTXO{Outpoint: bitcoin.Outpoint{TxID: *txID, Index: r.Index}, Value: r.Value, Height: r.Height}, nil
}

func newAddressPoolRecord(pool *utxopool.AddressPool) addressPoolRecord {
	record := addressPoolRecord{
		Bitcoin: make([]utxoRecord, 0, len(pool.Bitcoin)),
		Runes:   make(map[string][]runeUTXORecord, len(pool.Runes)),
	}
	for _, utxo := range pool.Bitcoin {
		record.Bitcoin = append(record.Bitcoin, newUTXORecord(utxo))
	}
	for id, utxos := range pool.Runes {
		records := make([]runeUTXORecord, 0, len(utxos))
		for _, utxo := range utxos {
			records = append(records, runeUTXORecord{UTXO: newUTXORecord(utxo.UTXO), Balance: utxo.Balance.Bytes()})
		}
		record.Runes[id.String()] = records
	}

	return record
}

func (r addressPoolRecord) addressPool() (*utxopool.AddressPool, error) {
	pool := utxopool.NewAddressPool()
	for _, record := range r.Bitcoin {
		utxo, err := record.utxo()
		if err != nil {
			return nil, err
		}
		pool.Bitcoin = append(pool.Bitcoin, utxo)
	}

	for rawID, records := range r.Runes {
		id, err := runes.NewRuneIDFromString(rawID)
		if err != nil {
			return nil, err
		}

		for _, record := range records {
			utxo, err := record.UTXO.utxo()
			if err != nil {
				return nil, err
			}
			pool.Runes[id] = append(pool.Runes[id], bitcoin.RuneUTXO{
				UTXO:    utxo,
				RuneID:  id,
				Balance: new(big.Int).SetBytes(record.Balance),
			})
		}
	}

	return pool, nil
}
