// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package storage persists custody state in badger with cbor encoded values.
package storage

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"
)

const (
	poolPrefix   = "pool/"
	revealPrefix = "reveal/"
)

// encMode keeps sub-second precision of timestamps.
var encMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}

	return mode
}

// DB is a badger database of custody state.
type DB struct {
	db *badger.DB
}

// Open opens database in dir, empty dir opens in-memory database.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(log.WithField("component", "badger")).
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.db.Close()
}

// Pools returns utxo pool store.
func (db *DB) Pools() *PoolStore {
	return &PoolStore{db: db.db}
}

// Reveals returns pending reveals store.
func (db *DB) Reveals() *RevealStore {
	return &RevealStore{db: db.db}
}

func put(db *badger.DB, key string, value any) error {
	data, err := encMode.Marshal(value)
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func remove(db *badger.DB, key string) error {
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// exists reports whether the key is stored.
func exists(db *badger.DB, key string) (bool, error) {
	err := db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}

	return err == nil, err
}

// scan decodes every value under the prefix.
func scan(db *badger.DB, prefix string, decode func(key string, value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			if err := item.Value(func(value []byte) error {
				return decode(key, value)
			}); err != nil {
				return err
			}
		}

		return nil
	})
}
