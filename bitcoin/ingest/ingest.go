// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package ingest records chain utxos of custody addresses into the pool.
package ingest

import (
	"context"
	"math/big"

	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/chain"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/metrics"
)

// RuneBalance describes rune amount held by an output.
type RuneBalance struct {
	RuneID runes.RuneID
	Amount *big.Int
}

// RuneClassifier resolves rune balances of outputs, result[i] describes outpoints[i]
// and is empty for outputs without runes.
type RuneClassifier interface {
	RuneBalances(ctx context.Context, outpoints []bitcoin.Outpoint) ([][]RuneBalance, error)
}

// Target defines when paging stops: the address holds at least Amount of the rune,
// or at least Bitcoin satoshi when Rune is nil.
type Target struct {
	Rune    *runes.RuneID
	Amount  *big.Int
	Bitcoin uint64
}

// BitcoinTarget returns target of bitcoin balance.
func BitcoinTarget(amount uint64) Target {
	return Target{Bitcoin: amount}
}

// RuneTarget returns target of rune balance.
func RuneTarget(id runes.RuneID, amount *big.Int) Target {
	return Target{Rune: &id, Amount: amount}
}

// Syncer pages chain utxos of the address into the pool.
type Syncer struct {
	pool       *utxopool.Pool
	client     chain.Client
	classifier RuneClassifier
	log        *log.Entry
}

// NewSyncer is a constructor for Syncer, classifier is optional.
func NewSyncer(pool *utxopool.Pool, client chain.Client, classifier RuneClassifier) *Syncer {
	return &Syncer{
		pool:       pool,
		client:     client,
		classifier: classifier,
		log:        log.WithField("component", "ingest"),
	}
}

// MarkSpent excludes outpoints of the address from the following syncs until the chain stops reporting them.
// Inputs of transactions broadcast through the pool reservations are excluded already.
func (s *Syncer) MarkSpent(address string, outpoints ...bitcoin.Outpoint) {
	s.pool.MarkSpent(address, outpoints...)
}

// Result describes single sync.
type Result struct {
	Bitcoin int // recorded bitcoin utxos.
	Runes   int // recorded rune utxos.
	Pages   int
}

// Sync records utxos of the address page by page until the target is reached or pages are over.
// Outputs already recorded as rune-bearing are not classified again, outputs held by in-flight
// reservations or spent are skipped.
func (s *Syncer) Sync(ctx context.Context, address string, target Target) (Result, error) {
	var (
		result Result
		page   string
		seen   = make(map[bitcoin.Outpoint]struct{})
	)
	for {
		utxos, err := s.client.UTXOs(ctx, address, page)
		if err != nil {
			return result, err
		}
		result.Pages++

		fresh := make([]bitcoin.UTXO, 0, len(utxos.UTXOs))
		for _, utxo := range utxos.UTXOs {
			seen[utxo.Outpoint] = struct{}{}
			if s.pool.IsHeld(address, utxo.Outpoint) || s.pool.IsRecordedAsRune(address, utxo.Outpoint) {
				continue
			}
			fresh = append(fresh, utxo)
		}

		bitcoinUTXOs, runeUTXOs := s.classify(ctx, fresh)
		result.Runes += s.pool.RecordRunes(address, runeUTXOs...)
		result.Bitcoin += s.pool.Record(address, bitcoinUTXOs...)

		if utxos.NextPage == "" {
			s.pool.ForgetSpent(address, seen)
			break
		}
		if s.reached(address, target) {
			break
		}
		page = utxos.NextPage
	}

	metrics.IngestedUTXOs.WithLabelValues("bitcoin").Add(float64(result.Bitcoin))
	metrics.IngestedUTXOs.WithLabelValues("rune").Add(float64(result.Runes))

	s.log.WithFields(log.Fields{
		"address": address,
		"bitcoin": result.Bitcoin,
		"runes":   result.Runes,
		"pages":   result.Pages,
	}).Debug("address synced")

	return result, nil
}

// classify splits utxos by rune balances, everything is bitcoin without classifier or on its failure.
// Only the first rune of an output is recorded.
func (s *Syncer) classify(ctx context.Context, utxos []bitcoin.UTXO) ([]bitcoin.UTXO, []bitcoin.RuneUTXO) {
	if s.classifier == nil || len(utxos) == 0 {
		return utxos, nil
	}

	outpoints := make([]bitcoin.Outpoint, len(utxos))
	for i, utxo := range utxos {
		outpoints[i] = utxo.Outpoint
	}

	balances, err := s.classifier.RuneBalances(ctx, outpoints)
	if err != nil || len(balances) != len(utxos) {
		s.log.WithError(err).Warn("could not fetch rune balances, recording everything as bitcoin")
		return utxos, nil
	}

	var (
		bitcoinUTXOs []bitcoin.UTXO
		runeUTXOs    []bitcoin.RuneUTXO
	)
	for i, utxo := range utxos {
		if len(balances[i]) == 0 {
			bitcoinUTXOs = append(bitcoinUTXOs, utxo)
			continue
		}

		runeUTXOs = append(runeUTXOs, bitcoin.RuneUTXO{UTXO: utxo, RuneID: balances[i][0].RuneID, Balance: balances[i][0].Amount})
	}

	return bitcoinUTXOs, runeUTXOs
}

func (s *Syncer) reached(address string, target Target) bool {
	if target.Rune == nil {
		return s.pool.Balance(address) >= target.Bitcoin
	}
	if target.Amount == nil {
		return true
	}

	return s.pool.RuneBalance(address, *target.Rune).Cmp(target.Amount) >= 0
}
