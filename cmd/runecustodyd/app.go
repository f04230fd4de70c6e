// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin/chain"
	"github.com/BoostyLabs/runecustody/bitcoin/custody"
	"github.com/BoostyLabs/runecustody/bitcoin/ingest"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/submission"
	"github.com/BoostyLabs/runecustody/bitcoin/txbuilder"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
	"github.com/BoostyLabs/runecustody/internal/config"
	"github.com/BoostyLabs/runecustody/internal/storage"
)

const esploraTimeout = 30 * time.Second

// app holds wired components of the daemon.
type app struct {
	cfg       *config.Config
	db        *storage.DB
	scheduler *submission.RevealScheduler
	service   *custody.Service
}

// newApp loads configuration and wires components.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.InitLogger()

	dir := cfg.DbDir
	if cfg.DbType == "inmemory" {
		dir = ""
	}
	db, err := storage.Open(dir)
	if err != nil {
		return nil, err
	}

	pool, err := utxopool.New(db.Pools())
	if err != nil {
		return nil, closeOnError(db, err)
	}

	oracle, err := signer.NewLocalOracleFromSeed([]byte(cfg.OracleSeed))
	if err != nil {
		return nil, closeOnError(db, err)
	}

	gateway, err := signer.NewGateway(ctx, oracle, signer.GatewayConfig{
		ECDSAKeyID:   cfg.ECDSAKeyID,
		SchnorrKeyID: cfg.SchnorrKeyID,
		Network:      cfg.NetworkParams(),
	})
	if err != nil {
		return nil, closeOnError(db, err)
	}

	client := chain.NewEsplora(cfg.EsploraURL, &http.Client{Timeout: esploraTimeout})
	scheduler := submission.NewRevealScheduler(client, db.Reveals(), cfg.RevealInterval)
	builder := txbuilder.NewTxBuilder(cfg.NetworkParams()).WithMaxRounds(cfg.MaxRounds)

	service := custody.NewService(
		custody.Config{Postage: cfg.Postage, SyncBeforeBuild: cfg.SyncBeforeBuild},
		gateway,
		pool,
		builder,
		submission.NewSubmitter(gateway, client, scheduler),
		client,
		ingest.NewSyncer(pool, client, nil),
	)

	return &app{
		cfg:       cfg,
		db:        db,
		scheduler: scheduler,
		service:   service,
	}, nil
}

// Close stops the scheduler and closes the database.
func (a *app) Close() {
	a.scheduler.Stop()
	if err := a.db.Close(); err != nil {
		log.WithError(err).Error("could not close database")
	}
}

func closeOnError(db *storage.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		log.WithError(closeErr).Error("could not close database")
	}

	return err
}
