// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
)

func main() {
	app := &cli.App{
		Name:    "runecustodyd",
		Usage:   "custody of bitcoin and runes behind a threshold signer",
		Version: version + " (" + commit + ")",
		Commands: []*cli.Command{
			serveCmd,
			addressCmd,
			balanceCmd,
			sendCmd,
			sendRunesCmd,
			sendCombinedCmd,
			etchCmd,
			holdingsCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
