// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"regexp"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/BoostyLabs/runecustody/bitcoin/signer"
)

const (
	esploraURL  = "https://esplora.test/api"
	oracleSeed  = "runecustodyd test seed"
	fundingTxID = "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16"
)

func runCommand(args ...string) error {
	app := &cli.App{
		Name:     "runecustodyd",
		Commands: []*cli.Command{sendCmd, holdingsCmd},
	}

	return app.Run(append([]string{"runecustodyd"}, args...))
}

func setupEnv(t *testing.T) {
	t.Setenv("RUNECUSTODY_DATADIR", t.TempDir())
	t.Setenv("RUNECUSTODY_ORACLE_SEED", oracleSeed)
	t.Setenv("RUNECUSTODY_ESPLORA_URL", esploraURL)
	t.Setenv("RUNECUSTODY_NETWORK", "regtest")
}

func accountAddress(t *testing.T, owner string) string {
	oracle, err := signer.NewLocalOracleFromSeed([]byte(oracleSeed))
	require.NoError(t, err)

	gateway, err := signer.NewGateway(context.Background(), oracle, signer.GatewayConfig{Network: &chaincfg.RegressionNetParams})
	require.NoError(t, err)

	address, err := gateway.Address(signer.Account{Owner: []byte(owner)})
	require.NoError(t, err)

	return address
}

func payToAddress(t *testing.T, address string) []byte {
	decoded, err := btcutil.DecodeAddress(address, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	pkScript, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	return pkScript
}

func TestSendCommand(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	var posted [][]byte
	httpmock.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`^https://esplora\.test/api/address/\w+/utxo$`),
		httpmock.NewStringResponder(http.StatusOK, `[{"txid": "`+fundingTxID+`", "vout": 0, "value": 100000, "status": {"confirmed": true, "block_height": 100}}]`))
	httpmock.RegisterResponder(http.MethodGet, esploraURL+"/blocks/tip/height",
		httpmock.NewStringResponder(http.StatusOK, "110"))
	httpmock.RegisterResponder(http.MethodPost, esploraURL+"/tx", func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}

		raw, err := hex.DecodeString(string(body))
		if err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		posted = append(posted, raw)

		return httpmock.NewStringResponse(http.StatusOK, fundingTxID), nil
	})

	alice, bob := accountAddress(t, "alice"), accountAddress(t, "bob")

	t.Run("broadcast", func(t *testing.T) {
		setupEnv(t)
		posted = nil

		require.NoError(t, runCommand("send", "--from", "alice", "--to", bob, "--amount", "20000", "--paid-by-sender", "--fee-rate", "2000"))
		require.Len(t, posted, 1)

		tx := new(wire.MsgTx)
		require.NoError(t, tx.Deserialize(bytes.NewReader(posted[0])))
		require.Len(t, tx.TxIn, 1)
		require.Equal(t, fundingTxID, tx.TxIn[0].PreviousOutPoint.Hash.String())
		require.EqualValues(t, 20000, tx.TxOut[0].Value)
		require.Equal(t, payToAddress(t, bob), tx.TxOut[0].PkScript)
		require.Len(t, tx.TxOut, 2)
		require.Equal(t, payToAddress(t, alice), tx.TxOut[1].PkScript)

		prevScript := payToAddress(t, alice)
		fetcher := txscript.NewCannedPrevOutputFetcher(prevScript, 100000)
		engine, err := txscript.NewEngine(prevScript, tx, 0, txscript.StandardVerifyFlags, nil,
			txscript.NewTxSigHashes(tx, fetcher), 100000, fetcher)
		require.NoError(t, err)
		require.NoError(t, engine.Execute())
	})

	t.Run("dry run keeps the utxos", func(t *testing.T) {
		setupEnv(t)
		posted = nil

		require.NoError(t, runCommand("send", "--from", "alice", "--to", bob, "--amount", "20000", "--fee-rate", "2000", "--dry-run"))
		require.Empty(t, posted)
		require.NoError(t, runCommand("holdings"))

		a, err := newApp(context.Background())
		require.NoError(t, err)
		defer a.Close()

		holdings := a.service.Holdings()
		require.Len(t, holdings, 1)
		require.Equal(t, alice, holdings[0].Address)
		require.EqualValues(t, 100000, holdings[0].Bitcoin)
		require.Equal(t, 1, holdings[0].UTXOs)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		setupEnv(t)
		posted = nil

		err := runCommand("send", "--from", "alice", "--to", bob, "--amount", "200000", "--fee-rate", "2000")
		require.Error(t, err)
		require.Empty(t, posted)
	})
}
