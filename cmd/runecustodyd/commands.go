// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/BoostyLabs/runecustody/bitcoin/custody"
	"github.com/BoostyLabs/runecustody/bitcoin/ingest"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// flags
var (
	accountFlag = &cli.StringFlag{
		Name:     "account",
		Usage:    "custody account as <owner>[/<hex subaccount>]",
		Required: true,
	}
	fromFlag = &cli.StringFlag{
		Name:     "from",
		Usage:    "sending account as <owner>[/<hex subaccount>]",
		Required: true,
	}
	toFlag = &cli.StringFlag{
		Name:     "to",
		Usage:    "receiving address",
		Required: true,
	}
	amountFlag = &cli.Uint64Flag{
		Name:     "amount",
		Usage:    "amount to send in sats",
		Required: true,
	}
	paidBySenderFlag = &cli.BoolFlag{
		Name:  "paid-by-sender",
		Usage: "raise the fee on top of the amount instead of deducting it",
		Value: true,
	}
	feeRateFlag = &cli.Uint64Flag{
		Name:  "fee-rate",
		Usage: "fee rate in millisatoshi per vbyte, estimated by the chain when zero",
	}
	feePayerFlag = &cli.StringFlag{
		Name:  "fee-payer",
		Usage: "account paying the fee, the sender by default",
	}
	runeFlag = &cli.StringFlag{
		Name:     "rune",
		Usage:    "rune id as <block>:<tx>",
		Required: true,
	}
	runeAmountFlag = &cli.StringFlag{
		Name:     "rune-amount",
		Usage:    "amount of runes in base units",
		Required: true,
	}
	dryRunFlag = &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "print unsigned PSBT instead of broadcasting",
	}
)

// commands
var (
	serveCmd = &cli.Command{
		Name:   "serve",
		Usage:  "Run reveal scheduler and expose metrics",
		Action: serveAction,
	}
	addressCmd = &cli.Command{
		Name:   "address",
		Usage:  "Print custody address of the account",
		Action: addressAction,
		Flags:  []cli.Flag{accountFlag},
	}
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Sync the account and print its balances",
		Action: balanceAction,
		Flags:  []cli.Flag{accountFlag, &cli.StringFlag{Name: "rune", Usage: "rune id as <block>:<tx>"}},
	}
	sendCmd = &cli.Command{
		Name:   "send",
		Usage:  "Send bitcoin",
		Action: sendAction,
		Flags:  []cli.Flag{fromFlag, toFlag, amountFlag, paidBySenderFlag, feeRateFlag, dryRunFlag},
	}
	sendRunesCmd = &cli.Command{
		Name:   "send-runes",
		Usage:  "Send runes",
		Action: sendRunesAction,
		Flags:  []cli.Flag{runeFlag, runeAmountFlag, fromFlag, toFlag, feePayerFlag, feeRateFlag, dryRunFlag},
	}
	sendCombinedCmd = &cli.Command{
		Name:   "send-combined",
		Usage:  "Send runes and bitcoin in one transaction",
		Action: sendCombinedAction,
		Flags: []cli.Flag{
			runeFlag, runeAmountFlag, fromFlag, toFlag,
			&cli.StringFlag{Name: "bitcoin-from", Usage: "account sending bitcoin", Required: true},
			&cli.StringFlag{Name: "bitcoin-to", Usage: "address receiving bitcoin", Required: true},
			amountFlag, feePayerFlag, feeRateFlag, dryRunFlag,
		},
	}
	etchCmd = &cli.Command{
		Name:   "etch",
		Usage:  "Etch a new rune, the reveal is broadcast by serve",
		Action: etchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "spaced rune name", Required: true},
			&cli.UintFlag{Name: "divisibility", Usage: "decimal places of the rune"},
			&cli.StringFlag{Name: "premine", Usage: "premine in base units"},
			&cli.StringFlag{Name: "symbol", Usage: "currency symbol"},
			&cli.BoolFlag{Name: "turbo", Usage: "opt into future protocol changes"},
			&cli.StringFlag{Name: "holder", Usage: "account receiving the premine", Required: true},
			&cli.StringFlag{Name: "fee-payer", Usage: "account paying commit and reveal", Required: true},
			&cli.StringFlag{Name: "logo", Usage: "path to the inscribed logo"},
			&cli.StringFlag{Name: "content-type", Usage: "content type of the logo", Value: "image/png"},
			feeRateFlag,
			dryRunFlag,
		},
	}
	holdingsCmd = &cli.Command{
		Name:   "holdings",
		Usage:  "Print custody state of every known address",
		Action: holdingsAction,
	}
)

func serveAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	if err = a.scheduler.Resume(ctx.Context); err != nil {
		return err
	}
	a.scheduler.Start()

	log.WithField("addr", a.cfg.MetricsAddr).Info("service started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func addressAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	account, err := parseAccount(ctx.String("account"))
	if err != nil {
		return err
	}

	address, err := a.service.Address(account)
	if err != nil {
		return err
	}

	return printJSON(map[string]string{"address": address})
}

func balanceAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	account, err := parseAccount(ctx.String("account"))
	if err != nil {
		return err
	}

	if _, err = a.service.Sync(ctx.Context, account, ingest.BitcoinTarget(^uint64(0))); err != nil {
		return err
	}

	balance, err := a.service.Balance(account)
	if err != nil {
		return err
	}

	response := map[string]interface{}{"balance": balance}
	if ctx.IsSet("rune") {
		id, err := runes.NewRuneIDFromString(ctx.String("rune"))
		if err != nil {
			return err
		}

		runeBalance, err := a.service.RuneBalance(account, id)
		if err != nil {
			return err
		}
		response["rune_balance"] = runeBalance.String()
	}

	return printJSON(response)
}

func sendAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	from, err := parseAccount(ctx.String("from"))
	if err != nil {
		return err
	}

	request := custody.BitcoinTransfer{
		From:         from,
		To:           ctx.String("to"),
		Amount:       ctx.Uint64("amount"),
		PaidBySender: ctx.Bool("paid-by-sender"),
		FeeRate:      ctx.Uint64("fee-rate"),
	}
	if ctx.Bool("dry-run") {
		return printResult(a.service.PreviewBitcoin(ctx.Context, request))
	}

	result, err := a.service.TransferBitcoin(ctx.Context, request)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func sendRunesAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	id, amount, err := parseRuneAmount(ctx)
	if err != nil {
		return err
	}
	from, err := parseAccount(ctx.String("from"))
	if err != nil {
		return err
	}
	feePayer, err := parseOptionalAccount(ctx.String("fee-payer"))
	if err != nil {
		return err
	}

	request := custody.RuneTransfer{
		RuneID:   id,
		Amount:   amount,
		From:     from,
		To:       ctx.String("to"),
		FeePayer: feePayer,
		FeeRate:  ctx.Uint64("fee-rate"),
	}
	if ctx.Bool("dry-run") {
		return printResult(a.service.PreviewRunes(ctx.Context, request))
	}

	result, err := a.service.TransferRunes(ctx.Context, request)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func sendCombinedAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	id, amount, err := parseRuneAmount(ctx)
	if err != nil {
		return err
	}
	runeFrom, err := parseAccount(ctx.String("from"))
	if err != nil {
		return err
	}
	bitcoinFrom, err := parseAccount(ctx.String("bitcoin-from"))
	if err != nil {
		return err
	}
	feePayer, err := parseOptionalAccount(ctx.String("fee-payer"))
	if err != nil {
		return err
	}

	request := custody.CombinedTransfer{
		RuneID:        id,
		RuneAmount:    amount,
		RuneFrom:      runeFrom,
		RuneTo:        ctx.String("to"),
		BitcoinAmount: ctx.Uint64("amount"),
		BitcoinFrom:   bitcoinFrom,
		BitcoinTo:     ctx.String("bitcoin-to"),
		FeePayer:      feePayer,
		FeeRate:       ctx.Uint64("fee-rate"),
	}
	if ctx.Bool("dry-run") {
		return printResult(a.service.PreviewCombined(ctx.Context, request))
	}

	result, err := a.service.TransferCombined(ctx.Context, request)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func etchAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	holder, err := parseAccount(ctx.String("holder"))
	if err != nil {
		return err
	}
	feePayer, err := parseAccount(ctx.String("fee-payer"))
	if err != nil {
		return err
	}

	request := custody.Etch{
		Name:         ctx.String("name"),
		Divisibility: uint8(ctx.Uint("divisibility")),
		Turbo:        ctx.Bool("turbo"),
		Holder:       holder,
		FeePayer:     feePayer,
		FeeRate:      ctx.Uint64("fee-rate"),
	}
	if ctx.IsSet("premine") {
		premine, ok := new(big.Int).SetString(ctx.String("premine"), 10)
		if !ok {
			return fmt.Errorf("invalid premine %q", ctx.String("premine"))
		}
		request.Premine = premine
	}
	if ctx.IsSet("symbol") {
		symbol, size := utf8.DecodeRuneInString(ctx.String("symbol"))
		if size != len(ctx.String("symbol")) {
			return fmt.Errorf("symbol must be a single character")
		}
		request.Symbol = &symbol
	}
	if ctx.IsSet("logo") {
		if request.Logo, err = os.ReadFile(ctx.String("logo")); err != nil {
			return err
		}
		request.ContentType = ctx.String("content-type")
	}
	if ctx.Bool("dry-run") {
		return printResult(a.service.PreviewEtch(ctx.Context, request))
	}

	result, err := a.service.Etch(ctx.Context, request)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func holdingsAction(ctx *cli.Context) error {
	a, err := newApp(ctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	return printJSON(a.service.Holdings())
}

// parseAccount parses <owner>[/<hex subaccount>].
func parseAccount(value string) (signer.Account, error) {
	owner, sub, found := strings.Cut(value, "/")
	if len(owner) == 0 {
		return signer.Account{}, fmt.Errorf("invalid account %q", value)
	}

	account := signer.Account{Owner: []byte(owner)}
	if !found {
		return account, nil
	}

	raw, err := hex.DecodeString(sub)
	if err != nil || len(raw) != 32 {
		return signer.Account{}, fmt.Errorf("invalid subaccount of %q, 32 hex bytes expected", value)
	}

	var subaccount [32]byte
	copy(subaccount[:], raw)
	account.Subaccount = &subaccount

	return account, nil
}

func parseOptionalAccount(value string) (*signer.Account, error) {
	if value == "" {
		return nil, nil
	}

	account, err := parseAccount(value)
	if err != nil {
		return nil, err
	}

	return &account, nil
}

func parseRuneAmount(ctx *cli.Context) (runes.RuneID, *big.Int, error) {
	id, err := runes.NewRuneIDFromString(ctx.String("rune"))
	if err != nil {
		return runes.RuneID{}, nil, err
	}

	amount, ok := new(big.Int).SetString(ctx.String("rune-amount"), 10)
	if !ok {
		return runes.RuneID{}, nil, fmt.Errorf("invalid rune amount %q", ctx.String("rune-amount"))
	}

	return id, amount, nil
}

func printResult(resp interface{}, err error) error {
	if err != nil {
		return err
	}

	return printJSON(resp)
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}

	fmt.Println(string(jsonBytes))
	return nil
}
