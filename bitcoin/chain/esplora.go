// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
)

// ErrUnexpectedStatus defines that esplora responded with non 200 status.
var ErrUnexpectedStatus = errors.New("unexpected esplora response status")

// Esplora implements Client over the esplora HTTP API.
type Esplora struct {
	baseURL string
	client  *http.Client
	log     *log.Entry
}

// ensures that Esplora implements Client.
var _ Client = (*Esplora)(nil)

// NewEsplora is a constructor for Esplora, http.DefaultClient is used if client is nil.
func NewEsplora(baseURL string, client *http.Client) *Esplora {
	if client == nil {
		client = http.DefaultClient
	}

	return &Esplora{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     log.WithField("component", "esplora"),
	}
}

type esploraUTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint32 `json:"block_height"`
	} `json:"status"`
}

type esploraStats struct {
	FundedTxoSum uint64 `json:"funded_txo_sum"`
	SpentTxoSum  uint64 `json:"spent_txo_sum"`
}

type esploraAddress struct {
	ChainStats esploraStats `json:"chain_stats"`
}

// FeePercentiles returns esplora fee estimates for all confirmation targets as ascending rates.
func (e *Esplora) FeePercentiles(ctx context.Context) ([]uint64, error) {
	var estimates map[string]float64
	if err := e.getJSON(ctx, &estimates, "fee-estimates"); err != nil {
		return nil, err
	}

	rates := make([]uint64, 0, len(estimates))
	for _, satPerVByte := range estimates {
		rates = append(rates, uint64(math.Round(satPerVByte*1000)))
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })

	return rates, nil
}

// UTXOs returns all utxos of the address, esplora does not paginate them.
func (e *Esplora) UTXOs(ctx context.Context, address string, page string) (*UTXOPage, error) {
	if page != "" {
		return &UTXOPage{}, nil
	}

	var utxos []esploraUTXO
	if err := e.getJSON(ctx, &utxos, "address", address, "utxo"); err != nil {
		return nil, err
	}

	tip, err := e.tipHeight(ctx)
	if err != nil {
		return nil, err
	}

	result := &UTXOPage{UTXOs: make([]bitcoin.UTXO, 0, len(utxos)), TipHeight: tip}
	for _, utxo := range utxos {
		txID, err := chainhash.NewHashFromStr(utxo.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid txid %q: %w", utxo.TxID, err)
		}

		var height uint32
		if utxo.Status.Confirmed {
			height = utxo.Status.BlockHeight
		}

		result.UTXOs = append(result.UTXOs, bitcoin.UTXO{
			Outpoint: bitcoin.Outpoint{TxID: *txID, Index: utxo.Vout},
			Value:    utxo.Value,
			Height:   height,
		})
	}

	return result, nil
}

// Balance returns confirmed balance of the address.
func (e *Esplora) Balance(ctx context.Context, address string) (uint64, error) {
	var info esploraAddress
	if err := e.getJSON(ctx, &info, "address", address); err != nil {
		return 0, err
	}

	if info.ChainStats.SpentTxoSum > info.ChainStats.FundedTxoSum {
		return 0, fmt.Errorf("spent %d more than funded %d", info.ChainStats.SpentTxoSum, info.ChainStats.FundedTxoSum)
	}

	return info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum, nil
}

// SendTransaction posts hex encoded transaction.
func (e *Esplora) SendTransaction(ctx context.Context, raw []byte) error {
	endpoint, err := url.JoinPath(e.baseURL, "tx")
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(hex.EncodeToString(raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	body, err := e.do(req)
	if err != nil {
		return err
	}

	e.log.WithField("txid", strings.TrimSpace(string(body))).Debug("transaction relayed")

	return nil
}

func (e *Esplora) tipHeight(ctx context.Context) (uint32, error) {
	body, err := e.get(ctx, "blocks", "tip", "height")
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid tip height %q: %w", body, err)
	}

	return uint32(height), nil
}

func (e *Esplora) getJSON(ctx context.Context, v any, elem ...string) error {
	body, err := e.get(ctx, elem...)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

func (e *Esplora) get(ctx context.Context, elem ...string) ([]byte, error) {
	endpoint, err := url.JoinPath(e.baseURL, elem...)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	return e.do(req)
}

func (e *Esplora) do(req *http.Request) ([]byte, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
