// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package chain

import (
	"context"

	"github.com/BoostyLabs/runecustody/bitcoin"
)

// DefaultFeeRate defines fee rate in millisatoshi per vbyte used when the chain has no fee data (regtest).
const DefaultFeeRate uint64 = 2000

// UTXOPage defines one page of address utxos.
type UTXOPage struct {
	UTXOs []bitcoin.UTXO
	// NextPage is the token of the next page, empty for the last one.
	NextPage  string
	TipHeight uint32
}

// Client observes the chain and relays transactions.
type Client interface {
	// FeePercentiles returns fee rates of recent transactions in millisatoshi per vbyte, ascending.
	FeePercentiles(ctx context.Context) ([]uint64, error)
	// UTXOs returns page of the address utxos, empty page token requests the first one.
	UTXOs(ctx context.Context, address string, page string) (*UTXOPage, error)
	// Balance returns confirmed balance of the address in satoshi.
	Balance(ctx context.Context, address string) (uint64, error)
	// SendTransaction relays serialized transaction.
	SendTransaction(ctx context.Context, raw []byte) error
}

// FeeRate returns the median of the fee percentiles or DefaultFeeRate if there are none.
func FeeRate(ctx context.Context, client Client) (uint64, error) {
	percentiles, err := client.FeePercentiles(ctx)
	if err != nil {
		return 0, err
	}

	if len(percentiles) == 0 {
		return DefaultFeeRate, nil
	}

	return percentiles[len(percentiles)/2], nil
}
