// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/utils"
)

// GatewayConfig defines key identifiers and network of the gateway.
type GatewayConfig struct {
	ECDSAKeyID   string
	SchnorrKeyID string
	Network      *chaincfg.Params
}

// Gateway maps custody accounts to keys and addresses and forwards signing to the oracle.
type Gateway struct {
	oracle     Oracle
	config     GatewayConfig
	master     ExtendedKey
	schnorrKey *btcec.PublicKey
	log        *log.Entry

	mu   sync.Mutex
	keys map[string]*btcec.PublicKey
}

// NewGateway fetches master keys from the oracle and returns Gateway.
func NewGateway(ctx context.Context, oracle Oracle, config GatewayConfig) (*Gateway, error) {
	if config.Network == nil {
		return nil, errors.New("network is not set")
	}

	master, err := oracle.ECDSAPublicKey(ctx, config.ECDSAKeyID)
	if err != nil {
		return nil, fmt.Errorf("could not fetch ecdsa public key: %w", err)
	}
	if len(master.ChainCode) != ChainCodeSize {
		return nil, ErrInvalidChainCode
	}

	schnorrKey, err := oracle.SchnorrPublicKey(ctx, config.SchnorrKeyID)
	if err != nil {
		return nil, fmt.Errorf("could not fetch schnorr public key: %w", err)
	}

	return &Gateway{
		oracle:     oracle,
		config:     config,
		master:     master,
		schnorrKey: schnorrKey,
		log:        log.WithField("component", "signer"),
		keys:       make(map[string]*btcec.PublicKey),
	}, nil
}

// Network returns network parameters of the gateway.
func (g *Gateway) Network() *chaincfg.Params {
	return g.config.Network
}

// PublicKey returns public key derived by path, results are cached.
func (g *Gateway) PublicKey(path DerivationPath) (*btcec.PublicKey, error) {
	cacheKey := path.String()

	g.mu.Lock()
	key, ok := g.keys[cacheKey]
	g.mu.Unlock()
	if ok {
		return key, nil
	}

	derived, err := DerivePublicKey(g.master, path)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.keys[cacheKey] = derived.PublicKey
	g.mu.Unlock()

	return derived.PublicKey, nil
}

// Party resolves account into its path, key and P2PKH address.
func (g *Gateway) Party(account Account) (Party, error) {
	path := PathFor(account)
	key, err := g.PublicKey(path)
	if err != nil {
		return Party{}, err
	}

	address, err := utils.NewP2PKHAddress(g.config.Network, key)
	if err != nil {
		return Party{}, err
	}

	return Party{Address: address.EncodeAddress(), Path: path, PublicKey: key}, nil
}

// Address returns P2PKH address of the account.
func (g *Gateway) Address(account Account) (string, error) {
	party, err := g.Party(account)
	if err != nil {
		return "", err
	}

	return party.Address, nil
}

// SchnorrPublicKey returns master schnorr key, the internal key of the etching commitments.
func (g *Gateway) SchnorrPublicKey() *btcec.PublicKey {
	return g.schnorrKey
}

// SignECDSA asks the oracle to sign the hash with the key of the path.
// Returned signature is validated and has low s.
func (g *Gateway) SignECDSA(ctx context.Context, hash []byte, path DerivationPath) ([]byte, error) {
	sig, err := g.oracle.SignECDSA(ctx, hash, path, g.config.ECDSAKeyID)
	if err != nil {
		g.log.WithError(err).WithField("path", path.String()).Warn("ecdsa signing failed")
		return nil, &bitcoin.SigningError{Input: -1, Err: err}
	}

	normalized, err := ParseCompact(sig)
	if err != nil {
		return nil, &bitcoin.SigningError{Input: -1, Err: fmt.Errorf("%w: %d bytes", err, len(sig))}
	}

	return normalized, nil
}

// SignSchnorr asks the oracle to sign the message with the master schnorr key.
func (g *Gateway) SignSchnorr(ctx context.Context, message []byte) ([]byte, error) {
	sig, err := g.oracle.SignSchnorr(ctx, message, DerivationPath{}, g.config.SchnorrKeyID)
	if err != nil {
		g.log.WithError(err).Warn("schnorr signing failed")
		return nil, &bitcoin.SigningError{Input: -1, Err: err}
	}

	if _, err = schnorr.ParseSignature(sig); err != nil {
		return nil, &bitcoin.SigningError{Input: -1, Err: fmt.Errorf("%w: %v", ErrMalformedSignature, err)}
	}

	return sig, nil
}
