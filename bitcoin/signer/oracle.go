// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"context"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Oracle is external threshold signing service, the gateway never holds private keys.
type Oracle interface {
	// ECDSAPublicKey returns master extended public key of the ecdsa key.
	ECDSAPublicKey(ctx context.Context, keyID string) (ExtendedKey, error)
	// SchnorrPublicKey returns master public key of the schnorr key.
	SchnorrPublicKey(ctx context.Context, keyID string) (*btcec.PublicKey, error)
	// SignECDSA returns 64 bytes (r, s) signature of the hash by the key derived by path.
	SignECDSA(ctx context.Context, hash []byte, path DerivationPath, keyID string) ([]byte, error)
	// SignSchnorr returns 64 bytes BIP-340 signature of the message by the key derived by path.
	SignSchnorr(ctx context.Context, message []byte, path DerivationPath, keyID string) ([]byte, error)
}

// ensures that LocalOracle implements Oracle.
var _ Oracle = (*LocalOracle)(nil)

// LocalOracle signs in process with the master private key, used on regtest and in tests.
type LocalOracle struct {
	master    *btcec.PrivateKey
	chainCode []byte
}

// NewLocalOracle is a constructor for LocalOracle.
func NewLocalOracle(master *btcec.PrivateKey, chainCode []byte) (*LocalOracle, error) {
	if len(chainCode) != ChainCodeSize {
		return nil, ErrInvalidChainCode
	}

	return &LocalOracle{master: master, chainCode: chainCode}, nil
}

// NewLocalOracleFromSeed derives master key and chain code from seed bytes.
func NewLocalOracleFromSeed(seed []byte) (*LocalOracle, error) {
	if len(seed) == 0 {
		return nil, errors.New("empty seed")
	}

	key := sha256.Sum256(seed)
	chainCode := sha256.Sum256(key[:])
	master, _ := btcec.PrivKeyFromBytes(key[:])

	return NewLocalOracle(master, chainCode[:])
}

// ECDSAPublicKey returns master extended public key.
func (o *LocalOracle) ECDSAPublicKey(context.Context, string) (ExtendedKey, error) {
	return ExtendedKey{PublicKey: o.master.PubKey(), ChainCode: o.chainCode}, nil
}

// SchnorrPublicKey returns master public key.
func (o *LocalOracle) SchnorrPublicKey(context.Context, string) (*btcec.PublicKey, error) {
	return o.master.PubKey(), nil
}

// SignECDSA signs the hash with the derived key.
func (o *LocalOracle) SignECDSA(ctx context.Context, hash []byte, path DerivationPath, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, _, err := DerivePrivateKey(o.master, o.chainCode, path)
	if err != nil {
		return nil, err
	}

	sig := ecdsa.SignCompact(key, hash, true)

	// INFO: [recovery byte] + r + s.
	return sig[1:], nil
}

// SignSchnorr signs the message with the derived key.
func (o *LocalOracle) SignSchnorr(ctx context.Context, message []byte, path DerivationPath, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, _, err := DerivePrivateKey(o.master, o.chainCode, path)
	if err != nil {
		return nil, err
	}

	sig, err := schnorr.Sign(key, message)
	if err != nil {
		return nil, err
	}

	return sig.Serialize(), nil
}
