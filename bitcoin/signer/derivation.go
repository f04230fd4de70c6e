// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"crypto/hmac"
	"crypto/sha512"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ChainCodeSize defines chain code length.
const ChainCodeSize = 32

// ErrInvalidChainCode is returned when chain code is not 32 bytes.
var ErrInvalidChainCode = errors.New("chain code must be 32 bytes")

// ExtendedKey is public key together with its chain code.
type ExtendedKey struct {
	PublicKey *btcec.PublicKey
	ChainCode []byte
}

// DerivePublicKey derives child key of master by path with non-hardened derivation.
// The result depends only on master and path, so it is reproducible without the oracle.
func DerivePublicKey(master ExtendedKey, path DerivationPath) (ExtendedKey, error) {
	if len(master.ChainCode) != ChainCodeSize {
		return ExtendedKey{}, ErrInvalidChainCode
	}

	key, chainCode := master.PublicKey, master.ChainCode
	for _, segment := range path {
		key, chainCode, _ = deriveChild(key, chainCode, segment)
	}

	return ExtendedKey{PublicKey: key, ChainCode: chainCode}, nil
}

// DerivePrivateKey mirrors DerivePublicKey for the private key: every step adds the same tweak.
func DerivePrivateKey(master *btcec.PrivateKey, chainCode []byte, path DerivationPath) (*btcec.PrivateKey, []byte, error) {
	if len(chainCode) != ChainCodeSize {
		return nil, nil, ErrInvalidChainCode
	}

	var (
		scalar = master.Key
		key    = master.PubKey()
	)
	for _, segment := range path {
		var tweak btcec.ModNScalar
		key, chainCode, tweak = deriveChild(key, chainCode, segment)
		scalar.Add(&tweak)
	}

	bytes := scalar.Bytes()
	child, _ := btcec.PrivKeyFromBytes(bytes[:])

	return child, chainCode, nil
}

// deriveChild returns child key, chain code and scalar tweak of one derivation step.
// I = HMAC-SHA512(chainCode, compressed(key) || segment), child = key + IL*G, chain code IR.
// IL not less than the group order or infinite child restart the step with 0x01 || IR as segment.
func deriveChild(key *btcec.PublicKey, chainCode []byte, segment []byte) (*btcec.PublicKey, []byte, btcec.ModNScalar) {
	compressed := key.SerializeCompressed()
	for {
		mac := hmac.New(sha512.New, chainCode)
		mac.Write(compressed)
		mac.Write(segment)
		sum := mac.Sum(nil)

		il, ir := sum[:32], sum[32:]

		var tweak btcec.ModNScalar
		if overflow := tweak.SetByteSlice(il); overflow {
			segment = append([]byte{0x01}, ir...)
			continue
		}

		var parent, tweakPoint, child btcec.JacobianPoint
		key.AsJacobian(&parent)
		btcec.ScalarBaseMultNonConst(&tweak, &tweakPoint)
		btcec.AddNonConst(&parent, &tweakPoint, &child)
		if (child.X.IsZero() && child.Y.IsZero()) || child.Z.IsZero() {
			segment = append([]byte{0x01}, ir...)
			continue
		}

		child.ToAffine()

		return btcec.NewPublicKey(&child.X, &child.Y), ir, tweak
	}
}
