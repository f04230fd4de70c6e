// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// CompactSignatureSize defines size of the fixed width (r, s) signature.
const CompactSignatureSize = 64

// ErrMalformedSignature is returned for signatures of wrong size or with out of range components.
var ErrMalformedSignature = errors.New("malformed signature")

// SEC1ToDER converts fixed width (r, s) signature into DER encoding used by legacy scripts.
// Component gets leading zero byte when its high bit is set.
func SEC1ToDER(sig []byte) ([]byte, error) {
	if len(sig) != CompactSignatureSize {
		return nil, ErrMalformedSignature
	}

	r, s := derInteger(sig[:32]), derInteger(sig[32:])

	der := make([]byte, 0, 6+len(r)+len(s))
	der = append(der, 0x30, byte(4+len(r)+len(s)))
	der = append(der, 0x02, byte(len(r)))
	der = append(der, r...)
	der = append(der, 0x02, byte(len(s)))
	der = append(der, s...)

	return der, nil
}

// derInteger drops redundant leading zeros, then prepends one when the high bit is set.
func derInteger(component []byte) []byte {
	for len(component) > 1 && component[0] == 0 && component[1]&0x80 == 0 {
		component = component[1:]
	}

	if component[0]&0x80 != 0 {
		return append([]byte{0x00}, component...)
	}

	return append([]byte(nil), component...)
}

// ParseCompact validates fixed width signature and returns it with s in the lower half of the group order.
func ParseCompact(sig []byte) ([]byte, error) {
	if len(sig) != CompactSignatureSize {
		return nil, ErrMalformedSignature
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return nil, ErrMalformedSignature
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() {
		return nil, ErrMalformedSignature
	}

	if s.IsOverHalfOrder() {
		s.Negate()
	}

	rBytes, sBytes := r.Bytes(), s.Bytes()

	return append(rBytes[:], sBytes[:]...), nil
}

// VerifyCompact reports whether fixed width signature is valid for hash and key.
func VerifyCompact(sig, hash []byte, publicKey *btcec.PublicKey) bool {
	var r, s btcec.ModNScalar
	if len(sig) != CompactSignatureSize || r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
		return false
	}

	return ecdsa.NewSignature(&r, &s).Verify(hash, publicKey)
}
