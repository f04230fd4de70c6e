// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"encoding/hex"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"
)

// SchemaVersion is the first segment of every account derivation path.
var SchemaVersion = []byte{0x01}

// DerivationPath is ordered list of opaque byte segments.
type DerivationPath [][]byte

// Clone returns deep copy of the path.
func (p DerivationPath) Clone() DerivationPath {
	clone := make(DerivationPath, len(p))
	for i, segment := range p {
		clone[i] = slices.Clone(segment)
	}

	return clone
}

// String returns path as slash separated hex segments.
func (p DerivationPath) String() string {
	s := "m"
	for _, segment := range p {
		s += "/" + hex.EncodeToString(segment)
	}

	return s
}

// Account identifies custody user: principal bytes and optional 32 bytes subaccount.
type Account struct {
	Owner      []byte
	Subaccount *[32]byte
}

// PathFor returns derivation path of the account: [schema version, owner, subaccount].
// Missing subaccount is the same as 32 zero bytes, so both map to one address.
func PathFor(account Account) DerivationPath {
	var subaccount [32]byte
	if account.Subaccount != nil {
		subaccount = *account.Subaccount
	}

	return DerivationPath{slices.Clone(SchemaVersion), slices.Clone(account.Owner), subaccount[:]}
}

// Party is custody account resolved to its key and address.
type Party struct {
	Address   string
	Path      DerivationPath
	PublicKey *btcec.PublicKey
}
