// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// idSeparator defines separator between TxID and Index in inscription ID.
const idSeparator string = "i"

// ID describes inscription identifier.
type ID struct {
	TxID  chainhash.Hash // Reveal transaction ID.
	Index uint32         // The index of new inscriptions being inscribed in the reveal transaction.
}

// NewIDFromString parses inscription ID from string.
func NewIDFromString(idStr string) (ID, error) {
	txID, index, found := strings.Cut(idStr, idSeparator)
	if !found || len(txID) != chainhash.MaxHashStringSize {
		return ID{}, fmt.Errorf("invalid ID format: %s", idStr)
	}

	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return ID{}, err
	}

	num, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return ID{}, err
	}

	return ID{TxID: *hash, Index: uint32(num)}, nil
}

// NewIDFromDataPush parses inscription ID from script data push.
func NewIDFromDataPush(id []byte) (ID, error) {
	if len(id) < chainhash.HashSize || len(id) > chainhash.HashSize+4 {
		return ID{}, fmt.Errorf("invalid TxID format: %x", id)
	}

	var (
		result ID
		index  = make([]byte, 4)
	)
	copy(result.TxID[:], id[:chainhash.HashSize])
	copy(index, id[chainhash.HashSize:])
	result.Index = binary.LittleEndian.Uint32(index)

	return result, nil
}

// String returns inscription ID as string.
func (id ID) String() string {
	return fmt.Sprintf("%s%s%d", id.TxID.String(), idSeparator, id.Index)
}

// IndexLETrailingZerosOmitted returns index as bytes array in little-endian ordering with trailing zeros omitted.
func (id ID) IndexLETrailingZerosOmitted() []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, id.Index)
	for lastIdx := 3; lastIdx >= 0; lastIdx-- {
		if data[lastIdx] != 0 {
			return data[:lastIdx+1]
		}
	}

	return []byte{}
}

// IntoDataPush returns ID as bytes for script OP_PUSH.
func (id ID) IntoDataPush() []byte {
	return append(id.TxID.CloneBytes(), id.IndexLETrailingZerosOmitted()...)
}
