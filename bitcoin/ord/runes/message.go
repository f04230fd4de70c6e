// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"bytes"
	"math/big"

	"github.com/aviate-labs/leb128"

	"github.com/BoostyLabs/runecustody/internal/numbers"
	"github.com/BoostyLabs/runecustody/internal/sequencereader"
)

// maxVarintLen is the longest LEB128 encoding of uint128.
const maxVarintLen = 19

var maxUint128 = numbers.MaxUInt128Value

// Message defines helping struct for serialising and deserializing Runestone.
type Message struct {
	Edicts []Edict
	Fields map[Tag][]*big.Int
	Flaw   Flaw
}

// parseMessage splits integer sequence into tagged fields and edicts.
func parseMessage(sequence []*big.Int, outputs int) *Message {
	var (
		message = &Message{Fields: make(map[Tag][]*big.Int)}
		sr      = sequencereader.New(sequence)
	)
	for sr.HasNext() {
		tagValue, _ := sr.Next() // skip error due to loop condition check.
		if tagValue.Sign() == 0 {
			message.Edicts, message.Flaw = parseEdicts(sr.Rest(), outputs)
			break
		}

		value, err := sr.Next()
		if err != nil {
			message.Flaw = FlawTruncatedField
			break
		}

		if !tagValue.IsUint64() {
			// no known tag is that large, only parity matters.
			if tagValue.Bit(0) == 0 {
				message.Flaw = FlawUnrecognizedEvenTag
			}
			continue
		}

		tag := Tag(tagValue.Uint64())
		message.Fields[tag] = append(message.Fields[tag], value)
	}

	return message
}

// PayloadIntoIntSequence decodes payload in LEB128 into integer sequence.
func PayloadIntoIntSequence(payload []byte) ([]*big.Int, error) {
	var (
		sequence = make([]*big.Int, 0, len(payload))
		data     = bytes.NewReader(payload)
	)
	for data.Len() > 0 {
		before := data.Len()
		num, err := leb128.DecodeUnsigned(data)
		if err != nil {
			return nil, &CenotaphError{Flaw: FlawVarint}
		}

		if before-data.Len() > maxVarintLen || !numbers.IsUint128(num) {
			return nil, &CenotaphError{Flaw: FlawVarint}
		}

		sequence = append(sequence, num)
	}

	return sequence, nil
}

// IntSequenceIntoPayload encodes integer sequence into payload in LEB128.
func IntSequenceIntoPayload(sequence []*big.Int) ([]byte, error) {
	payload := make([]byte, 0, len(sequence)*2)
	for _, num := range sequence {
		if !numbers.IsUint128(num) {
			return nil, numbers.ErrOverflow
		}

		encoded, err := leb128.EncodeUnsigned(num)
		if err != nil {
			return nil, err
		}

		payload = append(payload, encoded...)
	}

	return payload, nil
}
