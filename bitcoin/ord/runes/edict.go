// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math/big"
	"slices"
)

// Edict defines transfer values of the rune protocol.
// Amount 0 means all remaining units, Output equal to the outputs count splits between all non OP_RETURN outputs.
type Edict struct {
	RuneID RuneID
	Amount *big.Int
	Output uint32
}

// Equal compares edicts by value.
func (edict Edict) Equal(other Edict) bool {
	return edict.RuneID == other.RuneID && edict.Output == other.Output && equalBig(edict.Amount, other.Amount)
}

// parseEdicts decodes delta encoded edicts groups of 4 integers,
// returns parsed edicts and the flaw that stopped parsing if any.
func parseEdicts(values []*big.Int, outputs int) ([]Edict, Flaw) {
	var (
		id     RuneID
		edicts = make([]Edict, 0, len(values)/4)
	)
	for ; len(values) > 0; values = values[4:] {
		if len(values) < 4 {
			return edicts, FlawTrailingIntegers
		}

		next, ok := id.Next(values[0], values[1])
		if !ok {
			return edicts, FlawEdictRuneID
		}

		if !values[3].IsUint64() || values[3].Uint64() > uint64(outputs) {
			return edicts, FlawEdictOutput
		}

		edicts = append(edicts, Edict{
			RuneID: next,
			Amount: values[2],
			Output: uint32(values[3].Uint64()),
		})
		id = next
	}

	return edicts, ""
}

// edictsToIntSeq sorts copy of edicts by rune id and returns it delta encoded.
func edictsToIntSeq(edicts []Edict) ([]*big.Int, error) {
	sorted := slices.Clone(edicts)
	slices.SortStableFunc(sorted, func(a, b Edict) int {
		return a.RuneID.Cmp(b.RuneID)
	})

	var (
		previous RuneID
		sequence = make([]*big.Int, 0, len(sorted)*4)
	)
	for _, edict := range sorted {
		delta, err := previous.Delta(edict.RuneID)
		if err != nil {
			return nil, err
		}

		sequence = append(sequence, delta.ToIntSeq()...)
		sequence = append(sequence, new(big.Int).Set(edict.Amount), new(big.Int).SetUint64(uint64(edict.Output)))
		previous = edict.RuneID
	}

	return sequence, nil
}
