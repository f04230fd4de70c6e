// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/runecustody/bitcoin/utils"
)

const (
	// MaxStandardOpReturnSize defines the largest OP_RETURN script relayed by default policy.
	MaxStandardOpReturnSize = 83
	// magicNumber marks OP_RETURN outputs of the rune protocol.
	magicNumber = txscript.OP_13
)

var (
	// ErrNoRunestone is returned when transaction has no runestone output.
	ErrNoRunestone = errors.New("no runestone")
	// ErrRunestoneTooLarge is returned when enciphered runestone is larger than MaxStandardOpReturnSize.
	ErrRunestoneTooLarge = errors.New("runestone exceeds max standard OP_RETURN size")
)

// Flaw describes why runestone is a cenotaph.
type Flaw string

const (
	// FlawEdictOutput defines edict pointing to nonexistent output.
	FlawEdictOutput Flaw = "edict output greater than transaction output count"
	// FlawEdictRuneID defines invalid delta encoded rune id.
	FlawEdictRuneID Flaw = "invalid rune ID in edict"
	// FlawInvalidScript defines unparsable runestone script.
	FlawInvalidScript Flaw = "invalid script in OP_RETURN"
	// FlawOpcode defines non pushdata opcode in runestone script.
	FlawOpcode Flaw = "non-pushdata opcode in OP_RETURN"
	// FlawSupplyOverflow defines etching with supply not fitting into uint128.
	FlawSupplyOverflow Flaw = "supply overflows u128"
	// FlawTrailingIntegers defines edicts integers count not divisible by 4.
	FlawTrailingIntegers Flaw = "trailing integers in body"
	// FlawTruncatedField defines field without value.
	FlawTruncatedField Flaw = "field with missing value"
	// FlawUnrecognizedEvenTag defines unknown even tag.
	FlawUnrecognizedEvenTag Flaw = "unrecognized even tag"
	// FlawUnrecognizedFlag defines unknown flag.
	FlawUnrecognizedFlag Flaw = "unrecognized field"
	// FlawVarint defines malformed varint.
	FlawVarint Flaw = "invalid varint"
)

// CenotaphError describes malformed runestone, all runes of the inputs of such transaction are burned.
type CenotaphError struct {
	Flaw    Flaw
	Etching *Rune
	Mint    *RuneID
}

// Error implements error interface.
func (e *CenotaphError) Error() string {
	return fmt.Sprintf("cenotaph: %s", e.Flaw)
}

// Runestone abstractly defines runestone fields.
type Runestone struct {
	Edicts  []Edict
	Etching *Etching
	Mint    *RuneID
	Pointer *uint32
}

// Decipher finds the runestone in transaction outputs and parses it.
// Returns ErrNoRunestone if there is no OP_RETURN OP_13 output, and *CenotaphError for malformed one.
func Decipher(tx *wire.MsgTx) (*Runestone, error) {
	payload, err := findPayload(tx)
	if err != nil {
		return nil, err
	}

	sequence, err := PayloadIntoIntSequence(payload)
	if err != nil {
		return nil, err
	}

	return parse(sequence, len(tx.TxOut))
}

// ParseRunestone parses Runestone from the script of the output,
// outputs is the outputs count of the transaction used for edicts and pointer validation.
func ParseRunestone(script []byte, outputs int) (*Runestone, error) {
	payload, ok, err := payloadFromScript(script)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoRunestone
	}

	sequence, err := PayloadIntoIntSequence(payload)
	if err != nil {
		return nil, err
	}

	return parse(sequence, outputs)
}

// IsPossibleRunestone returns true if the script starts with rune protocol bytes sequence.
func IsPossibleRunestone(script []byte) bool {
	return len(script) >= 2 && script[0] == txscript.OP_RETURN && script[1] == magicNumber
}

// findPayload returns concatenated data pushes of the first runestone output.
func findPayload(tx *wire.MsgTx) ([]byte, error) {
	for _, out := range tx.TxOut {
		payload, ok, err := payloadFromScript(out.PkScript)
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}
	}

	return nil, ErrNoRunestone
}

// payloadFromScript returns ok=false if the script is not a runestone.
func payloadFromScript(script []byte) ([]byte, bool, error) {
	if !IsPossibleRunestone(script) {
		return nil, false, nil
	}

	var (
		payload   []byte
		tokenizer = txscript.MakeScriptTokenizer(0, script[2:])
	)
	for tokenizer.Next() {
		if tokenizer.Opcode() > txscript.OP_PUSHDATA4 {
			return nil, true, &CenotaphError{Flaw: FlawOpcode}
		}

		payload = append(payload, tokenizer.Data()...)
	}

	if tokenizer.Err() != nil {
		return nil, true, &CenotaphError{Flaw: FlawInvalidScript}
	}

	return payload, true, nil
}

// parse builds runestone from integer sequence, outputs is the transaction outputs count.
func parse(sequence []*big.Int, outputs int) (*Runestone, error) {
	var (
		message   = parseMessage(sequence, outputs)
		fields    = message.Fields
		runestone = &Runestone{Edicts: message.Edicts}
		flags     = new(big.Int)
		flaw      = message.Flaw
	)

	TagFlags.take(fields, 1, func(v []*big.Int) bool {
		flags.Set(v[0])
		return true
	})

	if FlagEtching.Take(flags) {
		etching := new(Etching)
		TagDivisibility.take(fields, 1, func(v []*big.Int) bool {
			if !v[0].IsUint64() || v[0].Uint64() > uint64(MaxDivisibility) {
				return false
			}

			divisibility := byte(v[0].Uint64())
			etching.Divisibility = &divisibility
			return true
		})
		TagPremine.take(fields, 1, func(v []*big.Int) bool {
			etching.Premine = v[0]
			return true
		})
		TagRune.take(fields, 1, func(v []*big.Int) bool {
			etching.Rune = &Rune{value: v[0]}
			return true
		})
		TagSpacers.take(fields, 1, func(v []*big.Int) bool {
			if !v[0].IsUint64() || v[0].Uint64() > uint64(MaxSpacers) {
				return false
			}

			spacers := uint32(v[0].Uint64())
			etching.Spacers = &spacers
			return true
		})
		TagSymbol.take(fields, 1, func(v []*big.Int) bool {
			if !v[0].IsUint64() || v[0].Uint64() > utf8.MaxRune || !utf8.ValidRune(rune(v[0].Uint64())) {
				return false
			}

			symbol := rune(v[0].Uint64())
			etching.Symbol = &symbol
			return true
		})

		if FlagTerms.Take(flags) {
			etching.Terms = parseTerms(fields)
		}

		etching.Turbo = FlagTurbo.Take(flags)
		runestone.Etching = etching

		if etching.Supply() == nil {
			flaw = FlawSupplyOverflow
		}
	}

	TagMint.take(fields, 2, func(v []*big.Int) bool {
		id, ok := RuneID{}.Next(v[0], v[1])
		if !ok || (id.Block == 0 && id.TxID != 0) {
			return false
		}

		runestone.Mint = &id
		return true
	})

	TagPointer.take(fields, 1, func(v []*big.Int) bool {
		if !v[0].IsUint64() || v[0].Uint64() >= uint64(outputs) {
			return false
		}

		pointer := uint32(v[0].Uint64())
		runestone.Pointer = &pointer
		return true
	})

	if flaw == "" && flags.Sign() != 0 {
		flaw = FlawUnrecognizedFlag
	}

	if flaw == "" {
		for tag := range fields {
			if tag.IsEven() {
				flaw = FlawUnrecognizedEvenTag
				break
			}
		}
	}

	if flaw != "" {
		cenotaph := &CenotaphError{Flaw: flaw, Mint: runestone.Mint}
		if runestone.Etching != nil {
			cenotaph.Etching = runestone.Etching.Rune
		}

		return nil, cenotaph
	}

	return runestone, nil
}

func parseTerms(fields map[Tag][]*big.Int) *Terms {
	terms := new(Terms)
	TagAmount.take(fields, 1, func(v []*big.Int) bool {
		terms.Amount = v[0]
		return true
	})
	TagCap.take(fields, 1, func(v []*big.Int) bool {
		terms.Cap = v[0]
		return true
	})

	uint64Field := func(dst **uint64) func([]*big.Int) bool {
		return func(v []*big.Int) bool {
			if !v[0].IsUint64() {
				return false
			}

			value := v[0].Uint64()
			*dst = &value
			return true
		}
	}
	TagHeightStart.take(fields, 1, uint64Field(&terms.HeightStart))
	TagHeightEnd.take(fields, 1, uint64Field(&terms.HeightEnd))
	TagOffsetStart.take(fields, 1, uint64Field(&terms.OffsetStart))
	TagOffsetEnd.take(fields, 1, uint64Field(&terms.OffsetEnd))

	return terms
}

// IntSequence returns Runestone as integer sequence of tag/value pairs followed by the edicts.
func (runestone *Runestone) IntSequence() ([]*big.Int, error) {
	var sequence []*big.Int
	if etching := runestone.Etching; etching != nil {
		flags := new(big.Int)
		FlagEtching.Set(flags)
		if etching.Terms != nil {
			FlagTerms.Set(flags)
		}
		if etching.Turbo {
			FlagTurbo.Set(flags)
		}

		sequence = TagFlags.encode(sequence, flags)
		if etching.Rune != nil {
			sequence = TagRune.encode(sequence, etching.Rune.Value())
		}
		if etching.Divisibility != nil {
			sequence = TagDivisibility.encode(sequence, big.NewInt(int64(*etching.Divisibility)))
		}
		if etching.Spacers != nil {
			sequence = TagSpacers.encode(sequence, new(big.Int).SetUint64(uint64(*etching.Spacers)))
		}
		if etching.Symbol != nil {
			sequence = TagSymbol.encode(sequence, big.NewInt(int64(*etching.Symbol)))
		}
		if etching.Premine != nil {
			sequence = TagPremine.encode(sequence, etching.Premine)
		}

		if terms := etching.Terms; terms != nil {
			if terms.Amount != nil {
				sequence = TagAmount.encode(sequence, terms.Amount)
			}
			if terms.Cap != nil {
				sequence = TagCap.encode(sequence, terms.Cap)
			}
			for _, field := range []struct {
				tag   Tag
				value *uint64
			}{
				{TagHeightStart, terms.HeightStart},
				{TagHeightEnd, terms.HeightEnd},
				{TagOffsetStart, terms.OffsetStart},
				{TagOffsetEnd, terms.OffsetEnd},
			} {
				if field.value != nil {
					sequence = field.tag.encode(sequence, new(big.Int).SetUint64(*field.value))
				}
			}
		}
	}

	if runestone.Mint != nil {
		sequence = TagMint.encode(sequence, runestone.Mint.ToIntSeq()...)
	}

	if runestone.Pointer != nil {
		sequence = TagPointer.encode(sequence, new(big.Int).SetUint64(uint64(*runestone.Pointer)))
	}

	if len(runestone.Edicts) > 0 {
		edicts, err := edictsToIntSeq(runestone.Edicts)
		if err != nil {
			return nil, err
		}

		sequence = append(sequence, TagBody.BigInt())
		sequence = append(sequence, edicts...)
	}

	return sequence, nil
}

// Serialize returns Runestone payload as LEB128 bytes.
func (runestone *Runestone) Serialize() ([]byte, error) {
	sequence, err := runestone.IntSequence()
	if err != nil {
		return nil, err
	}

	return IntSequenceIntoPayload(sequence)
}

// Encipher returns Runestone as OP_RETURN script: OP_RETURN OP_13 followed by payload pushes of 520 bytes at most.
// Scripts larger than MaxStandardOpReturnSize are rejected with ErrRunestoneTooLarge.
func (runestone *Runestone) Encipher() ([]byte, error) {
	payload, err := runestone.Serialize()
	if err != nil {
		return nil, err
	}

	script := utils.AppendChunkedPush([]byte{txscript.OP_RETURN, magicNumber}, payload)

	if len(script) > MaxStandardOpReturnSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRunestoneTooLarge, len(script))
	}

	return script, nil
}

// Equal compares runestones field by field.
func (runestone *Runestone) Equal(other *Runestone) bool {
	if runestone == nil || other == nil {
		return runestone == other
	}

	if len(runestone.Edicts) != len(other.Edicts) {
		return false
	}
	for i := range runestone.Edicts {
		if !runestone.Edicts[i].Equal(other.Edicts[i]) {
			return false
		}
	}

	return runestone.Etching.Equal(other.Etching) &&
		equalPtr(runestone.Mint, other.Mint) &&
		equalPtr(runestone.Pointer, other.Pointer)
}
