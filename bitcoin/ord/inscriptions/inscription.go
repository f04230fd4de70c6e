// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/utils"
	"github.com/BoostyLabs/runecustody/internal/reverse"
	"github.com/BoostyLabs/runecustody/internal/sequencereader"
)

var (
	// ErrMalformedInscription defines that inscription is malformed and failed to parse.
	ErrMalformedInscription = errors.New("inscription is malformed")
	// ErrNoInscription defines that script has no inscription envelope.
	ErrNoInscription = errors.New("no inscription envelope")
	// ErrRepeatedFieldData defines that already filled field met while parsing.
	ErrRepeatedFieldData = errors.New("field already filled")
	// ErrUnrecognizedEvenField defines unknown even tag met while parsing.
	ErrUnrecognizedEvenField = errors.New("unrecognized even field")
)

// protocolID defines ord tag for inscription to disambiguate inscriptions from other uses of envelopes.
var protocolID = []byte("ord")

// Inscription describes inscription type of the inscription protocol,
// which inscribe sats with arbitrary content, creating bitcoin-native digital artifacts.
type Inscription struct {
	Body            []byte
	ContentEncoding string
	ContentType     string
	Delegate        *ID
	Metadata        []byte
	Metaprotocol    []byte
	Parents         []ID
	Pointer         *big.Int
	Rune            *runes.Rune
}

// Envelope returns inscription as OP_FALSE OP_IF "ord" <fields...> [OP_0 <body...>] OP_ENDIF script.
// Fields are written in the order ord writes them, body and metadata are split into 520 bytes chunks.
func (i *Inscription) Envelope() []byte {
	script := []byte{txscript.OP_FALSE, txscript.OP_IF}
	script = utils.AppendPush(script, protocolID)

	if len(i.ContentType) != 0 {
		script = utils.AppendPush(TagContentType.appendTo(script), []byte(i.ContentType))
	}

	if len(i.ContentEncoding) != 0 {
		script = utils.AppendPush(TagContentEncoding.appendTo(script), []byte(i.ContentEncoding))
	}

	if len(i.Metaprotocol) != 0 {
		script = utils.AppendPush(TagMetaprotocol.appendTo(script), i.Metaprotocol)
	}

	for _, parent := range i.Parents {
		script = utils.AppendPush(TagParent.appendTo(script), parent.IntoDataPush())
	}

	if i.Delegate != nil {
		script = utils.AppendPush(TagDelegate.appendTo(script), i.Delegate.IntoDataPush())
	}

	if i.Pointer != nil {
		script = utils.AppendPush(TagPointer.appendTo(script), reverse.LittleEndian(i.Pointer))
	}

	for start := 0; start < len(i.Metadata); start += utils.MaxScriptElementSize {
		end := min(start+utils.MaxScriptElementSize, len(i.Metadata))
		script = utils.AppendPush(TagMetadata.appendTo(script), i.Metadata[start:end])
	}

	if i.Rune != nil {
		script = utils.AppendPush(TagRune.appendTo(script), i.Rune.Commitment())
	}

	if len(i.Body) != 0 {
		script = append(script, txscript.OP_0)
		script = utils.AppendChunkedPush(script, i.Body)
	}

	return append(script, txscript.OP_ENDIF)
}

// LeafScript returns tapscript leaf that requires signature of the x-only key and carries the envelope.
func (i *Inscription) LeafScript(xOnlyPubKey []byte) ([]byte, error) {
	script, err := utils.NewCheckSigLeafScript(xOnlyPubKey)
	if err != nil {
		return nil, err
	}

	return append(script, i.Envelope()...), nil
}

// instruction is a single tokenized script operation.
type instruction struct {
	opcode byte
	data   []byte
}

// isPush reports whether instruction pushes data (empty push included).
func (in instruction) isPush() bool {
	return in.opcode <= txscript.OP_PUSHDATA4
}

// FromWitness parses inscription from the tapscript of the script path spend witness.
func FromWitness(witness wire.TxWitness) (*Inscription, error) {
	// INFO: [..., tapscript, control block], annex is not supported.
	if len(witness) < 2 {
		return nil, ErrNoInscription
	}

	return ParseEnvelope(witness[len(witness)-2])
}

// ParseEnvelope parses the first inscription envelope found in the script.
func ParseEnvelope(script []byte) (*Inscription, error) {
	var (
		instructions []instruction
		tokenizer    = txscript.MakeScriptTokenizer(0, script)
	)
	for tokenizer.Next() {
		instructions = append(instructions, instruction{opcode: tokenizer.Opcode(), data: tokenizer.Data()})
	}
	if tokenizer.Err() != nil {
		return nil, ErrMalformedInscription
	}

	for idx := 0; idx+2 < len(instructions); idx++ {
		if instructions[idx].opcode == txscript.OP_FALSE &&
			instructions[idx+1].opcode == txscript.OP_IF &&
			instructions[idx+2].isPush() && bytes.Equal(instructions[idx+2].data, protocolID) {
			return parseFields(sequencereader.New(instructions[idx+3:]))
		}
	}

	return nil, ErrNoInscription
}

// parseFields reads tag/value pairs and the body up to OP_ENDIF.
func parseFields(sr *sequencereader.SequenceReader[instruction]) (*Inscription, error) {
	inscription := new(Inscription)
	for sr.HasNext() {
		tag, _ := sr.Next() // skip error due to the loop condition check.
		switch {
		case tag.opcode == txscript.OP_ENDIF:
			return inscription, nil
		case tag.opcode == txscript.OP_0:
			body, err := readBody(sr)
			if err != nil {
				return nil, err
			}

			inscription.Body = body

			return inscription, nil
		case !tag.isPush() || len(tag.data) != 1:
			return nil, ErrMalformedInscription
		}

		value, err := sr.Next()
		if err != nil || !value.isPush() {
			return nil, ErrMalformedInscription
		}

		if err = inscription.fillFieldByTag(Tag(tag.data[0]), value.data); err != nil {
			return nil, err
		}
	}

	// OP_ENDIF is missing.
	return nil, ErrMalformedInscription
}

// readBody concatenates body chunks up to OP_ENDIF.
func readBody(sr *sequencereader.SequenceReader[instruction]) ([]byte, error) {
	var body []byte
	for sr.HasNext() {
		chunk, _ := sr.Next()
		if chunk.opcode == txscript.OP_ENDIF {
			return body, nil
		}
		if !chunk.isPush() {
			return nil, ErrMalformedInscription
		}

		body = append(body, chunk.data...)
	}

	return nil, ErrMalformedInscription
}

// fillFieldByTag fills Inscription fields by provided tag.
func (i *Inscription) fillFieldByTag(tag Tag, value []byte) (err error) {
	switch tag {
	case TagContentType:
		if len(i.ContentType) != 0 {
			return ErrRepeatedFieldData
		}

		i.ContentType = string(value)
	case TagPointer:
		if i.Pointer != nil {
			return ErrRepeatedFieldData
		}

		i.Pointer = reverse.FromLittleEndian(value)
	case TagParent:
		id, err := NewIDFromDataPush(value)
		if err != nil {
			return err
		}

		i.Parents = append(i.Parents, id)
	case TagMetadata:
		i.Metadata = append(i.Metadata, value...)
	case TagMetaprotocol:
		if len(i.Metaprotocol) != 0 {
			return ErrRepeatedFieldData
		}

		i.Metaprotocol = value
	case TagContentEncoding:
		if len(i.ContentEncoding) != 0 {
			return ErrRepeatedFieldData
		}

		i.ContentEncoding = string(value)
	case TagDelegate:
		if i.Delegate != nil {
			return ErrRepeatedFieldData
		}

		id, err := NewIDFromDataPush(value)
		if err != nil {
			return err
		}

		i.Delegate = &id
	case TagRune:
		if i.Rune != nil {
			return ErrRepeatedFieldData
		}

		i.Rune, err = runes.NewRuneFromNumber(reverse.FromLittleEndian(value))
		if err != nil {
			return err
		}
	case TagNote, TagNop, TagUnbound:
	default:
		if tag.IsEven() {
			return ErrUnrecognizedEvenField
		}
	}

	return nil
}
