// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"github.com/btcsuite/btcd/txscript"
)

// Tag defines special tag for distinguishing inscription field type.
type Tag byte

const (
	// TagBody defines the start of the body, all next data pushes are body chunks.
	TagBody Tag = 0
	// TagContentType defines content-type tag in the inscription protocol.
	// The value is the MIME type of the body.
	TagContentType Tag = 1
	// TagPointer defines pointer tag in the inscription protocol.
	// Points on the sat at the given position in the outputs for the inscription to be made.
	TagPointer Tag = 2
	// TagParent defines parent tag in the inscription protocol.
	TagParent Tag = 3
	// TagMetadata defines metadata tag in the inscription protocol.
	// CBOR encoded, split into pushes of 520 bytes at most, concatenated before decoding.
	TagMetadata Tag = 5
	// TagMetaprotocol defines meta-protocol tag in the inscription protocol.
	TagMetaprotocol Tag = 7
	// TagContentEncoding defines content-encoding tag in the inscription protocol.
	TagContentEncoding Tag = 9
	// TagDelegate defines delegate tag in the inscription protocol.
	TagDelegate Tag = 11
	// TagRune defines rune commitment tag, required in the etching reveal envelope.
	TagRune Tag = 13
	// TagNote defines Note tag in the inscription protocol.
	TagNote Tag = 15
	// TagUnbound defines unbound tag in the inscription protocol.
	TagUnbound Tag = 66
	// TagNop defines Nop tag in the inscription protocol.
	TagNop Tag = 255
)

// IsEven reports whether unknown tag of this value makes inscription unrecognized.
func (t Tag) IsEven() bool {
	return t%2 == 0
}

// appendTo appends tag as one byte data push.
func (t Tag) appendTo(script []byte) []byte {
	return append(script, txscript.OP_DATA_1, byte(t))
}
