// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
)

// ErrUnknownRole defines that input role key is unknown.
var ErrUnknownRole = errors.New("unknown input role")

// Role defines who funds the input. It is used as a key in PSBT Unknowns field
// to distinguish inputs and their indexes.
type Role byte

const (
	// RoleSender defines inputs of the rune or bitcoin sender.
	RoleSender Role = 0x10
	// RoleSecondarySender defines bitcoin inputs of the combined transfer sender.
	RoleSecondarySender Role = 0x20
	// RoleFeePayer defines inputs paying the fee and postage.
	RoleFeePayer Role = 0x30
)

// RoleFromBytes parses bytes array into Role if any.
func RoleFromBytes(b []byte) (Role, error) {
	if len(b) != 1 {
		return 0, ErrUnknownRole
	}

	switch Role(b[0]) {
	case RoleSender, RoleSecondarySender, RoleFeePayer:
		return Role(b[0]), nil
	}

	return 0, ErrUnknownRole
}

// Byte returns Role as byte.
func (r Role) Byte() byte {
	return byte(r)
}

// Bytes returns Role as bytes array.
func (r Role) Bytes() []byte {
	return []byte{byte(r)}
}

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleSecondarySender:
		return "secondary-sender"
	case RoleFeePayer:
		return "fee-payer"
	}

	return "unknown"
}
