// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package numbers

import (
	"errors"
	"math"
	"math/big"
)

// ErrOverflow indicates that arithmetic result does not fit into the target type.
var ErrOverflow = errors.New("arithmetic overflow")

// ErrUnderflow indicates that subtraction result would be negative.
var ErrUnderflow = errors.New("arithmetic underflow")

// OneBigInt defies 1 as *big.Int type.
var OneBigInt = big.NewInt(1)

// MaxUInt128Value defines maximum value of uint128 type.
var MaxUInt128Value = new(big.Int).Sub(new(big.Int).Lsh(OneBigInt, 128), OneBigInt)

// AddUint64 returns a+b or ErrOverflow.
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}

	return a + b, nil
}

// SubUint64 returns a-b or ErrUnderflow when b > a.
func SubUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}

	return a - b, nil
}

// MulUint64 returns a*b or ErrOverflow.
func MulUint64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrOverflow
	}

	return a * b, nil
}

// SumUint64 adds all values with overflow check.
func SumUint64(values ...uint64) (sum uint64, err error) {
	for _, value := range values {
		sum, err = AddUint64(sum, value)
		if err != nil {
			return 0, err
		}
	}

	return sum, nil
}

// IsUint128 returns true if num is in [0; 2^128-1].
func IsUint128(num *big.Int) bool {
	return num != nil && num.Sign() >= 0 && num.Cmp(MaxUInt128Value) <= 0
}

// AddUint128 returns a+b as a new value or ErrOverflow if the sum leaves uint128 range.
func AddUint128(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if !IsUint128(sum) {
		return nil, ErrOverflow
	}

	return sum, nil
}

// IsPositive returns true if the number is grater than zero.
func IsPositive(num *big.Int) bool {
	return num.Sign() > 0
}

// IsZero returns true if the number is zero.
func IsZero(num *big.Int) bool {
	return num.Sign() == 0
}

// IsGreater returns true is a > b.
func IsGreater(a, b *big.Int) bool {
	return a.Cmp(b) > 0
}

// IsEqual returns true is a = b.
func IsEqual(a, b *big.Int) bool {
	return a.Cmp(b) == 0
}

// IsLess returns true is a < b.
func IsLess(a, b *big.Int) bool {
	return a.Cmp(b) < 0
}
