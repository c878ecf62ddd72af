// Package types provides common types used across Tally.
package types

import (
	"errors"
	"math"
	"strconv"
)

// ErrOverflow is returned when token arithmetic would wrap around.
// The root package re-exports it as tally.ErrOverflow.
var ErrOverflow = errors.New("tally: amount overflow")

// Tokens is a ledger amount in indivisible units. All arithmetic is
// integer-only and checked — balances, the revenue pool, and tier prices
// never wrap silently.
type Tokens uint64

// Add returns t + other, or ErrOverflow if the sum wraps.
func (t Tokens) Add(other Tokens) (Tokens, error) {
	sum := t + other
	if sum < t {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns t - other, or ErrOverflow if other exceeds t.
func (t Tokens) Sub(other Tokens) (Tokens, error) {
	if other > t {
		return 0, ErrOverflow
	}
	return t - other, nil
}

// Mul returns t × n, or ErrOverflow if the product wraps.
func (t Tokens) Mul(n uint64) (Tokens, error) {
	if t == 0 || n == 0 {
		return 0, nil
	}
	if uint64(t) > math.MaxUint64/n {
		return 0, ErrOverflow
	}
	return t * Tokens(n), nil
}

// Min returns the smaller of two amounts.
func (t Tokens) Min(other Tokens) Tokens {
	if other < t {
		return other
	}
	return t
}

// IsZero returns true if the amount is zero.
func (t Tokens) IsZero() bool { return t == 0 }

// String returns the amount in decimal.
func (t Tokens) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// SaturatingAdd sums two counters, clamping at the maximum instead of
// wrapping. Used for advisory bookkeeping (attribution weights) where an
// overflow must never fail the surrounding ledger operation.
func SaturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}
