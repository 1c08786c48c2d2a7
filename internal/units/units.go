package units

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a conversion input is not a valid
// non-negative decimal number.
var ErrInvalidAmount = errors.New("invalid amount")

// DefaultDecimals is the common on-chain fixed-point precision.
const DefaultDecimals = 18

// RoundingMode selects how a fractional base-unit remainder is resolved.
type RoundingMode int

const (
	// RoundDown truncates toward zero.
	RoundDown RoundingMode = iota
	// RoundHalfUp rounds to nearest, ties away from zero.
	RoundHalfUp
	// RoundUp rounds away from zero.
	RoundUp
)

// ToBaseUnits converts a human-readable decimal amount into the token's
// integer base-unit representation, truncating any remainder below one
// base unit.
func ToBaseUnits(amount string, decimals int) (string, error) {
	return ToBaseUnitsRounded(amount, decimals, RoundDown)
}

// ToBaseUnitsRounded is ToBaseUnits with an explicit rounding mode.
func ToBaseUnitsRounded(amount string, decimals int, mode RoundingMode) (string, error) {
	d, err := parseNonNegative(amount)
	if err != nil {
		return "", err
	}
	if decimals < 0 {
		return "", fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}

	shifted := d.Shift(int32(decimals))
	return round(shifted, mode).String(), nil
}

// FromBaseUnits converts an integer base-unit amount into a human-readable
// decimal string with no unnecessary trailing zeros.
func FromBaseUnits(amount string, decimals int) (string, error) {
	d, err := parseNonNegative(amount)
	if err != nil {
		return "", err
	}
	if !d.IsInteger() {
		return "", fmt.Errorf("%w: base units must be an integer, got %q", ErrInvalidAmount, amount)
	}
	if decimals < 0 {
		return "", fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}

	return d.Shift(int32(-decimals)).String(), nil
}

// FromWei converts an 18-decimal base-unit amount, the default on-chain
// fixed-point convention.
func FromWei(amount string) (string, error) {
	return FromBaseUnits(amount, DefaultDecimals)
}

func parseNonNegative(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, amount)
	}
	return d, nil
}

func round(d decimal.Decimal, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundHalfUp:
		return d.Round(0)
	case RoundUp:
		return d.RoundUp(0)
	default:
		return d.Truncate(0)
	}
}
