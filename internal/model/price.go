package model

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"cosmossdk.io/math"
)

// ErrZeroDenominator is returned when a ratio is taken against zero.
var ErrZeroDenominator = errors.New("zero denominator")

// Ratio divides two raw on-chain amounts into an 18-decimal price.
// Both operands stay arbitrary-precision integers until the single division,
// which rounds half-even on the 18th decimal.
func Ratio(num, den math.Int) (math.LegacyDec, error) {
	if den.IsNil() || den.IsZero() {
		return math.LegacyDec{}, ErrZeroDenominator
	}
	if num.IsNil() {
		return math.LegacyDec{}, errors.New("nil numerator")
	}
	return math.LegacyNewDecFromInt(num).Quo(math.LegacyNewDecFromInt(den)), nil
}

// ParseDec parses a price from a JSON number or numeric string.
// Exponent forms and more than 18 decimals (as written by float serializers)
// are accepted and truncated to LegacyDec precision.
func ParseDec(s string) (math.LegacyDec, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" || s == "null" {
		return math.LegacyZeroDec(), nil
	}
	if d, err := math.LegacyNewDecFromStr(s); err == nil {
		return d, nil
	}

	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		return math.LegacyDec{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	text := f.Text('f', math.LegacyPrecision+4)
	if whole, frac, ok := strings.Cut(text, "."); ok && len(frac) > math.LegacyPrecision {
		text = whole + "." + frac[:math.LegacyPrecision]
	}
	return math.LegacyNewDecFromStr(text)
}

// DecFloat converts a price for export; gauges are the only float64 consumers.
func DecFloat(d math.LegacyDec) float64 {
	if d.IsNil() {
		return 0
	}
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// IntFloat converts a raw amount for export.
func IntFloat(i math.Int) float64 {
	if i.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(i.BigInt()).Float64()
	return f
}

// MustDec parses a decimal literal and panics on failure. For constants and tests.
func MustDec(s string) math.LegacyDec {
	d, err := ParseDec(s)
	if err != nil {
		panic(err)
	}
	return d
}
