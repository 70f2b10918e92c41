// Package money provides fixed-point decimal parsing and formatting for
// currency amounts, independent of any particular currency.
//
// Amounts are stored as *big.Int in the smallest unit (1 unit of currency =
// 10^Decimals smallest units), never as float64, so that repeated additions
// and comparisons stay exact.
package money

import (
	"math"
	"math/big"
	"strings"
)

// Decimals is the number of fractional digits carried by every amount.
// Six digits comfortably covers both fiat currencies (2 digits) and
// crypto-style settlement feeds without losing precision either way.
const Decimals = 6

// Zero returns the additive identity.
func Zero() *big.Int { return big.NewInt(0) }

// Parse converts a decimal string (e.g. "1.50", "$1,234.56") into its
// smallest-unit representation. Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - A leading '$' and any ',' separators are stripped
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to Decimals places
//   - A leading '-' is permitted (balances may go negative under overdraft)
func Parse(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	if s == "" {
		return big.NewInt(0), true
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", -1)
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, false
	}
	if neg {
		result.Neg(result)
	}
	return result, true
}

// ParsePositive is like Parse but rejects zero and negative amounts,
// matching the "amount > 0" precondition shared by transfer requests and
// external transactions.
func ParsePositive(s string) (*big.Int, bool) {
	v, ok := Parse(s)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

// Format converts a smallest-unit amount to a decimal string with exactly
// Decimals fractional digits (e.g. "1.500000", "-0.010000").
func Format(amount *big.Int) string {
	if amount == nil {
		return zeroString()
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	point := len(s) - Decimals
	result := s[:point] + "." + s[point:]
	if neg {
		result = "-" + result
	}
	return result
}

func zeroString() string {
	return Format(big.NewInt(0))
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b *big.Int) *big.Int {
	return new(big.Int).Abs(new(big.Int).Sub(a, b))
}

// RelativeDiff returns |a-b| / ((a+b)/2) as a float64, used by the fuzzy
// matcher's amount-similarity score. Returns 0 if a == b, and +Inf if the
// average is zero and the amounts differ.
func RelativeDiff(a, b *big.Int) float64 {
	if a.Cmp(b) == 0 {
		return 0
	}
	diff := new(big.Float).SetInt(AbsDiff(a, b))
	avg := new(big.Float).Quo(
		new(big.Float).SetInt(new(big.Int).Add(a, b)),
		big.NewFloat(2),
	)
	if avg.Sign() == 0 {
		return math.Inf(1)
	}
	ratio := new(big.Float).Quo(diff, avg)
	f, _ := ratio.Float64()
	return f
}
