// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and decimal representations.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//   ParseDecimalToCents("12.34") -> 1234, nil
//   ParseDecimalToCents("12,34") -> 1234, nil
//   ParseDecimalToCents("12.345") -> 1234, nil (rounds down)
//   ParseDecimalToCents("12.346") -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	// Split into integer and fractional part
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	// Convert integer part - check for overflow
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64 = 0
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 {
				if fracPart[2] >= '5' {
					fracCents++
				}
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// Decimal returns the amount in currency units.
// Bucket means are fractional, so reporting goes through decimal rather than float64.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimals, e.g. "15.49".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MustParseMoney parses a decimal string or panics. Intended for tests and
// compile-time defaults only.
func MustParseMoney(s string) Money {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		panic("core: invalid money literal " + strconv.Quote(s))
	}
	return Money{Cents: cents}
}

// ParseAmount parses a ledger amount such as "15.49", "€ 15,49", "$1,234.50",
// "1.234,50" or "$1,500". Currency symbols and spaces are ignored.
//
// When both separators are present the last one is the decimal point. A lone
// separator kind is a thousands separator when it repeats or is followed by
// exactly three digits, so "1.234" and "1,234" both mean 1234. Grouping must
// be well formed and "$" or "£" amounts must use a decimal point; anything
// else is rejected rather than guessed.
func ParseAmount(s string) (Money, error) {
	var symbol rune
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£':
			symbol = r
			return -1
		case ' ', '\u00a0':
			return -1
		}
		return r
	}, s)
	s, err := normalizeSeparators(s, decimalPointFor(symbol))
	if err != nil {
		return Money{}, err
	}
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// decimalPointFor returns the decimal separator a currency symbol implies,
// or 0 when either is customary.
func decimalPointFor(symbol rune) byte {
	switch symbol {
	case '$', '£':
		return '.'
	}
	return 0
}

// normalizeSeparators strips thousands separators from s and leaves at most
// one decimal separator.
func normalizeSeparators(s string, decimalPoint byte) (string, error) {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	if dots+commas == 0 {
		return s, nil
	}

	var thousands, dec byte
	switch {
	case dots > 0 && commas > 0:
		thousands, dec = '.', ','
		if strings.LastIndexByte(s, '.') > strings.LastIndexByte(s, ',') {
			thousands, dec = ',', '.'
		}
		if strings.Count(s, string(dec)) > 1 {
			return "", ErrInvalidAmount
		}
	default:
		sep := byte('.')
		if commas > 0 {
			sep = ','
		}
		if dots+commas > 1 || len(s)-strings.LastIndexByte(s, sep)-1 == 3 {
			thousands = sep
		} else {
			dec = sep
		}
	}

	if decimalPoint != 0 && (thousands == decimalPoint || (dec != 0 && dec != decimalPoint)) {
		return "", ErrInvalidAmount
	}
	if thousands != 0 {
		intPart := s
		if dec != 0 {
			intPart = s[:strings.LastIndexByte(s, dec)]
		}
		if !wellGrouped(intPart, thousands) {
			return "", ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, string(thousands), "")
	}
	return s, nil
}

// wellGrouped reports whether s reads as 1-3 leading digits followed by
// groups of exactly three.
func wellGrouped(s string, sep byte) bool {
	groups := strings.Split(s, string(sep))
	head := groups[0]
	if len(head) == 0 || len(head) > 3 || head[0] == '0' {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}
