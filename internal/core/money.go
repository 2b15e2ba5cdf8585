// Package core provides the ledger domain types and Rupiah money handling.
//
// Amounts are whole Rupiah held in int64; there is no minor unit. Input
// strings follow the Indonesian grouping convention where '.' separates
// thousands and ',' introduces a fractional part, which must be zero.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseRupiah converts a formatted amount to whole Rupiah.
//
// Examples:
//
//	ParseRupiah("1.100.000")    -> 1100000, nil
//	ParseRupiah("Rp 250.000")   -> 250000, nil
//	ParseRupiah("15000")        -> 15000, nil
//	ParseRupiah("10.000,00")    -> 10000, nil
//	ParseRupiah("10.000,75")    -> 0, ErrInvalidAmount
func ParseRupiah(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "Rp")
	s = strings.TrimSpace(strings.TrimPrefix(s, "."))
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	intPart, fracPart, _ := strings.Cut(s, ",")
	for _, r := range fracPart {
		if r != '0' {
			return 0, ErrInvalidAmount
		}
	}
	groups := strings.Split(intPart, ".")
	for i, g := range groups {
		if g == "" {
			return 0, ErrInvalidAmount
		}
		// Grouped input must use complete thousands after the first group.
		if len(groups) > 1 && i > 0 && len(g) != 3 {
			return 0, ErrInvalidAmount
		}
		for _, r := range g {
			if !unicode.IsDigit(r) {
				return 0, ErrInvalidAmount
			}
		}
	}
	v, err := strconv.ParseInt(strings.Join(groups, ""), 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatThousands renders n with '.' thousands separators.
func FormatThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatRupiah renders n as a display string, e.g. "Rp 1.100.000".
func FormatRupiah(n int64) string {
	if n < 0 {
		return "-Rp " + FormatThousands(-n)
	}
	return "Rp " + FormatThousands(n)
}
