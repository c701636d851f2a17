package matching

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// currencySymbols are stripped from vendors and amounts before comparison.
const currencySymbols = "$€£¥₹"

// NormalizeVendor lowercases a vendor name and removes currency symbols,
// commas and surrounding whitespace. Inner runs of whitespace collapse to one
// space.
func NormalizeVendor(vendor string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || strings.ContainsRune(currencySymbols, r) {
			return -1
		}
		return unicode.ToLower(r)
	}, vendor)
	return strings.Join(strings.Fields(cleaned), " ")
}

// VendorsMatch reports whether either normalized vendor contains the other.
// Empty vendors never match.
func VendorsMatch(a, b string) bool {
	na, nb := NormalizeVendor(a), NormalizeVendor(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// ParseAmount parses a money string such as "$1,234.56", " 152.34 " or
// "(12.00)". Parenthesised values are negative. ok is false when nothing
// numeric remains.
func ParseAmount(raw string) (amount decimal.Decimal, ok bool) {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) || strings.ContainsRune(currencySymbols, r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
