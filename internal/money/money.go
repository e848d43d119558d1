// Package money parses free-text marketplace price strings into decimal
// amounts expressed in a single reference currency.
package money

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// RateTable maps ISO currency codes to their conversion rate into the
// reference currency.
type RateTable map[string]decimal.Decimal

// NewRateTable builds a RateTable from plain float rates as carried in
// configuration.
func NewRateTable(rates map[string]float64) RateTable {
	table := make(RateTable, len(rates))
	for code, rate := range rates {
		table[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	return table
}

// amountRE captures an optional currency marker, an integer part that may use
// dot, comma, or space as thousands separators, and an optional 1-2 digit
// fraction. A separator followed by exactly three digits groups thousands; a
// trailing separator with one or two digits is the decimal mark.
var amountRE = regexp.MustCompile(`(?i)(€|£|US\$|A\$|C\$|\$|EUR|GBP|USD|AUD|CAD)?\s*([0-9]{1,3}(?:[.,\x{00a0} ][0-9]{3})*|[0-9]+)(?:[.,]([0-9]{1,2}))?`)

// symbolPrecedence resolves currency markers most-specific first so that
// "US$" is not shadowed by the bare dollar sign.
var symbolPrecedence = []struct {
	marker string
	code   string
}{
	{"US$", "USD"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
}

var codeRE = regexp.MustCompile(`(?i)\b(EUR|GBP|USD|AUD|CAD)\b`)

// bidOnlyRE matches language indicating an auction with a hidden asking
// price. Such text yields no amount at all, never zero.
var bidOnlyRE = regexp.MustCompile(`(?i)\b(bieden|bied|bod|bid|n\.?o\.?t\.?k\.?|op aanvraag|make offer)\b`)

var freeRE = regexp.MustCompile(`(?i)\b(gratis|free)\b`)

var separatorRE = regexp.MustCompile(`[.,\x{00a0} ]`)

// Normalize parses a price string and converts it to the reference currency,
// rounded to two decimal places. The second return is false when no numeric
// amount can be derived: empty or unparseable text, or recognised bid-only
// language. Recognised "free" language yields 0.00 with ok=true. Normalize is
// pure and never fails loudly.
func Normalize(text, reference string, rates RateTable) (decimal.Decimal, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Decimal{}, false
	}

	if bidOnlyRE.MatchString(s) {
		return decimal.Decimal{}, false
	}
	if freeRE.MatchString(s) {
		return decimal.Zero.Round(2), true
	}

	m := amountRE.FindStringSubmatch(s)
	if m == nil || m[2] == "" {
		return decimal.Decimal{}, false
	}

	intPart := separatorRE.ReplaceAllString(m[2], "")
	raw := intPart
	if m[3] != "" {
		raw += "." + m[3]
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}

	code := detectCurrency(s, m[1])
	if code == "" {
		code = strings.ToUpper(reference)
	}

	// Unknown currencies convert at 1:1 rather than failing the parse.
	rate := decimal.NewFromInt(1)
	if r, ok := rates[code]; ok {
		rate = r
	}

	return value.Mul(rate).Round(2), true
}

// IsBidOnly reports whether the text advertises a hidden, bid-only price.
func IsBidOnly(text string) bool {
	return bidOnlyRE.MatchString(text)
}

func detectCurrency(s, matched string) string {
	if matched != "" {
		upper := strings.ToUpper(matched)
		for _, entry := range symbolPrecedence {
			if strings.EqualFold(entry.marker, matched) {
				return entry.code
			}
		}
		if codeRE.MatchString(upper) {
			return upper
		}
	}
	for _, entry := range symbolPrecedence {
		if strings.Contains(s, entry.marker) {
			return entry.code
		}
	}
	if m := codeRE.FindString(s); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}
