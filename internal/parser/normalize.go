package parser

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultReferenceYear is assumed for dates printed without a year.
const DefaultReferenceYear = 2025

var (
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
	// Everything except digits, the decimal point and the minus sign:
	// currency symbols, thousands separators, stray letters.
	nonAmountChars = regexp.MustCompile(`[^\d.-]`)
)

// exactDigits is enough fractional digits to expand a float64 amount without
// moving it across a rounding boundary.
const exactDigits = 40

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []struct {
	layout  string
	hasYear bool
}{
	{"2 Jan", false},   // 12 May
	{"2/1/2006", true}, // 12/05/2025
	{"2-1-2006", true}, // 12-05-2025
}

// DateNormalizer turns an anchor date fragment into a calendar date.
type DateNormalizer struct {
	// ReferenceYear replaces the missing year of "12 May" style dates.
	ReferenceYear int
	// Now supplies the fallback value. Defaults to time.Now.
	Now func() time.Time
}

// NewDateNormalizer returns a normalizer that fills missing years with referenceYear.
func NewDateNormalizer(referenceYear int) DateNormalizer {
	return DateNormalizer{ReferenceYear: referenceYear, Now: time.Now}
}

// Normalize parses raw and reports whether the fallback was used.
//
// Unparsable input never fails: the current time is returned instead and
// fallback is true. Callers that need strict dates must check the flag.
func (n DateNormalizer) Normalize(raw string) (date time.Time, fallback bool) {
	cleaned := strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))

	for _, candidate := range dateLayouts {
		parsed, err := time.Parse(candidate.layout, cleaned)
		if err != nil {
			continue
		}
		if candidate.hasYear {
			return parsed, false
		}

		year := n.ReferenceYear
		if year == 0 {
			year = DefaultReferenceYear
		}
		dated := time.Date(year, parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		if dated.Day() != parsed.Day() {
			// 29 Feb outside a leap year
			break
		}
		return dated, false
	}

	return n.now(), true
}

func (n DateNormalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// NormalizeAmount parses an amount fragment such as "£1,234.56".
//
// The fragment is read as a float64 and the exact binary value is rounded
// half-to-even to two places, so "2.675" gives 2.67 and "10.005" gives 10.01.
// Credits are negated. Unparsable input yields zero with fallback set, so
// zero is ambiguous without the flag.
func NormalizeAmount(raw string, isCredit bool) (amount decimal.Decimal, fallback bool) {
	cleaned := nonAmountChars.ReplaceAllString(raw, "")

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero, true
	}

	parsed, err := decimal.NewFromString(new(big.Float).SetFloat64(f).Text('f', exactDigits))
	if err != nil {
		return decimal.Zero, true
	}

	parsed = parsed.RoundBank(2)
	if isCredit {
		parsed = parsed.Neg()
	}
	return parsed, false
}
