package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/models"
)

func noMarkerLayout() layout.Settings {
	return layout.Settings{
		PageKeywords:       []string{},
		SkipKeywords:       []string{"BALANCE"},
		DescriptionOffsets: []int{1},
		AmountOffset:       2,
		CreditOffset:       0,
	}
}

func markerLayout() layout.Settings {
	s := noMarkerLayout()
	s.CreditOffset = 3
	s.CreditMarkerPresent = true
	return s
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestScanSingleRecord(t *testing.T) {
	scanner := NewScanner(noMarkerLayout(), testDates())

	got := scanner.Scan([]string{"12 May", "Coffee Shop", "4.50"})
	require.Len(t, got, 1)

	assert.Equal(t, time.Date(2025, time.May, 12, 0, 0, 0, 0, time.UTC), got[0].RecordDate)
	assert.Equal(t, "Coffee Shop", got[0].Description)
	// No marker line: every record is a credit and is negated.
	assert.True(t, amount("-4.50").Equal(got[0].Amount), "got %s", got[0].Amount)
	assert.False(t, got[0].HasFallback())
}

func TestScanSkipKeywordDiscardsAnchor(t *testing.T) {
	scanner := NewScanner(noMarkerLayout(), testDates())

	got := scanner.Scan([]string{"12 May", "BALANCE FORWARD", "100.00"})
	assert.Empty(t, got)
}

func TestScanResumesAfterSkippedAnchor(t *testing.T) {
	scanner := NewScanner(noMarkerLayout(), testDates())

	got := scanner.Scan([]string{"12 May", "BALANCE FORWARD", "13 May", "Tea", "2.00"})
	require.Len(t, got, 1)
	assert.Equal(t, "Tea", got[0].Description)
	assert.Equal(t, 13, got[0].RecordDate.Day())
	assert.True(t, amount("-2.00").Equal(got[0].Amount))
}

// "CR" on the marker line means a debit, the reverse of the usual bank
// convention. Changing this must be a deliberate decision: stored data and
// downstream categorisation depend on the current sign.
func TestScanCRMarkerMeansDebit(t *testing.T) {
	scanner := NewScanner(markerLayout(), testDates())

	lines := []string{"12 May", "Desc", "10.00", "CR"}
	got, trace := scanner.Trace(lines)
	require.Len(t, got, 1)

	assert.True(t, amount("10.00").Equal(got[0].Amount), "CR must keep the amount positive, got %s", got[0].Amount)
	require.NotEmpty(t, trace)
	assert.Equal(t, models.LineParsed, trace[0].Result)
	assert.Equal(t, 2, trace[0].Stride)
}

func TestScanCreditStride(t *testing.T) {
	scanner := NewScanner(markerLayout(), testDates())

	lines := []string{
		"12 May", "Salary", "1,000.00", "",
		"13 May", "Rent", "500.00", "CR",
	}
	got, trace := scanner.Trace(lines)
	require.Len(t, got, 2)

	assert.Equal(t, "Salary", got[0].Description)
	assert.True(t, amount("-1000.00").Equal(got[0].Amount))
	assert.Equal(t, "Rent", got[1].Description)
	assert.True(t, amount("500.00").Equal(got[1].Amount))

	var strides []int
	for _, d := range trace {
		if d.Result == models.LineParsed {
			strides = append(strides, d.Stride)
		}
	}
	assert.Equal(t, []int{3, 2}, strides)
}

func TestScanDescriptionOffsets(t *testing.T) {
	tests := []struct {
		name     string
		offsets  []int
		lines    []string
		expected []string
	}{
		{
			name:     "single offset",
			offsets:  []int{1},
			lines:    []string{"12 May", "  Coffee  ", "Shop", "4.50"},
			expected: []string{"Coffee"},
		},
		{
			name:     "multiple offsets concatenate in order",
			offsets:  []int{2, 1},
			lines:    []string{"12 May", "Coffee", "Shop", "4.50"},
			expected: []string{"ShopCoffee"},
		},
		{
			name:     "duplicate offsets repeat the line",
			offsets:  []int{1, 1},
			lines:    []string{"12 May", "Coffee", "4.50"},
			expected: []string{"CoffeeCoffee"},
		},
		{
			name:     "out of range offset skips the anchor",
			offsets:  []int{9},
			lines:    []string{"12 May", "Coffee", "4.50"},
			expected: nil,
		},
		{
			name:     "out of range part of a multi offset is empty",
			offsets:  []int{1, 9},
			lines:    []string{"12 May", "Coffee", "4.50"},
			expected: []string{"Coffee"},
		},
		{
			name:     "blank description skips the anchor",
			offsets:  []int{1},
			lines:    []string{"12 May", "   ", "4.50"},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := noMarkerLayout()
			s.DescriptionOffsets = tt.offsets
			s.AmountOffset = len(tt.lines) - 1

			var descriptions []string
			for _, txn := range NewScanner(s, testDates()).Scan(tt.lines) {
				descriptions = append(descriptions, txn.Description)
			}
			assert.Equal(t, tt.expected, descriptions)
		})
	}
}

func TestScanOutOfRangeAmountFallsBackToZero(t *testing.T) {
	s := noMarkerLayout()
	s.AmountOffset = 7
	got := NewScanner(s, testDates()).Scan([]string{"12 May", "Coffee Shop"})

	require.Len(t, got, 1)
	assert.True(t, got[0].Amount.IsZero())
	assert.True(t, got[0].AmountFallback)
	assert.False(t, got[0].DateFallback)
}

func TestScanOutOfRangeMarkerIsCredit(t *testing.T) {
	s := markerLayout()
	s.CreditOffset = 10
	got := NewScanner(s, testDates()).Scan([]string{"12 May", "Refund", "3.00"})

	require.Len(t, got, 1)
	assert.True(t, amount("-3.00").Equal(got[0].Amount))
}

func TestScanDateFallback(t *testing.T) {
	got := NewScanner(noMarkerLayout(), testDates()).Scan([]string{"12 Foo", "Coffee Shop", "4.50"})

	require.Len(t, got, 1)
	assert.True(t, got[0].DateFallback)
	assert.Equal(t, fixedNow, got[0].RecordDate)
}

func TestScanUnicodeSeparatedAnchor(t *testing.T) {
	tests := []struct {
		name   string
		anchor string
	}{
		{"no-break space", "12\u00a0May"},
		{"thin space", "12\u2009May"},
		{"figure space", "12\u2007May"},
		{"mixed run", "12 \u00a0 May"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewScanner(noMarkerLayout(), testDates()).Scan([]string{tt.anchor, "Coffee Shop", "4.50"})

			require.Len(t, got, 1)
			assert.Equal(t, time.Date(2025, time.May, 12, 0, 0, 0, 0, time.UTC), got[0].RecordDate)
			assert.False(t, got[0].DateFallback)
			assert.Equal(t, "Coffee Shop", got[0].Description)
		})
	}
}

// A non-English month still anchors a record; its date is unparsable.
func TestScanNonASCIIMonthAnchors(t *testing.T) {
	got := NewScanner(noMarkerLayout(), testDates()).Scan([]string{"12 Mär", "Bäckerei", "3.20"})

	require.Len(t, got, 1)
	assert.True(t, got[0].DateFallback)
	assert.Equal(t, fixedNow, got[0].RecordDate)
	assert.Equal(t, "Bäckerei", got[0].Description)
}

func TestScanNumericDateAnchor(t *testing.T) {
	got := NewScanner(noMarkerLayout(), testDates()).Scan([]string{"  03/11/2024 card payment", "Bookshop", "£12.00"})

	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, time.November, 3, 0, 0, 0, 0, time.UTC), got[0].RecordDate)
	assert.True(t, amount("-12.00").Equal(got[0].Amount))
}

func TestScanNoLines(t *testing.T) {
	scanner := NewScanner(noMarkerLayout(), testDates())

	assert.Empty(t, scanner.Scan(nil))
	assert.Empty(t, scanner.Scan([]string{""}))
}

func TestScanIsRepeatable(t *testing.T) {
	scanner := NewScanner(markerLayout(), testDates())
	lines := strings.Split("Header\n12 May\nCoffee\n4.50\n\n13 May\nBALANCE\n14 May\nTea\n2.00\nCR\n", "\n")

	first := scanner.Scan(lines)
	second := scanner.Scan(lines)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestTraceRecordsEveryVisitedLine(t *testing.T) {
	scanner := NewScanner(noMarkerLayout(), testDates())

	_, trace := scanner.Trace([]string{"Header", "12 May", "BALANCE", "13 May", "Tea", "2.00"})

	results := make([]string, 0, len(trace))
	for _, d := range trace {
		results = append(results, d.Result)
	}
	assert.Equal(t, []string{
		models.LineNoAnchor, // Header
		models.LineSkipped,  // 12 May
		models.LineNoAnchor, // BALANCE
		models.LineParsed,   // 13 May
		models.LineNoAnchor, // 2.00
	}, results)
	assert.Equal(t, 4, trace[3].LineNum)
	assert.Equal(t, "13 May", trace[3].Anchor)
}
