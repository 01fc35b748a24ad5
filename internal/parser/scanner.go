package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/models"
)

// creditMarker is the literal marker-line text. Layouts with a marker line
// treat "CR" as a debit and anything else as a credit.
const creditMarker = "CR"

// anchorPattern matches a transaction date at the start of a trimmed line:
// "12 May" (day + three-letter token) or "12/05/2025". Classes are Unicode
// aware: PDF text often separates day and month with U+00A0 or U+2009.
var anchorPattern = regexp.MustCompile(`^(?:\p{Nd}{1,2}[\s\p{Z}]+[\p{L}\p{N}_]{3}|\p{Nd}{1,2}/\p{Nd}{1,2}/\p{Nd}{4})`)

// Scanner extracts transactions from the lines of a statement using one layout.
// A Scanner holds no per-call state and may be shared between goroutines.
type Scanner struct {
	settings layout.Settings
	dates    DateNormalizer
}

// NewScanner returns a scanner for the given layout.
func NewScanner(settings layout.Settings, dates DateNormalizer) *Scanner {
	return &Scanner{settings: settings, dates: dates}
}

// Scan returns the transactions found in lines, in order.
func (s *Scanner) Scan(lines []string) []models.Transaction {
	txns, _ := s.scan(lines, false)
	return txns
}

// Trace scans lines and also reports the decision taken at every visited line.
func (s *Scanner) Trace(lines []string) ([]models.Transaction, []models.DebugLine) {
	return s.scan(lines, true)
}

func (s *Scanner) scan(lines []string, trace bool) ([]models.Transaction, []models.DebugLine) {
	var (
		transactions []models.Transaction
		debugLines   []models.DebugLine
	)

	record := func(i int, anchor, result string, stride int) {
		if trace {
			debugLines = append(debugLines, models.DebugLine{
				LineNum: i + 1,
				Text:    lines[i],
				Anchor:  anchor,
				Result:  result,
				Stride:  stride,
			})
		}
	}

	for i := 0; i < len(lines); {
		anchor := anchorPattern.FindString(strings.TrimSpace(lines[i]))
		if anchor == "" {
			record(i, "", models.LineNoAnchor, 1)
			i++
			continue
		}

		date, dateFallback := s.dates.Normalize(anchor)

		description := s.description(lines, i)
		if description == "" || containsAny(description, s.settings.SkipKeywords) {
			// Abandon the anchor; the next line may start its own block.
			record(i, anchor, models.LineSkipped, 1)
			i++
			continue
		}

		isCredit := true
		if s.settings.CreditMarkerPresent {
			isCredit = lineAt(lines, i+s.settings.CreditOffset) != creditMarker
		}

		amount, amountFallback := NormalizeAmount(lineAt(lines, i+s.settings.AmountOffset), isCredit)

		transactions = append(transactions, models.Transaction{
			RecordDate:     date,
			Description:    description,
			Amount:         amount,
			DateFallback:   dateFallback,
			AmountFallback: amountFallback,
		})

		// Credit blocks carry one extra line when the layout has a marker.
		stride := 2
		if s.settings.CreditMarkerPresent && isCredit {
			stride = 3
		}
		record(i, anchor, models.LineParsed, stride)
		i += stride
	}

	return transactions, debugLines
}

// description resolves the description for the anchor at line i. A single
// offset yields that line alone; several offsets are concatenated in order,
// each occurrence of a repeated offset contributing once.
func (s *Scanner) description(lines []string, i int) string {
	offsets := s.settings.DescriptionOffsets
	if len(offsets) == 1 {
		return lineAt(lines, i+offsets[0])
	}

	var b strings.Builder
	for _, off := range offsets {
		b.WriteString(lineAt(lines, i+off))
	}
	return b.String()
}

// lineAt returns the trimmed line at idx, or "" when idx is out of range.
func lineAt(lines []string, idx int) string {
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[idx])
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
