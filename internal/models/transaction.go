package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder foreign keys attached to freshly extracted records.
// Categorization happens downstream; both rows are seeded by migrations.
const (
	DefaultCategoryID     int64 = 1
	DefaultPersonalDataID int64 = 1
)

// Transaction is a single extracted (or stored) statement record.
// Negative amounts are credits.
type Transaction struct {
	ID             int64           `json:"id,omitempty"`
	RecordDate     time.Time       `json:"record_date"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	CategoryID     int64           `json:"finance_item_category_id"`
	PersonalDataID int64           `json:"personal_data_id"`

	// DateFallback is set when the date could not be parsed and the
	// processing time was substituted.
	DateFallback bool `json:"-"`
	// AmountFallback is set when the amount could not be parsed and zero
	// was substituted.
	AmountFallback bool `json:"-"`
}

// HasFallback reports whether any field of t holds a substituted value.
func (t Transaction) HasFallback() bool {
	return t.DateFallback || t.AmountFallback
}

// DebugLine captures what the scanner did with one input line.
type DebugLine struct {
	LineNum int    `json:"lineNum"`
	Text    string `json:"text"`
	Anchor  string `json:"anchor,omitempty"`
	Result  string `json:"result"` // "parsed", "skipped", "no-anchor"
	Stride  int    `json:"stride"`
}

// Scan results recorded in DebugLine.Result.
const (
	LineParsed   = "parsed"
	LineSkipped  = "skipped"
	LineNoAnchor = "no-anchor"
)

// StatementInfo holds the outcome of one extraction call.
type StatementInfo struct {
	ExtractionID  string
	StatementType string
	Source        string
	Transactions  []Transaction
	DebugLines    []DebugLine
}

// FallbackCount returns how many records carry a substituted field.
func (s *StatementInfo) FallbackCount() int {
	n := 0
	for _, t := range s.Transactions {
		if t.HasFallback() {
			n++
		}
	}
	return n
}
