package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSettings is returned when a settings document cannot be decoded
// or describes an impossible layout.
var ErrInvalidSettings = errors.New("invalid statement settings")

// StatementType identifies a statement format. Each type has at most one
// stored Settings value.
type StatementType string

const (
	StatementDefault  StatementType = "default"
	StatementMetro    StatementType = "metro"
	StatementHSBC     StatementType = "hsbc"
	StatementBarclays StatementType = "barclays"
)

// ParseStatementType normalizes user input such as " HSBC " to a StatementType.
// Stored types are compared case-insensitively, so lowering here is lossless.
func ParseStatementType(s string) StatementType {
	return StatementType(strings.ToLower(strings.TrimSpace(s)))
}

func (t StatementType) String() string {
	return string(t)
}

// Settings is the positional layout of one statement type.
//
// Offsets are relative to the anchor line, the line whose start matches a
// transaction date. A zero Settings value is the "null" layout: it selects
// every non-empty page and never yields a transaction.
type Settings struct {
	// PageKeywords must all appear in a page for it to be scanned.
	PageKeywords []string
	// SkipKeywords reject a candidate whose description contains any of them.
	SkipKeywords []string
	// DescriptionOffsets are read in order and concatenated.
	DescriptionOffsets []int
	AmountOffset       int
	// CreditOffset is only consulted when CreditMarkerPresent is set.
	CreditOffset        int
	CreditMarkerPresent bool
}

// Empty returns the null layout used when no settings are stored.
func Empty() Settings {
	return Settings{}
}

// Usable reports whether the layout can produce transactions at all.
func (s Settings) Usable() bool {
	return len(s.DescriptionOffsets) > 0
}

// IsEmpty reports whether s is the null layout.
func (s Settings) IsEmpty() bool {
	return len(s.PageKeywords) == 0 &&
		len(s.SkipKeywords) == 0 &&
		len(s.DescriptionOffsets) == 0 &&
		s.AmountOffset == 0 &&
		s.CreditOffset == 0 &&
		!s.CreditMarkerPresent
}

// Validate rejects negative offsets.
func (s Settings) Validate() error {
	for i, off := range s.DescriptionOffsets {
		if off < 0 {
			return fmt.Errorf("%w: description_indices[%d] is negative (%d)", ErrInvalidSettings, i, off)
		}
	}
	if s.AmountOffset < 0 {
		return fmt.Errorf("%w: amount_index is negative (%d)", ErrInvalidSettings, s.AmountOffset)
	}
	if s.CreditOffset < 0 {
		return fmt.Errorf("%w: credit_index is negative (%d)", ErrInvalidSettings, s.CreditOffset)
	}
	return nil
}

// settingsJSON is the stored document shape. Keys must not change: rows
// written by earlier releases are decoded with it.
type settingsJSON struct {
	TransactionPageKeywords *[]string `json:"transaction_page_keywords"`
	TransactionLinesToSkip  *[]string `json:"transaction_lines_to_skip"`
	DescriptionIndices      *[]int    `json:"description_indices"`
	AmountIndex             *int      `json:"amount_index"`
	CreditIndex             *int      `json:"credit_index"`
	CreditLineExists        bool      `json:"credit_line_exists"`
}

// MarshalJSON writes every key, including credit_line_exists, and encodes
// nil slices as empty arrays.
func (s Settings) MarshalJSON() ([]byte, error) {
	pageKeywords := nonNil(s.PageKeywords)
	skip := nonNil(s.SkipKeywords)
	offsets := s.DescriptionOffsets
	if offsets == nil {
		offsets = []int{}
	}
	return json.Marshal(settingsJSON{
		TransactionPageKeywords: &pageKeywords,
		TransactionLinesToSkip:  &skip,
		DescriptionIndices:      &offsets,
		AmountIndex:             &s.AmountOffset,
		CreditIndex:             &s.CreditOffset,
		CreditLineExists:        s.CreditMarkerPresent,
	})
}

// UnmarshalJSON requires every key except credit_line_exists, which
// defaults to false.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var doc settingsJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	var missing []string
	if doc.TransactionPageKeywords == nil {
		missing = append(missing, "transaction_page_keywords")
	}
	if doc.TransactionLinesToSkip == nil {
		missing = append(missing, "transaction_lines_to_skip")
	}
	if doc.DescriptionIndices == nil {
		missing = append(missing, "description_indices")
	}
	if doc.AmountIndex == nil {
		missing = append(missing, "amount_index")
	}
	if doc.CreditIndex == nil {
		missing = append(missing, "credit_index")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing keys %s", ErrInvalidSettings, strings.Join(missing, ", "))
	}

	decoded := Settings{
		PageKeywords:        *doc.TransactionPageKeywords,
		SkipKeywords:        *doc.TransactionLinesToSkip,
		DescriptionOffsets:  *doc.DescriptionIndices,
		AmountOffset:        *doc.AmountIndex,
		CreditOffset:        *doc.CreditIndex,
		CreditMarkerPresent: doc.CreditLineExists,
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// Decode parses a stored settings string. An empty string is the null layout.
func Decode(raw string) (Settings, error) {
	if strings.TrimSpace(raw) == "" {
		return Empty(), nil
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			return Settings{}, err
		}
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return s, nil
}

// Encode renders s in the stored document shape.
func Encode(s Settings) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
