package events

import (
	"encoding/json"
	"time"
)

// StatementExtracted announces a finished extraction. It carries counts only;
// consumers fetch stored transactions by extraction ID when they need them.
type StatementExtracted struct {
	ExtractionID     string    `json:"extraction_id"`
	StatementType    string    `json:"statement_type"`
	TransactionCount int       `json:"transaction_count"`
	FallbackCount    int       `json:"fallback_count"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewStatementExtracted stamps a message with the current time.
func NewStatementExtracted(extractionID, statementType string, transactions, fallbacks int) *StatementExtracted {
	return &StatementExtracted{
		ExtractionID:     extractionID,
		StatementType:    statementType,
		TransactionCount: transactions,
		FallbackCount:    fallbacks,
		Timestamp:        time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *StatementExtracted) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatementExtractedFromJSON decodes a message body.
func StatementExtractedFromJSON(data []byte) (*StatementExtracted, error) {
	var msg StatementExtracted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
