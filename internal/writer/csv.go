package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/insightdelivered/statement-ingest/internal/models"
)

const dateLayout = "2006-01-02"

// CSVWriter writes transactions to CSV format.
type CSVWriter struct {
	// IncludeHeader prefixes the output with "# key,value" metadata rows.
	IncludeHeader bool
}

// WriteToFile writes transactions to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, info *models.StatementInfo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}

	if err := w.Write(f, info); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write writes transactions in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, info *models.StatementInfo) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		meta := [][2]string{
			{"# Source", info.Source},
			{"# Statement Type", info.StatementType},
			{"# Extraction ID", info.ExtractionID},
		}
		for _, kv := range meta {
			if kv[1] == "" {
				continue
			}
			if err := writer.Write(kv[:]); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	header := []string{"Date", "Description", "Amount", "CategoryID", "PersonalDataID"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, txn := range info.Transactions {
		row := []string{
			txn.RecordDate.Format(dateLayout),
			txn.Description,
			txn.Amount.StringFixed(2),
			strconv.FormatInt(txn.CategoryID, 10),
			strconv.FormatInt(txn.PersonalDataID, 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
