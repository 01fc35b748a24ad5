// Package statement runs a full extraction: settings lookup, page selection,
// scanning and placeholder assignment.
package statement

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/insightdelivered/statement-ingest/internal/events"
	"github.com/insightdelivered/statement-ingest/internal/extractor"
	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/models"
	"github.com/insightdelivered/statement-ingest/internal/parser"
)

// SettingsStore supplies the layout for a statement type.
type SettingsStore interface {
	GetSettings(ctx context.Context, t layout.StatementType) (layout.Settings, error)
}

// StaticSettings serves one layout for every statement type, e.g. a layout
// read from a file on the command line.
type StaticSettings layout.Settings

func (s StaticSettings) GetSettings(context.Context, layout.StatementType) (layout.Settings, error) {
	return layout.Settings(s), nil
}

// Service is safe for concurrent use; each call is independent.
type Service struct {
	settings  SettingsStore
	dates     parser.DateNormalizer
	publisher events.Publisher
	logger    *log.Logger
	newID     func() string
}

func NewService(settings SettingsStore, dates parser.DateNormalizer, publisher events.Publisher, logger *log.Logger) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		settings:  settings,
		dates:     dates,
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// ExtractFile decodes the PDF at path and extracts its transactions.
func (s *Service) ExtractFile(ctx context.Context, path string, t layout.StatementType) (*models.StatementInfo, error) {
	pages, err := extractor.ExtractPagesFromFile(path)
	if err != nil {
		return nil, err
	}
	info, err := s.ExtractPages(ctx, pages, t)
	if err != nil {
		return nil, err
	}
	info.Source = path
	return info, nil
}

// ExtractDocument decodes an in-memory PDF and extracts its transactions.
// Decode failures wrap extractor.ErrDocumentRead.
func (s *Service) ExtractDocument(ctx context.Context, data []byte, t layout.StatementType) (*models.StatementInfo, error) {
	pages, err := extractor.ExtractPagesFromBytes(data)
	if err != nil {
		return nil, err
	}
	return s.ExtractPages(ctx, pages, t)
}

// ExtractPages runs extraction over already decoded page text. An empty
// statement type is detected from the pages.
func (s *Service) ExtractPages(ctx context.Context, pages []string, t layout.StatementType) (*models.StatementInfo, error) {
	if t == "" {
		t = layout.DetectStatementType(pages)
		s.logger.Debug("Detected statement type", "statement_type", t)
	}

	settings, err := s.settings.GetSettings(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("load settings for %s: %w", t, err)
	}
	if !settings.Usable() {
		s.logger.Warn("No usable layout stored for statement type", "statement_type", t)
	}

	text := extractor.SelectPages(pages, settings.PageKeywords)
	lines := strings.Split(text, "\n")
	transactions, trace := parser.NewScanner(settings, s.dates).Trace(lines)

	info := &models.StatementInfo{
		ExtractionID:  s.newID(),
		StatementType: t.String(),
		Transactions:  transactions,
		DebugLines:    trace,
	}

	for i := range info.Transactions {
		txn := &info.Transactions[i]
		txn.CategoryID = models.DefaultCategoryID
		txn.PersonalDataID = models.DefaultPersonalDataID

		if txn.DateFallback {
			s.logger.Warn("Unparsable date replaced with processing time",
				"extraction_id", info.ExtractionID, "description", txn.Description)
		}
		if txn.AmountFallback {
			s.logger.Warn("Unparsable amount replaced with zero",
				"extraction_id", info.ExtractionID, "description", txn.Description)
		}
	}

	s.logger.Debug("Extracted statement",
		"extraction_id", info.ExtractionID,
		"statement_type", t,
		"pages", len(pages),
		"lines", len(lines),
		"transactions", len(info.Transactions),
		"fallbacks", info.FallbackCount())

	msg := events.NewStatementExtracted(info.ExtractionID, info.StatementType, len(info.Transactions), info.FallbackCount())
	if err := s.publisher.PublishStatementExtracted(ctx, msg); err != nil {
		s.logger.Error("Failed to publish extraction event", "extraction_id", info.ExtractionID, "error", err)
	}

	return info, nil
}
