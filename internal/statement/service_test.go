package statement

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ingest/internal/events"
	"github.com/insightdelivered/statement-ingest/internal/extractor"
	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/models"
	"github.com/insightdelivered/statement-ingest/internal/parser"
)

type mapStore struct {
	settings  map[layout.StatementType]layout.Settings
	err       error
	requested []layout.StatementType
}

func (m *mapStore) GetSettings(_ context.Context, t layout.StatementType) (layout.Settings, error) {
	m.requested = append(m.requested, t)
	if m.err != nil {
		return layout.Settings{}, m.err
	}
	return m.settings[t], nil
}

type recordingPublisher struct {
	messages []*events.StatementExtracted
	err      error
}

func (p *recordingPublisher) PublishStatementExtracted(_ context.Context, msg *events.StatementExtracted) error {
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

var fixedNow = time.Date(2031, time.March, 4, 9, 30, 0, 0, time.UTC)

func testDates() parser.DateNormalizer {
	return parser.DateNormalizer{ReferenceYear: 2025, Now: func() time.Time { return fixedNow }}
}

func metroLayout() layout.Settings {
	return layout.Settings{
		PageKeywords:       []string{"Date", "Description"},
		SkipKeywords:       []string{"BALANCE"},
		DescriptionOffsets: []int{1},
		AmountOffset:       2,
	}
}

var metroPages = []string{
	"Metro Bank\nWelcome to your statement",
	"Date Description Amount\n12 May\nCoffee Shop\n4.50\n13 May\nBALANCE FORWARD\n14 May\nBakery\nN/A",
}

func newTestService(store SettingsStore, pub events.Publisher, logs io.Writer) *Service {
	s := NewService(store, testDates(), pub, log.New(logs))
	s.newID = func() string { return "extraction-1" }
	return s
}

func TestExtractPages(t *testing.T) {
	store := &mapStore{settings: map[layout.StatementType]layout.Settings{layout.StatementMetro: metroLayout()}}
	pub := &recordingPublisher{}
	var logs bytes.Buffer

	info, err := newTestService(store, pub, &logs).ExtractPages(context.Background(), metroPages, layout.StatementMetro)
	require.NoError(t, err)

	assert.Equal(t, "extraction-1", info.ExtractionID)
	assert.Equal(t, "metro", info.StatementType)
	require.Len(t, info.Transactions, 2)

	coffee := info.Transactions[0]
	assert.Equal(t, "Coffee Shop", coffee.Description)
	assert.True(t, decimal.RequireFromString("-4.50").Equal(coffee.Amount))
	assert.Equal(t, models.DefaultCategoryID, coffee.CategoryID)
	assert.Equal(t, models.DefaultPersonalDataID, coffee.PersonalDataID)

	bakery := info.Transactions[1]
	assert.True(t, bakery.AmountFallback)
	assert.True(t, bakery.Amount.IsZero())
	assert.Equal(t, 1, info.FallbackCount())
	assert.Contains(t, logs.String(), "Unparsable amount replaced with zero")

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "extraction-1", pub.messages[0].ExtractionID)
	assert.Equal(t, 2, pub.messages[0].TransactionCount)
	assert.Equal(t, 1, pub.messages[0].FallbackCount)
}

func TestExtractPagesDetectsStatementType(t *testing.T) {
	store := &mapStore{settings: map[layout.StatementType]layout.Settings{layout.StatementMetro: metroLayout()}}

	info, err := newTestService(store, nil, io.Discard).ExtractPages(context.Background(), metroPages, "")
	require.NoError(t, err)

	assert.Equal(t, []layout.StatementType{layout.StatementMetro}, store.requested)
	assert.Equal(t, "metro", info.StatementType)
	assert.Len(t, info.Transactions, 2)
}

func TestExtractPagesWithoutStoredLayout(t *testing.T) {
	store := &mapStore{}
	var logs bytes.Buffer

	info, err := newTestService(store, nil, &logs).ExtractPages(context.Background(), metroPages, layout.StatementHSBC)
	require.NoError(t, err)
	assert.Empty(t, info.Transactions)
	assert.Contains(t, logs.String(), "No usable layout")
}

func TestExtractPagesSettingsError(t *testing.T) {
	store := &mapStore{err: layout.ErrInvalidSettings}

	_, err := newTestService(store, nil, io.Discard).ExtractPages(context.Background(), metroPages, layout.StatementMetro)
	assert.ErrorIs(t, err, layout.ErrInvalidSettings)
}

func TestExtractPagesPublishFailureIsNotFatal(t *testing.T) {
	store := StaticSettings(metroLayout())
	pub := &recordingPublisher{err: errors.New("broker down")}
	var logs bytes.Buffer

	info, err := newTestService(store, pub, &logs).ExtractPages(context.Background(), metroPages, layout.StatementDefault)
	require.NoError(t, err)
	assert.Len(t, info.Transactions, 2)
	assert.Contains(t, logs.String(), "Failed to publish extraction event")
}

func TestExtractDocumentReadError(t *testing.T) {
	store := StaticSettings(metroLayout())
	pub := &recordingPublisher{}

	_, err := newTestService(store, pub, io.Discard).ExtractDocument(context.Background(), []byte("not a pdf"), layout.StatementDefault)
	assert.ErrorIs(t, err, extractor.ErrDocumentRead)
	assert.Empty(t, pub.messages)
}

func TestExtractPagesIsRepeatable(t *testing.T) {
	svc := newTestService(StaticSettings(metroLayout()), nil, io.Discard)

	first, err := svc.ExtractPages(context.Background(), metroPages, layout.StatementMetro)
	require.NoError(t, err)
	second, err := svc.ExtractPages(context.Background(), metroPages, layout.StatementMetro)
	require.NoError(t, err)

	assert.Equal(t, first.Transactions, second.Transactions)
}

func TestExtractFile(t *testing.T) {
	settings := StaticSettings(layout.Settings{
		PageKeywords:        []string{"Date", "Amount"},
		DescriptionOffsets:  []int{1},
		AmountOffset:        2,
		CreditOffset:        3,
		CreditMarkerPresent: true,
	})
	pub := &recordingPublisher{}

	info, err := newTestService(settings, pub, io.Discard).ExtractFile(context.Background(), "../extractor/testdata/statement.pdf", layout.StatementDefault)
	require.NoError(t, err)

	assert.Equal(t, "../extractor/testdata/statement.pdf", info.Source)
	require.Len(t, info.Transactions, 2)

	// Pages are joined without a separator, so the first page's amount line
	// also carries the next page's header.
	coffee := info.Transactions[0]
	assert.Equal(t, time.Date(2025, time.May, 12, 0, 0, 0, 0, time.UTC), coffee.RecordDate)
	assert.Equal(t, "Coffee Shop", coffee.Description)
	assert.True(t, decimal.RequireFromString("-4.50").Equal(coffee.Amount), "got %s", coffee.Amount)

	books := info.Transactions[1]
	assert.Equal(t, "Book Store", books.Description)
	assert.True(t, decimal.RequireFromString("12.00").Equal(books.Amount), "got %s", books.Amount)

	assert.NotEmpty(t, info.DebugLines)
	require.Len(t, pub.messages, 1)
}
